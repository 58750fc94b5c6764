package domain

import (
	"fmt"
	"time"
)

type SessionStatus string

const (
	SessionWaiting SessionStatus = "waiting"
	SessionActive  SessionStatus = "active"
	SessionEnded   SessionStatus = "ended"
)

type EndReason string

const (
	EndReasonTimeout             EndReason = "timeout"
	EndReasonInsufficientBalance EndReason = "insufficient_balance"
	EndReasonUserWentNext        EndReason = "user_went_next"
	EndReasonUserEnded           EndReason = "user_ended"
	EndReasonUserRestarted       EndReason = "user_restarted"
	EndReasonSystem              EndReason = "system"
)

type Session struct {
	ID            int64
	RoomID        string
	ClientID      *int64
	ModelID       *int64
	Status        SessionStatus
	ConsumedCoins int64
	EndReason     EndReason
	CreatedAt     time.Time
	StartedAt     *time.Time
	EndedAt       *time.Time
	LastBilledAt  *time.Time
}

// NewWaitingSession builds a session with the caller's slot filled.
func NewWaitingSession(roomID string, userID int64, role Role, now time.Time) (*Session, error) {
	if !role.Participant() {
		return nil, ErrInvalidRole
	}
	s := &Session{
		RoomID:    roomID,
		Status:    SessionWaiting,
		CreatedAt: now,
	}
	id := userID
	s.setSlot(role, &id)
	return s, nil
}

// Slot returns the participant id stored for role, or nil when the slot is empty.
func (s *Session) Slot(role Role) *int64 {
	switch role {
	case RoleClient:
		return s.ClientID
	case RoleModel:
		return s.ModelID
	default:
		return nil
	}
}

func (s *Session) setSlot(role Role, id *int64) {
	switch role {
	case RoleClient:
		s.ClientID = id
	case RoleModel:
		s.ModelID = id
	}
}

// Fill assigns userID to the empty slot for role. Slots are never overwritten.
func (s *Session) Fill(role Role, userID int64) error {
	if s.Status != SessionWaiting {
		return fmt.Errorf("fill %s slot: session %d is %s", role, s.ID, s.Status)
	}
	if !role.Participant() {
		return ErrInvalidRole
	}
	if s.Slot(role) != nil {
		return fmt.Errorf("fill %s slot: session %d slot already taken", role, s.ID)
	}
	id := userID
	s.setSlot(role, &id)
	return nil
}

func (s *Session) Paired() bool {
	return s.ClientID != nil && s.ModelID != nil
}

// Activate moves a paired WAITING session to ACTIVE.
func (s *Session) Activate(now time.Time) error {
	if s.Status != SessionWaiting {
		return fmt.Errorf("activate session %d: %w", s.ID, ErrSessionNotActive)
	}
	if !s.Paired() {
		return fmt.Errorf("activate session %d: both participants required", s.ID)
	}
	s.Status = SessionActive
	s.StartedAt = &now
	s.LastBilledAt = &now
	return nil
}

// End moves the session to ENDED. It reports false when the session had
// already ended, in which case nothing is changed.
func (s *Session) End(reason EndReason, now time.Time) bool {
	if s.Status == SessionEnded {
		return false
	}
	s.Status = SessionEnded
	s.EndReason = reason
	s.EndedAt = &now
	return true
}

// Participants returns the ids of everyone seated in the session.
func (s *Session) Participants() []int64 {
	ids := make([]int64, 0, 2)
	if s.ClientID != nil {
		ids = append(ids, *s.ClientID)
	}
	if s.ModelID != nil {
		ids = append(ids, *s.ModelID)
	}
	return ids
}

func (s *Session) HasParticipant(userID int64) bool {
	for _, id := range s.Participants() {
		if id == userID {
			return true
		}
	}
	return false
}

// PartnerOf returns the other participant of userID.
func (s *Session) PartnerOf(userID int64) (int64, bool) {
	switch {
	case s.ClientID != nil && *s.ClientID == userID && s.ModelID != nil:
		return *s.ModelID, true
	case s.ModelID != nil && *s.ModelID == userID && s.ClientID != nil:
		return *s.ClientID, true
	default:
		return 0, false
	}
}

// RoleOf returns the role userID occupies in the session.
func (s *Session) RoleOf(userID int64) (Role, bool) {
	switch {
	case s.ClientID != nil && *s.ClientID == userID:
		return RoleClient, true
	case s.ModelID != nil && *s.ModelID == userID:
		return RoleModel, true
	default:
		return "", false
	}
}

// Payer returns the billable participant.
func (s *Session) Payer() (int64, bool) {
	if s.ClientID == nil {
		return 0, false
	}
	return *s.ClientID, true
}

// Clone returns a deep copy so stored sessions are never aliased.
func (s *Session) Clone() *Session {
	c := *s
	c.ClientID = cloneInt64(s.ClientID)
	c.ModelID = cloneInt64(s.ModelID)
	c.StartedAt = cloneTime(s.StartedAt)
	c.EndedAt = cloneTime(s.EndedAt)
	c.LastBilledAt = cloneTime(s.LastBilledAt)
	return &c
}

// ExclusionWindow keeps SubjectUserID from being matched with ExcludedUserID
// until ExpiresAt.
type ExclusionWindow struct {
	SubjectUserID  int64
	ExcludedUserID int64
	ExpiresAt      time.Time
}

func (w ExclusionWindow) Active(now time.Time) bool {
	return now.Before(w.ExpiresAt)
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
