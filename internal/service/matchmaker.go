package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/roulette/internal/config"
	"github.com/set-night/roulette/internal/domain"
	"github.com/set-night/roulette/internal/notify"
	"github.com/set-night/roulette/internal/repository"
)

// errStaleCandidate means the locked candidate changed between selection and
// re-verification; the attempt is retried.
var errStaleCandidate = errors.New("stale match candidate")

// ExclusionBook keeps recently separated pairs apart for a fixed window.
type ExclusionBook struct {
	store  repository.Store
	window time.Duration
	now    func() time.Time
}

func NewExclusionBook(store repository.Store, window time.Duration) *ExclusionBook {
	return &ExclusionBook{store: store, window: window, now: time.Now}
}

func (b *ExclusionBook) WithClock(now func() time.Time) *ExclusionBook {
	b.now = now
	return b
}

// RecordTx excludes a and c from each other in both directions.
func (b *ExclusionBook) RecordTx(ctx context.Context, tx repository.Tx, a, c int64) error {
	expiresAt := b.now().Add(b.window)
	for _, w := range []domain.ExclusionWindow{
		{SubjectUserID: a, ExcludedUserID: c, ExpiresAt: expiresAt},
		{SubjectUserID: c, ExcludedUserID: a, ExpiresAt: expiresAt},
	} {
		if err := tx.Exclusions().Put(ctx, w); err != nil {
			return fmt.Errorf("put exclusion: %w", err)
		}
	}
	return nil
}

func (b *ExclusionBook) ActiveFor(ctx context.Context, tx repository.Tx, userID int64) ([]int64, error) {
	ids, err := tx.Exclusions().ActiveFor(ctx, userID, b.now())
	if err != nil {
		return nil, fmt.Errorf("list exclusions: %w", err)
	}
	return ids, nil
}

// Excluded reports whether either user excludes the other.
func (b *ExclusionBook) Excluded(ctx context.Context, tx repository.Tx, a, c int64) (bool, error) {
	now := b.now()
	for _, pair := range [][2]int64{{a, c}, {c, a}} {
		ok, err := tx.Exclusions().IsExcluded(ctx, pair[0], pair[1], now)
		if err != nil {
			return false, fmt.Errorf("check exclusion: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (b *ExclusionBook) Sweep(ctx context.Context) (int64, error) {
	var n int64
	err := b.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		n, err = tx.Exclusions().DeleteExpired(ctx, b.now())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired exclusions: %w", err)
	}
	return n, nil
}

// Activator starts a session once both slots are filled.
type Activator interface {
	ActivateTx(ctx context.Context, tx repository.Tx, s *domain.Session) error
	Matched(ctx context.Context, s *domain.Session)
}

type MatchStatus string

const (
	MatchMatched MatchStatus = "matched"
	MatchWaiting MatchStatus = "waiting"
)

type MatchResult struct {
	Status    MatchStatus `json:"status"`
	RoomID    string      `json:"room_id"`
	SessionID int64       `json:"session_id"`
	PartnerID int64       `json:"partner_id,omitempty"`
}

type Matchmaker struct {
	store          repository.Store
	exclusions     *ExclusionBook
	activator      Activator
	publisher      notify.Publisher
	waitingTimeout time.Duration
	maxRetries     int
	logger         *slog.Logger
	now            func() time.Time
	newRoomID      func() string
}

func NewMatchmaker(store repository.Store, exclusions *ExclusionBook, activator Activator, publisher notify.Publisher, cfg *config.Config, logger *slog.Logger) *Matchmaker {
	return &Matchmaker{
		store:          store,
		exclusions:     exclusions,
		activator:      activator,
		publisher:      publisher,
		waitingTimeout: cfg.WaitingTimeout,
		maxRetries:     cfg.MatchMaxRetries,
		logger:         logger,
		now:            time.Now,
		newRoomID:      uuid.NewString,
	}
}

func (m *Matchmaker) WithClock(now func() time.Time) *Matchmaker {
	m.now = now
	return m
}

// FindMatch pairs the caller with the oldest compatible waiting session, or
// parks the caller in a new waiting session. A caller already waiting keeps
// their existing session unless a candidate turns up.
func (m *Matchmaker) FindMatch(ctx context.Context, userID int64, role domain.Role) (*MatchResult, error) {
	if !role.Participant() {
		return nil, domain.ErrInvalidRole
	}

	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		res, matched, err := m.attempt(ctx, userID, role)
		if err == nil {
			if matched != nil {
				m.activator.Matched(ctx, matched)
				m.logger.Info("match found", "room_id", res.RoomID, "user_id", userID, "partner_id", res.PartnerID)
			}
			return res, nil
		}
		if errors.Is(err, errStaleCandidate) || repository.IsRetryable(err) {
			m.logger.Debug("match attempt retried", "user_id", userID, "attempt", attempt, "error", err)
			continue
		}
		return nil, err
	}

	m.logger.Warn("matchmaking contention", "user_id", userID, "role", role)
	return nil, domain.ErrMatchContention
}

func (m *Matchmaker) attempt(ctx context.Context, userID int64, role domain.Role) (*MatchResult, *domain.Session, error) {
	var (
		res     *MatchResult
		matched *domain.Session
	)
	err := m.store.InTx(ctx, func(tx repository.Tx) error {
		now := m.now()

		open, err := tx.Sessions().OpenForUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("list open sessions: %w", err)
		}
		cutoff := now.Add(-m.waitingTimeout)
		var own *domain.Session
		for _, s := range open {
			if s.Status == domain.SessionActive {
				// Paired by a concurrent caller since the restart.
				partner, _ := s.PartnerOf(userID)
				res = &MatchResult{Status: MatchMatched, RoomID: s.RoomID, SessionID: s.ID, PartnerID: partner}
				return nil
			}
			if s.Status != domain.SessionWaiting {
				continue
			}
			if !s.CreatedAt.After(cutoff) {
				s.End(domain.EndReasonTimeout, now)
				if err := tx.Sessions().Update(ctx, s); err != nil {
					return fmt.Errorf("expire own waiting session: %w", err)
				}
				continue
			}
			if slot := s.Slot(role); slot != nil && *slot == userID && own == nil {
				own = s
			}
		}

		excluded, err := m.exclusions.ActiveFor(ctx, tx, userID)
		if err != nil {
			return err
		}

		for {
			cand, err := tx.Sessions().FindWaitingCandidate(ctx, role, userID, excluded, cutoff)
			if errors.Is(err, domain.ErrSessionNotFound) {
				if own != nil {
					res = &MatchResult{Status: MatchWaiting, RoomID: own.RoomID, SessionID: own.ID}
					return nil
				}
				s, err := domain.NewWaitingSession(m.newRoomID(), userID, role, now)
				if err != nil {
					return err
				}
				if err := tx.Sessions().Create(ctx, s); err != nil {
					return fmt.Errorf("create waiting session: %w", err)
				}
				res = &MatchResult{Status: MatchWaiting, RoomID: s.RoomID, SessionID: s.ID}
				return nil
			}
			if err != nil {
				return fmt.Errorf("find candidate: %w", err)
			}

			if cand.Status != domain.SessionWaiting || cand.Slot(role) != nil {
				return errStaleCandidate
			}
			partner := cand.Slot(role.Complement())
			if partner == nil || *partner == userID {
				return errStaleCandidate
			}
			blocked, err := m.exclusions.Excluded(ctx, tx, userID, *partner)
			if err != nil {
				return err
			}
			if blocked {
				excluded = append(excluded, *partner)
				continue
			}

			// The caller's own waiting room is superseded by the match.
			if own != nil {
				own.End(domain.EndReasonSystem, now)
				if err := tx.Sessions().Update(ctx, own); err != nil {
					return fmt.Errorf("retire own waiting session: %w", err)
				}
			}
			if err := cand.Fill(role, userID); err != nil {
				return fmt.Errorf("%w: %v", errStaleCandidate, err)
			}
			if err := m.activator.ActivateTx(ctx, tx, cand); err != nil {
				return err
			}
			res = &MatchResult{Status: MatchMatched, RoomID: cand.RoomID, SessionID: cand.ID, PartnerID: *partner}
			matched = cand
			return nil
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return res, matched, nil
}

// SweepWaiting ends waiting sessions nobody joined in time.
func (m *Matchmaker) SweepWaiting(ctx context.Context) (int, error) {
	var expired []*domain.Session
	err := m.store.InTx(ctx, func(tx repository.Tx) error {
		now := m.now()
		var err error
		expired, err = tx.Sessions().ExpireWaiting(ctx, now.Add(-m.waitingTimeout), now)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("expire waiting sessions: %w", err)
	}

	for _, s := range expired {
		for _, id := range s.Participants() {
			m.publisher.Publish(ctx, id, notify.Event{
				Type:   notify.EventSessionEnded,
				RoomID: s.RoomID,
				Reason: string(domain.EndReasonTimeout),
			})
		}
	}
	return len(expired), nil
}
