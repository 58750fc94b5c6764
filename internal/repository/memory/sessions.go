package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/set-night/roulette/internal/domain"
)

type sessionRepo struct {
	tx *memTx
}

func (r sessionRepo) Create(_ context.Context, s *domain.Session) error {
	st := r.tx.s
	if _, ok := st.rooms[s.RoomID]; ok {
		return fmt.Errorf("insert session: room %s already exists", s.RoomID)
	}
	st.nextSessionID++
	s.ID = st.nextSessionID
	st.sessions[s.ID] = s.Clone()
	st.rooms[s.RoomID] = s.ID

	id, room := s.ID, s.RoomID
	r.tx.record(func() {
		delete(st.sessions, id)
		delete(st.rooms, room)
	})
	return nil
}

func (r sessionRepo) GetByID(_ context.Context, id int64) (*domain.Session, error) {
	s, ok := r.tx.s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (r sessionRepo) GetByRoomID(ctx context.Context, roomID string) (*domain.Session, error) {
	id, ok := r.tx.s.rooms[roomID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return r.GetByID(ctx, id)
}

func (r sessionRepo) GetByRoomIDForUpdate(ctx context.Context, roomID string) (*domain.Session, error) {
	return r.GetByRoomID(ctx, roomID)
}

// sorted returns stored sessions in creation order.
func (r sessionRepo) sorted() []*domain.Session {
	out := make([]*domain.Session, 0, len(r.tx.s.sessions))
	for _, s := range r.tx.s.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r sessionRepo) FindWaitingCandidate(_ context.Context, role domain.Role, userID int64, excluded []int64, createdAfter time.Time) (*domain.Session, error) {
	if !role.Participant() {
		return nil, domain.ErrInvalidRole
	}
	for _, s := range r.sorted() {
		if s.Status != domain.SessionWaiting || !s.CreatedAt.After(createdAfter) {
			continue
		}
		if s.Slot(role) != nil {
			continue
		}
		other := s.Slot(role.Complement())
		if other == nil || *other == userID || slices.Contains(excluded, *other) {
			continue
		}
		return s.Clone(), nil
	}
	return nil, domain.ErrSessionNotFound
}

func (r sessionRepo) OpenForUser(_ context.Context, userID int64) ([]*domain.Session, error) {
	var out []*domain.Session
	for _, s := range r.sorted() {
		if s.Status != domain.SessionEnded && s.HasParticipant(userID) {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (r sessionRepo) Update(_ context.Context, s *domain.Session) error {
	st := r.tx.s
	prev, ok := st.sessions[s.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	st.sessions[s.ID] = s.Clone()
	r.tx.record(func() { st.sessions[prev.ID] = prev })
	return nil
}

func (r sessionRepo) ExpireWaiting(ctx context.Context, cutoff, now time.Time) ([]*domain.Session, error) {
	var out []*domain.Session
	for _, s := range r.sorted() {
		if s.Status != domain.SessionWaiting || !s.CreatedAt.Before(cutoff) {
			continue
		}
		c := s.Clone()
		c.End(domain.EndReasonTimeout, now)
		if err := r.Update(ctx, c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r sessionRepo) ListBillable(_ context.Context, cutoff time.Time, limit int) ([]*domain.Session, error) {
	var out []*domain.Session
	for _, s := range r.sorted() {
		if s.Status != domain.SessionActive || s.LastBilledAt == nil || !s.LastBilledAt.Before(cutoff) {
			continue
		}
		out = append(out, s.Clone())
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type exclusionRepo struct {
	tx *memTx
}

func (r exclusionRepo) Put(_ context.Context, w domain.ExclusionWindow) error {
	st := r.tx.s
	key := exclusionKey{w.SubjectUserID, w.ExcludedUserID}
	prev, existed := st.exclusions[key]
	if existed && prev.After(w.ExpiresAt) {
		return nil
	}
	st.exclusions[key] = w.ExpiresAt
	r.tx.record(func() {
		if existed {
			st.exclusions[key] = prev
		} else {
			delete(st.exclusions, key)
		}
	})
	return nil
}

func (r exclusionRepo) ActiveFor(_ context.Context, subjectUserID int64, now time.Time) ([]int64, error) {
	var ids []int64
	for key, expiresAt := range r.tx.s.exclusions {
		if key.subject == subjectUserID && now.Before(expiresAt) {
			ids = append(ids, key.excluded)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (r exclusionRepo) IsExcluded(_ context.Context, subjectUserID, excludedUserID int64, now time.Time) (bool, error) {
	expiresAt, ok := r.tx.s.exclusions[exclusionKey{subjectUserID, excludedUserID}]
	return ok && now.Before(expiresAt), nil
}

func (r exclusionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	st := r.tx.s
	var n int64
	for key, expiresAt := range st.exclusions {
		if now.Before(expiresAt) {
			continue
		}
		delete(st.exclusions, key)
		k, exp := key, expiresAt
		r.tx.record(func() { st.exclusions[k] = exp })
		n++
	}
	return n, nil
}
