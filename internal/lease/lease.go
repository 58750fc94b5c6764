// Package lease provides short-lived exclusive locks with an explicit TTL.
// Acquisition never waits: a held key fails immediately with
// domain.ErrLeaseHeld.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/roulette/internal/domain"
)

type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
}

// Lease is a held lock. Release is safe to call more than once and never
// frees a lease that has since been taken over by another holder.
type Lease struct {
	Key       string
	Holder    uuid.UUID
	ExpiresAt time.Time

	once    sync.Once
	release func(ctx context.Context) error
}

func (l *Lease) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		err = l.release(ctx)
	})
	return err
}

type entry struct {
	holder    uuid.UUID
	expiresAt time.Time
}

// Memory is an in-process Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]entry
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{held: map[string]entry{}, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.held[key]; ok && now.Before(e.expiresAt) {
		return nil, domain.ErrLeaseHeld
	}

	holder := uuid.New()
	expiresAt := now.Add(ttl)
	m.held[key] = entry{holder: holder, expiresAt: expiresAt}

	return &Lease{
		Key:       key,
		Holder:    holder,
		ExpiresAt: expiresAt,
		release: func(context.Context) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			if e, ok := m.held[key]; ok && e.holder == holder {
				delete(m.held, key)
			}
			return nil
		},
	}, nil
}

// PurgeExpired drops leases whose holder never released them.
func (m *Memory) PurgeExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int64
	for key, e := range m.held {
		if !now.Before(e.expiresAt) {
			delete(m.held, key)
			n++
		}
	}
	return n, nil
}
