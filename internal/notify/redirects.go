package notify

import (
	"context"
	"sync"
	"time"
)

type pending struct {
	events    []Event
	expiresAt time.Time
}

// Redirects is the polled fallback: events parked per user for a short TTL.
type Redirects struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	byUID map[int64]*pending
	now   func() time.Time
}

const maxParkedEvents = 32

func NewRedirects(ttl time.Duration) *Redirects {
	return &Redirects{ttl: ttl, max: maxParkedEvents, byUID: map[int64]*pending{}, now: time.Now}
}

func (r *Redirects) WithClock(now func() time.Time) *Redirects {
	r.now = now
	return r
}

func (r *Redirects) Put(userID int64, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	p, ok := r.byUID[userID]
	if !ok || !now.Before(p.expiresAt) {
		p = &pending{}
		r.byUID[userID] = p
	}
	p.events = append(p.events, ev)
	if len(p.events) > r.max {
		p.events = p.events[len(p.events)-r.max:]
	}
	p.expiresAt = now.Add(r.ttl)
}

// Take returns and clears the user's unexpired events.
func (r *Redirects) Take(userID int64) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byUID[userID]
	if !ok {
		return nil
	}
	delete(r.byUID, userID)
	if !r.now().Before(p.expiresAt) {
		return nil
	}
	return p.events
}

// Sweep drops expired entries.
func (r *Redirects) Sweep(context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for uid, p := range r.byUID {
		if !now.Before(p.expiresAt) {
			delete(r.byUID, uid)
			n++
		}
	}
	return n
}
