package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/set-night/roulette/internal/repository"
)

// Sweeper periodically retires stale state: waiting sessions nobody joined,
// expired gift requests, exclusion windows and parked events.
type Sweeper struct {
	tasks    []sweepTask
	interval time.Duration
	logger   *slog.Logger
}

type sweepTask struct {
	name string
	run  func(ctx context.Context) (int64, error)
}

func NewSweeper(interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{interval: interval, logger: logger}
}

// Add registers a cleanup step. Steps run in the order added.
func (s *Sweeper) Add(name string, run func(ctx context.Context) (int64, error)) *Sweeper {
	s.tasks = append(s.tasks, sweepTask{name: name, run: run})
	return s
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *Sweeper) Sweep(ctx context.Context) {
	for _, t := range s.tasks {
		n, err := t.run(ctx)
		if err != nil {
			s.logger.Error("sweep failed", "task", t.name, "error", err)
			continue
		}
		if n > 0 {
			s.logger.Info("sweep", "task", t.name, "count", n)
		}
	}
}

// Biller ticks every active session for the time since it was last billed.
type Biller struct {
	store     repository.Store
	lifecycle *Lifecycle
	interval  time.Duration
	batch     int
	logger    *slog.Logger
	now       func() time.Time
}

func NewBiller(store repository.Store, lifecycle *Lifecycle, interval time.Duration, batch int, logger *slog.Logger) *Biller {
	return &Biller{store: store, lifecycle: lifecycle, interval: interval, batch: batch, logger: logger, now: time.Now}
}

func (b *Biller) WithClock(now func() time.Time) *Biller {
	b.now = now
	return b
}

func (b *Biller) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.BillDue(ctx); err != nil {
				b.logger.Error("billing pass failed", "error", err)
			}
		}
	}
}

// BillDue ticks sessions last billed at least a second ago and returns how
// many it charged. The billable interval is taken under each session's lock.
func (b *Biller) BillDue(ctx context.Context) (int, error) {
	var due []string
	err := b.store.InTx(ctx, func(tx repository.Tx) error {
		sessions, err := tx.Sessions().ListBillable(ctx, b.now().Add(-time.Second), b.batch)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			due = append(due, s.RoomID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	charged := 0
	for _, roomID := range due {
		res, err := b.lifecycle.TickDue(ctx, roomID)
		if err != nil {
			b.logger.Error("tick session", "room_id", roomID, "error", err)
			continue
		}
		if res.Status == TickContinued {
			charged++
		}
	}
	return charged, nil
}
