package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/set-night/roulette/internal/config"
	"github.com/set-night/roulette/internal/domain"
	"github.com/set-night/roulette/internal/lease"
	"github.com/set-night/roulette/internal/notify"
	"github.com/set-night/roulette/internal/repository/memory"
	"github.com/set-night/roulette/internal/sfu"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events map[int64][]notify.Event
}

func (r *recorder) Publish(_ context.Context, userID int64, ev notify.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[userID] = append(r.events[userID], ev)
	return true
}

func (r *recorder) of(userID int64, typ notify.EventType) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, ev := range r.events[userID] {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type releases struct {
	mu    sync.Mutex
	rooms []string
}

func (r *releases) Release(_ context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, roomID)
	return nil
}

type auditRecorder struct {
	NopAudit
	mu         sync.Mutex
	violations []string
	settled    []*domain.GiftTransaction
	sessions   []*domain.Session
}

func (a *auditRecorder) SecurityViolation(_ context.Context, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.violations = append(a.violations, text)
}

func (a *auditRecorder) GiftSettled(_ context.Context, t *domain.GiftTransaction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, t)
}

func (a *auditRecorder) SettleSession(_ context.Context, s *domain.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = append(a.sessions, s)
}

type harness struct {
	store      *memory.Store
	clock      *fakeClock
	events     *recorder
	released   *releases
	audit      *auditRecorder
	ledger     *Ledger
	exclusions *ExclusionBook
	lifecycle  *Lifecycle
	matchmaker *Matchmaker
	catalog    *CatalogCache
	commission *SettingsCommission
	gifts      *GiftService
	roulette   *Roulette
}

const (
	giftRose  int64 = 1
	giftHeart int64 = 2
	giftTeddy int64 = 3
	giftOld   int64 = 9
)

func testConfig() *config.Config {
	return &config.Config{
		GiftTokenSecret:     "gift-secret",
		ExclusionWindow:     5 * time.Minute,
		WaitingTimeout:      2 * time.Minute,
		MatchMaxRetries:     3,
		RatePerMinute:       decimal.NewFromInt(10),
		CommissionRate:      decimal.RequireFromString("0.4"),
		GiftRequestTTL:      5 * time.Minute,
		GiftDuplicateWindow: 30 * time.Second,
		GiftAcceptLockTTL:   10 * time.Second,
		CatalogCacheTTL:     time.Minute,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testConfig()
	logger := discardLogger()

	h := &harness{
		store:    memory.NewStore(),
		clock:    &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		events:   &recorder{events: map[int64][]notify.Event{}},
		released: &releases{},
		audit:    &auditRecorder{},
	}
	h.store.AddGift(domain.GiftCatalogItem{ID: giftRose, Name: "Rose", Price: 10, IsActive: true})
	h.store.AddGift(domain.GiftCatalogItem{ID: giftHeart, Name: "Heart", Price: 25, IsActive: true})
	h.store.AddGift(domain.GiftCatalogItem{ID: giftTeddy, Name: "Teddy Bear", Price: 50, IsActive: true})
	h.store.AddGift(domain.GiftCatalogItem{ID: giftOld, Name: "Retired", Price: 5, IsActive: false})

	now := h.clock.Now
	h.ledger = NewLedger(h.store, logger).WithClock(now)
	h.exclusions = NewExclusionBook(h.store, cfg.ExclusionWindow).WithClock(now)
	h.lifecycle = NewLifecycle(h.store, h.ledger, h.exclusions, h.events, h.released, h.audit, cfg, logger).WithClock(now)
	h.matchmaker = NewMatchmaker(h.store, h.exclusions, h.lifecycle, h.events, cfg, logger).WithClock(now)
	h.catalog = NewCatalogCache(h.store, cfg.CatalogCacheTTL)
	h.catalog.now = now
	h.commission = NewSettingsCommission(h.store, cfg.CommissionRate, logger)
	h.gifts = NewGiftService(h.store, h.ledger, h.lifecycle, h.catalog, h.commission, lease.NewMemory().WithClock(now), h.events, h.audit, cfg, logger).WithClock(now)
	h.roulette = NewRoulette(h.matchmaker, h.lifecycle, h.ledger, h.gifts, h.commission, sfu.NewGrants("join-secret", time.Minute), h.audit, logger)
	return h
}

// pair matches clientID with modelID and returns the room.
func (h *harness) pair(t *testing.T, clientID, modelID int64) string {
	t.Helper()
	ctx := context.Background()
	res, err := h.roulette.StartMatch(ctx, clientID, domain.RoleClient)
	require.NoError(t, err)
	require.Equal(t, MatchWaiting, res.Status)

	res, err = h.roulette.StartMatch(ctx, modelID, domain.RoleModel)
	require.NoError(t, err)
	require.Equal(t, MatchMatched, res.Status)
	require.Equal(t, clientID, res.PartnerID)
	return res.RoomID
}

func (h *harness) session(t *testing.T, roomID string) *domain.Session {
	t.Helper()
	s, err := h.lifecycle.lookup(context.Background(), roomID)
	require.NoError(t, err)
	return s
}

func (h *harness) balance(t *testing.T, userID int64) *domain.CoinBalance {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}
