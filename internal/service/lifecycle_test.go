package service

import (
	"context"
	"testing"
	"time"

	"github.com/set-night/roulette/internal/domain"
	"github.com/set-night/roulette/internal/notify"
	"github.com/set-night/roulette/internal/repository"
	"github.com/set-night/roulette/internal/sfu"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestBillingCost(t *testing.T) {
	tests := []struct {
		elapsed int64
		rate    string
		want    int64
	}{
		{60, "10", 10},
		{1, "10", 1},
		{90, "10", 15},
		{61, "10", 11},
		{30, "2.5", 2},
		{120, "0.5", 1},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, BillingCost(tt.elapsed, decimal.RequireFromString(tt.rate)), "%ds at %s/min", tt.elapsed, tt.rate)
	}
}

func TestBillingExhaustionScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const client, model = 1, 2

	_, err := h.roulette.Credit(ctx, client, 25, domain.BucketTime, "purchase-1")
	require.NoError(t, err)
	room := h.pair(t, client, model)

	h.clock.Advance(time.Minute)
	res, err := h.roulette.Tick(ctx, room, 60)
	require.NoError(t, err)
	require.Equal(t, TickContinued, res.Status)
	require.Equal(t, int64(10), res.Charged)
	require.Equal(t, int64(15), res.Balance)

	h.clock.Advance(time.Minute)
	res, err = h.roulette.Tick(ctx, room, 60)
	require.NoError(t, err)
	require.Equal(t, TickContinued, res.Status)
	require.Equal(t, int64(5), res.Balance)

	h.clock.Advance(time.Minute)
	res, err = h.roulette.Tick(ctx, room, 60)
	require.NoError(t, err)
	require.Equal(t, TickEnded, res.Status)
	require.Equal(t, domain.EndReasonInsufficientBalance, res.Reason)
	require.Equal(t, int64(5), res.Balance)

	s := h.session(t, room)
	require.Equal(t, domain.SessionEnded, s.Status)
	require.Equal(t, domain.EndReasonInsufficientBalance, s.EndReason)
	require.Equal(t, int64(20), s.ConsumedCoins)
	require.Equal(t, int64(5), h.balance(t, client).PurchasedBalance)

	require.Equal(t, []string{room}, h.released.rooms)
	require.Len(t, h.audit.sessions, 1)
	for _, id := range []int64{client, model} {
		ended := h.events.of(id, notify.EventSessionEnded)
		require.Len(t, ended, 1)
		require.Equal(t, string(domain.EndReasonInsufficientBalance), ended[0].Reason)
	}

	res, err = h.roulette.Tick(ctx, room, 60)
	require.NoError(t, err)
	require.Equal(t, TickEnded, res.Status, "ended sessions stay ended")
	require.Equal(t, int64(5), h.balance(t, client).PurchasedBalance)
}

func TestTickNeverDrawsFromGiftBucket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.roulette.Credit(ctx, 1, 500, domain.BucketGift, "gift-pack")
	require.NoError(t, err)
	room := h.pair(t, 1, 2)

	res, err := h.roulette.Tick(ctx, room, 60)
	require.NoError(t, err)
	require.Equal(t, TickEnded, res.Status)
	require.Equal(t, int64(500), h.balance(t, 1).GiftBalance)
}

func TestTickValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.roulette.Tick(ctx, "room", 0)
	require.ErrorIs(t, err, domain.ErrInvalidElapsed)
	_, err = h.roulette.Tick(ctx, "missing", 60)
	require.ErrorIs(t, err, domain.ErrNotFound)

	res, err := h.roulette.StartMatch(ctx, 1, domain.RoleClient)
	require.NoError(t, err)
	tick, err := h.roulette.Tick(ctx, res.RoomID, 60)
	require.NoError(t, err)
	require.Equal(t, TickIgnored, tick.Status)
}

func TestEndIsIdempotentAndChecksParticipants(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.pair(t, 1, 2)

	_, err := h.roulette.EndSession(ctx, 3, room)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Equal(t, domain.SessionActive, h.session(t, room).Status)

	first, err := h.roulette.EndSession(ctx, 1, room)
	require.NoError(t, err)
	require.Equal(t, domain.EndReasonUserEnded, first.EndReason)

	h.clock.Advance(time.Second)
	second, err := h.roulette.EndSession(ctx, 2, room)
	require.NoError(t, err)
	require.Equal(t, domain.EndReasonUserEnded, second.EndReason)
	require.Equal(t, *first.EndedAt, *second.EndedAt)

	require.Len(t, h.released.rooms, 1)
	require.Len(t, h.events.of(2, notify.EventSessionEnded), 1)
}

func TestEndedSessionNeverReactivates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.pair(t, 1, 2)

	_, err := h.lifecycle.End(ctx, room, nil, domain.EndReasonSystem)
	require.NoError(t, err)

	_, err = h.lifecycle.Activate(ctx, room)
	require.ErrorIs(t, err, domain.ErrSessionNotActive)
	_, err = h.lifecycle.LeaveForNext(ctx, 1, room)
	require.NoError(t, err)
	require.Equal(t, domain.EndReasonSystem, h.session(t, room).EndReason)
}

func TestStartMatchEndsActiveSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.pair(t, 1, 2)

	res, err := h.roulette.StartMatch(ctx, 1, domain.RoleClient)
	require.NoError(t, err)
	require.NotEqual(t, room, res.RoomID)
	require.Equal(t, domain.EndReasonUserRestarted, h.session(t, room).EndReason)
}

func TestJoinGrantForParticipantsOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.pair(t, 1, 2)

	grant, err := h.roulette.JoinGrant(ctx, 2, room)
	require.NoError(t, err)
	require.Equal(t, room, grant.RoomID)

	_, err = h.roulette.JoinGrant(ctx, 3, room)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.roulette.EndSession(ctx, 1, room)
	require.NoError(t, err)
	_, err = h.roulette.JoinGrant(ctx, 1, room)
	require.ErrorIs(t, err, domain.ErrSessionNotActive)
}

func TestJoinGrantRefusedAfterRelease(t *testing.T) {
	grants := sfu.NewGrants("s", time.Minute)
	require.NoError(t, grants.Release(context.Background(), "room"))
	_, err := grants.Issue(context.Background(), "room", 1, "client")
	require.ErrorIs(t, err, sfu.ErrRoomReleased)
}

func TestBillerChargesDueSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.roulette.Credit(ctx, 1, 100, domain.BucketTime, "p")
	require.NoError(t, err)
	room := h.pair(t, 1, 2)

	biller := NewBiller(h.store, h.lifecycle, 30*time.Second, 100, discardLogger()).WithClock(h.clock.Now)

	n, err := biller.BillDue(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	h.clock.Advance(time.Minute)
	n, err = biller.BillDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, int64(90), h.balance(t, 1).PurchasedBalance)
	require.Equal(t, int64(10), h.session(t, room).ConsumedCoins)

	h.clock.Advance(30 * time.Second)
	_, err = biller.BillDue(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(85), h.balance(t, 1).PurchasedBalance)
}

// afterTx runs hook once, right after the first unit of work commits.
type afterTx struct {
	repository.Store
	hook func()
}

func (s *afterTx) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	err := s.Store.InTx(ctx, fn)
	if hook := s.hook; hook != nil {
		s.hook = nil
		hook()
	}
	return err
}

func TestBillerDoesNotRebillConcurrentTick(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.roulette.Credit(ctx, 1, 100, domain.BucketTime, "p")
	require.NoError(t, err)
	room := h.pair(t, 1, 2)
	h.clock.Advance(time.Minute)

	store := &afterTx{Store: h.store, hook: func() {
		res, err := h.lifecycle.Tick(ctx, room, 60)
		require.NoError(t, err)
		require.Equal(t, TickContinued, res.Status)
	}}
	biller := NewBiller(store, h.lifecycle, 30*time.Second, 100, discardLogger()).WithClock(h.clock.Now)

	n, err := biller.BillDue(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, int64(90), h.balance(t, 1).PurchasedBalance)
	require.Equal(t, int64(10), h.session(t, room).ConsumedCoins)
}

func TestTickDueBillsSinceLastBilled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.roulette.Credit(ctx, 1, 100, domain.BucketTime, "p")
	require.NoError(t, err)
	room := h.pair(t, 1, 2)

	res, err := h.lifecycle.TickDue(ctx, room)
	require.NoError(t, err)
	require.Equal(t, TickIgnored, res.Status)

	h.clock.Advance(90 * time.Second)
	res, err = h.lifecycle.TickDue(ctx, room)
	require.NoError(t, err)
	require.Equal(t, TickContinued, res.Status)
	require.Equal(t, int64(15), res.Charged)

	res, err = h.lifecycle.TickDue(ctx, room)
	require.NoError(t, err)
	require.Equal(t, TickIgnored, res.Status)
	require.Equal(t, int64(85), h.balance(t, 1).PurchasedBalance)
}

func TestSweeperRunsEveryTask(t *testing.T) {
	var calls []string
	s := NewSweeper(time.Minute, discardLogger()).
		Add("a", func(context.Context) (int64, error) { calls = append(calls, "a"); return 1, nil }).
		Add("b", func(context.Context) (int64, error) { calls = append(calls, "b"); return 0, context.Canceled }).
		Add("c", func(context.Context) (int64, error) { calls = append(calls, "c"); return 0, nil })
	s.Sweep(context.Background())
	require.Equal(t, []string{"a", "b", "c"}, calls)
}
