package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/set-night/roulette/internal/domain"
	"github.com/set-night/roulette/internal/notify"
	"github.com/set-night/roulette/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchmakingScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const c1, m1 = 101, 201

	res, err := h.roulette.StartMatch(ctx, c1, domain.RoleClient)
	require.NoError(t, err)
	require.Equal(t, MatchWaiting, res.Status)
	require.NotEmpty(t, res.RoomID)
	waitingRoom := res.RoomID

	res, err = h.roulette.StartMatch(ctx, m1, domain.RoleModel)
	require.NoError(t, err)
	require.Equal(t, MatchMatched, res.Status)
	require.Equal(t, waitingRoom, res.RoomID)
	require.Equal(t, int64(c1), res.PartnerID)

	s := h.session(t, waitingRoom)
	require.Equal(t, domain.SessionActive, s.Status)
	require.NotNil(t, s.StartedAt)

	clientEvents := h.events.of(c1, notify.EventMatchFound)
	require.Len(t, clientEvents, 1)
	require.Equal(t, int64(m1), clientEvents[0].PartnerID)
	modelEvents := h.events.of(m1, notify.EventMatchFound)
	require.Len(t, modelEvents, 1)
	require.Equal(t, int64(c1), modelEvents[0].PartnerID)
}

func TestStartMatchReturnsExistingWaitingSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.roulette.StartMatch(ctx, 1, domain.RoleClient)
	require.NoError(t, err)
	second, err := h.roulette.StartMatch(ctx, 1, domain.RoleClient)
	require.NoError(t, err)
	require.Equal(t, first.RoomID, second.RoomID)
	require.Equal(t, MatchWaiting, second.Status)
}

func TestParallelWaitingSessionsPairOnNextPoll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()

	// Both users parked before either could see the other's room.
	err := h.store.InTx(ctx, func(tx repository.Tx) error {
		a, err := domain.NewWaitingSession("room-a", 1, domain.RoleClient, now)
		require.NoError(t, err)
		require.NoError(t, tx.Sessions().Create(ctx, a))
		b, err := domain.NewWaitingSession("room-b", 2, domain.RoleModel, now)
		require.NoError(t, err)
		return tx.Sessions().Create(ctx, b)
	})
	require.NoError(t, err)
	h.clock.Advance(time.Second)

	res, err := h.roulette.StartMatch(ctx, 1, domain.RoleClient)
	require.NoError(t, err)
	require.Equal(t, MatchMatched, res.Status)
	require.Equal(t, "room-b", res.RoomID)
	require.Equal(t, int64(2), res.PartnerID)

	own := h.session(t, "room-a")
	require.Equal(t, domain.SessionEnded, own.Status)
	require.Equal(t, domain.EndReasonSystem, own.EndReason)

	res, err = h.matchmaker.FindMatch(ctx, 2, domain.RoleModel)
	require.NoError(t, err)
	require.Equal(t, MatchMatched, res.Status)
	require.Equal(t, "room-b", res.RoomID)
	require.Equal(t, int64(1), res.PartnerID)
	require.Len(t, h.events.of(2, notify.EventMatchFound), 1)
}

func TestSameRoleNeverPairs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.roulette.StartMatch(ctx, 1, domain.RoleClient)
	require.NoError(t, err)
	res, err := h.roulette.StartMatch(ctx, 2, domain.RoleClient)
	require.NoError(t, err)
	require.Equal(t, MatchWaiting, res.Status)
}

func TestFindMatchRejectsSystemRole(t *testing.T) {
	h := newHarness(t)
	_, err := h.matchmaker.FindMatch(context.Background(), 1, domain.RoleSystem)
	require.ErrorIs(t, err, domain.ErrInvalidRole)
	_, err = h.roulette.StartMatch(context.Background(), 1, domain.Role("admin"))
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestExclusionRespectedUntilExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const c1, m1, c2 = 1, 2, 3

	room := h.pair(t, c1, m1)

	res, err := h.roulette.NextMatch(ctx, c1, domain.RoleClient, room)
	require.NoError(t, err)
	require.Equal(t, MatchWaiting, res.Status)
	require.Equal(t, domain.EndReasonUserWentNext, h.session(t, room).EndReason)

	res, err = h.roulette.StartMatch(ctx, m1, domain.RoleModel)
	require.NoError(t, err)
	require.Equal(t, MatchWaiting, res.Status, "model must not be paired with the client who went next")
	modelRoom := res.RoomID

	h.clock.Advance(time.Minute)
	res, err = h.roulette.StartMatch(ctx, m1, domain.RoleModel)
	require.NoError(t, err)
	require.Equal(t, modelRoom, res.RoomID)
	require.Equal(t, MatchWaiting, res.Status)

	res, err = h.roulette.StartMatch(ctx, c2, domain.RoleClient)
	require.NoError(t, err)
	require.Equal(t, MatchMatched, res.Status)
	require.Equal(t, int64(m1), res.PartnerID, "other clients are unaffected")

	h.clock.Advance(4*time.Minute + time.Second)
	_, err = h.roulette.EndSession(ctx, c2, res.RoomID)
	require.NoError(t, err)
	n, err := h.matchmaker.SweepWaiting(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	res, err = h.roulette.StartMatch(ctx, c1, domain.RoleClient)
	require.NoError(t, err)
	require.Equal(t, MatchWaiting, res.Status)
	res, err = h.roulette.StartMatch(ctx, m1, domain.RoleModel)
	require.NoError(t, err)
	require.Equal(t, MatchMatched, res.Status)
	require.Equal(t, int64(c1), res.PartnerID, "exclusion lapses after the window")
}

func TestExclusionBookIsMutualAndSweeps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.store.InTx(ctx, func(tx repository.Tx) error {
		return h.exclusions.RecordTx(ctx, tx, 1, 2)
	})
	require.NoError(t, err)

	err = h.store.InTx(ctx, func(tx repository.Tx) error {
		ids, err := h.exclusions.ActiveFor(ctx, tx, 2)
		require.NoError(t, err)
		require.Equal(t, []int64{1}, ids)
		blocked, err := h.exclusions.Excluded(ctx, tx, 2, 1)
		require.NoError(t, err)
		require.True(t, blocked)
		return nil
	})
	require.NoError(t, err)

	h.clock.Advance(5 * time.Minute)
	n, err := h.exclusions.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestSweepWaitingEndsStaleSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.roulette.StartMatch(ctx, 7, domain.RoleModel)
	require.NoError(t, err)

	n, err := h.matchmaker.SweepWaiting(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	h.clock.Advance(2*time.Minute + time.Second)
	n, err = h.matchmaker.SweepWaiting(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	s := h.session(t, res.RoomID)
	require.Equal(t, domain.SessionEnded, s.Status)
	require.Equal(t, domain.EndReasonTimeout, s.EndReason)
	ended := h.events.of(7, notify.EventSessionEnded)
	require.Len(t, ended, 1)
	require.Equal(t, string(domain.EndReasonTimeout), ended[0].Reason)
}

func TestStaleWaitingSessionIsNotMatched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stale, err := h.roulette.StartMatch(ctx, 1, domain.RoleClient)
	require.NoError(t, err)
	h.clock.Advance(3 * time.Minute)

	res, err := h.roulette.StartMatch(ctx, 2, domain.RoleModel)
	require.NoError(t, err)
	require.Equal(t, MatchWaiting, res.Status)

	res, err = h.roulette.StartMatch(ctx, 1, domain.RoleClient)
	require.NoError(t, err)
	require.NotEqual(t, stale.RoomID, res.RoomID, "own stale session is retired")
	require.Equal(t, MatchMatched, res.Status)
	require.Equal(t, domain.EndReasonTimeout, h.session(t, stale.RoomID).EndReason)
}

func TestConcurrentMatchingSeatsEveryoneOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const n = 20

	var wg sync.WaitGroup
	for i := int64(1); i <= n; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			_, err := h.roulette.StartMatch(ctx, id, domain.RoleClient)
			assert.NoError(t, err)
		}(i)
		go func(id int64) {
			defer wg.Done()
			_, err := h.roulette.StartMatch(ctx, 1000+id, domain.RoleModel)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	err := h.store.InTx(ctx, func(tx repository.Tx) error {
		for _, id := range []int64{1, 5, n, 1001, 1000 + n} {
			open, err := tx.Sessions().OpenForUser(ctx, id)
			require.NoError(t, err)
			require.Len(t, open, 1, "user %d", id)
			if open[0].Status == domain.SessionActive {
				require.True(t, open[0].Paired())
			}
		}
		return nil
	})
	require.NoError(t, err)
}
