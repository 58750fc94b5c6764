package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/set-night/roulette/internal/domain"
	"github.com/set-night/roulette/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx repository.Tx) error {
		b, err := tx.Balances().GetForUpdate(ctx, 1)
		require.NoError(t, err)
		require.NoError(t, b.Deposit(domain.BucketTime, 100, now))
		require.NoError(t, tx.Balances().Save(ctx, b))
		require.NoError(t, tx.Balances().AppendEntry(ctx, &domain.LedgerEntry{UserID: 1, Delta: 100}))

		sess, err := domain.NewWaitingSession("room-a", 1, domain.RoleClient, now)
		require.NoError(t, err)
		require.NoError(t, tx.Sessions().Create(ctx, sess))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.InTx(ctx, func(tx repository.Tx) error {
		b, err := tx.Balances().Get(ctx, 1)
		require.NoError(t, err)
		require.Zero(t, b.PurchasedBalance)

		entries, err := tx.Balances().ListEntries(ctx, 1, 10)
		require.NoError(t, err)
		require.Empty(t, entries)

		_, err = tx.Sessions().GetByRoomID(ctx, "room-a")
		require.ErrorIs(t, err, domain.ErrSessionNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestInTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.Panics(t, func() {
		_ = s.InTx(ctx, func(tx repository.Tx) error {
			require.NoError(t, tx.Exclusions().Put(ctx, domain.ExclusionWindow{
				SubjectUserID: 1, ExcludedUserID: 2, ExpiresAt: time.Now().Add(time.Hour),
			}))
			panic("boom")
		})
	})

	err := s.InTx(ctx, func(tx repository.Tx) error {
		excluded, err := tx.Exclusions().IsExcluded(ctx, 1, 2, time.Now())
		require.NoError(t, err)
		require.False(t, excluded)
		return nil
	})
	require.NoError(t, err)
}

func TestFindWaitingCandidateHonorsExclusionsAndOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := s.InTx(ctx, func(tx repository.Tx) error {
		for i, clientID := range []int64{10, 11, 12} {
			sess, err := domain.NewWaitingSession("room-"+string(rune('a'+i)), clientID, domain.RoleClient, base.Add(time.Duration(i)*time.Second))
			require.NoError(t, err)
			require.NoError(t, tx.Sessions().Create(ctx, sess))
		}
		return nil
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(tx repository.Tx) error {
		got, err := tx.Sessions().FindWaitingCandidate(ctx, domain.RoleModel, 99, []int64{10}, base.Add(-time.Minute))
		require.NoError(t, err)
		require.Equal(t, int64(11), *got.ClientID)

		_, err = tx.Sessions().FindWaitingCandidate(ctx, domain.RoleClient, 99, nil, base.Add(-time.Minute))
		require.ErrorIs(t, err, domain.ErrSessionNotFound)

		_, err = tx.Sessions().FindWaitingCandidate(ctx, domain.RoleModel, 99, nil, base.Add(time.Hour))
		require.ErrorIs(t, err, domain.ErrSessionNotFound, "stale waiting sessions are not candidates")
		return nil
	})
	require.NoError(t, err)
}

func TestExclusionPutKeepsLaterExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()

	err := s.InTx(ctx, func(tx repository.Tx) error {
		ex := tx.Exclusions()
		require.NoError(t, ex.Put(ctx, domain.ExclusionWindow{SubjectUserID: 1, ExcludedUserID: 2, ExpiresAt: now.Add(10 * time.Minute)}))
		require.NoError(t, ex.Put(ctx, domain.ExclusionWindow{SubjectUserID: 1, ExcludedUserID: 2, ExpiresAt: now.Add(time.Minute)}))

		excluded, err := ex.IsExcluded(ctx, 1, 2, now.Add(5*time.Minute))
		require.NoError(t, err)
		require.True(t, excluded)

		n, err := ex.DeleteExpired(ctx, now.Add(11*time.Minute))
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)
}

func TestGiftTransactionAppendRejectsUnbalancedShares(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	err := s.InTx(ctx, func(tx repository.Tx) error {
		return tx.GiftTransactions().Append(ctx, &domain.GiftTransaction{RequestID: 1, Amount: 50, ModelShare: 30, PlatformShare: 19})
	})
	require.Error(t, err)
}
