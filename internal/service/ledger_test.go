package service

import (
	"context"
	"testing"

	"github.com/set-night/roulette/internal/domain"
	"github.com/set-night/roulette/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSplitCommission(t *testing.T) {
	tests := []struct {
		amount   int64
		rate     string
		model    int64
		platform int64
	}{
		{50, "0.4", 30, 20},
		{7, "0.4", 4, 3},
		{1, "0.5", 1, 0},
		{3, "0.5", 2, 1},
		{10, "0", 10, 0},
		{10, "1", 0, 10},
		{33, "0.333", 22, 11},
	}
	for _, tt := range tests {
		model, platform, err := SplitCommission(tt.amount, decimal.RequireFromString(tt.rate))
		require.NoError(t, err)
		require.Equal(t, tt.model, model, "amount %d rate %s", tt.amount, tt.rate)
		require.Equal(t, tt.platform, platform, "amount %d rate %s", tt.amount, tt.rate)
	}
}

func TestSplitCommissionConservesEveryCoin(t *testing.T) {
	for _, rate := range []string{"0", "0.05", "0.15", "0.333", "0.4", "0.5", "0.77", "1"} {
		r := decimal.RequireFromString(rate)
		for amount := int64(0); amount <= 500; amount++ {
			model, platform, err := SplitCommission(amount, r)
			require.NoError(t, err)
			require.Equal(t, amount, model+platform)
			require.GreaterOrEqual(t, model, int64(0))
			require.GreaterOrEqual(t, platform, int64(0))
		}
	}
}

func TestSplitCommissionRejectsBadInput(t *testing.T) {
	_, _, err := SplitCommission(10, decimal.RequireFromString("1.01"))
	require.ErrorIs(t, err, domain.ErrInvalidRate)
	_, _, err = SplitCommission(10, decimal.RequireFromString("-0.1"))
	require.ErrorIs(t, err, domain.ErrInvalidRate)
	_, _, err = SplitCommission(-1, decimal.RequireFromString("0.4"))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestDebitWithInsufficientBalanceLeavesItUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ledger.Credit(ctx, 1, 25, domain.BucketTime, domain.LedgerReasonCredit, "pay-1")
	require.NoError(t, err)

	for _, amount := range []int64{26, 100, 1000} {
		_, err := h.ledger.Debit(ctx, 1, amount, domain.BucketTime, domain.LedgerReasonTimeBilling, "room")
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)
		require.Equal(t, int64(25), h.balance(t, 1).PurchasedBalance)
	}

	_, err = h.ledger.Debit(ctx, 1, 5, domain.BucketGift, domain.LedgerReasonGiftSent, "x")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance, "buckets are separate")

	b, err := h.ledger.Debit(ctx, 1, 25, domain.BucketTime, domain.LedgerReasonTimeBilling, "room")
	require.NoError(t, err)
	require.Zero(t, b.PurchasedBalance)
	require.Equal(t, int64(25), b.TotalConsumed)
}

func TestLedgerRejectsNonPositiveAmounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ledger.Credit(ctx, 1, 0, domain.BucketTime, domain.LedgerReasonCredit, "")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = h.ledger.Debit(ctx, 1, -5, domain.BucketTime, domain.LedgerReasonTimeBilling, "")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = h.ledger.Credit(ctx, 1, 5, domain.Bucket("bonus"), domain.LedgerReasonCredit, "")
	require.ErrorIs(t, err, domain.ErrInvalidBucket)
}

func TestLedgerWritesEntryPerMutation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ledger.Credit(ctx, 1, 40, domain.BucketGift, domain.LedgerReasonCredit, "pay-9")
	require.NoError(t, err)
	_, err = h.ledger.Debit(ctx, 1, 15, domain.BucketGift, domain.LedgerReasonGiftSent, "req-1")
	require.NoError(t, err)

	err = h.store.InTx(ctx, func(tx repository.Tx) error {
		entries, err := tx.Balances().ListEntries(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, int64(-15), entries[0].Delta)
		require.Equal(t, int64(40), entries[1].Delta)
		require.Equal(t, "pay-9", entries[1].Reference)
		return nil
	})
	require.NoError(t, err)
}

func TestTransferForGiftSplitsAndSettles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.ledger.Credit(ctx, 10, 80, domain.BucketGift, domain.LedgerReasonCredit, "")
	require.NoError(t, err)

	var txn *domain.GiftTransaction
	err = h.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		txn, err = h.ledger.TransferForGiftTx(ctx, tx, GiftTransfer{
			RequestID: 1, SenderID: 10, ReceiverID: 5, GiftID: giftTeddy, Amount: 50,
			Rate: decimal.RequireFromString("0.4"), RoomID: "room",
		})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, int64(30), txn.ModelShare)
	require.Equal(t, int64(20), txn.PlatformShare)

	require.Equal(t, int64(30), h.balance(t, 10).GiftBalance)
	model := h.balance(t, 5)
	require.Equal(t, int64(30), model.PurchasedBalance)
	require.Equal(t, int64(30), model.TotalEarned)
	require.Zero(t, model.TotalPurchased)
}

func TestTransferForGiftRollsBackOnShortfall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.ledger.Credit(ctx, 10, 20, domain.BucketGift, domain.LedgerReasonCredit, "")
	require.NoError(t, err)

	err = h.store.InTx(ctx, func(tx repository.Tx) error {
		_, err := h.ledger.TransferForGiftTx(ctx, tx, GiftTransfer{
			RequestID: 1, SenderID: 10, ReceiverID: 5, Amount: 50, Rate: decimal.RequireFromString("0.4"),
		})
		return err
	})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	require.Equal(t, int64(20), h.balance(t, 10).GiftBalance)
	require.Zero(t, h.balance(t, 5).PurchasedBalance)

	err = h.store.InTx(ctx, func(tx repository.Tx) error {
		_, err := h.ledger.TransferForGiftTx(ctx, tx, GiftTransfer{SenderID: 10, ReceiverID: 10, Amount: 5})
		return err
	})
	require.ErrorIs(t, err, domain.ErrSelfTransfer)
}
