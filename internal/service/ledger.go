package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/set-night/roulette/internal/domain"
	"github.com/set-night/roulette/internal/repository"
	"github.com/shopspring/decimal"
)

// Ledger owns every coin balance mutation. Each mutation locks the balance
// row, checks the bucket, saves and appends a ledger entry in one unit of work.
type Ledger struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewLedger(store repository.Store, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, logger: logger, now: time.Now}
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Debit removes amount from the user's bucket. The balance is unchanged when
// it cannot cover the amount.
func (l *Ledger) Debit(ctx context.Context, userID, amount int64, bucket domain.Bucket, reason, reference string) (*domain.CoinBalance, error) {
	var out *domain.CoinBalance
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		b, err := l.DebitTx(ctx, tx, userID, amount, bucket, reason, reference)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DebitTx is Debit inside the caller's unit of work.
func (l *Ledger) DebitTx(ctx context.Context, tx repository.Tx, userID, amount int64, bucket domain.Bucket, reason, reference string) (*domain.CoinBalance, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	now := l.now()

	b, err := tx.Balances().GetForUpdate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}
	if err := b.Withdraw(bucket, amount, now); err != nil {
		return nil, err
	}
	if err := tx.Balances().Save(ctx, b); err != nil {
		return nil, fmt.Errorf("save balance: %w", err)
	}
	if err := tx.Balances().AppendEntry(ctx, &domain.LedgerEntry{
		UserID:    userID,
		Bucket:    bucket,
		Delta:     -amount,
		Reason:    reason,
		Reference: reference,
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	return b, nil
}

// Credit adds purchased coins to the user's bucket.
func (l *Ledger) Credit(ctx context.Context, userID, amount int64, bucket domain.Bucket, reason, reference string) (*domain.CoinBalance, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	var out *domain.CoinBalance
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		now := l.now()
		b, err := tx.Balances().GetForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}
		if err := b.Deposit(bucket, amount, now); err != nil {
			return err
		}
		if err := tx.Balances().Save(ctx, b); err != nil {
			return fmt.Errorf("save balance: %w", err)
		}
		if err := tx.Balances().AppendEntry(ctx, &domain.LedgerEntry{
			UserID:    userID,
			Bucket:    bucket,
			Delta:     amount,
			Reason:    reason,
			Reference: reference,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("balance credited", "user_id", userID, "amount", amount, "bucket", bucket, "reference", reference)
	return out, nil
}

func (l *Ledger) Balance(ctx context.Context, userID int64) (*domain.CoinBalance, error) {
	var out *domain.CoinBalance
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		b, err := tx.Balances().Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("get balance: %w", err)
		}
		out = b
		return nil
	})
	return out, err
}

// GiftTransfer describes one accepted gift to settle.
type GiftTransfer struct {
	RequestID  int64
	SenderID   int64
	ReceiverID int64
	GiftID     int64
	Amount     int64
	Rate       decimal.Decimal
	RoomID     string
}

// TransferForGiftTx moves amount out of the sender's gift bucket, credits the
// receiver with the model share and records the settlement. Both balance rows
// are locked in ascending user id order.
func (l *Ledger) TransferForGiftTx(ctx context.Context, tx repository.Tx, t GiftTransfer) (*domain.GiftTransaction, error) {
	if t.SenderID == t.ReceiverID {
		return nil, domain.ErrSelfTransfer
	}
	if t.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	modelShare, platformShare, err := SplitCommission(t.Amount, t.Rate)
	if err != nil {
		return nil, err
	}
	now := l.now()

	first, second := t.SenderID, t.ReceiverID
	if second < first {
		first, second = second, first
	}
	locked := make(map[int64]*domain.CoinBalance, 2)
	for _, id := range []int64{first, second} {
		b, err := tx.Balances().GetForUpdate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lock balance %d: %w", id, err)
		}
		locked[id] = b
	}

	sender, receiver := locked[t.SenderID], locked[t.ReceiverID]
	if err := sender.Withdraw(domain.BucketGift, t.Amount, now); err != nil {
		return nil, err
	}
	if err := receiver.Earn(modelShare, now); err != nil {
		return nil, err
	}

	reference := fmt.Sprintf("gift_request:%d", t.RequestID)
	for _, b := range []*domain.CoinBalance{sender, receiver} {
		if err := tx.Balances().Save(ctx, b); err != nil {
			return nil, fmt.Errorf("save balance %d: %w", b.UserID, err)
		}
	}
	if err := tx.Balances().AppendEntry(ctx, &domain.LedgerEntry{
		UserID: t.SenderID, Bucket: domain.BucketGift, Delta: -t.Amount,
		Reason: domain.LedgerReasonGiftSent, Reference: reference, CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("append sender entry: %w", err)
	}
	if modelShare > 0 {
		if err := tx.Balances().AppendEntry(ctx, &domain.LedgerEntry{
			UserID: t.ReceiverID, Bucket: domain.BucketTime, Delta: modelShare,
			Reason: domain.LedgerReasonGiftReceived, Reference: reference, CreatedAt: now,
		}); err != nil {
			return nil, fmt.Errorf("append receiver entry: %w", err)
		}
	}

	txn := &domain.GiftTransaction{
		RequestID:      t.RequestID,
		SenderID:       t.SenderID,
		ReceiverID:     t.ReceiverID,
		GiftID:         t.GiftID,
		Amount:         t.Amount,
		ModelShare:     modelShare,
		PlatformShare:  platformShare,
		CommissionRate: t.Rate,
		RoomID:         t.RoomID,
		CreatedAt:      now,
	}
	if err := tx.GiftTransactions().Append(ctx, txn); err != nil {
		return nil, fmt.Errorf("append gift transaction: %w", err)
	}
	return txn, nil
}

// SplitCommission divides amount at rate, the platform's fraction. The model
// share is amount*(1-rate) rounded half up to whole coins and the platform
// keeps the remainder, so the shares always sum to amount.
func SplitCommission(amount int64, rate decimal.Decimal) (modelShare, platformShare int64, err error) {
	if amount < 0 {
		return 0, 0, domain.ErrInvalidAmount
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return 0, 0, domain.ErrInvalidRate
	}
	modelShare = decimal.NewFromInt(amount).Mul(decimal.NewFromInt(1).Sub(rate)).Round(0).IntPart()
	return modelShare, amount - modelShare, nil
}
