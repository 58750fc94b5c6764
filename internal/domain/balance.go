package domain

import (
	"time"
)

// Bucket selects which of a user's two balances an operation touches.
type Bucket string

const (
	// BucketTime funds per-minute session billing (the purchase bucket).
	BucketTime Bucket = "time"
	// BucketGift funds gift sending only.
	BucketGift Bucket = "gift"
)

// ParseBucket accepts "purchase" as an alias of the time bucket, which is how
// payment webhooks name it.
func ParseBucket(s string) (Bucket, error) {
	switch s {
	case string(BucketTime), "purchase":
		return BucketTime, nil
	case string(BucketGift):
		return BucketGift, nil
	default:
		return "", ErrInvalidBucket
	}
}

type CoinBalance struct {
	UserID           int64
	PurchasedBalance int64
	GiftBalance      int64
	TotalPurchased   int64
	TotalConsumed    int64
	TotalEarned      int64
	UpdatedAt        time.Time
}

func (b *CoinBalance) Available(bucket Bucket) int64 {
	if bucket == BucketGift {
		return b.GiftBalance
	}
	return b.PurchasedBalance
}

// Withdraw removes amount from bucket. The balance is left untouched when it
// cannot cover the amount.
func (b *CoinBalance) Withdraw(bucket Bucket, amount int64, now time.Time) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if b.Available(bucket) < amount {
		return ErrInsufficientBalance
	}
	switch bucket {
	case BucketTime:
		b.PurchasedBalance -= amount
	case BucketGift:
		b.GiftBalance -= amount
	default:
		return ErrInvalidBucket
	}
	b.TotalConsumed += amount
	b.UpdatedAt = now
	return nil
}

// Deposit adds purchased coins to bucket.
func (b *CoinBalance) Deposit(bucket Bucket, amount int64, now time.Time) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	switch bucket {
	case BucketTime:
		b.PurchasedBalance += amount
	case BucketGift:
		b.GiftBalance += amount
	default:
		return ErrInvalidBucket
	}
	b.TotalPurchased += amount
	b.UpdatedAt = now
	return nil
}

// Earn credits a gift model share. Earnings land in the purchased bucket and
// are tracked apart from purchases.
func (b *CoinBalance) Earn(amount int64, now time.Time) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	b.PurchasedBalance += amount
	b.TotalEarned += amount
	b.UpdatedAt = now
	return nil
}

// LedgerEntry is the immutable audit row written for every balance mutation.
type LedgerEntry struct {
	ID        int64
	UserID    int64
	Bucket    Bucket
	Delta     int64
	Reason    string
	Reference string
	CreatedAt time.Time
}

const (
	LedgerReasonTimeBilling  = "time_billing"
	LedgerReasonCredit       = "credit"
	LedgerReasonGiftSent     = "gift_sent"
	LedgerReasonGiftReceived = "gift_received"
)
