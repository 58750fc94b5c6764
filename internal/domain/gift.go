package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type GiftCatalogItem struct {
	ID       int64
	Name     string
	Price    int64
	IsActive bool
}

type GiftRequestStatus string

const (
	GiftPending   GiftRequestStatus = "pending"
	GiftAccepted  GiftRequestStatus = "accepted"
	GiftRejected  GiftRequestStatus = "rejected"
	GiftExpired   GiftRequestStatus = "expired"
	GiftCancelled GiftRequestStatus = "cancelled"
)

func (s GiftRequestStatus) Terminal() bool {
	return s != GiftPending
}

type GiftRequest struct {
	ID            int64
	ModelID       int64
	ClientID      int64
	GiftID        int64
	Amount        int64
	Status        GiftRequestStatus
	SecurityToken string
	Nonce         string
	RoomID        string
	RejectReason  string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	AcceptedAt    *time.Time
	ResolvedAt    *time.Time
}

func (r *GiftRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Resolve moves a PENDING request into a terminal status. It reports false
// when the request was already terminal.
func (r *GiftRequest) Resolve(status GiftRequestStatus, now time.Time) bool {
	if r.Status.Terminal() || !status.Terminal() {
		return false
	}
	r.Status = status
	r.ResolvedAt = &now
	if status == GiftAccepted {
		r.AcceptedAt = &now
	}
	return true
}

// GiftTransaction is the append-only settlement record of an accepted gift.
type GiftTransaction struct {
	ID             int64
	RequestID      int64
	SenderID       int64
	ReceiverID     int64
	GiftID         int64
	Amount         int64
	ModelShare     int64
	PlatformShare  int64
	CommissionRate decimal.Decimal
	RoomID         string
	CreatedAt      time.Time
}
