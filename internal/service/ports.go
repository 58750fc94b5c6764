package service

import (
	"context"

	"github.com/set-night/roulette/internal/domain"
)

// Transport is the media layer a session's room lives on.
type Transport interface {
	Release(ctx context.Context, roomID string) error
}

// Settler is told about every paired session once it has ended.
type Settler interface {
	SettleSession(ctx context.Context, s *domain.Session)
}

// AuditLog receives money and security events for operators.
type AuditLog interface {
	SecurityViolation(ctx context.Context, text string)
	GiftSettled(ctx context.Context, t *domain.GiftTransaction)
	Credited(ctx context.Context, userID, amount int64, bucket domain.Bucket, reference string)
}

// NopAudit discards everything. It satisfies AuditLog and Settler.
type NopAudit struct{}

func (NopAudit) SecurityViolation(context.Context, string) {}
func (NopAudit) GiftSettled(context.Context, *domain.GiftTransaction) {}
func (NopAudit) Credited(context.Context, int64, int64, domain.Bucket, string) {}
func (NopAudit) SettleSession(context.Context, *domain.Session) {}

type nopTransport struct{}

func (nopTransport) Release(context.Context, string) error { return nil }
