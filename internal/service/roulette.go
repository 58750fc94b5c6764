package service

import (
	"context"
	"log/slog"

	"github.com/set-night/roulette/internal/domain"
	"github.com/set-night/roulette/internal/sfu"
	"github.com/shopspring/decimal"
)

// JoinGranter authorizes a participant to join a room on the media server.
type JoinGranter interface {
	Issue(ctx context.Context, roomID string, userID int64, role string) (*sfu.Grant, error)
}

// Roulette is the entry point the HTTP layer calls.
type Roulette struct {
	matchmaker *Matchmaker
	lifecycle  *Lifecycle
	ledger     *Ledger
	gifts      *GiftService
	commission *SettingsCommission
	grants     JoinGranter
	audit      AuditLog
	logger     *slog.Logger
}

func NewRoulette(matchmaker *Matchmaker, lifecycle *Lifecycle, ledger *Ledger, gifts *GiftService, commission *SettingsCommission, grants JoinGranter, audit AuditLog, logger *slog.Logger) *Roulette {
	if audit == nil {
		audit = NopAudit{}
	}
	return &Roulette{
		matchmaker: matchmaker,
		lifecycle:  lifecycle,
		ledger:     ledger,
		gifts:      gifts,
		commission: commission,
		grants:     grants,
		audit:      audit,
		logger:     logger,
	}
}

// StartMatch ends any session the caller is still active in, then queues or
// pairs them.
func (r *Roulette) StartMatch(ctx context.Context, userID int64, role domain.Role) (*MatchResult, error) {
	if !role.Participant() {
		return nil, domain.ErrInvalidRole
	}
	if _, err := r.lifecycle.EndActiveFor(ctx, userID, domain.EndReasonUserRestarted); err != nil {
		return nil, err
	}
	return r.matchmaker.FindMatch(ctx, userID, role)
}

// NextMatch leaves roomID, excluding its partner for a while, and matches
// again. An empty roomID behaves like StartMatch.
func (r *Roulette) NextMatch(ctx context.Context, userID int64, role domain.Role, roomID string) (*MatchResult, error) {
	if !role.Participant() {
		return nil, domain.ErrInvalidRole
	}
	if roomID != "" {
		if _, err := r.lifecycle.LeaveForNext(ctx, userID, roomID); err != nil {
			return nil, err
		}
	}
	return r.StartMatch(ctx, userID, role)
}

func (r *Roulette) EndSession(ctx context.Context, userID int64, roomID string) (*domain.Session, error) {
	return r.lifecycle.End(ctx, roomID, &userID, domain.EndReasonUserEnded)
}

func (r *Roulette) Tick(ctx context.Context, roomID string, elapsedSeconds int64) (*TickResult, error) {
	return r.lifecycle.Tick(ctx, roomID, elapsedSeconds)
}

// JoinGrant issues a media join token to a participant of an active session.
func (r *Roulette) JoinGrant(ctx context.Context, userID int64, roomID string) (*sfu.Grant, error) {
	s, err := r.lifecycle.ActiveSession(ctx, roomID)
	if err != nil {
		return nil, err
	}
	role, ok := s.RoleOf(userID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return r.grants.Issue(ctx, roomID, userID, string(role))
}

func (r *Roulette) RequestGift(ctx context.Context, modelID, clientID, giftID int64, roomID string) (*domain.GiftRequest, error) {
	return r.gifts.Request(ctx, modelID, clientID, giftID, roomID)
}

func (r *Roulette) AcceptGift(ctx context.Context, requestID, clientID int64, token string) (*domain.GiftTransaction, error) {
	return r.gifts.Accept(ctx, requestID, clientID, token)
}

func (r *Roulette) RejectGift(ctx context.Context, requestID, clientID int64, reason string) (*domain.GiftRequest, error) {
	return r.gifts.Reject(ctx, requestID, clientID, reason)
}

func (r *Roulette) CancelGift(ctx context.Context, requestID, modelID int64) (*domain.GiftRequest, error) {
	return r.gifts.Cancel(ctx, requestID, modelID)
}

func (r *Roulette) PendingGifts(ctx context.Context, clientID int64) ([]*domain.GiftRequest, error) {
	return r.gifts.PendingForClient(ctx, clientID)
}

func (r *Roulette) GiftCatalog(ctx context.Context) ([]domain.GiftCatalogItem, error) {
	return r.gifts.Catalog(ctx)
}

// Credit funds a bucket after an external purchase.
func (r *Roulette) Credit(ctx context.Context, userID, amount int64, bucket domain.Bucket, reference string) (*domain.CoinBalance, error) {
	b, err := r.ledger.Credit(ctx, userID, amount, bucket, domain.LedgerReasonCredit, reference)
	if err != nil {
		return nil, err
	}
	r.audit.Credited(ctx, userID, amount, bucket, reference)
	return b, nil
}

func (r *Roulette) Balance(ctx context.Context, userID int64) (*domain.CoinBalance, error) {
	return r.ledger.Balance(ctx, userID)
}

// SetCommissionRate changes the platform share applied to gifts accepted from
// now on.
func (r *Roulette) SetCommissionRate(ctx context.Context, rate decimal.Decimal) error {
	if err := r.commission.SetCommissionRate(ctx, rate); err != nil {
		return err
	}
	r.logger.Info("commission rate updated", "rate", rate.String())
	return nil
}
