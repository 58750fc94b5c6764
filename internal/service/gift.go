package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/roulette/internal/config"
	"github.com/set-night/roulette/internal/domain"
	"github.com/set-night/roulette/internal/lease"
	"github.com/set-night/roulette/internal/notify"
	"github.com/set-night/roulette/internal/repository"
)

// SessionLookup locks the active session a gift is sent in for the rest of
// the caller's unit of work.
type SessionLookup interface {
	LockActiveTx(ctx context.Context, tx repository.Tx, roomID string) (*domain.Session, error)
}

// GiftService runs the request, accept and reject exchange between a model
// and the client paired with them.
type GiftService struct {
	store      repository.Store
	ledger     *Ledger
	sessions   SessionLookup
	catalog    *CatalogCache
	commission CommissionSource
	locker     lease.Locker
	publisher  notify.Publisher
	audit      AuditLog
	logger     *slog.Logger

	secret          []byte
	requestTTL      time.Duration
	duplicateWindow time.Duration
	acceptLockTTL   time.Duration
	now             func() time.Time
}

func NewGiftService(
	store repository.Store,
	ledger *Ledger,
	sessions SessionLookup,
	catalog *CatalogCache,
	commission CommissionSource,
	locker lease.Locker,
	publisher notify.Publisher,
	audit AuditLog,
	cfg *config.Config,
	logger *slog.Logger,
) *GiftService {
	if audit == nil {
		audit = NopAudit{}
	}
	return &GiftService{
		store:           store,
		ledger:          ledger,
		sessions:        sessions,
		catalog:         catalog,
		commission:      commission,
		locker:          locker,
		publisher:       publisher,
		audit:           audit,
		logger:          logger,
		secret:          []byte(cfg.GiftTokenSecret),
		requestTTL:      cfg.GiftRequestTTL,
		duplicateWindow: cfg.GiftDuplicateWindow,
		acceptLockTTL:   cfg.GiftAcceptLockTTL,
		now:             time.Now,
	}
}

func (g *GiftService) WithClock(now func() time.Time) *GiftService {
	g.now = now
	return g
}

// securityToken binds a request to its parameters and the moment it was made.
func (g *GiftService) securityToken(r *domain.GiftRequest) string {
	mac := hmac.New(sha256.New, g.secret)
	for _, part := range []string{
		strconv.FormatInt(r.ModelID, 10),
		strconv.FormatInt(r.ClientID, 10),
		strconv.FormatInt(r.GiftID, 10),
		strconv.FormatInt(r.Amount, 10),
		r.RoomID,
		r.Nonce,
		strconv.FormatInt(r.CreatedAt.UnixNano(), 10),
	} {
		mac.Write([]byte(part))
		mac.Write([]byte{'|'})
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// Request asks the client paired with modelID in roomID to send giftID.
func (g *GiftService) Request(ctx context.Context, modelID, clientID, giftID int64, roomID string) (*domain.GiftRequest, error) {
	if modelID == clientID {
		return nil, domain.ErrSelfTransfer
	}
	gift, err := g.catalog.Get(ctx, giftID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	req := &domain.GiftRequest{
		ModelID:   modelID,
		ClientID:  clientID,
		GiftID:    gift.ID,
		Amount:    gift.Price,
		Status:    domain.GiftPending,
		Nonce:     uuid.NewString(),
		RoomID:    roomID,
		CreatedAt: now,
		ExpiresAt: now.Add(g.requestTTL),
	}
	req.SecurityToken = g.securityToken(req)

	err = g.store.InTx(ctx, func(tx repository.Tx) error {
		// The session row lock serialises requests within the pair.
		s, err := g.sessions.LockActiveTx(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if s.ModelID == nil || s.ClientID == nil || *s.ModelID != modelID || *s.ClientID != clientID {
			return domain.ErrNotParticipant
		}

		dup, err := tx.GiftRequests().HasRecentPending(ctx, modelID, clientID, gift.ID, now.Add(-g.duplicateWindow))
		if err != nil {
			return fmt.Errorf("check duplicate gift: %w", err)
		}
		if dup {
			return domain.ErrDuplicateGift
		}
		if err := tx.GiftRequests().Create(ctx, req); err != nil {
			return fmt.Errorf("create gift request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("gift requested", "request_id", req.ID, "model_id", modelID, "client_id", clientID, "gift_id", gift.ID, "amount", gift.Price)
	g.publisher.Publish(ctx, clientID, notify.Event{
		Type:          notify.EventGiftRequested,
		RoomID:        roomID,
		PartnerID:     modelID,
		GiftRequestID: req.ID,
		GiftID:        gift.ID,
		Amount:        gift.Price,
		SecurityToken: req.SecurityToken,
	})
	return req, nil
}

// Accept settles a pending request. Concurrent accepts of one request are
// refused while the first one holds the accept lease.
func (g *GiftService) Accept(ctx context.Context, requestID, clientID int64, token string) (*domain.GiftTransaction, error) {
	l, err := g.locker.TryAcquire(ctx, config.GiftAcceptLockPrefix+strconv.FormatInt(requestID, 10), g.acceptLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLeaseHeld) {
			return nil, domain.ErrAcceptInProgress
		}
		return nil, fmt.Errorf("acquire accept lease: %w", err)
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			g.logger.Error("release accept lease", "request_id", requestID, "error", err)
		}
	}()

	rate, err := g.commission.CommissionRate(ctx)
	if err != nil {
		return nil, err
	}

	var (
		req *domain.GiftRequest
		txn *domain.GiftTransaction
	)
	err = g.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		req, err = tx.GiftRequests().GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.ClientID != clientID {
			return domain.ErrGiftRequestNotFound
		}
		if req.Status != domain.GiftPending {
			return domain.ErrGiftRequestClosed
		}
		now := g.now()
		if req.Expired(now) {
			return domain.ErrGiftRequestExpired
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(req.SecurityToken)) != 1 {
			return domain.ErrInvalidGiftToken
		}

		txn, err = g.ledger.TransferForGiftTx(ctx, tx, GiftTransfer{
			RequestID:  req.ID,
			SenderID:   req.ClientID,
			ReceiverID: req.ModelID,
			GiftID:     req.GiftID,
			Amount:     req.Amount,
			Rate:       rate,
			RoomID:     req.RoomID,
		})
		if err != nil {
			return err
		}

		req.Resolve(domain.GiftAccepted, now)
		if err := tx.GiftRequests().Update(ctx, req); err != nil {
			return fmt.Errorf("update gift request: %w", err)
		}
		if _, err := tx.GiftRequests().CancelPendingBetween(ctx, req.ModelID, req.ClientID, now.Add(-g.duplicateWindow), req.ID, now); err != nil {
			return fmt.Errorf("cancel sibling requests: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidGiftToken) {
			g.logger.Error("gift token mismatch", "request_id", requestID, "client_id", clientID)
			g.audit.SecurityViolation(ctx, fmt.Sprintf("gift token mismatch: request %d, client %d", requestID, clientID))
		}
		return nil, err
	}

	g.logger.Info("gift accepted", "request_id", req.ID, "amount", txn.Amount, "model_share", txn.ModelShare, "platform_share", txn.PlatformShare, "rate", rate.String())
	g.audit.GiftSettled(ctx, txn)
	g.publisher.Publish(ctx, req.ModelID, notify.Event{
		Type:          notify.EventGiftAccepted,
		RoomID:        req.RoomID,
		PartnerID:     req.ClientID,
		GiftRequestID: req.ID,
		GiftID:        req.GiftID,
		Amount:        txn.ModelShare,
	})
	return txn, nil
}

// Reject declines a pending request on behalf of its client.
func (g *GiftService) Reject(ctx context.Context, requestID, clientID int64, reason string) (*domain.GiftRequest, error) {
	req, err := g.resolve(ctx, requestID, func(r *domain.GiftRequest) bool { return r.ClientID == clientID }, domain.GiftRejected, reason)
	if err != nil {
		return nil, err
	}
	g.publisher.Publish(ctx, req.ModelID, notify.Event{
		Type:          notify.EventGiftRejected,
		RoomID:        req.RoomID,
		PartnerID:     req.ClientID,
		GiftRequestID: req.ID,
		Reason:        reason,
	})
	return req, nil
}

// Cancel withdraws a pending request on behalf of the model that made it.
func (g *GiftService) Cancel(ctx context.Context, requestID, modelID int64) (*domain.GiftRequest, error) {
	req, err := g.resolve(ctx, requestID, func(r *domain.GiftRequest) bool { return r.ModelID == modelID }, domain.GiftCancelled, "")
	if err != nil {
		return nil, err
	}
	g.publisher.Publish(ctx, req.ClientID, notify.Event{
		Type:          notify.EventGiftCancelled,
		RoomID:        req.RoomID,
		PartnerID:     req.ModelID,
		GiftRequestID: req.ID,
	})
	return req, nil
}

func (g *GiftService) resolve(ctx context.Context, requestID int64, owns func(*domain.GiftRequest) bool, status domain.GiftRequestStatus, reason string) (*domain.GiftRequest, error) {
	var req *domain.GiftRequest
	err := g.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		req, err = tx.GiftRequests().GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if !owns(req) {
			return domain.ErrGiftRequestNotFound
		}
		if !req.Resolve(status, g.now()) {
			return domain.ErrGiftRequestClosed
		}
		req.RejectReason = reason
		if err := tx.GiftRequests().Update(ctx, req); err != nil {
			return fmt.Errorf("update gift request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.logger.Info("gift request resolved", "request_id", req.ID, "status", req.Status)
	return req, nil
}

// SweepExpired moves pending requests past their expiry to expired.
func (g *GiftService) SweepExpired(ctx context.Context) (int, error) {
	var expired []*domain.GiftRequest
	err := g.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		expired, err = tx.GiftRequests().ExpirePending(ctx, g.now())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("expire gift requests: %w", err)
	}
	return len(expired), nil
}

func (g *GiftService) PendingForClient(ctx context.Context, clientID int64) ([]*domain.GiftRequest, error) {
	var out []*domain.GiftRequest
	err := g.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.GiftRequests().ListPendingForClient(ctx, clientID, g.now(), config.PendingGiftsLimit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list pending gifts: %w", err)
	}
	return out, nil
}

func (g *GiftService) Catalog(ctx context.Context) ([]domain.GiftCatalogItem, error) {
	return g.catalog.List(ctx)
}
