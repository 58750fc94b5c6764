package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/set-night/roulette/internal/config"
	"github.com/set-night/roulette/internal/domain"
	"github.com/set-night/roulette/internal/notify"
	"github.com/set-night/roulette/internal/repository"
	"github.com/shopspring/decimal"
)

type TickStatus string

const (
	TickContinued TickStatus = "continued"
	TickEnded     TickStatus = "ended"
	TickIgnored   TickStatus = "ignored"
)

type TickResult struct {
	Status  TickStatus       `json:"status"`
	Charged int64            `json:"charged"`
	Balance int64            `json:"balance"`
	Reason  domain.EndReason `json:"reason,omitempty"`
}

// Lifecycle drives sessions from activation to end and bills the client for
// time spent in them.
type Lifecycle struct {
	store      repository.Store
	ledger     *Ledger
	exclusions *ExclusionBook
	publisher  notify.Publisher
	transport  Transport
	settler    Settler
	rate       decimal.Decimal
	logger     *slog.Logger
	now        func() time.Time
}

func NewLifecycle(store repository.Store, ledger *Ledger, exclusions *ExclusionBook, publisher notify.Publisher, transport Transport, settler Settler, cfg *config.Config, logger *slog.Logger) *Lifecycle {
	if transport == nil {
		transport = nopTransport{}
	}
	if settler == nil {
		settler = NopAudit{}
	}
	return &Lifecycle{
		store:      store,
		ledger:     ledger,
		exclusions: exclusions,
		publisher:  publisher,
		transport:  transport,
		settler:    settler,
		rate:       cfg.RatePerMinute,
		logger:     logger,
		now:        time.Now,
	}
}

func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

// ActivateTx moves a paired waiting session to active inside the caller's
// unit of work.
func (l *Lifecycle) ActivateTx(ctx context.Context, tx repository.Tx, s *domain.Session) error {
	if err := s.Activate(l.now()); err != nil {
		return err
	}
	if err := tx.Sessions().Update(ctx, s); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (l *Lifecycle) Activate(ctx context.Context, roomID string) (*domain.Session, error) {
	var s *domain.Session
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		s, err = tx.Sessions().GetByRoomIDForUpdate(ctx, roomID)
		if err != nil {
			return err
		}
		return l.ActivateTx(ctx, tx, s)
	})
	if err != nil {
		return nil, err
	}
	l.Matched(ctx, s)
	return s, nil
}

// Matched tells both participants who they were paired with.
func (l *Lifecycle) Matched(ctx context.Context, s *domain.Session) {
	for _, id := range s.Participants() {
		partner, _ := s.PartnerOf(id)
		l.publisher.Publish(ctx, id, notify.Event{
			Type:      notify.EventMatchFound,
			RoomID:    s.RoomID,
			PartnerID: partner,
		})
	}
}

// BillingCost is the coin charge for elapsedSeconds at ratePerMinute, rounded
// up to a whole coin.
func BillingCost(elapsedSeconds int64, ratePerMinute decimal.Decimal) int64 {
	return decimal.NewFromInt(elapsedSeconds).Mul(ratePerMinute).Div(decimal.NewFromInt(60)).Ceil().IntPart()
}

// Tick bills the client for elapsedSeconds of an active session. A client who
// cannot pay ends the session with reason insufficient_balance.
func (l *Lifecycle) Tick(ctx context.Context, roomID string, elapsedSeconds int64) (*TickResult, error) {
	if elapsedSeconds <= 0 {
		return nil, domain.ErrInvalidElapsed
	}
	return l.tick(ctx, roomID, func(*domain.Session, time.Time) int64 { return elapsedSeconds })
}

// TickDue bills the whole seconds since the session was last billed. The
// interval is read under the session lock, so a concurrent Tick is never
// charged twice.
func (l *Lifecycle) TickDue(ctx context.Context, roomID string) (*TickResult, error) {
	return l.tick(ctx, roomID, func(s *domain.Session, now time.Time) int64 {
		if s.LastBilledAt == nil {
			return 0
		}
		return int64(now.Sub(*s.LastBilledAt) / time.Second)
	})
}

func (l *Lifecycle) tick(ctx context.Context, roomID string, billable func(s *domain.Session, now time.Time) int64) (*TickResult, error) {
	var (
		res  *TickResult
		cost int64
	)
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		s, err := tx.Sessions().GetByRoomIDForUpdate(ctx, roomID)
		if err != nil {
			return err
		}
		switch s.Status {
		case domain.SessionEnded:
			res = &TickResult{Status: TickEnded, Reason: s.EndReason}
			return nil
		case domain.SessionWaiting:
			res = &TickResult{Status: TickIgnored}
			return nil
		}

		now := l.now()
		elapsedSeconds := billable(s, now)
		if elapsedSeconds <= 0 {
			res = &TickResult{Status: TickIgnored}
			return nil
		}
		cost = BillingCost(elapsedSeconds, l.rate)

		payer, ok := s.Payer()
		if !ok {
			return fmt.Errorf("bill session %d: no client", s.ID)
		}
		b, err := l.ledger.DebitTx(ctx, tx, payer, cost, domain.BucketTime, domain.LedgerReasonTimeBilling, roomID)
		if err != nil {
			return err
		}

		billedUntil := now
		if s.LastBilledAt != nil {
			billedUntil = s.LastBilledAt.Add(time.Duration(elapsedSeconds) * time.Second)
		}
		if billedUntil.After(now) {
			billedUntil = now
		}
		s.ConsumedCoins += cost
		s.LastBilledAt = &billedUntil
		if err := tx.Sessions().Update(ctx, s); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		res = &TickResult{Status: TickContinued, Charged: cost, Balance: b.PurchasedBalance}
		return nil
	})

	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		l.logger.Info("session out of balance", "room_id", roomID, "cost", cost)
		if _, err := l.End(ctx, roomID, nil, domain.EndReasonInsufficientBalance); err != nil {
			return nil, err
		}
		bal := int64(0)
		if s, err := l.lookup(ctx, roomID); err == nil {
			if payer, ok := s.Payer(); ok {
				if b, err := l.ledger.Balance(ctx, payer); err == nil {
					bal = b.PurchasedBalance
				}
			}
		}
		return &TickResult{Status: TickEnded, Balance: bal, Reason: domain.EndReasonInsufficientBalance}, nil
	case err != nil:
		return nil, err
	}

	if res.Status != TickContinued {
		l.logger.Debug("tick on inactive session ignored", "room_id", roomID, "status", res.Status)
	}
	return res, nil
}

// End ends the session in roomID. When userID is set it must be a
// participant. Ending an ended session returns it unchanged.
func (l *Lifecycle) End(ctx context.Context, roomID string, userID *int64, reason domain.EndReason) (*domain.Session, error) {
	var (
		s       *domain.Session
		changed bool
	)
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		s, err = tx.Sessions().GetByRoomIDForUpdate(ctx, roomID)
		if err != nil {
			return err
		}
		if userID != nil && !s.HasParticipant(*userID) {
			return domain.ErrSessionNotFound
		}
		changed, err = l.endTx(ctx, tx, s, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		l.ended(ctx, s)
	}
	return s, nil
}

// LeaveForNext ends the session on behalf of userID and keeps the pair apart
// for the exclusion window.
func (l *Lifecycle) LeaveForNext(ctx context.Context, userID int64, roomID string) (*domain.Session, error) {
	var (
		s       *domain.Session
		changed bool
	)
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		s, err = tx.Sessions().GetByRoomIDForUpdate(ctx, roomID)
		if err != nil {
			return err
		}
		if !s.HasParticipant(userID) {
			return domain.ErrSessionNotFound
		}
		if changed, err = l.endTx(ctx, tx, s, domain.EndReasonUserWentNext); err != nil {
			return err
		}
		if s.Paired() {
			return l.exclusions.RecordTx(ctx, tx, *s.ClientID, *s.ModelID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		l.ended(ctx, s)
	}
	return s, nil
}

// EndActiveFor ends every active session userID still sits in. Waiting
// sessions are left for the matchmaker to hand back.
func (l *Lifecycle) EndActiveFor(ctx context.Context, userID int64, reason domain.EndReason) ([]*domain.Session, error) {
	var ended []*domain.Session
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		open, err := tx.Sessions().OpenForUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("list open sessions: %w", err)
		}
		for _, s := range open {
			if s.Status != domain.SessionActive {
				continue
			}
			changed, err := l.endTx(ctx, tx, s, reason)
			if err != nil {
				return err
			}
			if changed {
				ended = append(ended, s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, s := range ended {
		l.ended(ctx, s)
	}
	return ended, nil
}

// ActiveSession returns the session in roomID if it is active.
func (l *Lifecycle) ActiveSession(ctx context.Context, roomID string) (*domain.Session, error) {
	s, err := l.lookup(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if s.Status != domain.SessionActive {
		return nil, domain.ErrSessionNotActive
	}
	return s, nil
}

// LockActiveTx locks the session in roomID inside the caller's unit of work
// and checks that it is active.
func (l *Lifecycle) LockActiveTx(ctx context.Context, tx repository.Tx, roomID string) (*domain.Session, error) {
	s, err := tx.Sessions().GetByRoomIDForUpdate(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if s.Status != domain.SessionActive {
		return nil, domain.ErrSessionNotActive
	}
	return s, nil
}

func (l *Lifecycle) lookup(ctx context.Context, roomID string) (*domain.Session, error) {
	var s *domain.Session
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		s, err = tx.Sessions().GetByRoomID(ctx, roomID)
		return err
	})
	return s, err
}

func (l *Lifecycle) endTx(ctx context.Context, tx repository.Tx, s *domain.Session, reason domain.EndReason) (bool, error) {
	if !s.End(reason, l.now()) {
		return false, nil
	}
	if err := tx.Sessions().Update(ctx, s); err != nil {
		return false, fmt.Errorf("update session: %w", err)
	}
	return true, nil
}

// ended runs the side effects of a committed end. Failures are logged only.
func (l *Lifecycle) ended(ctx context.Context, s *domain.Session) {
	l.logger.Info("session ended", "room_id", s.RoomID, "reason", s.EndReason, "consumed_coins", s.ConsumedCoins)

	if err := l.transport.Release(ctx, s.RoomID); err != nil {
		l.logger.Error("release room", "room_id", s.RoomID, "error", err)
	}
	for _, id := range s.Participants() {
		partner, _ := s.PartnerOf(id)
		l.publisher.Publish(ctx, id, notify.Event{
			Type:      notify.EventSessionEnded,
			RoomID:    s.RoomID,
			PartnerID: partner,
			Reason:    string(s.EndReason),
		})
	}
	if s.Paired() {
		l.settler.SettleSession(ctx, s)
	}
}
