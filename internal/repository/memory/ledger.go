package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/set-night/roulette/internal/domain"
	"github.com/shopspring/decimal"
)

type balanceRepo struct {
	tx *memTx
}

func (r balanceRepo) GetForUpdate(_ context.Context, userID int64) (*domain.CoinBalance, error) {
	st := r.tx.s
	b, ok := st.balances[userID]
	if !ok {
		b = domain.CoinBalance{UserID: userID}
		st.balances[userID] = b
		r.tx.record(func() { delete(st.balances, userID) })
	}
	return &b, nil
}

func (r balanceRepo) Get(_ context.Context, userID int64) (*domain.CoinBalance, error) {
	b, ok := r.tx.s.balances[userID]
	if !ok {
		return &domain.CoinBalance{UserID: userID}, nil
	}
	return &b, nil
}

func (r balanceRepo) Save(_ context.Context, b *domain.CoinBalance) error {
	st := r.tx.s
	if b.PurchasedBalance < 0 || b.GiftBalance < 0 {
		return fmt.Errorf("save balance: user %d would go negative", b.UserID)
	}
	userID := b.UserID
	prev, existed := st.balances[userID]
	st.balances[userID] = *b
	r.tx.record(func() {
		if existed {
			st.balances[userID] = prev
		} else {
			delete(st.balances, userID)
		}
	})
	return nil
}

func (r balanceRepo) AppendEntry(_ context.Context, e *domain.LedgerEntry) error {
	st := r.tx.s
	st.nextEntryID++
	e.ID = st.nextEntryID
	n := len(st.entries)
	st.entries = append(st.entries, *e)
	r.tx.record(func() { st.entries = st.entries[:n] })
	return nil
}

func (r balanceRepo) ListEntries(_ context.Context, userID int64, limit int) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for i := len(r.tx.s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if e := r.tx.s.entries[i]; e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

type giftRequestRepo struct {
	tx *memTx
}

func cloneRequest(r *domain.GiftRequest) *domain.GiftRequest {
	c := *r
	if r.AcceptedAt != nil {
		t := *r.AcceptedAt
		c.AcceptedAt = &t
	}
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

func (r giftRequestRepo) sorted() []*domain.GiftRequest {
	out := make([]*domain.GiftRequest, 0, len(r.tx.s.requests))
	for _, req := range r.tx.s.requests {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r giftRequestRepo) Create(_ context.Context, req *domain.GiftRequest) error {
	st := r.tx.s
	st.nextRequestID++
	req.ID = st.nextRequestID
	st.requests[req.ID] = cloneRequest(req)
	id := req.ID
	r.tx.record(func() { delete(st.requests, id) })
	return nil
}

func (r giftRequestRepo) GetByID(_ context.Context, id int64) (*domain.GiftRequest, error) {
	req, ok := r.tx.s.requests[id]
	if !ok {
		return nil, domain.ErrGiftRequestNotFound
	}
	return cloneRequest(req), nil
}

func (r giftRequestRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.GiftRequest, error) {
	return r.GetByID(ctx, id)
}

func (r giftRequestRepo) Update(_ context.Context, req *domain.GiftRequest) error {
	st := r.tx.s
	prev, ok := st.requests[req.ID]
	if !ok {
		return domain.ErrGiftRequestNotFound
	}
	st.requests[req.ID] = cloneRequest(req)
	r.tx.record(func() { st.requests[prev.ID] = prev })
	return nil
}

func (r giftRequestRepo) HasRecentPending(_ context.Context, modelID, clientID, giftID int64, since time.Time) (bool, error) {
	for _, req := range r.tx.s.requests {
		if req.ModelID == modelID && req.ClientID == clientID && req.GiftID == giftID &&
			req.Status == domain.GiftPending && !req.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r giftRequestRepo) CancelPendingBetween(ctx context.Context, modelID, clientID int64, since time.Time, exceptID int64, now time.Time) (int64, error) {
	var n int64
	for _, req := range r.sorted() {
		if req.ID == exceptID || req.ModelID != modelID || req.ClientID != clientID ||
			req.Status != domain.GiftPending || req.CreatedAt.Before(since) {
			continue
		}
		c := cloneRequest(req)
		c.Resolve(domain.GiftCancelled, now)
		if err := r.Update(ctx, c); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func (r giftRequestRepo) ExpirePending(ctx context.Context, now time.Time) ([]*domain.GiftRequest, error) {
	var out []*domain.GiftRequest
	for _, req := range r.sorted() {
		if req.Status != domain.GiftPending || !req.Expired(now) {
			continue
		}
		c := cloneRequest(req)
		c.Resolve(domain.GiftExpired, now)
		if err := r.Update(ctx, c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r giftRequestRepo) ListPendingForClient(_ context.Context, clientID int64, now time.Time, limit int) ([]*domain.GiftRequest, error) {
	var out []*domain.GiftRequest
	for _, req := range r.sorted() {
		if req.ClientID != clientID || req.Status != domain.GiftPending || req.Expired(now) {
			continue
		}
		out = append(out, cloneRequest(req))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type giftTransactionRepo struct {
	tx *memTx
}

func (r giftTransactionRepo) Append(_ context.Context, t *domain.GiftTransaction) error {
	st := r.tx.s
	if t.ModelShare+t.PlatformShare != t.Amount {
		return fmt.Errorf("insert gift transaction: shares %d+%d do not sum to %d", t.ModelShare, t.PlatformShare, t.Amount)
	}
	for _, existing := range st.transactions {
		if existing.RequestID == t.RequestID {
			return fmt.Errorf("insert gift transaction: request %d already settled", t.RequestID)
		}
	}
	st.nextTxID++
	t.ID = st.nextTxID
	n := len(st.transactions)
	st.transactions = append(st.transactions, *t)
	r.tx.record(func() { st.transactions = st.transactions[:n] })
	return nil
}

func (r giftTransactionRepo) ListByReceiver(_ context.Context, receiverID int64, limit int) ([]domain.GiftTransaction, error) {
	var out []domain.GiftTransaction
	for i := len(r.tx.s.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if t := r.tx.s.transactions[i]; t.ReceiverID == receiverID {
			out = append(out, t)
		}
	}
	return out, nil
}

type catalogRepo struct {
	tx *memTx
}

func (r catalogRepo) GetByID(_ context.Context, id int64) (*domain.GiftCatalogItem, error) {
	g, ok := r.tx.s.catalog[id]
	if !ok {
		return nil, domain.ErrGiftNotFound
	}
	return &g, nil
}

func (r catalogRepo) ListActive(_ context.Context) ([]domain.GiftCatalogItem, error) {
	var out []domain.GiftCatalogItem
	for _, g := range r.tx.s.catalog {
		if g.IsActive {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price == out[j].Price {
			return out[i].ID < out[j].ID
		}
		return out[i].Price < out[j].Price
	})
	return out, nil
}

type settingsRepo struct {
	tx *memTx
}

func (r settingsRepo) GetDecimal(_ context.Context, key string) (decimal.Decimal, bool, error) {
	v, ok := r.tx.s.settings[key]
	return v, ok, nil
}

func (r settingsRepo) SetDecimal(_ context.Context, key string, value decimal.Decimal, _ time.Time) error {
	st := r.tx.s
	prev, existed := st.settings[key]
	st.settings[key] = value
	r.tx.record(func() {
		if existed {
			st.settings[key] = prev
		} else {
			delete(st.settings, key)
		}
	})
	return nil
}
