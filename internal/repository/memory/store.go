// Package memory is an in-process implementation of repository.Store.
//
// A unit of work holds the store mutex for its whole duration, so every
// transaction is serializable and row locks are implied. Writes record an
// undo step; an error or panic replays them in reverse.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/set-night/roulette/internal/domain"
	"github.com/set-night/roulette/internal/repository"
	"github.com/shopspring/decimal"
)

type exclusionKey struct {
	subject, excluded int64
}

type Store struct {
	mu sync.Mutex

	sessions      map[int64]*domain.Session
	rooms         map[string]int64
	nextSessionID int64

	exclusions map[exclusionKey]time.Time

	balances    map[int64]domain.CoinBalance
	entries     []domain.LedgerEntry
	nextEntryID int64

	requests      map[int64]*domain.GiftRequest
	nextRequestID int64

	transactions []domain.GiftTransaction
	nextTxID     int64

	catalog  map[int64]domain.GiftCatalogItem
	settings map[string]decimal.Decimal
}

func NewStore() *Store {
	return &Store{
		sessions:   map[int64]*domain.Session{},
		rooms:      map[string]int64{},
		exclusions: map[exclusionKey]time.Time{},
		balances:   map[int64]domain.CoinBalance{},
		requests:   map[int64]*domain.GiftRequest{},
		catalog:    map[int64]domain.GiftCatalogItem{},
		settings:   map[string]decimal.Decimal{},
	}
}

// AddGift seeds the catalog. The catalog is reference data and is not
// written through units of work.
func (s *Store) AddGift(item domain.GiftCatalogItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[item.ID] = item
}

func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) record(step func()) {
	t.undo = append(t.undo, step)
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) Sessions() repository.SessionRepository                 { return sessionRepo{t} }
func (t *memTx) Exclusions() repository.ExclusionRepository             { return exclusionRepo{t} }
func (t *memTx) Balances() repository.BalanceRepository                 { return balanceRepo{t} }
func (t *memTx) GiftRequests() repository.GiftRequestRepository         { return giftRequestRepo{t} }
func (t *memTx) GiftTransactions() repository.GiftTransactionRepository { return giftTransactionRepo{t} }
func (t *memTx) Catalog() repository.CatalogRepository                  { return catalogRepo{t} }
func (t *memTx) Settings() repository.SettingsRepository                { return settingsRepo{t} }
