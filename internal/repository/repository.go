package repository

import (
	"context"
	"time"

	"github.com/set-night/roulette/internal/domain"
	"github.com/shopspring/decimal"
)

// Store runs units of work. fn's writes commit together when it returns nil
// and are discarded when it returns an error or panics.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the per-entity repositories bound to one unit of work.
type Tx interface {
	Sessions() SessionRepository
	Exclusions() ExclusionRepository
	Balances() BalanceRepository
	GiftRequests() GiftRequestRepository
	GiftTransactions() GiftTransactionRepository
	Catalog() CatalogRepository
	Settings() SettingsRepository
}

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id int64) (*domain.Session, error)
	GetByRoomID(ctx context.Context, roomID string) (*domain.Session, error)
	// GetByRoomIDForUpdate locks the row until the unit of work ends.
	GetByRoomIDForUpdate(ctx context.Context, roomID string) (*domain.Session, error)
	// FindWaitingCandidate locks and returns the oldest WAITING session created
	// after createdAfter whose slot for role is empty and whose other
	// participant is neither userID nor in excluded. Rows locked by other
	// units of work are skipped. Returns domain.ErrSessionNotFound when none.
	FindWaitingCandidate(ctx context.Context, role domain.Role, userID int64, excluded []int64, createdAfter time.Time) (*domain.Session, error)
	// OpenForUser returns the user's WAITING and ACTIVE sessions, locked.
	OpenForUser(ctx context.Context, userID int64) ([]*domain.Session, error)
	Update(ctx context.Context, s *domain.Session) error
	// ExpireWaiting ends WAITING sessions created before cutoff.
	ExpireWaiting(ctx context.Context, cutoff, now time.Time) ([]*domain.Session, error)
	// ListBillable returns ACTIVE sessions last billed before cutoff.
	ListBillable(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Session, error)
}

type ExclusionRepository interface {
	// Put inserts the window or extends an existing one for the same pair.
	Put(ctx context.Context, w domain.ExclusionWindow) error
	ActiveFor(ctx context.Context, subjectUserID int64, now time.Time) ([]int64, error)
	IsExcluded(ctx context.Context, subjectUserID, excludedUserID int64, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type BalanceRepository interface {
	// GetForUpdate returns the user's balance, creating a zero row on first
	// reference, and locks it until the unit of work ends.
	GetForUpdate(ctx context.Context, userID int64) (*domain.CoinBalance, error)
	// Get returns the balance without locking; absent users read as zero.
	Get(ctx context.Context, userID int64) (*domain.CoinBalance, error)
	Save(ctx context.Context, b *domain.CoinBalance) error
	AppendEntry(ctx context.Context, e *domain.LedgerEntry) error
	ListEntries(ctx context.Context, userID int64, limit int) ([]domain.LedgerEntry, error)
}

type GiftRequestRepository interface {
	Create(ctx context.Context, r *domain.GiftRequest) error
	GetByID(ctx context.Context, id int64) (*domain.GiftRequest, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.GiftRequest, error)
	Update(ctx context.Context, r *domain.GiftRequest) error
	// HasRecentPending reports whether a PENDING request for the same triple
	// was created at or after since.
	HasRecentPending(ctx context.Context, modelID, clientID, giftID int64, since time.Time) (bool, error)
	// CancelPendingBetween cancels PENDING requests of the pair created at or
	// after since, except exceptID.
	CancelPendingBetween(ctx context.Context, modelID, clientID int64, since time.Time, exceptID int64, now time.Time) (int64, error)
	ExpirePending(ctx context.Context, now time.Time) ([]*domain.GiftRequest, error)
	ListPendingForClient(ctx context.Context, clientID int64, now time.Time, limit int) ([]*domain.GiftRequest, error)
}

type GiftTransactionRepository interface {
	Append(ctx context.Context, t *domain.GiftTransaction) error
	ListByReceiver(ctx context.Context, receiverID int64, limit int) ([]domain.GiftTransaction, error)
}

type CatalogRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.GiftCatalogItem, error)
	ListActive(ctx context.Context) ([]domain.GiftCatalogItem, error)
}

type SettingsRepository interface {
	// GetDecimal reports ok=false when the key is absent.
	GetDecimal(ctx context.Context, key string) (value decimal.Decimal, ok bool, err error)
	SetDecimal(ctx context.Context, key string, value decimal.Decimal, now time.Time) error
}
