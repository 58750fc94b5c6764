package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on a pgx pool. Each unit of work is one
// READ COMMITTED transaction; row locks are taken explicitly with FOR UPDATE.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct {
	db DBTX
}

func (t *pgTx) Sessions() SessionRepository                 { return &pgSessions{db: t.db} }
func (t *pgTx) Exclusions() ExclusionRepository             { return &pgExclusions{db: t.db} }
func (t *pgTx) Balances() BalanceRepository                 { return &pgBalances{db: t.db} }
func (t *pgTx) GiftRequests() GiftRequestRepository         { return &pgGiftRequests{db: t.db} }
func (t *pgTx) GiftTransactions() GiftTransactionRepository { return &pgGiftTransactions{db: t.db} }
func (t *pgTx) Catalog() CatalogRepository                  { return &pgCatalog{db: t.db} }
func (t *pgTx) Settings() SettingsRepository                { return &pgSettings{db: t.db} }

// IsRetryable reports whether err is a serialization failure or deadlock the
// caller may retry with a fresh unit of work.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
