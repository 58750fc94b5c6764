package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/set-night/roulette/internal/domain"
)

const balanceColumns = `user_id, purchased_balance, gift_balance, total_purchased, total_consumed,
	total_earned, updated_at`

type pgBalances struct {
	db DBTX
}

func scanBalance(row pgx.Row) (*domain.CoinBalance, error) {
	var (
		b         domain.CoinBalance
		updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&b.UserID, &b.PurchasedBalance, &b.GiftBalance, &b.TotalPurchased,
		&b.TotalConsumed, &b.TotalEarned, &updatedAt)
	if err != nil {
		return nil, err
	}
	b.UpdatedAt = pgTimestamptzToTime(updatedAt)
	return &b, nil
}

func (r *pgBalances) GetForUpdate(ctx context.Context, userID int64) (*domain.CoinBalance, error) {
	if _, err := r.db.Exec(ctx, `
		INSERT INTO coin_balances (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return nil, fmt.Errorf("ensure balance: %w", err)
	}

	b, err := scanBalance(r.db.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM coin_balances WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}
	return b, nil
}

func (r *pgBalances) Get(ctx context.Context, userID int64) (*domain.CoinBalance, error) {
	b, err := scanBalance(r.db.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM coin_balances WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.CoinBalance{UserID: userID}, nil
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

func (r *pgBalances) Save(ctx context.Context, b *domain.CoinBalance) error {
	_, err := r.db.Exec(ctx, `
		UPDATE coin_balances SET
			purchased_balance = $2, gift_balance = $3, total_purchased = $4,
			total_consumed = $5, total_earned = $6, updated_at = $7
		WHERE user_id = $1`,
		b.UserID, b.PurchasedBalance, b.GiftBalance, b.TotalPurchased,
		b.TotalConsumed, b.TotalEarned, timeToPgTimestamptz(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save balance: %w", err)
	}
	return nil
}

func (r *pgBalances) AppendEntry(ctx context.Context, e *domain.LedgerEntry) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO ledger_entries (user_id, bucket, delta, reason, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		e.UserID, string(e.Bucket), e.Delta, e.Reason, e.Reference, timeToPgTimestamptz(e.CreatedAt),
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (r *pgBalances) ListEntries(ctx context.Context, userID int64, limit int) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, bucket, delta, reason, reference, created_at
		FROM ledger_entries WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e         domain.LedgerEntry
			bucket    string
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&e.ID, &e.UserID, &bucket, &e.Delta, &e.Reason, &e.Reference, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Bucket = domain.Bucket(bucket)
		e.CreatedAt = pgTimestamptzToTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
