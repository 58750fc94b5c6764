package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/roulette/internal/domain"
	"github.com/shopspring/decimal"
)

type pgCatalog struct {
	db DBTX
}

func (r *pgCatalog) GetByID(ctx context.Context, id int64) (*domain.GiftCatalogItem, error) {
	var g domain.GiftCatalogItem
	err := r.db.QueryRow(ctx,
		`SELECT id, name, price, is_active FROM gift_catalog WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.Price, &g.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGiftNotFound
		}
		return nil, fmt.Errorf("get gift: %w", err)
	}
	return &g, nil
}

func (r *pgCatalog) ListActive(ctx context.Context) ([]domain.GiftCatalogItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, price, is_active FROM gift_catalog WHERE is_active ORDER BY price, id`)
	if err != nil {
		return nil, fmt.Errorf("list gifts: %w", err)
	}
	defer rows.Close()

	var items []domain.GiftCatalogItem
	for rows.Next() {
		var g domain.GiftCatalogItem
		if err := rows.Scan(&g.ID, &g.Name, &g.Price, &g.IsActive); err != nil {
			return nil, fmt.Errorf("scan gift: %w", err)
		}
		items = append(items, g)
	}
	return items, rows.Err()
}

type pgSettings struct {
	db DBTX
}

func (r *pgSettings) GetDecimal(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	var raw string
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("get setting %s: %w", key, err)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse setting %s: %w", key, err)
	}
	return v, true, nil
}

func (r *pgSettings) SetDecimal(ctx context.Context, key string, value decimal.Decimal, now time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value.String(), timeToPgTimestamptz(now))
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
