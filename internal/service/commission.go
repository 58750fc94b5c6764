package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/set-night/roulette/internal/config"
	"github.com/set-night/roulette/internal/domain"
	"github.com/set-night/roulette/internal/repository"
	"github.com/shopspring/decimal"
)

// CommissionSource yields the platform's share of a gift as a fraction.
type CommissionSource interface {
	CommissionRate(ctx context.Context) (decimal.Decimal, error)
}

// SettingsCommission reads the rate from the settings table and falls back to
// the configured default when the key is unset.
type SettingsCommission struct {
	store    repository.Store
	fallback decimal.Decimal
	logger   *slog.Logger
}

func NewSettingsCommission(store repository.Store, fallback decimal.Decimal, logger *slog.Logger) *SettingsCommission {
	return &SettingsCommission{store: store, fallback: fallback, logger: logger}
}

func (c *SettingsCommission) CommissionRate(ctx context.Context) (decimal.Decimal, error) {
	var (
		rate decimal.Decimal
		ok   bool
	)
	err := c.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		rate, ok, err = tx.Settings().GetDecimal(ctx, config.SettingCommissionRate)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("read commission rate: %w", err)
	}
	if !ok {
		return c.fallback, nil
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		c.logger.Error("commission rate setting out of range", "rate", rate.String())
		return decimal.Zero, domain.ErrInvalidRate
	}
	return rate, nil
}

// SetCommissionRate updates the runtime rate. Requests already accepting keep
// the rate they resolved.
func (c *SettingsCommission) SetCommissionRate(ctx context.Context, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return domain.ErrInvalidRate
	}
	return c.store.InTx(ctx, func(tx repository.Tx) error {
		return tx.Settings().SetDecimal(ctx, config.SettingCommissionRate, rate, time.Now())
	})
}
