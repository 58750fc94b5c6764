package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/set-night/roulette/internal/domain"
	"github.com/set-night/roulette/internal/repository"
)

// CatalogCache holds the active gift catalog for ttl.
type CatalogCache struct {
	store repository.Store

	mu       sync.RWMutex
	items    []domain.GiftCatalogItem
	byID     map[int64]domain.GiftCatalogItem
	cachedAt time.Time
	ttl      time.Duration
	now      func() time.Time
}

func NewCatalogCache(store repository.Store, ttl time.Duration) *CatalogCache {
	return &CatalogCache{store: store, ttl: ttl, now: time.Now}
}

func (c *CatalogCache) cached() ([]domain.GiftCatalogItem, map[int64]domain.GiftCatalogItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.items == nil || c.now().Sub(c.cachedAt) > c.ttl {
		return nil, nil, false
	}
	return c.items, c.byID, true
}

func (c *CatalogCache) set(items []domain.GiftCatalogItem) {
	byID := make(map[int64]domain.GiftCatalogItem, len(items))
	for _, g := range items {
		byID[g.ID] = g
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = items
	c.byID = byID
	c.cachedAt = c.now()
}

// List returns the active gifts, cheapest first.
func (c *CatalogCache) List(ctx context.Context) ([]domain.GiftCatalogItem, error) {
	if items, _, ok := c.cached(); ok {
		return items, nil
	}

	var items []domain.GiftCatalogItem
	err := c.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		items, err = tx.Catalog().ListActive(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list gift catalog: %w", err)
	}
	if items == nil {
		items = []domain.GiftCatalogItem{}
	}
	c.set(items)
	return items, nil
}

// Get returns an active gift. Unknown ids are ErrGiftNotFound, retired ones
// ErrGiftInactive.
func (c *CatalogCache) Get(ctx context.Context, giftID int64) (*domain.GiftCatalogItem, error) {
	if _, byID, ok := c.cached(); ok {
		if g, found := byID[giftID]; found {
			return &g, nil
		}
	}

	var g *domain.GiftCatalogItem
	err := c.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		g, err = tx.Catalog().GetByID(ctx, giftID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !g.IsActive {
		return nil, domain.ErrGiftInactive
	}
	return g, nil
}

// Invalidate drops the cached catalog.
func (c *CatalogCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	c.byID = nil
}
