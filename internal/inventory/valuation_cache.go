package inventory

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-stock/internal/events"
)

// ValuationCache stores aggregate valuations per tenant version.
type ValuationCache interface {
	BuildKey(ctx context.Context, tenantID int64, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context, tenantID int64) error
}

// CachedValuator serves warehouse and product aggregates from a cache that
// is invalidated by ledger events.
type CachedValuator struct {
	*Valuator
	cache ValuationCache
}

// NewCachedValuator wraps v.
func NewCachedValuator(v *Valuator, cache ValuationCache) *CachedValuator {
	return &CachedValuator{Valuator: v, cache: cache}
}

// WarehouseValue implements the cached variant of Valuator.WarehouseValue.
func (c *CachedValuator) WarehouseValue(ctx context.Context, tenantID, warehouseID int64, method ValuationMethod) (AggregateValuation, error) {
	method, err := c.resolve(method)
	if err != nil {
		return AggregateValuation{}, err
	}
	return c.fetch(ctx, tenantID, []string{"warehouse", strconv.FormatInt(warehouseID, 10), string(method)}, func(ctx context.Context) (AggregateValuation, error) {
		return c.Valuator.WarehouseValue(ctx, tenantID, warehouseID, method)
	})
}

// ProductValue implements the cached variant of Valuator.ProductValue.
func (c *CachedValuator) ProductValue(ctx context.Context, tenantID, productID int64, method ValuationMethod) (AggregateValuation, error) {
	method, err := c.resolve(method)
	if err != nil {
		return AggregateValuation{}, err
	}
	return c.fetch(ctx, tenantID, []string{"product", strconv.FormatInt(productID, 10), string(method)}, func(ctx context.Context) (AggregateValuation, error) {
		return c.Valuator.ProductValue(ctx, tenantID, productID, method)
	})
}

func (c *CachedValuator) fetch(ctx context.Context, tenantID int64, parts []string, load func(context.Context) (AggregateValuation, error)) (AggregateValuation, error) {
	key, err := c.cache.BuildKey(ctx, tenantID, parts...)
	if err != nil {
		c.logger.Warn("valuation cache key", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
		return load(ctx)
	}
	var out AggregateValuation
	err = c.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	return out, err
}

// Invalidator returns a publisher that bumps the tenant's cache version for
// every inventory event it sees. Chain it with the outbound publisher.
func (c *CachedValuator) Invalidator() events.Publisher {
	return NewCacheInvalidator(c.cache)
}

// NewCacheInvalidator is Invalidator for a cache not yet wrapped by a
// CachedValuator.
func NewCacheInvalidator(cache ValuationCache) events.Publisher {
	return events.PublisherFunc(func(ctx context.Context, evt events.Event) error {
		if !strings.HasPrefix(string(evt.Name), "inventory.") {
			return nil
		}
		return cache.Bump(ctx, evt.TenantID)
	})
}
