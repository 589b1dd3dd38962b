package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	apperrors "github.com/abgdnv/shopassist/internal/errors"
	"github.com/abgdnv/shopassist/pkg/cache"
)

// ProductSource pages through the remote product collection.
type ProductSource interface {
	ListProducts(ctx context.Context, pageInfo string) ([]Product, string, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
}

// Locator resolves a SKU to its product and variant.
// Returns ErrNotFound when no variant carries the SKU.
type Locator interface {
	Locate(ctx context.Context, sku string) (*Product, *Variant, error)
}

// ScanLocator walks every page of the catalog on each lookup.
type ScanLocator struct {
	source ProductSource
}

func NewScanLocator(source ProductSource) *ScanLocator {
	return &ScanLocator{source: source}
}

func (l *ScanLocator) Locate(ctx context.Context, sku string) (*Product, *Variant, error) {
	var found *Product
	var foundVariant *Variant
	err := l.scan(ctx, func(p *Product) bool {
		if v := variantBySKU(p, sku); v != nil {
			found, foundVariant = p, v
			return false
		}
		return true
	})
	if err != nil {
		return nil, nil, err
	}
	if found == nil {
		return nil, nil, fmt.Errorf("sku %q: %w", sku, apperrors.ErrNotFound)
	}
	return found, foundVariant, nil
}

// scan calls visit for each product in catalog order until visit returns false or pages run out.
func (l *ScanLocator) scan(ctx context.Context, visit func(*Product) bool) error {
	pageInfo := ""
	for {
		products, next, err := l.source.ListProducts(ctx, pageInfo)
		if err != nil {
			return err
		}
		for i := range products {
			if !visit(&products[i]) {
				return nil
			}
		}
		if next == "" {
			return nil
		}
		pageInfo = next
	}
}

func variantBySKU(p *Product, sku string) *Variant {
	for i := range p.Variants {
		if p.Variants[i].SKU == sku {
			return &p.Variants[i]
		}
	}
	return nil
}

// CachedLocator keeps a sku to product id index. Hits are verified against the remote product,
// stale or missing entries fall back to a scan that refreshes the index for every product it passes.
type CachedLocator struct {
	scan   *ScanLocator
	source ProductSource
	index  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedLocator(source ProductSource, index cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedLocator {
	return &CachedLocator{
		scan:   NewScanLocator(source),
		source: source,
		index:  index,
		ttl:    ttl,
		logger: logger,
	}
}

func indexKey(sku string) string {
	return "sku:" + sku
}

func (l *CachedLocator) Locate(ctx context.Context, sku string) (*Product, *Variant, error) {
	if p, v, ok := l.fromIndex(ctx, sku); ok {
		return p, v, nil
	}

	var found *Product
	var foundVariant *Variant
	err := l.scan.scan(ctx, func(p *Product) bool {
		for _, v := range p.Variants {
			if v.SKU == "" {
				continue
			}
			if err := l.index.Set(ctx, indexKey(v.SKU), strconv.FormatInt(p.ID, 10), l.ttl); err != nil {
				l.logger.WarnContext(ctx, "failed to index sku", "sku", v.SKU, "error", err)
			}
		}
		if v := variantBySKU(p, sku); v != nil {
			found, foundVariant = p, v
			return false
		}
		return true
	})
	if err != nil {
		return nil, nil, err
	}
	if found == nil {
		return nil, nil, fmt.Errorf("sku %q: %w", sku, apperrors.ErrNotFound)
	}
	return found, foundVariant, nil
}

func (l *CachedLocator) fromIndex(ctx context.Context, sku string) (*Product, *Variant, bool) {
	raw, err := l.index.Get(ctx, indexKey(sku))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			l.logger.WarnContext(ctx, "sku index unavailable", "error", err)
		}
		return nil, nil, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		_ = l.index.Delete(ctx, indexKey(sku))
		return nil, nil, false
	}
	p, err := l.source.GetProduct(ctx, id)
	if err != nil {
		return nil, nil, false
	}
	v := variantBySKU(p, sku)
	if v == nil {
		_ = l.index.Delete(ctx, indexKey(sku))
		return nil, nil, false
	}
	return p, v, true
}
