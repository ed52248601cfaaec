package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/infra/observability"
	"github.com/boddenberg/agro-commercial-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var catalogTracer = otel.Tracer("service/catalog")

const itemCacheName = "catalog_item"

// CreateCatalogInput carries the fields of a new catalog.
type CreateCatalogInput struct {
	Key      domain.CatalogKey
	Currency string
	Start    time.Time
	End      time.Time
}

// CatalogService manages catalogs and resolves catalog prices.
type CatalogService struct {
	store   port.Store
	cache   port.Cache[*domain.CatalogItem]
	loads   singleflight.Group
	clock   port.Clock

	// gens counts invalidations per cache key; a load only fills the
	// cache if no invalidation happened while it was reading.
	gensMu sync.Mutex
	gens   map[string]uint64

	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewCatalogService creates a catalog service. The cache holds catalog
// items keyed by catalog and product.
func NewCatalogService(
	store port.Store,
	cache port.Cache[*domain.CatalogItem],
	clock port.Clock,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CatalogService {
	return &CatalogService{store: store, cache: cache, clock: clock, metrics: metrics, logger: logger, gens: make(map[string]uint64)}
}

func (s *CatalogService) generation(key string) uint64 {
	s.gensMu.Lock()
	defer s.gensMu.Unlock()
	return s.gens[key]
}

// invalidate drops the cached item after a committed write. Loads already
// in flight are forgotten so later callers read the new state.
func (s *CatalogService) invalidate(catalogID, productID string) {
	key := itemCacheKey(catalogID, productID)
	s.gensMu.Lock()
	s.gens[key]++
	s.cache.Delete(key)
	s.gensMu.Unlock()
	s.loads.Forget(key)
}

func (s *CatalogService) fill(key string, gen uint64, item *domain.CatalogItem) {
	s.gensMu.Lock()
	defer s.gensMu.Unlock()
	if s.gens[key] == gen {
		s.cache.Set(key, item)
	}
}

func itemCacheKey(catalogID, productID string) string {
	return "catalog_item:" + catalogID + ":" + productID
}

// CreateCatalog creates a catalog for a natural key that is not yet taken.
func (s *CatalogService) CreateCatalog(ctx context.Context, in CreateCatalogInput) (_ *domain.Catalog, err error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.CreateCatalog")
	defer span.End()
	defer func(start time.Time) { finish(span, s.metrics, "create_catalog", start, err) }(time.Now())
	span.SetAttributes(attribute.String("catalog.key", in.Key.String()))

	validity, err := domain.NewValidity(in.Start, in.End)
	if err != nil {
		return nil, err
	}
	catalog, err := domain.NewCatalog(in.Key, in.Currency, validity, s.clock.Now())
	if err != nil {
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		existing, err := repos.FindCatalogByKey(ctx, in.Key)
		if err != nil {
			return err
		}
		if existing != nil {
			return &domain.ErrDuplicateKey{Resource: "catalog", Key: in.Key.String()}
		}
		return repos.InsertCatalog(ctx, catalog)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("catalog created",
		zap.String("catalog_id", catalog.ID),
		zap.String("key", in.Key.String()),
	)
	return catalog, nil
}

// GetCatalog loads a catalog with its items.
func (s *CatalogService) GetCatalog(ctx context.Context, catalogID string) (*domain.Catalog, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.GetCatalog")
	defer span.End()
	span.SetAttributes(attribute.String("catalog.id", catalogID))

	return s.store.GetCatalog(ctx, catalogID)
}

// UpdateValidity replaces the catalog's vigency window.
func (s *CatalogService) UpdateValidity(ctx context.Context, catalogID string, start, end time.Time) (_ *domain.Catalog, err error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.UpdateValidity")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, "update_catalog_validity", t, err) }(time.Now())

	validity, err := domain.NewValidity(start, end)
	if err != nil {
		return nil, err
	}

	var catalog *domain.Catalog
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		c, err := repos.GetCatalog(ctx, catalogID)
		if err != nil {
			return err
		}
		c.SetValidity(validity, s.clock.Now())
		if err := repos.UpdateCatalog(ctx, c); err != nil {
			return err
		}
		catalog = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return catalog, nil
}

// AddItem lists a product in the catalog with its price structure.
func (s *CatalogService) AddItem(ctx context.Context, catalogID, productID string, entries []domain.PriceEntry, basePrice decimal.Decimal) (_ *domain.CatalogItem, err error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.AddItem")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, "add_catalog_item", t, err) }(time.Now())
	span.SetAttributes(
		attribute.String("catalog.id", catalogID),
		attribute.String("product.id", productID),
	)

	var item domain.CatalogItem
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		c, err := repos.GetCatalog(ctx, catalogID)
		if err != nil {
			return err
		}
		added, err := c.AddItem(productID, entries, basePrice, s.clock.Now())
		if err != nil {
			return err
		}
		if err := repos.InsertCatalogItem(ctx, added); err != nil {
			return err
		}
		if err := repos.UpdateCatalog(ctx, c); err != nil {
			return err
		}
		item = *added
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(catalogID, productID)
	return &item, nil
}

// UpdateItemPriceStructure replaces an item's overrides and base price.
func (s *CatalogService) UpdateItemPriceStructure(ctx context.Context, catalogID, productID string, entries []domain.PriceEntry, basePrice decimal.Decimal) (*domain.CatalogItem, error) {
	return s.mutateItem(ctx, "update_catalog_item_prices", catalogID, productID, func(it *domain.CatalogItem, now time.Time) error {
		return it.ReplacePriceStructure(entries, basePrice, now)
	})
}

// SetItemActive toggles an item without touching its prices.
func (s *CatalogService) SetItemActive(ctx context.Context, catalogID, productID string, active bool) (*domain.CatalogItem, error) {
	return s.mutateItem(ctx, "set_catalog_item_active", catalogID, productID, func(it *domain.CatalogItem, now time.Time) error {
		it.SetActive(active, now)
		return nil
	})
}

func (s *CatalogService) mutateItem(ctx context.Context, op, catalogID, productID string, fn func(*domain.CatalogItem, time.Time) error) (_ *domain.CatalogItem, err error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.MutateItem")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, op, t, err) }(time.Now())
	span.SetAttributes(
		attribute.String("operation", op),
		attribute.String("catalog.id", catalogID),
		attribute.String("product.id", productID),
	)

	var item domain.CatalogItem
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		c, err := repos.GetCatalog(ctx, catalogID)
		if err != nil {
			return err
		}
		it, ok := c.Item(productID)
		if !ok {
			return &domain.ErrNotFound{Resource: "catalog_item", ID: catalogID + "/" + productID}
		}
		if err := fn(it, s.clock.Now()); err != nil {
			return err
		}
		if err := repos.UpdateCatalogItem(ctx, it); err != nil {
			return err
		}
		item = *it
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(catalogID, productID)
	return &item, nil
}

// RemoveItem drops a product from the catalog.
func (s *CatalogService) RemoveItem(ctx context.Context, catalogID, productID string) (err error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.RemoveItem")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, "remove_catalog_item", t, err) }(time.Now())

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		c, err := repos.GetCatalog(ctx, catalogID)
		if err != nil {
			return err
		}
		removed, err := c.RemoveItem(productID, s.clock.Now())
		if err != nil {
			return err
		}
		if err := repos.DeleteCatalogItem(ctx, removed.ID); err != nil {
			return err
		}
		return repos.UpdateCatalog(ctx, c)
	})
	if err != nil {
		return err
	}
	s.invalidate(catalogID, productID)
	return nil
}

// ResolvePrice resolves the price of a product for a state and date. A
// malformed price structure degrades to the item's base price.
func (s *CatalogService) ResolvePrice(ctx context.Context, catalogID, productID, state string, date time.Time) (_ domain.PriceResolution, err error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.ResolvePrice")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, "resolve_price", t, err) }(time.Now())
	span.SetAttributes(
		attribute.String("catalog.id", catalogID),
		attribute.String("product.id", productID),
		attribute.String("state", state),
	)

	item, err := s.loadItem(ctx, catalogID, productID)
	if err != nil {
		return domain.PriceResolution{}, err
	}

	res := item.ResolvePrice(state, date)
	if res.Degraded {
		s.metrics.IncrDegradedDocument("price_structure")
		s.logger.Warn("malformed price structure, using base price",
			zap.String("catalog_id", catalogID),
			zap.String("product_id", productID),
		)
	}
	span.SetAttributes(attribute.String("price.source", string(res.Source)))
	return res, nil
}

// loadItem reads through the cache; concurrent misses for the same key
// share one store round trip. The shared read runs detached from any one
// caller's cancellation, and each caller stops waiting when its own ctx
// is done.
func (s *CatalogService) loadItem(ctx context.Context, catalogID, productID string) (*domain.CatalogItem, error) {
	key := itemCacheKey(catalogID, productID)
	if item, ok := s.cache.Get(key); ok {
		s.metrics.IncrCacheHit(itemCacheName)
		return item, nil
	}
	s.metrics.IncrCacheMiss(itemCacheName)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(key, func() (any, error) {
		gen := s.generation(key)
		item, err := s.store.FindCatalogItem(loadCtx, catalogID, productID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, &domain.ErrNotFound{Resource: "catalog_item", ID: catalogID + "/" + productID}
		}
		s.fill(key, gen, item)
		return item, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.CatalogItem), nil
	}
}

// ListValidCatalogs returns the catalogs valid on date, ordered by natural key.
func (s *CatalogService) ListValidCatalogs(ctx context.Context, date time.Time) (_ []domain.Catalog, err error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.ListValidCatalogs")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, "list_valid_catalogs", t, err) }(time.Now())

	return s.store.ListCatalogsValidOn(ctx, domain.DateOf(date))
}

// IsNotFound reports whether err is a domain not-found error.
func IsNotFound(err error) bool {
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}
