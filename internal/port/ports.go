// Package port defines the interfaces (ports) for external collaborators.
// Following hexagonal architecture, these ports decouple the pricing
// domain/service layer from persistence, geography and time.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
)

// Find* methods return (nil, nil) when nothing matches; Get* methods
// return *domain.ErrNotFound.

// CatalogRepository persists catalogs and their items.
type CatalogRepository interface {
	InsertCatalog(ctx context.Context, c *domain.Catalog) error
	UpdateCatalog(ctx context.Context, c *domain.Catalog) error
	// GetCatalog loads a catalog with its items.
	GetCatalog(ctx context.Context, catalogID string) (*domain.Catalog, error)
	FindCatalogByKey(ctx context.Context, key domain.CatalogKey) (*domain.Catalog, error)
	// ListCatalogsValidOn returns catalogs (without items) whose validity contains date.
	ListCatalogsValidOn(ctx context.Context, date time.Time) ([]domain.Catalog, error)

	InsertCatalogItem(ctx context.Context, item *domain.CatalogItem) error
	UpdateCatalogItem(ctx context.Context, item *domain.CatalogItem) error
	DeleteCatalogItem(ctx context.Context, itemID string) error
	FindCatalogItem(ctx context.Context, catalogID, productID string) (*domain.CatalogItem, error)
}

// SegmentationFilter scopes segmentation listings.
type SegmentationFilter struct {
	ActiveOnly  bool
	DefaultOnly bool
}

// SegmentationRepository persists segmentations, bands and band discounts.
type SegmentationRepository interface {
	InsertSegmentation(ctx context.Context, s *domain.Segmentation) error
	UpdateSegmentation(ctx context.Context, s *domain.Segmentation) error
	GetSegmentation(ctx context.Context, segmentationID string) (*domain.Segmentation, error)
	ListSegmentations(ctx context.Context, supplierID string, f SegmentationFilter) ([]domain.Segmentation, error)

	InsertBand(ctx context.Context, b *domain.SegmentationBand) error
	UpdateBand(ctx context.Context, b *domain.SegmentationBand) error
	GetBand(ctx context.Context, bandID string) (*domain.SegmentationBand, error)
	ListBands(ctx context.Context, segmentationID string, activeOnly bool) ([]domain.SegmentationBand, error)

	InsertBandDiscount(ctx context.Context, d *domain.BandDiscount) error
	UpdateBandDiscount(ctx context.Context, d *domain.BandDiscount) error
	GetBandDiscount(ctx context.Context, discountID string) (*domain.BandDiscount, error)
	FindBandDiscount(ctx context.Context, bandID, categoryID string) (*domain.BandDiscount, error)
	ListBandDiscounts(ctx context.Context, bandID string) ([]domain.BandDiscount, error)
}

// ComboFilter scopes combo listings.
type ComboFilter struct {
	SupplierID string
	SeasonID   string
	ActiveOnly bool
}

// ComboRepository persists combos as aggregates: SaveCombo writes the
// combo row and replaces its children.
type ComboRepository interface {
	InsertCombo(ctx context.Context, c *domain.Combo) error
	SaveCombo(ctx context.Context, c *domain.Combo) error
	GetCombo(ctx context.Context, comboID string) (*domain.Combo, error)
	// FindActiveComboByName looks up the active combo holding (supplier, season, name).
	FindActiveComboByName(ctx context.Context, supplierID, seasonID, name string) (*domain.Combo, error)
	ListCombos(ctx context.Context, f ComboFilter) ([]domain.Combo, error)
	DeleteCombo(ctx context.Context, comboID string) error
}

// Repositories groups every repository the pricing services use.
type Repositories interface {
	CatalogRepository
	SegmentationRepository
	ComboRepository
}

// Store is the persistence collaborator. WithinTx runs fn as one
// transactional unit: every write made through the Repositories passed to
// fn persists together or not at all, and check-then-write sequences inside
// fn are isolated from concurrent writers.
type Store interface {
	Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Geography resolves municipality membership. Implemented by the address
// reference-data service.
type Geography interface {
	MunicipalityState(ctx context.Context, municipalityID int64) (stateID int64, err error)
}

// Clock abstracts "now" so vigency checks are testable.
type Clock interface {
	Now() time.Time
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
