package service

import (
	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/infra/observability"
	"github.com/boddenberg/agro-commercial-go/internal/port"

	"go.uber.org/zap"
)

// Engine bundles the pricing services over one store, the way host
// modules (proposals, orders) consume them.
type Engine struct {
	Catalogs      *CatalogService
	Segmentations *SegmentationService
	Combos        *ComboService
	Quotes        *QuoteService
}

// NewEngine wires the pricing services. geography may be nil.
func NewEngine(
	store port.Store,
	geography port.Geography,
	items port.Cache[*domain.CatalogItem],
	clock port.Clock,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Engine {
	catalogs := NewCatalogService(store, items, clock, metrics, logger)
	segmentations := NewSegmentationService(store, geography, clock, metrics, logger)
	return &Engine{
		Catalogs:      catalogs,
		Segmentations: segmentations,
		Combos:        NewComboService(store, clock, metrics, logger),
		Quotes:        NewQuoteService(catalogs, segmentations, store, clock, metrics, logger),
	}
}
