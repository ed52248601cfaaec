package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/infra/cache"
	"github.com/boddenberg/agro-commercial-go/internal/infra/clock"
	"github.com/boddenberg/agro-commercial-go/internal/infra/memstore"
	"github.com/boddenberg/agro-commercial-go/internal/infra/observability"
	"github.com/boddenberg/agro-commercial-go/internal/port"
	"github.com/boddenberg/agro-commercial-go/internal/service"
)

var today = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store    *memstore.Store
	clock    *clock.Fixed
	metrics  *observability.Metrics
	catalogs *service.CatalogService
	segs     *service.SegmentationService
	combos   *service.ComboService
	quotes   *service.QuoteService
}

func newFixture(t *testing.T, geo port.Geography) *fixture {
	t.Helper()
	f := &fixture{
		store:   memstore.New(),
		clock:   clock.NewFixed(today),
		metrics: observability.NewMetrics(),
	}
	e := service.NewEngine(f.store, geo, cache.New[*domain.CatalogItem](time.Minute), f.clock, f.metrics, zap.NewNop())
	f.catalogs, f.segs, f.combos, f.quotes = e.Catalogs, e.Segmentations, e.Combos, e.Quotes
	return f
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// geography maps municipalities to states; missing entries are an error.
type geography struct {
	states map[int64]int64
	err    error
}

func (g geography) MunicipalityState(_ context.Context, municipalityID int64) (int64, error) {
	if g.err != nil {
		return 0, g.err
	}
	st, ok := g.states[municipalityID]
	if !ok {
		return 0, errors.New("unknown municipality")
	}
	return st, nil
}

var catalogKey = domain.CatalogKey{
	SeasonID:            "2024/25",
	DistributionPointID: "dp-rio-verde",
	CropID:              "soja",
	CategoryID:          "sementes",
}
