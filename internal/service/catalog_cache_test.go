package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/infra/cache"
	"github.com/boddenberg/agro-commercial-go/internal/infra/memstore"
	"github.com/boddenberg/agro-commercial-go/internal/service"
)

// gatedStore holds the next FindCatalogItem until release is closed.
// With readFirst the read happens before the hold, so the caller gets
// the state as of the start of the read.
type gatedStore struct {
	*memstore.Store
	armed     atomic.Bool
	readFirst bool
	started   chan struct{}
	release   chan struct{}
	calls     atomic.Int32
}

func newGatedStore(st *memstore.Store, readFirst bool) *gatedStore {
	g := &gatedStore{Store: st, readFirst: readFirst, started: make(chan struct{}, 1), release: make(chan struct{})}
	g.armed.Store(true)
	return g
}

func (g *gatedStore) FindCatalogItem(ctx context.Context, catalogID, productID string) (*domain.CatalogItem, error) {
	g.calls.Add(1)
	if !g.armed.CompareAndSwap(true, false) {
		return g.Store.FindCatalogItem(ctx, catalogID, productID)
	}
	if g.readFirst {
		item, err := g.Store.FindCatalogItem(ctx, catalogID, productID)
		g.started <- struct{}{}
		<-g.release
		return item, err
	}
	g.started <- struct{}{}
	<-g.release
	return g.Store.FindCatalogItem(ctx, catalogID, productID)
}

func newGatedCatalogs(t *testing.T, readFirst bool) (*service.CatalogService, *gatedStore, *domain.Catalog) {
	t.Helper()
	f := newFixture(t, nil)
	c := createCatalog(t, f)
	_, err := f.catalogs.AddItem(context.Background(), c.ID, "P", []domain.PriceEntry{
		{EffectiveFrom: date("2024-01-01"), Price: d("100")},
	}, d("80"))
	require.NoError(t, err)

	g := newGatedStore(f.store, readFirst)
	svc := service.NewCatalogService(g, cache.New[*domain.CatalogItem](time.Minute), f.clock, f.metrics, zap.NewNop())
	return svc, g, c
}

func TestResolvePrice_WriteDuringLoadIsNotCached(t *testing.T) {
	ctx := context.Background()
	svc, g, c := newGatedCatalogs(t, true)

	type result struct {
		res domain.PriceResolution
		err error
	}
	first := make(chan result, 1)
	go func() {
		res, err := svc.ResolvePrice(ctx, c.ID, "P", "", today)
		first <- result{res, err}
	}()
	<-g.started

	_, err := svc.UpdateItemPriceStructure(ctx, c.ID, "P", []domain.PriceEntry{
		{EffectiveFrom: date("2024-01-01"), Price: d("120")},
	}, d("80"))
	require.NoError(t, err)
	close(g.release)

	got := <-first
	require.NoError(t, got.err)
	assert.True(t, got.res.Price.Equal(d("100")), "read started before the write, got %s", got.res.Price)

	res, err := svc.ResolvePrice(ctx, c.ID, "P", "", today)
	require.NoError(t, err)
	assert.True(t, res.Price.Equal(d("120")), "stale item was cached, got %s", res.Price)
}

func TestResolvePrice_CallerCancelDoesNotFailSharedLoad(t *testing.T) {
	svc, g, c := newGatedCatalogs(t, false)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.ResolvePrice(ctxA, c.ID, "P", "", today)
		errA <- err
	}()
	<-g.started
	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	type result struct {
		res domain.PriceResolution
		err error
	}
	second := make(chan result, 1)
	go func() {
		res, err := svc.ResolvePrice(context.Background(), c.ID, "P", "", today)
		second <- result{res, err}
	}()
	close(g.release)

	got := <-second
	require.NoError(t, got.err)
	assert.True(t, got.res.Price.Equal(d("100")))
	assert.EqualValues(t, 1, g.calls.Load(), "the shared load filled the cache")
}
