package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/service"
)

func strp(s string) *string { return &s }

func createCatalog(t *testing.T, f *fixture) *domain.Catalog {
	t.Helper()
	c, err := f.catalogs.CreateCatalog(context.Background(), service.CreateCatalogInput{
		Key:      catalogKey,
		Currency: "BRL",
		Start:    date("2024-01-01"),
		End:      date("2024-12-31"),
	})
	require.NoError(t, err)
	return c
}

func TestCreateCatalog_DuplicateKeyLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	first := createCatalog(t, f)

	_, err := f.catalogs.CreateCatalog(ctx, service.CreateCatalogInput{
		Key: catalogKey, Currency: "USD", Start: date("2025-01-01"), End: date("2025-12-31"),
	})
	var dup *domain.ErrDuplicateKey
	require.ErrorAs(t, err, &dup)

	valid, err := f.catalogs.ListValidCatalogs(ctx, date("2024-06-01"))
	require.NoError(t, err)
	require.Len(t, valid, 1)
	assert.Equal(t, first.ID, valid[0].ID)
	assert.Equal(t, "BRL", valid[0].Currency)
}

func TestResolvePrice_MostSpecificWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := createCatalog(t, f)

	_, err := f.catalogs.AddItem(ctx, c.ID, "P", []domain.PriceEntry{
		{State: strp("SP"), EffectiveFrom: date("2024-01-01"), Price: d("100")},
		{EffectiveFrom: date("2024-06-01"), Price: d("90")},
	}, d("80"))
	require.NoError(t, err)

	res, err := f.catalogs.ResolvePrice(ctx, c.ID, "P", "SP", date("2024-07-01"))
	require.NoError(t, err)
	assert.True(t, res.Price.Equal(d("100")), "got %s", res.Price)
	assert.Equal(t, domain.PriceSourceState, res.Source)
}

func TestResolvePrice_MissingItemIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	c := createCatalog(t, f)

	_, err := f.catalogs.ResolvePrice(context.Background(), c.ID, "nope", "SP", today)
	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.True(t, service.IsNotFound(err))
}

func TestAddItem_MissingCatalogIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.catalogs.AddItem(context.Background(), "missing", "P", nil, d("10"))
	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
}

func TestResolvePrice_CacheInvalidatedOnWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := createCatalog(t, f)

	_, err := f.catalogs.AddItem(ctx, c.ID, "P", nil, d("80"))
	require.NoError(t, err)

	res, err := f.catalogs.ResolvePrice(ctx, c.ID, "P", "SP", today)
	require.NoError(t, err)
	assert.True(t, res.Price.Equal(d("80")))

	_, err = f.catalogs.UpdateItemPriceStructure(ctx, c.ID, "P", []domain.PriceEntry{
		{EffectiveFrom: date("2024-01-01"), Price: d("95")},
	}, d("80"))
	require.NoError(t, err)

	res, err = f.catalogs.ResolvePrice(ctx, c.ID, "P", "SP", today)
	require.NoError(t, err)
	assert.True(t, res.Price.Equal(d("95")), "got %s", res.Price)
	assert.Equal(t, domain.PriceSourceGeneral, res.Source)

	require.NoError(t, f.catalogs.RemoveItem(ctx, c.ID, "P"))
	_, err = f.catalogs.ResolvePrice(ctx, c.ID, "P", "SP", today)
	assert.True(t, service.IsNotFound(err))
}

func TestResolvePrice_ConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := createCatalog(t, f)
	_, err := f.catalogs.AddItem(ctx, c.ID, "P", []domain.PriceEntry{
		{State: strp("MT"), EffectiveFrom: date("2024-02-01"), Price: d("120")},
	}, d("100"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.catalogs.ResolvePrice(ctx, c.ID, "P", "MT", today)
			assert.NoError(t, err)
			assert.True(t, res.Price.Equal(d("120")))
		}()
	}
	wg.Wait()

	_, err = f.catalogs.ResolvePrice(ctx, c.ID, "P", "MT", today)
	require.NoError(t, err)
	assert.Greater(t, f.metrics.Snapshot().CatalogCacheHitRate, 0.0)
}

func TestSetItemActive_KeepsPrices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := createCatalog(t, f)
	_, err := f.catalogs.AddItem(ctx, c.ID, "P", nil, d("80"))
	require.NoError(t, err)

	item, err := f.catalogs.SetItemActive(ctx, c.ID, "P", false)
	require.NoError(t, err)
	assert.False(t, item.Active)
	assert.True(t, item.BasePrice.Equal(d("80")))

	loaded, err := f.catalogs.GetCatalog(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.False(t, loaded.Items[0].Active)
}

func TestUpdateValidity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := createCatalog(t, f)

	_, err := f.catalogs.UpdateValidity(ctx, c.ID, date("2025-01-01"), date("2025-06-30"))
	require.NoError(t, err)

	valid, err := f.catalogs.ListValidCatalogs(ctx, date("2024-06-01"))
	require.NoError(t, err)
	assert.Empty(t, valid)

	valid, err = f.catalogs.ListValidCatalogs(ctx, date("2025-06-30"))
	require.NoError(t, err)
	assert.Len(t, valid, 1)

	var inv *domain.ErrInvalidArgument
	_, err = f.catalogs.UpdateValidity(ctx, c.ID, date("2025-06-30"), date("2025-01-01"))
	require.ErrorAs(t, err, &inv)
}

func TestListValidCatalogs_OrderedByKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	for _, crop := range []string{"milho", "algodao", "soja"} {
		key := catalogKey
		key.CropID = crop
		_, err := f.catalogs.CreateCatalog(ctx, service.CreateCatalogInput{
			Key: key, Currency: "BRL", Start: date("2024-01-01"), End: date("2024-12-31"),
		})
		require.NoError(t, err)
	}

	valid, err := f.catalogs.ListValidCatalogs(ctx, today)
	require.NoError(t, err)
	require.Len(t, valid, 3)
	assert.Equal(t, []string{"algodao", "milho", "soja"},
		[]string{valid[0].Key.CropID, valid[1].Key.CropID, valid[2].Key.CropID})
}

func TestCreateCatalog_CancelledContext(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.catalogs.CreateCatalog(ctx, service.CreateCatalogInput{
		Key: catalogKey, Currency: "BRL", Start: date("2024-01-01"), End: date("2024-12-31"),
	})
	require.ErrorIs(t, err, context.Canceled)

	valid, err := f.catalogs.ListValidCatalogs(context.Background(), today)
	require.NoError(t, err)
	assert.Empty(t, valid)
}
