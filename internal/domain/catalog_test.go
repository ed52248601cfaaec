package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
)

func date(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func strp(s string) *string { return &s }

func TestResolvePrice_StateEntryWinsOverNewerGeneral(t *testing.T) {
	entries := []domain.PriceEntry{
		{State: strp("SP"), EffectiveFrom: date("2024-01-01"), Price: d("100")},
		{EffectiveFrom: date("2024-06-01"), Price: d("90")},
	}

	res := domain.ResolvePrice(entries, d("80"), "SP", date("2024-07-01"))
	assert.True(t, res.Price.Equal(d("100")), "got %s", res.Price)
	assert.Equal(t, domain.PriceSourceState, res.Source)

	res = domain.ResolvePrice(entries, d("80"), "MT", date("2024-07-01"))
	assert.True(t, res.Price.Equal(d("90")), "got %s", res.Price)
	assert.Equal(t, domain.PriceSourceGeneral, res.Source)

	res = domain.ResolvePrice(entries, d("80"), "MT", date("2023-12-31"))
	assert.True(t, res.Price.Equal(d("80")), "got %s", res.Price)
	assert.Equal(t, domain.PriceSourceBase, res.Source)
}

func TestResolvePrice_LatestEligibleEntry(t *testing.T) {
	entries := []domain.PriceEntry{
		{State: strp("sp"), EffectiveFrom: date("2024-01-01"), Price: d("100")},
		{State: strp("SP"), EffectiveFrom: date("2024-05-01"), Price: d("110")},
		{State: strp("SP"), EffectiveFrom: date("2024-09-01"), Price: d("120")},
	}

	res := domain.ResolvePrice(entries, d("80"), " sp ", date("2024-07-01"))
	assert.True(t, res.Price.Equal(d("110")), "got %s", res.Price)

	res = domain.ResolvePrice(entries, d("80"), "SP", date("2024-09-01"))
	assert.True(t, res.Price.Equal(d("120")), "effectiveFrom is inclusive, got %s", res.Price)
}

func TestResolvePrice_SameDateLaterEntryWins(t *testing.T) {
	entries := []domain.PriceEntry{
		{EffectiveFrom: date("2024-01-01"), Price: d("10")},
		{EffectiveFrom: date("2024-01-01"), Price: d("11")},
	}
	res := domain.ResolvePrice(entries, d("0"), "", date("2024-02-01"))
	assert.True(t, res.Price.Equal(d("11")), "got %s", res.Price)
}

func TestResolvePrice_Deterministic(t *testing.T) {
	entries := []domain.PriceEntry{
		{State: strp("GO"), EffectiveFrom: date("2024-03-01"), Price: d("55.5")},
		{EffectiveFrom: date("2024-02-01"), Price: d("50")},
	}
	first := domain.ResolvePrice(entries, d("40"), "GO", date("2024-04-01"))
	for i := 0; i < 10; i++ {
		again := domain.ResolvePrice(entries, d("40"), "GO", date("2024-04-01"))
		assert.True(t, first.Price.Equal(again.Price))
		assert.Equal(t, first.Source, again.Source)
	}
}

func TestPriceStructure_RoundTrip(t *testing.T) {
	entries := []domain.PriceEntry{
		{State: strp("sp"), EffectiveFrom: date("2024-01-01"), Price: d("100.25")},
		{EffectiveFrom: date("2024-06-01"), Price: d("90")},
	}
	blob, err := domain.EncodePriceStructure(entries)
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"state":"SP","effectiveFrom":"2024-01-01","price":"100.25"},{"effectiveFrom":"2024-06-01","price":"90"}]`,
		string(blob))

	parsed, err := domain.ParsePriceStructure(blob)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, "SP", *parsed[0].State)
	assert.Nil(t, parsed[1].State)
	assert.True(t, parsed[0].Price.Equal(d("100.25")))
	assert.True(t, parsed[1].EffectiveFrom.Equal(date("2024-06-01")))
}

func TestPriceStructure_AcceptsNumericPricesAndTimestamps(t *testing.T) {
	blob := []byte(`[{"state":"MT","effectiveFrom":"2024-01-01T10:00:00Z","price":99.9}]`)
	parsed, err := domain.ParsePriceStructure(blob)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.True(t, parsed[0].EffectiveFrom.Equal(date("2024-01-01")))
	assert.True(t, parsed[0].Price.Equal(d("99.9")))
}

func TestCatalogItem_MalformedStructureDegradesToBase(t *testing.T) {
	item := domain.CatalogItem{
		PriceStructure: json.RawMessage(`{"not":"a list"}`),
		BasePrice:      d("80"),
	}
	res := item.ResolvePrice("SP", date("2024-07-01"))
	assert.True(t, res.Price.Equal(d("80")))
	assert.Equal(t, domain.PriceSourceBase, res.Source)
	assert.True(t, res.Degraded)
}

func TestCatalogItem_InactiveItemIsFlagged(t *testing.T) {
	item := domain.CatalogItem{BasePrice: d("80"), Active: true}
	assert.False(t, item.ResolvePrice("SP", date("2024-07-01")).Inactive)

	item.Active = false
	res := item.ResolvePrice("SP", date("2024-07-01"))
	assert.True(t, res.Inactive)
	assert.True(t, res.Price.Equal(d("80")), "prices are kept for inactive items")
}

func newTestCatalog(t *testing.T) *domain.Catalog {
	t.Helper()
	v, err := domain.NewValidity(date("2024-01-01"), date("2024-12-31"))
	require.NoError(t, err)
	c, err := domain.NewCatalog(domain.CatalogKey{
		SeasonID: "2024/25", DistributionPointID: "dp-1", CropID: "soja", CategoryID: "sementes",
	}, "brl", v, date("2024-01-01"))
	require.NoError(t, err)
	return c
}

func TestNewCatalog_Validation(t *testing.T) {
	c := newTestCatalog(t)
	assert.Equal(t, "BRL", c.Currency)

	v, err := domain.NewValidity(date("2024-01-01"), date("2024-12-31"))
	require.NoError(t, err)
	var inv *domain.ErrInvalidArgument
	_, err = domain.NewCatalog(domain.CatalogKey{SeasonID: "s"}, "BRL", v, time.Now())
	require.ErrorAs(t, err, &inv)
	_, err = domain.NewCatalog(c.Key, "REAL", v, time.Now())
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "currency", inv.Field)

	_, err = domain.NewValidity(date("2024-12-31"), date("2024-01-01"))
	require.ErrorAs(t, err, &inv)
}

func TestCatalog_IsValidOnIsInclusive(t *testing.T) {
	c := newTestCatalog(t)
	assert.True(t, c.IsValidOn(date("2024-01-01")))
	assert.True(t, c.IsValidOn(time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)))
	assert.False(t, c.IsValidOn(date("2025-01-01")))
}

func TestCatalog_ItemLifecycle(t *testing.T) {
	c := newTestCatalog(t)
	now := date("2024-02-01")

	item, err := c.AddItem("prod-1", []domain.PriceEntry{{EffectiveFrom: date("2024-01-01"), Price: d("90")}}, d("80"), now)
	require.NoError(t, err)
	assert.True(t, item.Active)
	assert.Equal(t, c.ID, item.CatalogID)

	var dup *domain.ErrDuplicateKey
	_, err = c.AddItem("prod-1", nil, d("10"), now)
	require.ErrorAs(t, err, &dup)

	var inv *domain.ErrInvalidArgument
	_, err = c.AddItem("prod-2", []domain.PriceEntry{{Price: d("1")}}, d("10"), now)
	require.ErrorAs(t, err, &inv)
	_, err = c.AddItem("prod-2", nil, d("-1"), now)
	require.ErrorAs(t, err, &inv)

	stored, ok := c.Item("prod-1")
	require.True(t, ok)
	require.NoError(t, stored.ReplacePriceStructure(nil, d("75"), now))
	stored.SetActive(false, now)
	assert.False(t, stored.Active)
	assert.True(t, stored.ResolvePrice("SP", now).Price.Equal(d("75")))

	removed, err := c.RemoveItem("prod-1", now)
	require.NoError(t, err)
	assert.Equal(t, item.ID, removed.ID)
	assert.Empty(t, c.Items)

	var nf *domain.ErrNotFound
	_, err = c.RemoveItem("prod-1", now)
	require.ErrorAs(t, err, &nf)
}
