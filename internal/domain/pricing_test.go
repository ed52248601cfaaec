package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
)

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func TestComposeFinalPrice_BandThenCategory(t *testing.T) {
	bd, err := domain.NewBandDiscount("A", "5", d("10"), "", segNow)
	require.NoError(t, err)
	cd, err := domain.NewComboCategoriaDesconto("5", domain.DiscountPercentage, d("5"), domain.NewInterval(d("0"), d("200")))
	require.NoError(t, err)

	out := domain.ComposeFinalPrice(domain.CompositionInput{
		CatalogPrice:     dp("100"),
		Hectares:         d("50"),
		BandDiscount:     bd,
		CategoryDiscount: &cd,
	})

	require.Len(t, out.Steps, 2)
	assert.Equal(t, domain.StepBandDiscount, out.Steps[0].Name)
	assert.True(t, out.Steps[0].After.Equal(d("90")))
	assert.Equal(t, domain.StepCategoryDiscount, out.Steps[1].Name)
	assert.True(t, out.Final.Equal(d("85.5")), "got %s", out.Final)
}

func TestComposeFinalPrice_SkipsMissingAndInapplicable(t *testing.T) {
	bd, err := domain.NewBandDiscount("A", "5", d("10"), "", segNow)
	require.NoError(t, err)
	bd.Active = false
	cd, err := domain.NewComboCategoriaDesconto("5", domain.DiscountPercentage, d("5"), domain.NewInterval(d("0"), d("20")))
	require.NoError(t, err)

	out := domain.ComposeFinalPrice(domain.CompositionInput{
		CatalogPrice:     dp("100"),
		Hectares:         d("50"),
		BandDiscount:     bd,
		CategoryDiscount: &cd,
	})
	assert.Empty(t, out.Steps)
	assert.True(t, out.Final.Equal(d("100")))
}

func TestComposeFinalPrice_FixedAndPerHectareFloorAtZero(t *testing.T) {
	fixed, err := domain.NewComboCategoriaDesconto("5", domain.DiscountFixedAmount, d("150"), domain.NewOpenInterval(d("0")))
	require.NoError(t, err)
	out := domain.ComposeFinalPrice(domain.CompositionInput{CatalogPrice: dp("100"), Hectares: d("10"), CategoryDiscount: &fixed})
	assert.True(t, out.Final.IsZero(), "got %s", out.Final)

	perHa, err := domain.NewComboCategoriaDesconto("5", domain.DiscountPerHectare, d("0.5"), domain.NewOpenInterval(d("0")))
	require.NoError(t, err)
	out = domain.ComposeFinalPrice(domain.CompositionInput{CatalogPrice: dp("100"), Hectares: d("40"), CategoryDiscount: &perHa})
	assert.True(t, out.Final.Equal(d("80")), "got %s", out.Final)

	out = domain.ComposeFinalPrice(domain.CompositionInput{CatalogPrice: dp("100"), Hectares: d("400"), CategoryDiscount: &perHa})
	assert.True(t, out.Final.IsZero(), "got %s", out.Final)
}

func TestComposeFinalPrice_DeliveryPointLast(t *testing.T) {
	bd, err := domain.NewBandDiscount("A", "5", d("10"), "", segNow)
	require.NoError(t, err)
	local := domain.ComboLocalRecebimento{DeliveryPointID: "dp-1", PriceAddOn: d("10"), DiscountPct: d("50")}

	out := domain.ComposeFinalPrice(domain.CompositionInput{
		CatalogPrice:  dp("100"),
		Hectares:      d("50"),
		BandDiscount:  bd,
		DeliveryPoint: &local,
	})

	names := make([]string, 0, len(out.Steps))
	for _, s := range out.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{domain.StepBandDiscount, domain.StepDeliveryAddOn, domain.StepDeliveryDiscount}, names)
	// (100 * 0.9 + 10) * 0.5
	assert.True(t, out.Final.Equal(d("50")), "got %s", out.Final)
}

func TestComposeFinalPrice_BaseFallbacks(t *testing.T) {
	out := domain.ComposeFinalPrice(domain.CompositionInput{FallbackUnitPrice: dp("42.123")})
	assert.True(t, out.BaseFound)
	assert.True(t, out.Final.Equal(d("42.12")))

	out = domain.ComposeFinalPrice(domain.CompositionInput{CatalogPrice: dp("10"), FallbackUnitPrice: dp("42")})
	assert.True(t, out.BasePrice.Equal(d("10")), "catalog price wins over the fallback")

	out = domain.ComposeFinalPrice(domain.CompositionInput{})
	assert.False(t, out.BaseFound)
	assert.True(t, out.Final.IsZero())
}

func TestComposeFinalPrice_NeverNegative(t *testing.T) {
	for _, pct := range []string{"0", "33.3", "99.99", "100"} {
		bd, err := domain.NewBandDiscount("A", "5", d(pct), "", segNow)
		require.NoError(t, err)
		fixed, err := domain.NewComboCategoriaDesconto("5", domain.DiscountFixedAmount, d("1000"), domain.NewOpenInterval(d("0")))
		require.NoError(t, err)
		out := domain.ComposeFinalPrice(domain.CompositionInput{
			CatalogPrice: dp("100"), Hectares: d("1"), BandDiscount: bd, CategoryDiscount: &fixed,
		})
		assert.False(t, out.Final.IsNegative())
	}
}
