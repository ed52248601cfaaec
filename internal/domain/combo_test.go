package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
)

func comboAttrs(t *testing.T) domain.ComboAttributes {
	t.Helper()
	v, err := domain.NewValidity(date("2024-01-01"), date("2024-12-31"))
	require.NoError(t, err)
	return domain.ComboAttributes{
		Name:            "Pacote Soja Safra",
		Hectares:        domain.NewInterval(d("10"), d("200")),
		Validity:        v,
		PaymentModality: domain.PaymentHarvest,
	}
}

func newTestCombo(t *testing.T, mutate func(*domain.ComboAttributes)) *domain.Combo {
	t.Helper()
	attrs := comboAttrs(t)
	if mutate != nil {
		mutate(&attrs)
	}
	c, err := domain.NewCombo("sup-1", "2024/25", attrs, date("2024-01-01"))
	require.NoError(t, err)
	return c
}

func TestNewCombo_Defaults(t *testing.T) {
	c := newTestCombo(t, nil)
	assert.Equal(t, domain.ComboStatusDraft, c.Status)
	assert.True(t, c.Active)
}

func TestNewCombo_Validation(t *testing.T) {
	var inv *domain.ErrInvalidArgument

	attrs := comboAttrs(t)
	attrs.Hectares = domain.NewOpenInterval(d("10"))
	_, err := domain.NewCombo("sup", "season", attrs, time.Now())
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "hectares", inv.Field)

	attrs = comboAttrs(t)
	attrs.PaymentModality = "pix"
	_, err = domain.NewCombo("sup", "season", attrs, time.Now())
	require.ErrorAs(t, err, &inv)

	attrs = comboAttrs(t)
	attrs.Name = ""
	_, err = domain.NewCombo("sup", "season", attrs, time.Now())
	require.ErrorAs(t, err, &inv)

	c := newTestCombo(t, nil)
	require.ErrorAs(t, c.SetStatus("archived", time.Now()), &inv)
	require.NoError(t, c.SetStatus(domain.ComboStatusSuspended, time.Now()))
}

func TestEvaluateEligibility_Vigency(t *testing.T) {
	c := newTestCombo(t, nil)
	p := domain.Producer{Hectares: d("150"), MunicipalityID: 3550308}

	res := domain.EvaluateEligibility(c, p, date("2024-05-01"))
	assert.True(t, res.Eligible)
	assert.Equal(t, domain.ReasonEligible, res.Reason)

	res = domain.EvaluateEligibility(c, p, date("2025-01-01"))
	assert.False(t, res.Eligible)
	assert.Equal(t, domain.ReasonNotInVigency, res.Reason)

	res = domain.EvaluateEligibility(c, p, time.Date(2024, 12, 31, 22, 0, 0, 0, time.UTC))
	assert.True(t, res.Eligible, "end date is inclusive")
}

func TestEvaluateEligibility_ShortCircuitOrder(t *testing.T) {
	c := newTestCombo(t, func(a *domain.ComboAttributes) {
		a.Municipalities = domain.MunicipalityAllowList{Municipalities: []int64{5103403}}
	})
	p := domain.Producer{Hectares: d("5"), MunicipalityID: 3550308}

	assert.Equal(t, domain.ReasonNotInVigency, domain.EvaluateEligibility(c, p, date("2023-06-01")).Reason)
	assert.Equal(t, domain.ReasonHectaresOutOfRange, domain.EvaluateEligibility(c, p, date("2024-06-01")).Reason)

	p.Hectares = d("50")
	assert.Equal(t, domain.ReasonMunicipalityNotAllowed, domain.EvaluateEligibility(c, p, date("2024-06-01")).Reason)

	p.MunicipalityID = 5103403
	assert.True(t, domain.EvaluateEligibility(c, p, date("2024-06-01")).Eligible)
}

func TestEvaluateEligibility_MonotonicInsideRange(t *testing.T) {
	c := newTestCombo(t, nil)
	on := date("2024-05-01")
	step := decimal.RequireFromString("0.25")

	for h := c.Hectares.Min; h.LessThanOrEqual(*c.Hectares.Max); h = h.Add(step) {
		res := domain.EvaluateEligibility(c, domain.Producer{Hectares: h}, on)
		require.True(t, res.Eligible, "hectares %s", h)
	}
	assert.False(t, domain.EvaluateEligibility(c, domain.Producer{Hectares: d("200.01")}, on).Eligible)
	assert.False(t, domain.EvaluateEligibility(c, domain.Producer{Hectares: d("9.99")}, on).Eligible)
}

func TestCombo_ItemPermissions(t *testing.T) {
	now := date("2024-02-01")
	c := newTestCombo(t, nil)
	item, err := c.AddItem(domain.ComboItemInput{
		ProductID: "p1", CategoryID: "5", Quantity: d("2"), UnitPrice: d("100"),
	}, now)
	require.NoError(t, err)

	var forbidden *domain.ErrForbidden
	_, err = c.UpdateItem(item.ID, domain.ComboItemInput{ProductID: "p1", CategoryID: "5", Quantity: d("3")}, now)
	require.ErrorAs(t, err, &forbidden)
	require.ErrorAs(t, c.RemoveItem(item.ID, now), &forbidden)
	assert.Len(t, c.Items, 1)

	c.AllowItemEdit = true
	c.AllowItemRemoval = true
	updated, err := c.UpdateItem(item.ID, domain.ComboItemInput{ProductID: "p1", CategoryID: "5", Quantity: d("3")}, now)
	require.NoError(t, err)
	assert.True(t, updated.Quantity.Equal(d("3")))

	var nf *domain.ErrNotFound
	require.ErrorAs(t, c.RemoveItem("missing", now), &nf)
	require.NoError(t, c.RemoveItem(item.ID, now))
	assert.Empty(t, c.Items)
}

func TestCombo_SortedItems(t *testing.T) {
	now := date("2024-02-01")
	c := newTestCombo(t, nil)
	for i, order := range []int{3, 1, 2} {
		_, err := c.AddItem(domain.ComboItemInput{
			ProductID: string(rune('a' + i)), CategoryID: "5", Quantity: d("1"), DisplayOrder: order,
		}, now)
		require.NoError(t, err)
	}
	items := c.SortedItems()
	assert.Equal(t, []string{"b", "c", "a"}, []string{items[0].ProductID, items[1].ProductID, items[2].ProductID})
}

func TestCombo_LocaisRecebimento(t *testing.T) {
	now := date("2024-02-01")
	c := newTestCombo(t, nil)

	_, err := c.AddLocalRecebimento("dp-1", d("5"), d("0"), true, now)
	require.NoError(t, err)
	_, err = c.AddLocalRecebimento("dp-2", d("0"), d("2"), true, now)
	require.NoError(t, err)

	def, ok := c.DefaultLocalRecebimento()
	require.True(t, ok)
	assert.Equal(t, "dp-2", def.DeliveryPointID, "a new default replaces the previous one")

	var dup *domain.ErrDuplicateKey
	_, err = c.AddLocalRecebimento("dp-1", d("1"), d("0"), false, now)
	require.ErrorAs(t, err, &dup)

	require.NoError(t, c.SetDefaultLocalRecebimento("dp-1", now))
	def, _ = c.DefaultLocalRecebimento()
	assert.Equal(t, "dp-1", def.DeliveryPointID)

	require.NoError(t, c.RemoveLocalRecebimento("dp-1", now))
	_, ok = c.DefaultLocalRecebimento()
	assert.False(t, ok)
}

func TestCombo_CategoriaDescontoStoresValueByKind(t *testing.T) {
	now := date("2024-02-01")
	c := newTestCombo(t, nil)

	pd, err := domain.NewComboCategoriaDesconto("5", domain.DiscountPerHectare, d("1.5"), domain.NewInterval(d("0"), d("200")))
	require.NoError(t, err)
	assert.True(t, pd.PerHectare.Equal(d("1.5")))
	assert.True(t, pd.Percentage.IsZero())
	assert.True(t, pd.FixedAmount.IsZero())
	assert.True(t, pd.Value().Equal(d("1.5")))
	require.NoError(t, c.AddCategoriaDesconto(pd, now))

	again, err := domain.NewComboCategoriaDesconto("5", domain.DiscountFixedAmount, d("10"), domain.NewOpenInterval(d("0")))
	require.NoError(t, err)
	var dup *domain.ErrDuplicateKey
	require.ErrorAs(t, c.AddCategoriaDesconto(again, now), &dup)

	var inv *domain.ErrInvalidArgument
	_, err = domain.NewComboCategoriaDesconto("6", domain.DiscountPercentage, d("120"), domain.NewOpenInterval(d("0")))
	require.ErrorAs(t, err, &inv)
	_, err = domain.NewComboCategoriaDesconto("6", "bogus", d("1"), domain.NewOpenInterval(d("0")))
	require.ErrorAs(t, err, &inv)
}

func TestMunicipalityAllowList_RoundTrip(t *testing.T) {
	list := domain.MunicipalityAllowList{Municipalities: []int64{5103403, 3550308}}
	blob, err := list.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"municipios":[3550308,5103403]}`, string(blob))

	parsed, err := domain.ParseMunicipalityAllowList(blob)
	require.NoError(t, err)
	assert.True(t, parsed.Allows(3550308))
	assert.False(t, parsed.Allows(1))

	blob, err = domain.MunicipalityAllowList{}.Encode()
	require.NoError(t, err)
	assert.Equal(t, "null", string(blob))

	parsed, err = domain.ParseMunicipalityAllowList([]byte(`[1,2`))
	require.Error(t, err)
	assert.True(t, parsed.Allows(42), "malformed list means no restriction")
}

func TestEvaluateOffer_RequiresActiveStatus(t *testing.T) {
	c := newTestCombo(t, nil)
	p := domain.Producer{Hectares: d("150")}
	now := date("2024-05-01")

	res := domain.EvaluateOffer(c, p, now)
	assert.False(t, res.Eligible, "draft combos are not offered")
	assert.Equal(t, domain.ReasonComboNotOfferable, res.Reason)
	assert.True(t, domain.EvaluateEligibility(c, p, now).Eligible)

	require.NoError(t, c.SetStatus(domain.ComboStatusActive, now))
	assert.True(t, domain.EvaluateOffer(c, p, now).Eligible)

	p.Hectares = d("5")
	assert.Equal(t, domain.ReasonHectaresOutOfRange, domain.EvaluateOffer(c, p, now).Reason)

	c.Deactivate(now)
	assert.Equal(t, domain.ReasonComboNotOfferable, domain.EvaluateOffer(c, p, now).Reason)
}
