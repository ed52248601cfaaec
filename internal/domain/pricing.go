package domain

import (
	"github.com/shopspring/decimal"
)

// CompositionInput is everything the discount composer needs, already
// loaded. Nil pointers mean the lookup found nothing.
type CompositionInput struct {
	CatalogPrice      *decimal.Decimal
	FallbackUnitPrice *decimal.Decimal
	Hectares          decimal.Decimal
	BandDiscount      *BandDiscount
	CategoryDiscount  *ComboCategoriaDesconto
	DeliveryPoint     *ComboLocalRecebimento
}

// PriceStep records one adjustment of the running price.
type PriceStep struct {
	Name   string          `json:"name"`
	Detail string          `json:"detail,omitempty"`
	Before decimal.Decimal `json:"before"`
	After  decimal.Decimal `json:"after"`
}

// PriceBreakdown is the composed price plus the steps that produced it.
type PriceBreakdown struct {
	BasePrice decimal.Decimal `json:"base_price"`
	BaseFound bool            `json:"base_found"`
	Steps     []PriceStep     `json:"steps"`
	Final     decimal.Decimal `json:"final"`
}

// Step names used in PriceBreakdown.
const (
	StepBandDiscount     = "band_discount"
	StepCategoryDiscount = "combo_category_discount"
	StepDeliveryAddOn    = "delivery_point_add_on"
	StepDeliveryDiscount = "delivery_point_discount"
)

// ComposeFinalPrice applies, in order: the band discount, the combo
// category discount (only if its hectare range contains the producer's
// area) and the delivery point adjustment. Each step works on the running
// price left by the previous one. A missing input skips its step. The
// result is never negative.
func ComposeFinalPrice(in CompositionInput) PriceBreakdown {
	var out PriceBreakdown
	switch {
	case in.CatalogPrice != nil:
		out.BasePrice, out.BaseFound = *in.CatalogPrice, true
	case in.FallbackUnitPrice != nil:
		out.BasePrice, out.BaseFound = *in.FallbackUnitPrice, true
	}

	price := out.BasePrice
	record := func(name, detail string, next decimal.Decimal) {
		next = floorZero(next)
		out.Steps = append(out.Steps, PriceStep{Name: name, Detail: detail, Before: price, After: next})
		price = next
	}

	if bd := in.BandDiscount; bd != nil && bd.Active {
		record(StepBandDiscount, bd.Percentage.String()+"%", applyPercentage(price, bd.Percentage))
	}

	if cd := in.CategoryDiscount; cd != nil && cd.Hectares.Contains(in.Hectares) {
		switch cd.Kind {
		case DiscountPercentage:
			record(StepCategoryDiscount, cd.Percentage.String()+"%", applyPercentage(price, cd.Percentage))
		case DiscountFixedAmount:
			record(StepCategoryDiscount, "-"+cd.FixedAmount.String(), price.Sub(cd.FixedAmount))
		case DiscountPerHectare:
			record(StepCategoryDiscount, "-"+cd.PerHectare.String()+"/ha", price.Sub(cd.PerHectare.Mul(in.Hectares)))
		}
	}

	if dp := in.DeliveryPoint; dp != nil {
		if !dp.PriceAddOn.IsZero() {
			record(StepDeliveryAddOn, "+"+dp.PriceAddOn.String(), price.Add(dp.PriceAddOn))
		}
		if !dp.DiscountPct.IsZero() {
			record(StepDeliveryDiscount, dp.DiscountPct.String()+"%", applyPercentage(price, dp.DiscountPct))
		}
	}

	out.Final = floorZero(price).Round(2)
	return out
}

// applyPercentage returns price * (1 - pct/100).
func applyPercentage(price, pct decimal.Decimal) decimal.Decimal {
	return price.Mul(hundred.Sub(pct)).Div(hundred)
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
