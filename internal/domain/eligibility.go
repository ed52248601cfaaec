package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Producer carries the attributes of a buyer that eligibility and
// pricing depend on.
type Producer struct {
	Hectares       decimal.Decimal `json:"hectares"`
	MunicipalityID int64           `json:"municipality_id"`
}

// EligibilityReason explains an eligibility decision.
type EligibilityReason string

const (
	ReasonEligible               EligibilityReason = "eligible"
	ReasonNotInVigency           EligibilityReason = "not_in_vigency"
	ReasonHectaresOutOfRange     EligibilityReason = "hectares_out_of_range"
	ReasonMunicipalityNotAllowed EligibilityReason = "municipality_not_allowed"
	ReasonComboNotOfferable      EligibilityReason = "combo_not_offerable"
)

// EligibilityResult is the accept/reject decision for one combo.
type EligibilityResult struct {
	ComboID  string            `json:"combo_id"`
	Eligible bool              `json:"eligible"`
	Reason   EligibilityReason `json:"reason"`
}

// EvaluateEligibility decides whether the producer may take the combo at
// now. Checks run in order vigency, hectares, municipality and stop at the
// first failure.
func EvaluateEligibility(c *Combo, p Producer, now time.Time) EligibilityResult {
	res := EligibilityResult{ComboID: c.ID}
	switch {
	case !c.Validity.Contains(now):
		res.Reason = ReasonNotInVigency
	case !c.Hectares.Contains(p.Hectares):
		res.Reason = ReasonHectaresOutOfRange
	case !c.Municipalities.Allows(p.MunicipalityID):
		res.Reason = ReasonMunicipalityNotAllowed
	default:
		res.Eligible = true
		res.Reason = ReasonEligible
	}
	return res
}

// EvaluateOffer is EvaluateEligibility for a combo that is about to be
// priced: a deactivated combo, or one whose status is not active, is
// rejected before the producer checks run.
func EvaluateOffer(c *Combo, p Producer, now time.Time) EligibilityResult {
	if !c.Offerable() {
		return EligibilityResult{ComboID: c.ID, Reason: ReasonComboNotOfferable}
	}
	return EvaluateEligibility(c, p, now)
}
