package domain

import (
	"github.com/shopspring/decimal"
)

// Interval is a closed area (or hectare) range. A nil Max means the range
// is unbounded above.
type Interval struct {
	Min decimal.Decimal  `json:"min"`
	Max *decimal.Decimal `json:"max,omitempty"`
}

// NewInterval builds a bounded interval.
func NewInterval(min, max decimal.Decimal) Interval {
	return Interval{Min: min, Max: &max}
}

// NewOpenInterval builds an interval with no upper bound.
func NewOpenInterval(min decimal.Decimal) Interval {
	return Interval{Min: min}
}

// Bounded reports whether the interval has a finite upper bound.
func (i Interval) Bounded() bool {
	return i.Max != nil
}

// Validate rejects negative lower bounds and inverted ranges.
func (i Interval) Validate(field string) error {
	if i.Min.IsNegative() {
		return &ErrInvalidArgument{Field: field, Message: "minimum must be >= 0"}
	}
	if i.Max != nil && i.Max.LessThan(i.Min) {
		return &ErrInvalidArgument{
			Field:   field,
			Message: "maximum " + i.Max.String() + " is lower than minimum " + i.Min.String(),
		}
	}
	return nil
}

// Contains reports whether x lies in [Min, Max], treating a nil Max as +inf.
func (i Interval) Contains(x decimal.Decimal) bool {
	if x.LessThan(i.Min) {
		return false
	}
	return i.Max == nil || x.LessThanOrEqual(*i.Max)
}

// Overlaps reports whether two closed intervals intersect:
// a.Min <= b.Max and b.Min <= a.Max, where a missing Max is never below
// any finite value.
func (i Interval) Overlaps(other Interval) bool {
	return leqUpper(i.Min, other.Max) && leqUpper(other.Min, i.Max)
}

func leqUpper(x decimal.Decimal, upper *decimal.Decimal) bool {
	return upper == nil || x.LessThanOrEqual(*upper)
}

// String renders the interval as "[min, max]" or "[min, +inf)".
func (i Interval) String() string {
	if i.Max == nil {
		return "[" + i.Min.String() + ", +inf)"
	}
	return "[" + i.Min.String() + ", " + i.Max.String() + "]"
}
