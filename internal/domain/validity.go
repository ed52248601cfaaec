package domain

import "time"

// DateLayout is the wire format for calendar dates in persisted documents.
const DateLayout = "2006-01-02"

// Validity is an inclusive calendar-date window (vigência).
type Validity struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewValidity validates and normalizes a window to calendar dates.
func NewValidity(start, end time.Time) (Validity, error) {
	v := Validity{Start: DateOf(start), End: DateOf(end)}
	if start.IsZero() || end.IsZero() {
		return Validity{}, &ErrInvalidArgument{Field: "validity", Message: "start and end are required"}
	}
	if v.End.Before(v.Start) {
		return Validity{}, &ErrInvalidArgument{Field: "validity", Message: "end is before start"}
	}
	return v, nil
}

// Contains reports whether the calendar date of t lies in [Start, End].
func (v Validity) Contains(t time.Time) bool {
	d := DateOf(t)
	return !d.Before(DateOf(v.Start)) && !d.After(DateOf(v.End))
}

// DateOf truncates t to its calendar date, expressed as UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts "2006-01-02" and RFC 3339 timestamps.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}
