package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================
// Segmentation
// ============================================================

// Segmentation is a supplier-owned set of hectare bands plus the territory
// it applies to. At most one active segmentation per supplier is default.
type Segmentation struct {
	ID          string         `json:"id"`
	SupplierID  string         `json:"supplier_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Active      bool           `json:"active"`
	IsDefault   bool           `json:"is_default"`
	Territory   TerritoryScope `json:"territory"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`

	// TerritoryDegraded is set by a store whose territory document failed
	// to decode; Territory is then the empty scope.
	TerritoryDegraded bool `json:"-"`
}

// NewSegmentation builds an active, non-default segmentation.
func NewSegmentation(supplierID, name, description string, territory TerritoryScope, now time.Time) (*Segmentation, error) {
	if supplierID == "" {
		return nil, &ErrInvalidArgument{Field: "supplier_id", Message: "required"}
	}
	if name == "" {
		return nil, &ErrInvalidArgument{Field: "name", Message: "required"}
	}
	return &Segmentation{
		ID:          uuid.New().String(),
		SupplierID:  supplierID,
		Name:        name,
		Description: description,
		Active:      true,
		Territory:   territory.normalized(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Rename updates the descriptive fields.
func (s *Segmentation) Rename(name, description string, now time.Time) error {
	if name == "" {
		return &ErrInvalidArgument{Field: "name", Message: "required"}
	}
	s.Name = name
	s.Description = description
	s.UpdatedAt = now
	return nil
}

// ReplaceTerritory swaps the territorial scope wholesale.
func (s *Segmentation) ReplaceTerritory(t TerritoryScope, now time.Time) {
	s.Territory = t.normalized()
	s.UpdatedAt = now
}

// MarkDefault flags the segmentation as the supplier default. Clearing the
// other defaults is the caller's job, inside the same transaction.
func (s *Segmentation) MarkDefault(now time.Time) error {
	if !s.Active {
		return &ErrInvalidArgument{Field: "is_default", Message: "inactive segmentation cannot be default"}
	}
	s.IsDefault = true
	s.UpdatedAt = now
	return nil
}

// UnmarkDefault clears the default flag.
func (s *Segmentation) UnmarkDefault(now time.Time) {
	s.IsDefault = false
	s.UpdatedAt = now
}

// Deactivate disables the segmentation; an inactive one is never default.
func (s *Segmentation) Deactivate(now time.Time) {
	s.Active = false
	s.IsDefault = false
	s.UpdatedAt = now
}

// ============================================================
// TerritoryScope
// ============================================================

// TerritoryScope lists the states and municipalities a segmentation
// applies to. An empty scope means no territorial restriction.
type TerritoryScope struct {
	States         []int64 `json:"estados"`
	Municipalities []int64 `json:"municipios"`
}

// IsEmpty reports whether no state or municipality is listed.
func (t TerritoryScope) IsEmpty() bool {
	return len(t.States) == 0 && len(t.Municipalities) == 0
}

// CoversMunicipality reports an explicit municipality listing.
func (t TerritoryScope) CoversMunicipality(municipalityID int64) bool {
	return slices.Contains(t.Municipalities, municipalityID)
}

// CoversState reports an explicit state listing.
func (t TerritoryScope) CoversState(stateID int64) bool {
	return slices.Contains(t.States, stateID)
}

// Covers reports whether the scope applies to the municipality, directly
// or through its state. An empty scope covers everything.
func (t TerritoryScope) Covers(stateID, municipalityID int64) bool {
	if t.IsEmpty() {
		return true
	}
	return t.CoversMunicipality(municipalityID) || (stateID != 0 && t.CoversState(stateID))
}

func (t TerritoryScope) normalized() TerritoryScope {
	return TerritoryScope{States: uniqueSorted(t.States), Municipalities: uniqueSorted(t.Municipalities)}
}

// ParseTerritoryScope decodes a persisted scope. Malformed documents
// degrade to an empty scope; the error is returned for logging only.
func ParseTerritoryScope(blob []byte) (TerritoryScope, error) {
	trimmed := bytes.TrimSpace(blob)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return TerritoryScope{}, nil
	}
	var t TerritoryScope
	if err := json.Unmarshal(trimmed, &t); err != nil {
		return TerritoryScope{}, fmt.Errorf("decode territory scope: %w", err)
	}
	return t.normalized(), nil
}

// Encode renders the scope in its persisted shape. Empty lists are
// written as [] so the document round-trips unchanged.
func (t TerritoryScope) Encode() (json.RawMessage, error) {
	n := t.normalized()
	if n.States == nil {
		n.States = []int64{}
	}
	if n.Municipalities == nil {
		n.Municipalities = []int64{}
	}
	return json.Marshal(n)
}

// ============================================================
// SegmentationBand (Grupo)
// ============================================================

// SegmentationBand is a hectare interval inside a segmentation. Active
// bands of the same segmentation never overlap.
type SegmentationBand struct {
	ID             string    `json:"id"`
	SegmentationID string    `json:"segmentation_id"`
	Name           string    `json:"name"`
	Area           Interval  `json:"area"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewSegmentationBand validates the interval and builds an active band.
// Overlap is checked by the caller against the stored bands.
func NewSegmentationBand(segmentationID, name string, area Interval, now time.Time) (*SegmentationBand, error) {
	if segmentationID == "" {
		return nil, &ErrInvalidArgument{Field: "segmentation_id", Message: "required"}
	}
	if name == "" {
		return nil, &ErrInvalidArgument{Field: "name", Message: "required"}
	}
	if err := area.Validate("area"); err != nil {
		return nil, err
	}
	return &SegmentationBand{
		ID:             uuid.New().String(),
		SegmentationID: segmentationID,
		Name:           name,
		Area:           area,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Update replaces name and interval.
func (b *SegmentationBand) Update(name string, area Interval, now time.Time) error {
	if name == "" {
		return &ErrInvalidArgument{Field: "name", Message: "required"}
	}
	if err := area.Validate("area"); err != nil {
		return err
	}
	b.Name = name
	b.Area = area
	b.UpdatedAt = now
	return nil
}

// SetActive toggles the band.
func (b *SegmentationBand) SetActive(active bool, now time.Time) {
	b.Active = active
	b.UpdatedAt = now
}

// FindOverlappingBand returns the first active band in existing whose
// interval intersects candidate, skipping excludeID (the band being
// updated). Returns nil when there is no overlap.
func FindOverlappingBand(candidate Interval, existing []SegmentationBand, excludeID string) *SegmentationBand {
	for i := range existing {
		b := &existing[i]
		if !b.Active || b.ID == excludeID {
			continue
		}
		if candidate.Overlaps(b.Area) {
			return b
		}
	}
	return nil
}

// FindBandForArea returns the active band containing area and the number
// of active bands that matched. Matches are ordered by lower bound then id,
// so the returned band is deterministic even if the non-overlap invariant
// was broken upstream.
func FindBandForArea(bands []SegmentationBand, area decimal.Decimal) (*SegmentationBand, int) {
	var matches []SegmentationBand
	for _, b := range bands {
		if b.Active && b.Area.Contains(area) {
			matches = append(matches, b)
		}
	}
	if len(matches) == 0 {
		return nil, 0
	}
	sort.Slice(matches, func(i, j int) bool {
		if c := matches[i].Area.Min.Cmp(matches[j].Area.Min); c != 0 {
			return c < 0
		}
		return matches[i].ID < matches[j].ID
	})
	first := matches[0]
	return &first, len(matches)
}

// ============================================================
// BandDiscount (GrupoSegmentacao)
// ============================================================

// BandDiscount is a per-category percentage discount attached to a band.
// Unique per (band, category).
type BandDiscount struct {
	ID         string          `json:"id"`
	BandID     string          `json:"band_id"`
	CategoryID string          `json:"category_id"`
	Percentage decimal.Decimal `json:"percentage"`
	Active     bool            `json:"active"`
	Notes      string          `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

var hundred = decimal.NewFromInt(100)

// ValidatePercentage requires 0 <= pct <= 100.
func ValidatePercentage(field string, pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return &ErrInvalidArgument{Field: field, Message: "must be between 0 and 100, got " + pct.String()}
	}
	return nil
}

// NewBandDiscount validates and builds an active discount.
func NewBandDiscount(bandID, categoryID string, pct decimal.Decimal, notes string, now time.Time) (*BandDiscount, error) {
	if bandID == "" {
		return nil, &ErrInvalidArgument{Field: "band_id", Message: "required"}
	}
	if categoryID == "" {
		return nil, &ErrInvalidArgument{Field: "category_id", Message: "required"}
	}
	if err := ValidatePercentage("percentage", pct); err != nil {
		return nil, err
	}
	return &BandDiscount{
		ID:         uuid.New().String(),
		BandID:     bandID,
		CategoryID: categoryID,
		Percentage: pct,
		Active:     true,
		Notes:      notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Update changes category, percentage, active flag and notes.
func (d *BandDiscount) Update(categoryID string, pct decimal.Decimal, active bool, notes string, now time.Time) error {
	if categoryID == "" {
		return &ErrInvalidArgument{Field: "category_id", Message: "required"}
	}
	if err := ValidatePercentage("percentage", pct); err != nil {
		return err
	}
	d.CategoryID = categoryID
	d.Percentage = pct
	d.Active = active
	d.Notes = notes
	d.UpdatedAt = now
	return nil
}

func uniqueSorted(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
