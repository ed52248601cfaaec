package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================
// Combo (bundle offer)
// ============================================================

// ComboStatus values are owned by the commercial workflow.
type ComboStatus string

const (
	ComboStatusDraft     ComboStatus = "draft"
	ComboStatusActive    ComboStatus = "active"
	ComboStatusSuspended ComboStatus = "suspended"
)

// Valid reports whether s is a known status.
func (s ComboStatus) Valid() bool {
	switch s {
	case ComboStatusDraft, ComboStatusActive, ComboStatusSuspended:
		return true
	}
	return false
}

// PaymentModality is how the producer pays for the combo.
type PaymentModality string

const (
	PaymentCash    PaymentModality = "cash"    // à vista
	PaymentTerm    PaymentModality = "term"    // a prazo
	PaymentHarvest PaymentModality = "harvest" // safra
	PaymentBarter  PaymentModality = "barter"  // troca por grãos
)

// Valid reports whether m is a known modality.
func (m PaymentModality) Valid() bool {
	switch m {
	case PaymentCash, PaymentTerm, PaymentHarvest, PaymentBarter:
		return true
	}
	return false
}

// Combo is a supplier+season bundle offer. Its children are owned by the
// combo and only change through its methods.
type Combo struct {
	ID                 string                   `json:"id"`
	SupplierID         string                   `json:"supplier_id"`
	SeasonID           string                   `json:"season_id"`
	Name               string                   `json:"name"`
	Description        string                   `json:"description,omitempty"`
	Hectares           Interval                 `json:"hectares"`
	Validity           Validity                 `json:"validity"`
	PaymentModality    PaymentModality          `json:"payment_modality"`
	Status             ComboStatus              `json:"status"`
	Active             bool                     `json:"active"`
	Municipalities     MunicipalityAllowList    `json:"municipalities"`
	AllowItemEdit      bool                     `json:"allow_item_edit"`
	AllowItemRemoval   bool                     `json:"allow_item_removal"`
	Items              []ComboItem              `json:"items"`
	LocaisRecebimento  []ComboLocalRecebimento  `json:"locais_recebimento"`
	CategoriasDesconto []ComboCategoriaDesconto `json:"categorias_desconto"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// ComboAttributes are the core, directly editable combo fields.
type ComboAttributes struct {
	Name             string
	Description      string
	Hectares         Interval
	Validity         Validity
	PaymentModality  PaymentModality
	Municipalities   MunicipalityAllowList
	AllowItemEdit    bool
	AllowItemRemoval bool
}

func (a ComboAttributes) validate() error {
	if a.Name == "" {
		return &ErrInvalidArgument{Field: "name", Message: "required"}
	}
	if !a.Hectares.Bounded() {
		return &ErrInvalidArgument{Field: "hectares", Message: "maximum hectares is required"}
	}
	if err := a.Hectares.Validate("hectares"); err != nil {
		return err
	}
	if a.Validity.Start.IsZero() || a.Validity.End.IsZero() || a.Validity.End.Before(a.Validity.Start) {
		return &ErrInvalidArgument{Field: "validity", Message: "start and end are required and end must not precede start"}
	}
	if !a.PaymentModality.Valid() {
		return &ErrInvalidArgument{Field: "payment_modality", Message: fmt.Sprintf("unknown modality %q", a.PaymentModality)}
	}
	return nil
}

// NewCombo builds a draft, active combo.
func NewCombo(supplierID, seasonID string, attrs ComboAttributes, now time.Time) (*Combo, error) {
	if supplierID == "" {
		return nil, &ErrInvalidArgument{Field: "supplier_id", Message: "required"}
	}
	if seasonID == "" {
		return nil, &ErrInvalidArgument{Field: "season_id", Message: "required"}
	}
	if err := attrs.validate(); err != nil {
		return nil, err
	}
	c := &Combo{
		ID:         uuid.New().String(),
		SupplierID: supplierID,
		SeasonID:   seasonID,
		Status:     ComboStatusDraft,
		Active:     true,
		CreatedAt:  now,
	}
	c.apply(attrs, now)
	return c, nil
}

// UpdateAttributes replaces the core fields. Name uniqueness is checked by
// the caller against the store.
func (c *Combo) UpdateAttributes(attrs ComboAttributes, now time.Time) error {
	if err := attrs.validate(); err != nil {
		return err
	}
	c.apply(attrs, now)
	return nil
}

func (c *Combo) apply(a ComboAttributes, now time.Time) {
	c.Name = a.Name
	c.Description = a.Description
	c.Hectares = a.Hectares
	c.Validity = Validity{Start: DateOf(a.Validity.Start), End: DateOf(a.Validity.End)}
	c.PaymentModality = a.PaymentModality
	c.Municipalities = a.Municipalities.normalized()
	c.AllowItemEdit = a.AllowItemEdit
	c.AllowItemRemoval = a.AllowItemRemoval
	c.UpdatedAt = now
}

// SetStatus moves the combo to another workflow status.
func (c *Combo) SetStatus(s ComboStatus, now time.Time) error {
	if !s.Valid() {
		return &ErrInvalidArgument{Field: "status", Message: fmt.Sprintf("unknown status %q", s)}
	}
	c.Status = s
	c.UpdatedAt = now
	return nil
}

// Offerable reports whether the combo may be offered to producers at all.
func (c *Combo) Offerable() bool {
	return c.Active && c.Status == ComboStatusActive
}

// Deactivate retires the combo; its name becomes reusable.
func (c *Combo) Deactivate(now time.Time) {
	c.Active = false
	c.UpdatedAt = now
}

// ============================================================
// ComboItem
// ============================================================

// ComboItem is a line of the bundle.
type ComboItem struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"product_id"`
	CategoryID   string          `json:"category_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	DiscountPct  decimal.Decimal `json:"discount_pct"`
	Mandatory    bool            `json:"mandatory"`
	DisplayOrder int             `json:"display_order"`
}

// ComboItemInput carries the editable item fields.
type ComboItemInput struct {
	ProductID    string
	CategoryID   string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	DiscountPct  decimal.Decimal
	Mandatory    bool
	DisplayOrder int
}

func (in ComboItemInput) validate() error {
	if in.ProductID == "" {
		return &ErrInvalidArgument{Field: "product_id", Message: "required"}
	}
	if in.CategoryID == "" {
		return &ErrInvalidArgument{Field: "category_id", Message: "required"}
	}
	if !in.Quantity.IsPositive() {
		return &ErrInvalidArgument{Field: "quantity", Message: "must be > 0"}
	}
	if in.UnitPrice.IsNegative() {
		return &ErrInvalidArgument{Field: "unit_price", Message: "must be >= 0"}
	}
	return ValidatePercentage("discount_pct", in.DiscountPct)
}

// AddItem appends a line item.
func (c *Combo) AddItem(in ComboItemInput, now time.Time) (ComboItem, error) {
	if err := in.validate(); err != nil {
		return ComboItem{}, err
	}
	item := ComboItem{ID: uuid.New().String()}
	item.apply(in)
	c.Items = append(c.Items, item)
	c.UpdatedAt = now
	return item, nil
}

// UpdateItem edits a line item; requires AllowItemEdit.
func (c *Combo) UpdateItem(itemID string, in ComboItemInput, now time.Time) (ComboItem, error) {
	if !c.AllowItemEdit {
		return ComboItem{}, &ErrForbidden{Action: "edit items of combo " + c.ID}
	}
	idx := c.itemIndex(itemID)
	if idx < 0 {
		return ComboItem{}, &ErrNotFound{Resource: "combo_item", ID: itemID}
	}
	if err := in.validate(); err != nil {
		return ComboItem{}, err
	}
	c.Items[idx].apply(in)
	c.UpdatedAt = now
	return c.Items[idx], nil
}

// RemoveItem drops a line item; requires AllowItemRemoval.
func (c *Combo) RemoveItem(itemID string, now time.Time) error {
	if !c.AllowItemRemoval {
		return &ErrForbidden{Action: "remove items of combo " + c.ID}
	}
	idx := c.itemIndex(itemID)
	if idx < 0 {
		return &ErrNotFound{Resource: "combo_item", ID: itemID}
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	c.UpdatedAt = now
	return nil
}

// SortedItems returns the items in display order.
func (c *Combo) SortedItems() []ComboItem {
	items := make([]ComboItem, len(c.Items))
	copy(items, c.Items)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].DisplayOrder != items[j].DisplayOrder {
			return items[i].DisplayOrder < items[j].DisplayOrder
		}
		return items[i].ID < items[j].ID
	})
	return items
}

func (c *Combo) itemIndex(itemID string) int {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func (it *ComboItem) apply(in ComboItemInput) {
	it.ProductID = in.ProductID
	it.CategoryID = in.CategoryID
	it.Quantity = in.Quantity
	it.UnitPrice = in.UnitPrice
	it.DiscountPct = in.DiscountPct
	it.Mandatory = in.Mandatory
	it.DisplayOrder = in.DisplayOrder
}

// ============================================================
// ComboLocalRecebimento (delivery point)
// ============================================================

// ComboLocalRecebimento adjusts the price for a delivery point.
// Unique per (combo, delivery point).
type ComboLocalRecebimento struct {
	ID              string          `json:"id"`
	DeliveryPointID string          `json:"delivery_point_id"`
	PriceAddOn      decimal.Decimal `json:"price_add_on"`
	DiscountPct     decimal.Decimal `json:"discount_pct"`
	IsDefault       bool            `json:"is_default"`
}

// AddLocalRecebimento registers a delivery point. Marking it default
// clears the previous default of this combo.
func (c *Combo) AddLocalRecebimento(deliveryPointID string, addOn, discountPct decimal.Decimal, isDefault bool, now time.Time) (ComboLocalRecebimento, error) {
	if deliveryPointID == "" {
		return ComboLocalRecebimento{}, &ErrInvalidArgument{Field: "delivery_point_id", Message: "required"}
	}
	if addOn.IsNegative() {
		return ComboLocalRecebimento{}, &ErrInvalidArgument{Field: "price_add_on", Message: "must be >= 0"}
	}
	if err := ValidatePercentage("discount_pct", discountPct); err != nil {
		return ComboLocalRecebimento{}, err
	}
	if _, exists := c.LocalRecebimento(deliveryPointID); exists {
		return ComboLocalRecebimento{}, &ErrDuplicateKey{Resource: "combo_local_recebimento", Key: c.ID + "/" + deliveryPointID}
	}
	if isDefault {
		c.clearDefaultLocal()
	}
	local := ComboLocalRecebimento{
		ID:              uuid.New().String(),
		DeliveryPointID: deliveryPointID,
		PriceAddOn:      addOn,
		DiscountPct:     discountPct,
		IsDefault:       isDefault,
	}
	c.LocaisRecebimento = append(c.LocaisRecebimento, local)
	c.UpdatedAt = now
	return local, nil
}

// RemoveLocalRecebimento drops a delivery point.
func (c *Combo) RemoveLocalRecebimento(deliveryPointID string, now time.Time) error {
	for i := range c.LocaisRecebimento {
		if c.LocaisRecebimento[i].DeliveryPointID == deliveryPointID {
			c.LocaisRecebimento = append(c.LocaisRecebimento[:i], c.LocaisRecebimento[i+1:]...)
			c.UpdatedAt = now
			return nil
		}
	}
	return &ErrNotFound{Resource: "combo_local_recebimento", ID: c.ID + "/" + deliveryPointID}
}

// SetDefaultLocalRecebimento makes deliveryPointID the only default.
func (c *Combo) SetDefaultLocalRecebimento(deliveryPointID string, now time.Time) error {
	if _, exists := c.LocalRecebimento(deliveryPointID); !exists {
		return &ErrNotFound{Resource: "combo_local_recebimento", ID: c.ID + "/" + deliveryPointID}
	}
	for i := range c.LocaisRecebimento {
		c.LocaisRecebimento[i].IsDefault = c.LocaisRecebimento[i].DeliveryPointID == deliveryPointID
	}
	c.UpdatedAt = now
	return nil
}

// LocalRecebimento looks up a delivery point of the combo.
func (c *Combo) LocalRecebimento(deliveryPointID string) (ComboLocalRecebimento, bool) {
	for _, l := range c.LocaisRecebimento {
		if l.DeliveryPointID == deliveryPointID {
			return l, true
		}
	}
	return ComboLocalRecebimento{}, false
}

// DefaultLocalRecebimento returns the default delivery point, if any.
func (c *Combo) DefaultLocalRecebimento() (ComboLocalRecebimento, bool) {
	for _, l := range c.LocaisRecebimento {
		if l.IsDefault {
			return l, true
		}
	}
	return ComboLocalRecebimento{}, false
}

func (c *Combo) clearDefaultLocal() {
	for i := range c.LocaisRecebimento {
		c.LocaisRecebimento[i].IsDefault = false
	}
}

// ============================================================
// ComboCategoriaDesconto (category discount)
// ============================================================

// DiscountKind selects how a category discount reduces the price.
type DiscountKind string

const (
	DiscountPercentage  DiscountKind = "percentage"
	DiscountFixedAmount DiscountKind = "fixed_amount"
	DiscountPerHectare  DiscountKind = "per_hectare"
)

// ComboCategoriaDesconto is a combo-level discount for one product
// category, applicable inside its own hectare sub-range. Only the field
// matching Kind carries a value.
type ComboCategoriaDesconto struct {
	ID          string          `json:"id"`
	CategoryID  string          `json:"category_id"`
	Kind        DiscountKind    `json:"kind"`
	Percentage  decimal.Decimal `json:"percentage"`
	FixedAmount decimal.Decimal `json:"fixed_amount"`
	PerHectare  decimal.Decimal `json:"per_hectare"`
	Hectares    Interval        `json:"hectares"`
}

// NewComboCategoriaDesconto validates value against kind and stores it in
// the matching field.
func NewComboCategoriaDesconto(categoryID string, kind DiscountKind, value decimal.Decimal, hectares Interval) (ComboCategoriaDesconto, error) {
	if categoryID == "" {
		return ComboCategoriaDesconto{}, &ErrInvalidArgument{Field: "category_id", Message: "required"}
	}
	if err := hectares.Validate("hectares"); err != nil {
		return ComboCategoriaDesconto{}, err
	}
	d := ComboCategoriaDesconto{ID: uuid.New().String(), CategoryID: categoryID, Kind: kind, Hectares: hectares}
	switch kind {
	case DiscountPercentage:
		if err := ValidatePercentage("percentage", value); err != nil {
			return ComboCategoriaDesconto{}, err
		}
		d.Percentage = value
	case DiscountFixedAmount:
		if value.IsNegative() {
			return ComboCategoriaDesconto{}, &ErrInvalidArgument{Field: "fixed_amount", Message: "must be >= 0"}
		}
		d.FixedAmount = value
	case DiscountPerHectare:
		if value.IsNegative() {
			return ComboCategoriaDesconto{}, &ErrInvalidArgument{Field: "per_hectare", Message: "must be >= 0"}
		}
		d.PerHectare = value
	default:
		return ComboCategoriaDesconto{}, &ErrInvalidArgument{Field: "kind", Message: fmt.Sprintf("unknown discount kind %q", kind)}
	}
	return d, nil
}

// Value returns the discount value for the entry's kind.
func (d ComboCategoriaDesconto) Value() decimal.Decimal {
	switch d.Kind {
	case DiscountPercentage:
		return d.Percentage
	case DiscountFixedAmount:
		return d.FixedAmount
	case DiscountPerHectare:
		return d.PerHectare
	}
	return decimal.Zero
}

// AddCategoriaDesconto registers a category discount, one per category.
func (c *Combo) AddCategoriaDesconto(d ComboCategoriaDesconto, now time.Time) error {
	if _, exists := c.CategoriaDesconto(d.CategoryID); exists {
		return &ErrDuplicateKey{Resource: "combo_categoria_desconto", Key: c.ID + "/" + d.CategoryID}
	}
	c.CategoriasDesconto = append(c.CategoriasDesconto, d)
	c.UpdatedAt = now
	return nil
}

// RemoveCategoriaDesconto drops the discount for categoryID.
func (c *Combo) RemoveCategoriaDesconto(categoryID string, now time.Time) error {
	for i := range c.CategoriasDesconto {
		if c.CategoriasDesconto[i].CategoryID == categoryID {
			c.CategoriasDesconto = append(c.CategoriasDesconto[:i], c.CategoriasDesconto[i+1:]...)
			c.UpdatedAt = now
			return nil
		}
	}
	return &ErrNotFound{Resource: "combo_categoria_desconto", ID: c.ID + "/" + categoryID}
}

// CategoriaDesconto looks up the discount for a category.
func (c *Combo) CategoriaDesconto(categoryID string) (ComboCategoriaDesconto, bool) {
	for _, d := range c.CategoriasDesconto {
		if d.CategoryID == categoryID {
			return d, true
		}
	}
	return ComboCategoriaDesconto{}, false
}

// ============================================================
// MunicipalityAllowList
// ============================================================

// MunicipalityAllowList restricts a combo to the listed municipalities.
// An empty list allows every municipality.
type MunicipalityAllowList struct {
	Municipalities []int64 `json:"municipios"`
}

// IsRestricted reports whether any municipality is listed.
func (m MunicipalityAllowList) IsRestricted() bool {
	return len(m.Municipalities) > 0
}

// Allows reports whether the municipality may take the combo.
func (m MunicipalityAllowList) Allows(municipalityID int64) bool {
	if !m.IsRestricted() {
		return true
	}
	for _, id := range m.Municipalities {
		if id == municipalityID {
			return true
		}
	}
	return false
}

func (m MunicipalityAllowList) normalized() MunicipalityAllowList {
	return MunicipalityAllowList{Municipalities: uniqueSorted(m.Municipalities)}
}

// ParseMunicipalityAllowList decodes the persisted document. Absent or
// malformed documents mean no restriction; the error is for logging only.
func ParseMunicipalityAllowList(blob []byte) (MunicipalityAllowList, error) {
	trimmed := bytes.TrimSpace(blob)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return MunicipalityAllowList{}, nil
	}
	var m MunicipalityAllowList
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return MunicipalityAllowList{}, fmt.Errorf("decode municipality allow-list: %w", err)
	}
	return m.normalized(), nil
}

// Encode renders the allow-list; an unrestricted list is stored as null.
func (m MunicipalityAllowList) Encode() (json.RawMessage, error) {
	if !m.IsRestricted() {
		return json.RawMessage("null"), nil
	}
	return json.Marshal(m.normalized())
}
