package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================
// Catalog
// ============================================================

// CatalogKey is the natural key of a catalog. At most one catalog exists
// per key.
type CatalogKey struct {
	SeasonID            string `json:"season_id"`
	DistributionPointID string `json:"distribution_point_id"`
	CropID              string `json:"crop_id"`
	CategoryID          string `json:"category_id"`
}

func (k CatalogKey) String() string {
	return fmt.Sprintf("season=%s/dist_point=%s/crop=%s/category=%s",
		k.SeasonID, k.DistributionPointID, k.CropID, k.CategoryID)
}

// Less orders keys field by field; used for deterministic listings.
func (k CatalogKey) Less(o CatalogKey) bool {
	if k.SeasonID != o.SeasonID {
		return k.SeasonID < o.SeasonID
	}
	if k.DistributionPointID != o.DistributionPointID {
		return k.DistributionPointID < o.DistributionPointID
	}
	if k.CropID != o.CropID {
		return k.CropID < o.CropID
	}
	return k.CategoryID < o.CategoryID
}

// Validate requires every key component.
func (k CatalogKey) Validate() error {
	switch {
	case k.SeasonID == "":
		return &ErrInvalidArgument{Field: "season_id", Message: "required"}
	case k.DistributionPointID == "":
		return &ErrInvalidArgument{Field: "distribution_point_id", Message: "required"}
	case k.CropID == "":
		return &ErrInvalidArgument{Field: "crop_id", Message: "required"}
	case k.CategoryID == "":
		return &ErrInvalidArgument{Field: "category_id", Message: "required"}
	}
	return nil
}

// Catalog is a time-boxed price listing for one natural key.
// Items are only changed through the catalog's own methods.
type Catalog struct {
	ID        string        `json:"id"`
	Key       CatalogKey    `json:"key"`
	Currency  string        `json:"currency"`
	Validity  Validity      `json:"validity"`
	Items     []CatalogItem `json:"items,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewCatalog validates the inputs and builds a catalog with a fresh id.
func NewCatalog(key CatalogKey, currency string, validity Validity, now time.Time) (*Catalog, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return nil, &ErrInvalidArgument{Field: "currency", Message: "must be a 3-letter ISO 4217 code"}
	}
	return &Catalog{
		ID:        uuid.New().String(),
		Key:       key,
		Currency:  currency,
		Validity:  validity,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsValidOn reports whether date falls inside the catalog's vigency.
func (c *Catalog) IsValidOn(date time.Time) bool {
	return c.Validity.Contains(date)
}

// SetValidity replaces the vigency window.
func (c *Catalog) SetValidity(v Validity, now time.Time) {
	c.Validity = v
	c.UpdatedAt = now
}

// Item returns the item listing productID, if any.
func (c *Catalog) Item(productID string) (*CatalogItem, bool) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// AddItem lists a product in the catalog. A product may appear only once.
func (c *Catalog) AddItem(productID string, entries []PriceEntry, basePrice decimal.Decimal, now time.Time) (*CatalogItem, error) {
	if productID == "" {
		return nil, &ErrInvalidArgument{Field: "product_id", Message: "required"}
	}
	if _, exists := c.Item(productID); exists {
		return nil, &ErrDuplicateKey{Resource: "catalog_item", Key: c.ID + "/" + productID}
	}
	blob, err := buildPriceStructure(entries, basePrice)
	if err != nil {
		return nil, err
	}
	item := CatalogItem{
		ID:             uuid.New().String(),
		CatalogID:      c.ID,
		ProductID:      productID,
		PriceStructure: blob,
		BasePrice:      basePrice,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	c.Items = append(c.Items, item)
	c.UpdatedAt = now
	return &c.Items[len(c.Items)-1], nil
}

// RemoveItem drops the product from the catalog and returns the removed item.
func (c *Catalog) RemoveItem(productID string, now time.Time) (CatalogItem, error) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			removed := c.Items[i]
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.UpdatedAt = now
			return removed, nil
		}
	}
	return CatalogItem{}, &ErrNotFound{Resource: "catalog_item", ID: c.ID + "/" + productID}
}

// ============================================================
// CatalogItem / PriceTable
// ============================================================

// CatalogItem is one product's price table inside a catalog.
type CatalogItem struct {
	ID             string          `json:"id"`
	CatalogID      string          `json:"catalog_id"`
	ProductID      string          `json:"product_id"`
	PriceStructure json.RawMessage `json:"price_structure"`
	BasePrice      decimal.Decimal `json:"base_price"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ReplacePriceStructure swaps the regional/date overrides and base price.
// The active flag is left untouched.
func (it *CatalogItem) ReplacePriceStructure(entries []PriceEntry, basePrice decimal.Decimal, now time.Time) error {
	blob, err := buildPriceStructure(entries, basePrice)
	if err != nil {
		return err
	}
	it.PriceStructure = blob
	it.BasePrice = basePrice
	it.UpdatedAt = now
	return nil
}

// SetActive toggles the item independently of price changes.
func (it *CatalogItem) SetActive(active bool, now time.Time) {
	it.Active = active
	it.UpdatedAt = now
}

// ResolvePrice resolves the item price for a state and date. A malformed
// price structure degrades to the base price and is flagged as Degraded.
// The result of an inactive item is flagged Inactive.
func (it *CatalogItem) ResolvePrice(state string, date time.Time) PriceResolution {
	entries, err := ParsePriceStructure(it.PriceStructure)
	if err != nil {
		return PriceResolution{Price: it.BasePrice, Source: PriceSourceBase, Degraded: true, Inactive: !it.Active}
	}
	res := ResolvePrice(entries, it.BasePrice, state, date)
	res.Inactive = !it.Active
	return res
}

func buildPriceStructure(entries []PriceEntry, basePrice decimal.Decimal) (json.RawMessage, error) {
	if basePrice.IsNegative() {
		return nil, &ErrInvalidArgument{Field: "base_price", Message: "must be >= 0"}
	}
	for i, e := range entries {
		if e.EffectiveFrom.IsZero() {
			return nil, &ErrInvalidArgument{Field: fmt.Sprintf("price_structure[%d].effectiveFrom", i), Message: "required"}
		}
		if e.Price.IsNegative() {
			return nil, &ErrInvalidArgument{Field: fmt.Sprintf("price_structure[%d].price", i), Message: "must be >= 0"}
		}
	}
	return EncodePriceStructure(entries)
}
