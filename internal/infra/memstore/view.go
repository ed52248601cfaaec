package memstore

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/port"
)

// view implements port.Repositories over one state. It does no locking;
// Store hands out views only while it holds the appropriate lock.
type view struct {
	st *state
}

var _ port.Repositories = (*view)(nil)

// ============================================================
// Catalogs
// ============================================================

func (v *view) InsertCatalog(ctx context.Context, c *domain.Catalog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := v.st.catalogs[c.ID]; exists {
		return &domain.ErrDuplicateKey{Resource: "catalog", Key: c.ID}
	}
	for _, other := range v.st.catalogs {
		if other.Key == c.Key {
			return &domain.ErrDuplicateKey{Resource: "catalog", Key: c.Key.String()}
		}
	}
	stored := cloneCatalog(*c)
	stored.Items = nil
	v.st.catalogs[c.ID] = stored
	for i := range c.Items {
		if err := v.InsertCatalogItem(ctx, &c.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (v *view) UpdateCatalog(ctx context.Context, c *domain.Catalog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cur, ok := v.st.catalogs[c.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "catalog", ID: c.ID}
	}
	cur.Currency = c.Currency
	cur.Validity = c.Validity
	cur.UpdatedAt = c.UpdatedAt
	v.st.catalogs[c.ID] = cur
	return nil
}

func (v *view) GetCatalog(ctx context.Context, catalogID string) (*domain.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, ok := v.st.catalogs[catalogID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "catalog", ID: catalogID}
	}
	out := cloneCatalog(c)
	for _, it := range v.st.items {
		if it.CatalogID == catalogID {
			out.Items = append(out.Items, cloneItem(it))
		}
	}
	sort.Slice(out.Items, func(i, j int) bool { return out.Items[i].ProductID < out.Items[j].ProductID })
	return &out, nil
}

func (v *view) FindCatalogByKey(ctx context.Context, key domain.CatalogKey) (*domain.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for id, c := range v.st.catalogs {
		if c.Key == key {
			return v.GetCatalog(ctx, id)
		}
	}
	return nil, nil
}

func (v *view) ListCatalogsValidOn(ctx context.Context, date time.Time) ([]domain.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Catalog
	for _, c := range v.st.catalogs {
		if c.IsValidOn(date) {
			out = append(out, cloneCatalog(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key.Less(out[j].Key)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) InsertCatalogItem(ctx context.Context, item *domain.CatalogItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := v.st.catalogs[item.CatalogID]; !ok {
		return &domain.ErrNotFound{Resource: "catalog", ID: item.CatalogID}
	}
	for _, other := range v.st.items {
		if other.CatalogID == item.CatalogID && other.ProductID == item.ProductID {
			return &domain.ErrDuplicateKey{Resource: "catalog_item", Key: item.CatalogID + "/" + item.ProductID}
		}
	}
	v.st.items[item.ID] = cloneItem(*item)
	return nil
}

func (v *view) UpdateCatalogItem(ctx context.Context, item *domain.CatalogItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := v.st.items[item.ID]; !ok {
		return &domain.ErrNotFound{Resource: "catalog_item", ID: item.ID}
	}
	v.st.items[item.ID] = cloneItem(*item)
	return nil
}

func (v *view) DeleteCatalogItem(ctx context.Context, itemID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := v.st.items[itemID]; !ok {
		return &domain.ErrNotFound{Resource: "catalog_item", ID: itemID}
	}
	delete(v.st.items, itemID)
	return nil
}

func (v *view) FindCatalogItem(ctx context.Context, catalogID, productID string) (*domain.CatalogItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, it := range v.st.items {
		if it.CatalogID == catalogID && it.ProductID == productID {
			out := cloneItem(it)
			return &out, nil
		}
	}
	return nil, nil
}

// ============================================================
// Segmentations
// ============================================================

func (v *view) InsertSegmentation(ctx context.Context, s *domain.Segmentation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := v.st.segmentations[s.ID]; exists {
		return &domain.ErrDuplicateKey{Resource: "segmentation", Key: s.ID}
	}
	if err := v.checkSingleDefault(s); err != nil {
		return err
	}
	v.st.segmentations[s.ID] = cloneSegmentation(*s)
	return nil
}

func (v *view) UpdateSegmentation(ctx context.Context, s *domain.Segmentation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := v.st.segmentations[s.ID]; !ok {
		return &domain.ErrNotFound{Resource: "segmentation", ID: s.ID}
	}
	if err := v.checkSingleDefault(s); err != nil {
		return err
	}
	v.st.segmentations[s.ID] = cloneSegmentation(*s)
	return nil
}

// checkSingleDefault mirrors the partial unique index on
// (supplier_id) WHERE is_default AND active.
func (v *view) checkSingleDefault(s *domain.Segmentation) error {
	if !s.IsDefault || !s.Active {
		return nil
	}
	for _, other := range v.st.segmentations {
		if other.ID != s.ID && other.SupplierID == s.SupplierID && other.IsDefault && other.Active {
			return &domain.ErrConflict{
				Resource:     "segmentation",
				ConflictWith: other.ID,
				Message:      "supplier already has a default segmentation",
			}
		}
	}
	return nil
}

func (v *view) GetSegmentation(ctx context.Context, segmentationID string) (*domain.Segmentation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, ok := v.st.segmentations[segmentationID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "segmentation", ID: segmentationID}
	}
	out := cloneSegmentation(s)
	return &out, nil
}

func (v *view) ListSegmentations(ctx context.Context, supplierID string, f port.SegmentationFilter) ([]domain.Segmentation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Segmentation
	for _, s := range v.st.segmentations {
		if s.SupplierID != supplierID {
			continue
		}
		if f.ActiveOnly && !s.Active {
			continue
		}
		if f.DefaultOnly && !s.IsDefault {
			continue
		}
		out = append(out, cloneSegmentation(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ============================================================
// Bands
// ============================================================

func (v *view) InsertBand(ctx context.Context, b *domain.SegmentationBand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := v.st.segmentations[b.SegmentationID]; !ok {
		return &domain.ErrNotFound{Resource: "segmentation", ID: b.SegmentationID}
	}
	if _, exists := v.st.bands[b.ID]; exists {
		return &domain.ErrDuplicateKey{Resource: "segmentation_band", Key: b.ID}
	}
	v.st.bands[b.ID] = cloneBand(*b)
	return nil
}

func (v *view) UpdateBand(ctx context.Context, b *domain.SegmentationBand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := v.st.bands[b.ID]; !ok {
		return &domain.ErrNotFound{Resource: "segmentation_band", ID: b.ID}
	}
	v.st.bands[b.ID] = cloneBand(*b)
	return nil
}

func (v *view) GetBand(ctx context.Context, bandID string) (*domain.SegmentationBand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, ok := v.st.bands[bandID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "segmentation_band", ID: bandID}
	}
	out := cloneBand(b)
	return &out, nil
}

func (v *view) ListBands(ctx context.Context, segmentationID string, activeOnly bool) ([]domain.SegmentationBand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.SegmentationBand
	for _, b := range v.st.bands {
		if b.SegmentationID != segmentationID || (activeOnly && !b.Active) {
			continue
		}
		out = append(out, cloneBand(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Area.Min.Cmp(out[j].Area.Min); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ============================================================
// Band discounts
// ============================================================

func (v *view) InsertBandDiscount(ctx context.Context, d *domain.BandDiscount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := v.st.bands[d.BandID]; !ok {
		return &domain.ErrNotFound{Resource: "segmentation_band", ID: d.BandID}
	}
	if err := v.checkDiscountKey(d); err != nil {
		return err
	}
	v.st.discounts[d.ID] = *d
	return nil
}

func (v *view) UpdateBandDiscount(ctx context.Context, d *domain.BandDiscount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := v.st.discounts[d.ID]; !ok {
		return &domain.ErrNotFound{Resource: "band_discount", ID: d.ID}
	}
	if err := v.checkDiscountKey(d); err != nil {
		return err
	}
	v.st.discounts[d.ID] = *d
	return nil
}

func (v *view) checkDiscountKey(d *domain.BandDiscount) error {
	for _, other := range v.st.discounts {
		if other.ID != d.ID && other.BandID == d.BandID && other.CategoryID == d.CategoryID {
			return &domain.ErrDuplicateKey{Resource: "band_discount", Key: d.BandID + "/" + d.CategoryID}
		}
	}
	return nil
}

func (v *view) GetBandDiscount(ctx context.Context, discountID string) (*domain.BandDiscount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, ok := v.st.discounts[discountID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "band_discount", ID: discountID}
	}
	return &d, nil
}

func (v *view) FindBandDiscount(ctx context.Context, bandID, categoryID string) (*domain.BandDiscount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, d := range v.st.discounts {
		if d.BandID == bandID && d.CategoryID == categoryID {
			out := d
			return &out, nil
		}
	}
	return nil, nil
}

func (v *view) ListBandDiscounts(ctx context.Context, bandID string) ([]domain.BandDiscount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.BandDiscount
	for _, d := range v.st.discounts {
		if d.BandID == bandID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out, nil
}

// ============================================================
// Combos
// ============================================================

func (v *view) InsertCombo(ctx context.Context, c *domain.Combo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := v.st.combos[c.ID]; exists {
		return &domain.ErrDuplicateKey{Resource: "combo", Key: c.ID}
	}
	if err := v.checkActiveName(c); err != nil {
		return err
	}
	v.st.combos[c.ID] = cloneCombo(*c)
	return nil
}

func (v *view) SaveCombo(ctx context.Context, c *domain.Combo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := v.st.combos[c.ID]; !ok {
		return &domain.ErrNotFound{Resource: "combo", ID: c.ID}
	}
	if err := v.checkActiveName(c); err != nil {
		return err
	}
	v.st.combos[c.ID] = cloneCombo(*c)
	return nil
}

// checkActiveName mirrors the partial unique index on
// (supplier_id, season_id, name) WHERE active.
func (v *view) checkActiveName(c *domain.Combo) error {
	if !c.Active {
		return nil
	}
	for _, other := range v.st.combos {
		if other.ID != c.ID && other.Active && other.SupplierID == c.SupplierID &&
			other.SeasonID == c.SeasonID && other.Name == c.Name {
			return &domain.ErrDuplicateKey{Resource: "combo", Key: c.SupplierID + "/" + c.SeasonID + "/" + c.Name}
		}
	}
	return nil
}

func (v *view) GetCombo(ctx context.Context, comboID string) (*domain.Combo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, ok := v.st.combos[comboID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "combo", ID: comboID}
	}
	out := cloneCombo(c)
	return &out, nil
}

func (v *view) FindActiveComboByName(ctx context.Context, supplierID, seasonID, name string) (*domain.Combo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, c := range v.st.combos {
		if c.Active && c.SupplierID == supplierID && c.SeasonID == seasonID && c.Name == name {
			out := cloneCombo(c)
			return &out, nil
		}
	}
	return nil, nil
}

func (v *view) ListCombos(ctx context.Context, f port.ComboFilter) ([]domain.Combo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Combo
	for _, c := range v.st.combos {
		if f.SupplierID != "" && c.SupplierID != f.SupplierID {
			continue
		}
		if f.SeasonID != "" && c.SeasonID != f.SeasonID {
			continue
		}
		if f.ActiveOnly && !c.Active {
			continue
		}
		out = append(out, cloneCombo(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) DeleteCombo(ctx context.Context, comboID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := v.st.combos[comboID]; !ok {
		return &domain.ErrNotFound{Resource: "combo", ID: comboID}
	}
	delete(v.st.combos, comboID)
	return nil
}

// ============================================================
// Deep copies
// ============================================================

func cloneCatalog(c domain.Catalog) domain.Catalog {
	out := c
	out.Items = nil
	for _, it := range c.Items {
		out.Items = append(out.Items, cloneItem(it))
	}
	return out
}

func cloneItem(it domain.CatalogItem) domain.CatalogItem {
	out := it
	out.PriceStructure = slices.Clone(it.PriceStructure)
	return out
}

func cloneSegmentation(s domain.Segmentation) domain.Segmentation {
	out := s
	out.Territory = domain.TerritoryScope{
		States:         slices.Clone(s.Territory.States),
		Municipalities: slices.Clone(s.Territory.Municipalities),
	}
	return out
}

func cloneBand(b domain.SegmentationBand) domain.SegmentationBand {
	out := b
	out.Area = cloneInterval(b.Area)
	return out
}

func cloneInterval(i domain.Interval) domain.Interval {
	if i.Max == nil {
		return i
	}
	hi := *i.Max
	return domain.Interval{Min: i.Min, Max: &hi}
}

func cloneCombo(c domain.Combo) domain.Combo {
	out := c
	out.Hectares = cloneInterval(c.Hectares)
	out.Municipalities = domain.MunicipalityAllowList{Municipalities: slices.Clone(c.Municipalities.Municipalities)}
	out.Items = slices.Clone(c.Items)
	out.LocaisRecebimento = slices.Clone(c.LocaisRecebimento)
	out.CategoriasDesconto = make([]domain.ComboCategoriaDesconto, len(c.CategoriasDesconto))
	for i, d := range c.CategoriasDesconto {
		d.Hectares = cloneInterval(d.Hectares)
		out.CategoriasDesconto[i] = d
	}
	if c.CategoriasDesconto == nil {
		out.CategoriasDesconto = nil
	}
	return out
}
