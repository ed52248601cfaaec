package postgres

import (
	"context"
	"time"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/port"
)

// Calls made directly on Store outside WithinTx: reads use the pool,
// writes run as their own transaction.

func (s *Store) InsertCatalog(ctx context.Context, c *domain.Catalog) error {
	return s.write(ctx, func(r port.Repositories) error { return r.InsertCatalog(ctx, c) })
}

func (s *Store) UpdateCatalog(ctx context.Context, c *domain.Catalog) error {
	return s.write(ctx, func(r port.Repositories) error { return r.UpdateCatalog(ctx, c) })
}

func (s *Store) GetCatalog(ctx context.Context, catalogID string) (out *domain.Catalog, err error) {
	err = s.read(ctx, func(r *repos) error { out, err = r.GetCatalog(ctx, catalogID); return err })
	return out, err
}

func (s *Store) FindCatalogByKey(ctx context.Context, key domain.CatalogKey) (out *domain.Catalog, err error) {
	err = s.read(ctx, func(r *repos) error { out, err = r.FindCatalogByKey(ctx, key); return err })
	return out, err
}

func (s *Store) ListCatalogsValidOn(ctx context.Context, date time.Time) (out []domain.Catalog, err error) {
	err = s.read(ctx, func(r *repos) error { out, err = r.ListCatalogsValidOn(ctx, date); return err })
	return out, err
}

func (s *Store) InsertCatalogItem(ctx context.Context, item *domain.CatalogItem) error {
	return s.write(ctx, func(r port.Repositories) error { return r.InsertCatalogItem(ctx, item) })
}

func (s *Store) UpdateCatalogItem(ctx context.Context, item *domain.CatalogItem) error {
	return s.write(ctx, func(r port.Repositories) error { return r.UpdateCatalogItem(ctx, item) })
}

func (s *Store) DeleteCatalogItem(ctx context.Context, itemID string) error {
	return s.write(ctx, func(r port.Repositories) error { return r.DeleteCatalogItem(ctx, itemID) })
}

func (s *Store) FindCatalogItem(ctx context.Context, catalogID, productID string) (out *domain.CatalogItem, err error) {
	err = s.read(ctx, func(r *repos) error { out, err = r.FindCatalogItem(ctx, catalogID, productID); return err })
	return out, err
}

func (s *Store) InsertSegmentation(ctx context.Context, seg *domain.Segmentation) error {
	return s.write(ctx, func(r port.Repositories) error { return r.InsertSegmentation(ctx, seg) })
}

func (s *Store) UpdateSegmentation(ctx context.Context, seg *domain.Segmentation) error {
	return s.write(ctx, func(r port.Repositories) error { return r.UpdateSegmentation(ctx, seg) })
}

func (s *Store) GetSegmentation(ctx context.Context, segmentationID string) (out *domain.Segmentation, err error) {
	err = s.read(ctx, func(r *repos) error { out, err = r.GetSegmentation(ctx, segmentationID); return err })
	return out, err
}

func (s *Store) ListSegmentations(ctx context.Context, supplierID string, f port.SegmentationFilter) (out []domain.Segmentation, err error) {
	err = s.read(ctx, func(r *repos) error { out, err = r.ListSegmentations(ctx, supplierID, f); return err })
	return out, err
}

func (s *Store) InsertBand(ctx context.Context, b *domain.SegmentationBand) error {
	return s.write(ctx, func(r port.Repositories) error { return r.InsertBand(ctx, b) })
}

func (s *Store) UpdateBand(ctx context.Context, b *domain.SegmentationBand) error {
	return s.write(ctx, func(r port.Repositories) error { return r.UpdateBand(ctx, b) })
}

func (s *Store) GetBand(ctx context.Context, bandID string) (out *domain.SegmentationBand, err error) {
	err = s.read(ctx, func(r *repos) error { out, err = r.GetBand(ctx, bandID); return err })
	return out, err
}

func (s *Store) ListBands(ctx context.Context, segmentationID string, activeOnly bool) (out []domain.SegmentationBand, err error) {
	err = s.read(ctx, func(r *repos) error { out, err = r.ListBands(ctx, segmentationID, activeOnly); return err })
	return out, err
}

func (s *Store) InsertBandDiscount(ctx context.Context, d *domain.BandDiscount) error {
	return s.write(ctx, func(r port.Repositories) error { return r.InsertBandDiscount(ctx, d) })
}

func (s *Store) UpdateBandDiscount(ctx context.Context, d *domain.BandDiscount) error {
	return s.write(ctx, func(r port.Repositories) error { return r.UpdateBandDiscount(ctx, d) })
}

func (s *Store) GetBandDiscount(ctx context.Context, discountID string) (out *domain.BandDiscount, err error) {
	err = s.read(ctx, func(r *repos) error { out, err = r.GetBandDiscount(ctx, discountID); return err })
	return out, err
}

func (s *Store) FindBandDiscount(ctx context.Context, bandID, categoryID string) (out *domain.BandDiscount, err error) {
	err = s.read(ctx, func(r *repos) error { out, err = r.FindBandDiscount(ctx, bandID, categoryID); return err })
	return out, err
}

func (s *Store) ListBandDiscounts(ctx context.Context, bandID string) (out []domain.BandDiscount, err error) {
	err = s.read(ctx, func(r *repos) error { out, err = r.ListBandDiscounts(ctx, bandID); return err })
	return out, err
}

func (s *Store) InsertCombo(ctx context.Context, c *domain.Combo) error {
	return s.write(ctx, func(r port.Repositories) error { return r.InsertCombo(ctx, c) })
}

func (s *Store) SaveCombo(ctx context.Context, c *domain.Combo) error {
	return s.write(ctx, func(r port.Repositories) error { return r.SaveCombo(ctx, c) })
}

func (s *Store) GetCombo(ctx context.Context, comboID string) (out *domain.Combo, err error) {
	err = s.read(ctx, func(r *repos) error { out, err = r.GetCombo(ctx, comboID); return err })
	return out, err
}

func (s *Store) FindActiveComboByName(ctx context.Context, supplierID, seasonID, name string) (out *domain.Combo, err error) {
	err = s.read(ctx, func(r *repos) error { out, err = r.FindActiveComboByName(ctx, supplierID, seasonID, name); return err })
	return out, err
}

func (s *Store) ListCombos(ctx context.Context, f port.ComboFilter) (out []domain.Combo, err error) {
	err = s.read(ctx, func(r *repos) error { out, err = r.ListCombos(ctx, f); return err })
	return out, err
}

func (s *Store) DeleteCombo(ctx context.Context, comboID string) error {
	return s.write(ctx, func(r port.Repositories) error { return r.DeleteCombo(ctx, comboID) })
}
