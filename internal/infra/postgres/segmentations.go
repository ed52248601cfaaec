package postgres

import (
	"context"
	"errors"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/port"

	"github.com/jackc/pgx/v5"
)

// ============================================================
// Segmentations
// ============================================================

const segmentationColumns = `id, supplier_id, name, description, active, is_default, territory, created_at, updated_at`

// scanSegmentation decodes a row. A malformed territory degrades to an
// empty scope and is flagged for the caller to report.
func scanSegmentation(row pgx.Row) (domain.Segmentation, error) {
	var (
		s   domain.Segmentation
		doc []byte
	)
	if err := row.Scan(&s.ID, &s.SupplierID, &s.Name, &s.Description, &s.Active, &s.IsDefault, &doc, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.Segmentation{}, err
	}
	territory, err := domain.ParseTerritoryScope(doc)
	if err != nil {
		s.TerritoryDegraded = true
	}
	s.Territory = territory
	return s, nil
}

func (r *repos) InsertSegmentation(ctx context.Context, s *domain.Segmentation) error {
	doc, err := s.Territory.Encode()
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO segmentations (
			id, supplier_id, name, description, active, is_default, territory, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)`,
		s.ID, s.SupplierID, s.Name, s.Description, s.Active, s.IsDefault, string(doc), s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *repos) UpdateSegmentation(ctx context.Context, s *domain.Segmentation) error {
	doc, err := s.Territory.Encode()
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE segmentations
		SET name = $2, description = $3, active = $4, is_default = $5, territory = $6::jsonb, updated_at = $7
		WHERE id = $1`,
		s.ID, s.Name, s.Description, s.Active, s.IsDefault, string(doc), s.UpdatedAt,
	)
	return expectRow(tag, err, "segmentation", s.ID)
}

func (r *repos) GetSegmentation(ctx context.Context, segmentationID string) (*domain.Segmentation, error) {
	s, err := scanSegmentation(r.q.QueryRow(ctx, `SELECT `+segmentationColumns+` FROM segmentations WHERE id = $1`, segmentationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "segmentation", ID: segmentationID}
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repos) ListSegmentations(ctx context.Context, supplierID string, f port.SegmentationFilter) ([]domain.Segmentation, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+segmentationColumns+`
		FROM segmentations
		WHERE supplier_id = $1
		  AND ($2::boolean = FALSE OR active)
		  AND ($3::boolean = FALSE OR is_default)
		ORDER BY name COLLATE "C", id COLLATE "C"`,
		supplierID, f.ActiveOnly, f.DefaultOnly,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Segmentation, error) {
		return scanSegmentation(row)
	})
}

// ============================================================
// Bands
// ============================================================

const bandColumns = `id, segmentation_id, name, area_min::text, area_max::text, active, created_at, updated_at`

func scanBand(row pgx.Row) (domain.SegmentationBand, error) {
	var (
		b  domain.SegmentationBand
		lo string
		hi *string
	)
	if err := row.Scan(&b.ID, &b.SegmentationID, &b.Name, &lo, &hi, &b.Active, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return domain.SegmentationBand{}, err
	}
	area, err := parseInterval("area", lo, hi)
	if err != nil {
		return domain.SegmentationBand{}, err
	}
	b.Area = area
	return b, nil
}

func (r *repos) InsertBand(ctx context.Context, b *domain.SegmentationBand) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO segmentation_bands (
			id, segmentation_id, name, area_min, area_max, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8)`,
		b.ID, b.SegmentationID, b.Name, b.Area.Min.String(), upperBound(b.Area), b.Active, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (r *repos) UpdateBand(ctx context.Context, b *domain.SegmentationBand) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE segmentation_bands
		SET name = $2, area_min = $3::numeric, area_max = $4::numeric, active = $5, updated_at = $6
		WHERE id = $1`,
		b.ID, b.Name, b.Area.Min.String(), upperBound(b.Area), b.Active, b.UpdatedAt,
	)
	return expectRow(tag, err, "segmentation_band", b.ID)
}

func (r *repos) GetBand(ctx context.Context, bandID string) (*domain.SegmentationBand, error) {
	b, err := scanBand(r.q.QueryRow(ctx, `SELECT `+bandColumns+` FROM segmentation_bands WHERE id = $1`, bandID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "segmentation_band", ID: bandID}
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repos) ListBands(ctx context.Context, segmentationID string, activeOnly bool) ([]domain.SegmentationBand, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+bandColumns+`
		FROM segmentation_bands
		WHERE segmentation_id = $1 AND ($2::boolean = FALSE OR active)
		ORDER BY area_min, id COLLATE "C"`,
		segmentationID, activeOnly,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SegmentationBand, error) {
		return scanBand(row)
	})
}

// ============================================================
// Band discounts
// ============================================================

const discountColumns = `id, band_id, category_id, percentage::text, active, notes, created_at, updated_at`

func scanDiscount(row pgx.Row) (domain.BandDiscount, error) {
	var (
		d   domain.BandDiscount
		pct string
	)
	if err := row.Scan(&d.ID, &d.BandID, &d.CategoryID, &pct, &d.Active, &d.Notes, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return domain.BandDiscount{}, err
	}
	var err error
	d.Percentage, err = parseDecimal("percentage", pct)
	return d, err
}

func (r *repos) InsertBandDiscount(ctx context.Context, d *domain.BandDiscount) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO band_discounts (
			id, band_id, category_id, percentage, active, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)`,
		d.ID, d.BandID, d.CategoryID, d.Percentage.String(), d.Active, d.Notes, d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *repos) UpdateBandDiscount(ctx context.Context, d *domain.BandDiscount) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE band_discounts
		SET category_id = $2, percentage = $3::numeric, active = $4, notes = $5, updated_at = $6
		WHERE id = $1`,
		d.ID, d.CategoryID, d.Percentage.String(), d.Active, d.Notes, d.UpdatedAt,
	)
	return expectRow(tag, err, "band_discount", d.ID)
}

func (r *repos) GetBandDiscount(ctx context.Context, discountID string) (*domain.BandDiscount, error) {
	d, err := scanDiscount(r.q.QueryRow(ctx, `SELECT `+discountColumns+` FROM band_discounts WHERE id = $1`, discountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "band_discount", ID: discountID}
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repos) FindBandDiscount(ctx context.Context, bandID, categoryID string) (*domain.BandDiscount, error) {
	d, err := scanDiscount(r.q.QueryRow(ctx,
		`SELECT `+discountColumns+` FROM band_discounts WHERE band_id = $1 AND category_id = $2`,
		bandID, categoryID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repos) ListBandDiscounts(ctx context.Context, bandID string) ([]domain.BandDiscount, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+discountColumns+` FROM band_discounts WHERE band_id = $1 ORDER BY category_id COLLATE "C"`,
		bandID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.BandDiscount, error) {
		return scanDiscount(row)
	})
}
