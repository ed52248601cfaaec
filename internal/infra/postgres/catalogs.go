package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/agro-commercial-go/internal/domain"

	"github.com/jackc/pgx/v5"
)

// ============================================================
// Catalogs
// ============================================================

const catalogColumns = `
	id, season_id, distribution_point_id, crop_id, category_id,
	currency, validity_start, validity_end, created_at, updated_at`

func scanCatalog(row pgx.Row) (domain.Catalog, error) {
	var c domain.Catalog
	err := row.Scan(
		&c.ID, &c.Key.SeasonID, &c.Key.DistributionPointID, &c.Key.CropID, &c.Key.CategoryID,
		&c.Currency, &c.Validity.Start, &c.Validity.End, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (r *repos) InsertCatalog(ctx context.Context, c *domain.Catalog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO catalogs (
			id, season_id, distribution_point_id, crop_id, category_id,
			currency, validity_start, validity_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Key.SeasonID, c.Key.DistributionPointID, c.Key.CropID, c.Key.CategoryID,
		c.Currency, c.Validity.Start, c.Validity.End, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	for i := range c.Items {
		if err := r.InsertCatalogItem(ctx, &c.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *repos) UpdateCatalog(ctx context.Context, c *domain.Catalog) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE catalogs
		SET currency = $2, validity_start = $3, validity_end = $4, updated_at = $5
		WHERE id = $1`,
		c.ID, c.Currency, c.Validity.Start, c.Validity.End, c.UpdatedAt,
	)
	return expectRow(tag, err, "catalog", c.ID)
}

func (r *repos) GetCatalog(ctx context.Context, catalogID string) (*domain.Catalog, error) {
	c, err := scanCatalog(r.q.QueryRow(ctx, `SELECT `+catalogColumns+` FROM catalogs WHERE id = $1`, catalogID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "catalog", ID: catalogID}
	}
	if err != nil {
		return nil, err
	}
	if c.Items, err = r.listCatalogItems(ctx, catalogID); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repos) FindCatalogByKey(ctx context.Context, key domain.CatalogKey) (*domain.Catalog, error) {
	var id string
	err := r.q.QueryRow(ctx, `
		SELECT id FROM catalogs
		WHERE season_id = $1 AND distribution_point_id = $2 AND crop_id = $3 AND category_id = $4`,
		key.SeasonID, key.DistributionPointID, key.CropID, key.CategoryID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.GetCatalog(ctx, id)
}

func (r *repos) ListCatalogsValidOn(ctx context.Context, date time.Time) ([]domain.Catalog, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+catalogColumns+`
		FROM catalogs
		WHERE validity_start <= $1 AND validity_end >= $1
		ORDER BY season_id COLLATE "C", distribution_point_id COLLATE "C",
			crop_id COLLATE "C", category_id COLLATE "C", id COLLATE "C"`,
		domain.DateOf(date),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Catalog, error) {
		return scanCatalog(row)
	})
}

// ============================================================
// Catalog items
// ============================================================

const itemColumns = `id, catalog_id, product_id, price_structure, base_price::text, active, created_at, updated_at`

func scanItem(row pgx.Row) (domain.CatalogItem, error) {
	var (
		it   domain.CatalogItem
		doc  []byte
		base string
	)
	if err := row.Scan(&it.ID, &it.CatalogID, &it.ProductID, &doc, &base, &it.Active, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return domain.CatalogItem{}, err
	}
	it.PriceStructure = doc
	var err error
	it.BasePrice, err = parseDecimal("base_price", base)
	return it, err
}

func (r *repos) InsertCatalogItem(ctx context.Context, item *domain.CatalogItem) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO catalog_items (
			id, catalog_id, product_id, price_structure, base_price, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4::jsonb, $5::numeric, $6, $7, $8)`,
		item.ID, item.CatalogID, item.ProductID, string(item.PriceStructure),
		item.BasePrice.String(), item.Active, item.CreatedAt, item.UpdatedAt,
	)
	return err
}

func (r *repos) UpdateCatalogItem(ctx context.Context, item *domain.CatalogItem) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE catalog_items
		SET price_structure = $2::jsonb, base_price = $3::numeric, active = $4, updated_at = $5
		WHERE id = $1`,
		item.ID, string(item.PriceStructure), item.BasePrice.String(), item.Active, item.UpdatedAt,
	)
	return expectRow(tag, err, "catalog_item", item.ID)
}

func (r *repos) DeleteCatalogItem(ctx context.Context, itemID string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM catalog_items WHERE id = $1`, itemID)
	return expectRow(tag, err, "catalog_item", itemID)
}

func (r *repos) FindCatalogItem(ctx context.Context, catalogID, productID string) (*domain.CatalogItem, error) {
	it, err := scanItem(r.q.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM catalog_items WHERE catalog_id = $1 AND product_id = $2`,
		catalogID, productID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *repos) listCatalogItems(ctx context.Context, catalogID string) ([]domain.CatalogItem, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+itemColumns+` FROM catalog_items WHERE catalog_id = $1 ORDER BY product_id COLLATE "C"`,
		catalogID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CatalogItem, error) {
		return scanItem(row)
	})
}
