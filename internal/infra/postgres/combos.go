package postgres

import (
	"context"
	"errors"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/port"

	"github.com/jackc/pgx/v5"
)

// ============================================================
// Combos
// ============================================================

const comboColumns = `
	id, supplier_id, season_id, name, description,
	hectares_min::text, hectares_max::text, validity_start, validity_end,
	payment_modality, status, active, municipalities,
	allow_item_edit, allow_item_removal, created_at, updated_at`

func scanCombo(row pgx.Row) (domain.Combo, error) {
	var (
		c      domain.Combo
		lo     string
		hi     *string
		munDoc []byte
	)
	if err := row.Scan(
		&c.ID, &c.SupplierID, &c.SeasonID, &c.Name, &c.Description,
		&lo, &hi, &c.Validity.Start, &c.Validity.End,
		&c.PaymentModality, &c.Status, &c.Active, &munDoc,
		&c.AllowItemEdit, &c.AllowItemRemoval, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return domain.Combo{}, err
	}
	hectares, err := parseInterval("hectares", lo, hi)
	if err != nil {
		return domain.Combo{}, err
	}
	c.Hectares = hectares
	c.Municipalities, _ = domain.ParseMunicipalityAllowList(munDoc)
	return c, nil
}

// municipalitiesParam stores an unrestricted list as SQL NULL.
func municipalitiesParam(m domain.MunicipalityAllowList) (*string, error) {
	if !m.IsRestricted() {
		return nil, nil
	}
	doc, err := m.Encode()
	if err != nil {
		return nil, err
	}
	s := string(doc)
	return &s, nil
}

func (r *repos) InsertCombo(ctx context.Context, c *domain.Combo) error {
	mun, err := municipalitiesParam(c.Municipalities)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO combos (
			id, supplier_id, season_id, name, description,
			hectares_min, hectares_max, validity_start, validity_end,
			payment_modality, status, active, municipalities,
			allow_item_edit, allow_item_removal, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9,
			$10, $11, $12, $13::jsonb, $14, $15, $16, $17
		)`,
		c.ID, c.SupplierID, c.SeasonID, c.Name, c.Description,
		c.Hectares.Min.String(), upperBound(c.Hectares), c.Validity.Start, c.Validity.End,
		string(c.PaymentModality), string(c.Status), c.Active, mun,
		c.AllowItemEdit, c.AllowItemRemoval, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return r.insertComboChildren(ctx, c)
}

// SaveCombo rewrites the combo row and replaces every child row.
func (r *repos) SaveCombo(ctx context.Context, c *domain.Combo) error {
	mun, err := municipalitiesParam(c.Municipalities)
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE combos SET
			name = $2, description = $3, hectares_min = $4::numeric, hectares_max = $5::numeric,
			validity_start = $6, validity_end = $7, payment_modality = $8, status = $9,
			active = $10, municipalities = $11::jsonb, allow_item_edit = $12,
			allow_item_removal = $13, updated_at = $14
		WHERE id = $1`,
		c.ID, c.Name, c.Description, c.Hectares.Min.String(), upperBound(c.Hectares),
		c.Validity.Start, c.Validity.End, string(c.PaymentModality), string(c.Status),
		c.Active, mun, c.AllowItemEdit, c.AllowItemRemoval, c.UpdatedAt,
	)
	if err := expectRow(tag, err, "combo", c.ID); err != nil {
		return err
	}
	for _, table := range []string{"combo_items", "combo_locais_recebimento", "combo_categorias_desconto"} {
		if _, err := r.q.Exec(ctx, `DELETE FROM `+table+` WHERE combo_id = $1`, c.ID); err != nil {
			return err
		}
	}
	return r.insertComboChildren(ctx, c)
}

func (r *repos) insertComboChildren(ctx context.Context, c *domain.Combo) error {
	for i, it := range c.Items {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO combo_items (
				id, combo_id, position, product_id, category_id,
				quantity, unit_price, discount_pct, mandatory, display_order
			) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9, $10)`,
			it.ID, c.ID, i, it.ProductID, it.CategoryID,
			it.Quantity.String(), it.UnitPrice.String(), it.DiscountPct.String(), it.Mandatory, it.DisplayOrder,
		); err != nil {
			return err
		}
	}
	for i, l := range c.LocaisRecebimento {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO combo_locais_recebimento (
				id, combo_id, position, delivery_point_id, price_add_on, discount_pct, is_default
			) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7)`,
			l.ID, c.ID, i, l.DeliveryPointID, l.PriceAddOn.String(), l.DiscountPct.String(), l.IsDefault,
		); err != nil {
			return err
		}
	}
	for i, d := range c.CategoriasDesconto {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO combo_categorias_desconto (
				id, combo_id, position, category_id, kind,
				percentage, fixed_amount, per_hectare, hectares_min, hectares_max
			) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric)`,
			d.ID, c.ID, i, d.CategoryID, string(d.Kind),
			d.Percentage.String(), d.FixedAmount.String(), d.PerHectare.String(),
			d.Hectares.Min.String(), upperBound(d.Hectares),
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *repos) GetCombo(ctx context.Context, comboID string) (*domain.Combo, error) {
	c, err := scanCombo(r.q.QueryRow(ctx, `SELECT `+comboColumns+` FROM combos WHERE id = $1`, comboID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "combo", ID: comboID}
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadComboChildren(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repos) FindActiveComboByName(ctx context.Context, supplierID, seasonID, name string) (*domain.Combo, error) {
	var id string
	err := r.q.QueryRow(ctx, `
		SELECT id FROM combos
		WHERE supplier_id = $1 AND season_id = $2 AND name = $3 AND active`,
		supplierID, seasonID, name,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.GetCombo(ctx, id)
}

func (r *repos) ListCombos(ctx context.Context, f port.ComboFilter) ([]domain.Combo, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+comboColumns+`
		FROM combos
		WHERE ($1::text = '' OR supplier_id = $1)
		  AND ($2::text = '' OR season_id = $2)
		  AND ($3::boolean = FALSE OR active)
		ORDER BY name COLLATE "C", id COLLATE "C"`,
		f.SupplierID, f.SeasonID, f.ActiveOnly,
	)
	if err != nil {
		return nil, err
	}
	combos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Combo, error) {
		return scanCombo(row)
	})
	if err != nil {
		return nil, err
	}
	// Children load after the combo rows are fully read: a transaction
	// connection cannot run a second query while rows are open.
	for i := range combos {
		if err := r.loadComboChildren(ctx, &combos[i]); err != nil {
			return nil, err
		}
	}
	return combos, nil
}

func (r *repos) DeleteCombo(ctx context.Context, comboID string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM combos WHERE id = $1`, comboID)
	return expectRow(tag, err, "combo", comboID)
}

func (r *repos) loadComboChildren(ctx context.Context, c *domain.Combo) error {
	var err error
	if c.Items, err = r.listComboItems(ctx, c.ID); err != nil {
		return err
	}
	if c.LocaisRecebimento, err = r.listLocaisRecebimento(ctx, c.ID); err != nil {
		return err
	}
	c.CategoriasDesconto, err = r.listCategoriasDesconto(ctx, c.ID)
	return err
}

func (r *repos) listComboItems(ctx context.Context, comboID string) ([]domain.ComboItem, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, product_id, category_id, quantity::text, unit_price::text, discount_pct::text, mandatory, display_order
		FROM combo_items WHERE combo_id = $1 ORDER BY position`,
		comboID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ComboItem, error) {
		var (
			it              domain.ComboItem
			qty, unit, disc string
		)
		if err := row.Scan(&it.ID, &it.ProductID, &it.CategoryID, &qty, &unit, &disc, &it.Mandatory, &it.DisplayOrder); err != nil {
			return domain.ComboItem{}, err
		}
		var err error
		if it.Quantity, err = parseDecimal("quantity", qty); err != nil {
			return domain.ComboItem{}, err
		}
		if it.UnitPrice, err = parseDecimal("unit_price", unit); err != nil {
			return domain.ComboItem{}, err
		}
		it.DiscountPct, err = parseDecimal("discount_pct", disc)
		return it, err
	})
}

func (r *repos) listLocaisRecebimento(ctx context.Context, comboID string) ([]domain.ComboLocalRecebimento, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, delivery_point_id, price_add_on::text, discount_pct::text, is_default
		FROM combo_locais_recebimento WHERE combo_id = $1 ORDER BY position`,
		comboID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ComboLocalRecebimento, error) {
		var (
			l          domain.ComboLocalRecebimento
			addOn, pct string
		)
		if err := row.Scan(&l.ID, &l.DeliveryPointID, &addOn, &pct, &l.IsDefault); err != nil {
			return domain.ComboLocalRecebimento{}, err
		}
		var err error
		if l.PriceAddOn, err = parseDecimal("price_add_on", addOn); err != nil {
			return domain.ComboLocalRecebimento{}, err
		}
		l.DiscountPct, err = parseDecimal("discount_pct", pct)
		return l, err
	})
}

func (r *repos) listCategoriasDesconto(ctx context.Context, comboID string) ([]domain.ComboCategoriaDesconto, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, category_id, kind, percentage::text, fixed_amount::text, per_hectare::text,
			hectares_min::text, hectares_max::text
		FROM combo_categorias_desconto WHERE combo_id = $1 ORDER BY position`,
		comboID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ComboCategoriaDesconto, error) {
		var (
			d                 domain.ComboCategoriaDesconto
			pct, fixed, perHa string
			lo                string
			hi                *string
		)
		if err := row.Scan(&d.ID, &d.CategoryID, &d.Kind, &pct, &fixed, &perHa, &lo, &hi); err != nil {
			return domain.ComboCategoriaDesconto{}, err
		}
		var err error
		if d.Percentage, err = parseDecimal("percentage", pct); err != nil {
			return domain.ComboCategoriaDesconto{}, err
		}
		if d.FixedAmount, err = parseDecimal("fixed_amount", fixed); err != nil {
			return domain.ComboCategoriaDesconto{}, err
		}
		if d.PerHectare, err = parseDecimal("per_hectare", perHa); err != nil {
			return domain.ComboCategoriaDesconto{}, err
		}
		d.Hectares, err = parseInterval("hectares", lo, hi)
		return d, err
	})
}
