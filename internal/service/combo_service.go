package service

import (
	"context"
	"time"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/infra/observability"
	"github.com/boddenberg/agro-commercial-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var comboTracer = otel.Tracer("service/combo")

// ComboService manages combos and decides producer eligibility.
type ComboService struct {
	store   port.Store
	clock   port.Clock
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewComboService creates a combo service.
func NewComboService(store port.Store, clock port.Clock, metrics *observability.Metrics, logger *zap.Logger) *ComboService {
	return &ComboService{store: store, clock: clock, metrics: metrics, logger: logger}
}

// CreateCombo creates a draft combo. The name must be free among the
// supplier's active combos for the season.
func (s *ComboService) CreateCombo(ctx context.Context, supplierID, seasonID string, attrs domain.ComboAttributes) (_ *domain.Combo, err error) {
	ctx, span := comboTracer.Start(ctx, "ComboService.CreateCombo")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, "create_combo", t, err) }(time.Now())
	span.SetAttributes(
		attribute.String("supplier.id", supplierID),
		attribute.String("season.id", seasonID),
	)

	combo, err := domain.NewCombo(supplierID, seasonID, attrs, s.clock.Now())
	if err != nil {
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		if err := checkComboName(ctx, repos, combo); err != nil {
			return err
		}
		return repos.InsertCombo(ctx, combo)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("combo created",
		zap.String("combo_id", combo.ID),
		zap.String("supplier_id", supplierID),
		zap.String("season_id", seasonID),
	)
	return combo, nil
}

func checkComboName(ctx context.Context, repos port.Repositories, c *domain.Combo) error {
	other, err := repos.FindActiveComboByName(ctx, c.SupplierID, c.SeasonID, c.Name)
	if err != nil {
		return err
	}
	if other != nil && other.ID != c.ID {
		return &domain.ErrDuplicateKey{Resource: "combo", Key: c.SupplierID + "/" + c.SeasonID + "/" + c.Name}
	}
	return nil
}

// GetCombo loads a combo with its children.
func (s *ComboService) GetCombo(ctx context.Context, comboID string) (*domain.Combo, error) {
	ctx, span := comboTracer.Start(ctx, "ComboService.GetCombo")
	defer span.End()
	span.SetAttributes(attribute.String("combo.id", comboID))

	return s.store.GetCombo(ctx, comboID)
}

// ListCombos lists combos matching the filter.
func (s *ComboService) ListCombos(ctx context.Context, f port.ComboFilter) ([]domain.Combo, error) {
	ctx, span := comboTracer.Start(ctx, "ComboService.ListCombos")
	defer span.End()

	return s.store.ListCombos(ctx, f)
}

// UpdateCombo replaces the core attributes.
func (s *ComboService) UpdateCombo(ctx context.Context, comboID string, attrs domain.ComboAttributes) (*domain.Combo, error) {
	return s.mutate(ctx, "update_combo", comboID, func(c *domain.Combo, now time.Time) error {
		return c.UpdateAttributes(attrs, now)
	})
}

// SetStatus moves the combo through the commercial workflow.
func (s *ComboService) SetStatus(ctx context.Context, comboID string, status domain.ComboStatus) (*domain.Combo, error) {
	return s.mutate(ctx, "set_combo_status", comboID, func(c *domain.Combo, now time.Time) error {
		return c.SetStatus(status, now)
	})
}

// Deactivate retires the combo.
func (s *ComboService) Deactivate(ctx context.Context, comboID string) (*domain.Combo, error) {
	return s.mutate(ctx, "deactivate_combo", comboID, func(c *domain.Combo, now time.Time) error {
		c.Deactivate(now)
		return nil
	})
}

// AddItem appends a line item.
func (s *ComboService) AddItem(ctx context.Context, comboID string, in domain.ComboItemInput) (*domain.Combo, error) {
	return s.mutate(ctx, "add_combo_item", comboID, func(c *domain.Combo, now time.Time) error {
		_, err := c.AddItem(in, now)
		return err
	})
}

// UpdateItem edits a line item; Forbidden unless the combo allows edits.
func (s *ComboService) UpdateItem(ctx context.Context, comboID, itemID string, in domain.ComboItemInput) (*domain.Combo, error) {
	return s.mutate(ctx, "update_combo_item", comboID, func(c *domain.Combo, now time.Time) error {
		_, err := c.UpdateItem(itemID, in, now)
		return err
	})
}

// RemoveItem drops a line item; Forbidden unless the combo allows removal.
func (s *ComboService) RemoveItem(ctx context.Context, comboID, itemID string) (*domain.Combo, error) {
	return s.mutate(ctx, "remove_combo_item", comboID, func(c *domain.Combo, now time.Time) error {
		return c.RemoveItem(itemID, now)
	})
}

// AddLocalRecebimento registers a delivery point with its price adjustment.
func (s *ComboService) AddLocalRecebimento(ctx context.Context, comboID, deliveryPointID string, addOn, discountPct decimal.Decimal, isDefault bool) (*domain.Combo, error) {
	return s.mutate(ctx, "add_combo_local_recebimento", comboID, func(c *domain.Combo, now time.Time) error {
		_, err := c.AddLocalRecebimento(deliveryPointID, addOn, discountPct, isDefault, now)
		return err
	})
}

// RemoveLocalRecebimento drops a delivery point.
func (s *ComboService) RemoveLocalRecebimento(ctx context.Context, comboID, deliveryPointID string) (*domain.Combo, error) {
	return s.mutate(ctx, "remove_combo_local_recebimento", comboID, func(c *domain.Combo, now time.Time) error {
		return c.RemoveLocalRecebimento(deliveryPointID, now)
	})
}

// SetDefaultLocalRecebimento makes a delivery point the combo default.
func (s *ComboService) SetDefaultLocalRecebimento(ctx context.Context, comboID, deliveryPointID string) (*domain.Combo, error) {
	return s.mutate(ctx, "set_default_combo_local_recebimento", comboID, func(c *domain.Combo, now time.Time) error {
		return c.SetDefaultLocalRecebimento(deliveryPointID, now)
	})
}

// AddCategoriaDesconto registers a category discount; the value lands in
// the field matching kind.
func (s *ComboService) AddCategoriaDesconto(ctx context.Context, comboID, categoryID string, kind domain.DiscountKind, value decimal.Decimal, hectares domain.Interval) (*domain.Combo, error) {
	d, err := domain.NewComboCategoriaDesconto(categoryID, kind, value, hectares)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "add_combo_categoria_desconto", comboID, func(c *domain.Combo, now time.Time) error {
		return c.AddCategoriaDesconto(d, now)
	})
}

// RemoveCategoriaDesconto drops the discount of a category.
func (s *ComboService) RemoveCategoriaDesconto(ctx context.Context, comboID, categoryID string) (*domain.Combo, error) {
	return s.mutate(ctx, "remove_combo_categoria_desconto", comboID, func(c *domain.Combo, now time.Time) error {
		return c.RemoveCategoriaDesconto(categoryID, now)
	})
}

// mutate loads the combo, applies fn through the aggregate and saves it,
// all in one transaction.
func (s *ComboService) mutate(ctx context.Context, op, comboID string, fn func(*domain.Combo, time.Time) error) (_ *domain.Combo, err error) {
	ctx, span := comboTracer.Start(ctx, "ComboService.Mutate")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, op, t, err) }(time.Now())
	span.SetAttributes(
		attribute.String("operation", op),
		attribute.String("combo.id", comboID),
	)

	var out *domain.Combo
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		c, err := repos.GetCombo(ctx, comboID)
		if err != nil {
			return err
		}
		if err := fn(c, s.clock.Now()); err != nil {
			return err
		}
		if c.Active {
			if err := checkComboName(ctx, repos, c); err != nil {
				return err
			}
		}
		if err := repos.SaveCombo(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CheckEligibility decides whether the producer may take the combo now.
func (s *ComboService) CheckEligibility(ctx context.Context, comboID string, producer domain.Producer) (_ domain.EligibilityResult, err error) {
	ctx, span := comboTracer.Start(ctx, "ComboService.CheckEligibility")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, "check_eligibility", t, err) }(time.Now())
	span.SetAttributes(attribute.String("combo.id", comboID))

	c, err := s.store.GetCombo(ctx, comboID)
	if err != nil {
		return domain.EligibilityResult{}, err
	}
	return s.evaluate(c, producer), nil
}

func (s *ComboService) evaluate(c *domain.Combo, producer domain.Producer) domain.EligibilityResult {
	res := domain.EvaluateEligibility(c, producer, s.clock.Now())
	s.metrics.IncrEligibility(res.Reason)
	if !res.Eligible {
		s.logger.Debug("combo not eligible",
			zap.String("combo_id", c.ID),
			zap.String("reason", string(res.Reason)),
		)
	}
	return res
}

// ListOfferable returns the supplier's active combos for the season that
// the producer is eligible for right now.
func (s *ComboService) ListOfferable(ctx context.Context, supplierID, seasonID string, producer domain.Producer) (_ []domain.Combo, err error) {
	ctx, span := comboTracer.Start(ctx, "ComboService.ListOfferable")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, "list_offerable_combos", t, err) }(time.Now())
	span.SetAttributes(
		attribute.String("supplier.id", supplierID),
		attribute.String("season.id", seasonID),
	)

	combos, err := s.store.ListCombos(ctx, port.ComboFilter{SupplierID: supplierID, SeasonID: seasonID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	var out []domain.Combo
	for i := range combos {
		if !combos[i].Offerable() {
			continue
		}
		if s.evaluate(&combos[i], producer).Eligible {
			out = append(out, combos[i])
		}
	}
	span.SetAttributes(attribute.Int("combos.offerable", len(out)))
	return out, nil
}
