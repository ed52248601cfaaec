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

var segTracer = otel.Tracer("service/segmentation")

// SegmentationService manages segmentations, their hectare bands and the
// per-category band discounts.
type SegmentationService struct {
	store     port.Store
	geography port.Geography
	clock     port.Clock
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewSegmentationService creates a segmentation service. geography may be
// nil, in which case territory matching only uses municipality listings.
func NewSegmentationService(
	store port.Store,
	geography port.Geography,
	clock port.Clock,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SegmentationService {
	return &SegmentationService{store: store, geography: geography, clock: clock, metrics: metrics, logger: logger}
}

// ============================================================
// Segmentations
// ============================================================

// CreateSegmentation creates an active, non-default segmentation.
func (s *SegmentationService) CreateSegmentation(ctx context.Context, supplierID, name, description string, territory domain.TerritoryScope) (_ *domain.Segmentation, err error) {
	ctx, span := segTracer.Start(ctx, "SegmentationService.CreateSegmentation")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, "create_segmentation", t, err) }(time.Now())
	span.SetAttributes(attribute.String("supplier.id", supplierID))

	seg, err := domain.NewSegmentation(supplierID, name, description, territory, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		return repos.InsertSegmentation(ctx, seg)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("segmentation created",
		zap.String("segmentation_id", seg.ID),
		zap.String("supplier_id", supplierID),
	)
	return seg, nil
}

// GetSegmentation loads a segmentation.
func (s *SegmentationService) GetSegmentation(ctx context.Context, segmentationID string) (*domain.Segmentation, error) {
	ctx, span := segTracer.Start(ctx, "SegmentationService.GetSegmentation")
	defer span.End()

	return s.store.GetSegmentation(ctx, segmentationID)
}

// UpdateSegmentation renames a segmentation.
func (s *SegmentationService) UpdateSegmentation(ctx context.Context, segmentationID, name, description string) (*domain.Segmentation, error) {
	return s.mutateSegmentation(ctx, "update_segmentation", segmentationID, func(seg *domain.Segmentation, now time.Time) error {
		return seg.Rename(name, description, now)
	})
}

// ReplaceTerritory swaps the territorial scope.
func (s *SegmentationService) ReplaceTerritory(ctx context.Context, segmentationID string, territory domain.TerritoryScope) (*domain.Segmentation, error) {
	return s.mutateSegmentation(ctx, "replace_territory", segmentationID, func(seg *domain.Segmentation, now time.Time) error {
		seg.ReplaceTerritory(territory, now)
		return nil
	})
}

// Deactivate disables a segmentation. A default segmentation loses the flag.
func (s *SegmentationService) Deactivate(ctx context.Context, segmentationID string) (*domain.Segmentation, error) {
	return s.mutateSegmentation(ctx, "deactivate_segmentation", segmentationID, func(seg *domain.Segmentation, now time.Time) error {
		seg.Deactivate(now)
		return nil
	})
}

// ClearDefault removes the default flag from a segmentation.
func (s *SegmentationService) ClearDefault(ctx context.Context, segmentationID string) (*domain.Segmentation, error) {
	return s.mutateSegmentation(ctx, "clear_default_segmentation", segmentationID, func(seg *domain.Segmentation, now time.Time) error {
		seg.UnmarkDefault(now)
		return nil
	})
}

func (s *SegmentationService) mutateSegmentation(ctx context.Context, op, segmentationID string, fn func(*domain.Segmentation, time.Time) error) (_ *domain.Segmentation, err error) {
	ctx, span := segTracer.Start(ctx, "SegmentationService.MutateSegmentation")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, op, t, err) }(time.Now())
	span.SetAttributes(
		attribute.String("operation", op),
		attribute.String("segmentation.id", segmentationID),
	)

	var out *domain.Segmentation
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		seg, err := repos.GetSegmentation(ctx, segmentationID)
		if err != nil {
			return err
		}
		if err := fn(seg, s.clock.Now()); err != nil {
			return err
		}
		if err := repos.UpdateSegmentation(ctx, seg); err != nil {
			return err
		}
		out = seg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetDefault makes the segmentation its supplier's only default. Clearing
// the previous defaults and flagging the target persist together.
func (s *SegmentationService) SetDefault(ctx context.Context, segmentationID string) (_ *domain.Segmentation, err error) {
	ctx, span := segTracer.Start(ctx, "SegmentationService.SetDefault")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, "set_default_segmentation", t, err) }(time.Now())
	span.SetAttributes(attribute.String("segmentation.id", segmentationID))

	var target *domain.Segmentation
	var cleared int
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		seg, err := repos.GetSegmentation(ctx, segmentationID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := seg.MarkDefault(now); err != nil {
			return err
		}

		defaults, err := repos.ListSegmentations(ctx, seg.SupplierID, port.SegmentationFilter{ActiveOnly: true, DefaultOnly: true})
		if err != nil {
			return err
		}
		for i := range defaults {
			other := &defaults[i]
			if other.ID == seg.ID {
				continue
			}
			other.UnmarkDefault(now)
			if err := repos.UpdateSegmentation(ctx, other); err != nil {
				return err
			}
			cleared++
		}

		if err := repos.UpdateSegmentation(ctx, seg); err != nil {
			return err
		}
		target = seg
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("default segmentation set",
		zap.String("segmentation_id", target.ID),
		zap.String("supplier_id", target.SupplierID),
		zap.Int("cleared", cleared),
	)
	return target, nil
}

// ResolveSegmentation picks the segmentation that applies to a producer's
// municipality: an active segmentation whose territory lists the
// municipality or its state, else the supplier default. Returns nil when
// neither exists. A failing geography lookup only disables state matching.
func (s *SegmentationService) ResolveSegmentation(ctx context.Context, supplierID string, municipalityID int64) (_ *domain.Segmentation, err error) {
	ctx, span := segTracer.Start(ctx, "SegmentationService.ResolveSegmentation")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, "resolve_segmentation", t, err) }(time.Now())
	span.SetAttributes(
		attribute.String("supplier.id", supplierID),
		attribute.Int64("municipality.id", municipalityID),
	)

	segs, err := s.store.ListSegmentations(ctx, supplierID, port.SegmentationFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	var stateID int64
	if s.geography != nil && municipalityID != 0 {
		stateID, err = s.geography.MunicipalityState(ctx, municipalityID)
		if err != nil {
			// Explicit municipality lists still match without the state.
			s.logger.Warn("geography lookup failed, matching municipality lists only",
				zap.Int64("municipality_id", municipalityID),
				zap.Error(err),
			)
			stateID = 0
		}
	}

	for i := range segs {
		if segs[i].TerritoryDegraded {
			s.metrics.IncrDegradedDocument("territory")
			s.logger.Warn("malformed territory, treating segmentation as unrestricted",
				zap.String("segmentation_id", segs[i].ID),
			)
		}
		t := segs[i].Territory
		if t.IsEmpty() {
			continue
		}
		if t.CoversMunicipality(municipalityID) || (stateID != 0 && t.CoversState(stateID)) {
			return &segs[i], nil
		}
	}
	return pickDefault(segs), nil
}

func pickDefault(segs []domain.Segmentation) *domain.Segmentation {
	for i := range segs {
		if segs[i].IsDefault {
			return &segs[i]
		}
	}
	return nil
}

// ============================================================
// Bands
// ============================================================

// CreateBand adds a hectare band. The overlap check and the insert run in
// the same transaction.
func (s *SegmentationService) CreateBand(ctx context.Context, segmentationID, name string, area domain.Interval) (_ *domain.SegmentationBand, err error) {
	ctx, span := segTracer.Start(ctx, "SegmentationService.CreateBand")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, "create_band", t, err) }(time.Now())
	span.SetAttributes(
		attribute.String("segmentation.id", segmentationID),
		attribute.String("band.area", area.String()),
	)

	band, err := domain.NewSegmentationBand(segmentationID, name, area, s.clock.Now())
	if err != nil {
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		if _, err := repos.GetSegmentation(ctx, segmentationID); err != nil {
			return err
		}
		if err := checkOverlap(ctx, repos, band); err != nil {
			return err
		}
		return repos.InsertBand(ctx, band)
	})
	if err != nil {
		return nil, err
	}
	return band, nil
}

// UpdateBand changes a band's name and interval.
func (s *SegmentationService) UpdateBand(ctx context.Context, bandID, name string, area domain.Interval) (*domain.SegmentationBand, error) {
	return s.mutateBand(ctx, "update_band", bandID, func(b *domain.SegmentationBand, now time.Time) error {
		return b.Update(name, area, now)
	})
}

// DeactivateBand disables a band; it stops taking part in overlap checks.
func (s *SegmentationService) DeactivateBand(ctx context.Context, bandID string) (*domain.SegmentationBand, error) {
	return s.mutateBand(ctx, "deactivate_band", bandID, func(b *domain.SegmentationBand, now time.Time) error {
		b.SetActive(false, now)
		return nil
	})
}

// ReactivateBand enables a band again, provided it overlaps no active band.
func (s *SegmentationService) ReactivateBand(ctx context.Context, bandID string) (*domain.SegmentationBand, error) {
	return s.mutateBand(ctx, "reactivate_band", bandID, func(b *domain.SegmentationBand, now time.Time) error {
		b.SetActive(true, now)
		return nil
	})
}

func (s *SegmentationService) mutateBand(ctx context.Context, op, bandID string, fn func(*domain.SegmentationBand, time.Time) error) (_ *domain.SegmentationBand, err error) {
	ctx, span := segTracer.Start(ctx, "SegmentationService.MutateBand")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, op, t, err) }(time.Now())
	span.SetAttributes(
		attribute.String("operation", op),
		attribute.String("band.id", bandID),
	)

	var out *domain.SegmentationBand
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		band, err := repos.GetBand(ctx, bandID)
		if err != nil {
			return err
		}
		if err := fn(band, s.clock.Now()); err != nil {
			return err
		}
		if band.Active {
			if err := checkOverlap(ctx, repos, band); err != nil {
				return err
			}
		}
		if err := repos.UpdateBand(ctx, band); err != nil {
			return err
		}
		out = band
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func checkOverlap(ctx context.Context, repos port.Repositories, band *domain.SegmentationBand) error {
	existing, err := repos.ListBands(ctx, band.SegmentationID, true)
	if err != nil {
		return err
	}
	if other := domain.FindOverlappingBand(band.Area, existing, band.ID); other != nil {
		return &domain.ErrConflict{
			Resource:     "segmentation_band",
			ConflictWith: other.ID,
			Message:      band.Area.String() + " overlaps " + other.Area.String(),
		}
	}
	return nil
}

// ListBands lists a segmentation's bands ordered by lower bound.
func (s *SegmentationService) ListBands(ctx context.Context, segmentationID string, activeOnly bool) ([]domain.SegmentationBand, error) {
	ctx, span := segTracer.Start(ctx, "SegmentationService.ListBands")
	defer span.End()

	return s.store.ListBands(ctx, segmentationID, activeOnly)
}

// FindBandForArea returns the active band containing area, or nil. More
// than one match is an internal inconsistency: it is logged and counted,
// and the lowest band wins.
func (s *SegmentationService) FindBandForArea(ctx context.Context, segmentationID string, area decimal.Decimal) (_ *domain.SegmentationBand, err error) {
	ctx, span := segTracer.Start(ctx, "SegmentationService.FindBandForArea")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, "find_band_for_area", t, err) }(time.Now())
	span.SetAttributes(
		attribute.String("segmentation.id", segmentationID),
		attribute.String("area", area.String()),
	)

	bands, err := s.store.ListBands(ctx, segmentationID, true)
	if err != nil {
		return nil, err
	}
	band, matches := domain.FindBandForArea(bands, area)
	if matches > 1 {
		s.metrics.IncrBandInconsistency()
		s.logger.Warn("area matched several active bands",
			zap.String("segmentation_id", segmentationID),
			zap.String("area", area.String()),
			zap.Int("matches", matches),
			zap.String("chosen_band_id", band.ID),
		)
	}
	return band, nil
}

// ============================================================
// Band discounts
// ============================================================

// SetDiscount creates the band discount for a category.
func (s *SegmentationService) SetDiscount(ctx context.Context, bandID, categoryID string, pct decimal.Decimal, notes string) (_ *domain.BandDiscount, err error) {
	ctx, span := segTracer.Start(ctx, "SegmentationService.SetDiscount")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, "set_band_discount", t, err) }(time.Now())
	span.SetAttributes(
		attribute.String("band.id", bandID),
		attribute.String("category.id", categoryID),
	)

	d, err := domain.NewBandDiscount(bandID, categoryID, pct, notes, s.clock.Now())
	if err != nil {
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		if _, err := repos.GetBand(ctx, bandID); err != nil {
			return err
		}
		existing, err := repos.FindBandDiscount(ctx, bandID, categoryID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &domain.ErrDuplicateKey{Resource: "band_discount", Key: bandID + "/" + categoryID}
		}
		return repos.InsertBandDiscount(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// UpdateDiscount edits a band discount; (band, category) stays unique.
func (s *SegmentationService) UpdateDiscount(ctx context.Context, discountID, categoryID string, pct decimal.Decimal, active bool, notes string) (_ *domain.BandDiscount, err error) {
	ctx, span := segTracer.Start(ctx, "SegmentationService.UpdateDiscount")
	defer span.End()
	defer func(t time.Time) { finish(span, s.metrics, "update_band_discount", t, err) }(time.Now())
	span.SetAttributes(attribute.String("discount.id", discountID))

	if err := domain.ValidatePercentage("percentage", pct); err != nil {
		return nil, err
	}

	var out *domain.BandDiscount
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		d, err := repos.GetBandDiscount(ctx, discountID)
		if err != nil {
			return err
		}
		other, err := repos.FindBandDiscount(ctx, d.BandID, categoryID)
		if err != nil {
			return err
		}
		if other != nil && other.ID != d.ID {
			return &domain.ErrDuplicateKey{Resource: "band_discount", Key: d.BandID + "/" + categoryID}
		}
		if err := d.Update(categoryID, pct, active, notes, s.clock.Now()); err != nil {
			return err
		}
		if err := repos.UpdateBandDiscount(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListDiscounts lists the category discounts of a band.
func (s *SegmentationService) ListDiscounts(ctx context.Context, bandID string) ([]domain.BandDiscount, error) {
	ctx, span := segTracer.Start(ctx, "SegmentationService.ListDiscounts")
	defer span.End()

	return s.store.ListBandDiscounts(ctx, bandID)
}

// FindDiscount returns the band discount for a category, or nil.
func (s *SegmentationService) FindDiscount(ctx context.Context, bandID, categoryID string) (*domain.BandDiscount, error) {
	ctx, span := segTracer.Start(ctx, "SegmentationService.FindDiscount")
	defer span.End()

	return s.store.FindBandDiscount(ctx, bandID, categoryID)
}
