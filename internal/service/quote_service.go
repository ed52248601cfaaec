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
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var quoteTracer = otel.Tracer("service/quote")

// QuoteRequest asks for the final price of one product for one producer.
// Optional ids left empty skip their lookup.
type QuoteRequest struct {
	CatalogID  string
	ProductID  string
	CategoryID string
	// StateCode is matched against price structure entries ("SP", "MT").
	StateCode string
	// Date defaults to the clock's today.
	Date time.Time

	SupplierID string
	// SegmentationID pins the segmentation; otherwise it is resolved from
	// the producer's municipality.
	SegmentationID string
	Producer       domain.Producer

	ComboID string
	// DeliveryPointID selects the combo delivery point; empty uses the
	// combo default.
	DeliveryPointID string
	// FallbackUnitPrice is used when the catalog has no price.
	FallbackUnitPrice *decimal.Decimal
}

// Quote is a composed price with the lookups that fed it.
type Quote struct {
	ProductID      string                `json:"product_id"`
	CategoryID     string                `json:"category_id"`
	PriceSource    domain.PriceSource    `json:"price_source,omitempty"`
	SegmentationID string                `json:"segmentation_id,omitempty"`
	BandID         string                `json:"band_id,omitempty"`
	Breakdown      domain.PriceBreakdown `json:"breakdown"`
}

// ComboQuoteRequest asks for the prices of every item in a combo.
type ComboQuoteRequest struct {
	ComboID         string
	CatalogID       string
	StateCode       string
	Date            time.Time
	SegmentationID  string
	Producer        domain.Producer
	DeliveryPointID string
}

// ComboItemQuote is the quote of one combo line.
type ComboItemQuote struct {
	ItemID    string          `json:"item_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Quote     Quote           `json:"quote"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// ComboQuote carries the eligibility decision and, when eligible, the
// quoted items in display order.
type ComboQuote struct {
	Eligibility domain.EligibilityResult `json:"eligibility"`
	Items       []ComboItemQuote         `json:"items,omitempty"`
	Total       decimal.Decimal          `json:"total"`
}

// QuoteService composes final prices from catalog, segmentation and combo
// data. A missing lookup skips its step; only store failures are errors.
type QuoteService struct {
	catalogs      *CatalogService
	segmentations *SegmentationService
	store         port.Store
	clock         port.Clock
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// NewQuoteService creates the quote service.
func NewQuoteService(
	catalogs *CatalogService,
	segmentations *SegmentationService,
	store port.Store,
	clock port.Clock,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *QuoteService {
	return &QuoteService{
		catalogs:      catalogs,
		segmentations: segmentations,
		store:         store,
		clock:         clock,
		metrics:       metrics,
		logger:        logger,
	}
}

// ResolveFinalPrice quotes one product.
func (s *QuoteService) ResolveFinalPrice(ctx context.Context, req QuoteRequest) (_ *Quote, err error) {
	ctx, span := quoteTracer.Start(ctx, "QuoteService.ResolveFinalPrice")
	defer span.End()
	defer func(t time.Time) { s.done(span, "resolve_final_price", t, err) }(time.Now())
	span.SetAttributes(
		attribute.String("product.id", req.ProductID),
		attribute.String("category.id", req.CategoryID),
	)

	var combo *domain.Combo
	if req.ComboID != "" {
		combo, err = s.findCombo(ctx, req.ComboID)
		if err != nil {
			return nil, err
		}
		if combo != nil && req.SupplierID == "" {
			req.SupplierID = combo.SupplierID
		}
		if combo != nil {
			offer := domain.EvaluateOffer(combo, req.Producer, s.clock.Now())
			s.metrics.IncrEligibility(offer.Reason)
			if !offer.Eligible {
				// The combo's own discounts are not granted; band pricing still applies.
				span.SetAttributes(attribute.String("eligibility.reason", string(offer.Reason)))
				s.logger.Debug("combo not offerable to producer, pricing without it",
					zap.String("combo_id", combo.ID),
					zap.String("reason", string(offer.Reason)),
				)
				combo = nil
			}
		}
	}

	priceTier, err := s.resolveTier(ctx, req.SupplierID, req.SegmentationID, req.Producer)
	if err != nil {
		return nil, err
	}

	return s.quote(ctx, req, priceTier, combo)
}

// QuoteCombo checks that the combo is offered and the producer is
// eligible, and only then quotes every item.
func (s *QuoteService) QuoteCombo(ctx context.Context, req ComboQuoteRequest) (_ *ComboQuote, err error) {
	ctx, span := quoteTracer.Start(ctx, "QuoteService.QuoteCombo")
	defer span.End()
	defer func(t time.Time) { s.done(span, "quote_combo", t, err) }(time.Now())
	span.SetAttributes(attribute.String("combo.id", req.ComboID))

	combo, err := s.store.GetCombo(ctx, req.ComboID)
	if err != nil {
		return nil, err
	}

	out := &ComboQuote{Eligibility: domain.EvaluateOffer(combo, req.Producer, s.clock.Now())}
	s.metrics.IncrEligibility(out.Eligibility.Reason)
	if !out.Eligibility.Eligible {
		span.SetAttributes(attribute.String("eligibility.reason", string(out.Eligibility.Reason)))
		return out, nil
	}

	priceTier, err := s.resolveTier(ctx, combo.SupplierID, req.SegmentationID, req.Producer)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, item := range combo.SortedItems() {
		unit := item.UnitPrice
		q, err := s.quote(ctx, QuoteRequest{
			CatalogID:         req.CatalogID,
			ProductID:         item.ProductID,
			CategoryID:        item.CategoryID,
			StateCode:         req.StateCode,
			Date:              req.Date,
			SupplierID:        combo.SupplierID,
			Producer:          req.Producer,
			ComboID:           combo.ID,
			DeliveryPointID:   req.DeliveryPointID,
			FallbackUnitPrice: &unit,
		}, priceTier, combo)
		if err != nil {
			return nil, err
		}
		line := q.Breakdown.Final.Mul(item.Quantity).Round(2)
		total = total.Add(line)
		out.Items = append(out.Items, ComboItemQuote{
			ItemID:    item.ID,
			Quantity:  item.Quantity,
			Quote:     *q,
			LineTotal: line,
		})
	}
	out.Total = total
	return out, nil
}

// tier is the segmentation band applying to a producer, resolved once per
// request.
type tier struct {
	segmentationID string
	band           *domain.SegmentationBand
}

func (s *QuoteService) resolveTier(ctx context.Context, supplierID, segmentationID string, producer domain.Producer) (tier, error) {
	if segmentationID == "" {
		if supplierID == "" {
			return tier{}, nil
		}
		seg, err := s.segmentations.ResolveSegmentation(ctx, supplierID, producer.MunicipalityID)
		if err != nil {
			return tier{}, err
		}
		if seg == nil {
			return tier{}, nil
		}
		segmentationID = seg.ID
	}

	band, err := s.segmentations.FindBandForArea(ctx, segmentationID, producer.Hectares)
	if err != nil {
		return tier{}, err
	}
	return tier{segmentationID: segmentationID, band: band}, nil
}

func (s *QuoteService) quote(ctx context.Context, req QuoteRequest, t tier, combo *domain.Combo) (*Quote, error) {
	date := req.Date
	if date.IsZero() {
		date = s.clock.Now()
	}

	q := &Quote{ProductID: req.ProductID, CategoryID: req.CategoryID, SegmentationID: t.segmentationID}
	in := domain.CompositionInput{Hectares: req.Producer.Hectares, FallbackUnitPrice: req.FallbackUnitPrice}

	if req.CatalogID != "" {
		res, err := s.catalogs.ResolvePrice(ctx, req.CatalogID, req.ProductID, req.StateCode, date)
		switch {
		case err == nil && res.Inactive:
			// An item switched off in the catalog is priced as if unlisted.
		case err == nil:
			in.CatalogPrice = &res.Price
			q.PriceSource = res.Source
		case !IsNotFound(err):
			return nil, err
		}
	}

	if t.band != nil {
		q.BandID = t.band.ID
		if req.CategoryID != "" {
			bd, err := s.store.FindBandDiscount(ctx, t.band.ID, req.CategoryID)
			if err != nil {
				return nil, err
			}
			in.BandDiscount = bd
		}
	}

	if combo != nil {
		if cd, ok := combo.CategoriaDesconto(req.CategoryID); ok {
			in.CategoryDiscount = &cd
		}
		var (
			dp domain.ComboLocalRecebimento
			ok bool
		)
		if req.DeliveryPointID != "" {
			dp, ok = combo.LocalRecebimento(req.DeliveryPointID)
		} else {
			dp, ok = combo.DefaultLocalRecebimento()
		}
		if ok {
			in.DeliveryPoint = &dp
		}
	}

	q.Breakdown = domain.ComposeFinalPrice(in)
	if !q.Breakdown.BaseFound {
		s.logger.Debug("no base price for quote",
			zap.String("catalog_id", req.CatalogID),
			zap.String("product_id", req.ProductID),
		)
	}
	return q, nil
}

func (s *QuoteService) findCombo(ctx context.Context, comboID string) (*domain.Combo, error) {
	c, err := s.store.GetCombo(ctx, comboID)
	if IsNotFound(err) {
		return nil, nil
	}
	return c, err
}

func (s *QuoteService) done(span trace.Span, op string, start time.Time, err error) {
	finish(span, s.metrics, op, start, err)
	if err != nil {
		s.metrics.IncrQuote("error")
		return
	}
	s.metrics.IncrQuote("ok")
}
