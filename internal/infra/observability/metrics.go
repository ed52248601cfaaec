package observability

import (
	"time"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the pricing subsystem.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration   *prometheus.HistogramVec
	storeErrors         *prometheus.CounterVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	eligibility         *prometheus.CounterVec
	degradedDocuments   *prometheus.CounterVec
	bandInconsistencies prometheus.Counter
	quotesTotal         *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agro_pricing_operation_duration_seconds",
				Help:    "Duration of pricing operations by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agro_pricing_store_errors_total",
				Help: "Total persistence collaborator errors by operation.",
			},
			[]string{"operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agro_pricing_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agro_pricing_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		eligibility: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agro_pricing_combo_eligibility_total",
				Help: "Combo eligibility evaluations by reason.",
			},
			[]string{"reason"},
		),
		degradedDocuments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agro_pricing_degraded_documents_total",
				Help: "Malformed semi-structured documents that fell back to a default.",
			},
			[]string{"document"},
		),
		bandInconsistencies: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agro_pricing_band_inconsistencies_total",
				Help: "Area lookups that matched more than one active segmentation band.",
			},
		),
		quotesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agro_pricing_quotes_total",
				Help: "Total price quotations by status.",
			},
			[]string{"status"},
		),
	}
}

// RecordOperationDuration records the duration of an operation.
func (m *Metrics) RecordOperationDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(operation string) {
	m.storeErrors.WithLabelValues(operation).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrEligibility counts an eligibility decision.
func (m *Metrics) IncrEligibility(reason domain.EligibilityReason) {
	m.eligibility.WithLabelValues(string(reason)).Inc()
}

// IncrDegradedDocument counts a malformed document that degraded to its default.
func (m *Metrics) IncrDegradedDocument(document string) {
	m.degradedDocuments.WithLabelValues(document).Inc()
}

// IncrBandInconsistency counts an area matching several active bands.
func (m *Metrics) IncrBandInconsistency() {
	m.bandInconsistencies.Inc()
}

// IncrQuote increments the quote counter with a status label.
func (m *Metrics) IncrQuote(status string) {
	m.quotesTotal.WithLabelValues(status).Inc()
}

// Snapshot returns the current counter values for the health endpoint.
func (m *Metrics) Snapshot() *domain.PricingMetrics {
	eligible := getCounterValue(m.eligibility, string(domain.ReasonEligible))
	rejected := getCounterValue(m.eligibility, string(domain.ReasonNotInVigency)) +
		getCounterValue(m.eligibility, string(domain.ReasonHectaresOutOfRange)) +
		getCounterValue(m.eligibility, string(domain.ReasonMunicipalityNotAllowed)) +
		getCounterValue(m.eligibility, string(domain.ReasonComboNotOfferable))
	hits := getCounterValue(m.cacheHits, "catalog_item")
	misses := getCounterValue(m.cacheMisses, "catalog_item")

	degraded := getCounterValue(m.degradedDocuments, "price_structure") +
		getCounterValue(m.degradedDocuments, "territory")

	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.PricingMetrics{
		QuotesOK:            int64(getCounterValue(m.quotesTotal, "ok")),
		QuotesFailed:        int64(getCounterValue(m.quotesTotal, "error")),
		EligibleChecks:      int64(eligible),
		RejectedChecks:      int64(rejected),
		BandInconsistencies: int64(readCounter(m.bandInconsistencies)),
		CatalogCacheHitRate: hitRate,
		DegradedDocuments:   int64(degraded),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return readCounter(cv.WithLabelValues(label))
}

func readCounter(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
