package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
	Metrics  *PricingMetrics `json:"metrics,omitempty"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
	Error       string `json:"error,omitempty"`
}

// PricingMetrics is a point-in-time view of the pricing counters.
type PricingMetrics struct {
	QuotesOK            int64   `json:"quotesOk"`
	QuotesFailed        int64   `json:"quotesFailed"`
	EligibleChecks      int64   `json:"eligibleChecks"`
	RejectedChecks      int64   `json:"rejectedChecks"`
	BandInconsistencies int64   `json:"bandInconsistencies"`
	CatalogCacheHitRate float64 `json:"catalogCacheHitRate"`
	DegradedDocuments   int64   `json:"degradedDocuments"`
}
