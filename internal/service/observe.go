// Package service provides the pricing use cases: catalog price
// resolution, segmentation tiers, combo eligibility and the final price
// composition. Every mutation runs inside a single store transaction.
package service

import (
	"time"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/infra/observability"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// finish closes out an operation: latency histogram, span status and the
// store error counter for failures that are not typed domain errors.
func finish(span trace.Span, m *observability.Metrics, op string, start time.Time, err error) {
	m.RecordOperationDuration(op, time.Since(start))
	if err == nil {
		return
	}
	span.RecordError(err)
	if domain.IsDomainError(err) {
		return
	}
	span.SetStatus(codes.Error, err.Error())
	m.IncrStoreError(op)
}
