// Package handler exposes the operational HTTP surface of the pricing
// process: liveness, readiness and Prometheus metrics.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/infra/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger is a dependency whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency names a Pinger in health reports.
type Dependency struct {
	Name   string
	Pinger Pinger
}

const pingTimeout = 2 * time.Second

// NewRouter creates the ops router. deps may be empty, e.g. with the
// in-memory store.
func NewRouter(deps []Dependency, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger.With(zap.String("component", "ops")), "/ping", "/metrics"))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(deps, metrics, logger))
	r.Get("/readyz", readyzHandler(deps, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return r
}

func healthzHandler(deps []Dependency, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "Handler.Healthz")
		defer span.End()

		services := []domain.ServiceHealth{
			{Name: "agro-pricing", Status: "healthy", LastChecked: time.Now().UTC().Format(time.RFC3339)},
		}
		for _, dep := range deps {
			services = append(services, check(ctx, dep))
		}

		overall := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overall = "degraded"
				logger.Warn("dependency unhealthy", zap.String("dependency", s.Name), zap.String("error", s.Error))
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overall,
			Services: services,
			Metrics:  metrics.Snapshot(),
		})
	}
}

func readyzHandler(deps []Dependency, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, dep := range deps {
			if s := check(r.Context(), dep); s.Status != "healthy" {
				logger.Warn("not ready", zap.String("dependency", dep.Name), zap.String("error", s.Error))
				writeUnavailable(w, dep.Name, s.Error)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func check(ctx context.Context, dep Dependency) domain.ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	err := dep.Pinger.Ping(ctx)
	s := domain.ServiceHealth{
		Name:        dep.Name,
		Status:      "healthy",
		LatencyMs:   time.Since(start).Milliseconds(),
		LastChecked: start.UTC().Format(time.RFC3339),
	}
	if err != nil {
		s.Status = "unhealthy"
		s.Error = err.Error()
	}
	return s
}
