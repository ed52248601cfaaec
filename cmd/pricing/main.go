package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/agro-commercial-go/internal/config"
	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/handler"
	"github.com/boddenberg/agro-commercial-go/internal/infra/cache"
	"github.com/boddenberg/agro-commercial-go/internal/infra/client"
	"github.com/boddenberg/agro-commercial-go/internal/infra/clock"
	"github.com/boddenberg/agro-commercial-go/internal/infra/memstore"
	"github.com/boddenberg/agro-commercial-go/internal/infra/observability"
	"github.com/boddenberg/agro-commercial-go/internal/infra/postgres"
	"github.com/boddenberg/agro-commercial-go/internal/infra/resilience"
	"github.com/boddenberg/agro-commercial-go/internal/port"
	"github.com/boddenberg/agro-commercial-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (yaml, json or toml)")
	flag.Parse()

	// --- Config ---
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, cfg.ServiceName)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.Bool("geography_enabled", cfg.GeographyAPIURL != ""),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Store ---
	ctx := context.Background()
	var store port.Store
	var deps []handler.Dependency

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnLifetime: cfg.DBMaxConnLife,
			MaxConnIdleTime: cfg.DBMaxConnIdle,
		})
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		pg := postgres.New(pool, resilienceCfg, logger)
		if cfg.MigrateOnStart {
			if err := pg.Migrate(ctx); err != nil {
				logger.Fatal("failed to apply schema", zap.Error(err))
			}
			logger.Info("schema applied")
		}
		store = pg
		deps = append(deps, handler.Dependency{Name: "postgres", Pinger: pg})
		logger.Info("using postgres store")
	default:
		store = memstore.New()
		logger.Warn("using in-memory store, data is lost on restart")
	}

	// --- Geography ---
	var geography port.Geography
	if cfg.GeographyAPIURL != "" {
		cb := resilience.NewCircuitBreaker("geography", func(err error) bool {
			return err == nil || domain.IsDomainError(err)
		})
		geography = client.NewGeographyClient(
			&http.Client{Timeout: cfg.HTTPTimeout},
			cfg.GeographyAPIURL,
			cb,
			resilienceCfg,
			cache.New[int64](cfg.GeographyCacheTTL),
		)
	} else {
		logger.Warn("geography not configured, territory matching falls back to default segmentations")
	}

	// --- Services ---
	clk := clock.System{}
	engine := service.NewEngine(store, geography, cache.New[*domain.CatalogItem](cfg.CacheTTL), clk, metrics, logger)

	valid, err := engine.Catalogs.ListValidCatalogs(ctx, clk.Now())
	if err != nil {
		logger.Fatal("store check failed", zap.Error(err))
	}
	logger.Info("pricing engine ready", zap.Int("valid_catalogs", len(valid)))

	// --- Router ---
	router := handler.NewRouter(deps, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
