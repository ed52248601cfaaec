// Package postgres implements the pricing Store on PostgreSQL through a
// pgx connection pool. Every call runs behind a bulkhead and a circuit
// breaker; serialization failures and dropped connections are retried
// with backoff.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/infra/resilience"
	"github.com/boddenberg/agro-commercial-go/internal/port"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

var tracer = otel.Tracer("postgres")

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store is a port.Store backed by PostgreSQL.
type Store struct {
	pool     *pgxpool.Pool
	cb       *gobreaker.CircuitBreaker
	bulkhead *resilience.Bulkhead
	cfg      resilience.Config
	logger   *zap.Logger
}

var _ port.Store = (*Store)(nil)

// Connect opens a pool for connString and verifies it with a ping.
func Connect(ctx context.Context, connString string, pc PoolConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if pc.MaxConns > 0 {
		config.MaxConns = int32(pc.MaxConns)
	}
	if pc.MinConns > 0 {
		config.MinConns = int32(pc.MinConns)
	}
	if pc.MaxConnLifetime > 0 {
		config.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = pc.MaxConnIdleTime
	}
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

// New wraps an open pool. The caller owns the pool and closes it.
func New(pool *pgxpool.Pool, cfg resilience.Config, logger *zap.Logger) *Store {
	return &Store{
		pool:     pool,
		cb:       resilience.NewCircuitBreaker("postgres", isSuccessful),
		bulkhead: resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:      cfg,
		logger:   logger,
	}
}

// Migrate applies the embedded schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithinTx runs fn in a serializable transaction. fn may run more than
// once when the database reports a serialization failure, so it must not
// have side effects outside the repositories it is given.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	ctx, span := tracer.Start(ctx, "Postgres.WithinTx")
	defer span.End()

	attempts := 0
	err := s.guard(ctx, func() error {
		attempts++
		tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(ctx, &repos{q: tx}); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	span.SetAttributes(attribute.Int("tx.attempts", attempts))
	if err != nil && !domain.IsDomainError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if attempts > 1 {
		s.logger.Debug("postgres: transaction retried",
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}
	return err
}

// read runs a single-statement read on the pool.
func (s *Store) read(ctx context.Context, fn func(r *repos) error) error {
	return s.guard(ctx, func() error { return fn(&repos{q: s.pool}) })
}

// write runs a single write as its own transaction.
func (s *Store) write(ctx context.Context, fn func(r port.Repositories) error) error {
	return s.WithinTx(ctx, func(ctx context.Context, r port.Repositories) error { return fn(r) })
}

// guard applies bulkhead, circuit breaker and retry around op. Errors are
// translated to domain errors before the retry decision.
func (s *Store) guard(ctx context.Context, op func() error) error {
	if err := s.bulkhead.Acquire(ctx); err != nil {
		return err
	}
	defer s.bulkhead.Release()

	_, err := s.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, s.cfg, func() error {
			err := translate(op())
			if err == nil || retryable(err) {
				return err
			}
			return resilience.Permanent(err)
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Warn("postgres: circuit breaker rejected call", zap.Error(err))
		return fmt.Errorf("postgres unavailable: %w", err)
	}
	return err
}

// isSuccessful keeps domain outcomes and caller cancellations from
// tripping the breaker.
func isSuccessful(err error) bool {
	return err == nil ||
		domain.IsDomainError(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// SQLSTATE codes the store reacts to.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// constraint names that map to a conflict rather than a duplicate key.
var conflictConstraints = map[string]bool{
	"segmentations_single_default":            true,
	"combo_locais_recebimento_single_default": true,
}

func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		if conflictConstraints[pgErr.ConstraintName] {
			return &domain.ErrConflict{Resource: pgErr.TableName, Message: pgErr.Detail}
		}
		return &domain.ErrDuplicateKey{Resource: pgErr.TableName, Key: pgErr.ConstraintName}
	case codeForeignKeyViolation:
		return &domain.ErrNotFound{Resource: pgErr.TableName, ID: pgErr.Detail}
	case codeCheckViolation:
		return &domain.ErrInvalidArgument{Field: pgErr.ConstraintName, Message: pgErr.Message}
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
	}
	return pgconn.SafeToRetry(err)
}
