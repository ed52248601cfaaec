package postgres

import (
	"context"
	"fmt"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/port"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// repos implements port.Repositories on a querier.
type repos struct {
	q querier
}

var _ port.Repositories = (*repos)(nil)

// parseDecimal reads a numeric column selected as text.
func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode %s: %w", column, err)
	}
	return d, nil
}

func parseInterval(column, lo string, hi *string) (domain.Interval, error) {
	lower, err := parseDecimal(column+"_min", lo)
	if err != nil {
		return domain.Interval{}, err
	}
	if hi == nil {
		return domain.NewOpenInterval(lower), nil
	}
	upper, err := parseDecimal(column+"_max", *hi)
	if err != nil {
		return domain.Interval{}, err
	}
	return domain.NewInterval(lower, upper), nil
}

// upperBound renders a nullable numeric parameter.
func upperBound(i domain.Interval) *string {
	if i.Max == nil {
		return nil
	}
	s := i.Max.String()
	return &s
}

// expectRow turns an update or delete that touched nothing into NotFound.
func expectRow(tag pgconn.CommandTag, err error, resource, id string) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: resource, ID: id}
	}
	return nil
}
