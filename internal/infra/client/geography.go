// Package client holds HTTP clients for reference-data collaborators.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/infra/resilience"
	"github.com/boddenberg/agro-commercial-go/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("client")

var _ port.Geography = (*GeographyClient)(nil)

// GeographyClient resolves municipalities against the address
// reference-data API. Answers are cached; the mapping is static.
type GeographyClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	cache      port.Cache[int64]
}

// NewGeographyClient creates a new GeographyClient. cache may be nil.
func NewGeographyClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, cache port.Cache[int64]) *GeographyClient {
	return &GeographyClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
		cache:      cache,
	}
}

type municipality struct {
	ID      int64 `json:"id"`
	StateID int64 `json:"stateId"`
}

// MunicipalityState returns the state a municipality belongs to, with
// retry, circuit breaker, and tracing.
func (c *GeographyClient) MunicipalityState(ctx context.Context, municipalityID int64) (int64, error) {
	ctx, span := tracer.Start(ctx, "GeographyClient.MunicipalityState")
	defer span.End()
	span.SetAttributes(attribute.Int64("municipality.id", municipalityID))

	key := strconv.FormatInt(municipalityID, 10)
	if c.cache != nil {
		if stateID, ok := c.cache.Get(key); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return stateID, nil
		}
	}

	result, err := c.cb.Execute(func() (any, error) {
		var m municipality
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			url := fmt.Sprintf("%s/v1/municipalities/%d", c.baseURL, municipalityID)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return resilience.Permanent(err)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusNotFound:
				return resilience.Permanent(&domain.ErrNotFound{Resource: "municipality", ID: key})
			case resp.StatusCode >= 500:
				return fmt.Errorf("geography API returned status %d", resp.StatusCode)
			case resp.StatusCode != http.StatusOK:
				return resilience.Permanent(fmt.Errorf("geography API returned status %d", resp.StatusCode))
			}

			if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
				return resilience.Permanent(fmt.Errorf("decode municipality: %w", err))
			}
			return nil
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return m.StateID, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("geography: %w", err)
	}

	stateID := result.(int64)
	if c.cache != nil {
		c.cache.Set(key, stateID)
	}
	return stateID, nil
}
