package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/infra/cache"
	"github.com/boddenberg/agro-commercial-go/internal/infra/client"
	"github.com/boddenberg/agro-commercial-go/internal/infra/resilience"
)

var fastRetry = resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 1}

func newClient(srv *httptest.Server) *client.GeographyClient {
	cb := resilience.NewCircuitBreaker("geography-test", func(err error) bool {
		return err == nil || domain.IsDomainError(err)
	})
	return client.NewGeographyClient(srv.Client(), srv.URL, cb, fastRetry, cache.New[int64](time.Minute))
}

func TestMunicipalityState_CachesAnswer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/municipalities/3550308", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":3550308,"stateId":35}`))
	}))
	defer srv.Close()
	c := newClient(srv)

	for i := 0; i < 3; i++ {
		stateID, err := c.MunicipalityState(context.Background(), 3550308)
		require.NoError(t, err)
		assert.Equal(t, int64(35), stateID)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestMunicipalityState_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"id":1,"stateId":41}`))
	}))
	defer srv.Close()

	stateID, err := newClient(srv).MunicipalityState(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(41), stateID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestMunicipalityState_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newClient(srv).MunicipalityState(context.Background(), 9)
	var nf *domain.ErrNotFound
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "9", nf.ID)
	assert.Equal(t, int32(1), calls.Load())
}
