package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(client *http.Client) HTTPClientConfig {
	return HTTPClientConfig{
		Client: client,
		Backoff: BackoffConfig{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
	}
}

func TestDoRequestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	build := func() (*http.Request, error) { return http.NewRequest(http.MethodGet, srv.URL, nil) }
	resp, err := doRequestWithResilience(context.Background(), fastConfig(srv.Client()), newBreaker("test"), build)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoRequestGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	build := func() (*http.Request, error) { return http.NewRequest(http.MethodGet, srv.URL, nil) }
	_, err := doRequestWithResilience(context.Background(), fastConfig(srv.Client()), newBreaker("test"), build)
	assert.ErrorIs(t, err, errRateLimited)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoRequestValidatesConfig(t *testing.T) {
	build := func() (*http.Request, error) { return http.NewRequest(http.MethodGet, "http://unused", nil) }

	_, err := doRequestWithResilience(context.Background(), HTTPClientConfig{}, newBreaker("test"), build)
	assert.ErrorIs(t, err, errNoHTTPClient)

	cfg := fastConfig(http.DefaultClient)
	cfg.Backoff.InitialInterval = 0
	_, err = doRequestWithResilience(context.Background(), cfg, newBreaker("test"), build)
	assert.ErrorIs(t, err, errInvalidConfig)
}

func TestDoRequestHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	build := func() (*http.Request, error) { return http.NewRequest(http.MethodGet, "http://unused", nil) }
	_, err := doRequestWithResilience(ctx, fastConfig(http.DefaultClient), newBreaker("test"), build)
	assert.ErrorIs(t, err, context.Canceled)
}
