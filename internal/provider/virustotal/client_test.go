package virustotal

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
	"go.uber.org/zap"

	"github.com/Harsh-BH/Intelligenter/internal/provider"
	"github.com/Harsh-BH/Intelligenter/internal/retry"
)

const okBody = `{"data":{"attributes":{"last_analysis_date":1700000000,
	"last_analysis_stats":{"malicious":1},
	"last_analysis_results":{"Engine":{"category":"malicious"}}}}}`

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*Config)) (*Client, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 200 * time.Millisecond,
		Retry:   retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClient(cfg, srv.Client(), zap.NewNop()), &calls
}

func TestAnalyzeReputation_Success(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/domains/example.com", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get(apiKeyHeader))
		_, _ = w.Write([]byte(okBody))
	}, nil)

	fact, err := c.AnalyzeReputation(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, fact.NumberOfDetection)
	assert.Equal(t, "Engine", fact.DetectedEngines)
	assert.False(t, fact.Synthetic)
	assert.EqualValues(t, 1, calls.Load())
}

func TestAnalyzeReputation_RetriesTransientFailures(t *testing.T) {
	var n atomic.Int32
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(okBody))
	}, nil)

	fact, err := c.AnalyzeReputation(context.Background(), "example.com")
	require.NoError(t, err)
	require.NotNil(t, fact)
	assert.EqualValues(t, 3, calls.Load())
}

func TestAnalyzeReputation_ExhaustedRetriesReturnProviderError(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, nil)

	_, err := c.AnalyzeReputation(context.Background(), "example.com")

	var pe *provider.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, provider.ErrorProviderOutage, pe.Category)
	assert.EqualValues(t, 4, calls.Load(), "initial attempt plus three retries")
}

func TestAnalyzeReputation_PermanentFailuresAreNotRetried(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound} {
		c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}, nil)

		_, err := c.AnalyzeReputation(context.Background(), "example.com")
		require.Error(t, err)
		assert.EqualValues(t, 1, calls.Load(), "status %d", code)
	}
}

func TestAnalyzeReputation_TimeoutCountsAsAttempt(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}, func(cfg *Config) {
		cfg.Timeout = 20 * time.Millisecond
		cfg.Retry = retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}
	})

	_, err := c.AnalyzeReputation(context.Background(), "example.com")
	require.Error(t, err)
	assert.Equal(t, provider.ErrorTimeout, provider.GetCategory(err))
	assert.EqualValues(t, 2, calls.Load())
}

func TestAnalyzeReputation_SyntheticModeAfterRetries(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, func(cfg *Config) { cfg.Synthetic = true })

	fact, err := c.AnalyzeReputation(context.Background(), "example.com")
	require.NoError(t, err)
	assert.True(t, fact.Synthetic)
	assert.Equal(t, SyntheticFact(), fact)
	assert.EqualValues(t, 4, calls.Load(), "synthetic data only after the retry budget is spent")
}

func TestAnalyzeReputation_MissingKeySkipsNetwork(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	}, func(cfg *Config) { cfg.APIKey = "" })

	fact, err := c.AnalyzeReputation(context.Background(), "example.com")
	require.NoError(t, err)
	assert.True(t, fact.Synthetic)
	assert.EqualValues(t, 0, calls.Load())
}
