package network

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"market-feed/src/logger"
	"market-feed/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(cfg models.MHistoryConfig) *AsyncNetworkManager {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 2
	}
	nm := NewAsyncNetworkManager(cfg, logger.NewWriterLogger(io.Discard, "network", logger.LevelDebug))
	nm.retryDelay = time.Millisecond
	return nm
}

func TestGetEncodesParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "EURUSD", r.URL.Query().Get("fsym"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "market-feed/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	body, err := testManager(models.MHistoryConfig{}).Get(context.Background(), srv.URL+"/history", map[string]string{"fsym": "EURUSD", "limit": "100"})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	body, err := testManager(models.MHistoryConfig{MaxRetries: 3}).Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testManager(models.MHistoryConfig{MaxRetries: 1}).Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(2), calls.Load())
}

func TestLimiterPacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	nm := testManager(models.MHistoryConfig{RequestsPerSecond: 20})
	start := time.Now()
	for i := 0; i < 21; i++ {
		_, err := nm.Get(context.Background(), srv.URL, nil)
		require.NoError(t, err)
	}
	// Burst of 20 then one more token at 50ms.
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
