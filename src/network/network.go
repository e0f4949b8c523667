package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"market-feed/src/helpers"
	"market-feed/src/logger"
	"market-feed/src/models"

	"golang.org/x/time/rate"
)

const userAgent = "market-feed/1.0"

// AsyncNetworkManager performs paced GET requests with retries.
type AsyncNetworkManager struct {
	Config  models.MHistoryConfig
	Client  *http.Client
	Limiter *rate.Limiter
	Logger  *logger.Logger

	retryDelay time.Duration
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg models.MHistoryConfig, log *logger.Logger) *AsyncNetworkManager {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &AsyncNetworkManager{
		Config:     cfg,
		Client:     &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second},
		Limiter:    rate.NewLimiter(limit, burst),
		Logger:     log,
		retryDelay: 500 * time.Millisecond,
	}
}

// -----------------------------------------------------------------------------

// statusError reports a non-200 response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("bad status: %d", e.code)
}

// -----------------------------------------------------------------------------

// Get performs a GET request with pacing and retries.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, params map[string]string) ([]byte, error) {
	reqURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	q := reqURL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	reqURL.RawQuery = q.Encode()
	finalURL := reqURL.String()

	return helpers.RetryWithBackoff(ctx, nm.Logger, "GET "+reqURL.Path, nm.Config.MaxRetries, nm.retryDelay,
		func(ctx context.Context) ([]byte, error) {
			return nm.do(ctx, finalURL)
		})
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) do(ctx context.Context, finalURL string) ([]byte, error) {
	if err := nm.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := nm.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		nm.Logger.Warning("Request throttled by server (429)")
		return nil, &statusError{code: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}
