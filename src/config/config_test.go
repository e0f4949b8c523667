package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: market-feed
host: 127.0.0.1
port: 8000
log_level: DEBUG
simulator:
  enabled: true
  seed: 42
symbols:
  - ticker: EURUSD
    exchange: FX
    type: forex
    price_precision: 5
    supported_resolutions: ["1", "5", "60", "1D"]
    base_price: 1.085
  - ticker: BTCUSD
    exchange: COINBASE
    type: crypto
    price_precision: 2
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "market-feed", cfg.Name)
	assert.Equal(t, DefaultThrottleMs, cfg.Feed.ThrottleMs)
	assert.Equal(t, DefaultMaxReconnectAttempts, cfg.Feed.MaxReconnectAttempts)
	assert.Equal(t, DefaultReconnectDelayMs, cfg.Feed.ReconnectDelayMs)
	assert.Equal(t, DefaultBackoffFactor, cfg.Feed.BackoffFactor)
	assert.Equal(t, DefaultPageLimit, cfg.History.PageLimit)
	assert.Equal(t, "USD", cfg.History.TSym)
	assert.Equal(t, "none", cfg.Storage.DBType)
	assert.Equal(t, "DEBUG", cfg.GetLogLevel())
	require.Len(t, cfg.Symbols, 2)
	assert.Equal(t, 5, cfg.Symbols[0].PricePrecision)
	assert.Equal(t, "FX:EURUSD", cfg.Symbols[0].FullName())
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	testCases := []struct {
		desc string
		yaml string
	}{
		{"missing name", "host: h\nport: 8000\nsimulator: {enabled: true}\nsymbols: [{ticker: A}]"},
		{"low port", "name: n\nhost: h\nport: 80\nsimulator: {enabled: true}\nsymbols: [{ticker: A}]"},
		{"no ws url without simulator", "name: n\nhost: h\nport: 8000\nhistory: {rest_url: http://x}\nsymbols: [{ticker: A}]"},
		{"no symbols", "name: n\nhost: h\nport: 8000\nsimulator: {enabled: true}"},
		{"duplicate symbol", "name: n\nhost: h\nport: 8000\nsimulator: {enabled: true}\nsymbols: [{ticker: A}, {ticker: A}]"},
		{"sqlite without path", "name: n\nhost: h\nport: 8000\nsimulator: {enabled: true}\nstorage: {db_type: sqlite}\nsymbols: [{ticker: A}]"},
		{"unknown db", "name: n\nhost: h\nport: 8000\nsimulator: {enabled: true}\nstorage: {db_type: mongo}\nsymbols: [{ticker: A}]"},
		{"backoff below one", "name: n\nhost: h\nport: 8000\nsimulator: {enabled: true}\nfeed: {backoff_factor: 0.5}\nsymbols: [{ticker: A}]"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "feed.yaml")
	cfg.Feed.ThrottleMs = 75
	require.NoError(t, cfg.Save(path))

	loaded, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 75, loaded.Feed.ThrottleMs)
	assert.Equal(t, cfg.Symbols, loaded.Symbols)
}

func TestExplicitZeroFeedValuesAreKept(t *testing.T) {
	yml := sampleYAML + "feed:\n  throttle_ms: 0\n  max_reconnect_attempts: 0\n"
	cfg, err := Parse([]byte(yml))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Feed.ThrottleMs)
	assert.Equal(t, 0, cfg.Feed.MaxReconnectAttempts)
	assert.Equal(t, DefaultReconnectDelayMs, cfg.Feed.ReconnectDelayMs)

	path := filepath.Join(t.TempDir(), "feed.yaml")
	require.NoError(t, cfg.Save(path))
	loaded, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Feed.ThrottleMs)
	assert.Equal(t, 0, loaded.Feed.MaxReconnectAttempts)
}
