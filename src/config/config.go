package config

import (
	"fmt"
	"os"

	"market-feed/src/models"

	"gopkg.in/yaml.v3"
)

// Defaults applied to zero-valued options after the YAML file is parsed.
const (
	DefaultThrottleMs           = 250
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelayMs     = 1000
	DefaultMaxReconnectDelayMs  = 30000
	DefaultBackoffFactor        = 2.0
	DefaultConnectTimeoutMs     = 10000
	DefaultPageLimit            = 2000
	DefaultMaxPages             = 10
	DefaultRequestTimeout       = 10
	DefaultRetentionDays        = 30
	DefaultHistoryDepth         = 1000
	DefaultTickIntervalMs       = 1000
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from a YAML file
func NewConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}
	return Parse(data)
}

// -----------------------------------------------------------------------------

// Parse builds a Config from raw YAML, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	// Keys written explicitly keep their value, zero included.
	var explicit struct {
		Feed map[string]interface{} `yaml:"feed"`
	}
	if err := yaml.Unmarshal(data, &explicit); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults(explicit.Feed)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults(feedKeys map[string]interface{}) {
	unset := func(key string) bool {
		_, ok := feedKeys[key]
		return !ok
	}

	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}

	f := &c.Feed
	if f.ThrottleMs == 0 && unset("throttle_ms") {
		f.ThrottleMs = DefaultThrottleMs
	}
	if f.MaxReconnectAttempts == 0 && unset("max_reconnect_attempts") {
		f.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if f.ReconnectDelayMs == 0 && unset("reconnect_delay_ms") {
		f.ReconnectDelayMs = DefaultReconnectDelayMs
	}
	if f.MaxReconnectDelayMs == 0 {
		f.MaxReconnectDelayMs = DefaultMaxReconnectDelayMs
	}
	if f.BackoffFactor == 0 {
		f.BackoffFactor = DefaultBackoffFactor
	}
	if f.ConnectTimeoutMs == 0 {
		f.ConnectTimeoutMs = DefaultConnectTimeoutMs
	}

	h := &c.History
	if h.PageLimit == 0 {
		h.PageLimit = DefaultPageLimit
	}
	if h.MaxPages == 0 {
		h.MaxPages = DefaultMaxPages
	}
	if h.RequestTimeout == 0 {
		h.RequestTimeout = DefaultRequestTimeout
	}
	if h.TSym == "" {
		h.TSym = "USD"
	}

	if c.Storage.DBType == "" {
		c.Storage.DBType = "none"
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = DefaultRetentionDays
	}

	if c.Simulator.HistoryDepth == 0 {
		c.Simulator.HistoryDepth = DefaultHistoryDepth
	}
	if c.Simulator.TickIntervalMs == 0 {
		c.Simulator.TickIntervalMs = DefaultTickIntervalMs
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Feed
	if !c.Simulator.Enabled && c.Feed.WsURL == "" {
		return fmt.Errorf("feed ws_url cannot be empty when the simulator is disabled")
	}
	if c.Feed.ThrottleMs < 0 {
		return fmt.Errorf("throttle_ms cannot be negative")
	}
	if c.Feed.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max_reconnect_attempts cannot be negative")
	}
	if c.Feed.ReconnectDelayMs < 0 {
		return fmt.Errorf("reconnect_delay_ms cannot be negative")
	}
	if c.Feed.BackoffFactor < 1 {
		return fmt.Errorf("backoff_factor must be >= 1, got %v", c.Feed.BackoffFactor)
	}
	if c.Feed.ConnectTimeoutMs <= 0 {
		return fmt.Errorf("connect_timeout_ms must be greater than 0")
	}

	// History
	if !c.Simulator.Enabled && c.History.RestURL == "" {
		return fmt.Errorf("history rest_url cannot be empty when the simulator is disabled")
	}
	if c.History.PageLimit <= 0 {
		return fmt.Errorf("page_limit must be greater than 0")
	}
	if c.History.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.History.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second cannot be negative")
	}

	// Storage
	switch c.Storage.DBType {
	case "none":
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Storage.DBType)
	}

	// Symbols
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol must be configured")
	}
	seen := make(map[string]struct{}, len(c.Symbols))
	for i, sym := range c.Symbols {
		if sym.Ticker == "" {
			return fmt.Errorf("symbol %d must have a ticker", i)
		}
		if sym.PricePrecision < 0 {
			return fmt.Errorf("symbol '%s' has negative price precision", sym.Ticker)
		}
		if _, dup := seen[sym.FullName()]; dup {
			return fmt.Errorf("symbol '%s' is configured twice", sym.FullName())
		}
		seen[sym.FullName()] = struct{}{}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}

// -----------------------------------------------------------------------------

// GetLogLevel lets the logger pick its minimum level from a *Config.
func (c *Config) GetLogLevel() string {
	if c == nil || c.MConfig == nil {
		return ""
	}
	return c.LogLevel
}
