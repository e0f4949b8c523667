package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	LogLevel  string           `yaml:"log_level"`
	GrpcHost  string           `yaml:"grpc_host"`
	GrpcPort  int              `yaml:"grpc_port"`
	Feed      MFeedConfig      `yaml:"feed"`
	History   MHistoryConfig   `yaml:"history"`
	Storage   MStorageConfig   `yaml:"storage"`
	Simulator MSimulatorConfig `yaml:"simulator"`
	Symbols   []MSymbol        `yaml:"symbols"`
}

// MFeedConfig drives the live stream: transport, retry policy and throttling.
type MFeedConfig struct {
	WsURL                string  `yaml:"ws_url"`
	Symbol               string  `yaml:"symbol"` // default symbol shown by the UI
	ThrottleMs           int     `yaml:"throttle_ms"`
	MaxReconnectAttempts int     `yaml:"max_reconnect_attempts"`
	ReconnectDelayMs     int     `yaml:"reconnect_delay_ms"`
	MaxReconnectDelayMs  int     `yaml:"max_reconnect_delay_ms"`
	BackoffFactor        float64 `yaml:"backoff_factor"` // 1 = fixed delay
	ConnectTimeoutMs     int     `yaml:"connect_timeout_ms"`
}

type MHistoryConfig struct {
	RestURL           string  `yaml:"rest_url"`
	TSym              string  `yaml:"tsym"`
	PageLimit         int     `yaml:"page_limit"`
	MaxPages          int     `yaml:"max_pages"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	RequestTimeout    int     `yaml:"timeout"`
	MaxRetries        int     `yaml:"retries"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"` // sqlite, postgres or none
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RetentionDays      int    `yaml:"retention_days"`
}

type MSimulatorConfig struct {
	Enabled        bool  `yaml:"enabled"`
	Seed           int64 `yaml:"seed"`
	TickIntervalMs int   `yaml:"tick_interval_ms"`
	HistoryDepth   int   `yaml:"history_depth"` // bars available per resolution
}
