package config

import "time"

// Config is the root configuration for a pointwatch instance.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Proxies     []string          `yaml:"proxies"`
	ProxyFile   string            `yaml:"proxy_file"`
	Store       StoreConfig       `yaml:"store"`
	Connections ConnectionsConfig `yaml:"connections"`
	Estimator   EstimatorConfig   `yaml:"estimator"`
	History     HistoryConfig     `yaml:"history"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServiceConfig holds the points service endpoint settings.
type ServiceConfig struct {
	URL     string `yaml:"url"`     // websocket endpoint (scheme + host)
	Version string `yaml:"version"` // protocol version sent as a query param
	Token   string `yaml:"token"`   // bearer token; may also come from env or the state store
}

// StoreConfig holds persisted state store settings. FlushInterval is the
// coalescing window for disk writes; a negative value disables coalescing
// and writes on every merge, zero means unset and takes the default.
type StoreConfig struct {
	Path          string        `yaml:"path"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// ConnectionsConfig holds connection pool settings.
type ConnectionsConfig struct {
	PingInterval       time.Duration `yaml:"ping_interval"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	BufferSize         int           `yaml:"buffer_size"`
}

// EstimatorConfig holds reward estimator settings.
type EstimatorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// HistoryConfig holds the optional Postgres archive settings.
// The archive is disabled when DSN is empty.
type HistoryConfig struct {
	DSN           string        `yaml:"dsn"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// MetricsConfig holds the metrics/health HTTP server settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
