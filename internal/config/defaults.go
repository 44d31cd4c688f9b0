package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultServiceURL         = "wss://app.example-points.net"
	DefaultProtocolVersion    = "4.26.2"
	DefaultStorePath          = "~/.pointwatch/state.json"
	DefaultStoreFlush         = 5 * time.Second
	DefaultPingInterval       = 10 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultReconnectBaseDelay = 5 * time.Second
	DefaultReconnectMaxDelay  = 10 * time.Minute
	DefaultSweepInterval      = 60 * time.Second
	DefaultBufferSize         = 64
	DefaultEstimatorInterval  = 60 * time.Second
	DefaultHistoryBatchSize   = 100
	DefaultHistoryFlush       = 5 * time.Second
	DefaultMetricsPort        = 8080
	DefaultMetricsPath        = "/metrics"
)

func (c *Config) applyDefaults() {
	if c.Service.URL == "" {
		c.Service.URL = DefaultServiceURL
	}
	if c.Service.Version == "" {
		c.Service.Version = DefaultProtocolVersion
	}

	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	// Negative is a deliberate "flush every merge" setting, left alone.
	if c.Store.FlushInterval == 0 {
		c.Store.FlushInterval = DefaultStoreFlush
	}

	if c.Connections.PingInterval == 0 {
		c.Connections.PingInterval = DefaultPingInterval
	}
	if c.Connections.HandshakeTimeout == 0 {
		c.Connections.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connections.ReconnectBaseDelay == 0 {
		c.Connections.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connections.ReconnectMaxDelay == 0 {
		c.Connections.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connections.SweepInterval == 0 {
		c.Connections.SweepInterval = DefaultSweepInterval
	}
	if c.Connections.BufferSize == 0 {
		c.Connections.BufferSize = DefaultBufferSize
	}

	if c.Estimator.Interval == 0 {
		c.Estimator.Interval = DefaultEstimatorInterval
	}

	if c.History.BatchSize == 0 {
		c.History.BatchSize = DefaultHistoryBatchSize
	}
	if c.History.FlushInterval == 0 {
		c.History.FlushInterval = DefaultHistoryFlush
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
