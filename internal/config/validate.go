package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Service.URL)
	if err != nil {
		return fmt.Errorf("service.url is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("service.url scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("service.url host is required")
	}

	for i, p := range c.Proxies {
		pu, err := url.Parse(p)
		if err != nil {
			return fmt.Errorf("proxies[%d] is not a valid URL: %w", i, err)
		}
		if pu.Scheme == "" || pu.Host == "" {
			return fmt.Errorf("proxies[%d] must include a scheme and host, got %q", i, p)
		}
	}

	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}

	if c.Connections.PingInterval <= 0 {
		return errors.New("connections.ping_interval must be > 0")
	}
	if c.Connections.ReconnectBaseDelay <= 0 {
		return errors.New("connections.reconnect_base_delay must be > 0")
	}
	if c.Connections.ReconnectMaxDelay < c.Connections.ReconnectBaseDelay {
		return fmt.Errorf("connections.reconnect_max_delay (%s) cannot be less than reconnect_base_delay (%s)",
			c.Connections.ReconnectMaxDelay, c.Connections.ReconnectBaseDelay)
	}
	if c.Connections.BufferSize < 1 {
		return errors.New("connections.buffer_size must be >= 1")
	}

	if c.Estimator.Interval <= 0 {
		return errors.New("estimator.interval must be > 0")
	}

	if c.History.DSN != "" {
		if c.History.BatchSize < 1 {
			return errors.New("history.batch_size must be >= 1")
		}
		if c.History.FlushInterval <= 0 {
			return errors.New("history.flush_interval must be > 0")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}
