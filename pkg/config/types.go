package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent chatbox configuration stored as config.toml
// in the .chatbox/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Proxy   ProxyConfig   `toml:"proxy"`
	Backend BackendConfig `toml:"backend"`
	Log     LogConfig     `toml:"log"`
}

// ProxyConfig holds settings for the inbound HTTP server.
type ProxyConfig struct {
	Listen string `toml:"listen,omitempty"`

	// Metrics is a pointer so an explicit false survives default merging.
	Metrics *bool `toml:"metrics,omitempty"`
}

// MetricsEnabled reports whether GET /metrics is served. Unset means enabled.
func (p ProxyConfig) MetricsEnabled() bool {
	return p.Metrics == nil || *p.Metrics
}

// BackendConfig holds the AI backend address sources and call policy.
type BackendConfig struct {
	// ChatURL is a full chat endpoint override.
	ChatURL string `toml:"chat_url,omitempty"`

	// BaseURL is the service root that "/chat" is appended to.
	BaseURL string `toml:"base_url,omitempty"`

	// Mode selects the built-in default address ("production" or "development").
	Mode string `toml:"mode,omitempty"`

	Timeout      time.Duration `toml:"timeout,omitempty"`
	MaxRetries   uint          `toml:"max_retries,omitempty"`
	RetryBackoff time.Duration `toml:"retry_backoff,omitempty"`
}

// LogConfig holds log output settings.
type LogConfig struct {
	Format string `toml:"format,omitempty"`
	File   string `toml:"file,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"proxy.listen": {
		get: func(c *Config) string { return c.Proxy.Listen },
		set: func(c *Config, v string) error { c.Proxy.Listen = v; return nil },
	},
	"proxy.metrics": {
		get: func(c *Config) string { return strconv.FormatBool(c.Proxy.MetricsEnabled()) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for proxy.metrics: %w", err)
			}
			c.Proxy.Metrics = &b
			return nil
		},
	},
	"backend.chat_url": {
		get: func(c *Config) string { return c.Backend.ChatURL },
		set: func(c *Config, v string) error { c.Backend.ChatURL = v; return nil },
	},
	"backend.base_url": {
		get: func(c *Config) string { return c.Backend.BaseURL },
		set: func(c *Config, v string) error { c.Backend.BaseURL = v; return nil },
	},
	"backend.mode": {
		get: func(c *Config) string { return c.Backend.Mode },
		set: func(c *Config, v string) error { c.Backend.Mode = v; return nil },
	},
	"backend.timeout": {
		get: func(c *Config) string { return c.Backend.Timeout.String() },
		set: func(c *Config, v string) error {
			d, err := parsePositiveDuration("backend.timeout", v)
			if err != nil {
				return err
			}
			c.Backend.Timeout = d
			return nil
		},
	},
	"backend.max_retries": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Backend.MaxRetries), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for backend.max_retries: %w", err)
			}
			c.Backend.MaxRetries = uint(n)
			return nil
		},
	},
	"backend.retry_backoff": {
		get: func(c *Config) string { return c.Backend.RetryBackoff.String() },
		set: func(c *Config, v string) error {
			d, err := parsePositiveDuration("backend.retry_backoff", v)
			if err != nil {
				return err
			}
			c.Backend.RetryBackoff = d
			return nil
		},
	},
	"log.format": {
		get: func(c *Config) string { return c.Log.Format },
		set: func(c *Config, v string) error {
			switch v {
			case "pretty", "json", "text":
				c.Log.Format = v
				return nil
			default:
				return fmt.Errorf("invalid value for log.format: %q (available: pretty, json, text)", v)
			}
		},
	},
	"log.file": {
		get: func(c *Config) string { return c.Log.File },
		set: func(c *Config, v string) error { c.Log.File = v; return nil },
	},
}

func parsePositiveDuration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid value for %s: must be positive", key)
	}
	return d, nil
}
