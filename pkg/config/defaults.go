package config

import "time"

const (
	defaultProxyListen = ":3000"

	defaultBackendMode         = "development"
	defaultBackendTimeout      = 30 * time.Second
	defaultBackendRetryBackoff = 250 * time.Millisecond

	defaultLogFormat = "pretty"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	metrics := true
	return &Config{
		Version: CurrentV,
		Proxy: ProxyConfig{
			Listen:  defaultProxyListen,
			Metrics: &metrics,
		},
		Backend: BackendConfig{
			Mode:         defaultBackendMode,
			Timeout:      defaultBackendTimeout,
			RetryBackoff: defaultBackendRetryBackoff,
		},
		Log: LogConfig{
			Format: defaultLogFormat,
		},
	}
}
