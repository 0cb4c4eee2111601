package proxy

import (
	"time"

	"github.com/papercomputeco/chatbox/pkg/backend"
)

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":3000")
	ListenAddr string `validate:"required"`

	// Backend holds the sources the chat endpoint is resolved from.
	Backend backend.Sources

	// Timeout bounds each forwarded call. Zero uses backend.DefaultTimeout.
	Timeout time.Duration `validate:"gte=0"`

	// MaxRetries enables retrying transport errors and 5xx replies.
	MaxRetries uint `validate:"lte=10"`

	// RetryBackoff is the initial wait between retries.
	RetryBackoff time.Duration `validate:"gte=0"`

	// Metrics exposes GET /metrics when true.
	Metrics bool
}

// Validate checks c and reports the first problem as a
// *backend.ConfigurationError.
func (c Config) Validate() error {
	return backend.ValidateStruct(c)
}

func (c Config) clientConfig() backend.ClientConfig {
	return backend.ClientConfig{
		Timeout:      c.Timeout,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
	}
}
