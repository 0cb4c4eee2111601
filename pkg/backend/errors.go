package backend

import (
	"errors"
	"fmt"
)

// Stable error kinds reported to callers.
const (
	KindBackendUnavailable = "BackendUnavailableError"
	KindConfiguration      = "ConfigurationError"
)

// ErrResponseTooLarge is the cause when a backend reply exceeds MaxResponseBytes.
var ErrResponseTooLarge = errors.New("backend response too large")

// BackendUnavailableError means the backend could not produce a usable reply:
// the call failed in transport, timed out, returned a non-2xx status, or
// returned a body that does not have the response shape.
type BackendUnavailableError struct {
	// Status is the HTTP status received, or 0 when no response arrived.
	Status int

	Cause error
}

func (e *BackendUnavailableError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("backend unavailable: %v", e.Cause)
	case e.Status != 0:
		return fmt.Sprintf("backend unavailable: status %d", e.Status)
	default:
		return "backend unavailable"
	}
}

func (e *BackendUnavailableError) Unwrap() error { return e.Cause }

// Kind returns KindBackendUnavailable.
func (e *BackendUnavailableError) Kind() string { return KindBackendUnavailable }

// ConfigurationError means no usable backend address or client setting could
// be derived from the configuration.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Kind returns KindConfiguration.
func (e *ConfigurationError) Kind() string { return KindConfiguration }
