// Package backend resolves the address of the downstream AI service and
// forwards chat requests to it.
package backend

import (
	"errors"
	"strings"
	"sync/atomic"
)

// ChatPath is appended to a base URL to form the chat endpoint.
const ChatPath = "/chat"

// Deployment modes.
const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// defaultBaseURLs maps a deployment mode to the backend base URL used when
// neither an endpoint nor a base URL is configured. Unknown modes use the
// development entry.
var defaultBaseURLs = map[string]string{
	ModeProduction:  "http://ai:8000",
	ModeDevelopment: "http://127.0.0.1:8000",
}

// Sources are the configuration inputs to address resolution, highest
// precedence first.
type Sources struct {
	// ChatURL is a full chat endpoint, used verbatim.
	ChatURL string `validate:"omitempty,url"`

	// BaseURL is the service root; ChatPath is appended.
	BaseURL string `validate:"omitempty,url"`

	// Mode selects a built-in default base URL.
	Mode string
}

// Resolve computes the chat endpoint from s.
func Resolve(s Sources) (string, error) {
	if chatURL := strings.TrimSpace(s.ChatURL); chatURL != "" {
		return chatURL, nil
	}

	if base := strings.TrimSuffix(strings.TrimSpace(s.BaseURL), "/"); base != "" {
		return base + ChatPath, nil
	}

	if base := defaultBaseURL(s.Mode); base != "" {
		return base + ChatPath, nil
	}

	return "", &ConfigurationError{
		Field: "backend",
		Err:   errors.New("no chat url, base url or default for mode " + s.Mode),
	}
}

func defaultBaseURL(mode string) string {
	if base, ok := defaultBaseURLs[strings.ToLower(strings.TrimSpace(mode))]; ok {
		return base
	}
	return defaultBaseURLs[ModeDevelopment]
}

// Address holds the resolved chat endpoint. It is resolved once up front and
// only changes through Refresh. Safe for concurrent use.
type Address struct {
	url atomic.Pointer[string]
}

// NewAddress resolves s and returns the holder, or the resolution error.
func NewAddress(s Sources) (*Address, error) {
	resolved, err := Resolve(s)
	if err != nil {
		return nil, err
	}

	a := &Address{}
	a.url.Store(&resolved)
	return a, nil
}

// URL returns the current chat endpoint.
func (a *Address) URL() string {
	if p := a.url.Load(); p != nil {
		return *p
	}
	return ""
}

// Refresh validates and resolves s again, then swaps in the result. On error
// the previous address is kept. It reports whether the address changed.
func (a *Address) Refresh(s Sources) (bool, error) {
	if err := s.Validate(); err != nil {
		return false, err
	}

	resolved, err := Resolve(s)
	if err != nil {
		return false, err
	}

	previous := a.url.Swap(&resolved)
	return previous == nil || *previous != resolved, nil
}
