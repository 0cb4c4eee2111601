package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/papercomputeco/chatbox/pkg/chat"
	"github.com/papercomputeco/chatbox/pkg/logger"
	"github.com/papercomputeco/chatbox/pkg/metrics"
)

const (
	// DefaultTimeout bounds a whole Forward call, retries included.
	DefaultTimeout = 30 * time.Second

	// DefaultRetryBackoff is the first wait between retried attempts.
	DefaultRetryBackoff = 250 * time.Millisecond

	// MaxResponseBytes caps how much of a backend reply is read.
	MaxResponseBytes = 8 << 20
)

// ClientConfig tunes the outbound call.
type ClientConfig struct {
	// Timeout bounds the whole call. Zero means DefaultTimeout.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after a transport error or
	// 5xx status. Zero disables retries.
	MaxRetries uint

	// RetryBackoff is the initial backoff interval. Zero means DefaultRetryBackoff.
	RetryBackoff time.Duration
}

// Client forwards chat requests to the backend at a resolved Address.
type Client struct {
	addr       *Address
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Collector
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the shared http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics records backend outcomes on m.
func WithMetrics(m *metrics.Collector) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a Client for addr.
func NewClient(addr *Address, config ClientConfig, opts ...ClientOption) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultRetryBackoff
	}

	c := &Client{
		addr:   addr,
		config: config,
		// The deadline comes from the request context
		httpClient: &http.Client{},
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type reply struct {
	status int
	body   []byte
}

// Forward sends req to the backend and returns the shaped reply.
//
// Every failure to obtain a usable reply is a *BackendUnavailableError,
// including a deadline expiry and a malformed 2xx body. hdr holds caller
// headers that are already filtered for forwarding.
func (c *Client) Forward(ctx context.Context, req *chat.ChatRequest, hdr http.Header) (*chat.ChatResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	target := c.addr.URL()
	start := time.Now()

	c.logger.Debug("forwarding chat request",
		"url", target,
		"model", req.Model,
		"session_id", req.SessionID,
	)

	r, err := backoff.Retry(ctx,
		func() (*reply, error) {
			return c.attempt(ctx, target, payload, hdr)
		},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.config.MaxRetries+1),
		backoff.WithMaxElapsedTime(c.config.Timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.metrics.IncRetry()
			c.logger.Warn("backend call failed, will retry",
				"error", err,
				"next", next,
			)
		}),
	)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.ObserveBackend(metrics.OutcomeUnavailable, elapsed)
		return nil, asUnavailable(err)
	}

	shaped, err := chat.ShapeResponse(r.body, chat.DefaultsFor(req, time.Now(), elapsed))
	if err != nil {
		c.metrics.ObserveBackend(metrics.OutcomeMalformed, elapsed)
		return nil, &BackendUnavailableError{Status: r.status, Cause: err}
	}

	c.metrics.ObserveBackend(metrics.OutcomeSuccess, elapsed)
	if shaped.Fallback {
		c.metrics.IncFallback()
	}
	if len(shaped.Defaulted) > 0 {
		c.logger.Debug("backend reply missing fields",
			"defaulted", shaped.Defaulted,
			"fallback", shaped.Fallback,
		)
	}

	return shaped.Response, nil
}

// attempt performs one POST. Errors that retrying cannot fix are wrapped
// with backoff.Permanent.
func (c *Client) attempt(ctx context.Context, target string, payload []byte, hdr http.Header) (*reply, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(&BackendUnavailableError{Cause: err})
	}

	for k, v := range hdr {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		unavailable := &BackendUnavailableError{Cause: err}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(unavailable)
		}
		return nil, unavailable
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, &BackendUnavailableError{
			Status: httpResp.StatusCode,
			Cause:  fmt.Errorf("reading backend response: %w", err),
		}
	}
	if len(body) > MaxResponseBytes {
		return nil, backoff.Permanent(&BackendUnavailableError{Status: httpResp.StatusCode, Cause: ErrResponseTooLarge})
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		unavailable := &BackendUnavailableError{
			Status: httpResp.StatusCode,
			Cause:  fmt.Errorf("backend returned status %d", httpResp.StatusCode),
		}
		if httpResp.StatusCode >= 500 {
			return nil, unavailable
		}
		return nil, backoff.Permanent(unavailable)
	}

	return &reply{status: httpResp.StatusCode, body: body}, nil
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.RetryBackoff
	return b
}

// asUnavailable normalizes what backoff.Retry returns. A context expiry
// between attempts comes back bare.
func asUnavailable(err error) *BackendUnavailableError {
	var unavailable *BackendUnavailableError
	if errors.As(err, &unavailable) {
		return unavailable
	}
	return &BackendUnavailableError{Cause: err}
}
