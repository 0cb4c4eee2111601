// Package proxy provides the chat proxy: it validates chat requests, forwards
// them to the AI backend and relays the shaped reply.
package proxy

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/papercomputeco/chatbox/pkg/backend"
	"github.com/papercomputeco/chatbox/pkg/chat"
	"github.com/papercomputeco/chatbox/pkg/metrics"
	"github.com/papercomputeco/chatbox/proxy/header"
)

const (
	chatPath    = "/chat"
	metricsPath = "/metrics"

	// Greeting is the body of GET /.
	Greeting = "Hello World!"

	requestIDKey = "requestid"
	startedAtKey = "started_at"
)

// Forwarder sends a validated chat request to the backend.
type Forwarder interface {
	Forward(ctx context.Context, req *chat.ChatRequest, hdr http.Header) (*chat.ChatResponse, error)
}

// Proxy is the chat proxy server. It holds no per-request state, so
// concurrent requests are independent.
type Proxy struct {
	config        Config
	logger        *slog.Logger
	server        *fiber.App
	address       *backend.Address
	forwarder     Forwarder
	metrics       *metrics.Collector
	headerHandler *header.Handler
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithForwarder replaces the backend client.
func WithForwarder(f Forwarder) Option {
	return func(p *Proxy) {
		p.forwarder = f
	}
}

// New creates a new Proxy.
// The backend address is resolved here, so a *backend.ConfigurationError is
// returned before any request is served.
func New(config Config, logger *slog.Logger, opts ...Option) (*Proxy, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	address, err := backend.NewAddress(config.Backend)
	if err != nil {
		return nil, err
	}

	p := &Proxy{
		config:        config,
		logger:        logger,
		address:       address,
		headerHandler: header.NewHandler(),
	}
	if config.Metrics {
		p.metrics = metrics.New()
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.forwarder == nil {
		p.forwarder = backend.NewClient(address, config.clientConfig(),
			backend.WithLogger(logger),
			backend.WithMetrics(p.metrics),
		)
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		ErrorHandler:          p.handleError,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Header:     header.RequestIDHeader,
		Generator:  uuid.NewString,
		ContextKey: requestIDKey,
	}))
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(startedAtKey, time.Now())
		return c.Next()
	})

	app.Get("/", p.handleRoot)
	app.Post(chatPath, p.handleChat)
	if p.metrics != nil {
		app.Get(metricsPath, adaptor.HTTPHandler(p.metrics.Handler()))
	}

	p.server = app
	return p, nil
}

// Run starts the proxy server on the given listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		"listen", p.config.ListenAddr,
		"backend", p.address.URL(),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		"listen", listener.Addr().String(),
		"backend", p.address.URL(),
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the proxy, letting in-flight requests finish.
func (p *Proxy) Close() error {
	return p.server.Shutdown()
}

// BackendURL returns the currently resolved chat endpoint.
func (p *Proxy) BackendURL() string {
	return p.address.URL()
}

// RefreshBackend resolves the backend address again from s. In-flight
// requests keep the address they started with. On error the current
// address stays in place.
func (p *Proxy) RefreshBackend(s backend.Sources) error {
	changed, err := p.address.Refresh(s)
	if err != nil {
		p.logger.Error("could not refresh backend address", "error", err)
		return err
	}
	if changed {
		p.logger.Info("backend address changed", "backend", p.address.URL())
	}
	return nil
}

func (p *Proxy) handleRoot(c *fiber.Ctx) error {
	return c.SendString(Greeting)
}

// handleChat validates the request, forwards it and relays the reply. The
// forwarder is never called for an invalid request.
func (p *Proxy) handleChat(c *fiber.Ctx) error {
	req, err := chat.ParseRequest(c.Body())
	if err != nil {
		return err
	}

	hdr := p.headerHandler.UpstreamRequestHeaders(c)
	hdr.Set(header.RequestIDHeader, requestID(c))

	resp, err := p.forwarder.Forward(c.Context(), req, hdr)
	if err != nil {
		return err
	}

	if err := resp.Validate(); err != nil {
		return &InternalError{Err: err}
	}

	elapsed := time.Since(startedAt(c))
	p.metrics.ObserveRequest(fiber.StatusOK, elapsed)
	p.logger.LogAttrs(c.Context(), slog.LevelInfo, "chat request served",
		logAttrs(c, fiber.StatusOK, elapsed)...,
	)

	return c.Status(fiber.StatusOK).JSON(resp)
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func startedAt(c *fiber.Ctx) time.Time {
	if t, ok := c.Locals(startedAtKey).(time.Time); ok {
		return t
	}
	return time.Now()
}
