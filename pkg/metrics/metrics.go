// Package metrics exposes Prometheus metrics for the chat proxy.
//
// A nil *Collector is valid and records nothing, so components can be built
// without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatbox"

// Backend outcome labels.
const (
	OutcomeSuccess     = "success"
	OutcomeUnavailable = "unavailable"
	OutcomeMalformed   = "malformed"
)

// Collector owns a private registry and the proxy's metric instances.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	backendDuration *prometheus.HistogramVec
	backendRetries  prometheus.Counter
	fallbacks       prometheus.Counter
}

// New creates a Collector registered against a fresh registry. Go runtime
// and process collectors are included.
func New() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests handled, by response status code.",
		}, []string{"code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_request_duration_seconds",
			Help:      "End to end chat request latency, by response status code.",
			// Tuned for LLM round trips
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"code"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Latency of calls to the AI backend, by outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"outcome"}),
		backendRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "retries_total",
			Help:      "Retried calls to the AI backend.",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_responses_total",
			Help:      "Replies where the backend gave no message and the fallback text was used.",
		}),
	}

	registry.MustRegister(
		c.requests,
		c.requestDuration,
		c.backendDuration,
		c.backendRetries,
		c.fallbacks,
	)

	return c
}

// ObserveRequest records a handled chat request.
func (c *Collector) ObserveRequest(status int, d time.Duration) {
	if c == nil {
		return
	}
	code := strconv.Itoa(status)
	c.requests.WithLabelValues(code).Inc()
	c.requestDuration.WithLabelValues(code).Observe(d.Seconds())
}

// ObserveBackend records one forwarded call and its outcome.
func (c *Collector) ObserveBackend(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.backendDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// IncRetry counts a retried backend attempt.
func (c *Collector) IncRetry() {
	if c == nil {
		return
	}
	c.backendRetries.Inc()
}

// IncFallback counts a reply that used the fallback message.
func (c *Collector) IncFallback() {
	if c == nil {
		return
	}
	c.fallbacks.Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
