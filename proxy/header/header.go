// Package header provides header filtering for the chatbox proxy.
//
// The proxy sits between a caller and the AI backend like so:
//
//	Caller <--> Proxy <--> AI backend
//
// Each leg negotiates its own connection, encoding and body framing, and the
// proxy re-encodes the chat request before forwarding it, so only end-to-end
// caller headers are passed along.
package header

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// RequestIDHeader carries the correlation id for a chat request. It is
// forwarded to the backend and echoed to the caller.
const RequestIDHeader = "X-Request-ID"

// Handler manages headers between proxy connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// skipRequest is the set of request headers (caller --> proxy --> backend)
// that are not forwarded to the backend.
var skipRequest = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Connection":    {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},

	// The Host header is rewritten by Go's http.Transport to match the
	// backend URL.
	"Host": {},

	// Go's http.Transport adds its own "Accept-Encoding: gzip" and
	// transparently decompresses the backend response.
	"Accept-Encoding": {},

	// The body is re-encoded, so framing and type are set by the forwarder.
	"Content-Length": {},
	"Content-Type":   {},
	"Accept":         {},
}

// UpstreamRequestHeaders returns the caller's headers from the Fiber context
// that should be forwarded to the backend.
func (h *Handler) UpstreamRequestHeaders(c *fiber.Ctx) http.Header {
	out := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := http.CanonicalHeaderKey(string(key))
		if _, skip := skipRequest[k]; !skip {
			out.Add(k, string(value))
		}
	})
	return out
}
