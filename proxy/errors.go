package proxy

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatbox/pkg/backend"
	"github.com/papercomputeco/chatbox/pkg/schema"
)

// KindInternal is reported for failures inside the proxy itself.
const KindInternal = "InternalError"

// KindHTTP is reported for routing failures such as unknown paths.
const KindHTTP = "HTTPError"

// InternalError marks a failure inside the proxy, such as a shaped reply
// that does not satisfy the response contract.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string { return "internal error: " + e.Err.Error() }

func (e *InternalError) Unwrap() error { return e.Err }

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request. Code is the request id, which is
// also the correlation key in the server logs.
type ErrorDetail struct {
	Kind    string              `json:"kind"`
	Message string              `json:"message"`
	Code    string              `json:"code"`
	Details []schema.FieldError `json:"details,omitempty"`
}

// classify maps an error to its status and caller-facing detail. Messages
// are fixed strings so backend addresses never leak to callers.
func classify(err error) (int, ErrorDetail) {
	var (
		internalErr    *InternalError
		validationErr  *schema.ValidationError
		unavailableErr *backend.BackendUnavailableError
		fiberErr       *fiber.Error
	)

	switch {
	case errors.As(err, &internalErr):
		return fiber.StatusInternalServerError, ErrorDetail{
			Kind:    KindInternal,
			Message: "internal error",
		}
	case errors.As(err, &unavailableErr):
		return fiber.StatusBadGateway, ErrorDetail{
			Kind:    backend.KindBackendUnavailable,
			Message: "the AI service is unavailable",
		}
	case errors.As(err, &validationErr):
		return fiber.StatusBadRequest, ErrorDetail{
			Kind:    schema.KindValidation,
			Message: "request validation failed",
			Details: validationErr.Fields,
		}
	case errors.As(err, &fiberErr):
		return fiberErr.Code, ErrorDetail{
			Kind:    KindHTTP,
			Message: fiberErr.Message,
		}
	default:
		return fiber.StatusInternalServerError, ErrorDetail{
			Kind:    KindInternal,
			Message: "internal error",
		}
	}
}

// handleError is the Fiber error handler. It writes the error body, logs the
// full cause under the request id, and records the request.
func (p *Proxy) handleError(c *fiber.Ctx, err error) error {
	status, detail := classify(err)
	detail.Code = requestID(c)

	attrs := []any{
		"request_id", detail.Code,
		"status", status,
		"kind", detail.Kind,
		"path", c.Path(),
		"error", err,
	}
	switch {
	case status >= fiber.StatusInternalServerError && status != fiber.StatusBadGateway:
		p.logger.Error("chat request failed", attrs...)
	case status == fiber.StatusBadGateway:
		p.logger.Warn("backend unavailable", attrs...)
	default:
		p.logger.Debug("request rejected", attrs...)
	}

	if c.Route().Path == chatPath {
		p.metrics.ObserveRequest(status, time.Since(startedAt(c)))
	}

	return c.Status(status).JSON(ErrorResponse{Error: detail})
}

// logAttrs is used for outcomes that are logged outside handleError.
func logAttrs(c *fiber.Ctx, status int, d time.Duration) []slog.Attr {
	return []slog.Attr{
		slog.String("request_id", requestID(c)),
		slog.Int("status", status),
		slog.Duration("duration", d),
	}
}
