package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/chis/regview/internal/logging"
)

// CorrelationIDHeader carries the request correlation ID in both directions.
const CorrelationIDHeader = "X-Correlation-ID"

// contextKey is used for storing values in request context.
type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	requestStartKey  contextKey = "request_start"
)

// CorrelationIDMiddleware adds a correlation ID to each request.
// The ID is generated if not present in the X-Correlation-ID header.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		w.Header().Set(CorrelationIDHeader, correlationID)

		// Add to request context
		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		ctx = logging.WithCorrelationID(ctx, correlationID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLoggingMiddleware logs incoming requests and their duration.
func RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		// Add start time to context
		ctx := context.WithValue(r.Context(), requestStartKey, start)

		// Log request start (debug level for high-frequency endpoints)
		if isHighFrequencyEndpoint(r.URL.Path) {
			logging.DebugContext(ctx, "Request started: %s %s", r.Method, r.URL.Path)
		} else {
			logging.InfoContext(ctx, "Request started: %s %s", r.Method, r.URL.Path)
		}

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		// Log request completion
		duration := time.Since(start)
		statusCode := wrapped.statusCode

		logger := logging.Default().WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      statusCode,
			"duration_ms": duration.Milliseconds(),
			"client_ip":   getClientIP(r),
		})

		switch {
		case statusCode >= 500:
			logger.ErrorContext(ctx, "Request failed: %s %s - %d", r.Method, r.URL.Path, statusCode)
		case statusCode >= 400:
			logger.WarnContext(ctx, "Request error: %s %s - %d", r.Method, r.URL.Path, statusCode)
		case isHighFrequencyEndpoint(r.URL.Path):
			logger.DebugContext(ctx, "Request completed: %s %s - %d (%dms)", r.Method, r.URL.Path, statusCode, duration.Milliseconds())
		default:
			logger.InfoContext(ctx, "Request completed: %s %s - %d (%dms)", r.Method, r.URL.Path, statusCode, duration.Milliseconds())
		}
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, which the
// SSE handler needs for flushing and deadlines.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Flush implements http.Flusher for handlers that type-assert it directly.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// isHighFrequencyEndpoint returns true for endpoints that are called frequently
// and should use debug logging to avoid log spam.
func isHighFrequencyEndpoint(path string) bool {
	highFrequencyPaths := []string{
		"/api/health",
		"/api/events",
		"/api/repositories",
	}

	for _, p := range highFrequencyPaths {
		if path == p {
			return true
		}
	}
	return false
}

// GetCorrelationID retrieves the correlation ID from a request context.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ChainMiddleware chains multiple middleware functions together.
// Middleware is applied in the order provided (first middleware wraps outermost).
func ChainMiddleware(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	// Apply in reverse order so first middleware is outermost
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}
