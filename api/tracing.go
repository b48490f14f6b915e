package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chatapp/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// requestIDHeader carries the request ID in both directions
const requestIDHeader = "X-Request-ID"

// requestIDMiddleware tags every request with an ID, logs its completion and
// records the request metrics.
//
// An incoming X-Request-ID is honoured after sanitization; otherwise a UUID
// is generated. The ID is echoed in the response header.
func (a *API) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := sanitizeRequestID(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := WithRequestID(r.Context(), requestID)

		wrapped := &responseWriterWrapper{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		duration := time.Since(start)
		group := routeGroup(r.URL.Path)
		metrics.HTTPRequests.WithLabelValues(group, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(group).Observe(duration.Seconds())

		a.logger.Infow("request_completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"remote_addr", getRealIP(r, a.config.HTTP.TrustProxy, a.config.HTTP.TrustedProxyNetworks),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

// routeGroup maps a path onto a bounded label set for metrics
func routeGroup(path string) string {
	switch {
	case path == "/api/auth" || strings.HasPrefix(path, "/api/auth/"):
		return "auth"
	case path == "/api/messages" || strings.HasPrefix(path, "/api/messages/"):
		return "messages"
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "health"
	case path == "/ws":
		return "ws"
	case path == "/metrics":
		return "metrics"
	default:
		return "other"
	}
}

// responseWriterWrapper wraps http.ResponseWriter to capture the status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code before writing it
func (w *responseWriterWrapper) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Write implements http.ResponseWriter.Write and ensures status code is captured
func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	if !w.written {
		w.statusCode = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// Hijack lets the websocket upgrader take over the connection
func (w *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying ResponseWriter does not support hijacking")
	}
	// 101 Switching Protocols is written by the upgrader on the raw connection
	w.statusCode = http.StatusSwitchingProtocols
	w.written = true
	return hijacker.Hijack()
}

// Flush implements http.Flusher when the underlying writer does
func (w *responseWriterWrapper) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// sanitizeRequestID cleans a request ID to prevent log injection.
// Only alphanumerics, dashes and underscores survive; max 64 characters.
func sanitizeRequestID(id string) string {
	const maxLen = 64

	if len(id) > maxLen {
		id = id[:maxLen]
	}

	result := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') ||
			c == '-' || c == '_' {
			result = append(result, c)
		}
	}
	return string(result)
}

// LogWithRequestID returns a logger with the request_id field attached
func LogWithRequestID(r *http.Request, logger *zap.SugaredLogger) *zap.SugaredLogger {
	return logger.With("request_id", GetRequestIDOrDefault(r.Context()))
}
