package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
)

// corsMiddleware allows credentialed requests from the single origin
// configured for the current mode and answers preflight requests itself.
func (a *API) corsMiddleware(next http.Handler) http.Handler {
	allowedOrigin := a.config.AllowedOrigin()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", allowedOrigin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			} else {
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// jsonBodyMiddleware reads and validates JSON request bodies up to the
// configured limit. The validated bytes are stored in the request context
// and the body is replaced so it can be read again.
func (a *API) jsonBodyMiddleware(next http.Handler) http.Handler {
	limit := a.config.HTTP.JSONBodyLimit

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody || !isJSONContentType(r.Header.Get("Content-Type")) {
			next.ServeHTTP(w, r)
			return
		}

		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, http.StatusRequestEntityTooLarge, CodeBodyTooLarge, "Request body too large", err, a.logger)
				return
			}
			writeError(w, http.StatusBadRequest, CodeInvalidJSON, "Failed to read request body", err, a.logger)
			return
		}

		if len(bytes.TrimSpace(data)) > 0 {
			if !json.Valid(data) {
				writeError(w, http.StatusBadRequest, CodeInvalidJSON, "Invalid JSON in request body", nil, a.logger)
				return
			}
			r = r.WithContext(WithJSONBody(r.Context(), json.RawMessage(data)))
		}
		r.Body = io.NopCloser(bytes.NewReader(data))

		next.ServeHTTP(w, r)
	})
}

// cookieMiddleware exposes the request cookies as a name to value mapping.
// The first cookie wins when a name repeats.
func (a *API) cookieMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookies := make(map[string]string)
		for _, c := range r.Cookies() {
			if _, exists := cookies[c.Name]; !exists {
				cookies[c.Name] = c.Value
			}
		}
		next.ServeHTTP(w, r.WithContext(WithCookies(r.Context(), cookies)))
	})
}

// isJSONContentType accepts application/json and +json media types
func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
