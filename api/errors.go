package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"unicode/utf8"

	"chatapp/core"
	"chatapp/storage"

	"go.uber.org/zap"
)

// Error codes returned in the "code" field of every error body
const (
	CodeInvalidJSON          = "invalid_json"
	CodeBodyTooLarge         = "body_too_large"
	CodeUnsupportedMediaType = "unsupported_media_type"
	CodeValidationFailed     = "validation_failed"
	CodeUnauthorized         = "unauthorized"
	CodeNotFound             = "not_found"
	CodeMethodNotAllowed     = "method_not_allowed"
	CodeConflict             = "conflict"
	CodeRateLimited          = "rate_limited"
	CodeDatabaseUnavailable  = "database_unavailable"
	CodeInternalError        = "internal_error"
)

// ErrorResponse is the JSON body of every error response
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

var (
	connStringPattern = regexp.MustCompile(`(?:mongodb(?:\+srv)?|sqlite|redis)://[^\s"']+`)
	filePathPattern   = regexp.MustCompile(`(?:[A-Za-z]:\\|/)(?:[^\\/:*?"<>|\s]+[\\/])+[^\\/:*?"<>|\s]+`)
	privateIPPattern  = regexp.MustCompile(`\b(?:10|127)(?:\.\d{1,3}){3}(?::\d{1,5})?\b|\b192\.168(?:\.\d{1,3}){2}(?::\d{1,5})?\b|\b172\.(?:1[6-9]|2[0-9]|3[01])(?:\.\d{1,3}){2}(?::\d{1,5})?\b`)
	secretPattern     = regexp.MustCompile(`(?i)(password|secret|token|key)[:=]\s*["']?[^"'\s]+["']?`)
)

// sanitizeErrorMessage removes sensitive information from error messages before sending to clients
func sanitizeErrorMessage(message string) string {
	message = connStringPattern.ReplaceAllString(message, "[DATABASE_CONNECTION]")
	message = filePathPattern.ReplaceAllString(message, "[FILE_PATH]")
	message = privateIPPattern.ReplaceAllString(message, "[PRIVATE_IP]")
	message = secretPattern.ReplaceAllString(message, "$1=[REDACTED]")

	if len(message) > core.MaxErrorMessageLength {
		cut := core.MaxErrorMessageLength - 3
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut] + "..."
	}
	return message
}

// respondJSON writes data as a JSON response with the given status
func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; nothing more can be reported to the client
		return
	}
}

// writeError logs the full error and writes a sanitized {"message","code"} body.
// 4xx responses are logged at warn level, 5xx at error level.
func writeError(w http.ResponseWriter, status int, code, message string, err error, logger *zap.SugaredLogger) {
	if logger != nil {
		fields := []interface{}{"status_code", status, "code", code}
		if err != nil {
			fields = append(fields, "error", err.Error())
		}
		if status >= http.StatusInternalServerError {
			logger.Errorw(message, fields...)
		} else {
			logger.Warnw(message, fields...)
		}
	}

	respondJSON(w, ErrorResponse{
		Message: sanitizeErrorMessage(message),
		Code:    code,
	}, status)
}

// writeStorageError maps storage sentinel errors onto the error contract
func writeStorageError(w http.ResponseWriter, err error, logger *zap.SugaredLogger) {
	switch {
	case errors.Is(err, storage.ErrDatabaseUnavailable):
		writeError(w, http.StatusServiceUnavailable, CodeDatabaseUnavailable, "Database unavailable, try again shortly", err, logger)
	case errors.Is(err, storage.ErrUserNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "User not found", err, logger)
	case errors.Is(err, storage.ErrEmailExists):
		writeError(w, http.StatusBadRequest, CodeConflict, "Email already exists", err, logger)
	case errors.Is(err, storage.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Message must have text or image", err, logger)
	default:
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error", err, logger)
	}
}
