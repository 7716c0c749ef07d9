package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/labqms/pkg/apperrors"
	"github.com/ekaya-inc/labqms/pkg/logging"
)

// maxRequestBytes bounds ordinary JSON request bodies.
const maxRequestBytes = 1 << 20

// ApiResponse is the envelope of every JSON API response.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return WriteJSON(w, statusCode, ApiResponse{
		Success: false,
		Error:   errorCode,
		Message: message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeSuccess wraps data in a successful envelope.
func writeSuccess(w http.ResponseWriter, statusCode int, data any, logger *zap.Logger) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, statusCode int, errorCode, message string, logger *zap.Logger) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// statusForError maps a service error to an HTTP status and error code.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrInvalidDate):
		return http.StatusBadRequest, "invalid_date"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, apperrors.ErrDuplicateIdentifier):
		return http.StatusConflict, "duplicate_identifier"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrBlobStoreDisabled):
		return http.StatusServiceUnavailable, "archive_store_disabled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeServiceError writes the response for an error returned by a service.
// Server-side failures are logged with secrets stripped.
func writeServiceError(w http.ResponseWriter, err error, op string, logger *zap.Logger) {
	status, code := statusForError(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = logging.SanitizeError(err)
		logger.Error("Request failed", zap.String("operation", op), zap.String("error", message))
	} else {
		logger.Debug("Request rejected", zap.String("operation", op), zap.Error(err))
	}
	writeError(w, status, code, message, logger)
}

// decodeJSON reads a size-limited JSON body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) bool {
	return decodeJSONLimit(w, r, dst, maxRequestBytes, logger)
}

func decodeJSONLimit(w http.ResponseWriter, r *http.Request, dst any, limit int64, logger *zap.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "Request body too large", logger)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", logger)
		return false
	}
	return true
}

// readBody reads a body of at most limit bytes, writing a 413 or 400 on failure.
func readBody(w http.ResponseWriter, r *http.Request, limit int64, logger *zap.Logger) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "Request body too large", logger)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body", logger)
		return nil, false
	}
	return raw, true
}
