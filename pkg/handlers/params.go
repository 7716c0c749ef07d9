package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseRecordID extracts and validates the record ID from the request path.
// Returns uuid.Nil and false after writing an error response if it is not a UUID.
// Expects path parameter: id
func ParseRecordID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_record_id", "Invalid record ID format", logger)
}

func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(pathParam))
	if err != nil {
		writeError(w, http.StatusBadRequest, errorCode, errorMessage, logger)
		return uuid.Nil, false
	}
	return id, true
}

// ActorResolver names the user acting on a request. The display name comes
// from a request header; requests without one act as Default.
type ActorResolver struct {
	Header  string
	Default string
}

// Actor returns the acting user's display name for r.
func (a ActorResolver) Actor(r *http.Request) string {
	if a.Header != "" {
		if name := strings.TrimSpace(r.Header.Get(a.Header)); name != "" {
			return name
		}
	}
	return a.Default
}
