package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/labqms/pkg/lifecycle"
	"github.com/ekaya-inc/labqms/pkg/models"
	"github.com/ekaya-inc/labqms/pkg/services"
)

// NonConformityResponse is a saved record with its advisory findings.
type NonConformityResponse struct {
	Record   *models.NonConformity `json:"record"`
	Findings []lifecycle.Finding   `json:"findings"`
}

// BulkLoadResponse reports the outcome of a bulk load.
type BulkLoadResponse struct {
	Count   int                     `json:"count"`
	Records []*models.NonConformity `json:"records"`
}

// NonConformityHandler handles non-conformity HTTP requests.
type NonConformityHandler struct {
	service services.NonConformityService
	actors  ActorResolver
	logger  *zap.Logger
}

// NewNonConformityHandler creates a new NonConformityHandler.
func NewNonConformityHandler(service services.NonConformityService, actors ActorResolver, logger *zap.Logger) *NonConformityHandler {
	return &NonConformityHandler{
		service: service,
		actors:  actors,
		logger:  logger.Named("nonconformity-handler"),
	}
}

// RegisterRoutes registers the non-conformity routes on the given mux.
func (h *NonConformityHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/nonconformities", h.List)
	mux.HandleFunc("POST /api/nonconformities", h.Create)
	mux.HandleFunc("POST /api/nonconformities/bulk", h.BulkLoad)
	mux.HandleFunc("GET /api/nonconformities/{id}", h.Get)
	mux.HandleFunc("PUT /api/nonconformities/{id}", h.Update)
	mux.HandleFunc("DELETE /api/nonconformities/{id}", h.Delete)
	mux.HandleFunc("GET /api/nonconformities/{id}/review", h.Review)
}

// List handles GET /api/nonconformities.
func (h *NonConformityHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, err, "list_nonconformities", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, records, h.logger)
}

// Create handles POST /api/nonconformities. Submitted codes are ignored.
func (h *NonConformityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.NonConformity
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	created, err := h.service.Create(r.Context(), h.actors.Actor(r), &req)
	if err != nil {
		writeServiceError(w, err, "create_nonconformity", h.logger)
		return
	}
	writeSuccess(w, http.StatusCreated, h.withFindings(created), h.logger)
}

// BulkLoad handles POST /api/nonconformities/bulk. The body is a JSON array
// of records which replaces the whole collection. Exported records may carry
// numeric ids; they are mapped the same way a restore maps them.
func (h *NonConformityHandler) BulkLoad(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r, services.MaxBackupBytes, h.logger)
	if !ok {
		return
	}
	req, err := models.DecodeNonConformities(raw)
	if err != nil {
		h.logger.Debug("Rejected bulk load body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_request", "Body must be a JSON array of records", h.logger)
		return
	}

	records, err := h.service.BulkLoad(r.Context(), h.actors.Actor(r), req)
	if err != nil {
		writeServiceError(w, err, "bulk_load_nonconformities", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, BulkLoadResponse{Count: len(records), Records: records}, h.logger)
}

// Get handles GET /api/nonconformities/{id}.
func (h *NonConformityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseRecordID(w, r, h.logger)
	if !ok {
		return
	}
	record, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "get_nonconformity", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, record, h.logger)
}

// Update handles PUT /api/nonconformities/{id}.
func (h *NonConformityHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseRecordID(w, r, h.logger)
	if !ok {
		return
	}
	var req models.NonConformity
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	saved, err := h.service.Update(r.Context(), h.actors.Actor(r), id, &req)
	if err != nil {
		writeServiceError(w, err, "update_nonconformity", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, h.withFindings(saved), h.logger)
}

// Delete handles DELETE /api/nonconformities/{id}.
func (h *NonConformityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseRecordID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, "delete_nonconformity", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"id": id.String()}, h.logger)
}

// Review handles GET /api/nonconformities/{id}/review.
func (h *NonConformityHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseRecordID(w, r, h.logger)
	if !ok {
		return
	}
	findings, err := h.service.Review(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "review_nonconformity", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, findings, h.logger)
}

func (h *NonConformityHandler) withFindings(rec *models.NonConformity) NonConformityResponse {
	findings := lifecycle.Review(rec)
	if findings == nil {
		findings = []lifecycle.Finding{}
	}
	return NonConformityResponse{Record: rec, Findings: findings}
}
