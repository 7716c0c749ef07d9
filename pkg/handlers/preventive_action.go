package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/labqms/pkg/models"
	"github.com/ekaya-inc/labqms/pkg/services"
)

// PreventiveActionHandler handles preventive action report HTTP requests.
type PreventiveActionHandler struct {
	service services.PreventiveActionService
	actors  ActorResolver
	logger  *zap.Logger
}

// NewPreventiveActionHandler creates a new PreventiveActionHandler.
func NewPreventiveActionHandler(service services.PreventiveActionService, actors ActorResolver, logger *zap.Logger) *PreventiveActionHandler {
	return &PreventiveActionHandler{
		service: service,
		actors:  actors,
		logger:  logger.Named("preventive-action-handler"),
	}
}

// RegisterRoutes registers the preventive action routes on the given mux.
func (h *PreventiveActionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/preventive-actions", h.List)
	mux.HandleFunc("POST /api/preventive-actions", h.Create)
	mux.HandleFunc("GET /api/preventive-actions/{id}", h.Get)
	mux.HandleFunc("PUT /api/preventive-actions/{id}", h.Update)
	mux.HandleFunc("DELETE /api/preventive-actions/{id}", h.Delete)
}

// List handles GET /api/preventive-actions.
func (h *PreventiveActionHandler) List(w http.ResponseWriter, r *http.Request) {
	reports, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, err, "list_preventive_actions", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, reports, h.logger)
}

// Create handles POST /api/preventive-actions.
func (h *PreventiveActionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.PreventiveActionReport
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	created, err := h.service.Create(r.Context(), h.actors.Actor(r), &req)
	if err != nil {
		writeServiceError(w, err, "create_preventive_action", h.logger)
		return
	}
	writeSuccess(w, http.StatusCreated, created, h.logger)
}

// Get handles GET /api/preventive-actions/{id}.
func (h *PreventiveActionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseRecordID(w, r, h.logger)
	if !ok {
		return
	}
	report, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "get_preventive_action", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, report, h.logger)
}

// Update handles PUT /api/preventive-actions/{id}.
func (h *PreventiveActionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseRecordID(w, r, h.logger)
	if !ok {
		return
	}
	var req models.PreventiveActionReport
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	saved, err := h.service.Update(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, err, "update_preventive_action", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, saved, h.logger)
}

// Delete handles DELETE /api/preventive-actions/{id}.
func (h *PreventiveActionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseRecordID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, "delete_preventive_action", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"id": id.String()}, h.logger)
}
