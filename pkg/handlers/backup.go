package handlers

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/labqms/pkg/models"
	"github.com/ekaya-inc/labqms/pkg/services"
)

// RestoreResponse summarizes a restored backup.
type RestoreResponse struct {
	NonConformities         int `json:"nonConformities"`
	PreventiveActionReports int `json:"preventiveActionReports"`
	Collections             int `json:"collections"`
}

func restoreSummary(snap *models.Snapshot) RestoreResponse {
	return RestoreResponse{
		NonConformities:         len(snap.NonConformities),
		PreventiveActionReports: len(snap.PreventiveActionReports),
		Collections:             len(snap.Collections),
	}
}

// BackupHandler handles backup export, restore and archive requests.
type BackupHandler struct {
	service services.BackupService
	now     func() time.Time
	logger  *zap.Logger
}

// NewBackupHandler creates a new BackupHandler.
func NewBackupHandler(service services.BackupService, logger *zap.Logger) *BackupHandler {
	return &BackupHandler{
		service: service,
		now:     time.Now,
		logger:  logger.Named("backup-handler"),
	}
}

// RegisterRoutes registers the backup routes on the given mux.
func (h *BackupHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/backup", h.Export)
	mux.HandleFunc("POST /api/backup/restore", h.Restore)
	mux.HandleFunc("GET /api/backup/archives", h.ListArchives)
	mux.HandleFunc("POST /api/backup/archives", h.Archive)
	mux.HandleFunc("POST /api/backup/archives/restore", h.RestoreArchive)
}

// Export handles GET /api/backup. The body is the bare backup document,
// served as a download.
func (h *BackupHandler) Export(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Export(r.Context())
	if err != nil {
		writeServiceError(w, err, "export_backup", h.logger)
		return
	}
	filename := fmt.Sprintf("labqms-backup-%s.json", h.now().Format(models.DateLayout))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := WriteJSON(w, http.StatusOK, snap); err != nil {
		h.logger.Error("Failed to write backup", zap.Error(err))
	}
}

// Restore handles POST /api/backup/restore with a backup document as body.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r, services.MaxBackupBytes, h.logger)
	if !ok {
		return
	}

	snap, err := h.service.Restore(r.Context(), raw)
	if err != nil {
		writeServiceError(w, err, "restore_backup", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, restoreSummary(snap), h.logger)
}

// Archive handles POST /api/backup/archives.
func (h *BackupHandler) Archive(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Archive(r.Context())
	if err != nil {
		writeServiceError(w, err, "archive_backup", h.logger)
		return
	}
	writeSuccess(w, http.StatusCreated, info, h.logger)
}

// ListArchives handles GET /api/backup/archives.
func (h *BackupHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	archives, err := h.service.ListArchives(r.Context())
	if err != nil {
		writeServiceError(w, err, "list_archives", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, archives, h.logger)
}

// RestoreArchive handles POST /api/backup/archives/restore?key=...
func (h *BackupHandler) RestoreArchive(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing_key", "Query parameter 'key' is required", h.logger)
		return
	}
	snap, err := h.service.RestoreArchive(r.Context(), key)
	if err != nil {
		writeServiceError(w, err, "restore_archive", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, restoreSummary(snap), h.logger)
}
