package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/famledger/internal/domain"
	"github.com/aristath/famledger/internal/modules/records"
	"github.com/aristath/famledger/internal/reliability"
)

// BackupHandlers exposes local snapshots and offsite archives
type BackupHandlers struct {
	backups *reliability.BackupService
	offsite *reliability.OffsiteService
	log     zerolog.Logger
}

// NewBackupHandlers creates backup handlers. offsite may be nil.
func NewBackupHandlers(backups *reliability.BackupService, offsite *reliability.OffsiteService, log zerolog.Logger) *BackupHandlers {
	return &BackupHandlers{
		backups: backups,
		offsite: offsite,
		log:     log.With().Str("handler", "backups").Logger(),
	}
}

// RegisterRoutes registers backup routes
func (h *BackupHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/backups", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/stats", h.HandleStats)
		r.Post("/restore", h.HandleRestore)
		r.Get("/offsite", h.HandleOffsiteList)
		r.Post("/offsite", h.HandleOffsiteUpload)
		r.Post("/offsite/restore", h.HandleOffsiteRestore)
		r.Get("/{name}/verify", h.HandleVerify)
	})
}

// HandleList handles GET /api/backups
func (h *BackupHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.backups.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list snapshots")
		writeError(w, http.StatusInternalServerError, "Failed to list backups")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "OK",
		"backups": list,
		"count":   len(list),
	})
}

// HandleCreate handles POST /api/backups
func (h *BackupHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	info, err := h.backups.CreateSnapshot(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create snapshot")
		writeError(w, http.StatusInternalServerError, "Failed to create backup")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Backup created",
		"backup":  info,
	})
}

// HandleStats handles GET /api/backups/stats
func (h *BackupHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.backups.Stats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read snapshot statistics")
		writeError(w, http.StatusInternalServerError, "Failed to read backup statistics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "OK",
		"stats":   stats,
	})
}

// HandleVerify handles GET /api/backups/{name}/verify
func (h *BackupHandlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	doc, err := h.backups.Read(chi.URLParam(r, "name"))
	if err != nil {
		h.writeBackupError(w, err, "Failed to read backup")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "OK",
		"integrity": reliability.CheckIntegrity(doc.Records),
		"metadata":  doc.Metadata,
	})
}

type restoreRequest struct {
	FileName string `json:"fileName"`
}

// HandleRestore handles POST /api/backups/restore
func (h *BackupHandlers) HandleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := decodeBody(r, &req); err != nil || req.FileName == "" {
		writeError(w, http.StatusBadRequest, "fileName is required")
		return
	}

	res, err := h.backups.Restore(r.Context(), req.FileName)
	if err != nil {
		h.writeBackupError(w, err, "Failed to restore backup")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Backup restored",
		"restore": res,
	})
}

// HandleOffsiteList handles GET /api/backups/offsite
func (h *BackupHandlers) HandleOffsiteList(w http.ResponseWriter, r *http.Request) {
	if !h.requireOffsite(w) {
		return
	}
	list, err := h.offsite.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list offsite archives")
		writeError(w, http.StatusBadGateway, "Failed to list offsite backups")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "OK",
		"target":  h.offsite.Target(),
		"backups": list,
	})
}

// HandleOffsiteUpload handles POST /api/backups/offsite
func (h *BackupHandlers) HandleOffsiteUpload(w http.ResponseWriter, r *http.Request) {
	if !h.requireOffsite(w) {
		return
	}
	info, err := h.offsite.CreateAndUpload(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Offsite upload failed")
		writeError(w, http.StatusBadGateway, "Offsite backup failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Offsite backup uploaded",
		"target":  h.offsite.Target(),
		"backup":  info,
	})
}

// HandleOffsiteRestore handles POST /api/backups/offsite/restore
func (h *BackupHandlers) HandleOffsiteRestore(w http.ResponseWriter, r *http.Request) {
	if !h.requireOffsite(w) {
		return
	}
	var req restoreRequest
	if err := decodeBody(r, &req); err != nil || req.FileName == "" {
		writeError(w, http.StatusBadRequest, "fileName is required")
		return
	}

	res, err := h.offsite.Restore(r.Context(), req.FileName)
	if err != nil {
		h.writeBackupError(w, err, "Failed to restore offsite backup")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Offsite backup restored",
		"restore": res,
	})
}

func (h *BackupHandlers) requireOffsite(w http.ResponseWriter) bool {
	if h.offsite == nil {
		writeError(w, http.StatusNotFound, "Offsite backups are not configured")
		return false
	}
	return true
}

func (h *BackupHandlers) writeBackupError(w http.ResponseWriter, err error, message string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": err.Error(),
			"errors":  verr.Fields,
		})
	case errors.Is(err, reliability.ErrSnapshotNotFound):
		writeError(w, http.StatusNotFound, "Backup not found")
	case errors.Is(err, reliability.ErrInvalidSnapshot):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, records.ErrConflict):
		writeError(w, http.StatusConflict, "Records changed on another device, please retry")
	default:
		h.log.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message)
	}
}
