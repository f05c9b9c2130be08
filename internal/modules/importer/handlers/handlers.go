// Package handlers provides HTTP handlers for spreadsheet import.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/famledger/internal/domain"
	"github.com/aristath/famledger/internal/modules/importer"
	"github.com/aristath/famledger/internal/modules/records"
)

// maxUploadSize bounds spreadsheet uploads.
const maxUploadSize = 10 << 20

// Handler handles spreadsheet compare and import requests
type Handler struct {
	service  *records.Service
	sessions *importer.Sessions
	rules    importer.Rules
	log      zerolog.Logger
}

// NewHandler creates a new import handler
func NewHandler(service *records.Service, sessions *importer.Sessions, rules importer.Rules, log zerolog.Logger) *Handler {
	return &Handler{
		service:  service,
		sessions: sessions,
		rules:    rules,
		log:      log.With().Str("handler", "importer").Logger(),
	}
}

// HandleCompare handles POST /api/excel/compare
// Expects a multipart form with a "file" field.
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	sheet, err := importer.ParseWorkbook(file, header.Filename)
	if err != nil {
		h.log.Warn().Err(err).Str("filename", header.Filename).Msg("Failed to parse spreadsheet")
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	candidates, rowErrors, err := importer.ValidateRows(sheet, h.rules)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing := h.service.Refresh(r.Context())
	comparison := importer.Compare(header.Filename, candidates, rowErrors, existing.Records)
	h.sessions.Put(comparison)

	h.log.Info().
		Str("filename", header.Filename).
		Int("new", len(comparison.New)).
		Int("duplicates", len(comparison.Duplicates)).
		Int("errors", len(comparison.Errors)).
		Msg("Spreadsheet compared")

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"message":    fmt.Sprintf("%d new, %d possible duplicates, %d invalid rows", len(comparison.New), len(comparison.Duplicates), len(comparison.Errors)),
		"comparison": comparison,
	})
}

// HandleImport handles POST /api/excel/import
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var request struct {
		SessionID string `json:"sessionId"`
		Rows      []int  `json:"rows"`
		Force     bool   `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	comparison, ok := h.sessions.Get(request.SessionID)
	if !ok {
		h.writeError(w, http.StatusNotFound, "Import session expired or not found")
		return
	}

	selected := comparison.Select(request.Rows)
	if len(selected) == 0 {
		h.writeError(w, http.StatusBadRequest, "Nothing to import")
		return
	}

	result, err := h.service.Import(r.Context(), selected, records.ImportOptions{Force: request.Force})
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"success": false,
				"message": err.Error(),
				"errors":  verr.Fields,
			})
		case errors.Is(err, records.ErrConflict):
			h.writeError(w, http.StatusConflict, "Records changed on another device, please retry")
		default:
			h.log.Error().Err(err).Msg("Import failed")
			h.writeError(w, http.StatusInternalServerError, "Import failed")
		}
		return
	}
	h.sessions.Delete(request.SessionID)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"message":       fmt.Sprintf("Imported %d records, skipped %d duplicates", len(result.Imported), len(result.Skipped)),
		"importedCount": len(result.Imported),
		"skippedCount":  len(result.Skipped),
		"imported":      result.Imported,
		"skipped":       result.Skipped,
		"location":      result.Save.Location,
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": message,
	})
}
