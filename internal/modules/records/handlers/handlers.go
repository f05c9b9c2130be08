// Package handlers provides HTTP handlers for household records.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/famledger/internal/domain"
	"github.com/aristath/famledger/internal/modules/records"
	"github.com/aristath/famledger/internal/modules/stats"
)

// Handler handles record HTTP requests
type Handler struct {
	service *records.Service
	cashTag string
	log     zerolog.Logger
}

// NewHandler creates a new records handler
func NewHandler(service *records.Service, cashTag string, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		cashTag: cashTag,
		log:     log.With().Str("handler", "records").Logger(),
	}
}

// HandleList handles GET /api/records
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.service.List(r.Context(), filter)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"message":     fmt.Sprintf("Loaded %d records", len(res.Records)),
		"records":     res.Records,
		"recordCount": len(res.Records),
		"location":    res.Location,
	})
}

// HandleGet handles GET /api/records/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "Failed to get record")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Record found",
		"record":  record,
	})
}

// HandleCreate handles POST /api/records
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var input domain.Record
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	record, res, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, err, "Failed to create record")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":  true,
		"message":  "Record created",
		"record":   record,
		"location": res.Location,
	})
}

// HandleUpdate handles PUT /api/records/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch records.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	record, changes, res, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeServiceError(w, err, "Failed to update record")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "Record updated",
		"record":   record,
		"changes":  changes,
		"location": res.Location,
	})
}

// HandleDelete handles DELETE /api/records/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Failed to delete record")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "Record deleted",
		"id":       id,
		"location": res.Location,
	})
}

// HandleBulkDelete handles POST /api/records/delete
func (h *Handler) HandleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var request struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(request.IDs) == 0 {
		h.writeError(w, http.StatusBadRequest, "ids is required")
		return
	}

	removed, res, err := h.service.DeleteMany(r.Context(), request.IDs)
	if err != nil {
		h.writeServiceError(w, err, "Failed to delete records")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"message":      fmt.Sprintf("Deleted %d records", removed),
		"deletedCount": removed,
		"location":     res.Location,
	})
}

// HandleClear handles POST/DELETE /api/records/clear
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	cleared, res, err := h.service.Clear(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to clear records")
		return
	}

	h.log.Warn().Int("count", cleared).Msg("All records cleared")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"message":      fmt.Sprintf("Cleared %d records", cleared),
		"deletedCount": cleared,
		"location":     res.Location,
	})
}

// HandleExport handles GET /api/records/export
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.service.List(r.Context(), filter)
	data, err := records.ExportXLSX(res.Records)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to export records")
		h.writeError(w, http.StatusInternalServerError, "Failed to export records")
		return
	}

	filename := fmt.Sprintf("famledger-records-%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to write export")
	}
}

// HandleStats handles GET /api/records/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.service.List(r.Context(), filter)
	summary := stats.Compute(res.Records, stats.Options{CashTag: h.cashTag, Month: filter.Month})
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "Statistics computed",
		"stats":    summary,
		"location": res.Location,
	})
}

// HandleSync handles POST /api/records/sync
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Sync(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to sync records")
		return
	}

	message := "Records synced to remote"
	if res.Location != records.LocationRemote {
		message = "Remote unavailable, records saved locally"
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"message":     message,
		"recordCount": res.Count,
		"location":    res.Location,
		"commitSha":   res.CommitSHA,
	})
}

func parseFilter(r *http.Request) (records.Filter, error) {
	q := r.URL.Query()
	filter := records.Filter{
		Member:   q.Get("member"),
		Month:    q.Get("month"),
		Category: q.Get("category"),
	}
	if raw := q.Get("type"); raw != "" {
		t, ok := domain.ParseRecordType(raw)
		if !ok {
			return records.Filter{}, fmt.Errorf("invalid type %q", raw)
		}
		filter.Type = t
	}
	if filter.Month != "" {
		if _, err := time.Parse("2006-01", filter.Month); err != nil {
			return records.Filter{}, fmt.Errorf("invalid month %q, expected YYYY-MM", filter.Month)
		}
	}
	return filter, nil
}

// writeServiceError maps service errors onto status codes
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, message string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "Validation failed",
			"errors":  verr.Fields,
		})
	case errors.Is(err, records.ErrRecordNotFound):
		h.writeError(w, http.StatusNotFound, "Record not found")
	case errors.Is(err, records.ErrConflict):
		h.writeError(w, http.StatusConflict, "Records changed on another device, please retry")
	default:
		h.log.Error().Err(err).Msg(message)
		h.writeError(w, http.StatusInternalServerError, message)
	}
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
