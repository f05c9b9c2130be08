package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/famledger/internal/config"
	"github.com/aristath/famledger/internal/database"
	"github.com/aristath/famledger/internal/modules/records"
	"github.com/aristath/famledger/internal/reliability"
)

// SystemHandlers serves health and host status
type SystemHandlers struct {
	cfg     *config.Config
	records *records.Service
	backups *reliability.BackupService
	db      *database.DB
	started time.Time
	log     zerolog.Logger
}

// NewSystemHandlers creates system handlers. backups and db may be nil.
func NewSystemHandlers(cfg *config.Config, recordsService *records.Service, backups *reliability.BackupService, db *database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		cfg:     cfg,
		records: recordsService,
		backups: backups,
		db:      db,
		started: time.Now(),
		log:     log.With().Str("handler", "system").Logger(),
	}
}

// DiskUsage is the data directory's filesystem
type DiskUsage struct {
	Path        string  `json:"path"`
	TotalMB     float64 `json:"totalMb"`
	FreeMB      float64 `json:"freeMb"`
	UsedPercent float64 `json:"usedPercent"`
}

// HandleHealth handles GET /health and /api/health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"success":          true,
		"message":          "OK",
		"status":           "healthy",
		"service":          "famledger",
		"version":          Version,
		"environment":      h.cfg.Environment,
		"storageBackend":   h.cfg.StorageBackend,
		"remoteConfigured": h.cfg.GitHub.Configured() && !h.cfg.LocalOnly,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	}
	if usage := h.diskUsage(); usage != nil {
		response["disk"] = usage
	}

	status := http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.db.HealthCheck(ctx); err != nil {
			h.log.Error().Err(err).Msg("Database health check failed")
			response["success"] = false
			response["message"] = err.Error()
			response["status"] = "unhealthy"
			status = http.StatusServiceUnavailable
		} else {
			response["database"] = "ok"
		}
	}

	writeJSON(w, status, response)
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	snapshot := h.records.Snapshot(r.Context())
	response := map[string]interface{}{
		"success":       true,
		"message":       "OK",
		"uptimeSeconds": int64(time.Since(h.started).Seconds()),
		"cpuPercent":    cpuPercent,
		"memoryPercent": memPercent,
		"recordCount":   len(snapshot.Records),
		"location":      snapshot.Location,
	}
	if usage := h.diskUsage(); usage != nil {
		response["disk"] = usage
	}
	if h.backups != nil {
		if stats, err := h.backups.Stats(); err == nil {
			response["backups"] = stats
		} else {
			h.log.Warn().Err(err).Msg("Failed to read backup statistics")
		}
	}
	if h.db != nil {
		if stats, err := h.db.GetStats(); err == nil {
			response["database"] = stats
		} else {
			h.log.Warn().Err(err).Msg("Failed to read database statistics")
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *SystemHandlers) diskUsage() *DiskUsage {
	usage, err := disk.Usage(h.cfg.DataDir)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get disk usage")
		return nil
	}
	return &DiskUsage{
		Path:        h.cfg.DataDir,
		TotalMB:     float64(usage.Total) / 1024 / 1024,
		FreeMB:      float64(usage.Free) / 1024 / 1024,
		UsedPercent: usage.UsedPercent,
	}
}

// getSystemStats returns CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// 100ms sample keeps the request fast
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
