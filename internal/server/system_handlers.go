package server

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ratewatch/ratewatch/internal/api"
	"github.com/ratewatch/ratewatch/internal/database"
)

// SystemHandlers serves health and resource-usage endpoints.
type SystemHandlers struct {
	db        *database.DB
	log       zerolog.Logger
	startedAt time.Time
}

// NewSystemHandlers creates new system handlers
func NewSystemHandlers(db *database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		db:        db,
		log:       log.With().Str("component", "system_handlers").Logger(),
		startedAt: time.Now(),
	}
}

// HandleHealth is the liveness probe: a ping plus an integrity check.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.HealthCheck(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Health check failed")
		api.Error(w, http.StatusServiceUnavailable, "database unhealthy")
		return
	}
	api.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type databaseStatus struct {
	SizeBytes    int64 `json:"size_bytes"`
	WALSizeBytes int64 `json:"wal_size_bytes"`
	PageCount    int64 `json:"page_count"`
	FreePages    int64 `json:"free_pages"`
}

type systemStatus struct {
	Status        string         `json:"status"`
	UptimeSeconds int64          `json:"uptime_s"`
	Database      databaseStatus `json:"database"`

	CPUPercent    *float64 `json:"cpu_percent,omitempty"`
	MemoryPercent *float64 `json:"memory_percent,omitempty"`
	DiskPercent   *float64 `json:"disk_percent,omitempty"`
	DiskFreeBytes *uint64  `json:"disk_free_bytes,omitempty"`
}

// HandleStatus reports uptime, database size, and host resource usage.
// Resource probes that fail on this platform are omitted, not fatal.
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read database stats")
		api.Error(w, http.StatusInternalServerError, "failed to read database stats")
		return
	}

	status := systemStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Database: databaseStatus{
			SizeBytes:    stats.SizeBytes,
			WALSizeBytes: stats.WALSizeBytes,
			PageCount:    stats.PageCount,
			FreePages:    stats.FreelistCount,
		},
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status.CPUPercent = &percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status.MemoryPercent = &vm.UsedPercent
	}
	if usage, err := disk.Usage(filepath.Dir(h.db.Path())); err == nil {
		status.DiskPercent = &usage.UsedPercent
		status.DiskFreeBytes = &usage.Free
	}

	api.JSON(w, http.StatusOK, status)
}
