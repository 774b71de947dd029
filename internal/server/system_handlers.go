// Package server provides the HTTP server and routing for Tilt.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/tilt/internal/database"
	"github.com/aristath/tilt/internal/reliability"
	"github.com/aristath/tilt/internal/version"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log           zerolog.Logger
	dataDir       string
	startupTime   time.Time
	databases     map[string]*database.DB
	backupService *reliability.BackupService
	r2Backup      *reliability.R2BackupService // nil unless R2 is configured
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases map[string]*database.DB,
	backupService *reliability.BackupService,
	r2Backup *reliability.R2BackupService,
) *SystemHandlers {
	return &SystemHandlers{
		log:           log.With().Str("component", "system_handlers").Logger(),
		dataDir:       dataDir,
		startupTime:   time.Now(),
		databases:     databases,
		backupService: backupService,
		r2Backup:      r2Backup,
	}
}

// SystemHealthResponse is the response for the system health endpoint
type SystemHealthResponse struct {
	Status      string            `json:"status"`
	CPUPercent  float64           `json:"cpu_percent"`
	RAMPercent  float64           `json:"ram_percent"`
	Databases   map[string]string `json:"databases"`
	LastChecked string            `json:"last_checked"`
}

// SystemInfoResponse is the response for the system info endpoint
type SystemInfoResponse struct {
	Service        string  `json:"service"`
	Version        string  `json:"version"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	DataDir        string  `json:"data_dir"`
	CloudBackups   bool    `json:"cloud_backups_enabled"`
	DatabaseCount  int     `json:"database_count"`
	DatabaseSizeMB float64 `json:"database_size_mb"`
}

// DBInfo contains information about a single database
type DBInfo struct {
	Name          string  `json:"name"`
	Path          string  `json:"path"`
	SizeMB        float64 `json:"size_mb"`
	WALSizeMB     float64 `json:"wal_size_mb"`
	PageCount     int64   `json:"page_count"`
	FreelistPages int64   `json:"freelist_pages"`
}

// DatabaseStatsResponse is the response for database stats endpoint
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// DiskUsageResponse is the response for disk usage endpoint
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	DatabasesMB float64 `json:"databases_mb"`
	BackupsMB   float64 `json:"backups_mb"`
}

// BackupTriggerResponse is the response for a manual backup trigger
type BackupTriggerResponse struct {
	Status      string `json:"status"`
	BackupDir   string `json:"backup_dir"`
	CloudUpload string `json:"cloud_upload"`
}

// HandleHealth returns overall system health: CPU, RAM and a per-database
// integrity check.
// GET /api/system/health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	cpuPercent, ramPercent := h.getSystemStats()

	status := "healthy"
	dbStatus := make(map[string]string, len(h.databases))
	for name, db := range h.databases {
		if err := db.HealthCheck(ctx); err != nil {
			dbStatus[name] = err.Error()
			status = "degraded"
			continue
		}
		dbStatus[name] = "ok"
	}

	response := SystemHealthResponse{
		Status:      status,
		CPUPercent:  cpuPercent,
		RAMPercent:  ramPercent,
		Databases:   dbStatus,
		LastChecked: time.Now().Format(time.RFC3339),
	}

	h.writeJSON(w, response)
}

// HandleInfo returns service metadata: version, uptime and database totals.
// GET /api/system/info
func (h *SystemHandlers) HandleInfo(w http.ResponseWriter, r *http.Request) {
	totalSizeMB := 0.0
	for _, db := range h.databases {
		if stats, err := db.GetStats(); err == nil {
			totalSizeMB += float64(stats.SizeBytes) / 1024 / 1024
		}
	}

	response := SystemInfoResponse{
		Service:        "tilt",
		Version:        version.Version,
		UptimeSeconds:  time.Since(h.startupTime).Seconds(),
		DataDir:        h.dataDir,
		CloudBackups:   h.r2Backup != nil,
		DatabaseCount:  len(h.databases),
		DatabaseSizeMB: totalSizeMB,
	}

	h.writeJSON(w, response)
}

// HandleDatabaseStats returns database statistics
// GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	names := make([]string, 0, len(h.databases))
	for name := range h.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := []DBInfo{}
	totalSizeMB := 0.0
	for _, name := range names {
		db := h.databases[name]
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			continue
		}

		sizeMB := float64(stats.SizeBytes) / 1024 / 1024
		totalSizeMB += sizeMB

		infos = append(infos, DBInfo{
			Name:          name,
			Path:          db.Path(),
			SizeMB:        sizeMB,
			WALSizeMB:     float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount:     stats.PageCount,
			FreelistPages: stats.FreelistCount,
		})
	}

	response := DatabaseStatsResponse{
		Databases:   infos,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	}

	h.writeJSON(w, response)
}

// HandleDiskUsage returns disk usage statistics
// GET /api/system/disk
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	databasesMB := 0.0
	for _, db := range h.databases {
		if stats, err := db.GetStats(); err == nil {
			databasesMB += float64(stats.SizeBytes+stats.WALSizeBytes) / 1024 / 1024
		}
	}

	response := DiskUsageResponse{
		DataDirMB:   h.getDirSize(h.dataDir),
		DatabasesMB: databasesMB,
		BackupsMB:   h.getDirSize(filepath.Join(h.dataDir, "backups")),
	}

	h.writeJSON(w, response)
}

// HandleTriggerBackup creates a local backup immediately. When R2 is
// configured the cloud upload runs in the background so the request
// returns as soon as the local copy is verified.
// POST /api/system/backup
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.log.Info().Msg("Manual backup triggered")

	backupDir, err := h.backupService.CreateDailyBackup()
	if err != nil {
		h.log.Error().Err(err).Msg("Manual backup failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.backupService.VerifyBackup(backupDir); err != nil {
		h.log.Error().Err(err).Msg("Manual backup failed verification")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cloudUpload := "not_configured"
	if h.r2Backup != nil {
		cloudUpload = "started"
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
			defer cancel()
			if err := h.r2Backup.CreateAndUploadBackup(ctx); err != nil {
				h.log.Error().Err(err).Msg("Cloud upload of manual backup failed")
			} else {
				h.log.Info().Msg("Manual backup uploaded")
			}
		}()
	}

	h.writeJSON(w, BackupTriggerResponse{
		Status:      "success",
		BackupDir:   backupDir,
		CloudUpload: cloudUpload,
	})
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages
// Uses a shorter interval (100ms) for faster response while still providing accurate readings
func (h *SystemHandlers) getSystemStats() (float64, float64) {
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

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
