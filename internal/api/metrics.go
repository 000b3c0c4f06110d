package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/tophat-core/internal/server"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	Control       *server.Stats    `json:"control,omitempty"`
	Devices       int              `json:"devices"`
	Hats          *HatMetrics      `json:"hats,omitempty"`
	Events        *EventMetrics    `json:"events,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// HatMetrics counts hat containers.
type HatMetrics struct {
	Registered int `json:"registered"`
	Running    int `json:"running"`
}

// EventMetrics reports the command observer queue.
type EventMetrics struct {
	Dropped uint64 `json:"dropped"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Devices: s.registry.Len(),
	}

	if s.control != nil {
		st := s.control.Stats()
		metrics.Control = &st
	}

	if s.hats != nil {
		hm := &HatMetrics{}
		for _, h := range s.hats.Status() {
			hm.Registered++
			if h.Running {
				hm.Running++
			}
		}
		metrics.Hats = hm
	}

	if s.events != nil {
		metrics.Events = &EventMetrics{Dropped: s.events.Dropped()}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
