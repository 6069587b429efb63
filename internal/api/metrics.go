package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/nerrad567/wtap-core/internal/pipeline"
	"github.com/nerrad567/wtap-core/internal/runner"
	"github.com/nerrad567/wtap-core/internal/wifi"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Pool          PoolMetrics    `json:"pool"`
	Pipeline      pipeline.Stats `json:"pipeline"`
	Runner        *runner.Stats  `json:"runner,omitempty"`
	WiFi          *wifi.Snapshot `json:"wifi,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// PoolMetrics describes request buffer occupancy.
type PoolMetrics struct {
	Buffers    int `json:"buffers"`
	InUse      int `json:"in_use"`
	BufferSize int `json:"buffer_size"`
}

// handleMetrics returns pool, runner, transport and WiFi state.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	pool := s.pipeline.Pool()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Pool: PoolMetrics{
			Buffers:    pool.Size(),
			InUse:      pool.InUse(),
			BufferSize: pool.Capacity(),
		},
		Pipeline: s.pipeline.Stats(),
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{Enabled: true, Connected: s.mqtt.IsConnected()}
	}
	if s.runner != nil {
		st := s.runner.Stats()
		metrics.Runner = &st
	}
	if s.wifi != nil {
		snap := s.wifi.Snapshot()
		metrics.WiFi = &snap
	}

	writeJSON(w, http.StatusOK, metrics)
}

// maxHistoryLimit caps ?limit= on the history endpoint.
const maxHistoryLimit = 200

// handleWiFiHistory lists recent connect attempts, newest first.
func (s *Server) handleWiFiHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"records": []wifi.ConnectRecord{}})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing connect history", "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	if records == nil {
		records = []wifi.ConnectRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}
