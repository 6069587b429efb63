package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/wtap-core/internal/wifi"
)

// Measurement names.
const (
	MeasurementLink      = "wifi_link"
	MeasurementConnect   = "wifi_connect"
	MeasurementScan      = "wifi_scan"
	MeasurementOccupancy = "pipeline_occupancy"
)

// Client implements wifi.Metrics.
var _ wifi.Metrics = (*Client)(nil)

// RecordLink writes the station's signal strength.
func (c *Client) RecordLink(ssid string, rssi int) {
	c.WritePoint(MeasurementLink,
		map[string]string{"ssid": ssid},
		map[string]any{"rssi": rssi},
	)
}

// RecordConnect writes the outcome of one connect operation.
func (c *Client) RecordConnect(ssid string, origin wifi.Origin, ok bool, attempts int, elapsed time.Duration) {
	c.WritePoint(MeasurementConnect,
		map[string]string{"ssid": ssid, "origin": string(origin)},
		map[string]any{
			"success":     ok,
			"attempts":    attempts,
			"duration_ms": elapsed.Milliseconds(),
		},
	)
}

// RecordScan writes the size and duration of a finished scan.
func (c *Client) RecordScan(found int, partial bool, elapsed time.Duration) {
	c.WritePoint(MeasurementScan, nil, map[string]any{
		"found":       found,
		"partial":     partial,
		"duration_ms": elapsed.Milliseconds(),
	})
}

// Occupancy is one sample of the command path's resource use.
type Occupancy struct {
	PoolInUse    int
	PoolSize     int
	LongRunDepth int
	SendOutDepth int
	Requests     uint64
	PoolBusy     uint64
	RunnerBusy   uint64
	WSClients    int
}

// WriteOccupancy writes one occupancy sample.
func (c *Client) WriteOccupancy(o Occupancy) {
	c.WritePoint(MeasurementOccupancy, nil, map[string]any{
		"pool_in_use":    o.PoolInUse,
		"pool_size":      o.PoolSize,
		"long_run_depth": o.LongRunDepth,
		"send_out_depth": o.SendOutDepth,
		"requests":       o.Requests,
		"pool_busy":      o.PoolBusy,
		"runner_busy":    o.RunnerBusy,
		"ws_clients":     o.WSClients,
	})
}

// SampleOccupancy calls sample every interval and writes the result
// until ctx is cancelled.
func (c *Client) SampleOccupancy(ctx context.Context, interval time.Duration, sample func() Occupancy) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.WriteOccupancy(sample())
		}
	}
}

// WritePoint writes a custom point with full control over tags and fields.
// The device_id tag is always added.
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "wtap-01"},
//	    map[string]any{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() || c.points == nil {
		return
	}

	all := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		all[k] = v
	}
	if c.deviceID != "" {
		all["device_id"] = c.deviceID
	}

	c.points.WritePoint(write.NewPoint(measurement, all, fields, timestamp))
}
