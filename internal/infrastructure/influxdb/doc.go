// Package influxdb writes adapter telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// # Measurements
//
//   - wifi_link: station RSSI, tagged by ssid
//   - wifi_connect: connect outcome, attempts and duration, tagged by ssid and origin
//   - wifi_scan: networks found, partial flag and duration
//   - pipeline_occupancy: buffer pool and runner queue use, sampled periodically
//
// Every point carries a device_id tag. *Client implements wifi.Metrics.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Device.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	manager.SetMetrics(client)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package influxdb
