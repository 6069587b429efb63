package wifi

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/wtap-core/internal/bufpool"
)

// Event names carried in notifications.
const (
	EventSTAConnected    = "sta_connected"
	EventSTADisconnected = "sta_disconnected"
	EventAPStarted       = "ap_started"
	EventAPStopped       = "ap_stopped"
	EventScanDone        = "scan_done"
	EventModeChanged     = "mode_changed"
)

// Notifier receives encoded state-change notifications. The payload is
// only valid for the duration of the call.
type Notifier interface {
	Notify(event string, payload []byte)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(event string, payload []byte)

// Notify implements Notifier.
func (f NotifierFunc) Notify(event string, payload []byte) { f(event, payload) }

// Metrics receives connectivity measurements.
type Metrics interface {
	RecordLink(ssid string, rssi int)
	RecordConnect(ssid string, origin Origin, ok bool, attempts int, elapsed time.Duration)
	RecordScan(found int, partial bool, elapsed time.Duration)
}

// Origin tells what started a connect attempt.
type Origin string

const (
	OriginExplicit  Origin = "explicit"
	OriginBoot      Origin = "boot"
	OriginReconnect Origin = "reconnect"
)

// Notification is the JSON body of a notification.
type Notification struct {
	Event   string `json:"event"`
	SSID    string `json:"ssid,omitempty"`
	Reason  int    `json:"reason,omitempty"`
	RSSI    int    `json:"rssi,omitempty"`
	Mode    *int   `json:"mode,omitempty"`
	Status  *int   `json:"status,omitempty"`
	Found   *int   `json:"found,omitempty"`
	Partial bool   `json:"partial,omitempty"`
	Time    int64  `json:"ts"`
}

func intPtr(v int) *int { return &v }

type noopMetrics struct{}

func (noopMetrics) RecordLink(string, int)                                {}
func (noopMetrics) RecordConnect(string, Origin, bool, int, time.Duration) {}
func (noopMetrics) RecordScan(int, bool, time.Duration)                   {}

// notify encodes n into a pool buffer and hands it to the notifier.
// Notifications are dropped when no buffer frees up in time.
func (m *Manager) notify(n Notification) {
	if m.notifier == nil || m.pool == nil {
		return
	}
	n.Time = time.Now().UnixMilli()

	buf := m.pool.Acquire(m.cfg.NotifyTimeout)
	if buf == nil {
		m.logger.Warn("dropping wifi notification, buffer pool exhausted", "event", n.Event)
		return
	}
	defer m.pool.Release(buf)

	if err := encodeNotification(buf, n); err != nil {
		m.logger.Warn("dropping wifi notification", "event", n.Event, "error", err)
		return
	}
	m.notifier.Notify(n.Event, buf.Bytes())
}

func encodeNotification(buf *bufpool.Buffer, n Notification) error {
	buf.Reset()
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return buf.SetPayload(raw)
}
