// Package sysapi is JSON router module 0: firmware information and
// restart.
package sysapi

import (
	"os"
	"sync"
	"time"

	"github.com/nerrad567/wtap-core/internal/dispatch"
)

// ModuleID is the router id of the system module.
const ModuleID uint8 = 0

// Command ids.
const (
	CmdGetFMInfo uint16 = 1
	CmdReboot    uint16 = 2
)

// DefaultRebootDelay leaves time for the REBOOT reply to reach the client.
const DefaultRebootDelay = 500 * time.Millisecond

// BuildInfo is stamped at link time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// Logger defines the logging interface for the module.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Module implements dispatch.Handler for the system commands.
type Module struct {
	build    BuildInfo
	deviceID string
	hostname string
	started  time.Time
	modules  func() []uint8
	restart  func()
	delay    time.Duration
	logger   Logger

	mu      sync.Mutex
	pending *time.Timer
}

// New returns the system module. modules lists registered module ids;
// restart is invoked once, after the reboot delay, when REBOOT is received.
func New(build BuildInfo, deviceID string, modules func() []uint8, restart func()) *Module {
	host, err := os.Hostname()
	if err != nil {
		host = deviceID
	}
	return &Module{
		build:    build,
		deviceID: deviceID,
		hostname: host,
		started:  time.Now(),
		modules:  modules,
		restart:  restart,
		delay:    DefaultRebootDelay,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the module.
func (m *Module) SetLogger(logger Logger) {
	m.logger = logger
}

// SetRebootDelay overrides DefaultRebootDelay.
func (m *Module) SetRebootDelay(d time.Duration) {
	m.delay = d
}

// SetHostname overrides the OS hostname reported by GET_FM_INFO.
func (m *Module) SetHostname(h string) {
	if h != "" {
		m.hostname = h
	}
}

type fmInfo struct {
	Version       string  `json:"version"`
	Commit        string  `json:"commit"`
	BuildDate     string  `json:"build_date"`
	DeviceID      string  `json:"device_id"`
	Hostname      string  `json:"hostname"`
	UptimeSeconds int64   `json:"uptime_s"`
	Modules       []int   `json:"modules"`
}

// HandleCommand implements dispatch.Handler.
func (m *Module) HandleCommand(cmd uint16, req *dispatch.Request, _ *dispatch.Async) dispatch.Status {
	switch cmd {
	case CmdGetFMInfo:
		info := fmInfo{
			Version:       m.build.Version,
			Commit:        m.build.Commit,
			BuildDate:     m.build.Date,
			DeviceID:      m.deviceID,
			Hostname:      m.hostname,
			UptimeSeconds: int64(time.Since(m.started).Seconds()),
			Modules:       []int{},
		}
		if m.modules != nil {
			for _, id := range m.modules() {
				info.Modules = append(info.Modules, int(id))
			}
		}
		req.Out = info
		return dispatch.StatusOK
	case CmdReboot:
		m.scheduleRestart()
		req.Out = nil
		return dispatch.StatusOK
	default:
		return dispatch.StatusUnsupportedCommand
	}
}

// scheduleRestart arms the restart timer. Repeated requests while one is
// pending are acknowledged without re-arming.
func (m *Module) scheduleRestart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil || m.restart == nil {
		return
	}
	m.logger.Warn("restart requested", "delay", m.delay)
	m.pending = time.AfterFunc(m.delay, m.restart)
}

// RestartPending reports whether a REBOOT has been accepted.
func (m *Module) RestartPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}
