package wifiapi

import (
	"context"
	"errors"
	"net/netip"
	"sort"
	"time"

	"github.com/nerrad567/wtap-core/internal/dispatch"
	"github.com/nerrad567/wtap-core/internal/radio"
	"github.com/nerrad567/wtap-core/internal/wifi"
)

// ModuleID is the router id of the WiFi module.
const ModuleID uint8 = 1

// Command ids.
const (
	CmdSTAGetAPInfo     uint16 = 1
	CmdConnect          uint16 = 2
	CmdGetScan          uint16 = 3
	CmdDisconnect       uint16 = 4
	CmdAPGetInfo        uint16 = 5
	CmdGetMode          uint16 = 6
	CmdSetMode          uint16 = 7
	CmdSetAPCred        uint16 = 8
	CmdSTAGetStaticInfo uint16 = 9
	CmdSTASetStaticConf uint16 = 10
)

// Soft error messages.
const (
	msgModeMissing    = "'mode' attribute missing"
	msgModeFailed     = "Change mode Failed"
	msgPasswordShort  = "password < 8"
	msgConnectFailed  = "Wi-Fi connect failed"
	msgConnectTimeout = "Wi-Fi connect timeout"
	msgSTADisabled    = "Wi-Fi STA disabled"
)

// defaultOpTimeout bounds synchronous manager calls.
const defaultOpTimeout = 5 * time.Second

// Manager is the part of wifi.Manager the module drives.
type Manager interface {
	STAInfo() wifi.STAInfo
	APInfo() wifi.APInfo
	Mode() wifi.ModeInfo
	Connect(ctx context.Context, cred wifi.Credential) error
	Disconnect() error
	Scan(ctx context.Context, limit int) ([]radio.AccessPoint, error)
	ChangeMode(ctx context.Context, p wifi.Policy) error
	ApplyDirective(ctx context.Context, d wifi.Directive) error
	SetAPAutoDelay(ctx context.Context, d wifi.APDelays) error
	SetAPCredential(ctx context.Context, c wifi.Credential) error
	StaticConfig() wifi.StaticConfig
	SetStaticConfig(ctx context.Context, s wifi.StaticConfig) error
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

// Module implements dispatch.Handler for the WiFi commands.
type Module struct {
	mgr       Manager
	logger    Logger
	scanLimit int
	opTimeout time.Duration
}

// New returns the WiFi module. scanLimit is the GET_SCAN default and cap.
func New(mgr Manager, scanLimit int) *Module {
	if scanLimit <= 0 {
		scanLimit = 20
	}
	return &Module{
		mgr:       mgr,
		logger:    noopLogger{},
		scanLimit: scanLimit,
		opTimeout: defaultOpTimeout,
	}
}

// SetLogger sets the logger for the module.
func (m *Module) SetLogger(logger Logger) {
	m.logger = logger
}

// HandleCommand implements dispatch.Handler.
func (m *Module) HandleCommand(cmd uint16, req *dispatch.Request, async *dispatch.Async) dispatch.Status {
	switch cmd {
	case CmdSTAGetAPInfo:
		req.Out = staInfoReply(m.mgr.STAInfo())
		return dispatch.StatusOK
	case CmdConnect:
		return m.connect(req, async)
	case CmdGetScan:
		return m.scan(req, async)
	case CmdDisconnect:
		return m.disconnect(req)
	case CmdAPGetInfo:
		req.Out = apInfoReply(m.mgr.APInfo())
		return dispatch.StatusOK
	case CmdGetMode:
		req.Out = modeReply(m.mgr.Mode())
		return dispatch.StatusOK
	case CmdSetMode:
		return m.setMode(req)
	case CmdSetAPCred:
		return m.setAPCred(req)
	case CmdSTAGetStaticInfo:
		req.Out = staticReply(m.mgr.StaticConfig())
		return dispatch.StatusOK
	case CmdSTASetStaticConf:
		return m.setStatic(req)
	default:
		return dispatch.StatusUnsupportedCommand
	}
}

func (m *Module) connect(req *dispatch.Request, async *dispatch.Async) dispatch.Status {
	ssid, okSSID := req.String("ssid")
	password, okPass := req.String("password")
	if !okSSID || !okPass {
		return dispatch.StatusPropertyError
	}
	cred := wifi.Credential{SSID: ssid, Password: password}
	if err := cred.Validate(); err != nil {
		return dispatch.StatusPropertyError
	}

	return async.Defer(func(ctx context.Context) dispatch.Status {
		err := m.mgr.Connect(ctx, cred)
		switch {
		case err == nil:
			req.Out = staInfoReply(m.mgr.STAInfo())
			return dispatch.StatusOK
		case errors.Is(err, wifi.ErrBusy):
			return dispatch.StatusBusy
		case errors.Is(err, wifi.ErrConnectTimeout):
			return dispatch.SoftError(req, msgConnectTimeout)
		case errors.Is(err, wifi.ErrSTADisabled):
			return dispatch.SoftError(req, msgSTADisabled)
		case errors.Is(err, wifi.ErrConnectFailed):
			return dispatch.SoftError(req, msgConnectFailed)
		default:
			m.logger.Error("connect command failed", "ssid", ssid, "error", err)
			return dispatch.StatusInternalError
		}
	})
}

func (m *Module) scan(req *dispatch.Request, async *dispatch.Async) dispatch.Status {
	limit := m.scanLimit
	if req.Has("max") {
		n, ok := req.Int("max")
		if !ok || n <= 0 {
			return dispatch.StatusPropertyError
		}
		limit = min(n, m.scanLimit)
	}

	return async.Defer(func(ctx context.Context) dispatch.Status {
		aps, err := m.mgr.Scan(ctx, limit)
		switch {
		case err == nil:
		case errors.Is(err, wifi.ErrBusy):
			return dispatch.StatusBusy
		default:
			m.logger.Error("scan command failed", "error", err)
			return dispatch.StatusInternalError
		}

		sort.SliceStable(aps, func(i, j int) bool { return aps[i].RSSI > aps[j].RSSI })
		list := make([]scanEntry, len(aps))
		for i, ap := range aps {
			list[i] = scanEntry{SSID: ap.SSID, MAC: ap.BSSID.String(), RSSI: ap.RSSI}
		}
		req.Out = scanReply{ScanList: list}
		return dispatch.StatusOK
	})
}

func (m *Module) disconnect(req *dispatch.Request) dispatch.Status {
	if err := m.mgr.Disconnect(); err != nil {
		m.logger.Error("disconnect command failed", "error", err)
		return dispatch.StatusInternalError
	}
	req.Out = nil
	return dispatch.StatusOK
}

func (m *Module) setMode(req *dispatch.Request) dispatch.Status {
	value, ok := req.Int("mode")
	if !ok {
		return dispatch.SoftError(req, msgModeMissing)
	}
	policy, directive, isDirective, err := wifi.ParseMode(value)
	if err != nil {
		return dispatch.SoftError(req, msgModeFailed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()

	if isDirective {
		err = m.mgr.ApplyDirective(ctx, directive)
	} else {
		err = m.mgr.ChangeMode(ctx, policy)
	}
	if err != nil {
		if errors.Is(err, wifi.ErrBusy) {
			return dispatch.StatusBusy
		}
		m.logger.Warn("mode change failed", "mode", value, "error", err)
		return dispatch.SoftError(req, msgModeFailed)
	}

	req.Out = nil
	if isDirective || policy != wifi.PolicyAuto {
		return dispatch.StatusOK
	}

	on, okOn := req.Int("ap_on_delay")
	off, okOff := req.Int("ap_off_delay")
	if !okOn || !okOff {
		return dispatch.StatusOK
	}
	if on < 0 || off < 0 {
		return dispatch.StatusPropertyError
	}
	d := wifi.APDelays{On: time.Duration(on) * time.Millisecond, Off: time.Duration(off) * time.Millisecond}
	if err := m.mgr.SetAPAutoDelay(ctx, d); err != nil {
		m.logger.Error("saving AP delays", "error", err)
		return dispatch.StatusInternalError
	}
	req.Out = setModeReply{Mode: value, APOnDelay: on, APOffDelay: off}
	return dispatch.StatusOK
}

func (m *Module) setAPCred(req *dispatch.Request) dispatch.Status {
	ssid, okSSID := req.String("ssid")
	password, okPass := req.String("password")
	if !okSSID || !okPass || ssid == "" {
		return dispatch.StatusPropertyError
	}
	if len(password) < 8 {
		return dispatch.SoftError(req, msgPasswordShort)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()

	err := m.mgr.SetAPCredential(ctx, wifi.Credential{SSID: ssid, Password: password})
	switch {
	case err == nil:
		req.Out = nil
		return dispatch.StatusOK
	case errors.Is(err, wifi.ErrPasswordTooShort):
		return dispatch.SoftError(req, msgPasswordShort)
	case errors.Is(err, wifi.ErrInvalidCredential):
		return dispatch.StatusPropertyError
	default:
		m.logger.Error("saving AP credential", "error", err)
		return dispatch.StatusInternalError
	}
}

func (m *Module) setStatic(req *dispatch.Request) dispatch.Status {
	cfg := m.mgr.StaticConfig()
	if err := mergeStatic(req, &cfg); err != nil {
		return dispatch.StatusPropertyError
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()

	if err := m.mgr.SetStaticConfig(ctx, cfg); err != nil {
		if errors.Is(err, wifi.ErrPersist) {
			m.logger.Error("saving static addressing", "error", err)
			return dispatch.StatusInternalError
		}
		return dispatch.StatusPropertyError
	}
	req.Out = nil
	return dispatch.StatusOK
}

// mergeStatic overlays the static_* fields present in req onto cfg.
func mergeStatic(req *dispatch.Request, cfg *wifi.StaticConfig) error {
	if v, ok := req.Bool("static_enabled"); ok {
		cfg.Enabled = v
	} else if req.Has("static_enabled") {
		return errBadField
	}
	if v, ok := req.Bool("dns_enabled"); ok {
		cfg.DNSEnabled = v
	} else if req.Has("dns_enabled") {
		return errBadField
	}
	for _, f := range []struct {
		name string
		dst  *netip.Addr
	}{
		{"static_ip", &cfg.IP},
		{"static_netmask", &cfg.Netmask},
		{"static_gateway", &cfg.Gateway},
		{"dns_main", &cfg.DNSMain},
		{"dns_backup", &cfg.DNSBackup},
	} {
		if !req.Has(f.name) {
			continue
		}
		s, ok := req.String(f.name)
		if !ok {
			return errBadField
		}
		addr, err := netip.ParseAddr(s)
		if err != nil || !addr.Is4() {
			return errBadField
		}
		*f.dst = addr
	}
	return nil
}

var errBadField = errors.New("wifiapi: invalid field")
