package wifi

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/nerrad567/wtap-core/internal/infrastructure/config"
	"github.com/nerrad567/wtap-core/internal/radio"
)

var (
	// ErrBusy is returned when another radio operation holds the flight token.
	ErrBusy = errors.New("wifi: radio busy")

	// ErrConnectFailed is returned when every connect attempt was rejected.
	ErrConnectFailed = errors.New("wifi: connect failed")

	// ErrConnectTimeout is returned when no outcome arrived before the deadline.
	ErrConnectTimeout = errors.New("wifi: connect timed out")

	// ErrSTADisabled is returned for station operations while the policy keeps STA off.
	ErrSTADisabled = errors.New("wifi: station disabled")

	// ErrInvalidCredential is returned for out-of-range SSIDs or passwords.
	ErrInvalidCredential = errors.New("wifi: invalid credential")

	// ErrPasswordTooShort is returned for AP passwords under 8 characters.
	ErrPasswordTooShort = errors.New("wifi: password < 8")

	// ErrInvalidMode is returned for unknown mode wire values.
	ErrInvalidMode = errors.New("wifi: invalid mode")

	// ErrModeChange is returned when the radio refused a mode.
	ErrModeChange = errors.New("wifi: change mode failed")

	// ErrPersist wraps storage failures.
	ErrPersist = errors.New("wifi: persisting settings")

	// ErrNotRunning is returned before Start or after Stop.
	ErrNotRunning = errors.New("wifi: manager not running")
)

// Policy is the persisted permanent mode.
type Policy uint8

const (
	// PolicyAuto keeps STA on and derives the AP from the link state.
	PolicyAuto    Policy = 0
	PolicyAllOff  Policy = 4
	PolicySTAOnly Policy = 5
	PolicyAPOnly  Policy = 6
	PolicyBoth    Policy = 7
)

func (p Policy) String() string {
	switch p {
	case PolicyAuto:
		return "auto"
	case PolicyAllOff:
		return "off"
	case PolicySTAOnly:
		return "sta"
	case PolicyAPOnly:
		return "ap"
	case PolicyBoth:
		return "ap+sta"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	switch p {
	case PolicyAuto, PolicyAllOff, PolicySTAOnly, PolicyAPOnly, PolicyBoth:
		return true
	}
	return false
}

// Mode returns the effective radio mode under p for the given link state.
func (p Policy) Mode(connected bool) radio.Mode {
	switch p {
	case PolicyAuto:
		return radio.ModeFor(!connected, true)
	case PolicySTAOnly:
		return radio.ModeSTA
	case PolicyAPOnly:
		return radio.ModeAP
	case PolicyBoth:
		return radio.ModeAPSTA
	default:
		return radio.ModeOff
	}
}

// Directive is a one-shot interface switch. Directives change the
// effective mode only and are never persisted.
type Directive uint8

const (
	DirectiveAPStop   Directive = 8
	DirectiveAPStart  Directive = 9
	DirectiveSTAStop  Directive = 10
	DirectiveSTAStart Directive = 11
)

func (d Directive) String() string {
	switch d {
	case DirectiveAPStop:
		return "ap_stop"
	case DirectiveAPStart:
		return "ap_start"
	case DirectiveSTAStop:
		return "sta_stop"
	case DirectiveSTAStart:
		return "sta_start"
	default:
		return fmt.Sprintf("directive(%d)", uint8(d))
	}
}

// Apply returns m with the directive's interface switched.
func (d Directive) Apply(m radio.Mode) radio.Mode {
	switch d {
	case DirectiveAPStop:
		return radio.ModeFor(false, m.STA())
	case DirectiveAPStart:
		return radio.ModeFor(true, m.STA())
	case DirectiveSTAStop:
		return radio.ModeFor(m.AP(), false)
	case DirectiveSTAStart:
		return radio.ModeFor(m.AP(), true)
	default:
		return m
	}
}

// ParseMode splits a mode wire value into a policy or a directive.
// Exactly one of the two results is meaningful when err is nil;
// isDirective tells which.
func ParseMode(v int) (p Policy, d Directive, isDirective bool, err error) {
	if v >= int(DirectiveAPStop) && v <= int(DirectiveSTAStart) {
		return 0, Directive(v), true, nil
	}
	if v < 0 || v > 255 || !Policy(v).Valid() {
		return 0, 0, false, fmt.Errorf("%w: %d", ErrInvalidMode, v)
	}
	return Policy(v), 0, false, nil
}

// Credential is an SSID and passphrase pair.
type Credential struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// Validate checks the 802.11 limits: SSID 1..32 bytes, passphrase empty
// (open network) or 8..64 bytes.
func (c Credential) Validate() error {
	if len(c.SSID) == 0 || len(c.SSID) > 32 {
		return fmt.Errorf("%w: ssid length %d", ErrInvalidCredential, len(c.SSID))
	}
	if n := len(c.Password); n != 0 && (n < 8 || n > 64) {
		return fmt.Errorf("%w: password length %d", ErrInvalidCredential, n)
	}
	return nil
}

// APDelays are the auto-mode grace periods.
type APDelays struct {
	On  time.Duration
	Off time.Duration
}

// StaticConfig is the optional static addressing of the station.
type StaticConfig struct {
	Enabled    bool       `json:"enabled"`
	IP         netip.Addr `json:"ip"`
	Netmask    netip.Addr `json:"netmask"`
	Gateway    netip.Addr `json:"gateway"`
	DNSEnabled bool       `json:"dns_enabled"`
	DNSMain    netip.Addr `json:"dns_main"`
	DNSBackup  netip.Addr `json:"dns_backup"`
}

// Validate requires addresses for the enabled parts.
func (s StaticConfig) Validate() error {
	if s.Enabled && (!s.IP.Is4() || !s.Netmask.Is4() || !s.Gateway.Is4()) {
		return errors.New("wifi: static ip, netmask and gateway must be IPv4 addresses")
	}
	if s.DNSEnabled && !s.DNSMain.Is4() {
		return errors.New("wifi: static dns_main must be an IPv4 address")
	}
	return nil
}

func (s StaticConfig) radio() radio.StaticIP {
	return radio.StaticIP{
		Enabled:    s.Enabled,
		IP:         radio.IPInfo{IP: s.IP, Gateway: s.Gateway, Netmask: s.Netmask},
		DNSEnabled: s.DNSEnabled,
		DNSMain:    s.DNSMain,
		DNSBackup:  s.DNSBackup,
	}
}

// STAInfo describes the station link.
type STAInfo struct {
	Connected bool
	SSID      string
	BSSID     radio.MAC
	RSSI      int
	Channel   int
	MAC       radio.MAC
	IP        radio.IPInfo
}

// APInfo describes the access point.
type APInfo struct {
	Running  bool
	SSID     string
	Password string
	Channel  int
	MAC      radio.MAC
	IP       radio.IPInfo
}

// ModeInfo is the policy and the resulting effective mode.
type ModeInfo struct {
	Policy Policy
	Status radio.Mode
	Delays APDelays
}

// Snapshot is a point-in-time summary for health and metrics endpoints.
type Snapshot struct {
	Policy        Policy     `json:"policy"`
	Mode          radio.Mode `json:"mode"`
	Connected     bool       `json:"connected"`
	SSID          string     `json:"ssid,omitempty"`
	RSSI          int        `json:"rssi,omitempty"`
	Failures      int        `json:"failures"`
	AutoReconnect bool       `json:"auto_reconnect"`
	Reconnecting  bool       `json:"reconnecting"`
	Holder        string     `json:"holder,omitempty"`
}

// Config holds the manager's timing and AP defaults.
type Config struct {
	AP                 radio.APConfig
	ConnectTimeout     time.Duration
	ExplicitAttempts   int
	BootAttempts       int
	ReconnectDelay     time.Duration
	PreemptTimeout     time.Duration
	APOffDelay         time.Duration
	APOnDelay          time.Duration
	FailureThreshold   int
	ScanChannelTimeout time.Duration
	ScanMinRSSI        int
	ScanMaxResults     int
	NotifyTimeout      time.Duration
}

// ConfigFrom converts the wifi configuration section.
func ConfigFrom(cfg config.WiFiConfig) (Config, error) {
	ap := radio.APConfig{
		SSID:           cfg.AP.SSID,
		Password:       cfg.AP.Password,
		Channel:        cfg.AP.Channel,
		MaxConnections: cfg.AP.MaxConnections,
	}
	for _, f := range []struct {
		name string
		in   string
		out  *netip.Addr
	}{
		{"wifi.ap.ip", cfg.AP.IP, &ap.IP.IP},
		{"wifi.ap.gateway", cfg.AP.Gateway, &ap.IP.Gateway},
		{"wifi.ap.netmask", cfg.AP.Netmask, &ap.IP.Netmask},
	} {
		addr, err := netip.ParseAddr(f.in)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.out = addr
	}

	return Config{
		AP:                 ap,
		ConnectTimeout:     cfg.ConnectTimeout,
		ExplicitAttempts:   cfg.ExplicitAttempts,
		BootAttempts:       cfg.BootAttempts,
		ReconnectDelay:     cfg.ReconnectDelay,
		PreemptTimeout:     cfg.PreemptTimeout,
		APOffDelay:         cfg.APOffDelay,
		APOnDelay:          cfg.APOnDelay,
		FailureThreshold:   cfg.FailureThreshold,
		ScanChannelTimeout: cfg.ScanChannelTimeout,
		ScanMinRSSI:        cfg.ScanMinRSSI,
		ScanMaxResults:     cfg.ScanMaxResults,
	}, nil
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ExplicitAttempts <= 0 {
		c.ExplicitAttempts = 2
	}
	if c.BootAttempts <= 0 {
		c.BootAttempts = 3
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.PreemptTimeout <= 0 {
		c.PreemptTimeout = 2 * time.Second
	}
	if c.APOffDelay <= 0 {
		c.APOffDelay = 5 * time.Second
	}
	if c.APOnDelay <= 0 {
		c.APOnDelay = 10 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ScanChannelTimeout <= 0 {
		c.ScanChannelTimeout = time.Second
	}
	if c.ScanMinRSSI == 0 {
		c.ScanMinRSSI = -80
	}
	if c.ScanMaxResults <= 0 {
		c.ScanMaxResults = 20
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 10 * time.Millisecond
	}
}
