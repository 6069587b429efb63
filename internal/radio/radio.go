// Package radio defines the WiFi radio capability the connectivity
// manager drives.
//
// A Radio exposes configuration calls that return immediately and an
// event stream on which the outcome of slow operations (association,
// DHCP, per-channel scans) is reported. Implementations must never block
// a method call on a reader of Events.
package radio

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	// ErrNotConnected is returned by STALink while the station is not associated.
	ErrNotConnected = errors.New("radio: station not connected")

	// ErrSTADisabled is returned for station operations while STA is off.
	ErrSTADisabled = errors.New("radio: station interface disabled")

	// ErrScanInProgress is returned when a scan is already running.
	ErrScanInProgress = errors.New("radio: scan in progress")

	// ErrInvalidChannel is returned for channels outside 1..13.
	ErrInvalidChannel = errors.New("radio: invalid channel")
)

// Mode is the effective interface state of the radio.
type Mode uint8

const (
	ModeOff   Mode = 0
	ModeSTA   Mode = 1
	ModeAP    Mode = 2
	ModeAPSTA Mode = 3
)

// ModeFor composes a Mode from interface flags.
func ModeFor(ap, sta bool) Mode {
	var m Mode
	if sta {
		m |= ModeSTA
	}
	if ap {
		m |= ModeAP
	}
	return m
}

// STA reports whether the station interface is on.
func (m Mode) STA() bool { return m&ModeSTA != 0 }

// AP reports whether the access point is on.
func (m Mode) AP() bool { return m&ModeAP != 0 }

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeSTA:
		return "sta"
	case ModeAP:
		return "ap"
	case ModeAPSTA:
		return "ap+sta"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// MAC is a hardware address.
type MAC [6]byte

// String formats m as upper-case colon-separated hex.
func (m MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// MarshalText implements encoding.TextMarshaler.
func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMAC parses "AA:BB:CC:DD:EE:FF".
func ParseMAC(s string) (MAC, error) {
	var m MAC
	n, err := fmt.Sscanf(s, "%02X:%02X:%02X:%02X:%02X:%02X", &m[0], &m[1], &m[2], &m[3], &m[4], &m[5])
	if err != nil || n != 6 {
		return MAC{}, fmt.Errorf("radio: invalid MAC %q", s)
	}
	return m, nil
}

// IPInfo is the addressing of one interface.
type IPInfo struct {
	IP      netip.Addr
	Gateway netip.Addr
	Netmask netip.Addr
}

// APConfig configures the soft access point.
type APConfig struct {
	SSID           string
	Password       string
	Channel        int
	MaxConnections int
	IP             IPInfo
}

// STAConfig is the network the station associates with.
type STAConfig struct {
	SSID     string
	Password string
}

// StaticIP replaces DHCP on the station interface when Enabled.
type StaticIP struct {
	Enabled    bool
	IP         IPInfo
	DNSEnabled bool
	DNSMain    netip.Addr
	DNSBackup  netip.Addr
}

// AccessPoint is one scan record.
type AccessPoint struct {
	SSID    string
	BSSID   MAC
	RSSI    int
	Channel int
}

// ScanParams restricts one scan request.
type ScanParams struct {
	// Channel limits the scan to one channel; 0 scans all.
	Channel int
	// Max bounds the number of records kept.
	Max int
	// Active sends probe requests instead of listening for beacons.
	Active bool
}

// Link describes the current station association.
type Link struct {
	SSID    string
	BSSID   MAC
	RSSI    int
	Channel int
}

// EventKind enumerates radio events.
type EventKind uint8

const (
	EventScanDone EventKind = iota + 1
	EventSTAConnected
	EventSTADisconnected
	EventGotIP
	EventAPStarted
	EventAPStopped
)

func (k EventKind) String() string {
	switch k {
	case EventScanDone:
		return "scan_done"
	case EventSTAConnected:
		return "sta_connected"
	case EventSTADisconnected:
		return "sta_disconnected"
	case EventGotIP:
		return "got_ip"
	case EventAPStarted:
		return "ap_started"
	case EventAPStopped:
		return "ap_stopped"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Disconnect reasons reported with EventSTADisconnected.
const (
	ReasonUnspecified      = 1
	ReasonAssocLeave       = 8
	ReasonHandshakeTimeout = 15
	ReasonBeaconTimeout    = 200
	ReasonNoAPFound        = 201
	ReasonAuthFail         = 202
)

// Event is one asynchronous notification from the radio.
type Event struct {
	Kind    EventKind
	SSID    string
	Channel int
	Found   int // EventScanDone: records available
	Reason  int // EventSTADisconnected
	IP      netip.Addr
}

// Radio is the driver capability used by the connectivity manager.
type Radio interface {
	SetMode(mode Mode) error
	Mode() Mode

	SetAPConfig(cfg APConfig) error
	SetSTAConfig(cfg STAConfig) error
	SetSTAStaticIP(cfg StaticIP) error

	// Connect starts association with the configured network. The result
	// arrives as EventSTAConnected plus EventGotIP, or EventSTADisconnected.
	Connect() error
	Disconnect() error

	// StartScan begins a scan; EventScanDone reports completion.
	StartScan(p ScanParams) error
	// ScanResults returns up to limit records of the last finished scan.
	ScanResults(limit int) ([]AccessPoint, error)

	STALink() (Link, error)
	STAIPInfo() IPInfo
	APIPInfo() IPInfo
	STAMAC() MAC
	APMAC() MAC

	Events() <-chan Event
}
