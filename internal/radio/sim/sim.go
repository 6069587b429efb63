// Package sim is an in-process radio that emulates a station/AP chip
// against a fixed set of networks. It backs the "sim" radio driver and
// the connectivity manager tests.
package sim

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/wtap-core/internal/infrastructure/config"
	"github.com/nerrad567/wtap-core/internal/radio"
)

// Network is one access point visible to the simulated radio.
type Network struct {
	SSID     string
	Password string
	BSSID    radio.MAC
	Channel  int
	RSSI     int
}

// Config controls timing and identity of the simulated radio.
type Config struct {
	Networks       []Network
	ConnectLatency time.Duration
	ScanLatency    time.Duration
	STAMAC         radio.MAC
	APMAC          radio.MAC
	// Subnet addresses handed out by the simulated DHCP server.
	LeaseIP      netip.Addr
	LeaseGateway netip.Addr
	LeaseNetmask netip.Addr
}

var (
	defaultSTAMAC = radio.MAC{0x24, 0x0A, 0xC4, 0x00, 0x00, 0x01}
	defaultAPMAC  = radio.MAC{0x24, 0x0A, 0xC4, 0x00, 0x00, 0x02}
)

// FromConfig builds a Config from the radio.sim configuration section.
func FromConfig(cfg config.SimRadioConfig) (Config, error) {
	out := Config{
		ConnectLatency: cfg.ConnectLatency,
		ScanLatency:    cfg.ScanLatency,
	}
	for i, n := range cfg.Networks {
		nw := Network{
			SSID:     n.SSID,
			Password: n.Password,
			Channel:  n.Channel,
			RSSI:     n.RSSI,
		}
		if n.BSSID != "" {
			mac, err := radio.ParseMAC(n.BSSID)
			if err != nil {
				return Config{}, fmt.Errorf("radio.sim.networks[%d]: %w", i, err)
			}
			nw.BSSID = mac
		} else {
			nw.BSSID = radio.MAC{0x02, 0x00, 0x00, 0x00, byte(i >> 8), byte(i)}
		}
		out.Networks = append(out.Networks, nw)
	}
	return out, nil
}

type linkState uint8

const (
	linkIdle linkState = iota
	linkConnecting
	linkUp
)

// Radio is the simulated driver. It is safe for concurrent use.
type Radio struct {
	mu       sync.Mutex
	cfg      Config
	mode     radio.Mode
	ap       radio.APConfig
	sta      radio.STAConfig
	static   radio.StaticIP
	link     linkState
	current  Network
	staIP    radio.IPInfo
	gen      uint64 // bumps on every connect/disconnect so stale completions are dropped
	scanning bool
	results  []radio.AccessPoint

	stalled   map[int]bool
	failNext  int
	modeErr   error
	connects  int
	scans     []int

	queue  []radio.Event
	wake   chan struct{}
	events chan radio.Event
	done   chan struct{}
	once   sync.Once
}

// New starts a simulated radio. Close releases its event goroutine.
func New(cfg Config) *Radio {
	if cfg.STAMAC == (radio.MAC{}) {
		cfg.STAMAC = defaultSTAMAC
	}
	if cfg.APMAC == (radio.MAC{}) {
		cfg.APMAC = defaultAPMAC
	}
	if !cfg.LeaseIP.IsValid() {
		cfg.LeaseIP = netip.MustParseAddr("10.0.0.42")
		cfg.LeaseGateway = netip.MustParseAddr("10.0.0.1")
		cfg.LeaseNetmask = netip.MustParseAddr("255.255.255.0")
	}
	r := &Radio{
		cfg:     cfg,
		stalled: make(map[int]bool),
		wake:    make(chan struct{}, 1),
		events:  make(chan radio.Event, 16),
		done:    make(chan struct{}),
	}
	go r.forward()
	return r
}

// Close stops event delivery.
func (r *Radio) Close() {
	r.once.Do(func() { close(r.done) })
}

// forward drains the internal queue in order so driver calls never block
// on the event reader.
func (r *Radio) forward() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			select {
			case <-r.wake:
				continue
			case <-r.done:
				return
			}
		}
		ev := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		select {
		case r.events <- ev:
		case <-r.done:
			return
		}
	}
}

// postLocked queues ev for delivery. r.mu must be held.
func (r *Radio) postLocked(ev radio.Event) {
	r.queue = append(r.queue, ev)
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Events implements radio.Radio.
func (r *Radio) Events() <-chan radio.Event { return r.events }

// SetMode implements radio.Radio.
func (r *Radio) SetMode(mode radio.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.modeErr != nil {
		return r.modeErr
	}
	prev := r.mode
	r.mode = mode

	if prev.AP() && !mode.AP() {
		r.postLocked(radio.Event{Kind: radio.EventAPStopped, SSID: r.ap.SSID})
	}
	if !prev.AP() && mode.AP() {
		r.postLocked(radio.Event{Kind: radio.EventAPStarted, SSID: r.ap.SSID, Channel: r.ap.Channel})
	}
	if prev.STA() && !mode.STA() {
		r.dropLinkLocked(radio.ReasonAssocLeave)
		r.scanning = false
	}
	return nil
}

// Mode implements radio.Radio.
func (r *Radio) Mode() radio.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// SetAPConfig implements radio.Radio.
func (r *Radio) SetAPConfig(cfg radio.APConfig) error {
	if cfg.Channel < 1 || cfg.Channel > 13 {
		return radio.ErrInvalidChannel
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ap = cfg
	return nil
}

// APConfig returns the applied AP configuration.
func (r *Radio) APConfig() radio.APConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ap
}

// SetSTAConfig implements radio.Radio.
func (r *Radio) SetSTAConfig(cfg radio.STAConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sta = cfg
	return nil
}

// SetSTAStaticIP implements radio.Radio.
func (r *Radio) SetSTAStaticIP(cfg radio.StaticIP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.static = cfg
	return nil
}

// Connect implements radio.Radio.
func (r *Radio) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.mode.STA() {
		return radio.ErrSTADisabled
	}
	r.connects++
	if r.link == linkUp {
		r.dropLinkLocked(radio.ReasonAssocLeave)
	}
	// A pending attempt is superseded without an event.
	r.gen++
	gen := r.gen
	r.link = linkConnecting
	target := r.sta

	time.AfterFunc(r.cfg.ConnectLatency, func() { r.finishConnect(gen, target) })
	return nil
}

func (r *Radio) finishConnect(gen uint64, target radio.STAConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || r.link != linkConnecting {
		return
	}

	if r.failNext > 0 {
		r.failNext--
		r.link = linkIdle
		r.postLocked(radio.Event{Kind: radio.EventSTADisconnected, SSID: target.SSID, Reason: radio.ReasonHandshakeTimeout})
		return
	}

	nw, ok := r.lookupLocked(target.SSID)
	if !ok {
		r.link = linkIdle
		r.postLocked(radio.Event{Kind: radio.EventSTADisconnected, SSID: target.SSID, Reason: radio.ReasonNoAPFound})
		return
	}
	if nw.Password != target.Password {
		r.link = linkIdle
		r.postLocked(radio.Event{Kind: radio.EventSTADisconnected, SSID: target.SSID, Reason: radio.ReasonAuthFail})
		return
	}

	r.link = linkUp
	r.current = nw
	if r.static.Enabled {
		r.staIP = r.static.IP
	} else {
		r.staIP = radio.IPInfo{IP: r.cfg.LeaseIP, Gateway: r.cfg.LeaseGateway, Netmask: r.cfg.LeaseNetmask}
	}
	r.postLocked(radio.Event{Kind: radio.EventSTAConnected, SSID: nw.SSID, Channel: nw.Channel})
	r.postLocked(radio.Event{Kind: radio.EventGotIP, SSID: nw.SSID, IP: r.staIP.IP})
}

func (r *Radio) lookupLocked(ssid string) (Network, bool) {
	for _, n := range r.cfg.Networks {
		if n.SSID == ssid {
			return n, true
		}
	}
	return Network{}, false
}

// Disconnect implements radio.Radio.
func (r *Radio) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLinkLocked(radio.ReasonAssocLeave)
	return nil
}

func (r *Radio) dropLinkLocked(reason int) {
	r.gen++
	if r.link == linkIdle {
		return
	}
	ssid := r.sta.SSID
	if r.link == linkUp {
		ssid = r.current.SSID
	}
	r.link = linkIdle
	r.current = Network{}
	r.staIP = radio.IPInfo{}
	r.postLocked(radio.Event{Kind: radio.EventSTADisconnected, SSID: ssid, Reason: reason})
}

// StartScan implements radio.Radio.
func (r *Radio) StartScan(p radio.ScanParams) error {
	if p.Channel < 0 || p.Channel > 13 {
		return radio.ErrInvalidChannel
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.mode.STA() {
		return radio.ErrSTADisabled
	}
	if r.scanning {
		return radio.ErrScanInProgress
	}
	r.scanning = true
	r.scans = append(r.scans, p.Channel)
	if r.stalled[p.Channel] {
		// The chip never reports completion; the next StartScan after a
		// caller timeout clears the stuck state.
		r.scanning = false
		return nil
	}

	time.AfterFunc(r.cfg.ScanLatency, func() { r.finishScan(p) })
	return nil
}

func (r *Radio) finishScan(p radio.ScanParams) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.scanning {
		return
	}
	r.scanning = false

	var found []radio.AccessPoint
	for _, n := range r.cfg.Networks {
		if p.Channel != 0 && n.Channel != p.Channel {
			continue
		}
		found = append(found, radio.AccessPoint{SSID: n.SSID, BSSID: n.BSSID, RSSI: n.RSSI, Channel: n.Channel})
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].RSSI > found[j].RSSI })
	if p.Max > 0 && len(found) > p.Max {
		found = found[:p.Max]
	}
	r.results = found
	r.postLocked(radio.Event{Kind: radio.EventScanDone, Channel: p.Channel, Found: len(found)})
}

// ScanResults implements radio.Radio. Records are consumed by the call.
func (r *Radio) ScanResults(limit int) ([]radio.AccessPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.results
	r.results = nil
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// STALink implements radio.Radio.
func (r *Radio) STALink() (radio.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.link != linkUp {
		return radio.Link{}, radio.ErrNotConnected
	}
	return radio.Link{SSID: r.current.SSID, BSSID: r.current.BSSID, RSSI: r.current.RSSI, Channel: r.current.Channel}, nil
}

// STAIPInfo implements radio.Radio.
func (r *Radio) STAIPInfo() radio.IPInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.staIP
}

// APIPInfo implements radio.Radio.
func (r *Radio) APIPInfo() radio.IPInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ap.IP
}

// STAMAC implements radio.Radio.
func (r *Radio) STAMAC() radio.MAC { return r.cfg.STAMAC }

// APMAC implements radio.Radio.
func (r *Radio) APMAC() radio.MAC { return r.cfg.APMAC }

// Test and bench controls.

// StallChannel makes scans of channel ch never complete.
func (r *Radio) StallChannel(ch int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stalled[ch] = true
}

// FailConnects makes the next n association attempts fail.
func (r *Radio) FailConnects(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = n
}

// FailSetMode makes SetMode return err until called with nil.
func (r *Radio) FailSetMode(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modeErr = err
}

// DropLink simulates the access point going away.
func (r *Radio) DropLink() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLinkLocked(radio.ReasonBeaconTimeout)
}

// SetNetworks replaces the visible networks.
func (r *Radio) SetNetworks(nws []Network) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.Networks = append([]Network(nil), nws...)
}

// ConnectCalls reports how many times Connect was accepted.
func (r *Radio) ConnectCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

// ScannedChannels lists the channels passed to StartScan, in order.
func (r *Radio) ScannedChannels() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.scans...)
}
