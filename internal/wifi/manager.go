package wifi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/wtap-core/internal/bufpool"
	"github.com/nerrad567/wtap-core/internal/kvstore"
	"github.com/nerrad567/wtap-core/internal/radio"
)

// Logger defines the logging interface for the WiFi manager.
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

// holder names the operation that owns the flight token.
type holder uint8

const (
	holderNone holder = iota
	holderConnect
	holderReconnect
	holderScan
	holderMode
	holderAPStop
	holderAPStart
)

func (h holder) String() string {
	switch h {
	case holderConnect:
		return "connect"
	case holderReconnect:
		return "reconnect"
	case holderScan:
		return "scan"
	case holderMode:
		return "mode"
	case holderAPStop:
		return "ap_stop"
	case holderAPStart:
		return "ap_start"
	default:
		return ""
	}
}

// delayed is an armed AP grace timer.
type delayed struct {
	cancel context.CancelFunc
}

// loop is a running background reconnect worker.
type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the radio and the WiFi policy.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - mu guards state; the flight token serialises radio operations.
//     The token is never awaited while mu is held.
type Manager struct {
	cfg      Config
	radio    radio.Radio
	store    *Storage
	pool     *bufpool.Pool
	logger   Logger
	notifier Notifier
	metrics  Metrics
	history  History

	// flight has capacity one; holding its slot is exclusive radio use.
	flight chan struct{}

	mu            sync.Mutex
	running       bool
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	holder        holder
	policy        Policy
	mode          radio.Mode
	connected     bool
	ssid          string
	failures      int
	autoReconnect bool
	lastGood      *Credential
	apCred        Credential
	delays        APDelays
	static        StaticConfig
	apStop        *delayed
	apStart       *delayed
	reconnect     *loop
	connectWait   chan radio.Event
	scanWait      chan radio.Event
}

// New creates a manager for drv. pool supplies notification buffers and
// may be nil when no notifier is set.
func New(cfg Config, drv radio.Radio, store *Storage, pool *bufpool.Pool) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:     cfg,
		radio:   drv,
		store:   store,
		pool:    pool,
		logger:  noopLogger{},
		metrics: noopMetrics{},
		flight:  make(chan struct{}, 1),
		delays:  APDelays{On: cfg.APOnDelay, Off: cfg.APOffDelay},
		apCred:  Credential{SSID: cfg.AP.SSID, Password: cfg.AP.Password},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetNotifier sets the receiver of state-change notifications.
func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

// SetMetrics sets the receiver of connectivity measurements.
func (m *Manager) SetMetrics(metrics Metrics) {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	m.metrics = metrics
}

// SetHistory sets the connect history recorder.
func (m *Manager) SetHistory(h History) {
	m.history = h
}

// Start restores persisted settings, applies the effective mode and,
// when the station is enabled and a credential connected before, starts
// the boot reconnect.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("wifi: manager already running")
	}
	m.mu.Unlock()

	policy, err := m.store.LoadPolicy(ctx)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		m.logger.Warn("ignoring stored wifi mode", "error", err)
	}
	apCred, err := m.store.LoadAPCredential(ctx)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			m.logger.Warn("ignoring stored AP credential", "error", err)
		}
		apCred = Credential{SSID: m.cfg.AP.SSID, Password: m.cfg.AP.Password}
	}
	delays, err := m.store.LoadAPDelays(ctx, APDelays{On: m.cfg.APOnDelay, Off: m.cfg.APOffDelay})
	if err != nil {
		m.logger.Warn("ignoring stored AP delays", "error", err)
	}
	static, err := m.store.LoadStatic(ctx)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		m.logger.Warn("ignoring stored static addressing", "error", err)
		static = StaticConfig{}
	}
	var lastGood *Credential
	if c, err := m.store.LoadLastCredential(ctx); err == nil {
		lastGood = &c
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		m.logger.Warn("ignoring stored station credential", "error", err)
	}

	if err := m.radio.SetAPConfig(m.apConfig(apCred)); err != nil {
		return fmt.Errorf("configuring access point: %w", err)
	}
	if static.Enabled {
		if err := m.radio.SetSTAStaticIP(static.radio()); err != nil {
			return fmt.Errorf("configuring static addressing: %w", err)
		}
	}
	mode := policy.Mode(false)
	if err := m.radio.SetMode(mode); err != nil {
		return fmt.Errorf("%w: %w", ErrModeChange, err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.running = true
	m.ctx, m.cancel = runCtx, cancel
	m.policy, m.mode = policy, mode
	m.apCred, m.delays, m.static = apCred, delays, static
	m.lastGood = lastGood
	m.connected, m.failures = false, 0

	m.wg.Add(1)
	go m.pump(runCtx)

	if mode.STA() && lastGood != nil {
		m.autoReconnect = true
		m.startReconnectLocked(*lastGood, OriginBoot)
	}
	m.mu.Unlock()

	m.logger.Info("wifi manager started",
		"policy", policy,
		"mode", mode,
		"ap_ssid", apCred.SSID,
		"boot_reconnect", mode.STA() && lastGood != nil,
	)
	return nil
}

// Stop cancels every worker and waits for them to exit. The radio is left
// in its current mode.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancelDelayedLocked(&m.apStop)
	m.cancelDelayedLocked(&m.apStart)
	m.reconnect = nil
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("wifi manager stopped")
}

// bind derives a context that also ends when the manager stops.
func (m *Manager) bind(ctx context.Context) (context.Context, context.CancelFunc, error) {
	m.mu.Lock()
	running, root := m.running, m.ctx
	m.mu.Unlock()
	if !running {
		return nil, nil, ErrNotRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(root, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

func (m *Manager) apConfig(c Credential) radio.APConfig {
	ap := m.cfg.AP
	ap.SSID, ap.Password = c.SSID, c.Password
	return ap
}

// tryAcquire takes the flight token without waiting.
func (m *Manager) tryAcquire(h holder) bool {
	select {
	case m.flight <- struct{}{}:
		m.mu.Lock()
		m.holder = h
		m.mu.Unlock()
		return true
	default:
		return false
	}
}

// acquire waits for the flight token until ctx ends.
func (m *Manager) acquire(ctx context.Context, h holder) error {
	select {
	case m.flight <- struct{}{}:
		m.mu.Lock()
		m.holder = h
		m.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() {
	m.mu.Lock()
	m.holder = holderNone
	m.mu.Unlock()
	<-m.flight
}

// acquireExclusive takes the flight token for an operation that outranks
// the background reconnect loop, cancelling the loop if one runs. Any
// other holder makes it fail with ErrBusy. It reports whether a loop was
// cancelled.
func (m *Manager) acquireExclusive(ctx context.Context, h holder) (bool, error) {
	if m.tryAcquire(h) {
		// A loop sleeping between attempts does not hold the token.
		return m.stopReconnect(), nil
	}

	m.mu.Lock()
	current := m.holder
	m.mu.Unlock()
	if current != holderReconnect && current != holderNone {
		return false, ErrBusy
	}

	preempted := m.stopReconnect()
	if preempted {
		m.logger.Info("preempting background reconnect", "for", h.String())
	}
	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.PreemptTimeout)
	defer cancel()
	if err := m.acquire(waitCtx, h); err != nil {
		if ctx.Err() != nil {
			return preempted, ctx.Err()
		}
		return preempted, ErrBusy
	}
	return preempted, nil
}

// Mode returns the policy, the effective mode and the auto-mode delays.
func (m *Manager) Mode() ModeInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ModeInfo{Policy: m.policy, Status: m.mode, Delays: m.delays}
}

// STAInfo returns the station link state.
func (m *Manager) STAInfo() STAInfo {
	info := STAInfo{MAC: m.radio.STAMAC()}
	link, err := m.radio.STALink()
	if err != nil {
		return info
	}
	info.Connected = true
	info.SSID = link.SSID
	info.BSSID = link.BSSID
	info.RSSI = link.RSSI
	info.Channel = link.Channel
	info.IP = m.radio.STAIPInfo()
	return info
}

// APInfo returns the access point configuration and state.
func (m *Manager) APInfo() APInfo {
	m.mu.Lock()
	cred, running := m.apCred, m.mode.AP()
	m.mu.Unlock()
	return APInfo{
		Running:  running,
		SSID:     cred.SSID,
		Password: cred.Password,
		Channel:  m.cfg.AP.Channel,
		MAC:      m.radio.APMAC(),
		IP:       m.radio.APIPInfo(),
	}
}

// LastCredential returns the last credential that connected.
func (m *Manager) LastCredential() (Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastGood == nil {
		return Credential{}, false
	}
	return *m.lastGood, true
}

// Snapshot summarises the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	s := Snapshot{
		Policy:        m.policy,
		Mode:          m.mode,
		Connected:     m.connected,
		SSID:          m.ssid,
		Failures:      m.failures,
		AutoReconnect: m.autoReconnect,
		Reconnecting:  m.reconnect != nil,
		Holder:        m.holder.String(),
	}
	m.mu.Unlock()
	if s.Connected {
		if link, err := m.radio.STALink(); err == nil {
			s.RSSI = link.RSSI
		}
	}
	return s
}

// APAutoDelay returns the auto-mode grace periods.
func (m *Manager) APAutoDelay() APDelays {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delays
}

// SetAPAutoDelay persists and applies new auto-mode grace periods. Armed
// timers keep their original deadline.
func (m *Manager) SetAPAutoDelay(ctx context.Context, d APDelays) error {
	if d.On < 0 || d.Off < 0 {
		return errors.New("wifi: AP delays must not be negative")
	}
	if err := m.store.SaveAPDelays(ctx, d); err != nil {
		return err
	}
	m.mu.Lock()
	m.delays = d
	m.mu.Unlock()
	return nil
}

// SetAPCredential persists the AP credential and applies it to the radio.
// The store is left untouched when validation fails.
func (m *Manager) SetAPCredential(ctx context.Context, c Credential) error {
	if len(c.SSID) == 0 || len(c.SSID) > 32 {
		return fmt.Errorf("%w: ssid length %d", ErrInvalidCredential, len(c.SSID))
	}
	if len(c.Password) < 8 {
		return ErrPasswordTooShort
	}
	if len(c.Password) > 64 {
		return fmt.Errorf("%w: password length %d", ErrInvalidCredential, len(c.Password))
	}
	if err := m.store.SaveAPCredential(ctx, c); err != nil {
		return err
	}

	m.mu.Lock()
	m.apCred = c
	m.mu.Unlock()

	if err := m.radio.SetAPConfig(m.apConfig(c)); err != nil {
		return fmt.Errorf("applying AP credential: %w", err)
	}
	m.logger.Info("AP credential updated", "ssid", c.SSID)
	return nil
}

// StaticConfig returns the station's static addressing.
func (m *Manager) StaticConfig() StaticConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.static
}

// SetStaticConfig persists and applies static station addressing. It
// takes effect on the next association.
func (m *Manager) SetStaticConfig(ctx context.Context, s StaticConfig) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := m.store.SaveStatic(ctx, s); err != nil {
		return err
	}
	m.mu.Lock()
	m.static = s
	m.mu.Unlock()
	if err := m.radio.SetSTAStaticIP(s.radio()); err != nil {
		return fmt.Errorf("applying static addressing: %w", err)
	}
	return nil
}

// pump translates radio events into state changes and wakes waiters.
func (m *Manager) pump(ctx context.Context) {
	defer m.wg.Done()
	events := m.radio.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handleEvent(ev)
		}
	}
}

func (m *Manager) handleEvent(ev radio.Event) {
	var notes []Notification
	recordLink := false

	m.mu.Lock()
	switch ev.Kind {
	case radio.EventSTAConnected:
		m.connected = true
		m.ssid = ev.SSID
		m.failures = 0
		m.cancelDelayedLocked(&m.apStart)
		if m.policy == PolicyAuto && m.mode.AP() {
			m.armLocked(&m.apStop, m.delays.Off, holderAPStop, m.runAPStop)
		}
		forward(m.connectWait, ev)
		notes = append(notes, Notification{Event: EventSTAConnected, SSID: ev.SSID})

	case radio.EventGotIP:
		forward(m.connectWait, ev)
		recordLink = true

	case radio.EventSTADisconnected:
		wasConnected := m.connected
		m.connected = false
		m.ssid = ""
		m.cancelDelayedLocked(&m.apStop)
		if m.policy == PolicyAuto {
			m.failures++
			if !m.mode.AP() {
				delay := m.delays.On
				if m.failures > m.cfg.FailureThreshold {
					delay = 0
				}
				if m.apStart == nil || delay == 0 {
					m.armLocked(&m.apStart, delay, holderAPStart, m.runAPStart)
				}
			}
		}
		// A link that associated and dropped before its address is a
		// failed attempt too; runAttempts sorts out stale events.
		forward(m.connectWait, ev)
		if wasConnected && m.autoReconnect && m.lastGood != nil && m.mode.STA() &&
			m.holder != holderConnect {
			m.startReconnectLocked(*m.lastGood, OriginReconnect)
		}
		if wasConnected {
			notes = append(notes, Notification{Event: EventSTADisconnected, SSID: ev.SSID, Reason: ev.Reason})
		}

	case radio.EventScanDone:
		forward(m.scanWait, ev)

	case radio.EventAPStarted:
		notes = append(notes, Notification{Event: EventAPStarted, SSID: ev.SSID})

	case radio.EventAPStopped:
		notes = append(notes, Notification{Event: EventAPStopped, SSID: ev.SSID})
	}
	m.mu.Unlock()

	m.logger.Debug("radio event", "kind", ev.Kind.String(), "ssid", ev.SSID, "reason", ev.Reason)

	if recordLink {
		if link, err := m.radio.STALink(); err == nil {
			m.metrics.RecordLink(link.SSID, link.RSSI)
		}
	}
	for _, n := range notes {
		m.notify(n)
	}
}

// forward hands ev to a waiter without blocking the pump.
func forward(ch chan radio.Event, ev radio.Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}
