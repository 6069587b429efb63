package wifi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/wtap-core/internal/radio"
)

// Connect associates the station with cred. It preempts a background
// reconnect, makes up to ExplicitAttempts attempts and waits at most
// ConnectTimeout overall. On success cred becomes the last known good
// credential. On failure the last known good credential, if any, is
// retried in the background.
func (m *Manager) Connect(ctx context.Context, cred Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}
	ctx, cancel, err := m.bind(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	m.mu.Lock()
	staOn := m.mode.STA()
	m.mu.Unlock()
	if !staOn {
		return ErrSTADisabled
	}

	if _, err := m.acquireExclusive(ctx, holderConnect); err != nil {
		return err
	}
	defer m.release()

	m.logger.Info("connecting station", "ssid", cred.SSID)
	_, err = m.connectAttempts(ctx, cred, OriginExplicit, m.cfg.ExplicitAttempts)
	if err == nil {
		c := cred
		m.mu.Lock()
		m.lastGood = &c
		m.autoReconnect = true
		m.mu.Unlock()
		if perr := m.store.SaveLastCredential(context.WithoutCancel(ctx), cred); perr != nil {
			m.logger.Error("saving last known good credential", "ssid", cred.SSID, "error", perr)
		}
		return nil
	}

	m.logger.Warn("station connect failed", "ssid", cred.SSID, "error", err)
	m.mu.Lock()
	if m.lastGood != nil && !m.connected && m.mode.STA() {
		m.autoReconnect = true
		m.logger.Info("falling back to last known good network", "ssid", m.lastGood.SSID)
		m.startReconnectLocked(*m.lastGood, OriginReconnect)
	}
	m.mu.Unlock()
	return err
}

// Disconnect drops the station link and disables automatic reconnection.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.autoReconnect = false
	m.mu.Unlock()

	m.stopReconnect()
	if err := m.radio.Disconnect(); err != nil {
		return fmt.Errorf("disconnecting station: %w", err)
	}
	m.logger.Info("station disconnected by request")
	return nil
}

// connectAttempts drives up to budget association attempts with cred,
// bounded by ConnectTimeout overall. The flight token must be held.
func (m *Manager) connectAttempts(ctx context.Context, cred Credential, origin Origin, budget int) (int, error) {
	start := time.Now()
	attempts := 0
	err := m.runAttempts(ctx, cred, budget, &attempts)
	m.recordConnect(ctx, cred.SSID, origin, attempts, time.Since(start), err)
	return attempts, err
}

func (m *Manager) runAttempts(ctx context.Context, cred Credential, budget int, attempts *int) error {
	if err := m.radio.SetSTAConfig(radio.STAConfig{SSID: cred.SSID, Password: cred.Password}); err != nil {
		return fmt.Errorf("configuring station: %w", err)
	}

	wait := make(chan radio.Event, 8)
	m.mu.Lock()
	m.connectWait = wait
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		if m.connectWait == wait {
			m.connectWait = nil
		}
		m.mu.Unlock()
	}()

	deadline := time.NewTimer(m.cfg.ConnectTimeout)
	defer deadline.Stop()

	err := ErrConnectFailed
	for *attempts < budget {
		*attempts++
		if cerr := m.radio.Connect(); cerr != nil {
			return fmt.Errorf("%w: %w", ErrConnectFailed, cerr)
		}
		associated := false

	outcome:
		for {
			select {
			case ev := <-wait:
				if ev.SSID != "" && ev.SSID != cred.SSID {
					// Left over from an aborted attempt on another network.
					continue
				}
				switch ev.Kind {
				case radio.EventSTAConnected:
					associated = true
				case radio.EventGotIP:
					return nil
				case radio.EventSTADisconnected:
					if !associated && ev.Reason == radio.ReasonAssocLeave {
						// Teardown of the link this attempt replaced.
						continue
					}
					m.logger.Debug("connect attempt failed",
						"ssid", cred.SSID,
						"attempt", *attempts,
						"reason", ev.Reason,
					)
					err = fmt.Errorf("%w: reason %d", ErrConnectFailed, ev.Reason)
					break outcome
				}
			case <-deadline.C:
				_ = m.radio.Disconnect() //nolint:errcheck // best effort abort
				return ErrConnectTimeout
			case <-ctx.Done():
				_ = m.radio.Disconnect() //nolint:errcheck // best effort abort
				return ctx.Err()
			}
		}
	}
	return err
}

func (m *Manager) recordConnect(ctx context.Context, ssid string, origin Origin, attempts int, elapsed time.Duration, err error) {
	m.metrics.RecordConnect(ssid, origin, err == nil, attempts, elapsed)
	if m.history == nil {
		return
	}
	rec := ConnectRecord{SSID: ssid, Origin: origin, Success: err == nil, Attempts: attempts}
	if err != nil {
		rec.Error = err.Error()
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if herr := m.history.Record(hctx, rec); herr != nil {
		m.logger.Warn("recording connect history", "error", herr)
	}
}

// startReconnectLocked launches the background reconnect loop unless one
// runs. m.mu must be held.
func (m *Manager) startReconnectLocked(cred Credential, origin Origin) {
	if m.reconnect != nil || !m.running {
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	lp := &loop{cancel: cancel, done: make(chan struct{})}
	m.reconnect = lp

	m.wg.Add(1)
	go m.reconnectLoop(ctx, lp, cred, origin)
}

// stopReconnect cancels the background loop and waits up to
// PreemptTimeout for it to exit. It reports whether a loop was running.
func (m *Manager) stopReconnect() bool {
	m.mu.Lock()
	lp := m.reconnect
	m.reconnect = nil
	m.mu.Unlock()
	if lp == nil {
		return false
	}

	lp.cancel()
	select {
	case <-lp.done:
	case <-time.After(m.cfg.PreemptTimeout):
		m.logger.Warn("reconnect loop did not stop in time")
	}
	return true
}

// resumeReconnect restarts the background loop after a preempting
// operation when the station still needs it.
func (m *Manager) resumeReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.autoReconnect && !m.connected && m.lastGood != nil && m.mode.STA() {
		m.startReconnectLocked(*m.lastGood, OriginReconnect)
	}
}

// reconnectLoop retries cred until connected or cancelled. A boot loop
// starts with one burst of BootAttempts; later rounds make one attempt
// each, ReconnectDelay apart. The token is held per round only, so the AP
// grace timers can run between rounds.
func (m *Manager) reconnectLoop(ctx context.Context, lp *loop, cred Credential, origin Origin) {
	defer m.wg.Done()
	defer close(lp.done)
	defer func() {
		m.mu.Lock()
		if m.reconnect == lp {
			m.reconnect = nil
		}
		m.mu.Unlock()
	}()

	budget := 1
	if origin == OriginBoot {
		budget = m.cfg.BootAttempts
	}

	for round := 1; ; round++ {
		if err := m.acquire(ctx, holderReconnect); err != nil {
			return
		}
		done, err := m.reconnectRound(ctx, cred, origin, budget)
		if done {
			return
		}

		m.logger.Info("reconnect failed, retrying",
			"ssid", cred.SSID,
			"round", round,
			"delay", m.cfg.ReconnectDelay,
			"error", err,
		)
		origin, budget = OriginReconnect, 1

		t := time.NewTimer(m.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// reconnectRound runs one round with the token held and always releases
// it. done reports that the loop should exit.
func (m *Manager) reconnectRound(ctx context.Context, cred Credential, origin Origin, budget int) (done bool, err error) {
	defer m.release()

	m.mu.Lock()
	skip := m.connected || !m.autoReconnect || !m.mode.STA()
	m.mu.Unlock()
	if skip {
		return true, nil
	}

	_, err = m.connectAttempts(ctx, cred, origin, budget)
	if err == nil {
		m.logger.Info("station reconnected", "ssid", cred.SSID)
		return true, nil
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return true, err
	}
	return false, err
}
