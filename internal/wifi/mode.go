package wifi

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/wtap-core/internal/radio"
)

// ChangeMode switches the permanent policy. It is a no-op when p is
// already active. Pending AP grace timers are cancelled, the effective
// mode is recomputed from p and the link state, and p is persisted.
func (m *Manager) ChangeMode(ctx context.Context, p Policy) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, p)
	}
	m.mu.Lock()
	same := m.policy == p
	m.mu.Unlock()
	if same {
		return nil
	}

	ctx, cancel, err := m.bind(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := m.acquireExclusive(ctx, holderMode); err != nil {
		return err
	}
	defer m.resumeReconnect()
	defer m.release()

	m.mu.Lock()
	if m.policy == p {
		m.mu.Unlock()
		return nil
	}
	m.cancelDelayedLocked(&m.apStop)
	m.cancelDelayedLocked(&m.apStart)
	next := p.Mode(m.connected)
	if err := m.radio.SetMode(next); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrModeChange, err)
	}
	prev := m.policy
	m.policy, m.mode = p, next
	m.failures = 0
	m.mu.Unlock()

	m.logger.Info("wifi mode changed", "from", prev, "to", p, "status", next)
	m.notify(Notification{Event: EventModeChanged, Mode: intPtr(int(p)), Status: intPtr(int(next))})

	if err := m.store.SavePolicy(context.WithoutCancel(ctx), p); err != nil {
		return err
	}
	return nil
}

// ApplyDirective switches one interface on or off for the current run.
// The permanent policy is unchanged and nothing is persisted.
func (m *Manager) ApplyDirective(ctx context.Context, d Directive) error {
	if d < DirectiveAPStop || d > DirectiveSTAStart {
		return fmt.Errorf("%w: %d", ErrInvalidMode, d)
	}
	ctx, cancel, err := m.bind(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := m.acquireExclusive(ctx, holderMode); err != nil {
		return err
	}
	defer m.resumeReconnect()
	defer m.release()

	m.mu.Lock()
	m.cancelDelayedLocked(&m.apStop)
	m.cancelDelayedLocked(&m.apStart)
	next := d.Apply(m.mode)
	if next == m.mode {
		m.mu.Unlock()
		return nil
	}
	if err := m.radio.SetMode(next); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrModeChange, err)
	}
	m.mode = next
	policy := m.policy
	m.mu.Unlock()

	m.logger.Info("wifi directive applied", "directive", d, "status", next)
	m.notify(Notification{Event: EventModeChanged, Mode: intPtr(int(policy)), Status: intPtr(int(next))})
	return nil
}

// armLocked replaces the timer in slot with one that runs action after
// delay while holding the flight token. m.mu must be held.
func (m *Manager) armLocked(slot **delayed, delay time.Duration, h holder, action func(*delayed)) {
	m.cancelDelayedLocked(slot)
	if !m.running {
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	d := &delayed{cancel: cancel}
	*slot = d

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		if err := m.acquire(ctx, h); err != nil {
			return
		}
		defer m.release()
		action(d)
	}()
}

// cancelDelayedLocked disarms the timer in slot. A worker already past
// its delay sees the slot changed and does nothing. m.mu must be held.
func (m *Manager) cancelDelayedLocked(slot **delayed) {
	if *slot != nil {
		(*slot).cancel()
		*slot = nil
	}
}

// runAPStop turns the AP off if the station is still connected under the
// auto policy.
func (m *Manager) runAPStop(d *delayed) {
	m.mu.Lock()
	if m.apStop != d {
		m.mu.Unlock()
		return
	}
	m.apStop = nil
	if m.policy != PolicyAuto || !m.connected || !m.mode.AP() {
		m.mu.Unlock()
		return
	}
	next := radio.ModeFor(false, m.mode.STA())
	err := m.radio.SetMode(next)
	if err == nil {
		m.mode = next
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("stopping access point", "error", err)
		return
	}
	m.logger.Info("access point stopped, station connected")
}

// runAPStart turns the AP on if the station is still disconnected under
// the auto policy.
func (m *Manager) runAPStart(d *delayed) {
	m.mu.Lock()
	if m.apStart != d {
		m.mu.Unlock()
		return
	}
	m.apStart = nil
	if m.policy != PolicyAuto || m.connected || m.mode.AP() {
		m.mu.Unlock()
		return
	}
	next := radio.ModeFor(true, m.mode.STA())
	err := m.radio.SetMode(next)
	if err == nil {
		m.mode = next
	}
	failures := m.failures
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("starting access point", "error", err)
		return
	}
	m.logger.Info("access point started, station disconnected", "failures", failures)
}
