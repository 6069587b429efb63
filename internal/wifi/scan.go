package wifi

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/wtap-core/internal/radio"
)

// MaxChannel is the highest 2.4 GHz channel scanned.
const MaxChannel = 13

// Scan lists visible networks, at most limit of them (ScanMaxResults when
// limit <= 0). Channels are scanned one at a time; a channel that does not
// complete within ScanChannelTimeout ends the scan early and the records
// gathered so far are returned. Networks weaker than ScanMinRSSI are
// dropped. Results are in discovery order.
func (m *Manager) Scan(ctx context.Context, limit int) ([]radio.AccessPoint, error) {
	if limit <= 0 || limit > m.cfg.ScanMaxResults {
		limit = m.cfg.ScanMaxResults
	}
	ctx, cancel, err := m.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if _, err := m.acquireExclusive(ctx, holderScan); err != nil {
		return nil, err
	}
	defer m.resumeReconnect()
	defer m.release()

	wait := make(chan radio.Event, 4)
	m.mu.Lock()
	prev := m.mode
	m.scanWait = wait
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		if m.scanWait == wait {
			m.scanWait = nil
		}
		m.mu.Unlock()
	}()

	if !prev.STA() {
		if err := m.setModeHeld(radio.ModeFor(prev.AP(), true)); err != nil {
			return nil, fmt.Errorf("enabling station for scan: %w", err)
		}
		defer func() {
			if err := m.setModeHeld(prev); err != nil {
				m.logger.Error("restoring mode after scan", "error", err)
			}
		}()
	}

	start := time.Now()
	found, partial, err := m.scanChannels(ctx, wait, limit)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	m.metrics.RecordScan(len(found), partial, elapsed)
	m.notify(Notification{Event: EventScanDone, Found: intPtr(len(found)), Partial: partial})
	m.logger.Debug("scan finished", "found", len(found), "partial", partial, "elapsed", elapsed)
	return found, nil
}

func (m *Manager) scanChannels(ctx context.Context, wait <-chan radio.Event, limit int) ([]radio.AccessPoint, bool, error) {
	found := make([]radio.AccessPoint, 0, limit)
	for ch := 1; ch <= MaxChannel; ch++ {
		remaining := limit - len(found)
		if remaining <= 0 {
			break
		}
		if err := m.radio.StartScan(radio.ScanParams{Channel: ch, Max: remaining, Active: true}); err != nil {
			m.logger.Warn("scan start failed, returning partial results", "channel", ch, "error", err)
			return found, true, nil
		}

		done, err := m.awaitScan(ctx, wait, ch)
		if err != nil {
			return nil, false, err
		}
		if !done {
			m.logger.Warn("scan channel timed out, returning partial results",
				"channel", ch,
				"found", len(found),
			)
			return found, true, nil
		}

		aps, err := m.radio.ScanResults(remaining)
		if err != nil {
			m.logger.Warn("reading scan results", "channel", ch, "error", err)
			continue
		}
		for _, ap := range aps {
			if ap.RSSI < m.cfg.ScanMinRSSI {
				continue
			}
			found = append(found, ap)
		}
	}
	return found, false, nil
}

// awaitScan waits for the completion of channel ch. It returns false on
// timeout.
func (m *Manager) awaitScan(ctx context.Context, wait <-chan radio.Event, ch int) (bool, error) {
	t := time.NewTimer(m.cfg.ScanChannelTimeout)
	defer t.Stop()
	for {
		select {
		case ev := <-wait:
			if ev.Channel == ch {
				return true, nil
			}
		case <-t.C:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// setModeHeld applies mode to the radio with the flight token held.
func (m *Manager) setModeHeld(mode radio.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.radio.SetMode(mode); err != nil {
		return err
	}
	m.mode = mode
	return nil
}
