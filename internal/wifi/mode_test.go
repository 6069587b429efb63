package wifi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/wtap-core/internal/radio"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in          int
		policy      Policy
		directive   Directive
		isDirective bool
		wantErr     bool
	}{
		{in: 0, policy: PolicyAuto},
		{in: 4, policy: PolicyAllOff},
		{in: 5, policy: PolicySTAOnly},
		{in: 6, policy: PolicyAPOnly},
		{in: 7, policy: PolicyBoth},
		{in: 8, directive: DirectiveAPStop, isDirective: true},
		{in: 11, directive: DirectiveSTAStart, isDirective: true},
		{in: 1, wantErr: true},
		{in: 3, wantErr: true},
		{in: 12, wantErr: true},
		{in: -1, wantErr: true},
	}
	for _, tt := range tests {
		p, d, isDir, err := ParseMode(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidMode) {
				t.Errorf("ParseMode(%d) error = %v, want ErrInvalidMode", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMode(%d) error = %v", tt.in, err)
			continue
		}
		if isDir != tt.isDirective || p != tt.policy || d != tt.directive {
			t.Errorf("ParseMode(%d) = %v, %v, %v", tt.in, p, d, isDir)
		}
	}
}

func TestPolicy_Mode(t *testing.T) {
	tests := []struct {
		p         Policy
		connected bool
		want      radio.Mode
	}{
		{PolicyAuto, false, radio.ModeAPSTA},
		{PolicyAuto, true, radio.ModeSTA},
		{PolicyAllOff, true, radio.ModeOff},
		{PolicySTAOnly, false, radio.ModeSTA},
		{PolicyAPOnly, true, radio.ModeAP},
		{PolicyBoth, true, radio.ModeAPSTA},
	}
	for _, tt := range tests {
		if got := tt.p.Mode(tt.connected); got != tt.want {
			t.Errorf("%v.Mode(%v) = %v, want %v", tt.p, tt.connected, got, tt.want)
		}
	}
}

func TestChangeMode_PersistsPolicy(t *testing.T) {
	h := newHarness(t, nil, nil)

	if err := h.mgr.ChangeMode(context.Background(), PolicySTAOnly); err != nil {
		t.Fatalf("ChangeMode() error = %v", err)
	}
	if got := h.radio.Mode(); got != radio.ModeSTA {
		t.Errorf("radio mode = %v, want sta", got)
	}
	stored, err := h.storage.LoadPolicy(context.Background())
	if err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}
	if stored != PolicySTAOnly {
		t.Errorf("stored policy = %v, want sta", stored)
	}
	if h.notes.count(EventModeChanged) != 1 {
		t.Errorf("mode_changed notifications = %d, want 1", h.notes.count(EventModeChanged))
	}
}

func TestChangeMode_SameIsNoop(t *testing.T) {
	h := newHarness(t, nil, nil)

	if err := h.mgr.ChangeMode(context.Background(), PolicyAuto); err != nil {
		t.Fatalf("ChangeMode() error = %v", err)
	}
	if h.notes.count(EventModeChanged) != 0 {
		t.Error("no-op change emitted a notification")
	}
	if _, err := h.storage.LoadPolicy(context.Background()); err == nil {
		t.Error("no-op change persisted a policy")
	}
}

func TestChangeMode_RadioFailure(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.radio.FailSetMode(errors.New("chip asleep"))

	err := h.mgr.ChangeMode(context.Background(), PolicyBoth)
	if !errors.Is(err, ErrModeChange) {
		t.Fatalf("ChangeMode() error = %v, want ErrModeChange", err)
	}
	if got := h.mgr.Mode().Policy; got != PolicyAuto {
		t.Errorf("Policy = %v, want auto unchanged", got)
	}
}

func TestApplyDirective_NotPersisted(t *testing.T) {
	h := newHarness(t, nil, nil)
	if err := h.mgr.ChangeMode(context.Background(), PolicyBoth); err != nil {
		t.Fatalf("ChangeMode() error = %v", err)
	}

	if err := h.mgr.ApplyDirective(context.Background(), DirectiveAPStop); err != nil {
		t.Fatalf("ApplyDirective() error = %v", err)
	}
	info := h.mgr.Mode()
	if info.Status != radio.ModeSTA {
		t.Errorf("Status = %v, want sta", info.Status)
	}
	if info.Policy != PolicyBoth {
		t.Errorf("Policy = %v, want ap+sta unchanged", info.Policy)
	}
	stored, _ := h.storage.LoadPolicy(context.Background())
	if stored != PolicyBoth {
		t.Errorf("stored policy = %v, want ap+sta", stored)
	}

	if err := h.mgr.ApplyDirective(context.Background(), DirectiveSTAStop); err != nil {
		t.Fatalf("ApplyDirective() error = %v", err)
	}
	if got := h.radio.Mode(); got != radio.ModeOff {
		t.Errorf("radio mode = %v, want off", got)
	}
}

func TestChangeMode_CancelsPendingAPStop(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.APOffDelay = 100 * time.Millisecond }, nil)
	if err := h.mgr.Connect(context.Background(), Credential{SSID: "TestSSID", Password: "longpassword"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := h.mgr.ChangeMode(context.Background(), PolicyBoth); err != nil {
		t.Fatalf("ChangeMode() error = %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if h.notes.count(EventAPStopped) != 0 || !h.mgr.Mode().Status.AP() {
		t.Error("AP stopped after switching to ap+sta")
	}
}
