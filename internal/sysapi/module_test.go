package sysapi

import (
	"bytes"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/wtap-core/internal/dispatch"
)

func handle(t *testing.T, m *Module, cmd uint16) (dispatch.Status, map[string]any) {
	t.Helper()
	req, err := dispatch.ParseRequest([]byte(`{}`))
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	req.Module, req.Cmd = ModuleID, cmd

	status := m.HandleCommand(cmd, req, &dispatch.Async{})
	if status != dispatch.StatusOK {
		return status, nil
	}
	var buf bytes.Buffer
	if err := dispatch.EncodeReply(&buf, req); err != nil {
		t.Fatalf("EncodeReply() error = %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", buf.String(), err)
	}
	return status, out
}

func TestGetFMInfo(t *testing.T) {
	m := New(BuildInfo{Version: "1.2.0", Commit: "abc123", Date: "2026-10-01"}, "bench-01",
		func() []uint8 { return []uint8{0, 1} }, nil)
	m.SetHostname("wtap-bench")

	status, out := handle(t, m, CmdGetFMInfo)
	if status != dispatch.StatusOK {
		t.Fatalf("status = %v, want OK", status)
	}
	checks := map[string]any{
		"version":    "1.2.0",
		"commit":     "abc123",
		"build_date": "2026-10-01",
		"device_id":  "bench-01",
		"hostname":   "wtap-bench",
		"module":     float64(ModuleID),
		"cmd":        float64(CmdGetFMInfo),
	}
	for k, want := range checks {
		if out[k] != want {
			t.Errorf("%s = %v, want %v", k, out[k], want)
		}
	}
	mods, ok := out["modules"].([]any)
	if !ok || len(mods) != 2 {
		t.Errorf("modules = %v, want [0 1]", out["modules"])
	}
}

func TestReboot_SchedulesRestartOnce(t *testing.T) {
	var calls atomic.Int32
	m := New(BuildInfo{}, "bench-01", nil, func() { calls.Add(1) })
	m.SetRebootDelay(10 * time.Millisecond)

	for range 3 {
		if status, _ := handle(t, m, CmdReboot); status != dispatch.StatusOK {
			t.Fatalf("REBOOT status = %v, want OK", status)
		}
	}
	if !m.RestartPending() {
		t.Error("RestartPending() = false after REBOOT")
	}

	deadline := time.Now().Add(time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(30 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("restart calls = %d, want 1", got)
	}
}

func TestUnsupportedCommand(t *testing.T) {
	m := New(BuildInfo{}, "bench-01", nil, nil)
	if status, _ := handle(t, m, 7); status != dispatch.StatusUnsupportedCommand {
		t.Errorf("status = %v, want UnsupportedCommand", status)
	}
}
