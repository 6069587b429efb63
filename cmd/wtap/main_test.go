package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/wtap-core/internal/api"
	"github.com/nerrad567/wtap-core/internal/infrastructure/config"
	"github.com/nerrad567/wtap-core/internal/infrastructure/logging"
)

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// writeConfig writes a minimal config with MQTT and InfluxDB off and
// points WTAP_CONFIG at it.
func writeConfig(t *testing.T, dbPath string, port int) {
	t.Helper()
	content := fmt.Sprintf(`
device:
  id: wtap-test
  hostname: wtap-test

database:
  path: %q
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stderr

api:
  host: "127.0.0.1"
  port: %d

radio:
  driver: sim
  sim:
    connect_latency: 10ms
    scan_latency: 5ms
    networks:
      - ssid: lab
        password: labpassword
        channel: 6
        rssi: -40
`, dbPath, port)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("WTAP_CONFIG", path)
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("WTAP_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_UnwritableDatabase(t *testing.T) {
	writeConfig(t, "/proc/wtap/test.db", freePort(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail when the database cannot be created")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("WTAP_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("WTAP_CONFIG", "/custom/path/config.yaml")
	if got := getConfigPath(); got != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}

func TestNewRadio_UnknownDriver(t *testing.T) {
	if _, err := newRadio(config.RadioConfig{Driver: "esp-idf"}); err == nil {
		t.Error("newRadio() should reject unknown drivers")
	}
}

// waitForServer polls url until it answers or the deadline passes.
func waitForServer(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url) //nolint:gosec,noctx // test against local server
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server at %s never came up", url)
}

func TestRun_StartupAndShutdown(t *testing.T) {
	port := freePort(t)
	writeConfig(t, filepath.Join(t.TempDir(), "wtap.db"), port)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForServer(t, base+"/api/v1/health")

	resp, err := http.Post(base+"/api", "application/json", //nolint:gosec,noctx // test against local server
		strings.NewReader(`{"module":1,"cmd":6}`))
	if err != nil {
		t.Fatalf("POST /api error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET_MODE status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error = %v, want nil on shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestRun_RebootRequestsRestart(t *testing.T) {
	port := freePort(t)
	writeConfig(t, filepath.Join(t.TempDir(), "wtap.db"), port)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForServer(t, base+"/api/v1/health")

	resp, err := http.Post(base+"/api", "application/json", //nolint:gosec,noctx // test against local server
		strings.NewReader(`{"module":0,"cmd":2}`))
	if err != nil {
		t.Fatalf("POST /api error = %v", err)
	}
	resp.Body.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, errRestart) {
			t.Errorf("run() error = %v, want errRestart", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after REBOOT")
	}
}

func TestFanout(t *testing.T) {
	hub := api.NewHub(config.WebSocketConfig{}, logging.Default())
	if got := fanout(hub, nil); got != hub {
		t.Error("fanout without relay should return the hub itself")
	}
}
