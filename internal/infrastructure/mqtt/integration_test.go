//go:build integration

package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func connectT(t *testing.T, device string) *Client {
	t.Helper()
	client, err := Connect(testConfig(), device)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIntegration_ConnectAndHealth(t *testing.T) {
	client := connectT(t, "wtap-int-health")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19998

	_, err := Connect(cfg, "wtap-int-refused")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_CloseDisconnects(t *testing.T) {
	client, err := Connect(testConfig(), "wtap-int-close")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestIntegration_CommandRoundtrip(t *testing.T) {
	adapter := connectT(t, "wtap-int-rt")
	peer := connectT(t, "wtap-int-rt-peer")

	received := make(chan string, 1)
	var once sync.Once
	err := adapter.Subscribe(adapter.Topics().Command(), 1, func(_ string, p []byte) error {
		once.Do(func() { received <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if routes := adapter.Routes(); len(routes) != 1 || routes[0] != adapter.Topics().Command() {
		t.Errorf("Routes() = %v, want the command topic", routes)
	}

	time.Sleep(100 * time.Millisecond)

	want := `{"module":0,"cmd":1}`
	if err := peer.Publish(adapter.Topics().Command(), []byte(want), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != want {
			t.Errorf("received = %q, want %q", msg, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for command")
	}

	if err := adapter.Unsubscribe(adapter.Topics().Command()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if routes := adapter.Routes(); len(routes) != 0 {
		t.Errorf("Routes() = %v, want none", routes)
	}
}

func TestIntegration_RetainedOnlineStatus(t *testing.T) {
	adapter := connectT(t, "wtap-int-status")
	_ = adapter
	time.Sleep(200 * time.Millisecond)

	watcher := connectT(t, "wtap-int-status-watch")
	status := make(chan string, 1)
	var once sync.Once
	err := watcher.Subscribe(Topics{Device: "wtap-int-status"}.Status(), 1, func(_ string, p []byte) error {
		once.Do(func() { status <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case msg := <-status:
		if !strings.Contains(msg, `"status":"online"`) {
			t.Errorf("status = %s, want online", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no retained status")
	}
}
