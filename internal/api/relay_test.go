package api

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/wtap-core/internal/infrastructure/mqtt"
)

type published struct {
	topic   string
	payload string
}

type fakeBroker struct {
	mu       sync.Mutex
	handlers map[string]mqtt.MessageHandler
	sent     chan published
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler), sent: make(chan published, 16)}
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, _ bool) error {
	b.sent <- published{topic: topic, payload: string(payload)}
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	b.mu.Lock()
	b.handlers[topic] = h
	b.mu.Unlock()
	return nil
}

func (b *fakeBroker) Topics() mqtt.Topics { return mqtt.Topics{Device: "wtap-01"} }
func (b *fakeBroker) QoS() byte           { return 1 }

func (b *fakeBroker) deliver(t *testing.T, topic, payload string) {
	t.Helper()
	b.mu.Lock()
	h := b.handlers[topic]
	b.mu.Unlock()
	if h == nil {
		t.Fatalf("no subscription on %s", topic)
	}
	_ = h(topic, []byte(payload)) //nolint:errcheck // error only logged by the client
}

func (b *fakeBroker) next(t *testing.T) published {
	t.Helper()
	select {
	case p := <-b.sent:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
		return published{}
	}
}

func TestRelay_Commands(t *testing.T) {
	srv := testServer(t, serverOpts{})
	broker := newFakeBroker()
	relay := NewRelay(broker, srv.pipeline, srv.logger)
	if err := relay.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer relay.Stop()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"sync", `{"module":1,"cmd":1,"name":"mqtt"}`, `"hello":"mqtt"`},
		{"deferred", `{"module":1,"cmd":2}`, `"deferred":true`},
		{"parse error", `not json`, `{"error":"JSON parse error","code":3}`},
		{"oversized", `{"name":"` + strings.Repeat("x", 300) + `"}`, `{"error":"Bad json request","code":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker.deliver(t, "wtap/wtap-01/command", tt.body)
			got := broker.next(t)
			if got.topic != "wtap/wtap-01/response" {
				t.Errorf("topic = %q", got.topic)
			}
			if !strings.Contains(got.payload, tt.want) {
				t.Errorf("payload = %s, want it to contain %s", got.payload, tt.want)
			}
		})
	}
}

func TestRelay_Notify(t *testing.T) {
	srv := testServer(t, serverOpts{})
	broker := newFakeBroker()
	relay := NewRelay(broker, srv.pipeline, srv.logger)
	if err := relay.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	buf := []byte(`{"event":"ap_started"}`)
	relay.Notify("ap_started", buf)
	copy(buf, "XXXXXXXX")

	got := broker.next(t)
	if got.topic != "wtap/wtap-01/event/ap_started" || got.payload != `{"event":"ap_started"}` {
		t.Errorf("published = %+v", got)
	}

	relay.Stop()
	relay.Stop()
	relay.Notify("ap_stopped", []byte(`{}`))
	select {
	case p := <-broker.sent:
		t.Errorf("published after Stop: %+v", p)
	default:
	}
}
