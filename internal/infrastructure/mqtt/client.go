package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/wtap-core/internal/infrastructure/config"
)

var (
	// ErrNotConnected is returned for broker operations while the link is down.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the initial connect fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when the broker did not accept a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe or unsubscribe failed.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned for QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for empty topics.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)

// Logger is the logging surface the client needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one message. Paho delivers messages one at a
// time, so a handler must not block on a publish of its own.
// A returned error is logged only.
type MessageHandler func(topic string, payload []byte) error

// StateHandler is told about every link transition. err is the reason
// the link dropped and nil on connect.
type StateHandler func(connected bool, err error)

// route is a live subscription, replayed after every reconnect.
type route struct {
	qos     byte
	handler MessageHandler
}

// Client is the adapter's broker session. It owns the retained status
// topic and the will message, and keeps subscriptions alive across
// reconnects.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics
	id     string

	online atomic.Bool

	routesMu sync.Mutex
	routes   map[string]route

	hooksMu sync.RWMutex
	logger  Logger
	onState StateHandler
}

// Connect dials the broker for the adapter deviceID and waits for the
// first CONNACK. The will message and the retained "online" status both
// live on the device status topic.
func Connect(cfg config.MQTTConfig, deviceID string) (*Client, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", ErrConnectionFailed)
	}

	c := &Client{
		cfg:    cfg,
		topics: Topics{Device: deviceID},
		id:     clientID(cfg, deviceID),
		routes: make(map[string]route),
	}

	opts := buildClientOptions(cfg, deviceID)
	configureLWT(opts, c.topics, c.id)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.linkUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.linkDown(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if l := c.log(); l != nil {
			l.Warn("MQTT reconnecting", "broker", cfg.Broker.Host)
		}
	})

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The on-connect handler runs asynchronously and may not have fired yet.
	c.online.Store(true)
	return c, nil
}

// linkUp replays subscriptions and republishes the online status.
func (c *Client) linkUp() {
	c.online.Store(true)

	c.routesMu.Lock()
	for topic, r := range c.routes {
		c.paho.Subscribe(topic, r.qos, c.deliver(r.handler))
	}
	c.routesMu.Unlock()

	c.paho.Publish(c.topics.Status(), c.QoS(), true, buildStatusPayload(statusOnline, c.id, ""))
	c.emit(true, nil)
}

func (c *Client) linkDown(err error) {
	c.online.Store(false)
	c.emit(false, err)
}

func (c *Client) emit(connected bool, err error) {
	c.hooksMu.RLock()
	fn := c.onState
	c.hooksMu.RUnlock()
	if fn != nil {
		fn(connected, err)
	}
}

// Topics returns the adapter's topic tree.
func (c *Client) Topics() Topics { return c.topics }

// QoS returns the configured default QoS.
func (c *Client) QoS() byte { return byte(c.cfg.QoS) }

// IsConnected reports whether the broker link is up.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.online.Load() && c.paho.IsConnected()
}

// HealthCheck returns ErrNotConnected while the link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close publishes a retained "offline" status, which a subscriber can
// tell apart from the will message by its reason, and disconnects.
// Closing a client that never connected is a no-op.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		token := c.paho.Publish(c.topics.Status(), c.QoS(), true,
			buildStatusPayload(statusOffline, c.id, reasonShutdown))
		token.WaitTimeout(defaultPublishTimeout)
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.online.Store(false)
	return nil
}

// SetStateHandler installs fn as the link transition callback.
func (c *Client) SetStateHandler(fn StateHandler) {
	c.hooksMu.Lock()
	c.onState = fn
	c.hooksMu.Unlock()
}

// SetLogger sets the logger for reconnects and handler failures.
// A nil logger silences them.
func (c *Client) SetLogger(logger Logger) {
	c.hooksMu.Lock()
	c.logger = logger
	c.hooksMu.Unlock()
}

func (c *Client) log() Logger {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.logger
}
