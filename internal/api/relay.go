package api

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/wtap-core/internal/dispatch"
	"github.com/nerrad567/wtap-core/internal/infrastructure/logging"
	"github.com/nerrad567/wtap-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/wtap-core/internal/pipeline"
)

// relayQueueSize bounds the outbound MQTT messages waiting for the broker.
const relayQueueSize = 32

// Broker is the MQTT surface the relay needs. *mqtt.Client implements it.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Topics() mqtt.Topics
	QoS() byte
}

type outbound struct {
	topic   string
	payload []byte
}

// Relay bridges MQTT to the command pipeline: envelopes on the command
// topic are handled like POST /api bodies and their replies published on
// the response topic. It also implements wifi.Notifier, publishing each
// notification on its event topic.
//
// Paho runs message handlers one at a time, so nothing here publishes
// from inside a handler; every message goes through the outbound queue
// and one publisher goroutine.
//
// Thread Safety: Notify is safe for concurrent use.
type Relay struct {
	broker   Broker
	pipeline *pipeline.Pipeline
	logger   *logging.Logger
	topics   mqtt.Topics

	out chan outbound

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewRelay creates a Relay. Call Start to subscribe.
func NewRelay(broker Broker, p *pipeline.Pipeline, logger *logging.Logger) *Relay {
	return &Relay{
		broker:   broker,
		pipeline: p,
		logger:   logger,
		topics:   broker.Topics(),
		out:      make(chan outbound, relayQueueSize),
	}
}

// Start launches the publisher and subscribes to the command topic.
// The publisher runs until Stop.
func (r *Relay) Start(ctx context.Context) error {
	r.wg.Add(1)
	go r.publisher()

	err := r.broker.Subscribe(r.topics.Command(), r.broker.QoS(), func(_ string, payload []byte) error {
		return r.handleCommand(ctx, payload)
	})
	if err != nil {
		r.Stop()
		return err
	}
	r.logger.Info("mqtt command relay started", "topic", r.topics.Command())
	return nil
}

// Stop closes the outbound queue and waits for the publisher to drain it.
func (r *Relay) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.out)
	r.mu.Unlock()
	r.wg.Wait()
}

// Notify implements wifi.Notifier.
func (r *Relay) Notify(event string, payload []byte) {
	r.enqueue(r.topics.Event(event), payload)
}

func (r *Relay) handleCommand(ctx context.Context, payload []byte) error {
	err := r.pipeline.Handle(ctx, payload, func(_ dispatch.Status, reply []byte) {
		r.enqueue(r.topics.Response(), reply)
	})
	if errors.Is(err, pipeline.ErrFrameTooLarge) {
		r.enqueue(r.topics.Response(), dispatch.StatusBadRequest.Frame())
		return err
	}
	return err
}

// enqueue copies payload and queues it, dropping it when the queue is
// full.
func (r *Relay) enqueue(topic string, payload []byte) {
	msg := outbound{topic: topic, payload: bytes.Clone(payload)}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return
	}
	select {
	case r.out <- msg:
	default:
		r.logger.Warn("mqtt outbound queue full, dropping message", "topic", topic)
	}
}

func (r *Relay) publisher() {
	defer r.wg.Done()
	for msg := range r.out {
		if err := r.broker.Publish(msg.topic, msg.payload, r.broker.QoS(), false); err != nil {
			r.logger.Warn("mqtt publish failed", "topic", msg.topic, "error", err)
		}
	}
}
