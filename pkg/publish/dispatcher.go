// Package publish implements the publisher-listener abstraction of spec.md
// section 4.4: a Node exposes typed content-getters and a notify() call,
// and the Hub owns exactly how that content reaches the broker (topic,
// QoS, retain). Nodes never format a topic string or touch a broker.Client.
package publish

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gridwatt/hubctl/pkg/broker"
	"github.com/gridwatt/hubctl/pkg/log"
)

// MessageType names which of a node's (or the hub's) three content-getters
// a notification refers to.
type MessageType uint8

const (
	Info MessageType = iota
	Status
	Telemetry
)

func (m MessageType) String() string {
	switch m {
	case Info:
		return "info"
	case Status:
		return "status"
	case Telemetry:
		return "telemetry"
	default:
		return "unknown"
	}
}

// ContentGetter returns the current typed record for one message type. It
// is called synchronously on the thread driving the transition, so it must
// not block (spec.md section 5: "broker-thread time is scarce").
type ContentGetter func() (any, error)

// Listener is what the Hub registers per (entity, message type): where to
// publish, at what QoS and retain flag, and how to fetch the payload.
type Listener struct {
	Topic  string
	QoS    broker.QoS
	Retain bool
	Get    ContentGetter
}

type key struct {
	entity string
	msg    MessageType
}

// Dispatcher holds one listener per (entity, message type) and publishes
// synchronously on Notify, preserving the total ordering guarantee on a
// node's status messages (spec.md section 5). This is a deliberate
// departure from an async dispatch queue: the calling goroutine already
// holds the node's lock, and handing the publish to another goroutine
// would let two transitions race to publish out of order.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[key]Listener
	client    broker.Client
	events    log.Logger
}

// NewDispatcher builds a Dispatcher that publishes through client and
// records a PublishEvent for every successful publish via events (which
// may be log.NoopLogger{}).
func NewDispatcher(client broker.Client, events log.Logger) *Dispatcher {
	return &Dispatcher{
		listeners: make(map[key]Listener),
		client:    client,
		events:    events,
	}
}

// Register installs or replaces the listener for (entity, msgType).
func (d *Dispatcher) Register(entity string, msgType MessageType, l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[key{entity, msgType}] = l
}

// Unregister removes any listener for (entity, msgType). Idempotent.
func (d *Dispatcher) Unregister(entity string, msgType MessageType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listeners, key{entity, msgType})
}

// Notify fetches the registered getter's content, marshals it to JSON, and
// publishes it on the calling goroutine. It returns an error if no
// listener is registered, the getter fails, or the publish fails.
func (d *Dispatcher) Notify(entity string, msgType MessageType) error {
	d.mu.RLock()
	l, ok := d.listeners[key{entity, msgType}]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("publish: no listener for %s/%s", entity, msgType)
	}

	content, err := l.Get()
	if err != nil {
		return fmt.Errorf("publish: get content for %s/%s: %w", entity, msgType, err)
	}
	payload, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("publish: marshal %s/%s: %w", entity, msgType, err)
	}
	if err := d.client.Publish(l.Topic, payload, l.QoS, l.Retain); err != nil {
		return fmt.Errorf("publish: publish %s/%s: %w", entity, msgType, err)
	}

	d.events.Log(log.Event{
		Timestamp: time.Now(),
		NodeID:    entity,
		Category:  log.CategoryPublish,
		Publish: &log.PublishEvent{
			Topic:  l.Topic,
			QoS:    uint8(l.QoS),
			Retain: l.Retain,
			Bytes:  len(payload),
		},
	})
	return nil
}
