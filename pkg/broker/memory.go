package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryBroker is an in-process pub/sub fabric: every MemoryClient created
// from the same MemoryBroker shares topics, retained messages, and
// subscriptions. It exists for tests and for running a hub without a real
// broker dependency (design note 9: "If the broker does not [honor
// retain]... provide an alternative"; here retain is honored directly).
type MemoryBroker struct {
	mu        sync.RWMutex
	retained  map[string]Message
	subs      map[string]map[string]Handler // topic filter -> subscriber id -> handler
	connected map[string]bool
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		retained:  make(map[string]Message),
		subs:      make(map[string]map[string]Handler),
		connected: make(map[string]bool),
	}
}

// Client returns a new Client bound to this broker.
func (b *MemoryBroker) Client() *MemoryClient {
	return &MemoryClient{broker: b, id: uuid.NewString()}
}

func (b *MemoryBroker) publish(topic string, payload []byte, qos QoS, retain bool) error {
	b.mu.Lock()
	if retain {
		if len(payload) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = Message{Topic: topic, Payload: payload, QoS: qos, Retain: true}
		}
	}
	// Snapshot matching handlers before invoking them, so a handler that
	// subscribes/unsubscribes doesn't deadlock on b.mu.
	var handlers []Handler
	for filter, bySub := range b.subs {
		if Match(filter, topic) {
			for _, h := range bySub {
				handlers = append(handlers, h)
			}
		}
	}
	b.mu.Unlock()

	msg := Message{Topic: topic, Payload: payload, QoS: qos, Retain: retain}
	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (b *MemoryBroker) subscribe(subID, filter string, handler Handler) {
	b.mu.Lock()
	if b.subs[filter] == nil {
		b.subs[filter] = make(map[string]Handler)
	}
	b.subs[filter][subID] = handler
	var retained []Message
	for topic, msg := range b.retained {
		if Match(filter, topic) {
			retained = append(retained, msg)
		}
	}
	b.mu.Unlock()

	// New subscribers immediately receive any matching retained message,
	// which is exactly what makes retained info the hub's directory
	// service (design note 9).
	for _, msg := range retained {
		handler(msg)
	}
}

func (b *MemoryBroker) unsubscribe(subID, filter string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bySub, ok := b.subs[filter]; ok {
		delete(bySub, subID)
		if len(bySub) == 0 {
			delete(b.subs, filter)
		}
	}
}

func (b *MemoryBroker) setConnected(id string, v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v {
		b.connected[id] = true
	} else {
		delete(b.connected, id)
	}
}

// MemoryClient is a Client bound to one MemoryBroker.
type MemoryClient struct {
	broker *MemoryBroker
	id     string

	mu     sync.RWMutex
	subIDs map[string]struct{} // filters this client owns, for idempotent unsubscribe tracking
}

// Connect marks the client connected. Never fails: there is no network to
// fail against.
func (c *MemoryClient) Connect(ctx context.Context) error {
	c.broker.setConnected(c.id, true)
	return nil
}

// Disconnect marks the client disconnected and drops its subscriptions.
func (c *MemoryClient) Disconnect() {
	c.mu.Lock()
	filters := make([]string, 0, len(c.subIDs))
	for f := range c.subIDs {
		filters = append(filters, f)
	}
	c.subIDs = nil
	c.mu.Unlock()

	for _, f := range filters {
		c.broker.unsubscribe(c.id, f)
	}
	c.broker.setConnected(c.id, false)
}

// Publish hands payload to the shared broker.
func (c *MemoryClient) Publish(topic string, payload []byte, qos QoS, retain bool) error {
	return c.broker.publish(topic, payload, qos, retain)
}

// Subscribe registers handler for topic on the shared broker.
func (c *MemoryClient) Subscribe(topic string, handler Handler) error {
	c.mu.Lock()
	if c.subIDs == nil {
		c.subIDs = make(map[string]struct{})
	}
	c.subIDs[topic] = struct{}{}
	c.mu.Unlock()

	c.broker.subscribe(c.id, topic, handler)
	return nil
}

// Unsubscribe removes handler for topic. Idempotent.
func (c *MemoryClient) Unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.subIDs, topic)
	c.mu.Unlock()

	c.broker.unsubscribe(c.id, topic)
	return nil
}

var _ Client = (*MemoryClient)(nil)
