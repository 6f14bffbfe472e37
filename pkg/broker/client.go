package broker

import (
	"context"
	"errors"
)

// ErrNotConnected is the error a Client returns from Publish/Subscribe when
// it has no live broker connection. MemoryClient never returns it: it
// delivers whether or not Connect has been called.
var ErrNotConnected = errors.New("broker: not connected")

// Client is the hub's view of the pub/sub fabric: connect once, publish
// typed, topic-addressed messages with a QoS and retain flag, and
// subscribe/unsubscribe to topics (including single-segment `+` wildcards,
// per spec.md section 6). Implementations must be safe for concurrent use
// — "the broker client is thread-safe by contract" (spec.md section 5) —
// and subscription add/remove must be idempotent.
type Client interface {
	// Connect establishes the broker connection. Blocking reconnection
	// policy lives in the reconnect Manager, not here: Connect either
	// succeeds or fails once.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. Safe to call when already
	// disconnected.
	Disconnect()

	// Publish sends payload to topic at the given QoS, retained or not.
	Publish(topic string, payload []byte, qos QoS, retain bool) error

	// Subscribe registers handler for topic (which may contain `+`
	// wildcards). Re-subscribing the same topic replaces the handler.
	Subscribe(topic string, handler Handler) error

	// Unsubscribe removes any handler registered for topic. A no-op if
	// nothing was subscribed.
	Unsubscribe(topic string) error
}
