package broker

// QoS is the delivery guarantee for a published or subscribed message,
// matching the two levels spec.md section 6 actually uses.
type QoS uint8

const (
	// QoS0 is fire-and-forget delivery (used for telemetry).
	QoS0 QoS = 0
	// QoS1 is at-least-once delivery (used for info/status/requests/dlm events).
	QoS1 QoS = 1
)

// Message is an inbound message delivered to a subscription handler.
type Message struct {
	Topic   string
	Payload []byte
	QoS     QoS
	Retain  bool
}

// Handler processes one inbound message. Handlers are invoked on the
// broker's delivery goroutine and must return quickly (spec.md section 5):
// any non-trivial work is either brief-and-synchronous under a node lock,
// or handed off to the DLM tick queue.
type Handler func(Message)
