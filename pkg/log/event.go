package log

import "time"

// Event is one structured record in the hub's protocol/audit event stream:
// one per state transition, DLM pass, and publish. CBOR encoding uses
// integer keys for compactness, matching the corpus convention for
// high-volume structured logs.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// HubID identifies the owning hub.
	HubID string `cbor:"2,keyasint,omitempty"`

	// NodeID identifies the node the event concerns, if any.
	NodeID string `cbor:"3,keyasint,omitempty"`

	// Category classifies the event.
	Category Category `cbor:"4,keyasint"`

	// VehicleID identifies the vehicle the event concerns, if any.
	VehicleID string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (exactly one of these is set, matching Category).
	StateChange *StateChangeEvent `cbor:"10,keyasint,omitempty"`
	DLMApply    *DLMApplyEvent    `cbor:"11,keyasint,omitempty"`
	Publish     *PublishEvent     `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEvent       `cbor:"13,keyasint,omitempty"`
}

// Category classifies the event type, used both for CBOR tagging and as a
// Reader filter dimension.
type Category uint8

const (
	// CategoryStateChange is a node or hub state-machine transition.
	CategoryStateChange Category = iota
	// CategoryDLMApply is one DLM tick's allocation pass.
	CategoryDLMApply
	// CategoryPublish is a message handed to the broker.
	CategoryPublish
	// CategoryError is a logged, non-fatal error per spec.md section 7.
	CategoryError
)

// String renders the category name.
func (c Category) String() string {
	switch c {
	case CategoryStateChange:
		return "state_change"
	case CategoryDLMApply:
		return "dlm_apply"
	case CategoryPublish:
		return "publish"
	case CategoryError:
		return "error"
	default:
		return "unknown"
	}
}

// StateChangeEvent records a node or hub state machine transition.
type StateChangeEvent struct {
	Entity   string `cbor:"1,keyasint"` // "node" or "hub"
	OldState string `cbor:"2,keyasint"`
	NewState string `cbor:"3,keyasint"`
	Reason   string `cbor:"4,keyasint,omitempty"`
}

// DLMApplyEvent records one DLM tick: the policy used, the resulting
// allocations, and whether each produced a notification (section 4.5).
type DLMApplyEvent struct {
	Policy        string    `cbor:"1,keyasint"`
	TriggerReason string    `cbor:"2,keyasint"`
	NodeIDs       []string  `cbor:"3,keyasint"`
	AllocatedKW   []float64 `cbor:"4,keyasint"`
	Notified      []bool    `cbor:"5,keyasint"`
	TotalGridLoad float64   `cbor:"6,keyasint"`
}

// PublishEvent records a message handed to the broker.
type PublishEvent struct {
	Topic  string `cbor:"1,keyasint"`
	QoS    uint8  `cbor:"2,keyasint"`
	Retain bool   `cbor:"3,keyasint"`
	Bytes  int    `cbor:"4,keyasint"`
}

// ErrorEvent records a logged, non-fatal error (spec.md section 7).
type ErrorEvent struct {
	Source  string `cbor:"1,keyasint"` // e.g. "sensor", "actuator", "broker", "intake"
	Message string `cbor:"2,keyasint"`
}
