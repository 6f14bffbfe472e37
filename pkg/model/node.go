package model

import (
	"fmt"
	"sync"
)

// NodeState is the charging node's state machine (spec.md section 4.1).
type NodeState uint8

const (
	// NodeIdle is the initial state and the normal rest state between sessions.
	NodeIdle NodeState = iota
	// NodeCharging indicates the actuator is engaged and a vehicle is bound.
	NodeCharging
	// NodeFull indicates the vehicle reported charge-complete; awaiting occupancy drop.
	NodeFull
	// NodeFaulted indicates a non-zero error_code; actuator held OFF.
	NodeFaulted
)

// String renders the state the way it appears on the wire.
func (s NodeState) String() string {
	switch s {
	case NodeCharging:
		return "charging"
	case NodeFull:
		return "full"
	case NodeFaulted:
		return "faulted"
	default:
		return "idle"
	}
}

// SensorCache holds the latest readings a node has taken from its hardware.
type SensorCache struct {
	Voltage    float64
	Current    float64
	PowerKW    float64
	DistanceCM float64
}

// Node is a single charging point: immutable identity plus the mutable
// state described in spec.md section 3. All mutation is guarded by mu;
// callers (the node state machine, the DLM apply pass) take the lock via
// the accessor methods below, never directly.
type Node struct {
	mu sync.RWMutex

	id        string
	hubID     string
	maxPowerKW float64

	state        NodeState
	errorCode    int
	powerLimitKW float64
	isOccupied   bool

	connectedVehicleID string
	hasVehicle         bool
	currentVehicleSoC  int
	hasSoC             bool

	sensors SensorCache
}

// NewNode validates and constructs a Node, starting in the idle state with
// no power limit (DLM sets the first limit on its first pass).
func NewNode(id, hubID string, maxPowerKW float64) (*Node, error) {
	if id == "" {
		return nil, fmt.Errorf("model: node_id must not be empty")
	}
	if maxPowerKW <= 0 || maxPowerKW > 350 {
		return nil, fmt.Errorf("model: node %s max_power_kw %.2f out of range (0,350]", id, maxPowerKW)
	}
	return &Node{
		id:         id,
		hubID:      hubID,
		maxPowerKW: maxPowerKW,
		state:      NodeIdle,
	}, nil
}

// ID returns the node's identifier.
func (n *Node) ID() string { return n.id }

// HubID returns the owning hub's identifier.
func (n *Node) HubID() string { return n.hubID }

// MaxPowerKW returns the node's hardware power ceiling.
func (n *Node) MaxPowerKW() float64 { return n.maxPowerKW }

// State returns the current state machine state.
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// ErrorCode returns the current error code (0 = none).
func (n *Node) ErrorCode() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.errorCode
}

// PowerLimitKW returns the current DLM-enforced ceiling.
func (n *Node) PowerLimitKW() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.powerLimitKW
}

// IsOccupied returns the current occupancy flag.
func (n *Node) IsOccupied() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.isOccupied
}

// SetOccupied updates the occupancy flag directly (used by the proximity
// sensor in hardware mode; simulation mode asserts it via the request intake).
func (n *Node) SetOccupied(occupied bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.isOccupied = occupied
}

// VehicleID returns the bound vehicle ID, if any.
func (n *Node) VehicleID() (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connectedVehicleID, n.hasVehicle
}

// VehicleSoC returns the last-known state of charge, if any.
func (n *Node) VehicleSoC() (int, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.currentVehicleSoC, n.hasSoC
}

// SetVehicleSoC updates the cached state of charge from vehicle telemetry.
func (n *Node) SetVehicleSoC(soc int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.currentVehicleSoC = soc
	n.hasSoC = true
}

// Sensors returns the last-cached sensor readings.
func (n *Node) Sensors() SensorCache {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sensors
}

// SetPowerSample updates the cached power-meter reading. power_kw <=
// power_limit_kw is the policy-enforced invariant from section 3; the
// actuator PWM level is what enforces it, this just records what the meter
// saw.
func (n *Node) SetPowerSample(voltage, current, powerKW float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sensors.Voltage = voltage
	n.sensors.Current = current
	n.sensors.PowerKW = powerKW
}

// SetProximitySample updates the cached distance reading.
func (n *Node) SetProximitySample(distanceCM float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sensors.DistanceCM = distanceCM
}

// SetPowerLimitKW records a new DLM-assigned ceiling, clamped to [0, maxPowerKW].
// Returns the clamped value actually stored.
func (n *Node) SetPowerLimitKW(limit float64) float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if limit < 0 {
		limit = 0
	}
	if limit > n.maxPowerKW {
		limit = n.maxPowerKW
	}
	n.powerLimitKW = limit
	return limit
}

// BindVehicle assigns vehicle fields for an incoming request (spec.md 4.6 step 2).
func (n *Node) BindVehicle(vehicleID string, soc int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectedVehicleID = vehicleID
	n.hasVehicle = true
	n.currentVehicleSoC = soc
	n.hasSoC = true
}

// ClearVehicle clears the bound vehicle fields (session end).
func (n *Node) ClearVehicle() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectedVehicleID = ""
	n.hasVehicle = false
	n.hasSoC = false
}

// SetErrorCode sets the node's fault code. A non-zero code is the trigger
// for the faulted transition; callers decide the transition, this just
// records the code.
func (n *Node) SetErrorCode(code int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errorCode = code
}

// SetState records a state machine transition. model.Node holds no
// transition logic itself; every transition's side effects (actuator
// commands, publishes) live in internal/node, which is the only intended
// caller, per design note 9's "has an id and can start/stop" minimalism
// for the base type.
func (n *Node) SetState(s NodeState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = s
}

// Snapshot captures a consistent read of everything the DLM policy needs,
// taken under a single read lock (section 4.5: "a read-lock over the node
// registry is sufficient").
type Snapshot struct {
	NodeID      string
	MaxPowerKW  float64
	PowerKW     float64
	State       NodeState
	VehicleID   string
	HasVehicle  bool
	VehicleSoC  int
	HasSoC      bool
	IsOccupied  bool
}

// TakeSnapshot reads every DLM-relevant field under one lock.
func (n *Node) TakeSnapshot() Snapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return Snapshot{
		NodeID:     n.id,
		MaxPowerKW: n.maxPowerKW,
		PowerKW:    n.sensors.PowerKW,
		State:      n.state,
		VehicleID:  n.connectedVehicleID,
		HasVehicle: n.hasVehicle,
		VehicleSoC: n.currentVehicleSoC,
		HasSoC:     n.hasSoC,
		IsOccupied: n.isOccupied,
	}
}
