// Package node owns the per-node state machine (spec.md section 4.1), its
// periodic telemetry timer (section 4.2), and the hardware it drives. A
// Resource wraps a model.Node with the sensors/actuator that back it and
// the dispatcher it publishes through, while staying ignorant of topic
// names (section 4.4) — it calls Notify, never Publish.
package node

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/gridwatt/hubctl/pkg/hal"
	"github.com/gridwatt/hubctl/pkg/log"
	"github.com/gridwatt/hubctl/pkg/model"
	"github.com/gridwatt/hubctl/pkg/publish"
)

// ErrNotIdle is returned when a charging request targets a node that is
// not idle. The intake layer treats this as a silent rejection (spec.md
// open question: "request for already-charging node is rejected silently").
var ErrNotIdle = errors.New("node: not idle")

// ErrNotOccupied guards against starting a session on a node that has not
// confirmed occupancy — the "phantom occupancy" guard of spec.md section
// 4.1.
var ErrNotOccupied = errors.New("node: occupancy not confirmed")

// proximityOccupiedThresholdCM is the section-4.2 hardware-mode occupancy
// rule: "is_occupied = distance < 50 cm".
const proximityOccupiedThresholdCM = 50.0

// Config configures one Resource.
type Config struct {
	TelemetryInterval time.Duration // default 2s (spec.md section 4.2)
	HardwareMode      bool          // true: occupancy driven by proximity sensor; false: driven only by intake
}

// Resource is a charging node's live behavior: state machine, telemetry
// ticker, and hardware wiring. Resource.mu serializes every transition
// entry point so that "transitions for a given node are mutually
// exclusive under the node's lock" (spec.md section 5).
type Resource struct {
	mu sync.Mutex

	node       *model.Node
	power      hal.PowerSensor
	proximity  hal.ProximitySensor
	actuator   hal.Actuator
	dispatcher *publish.Dispatcher
	events     log.Logger

	cfg Config

	onDLMTrigger func(nodeID string) // fired after an occupancy/vehicle-binding change

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Resource around an already-registered model.Node.
func New(n *model.Node, power hal.PowerSensor, proximity hal.ProximitySensor, actuator hal.Actuator, dispatcher *publish.Dispatcher, events log.Logger, cfg Config) *Resource {
	if cfg.TelemetryInterval <= 0 {
		cfg.TelemetryInterval = 2 * time.Second
	}
	if events == nil {
		events = log.NoopLogger{}
	}
	return &Resource{
		node:       n,
		power:      power,
		proximity:  proximity,
		actuator:   actuator,
		dispatcher: dispatcher,
		events:     events,
		cfg:        cfg,
	}
}

// Node returns the underlying model resource, for registry/lookup use.
func (r *Resource) Node() *model.Node { return r.node }

// HardwareMode reports whether this node's occupancy is driven by its
// proximity sensor (true) or must be asserted by the request pipeline in
// simulation mode (false) — spec.md section 3.
func (r *Resource) HardwareMode() bool { return r.cfg.HardwareMode }

// OnDLMTrigger installs the callback invoked whenever intake activity
// changes this node's occupancy or vehicle fields, which is one of the two
// DLM tick trigger conditions (spec.md section 4.5).
func (r *Resource) OnDLMTrigger(fn func(nodeID string)) { r.onDLMTrigger = fn }

// Start launches the periodic telemetry ticker (spec.md section 4.2). The
// ticker is a dedicated per-node worker, not a shared priority queue
// (design note 9: "a dedicated worker per node... scales to hundreds of
// nodes fine").
func (r *Resource) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.tickLoop(ctx)
}

// Stop halts the telemetry ticker and waits for it to exit.
func (r *Resource) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Resource) tickLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.TelemetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick()
		}
	}
}

// ForceSensorRead refreshes the power and proximity caches immediately and,
// in hardware mode, updates occupancy from the new distance reading. This
// is the "force a sensor read" step of request intake (spec.md section
// 4.6 step 3) — narrower than Tick, since intake must not also run the
// full->idle check or publish telemetry on the node's behalf.
func (r *Resource) ForceSensorRead() {
	if err := r.power.Measure(); err != nil {
		r.logError("power_sensor", err)
	}
	if err := r.proximity.Measure(); err != nil {
		r.logError("proximity_sensor", err)
	}
	p := r.power.Get()
	d := r.proximity.Get()
	r.node.SetPowerSample(p.VoltageV, p.CurrentA, p.PowerKW)
	r.node.SetProximitySample(d.DistanceCM)

	if r.cfg.HardwareMode {
		r.node.SetOccupied(d.DistanceCM < proximityOccupiedThresholdCM)
	}
}

// Tick performs one periodic telemetry pass: read sensors, update
// occupancy in hardware mode, drive the full->idle transition if
// applicable, and publish telemetry (spec.md section 4.2).
func (r *Resource) Tick() {
	r.ForceSensorRead()

	r.mu.Lock()
	if r.node.State() == model.NodeFull && !r.node.IsOccupied() {
		r.transitionLocked(model.NodeIdle, 0, "occupancy_dropped")
	}
	r.mu.Unlock()

	if err := r.dispatcher.Notify(r.node.ID(), publish.Telemetry); err != nil {
		r.logError("publish", err)
	}
}

// RequestCharging binds a vehicle and starts a session (spec.md section
// 4.1, idle -> charging). It fails with ErrNotIdle or ErrNotOccupied if
// the guard conditions are not met; callers treat both as a silent
// rejection per the spec's resolved open question.
func (r *Resource) RequestCharging(vehicleID string, soc int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.node.State() != model.NodeIdle {
		return ErrNotIdle
	}
	if !r.node.IsOccupied() {
		return ErrNotOccupied
	}

	r.node.BindVehicle(vehicleID, soc)
	if err := r.actuator.Apply(hal.ActuatorCommand{Status: hal.ActuatorOn, PWMLevel: 255}); err != nil {
		r.logError("actuator", err)
	}
	r.transitionLocked(model.NodeCharging, 0, "vehicle_bound")

	if r.onDLMTrigger != nil {
		r.onDLMTrigger(r.node.ID())
	}
	return nil
}

// VehicleTelemetryResult reports what OnVehicleTelemetry did, so the hub
// knows whether to unsubscribe the vehicle's telemetry topic — the hub
// owns subscriptions, the node only reports the fact (spec.md section 4.4).
type VehicleTelemetryResult struct {
	SessionEnded bool
	VehicleID    string
}

// OnVehicleTelemetry applies a telemetry sample from the bound vehicle. If
// the node is not charging, the sample is ignored beyond caching SoC.
// is_charging = false while occupied ends the session (charging -> full).
func (r *Resource) OnVehicleTelemetry(tel model.VehicleTelemetry) VehicleTelemetryResult {
	r.node.SetVehicleSoC(tel.BatteryLevel)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.node.State() != model.NodeCharging {
		return VehicleTelemetryResult{}
	}
	vehicleID, _ := r.node.VehicleID()
	if tel.IsCharging || !r.node.IsOccupied() {
		return VehicleTelemetryResult{}
	}

	if err := r.actuator.Apply(hal.ActuatorCommand{Status: hal.ActuatorOff, PWMLevel: 0}); err != nil {
		r.logError("actuator", err)
	}
	r.node.ClearVehicle()
	r.transitionLocked(model.NodeFull, 0, "session_complete")

	if r.onDLMTrigger != nil {
		r.onDLMTrigger(r.node.ID())
	}
	return VehicleTelemetryResult{SessionEnded: true, VehicleID: vehicleID}
}

// AssertFault drives the faulted transition from charging or idle
// (spec.md section 4.1). Safe to call repeatedly; re-asserting the same
// code is a no-op publish per the (state, error_code) publishing rule.
func (r *Resource) AssertFault(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.actuator.Apply(hal.ActuatorCommand{Status: hal.ActuatorOff, PWMLevel: 0}); err != nil {
		r.logError("actuator", err)
	}
	r.transitionLocked(model.NodeFaulted, code, "fault_asserted")
}

// ApplyPowerLimit is the DLM's entry point into a node (spec.md section
// 4.5 step 2): record the new ceiling and, if charging, reprogram the
// actuator PWM. It never publishes a status message — only a DLM
// notification (emitted by internal/dlm) reports a limit change.
func (r *Resource) ApplyPowerLimit(limitKW float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	clamped := r.node.SetPowerLimitKW(limitKW)
	if r.node.State() == model.NodeCharging {
		pwm := int(math.Round((clamped / r.node.MaxPowerKW()) * 255))
		if pwm < 0 {
			pwm = 0
		}
		if pwm > 255 {
			pwm = 255
		}
		if err := r.actuator.Apply(hal.ActuatorCommand{Status: hal.ActuatorOn, PWMLevel: pwm}); err != nil {
			r.logError("actuator", err)
		}
	}
	return clamped
}

// transitionLocked sets state/error_code and publishes status iff the
// (state, error_code) tuple actually changed (spec.md section 4.1's
// publishing rule). Caller must hold r.mu.
func (r *Resource) transitionLocked(newState model.NodeState, errCode int, reason string) {
	oldState := r.node.State()
	oldErr := r.node.ErrorCode()
	if oldState == newState && oldErr == errCode {
		return
	}

	r.node.SetErrorCode(errCode)
	r.node.SetState(newState)

	r.events.Log(log.Event{
		Timestamp: time.Now(),
		NodeID:    r.node.ID(),
		Category:  log.CategoryStateChange,
		StateChange: &log.StateChangeEvent{
			Entity:   "node",
			OldState: oldState.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})

	if err := r.dispatcher.Notify(r.node.ID(), publish.Status); err != nil {
		r.logError("publish", err)
	}
}

func (r *Resource) logError(source string, err error) {
	r.events.Log(log.Event{
		Timestamp: time.Now(),
		NodeID:    r.node.ID(),
		Category:  log.CategoryError,
		Error:     &log.ErrorEvent{Source: source, Message: err.Error()},
	})
}

// GetInfo is the node's `get_info` content-getter (spec.md section 4.4):
// retained, idempotent identity.
func (r *Resource) GetInfo() (any, error) {
	return model.NodeInfo{
		NodeID:     r.node.ID(),
		HubID:      r.node.HubID(),
		MaxPowerKW: r.node.MaxPowerKW(),
	}, nil
}

// GetStatus is the node's `get_status` content-getter.
func (r *Resource) GetStatus() (any, error) {
	return model.NodeStatus{
		State:     r.node.State().String(),
		ErrorCode: r.node.ErrorCode(),
		Timestamp: model.Now(),
	}, nil
}

// GetTelemetry is the node's `get_telemetry` content-getter.
func (r *Resource) GetTelemetry() (any, error) {
	s := r.node.Sensors()
	tel := model.NodeTelemetry{
		Voltage:      s.Voltage,
		Current:      s.Current,
		PowerKW:      s.PowerKW,
		PowerLimitKW: r.node.PowerLimitKW(),
		IsOccupied:   r.node.IsOccupied(),
		Timestamp:    model.Now(),
	}
	if vehicleID, ok := r.node.VehicleID(); ok {
		tel.ConnectedVehicleID = vehicleID
	}
	if soc, ok := r.node.VehicleSoC(); ok {
		tel.CurrentVehicleSoC = &soc
	}
	return tel, nil
}
