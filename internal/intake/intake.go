// Package intake implements Request Intake (spec.md section 4.6) and the
// Vehicle-Telemetry Tap (section 4.7): the broker-facing glue that turns
// an inbound VehicleRequest into a node transition, and an active
// session's vehicle telemetry into completion detection.
package intake

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gridwatt/hubctl/internal/dlm"
	"github.com/gridwatt/hubctl/internal/hub"
	"github.com/gridwatt/hubctl/pkg/broker"
	"github.com/gridwatt/hubctl/pkg/log"
	"github.com/gridwatt/hubctl/pkg/model"
)

// Intake wires a Hub's request topic and per-session vehicle telemetry
// topics onto a broker.Client.
type Intake struct {
	hub    *hub.Hub
	client broker.Client
	dlm    *dlm.Service
	events log.Logger

	mu          sync.Mutex
	sessionSubs map[string]string // vehicle_id -> topic, for shutdown cleanup (section 4.7)
}

// New builds an Intake bound to h, publishing DLM applies through dlm and
// logging through events (log.NoopLogger{} if nil).
func New(h *hub.Hub, client broker.Client, dlmSvc *dlm.Service, events log.Logger) *Intake {
	if events == nil {
		events = log.NoopLogger{}
	}
	return &Intake{
		hub:         h,
		client:      client,
		dlm:         dlmSvc,
		events:      events,
		sessionSubs: make(map[string]string),
	}
}

// Start subscribes to the hub's request topic (spec.md section 4.6).
// broker.Client.Subscribe takes no QoS argument, so no subscription QoS is
// requested here.
func (i *Intake) Start() error {
	topic := broker.RequestsTopic(i.hub.ID())
	return i.client.Subscribe(topic, i.handleRequest)
}

// Stop removes every per-session vehicle-telemetry subscription (spec.md
// section 4.7: "Cancellation on shutdown: all per-session subscriptions
// are removed during stop"), then the request topic itself.
func (i *Intake) Stop() {
	i.mu.Lock()
	topics := make([]string, 0, len(i.sessionSubs))
	for _, t := range i.sessionSubs {
		topics = append(topics, t)
	}
	i.sessionSubs = make(map[string]string)
	i.mu.Unlock()

	for _, t := range topics {
		_ = i.client.Unsubscribe(t)
	}
	_ = i.client.Unsubscribe(broker.RequestsTopic(i.hub.ID()))
}

func (i *Intake) handleRequest(msg broker.Message) {
	var req model.VehicleRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		i.logError("intake", fmt.Errorf("malformed request: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		i.logError("intake", err)
		return
	}

	r, ok := i.hub.Node(req.NodeID)
	if !ok {
		i.logError("intake", fmt.Errorf("unknown node_id %q", req.NodeID))
		return
	}

	// Force a sensor read so hardware-mode occupancy is current before the
	// transition guard runs (spec.md section 4.6 step 3).
	r.ForceSensorRead()

	if r.HardwareMode() {
		if !r.Node().IsOccupied() {
			i.logError("intake", fmt.Errorf("node %s request rejected: not occupied", req.NodeID))
			return
		}
	} else {
		// Simulation mode has no proximity sensor driving occupancy, so the
		// request pipeline itself asserts it (spec.md section 3).
		r.Node().SetOccupied(true)
	}

	if err := r.RequestCharging(req.VehicleID, req.SoCPercent); err != nil {
		i.logError("intake", fmt.Errorf("node %s request rejected: %w", req.NodeID, err))
		return
	}

	vehicleTopic := broker.VehicleTelemetryTopic(req.VehicleID)
	if err := i.client.Subscribe(vehicleTopic, i.vehicleTelemetryHandler(req.NodeID, req.VehicleID)); err != nil {
		i.logError("intake", err)
	} else {
		i.mu.Lock()
		i.sessionSubs[req.VehicleID] = vehicleTopic
		i.mu.Unlock()
	}

	// Synchronously apply the DLM pass so the new allocation is published
	// before the next tick (spec.md section 4.6 step 6).
	i.dlm.Apply("vehicle_request:" + req.NodeID)
}

// vehicleTelemetryHandler implements the Vehicle-Telemetry Tap (spec.md
// section 4.7): per-session handler that feeds telemetry to the bound
// node and unsubscribes once the session ends.
func (i *Intake) vehicleTelemetryHandler(nodeID, vehicleID string) broker.Handler {
	return func(msg broker.Message) {
		var tel model.VehicleTelemetry
		if err := json.Unmarshal(msg.Payload, &tel); err != nil {
			i.logError("intake", fmt.Errorf("malformed vehicle telemetry: %w", err))
			return
		}
		if err := tel.Validate(); err != nil {
			i.logError("intake", err)
			return
		}

		r, ok := i.hub.Node(nodeID)
		if !ok {
			return
		}

		result := r.OnVehicleTelemetry(tel)
		if !result.SessionEnded {
			return
		}

		topic := broker.VehicleTelemetryTopic(vehicleID)
		_ = i.client.Unsubscribe(topic)
		i.mu.Lock()
		delete(i.sessionSubs, vehicleID)
		i.mu.Unlock()

		i.dlm.Apply("session_complete:" + nodeID)
	}
}

func (i *Intake) logError(source string, err error) {
	i.events.Log(log.Event{
		Timestamp: time.Now(),
		HubID:     i.hub.ID(),
		Category:  log.CategoryError,
		Error:     &log.ErrorEvent{Source: source, Message: err.Error()},
	})
}
