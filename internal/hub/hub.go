// Package hub owns the Edge Hub Controller's top-level device: hub
// identity and connection state, the node registry, and the wiring that
// turns each node's content-getters into retained/non-retained publishes
// (spec.md sections 2-4.4). It is deliberately thin — composition over
// inheritance, per design note 9 ("prefer a concrete Hub type that embeds
// a Publisher and holds a map[node_id]*Node").
package hub

import (
	"context"
	"fmt"

	"github.com/gridwatt/hubctl/internal/node"
	"github.com/gridwatt/hubctl/pkg/broker"
	"github.com/gridwatt/hubctl/pkg/hal"
	"github.com/gridwatt/hubctl/pkg/log"
	"github.com/gridwatt/hubctl/pkg/model"
	"github.com/gridwatt/hubctl/pkg/publish"
)

// NodeSpec describes one configured node at startup (spec.md section 6's
// process configuration: "list of node descriptors").
type NodeSpec struct {
	NodeID       string
	MaxPowerKW   float64
	Name         string
	TelemetryCfg node.Config
}

// Hub is the live Edge Hub Controller: a model.Hub plus every node
// Resource it owns, wired to publish through a shared Dispatcher.
type Hub struct {
	model      *model.Hub
	client     broker.Client
	dispatcher *publish.Dispatcher
	events     log.Logger
	nodes      map[string]*node.Resource
}

// New builds a Hub from its static configuration. Nodes are added via
// AddNode before Start.
func New(cfg model.HubConfig, client broker.Client, events log.Logger) (*Hub, error) {
	m, err := model.NewHub(cfg)
	if err != nil {
		return nil, fmt.Errorf("hub: %w", err)
	}
	if events == nil {
		events = log.NoopLogger{}
	}
	dispatcher := publish.NewDispatcher(client, events)
	h := &Hub{
		model:      m,
		client:     client,
		dispatcher: dispatcher,
		events:     events,
		nodes:      make(map[string]*node.Resource),
	}
	dispatcher.Register(m.ID(), publish.Info, publish.Listener{
		Topic:  broker.HubInfoTopic(m.ID()),
		QoS:    broker.QoS1,
		Retain: true,
		Get:    h.getInfo,
	})
	dispatcher.Register(m.ID(), publish.Status, publish.Listener{
		Topic:  broker.HubStatusTopic(m.ID()),
		QoS:    broker.QoS1,
		Retain: false,
		Get:    h.getStatus,
	})
	return h, nil
}

// ID returns the hub's identifier.
func (h *Hub) ID() string { return h.model.ID() }

// Model returns the underlying hub model, for the DLM service and intake
// to read capacity/location without re-deriving it.
func (h *Hub) Model() *model.Hub { return h.model }

// Dispatcher returns the shared publish dispatcher, so internal/dlm and
// internal/intake can Notify without duplicating listener wiring.
func (h *Hub) Dispatcher() *publish.Dispatcher { return h.dispatcher }

// Client returns the broker client, for components (intake, DLM) that
// need to publish payloads the dispatcher's getter model doesn't fit.
func (h *Hub) Client() broker.Client { return h.client }

// Node looks up a node resource by id.
func (h *Hub) Node(id string) (*node.Resource, bool) {
	r, ok := h.nodes[id]
	return r, ok
}

// Nodes returns every node resource, in no particular order.
func (h *Hub) Nodes() []*node.Resource {
	out := make([]*node.Resource, 0, len(h.nodes))
	for _, r := range h.nodes {
		out = append(out, r)
	}
	return out
}

// AddNode constructs a node.Resource around spec's hardware and registers
// its content-getters at their canonical topics. Call before Start.
func (h *Hub) AddNode(spec NodeSpec, power hal.PowerSensor, proximity hal.ProximitySensor, actuator hal.Actuator) (*node.Resource, error) {
	n, err := model.NewNode(spec.NodeID, h.model.ID(), spec.MaxPowerKW)
	if err != nil {
		return nil, err
	}
	h.model.AddNode(n)

	r := node.New(n, power, proximity, actuator, h.dispatcher, h.events, spec.TelemetryCfg)
	h.nodes[spec.NodeID] = r

	h.dispatcher.Register(spec.NodeID, publish.Info, publish.Listener{
		Topic:  broker.NodeInfoTopic(h.model.ID(), spec.NodeID),
		QoS:    broker.QoS1,
		Retain: true,
		Get:    r.GetInfo,
	})
	h.dispatcher.Register(spec.NodeID, publish.Status, publish.Listener{
		Topic:  broker.NodeStatusTopic(h.model.ID(), spec.NodeID),
		QoS:    broker.QoS1,
		Retain: false,
		Get:    r.GetStatus,
	})
	h.dispatcher.Register(spec.NodeID, publish.Telemetry, publish.Listener{
		Topic:  broker.NodeTelemetryTopic(h.model.ID(), spec.NodeID),
		QoS:    broker.QoS0,
		Retain: false,
		Get:    r.GetTelemetry,
	})
	return r, nil
}

// Start brings the hub online (spec.md section 2's startup control flow):
// publish retained HubInfo + initial HubStatus, then each node's retained
// NodeInfo + initial NodeStatus, then start every node's telemetry ticker.
func (h *Hub) Start(ctx context.Context) error {
	h.model.SetState(model.HubOnline)

	if err := h.dispatcher.Notify(h.model.ID(), publish.Info); err != nil {
		return fmt.Errorf("hub: publish info: %w", err)
	}
	if err := h.dispatcher.Notify(h.model.ID(), publish.Status); err != nil {
		return fmt.Errorf("hub: publish status: %w", err)
	}

	for id, r := range h.nodes {
		if err := h.dispatcher.Notify(id, publish.Info); err != nil {
			return fmt.Errorf("hub: publish node %s info: %w", id, err)
		}
		if err := h.dispatcher.Notify(id, publish.Status); err != nil {
			return fmt.Errorf("hub: publish node %s status: %w", id, err)
		}
		r.Start(ctx)
	}
	return nil
}

// Stop follows the section-5 shutdown sequence for everything the Hub
// itself owns: per-node telemetry loops joined, then the hub transitions
// to OFFLINE and publishes final status. The DLM loop and broker
// disconnect are owned by the caller (cmd/edgehubd), which stops them
// around this call per the documented ordering.
func (h *Hub) Stop() {
	for _, r := range h.nodes {
		r.Stop()
	}
	h.model.SetState(model.HubOffline)
	_ = h.dispatcher.Notify(h.model.ID(), publish.Status)
}

func (h *Hub) getInfo() (any, error) {
	return h.model.Info(), nil
}

func (h *Hub) getStatus() (any, error) {
	return h.model.Status(func() model.Timestamp { return model.Now() }), nil
}
