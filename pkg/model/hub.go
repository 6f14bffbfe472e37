package model

import (
	"fmt"
	"net"
	"sync"
)

// ConnectionState is the hub's lifecycle state.
type ConnectionState uint8

const (
	// HubOffline is the initial/terminal state: no broker connection.
	HubOffline ConnectionState = iota
	// HubOnline indicates a live broker connection and published retained info.
	HubOnline
	// HubMaintenance indicates the hub is intentionally out of service.
	HubMaintenance
)

// String renders the connection state the way it appears on the wire.
func (s ConnectionState) String() string {
	switch s {
	case HubOnline:
		return "online"
	case HubMaintenance:
		return "maintenance"
	default:
		return "offline"
	}
}

// HubConfig is the immutable identity of a hub, validated on construction.
type HubConfig struct {
	HubID             string
	Location          Location
	MaxGridCapacityKW float64
	FirmwareVersion   string
	IPAddress         string
}

// Validate checks HubConfig against the wire schema's bounds (section 6).
func (c HubConfig) Validate() error {
	if c.HubID == "" || len(c.HubID) > 50 {
		return fmt.Errorf("model: hub_id must be 1-50 chars, got %d", len(c.HubID))
	}
	if err := c.Location.Validate(); err != nil {
		return err
	}
	if c.MaxGridCapacityKW <= 0 || c.MaxGridCapacityKW > 1000 {
		return fmt.Errorf("model: max_grid_capacity_kw %.2f out of range (0,1000]", c.MaxGridCapacityKW)
	}
	if len(c.FirmwareVersion) > 20 {
		return fmt.Errorf("model: firmware_version exceeds 20 chars")
	}
	if net.ParseIP(c.IPAddress) == nil {
		return fmt.Errorf("model: ip_address %q is not a valid IPv4/IPv6 address", c.IPAddress)
	}
	return nil
}

// Hub is the singleton per-process device: identity is immutable, state is mutable.
type Hub struct {
	mu sync.RWMutex

	id                string
	location          Location
	maxGridCapacityKW float64
	firmwareVersion   string
	ipAddress         string

	state   ConnectionState
	cpuTemp float64

	nodes map[string]*Node
}

// NewHub constructs a Hub from a validated config. The node registry starts empty;
// nodes are added via AddNode during startup only (section 5: registry writes
// happen only at startup).
func NewHub(cfg HubConfig) (*Hub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Hub{
		id:                cfg.HubID,
		location:          cfg.Location,
		maxGridCapacityKW: cfg.MaxGridCapacityKW,
		firmwareVersion:   cfg.FirmwareVersion,
		ipAddress:         cfg.IPAddress,
		state:             HubOffline,
		nodes:             make(map[string]*Node),
	}, nil
}

// ID returns the hub's identifier.
func (h *Hub) ID() string { return h.id }

// Location returns the hub's fixed physical location.
func (h *Hub) Location() Location { return h.location }

// MaxGridCapacityKW returns the hub's grid budget.
func (h *Hub) MaxGridCapacityKW() float64 { return h.maxGridCapacityKW }

// FirmwareVersion returns the reported firmware string.
func (h *Hub) FirmwareVersion() string { return h.firmwareVersion }

// IPAddress returns the reported IP address.
func (h *Hub) IPAddress() string { return h.ipAddress }

// State returns the current connection state.
func (h *Hub) State() ConnectionState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// SetState transitions the hub's connection state.
func (h *Hub) SetState(s ConnectionState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
}

// CPUTemp returns the last-recorded CPU temperature.
func (h *Hub) CPUTemp() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cpuTemp
}

// SetCPUTemp records a new CPU temperature reading.
func (h *Hub) SetCPUTemp(t float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cpuTemp = t
}

// AddNode registers a node with the hub. Only valid before the hub goes online.
func (h *Hub) AddNode(n *Node) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes[n.ID()] = n
}

// Node looks up a registered node by ID.
func (h *Hub) Node(nodeID string) (*Node, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n, ok := h.nodes[nodeID]
	return n, ok
}

// Nodes returns a snapshot slice of all registered nodes. The DLM service
// does not use this getter: it reads node resources through
// internal/hub.Hub.Nodes (its dlm.NodeRegistry).
func (h *Hub) Nodes() []*Node {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Node, 0, len(h.nodes))
	for _, n := range h.nodes {
		out = append(out, n)
	}
	return out
}

// Info builds the retained HubInfo wire payload.
func (h *Hub) Info() HubInfo {
	return HubInfo{
		HubID:             h.id,
		Location:          h.location,
		MaxGridCapacityKW: h.maxGridCapacityKW,
		IPAddress:         h.ipAddress,
		FirmwareVersion:   h.firmwareVersion,
	}
}

// Status builds the current HubStatus wire payload.
func (h *Hub) Status(now func() Timestamp) HubStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStatus{
		State:     h.state.String(),
		CPUTemp:   h.cpuTemp,
		Timestamp: now(),
	}
}
