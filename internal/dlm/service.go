// Package dlm implements the Dynamic Load Management control loop
// (spec.md section 4.5): a periodic + event-driven tick that snapshots
// every node, runs the configured allocation policy, applies the result,
// and publishes a DLMNotification wherever a node's limit moved enough to
// matter.
package dlm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gridwatt/hubctl/internal/node"
	"github.com/gridwatt/hubctl/pkg/broker"
	"github.com/gridwatt/hubctl/pkg/log"
	"github.com/gridwatt/hubctl/pkg/model"
	"github.com/gridwatt/hubctl/pkg/policy"
)

// NotificationEpsilonKW is the minimum |delta| that triggers a
// DLMNotification (spec.md section 3/4.5 and invariant I5).
const NotificationEpsilonKW = 0.1

// NodeRegistry is the subset of internal/hub.Hub the DLM service needs: a
// read-only view of node resources, obtained through a getter rather than
// owned (spec.md section 3: "the DLM Service reads (not owns) the node set
// through a getter callback supplied by the Hub").
type NodeRegistry interface {
	Nodes() []*node.Resource
}

// Service runs one hub's DLM loop.
type Service struct {
	hubID      string
	capacityKW float64
	registry   NodeRegistry
	client     broker.Client
	events     log.Logger
	policy     policy.Policy
	policyName string
	interval   time.Duration

	mu       sync.Mutex
	lastPub  map[string]float64 // node id -> last published power_limit_kw
	triggerC chan string        // event-driven trigger (spec.md section 4.5: "Event: immediately after...")

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config configures a Service.
type Config struct {
	HubID      string
	CapacityKW float64
	PolicyName string
	Interval   time.Duration // default 5s
}

// New builds a DLM Service bound to registry (typically an internal/hub.Hub).
func New(cfg Config, registry NodeRegistry, client broker.Client, events log.Logger) (*Service, error) {
	pol, err := policy.ByName(cfg.PolicyName)
	if err != nil {
		return nil, fmt.Errorf("dlm: %w", err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if events == nil {
		events = log.NoopLogger{}
	}
	return &Service{
		hubID:      cfg.HubID,
		capacityKW: cfg.CapacityKW,
		registry:   registry,
		client:     client,
		events:     events,
		policy:     pol,
		policyName: cfg.PolicyName,
		interval:   cfg.Interval,
		lastPub:    make(map[string]float64),
		triggerC:   make(chan string, 64),
	}, nil
}

// Start launches the periodic+event-driven tick loop (spec.md section 5:
// "DLM periodic loop (one per hub): waits dlm_interval or wakes on an
// explicit trigger").
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop halts the tick loop and waits for it to exit.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Trigger requests an out-of-cycle tick, fired after a vehicle-request
// binding changes a node's occupancy/vehicle fields (spec.md section 4.5).
// Non-blocking: a full trigger channel just means a tick is already
// pending.
func (s *Service) Trigger(nodeID string) {
	select {
	case s.triggerC <- nodeID:
	default:
	}
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Apply("periodic")
		case nodeID := <-s.triggerC:
			s.Apply("vehicle_request:" + nodeID)
		}
	}
}

// Apply runs exactly one DLM pass: snapshot, policy.compute, apply to each
// node, and publish notifications for limits that moved by more than
// NotificationEpsilonKW (spec.md section 4.5 steps 1-3). It can be called
// synchronously (intake step 6: "Synchronously call the DLM apply pass").
func (s *Service) Apply(triggerReason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resources := s.registry.Nodes()
	snapshot := make([]model.Snapshot, 0, len(resources))
	byID := make(map[string]*node.Resource, len(resources))
	var totalGridLoad float64
	for _, r := range resources {
		snap := r.Node().TakeSnapshot()
		snapshot = append(snapshot, snap)
		byID[snap.NodeID] = r
		totalGridLoad += snap.PowerKW
	}

	allocations := s.policy(snapshot, s.capacityKW)

	var nodeIDs []string
	var allocatedKW []float64
	var notified []bool

	for _, alloc := range allocations {
		r, ok := byID[alloc.NodeID]
		if !ok {
			continue
		}
		clamped := r.ApplyPowerLimit(alloc.AllocatedPowerKW)

		previous, hadPrevious := s.lastPub[alloc.NodeID]
		delta := clamped - previous
		if delta < 0 {
			delta = -delta
		}
		shouldNotify := !hadPrevious || delta > NotificationEpsilonKW

		nodeIDs = append(nodeIDs, alloc.NodeID)
		allocatedKW = append(allocatedKW, clamped)
		notified = append(notified, shouldNotify)

		if shouldNotify {
			originalLimit := previous
			if !hadPrevious {
				originalLimit = clamped
			}
			s.publishNotification(alloc.NodeID, alloc.Reason, originalLimit, clamped, totalGridLoad)
			s.lastPub[alloc.NodeID] = clamped
		}
	}

	s.events.Log(log.Event{
		Timestamp: time.Now(),
		HubID:     s.hubID,
		Category:  log.CategoryDLMApply,
		DLMApply: &log.DLMApplyEvent{
			Policy:        s.policyName,
			TriggerReason: triggerReason,
			NodeIDs:       nodeIDs,
			AllocatedKW:   allocatedKW,
			Notified:      notified,
			TotalGridLoad: totalGridLoad,
		},
	})
}

// publishNotification emits one DLMNotification. This bypasses the
// publish.Dispatcher getter model deliberately: a notification carries
// the specific delta that triggered it, not a resource's current
// snapshot, so there is nothing for a ContentGetter to re-derive.
// allocReason is the policy's own per-allocation explanation (e.g.
// "Priority-based (SoC: 42%, 3 active)"), not the tick's periodic/event-
// driven cause — the latter is recorded separately in the DLMApplyEvent
// audit log.
func (s *Service) publishNotification(nodeID, allocReason string, originalLimit, newLimit, totalGridLoad float64) {
	n := model.DLMNotification{
		TriggerReason:  allocReason,
		OriginalLimit:  originalLimit,
		NewLimit:       newLimit,
		AffectedNodeID: nodeID,
		TotalGridLoad:  totalGridLoad,
		Timestamp:      model.Now(),
	}
	payload, err := json.Marshal(n)
	if err != nil {
		s.logError("dlm", err)
		return
	}
	if err := s.client.Publish(broker.DLMEventsTopic(s.hubID), payload, broker.QoS1, false); err != nil {
		s.logError("dlm", err)
		return
	}
	s.events.Log(log.Event{
		Timestamp: time.Now(),
		HubID:     s.hubID,
		NodeID:    nodeID,
		Category:  log.CategoryPublish,
		Publish: &log.PublishEvent{
			Topic:  broker.DLMEventsTopic(s.hubID),
			QoS:    uint8(broker.QoS1),
			Retain: false,
			Bytes:  len(payload),
		},
	})
}

func (s *Service) logError(source string, err error) {
	s.events.Log(log.Event{
		Timestamp: time.Now(),
		HubID:     s.hubID,
		Category:  log.CategoryError,
		Error:     &log.ErrorEvent{Source: source, Message: err.Error()},
	})
}
