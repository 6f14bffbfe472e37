package dlm

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatt/hubctl/internal/node"
	"github.com/gridwatt/hubctl/pkg/broker"
	"github.com/gridwatt/hubctl/pkg/hal"
	"github.com/gridwatt/hubctl/pkg/log"
	"github.com/gridwatt/hubctl/pkg/model"
	"github.com/gridwatt/hubctl/pkg/publish"
)

type fakeRegistry struct {
	resources []*node.Resource
}

func (f *fakeRegistry) Nodes() []*node.Resource { return f.resources }

func newTestNode(t *testing.T, id string, maxKW float64, client broker.Client) *node.Resource {
	t.Helper()
	n, err := model.NewNode(id, "hub-1", maxKW)
	require.NoError(t, err)
	d := publish.NewDispatcher(client, log.NoopLogger{})
	r := node.New(n, hal.NewSimPowerSensor(rand.NewSource(1)), hal.NewSimProximitySensor(rand.NewSource(2)), hal.NewSimActuator(), d, log.NoopLogger{}, node.Config{})
	d.Register(id, publish.Status, publish.Listener{Topic: "status/" + id, Get: r.GetStatus})
	return r
}

func newTestService(t *testing.T, capacity float64, policyName string, registry NodeRegistry, client broker.Client) *Service {
	t.Helper()
	svc, err := New(Config{HubID: "hub-1", CapacityKW: capacity, PolicyName: policyName}, registry, client, log.NoopLogger{})
	require.NoError(t, err)
	return svc
}

func TestApplyEqualShareNotifiesOnFirstPass(t *testing.T) {
	b := broker.NewMemoryBroker()
	c := b.Client()
	require.NoError(t, c.Connect(t.Context()))

	r := newTestNode(t, "A", 22, c)
	r.Node().SetOccupied(true)
	require.NoError(t, r.RequestCharging("veh-1", 50))

	var notifications []model.DLMNotification
	sub := b.Client()
	require.NoError(t, sub.Connect(t.Context()))
	require.NoError(t, sub.Subscribe(broker.DLMEventsTopic("hub-1"), func(m broker.Message) {
		var n model.DLMNotification
		require.NoError(t, json.Unmarshal(m.Payload, &n))
		notifications = append(notifications, n)
	}))

	svc := newTestService(t, 60, "equal_share", &fakeRegistry{resources: []*node.Resource{r}}, c)
	svc.Apply("test")

	require.Len(t, notifications, 1)
	assert.Equal(t, "A", notifications[0].AffectedNodeID)
	assert.InDelta(t, 22.0, notifications[0].NewLimit, 0.001)
	assert.InDelta(t, 22.0, notifications[0].OriginalLimit, 0.001) // first pass: original == new
}

func TestApplyDoesNotRenotifyBelowEpsilon(t *testing.T) {
	b := broker.NewMemoryBroker()
	c := b.Client()
	require.NoError(t, c.Connect(t.Context()))

	r := newTestNode(t, "A", 22, c)
	r.Node().SetOccupied(true)
	require.NoError(t, r.RequestCharging("veh-1", 50))

	count := 0
	sub := b.Client()
	require.NoError(t, sub.Connect(t.Context()))
	require.NoError(t, sub.Subscribe(broker.DLMEventsTopic("hub-1"), func(broker.Message) { count++ }))

	svc := newTestService(t, 60, "equal_share", &fakeRegistry{resources: []*node.Resource{r}}, c)
	svc.Apply("t1")
	svc.Apply("t2") // same allocation, no new notification
	assert.Equal(t, 1, count)
}

func TestApplyCapacitySqueezeNotifiesBothNodes(t *testing.T) {
	b := broker.NewMemoryBroker()
	c := b.Client()
	require.NoError(t, c.Connect(t.Context()))

	a := newTestNode(t, "A", 22, c)
	a.Node().SetOccupied(true)
	require.NoError(t, a.RequestCharging("veh-1", 50))
	bNode := newTestNode(t, "B", 22, c)
	bNode.Node().SetOccupied(true)
	require.NoError(t, bNode.RequestCharging("veh-2", 50))

	var notifications []model.DLMNotification
	sub := b.Client()
	require.NoError(t, sub.Connect(t.Context()))
	require.NoError(t, sub.Subscribe(broker.DLMEventsTopic("hub-1"), func(m broker.Message) {
		var n model.DLMNotification
		require.NoError(t, json.Unmarshal(m.Payload, &n))
		notifications = append(notifications, n)
	}))

	svc := newTestService(t, 44, "equal_share", &fakeRegistry{resources: []*node.Resource{a, bNode}}, c)
	svc.Apply("first") // 22 each, first pass
	notifications = nil
	svc.Apply("squeeze")

	// Capacity unchanged at 44 with two charging nodes still yields 22
	// each, so a true squeeze requires tightening capacity.
	assert.Empty(t, notifications)

	svc2 := newTestService(t, 30, "equal_share", &fakeRegistry{resources: []*node.Resource{a, bNode}}, c)
	svc2.lastPub = svc.lastPub
	svc2.Apply("squeeze2")
	require.Len(t, notifications, 2)
	for _, n := range notifications {
		assert.InDelta(t, 15.0, n.NewLimit, 0.001)
	}
}

func TestApplyEmptyRegistryPublishesNothing(t *testing.T) {
	b := broker.NewMemoryBroker()
	c := b.Client()
	require.NoError(t, c.Connect(t.Context()))

	count := 0
	sub := b.Client()
	require.NoError(t, sub.Connect(t.Context()))
	require.NoError(t, sub.Subscribe(broker.DLMEventsTopic("hub-1"), func(broker.Message) { count++ }))

	svc := newTestService(t, 60, "equal_share", &fakeRegistry{}, c)
	svc.Apply("empty")
	assert.Zero(t, count)
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	b := broker.NewMemoryBroker()
	c := b.Client()
	_, err := New(Config{HubID: "hub-1", CapacityKW: 10, PolicyName: "bogus"}, &fakeRegistry{}, c, log.NoopLogger{})
	assert.Error(t, err)
}
