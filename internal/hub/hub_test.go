package hub

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatt/hubctl/internal/node"
	"github.com/gridwatt/hubctl/pkg/broker"
	"github.com/gridwatt/hubctl/pkg/hal"
	"github.com/gridwatt/hubctl/pkg/log"
	"github.com/gridwatt/hubctl/pkg/model"
)

func testHubConfig() model.HubConfig {
	return model.HubConfig{
		HubID:             "hub-1",
		Location:          model.Location{Latitude: 37.4, Longitude: -122.1, Altitude: 10},
		MaxGridCapacityKW: 60,
		FirmwareVersion:   "1.0.0",
		IPAddress:         "10.0.0.5",
	}
}

func newTestHub(t *testing.T) (*Hub, broker.Client, *broker.MemoryBroker) {
	t.Helper()
	b := broker.NewMemoryBroker()
	c := b.Client()
	require.NoError(t, c.Connect(t.Context()))

	h, err := New(testHubConfig(), c, log.NoopLogger{})
	require.NoError(t, err)
	return h, c, b
}

func TestAddNodeRegistersListeners(t *testing.T) {
	h, _, _ := newTestHub(t)
	r, err := h.AddNode(NodeSpec{NodeID: "A", MaxPowerKW: 22}, hal.NewSimPowerSensor(rand.NewSource(1)), hal.NewSimProximitySensor(rand.NewSource(2)), hal.NewSimActuator())
	require.NoError(t, err)
	assert.NotNil(t, r)

	got, ok := h.Node("A")
	assert.True(t, ok)
	assert.Equal(t, r, got)
}

func TestStartPublishesRetainedInfoAndStatus(t *testing.T) {
	h, _, b := newTestHub(t)
	_, err := h.AddNode(NodeSpec{NodeID: "A", MaxPowerKW: 22}, hal.NewSimPowerSensor(rand.NewSource(1)), hal.NewSimProximitySensor(rand.NewSource(2)), hal.NewSimActuator())
	require.NoError(t, err)

	require.NoError(t, h.Start(t.Context()))
	defer h.Stop()

	sub := b.Client()
	require.NoError(t, sub.Connect(t.Context()))

	var gotHubInfo, gotNodeInfo bool
	require.NoError(t, sub.Subscribe(broker.HubInfoTopic("hub-1"), func(m broker.Message) {
		gotHubInfo = true
		assert.True(t, m.Retain)
	}))
	require.NoError(t, sub.Subscribe(broker.NodeInfoTopic("hub-1", "A"), func(m broker.Message) {
		gotNodeInfo = true
		assert.True(t, m.Retain)
	}))

	assert.True(t, gotHubInfo)
	assert.True(t, gotNodeInfo)
	assert.Equal(t, model.HubOnline, h.Model().State())
}

func TestStopTransitionsHubOffline(t *testing.T) {
	h, _, _ := newTestHub(t)
	require.NoError(t, h.Start(t.Context()))
	h.Stop()
	assert.Equal(t, model.HubOffline, h.Model().State())
}

func TestNodesReturnsAllAddedNodes(t *testing.T) {
	h, _, _ := newTestHub(t)
	_, err := h.AddNode(NodeSpec{NodeID: "A", MaxPowerKW: 22}, hal.NewSimPowerSensor(rand.NewSource(1)), hal.NewSimProximitySensor(rand.NewSource(2)), hal.NewSimActuator())
	require.NoError(t, err)
	_, err = h.AddNode(NodeSpec{NodeID: "B", MaxPowerKW: 22}, hal.NewSimPowerSensor(rand.NewSource(3)), hal.NewSimProximitySensor(rand.NewSource(4)), hal.NewSimActuator())
	require.NoError(t, err)

	all := h.Nodes()
	assert.Len(t, all, 2)

	var _ *node.Resource = all[0] // assert the concrete type returned
}
