package intake

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dlmpkg "github.com/gridwatt/hubctl/internal/dlm"
	"github.com/gridwatt/hubctl/internal/hub"
	"github.com/gridwatt/hubctl/internal/node"
	"github.com/gridwatt/hubctl/pkg/broker"
	"github.com/gridwatt/hubctl/pkg/hal"
	"github.com/gridwatt/hubctl/pkg/log"
	"github.com/gridwatt/hubctl/pkg/model"
)

func testHubConfig() model.HubConfig {
	return model.HubConfig{
		HubID:             "hub-1",
		Location:          model.Location{Latitude: 1, Longitude: 1, Altitude: 1},
		MaxGridCapacityKW: 60,
		FirmwareVersion:   "1.0.0",
		IPAddress:         "10.0.0.5",
	}
}

func newTestIntake(t *testing.T) (*Intake, *hub.Hub, broker.Client, *broker.MemoryBroker) {
	t.Helper()
	b := broker.NewMemoryBroker()
	c := b.Client()
	require.NoError(t, c.Connect(t.Context()))

	h, err := hub.New(testHubConfig(), c, log.NoopLogger{})
	require.NoError(t, err)
	_, err = h.AddNode(hub.NodeSpec{NodeID: "A", MaxPowerKW: 22}, hal.NewSimPowerSensor(rand.NewSource(1)), hal.NewSimProximitySensor(rand.NewSource(2)), hal.NewSimActuator())
	require.NoError(t, err)
	require.NoError(t, h.Start(t.Context()))

	svc, err := dlmpkg.New(dlmpkg.Config{HubID: "hub-1", CapacityKW: 60, PolicyName: "equal_share"}, h, c, log.NoopLogger{})
	require.NoError(t, err)

	in := New(h, c, svc, log.NoopLogger{})
	require.NoError(t, in.Start())
	return in, h, c, b
}

func publish(t *testing.T, c broker.Client, topic string, v any) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, c.Publish(topic, payload, broker.QoS1, false))
}

func TestHandleRequestBindsAndStartsCharging(t *testing.T) {
	in, h, c, _ := newTestIntake(t)
	_ = in

	r, _ := h.Node("A")
	r.Node().SetOccupied(true)

	publish(t, c, broker.RequestsTopic("hub-1"), model.VehicleRequest{
		VehicleID: "veh-1", NodeID: "A", SoCPercent: 40, Timestamp: model.Now(),
	})

	assert.Equal(t, model.NodeCharging, r.Node().State())
	vid, ok := r.Node().VehicleID()
	assert.True(t, ok)
	assert.Equal(t, "veh-1", vid)
}

func TestHandleRequestAssertsOccupancyInSimulationMode(t *testing.T) {
	in, h, c, _ := newTestIntake(t)
	_ = in

	r, _ := h.Node("A")
	require.False(t, r.Node().IsOccupied(), "precondition: node starts unoccupied")

	publish(t, c, broker.RequestsTopic("hub-1"), model.VehicleRequest{
		VehicleID: "veh-1", NodeID: "A", SoCPercent: 40, Timestamp: model.Now(),
	})

	assert.Equal(t, model.NodeCharging, r.Node().State())
	assert.True(t, r.Node().IsOccupied())
}

// farProximitySensor always reports a vehicle well outside the occupancy
// threshold, for deterministic hardware-mode rejection tests.
type farProximitySensor struct{}

func (farProximitySensor) Measure() error { return nil }
func (farProximitySensor) Get() hal.ProximitySample {
	return hal.ProximitySample{DistanceCM: 200}
}

func TestHandleRequestRejectedInHardwareModeWhenUnoccupied(t *testing.T) {
	b := broker.NewMemoryBroker()
	c := b.Client()
	require.NoError(t, c.Connect(t.Context()))

	h, err := hub.New(testHubConfig(), c, log.NoopLogger{})
	require.NoError(t, err)
	_, err = h.AddNode(hub.NodeSpec{NodeID: "A", MaxPowerKW: 22, TelemetryCfg: node.Config{HardwareMode: true}},
		hal.NewSimPowerSensor(rand.NewSource(1)), farProximitySensor{}, hal.NewSimActuator())
	require.NoError(t, err)
	require.NoError(t, h.Start(t.Context()))

	svc, err := dlmpkg.New(dlmpkg.Config{HubID: "hub-1", CapacityKW: 60, PolicyName: "equal_share"}, h, c, log.NoopLogger{})
	require.NoError(t, err)
	in := New(h, c, svc, log.NoopLogger{})
	require.NoError(t, in.Start())

	r, _ := h.Node("A")
	publish(t, c, broker.RequestsTopic("hub-1"), model.VehicleRequest{
		VehicleID: "veh-1", NodeID: "A", SoCPercent: 40, Timestamp: model.Now(),
	})

	assert.Equal(t, model.NodeIdle, r.Node().State())
	assert.False(t, r.Node().IsOccupied())
}

func TestHandleRequestDropsUnknownNode(t *testing.T) {
	_, h, c, _ := newTestIntake(t)
	publish(t, c, broker.RequestsTopic("hub-1"), model.VehicleRequest{
		VehicleID: "veh-1", NodeID: "missing", SoCPercent: 40, Timestamp: model.Now(),
	})
	_, ok := h.Node("missing")
	assert.False(t, ok)
}

func TestHandleRequestDropsMalformedPayload(t *testing.T) {
	_, h, c, _ := newTestIntake(t)
	require.NoError(t, c.Publish(broker.RequestsTopic("hub-1"), []byte("not json"), broker.QoS1, false))
	r, _ := h.Node("A")
	assert.Equal(t, model.NodeIdle, r.Node().State())
}

func TestVehicleTelemetryEndsSessionAndUnsubscribes(t *testing.T) {
	in, h, c, _ := newTestIntake(t)

	r, _ := h.Node("A")
	r.Node().SetOccupied(true)
	publish(t, c, broker.RequestsTopic("hub-1"), model.VehicleRequest{
		VehicleID: "veh-1", NodeID: "A", SoCPercent: 40, Timestamp: model.Now(),
	})
	require.Equal(t, model.NodeCharging, r.Node().State())

	publish(t, c, broker.VehicleTelemetryTopic("veh-1"), model.VehicleTelemetry{
		BatteryLevel: 95, IsCharging: false, Timestamp: model.Now(),
	})

	assert.Equal(t, model.NodeFull, r.Node().State())

	in.mu.Lock()
	_, stillSubscribed := in.sessionSubs["veh-1"]
	in.mu.Unlock()
	assert.False(t, stillSubscribed)
}

func TestStopRemovesSessionSubscriptions(t *testing.T) {
	in, h, c, _ := newTestIntake(t)
	r, _ := h.Node("A")
	r.Node().SetOccupied(true)
	publish(t, c, broker.RequestsTopic("hub-1"), model.VehicleRequest{
		VehicleID: "veh-1", NodeID: "A", SoCPercent: 40, Timestamp: model.Now(),
	})
	require.Len(t, in.sessionSubs, 1)

	in.Stop()
	assert.Empty(t, in.sessionSubs)
}
