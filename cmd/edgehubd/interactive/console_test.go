package interactive

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dlmpkg "github.com/gridwatt/hubctl/internal/dlm"
	"github.com/gridwatt/hubctl/internal/hub"
	"github.com/gridwatt/hubctl/pkg/broker"
	"github.com/gridwatt/hubctl/pkg/hal"
	"github.com/gridwatt/hubctl/pkg/log"
	"github.com/gridwatt/hubctl/pkg/model"
)

func newTestConsole(t *testing.T) *Console {
	t.Helper()
	b := broker.NewMemoryBroker()
	c := b.Client()
	require.NoError(t, c.Connect(t.Context()))

	h, err := hub.New(model.HubConfig{
		HubID: "hub-1", Location: model.Location{Latitude: 1, Longitude: 1, Altitude: 1},
		MaxGridCapacityKW: 60, FirmwareVersion: "1.0.0", IPAddress: "10.0.0.5",
	}, c, log.NoopLogger{})
	require.NoError(t, err)
	_, err = h.AddNode(hub.NodeSpec{NodeID: "A", MaxPowerKW: 22}, hal.NewSimPowerSensor(rand.NewSource(1)), hal.NewSimProximitySensor(rand.NewSource(2)), hal.NewSimActuator())
	require.NoError(t, err)
	require.NoError(t, h.Start(t.Context()))

	svc, err := dlmpkg.New(dlmpkg.Config{HubID: "hub-1", CapacityKW: 60, PolicyName: "equal_share"}, h, c, log.NoopLogger{})
	require.NoError(t, err)

	return New(h, svc, zerolog.Nop())
}

func TestDispatchNodesListsConfiguredNodes(t *testing.T) {
	c := newTestConsole(t)
	var buf bytes.Buffer
	sig := c.dispatch(&buf, "nodes")
	assert.Equal(t, continueLoop, sig)
	assert.Contains(t, buf.String(), "A (max 22.0 kW)")
}

func TestDispatchStatusUnknownNode(t *testing.T) {
	c := newTestConsole(t)
	var buf bytes.Buffer
	c.dispatch(&buf, "status missing")
	assert.Contains(t, buf.String(), "no such node")
}

func TestDispatchRequestAndStatus(t *testing.T) {
	c := newTestConsole(t)
	var buf bytes.Buffer
	c.dispatch(&buf, "request A veh-1 40")
	assert.Contains(t, buf.String(), "charging session started")

	buf.Reset()
	c.dispatch(&buf, "status A")
	assert.Contains(t, buf.String(), "state=charging")
}

func TestDispatchTelemetryEndsSession(t *testing.T) {
	c := newTestConsole(t)
	var buf bytes.Buffer
	c.dispatch(&buf, "request A veh-1 40")
	buf.Reset()
	c.dispatch(&buf, "telemetry A 90 false")
	assert.Contains(t, buf.String(), "session ended")
}

func TestDispatchTick(t *testing.T) {
	c := newTestConsole(t)
	var buf bytes.Buffer
	sig := c.dispatch(&buf, "tick")
	assert.Equal(t, continueLoop, sig)
	assert.Contains(t, buf.String(), "dlm apply pass complete")
}

func TestDispatchQuitStopsLoop(t *testing.T) {
	c := newTestConsole(t)
	var buf bytes.Buffer
	sig := c.dispatch(&buf, "quit")
	assert.Equal(t, stopLoop, sig)
	assert.Contains(t, buf.String(), "bye")
}

func TestDispatchUnknownCommand(t *testing.T) {
	c := newTestConsole(t)
	var buf bytes.Buffer
	c.dispatch(&buf, "bogus")
	assert.Contains(t, buf.String(), "unknown command")
}

func TestDispatchEmptyLineIsNoop(t *testing.T) {
	c := newTestConsole(t)
	var buf bytes.Buffer
	sig := c.dispatch(&buf, "   ")
	assert.Equal(t, continueLoop, sig)
	assert.Empty(t, buf.String())
}
