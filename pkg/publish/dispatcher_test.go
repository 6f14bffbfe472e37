package publish

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatt/hubctl/pkg/broker"
	"github.com/gridwatt/hubctl/pkg/log"
)

type sample struct {
	Value int `json:"value"`
}

func newTestDispatcher(t *testing.T) (*Dispatcher, broker.Client) {
	t.Helper()
	b := broker.NewMemoryBroker()
	c := b.Client()
	require.NoError(t, c.Connect(t.Context()))
	return NewDispatcher(c, log.NoopLogger{}), c
}

func TestNotifyPublishesGetterContent(t *testing.T) {
	d, _ := newTestDispatcher(t)
	calls := 0
	d.Register("node-A", Status, Listener{
		Topic:  "iot/hubs/h1/nodes/node-A/status",
		QoS:    broker.QoS1,
		Retain: false,
		Get: func() (any, error) {
			calls++
			return sample{Value: 42}, nil
		},
	})

	require.NoError(t, d.Notify("node-A", Status))
	assert.Equal(t, 1, calls)
}

func TestNotifyDeliversToSubscriber(t *testing.T) {
	b := broker.NewMemoryBroker()
	pub := b.Client()
	require.NoError(t, pub.Connect(t.Context()))
	d := NewDispatcher(pub, log.NoopLogger{})

	d.Register("node-A", Info, Listener{
		Topic:  "iot/hubs/h1/nodes/node-A/info",
		QoS:    broker.QoS1,
		Retain: true,
		Get:    func() (any, error) { return sample{Value: 7}, nil },
	})

	var got []byte
	sub := b.Client()
	require.NoError(t, sub.Connect(t.Context()))
	require.NoError(t, sub.Subscribe("iot/hubs/h1/nodes/node-A/info", func(m broker.Message) {
		got = m.Payload
	}))

	require.NoError(t, d.Notify("node-A", Info))
	require.NotNil(t, got)
	var s sample
	require.NoError(t, json.Unmarshal(got, &s))
	assert.Equal(t, 7, s.Value)
}

func TestNotifyUnknownListenerErrors(t *testing.T) {
	d, _ := newTestDispatcher(t)
	err := d.Notify("node-missing", Telemetry)
	assert.Error(t, err)
}

func TestNotifyGetterErrorPropagates(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register("node-A", Telemetry, Listener{
		Topic: "x",
		Get:   func() (any, error) { return nil, errors.New("sensor offline") },
	})
	err := d.Notify("node-A", Telemetry)
	assert.ErrorContains(t, err, "sensor offline")
}

func TestUnregisterRemovesListener(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register("node-A", Status, Listener{Topic: "x", Get: func() (any, error) { return sample{}, nil }})
	d.Unregister("node-A", Status)
	assert.Error(t, d.Notify("node-A", Status))
	// idempotent
	d.Unregister("node-A", Status)
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "info", Info.String())
	assert.Equal(t, "status", Status.String())
	assert.Equal(t, "telemetry", Telemetry.String())
}
