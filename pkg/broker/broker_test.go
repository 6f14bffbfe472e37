package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchWildcard(t *testing.T) {
	assert.True(t, Match("iot/hubs/+/nodes/+/status", "iot/hubs/hub-1/nodes/A/status"))
	assert.False(t, Match("iot/hubs/+/nodes/+/status", "iot/hubs/hub-1/nodes/A/telemetry"))
	assert.False(t, Match("iot/hubs/+/status", "iot/hubs/hub-1/nodes/A/status"))
}

func TestTopicBuilders(t *testing.T) {
	assert.Equal(t, "iot/hubs/hub-1/info", HubInfoTopic("hub-1"))
	assert.Equal(t, "iot/hubs/hub-1/nodes/A/telemetry", NodeTelemetryTopic("hub-1", "A"))
	assert.Equal(t, "iot/vehicles/V1/telemetry", VehicleTelemetryTopic("V1"))
}

func TestMemoryBrokerRetainDeliveredOnSubscribe(t *testing.T) {
	b := NewMemoryBroker()
	pub := b.Client()
	require.NoError(t, pub.Connect(t.Context()))
	require.NoError(t, pub.Publish("iot/hubs/hub-1/info", []byte(`{"hub_id":"hub-1"}`), QoS1, true))

	sub := b.Client()
	require.NoError(t, sub.Connect(t.Context()))

	var got []Message
	require.NoError(t, sub.Subscribe("iot/hubs/hub-1/info", func(m Message) {
		got = append(got, m)
	}))

	require.Len(t, got, 1)
	assert.True(t, got[0].Retain)
}

func TestMemoryBrokerWildcardFanout(t *testing.T) {
	b := NewMemoryBroker()
	c := b.Client()
	require.NoError(t, c.Connect(t.Context()))

	var received []string
	require.NoError(t, c.Subscribe("iot/hubs/hub-1/nodes/+/telemetry", func(m Message) {
		received = append(received, m.Topic)
	}))

	require.NoError(t, c.Publish("iot/hubs/hub-1/nodes/A/telemetry", []byte("x"), QoS0, false))
	require.NoError(t, c.Publish("iot/hubs/hub-1/nodes/B/telemetry", []byte("y"), QoS0, false))
	require.NoError(t, c.Publish("iot/hubs/hub-1/status", []byte("z"), QoS1, false))

	assert.ElementsMatch(t, []string{
		"iot/hubs/hub-1/nodes/A/telemetry",
		"iot/hubs/hub-1/nodes/B/telemetry",
	}, received)
}

func TestMemoryBrokerUnsubscribeIdempotent(t *testing.T) {
	b := NewMemoryBroker()
	c := b.Client()
	require.NoError(t, c.Connect(t.Context()))
	require.NoError(t, c.Subscribe("a/b", func(Message) {}))
	require.NoError(t, c.Unsubscribe("a/b"))
	require.NoError(t, c.Unsubscribe("a/b")) // no-op, must not error
}

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff()
	base := b.Current()
	assert.Equal(t, InitialBackoff, base)
	_ = b.Next()
	assert.Equal(t, 2*InitialBackoff, b.Current())
}

func TestReconnectManagerConnectSuccess(t *testing.T) {
	calls := 0
	m := NewManager(func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, m.Connect(t.Context()))
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, 1, calls)
	m.Close()
}

func TestReconnectManagerConnectFailure(t *testing.T) {
	m := NewManager(func(ctx context.Context) error {
		return errors.New("dial failed")
	})
	err := m.Connect(t.Context())
	assert.Error(t, err)
	assert.Equal(t, StateDisconnected, m.State())
	m.Close()
}
