package log

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent(nodeID string, cat Category) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		HubID:     "hub-1",
		NodeID:    nodeID,
		Category:  cat,
		StateChange: &StateChangeEvent{
			Entity:   "node",
			OldState: "idle",
			NewState: "charging",
		},
	}
}

func TestEncodeDecodeEventRoundTrip(t *testing.T) {
	ev := sampleEvent("A", CategoryStateChange)
	data, err := EncodeEvent(ev)
	require.NoError(t, err)

	decoded, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ev.HubID, decoded.HubID)
	assert.Equal(t, ev.NodeID, decoded.NodeID)
	require.NotNil(t, decoded.StateChange)
	assert.Equal(t, "charging", decoded.StateChange.NewState)
}

func TestFileLoggerWritesAndReaderFilters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.cbor")

	fl, err := NewFileLogger(path)
	require.NoError(t, err)

	fl.Log(sampleEvent("A", CategoryStateChange))
	fl.Log(sampleEvent("B", CategoryDLMApply))
	require.NoError(t, fl.Close())

	// Further logs after Close are silently ignored.
	fl.Log(sampleEvent("C", CategoryError))

	r, err := NewFilteredReader(path, Filter{NodeID: "B"})
	require.NoError(t, err)
	defer r.Close()

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "B", ev.NodeID)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestMultiLoggerFansOut(t *testing.T) {
	var a, b countingLogger
	m := NewMultiLogger(&a, &b)
	m.Log(sampleEvent("A", CategoryPublish))
	assert.Equal(t, 1, a.count)
	assert.Equal(t, 1, b.count)
}

type countingLogger struct{ count int }

func (c *countingLogger) Log(Event) { c.count++ }

func TestNoopLoggerDiscards(t *testing.T) {
	var n NoopLogger
	n.Log(sampleEvent("A", CategoryError)) // must not panic
}

func TestSlogAdapterDoesNotPanic(t *testing.T) {
	a := NewSlogAdapter(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	a.Log(sampleEvent("A", CategoryStateChange))
}
