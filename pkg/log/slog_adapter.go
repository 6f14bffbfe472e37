package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes audit events to an slog.Logger. Useful for a console
// tail of the event stream alongside the operational zerolog output.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}
	if event.HubID != "" {
		attrs = append(attrs, slog.String("hub_id", event.HubID))
	}
	if event.NodeID != "" {
		attrs = append(attrs, slog.String("node_id", event.NodeID))
	}
	if event.VehicleID != "" {
		attrs = append(attrs, slog.String("vehicle_id", event.VehicleID))
	}

	switch {
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.DLMApply != nil:
		attrs = append(attrs,
			slog.String("policy", event.DLMApply.Policy),
			slog.String("trigger", event.DLMApply.TriggerReason),
			slog.Int("nodes", len(event.DLMApply.NodeIDs)),
			slog.Float64("total_grid_load", event.DLMApply.TotalGridLoad),
		)
	case event.Publish != nil:
		attrs = append(attrs,
			slog.String("topic", event.Publish.Topic),
			slog.Int("qos", int(event.Publish.QoS)),
			slog.Bool("retain", event.Publish.Retain),
			slog.Int("bytes", event.Publish.Bytes),
		)
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_source", event.Error.Source),
			slog.String("error_msg", event.Error.Message),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "hub_event", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
