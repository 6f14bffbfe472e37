package main

import (
	"fmt"
	"io"

	"github.com/gridwatt/hubctl/pkg/log"
)

// formatEvent writes a human-readable line (and indented detail line) for
// event, following the teacher's cmd/mash-log view header-plus-detail
// layout ("<timestamp> [ids] Category\n  detail").
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z")
	fmt.Fprintf(w, "%s [hub:%s node:%s] %s\n", ts, event.HubID, event.NodeID, event.Category)

	switch {
	case event.StateChange != nil:
		sc := event.StateChange
		fmt.Fprintf(w, "  %s: %s -> %s (%s)\n", sc.Entity, sc.OldState, sc.NewState, sc.Reason)
	case event.DLMApply != nil:
		d := event.DLMApply
		fmt.Fprintf(w, "  policy=%s trigger=%s nodes=%v allocated_kw=%v notified=%v total_grid_load=%.2f\n",
			d.Policy, d.TriggerReason, d.NodeIDs, d.AllocatedKW, d.Notified, d.TotalGridLoad)
	case event.Publish != nil:
		p := event.Publish
		fmt.Fprintf(w, "  topic=%s qos=%d retain=%v bytes=%d\n", p.Topic, p.QoS, p.Retain, p.Bytes)
	case event.Error != nil:
		e := event.Error
		fmt.Fprintf(w, "  source=%s message=%s\n", e.Source, e.Message)
	}
}
