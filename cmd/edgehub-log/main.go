// Command edgehub-log views and summarizes the CBOR event log edgehubd
// writes when `--event-log-path` (or event_log_path) is set (SPEC_FULL.md's supplemented audit-log
// feature): every node/hub state transition, DLM apply pass, and publish.
//
// Usage:
//
//	edgehub-log view [--hub-id id] [--node-id id] [--category cat] <file>
//	edgehub-log stats <file>
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridwatt/hubctl/pkg/log"
)

func main() {
	root := &cobra.Command{
		Use:   "edgehub-log",
		Short: "View and summarize an edgehubd CBOR event log",
	}
	root.AddCommand(viewCmd(), statsCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func viewCmd() *cobra.Command {
	var hubID, nodeID, category string
	cmd := &cobra.Command{
		Use:   "view <file>",
		Short: "Print events in human-readable form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := log.Filter{HubID: hubID, NodeID: nodeID}
			if category != "" {
				cat, err := parseCategory(category)
				if err != nil {
					return err
				}
				filter.Category = &cat
			}
			r, err := log.NewFilteredReader(args[0], filter)
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer r.Close()

			for {
				event, err := r.Next()
				if err != nil {
					break
				}
				formatEvent(os.Stdout, event)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&hubID, "hub-id", "", "filter by hub id")
	cmd.Flags().StringVar(&nodeID, "node-id", "", "filter by node id")
	cmd.Flags().StringVar(&category, "category", "", "filter by category: state_change|dlm_apply|publish|error")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Print per-category event counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := log.NewReader(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer r.Close()

			counts := make(map[log.Category]int)
			total := 0
			for {
				event, err := r.Next()
				if err != nil {
					break
				}
				counts[event.Category]++
				total++
			}
			fmt.Printf("total: %d\n", total)
			for _, cat := range []log.Category{log.CategoryStateChange, log.CategoryDLMApply, log.CategoryPublish, log.CategoryError} {
				fmt.Printf("%-14s %d\n", cat.String()+":", counts[cat])
			}
			return nil
		},
	}
}

func parseCategory(s string) (log.Category, error) {
	switch s {
	case "state_change":
		return log.CategoryStateChange, nil
	case "dlm_apply":
		return log.CategoryDLMApply, nil
	case "publish":
		return log.CategoryPublish, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category %q", s)
	}
}
