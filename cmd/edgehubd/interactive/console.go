// Package interactive implements the Edge Hub Controller's optional
// operator console (SPEC_FULL.md's supplemented operator-console feature):
// a readline-based command loop for inspecting hub/node state, forcing a
// DLM tick, or injecting a vehicle request/telemetry sample without a
// broker round trip. Debug-only; never required for correct operation.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"github.com/gridwatt/hubctl/internal/dlm"
	"github.com/gridwatt/hubctl/internal/hub"
	"github.com/gridwatt/hubctl/pkg/model"
)

// Console drives the operator command loop for one hub. It depends only on
// internal/hub and internal/dlm's exported surfaces, the same way
// cmd/mash-device/interactive's Device depends only on pkg/service.
type Console struct {
	hub *hub.Hub
	dlm *dlm.Service
	log zerolog.Logger
}

// New builds a Console bound to h and its DLM service.
func New(h *hub.Hub, dlmSvc *dlm.Service, log zerolog.Logger) *Console {
	return &Console{hub: h, dlm: dlmSvc, log: log}
}

// Run starts the readline command loop. It returns when ctx is cancelled,
// stdin is closed, or the operator types "quit" (which also cancels ctx,
// matching the teacher's interactive-quit-cancels-run shutdown path).
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	rl, err := readline.New(fmt.Sprintf("hub(%s)> ", c.hub.ID()))
	if err != nil {
		c.log.Error().Err(err).Msg("interactive console failed to start")
		return
	}
	defer rl.Close()

	w := rl.Stdout()
	fmt.Fprintln(w, "edgehubd operator console. Type 'help' for commands.")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return
		} else if err != nil {
			return
		}

		if c.dispatch(w, line) == stopLoop {
			cancel()
			return
		}
	}
}

type loopSignal int

const (
	continueLoop loopSignal = iota
	stopLoop
)

// dispatch parses and runs one command line against w, separated from Run
// so it can be exercised directly in tests without a real terminal.
func (c *Console) dispatch(w io.Writer, line string) loopSignal {
	line = strings.TrimSpace(line)
	if line == "" {
		return continueLoop
	}
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch strings.ToLower(cmd) {
	case "help", "?":
		c.printHelp(w)
	case "nodes":
		c.cmdNodes(w)
	case "status":
		c.cmdStatus(w, args)
	case "tick":
		c.cmdTick(w, args)
	case "request":
		c.cmdRequest(w, args)
	case "telemetry":
		c.cmdTelemetry(w, args)
	case "quit", "exit":
		fmt.Fprintln(w, "bye")
		return stopLoop
	default:
		fmt.Fprintf(w, "unknown command %q (try 'help')\n", cmd)
	}
	return continueLoop
}

func (c *Console) printHelp(w io.Writer) {
	fmt.Fprint(w, `commands:
  nodes                         list configured node ids
  status <node_id>              print a node's current state/telemetry
  tick [node_id]                force a DLM apply pass, optionally attributed to node_id
  request <node_id> <vehicle_id> <soc>   simulate a vehicle request
  telemetry <node_id> <soc> <is_charging>   simulate a vehicle telemetry sample
  quit                          exit the console and shut down the hub
`)
}

func (c *Console) cmdNodes(w io.Writer) {
	for _, r := range c.hub.Nodes() {
		fmt.Fprintf(w, "%s (max %.1f kW)\n", r.Node().ID(), r.Node().MaxPowerKW())
	}
}

func (c *Console) cmdStatus(w io.Writer, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(w, "usage: status <node_id>")
		return
	}
	r, ok := c.hub.Node(args[0])
	if !ok {
		fmt.Fprintf(w, "no such node %q\n", args[0])
		return
	}
	n := r.Node()
	fmt.Fprintf(w, "state=%s error_code=%d occupied=%v limit_kw=%.2f\n",
		n.State(), n.ErrorCode(), n.IsOccupied(), n.PowerLimitKW())
}

func (c *Console) cmdTick(w io.Writer, args []string) {
	reason := "console"
	if len(args) == 1 {
		reason = "console:" + args[0]
	}
	c.dlm.Apply(reason)
	fmt.Fprintln(w, "dlm apply pass complete")
}

func (c *Console) cmdRequest(w io.Writer, args []string) {
	if len(args) != 3 {
		fmt.Fprintln(w, "usage: request <node_id> <vehicle_id> <soc>")
		return
	}
	r, ok := c.hub.Node(args[0])
	if !ok {
		fmt.Fprintf(w, "no such node %q\n", args[0])
		return
	}
	soc, err := strconv.Atoi(args[2])
	if err != nil {
		fmt.Fprintln(w, "soc must be an integer 0-100")
		return
	}
	r.Node().SetOccupied(true)
	if err := r.RequestCharging(args[1], soc); err != nil {
		fmt.Fprintf(w, "rejected: %v\n", err)
		return
	}
	c.dlm.Apply("console:vehicle_request:" + args[0])
	fmt.Fprintln(w, "charging session started")
}

func (c *Console) cmdTelemetry(w io.Writer, args []string) {
	if len(args) != 3 {
		fmt.Fprintln(w, "usage: telemetry <node_id> <soc> <is_charging: true|false>")
		return
	}
	r, ok := c.hub.Node(args[0])
	if !ok {
		fmt.Fprintf(w, "no such node %q\n", args[0])
		return
	}
	soc, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintln(w, "soc must be an integer 0-100")
		return
	}
	isCharging, err := strconv.ParseBool(args[2])
	if err != nil {
		fmt.Fprintln(w, "is_charging must be true or false")
		return
	}
	result := r.OnVehicleTelemetry(model.VehicleTelemetry{
		BatteryLevel: soc,
		IsCharging:   isCharging,
		Timestamp:    model.Now(),
	})
	if result.SessionEnded {
		c.dlm.Apply("console:session_complete:" + args[0])
		fmt.Fprintln(w, "session ended")
		return
	}
	fmt.Fprintln(w, "telemetry applied")
}
