// Package policy implements the DLM's fairness strategies as pure
// functions (design note 9: "policy as strategy -> pure function value" —
// a policy carries no state beyond the grid capacity passed at call time).
package policy

import (
	"fmt"

	"github.com/gridwatt/hubctl/pkg/model"
)

// Policy computes a power allocation for every node it chooses to act on,
// given a consistent snapshot of all nodes and the hub's grid capacity.
type Policy func(snapshot []model.Snapshot, capacityKW float64) []model.PowerAllocation

// chargingNodes filters snapshot to occupied nodes currently charging —
// the set `C` of spec.md section 4.5.1/4.5.2.
func chargingNodes(snapshot []model.Snapshot) []model.Snapshot {
	var c []model.Snapshot
	for _, s := range snapshot {
		if s.IsOccupied && s.State == model.NodeCharging {
			c = append(c, s)
		}
	}
	return c
}

// EqualShare implements spec.md section 4.5.1: split capacity evenly
// across charging nodes, capped per-node at max_power_kw, and leaves every
// non-charging node untouched. Surplus from a capped node is not
// redistributed within one pass.
func EqualShare(snapshot []model.Snapshot, capacityKW float64) []model.PowerAllocation {
	c := chargingNodes(snapshot)
	if len(c) == 0 {
		return nil
	}
	share := capacityKW / float64(len(c))
	allocations := make([]model.PowerAllocation, 0, len(c))
	for _, n := range c {
		allocations = append(allocations, model.PowerAllocation{
			NodeID:           n.NodeID,
			AllocatedPowerKW: min(share, n.MaxPowerKW),
			Reason:           "equal_share",
		})
	}
	return allocations
}

// defaultSoC is used when a node's state-of-charge is unknown.
const defaultSoC = 50

// Priority implements spec.md section 4.5.2: each charging node's share is
// weighted by max(1, 100 - soc), with unknown SoC defaulting to 50, so
// vehicles closer to empty receive a greater share.
func Priority(snapshot []model.Snapshot, capacityKW float64) []model.PowerAllocation {
	c := chargingNodes(snapshot)
	if len(c) == 0 {
		return nil
	}

	weights := make([]float64, len(c))
	socs := make([]int, len(c))
	var total float64
	for i, n := range c {
		soc := defaultSoC
		if n.HasSoC {
			soc = n.VehicleSoC
		}
		socs[i] = soc
		w := float64(max(1, 100-soc))
		weights[i] = w
		total += w
	}

	allocations := make([]model.PowerAllocation, 0, len(c))
	for i, n := range c {
		share := (weights[i] / total) * capacityKW
		allocations = append(allocations, model.PowerAllocation{
			NodeID:           n.NodeID,
			AllocatedPowerKW: min(share, n.MaxPowerKW),
			Reason:           fmt.Sprintf("Priority-based (SoC: %d%%, %d active)", socs[i], len(c)),
		})
	}
	return allocations
}

// ByName resolves a config string ("equal_share" | "priority") to a
// Policy, or reports an error for anything else.
func ByName(name string) (Policy, error) {
	switch name {
	case "equal_share":
		return EqualShare, nil
	case "priority":
		return Priority, nil
	default:
		return nil, fmt.Errorf("policy: unknown policy %q", name)
	}
}
