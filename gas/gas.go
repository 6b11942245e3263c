// Package gas implements optional metering for the executor: a cost
// table consulted once per instruction and once per memory.grow, and a
// running counter that traps the invocation when it is exhausted.
package gas

import (
	"github.com/wasmforge/wasmcore/trap"
	"github.com/wasmforge/wasmcore/wasm/opcode"
)

// Gas tracks consumption against a budget for one invocation.
type Gas struct {
	Used  uint64
	Limit uint64
}

// Charge adds cost to Used and traps with HostTrap if doing so would
// exceed Limit (metering is an engine-level concern, not part of the
// Wasm trap taxonomy, so it is reported the same way a host failure
// is).
func (g *Gas) Charge(cost uint64) *trap.Trap {
	if g.Limit > 0 && g.Used+cost > g.Limit {
		g.Used = g.Limit
		return trap.Newf(trap.HostTrap, "out of gas")
	}
	g.Used += cost
	return nil
}

// Policy assigns a cost to each instruction and to growing memory by n
// pages, so embedders can meter execution without the executor itself
// knowing about pricing.
type Policy interface {
	CostForOp(op opcode.Opcode) uint64
	CostForGrow(pages uint32) uint64
}

// FreePolicy charges nothing; metering is effectively disabled.
type FreePolicy struct{}

func (FreePolicy) CostForOp(op opcode.Opcode) uint64   { return 0 }
func (FreePolicy) CostForGrow(pages uint32) uint64     { return 0 }

// FlatPolicy charges one unit per instruction and PerPage units per
// grown page (one unit per page when PerPage is zero), a simple metering scheme suitable for tests and for
// embedders that only want a coarse ceiling on runaway execution.
type FlatPolicy struct {
	PerPage uint64
}

func (FlatPolicy) CostForOp(op opcode.Opcode) uint64 { return 1 }
func (p FlatPolicy) CostForGrow(pages uint32) uint64 {
	if p.PerPage == 0 {
		return uint64(pages)
	}
	return uint64(pages) * p.PerPage
}
