package vm

import (
	"fmt"

	"github.com/wasmforge/wasmcore/store"
)

// callerHandle implements store.Caller against the module instance
// that was executing when a host function was invoked (the top frame
// at the moment of the call), reusing the same bounds-checked
// memory/global access the interpreter itself uses.
type callerHandle struct {
	v       *VM
	modInst *store.ModuleInstance
}

func (c *callerHandle) mem() (*store.MemInstance, error) {
	if c.modInst == nil || len(c.modInst.MemAddrs) == 0 {
		return nil, fmt.Errorf("vm: calling module has no memory")
	}
	return c.v.Store.Mems[c.modInst.MemAddrs[0]], nil
}

// ReadMemory copies length bytes starting at offset out of the
// calling module's memory 0.
func (c *callerHandle) ReadMemory(offset, length uint32) ([]byte, error) {
	mem, err := c.mem()
	if err != nil {
		return nil, err
	}
	b, t := memLoad(mem, offset, 0, uint64(length))
	if t != nil {
		return nil, t
	}
	return append([]byte(nil), b...), nil
}

// WriteMemory writes data into the calling module's memory 0 starting
// at offset.
func (c *callerHandle) WriteMemory(offset uint32, data []byte) error {
	mem, err := c.mem()
	if err != nil {
		return err
	}
	if t := memStore(mem, offset, 0, data); t != nil {
		return t
	}
	return nil
}

// GetGlobal reads the calling module's global at module-local index
// idx.
func (c *callerHandle) GetGlobal(idx uint32) (uint64, error) {
	if c.modInst == nil || int(idx) >= len(c.modInst.GlobalAddrs) {
		return 0, fmt.Errorf("vm: invalid global index %d", idx)
	}
	return c.v.Store.Globals[c.modInst.GlobalAddrs[idx]].Value, nil
}

// SetGlobal writes the calling module's global at module-local index
// idx, failing if it was declared immutable.
func (c *callerHandle) SetGlobal(idx uint32, value uint64) error {
	if c.modInst == nil || int(idx) >= len(c.modInst.GlobalAddrs) {
		return fmt.Errorf("vm: invalid global index %d", idx)
	}
	g := c.v.Store.Globals[c.modInst.GlobalAddrs[idx]]
	if !g.Mutable {
		return fmt.Errorf("vm: global %d is immutable", idx)
	}
	g.Value = value
	return nil
}
