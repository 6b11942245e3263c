package vm

import (
	"encoding/binary"

	"github.com/wasmforge/wasmcore/store"
	"github.com/wasmforge/wasmcore/trap"
)

// effectiveAddr computes ea = base + offset as a 64-bit sum so a large
// u32 offset can never wrap the way it would if computed in 32 bits;
// the bounds check below catches it instead.
func effectiveAddr(base uint32, offset uint32) uint64 {
	return uint64(base) + uint64(offset)
}

func boundsCheck(mem *store.MemInstance, ea uint64, size uint64) *trap.Trap {
	if ea+size > uint64(len(mem.Data)) {
		return trap.New(trap.OutOfBoundsMemoryAccess)
	}
	return nil
}

func memLoad(mem *store.MemInstance, base, offset uint32, size uint64) ([]byte, *trap.Trap) {
	ea := effectiveAddr(base, offset)
	if t := boundsCheck(mem, ea, size); t != nil {
		return nil, t
	}
	return mem.Data[ea : ea+size], nil
}

func memStore(mem *store.MemInstance, base, offset uint32, data []byte) *trap.Trap {
	ea := effectiveAddr(base, offset)
	if t := boundsCheck(mem, ea, uint64(len(data))); t != nil {
		return t
	}
	copy(mem.Data[ea:ea+uint64(len(data))], data)
	return nil
}

func loadU8(mem *store.MemInstance, base, offset uint32) (uint8, *trap.Trap) {
	b, t := memLoad(mem, base, offset, 1)
	if t != nil {
		return 0, t
	}
	return b[0], nil
}

func loadU16(mem *store.MemInstance, base, offset uint32) (uint16, *trap.Trap) {
	b, t := memLoad(mem, base, offset, 2)
	if t != nil {
		return 0, t
	}
	return binary.LittleEndian.Uint16(b), nil
}

func loadU32(mem *store.MemInstance, base, offset uint32) (uint32, *trap.Trap) {
	b, t := memLoad(mem, base, offset, 4)
	if t != nil {
		return 0, t
	}
	return binary.LittleEndian.Uint32(b), nil
}

func loadU64(mem *store.MemInstance, base, offset uint32) (uint64, *trap.Trap) {
	b, t := memLoad(mem, base, offset, 8)
	if t != nil {
		return 0, t
	}
	return binary.LittleEndian.Uint64(b), nil
}

func storeU8(mem *store.MemInstance, base, offset uint32, v uint8) *trap.Trap {
	return memStore(mem, base, offset, []byte{v})
}

func storeU16(mem *store.MemInstance, base, offset uint32, v uint16) *trap.Trap {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return memStore(mem, base, offset, buf[:])
}

func storeU32(mem *store.MemInstance, base, offset uint32, v uint32) *trap.Trap {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return memStore(mem, base, offset, buf[:])
}

func storeU64(mem *store.MemInstance, base, offset uint32, v uint64) *trap.Trap {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return memStore(mem, base, offset, buf[:])
}
