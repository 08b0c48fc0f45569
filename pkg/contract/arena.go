package contract

// DefaultArenaSize is the arena reserved for a contract module when no size is configured.
const DefaultArenaSize = 4 << 20 // 4MB

// arenaAlign keeps every allocation 8-byte aligned.
const arenaAlign = 8

// Arena is a bump allocator over a fixed byte region.
//
// The region is reserved once and never reallocated, so addresses handed out
// stay valid for the life of the arena. Addresses are base plus offset: on
// wasip1 base is the region's address in linear memory; elsewhere it is zero
// and addresses are plain offsets.
//
// An Arena is not safe for concurrent use. The calling convention allows one
// in-flight call per module instance.
type Arena struct {
	buf  []byte
	base uint32
	top  uint32
}

// NewArena creates an arena of size bytes addressed from zero.
func NewArena(size int) *Arena {
	return newArena(make([]byte, size), 0)
}

func newArena(buf []byte, base uint32) *Arena {
	return &Arena{buf: buf, base: base}
}

func alignUp(size uint32) uint64 {
	return (uint64(size) + arenaAlign - 1) &^ (arenaAlign - 1)
}

// Alloc reserves size bytes and returns their address. Consecutive
// allocations never overlap. Alloc(0) returns the current top without
// advancing it.
func (a *Arena) Alloc(size uint32) (uint32, error) {
	aligned := alignUp(size)
	if uint64(a.top)+aligned > uint64(len(a.buf)) {
		return 0, &AllocError{Size: size, Used: a.top, Capacity: uint32(len(a.buf))}
	}
	addr := a.base + a.top
	a.top += uint32(aligned)
	return addr, nil
}

// Free rewinds the arena when [addr, addr+size) is the most recent
// allocation and reports whether it did. Other ranges are left in place;
// freeing in reverse allocation order reclaims everything.
func (a *Arena) Free(addr, size uint32) bool {
	if addr < a.base {
		return false
	}
	off := uint64(addr - a.base)
	if off+alignUp(size) != uint64(a.top) {
		return false
	}
	a.top = uint32(off)
	return true
}

// Reset discards every allocation. Previously returned addresses must not be used again.
func (a *Arena) Reset() {
	clear(a.buf[:a.top])
	a.top = 0
}

// Bytes returns a view of n allocated bytes at addr.
func (a *Arena) Bytes(addr, n uint32) ([]byte, error) {
	if addr < a.base || uint64(addr-a.base)+uint64(n) > uint64(a.top) {
		return nil, &RangeError{Addr: addr, Len: n, Base: a.base, Limit: a.base + a.top}
	}
	off := addr - a.base
	return a.buf[off : off+n : off+n], nil
}

// Base returns the address of the first byte of the arena.
func (a *Arena) Base() uint32 { return a.base }

// Used returns the number of bytes currently allocated, including alignment padding.
func (a *Arena) Used() uint32 { return a.top }

// Capacity returns the size of the arena in bytes.
func (a *Arena) Capacity() uint32 { return uint32(len(a.buf)) }
