package contract

import "unsafe"

// newLinearArena reserves an arena addressed by its location in linear memory.
// The Go heap does not move objects, and std keeps the arena reachable, so
// the addresses stay valid for the life of the instance.
func newLinearArena(size int) *Arena {
	buf := make([]byte, size)
	//nolint:gosec // G103: wasm32 addresses fit in uint32
	return newArena(buf, uint32(uintptr(unsafe.Pointer(unsafe.SliceData(buf)))))
}
