package wasm

import (
	"github.com/tetratelabs/wazero/api"
)

// Memory provides bounds-checked access to a contract's linear memory.
//
// Addresses come from the guest (its allocator and its result descriptor), so
// every range is checked against the current memory size before it is touched.
// Reads copy: a view into guest memory is invalidated by the next call that
// grows or rewinds the guest arena.
type Memory struct {
	mem api.Memory
}

// NewMemory creates a memory helper.
func NewMemory(module api.Module) *Memory {
	return &Memory{mem: module.Memory()}
}

// Size returns the current size of linear memory in bytes.
func (m *Memory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// ReadBytes copies length bytes starting at ptr out of Wasm memory.
func (m *Memory) ReadBytes(ptr uint32, length uint32) ([]byte, error) {
	if m.mem == nil {
		return nil, &MemoryAccessError{Operation: "read", Address: ptr, Length: length, Err: ErrOutOfBounds}
	}
	buf, ok := m.mem.Read(ptr, length)
	if !ok {
		return nil, &MemoryAccessError{Operation: "read", Address: ptr, Length: length, Err: ErrOutOfBounds}
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// WriteBytes writes data into Wasm memory at ptr. The range must already be
// allocated by the guest.
func (m *Memory) WriteBytes(ptr uint32, data []byte) error {
	if m.mem == nil || !m.mem.Write(ptr, data) {
		return &MemoryAccessError{Operation: "write", Address: ptr, Length: uint32(len(data)), Err: ErrOutOfBounds}
	}
	return nil
}
