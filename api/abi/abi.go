// Package abi defines the contract calling convention shared by contract modules
// and the host that drives them.
//
// NOTE: uint32 is used for pointers and lengths because WebAssembly uses a 32-bit
// linear memory model. All Wasm memory addresses are represented as 32-bit integers
// (addresses 0 to 4GB).
//
// Exports a contract module provides:
//
//	//go:wasmexport _alloc
//	func alloc(size uint32) uint32
//
//	//go:wasmexport get_len
//	func getLen() uint32
//
//	//go:wasmexport handle
//	func handle(stateAddr, stateLen, actionAddr, actionLen uint32) uint32
//
// Optional exports:
//
//	//go:wasmexport handle_result
//	func handleResult(stateAddr, stateLen, actionAddr, actionLen uint32) uint64
//
//	//go:wasmexport _dealloc
//	func dealloc(addr, size uint32)
//
// All payloads are UTF-8 JSON text with no framing beyond the (addr, len) pairs.
package abi

import "fmt"

// Export names. These are the wire protocol; host and module must agree byte-for-byte.
const (
	ExportAlloc        = "_alloc"
	ExportDealloc      = "_dealloc"
	ExportGetLen       = "get_len"
	ExportHandle       = "handle"
	ExportHandleResult = "handle_result"
	ExportMemory       = "memory"
	ExportInitialize   = "_initialize"
)

// RequiredExports lists the functions every contract module must export.
var RequiredExports = []string{ExportAlloc, ExportGetLen, ExportHandle}

// AddrHighBits is the shift applied to the address half of a packed result.
const AddrHighBits = 32

// Result describes a byte range in module memory.
type Result struct {
	Addr uint32
	Len  uint32
}

// End returns the first address past the range.
func (r Result) End() uint64 {
	return uint64(r.Addr) + uint64(r.Len)
}

func (r Result) String() string {
	return fmt.Sprintf("[%#x, +%d)", r.Addr, r.Len)
}

// Pack encodes the result as a single i64: address in the high 32 bits, length in the low 32 bits.
func (r Result) Pack() uint64 {
	return (uint64(r.Addr) << AddrHighBits) | uint64(r.Len)
}

// Unpack decodes a packed i64 produced by Result.Pack.
func Unpack(packed uint64) Result {
	return Result{
		Addr: uint32(packed >> AddrHighBits),
		Len:  uint32(packed),
	}
}
