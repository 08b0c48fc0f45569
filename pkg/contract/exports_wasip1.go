package contract

import (
	"fmt"

	"github.com/woxQAQ/wasm-contracts/api/abi"
)

// Every failure traps: the panic message goes to stderr and the runtime
// exits, so the host sees the instance as poisoned and discards it.

//go:wasmexport _alloc
func alloc(size uint32) uint32 {
	addr, err := stdArena().Alloc(size)
	if err != nil {
		panic(fmt.Sprintf("contract: _alloc: %v", err))
	}
	return addr
}

//go:wasmexport _dealloc
func dealloc(addr, size uint32) {
	stdArena().Free(addr, size)
}

//go:wasmexport get_len
func getLen() uint32 {
	if std.codec == nil {
		return 0
	}
	return std.codec.Len()
}

//go:wasmexport handle
func handle(stateAddr, stateLen, actionAddr, actionLen uint32) uint32 {
	return mustHandle(stateAddr, stateLen, actionAddr, actionLen).Addr
}

//go:wasmexport handle_result
func handleResult(stateAddr, stateLen, actionAddr, actionLen uint32) uint64 {
	return mustHandle(stateAddr, stateLen, actionAddr, actionLen).Pack()
}

func mustHandle(stateAddr, stateLen, actionAddr, actionLen uint32) abi.Result {
	r, err := stdCodec().Handle(stateAddr, stateLen, actionAddr, actionLen)
	if err != nil {
		panic(fmt.Sprintf("contract: handle: %v", err))
	}
	return r
}
