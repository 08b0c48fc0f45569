package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Hand-assembled contract modules. Each exports one page of memory, a bump
// _alloc starting at 1024 and get_len backed by a global. Only the body of
// handle differs.

const (
	opUnreachable = 0x00
	opLoop        = 0x03
	opBr          = 0x0c
	opEnd         = 0x0b
	opLocalGet    = 0x20
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Add      = 0x6a
	opI32Const    = 0x41
	typeI32       = 0x7f
	blockEmpty    = 0x40
)

// echoHandle returns the state buffer unchanged: get_len = stateLen, result = stateAddr.
var echoHandle = []byte{opLocalGet, 1, opGlobalSet, 1, opLocalGet, 0, opEnd}

// trapHandle aborts.
var trapHandle = []byte{opUnreachable, opEnd}

// spinHandle never returns.
var spinHandle = []byte{opLoop, blockEmpty, opBr, 0, opEnd, opUnreachable, opEnd}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func section(id byte, content ...byte) []byte {
	out := append([]byte{id}, uleb(uint32(len(content)))...)
	return append(out, content...)
}

func wasmName(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func funcBody(code []byte) []byte {
	body := append([]byte{0x00}, code...) // no locals
	return append(uleb(uint32(len(body))), body...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// bumpAlloc returns $top and advances it by the requested size.
var bumpAlloc = []byte{opGlobalGet, 0, opGlobalGet, 0, opLocalGet, 0, opI32Add, opGlobalSet, 0, opEnd}

// contractModule assembles a module whose handle export runs handleCode.
func contractModule(handleCode []byte) []byte {
	return assembleContract([]byte{0x60, 1, typeI32, 1, typeI32}, bumpAlloc, handleCode)
}

// voidAllocModule exports an _alloc of type (i32) -> () that returns nothing.
func voidAllocModule() []byte {
	return assembleContract([]byte{0x60, 1, typeI32, 0}, []byte{opEnd}, echoHandle)
}

// assembleContract builds the module with _alloc typed by allocType.
func assembleContract(allocType, allocCode, handleCode []byte) []byte {
	types := concat(
		[]byte{3},
		allocType,
		[]byte{0x60, 0, 1, typeI32},                                     // () -> i32
		[]byte{0x60, 4, typeI32, typeI32, typeI32, typeI32, 1, typeI32}, // (i32 x4) -> i32
	)
	funcs := []byte{3, 0, 1, 2}
	memory := []byte{1, 0x00, 1}
	globals := concat(
		[]byte{2},
		[]byte{typeI32, 1, opI32Const, 0x80, 0x08, opEnd}, // $top = 1024
		[]byte{typeI32, 1, opI32Const, 0x00, opEnd},       // $len = 0
	)
	exports := concat(
		[]byte{4},
		wasmName("memory"), []byte{0x02, 0},
		wasmName("_alloc"), []byte{0x00, 0},
		wasmName("get_len"), []byte{0x00, 1},
		wasmName("handle"), []byte{0x00, 2},
	)
	getLen := []byte{opGlobalGet, 1, opEnd}
	code := concat([]byte{3}, funcBody(allocCode), funcBody(getLen), funcBody(handleCode))

	return concat(
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
		section(1, types...),
		section(3, funcs...),
		section(5, memory...),
		section(6, globals...),
		section(7, exports...),
		section(10, code...),
	)
}

// memoryOnlyModule exports memory and nothing else.
func memoryOnlyModule() []byte {
	return concat(
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
		section(5, 1, 0x00, 1),
		section(7, concat([]byte{1}, wasmName("memory"), []byte{0x02, 0})...),
	)
}

type testEnv struct {
	runtime   *Runtime
	loader    *ModuleLoader
	instances *InstanceManager
}

func newTestEnv(t *testing.T, config *RuntimeConfig) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, config)
	require.NoError(t, err)
	t.Cleanup(func() { runtime.Close(context.Background()) })

	return &testEnv{
		runtime:   runtime,
		loader:    NewModuleLoader(runtime, logger),
		instances: NewInstanceManager(runtime, logger),
	}
}

// instantiate compiles data under name and returns a fresh instance.
func (e *testEnv) instantiate(t *testing.T, name string, data []byte) *Instance {
	t.Helper()
	ctx := context.Background()

	_, err := e.loader.LoadModuleFromMemory(ctx, name, data)
	require.NoError(t, err)

	inst, err := e.instances.Instantiate(ctx, &InstanceConfig{ModuleName: name})
	require.NoError(t, err)
	t.Cleanup(func() { inst.Close(context.Background()) })
	return inst
}
