package wasm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// TestLoadModuleFromMemory tests loading a simple Wasm module from memory.
func TestLoadModuleFromMemory(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	// Minimal valid Wasm module (empty module that does nothing).
	// This is a valid Wasm 1.0 module with no exports.
	wasmBytes := []byte{
		0x00, 0x61, 0x73, 0x6d, // Magic number: \0asm
		0x01, 0x00, 0x00, 0x00, // Version: 1
	}

	module, err := loader.LoadModuleFromMemory(ctx, "test-module", wasmBytes)
	if err != nil {
		t.Fatalf("Failed to load module: %v", err)
	}

	if module.Name != "test-module" {
		t.Errorf("Module name = %s, want 'test-module'", module.Name)
	}
	if module.Digest == "" {
		t.Error("Module digest not set")
	}

	// Test caching - load again should hit cache.
	module2, err := loader.LoadModuleFromMemory(ctx, "test-module", wasmBytes)
	if err != nil {
		t.Fatalf("Failed to load module from cache: %v", err)
	}

	if module2 != module {
		t.Error("Cache should return the same module instance")
	}
}

// TestLoadModuleRecompilesChangedBytes checks that a module whose bytes
// changed under the same name is compiled again.
func TestLoadModuleRecompilesChangedBytes(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.loader.LoadModuleFromMemory(ctx, "contract", contractModule(echoHandle))
	require.NoError(t, err)

	second, err := env.loader.LoadModuleFromMemory(ctx, "contract", contractModule(trapHandle))
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.Digest, second.Digest)

	cached, ok := env.runtime.GetCompiledModule("contract")
	require.True(t, ok)
	assert.Same(t, second, cached)
}

// TestModuleLoaderFileSource tests the FileModuleSource.
func TestModuleLoaderFileSource(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	wasmFile := filepath.Join(t.TempDir(), "echo.wasm")
	if err := os.WriteFile(wasmFile, contractModule(echoHandle), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	module, err := env.loader.LoadModuleFromFile(ctx, wasmFile)
	if err != nil {
		t.Fatalf("Failed to load module from file: %v", err)
	}
	if module.SizeBytes != int64(len(contractModule(echoHandle))) {
		t.Errorf("SizeBytes = %d", module.SizeBytes)
	}
}

func TestLoadModuleInvalidBytes(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.loader.LoadModuleFromMemory(context.Background(), "garbage", []byte("not wasm"))
	var compErr *CompilationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "garbage", compErr.ModuleName)
}

func TestLoadModuleMissingFile(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.loader.LoadModuleFromFile(context.Background(), filepath.Join(t.TempDir(), "absent.wasm"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestInstantiateRequiresABIExports(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.loader.LoadModuleFromMemory(ctx, "memory-only", memoryOnlyModule())
	require.NoError(t, err)

	_, err = env.instances.Instantiate(ctx, &InstanceConfig{ModuleName: "memory-only"})
	var fnErr *FunctionNotFoundError
	require.ErrorAs(t, err, &fnErr)
	assert.Equal(t, "_alloc", fnErr.FunctionName)
	assert.Equal(t, 0, env.instances.Live(), "failed instantiation must not hold a slot")
}

func TestInstantiateRejectsWrongSignature(t *testing.T) {
	config := DefaultRuntimeConfig()
	config.MaxInstances = 1
	env := newTestEnv(t, config)
	ctx := context.Background()

	_, err := env.loader.LoadModuleFromMemory(ctx, "void-alloc", voidAllocModule())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = env.instances.Instantiate(ctx, &InstanceConfig{ModuleName: "void-alloc"})
		var sigErr *SignatureError
		require.ErrorAs(t, err, &sigErr)
		assert.Equal(t, "_alloc", sigErr.FunctionName)
		assert.Equal(t, "(i32) -> (i32)", sigErr.Want)
		assert.Equal(t, "(i32) -> ()", sigErr.Got)
	}
	assert.Equal(t, 0, env.instances.Live(), "rejected modules must not hold a slot")

	// The slot is still available to a well-formed module.
	env.instantiate(t, "echo", contractModule(echoHandle))
}

func TestInstantiateUnknownModule(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.instances.Instantiate(context.Background(), &InstanceConfig{ModuleName: "nope"})
	var nfErr *ModuleNotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestInstantiateCachesExports(t *testing.T) {
	env := newTestEnv(t, nil)
	inst := env.instantiate(t, "echo", contractModule(echoHandle))

	assert.True(t, inst.Exports("_alloc"))
	assert.True(t, inst.Exports("get_len"))
	assert.True(t, inst.Exports("handle"))
	assert.False(t, inst.Exports("_dealloc"))
	assert.False(t, inst.Exports("handle_result"))
	assert.Equal(t, "echo-1", inst.ID)
}

func TestInstanceLimit(t *testing.T) {
	config := DefaultRuntimeConfig()
	config.MaxInstances = 1
	env := newTestEnv(t, config)
	ctx := context.Background()

	first := env.instantiate(t, "echo", contractModule(echoHandle))
	assert.Equal(t, 1, env.instances.Live())

	_, err := env.instances.Instantiate(ctx, &InstanceConfig{ModuleName: "echo"})
	var limitErr *InstanceLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 1, limitErr.Limit)

	require.NoError(t, first.Close(ctx))
	require.NoError(t, first.Close(ctx), "Close must be idempotent")
	assert.Equal(t, 0, env.instances.Live())

	second, err := env.instances.Instantiate(ctx, &InstanceConfig{ModuleName: "echo"})
	require.NoError(t, err)
	defer second.Close(ctx)
}

// TestMemoryHelpers tests the bounds-checked memory helpers.
func TestMemoryHelpers(t *testing.T) {
	env := newTestEnv(t, nil)
	inst := env.instantiate(t, "echo", contractModule(echoHandle))

	mem := inst.Memory()
	assert.Equal(t, uint32(65536), mem.Size())

	require.NoError(t, mem.WriteBytes(100, []byte("hello")))
	data, err := mem.ReadBytes(100, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	// Reads are copies.
	data[0] = 'j'
	again, err := mem.ReadBytes(100, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), again)

	_, err = mem.ReadBytes(65530, 10)
	var memErr *MemoryAccessError
	require.ErrorAs(t, err, &memErr)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Equal(t, "read", memErr.Operation)

	err = mem.WriteBytes(65535, []byte("xy"))
	require.ErrorAs(t, err, &memErr)
	assert.Equal(t, "write", memErr.Operation)
}

func TestCallerEchoModule(t *testing.T) {
	env := newTestEnv(t, nil)
	inst := env.instantiate(t, "echo", contractModule(echoHandle))
	caller := NewCaller(inst, env.runtime.Config(), zaptest.NewLogger(t))

	state := []byte(`{"counter":3}`)
	out, err := caller.Call(context.Background(), state, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, state, out)

	// A second call sees fresh buffers, not the first result.
	out, err = caller.Call(context.Background(), []byte(`[1,2]`), []byte(`null`))
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1,2]`), out)
	assert.Equal(t, uint64(2), caller.Calls())
}

func TestCallerTrapPoisonsInstance(t *testing.T) {
	env := newTestEnv(t, nil)
	inst := env.instantiate(t, "trap", contractModule(trapHandle))
	caller := NewCaller(inst, env.runtime.Config(), zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := caller.Call(ctx, []byte(`{}`), []byte(`{}`))
	var trapErr *TrapError
	require.ErrorAs(t, err, &trapErr)
	assert.Equal(t, "handle", trapErr.FunctionName)
	assert.True(t, caller.Poisoned())

	_, err = caller.Call(ctx, []byte(`{}`), []byte(`{}`))
	assert.ErrorIs(t, err, ErrInstancePoisoned)
	assert.Equal(t, 0, env.instances.Live(), "poisoned instance must be closed")
}

func TestCallerTimeout(t *testing.T) {
	config := DefaultRuntimeConfig()
	config.ExecutionTimeout = 50 * time.Millisecond
	env := newTestEnv(t, config)
	inst := env.instantiate(t, "spin", contractModule(spinHandle))
	caller := NewCaller(inst, config, zaptest.NewLogger(t))

	_, err := caller.Call(context.Background(), []byte(`{}`), []byte(`{}`))
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "handle", timeoutErr.FunctionName)
	assert.True(t, caller.Poisoned())
}

func TestCallerResultTooLarge(t *testing.T) {
	config := DefaultRuntimeConfig()
	config.MaxResultBytes = 4
	env := newTestEnv(t, config)
	inst := env.instantiate(t, "echo", contractModule(echoHandle))
	caller := NewCaller(inst, config, zaptest.NewLogger(t))

	_, err := caller.Call(context.Background(), []byte(`{"counter":3}`), []byte(`{}`))
	var sizeErr *ResultTooLargeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, uint32(13), sizeErr.Length)
	assert.False(t, caller.Poisoned(), "an oversized result is not a trap")
}
