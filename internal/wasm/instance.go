package wasm

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/woxQAQ/wasm-contracts/api/abi"
)

// InstanceManager creates and manages module instances.
type InstanceManager struct {
	runtime *Runtime
	logger  *zap.Logger

	seq  atomic.Uint64
	live atomic.Int64
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-instance")),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate.
	ModuleName string

	// Instance ID (if empty, one is generated from the module name).
	InstanceID string
}

// Instance represents an instantiated contract module.
type Instance struct {
	// wazero module instance.
	module api.Module
	memory *Memory

	// Instance metadata.
	ID        string
	Name      string
	CreatedAt int64

	// Exported ABI functions (cached for performance).
	exports map[string]api.Function

	stderr  *GuestOutput
	release func()
	closed  atomic.Bool
}

// Live returns the number of open instances.
func (m *InstanceManager) Live() int {
	return int(m.live.Load())
}

// Instantiate creates a new instance from a compiled module.
// The module must export linear memory and the required ABI functions.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	// Get compiled module from cache.
	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}

	if limit := m.runtime.config.MaxInstances; limit > 0 {
		if m.live.Inc() > int64(limit) {
			m.live.Dec()
			return nil, &InstanceLimitError{Limit: limit}
		}
	} else {
		m.live.Inc()
	}
	reserved := true
	defer func() {
		if reserved {
			m.live.Dec()
		}
	}()

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = m.generateID(config.ModuleName)
	}

	m.logger.Debug("Instantiating Wasm module",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
	)

	logger := m.logger.With(zap.String("instance_id", instanceID))
	stdout := NewGuestOutput(logger, "stdout", zapcore.DebugLevel)
	stderr := NewGuestOutput(logger, "stderr", zapcore.WarnLevel)

	// Reactor modules are initialized through _initialize; modules without it
	// skip the start phase.
	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions(abi.ExportInitialize).
		WithStdout(stdout).
		WithStderr(stderr)

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        err,
		}
	}

	exports, err := m.cacheExportedFunctions(config.ModuleName, module)
	if err != nil {
		module.Close(ctx)
		return nil, err
	}

	instance := &Instance{
		module:    module,
		memory:    NewMemory(module),
		ID:        instanceID,
		Name:      config.ModuleName,
		CreatedAt: time.Now().Unix(),
		exports:   exports,
		stderr:    stderr,
	}
	instance.release = func() {
		m.runtime.DeleteInstance(instanceID)
		m.live.Dec()
	}
	reserved = false

	// Track active instance.
	m.runtime.StoreInstance(instanceID, instance)

	m.logger.Info("Module instantiated successfully",
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", len(exports)),
		zap.Uint32("memory_bytes", instance.memory.Size()),
	)

	return instance, nil
}

// Close closes the instance and releases resources. Safe to call more than once.
func (i *Instance) Close(ctx context.Context) error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}
	if i.release != nil {
		i.release()
	}
	return i.module.Close(ctx)
}

// Memory returns the instance's linear memory helper.
func (i *Instance) Memory() *Memory {
	return i.memory
}

// Stderr returns the tail of what the guest has written to stderr.
func (i *Instance) Stderr() string {
	return i.stderr.Tail()
}

// Exports reports whether the instance exports the named ABI function.
func (i *Instance) Exports(name string) bool {
	_, ok := i.exports[name]
	return ok
}

// CallFunction invokes an exported function. Traps surface as *TrapError and
// context deadlines as *TimeoutError.
func (i *Instance) CallFunction(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn, ok := i.exports[name]
	if !ok {
		return nil, &FunctionNotFoundError{ModuleName: i.Name, FunctionName: name}
	}
	if i.closed.Load() {
		return nil, ErrInstancePoisoned
	}

	start := time.Now()
	results, err := fn.Call(ctx, params...)
	if err == nil {
		return results, nil
	}

	if isTimeout(ctx, err) {
		return nil, &TimeoutError{FunctionName: name, Duration: time.Since(start)}
	}
	return nil, &TrapError{
		ModuleName:   i.Name,
		FunctionName: name,
		Err:          err,
		Stderr:       strings.TrimSpace(i.stderr.Tail()),
	}
}

func isTimeout(ctx context.Context, err error) bool {
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case sys.ExitCodeDeadlineExceeded:
			return true
		case sys.ExitCodeContextCanceled:
			return errors.Is(ctx.Err(), context.DeadlineExceeded)
		}
	}
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// signature is the function type of an ABI export.
type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

func (s signature) String() string {
	return formatSignature(s.params, s.results)
}

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// abiSignatures lists every ABI export the host may call.
var abiSignatures = map[string]signature{
	abi.ExportAlloc:        {params: []api.ValueType{i32}, results: []api.ValueType{i32}},
	abi.ExportDealloc:      {params: []api.ValueType{i32, i32}},
	abi.ExportGetLen:       {results: []api.ValueType{i32}},
	abi.ExportHandle:       {params: []api.ValueType{i32, i32, i32, i32}, results: []api.ValueType{i32}},
	abi.ExportHandleResult: {params: []api.ValueType{i32, i32, i32, i32}, results: []api.ValueType{i64}},
}

func formatSignature(params, results []api.ValueType) string {
	names := func(types []api.ValueType) string {
		out := make([]string, len(types))
		for i, t := range types {
			out[i] = api.ValueTypeName(t)
		}
		return strings.Join(out, ",")
	}
	return fmt.Sprintf("(%s) -> (%s)", names(params), names(results))
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// cacheExportedFunctions caches the ABI functions after checking their types,
// so calls never see a result list of the wrong shape.
func (m *InstanceManager) cacheExportedFunctions(moduleName string, module api.Module) (map[string]api.Function, error) {
	if module.Memory() == nil {
		return nil, &FunctionNotFoundError{ModuleName: moduleName, FunctionName: abi.ExportMemory}
	}

	exports := make(map[string]api.Function)
	for name, want := range abiSignatures {
		fn := module.ExportedFunction(name)
		if fn == nil {
			continue
		}
		def := fn.Definition()
		if !sameTypes(def.ParamTypes(), want.params) || !sameTypes(def.ResultTypes(), want.results) {
			return nil, &SignatureError{
				ModuleName:   moduleName,
				FunctionName: name,
				Want:         want.String(),
				Got:          formatSignature(def.ParamTypes(), def.ResultTypes()),
			}
		}
		exports[name] = fn
	}

	for _, name := range abi.RequiredExports {
		if _, ok := exports[name]; !ok {
			return nil, &FunctionNotFoundError{ModuleName: moduleName, FunctionName: name}
		}
	}

	return exports, nil
}

// generateID derives a unique instance name from the module name.
func (m *InstanceManager) generateID(moduleName string) string {
	base := strings.TrimSuffix(filepath.Base(moduleName), filepath.Ext(moduleName))
	if base == "" || base == "." {
		base = "inst"
	}
	return fmt.Sprintf("%s-%d", base, m.seq.Inc())
}
