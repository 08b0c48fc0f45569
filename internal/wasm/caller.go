package wasm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	wapi "github.com/tetratelabs/wazero/api"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-contracts/api/abi"
)

// guest is the part of a contract instance the Caller drives.
// *Instance implements it over wazero.
type guest interface {
	Exports(name string) bool
	CallFunction(ctx context.Context, name string, params ...uint64) ([]uint64, error)
	ReadBytes(ptr, length uint32) ([]byte, error)
	WriteBytes(ptr uint32, data []byte) error
	ResetOutput()
	Close(ctx context.Context) error
}

// ReadBytes implements guest.
func (i *Instance) ReadBytes(ptr, length uint32) ([]byte, error) {
	return i.memory.ReadBytes(ptr, length)
}

// WriteBytes implements guest.
func (i *Instance) WriteBytes(ptr uint32, data []byte) error {
	return i.memory.WriteBytes(ptr, data)
}

// ResetOutput implements guest.
func (i *Instance) ResetOutput() {
	i.stderr.Reset()
}

// Caller drives one contract instance through the calling convention:
// copy state and action in, run the handler, copy the new state out.
//
// Calls are serialized. After a trap or timeout the instance is closed and
// every further call fails with ErrInstancePoisoned.
type Caller struct {
	guest     guest
	name      string
	logger    *zap.Logger
	timeout   time.Duration
	maxResult uint32

	mu       sync.Mutex
	poisoned atomic.Bool
	calls    atomic.Uint64
}

// NewCaller wraps inst. Timeout and result ceiling come from config.
func NewCaller(inst *Instance, config *RuntimeConfig, logger *zap.Logger) *Caller {
	return newCaller(inst, inst.ID, config, logger)
}

func newCaller(g guest, name string, config *RuntimeConfig, logger *zap.Logger) *Caller {
	if config == nil {
		config = DefaultRuntimeConfig()
	}
	return &Caller{
		guest:     g,
		name:      name,
		logger:    logger.With(zap.String("component", "wasm-caller"), zap.String("instance_id", name)),
		timeout:   config.ExecutionTimeout,
		maxResult: config.MaxResultBytes,
	}
}

// Name returns the instance ID.
func (c *Caller) Name() string {
	return c.name
}

// Calls returns the number of calls that completed successfully.
func (c *Caller) Calls() uint64 {
	return c.calls.Load()
}

// Poisoned reports whether the instance trapped.
func (c *Caller) Poisoned() bool {
	return c.poisoned.Load()
}

// Close closes the underlying instance.
func (c *Caller) Close(ctx context.Context) error {
	return c.guest.Close(ctx)
}

// Call passes state and action to the contract and returns the new state.
// The returned bytes are owned by the caller.
func (c *Caller) Call(ctx context.Context, state, action []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.poisoned.Load() {
		return nil, ErrInstancePoisoned
	}

	// Trap diagnostics belong to the call that produced them.
	c.guest.ResetOutput()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out, err := c.call(ctx, state, action)
	if err != nil {
		if isFatal(err) {
			c.poison(ctx, err)
		}
		return nil, err
	}

	c.calls.Inc()
	return out, nil
}

func (c *Caller) poison(ctx context.Context, cause error) {
	c.poisoned.Store(true)
	c.logger.Warn("Contract instance poisoned", zap.Error(cause))
	if err := c.guest.Close(context.WithoutCancel(ctx)); err != nil {
		c.logger.Debug("Failed to close poisoned instance", zap.Error(err))
	}
}

// allocation is a guest buffer the Caller hands back through _dealloc.
type allocation struct {
	addr uint32
	size uint32
}

func (c *Caller) call(ctx context.Context, state, action []byte) (out []byte, err error) {
	var allocs []allocation
	defer func() {
		// _dealloc only rewinds the most recent allocation, so release in
		// reverse. Skipped once the instance has failed hard.
		if err != nil && isFatal(err) {
			return
		}
		if !c.guest.Exports(abi.ExportDealloc) {
			return
		}
		for i := len(allocs) - 1; i >= 0; i-- {
			a := allocs[i]
			if _, ferr := c.guest.CallFunction(ctx, abi.ExportDealloc, wapi.EncodeU32(a.addr), wapi.EncodeU32(a.size)); ferr != nil {
				if err == nil {
					err = ferr
					out = nil
				}
				return
			}
		}
	}()

	stateAddr, err := c.write(ctx, "state", state)
	if err != nil {
		return nil, err
	}
	allocs = append(allocs, allocation{stateAddr, uint32(len(state))})

	actionAddr, err := c.write(ctx, "action", action)
	if err != nil {
		return nil, err
	}
	allocs = append(allocs, allocation{actionAddr, uint32(len(action))})

	params := []uint64{
		wapi.EncodeU32(stateAddr), wapi.EncodeU32(uint32(len(state))),
		wapi.EncodeU32(actionAddr), wapi.EncodeU32(uint32(len(action))),
	}

	result, err := c.handle(ctx, params)
	if err != nil {
		return nil, err
	}
	allocs = append(allocs, allocation{result.Addr, result.Len})

	if result.Len == 0 {
		return nil, &MemoryAccessError{Operation: "read result", Address: result.Addr, Err: ErrEmptyResult}
	}
	if c.maxResult > 0 && result.Len > c.maxResult {
		return nil, &ResultTooLargeError{Length: result.Len, Limit: c.maxResult}
	}

	out, err = c.guest.ReadBytes(result.Addr, result.Len)
	if err != nil {
		var memErr *MemoryAccessError
		if errors.As(err, &memErr) {
			memErr.Operation = "read result"
		}
		return nil, err
	}

	c.logger.Debug("Contract call complete",
		zap.Int("state_bytes", len(state)),
		zap.Int("action_bytes", len(action)),
		zap.Stringer("result", result),
	)
	return out, nil
}

// write allocates len(data) bytes in the guest and copies data there.
func (c *Caller) write(ctx context.Context, what string, data []byte) (uint32, error) {
	if uint64(len(data)) > uint64(^uint32(0)) {
		return 0, &MemoryAccessError{Operation: "write " + what, Length: ^uint32(0), Err: ErrOutOfBounds}
	}
	results, err := c.invoke(ctx, abi.ExportAlloc, wapi.EncodeU32(uint32(len(data))))
	if err != nil {
		return 0, err
	}
	addr := wapi.DecodeU32(results[0])
	if len(data) == 0 {
		return addr, nil
	}
	if err := c.guest.WriteBytes(addr, data); err != nil {
		var memErr *MemoryAccessError
		if errors.As(err, &memErr) {
			memErr.Operation = "write " + what
		}
		return 0, err
	}
	return addr, nil
}

// handle runs the entry point and returns the result descriptor. The packed
// handle_result export is preferred; otherwise handle is followed by get_len.
func (c *Caller) handle(ctx context.Context, params []uint64) (abi.Result, error) {
	if c.guest.Exports(abi.ExportHandleResult) {
		results, err := c.invoke(ctx, abi.ExportHandleResult, params...)
		if err != nil {
			return abi.Result{}, err
		}
		return abi.Unpack(results[0]), nil
	}

	results, err := c.invoke(ctx, abi.ExportHandle, params...)
	if err != nil {
		return abi.Result{}, err
	}
	addr := wapi.DecodeU32(results[0])

	results, err = c.invoke(ctx, abi.ExportGetLen)
	if err != nil {
		return abi.Result{}, err
	}
	return abi.Result{Addr: addr, Len: wapi.DecodeU32(results[0])}, nil
}

// invoke calls an export that returns exactly one value.
func (c *Caller) invoke(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	results, err := c.guest.CallFunction(ctx, name, params...)
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, &SignatureError{
			ModuleName:   c.name,
			FunctionName: name,
			Want:         "1 result",
			Got:          fmt.Sprintf("%d results", len(results)),
		}
	}
	return results, nil
}

func isFatal(err error) bool {
	var (
		trapErr    *TrapError
		timeoutErr *TimeoutError
		sigErr     *SignatureError
	)
	return errors.As(err, &trapErr) ||
		errors.As(err, &timeoutErr) ||
		errors.As(err, &sigErr) ||
		errors.Is(err, ErrInstancePoisoned)
}
