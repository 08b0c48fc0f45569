package wasm

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInstancePoisoned is returned by a Caller after its instance trapped or timed out.
	ErrInstancePoisoned = errors.New("instance poisoned by an earlier trap")

	// ErrOutOfBounds is wrapped by MemoryAccessError when a range exceeds linear memory.
	ErrOutOfBounds = errors.New("out of bounds")

	// ErrEmptyResult is wrapped by MemoryAccessError when a contract reports a zero-length result.
	ErrEmptyResult = errors.New("empty result")
)

// CompilationError occurs when Wasm module compilation fails
type CompilationError struct {
	ModuleName string
	Err        error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile Wasm module '%s': %v", e.ModuleName, e.Err)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// InstantiationError occurs when module instantiation fails
type InstantiationError struct {
	ModuleName string
	InstanceID string
	Err        error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("failed to instantiate module '%s' (instance: %s): %v",
		e.ModuleName, e.InstanceID, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// ModuleNotFoundError occurs when a module is not in cache
type ModuleNotFoundError struct {
	ModuleName string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module '%s' not found in cache", e.ModuleName)
}

// FunctionNotFoundError occurs when an exported function is missing
type FunctionNotFoundError struct {
	ModuleName   string
	FunctionName string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("function '%s' not found in module '%s'",
		e.FunctionName, e.ModuleName)
}

// SignatureError occurs when an ABI export does not have the ABI's function type
type SignatureError struct {
	ModuleName   string
	FunctionName string
	Want         string
	Got          string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("export '%s' in module '%s' has type %s, want %s",
		e.FunctionName, e.ModuleName, e.Got, e.Want)
}

// InstanceLimitError occurs when MaxInstances instances are already live
type InstanceLimitError struct {
	Limit int
}

func (e *InstanceLimitError) Error() string {
	return fmt.Sprintf("instance limit reached (%d live)", e.Limit)
}

// MemoryAccessError occurs when memory operations fail
type MemoryAccessError struct {
	Operation string
	Address   uint32
	Length    uint32
	Err       error
}

func (e *MemoryAccessError) Error() string {
	return fmt.Sprintf("memory access failed (op=%s, addr=%d, len=%d): %v",
		e.Operation, e.Address, e.Length, e.Err)
}

func (e *MemoryAccessError) Unwrap() error {
	return e.Err
}

// TrapError occurs when a contract export aborts. The instance is unusable afterwards.
type TrapError struct {
	ModuleName   string
	FunctionName string
	Err          error

	// Stderr holds the tail of what the guest wrote to stderr before it trapped.
	Stderr string
}

func (e *TrapError) Error() string {
	msg := fmt.Sprintf("module '%s' trapped in '%s': %v", e.ModuleName, e.FunctionName, e.Err)
	if e.Stderr != "" {
		msg += "\nguest stderr:\n" + e.Stderr
	}
	return msg
}

func (e *TrapError) Unwrap() error {
	return e.Err
}

// TimeoutError occurs when Wasm execution times out
type TimeoutError struct {
	FunctionName string
	Duration     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Wasm execution of '%s' timed out after %v", e.FunctionName, e.Duration)
}

// ResultTooLargeError occurs when a contract returns more bytes than MaxResultBytes
type ResultTooLargeError struct {
	Length uint32
	Limit  uint32
}

func (e *ResultTooLargeError) Error() string {
	return fmt.Sprintf("result of %d bytes exceeds limit of %d", e.Length, e.Limit)
}
