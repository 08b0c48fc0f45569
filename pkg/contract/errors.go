package contract

import (
	"errors"
	"fmt"
)

var (
	// ErrArenaExhausted is wrapped by every allocation failure.
	ErrArenaExhausted = errors.New("arena exhausted")

	// ErrNoHandler is returned when the codec is driven before Register was called.
	ErrNoHandler = errors.New("no contract handler registered")

	// ErrMissingField is wrapped by FieldError when a field is absent.
	ErrMissingField = errors.New("field missing")

	// ErrWrongType is wrapped by FieldError when a value has an unexpected kind.
	ErrWrongType = errors.New("wrong type")
)

// AllocError occurs when the arena cannot satisfy an allocation.
type AllocError struct {
	Size     uint32
	Used     uint32
	Capacity uint32
}

func (e *AllocError) Error() string {
	return fmt.Sprintf("cannot allocate %d bytes (used %d of %d): %v",
		e.Size, e.Used, e.Capacity, ErrArenaExhausted)
}

func (e *AllocError) Unwrap() error {
	return ErrArenaExhausted
}

// RangeError occurs when a byte range lies outside the allocated part of the arena.
type RangeError struct {
	Addr  uint32
	Len   uint32
	Base  uint32
	Limit uint32
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range [%#x, +%d) outside allocated memory [%#x, %#x)",
		e.Addr, e.Len, e.Base, e.Limit)
}

// ParseError occurs when an input buffer is not a well-formed JSON document.
type ParseError struct {
	// Input names the buffer: "state" or "action".
	Input  string
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s at offset %d: %v", e.Input, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FieldError reports a missing or mistyped value inside a document.
type FieldError struct {
	// Path is the dotted location of the value; empty for the document root.
	Path    string
	Want    string
	Got     Kind
	Missing bool
}

func (e *FieldError) Error() string {
	path := e.Path
	if path == "" {
		path = "<root>"
	}
	if e.Missing {
		return fmt.Sprintf("field '%s' missing", path)
	}
	return fmt.Sprintf("field '%s' is %s, want %s", path, e.Got, e.Want)
}

func (e *FieldError) Unwrap() error {
	if e.Missing {
		return ErrMissingField
	}
	return ErrWrongType
}

// HandlerError wraps a failure returned by the business handler.
type HandlerError struct {
	Err error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler failed: %v", e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
