package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/woxQAQ/wasm-contracts/api/abi"
)

// Codec marshals one contract step across the module boundary: it decodes the
// state and action buffers, dispatches to the Handler and writes the encoded
// result back into the arena.
type Codec struct {
	arena   *Arena
	handler Handler

	// length is the result length register read by get_len.
	length uint32
}

// NewCodec creates a codec that reads inputs from and writes results to arena.
func NewCodec(arena *Arena, handler Handler) *Codec {
	return &Codec{arena: arena, handler: handler}
}

// Arena returns the codec's memory.
func (c *Codec) Arena() *Arena { return c.arena }

// Alloc reserves size bytes for the host to write into.
func (c *Codec) Alloc(size uint32) (uint32, error) {
	return c.arena.Alloc(size)
}

// Free releases the most recent allocation; see Arena.Free.
func (c *Codec) Free(addr, size uint32) bool {
	return c.arena.Free(addr, size)
}

// Len returns the byte length of the most recent successful Handle result.
// It is zero before the first call and after a failed call.
func (c *Codec) Len() uint32 { return c.length }

// Handle runs one contract step over the two input ranges.
func (c *Codec) Handle(stateAddr, stateLen, actionAddr, actionLen uint32) (abi.Result, error) {
	c.length = 0
	if c.handler == nil {
		return abi.Result{}, ErrNoHandler
	}

	state, err := c.decode("state", stateAddr, stateLen)
	if err != nil {
		return abi.Result{}, err
	}
	action, err := c.decode("action", actionAddr, actionLen)
	if err != nil {
		return abi.Result{}, err
	}

	next, err := c.handler.Apply(state, action)
	if err != nil {
		return abi.Result{}, &HandlerError{Err: err}
	}

	out := next.AppendJSON(nil)
	if uint64(len(out)) > math.MaxUint32 {
		return abi.Result{}, fmt.Errorf("result of %d bytes exceeds 32-bit length", len(out))
	}

	addr, err := c.arena.Alloc(uint32(len(out)))
	if err != nil {
		return abi.Result{}, err
	}
	dst, err := c.arena.Bytes(addr, uint32(len(out)))
	if err != nil {
		return abi.Result{}, err
	}
	copy(dst, out)

	c.length = uint32(len(out))
	return abi.Result{Addr: addr, Len: c.length}, nil
}

// decode parses one input range. A zero-length range is the null document.
func (c *Codec) decode(name string, addr, n uint32) (Document, error) {
	if n == 0 {
		return Null(), nil
	}
	buf, err := c.arena.Bytes(addr, n)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", name, err)
	}
	doc, err := Parse(buf)
	if err != nil {
		perr := &ParseError{Input: name, Err: err}
		var se *json.SyntaxError
		if errors.As(err, &se) {
			perr.Offset = se.Offset
		}
		return Document{}, perr
	}
	return doc, nil
}
