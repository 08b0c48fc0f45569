// Package contract is the module side of the JSON contract calling convention.
//
// A contract binary registers a Handler and is built as a wasip1 reactor:
//
//	package main
//
//	import (
//		"github.com/woxQAQ/wasm-contracts/pkg/contract"
//		"github.com/woxQAQ/wasm-contracts/pkg/contract/counter"
//	)
//
//	func init() { contract.Register(counter.Handler) }
//
//	func main() {}
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o counter.wasm .
//
// The module then exports _alloc, _dealloc, get_len, handle and handle_result
// (see package abi). Host buffers and results live in a fixed Arena; any
// failure (allocation, parse, handler) traps the instance.
//
// Outside wasip1 the same Arena and Codec run in-process with addresses that
// are plain offsets, which is how hosts and tests drive a contract without a
// Wasm runtime.
package contract
