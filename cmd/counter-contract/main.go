// Command counter-contract is the counter contract as a wasip1 reactor:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o counter.wasm ./cmd/counter-contract
package main

import (
	"github.com/woxQAQ/wasm-contracts/pkg/contract"
	"github.com/woxQAQ/wasm-contracts/pkg/contract/counter"
)

func init() {
	contract.Register(counter.Handler)
}

// main is not run in reactor mode; the host calls _initialize and then the exports.
func main() {}
