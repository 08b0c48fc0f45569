// Package counter is the example contract: it increments state.counter.
package counter

import (
	"fmt"
	"math"

	"github.com/woxQAQ/wasm-contracts/pkg/contract"
)

// State is the counter contract's state document.
type State struct {
	Counter int64 `json:"counter" jsonschema:"required,description=Current counter value"`
}

// Action is the counter contract's action document. An empty action increments by one.
type Action struct {
	Amount *int64 `json:"amount,omitempty" jsonschema:"description=Increment to apply; defaults to 1"`
}

// Handler is the counter contract.
var Handler contract.Handler = contract.HandlerFunc(Apply)

// Apply returns state with counter increased by action.amount (default 1).
// Other state fields are carried over unchanged.
func Apply(state, action contract.Document) (contract.Document, error) {
	n, err := state.GetInt64("counter")
	if err != nil {
		return contract.Document{}, err
	}

	amount := int64(1)
	if action.Has("amount") {
		amount, err = action.GetInt64("amount")
		if err != nil {
			return contract.Document{}, err
		}
	}

	if (amount > 0 && n > math.MaxInt64-amount) || (amount < 0 && n < math.MinInt64-amount) {
		return contract.Document{}, fmt.Errorf("counter %d + %d overflows int64", n, amount)
	}

	return state.With("counter", contract.Int(n+amount))
}
