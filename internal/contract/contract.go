package contract

import (
	"time"

	"github.com/woxQAQ/wasm-contracts/internal/wasm"
)

// Contract is a loaded contract: its manifest, compiled module and optional state schema.
type Contract struct {
	// Manifest is the parsed contract metadata
	Manifest *Manifest

	// Compiled is the compiled Wasm module
	Compiled *wasm.CompiledModule

	// Schema validates state documents; nil when the manifest names none
	Schema *StateSchema

	// LoadedAt is the timestamp when the contract was loaded
	LoadedAt time.Time
}

// Name returns the contract name.
func (c *Contract) Name() string {
	return c.Manifest.Name
}

// Version returns the contract version.
func (c *Contract) Version() string {
	return c.Manifest.Version
}

// Description returns the contract description.
func (c *Contract) Description() string {
	return c.Manifest.Description
}

// HasSchema reports whether state documents are validated.
func (c *Contract) HasSchema() bool {
	return c.Schema != nil
}
