package contract

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry indexes loaded contracts by the name callers address them with.
// Names are fixed for the life of the host.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]*Contract
	logger    *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		contracts: make(map[string]*Contract),
		logger:    logger.With(zap.String("component", "contract-registry")),
	}
}

// Register fails with ContractAlreadyRegisteredError when two directories
// declare the same name; the first one keeps it.
func (r *Registry) Register(c *Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.contracts[c.Name()]; ok {
		r.logger.Warn("Duplicate contract name",
			zap.String("contract", c.Name()),
			zap.String("kept", prev.Manifest.Path()),
			zap.String("ignored", c.Manifest.Path()),
		)
		return &ContractAlreadyRegisteredError{ContractName: c.Name()}
	}
	r.contracts[c.Name()] = c

	r.logger.Debug("Contract registered",
		zap.String("contract", c.Name()),
		zap.String("module", c.Compiled.Name),
	)
	return nil
}

func (r *Registry) Get(name string) (*Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[name]
	return c, ok
}

// List returns the contracts ordered by name.
func (r *Registry) List() []*Contract {
	r.mu.RLock()
	out := make([]*Contract, 0, len(r.contracts))
	for _, c := range r.contracts {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contracts)
}
