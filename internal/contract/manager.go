package contract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-contracts/internal/config"
	"github.com/woxQAQ/wasm-contracts/internal/metrics"
	"github.com/woxQAQ/wasm-contracts/internal/wasm"
)

// Manager manages contract lifecycle and runs calls against pooled instances.
//
// Each instance serves one call at a time. Idle instances are reused; an
// instance is replaced after MaxCallsPerInstance calls and discarded after a
// trap. The runtime's MaxInstances bounds the total across all contracts.
type Manager struct {
	cfg         *config.ServerConfig
	runtime     *wasm.Runtime
	loader      *Loader
	registry    *Registry
	instanceMgr *wasm.InstanceManager
	metrics     *metrics.Metrics
	logger      *zap.Logger

	mu     sync.RWMutex
	loaded bool
	closed bool
	pools  map[string]*pool
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records calls and instance events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// Stats is a snapshot of a contract's call and instance counters.
type Stats struct {
	Calls    int64 `json:"calls"`
	Failures int64 `json:"failures"`
	Traps    int64 `json:"traps"`
	Created  int64 `json:"instances_created"`
	Recycled int64 `json:"instances_recycled"`
	Evicted  int64 `json:"instances_evicted"`
	Idle     int   `json:"instances_idle"`
}

// pool holds the idle instances of one contract.
type pool struct {
	contract *Contract
	maxCalls uint64

	mu   sync.Mutex
	idle []*wasm.Caller

	calls    atomic.Int64
	failures atomic.Int64
	traps    atomic.Int64
	created  atomic.Int64
	recycled atomic.Int64
	evicted  atomic.Int64
}

// NewManager creates a new contract manager.
func NewManager(
	cfg *config.ServerConfig,
	runtime *wasm.Runtime,
	logger *zap.Logger,
	opts ...Option,
) *Manager {
	m := &Manager{
		cfg:         cfg,
		runtime:     runtime,
		loader:      NewLoader(runtime, logger),
		registry:    NewRegistry(logger),
		instanceMgr: wasm.NewInstanceManager(runtime, logger),
		logger:      logger.With(zap.String("component", "contract-manager")),
		pools:       make(map[string]*pool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadAll discovers and loads all contracts from configured paths.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("contracts already loaded")
	}

	m.logger.Info("Loading contracts",
		zap.Strings("paths", m.cfg.ContractPaths),
	)

	// Discover contracts
	contracts, err := m.loader.DiscoverContracts(ctx, m.cfg.ContractPaths)
	if err != nil {
		// No contracts is not fatal; the registry simply stays empty.
		var notFound *NoContractsFoundError
		if errors.As(err, &notFound) {
			m.logger.Warn("No contracts found in configured paths",
				zap.Strings("paths", m.cfg.ContractPaths),
			)
			m.loaded = true
			return nil
		}
		return err
	}

	// Register all contracts
	for _, contract := range contracts {
		if err := m.register(contract); err != nil {
			m.logger.Error("Failed to register contract",
				zap.String("name", contract.Manifest.Name),
				zap.Error(err),
			)
			continue
		}
	}

	m.loaded = true

	m.logger.Info("Contracts loaded successfully",
		zap.Int("count", m.registry.Count()),
	)

	return nil
}

// Register adds an already loaded contract.
func (m *Manager) Register(contract *Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.register(contract)
}

func (m *Manager) register(contract *Contract) error {
	if err := m.registry.Register(contract); err != nil {
		return err
	}

	maxCalls := m.cfg.Wasm.MaxCallsPerInstance
	if contract.Manifest.MaxCallsPerInstance > 0 {
		maxCalls = contract.Manifest.MaxCallsPerInstance
	}
	m.pools[contract.Name()] = &pool{contract: contract, maxCalls: maxCalls}
	m.metrics.SetContracts(m.registry.Count())
	return nil
}

// GetContract retrieves a contract by name.
func (m *Manager) GetContract(name string) (*Contract, error) {
	contract, ok := m.registry.Get(name)
	if !ok {
		return nil, &ContractNotFoundError{ContractName: name}
	}

	return contract, nil
}

// Contracts returns all registered contracts sorted by name.
func (m *Manager) Contracts() []*Contract {
	return m.registry.List()
}

// Stats returns the counters of one contract.
func (m *Manager) Stats(name string) (Stats, error) {
	p, err := m.pool(name)
	if err != nil {
		return Stats{}, err
	}

	p.mu.Lock()
	idle := len(p.idle)
	p.mu.Unlock()

	return Stats{
		Calls:    p.calls.Load(),
		Failures: p.failures.Load(),
		Traps:    p.traps.Load(),
		Created:  p.created.Load(),
		Recycled: p.recycled.Load(),
		Evicted:  p.evicted.Load(),
		Idle:     idle,
	}, nil
}

func (m *Manager) pool(name string) (*pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pools[name]
	if !ok {
		return nil, &ContractNotFoundError{ContractName: name}
	}
	return p, nil
}

// Call runs one contract step and returns the new state.
func (m *Manager) Call(ctx context.Context, name string, state, action []byte) ([]byte, error) {
	p, err := m.pool(name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := m.call(ctx, p, state, action)
	duration := time.Since(start)

	p.calls.Inc()
	if err != nil {
		p.failures.Inc()
	}
	m.metrics.ObserveCall(name, outcome(err), duration, len(out))

	if err != nil {
		m.logger.Debug("Contract call failed",
			zap.String("contract", name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}
	return out, nil
}

func (m *Manager) call(ctx context.Context, p *pool, state, action []byte) ([]byte, error) {
	contract := p.contract

	if contract.Schema != nil {
		if err := contract.Schema.Validate(nullIfEmpty(state)); err != nil {
			return nil, &SchemaViolationError{ContractName: contract.Name(), Document: "state", Err: err}
		}
	}

	caller, err := m.acquire(ctx, p)
	if err != nil {
		return nil, err
	}

	out, err := caller.Call(ctx, state, action)
	m.release(ctx, p, caller)
	if err != nil {
		return nil, err
	}

	if contract.Schema != nil {
		if err := contract.Schema.Validate(out); err != nil {
			return nil, &SchemaViolationError{ContractName: contract.Name(), Document: "result", Err: err}
		}
	}
	return out, nil
}

// acquire takes an idle instance or creates one. At the instance limit,
// idle instances of other contracts are evicted to make room.
func (m *Manager) acquire(ctx context.Context, p *pool) (*wasm.Caller, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		caller := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return caller, nil
	}
	p.mu.Unlock()

	var inst *wasm.Instance
	for {
		var err error
		inst, err = m.instanceMgr.Instantiate(ctx, &wasm.InstanceConfig{
			ModuleName: p.contract.Compiled.Name,
		})
		if err == nil {
			break
		}
		var limitErr *wasm.InstanceLimitError
		if !errors.As(err, &limitErr) || !m.evictIdle(ctx, p) {
			return nil, err
		}
	}

	p.created.Inc()
	m.metrics.InstanceEvent(p.contract.Name(), "created", 1)
	return wasm.NewCaller(inst, m.runtime.Config(), m.logger), nil
}

// evictIdle closes the least recently used idle instance of a pool other
// than p. It reports false when no other pool has one.
func (m *Manager) evictIdle(ctx context.Context, p *pool) bool {
	m.mu.RLock()
	pools := make([]*pool, 0, len(m.pools))
	for _, other := range m.pools {
		if other != p {
			pools = append(pools, other)
		}
	}
	m.mu.RUnlock()

	for _, other := range pools {
		other.mu.Lock()
		if len(other.idle) == 0 {
			other.mu.Unlock()
			continue
		}
		caller := other.idle[0]
		other.idle = other.idle[1:]
		other.mu.Unlock()

		name := other.contract.Name()
		other.evicted.Inc()
		m.metrics.InstanceEvent(name, "evicted", -1)
		m.logger.Debug("Evicting idle contract instance",
			zap.String("contract", name),
			zap.String("instance_id", caller.Name()),
			zap.String("for_contract", p.contract.Name()),
		)
		if err := caller.Close(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("Failed to close instance", zap.Error(err))
		}
		return true
	}
	return false
}

// release returns caller to the pool, or retires it.
func (m *Manager) release(ctx context.Context, p *pool, caller *wasm.Caller) {
	name := p.contract.Name()

	if caller.Poisoned() {
		p.traps.Inc()
		m.metrics.InstanceEvent(name, "poisoned", -1)
		return
	}

	if p.maxCalls > 0 && caller.Calls() >= p.maxCalls {
		p.recycled.Inc()
		m.metrics.InstanceEvent(name, "recycled", -1)
		m.logger.Debug("Recycling contract instance",
			zap.String("contract", name),
			zap.String("instance_id", caller.Name()),
			zap.Uint64("calls", caller.Calls()),
		)
		if err := caller.Close(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("Failed to close instance", zap.Error(err))
		}
		return
	}

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		caller.Close(context.WithoutCancel(ctx))
		return
	}

	p.mu.Lock()
	p.idle = append(p.idle, caller)
	p.mu.Unlock()
}

// Shutdown gracefully shuts down all contracts.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down contract manager")

	m.mu.Lock()
	m.closed = true
	pools := make([]*pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	for _, p := range pools {
		p.mu.Lock()
		idle := p.idle
		p.idle = nil
		p.mu.Unlock()

		for _, caller := range idle {
			if err := caller.Close(ctx); err != nil {
				m.logger.Warn("Failed to close instance",
					zap.String("instance_id", caller.Name()),
					zap.Error(err),
				)
			}
		}
	}

	// Runtime close handles instances still in flight
	if err := m.runtime.Close(ctx); err != nil {
		m.logger.Error("Failed to shutdown runtime", zap.Error(err))
		return err
	}

	m.logger.Info("Contract manager shutdown complete")
	return nil
}

// Registry returns the contract registry (for testing/inspection).
func (m *Manager) Registry() *Registry {
	return m.registry
}

// IsLoaded returns whether contracts have been loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

func nullIfEmpty(doc []byte) []byte {
	if len(doc) == 0 {
		return []byte("null")
	}
	return doc
}

func outcome(err error) string {
	var (
		trapErr    *wasm.TrapError
		timeoutErr *wasm.TimeoutError
		limitErr   *wasm.InstanceLimitError
		schemaErr  *SchemaViolationError
	)
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.As(err, &trapErr), errors.Is(err, wasm.ErrInstancePoisoned):
		return metrics.OutcomeTrap
	case errors.As(err, &timeoutErr):
		return metrics.OutcomeTimeout
	case errors.As(err, &schemaErr):
		return metrics.OutcomeInvalid
	case errors.As(err, &limitErr):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
