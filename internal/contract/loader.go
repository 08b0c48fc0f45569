package contract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-contracts/internal/wasm"
)

// Loader turns contract directories into compiled contracts.
type Loader struct {
	modules *wasm.ModuleLoader
	logger  *zap.Logger
}

func NewLoader(runtime *wasm.Runtime, logger *zap.Logger) *Loader {
	return &Loader{
		modules: wasm.NewModuleLoader(runtime, logger),
		logger:  logger.With(zap.String("component", "contract-loader")),
	}
}

// LoadContract reads dir/manifest.yaml, compiles the module it names and
// compiles the state schema when one is declared. Compilation is skipped
// when the bytecode digest matches the cached module.
func (l *Loader) LoadContract(ctx context.Context, dir string) (*Contract, error) {
	manifest, err := ParseManifest(dir)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Contract, error) {
		return nil, &ContractLoadError{ContractName: manifest.Name, Err: err}
	}

	var schema *StateSchema
	if path := manifest.StateSchemaPath(); path != "" {
		if schema, err = LoadStateSchema(path); err != nil {
			return fail(err)
		}
	}

	compiled, err := l.modules.LoadModuleFromFile(ctx, manifest.WasmPath())
	if err != nil {
		return fail(err)
	}

	fields := []zap.Field{
		zap.String("contract", manifest.Name),
		zap.String("version", manifest.Version),
		zap.String("sha256", compiled.Digest),
		zap.Int64("wasm_bytes", compiled.SizeBytes),
		zap.Bool("state_schema", schema != nil),
	}
	if manifest.MaxCallsPerInstance > 0 {
		fields = append(fields, zap.Uint64("max_calls_per_instance", manifest.MaxCallsPerInstance))
	}
	l.logger.Info("Contract loaded", fields...)

	return &Contract{
		Manifest: manifest,
		Compiled: compiled,
		Schema:   schema,
		LoadedAt: time.Now(),
	}, nil
}

// DiscoverContracts loads every immediate subdirectory of paths as a
// contract. A missing path is skipped; a contract that fails to load is
// logged and skipped. The error is returned only when nothing loaded.
func (l *Loader) DiscoverContracts(ctx context.Context, paths []string) ([]*Contract, error) {
	var (
		contracts []*Contract
		failed    int
	)

	for _, root := range paths {
		entries, err := os.ReadDir(root)
		if os.IsNotExist(err) {
			l.logger.Warn("Contract path does not exist", zap.String("path", root))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read contract path '%s': %w", root, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			c, err := l.LoadContract(ctx, dir)
			if err != nil {
				failed++
				l.logger.Error("Skipping contract", zap.String("dir", dir), zap.Error(err))
				continue
			}
			contracts = append(contracts, c)
		}
	}

	if len(contracts) == 0 {
		return nil, &NoContractsFoundError{Paths: paths}
	}
	if failed > 0 {
		l.logger.Warn("Serving a partial contract set",
			zap.Int("loaded", len(contracts)),
			zap.Int("skipped", failed),
		)
	}
	return contracts, nil
}
