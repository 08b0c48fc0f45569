package contract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/woxQAQ/wasm-contracts/internal/wasm"
)

func newTestRuntime(t *testing.T) *wasm.Runtime {
	t.Helper()
	ctx := context.Background()

	runtime, err := wasm.NewRuntime(ctx, zap.NewNop(), wasm.DefaultRuntimeConfig())
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	t.Cleanup(func() { runtime.Close(context.Background()) })
	return runtime
}

func TestLoader_LoadContract_Valid(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(newTestRuntime(t), zap.NewNop())

	contract, err := loader.LoadContract(ctx, filepath.Join("testdata", "contracts", "echo"))
	if err != nil {
		t.Fatalf("LoadContract() failed: %v", err)
	}

	if contract.Name() != "echo" {
		t.Errorf("expected name 'echo', got '%s'", contract.Name())
	}

	if contract.Version() != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", contract.Version())
	}

	if !contract.HasSchema() {
		t.Error("expected state schema to be loaded")
	}

	if contract.Compiled == nil || contract.Compiled.SizeBytes == 0 {
		t.Error("expected compiled module")
	}
}

func TestLoader_LoadContract_ManifestNotFound(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(newTestRuntime(t), zap.NewNop())

	_, err := loader.LoadContract(ctx, filepath.Join("testdata", "contracts", "nonexistent"))
	if err == nil {
		t.Fatal("LoadContract() should fail for nonexistent directory")
	}

	var notFound *ManifestNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected ManifestNotFoundError, got %T", err)
	}
}

func TestLoader_DiscoverContracts(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(newTestRuntime(t), zap.NewNop())

	contracts, err := loader.DiscoverContracts(ctx, []string{
		filepath.Join("testdata", "contracts"),
		filepath.Join("testdata", "does-not-exist"),
	})
	if err != nil {
		t.Fatalf("DiscoverContracts() failed: %v", err)
	}

	if len(contracts) != 2 {
		t.Fatalf("expected 2 contracts, got %d", len(contracts))
	}
}

func TestLoader_DiscoverContracts_SkipsBroken(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(newTestRuntime(t), zap.NewNop())

	_, err := loader.DiscoverContracts(ctx, []string{filepath.Join("testdata", "broken")})

	var none *NoContractsFoundError
	if !errors.As(err, &none) {
		t.Fatalf("expected NoContractsFoundError, got %T: %v", err, err)
	}
}

func TestLoader_DiscoverContracts_Empty(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(newTestRuntime(t), zap.NewNop())

	_, err := loader.DiscoverContracts(ctx, []string{t.TempDir()})

	var none *NoContractsFoundError
	if !errors.As(err, &none) {
		t.Errorf("expected NoContractsFoundError, got %T", err)
	}
}

func TestLoader_LoadContract_LogsIdentity(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	loader := NewLoader(newTestRuntime(t), zap.New(core))

	contract, err := loader.LoadContract(context.Background(), filepath.Join("testdata", "contracts", "echo"))
	if err != nil {
		t.Fatalf("LoadContract() failed: %v", err)
	}

	entries := logs.FilterMessage("Contract loaded").All()
	if len(entries) != 1 {
		t.Fatalf("expected one load entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["contract"] != "echo" {
		t.Errorf("contract field = %v", fields["contract"])
	}
	if fields["sha256"] != contract.Compiled.Digest {
		t.Errorf("sha256 field = %v, want %s", fields["sha256"], contract.Compiled.Digest)
	}
	if fields["max_calls_per_instance"] != uint64(2) {
		t.Errorf("max_calls_per_instance field = %v, want 2", fields["max_calls_per_instance"])
	}
}

func TestLoader_DiscoverContracts_PartialSet(t *testing.T) {
	dir := t.TempDir()
	writeEchoContract(t, dir, "good")
	if err := os.MkdirAll(filepath.Join(dir, "broken"), 0o755); err != nil {
		t.Fatal(err)
	}

	core, logs := observer.New(zapcore.InfoLevel)
	loader := NewLoader(newTestRuntime(t), zap.New(core))

	contracts, err := loader.DiscoverContracts(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("DiscoverContracts() failed: %v", err)
	}
	if len(contracts) != 1 || contracts[0].Name() != "good" {
		t.Fatalf("expected only 'good', got %d contracts", len(contracts))
	}

	// A schema-less manifest without an override logs no override field.
	loaded := logs.FilterMessage("Contract loaded").All()
	if len(loaded) != 1 {
		t.Fatalf("expected one load entry, got %d", len(loaded))
	}
	if _, ok := loaded[0].ContextMap()["max_calls_per_instance"]; ok {
		t.Error("unexpected max_calls_per_instance field")
	}

	partial := logs.FilterMessage("Serving a partial contract set").All()
	if len(partial) != 1 || partial[0].ContextMap()["skipped"] != int64(1) {
		t.Errorf("expected partial-set warning with skipped=1, got %v", partial)
	}
}
