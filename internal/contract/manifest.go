package contract

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the name of the manifest inside a contract directory.
const ManifestFile = "manifest.yaml"

// Manifest represents the contract manifest.yaml structure.
type Manifest struct {
	Name        string     `yaml:"name"`
	Version     string     `yaml:"version"`
	Description string     `yaml:"description"`
	Wasm        WasmConfig `yaml:"wasm"`
	StateSchema string     `yaml:"state_schema"`
	Author      string     `yaml:"author"`
	License     string     `yaml:"license"`

	// MaxCallsPerInstance overrides the host default; 0 keeps it.
	MaxCallsPerInstance uint64 `yaml:"max_calls_per_instance"`

	// Internal fields
	dir string // Directory containing manifest
}

// WasmConfig holds Wasm module configuration.
type WasmConfig struct {
	File string `yaml:"file"`
}

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	// Validate manifest
	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	// Check required fields
	if m.Name == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "name",
			Message: "name is required",
		}
	}

	// Names appear in URLs.
	for _, r := range m.Name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   "name",
				Message: fmt.Sprintf("invalid name %q (allowed: a-z, 0-9, '-', '_')", m.Name),
			}
		}
	}

	if m.Version == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "version",
			Message: "version is required",
		}
	}

	if m.Wasm.File == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "wasm.file",
			Message: "wasm.file is required",
		}
	}

	// Validate Wasm file exists
	if _, err := os.Stat(m.WasmPath()); os.IsNotExist(err) {
		return &FileNotFoundError{
			ManifestPath: m.Path(),
			Field:        "wasm.file",
			File:         m.Wasm.File,
		}
	}

	if m.StateSchema != "" {
		if _, err := os.Stat(m.StateSchemaPath()); os.IsNotExist(err) {
			return &FileNotFoundError{
				ManifestPath: m.Path(),
				Field:        "state_schema",
				File:         m.StateSchema,
			}
		}
	}

	return nil
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// WasmPath returns the path to the Wasm file.
func (m *Manifest) WasmPath() string {
	return filepath.Join(m.dir, m.Wasm.File)
}

// StateSchemaPath returns the path to the state schema, or "" when none is set.
func (m *Manifest) StateSchemaPath() string {
	if m.StateSchema == "" {
		return ""
	}
	return filepath.Join(m.dir, m.StateSchema)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}
