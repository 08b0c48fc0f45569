package contract

import (
	"fmt"
)

// ManifestNotFoundError occurs when manifest.yaml is not found in a directory.
type ManifestNotFoundError struct {
	Path string
	Err  error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found at '%s': %v", e.Path, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error {
	return e.Err
}

// ManifestParseError occurs when manifest.yaml cannot be parsed as valid YAML.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("failed to parse manifest at '%s': %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestValidationError occurs when manifest.yaml fails validation.
type ManifestValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *ManifestValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest validation failed at '%s': %s (field: %s)",
			e.Path, e.Message, e.Field)
	}
	return fmt.Sprintf("manifest validation failed at '%s': %s", e.Path, e.Message)
}

// FileNotFoundError occurs when a file referenced in the manifest doesn't exist.
type FileNotFoundError struct {
	ManifestPath string
	Field        string
	File         string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found (referenced in manifest '%s')",
		e.Field, e.File, e.ManifestPath)
}

// SchemaError occurs when a state schema cannot be compiled.
type SchemaError struct {
	Path string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid state schema '%s': %v", e.Path, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// SchemaViolationError occurs when a state document does not match its contract's schema.
type SchemaViolationError struct {
	ContractName string
	// Document is "state" for the input or "result" for the returned state.
	Document string
	Err      error
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("contract '%s' %s violates state schema: %v", e.ContractName, e.Document, e.Err)
}

func (e *SchemaViolationError) Unwrap() error {
	return e.Err
}

// ContractLoadError occurs when contract loading fails.
type ContractLoadError struct {
	ContractName string
	Err          error
}

func (e *ContractLoadError) Error() string {
	return fmt.Sprintf("failed to load contract '%s': %v", e.ContractName, e.Err)
}

func (e *ContractLoadError) Unwrap() error {
	return e.Err
}

// ContractNotFoundError occurs when a contract is not found in the registry.
type ContractNotFoundError struct {
	ContractName string
}

func (e *ContractNotFoundError) Error() string {
	return fmt.Sprintf("contract '%s' not found", e.ContractName)
}

// ContractAlreadyRegisteredError occurs when attempting to register a duplicate contract.
type ContractAlreadyRegisteredError struct {
	ContractName string
}

func (e *ContractAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("contract '%s' is already registered", e.ContractName)
}

// NoContractsFoundError occurs when no contracts are found in the configured paths.
type NoContractsFoundError struct {
	Paths []string
}

func (e *NoContractsFoundError) Error() string {
	return fmt.Sprintf("no contracts found in paths: %v", e.Paths)
}
