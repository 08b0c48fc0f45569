package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// StateSchema validates state documents against a JSON schema.
type StateSchema struct {
	path   string
	schema *jsonschema.Schema
}

// LoadStateSchema compiles the JSON schema at path.
func LoadStateSchema(path string) (*StateSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SchemaError{Path: path, Err: err}
	}
	return CompileStateSchema(path, data)
}

// CompileStateSchema compiles schema source. name identifies it in errors and
// resolves relative $ref values.
func CompileStateSchema(name string, data []byte) (*StateSchema, error) {
	url, err := filepath.Abs(name)
	if err != nil {
		return nil, &SchemaError{Path: name, Err: err}
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, &SchemaError{Path: name, Err: err}
	}

	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, &SchemaError{Path: name, Err: err}
	}

	return &StateSchema{path: name, schema: sch}, nil
}

// Path returns where the schema was loaded from.
func (s *StateSchema) Path() string {
	return s.path
}

// Validate checks one JSON document. Errors are *jsonschema.ValidationError
// for schema mismatches and a plain error for malformed JSON.
func (s *StateSchema) Validate(doc []byte) error {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("malformed JSON: trailing data after document")
	}
	return s.schema.Validate(v)
}
