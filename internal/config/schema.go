package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("ttsd-config.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// Validate checks a decoded configuration document against the embedded
// schema. The document is normalized through JSON so YAML and TOML values
// validate the same way.
func Validate(doc any) error {
	if doc == nil {
		return nil
	}
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config: normalize: %w", err)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("config: normalize: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	return nil
}
