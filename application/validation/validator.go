// Package validation checks loosely typed documents against JSON schemas
// before they are decoded into typed configuration.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator validates documents against one compiled JSON schema.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// Violation is one schema failure.
type Violation struct {
	Location string
	Message  string
}

// ViolationError lists every schema failure of a document.
type ViolationError struct {
	Violations []Violation
}

func (e *ViolationError) Error() string {
	if len(e.Violations) == 0 {
		return "document does not match schema"
	}
	v := e.Violations[0]
	msg := fmt.Sprintf("document does not match schema at %q: %s", v.Location, v.Message)
	if n := len(e.Violations) - 1; n > 0 {
		msg += fmt.Sprintf(" (and %d more)", n)
	}
	return msg
}

// NewSchemaValidator compiles schemaJSON under name.
func NewSchemaValidator(name string, schemaJSON []byte) (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource for %s: %w", name, err)
	}
	sch, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("invalid schema for %s: %w", name, err)
	}
	return &SchemaValidator{schema: sch}, nil
}

// Validate checks doc. The document is normalized through JSON first so
// values decoded by any parser (YAML integers, typed structs) compare the
// way the schema expects.
func (v *SchemaValidator) Validate(doc any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to prepare validation object: %w", err)
	}
	var obj any
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("failed to prepare validation object: %w", err)
	}

	if err := v.schema.Validate(obj); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		return &ViolationError{Violations: flatten(ve, nil)}
	}
	return nil
}

// flatten collects the leaf causes of ve, which carry the useful messages.
func flatten(ve *jsonschema.ValidationError, out []Violation) []Violation {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return append(out, Violation{Location: loc, Message: ve.Message})
	}
	for _, c := range ve.Causes {
		out = flatten(c, out)
	}
	return out
}
