// Package schema provides JSON schema generation for the SDK's configuration.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateSchema creates a standalone JSON schema (draft 2020-12) from a Go
// struct. Nested structs are inlined and the schema carries no $id, so it can
// be compiled under any resource name.
func GenerateSchema(v any, title string) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	s := reflector.Reflect(v)
	s.ID = ""
	s.Title = title

	jsonBytes, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return jsonBytes, nil
}
