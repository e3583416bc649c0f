// Package parser decodes configuration documents.
package parser

import (
	"bytes"
	"errors"
	"io"

	"github.com/reglet-dev/aflpp-mutator-sdk/domain/ports"
	"gopkg.in/yaml.v3"
)

// YamlConfigParser implements ConfigParser for YAML.
type YamlConfigParser struct {
	// Strict rejects keys that do not map onto a field of the target.
	Strict bool
}

// NewYamlConfigParser creates a new YamlConfigParser.
func NewYamlConfigParser(strict bool) ports.ConfigParser {
	return &YamlConfigParser{Strict: strict}
}

// Parse unmarshals YAML bytes into out. Fields missing from the document keep
// their current values; an empty document leaves out untouched.
func (p *YamlConfigParser) Parse(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(p.Strict)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
