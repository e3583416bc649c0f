// Package generator writes the file that registers a mutator constructor
// with the plugin package, so that a c-shared build of the plugin exports
// the afl_custom_* symbols.
package generator

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/tools/imports"

	"github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/ports"
)

// DefaultFilename is the name of the generated file.
const DefaultFilename = "zz_aflmut_export.go"

const hostStateType = "*github.com/reglet-dev/aflpp-mutator-sdk/domain/entities.HostState"

var (
	// ErrConstructorNotFound reports that the package has no function with
	// the requested constructor name.
	ErrConstructorNotFound = errors.New("constructor not found")
	// ErrBadSignature reports a constructor that is neither
	// func(*entities.HostState, uint32) M nor
	// func(*entities.HostState, uint32) (F, error).
	ErrBadSignature = errors.New("unsupported constructor signature")
	// ErrHandler reports an error handler that does not fit the constructor.
	ErrHandler = errors.New("invalid error handler")
	// ErrImportPath reports an import path that is missing for a library
	// package or given for package main.
	ErrImportPath = errors.New("invalid import path")
)

const exportTemplate = `// Code generated by aflmutgen. DO NOT EDIT.

package main

{{ if .binding.ImportPath -}}
import (
	"github.com/reglet-dev/aflpp-mutator-sdk/application/plugin"
	{{ .binding.Alias }} "{{ .binding.ImportPath }}"
)
{{- else -}}
import "github.com/reglet-dev/aflpp-mutator-sdk/application/plugin"
{{- end }}

func init() {
{{- if .binding.Fallible }}
	plugin.RegisterFallible({{ .binding.Qualifier }}{{ .binding.Constructor }}, {{ .binding.Qualifier }}{{ .binding.Handler }})
{{- else }}
	plugin.Register({{ .binding.Qualifier }}{{ .binding.Constructor }})
{{- end }}
}
{{- if .binding.EmitMain }}

func main() {}
{{- end }}
`

// Request names the constructor to bind.
type Request struct {
	// Dir is the plugin package directory.
	Dir string
	// Constructor is a top-level function
	// func(*entities.HostState, uint32) T or func(*entities.HostState, uint32) (T, error).
	Constructor string
	// Handler is a func(error) in the same package; required for fallible
	// constructors.
	Handler string
	// ImportPath is the plugin package's import path. Required unless the
	// plugin is itself package main.
	ImportPath string
}

// Generator plans and renders export files.
type Generator struct {
	inspector ports.SourceInspector
	renderer  ports.TemplateEngine
}

// Option configures the Generator.
type Option func(*Generator)

// WithInspector sets the source inspector.
func WithInspector(i ports.SourceInspector) Option {
	return func(g *Generator) {
		g.inspector = i
	}
}

// WithTemplateEngine sets the template engine.
func WithTemplateEngine(t ports.TemplateEngine) Option {
	return func(g *Generator) {
		g.renderer = t
	}
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Plan inspects the plugin package and decides what to generate.
func (g *Generator) Plan(req Request) (entities.Binding, error) {
	if g.inspector == nil {
		return entities.Binding{}, fmt.Errorf("source inspector is required")
	}
	pkg, err := g.inspector.Inspect(req.Dir)
	if err != nil {
		return entities.Binding{}, fmt.Errorf("failed to inspect %s: %w", req.Dir, err)
	}

	ctor, ok := pkg.Funcs[req.Constructor]
	if !ok {
		return entities.Binding{}, fmt.Errorf("%w: %s in package %s", ErrConstructorNotFound, req.Constructor, pkg.Name)
	}
	fallible, err := classify(ctor)
	if err != nil {
		return entities.Binding{}, err
	}

	b := entities.Binding{Constructor: req.Constructor, Fallible: fallible}

	switch {
	case fallible && req.Handler == "":
		return entities.Binding{}, fmt.Errorf("%w: %s returns an error, so a handler is required", ErrHandler, req.Constructor)
	case !fallible && req.Handler != "":
		return entities.Binding{}, fmt.Errorf("%w: %s cannot fail, so it takes no handler", ErrHandler, req.Constructor)
	case fallible:
		h, ok := pkg.Funcs[req.Handler]
		if !ok {
			return entities.Binding{}, fmt.Errorf("%w: %s not found in package %s", ErrHandler, req.Handler, pkg.Name)
		}
		if h.TypeParams != 0 || !slices.Equal(h.Params, []string{"error"}) || len(h.Results) != 0 {
			return entities.Binding{}, fmt.Errorf("%w: %s must be func(error)", ErrHandler, req.Handler)
		}
		b.Handler = req.Handler
	}

	if pkg.Name == "main" {
		if req.ImportPath != "" {
			return entities.Binding{}, fmt.Errorf("%w: package main cannot be imported", ErrImportPath)
		}
		b.EmitMain = !pkg.HasMain
		return b, nil
	}

	if req.ImportPath == "" {
		return entities.Binding{}, fmt.Errorf("%w: package %s is not main, so its import path is required", ErrImportPath, pkg.Name)
	}
	b.ImportPath = req.ImportPath
	b.Alias = pkg.Name
	b.EmitMain = true
	return b, nil
}

// Generate returns the formatted export file for req.
func (g *Generator) Generate(req Request) ([]byte, error) {
	b, err := g.Plan(req)
	if err != nil {
		return nil, err
	}
	return g.Render(b)
}

// Render renders and formats the export file for b.
func (g *Generator) Render(b entities.Binding) ([]byte, error) {
	if g.renderer == nil {
		return nil, fmt.Errorf("template engine is required")
	}
	src, err := g.renderer.Render([]byte(exportTemplate), map[string]any{"binding": b})
	if err != nil {
		return nil, err
	}
	out, err := imports.Process(DefaultFilename, src, &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to format generated code: %w", err)
	}
	return out, nil
}

// classify reports whether ctor is a fallible constructor.
func classify(ctor entities.FuncSignature) (bool, error) {
	if ctor.TypeParams != 0 {
		return false, fmt.Errorf("%w: %s must not have type parameters", ErrBadSignature, ctor.Name)
	}
	if !slices.Equal(ctor.Params, []string{hostStateType, "uint32"}) {
		return false, fmt.Errorf("%w: %s must take (*entities.HostState, uint32)", ErrBadSignature, ctor.Name)
	}
	switch {
	case len(ctor.Results) == 1 && ctor.Results[0] != "error":
		return false, nil
	case len(ctor.Results) == 2 && ctor.Results[0] != "error" && ctor.Results[1] == "error":
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s must return a mutator, optionally with an error", ErrBadSignature, ctor.Name)
	}
}
