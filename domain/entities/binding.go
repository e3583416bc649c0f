package entities

// FuncSignature is a top-level function as declared in plugin source. Types
// are rendered with package qualifiers replaced by full import paths, e.g.
// "*github.com/reglet-dev/aflpp-mutator-sdk/domain/entities.HostState".
type FuncSignature struct {
	Name       string
	Params     []string
	Results    []string
	TypeParams int
}

// SourcePackage summarizes the non-test, non-generated files of a plugin
// package directory.
type SourcePackage struct {
	Name    string
	Dir     string
	HasMain bool
	Funcs   map[string]FuncSignature
}

// Binding is everything needed to render an export file for one mutator
// constructor.
type Binding struct {
	// Constructor is the constructor's identifier.
	Constructor string
	// Handler is the error handler's identifier; set only when Fallible.
	Handler string
	// ImportPath and Alias name the plugin package when the export file is a
	// separate main package. Both are empty when it joins package main.
	ImportPath string
	Alias      string
	// Fallible selects plugin.RegisterFallible.
	Fallible bool
	// EmitMain adds the empty main function c-shared builds require.
	EmitMain bool
}

// Qualifier returns the prefix for identifiers of the plugin package.
func (b Binding) Qualifier() string {
	if b.Alias == "" {
		return ""
	}
	return b.Alias + "."
}
