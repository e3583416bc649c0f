package ports

import "github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"

// SourceInspector reads a plugin package from disk.
type SourceInspector interface {
	// Inspect summarizes the package in dir.
	Inspect(dir string) (*entities.SourcePackage, error)
}

// TemplateEngine renders text templates.
type TemplateEngine interface {
	// Render processes raw with data as the template's dot.
	Render(raw []byte, data map[string]any) ([]byte, error)
}
