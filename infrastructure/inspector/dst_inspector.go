// Package inspector reads plugin packages with github.com/dave/dst.
package inspector

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dave/dst"
	"github.com/dave/dst/decorator"

	"github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/ports"
)

// GeneratedPrefix marks files written by the binding generator. They are
// skipped so that regenerating sees the package as the user wrote it.
const GeneratedPrefix = "zz_aflmut_"

// DstInspector implements ports.SourceInspector.
type DstInspector struct{}

// NewDstInspector creates a new DstInspector.
func NewDstInspector() ports.SourceInspector {
	return &DstInspector{}
}

// Inspect parses every non-test Go file in dir.
func (i *DstInspector) Inspect(dir string) (*entities.SourcePackage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") ||
			strings.HasSuffix(name, "_test.go") || strings.HasPrefix(name, GeneratedPrefix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no Go source files in %s", dir)
	}

	pkg := &entities.SourcePackage{Dir: dir, Funcs: make(map[string]entities.FuncSignature)}
	for _, name := range names {
		code, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		f, err := decorator.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}

		if pkg.Name == "" {
			pkg.Name = f.Name.Name
		} else if pkg.Name != f.Name.Name {
			return nil, fmt.Errorf("%s declares package %s, expected %s", name, f.Name.Name, pkg.Name)
		}

		imports := importAliases(f)
		for _, decl := range f.Decls {
			fn, ok := decl.(*dst.FuncDecl)
			if !ok || fn.Recv != nil {
				continue
			}
			if fn.Name.Name == "main" && pkg.Name == "main" {
				pkg.HasMain = true
			}
			pkg.Funcs[fn.Name.Name] = signature(fn, imports)
		}
	}
	return pkg, nil
}

// importAliases maps the local name of each import to its path.
func importAliases(f *dst.File) map[string]string {
	aliases := make(map[string]string, len(f.Imports))
	for _, imp := range f.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		name := path.Base(p)
		if isMajorVersion(name) {
			name = path.Base(path.Dir(p))
		}
		if imp.Name != nil {
			name = imp.Name.Name
		}
		aliases[name] = p
	}
	return aliases
}

func isMajorVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	_, err := strconv.Atoi(s[1:])
	return err == nil
}

func signature(fn *dst.FuncDecl, imports map[string]string) entities.FuncSignature {
	sig := entities.FuncSignature{
		Name:    fn.Name.Name,
		Params:  fieldTypes(fn.Type.Params, imports),
		Results: fieldTypes(fn.Type.Results, imports),
	}
	if fn.Type.TypeParams != nil {
		sig.TypeParams = len(fieldTypes(fn.Type.TypeParams, imports))
	}
	return sig
}

// fieldTypes expands grouped fields: (a, b int) yields two entries.
func fieldTypes(fields *dst.FieldList, imports map[string]string) []string {
	if fields == nil {
		return nil
	}
	var out []string
	for _, field := range fields.List {
		t := typeString(field.Type, imports)
		n := len(field.Names)
		if n == 0 {
			n = 1
		}
		for range n {
			out = append(out, t)
		}
	}
	return out
}

func typeString(expr dst.Expr, imports map[string]string) string {
	switch e := expr.(type) {
	case *dst.Ident:
		return e.Name
	case *dst.StarExpr:
		return "*" + typeString(e.X, imports)
	case *dst.SelectorExpr:
		if x, ok := e.X.(*dst.Ident); ok {
			if p, ok := imports[x.Name]; ok {
				return p + "." + e.Sel.Name
			}
		}
		return typeString(e.X, imports) + "." + e.Sel.Name
	case *dst.ArrayType:
		if e.Len == nil {
			return "[]" + typeString(e.Elt, imports)
		}
		return "[" + typeString(e.Len, imports) + "]" + typeString(e.Elt, imports)
	case *dst.BasicLit:
		return e.Value
	case *dst.MapType:
		return "map[" + typeString(e.Key, imports) + "]" + typeString(e.Value, imports)
	case *dst.Ellipsis:
		return "..." + typeString(e.Elt, imports)
	case *dst.ChanType:
		return "chan " + typeString(e.Value, imports)
	case *dst.FuncType:
		return "func"
	case *dst.InterfaceType:
		if e.Methods == nil || len(e.Methods.List) == 0 {
			return "interface{}"
		}
		return "interface{...}"
	case *dst.IndexExpr:
		return typeString(e.X, imports) + "[" + typeString(e.Index, imports) + "]"
	case *dst.IndexListExpr:
		args := make([]string, len(e.Indices))
		for i, idx := range e.Indices {
			args[i] = typeString(idx, imports)
		}
		return typeString(e.X, imports) + "[" + strings.Join(args, ", ") + "]"
	default:
		return fmt.Sprintf("%T", expr)
	}
}
