// Command aflmutgen writes the registration file that turns a mutator package
// into an AFL++ custom mutator library, and prints the runtime settings
// schema.
//
//	aflmutgen gen -dir ./examples/reverse -ctor New
//	aflmutgen gen -dir ./mutators/havoc -ctor New -handler Abort \
//	    -import example.com/mutators/havoc -o ./cmd/havoc/zz_aflmut_export.go
//	aflmutgen schema
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/reglet-dev/aflpp-mutator-sdk/application/config"
	"github.com/reglet-dev/aflpp-mutator-sdk/application/generator"
	"github.com/reglet-dev/aflpp-mutator-sdk/application/template"
	"github.com/reglet-dev/aflpp-mutator-sdk/infrastructure/inspector"
)

const usage = `usage:
  aflmutgen gen -dir <package dir> -ctor <constructor> [-handler <func>] [-import <path>] [-o <file>]
  aflmutgen schema
`

func main() {
	if err := runCLI(os.Args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCLI(args []string, stdout io.Writer) error {
	if len(args) < 2 {
		return errors.New(usage)
	}
	switch args[1] {
	case "gen":
		return genCommand(args[2:], stdout)
	case "schema":
		return schemaCommand(stdout)
	case "help", "-h", "--help":
		_, err := io.WriteString(stdout, usage)
		return err
	default:
		return fmt.Errorf("unknown command %q\n%s", args[1], usage)
	}
}

func genCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("gen", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dir := fs.String("dir", ".", "plugin package directory")
	ctor := fs.String("ctor", "", "mutator constructor")
	handler := fs.String("handler", "", "error handler, required for constructors that return an error")
	importPath := fs.String("import", "", "import path of the plugin package, required unless it is package main")
	out := fs.String("o", "", "output file, or - for stdout (default <dir>/"+generator.DefaultFilename+")")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("aflmutgen gen: %w", err)
	}
	if *ctor == "" {
		return errors.New("aflmutgen gen: -ctor is required")
	}

	gen := generator.New(
		generator.WithInspector(inspector.NewDstInspector()),
		generator.WithTemplateEngine(template.NewGoTemplateEngine(template.WithName("export"))),
	)
	src, err := gen.Generate(generator.Request{
		Dir:         *dir,
		Constructor: *ctor,
		Handler:     *handler,
		ImportPath:  *importPath,
	})
	if err != nil {
		return fmt.Errorf("aflmutgen gen: %w", err)
	}

	switch *out {
	case "-":
		_, err = stdout.Write(src)
		return err
	case "":
		*out = filepath.Join(*dir, generator.DefaultFilename)
	}
	if err := os.WriteFile(*out, src, 0o644); err != nil {
		return fmt.Errorf("aflmutgen gen: write %s: %w", *out, err)
	}
	return nil
}

func schemaCommand(stdout io.Writer) error {
	data, err := config.Schema()
	if err != nil {
		return fmt.Errorf("aflmutgen schema: %w", err)
	}
	if _, err := stdout.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(stdout, "\n")
	return err
}
