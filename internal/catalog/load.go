package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/streamsql/internal/schema"
	"github.com/roach88/streamsql/internal/serde"
)

// declarationSchema constrains catalog files before they are decoded.
const declarationSchema = `
#Column: {
	name: string & =~"^[A-Za-z_][A-Za-z0-9_]*$"
	type: string
}

#Source: {
	kind:    "stream" | "table"
	topic:   string & != ""
	format?: string
	key?:    string
	columns: [...#Column]
}

source: [string]: #Source
`

// LoadError is a catalog problem with the CUE position it came from.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads a catalog from a .cue file or a directory of .cue files
// belonging to one CUE package.
func Load(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	} else {
		files, err := FindCUEFiles(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: scanning %s: %w", path, err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("catalog: no CUE files found in %s", path)
		}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, fmt.Errorf("catalog: no CUE instances loaded from %s", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	return compile(ctx, v)
}

// Parse reads a catalog from CUE source text. filename is used in error
// positions only.
func Parse(filename string, src []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return compile(ctx, v)
}

// FindCUEFiles walks dir and returns every .cue file path.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func compile(ctx *cue.Context, v cue.Value) (*Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	constraints := ctx.CompileString(declarationSchema, cue.Filename("catalog-schema.cue"))
	if err := constraints.Err(); err != nil {
		return nil, fmt.Errorf("catalog schema: %w", err)
	}
	v = constraints.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	cat := New()
	sourcesVal := v.LookupPath(cue.ParsePath("source"))
	if !sourcesVal.Exists() {
		return cat, nil
	}
	iter, err := sourcesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		src, err := compileSource(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		if err := cat.Add(src); err != nil {
			return nil, &LoadError{Field: "source." + iter.Label(), Message: err.Error(), Pos: iter.Value().Pos()}
		}
	}
	return cat, nil
}

func compileSource(name string, v cue.Value) (Source, error) {
	src := Source{Name: name}

	kind, err := v.LookupPath(cue.ParsePath("kind")).String()
	if err != nil {
		return src, formatCUEError(err)
	}
	src.Kind = Kind(kind)

	if src.Topic, err = v.LookupPath(cue.ParsePath("topic")).String(); err != nil {
		return src, formatCUEError(err)
	}

	if fv := v.LookupPath(cue.ParsePath("format")); fv.Exists() {
		f, err := fv.String()
		if err != nil {
			return src, formatCUEError(err)
		}
		format, err := serde.ParseFormat(f)
		if err != nil {
			return src, &LoadError{Field: "source." + name + ".format", Message: err.Error(), Pos: fv.Pos()}
		}
		src.Format = format
	}

	if kv := v.LookupPath(cue.ParsePath("key")); kv.Exists() {
		if src.Key, err = kv.String(); err != nil {
			return src, formatCUEError(err)
		}
	}

	columns, err := v.LookupPath(cue.ParsePath("columns")).List()
	if err != nil {
		return src, formatCUEError(err)
	}
	for columns.Next() {
		col := columns.Value()
		colName, err := col.LookupPath(cue.ParsePath("name")).String()
		if err != nil {
			return src, formatCUEError(err)
		}
		typeVal := col.LookupPath(cue.ParsePath("type"))
		typeName, err := typeVal.String()
		if err != nil {
			return src, formatCUEError(err)
		}
		t, err := schema.ParseType(typeName)
		if err != nil {
			return src, &LoadError{
				Field:   fmt.Sprintf("source.%s.columns.%s.type", name, colName),
				Message: err.Error(),
				Pos:     typeVal.Pos(),
			}
		}
		src.Columns = append(src.Columns, schema.NewField(colName, t))
	}
	return src, nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	le := &LoadError{Field: "cue", Message: errors.String(first)}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
