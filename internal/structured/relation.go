package structured

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/streamsql/internal/codegen"
	"github.com/roach88/streamsql/internal/runtime"
	"github.com/roach88/streamsql/internal/schema"
)

// Kind is the relation variant.
type Kind int

const (
	KindStream Kind = iota + 1
	KindTable
)

func (k Kind) String() string {
	switch k {
	case KindStream:
		return "STREAM"
	case KindTable:
		return "TABLE"
	}
	return "UNKNOWN"
}

// Type tells whether a relation reads a topic directly or was derived.
type Type int

const (
	TypeSource Type = iota + 1
	TypeDerived
)

func (t Type) String() string {
	switch t {
	case TypeSource:
		return "SOURCE"
	case TypeDerived:
		return "DERIVED"
	}
	return "UNKNOWN"
}

// Relation is a stream or table together with its schema, key field and
// lineage. Relations are immutable: every operator returns a new Relation
// wrapping a new runtime handle.
type Relation struct {
	kind     Kind
	typ      Type
	name     string
	schema   *schema.Schema
	keyField *schema.Field
	sources  []*Relation

	// Exactly one handle is set, matching kind.
	stream runtime.Stream
	table  runtime.Table

	compiler *codegen.Compiler
	logger   *slog.Logger
}

// Option configures a source Relation. Derived relations inherit the
// settings of their receiver.
type Option func(*Relation)

// WithCompiler sets the expression compiler. Default: codegen.New().
func WithCompiler(c *codegen.Compiler) Option {
	return func(r *Relation) {
		r.compiler = c
	}
}

// WithLogger sets the logger used by Print and plan-build messages.
// Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relation) {
		r.logger = l
	}
}

// NewStream wraps a runtime stream as a source relation. keyField may be
// empty for a stream without a declared key.
func NewStream(name string, s *schema.Schema, keyField string, handle runtime.Stream, opts ...Option) (*Relation, error) {
	if handle == nil {
		return nil, fmt.Errorf("stream %s: nil runtime handle", name)
	}
	r, err := newSource(KindStream, name, s, keyField, opts)
	if err != nil {
		return nil, err
	}
	r.stream = handle
	return r, nil
}

// NewTable wraps a runtime table as a source relation. Tables must declare
// a key field.
func NewTable(name string, s *schema.Schema, keyField string, handle runtime.Table, opts ...Option) (*Relation, error) {
	if handle == nil {
		return nil, fmt.Errorf("table %s: nil runtime handle", name)
	}
	if keyField == "" {
		return nil, fmt.Errorf("table %s: a key field is required", name)
	}
	r, err := newSource(KindTable, name, s, keyField, opts)
	if err != nil {
		return nil, err
	}
	r.table = handle
	return r, nil
}

func newSource(kind Kind, name string, s *schema.Schema, keyField string, opts []Option) (*Relation, error) {
	if name == "" {
		return nil, fmt.Errorf("%s: empty name", kind)
	}
	if s == nil || s.Len() == 0 {
		return nil, fmt.Errorf("%s %s: empty schema", kind, name)
	}

	r := &Relation{
		kind:   kind,
		typ:    TypeSource,
		name:   name,
		schema: s,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.compiler == nil {
		r.compiler = codegen.New()
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if keyField != "" {
		i, err := s.Resolve("", keyField)
		if err != nil {
			return nil, fmt.Errorf("%s %s: key field: %w", kind, name, err)
		}
		f := s.FieldAt(i)
		r.keyField = &f
	}
	return r, nil
}

// derive creates a relation of the receiver's kind built from it.
func (r *Relation) derive(name string, s *schema.Schema, keyField *schema.Field) *Relation {
	return &Relation{
		kind:     r.kind,
		typ:      TypeDerived,
		name:     name,
		schema:   s,
		keyField: keyField,
		sources:  []*Relation{r},
		compiler: r.compiler,
		logger:   r.logger,
	}
}

// Kind returns the relation variant.
func (r *Relation) Kind() Kind { return r.kind }

// Type returns SOURCE or DERIVED.
func (r *Relation) Type() Type { return r.typ }

// Name returns the source name, or the operator that produced the relation.
func (r *Relation) Name() string { return r.name }

// Schema returns the relation's schema.
func (r *Relation) Schema() *schema.Schema { return r.schema }

// KeyField returns the key field, if any.
func (r *Relation) KeyField() (schema.Field, bool) {
	if r.keyField == nil {
		return schema.Field{}, false
	}
	return *r.keyField, true
}

// Sources returns the relations this one was built from. Source relations
// have none.
func (r *Relation) Sources() []*Relation {
	out := make([]*Relation, len(r.sources))
	copy(out, r.sources)
	return out
}

// Stream returns the runtime handle of a stream relation, or nil.
func (r *Relation) Stream() runtime.Stream { return r.stream }

// Table returns the runtime handle of a table relation, or nil.
func (r *Relation) Table() runtime.Table { return r.table }

// Compiler returns the expression compiler the relation's operators use.
func (r *Relation) Compiler() *codegen.Compiler { return r.compiler }

func (r *Relation) String() string {
	return fmt.Sprintf("%s %s %s", r.kind, r.typ, r.name)
}
