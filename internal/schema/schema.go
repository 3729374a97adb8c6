// Package schema provides the typed row and field-schema model every other
// package operates on.
//
// Column position is the only addressing mechanism used by compiled
// expressions and rows. Name lookup exists for people and planners.
//
// Invariants:
//   - Field names are unique within a Schema
//   - Field order is column order
//   - A Row belonging to a Schema has exactly Schema.Len() columns
//   - Schemas are immutable once built; derived schemas are new values
package schema

import (
	"fmt"
	"strings"

	"github.com/roach88/streamsql/internal/planerr"
)

// Implicit columns present at the head of every source schema.
const (
	RowTime = "ROWTIME"
	RowKey  = "ROWKEY"
)

// Field is a named, typed column.
type Field struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// NewField creates a Field. Names are stored as given; callers uppercase by
// convention.
func NewField(name string, t Type) Field {
	return Field{Name: name, Type: t}
}

// Qualifier returns the source prefix of a "SOURCE.COLUMN" name, or "".
func (f Field) Qualifier() string {
	if i := strings.IndexByte(f.Name, '.'); i >= 0 {
		return f.Name[:i]
	}
	return ""
}

// BaseName returns the column name without its source prefix.
func (f Field) BaseName() string {
	if i := strings.IndexByte(f.Name, '.'); i >= 0 {
		return f.Name[i+1:]
	}
	return f.Name
}

func (f Field) String() string {
	return f.Name + " " + string(f.Type)
}

// Schema is an ordered, immutable sequence of fields.
//
// A schema also remembers the sources its columns came from, so a
// "SOURCE.COLUMN" reference still resolves after a projection has dropped
// the qualifier.
type Schema struct {
	fields  []Field
	index   map[string]int
	sources []string
}

// New builds a Schema, rejecting duplicate names, empty names and
// undeclarable types.
func New(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d: empty name", i)
		}
		if !f.Type.Valid() {
			return nil, fmt.Errorf("field %q: invalid type %q", f.Name, f.Type)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("field %q: duplicate name", f.Name)
		}
		s.fields[i] = f
		s.index[f.Name] = i
	}
	return s, nil
}

// MustNew is New for fixtures and static schemas. Panics on error.
func MustNew(fields ...Field) *Schema {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Fields returns a copy of the fields in column order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// FieldAt returns the field at column i.
func (s *Schema) FieldAt(i int) Field {
	return s.fields[i]
}

// Field looks up a field by exact name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// IndexOf returns the column index of the exactly named field, or -1.
func (s *Schema) IndexOf(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Names returns the field names in column order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Sources returns the source names the schema's columns derive from: the
// field qualifiers and any carried by WithSources, in first-seen order.
func (s *Schema) Sources() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, f := range s.fields {
		add(f.Qualifier())
	}
	for _, name := range s.sources {
		add(name)
	}
	return out
}

// WithSources returns a copy that also derives from the named sources.
func (s *Schema) WithSources(names ...string) *Schema {
	return &Schema{
		fields:  s.fields,
		index:   s.index,
		sources: append(append([]string(nil), s.sources...), names...),
	}
}

func (s *Schema) hasSource(name string) bool {
	for _, src := range s.Sources() {
		if src == name {
			return true
		}
	}
	return false
}

// Resolve finds the column index for a possibly qualified column reference.
//
// With a qualifier, "QUALIFIER.NAME" must exist, or else an unqualified
// field named NAME when QUALIFIER is one of the schema's Sources (schemas
// produced by a projection drop qualifiers).
// Without one, an exact unqualified match wins; otherwise exactly one
// qualified field may carry NAME as its base name.
func (s *Schema) Resolve(qualifier, name string) (int, error) {
	ref := name
	if qualifier != "" {
		ref = qualifier + "." + name
		if i, ok := s.index[ref]; ok {
			return i, nil
		}
		if i, ok := s.index[name]; ok && s.hasSource(qualifier) {
			return i, nil
		}
		return -1, planerr.NewUnresolvedColumn(ref, "no such column", s.String())
	}

	if i, ok := s.index[name]; ok {
		return i, nil
	}

	match := -1
	for i, f := range s.fields {
		if f.Qualifier() != "" && f.BaseName() == name {
			if match >= 0 {
				return -1, planerr.NewUnresolvedColumn(ref,
					fmt.Sprintf("ambiguous: matches %s and %s", s.fields[match].Name, f.Name),
					s.String())
			}
			match = i
		}
	}
	if match < 0 {
		return -1, planerr.NewUnresolvedColumn(ref, "no such column", s.String())
	}
	return match, nil
}

// Qualify returns a copy whose unqualified fields carry the source prefix.
func (s *Schema) Qualify(source string) *Schema {
	fields := make([]Field, len(s.fields))
	for i, f := range s.fields {
		if f.Qualifier() == "" {
			f.Name = source + "." + f.Name
		}
		fields[i] = f
	}
	return MustNew(fields...).WithSources(s.sources...)
}

// Equal reports whether both schemas have the same fields in the same order.
func (s *Schema) Equal(other *Schema) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil || len(s.fields) != len(other.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != other.fields[i] {
			return false
		}
	}
	return true
}

// CheckRow verifies the row has exactly one column per field.
func (s *Schema) CheckRow(row Row) error {
	if row.Len() != len(s.fields) {
		err := planerr.NewArityMismatch("row", row.Len(), len(s.fields))
		err.Row = row.String()
		err.Schema = s.String()
		return err
	}
	return nil
}

// String renders the schema as "[NAME TYPE, ...]".
func (s *Schema) String() string {
	if s == nil {
		return "[]"
	}
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// WithImplicitColumns prepends ROWTIME and ROWKEY to the declared columns.
func WithImplicitColumns(fields ...Field) []Field {
	out := make([]Field, 0, len(fields)+2)
	out = append(out, NewField(RowTime, TypeBigInt), NewField(RowKey, TypeVarchar))
	return append(out, fields...)
}

// IsImplicit reports whether f is ROWTIME or ROWKEY, qualified or not.
func IsImplicit(f Field) bool {
	base := f.BaseName()
	return base == RowTime || base == RowKey
}
