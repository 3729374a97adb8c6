// Package catalog holds the source metastore: the streams and tables a plan
// may read, declared in CUE.
//
// A catalog file declares sources under the top-level "source" struct:
//
//	package catalog
//
//	source: TEST2: {
//		kind:   "stream"
//		topic:  "test2"
//		format: "JSON"
//		columns: [
//			{name: "COL0", type: "BIGINT"},
//			{name: "COL1", type: "VARCHAR"},
//		]
//	}
//
// Tables must name a key column. Every source schema carries the implicit
// ROWTIME and ROWKEY columns ahead of the declared ones.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/streamsql/internal/schema"
	"github.com/roach88/streamsql/internal/serde"
)

// Kind is the source variant.
type Kind string

const (
	KindStream Kind = "stream"
	KindTable  Kind = "table"
)

// Source is one declared stream or table.
type Source struct {
	Name    string
	Kind    Kind
	Topic   string
	Format  serde.Format
	Key     string
	Columns []schema.Field
}

// ValueSchema is the declared columns alone, the layout of the topic's
// value bytes.
func (s Source) ValueSchema() *schema.Schema {
	return schema.MustNew(s.Columns...)
}

// Schema is the relation schema: ROWTIME, ROWKEY and the declared columns,
// all qualified with the source name.
func (s Source) Schema() *schema.Schema {
	return schema.MustNew(schema.WithImplicitColumns(s.Columns...)...).Qualify(s.Name)
}

// ValueSerde builds the serde for the topic's value bytes.
func (s Source) ValueSerde() (serde.Serde, error) {
	return serde.New(s.Format, s.ValueSchema())
}

// Validate checks the declaration is usable as a relation source.
func (s Source) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("source name is required")
	}
	switch s.Kind {
	case KindStream, KindTable:
	default:
		return fmt.Errorf("source %s: kind must be %q or %q, got %q", s.Name, KindStream, KindTable, s.Kind)
	}
	if s.Topic == "" {
		return fmt.Errorf("source %s: topic is required", s.Name)
	}
	if _, err := serde.ParseFormat(string(s.Format)); err != nil {
		return fmt.Errorf("source %s: %w", s.Name, err)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("source %s: at least one column is required", s.Name)
	}
	for _, c := range s.Columns {
		if schema.IsImplicit(c) {
			return fmt.Errorf("source %s: column %s is implicit and cannot be declared", s.Name, c.Name)
		}
	}
	if _, err := schema.New(s.Columns...); err != nil {
		return fmt.Errorf("source %s: %w", s.Name, err)
	}
	if s.Kind == KindTable && s.Key == "" {
		return fmt.Errorf("source %s: a table must declare its key column", s.Name)
	}
	if s.Key != "" {
		if _, ok := s.ValueSchema().Field(s.Key); !ok {
			return fmt.Errorf("source %s: key %s is not a declared column", s.Name, s.Key)
		}
	}
	return nil
}

// Catalog maps source names to declarations. Lookups are case-insensitive;
// names are stored upper-cased.
type Catalog struct {
	sources map[string]Source
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{sources: make(map[string]Source)}
}

// Add validates and registers a source. Names must be unique; an empty
// format means JSON.
func (c *Catalog) Add(s Source) error {
	s.Name = strings.ToUpper(s.Name)
	if s.Format == "" {
		s.Format = serde.FormatJSON
	}
	if err := s.Validate(); err != nil {
		return err
	}
	s.Format, _ = serde.ParseFormat(string(s.Format))
	if _, dup := c.sources[s.Name]; dup {
		return fmt.Errorf("source %s declared twice", s.Name)
	}
	c.sources[s.Name] = s
	return nil
}

// Lookup finds a source by name.
func (c *Catalog) Lookup(name string) (Source, bool) {
	s, ok := c.sources[strings.ToUpper(name)]
	return s, ok
}

// Names lists the declared sources, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.sources))
	for n := range c.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len is the number of declared sources.
func (c *Catalog) Len() int {
	return len(c.sources)
}
