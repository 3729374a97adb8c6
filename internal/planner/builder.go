package planner

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/streamsql/internal/catalog"
	"github.com/roach88/streamsql/internal/codegen"
	"github.com/roach88/streamsql/internal/expr"
	"github.com/roach88/streamsql/internal/runtime"
	"github.com/roach88/streamsql/internal/serde"
	"github.com/roach88/streamsql/internal/structured"
)

// Sink names where a query writes.
type Sink struct {
	Topic  string
	Format serde.Format
}

// Query is a built plan: the relations wired onto the runtime.
//
// Exactly one of Sink and Grouped is set when the plan ends in an output or
// a group by; neither is set for a plan that only reads.
type Query struct {
	ID      string
	Name    string
	Plan    *Plan
	Result  *structured.Relation
	Grouped *structured.GroupedRelation
	Sink    *Sink
}

// Explain renders the query header followed by the relation lineage.
func (q *Query) Explain() string {
	var b strings.Builder
	b.WriteString("QUERY ")
	b.WriteString(q.ID)
	if q.Name != "" {
		b.WriteByte(' ')
		b.WriteString(q.Name)
	}
	b.WriteByte('\n')
	if q.Sink != nil {
		fmt.Fprintf(&b, "SINK %s %s\n", q.Sink.Topic, q.Sink.Format)
	}
	if q.Grouped != nil {
		b.WriteString(q.Grouped.Explain())
	} else {
		b.WriteString(q.Result.Explain())
	}
	return b.String()
}

// Builder builds plans against a catalog and a runtime.
type Builder struct {
	catalog  *catalog.Catalog
	runtime  runtime.Builder
	compiler *codegen.Compiler
	keySerde serde.KeySerde
	ids      IDGenerator
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithCompiler sets the expression compiler shared by every relation.
func WithCompiler(c *codegen.Compiler) Option {
	return func(b *Builder) {
		b.compiler = c
	}
}

// WithKeySerde sets the serde for group-by keys. Defaults to
// serde.StringSerde.
func WithKeySerde(ks serde.KeySerde) Option {
	return func(b *Builder) {
		b.keySerde = ks
	}
}

// WithIDGenerator sets the query ID source. Defaults to UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(b *Builder) {
		b.ids = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// NewBuilder creates a Builder.
func NewBuilder(cat *catalog.Catalog, rt runtime.Builder, opts ...Option) *Builder {
	b := &Builder{
		catalog:  cat,
		runtime:  rt,
		keySerde: serde.StringSerde{},
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if b.compiler == nil {
		b.compiler = codegen.New(codegen.WithLogger(b.logger))
	}
	return b
}

// Build validates p and wires it onto the runtime.
func (b *Builder) Build(p *Plan) (*Query, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	nodes := p.Nodes()

	rel, err := b.source(nodes[0].(*SourceNode))
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", p.Name, err)
	}

	q := &Query{ID: b.ids.Generate(), Name: p.Name, Plan: p}
	for _, n := range nodes[1:] {
		switch n := n.(type) {
		case *FilterNode:
			rel, err = rel.Filter(n.Predicate)

		case *ProjectNode:
			rel, err = b.project(rel, n)

		case *GroupByNode:
			format := formatOrDefault(n.Format)
			var vs serde.Serde
			if vs, err = serde.New(format, rel.Schema()); err == nil {
				q.Grouped, err = rel.GroupBy(b.keySerde, vs, n.Expressions)
			}

		case *OutputNode:
			format := formatOrDefault(n.Format)
			var vs serde.Serde
			if vs, err = serde.New(format, rel.Schema()); err == nil {
				rel, err = rel.Into(n.Topic, vs)
				q.Sink = &Sink{Topic: n.Topic, Format: format}
			}
		}
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", p.Name, err)
		}
	}
	q.Result = rel

	b.logger.Info("query built",
		"query_id", q.ID,
		"name", q.Name,
		"source", nodes[0].(*SourceNode).Source,
		"nodes", len(nodes))
	return q, nil
}

func (b *Builder) source(n *SourceNode) (*structured.Relation, error) {
	src, ok := b.catalog.Lookup(n.Source)
	if !ok {
		return nil, fmt.Errorf("unknown source %s", n.Source)
	}
	vs, err := src.ValueSerde()
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}

	opts := []structured.Option{
		structured.WithCompiler(b.compiler),
		structured.WithLogger(b.logger),
	}
	switch src.Kind {
	case catalog.KindTable:
		handle, err := b.runtime.Table(src.Topic, vs)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		return structured.NewTable(src.Name, src.Schema(), src.Key, handle, opts...)
	default:
		handle, err := b.runtime.Stream(src.Topic, vs)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		return structured.NewStream(src.Name, src.Schema(), src.Key, handle, opts...)
	}
}

func (b *Builder) project(rel *structured.Relation, n *ProjectNode) (*structured.Relation, error) {
	exprs := make([]expr.Expression, len(n.Items))
	aliases := make([]string, len(n.Items))
	for i, item := range n.Items {
		exprs[i] = item.Expression
		aliases[i] = item.Alias
	}
	named, err := structured.Named(exprs, aliases)
	if err != nil {
		return nil, err
	}
	return rel.SelectNamed(named)
}
