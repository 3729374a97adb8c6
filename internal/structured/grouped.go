package structured

import (
	"github.com/roach88/streamsql/internal/expr"
	"github.com/roach88/streamsql/internal/runtime"
	"github.com/roach88/streamsql/internal/schema"
)

// GroupedRelation is the result of GroupBy: re-keyed records waiting for
// an aggregation. Aggregations subscribe through Handle().ForEach.
type GroupedRelation struct {
	kind        Kind
	schema      *schema.Schema
	keyField    schema.Field
	source      *Relation
	expressions []expr.Expression
	handle      runtime.Grouped
}

// Kind returns the variant of the grouped relation (that of its source).
func (g *GroupedRelation) Kind() Kind { return g.kind }

// Schema returns the schema of the grouped rows, unchanged from the source.
func (g *GroupedRelation) Schema() *schema.Schema { return g.schema }

// KeyField returns the synthesized composite key field.
func (g *GroupedRelation) KeyField() schema.Field { return g.keyField }

// Sources returns the relation that was grouped.
func (g *GroupedRelation) Sources() []*Relation { return []*Relation{g.source} }

// Expressions returns the grouping expressions in key order.
func (g *GroupedRelation) Expressions() []expr.Expression {
	return append([]expr.Expression(nil), g.expressions...)
}

// Handle returns the runtime's grouped handle.
func (g *GroupedRelation) Handle() runtime.Grouped { return g.handle }
