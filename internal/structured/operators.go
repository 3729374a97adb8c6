package structured

import (
	"fmt"
	"strings"

	"github.com/roach88/streamsql/internal/codegen"
	"github.com/roach88/streamsql/internal/expr"
	"github.com/roach88/streamsql/internal/planerr"
	"github.com/roach88/streamsql/internal/runtime"
	"github.com/roach88/streamsql/internal/schema"
	"github.com/roach88/streamsql/internal/serde"
)

// KeySeparator joins the components of a composite group-by key, both the
// runtime key value and the key field's display name.
const KeySeparator = "|+|"

// Filter keeps the records for which predicate is TRUE. The result has the
// receiver's schema and key field.
func (r *Relation) Filter(predicate expr.Expression) (*Relation, error) {
	ce, err := r.compiler.CompilePredicate(predicate, r.schema)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", r.name, err)
	}

	keep := func(value schema.Row) (bool, error) {
		return ce.EvaluatePredicate(value)
	}

	out := r.derive("FILTER", r.schema, r.keyField)
	switch r.kind {
	case KindTable:
		out.table = r.table.Filter(keep)
	default:
		out.stream = r.stream.Filter(keep)
	}

	r.logger.Debug("filter planned", "relation", r.name, "predicate", ce.String())
	return out, nil
}

// Select projects every record through exprs. Column i of each output row
// is exprs[i] evaluated against the receiver's schema; outSchema must have
// exactly one field per expression, each able to hold the expression's type.
func (r *Relation) Select(exprs []expr.Expression, outSchema *schema.Schema) (*Relation, error) {
	if outSchema == nil {
		return nil, fmt.Errorf("select %s: nil output schema", r.name)
	}
	if len(exprs) != outSchema.Len() {
		err := planerr.NewArityMismatch("projection", len(exprs), outSchema.Len())
		err.Schema = outSchema.String()
		return nil, fmt.Errorf("select %s: %w", r.name, err)
	}

	compiled, err := r.compiler.CompileAll(exprs, r.schema)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", r.name, err)
	}
	for i, ce := range compiled {
		f := outSchema.FieldAt(i)
		if !assignable(ce.ResultType(), f.Type) {
			err := planerr.NewTypeMismatch(ce.String(),
				fmt.Sprintf("expression of type %s cannot populate %s", ce.ResultType(), f))
			return nil, fmt.Errorf("select %s: %w", r.name, err)
		}
	}

	outSchema = outSchema.WithSources(r.schema.Sources()...)
	project := projector(compiled, schema.NewEnforcer(outSchema))

	out := r.derive("PROJECT", outSchema, r.projectedKey(exprs, outSchema))
	switch r.kind {
	case KindTable:
		out.table = r.table.MapValues(project)
	default:
		out.stream = r.stream.MapValues(project)
	}

	r.logger.Debug("projection planned", "relation", r.name, "schema", outSchema.String())
	return out, nil
}

// assignable reports whether values of type from can be stored in a field
// of type to. Decimals are never narrowed to DOUBLE implicitly.
func assignable(from, to schema.Type) bool {
	if from == schema.TypeDecimal {
		return to == schema.TypeDecimal
	}
	return schema.CanWiden(from, to)
}

func projector(compiled []*codegen.CompiledExpression, enforcer *schema.Enforcer) runtime.ValueMapper {
	return func(value schema.Row) (schema.Row, error) {
		cols := make([]any, len(compiled))
		for i, ce := range compiled {
			v, err := ce.Evaluate(value)
			if err != nil {
				return schema.Row{}, err
			}
			if cols[i], err = enforcer.Enforce(i, v); err != nil {
				return schema.Row{}, err
			}
		}
		return schema.Row{Columns: cols}, nil
	}
}

// projectedKey re-derives the key field of a projection: a bare reference
// to the receiver's key field carries the key to its output field,
// otherwise a bare reference to ROWKEY does. Failing both, a table keeps
// the receiver's key field and a stream is left without one.
func (r *Relation) projectedKey(exprs []expr.Expression, outSchema *schema.Schema) *schema.Field {
	keyIndex, rowKeyIndex := -1, -1
	if r.keyField != nil {
		keyIndex = r.schema.IndexOf(r.keyField.Name)
	}
	for i, f := range r.schema.Fields() {
		if schema.IsImplicit(f) && f.BaseName() == schema.RowKey {
			rowKeyIndex = i
			break
		}
	}

	fallback := -1
	for i, e := range exprs {
		ref, ok := expr.IsColumnRef(e)
		if !ok {
			continue
		}
		idx, err := r.schema.Resolve(ref.Source, ref.Name)
		if err != nil {
			continue
		}
		if idx == keyIndex {
			f := outSchema.FieldAt(i)
			return &f
		}
		if idx == rowKeyIndex && fallback < 0 {
			fallback = i
		}
	}
	if fallback >= 0 {
		f := outSchema.FieldAt(fallback)
		return &f
	}
	if r.kind == KindTable {
		return r.keyField
	}
	return nil
}

// NamedExpression pairs a projected expression with its output name.
type NamedExpression struct {
	Name       string
	Expression expr.Expression
}

// SelectNamed projects like Select, deriving the output schema from the
// names given and the inferred expression types.
func (r *Relation) SelectNamed(items []NamedExpression) (*Relation, error) {
	exprs := make([]expr.Expression, len(items))
	for i, item := range items {
		exprs[i] = item.Expression
	}
	outSchema, err := r.OutputSchema(items)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", r.name, err)
	}
	return r.Select(exprs, outSchema)
}

// OutputSchema infers the schema a projection of items would produce.
func (r *Relation) OutputSchema(items []NamedExpression) (*schema.Schema, error) {
	fields := make([]schema.Field, len(items))
	for i, item := range items {
		if item.Name == "" {
			return nil, fmt.Errorf("projection %d: empty name", i)
		}
		ce, err := r.compiler.Compile(item.Expression, r.schema)
		if err != nil {
			return nil, err
		}
		t := ce.ResultType()
		if t == schema.TypeNull {
			return nil, planerr.NewTypeMismatch(ce.String(),
				fmt.Sprintf("cannot infer a type for %s: CAST it", item.Name))
		}
		fields[i] = schema.NewField(item.Name, t)
	}
	return schema.New(fields...)
}

// GroupBy re-keys every record by the values of exprs, joined with
// KeySeparator in list order. The grouped key field is a VARCHAR named by
// the expressions' display text joined the same way.
//
// A table's deleted rows are dropped before re-keying; the runtime turns
// table updates into a retraction of the old row and an addition of the
// new one.
func (r *Relation) GroupBy(keySerde serde.KeySerde, valueSerde serde.Serde, exprs []expr.Expression) (*GroupedRelation, error) {
	if len(exprs) == 0 {
		return nil, fmt.Errorf("group by %s: no grouping expressions", r.name)
	}
	if keySerde == nil || valueSerde == nil {
		return nil, fmt.Errorf("group by %s: nil serde", r.name)
	}

	compiled, err := r.compiler.CompileAll(exprs, r.schema)
	if err != nil {
		return nil, fmt.Errorf("group by %s: %w", r.name, err)
	}

	names := make([]string, len(compiled))
	for i, ce := range compiled {
		names[i] = ce.String()
	}
	keyField := schema.NewField(strings.Join(names, KeySeparator), schema.TypeVarchar)

	rekey := keyMapper(compiled)

	g := &GroupedRelation{
		kind:        r.kind,
		schema:      r.schema,
		keyField:    keyField,
		source:      r,
		expressions: append([]expr.Expression(nil), exprs...),
	}
	switch r.kind {
	case KindTable:
		g.handle = r.table.Filter(notNull).GroupBy(rekey, keySerde, valueSerde)
	default:
		g.handle = r.stream.GroupBy(rekey, keySerde, valueSerde)
	}

	r.logger.Debug("group by planned", "relation", r.name, "key", keyField.Name)
	return g, nil
}

func keyMapper(compiled []*codegen.CompiledExpression) runtime.KeyMapper {
	return func(_ string, value schema.Row) (string, schema.Row, error) {
		var b strings.Builder
		for i, ce := range compiled {
			v, err := ce.Evaluate(value)
			if err != nil {
				return "", schema.Row{}, err
			}
			if i > 0 {
				b.WriteString(KeySeparator)
			}
			b.WriteString(schema.FormatValue(v, false))
		}
		return b.String(), value, nil
	}
}

func notNull(value schema.Row) (bool, error) {
	return value.Columns != nil, nil
}

// Into writes every record of the relation to topic: the key as UTF-8 and
// the value with valueSerde. It returns the receiver. Each call adds a
// sink, so calling it twice writes every record twice.
func (r *Relation) Into(topic string, valueSerde serde.Serde) (*Relation, error) {
	if valueSerde == nil {
		return nil, fmt.Errorf("into %s: nil value serde", topic)
	}
	if got := valueSerde.Schema().Len(); got != r.schema.Len() {
		err := planerr.NewArityMismatch("value serde schema", got, r.schema.Len())
		err.Schema = r.schema.String()
		return nil, fmt.Errorf("into %s: %w", topic, err)
	}

	var err error
	switch r.kind {
	case KindTable:
		err = r.table.To(topic, serde.StringSerde{}, valueSerde)
	default:
		err = r.stream.To(topic, serde.StringSerde{}, valueSerde)
	}
	if err != nil {
		return nil, fmt.Errorf("into %s: %w", topic, err)
	}

	r.logger.Info("sink attached", "relation", r.name, "topic", topic, "format", valueSerde.Format())
	return r, nil
}

// Print logs every record passing through the relation at Info level and
// returns the receiver.
func (r *Relation) Print() *Relation {
	logRow := func(value schema.Row) (schema.Row, error) {
		r.logger.Info("record", "relation", r.name, "row", value.String())
		return value, nil
	}
	switch r.kind {
	case KindTable:
		r.table.MapValues(logRow)
	default:
		r.stream.MapValues(logRow)
	}
	return r
}
