package codegen

import (
	"fmt"
	"log/slog"

	"github.com/roach88/streamsql/internal/expr"
	"github.com/roach88/streamsql/internal/planerr"
	"github.com/roach88/streamsql/internal/schema"
	"github.com/roach88/streamsql/internal/udf"
)

// CompiledExpression is the executable form of one expression.
type CompiledExpression struct {
	expression   expr.Expression
	input        *schema.Schema
	enforcer     *schema.Enforcer
	paramIndexes []int
	udfs         []udf.Function
	resultType   schema.Type
	eval         evalFunc
	policy       ErrorPolicy
	logger       *slog.Logger
}

// Expression returns the source expression.
func (ce *CompiledExpression) Expression() expr.Expression {
	return ce.expression
}

// InputSchema returns the schema the expression was compiled against.
func (ce *CompiledExpression) InputSchema() *schema.Schema {
	return ce.input
}

// ResultType returns the statically inferred result type. A NULL literal
// expression reports schema.TypeNull.
func (ce *CompiledExpression) ResultType() schema.Type {
	return ce.resultType
}

// ParamIndexes returns the binding plan: a non-negative entry is an input
// column index, -(k+1) selects UDFs()[k].
func (ce *CompiledExpression) ParamIndexes() []int {
	out := make([]int, len(ce.paramIndexes))
	copy(out, ce.paramIndexes)
	return out
}

// UDFs returns the function instances bound at compile time.
func (ce *CompiledExpression) UDFs() []udf.Function {
	out := make([]udf.Function, len(ce.udfs))
	copy(out, ce.udfs)
	return out
}

// String returns the expression's display text.
func (ce *CompiledExpression) String() string {
	return ce.expression.String()
}

// Params builds the parameter vector for row, passing every column slot
// through the type enforcer.
func (ce *CompiledExpression) Params(row schema.Row) ([]any, error) {
	if err := ce.input.CheckRow(row); err != nil {
		return nil, err
	}
	params := make([]any, len(ce.paramIndexes))
	for slot, idx := range ce.paramIndexes {
		if idx < 0 {
			params[slot] = ce.udfs[-idx-1]
			continue
		}
		v, err := ce.enforcer.Enforce(idx, row.Columns[idx])
		if err != nil {
			if pe, ok := err.(*planerr.Error); ok {
				pe.Expression = ce.expression.String()
				pe.Row = row.String()
			}
			return nil, err
		}
		params[slot] = v
	}
	return params, nil
}

// Evaluate evaluates the expression against row.
func (ce *CompiledExpression) Evaluate(row schema.Row) (any, error) {
	params, err := ce.Params(row)
	if err != nil {
		return nil, err
	}
	v, err := ce.eval(params)
	if err != nil {
		return ce.fault(row.String(), err)
	}
	return v, nil
}

// Invoke evaluates the expression against a parameter vector already laid
// out per ParamIndexes. Column values must already be enforced.
func (ce *CompiledExpression) Invoke(params []any) (any, error) {
	if len(params) != len(ce.paramIndexes) {
		return nil, planerr.NewArityMismatch("parameter vector", len(params), len(ce.paramIndexes))
	}
	for slot, idx := range ce.paramIndexes {
		if idx < 0 {
			if _, ok := params[slot].(udf.Function); !ok {
				return nil, fmt.Errorf("parameter %d: expected function instance, got %T", slot, params[slot])
			}
		}
	}
	v, err := ce.eval(params)
	if err != nil {
		return ce.fault(fmt.Sprintf("%v", params), err)
	}
	return v, nil
}

// EvaluatePredicate evaluates a BOOLEAN expression. NULL counts as false.
func (ce *CompiledExpression) EvaluatePredicate(row schema.Row) (bool, error) {
	v, err := ce.Evaluate(row)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

func (ce *CompiledExpression) fault(row string, cause error) (any, error) {
	err := planerr.NewEvaluation(ce.expression.String(), row, cause)
	if ce.policy == NullOnError {
		ce.logger.Warn("expression evaluation failed, using null",
			"expression", err.Expression,
			"row", row,
			"error", cause)
		return nil, nil
	}
	return nil, err
}
