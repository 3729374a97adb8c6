package expr

import (
	"fmt"
	"strings"

	"github.com/roach88/streamsql/internal/schema"
)

// Expression is a node of a row-level SQL expression tree.
//
// This is a sealed interface - only types in this package implement it.
// String returns the display text used in key-field names, errors and
// explain output.
type Expression interface {
	fmt.Stringer
	exprNode() // Marker method - seals interface to this package
}

// Literal is a constant value.
//
// Value must be one of: int64 (BIGINT), int32 (INTEGER), float64 (DOUBLE),
// bool, string, *apd.Decimal, or nil (NULL).
type Literal struct {
	Value any
}

func (Literal) exprNode() {}

// ColumnRef references a column, optionally qualified by its source.
//
//	ColumnRef{Source: "TEST2", Name: "COL1"}   renders TEST2.COL1
//	ColumnRef{Name: "COL1"}                    renders COL1
type ColumnRef struct {
	Source string
	Name   string
}

func (ColumnRef) exprNode() {}

// FunctionCall invokes a registered function. Names are case-insensitive.
type FunctionCall struct {
	Name string
	Args []Expression
}

func (FunctionCall) exprNode() {}

// ArithmeticOp is a binary arithmetic operator.
type ArithmeticOp string

const (
	OpAdd ArithmeticOp = "+"
	OpSub ArithmeticOp = "-"
	OpMul ArithmeticOp = "*"
	OpDiv ArithmeticOp = "/"
	OpMod ArithmeticOp = "%"
)

// Arithmetic is a binary arithmetic expression. OpAdd on two VARCHAR
// operands concatenates.
type Arithmetic struct {
	Op          ArithmeticOp
	Left, Right Expression
}

func (Arithmetic) exprNode() {}

// Negate is unary minus.
type Negate struct {
	Value Expression
}

func (Negate) exprNode() {}

// ComparisonOp is a binary comparison operator.
type ComparisonOp string

const (
	OpEq ComparisonOp = "="
	OpNe ComparisonOp = "<>"
	OpLt ComparisonOp = "<"
	OpLe ComparisonOp = "<="
	OpGt ComparisonOp = ">"
	OpGe ComparisonOp = ">="
)

// Comparison compares two operands and yields BOOLEAN.
type Comparison struct {
	Op          ComparisonOp
	Left, Right Expression
}

func (Comparison) exprNode() {}

// LogicalOp is a binary logical operator.
type LogicalOp string

const (
	OpAnd LogicalOp = "AND"
	OpOr  LogicalOp = "OR"
)

// Logical combines two BOOLEAN operands with three-valued logic.
type Logical struct {
	Op          LogicalOp
	Left, Right Expression
}

func (Logical) exprNode() {}

// Not negates a BOOLEAN operand.
type Not struct {
	Value Expression
}

func (Not) exprNode() {}

// IsNull tests for NULL, or for non-NULL when Negated.
type IsNull struct {
	Value   Expression
	Negated bool
}

func (IsNull) exprNode() {}

// Like matches a VARCHAR against a pattern where % matches any run of
// characters and _ matches exactly one.
type Like struct {
	Value   Expression
	Pattern Expression
}

func (Like) exprNode() {}

// Cast converts its operand to Type.
type Cast struct {
	Value Expression
	Type  schema.Type
}

func (Cast) exprNode() {}

// Col builds a column reference from "COLUMN" or "SOURCE.COLUMN".
// Names are uppercased by convention.
func Col(ref string) ColumnRef {
	ref = strings.ToUpper(ref)
	if i := strings.IndexByte(ref, '.'); i >= 0 {
		return ColumnRef{Source: ref[:i], Name: ref[i+1:]}
	}
	return ColumnRef{Name: ref}
}

// Lit builds a literal. Go int values become BIGINT.
func Lit(v any) Literal {
	if n, ok := v.(int); ok {
		return Literal{Value: int64(n)}
	}
	return Literal{Value: v}
}

// Call builds a function call.
func Call(name string, args ...Expression) FunctionCall {
	return FunctionCall{Name: strings.ToUpper(name), Args: args}
}

// Arith builds a binary arithmetic expression.
func Arith(op ArithmeticOp, left, right Expression) Arithmetic {
	return Arithmetic{Op: op, Left: left, Right: right}
}

// Compare builds a comparison.
func Compare(op ComparisonOp, left, right Expression) Comparison {
	return Comparison{Op: op, Left: left, Right: right}
}

// And builds a conjunction.
func And(left, right Expression) Logical {
	return Logical{Op: OpAnd, Left: left, Right: right}
}

// Or builds a disjunction.
func Or(left, right Expression) Logical {
	return Logical{Op: OpOr, Left: left, Right: right}
}
