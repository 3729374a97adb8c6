package plandoc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"gopkg.in/yaml.v3"

	"github.com/roach88/streamsql/internal/expr"
	"github.com/roach88/streamsql/internal/schema"
)

// Expr is the YAML form of an expression. Exactly one of Col, Lit, Call,
// Op and Cast is set:
//
//	{col: TEST2.COL0}
//	{lit: 100}                         BIGINT
//	{lit: "1.50", type: DECIMAL}       typed literal
//	{lit: null}                        NULL
//	{call: LEN, args: [{col: COL2}]}
//	{op: "+", args: [a, b]}            + - * / % = <> < <= > >=
//	{op: AND, args: [a, b, c]}         AND and OR fold left
//	{op: NOT, args: [a]}               also NEG, IS NULL, IS NOT NULL
//	{op: LIKE, args: [a], pattern: "a%"}
//	{cast: {col: COL0}, type: VARCHAR}
type Expr struct {
	Col     string     `yaml:"col,omitempty"`
	Lit     yaml.Node  `yaml:"lit,omitempty"`
	Type    string     `yaml:"type,omitempty"`
	Call    string     `yaml:"call,omitempty"`
	Op      string     `yaml:"op,omitempty"`
	Args    []Expr     `yaml:"args,omitempty"`
	Pattern string     `yaml:"pattern,omitempty"`
	Cast    *Expr      `yaml:"cast,omitempty"`
}

// Expression converts the document form into an expression tree.
func (e *Expr) Expression() (expr.Expression, error) {
	set := 0
	for _, present := range []bool{e.Col != "", e.hasLit(), e.Call != "", e.Op != "", e.Cast != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("expression must set exactly one of col, lit, call, op, cast")
	}

	switch {
	case e.Col != "":
		return expr.Col(e.Col), nil
	case e.hasLit():
		return e.literal()
	case e.Call != "":
		args, err := e.args()
		if err != nil {
			return nil, err
		}
		return expr.Call(e.Call, args...), nil
	case e.Cast != nil:
		t, err := schema.ParseType(e.Type)
		if err != nil {
			return nil, fmt.Errorf("cast: %w", err)
		}
		v, err := e.Cast.Expression()
		if err != nil {
			return nil, err
		}
		return expr.Cast{Value: v, Type: t}, nil
	}
	return e.operator()
}

func (e *Expr) args() ([]expr.Expression, error) {
	out := make([]expr.Expression, len(e.Args))
	for i := range e.Args {
		a, err := e.Args[i].Expression()
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = a
	}
	return out, nil
}

func (e *Expr) operator() (expr.Expression, error) {
	args, err := e.args()
	if err != nil {
		return nil, err
	}
	op := strings.ToUpper(strings.Join(strings.Fields(e.Op), " "))

	want := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s takes %d argument(s), got %d", op, n, len(args))
		}
		return nil
	}

	switch op {
	case "+", "-", "*", "/", "%":
		if err := want(2); err != nil {
			return nil, err
		}
		return expr.Arith(expr.ArithmeticOp(op), args[0], args[1]), nil
	case "=", "<>", "!=", "<", "<=", ">", ">=":
		if err := want(2); err != nil {
			return nil, err
		}
		if op == "!=" {
			op = "<>"
		}
		return expr.Compare(expr.ComparisonOp(op), args[0], args[1]), nil
	case "AND", "OR":
		if len(args) < 2 {
			return nil, fmt.Errorf("%s takes at least 2 arguments, got %d", op, len(args))
		}
		out := args[0]
		for _, a := range args[1:] {
			out = expr.Logical{Op: expr.LogicalOp(op), Left: out, Right: a}
		}
		return out, nil
	case "NOT":
		if err := want(1); err != nil {
			return nil, err
		}
		return expr.Not{Value: args[0]}, nil
	case "NEG":
		if err := want(1); err != nil {
			return nil, err
		}
		return expr.Negate{Value: args[0]}, nil
	case "IS NULL", "IS NOT NULL":
		if err := want(1); err != nil {
			return nil, err
		}
		return expr.IsNull{Value: args[0], Negated: op == "IS NOT NULL"}, nil
	case "LIKE":
		if err := want(1); err != nil {
			return nil, err
		}
		return expr.Like{Value: args[0], Pattern: expr.Lit(e.Pattern)}, nil
	}
	return nil, fmt.Errorf("unknown operator %q", e.Op)
}

// hasLit reports whether lit was given, including lit: null.
func (e *Expr) hasLit() bool {
	return e.Lit.Kind != 0
}

func (e *Expr) literal() (expr.Expression, error) {
	n := &e.Lit
	if n.ShortTag() == "!!null" {
		return expr.Lit(nil), nil
	}
	if n.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("literal must be a scalar")
	}

	if e.Type == "" {
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("literal: %w", err)
		}
		switch v := v.(type) {
		case int:
			return expr.Lit(int64(v)), nil
		case float64, bool, string:
			return expr.Lit(v), nil
		}
		return nil, fmt.Errorf("unsupported literal %q", n.Value)
	}

	t, err := schema.ParseType(e.Type)
	if err != nil {
		return nil, fmt.Errorf("literal: %w", err)
	}
	raw := n.Value
	switch t {
	case schema.TypeVarchar:
		return expr.Lit(raw), nil
	case schema.TypeBigInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("literal %q is not a BIGINT", raw)
		}
		return expr.Lit(v), nil
	case schema.TypeInteger:
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("literal %q is not an INTEGER", raw)
		}
		return expr.Lit(int32(v)), nil
	case schema.TypeDouble:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("literal %q is not a DOUBLE", raw)
		}
		return expr.Lit(v), nil
	case schema.TypeBoolean:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("literal %q is not a BOOLEAN", raw)
		}
		return expr.Lit(v), nil
	case schema.TypeDecimal:
		d, _, err := apd.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("literal %q is not a DECIMAL", raw)
		}
		return expr.Lit(d), nil
	}
	return nil, fmt.Errorf("literal of type %s is not supported", t)
}
