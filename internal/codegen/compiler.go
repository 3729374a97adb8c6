package codegen

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/streamsql/internal/expr"
	"github.com/roach88/streamsql/internal/planerr"
	"github.com/roach88/streamsql/internal/schema"
	"github.com/roach88/streamsql/internal/udf"
)

// ErrorPolicy decides what a row-time evaluation fault produces.
type ErrorPolicy int

const (
	// FailOnError returns the fault as an EXPRESSION_EVALUATION error.
	FailOnError ErrorPolicy = iota

	// NullOnError logs the fault and yields NULL.
	NullOnError
)

// String returns the config spelling of the policy.
func (p ErrorPolicy) String() string {
	if p == NullOnError {
		return "null"
	}
	return "fail"
}

// ParseErrorPolicy parses "fail" or "null".
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(s) {
	case "", "fail":
		return FailOnError, nil
	case "null":
		return NullOnError, nil
	}
	return FailOnError, fmt.Errorf("unknown error policy %q (want fail or null)", s)
}

// Compiler turns expressions into CompiledExpressions.
type Compiler struct {
	registry *udf.Registry
	policy   ErrorPolicy
	logger   *slog.Logger
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithRegistry sets the function registry. Default: udf.NewDefaultRegistry().
func WithRegistry(r *udf.Registry) CompilerOption {
	return func(c *Compiler) {
		c.registry = r
	}
}

// WithErrorPolicy sets the row-time error policy. Default: FailOnError.
func WithErrorPolicy(p ErrorPolicy) CompilerOption {
	return func(c *Compiler) {
		c.policy = p
	}
}

// WithLogger sets the logger used for NullOnError warnings.
func WithLogger(l *slog.Logger) CompilerOption {
	return func(c *Compiler) {
		c.logger = l
	}
}

// New creates a Compiler.
func New(opts ...CompilerOption) *Compiler {
	c := &Compiler{
		policy: FailOnError,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = udf.NewDefaultRegistry()
	}
	return c
}

// Registry returns the function registry calls are resolved against.
func (c *Compiler) Registry() *udf.Registry {
	return c.registry
}

// Compile compiles e against input.
func (c *Compiler) Compile(e expr.Expression, input *schema.Schema) (*CompiledExpression, error) {
	if e == nil {
		return nil, fmt.Errorf("cannot compile nil expression")
	}
	if input == nil {
		return nil, fmt.Errorf("cannot compile %s: nil input schema", e)
	}

	b := &builder{
		c:     c,
		root:  e,
		input: input,
		slots: make(map[int]int),
	}
	fn, t, err := b.compile(e)
	if err != nil {
		var pe *planerr.Error
		if errors.As(err, &pe) {
			if pe.Expression == "" {
				pe.Expression = e.String()
			}
			if pe.Schema == "" {
				pe.Schema = input.String()
			}
		}
		return nil, err
	}

	return &CompiledExpression{
		expression:   e,
		input:        input,
		enforcer:     schema.NewEnforcer(input),
		paramIndexes: b.paramIndexes,
		udfs:         b.udfs,
		resultType:   t,
		eval:         fn,
		policy:       c.policy,
		logger:       c.logger,
	}, nil
}

// CompilePredicate compiles e and requires a BOOLEAN result.
func (c *Compiler) CompilePredicate(e expr.Expression, input *schema.Schema) (*CompiledExpression, error) {
	ce, err := c.Compile(e, input)
	if err != nil {
		return nil, err
	}
	if ce.resultType != schema.TypeBoolean && ce.resultType != schema.TypeNull {
		err := planerr.NewTypeMismatch(e.String(),
			fmt.Sprintf("predicate must be BOOLEAN, got %s", ce.resultType))
		err.Schema = input.String()
		return nil, err
	}
	return ce, nil
}

// CompileAll compiles each expression in order, stopping at the first error.
func (c *Compiler) CompileAll(exprs []expr.Expression, input *schema.Schema) ([]*CompiledExpression, error) {
	out := make([]*CompiledExpression, len(exprs))
	for i, e := range exprs {
		ce, err := c.Compile(e, input)
		if err != nil {
			return nil, fmt.Errorf("expression %d: %w", i, err)
		}
		out[i] = ce
	}
	return out, nil
}

// evalFunc evaluates one node against the parameter vector.
type evalFunc func(params []any) (any, error)

// builder holds the state of one Compile call.
type builder struct {
	c            *Compiler
	root         expr.Expression
	input        *schema.Schema
	slots        map[int]int // column index -> param slot
	paramIndexes []int
	udfs         []udf.Function
}

func (b *builder) mismatch(format string, args ...any) error {
	return planerr.NewTypeMismatch(b.root.String(), fmt.Sprintf(format, args...))
}

func (b *builder) compile(e expr.Expression) (evalFunc, schema.Type, error) {
	switch n := e.(type) {
	case expr.Literal:
		return b.compileLiteral(n)
	case expr.ColumnRef:
		return b.compileColumn(n)
	case expr.FunctionCall:
		return b.compileCall(n)
	case expr.Arithmetic:
		return b.compileArithmetic(n)
	case expr.Negate:
		return b.compileNegate(n)
	case expr.Comparison:
		return b.compileComparison(n)
	case expr.Logical:
		return b.compileLogical(n)
	case expr.Not:
		return b.compileNot(n)
	case expr.IsNull:
		return b.compileIsNull(n)
	case expr.Like:
		return b.compileLike(n)
	case expr.Cast:
		return b.compileCast(n)
	}
	return nil, "", b.mismatch("unsupported expression node %T", e)
}

func (b *builder) compileLiteral(n expr.Literal) (evalFunc, schema.Type, error) {
	v := n.Value
	if i, ok := v.(int); ok {
		v = int64(i)
	}
	t, ok := schema.TypeOfValue(v)
	if !ok || t.IsOpaque() {
		return nil, "", b.mismatch("unsupported literal %T", n.Value)
	}
	return func([]any) (any, error) { return v, nil }, t, nil
}

func (b *builder) compileColumn(n expr.ColumnRef) (evalFunc, schema.Type, error) {
	idx, err := b.input.Resolve(n.Source, n.Name)
	if err != nil {
		return nil, "", err
	}
	slot, ok := b.slots[idx]
	if !ok {
		slot = len(b.paramIndexes)
		b.slots[idx] = slot
		b.paramIndexes = append(b.paramIndexes, idx)
	}
	return func(p []any) (any, error) { return p[slot], nil }, b.input.FieldAt(idx).Type, nil
}

func (b *builder) compileCall(n expr.FunctionCall) (evalFunc, schema.Type, error) {
	d, ok := b.c.registry.Lookup(n.Name)
	if !ok {
		return nil, "", planerr.NewUnknownFunction(n.Name, b.root.String())
	}

	args := make([]evalFunc, len(n.Args))
	types := make([]schema.Type, len(n.Args))
	for i, a := range n.Args {
		fn, t, err := b.compile(a)
		if err != nil {
			return nil, "", err
		}
		args[i], types[i] = fn, t
	}

	ret, err := d.ReturnType(types)
	if err != nil {
		return nil, "", b.mismatch("%v", err)
	}

	k := len(b.udfs)
	b.udfs = append(b.udfs, d.New())
	slot := len(b.paramIndexes)
	b.paramIndexes = append(b.paramIndexes, -(k + 1))

	name, callOnNull := d.Name, d.CallOnNull
	return func(p []any) (any, error) {
		fn := p[slot].(udf.Function)
		vals := make([]any, len(args))
		for i, a := range args {
			v, err := a(p)
			if err != nil {
				return nil, err
			}
			if v == nil && !callOnNull {
				return nil, nil
			}
			vals[i] = v
		}
		out, err := fn.Evaluate(vals...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if out == nil || ret == schema.TypeNull {
			return out, nil
		}
		v, ok := convert(ret, out)
		if !ok {
			return nil, fmt.Errorf("%s returned %T, declared %s", name, out, ret)
		}
		return v, nil
	}, ret, nil
}

func (b *builder) compileArithmetic(n expr.Arithmetic) (evalFunc, schema.Type, error) {
	left, lt, err := b.compile(n.Left)
	if err != nil {
		return nil, "", err
	}
	right, rt, err := b.compile(n.Right)
	if err != nil {
		return nil, "", err
	}

	if n.Op == expr.OpAdd && isStringish(lt) && isStringish(rt) && (lt == schema.TypeVarchar || rt == schema.TypeVarchar) {
		return binaryNullable(left, right, func(l, r any) (any, error) {
			return l.(string) + r.(string), nil
		}), schema.TypeVarchar, nil
	}

	t, ok := numericResult(lt, rt)
	if !ok {
		return nil, "", b.mismatch("operator %s: cannot apply to %s and %s", n.Op, lt, rt)
	}
	if t == schema.TypeNull {
		return func([]any) (any, error) { return nil, nil }, t, nil
	}

	op := n.Op
	return binaryNullable(left, right, func(l, r any) (any, error) {
		return arith(op, t, l, r)
	}), t, nil
}

func (b *builder) compileNegate(n expr.Negate) (evalFunc, schema.Type, error) {
	val, t, err := b.compile(n.Value)
	if err != nil {
		return nil, "", err
	}
	if t != schema.TypeNull && !t.IsNumeric() {
		return nil, "", b.mismatch("unary minus: cannot apply to %s", t)
	}
	return func(p []any) (any, error) {
		v, err := val(p)
		if err != nil || v == nil {
			return nil, err
		}
		return negate(v)
	}, t, nil
}

func (b *builder) compileComparison(n expr.Comparison) (evalFunc, schema.Type, error) {
	left, lt, err := b.compile(n.Left)
	if err != nil {
		return nil, "", err
	}
	right, rt, err := b.compile(n.Right)
	if err != nil {
		return nil, "", err
	}

	t, ok := comparableType(lt, rt)
	if !ok {
		return nil, "", b.mismatch("operator %s: cannot compare %s with %s", n.Op, lt, rt)
	}

	op := n.Op
	return binaryNullable(left, right, func(l, r any) (any, error) {
		c, err := compare(t, l, r)
		if err != nil {
			return nil, err
		}
		return compareResult(op, c), nil
	}), schema.TypeBoolean, nil
}

func (b *builder) compileLogical(n expr.Logical) (evalFunc, schema.Type, error) {
	left, lt, err := b.compile(n.Left)
	if err != nil {
		return nil, "", err
	}
	right, rt, err := b.compile(n.Right)
	if err != nil {
		return nil, "", err
	}
	if !isBoolish(lt) || !isBoolish(rt) {
		return nil, "", b.mismatch("operator %s: expected BOOLEAN operands, got %s and %s", n.Op, lt, rt)
	}

	// The short-circuit value: FALSE decides AND, TRUE decides OR.
	decisive := n.Op == expr.OpOr
	return func(p []any) (any, error) {
		l, err := left(p)
		if err != nil {
			return nil, err
		}
		if l == decisive {
			return decisive, nil
		}
		r, err := right(p)
		if err != nil {
			return nil, err
		}
		if r == decisive {
			return decisive, nil
		}
		if l == nil || r == nil {
			return nil, nil
		}
		return !decisive, nil
	}, schema.TypeBoolean, nil
}

func (b *builder) compileNot(n expr.Not) (evalFunc, schema.Type, error) {
	val, t, err := b.compile(n.Value)
	if err != nil {
		return nil, "", err
	}
	if !isBoolish(t) {
		return nil, "", b.mismatch("NOT: expected BOOLEAN operand, got %s", t)
	}
	return func(p []any) (any, error) {
		v, err := val(p)
		if err != nil || v == nil {
			return nil, err
		}
		return !v.(bool), nil
	}, schema.TypeBoolean, nil
}

func (b *builder) compileIsNull(n expr.IsNull) (evalFunc, schema.Type, error) {
	val, _, err := b.compile(n.Value)
	if err != nil {
		return nil, "", err
	}
	negated := n.Negated
	return func(p []any) (any, error) {
		v, err := val(p)
		if err != nil {
			return nil, err
		}
		return (v == nil) != negated, nil
	}, schema.TypeBoolean, nil
}

func (b *builder) compileLike(n expr.Like) (evalFunc, schema.Type, error) {
	val, vt, err := b.compile(n.Value)
	if err != nil {
		return nil, "", err
	}
	if !isStringish(vt) {
		return nil, "", b.mismatch("LIKE: expected VARCHAR operand, got %s", vt)
	}

	// Literal patterns are parsed once.
	if lit, ok := n.Pattern.(expr.Literal); ok {
		if s, ok := lit.Value.(string); ok {
			pat := parseLikePattern(s)
			return func(p []any) (any, error) {
				v, err := val(p)
				if err != nil || v == nil {
					return nil, err
				}
				return pat.match(v.(string)), nil
			}, schema.TypeBoolean, nil
		}
	}

	pattern, pt, err := b.compile(n.Pattern)
	if err != nil {
		return nil, "", err
	}
	if !isStringish(pt) {
		return nil, "", b.mismatch("LIKE: expected VARCHAR pattern, got %s", pt)
	}
	return binaryNullable(val, pattern, func(v, pat any) (any, error) {
		return parseLikePattern(pat.(string)).match(v.(string)), nil
	}), schema.TypeBoolean, nil
}

func (b *builder) compileCast(n expr.Cast) (evalFunc, schema.Type, error) {
	val, from, err := b.compile(n.Value)
	if err != nil {
		return nil, "", err
	}
	to := n.Type
	if !castable(from, to) {
		return nil, "", b.mismatch("cannot CAST %s AS %s", from, to)
	}
	return func(p []any) (any, error) {
		v, err := val(p)
		if err != nil || v == nil {
			return nil, err
		}
		return cast(v, to)
	}, to, nil
}

// binaryNullable evaluates both operands and applies fn unless either is
// NULL.
func binaryNullable(left, right evalFunc, fn func(l, r any) (any, error)) evalFunc {
	return func(p []any) (any, error) {
		l, err := left(p)
		if err != nil {
			return nil, err
		}
		r, err := right(p)
		if err != nil {
			return nil, err
		}
		if l == nil || r == nil {
			return nil, nil
		}
		return fn(l, r)
	}
}

func isStringish(t schema.Type) bool {
	return t == schema.TypeVarchar || t == schema.TypeNull
}

func isBoolish(t schema.Type) bool {
	return t == schema.TypeBoolean || t == schema.TypeNull
}

// numericResult returns the arithmetic result type of two operand types.
func numericResult(lt, rt schema.Type) (schema.Type, bool) {
	switch {
	case lt == schema.TypeNull && rt == schema.TypeNull:
		return schema.TypeNull, true
	case lt == schema.TypeNull && rt.IsNumeric():
		return rt, true
	case rt == schema.TypeNull && lt.IsNumeric():
		return lt, true
	}
	return schema.WidenNumeric(lt, rt)
}

// comparableType returns the type both operands are compared as.
func comparableType(lt, rt schema.Type) (schema.Type, bool) {
	switch {
	case lt == schema.TypeNull:
		return rt, !rt.IsOpaque()
	case rt == schema.TypeNull:
		return lt, !lt.IsOpaque()
	case lt == rt:
		return lt, !lt.IsOpaque()
	}
	return schema.WidenNumeric(lt, rt)
}
