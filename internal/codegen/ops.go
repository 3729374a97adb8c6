package codegen

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/streamsql/internal/expr"
	"github.com/roach88/streamsql/internal/schema"
)

var (
	errDivisionByZero = errors.New("division by zero")
	errOverflow       = errors.New("integer overflow")
)

// convert brings a non-nil runtime value to the representation of t. Unlike
// schema.Coerce it also turns DECIMAL into DOUBLE, the top of the arithmetic
// widening order.
func convert(t schema.Type, v any) (any, bool) {
	if d, ok := v.(*apd.Decimal); ok && t == schema.TypeDouble {
		f, err := d.Float64()
		return f, err == nil
	}
	return schema.Coerce(t, v)
}

// arith applies op to two non-nil operands, both converted to t first.
func arith(op expr.ArithmeticOp, t schema.Type, l, r any) (any, error) {
	lv, ok := convert(t, l)
	if !ok {
		return nil, fmt.Errorf("cannot convert %T to %s", l, t)
	}
	rv, ok := convert(t, r)
	if !ok {
		return nil, fmt.Errorf("cannot convert %T to %s", r, t)
	}

	switch t {
	case schema.TypeInteger:
		n, err := arithInt64(op, int64(lv.(int32)), int64(rv.(int32)))
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, errOverflow
		}
		return int32(n), nil
	case schema.TypeBigInt:
		return arithInt64(op, lv.(int64), rv.(int64))
	case schema.TypeDouble:
		return arithFloat64(op, lv.(float64), rv.(float64)), nil
	case schema.TypeDecimal:
		return arithDecimal(op, lv.(*apd.Decimal), rv.(*apd.Decimal))
	}
	return nil, fmt.Errorf("operator %s: unsupported type %s", op, t)
}

func arithInt64(op expr.ArithmeticOp, a, b int64) (int64, error) {
	switch op {
	case expr.OpAdd:
		r := a + b
		if (r > a) != (b > 0) {
			return 0, errOverflow
		}
		return r, nil
	case expr.OpSub:
		r := a - b
		if (r < a) != (b > 0) {
			return 0, errOverflow
		}
		return r, nil
	case expr.OpMul:
		if a == 0 || b == 0 {
			return 0, nil
		}
		r := a * b
		if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return 0, errOverflow
		}
		return r, nil
	case expr.OpDiv:
		if b == 0 {
			return 0, errDivisionByZero
		}
		if a == math.MinInt64 && b == -1 {
			return 0, errOverflow
		}
		return a / b, nil
	case expr.OpMod:
		if b == 0 {
			return 0, errDivisionByZero
		}
		if b == -1 {
			return 0, nil
		}
		return a % b, nil
	}
	return 0, fmt.Errorf("unknown operator %s", op)
}

// arithFloat64 follows IEEE 754: division by zero yields an infinity.
func arithFloat64(op expr.ArithmeticOp, a, b float64) float64 {
	switch op {
	case expr.OpAdd:
		return a + b
	case expr.OpSub:
		return a - b
	case expr.OpMul:
		return a * b
	case expr.OpDiv:
		return a / b
	default:
		return math.Mod(a, b)
	}
}

func arithDecimal(op expr.ArithmeticOp, a, b *apd.Decimal) (*apd.Decimal, error) {
	if (op == expr.OpDiv || op == expr.OpMod) && b.IsZero() {
		return nil, errDivisionByZero
	}
	d := new(apd.Decimal)
	var err error
	switch op {
	case expr.OpAdd:
		_, err = schema.DecimalContext.Add(d, a, b)
	case expr.OpSub:
		_, err = schema.DecimalContext.Sub(d, a, b)
	case expr.OpMul:
		_, err = schema.DecimalContext.Mul(d, a, b)
	case expr.OpDiv:
		_, err = schema.DecimalContext.Quo(d, a, b)
	case expr.OpMod:
		_, err = schema.DecimalContext.Rem(d, a, b)
	default:
		err = fmt.Errorf("unknown operator %s", op)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func negate(v any) (any, error) {
	switch n := v.(type) {
	case int32:
		if n == math.MinInt32 {
			return nil, errOverflow
		}
		return -n, nil
	case int64:
		if n == math.MinInt64 {
			return nil, errOverflow
		}
		return -n, nil
	case float64:
		return -n, nil
	case *apd.Decimal:
		return new(apd.Decimal).Neg(n), nil
	}
	return nil, fmt.Errorf("unary minus: unsupported value %T", v)
}

// compare returns -1, 0 or +1 for two non-nil operands compared as t.
func compare(t schema.Type, l, r any) (int, error) {
	if t.IsNumeric() {
		lv, ok := convert(t, l)
		if !ok {
			return 0, fmt.Errorf("cannot convert %T to %s", l, t)
		}
		rv, ok := convert(t, r)
		if !ok {
			return 0, fmt.Errorf("cannot convert %T to %s", r, t)
		}
		l, r = lv, rv
	}

	switch a := l.(type) {
	case int32:
		return cmpOrdered(a, r.(int32)), nil
	case int64:
		return cmpOrdered(a, r.(int64)), nil
	case float64:
		return cmpOrdered(a, r.(float64)), nil
	case string:
		return strings.Compare(a, r.(string)), nil
	case *apd.Decimal:
		return a.Cmp(r.(*apd.Decimal)), nil
	case bool:
		b := r.(bool)
		switch {
		case a == b:
			return 0, nil
		case !a:
			return -1, nil
		}
		return 1, nil
	}
	return 0, fmt.Errorf("cannot compare %T values", l)
}

func cmpOrdered[T int32 | int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareResult(op expr.ComparisonOp, c int) bool {
	switch op {
	case expr.OpEq:
		return c == 0
	case expr.OpNe:
		return c != 0
	case expr.OpLt:
		return c < 0
	case expr.OpLe:
		return c <= 0
	case expr.OpGt:
		return c > 0
	default:
		return c >= 0
	}
}

// castable reports whether CAST(from AS to) is defined.
func castable(from, to schema.Type) bool {
	switch {
	case !to.Valid() || to.IsOpaque():
		return false
	case from == schema.TypeNull || from == to:
		return true
	case from.IsOpaque():
		return false
	case to == schema.TypeVarchar:
		return true
	case from == schema.TypeVarchar:
		return true
	case from.IsNumeric() && to.IsNumeric():
		return true
	}
	return false
}

// cast converts a non-nil value to t. Numeric casts may narrow; narrowing
// out of range is an error, never a silent wrap.
func cast(v any, t schema.Type) (any, error) {
	if t == schema.TypeVarchar {
		return schema.FormatValue(v, false), nil
	}
	if s, ok := v.(string); ok {
		return parseAs(strings.TrimSpace(s), t)
	}
	if out, ok := convert(t, v); ok {
		return out, nil
	}

	switch t {
	case schema.TypeInteger, schema.TypeBigInt:
		n, err := truncate(v)
		if err != nil {
			return nil, err
		}
		if t == schema.TypeInteger {
			if n < math.MinInt32 || n > math.MaxInt32 {
				return nil, fmt.Errorf("CAST: %d out of INTEGER range", n)
			}
			return int32(n), nil
		}
		return n, nil
	case schema.TypeDecimal:
		// Only DOUBLE -> DECIMAL reaches here with a NaN or infinity.
		return nil, fmt.Errorf("CAST: %v is not a finite number", v)
	}
	return nil, fmt.Errorf("CAST: cannot convert %T to %s", v, t)
}

// truncate converts a float or decimal to int64 rounding toward zero.
func truncate(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		f := math.Trunc(n)
		if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, fmt.Errorf("CAST: %v out of BIGINT range", n)
		}
		return int64(f), nil
	case *apd.Decimal:
		d := new(apd.Decimal)
		c := *schema.DecimalContext
		c.Rounding = apd.RoundDown
		if _, err := c.RoundToIntegralValue(d, n); err != nil {
			return 0, err
		}
		i, err := d.Int64()
		if err != nil {
			return 0, fmt.Errorf("CAST: %s out of BIGINT range", n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("CAST: unsupported value %T", v)
}

func parseAs(s string, t schema.Type) (any, error) {
	switch t {
	case schema.TypeBigInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("CAST: %q is not a BIGINT", s)
		}
		return n, nil
	case schema.TypeInteger:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("CAST: %q is not an INTEGER", s)
		}
		return int32(n), nil
	case schema.TypeDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("CAST: %q is not a DOUBLE", s)
		}
		return f, nil
	case schema.TypeDecimal:
		d, _, err := apd.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("CAST: %q is not a DECIMAL", s)
		}
		return d, nil
	case schema.TypeBoolean:
		switch strings.ToLower(s) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("CAST: %q is not a BOOLEAN", s)
	}
	return nil, fmt.Errorf("CAST: cannot convert VARCHAR to %s", t)
}

// likePattern is a parsed LIKE pattern: % matches any run of characters,
// _ matches exactly one.
type likePattern []rune

const (
	likeAny rune = -1
	likeOne rune = -2
)

func parseLikePattern(s string) likePattern {
	p := make(likePattern, 0, len(s))
	for _, r := range s {
		switch r {
		case '%':
			if len(p) > 0 && p[len(p)-1] == likeAny {
				continue
			}
			p = append(p, likeAny)
		case '_':
			p = append(p, likeOne)
		default:
			p = append(p, r)
		}
	}
	return p
}

// match runs the classic greedy wildcard match with single-star
// backtracking, linear in practice.
func (p likePattern) match(s string) bool {
	str := []rune(s)
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(str) {
		switch {
		case pi < len(p) && (p[pi] == likeOne || p[pi] == str[si]):
			pi++
			si++
		case pi < len(p) && p[pi] == likeAny:
			star, mark = pi, si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == likeAny {
		pi++
	}
	return pi == len(p)
}
