package udf

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/streamsql/internal/schema"
)

func builtins() []Descriptor {
	return []Descriptor{
		{
			Name:        "LEN",
			Description: "Number of characters in a string.",
			ReturnType:  Signature("LEN", schema.TypeInteger, schema.TypeVarchar),
			New: Constructor("LEN", func(args []any) (any, error) {
				return int32(utf8.RuneCountInString(args[0].(string))), nil
			}),
		},
		{
			Name:        "UCASE",
			Description: "Upper-cases a string.",
			ReturnType:  Signature("UCASE", schema.TypeVarchar, schema.TypeVarchar),
			// A cases.Caser keeps state between calls, so each evaluation
			// gets its own.
			New: Constructor("UCASE", func(args []any) (any, error) {
				return cases.Upper(language.Und).String(args[0].(string)), nil
			}),
		},
		{
			Name:        "LCASE",
			Description: "Lower-cases a string.",
			ReturnType:  Signature("LCASE", schema.TypeVarchar, schema.TypeVarchar),
			New: Constructor("LCASE", func(args []any) (any, error) {
				return cases.Lower(language.Und).String(args[0].(string)), nil
			}),
		},
		{
			Name:        "TRIM",
			Description: "Removes leading and trailing white space.",
			ReturnType:  Signature("TRIM", schema.TypeVarchar, schema.TypeVarchar),
			New: Constructor("TRIM", func(args []any) (any, error) {
				return strings.TrimSpace(args[0].(string)), nil
			}),
		},
		{
			Name:        "CONCAT",
			Description: "Concatenates two or more strings.",
			ReturnType:  concatType,
			New: Constructor("CONCAT", func(args []any) (any, error) {
				var b strings.Builder
				for _, a := range args {
					b.WriteString(a.(string))
				}
				return b.String(), nil
			}),
		},
		{
			Name:        "SUBSTRING",
			Description: "SUBSTRING(str, pos[, len]): characters from 1-based pos, optionally at most len.",
			ReturnType:  substringType,
			New:         Constructor("SUBSTRING", substring),
		},
		{
			Name:        "ABS",
			Description: "Absolute value.",
			ReturnType:  numericIdentityType("ABS"),
			New:         Constructor("ABS", abs),
		},
		{
			Name:        "CEIL",
			Description: "Smallest integral value not less than the argument.",
			ReturnType:  numericIdentityType("CEIL"),
			New: Constructor("CEIL", func(args []any) (any, error) {
				return roundWith(args[0], math.Ceil, schema.DecimalContext.Ceil)
			}),
		},
		{
			Name:        "FLOOR",
			Description: "Largest integral value not greater than the argument.",
			ReturnType:  numericIdentityType("FLOOR"),
			New: Constructor("FLOOR", func(args []any) (any, error) {
				return roundWith(args[0], math.Floor, schema.DecimalContext.Floor)
			}),
		},
		{
			Name:        "ROUND",
			Description: "Rounds half away from zero. DOUBLE rounds to BIGINT.",
			ReturnType:  roundType,
			New:         Constructor("ROUND", round),
		},
		{
			Name:        "IFNULL",
			Description: "IFNULL(a, b): a unless it is NULL, else b.",
			ReturnType:  ifNullType,
			CallOnNull:  true,
			New: Constructor("IFNULL", func(args []any) (any, error) {
				if args[0] != nil {
					return args[0], nil
				}
				return args[1], nil
			}),
		},
	}
}

func concatType(args []schema.Type) (schema.Type, error) {
	if len(args) < 2 {
		return "", fmt.Errorf("CONCAT expects at least 2 arguments, got %d", len(args))
	}
	for i, a := range args {
		if a != schema.TypeVarchar && a != schema.TypeNull {
			return "", fmt.Errorf("CONCAT argument %d: expected VARCHAR, got %s", i+1, a)
		}
	}
	return schema.TypeVarchar, nil
}

func isIntegral(t schema.Type) bool {
	return t == schema.TypeInteger || t == schema.TypeBigInt || t == schema.TypeNull
}

func substringType(args []schema.Type) (schema.Type, error) {
	if len(args) != 2 && len(args) != 3 {
		return "", fmt.Errorf("SUBSTRING expects 2 or 3 arguments, got %d", len(args))
	}
	if args[0] != schema.TypeVarchar && args[0] != schema.TypeNull {
		return "", fmt.Errorf("SUBSTRING argument 1: expected VARCHAR, got %s", args[0])
	}
	for i := 1; i < len(args); i++ {
		if !isIntegral(args[i]) {
			return "", fmt.Errorf("SUBSTRING argument %d: expected an integer, got %s", i+1, args[i])
		}
	}
	return schema.TypeVarchar, nil
}

func substring(args []any) (any, error) {
	runes := []rune(args[0].(string))
	pos := toInt64(args[1])
	if pos < 1 {
		pos = 1
	}
	start := int(min(pos-1, int64(len(runes))))
	end := len(runes)
	if len(args) == 3 {
		n := toInt64(args[2])
		if n < 0 {
			return nil, fmt.Errorf("SUBSTRING: negative length %d", n)
		}
		if int64(start)+n < int64(end) {
			end = start + int(n)
		}
	}
	return string(runes[start:end]), nil
}

func numericIdentityType(name string) func([]schema.Type) (schema.Type, error) {
	return func(args []schema.Type) (schema.Type, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
		}
		if !args[0].IsNumeric() {
			return "", fmt.Errorf("%s argument 1: expected a numeric type, got %s", name, args[0])
		}
		return args[0], nil
	}
}

func roundType(args []schema.Type) (schema.Type, error) {
	t, err := numericIdentityType("ROUND")(args)
	if err != nil {
		return "", err
	}
	if t == schema.TypeDouble {
		return schema.TypeBigInt, nil
	}
	return t, nil
}

func ifNullType(args []schema.Type) (schema.Type, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("IFNULL expects 2 arguments, got %d", len(args))
	}
	a, b := args[0], args[1]
	switch {
	case a == b || b == schema.TypeNull:
		return a, nil
	case a == schema.TypeNull:
		return b, nil
	}
	if w, ok := schema.WidenNumeric(a, b); ok && w == a {
		return a, nil
	}
	return "", fmt.Errorf("IFNULL arguments must share a type, got %s and %s", a, b)
}

var errOverflow = errors.New("integer overflow")

func abs(args []any) (any, error) {
	switch v := args[0].(type) {
	case int32:
		if v == math.MinInt32 {
			return nil, errOverflow
		}
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case int64:
		if v == math.MinInt64 {
			return nil, errOverflow
		}
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case float64:
		return math.Abs(v), nil
	case *apd.Decimal:
		d := new(apd.Decimal)
		if _, err := schema.DecimalContext.Abs(d, v); err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("ABS: unsupported argument %T", args[0])
}

func roundWith(v any, f func(float64) float64, dec func(d, x *apd.Decimal) (apd.Condition, error)) (any, error) {
	switch n := v.(type) {
	case int32, int64:
		return n, nil
	case float64:
		return f(n), nil
	case *apd.Decimal:
		d := new(apd.Decimal)
		if _, err := dec(d, n); err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("unsupported argument %T", v)
}

func round(args []any) (any, error) {
	switch n := args[0].(type) {
	case float64:
		r := math.Round(n)
		if math.IsNaN(r) || r >= math.MaxInt64 || r < math.MinInt64 {
			return nil, fmt.Errorf("ROUND: %v out of BIGINT range", n)
		}
		return int64(r), nil
	case *apd.Decimal:
		d := new(apd.Decimal)
		if _, err := schema.DecimalContext.RoundToIntegralValue(d, n); err != nil {
			return nil, err
		}
		return d, nil
	}
	return roundWith(args[0], math.Round, nil)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	}
	return 0
}
