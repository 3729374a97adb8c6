package expr

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

func (l Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "null"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case float64:
		return formatDouble(v)
	case *apd.Decimal:
		return v.String()
	default:
		return "<invalid literal>"
	}
}

// formatDouble always shows a fractional part so DOUBLE literals read
// differently from integer ones.
func formatDouble(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if strings.ContainsAny(s, ".eEnN") {
		return s
	}
	return s + ".0"
}

func (c ColumnRef) String() string {
	if c.Source == "" {
		return c.Name
	}
	return c.Source + "." + c.Name
}

func (f FunctionCall) String() string {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.String()
	}
	return f.Name + "(" + strings.Join(args, ", ") + ")"
}

func (a Arithmetic) String() string {
	return "(" + a.Left.String() + " " + string(a.Op) + " " + a.Right.String() + ")"
}

func (n Negate) String() string {
	return "-" + n.Value.String()
}

func (c Comparison) String() string {
	return "(" + c.Left.String() + " " + string(c.Op) + " " + c.Right.String() + ")"
}

func (l Logical) String() string {
	return "(" + l.Left.String() + " " + string(l.Op) + " " + l.Right.String() + ")"
}

func (n Not) String() string {
	return "(NOT " + n.Value.String() + ")"
}

func (n IsNull) String() string {
	if n.Negated {
		return "(" + n.Value.String() + " IS NOT NULL)"
	}
	return "(" + n.Value.String() + " IS NULL)"
}

func (l Like) String() string {
	return "(" + l.Value.String() + " LIKE " + l.Pattern.String() + ")"
}

func (c Cast) String() string {
	return "CAST(" + c.Value.String() + " AS " + string(c.Type) + ")"
}
