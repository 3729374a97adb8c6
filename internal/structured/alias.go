package structured

import (
	"fmt"

	"github.com/roach88/streamsql/internal/expr"
)

// GeneratedColumnPrefix names projected expressions that have no natural
// name: KSQL_COL_1, KSQL_COL_2, ...
const GeneratedColumnPrefix = "KSQL_COL_"

// DeriveAliases names a projection list. An explicit alias wins; a bare
// column reference takes its column name without the source qualifier
// (SOURCE_COLUMN when two references would collide); every other
// expression is KSQL_COL_n, with n counting generated names from 1 in list
// order.
//
// aliases may be nil or shorter than exprs; empty entries mean "no alias".
func DeriveAliases(exprs []expr.Expression, aliases []string) ([]string, error) {
	names := make([]string, len(exprs))
	seen := make(map[string]int, len(exprs))
	generated := 0

	base := make(map[string]int)
	for _, e := range exprs {
		if ref, ok := expr.IsColumnRef(e); ok {
			base[ref.Name]++
		}
	}

	for i, e := range exprs {
		var name string
		switch ref, isRef := expr.IsColumnRef(e); {
		case i < len(aliases) && aliases[i] != "":
			name = aliases[i]
		case isRef && base[ref.Name] > 1 && ref.Source != "":
			name = ref.Source + "_" + ref.Name
		case isRef:
			name = ref.Name
		default:
			generated++
			name = fmt.Sprintf("%s%d", GeneratedColumnPrefix, generated)
		}

		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("projection %d: name %s already used by projection %d", i, name, prev)
		}
		seen[name] = i
		names[i] = name
	}
	return names, nil
}

// Named pairs exprs with DeriveAliases names.
func Named(exprs []expr.Expression, aliases []string) ([]NamedExpression, error) {
	names, err := DeriveAliases(exprs, aliases)
	if err != nil {
		return nil, err
	}
	out := make([]NamedExpression, len(exprs))
	for i, e := range exprs {
		out[i] = NamedExpression{Name: names[i], Expression: e}
	}
	return out, nil
}
