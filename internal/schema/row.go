package schema

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Row is an ordered tuple of column values. Column i holds a value of the
// owning schema's field i, or nil for NULL.
type Row struct {
	Columns []any
}

// NewRow creates a row from column values.
func NewRow(values ...any) Row {
	return Row{Columns: values}
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.Columns)
}

// Get returns the value at column i.
func (r Row) Get(i int) any {
	return r.Columns[i]
}

// Copy returns a row with its own column slice.
func (r Row) Copy() Row {
	cols := make([]any, len(r.Columns))
	copy(cols, r.Columns)
	return Row{Columns: cols}
}

// Equal compares rows column by column. Decimals compare by value.
func (r Row) Equal(other Row) bool {
	if len(r.Columns) != len(other.Columns) {
		return false
	}
	for i := range r.Columns {
		if !ValuesEqual(r.Columns[i], other.Columns[i]) {
			return false
		}
	}
	return true
}

// String renders the row as "[ v0 | v1 | ... ]" with strings quoted.
func (r Row) String() string {
	parts := make([]string, len(r.Columns))
	for i, v := range r.Columns {
		parts[i] = FormatValue(v, true)
	}
	return "[ " + strings.Join(parts, " | ") + " ]"
}

// ValuesEqual compares two column values.
func ValuesEqual(a, b any) bool {
	da, okA := a.(*apd.Decimal)
	db, okB := b.(*apd.Decimal)
	if okA && okB {
		if da == nil || db == nil {
			return da == db
		}
		return da.Cmp(db) == 0
	}
	return reflect.DeepEqual(a, b)
}

// FormatValue renders a column value. NULL renders as "null"; quoted
// controls whether strings are wrapped in single quotes.
func FormatValue(v any, quoted bool) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		if quoted {
			return "'" + val + "'"
		}
		return val
	case *apd.Decimal:
		if val == nil {
			return "null"
		}
		return val.String()
	case float64:
		return FormatDouble(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// FormatDouble renders a DOUBLE with at least one fractional digit: 5.0,
// 0.001, 1.0E7, 1.5E-4. Magnitudes outside [1e-3, 1e7) use scientific
// notation.
func FormatDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	if abs := math.Abs(f); f == 0 || (abs >= 1e-3 && abs < 1e7) {
		s := strconv.FormatFloat(f, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}

	mantissa, exp, _ := strings.Cut(strconv.FormatFloat(f, 'E', -1, 64), "E")
	if !strings.Contains(mantissa, ".") {
		mantissa += ".0"
	}
	n, _ := strconv.Atoi(exp)
	return mantissa + "E" + strconv.Itoa(n)
}
