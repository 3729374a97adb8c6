package schema

import (
	"fmt"
	"strings"
)

// Type is the declared type of a column.
//
// Runtime representations:
//
//	BIGINT   int64
//	INTEGER  int32
//	DOUBLE   float64
//	BOOLEAN  bool
//	VARCHAR  string
//	DECIMAL  *apd.Decimal
//	ARRAY    []any (opaque)
//	MAP      map[string]any (opaque)
//
// A nil column value is SQL NULL and is valid for every type.
type Type string

const (
	TypeBigInt  Type = "BIGINT"
	TypeInteger Type = "INTEGER"
	TypeDouble  Type = "DOUBLE"
	TypeBoolean Type = "BOOLEAN"
	TypeVarchar Type = "VARCHAR"
	TypeDecimal Type = "DECIMAL"
	TypeArray   Type = "ARRAY"
	TypeMap     Type = "MAP"

	// TypeNull is the inferred type of a NULL literal. It never appears in a
	// schema.
	TypeNull Type = "NULL"
)

// typeAliases maps accepted spellings to canonical types.
var typeAliases = map[string]Type{
	"BIGINT":  TypeBigInt,
	"INT64":   TypeBigInt,
	"LONG":    TypeBigInt,
	"INTEGER": TypeInteger,
	"INT":     TypeInteger,
	"INT32":   TypeInteger,
	"DOUBLE":  TypeDouble,
	"FLOAT64": TypeDouble,
	"BOOLEAN": TypeBoolean,
	"BOOL":    TypeBoolean,
	"VARCHAR": TypeVarchar,
	"STRING":  TypeVarchar,
	"DECIMAL": TypeDecimal,
	"ARRAY":   TypeArray,
	"MAP":     TypeMap,
}

// ParseType parses a type name, accepting SQL and schema-registry spellings
// case-insensitively.
func ParseType(s string) (Type, error) {
	t, ok := typeAliases[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown type %q", s)
	}
	return t, nil
}

// Valid reports whether t may be declared on a field.
func (t Type) Valid() bool {
	switch t {
	case TypeBigInt, TypeInteger, TypeDouble, TypeBoolean, TypeVarchar,
		TypeDecimal, TypeArray, TypeMap:
		return true
	}
	return false
}

// IsNumeric reports whether t supports arithmetic.
func (t Type) IsNumeric() bool {
	switch t {
	case TypeBigInt, TypeInteger, TypeDouble, TypeDecimal:
		return true
	}
	return false
}

// IsOpaque reports whether t is a nested type this core does not look into.
func (t Type) IsOpaque() bool {
	return t == TypeArray || t == TypeMap
}

// numericRank orders numeric types by widening.
var numericRank = map[Type]int{
	TypeInteger: 1,
	TypeBigInt:  2,
	TypeDecimal: 3,
	TypeDouble:  4,
}

// WidenNumeric returns the type both numeric operands widen to.
// INTEGER < BIGINT < DECIMAL < DOUBLE.
func WidenNumeric(a, b Type) (Type, bool) {
	ra, okA := numericRank[a]
	rb, okB := numericRank[b]
	if !okA || !okB {
		return "", false
	}
	if ra >= rb {
		return a, true
	}
	return b, true
}

// CanWiden reports whether a value of type from may be stored in a slot of
// type to without loss of range.
func CanWiden(from, to Type) bool {
	if from == to || from == TypeNull {
		return true
	}
	rf, okF := numericRank[from]
	rt, okT := numericRank[to]
	return okF && okT && rf < rt
}
