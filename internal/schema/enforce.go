package schema

import (
	"reflect"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/streamsql/internal/planerr"
)

// Enforcer coerces raw column values to the declared types of a schema.
//
// Only widening is performed: smaller integers into BIGINT, integers into
// DOUBLE or DECIMAL, floats into DECIMAL. Anything else fails with a
// TYPE_COERCION error. NULL passes through for every type.
//
// Thread-safety: an Enforcer is immutable and safe for concurrent use.
type Enforcer struct {
	schema *Schema
}

// NewEnforcer creates an Enforcer for s.
func NewEnforcer(s *Schema) *Enforcer {
	return &Enforcer{schema: s}
}

// Schema returns the schema the enforcer coerces to.
func (e *Enforcer) Schema() *Schema {
	return e.schema
}

// Enforce coerces raw to the type of the field at index.
func (e *Enforcer) Enforce(index int, raw any) (any, error) {
	if index < 0 || index >= e.schema.Len() {
		return nil, planerr.NewArityMismatch("column index", index, e.schema.Len())
	}
	f := e.schema.FieldAt(index)
	v, ok := Coerce(f.Type, raw)
	if !ok {
		err := planerr.NewTypeCoercion(f.Name, index, string(f.Type), raw)
		err.Schema = e.schema.String()
		return nil, err
	}
	return v, nil
}

// EnforceRow checks arity and coerces every column. The input row is not
// modified.
func (e *Enforcer) EnforceRow(row Row) (Row, error) {
	if err := e.schema.CheckRow(row); err != nil {
		return Row{}, err
	}
	out := make([]any, row.Len())
	for i, raw := range row.Columns {
		v, err := e.Enforce(i, raw)
		if err != nil {
			return Row{}, err
		}
		out[i] = v
	}
	return Row{Columns: out}, nil
}

// Coerce converts raw to the runtime representation of t. The second result
// is false when no widening coercion exists.
func Coerce(t Type, raw any) (any, bool) {
	if raw == nil {
		return nil, true
	}

	switch t {
	case TypeBigInt:
		return asInt64(raw)

	case TypeInteger:
		switch v := raw.(type) {
		case int32:
			return v, true
		case int16:
			return int32(v), true
		case int8:
			return int32(v), true
		case uint16:
			return int32(v), true
		case uint8:
			return int32(v), true
		}
		return nil, false

	case TypeDouble:
		switch v := raw.(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		}
		if n, ok := asInt64(raw); ok {
			return float64(n.(int64)), true
		}
		return nil, false

	case TypeDecimal:
		switch v := raw.(type) {
		case *apd.Decimal:
			return v, true
		case apd.Decimal:
			return new(apd.Decimal).Set(&v), true
		case float64:
			d, err := new(apd.Decimal).SetFloat64(v)
			if err != nil {
				return nil, false
			}
			return d, true
		case float32:
			d, err := new(apd.Decimal).SetFloat64(float64(v))
			if err != nil {
				return nil, false
			}
			return d, true
		}
		if n, ok := asInt64(raw); ok {
			return new(apd.Decimal).SetInt64(n.(int64)), true
		}
		return nil, false

	case TypeBoolean:
		b, ok := raw.(bool)
		return b, ok

	case TypeVarchar:
		s, ok := raw.(string)
		return s, ok

	case TypeArray:
		k := reflect.TypeOf(raw).Kind()
		return raw, k == reflect.Slice || k == reflect.Array

	case TypeMap:
		return raw, reflect.TypeOf(raw).Kind() == reflect.Map
	}
	return nil, false
}

// asInt64 widens any signed integer, or unsigned integer narrower than 64
// bits, to int64.
func asInt64(raw any) (any, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint8:
		return int64(v), true
	}
	return nil, false
}

// TypeOfValue infers the schema type of a runtime value. ok is false for
// values with no schema representation.
func TypeOfValue(v any) (Type, bool) {
	switch v.(type) {
	case nil:
		return TypeNull, true
	case int64:
		return TypeBigInt, true
	case int32:
		return TypeInteger, true
	case float64:
		return TypeDouble, true
	case bool:
		return TypeBoolean, true
	case string:
		return TypeVarchar, true
	case *apd.Decimal:
		return TypeDecimal, true
	case []any:
		return TypeArray, true
	case map[string]any:
		return TypeMap, true
	}
	return "", false
}
