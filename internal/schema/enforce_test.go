package schema

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamsql/internal/planerr"
)

func TestCoerce_Widening(t *testing.T) {
	testCases := []struct {
		name string
		typ  Type
		in   any
		want any
	}{
		{"int literal into bigint", TypeBigInt, 7, int64(7)},
		{"int32 into bigint", TypeBigInt, int32(7), int64(7)},
		{"int64 into double", TypeDouble, int64(3), float64(3)},
		{"int32 into double", TypeDouble, int32(3), float64(3)},
		{"float32 into double", TypeDouble, float32(0.5), float64(0.5)},
		{"int16 into integer", TypeInteger, int16(5), int32(5)},
		{"string stays string", TypeVarchar, "foo", "foo"},
		{"bool stays bool", TypeBoolean, true, true},
		{"null into bigint", TypeBigInt, nil, nil},
		{"null into varchar", TypeVarchar, nil, nil},
		{"list into array", TypeArray, []any{1.0, 2.0}, []any{1.0, 2.0}},
		{"map into map", TypeMap, map[string]any{"a": 1}, map[string]any{"a": 1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Coerce(tc.typ, tc.in)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCoerce_Decimal(t *testing.T) {
	got, ok := Coerce(TypeDecimal, int64(12))
	require.True(t, ok)
	assert.Equal(t, "12", got.(*apd.Decimal).String())

	got, ok = Coerce(TypeDecimal, 0.25)
	require.True(t, ok)
	assert.Equal(t, "0.25", got.(*apd.Decimal).String())
}

func TestCoerce_Rejects(t *testing.T) {
	testCases := []struct {
		name string
		typ  Type
		in   any
	}{
		{"string into bigint", TypeBigInt, "100"},
		{"string into double", TypeDouble, "1.5"},
		{"double into bigint", TypeBigInt, 1.5},
		{"bigint into integer", TypeInteger, int64(1)},
		{"int into integer", TypeInteger, 1},
		{"bool into varchar", TypeVarchar, true},
		{"number into boolean", TypeBoolean, 1},
		{"decimal into double", TypeDouble, apd.New(1, 0)},
		{"string into array", TypeArray, "abc"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := Coerce(tc.typ, tc.in)
			assert.False(t, ok)
		})
	}
}

func TestEnforcer_Enforce(t *testing.T) {
	s := MustNew(NewField("A", TypeBigInt), NewField("B", TypeDouble))
	e := NewEnforcer(s)

	v, err := e.Enforce(1, 4)
	require.NoError(t, err)
	assert.Equal(t, float64(4), v)

	_, err = e.Enforce(0, "four")
	require.Error(t, err)
	assert.True(t, planerr.IsTypeCoercion(err))
	assert.Contains(t, err.Error(), "column=A")
	assert.Contains(t, err.Error(), "BIGINT")

	_, err = e.Enforce(2, int64(1))
	assert.True(t, planerr.IsArityMismatch(err))
}

func TestEnforcer_EnforceRow(t *testing.T) {
	s := MustNew(NewField("A", TypeBigInt), NewField("B", TypeDouble))
	e := NewEnforcer(s)

	in := NewRow(int32(1), int64(2))
	out, err := e.EnforceRow(in)
	require.NoError(t, err)
	assert.Equal(t, NewRow(int64(1), float64(2)), out)
	assert.Equal(t, int32(1), in.Get(0), "input row must not be modified")

	_, err = e.EnforceRow(NewRow(int64(1)))
	assert.True(t, planerr.IsArityMismatch(err))
}

func TestTypeOfValue(t *testing.T) {
	typ, ok := TypeOfValue(int32(1))
	require.True(t, ok)
	assert.Equal(t, TypeInteger, typ)

	typ, ok = TypeOfValue(nil)
	require.True(t, ok)
	assert.Equal(t, TypeNull, typ)

	_, ok = TypeOfValue(struct{}{})
	assert.False(t, ok)
}
