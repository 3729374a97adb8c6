package planerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := NewUnresolvedColumn("TEST2.COL9", "no such column", "[TEST2.COL0 BIGINT]")

	assert.Equal(t,
		`UNRESOLVED_COLUMN: cannot resolve column "TEST2.COL9": no such column (column=TEST2.COL9, schema=[TEST2.COL0 BIGINT])`,
		err.Error())
}

func TestError_DetailsSorted(t *testing.T) {
	err := NewArityMismatch("select list", 2, 3)

	assert.Equal(t,
		"SCHEMA_ARITY_MISMATCH: select list has 2 columns, schema has 3 fields (got=2, want=3)",
		err.Error())
}

func TestPredicates_Wrapped(t *testing.T) {
	testCases := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"unresolved", NewUnresolvedColumn("X", "missing", ""), IsUnresolvedColumn},
		{"coercion", NewTypeCoercion("X", 0, "BIGINT", "s"), IsTypeCoercion},
		{"evaluation", NewEvaluation("(A / B)", "[1 | 0]", errors.New("division by zero")), IsEvaluation},
		{"arity", NewArityMismatch("row", 1, 2), IsArityMismatch},
		{"type mismatch", NewTypeMismatch("(A + TRUE)", "bad operand"), IsTypeMismatch},
		{"unknown function", NewUnknownFunction("FOO", "FOO(A)"), IsUnknownFunction},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("plan query: %w", tc.err)
			assert.True(t, tc.check(wrapped))
			assert.False(t, tc.check(errors.New("plain")))
		})
	}
}

func TestEvaluation_UnwrapsCause(t *testing.T) {
	cause := errors.New("division by zero")
	err := NewEvaluation("(A / B)", "[1 | 0]", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "expression=(A / B)")
	assert.Contains(t, err.Error(), "row=[1 | 0]")
}

func TestWithRecord(t *testing.T) {
	t.Run("attaches to plan error without mutating it", func(t *testing.T) {
		orig := NewEvaluation("(A / B)", "[1 | 0]", errors.New("division by zero"))
		located := WithRecord(orig, RecordContext{Topic: "in", Partition: 2, Offset: 41})

		var pe *Error
		require.True(t, errors.As(located, &pe))
		require.NotNil(t, pe.Record)
		assert.Equal(t, int64(41), pe.Record.Offset)
		assert.Nil(t, orig.Record)
		assert.Contains(t, located.Error(), "record=in/2@41")
	})

	t.Run("wraps foreign errors as evaluation failures", func(t *testing.T) {
		cause := errors.New("boom")
		located := WithRecord(cause, RecordContext{Topic: "in"})

		assert.True(t, IsEvaluation(located))
		assert.ErrorIs(t, located, cause)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, WithRecord(nil, RecordContext{}))
	})
}

func TestIsRowError(t *testing.T) {
	assert.True(t, IsRowError(NewEvaluation("A", "[1]", nil)))
	assert.True(t, IsRowError(NewTypeCoercion("A", 0, "BIGINT", "x")))
	assert.False(t, IsRowError(NewUnresolvedColumn("A", "missing", "")))

	rowArity := NewArityMismatch("row", 1, 2)
	rowArity.Row = "[1]"
	assert.True(t, IsRowError(rowArity))
	assert.False(t, IsRowError(NewArityMismatch("select list", 1, 2)))
}
