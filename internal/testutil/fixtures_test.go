package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTest2Row_MatchesSchema(t *testing.T) {
	s := Test2Schema()
	row := Test2Row("key", 100, "foo", "bar", 1.5, true)

	require.NoError(t, s.CheckRow(row))
	assert.Equal(t, 2, s.IndexOf("TEST2.COL0"))
	assert.Equal(t, int64(100), row.Get(2))
}
