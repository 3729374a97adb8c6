package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedIDGenerator_Sequence(t *testing.T) {
	gen := NewFixedIDGenerator("q")

	assert.Equal(t, "q-1", gen.Generate())
	assert.Equal(t, "q-2", gen.Generate())
	assert.Equal(t, "q-3", gen.Generate())
}

func TestFixedIDGenerator_DefaultPrefix(t *testing.T) {
	gen := NewFixedIDGenerator("")

	assert.Equal(t, "query-1", gen.Generate())
}
