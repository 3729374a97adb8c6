package expr

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/streamsql/internal/schema"
)

func TestString_DisplayNames(t *testing.T) {
	testCases := []struct {
		name string
		expr Expression
		want string
	}{
		{"qualified column", Col("test2.col2"), "TEST2.COL2"},
		{"bare column", Col("col0"), "COL0"},
		{"bigint literal", Lit(100), "100"},
		{"integer literal", Lit(int32(7)), "7"},
		{"double literal", Lit(5.0), "5.0"},
		{"fractional double", Lit(2.25), "2.25"},
		{"string literal escapes quotes", Lit("it's"), "'it''s'"},
		{"null literal", Lit(nil), "null"},
		{"boolean literal", Lit(true), "true"},
		{"decimal literal", Lit(apd.New(125, -2)), "1.25"},
		{"nested function", Call("len", Call("ucase", Col("TEST2.COL2"))), "LEN(UCASE(TEST2.COL2))"},
		{
			"arithmetic",
			Arith(OpAdd, Arith(OpMul, Col("TEST2.COL3"), Lit(3)), Lit(5)),
			"((TEST2.COL3 * 3) + 5)",
		},
		{"comparison", Compare(OpGt, Col("TEST2.COL0"), Lit(100)), "(TEST2.COL0 > 100)"},
		{"logical", And(Lit(true), Not{Value: Lit(false)}), "(true AND (NOT false))"},
		{"negate", Negate{Value: Col("A")}, "-A"},
		{"is null", IsNull{Value: Col("A")}, "(A IS NULL)"},
		{"is not null", IsNull{Value: Col("A"), Negated: true}, "(A IS NOT NULL)"},
		{"like", Like{Value: Col("A"), Pattern: Lit("f%")}, "(A LIKE 'f%')"},
		{"cast", Cast{Value: Col("A"), Type: schema.TypeDouble}, "CAST(A AS DOUBLE)"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.expr.String())
		})
	}
}

func TestColumns_FirstOccurrenceOrder(t *testing.T) {
	e := And(
		Compare(OpGt, Col("B"), Col("A")),
		Compare(OpLt, Col("A"), Call("LEN", Col("C"))),
	)

	assert.Equal(t, []ColumnRef{{Name: "B"}, {Name: "A"}, {Name: "C"}}, Columns(e))
}

func TestWalk_SkipsChildren(t *testing.T) {
	e := Call("CONCAT", Call("UCASE", Col("A")), Col("B"))

	var visited []string
	Walk(e, func(n Expression) bool {
		visited = append(visited, n.String())
		_, isCall := n.(FunctionCall)
		return !isCall || n.String() == e.String()
	})

	assert.Equal(t, []string{"CONCAT(UCASE(A), B)", "UCASE(A)", "B"}, visited)
}

func TestIsColumnRef(t *testing.T) {
	ref, ok := IsColumnRef(Col("TEST2.COL1"))
	assert.True(t, ok)
	assert.Equal(t, "COL1", ref.Name)

	_, ok = IsColumnRef(Lit(1))
	assert.False(t, ok)
}
