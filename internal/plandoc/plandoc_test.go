package plandoc

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/streamsql/internal/expr"
	"github.com/roach88/streamsql/internal/planner"
	"github.com/roach88/streamsql/internal/schema"
	"github.com/roach88/streamsql/internal/serde"
)

func TestLoad(t *testing.T) {
	plan, err := Load(filepath.Join("testdata", "high_value.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "HIGH_VALUE", plan.Name)
	want := "OUTPUT OUT JSON\n" +
		"  PROJECT TEST2.COL0, (COL3 * 3) AS TRIPLE, LEN(COL2)\n" +
		"    FILTER ((TEST2.COL0 > 100) AND (COL2 IS NOT NULL))\n" +
		"      SOURCE TEST2\n"
	assert.Equal(t, want, plan.String())

	out, ok := plan.Root.(*planner.OutputNode)
	require.True(t, ok)
	assert.Equal(t, serde.FormatJSON, out.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read plan file")
}

func TestParse_GroupBy(t *testing.T) {
	plan, err := Parse([]byte(`
name: by_region
from: users
group_by:
  - {col: USERS.REGION}
group_format: delimited
`))
	require.NoError(t, err)

	g, ok := plan.Root.(*planner.GroupByNode)
	require.True(t, ok)
	assert.Equal(t, serde.FormatDelimited, g.Format)
	assert.Equal(t, []expr.Expression{expr.Col("USERS.REGION")}, g.Expressions)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown field", "name: q\nfrom: s\nwher: {col: A}\n", "field wher not found"},
		{"missing name", "from: s\n", "name is required"},
		{"missing from", "name: q\n", "from is required"},
		{"group by and into", "name: q\nfrom: s\ngroup_by: [{col: A}]\ninto: {topic: OUT}\n", "cannot both be set"},
		{"empty expression", "name: q\nfrom: s\nwhere: {}\n", "exactly one of"},
		{"two kinds", "name: q\nfrom: s\nwhere: {col: A, lit: 1}\n", "exactly one of"},
		{"unknown operator", "name: q\nfrom: s\nwhere: {op: XOR, args: [{col: A}, {col: B}]}\n", "unknown operator"},
		{"operator arity", "name: q\nfrom: s\nwhere: {op: NOT, args: [{col: A}, {col: B}]}\n", "NOT takes 1"},
		{"bad format", "name: q\nfrom: s\ninto: {topic: OUT, format: AVRO}\n", "unknown format"},
		{"missing topic", "name: q\nfrom: s\ninto: {format: JSON}\n", "topic is required"},
		{"bad cast type", "name: q\nfrom: s\nselect: [{expr: {cast: {col: A}, type: BLOB}}]\n", "unknown type"},
		{"bad typed literal", "name: q\nfrom: s\nselect: [{expr: {lit: abc, type: BIGINT}}]\n", "not a BIGINT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func decodeExpr(t *testing.T, src string) expr.Expression {
	t.Helper()
	var e Expr
	require.NoError(t, yaml.Unmarshal([]byte(src), &e))
	out, err := e.Expression()
	require.NoError(t, err)
	return out
}

func TestExpr_Literals(t *testing.T) {
	tests := []struct {
		src  string
		want any
	}{
		{"{lit: 100}", int64(100)},
		{"{lit: 1.5}", 1.5},
		{"{lit: true}", true},
		{"{lit: hello}", "hello"},
		{"{lit: null}", nil},
		{"{lit: 7, type: INTEGER}", int32(7)},
		{"{lit: 7, type: DOUBLE}", 7.0},
		{"{lit: 42, type: VARCHAR}", "42"},
		{"{lit: 'false', type: BOOLEAN}", false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			lit, ok := decodeExpr(t, tt.src).(expr.Literal)
			require.True(t, ok)
			assert.Equal(t, tt.want, lit.Value)
		})
	}

	lit := decodeExpr(t, `{lit: "1.50", type: DECIMAL}`).(expr.Literal)
	d, ok := lit.Value.(*apd.Decimal)
	require.True(t, ok)
	assert.Equal(t, "1.50", d.String())
}

func TestExpr_Nodes(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"{col: test2.col0}", "TEST2.COL0"},
		{"{call: ucase, args: [{col: COL1}]}", "UCASE(COL1)"},
		{"{op: '%', args: [{col: A}, {lit: 2}]}", "(A % 2)"},
		{"{op: '!=', args: [{col: A}, {lit: 2}]}", "(A <> 2)"},
		{"{op: OR, args: [{col: A}, {col: B}, {col: C}]}", "((A OR B) OR C)"},
		{"{op: NOT, args: [{col: A}]}", "(NOT A)"},
		{"{op: NEG, args: [{col: A}]}", "-A"},
		{"{op: is  null, args: [{col: A}]}", "(A IS NULL)"},
		{"{op: LIKE, args: [{col: A}], pattern: 'a%'}", "(A LIKE 'a%')"},
		{"{cast: {col: A}, type: VARCHAR}", "CAST(A AS VARCHAR)"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeExpr(t, tt.src).String())
		})
	}
}

func TestExpr_CastType(t *testing.T) {
	c, ok := decodeExpr(t, "{cast: {lit: 1}, type: string}").(expr.Cast)
	require.True(t, ok)
	assert.Equal(t, schema.TypeVarchar, c.Type)
}
