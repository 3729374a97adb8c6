package testutil

import "github.com/roach88/streamsql/internal/schema"

// Test2Schema returns the TEST2 fixture source schema:
//
//	TEST2.ROWTIME BIGINT, TEST2.ROWKEY VARCHAR,
//	TEST2.COL0 BIGINT, TEST2.COL1 VARCHAR, TEST2.COL2 VARCHAR,
//	TEST2.COL3 DOUBLE, TEST2.COL4 BOOLEAN
func Test2Schema() *schema.Schema {
	return schema.MustNew(schema.WithImplicitColumns(
		schema.NewField("COL0", schema.TypeBigInt),
		schema.NewField("COL1", schema.TypeVarchar),
		schema.NewField("COL2", schema.TypeVarchar),
		schema.NewField("COL3", schema.TypeDouble),
		schema.NewField("COL4", schema.TypeBoolean),
	)...).Qualify("TEST2")
}

// Test2Row builds a TEST2 row with ROWTIME 0.
func Test2Row(key string, col0 int64, col1, col2 string, col3 float64, col4 bool) schema.Row {
	return schema.NewRow(int64(0), key, col0, col1, col2, col3, col4)
}
