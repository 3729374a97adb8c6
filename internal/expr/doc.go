// Package expr provides the expression AST consumed by the expression
// compiler.
//
// Trees are produced by a SQL front end (or decoded from plan documents) and
// are read-only from then on. Every node is a value type; sharing subtrees
// is safe.
//
// SEALED INTERFACE:
//
// Expression is sealed with a marker method so the compiler can type-switch
// exhaustively:
//
//	switch n := e.(type) {
//	case expr.Literal:
//	case expr.ColumnRef:
//	case expr.FunctionCall:
//	case expr.Arithmetic, expr.Negate:
//	case expr.Comparison, expr.Logical, expr.Not, expr.IsNull, expr.Like:
//	case expr.Cast:
//	}
//
// DISPLAY NAMES:
//
// String renders the canonical display text. Binary nodes are parenthesised
// and qualified columns render as SOURCE.COLUMN, so
//
//	expr.Arith(expr.OpAdd, expr.Arith(expr.OpMul, expr.Col("TEST2.COL3"), expr.Lit(3)), expr.Lit(5))
//
// renders as ((TEST2.COL3 * 3) + 5). Group-by key-field names are built from
// these display names.
package expr
