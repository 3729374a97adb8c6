// Package codegen compiles expression trees into reusable evaluators.
//
// Compile walks an expr.Expression once against an input schema and produces
// a CompiledExpression: a tree of Go closures plus the binding plan the
// closures read from.
//
// PARAMETER PLAN:
//
// Closures never see the row. They read a parameter vector assembled per
// call from ParamIndexes:
//
//	ParamIndexes: [2, -1, 4]
//	params[0] = enforce(row[2])     column slot
//	params[1] = UDFs[0]             UDF slot, index -(k+1) selects UDFs[k]
//	params[2] = enforce(row[4])     column slot
//
// Column slots are deduplicated; a column referenced twice occupies one
// slot. Each function call site owns its own UDF slot and instance.
//
// TYPES:
//
// Result types are inferred statically. Arithmetic widens
// INTEGER < BIGINT < DECIMAL < DOUBLE, comparisons and logic yield BOOLEAN,
// function results come from the registry. Evaluate always returns a value
// of ResultType or nil.
//
// NULLS:
//
// A NULL operand makes arithmetic, comparison, LIKE, CAST and most function
// calls NULL. AND/OR use three-valued logic, IS NULL never yields NULL and
// functions registered with CallOnNull (IFNULL) see the NULL.
//
// FAILURES:
//
// Compile-time problems return UNRESOLVED_COLUMN, UNKNOWN_FUNCTION or
// TYPE_MISMATCH errors. Row-time faults (division by zero, overflow, a
// failing UDF) return EXPRESSION_EVALUATION errors unless the compiler was
// built WithErrorPolicy(NullOnError), in which case the fault is logged and
// the result is NULL.
//
// Thread-safety: a CompiledExpression is immutable once built and safe for
// concurrent use, provided its UDF instances are.
package codegen
