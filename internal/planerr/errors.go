// Package planerr defines the structured errors raised while compiling query
// plans and while evaluating compiled artifacts against records.
//
// Compile-time errors (UNRESOLVED_COLUMN, TYPE_MISMATCH, UNKNOWN_FUNCTION,
// SCHEMA_ARITY_MISMATCH) abort planning of the query and are returned to the
// caller. Row-time errors (EXPRESSION_EVALUATION, TYPE_COERCION on a record)
// are returned to the runtime as a failed record outcome; the runtime decides
// whether to fail, skip or dead-letter the record.
package planerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code categorizes plan and evaluation errors.
type Code string

const (
	// CodeUnresolvedColumn indicates a column reference that is missing or
	// ambiguous in the input schema.
	CodeUnresolvedColumn Code = "UNRESOLVED_COLUMN"

	// CodeTypeCoercion indicates a value that cannot be coerced to the
	// declared type of its field.
	CodeTypeCoercion Code = "TYPE_COERCION"

	// CodeEvaluation indicates a fault raised while evaluating a compiled
	// expression or one of its UDFs.
	CodeEvaluation Code = "EXPRESSION_EVALUATION"

	// CodeArityMismatch indicates an expression list or row whose length
	// differs from the schema it must match.
	CodeArityMismatch Code = "SCHEMA_ARITY_MISMATCH"

	// CodeTypeMismatch indicates an expression that is not well typed.
	CodeTypeMismatch Code = "TYPE_MISMATCH"

	// CodeUnknownFunction indicates a call to a function missing from the
	// UDF registry.
	CodeUnknownFunction Code = "UNKNOWN_FUNCTION"
)

// RecordContext locates a record in the runtime. Zero values mean unknown.
type RecordContext struct {
	Topic     string
	Partition int32
	Offset    int64
}

func (rc RecordContext) String() string {
	return fmt.Sprintf("%s/%d@%d", rc.Topic, rc.Partition, rc.Offset)
}

// Error is the single error type for planning and evaluation failures.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Expression is the display text of the expression involved, if any.
	Expression string

	// Column is the column name involved, if any.
	Column string

	// Schema is the rendered schema the expression was compiled against.
	Schema string

	// Row is the rendered row being evaluated (row-time errors only).
	Row string

	// Record locates the failed record; set by the runtime.
	Record *RecordContext

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)

	var ctx []string
	if e.Expression != "" {
		ctx = append(ctx, "expression="+e.Expression)
	}
	if e.Column != "" {
		ctx = append(ctx, "column="+e.Column)
	}
	if e.Schema != "" {
		ctx = append(ctx, "schema="+e.Schema)
	}
	if e.Row != "" {
		ctx = append(ctx, "row="+e.Row)
	}
	if e.Record != nil {
		ctx = append(ctx, "record="+e.Record.String())
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ctx = append(ctx, k+"="+e.Details[k])
		}
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsUnresolvedColumn returns true if err is an UNRESOLVED_COLUMN error.
func IsUnresolvedColumn(err error) bool { return CodeOf(err) == CodeUnresolvedColumn }

// IsTypeCoercion returns true if err is a TYPE_COERCION error.
func IsTypeCoercion(err error) bool { return CodeOf(err) == CodeTypeCoercion }

// IsEvaluation returns true if err is an EXPRESSION_EVALUATION error.
func IsEvaluation(err error) bool { return CodeOf(err) == CodeEvaluation }

// IsArityMismatch returns true if err is a SCHEMA_ARITY_MISMATCH error.
func IsArityMismatch(err error) bool { return CodeOf(err) == CodeArityMismatch }

// IsTypeMismatch returns true if err is a TYPE_MISMATCH error.
func IsTypeMismatch(err error) bool { return CodeOf(err) == CodeTypeMismatch }

// IsUnknownFunction returns true if err is an UNKNOWN_FUNCTION error.
func IsUnknownFunction(err error) bool { return CodeOf(err) == CodeUnknownFunction }

// IsRowError returns true if err describes a single failed record rather
// than a broken plan.
func IsRowError(err error) bool {
	switch CodeOf(err) {
	case CodeEvaluation, CodeTypeCoercion:
		return true
	case CodeArityMismatch:
		var pe *Error
		errors.As(err, &pe)
		return pe.Row != ""
	}
	return false
}

// NewUnresolvedColumn creates an UNRESOLVED_COLUMN error.
func NewUnresolvedColumn(column, reason, schema string) *Error {
	return &Error{
		Code:    CodeUnresolvedColumn,
		Message: fmt.Sprintf("cannot resolve column %q: %s", column, reason),
		Column:  column,
		Schema:  schema,
	}
}

// NewTypeCoercion creates a TYPE_COERCION error for a value that does not
// fit the field's declared type.
func NewTypeCoercion(column string, index int, target string, value any) *Error {
	return &Error{
		Code:    CodeTypeCoercion,
		Message: fmt.Sprintf("cannot coerce %T value to %s", value, target),
		Column:  column,
		Details: map[string]string{
			"index": fmt.Sprintf("%d", index),
		},
	}
}

// NewEvaluation creates an EXPRESSION_EVALUATION error.
func NewEvaluation(expression, row string, cause error) *Error {
	return &Error{
		Code:       CodeEvaluation,
		Message:    "expression evaluation failed",
		Expression: expression,
		Row:        row,
		Err:        cause,
	}
}

// NewArityMismatch creates a SCHEMA_ARITY_MISMATCH error.
func NewArityMismatch(what string, got, want int) *Error {
	return &Error{
		Code:    CodeArityMismatch,
		Message: fmt.Sprintf("%s has %d columns, schema has %d fields", what, got, want),
		Details: map[string]string{
			"got":  fmt.Sprintf("%d", got),
			"want": fmt.Sprintf("%d", want),
		},
	}
}

// NewTypeMismatch creates a TYPE_MISMATCH error.
func NewTypeMismatch(expression, message string) *Error {
	return &Error{
		Code:       CodeTypeMismatch,
		Message:    message,
		Expression: expression,
	}
}

// NewUnknownFunction creates an UNKNOWN_FUNCTION error.
func NewUnknownFunction(name, expression string) *Error {
	return &Error{
		Code:       CodeUnknownFunction,
		Message:    fmt.Sprintf("unknown function %q", name),
		Expression: expression,
	}
}

// WithRecord returns err with the record context attached. Errors that are
// not *Error are wrapped as EXPRESSION_EVALUATION failures so the runtime
// always sees a located, typed record failure.
func WithRecord(err error, rc RecordContext) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		cp := *pe
		cp.Record = &rc
		return &cp
	}
	return &Error{
		Code:    CodeEvaluation,
		Message: "record processing failed",
		Record:  &rc,
		Err:     err,
	}
}
