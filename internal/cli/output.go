package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/streamsql/internal/catalog"
	"github.com/roach88/streamsql/internal/planerr"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // A record or plan failed
	ExitCommandError = 2 // Command error (bad paths, unreadable config, etc.)
)

// Error codes reported in CLI error responses.
const (
	ErrCodeGeneric          = "E001" // Generic/unknown error
	ErrCodeCatalog          = "E002" // Catalog load failed
	ErrCodeUnresolvedColumn = "E101"
	ErrCodeTypeCoercion     = "E102"
	ErrCodeEvaluation       = "E103"
	ErrCodeArityMismatch    = "E104"
	ErrCodeTypeMismatch     = "E105"
	ErrCodeUnknownFunction  = "E106"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode maps an error to its CLI error code.
func ErrorCode(err error) string {
	switch planerr.CodeOf(err) {
	case planerr.CodeUnresolvedColumn:
		return ErrCodeUnresolvedColumn
	case planerr.CodeTypeCoercion:
		return ErrCodeTypeCoercion
	case planerr.CodeEvaluation:
		return ErrCodeEvaluation
	case planerr.CodeArityMismatch:
		return ErrCodeArityMismatch
	case planerr.CodeTypeMismatch:
		return ErrCodeTypeMismatch
	case planerr.CodeUnknownFunction:
		return ErrCodeUnknownFunction
	}
	var le *catalog.LoadError
	if errors.As(err, &le) {
		return ErrCodeCatalog
	}
	return ErrCodeGeneric
}

// errorDetails exposes the structured context of a planner error.
func errorDetails(err error) any {
	var pe *planerr.Error
	if !errors.As(err, &pe) {
		return nil
	}
	details := map[string]string{}
	if pe.Expression != "" {
		details["expression"] = pe.Expression
	}
	if pe.Column != "" {
		details["column"] = pe.Column
	}
	if pe.Row != "" {
		details["row"] = pe.Row
	}
	if pe.Record != nil {
		details["record"] = pe.Record.String()
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string    `json:"status"`             // "ok" or "error"
	Data    any       `json:"data,omitempty"`     // success payload
	Error   *CLIError `json:"error,omitempty"`    // error details
	QueryID string    `json:"query_id,omitempty"` // built query, when there is one
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E101", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format. Text
// output prints data with fmt.Println.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Text writes pre-rendered text output as is; JSON output encodes data.
func (f *OutputFormatter) Text(text string, data any) error {
	if f.Format == "json" {
		return f.Success(data)
	}
	_, err := io.WriteString(f.Writer, text)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Report outputs err with its mapped code and structured details.
func (f *OutputFormatter) Report(err error) error {
	return f.Error(ErrorCode(err), err.Error(), errorDetails(err))
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
