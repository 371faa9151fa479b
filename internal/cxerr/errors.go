package cxerr

import (
	"fmt"
	"strings"
)

// Diagnostic is one reported issue from a validation stage or selector
// resolution: a line/column when known, plus a human message.
type Diagnostic struct {
	Line    int
	Column  int
	Message string
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		if d.Column > 0 {
			return fmt.Sprintf("%d:%d: %s", d.Line, d.Column, d.Message)
		}
		return fmt.Sprintf("%d: %s", d.Line, d.Message)
	}
	return d.Message
}

// Error is the structured error type returned by the transaction engine,
// the validation pipeline and their collaborators.
type Error struct {
	Code        string
	Message     string
	Category    Category
	Severity    Severity
	Diagnostics []Diagnostic
	Details     map[string]string
	Cause       error

	// BackupID, when non-empty, lets a client restore by identifier even
	// though the edit that produced this error ultimately failed.
	BackupID string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	for _, d := range e.Diagnostics {
		fmt.Fprintf(&b, "; %s", d.String())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, &Error{Code: X}) match on code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail attaches a key/value detail and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithDiagnostics attaches a diagnostic list and returns the error.
func (e *Error) WithDiagnostics(diags ...Diagnostic) *Error {
	e.Diagnostics = append(e.Diagnostics, diags...)
	return e
}

// WithBackupID records the backup identifier a client can restore from.
func (e *Error) WithBackupID(id string) *Error {
	e.BackupID = id
	return e
}

// New builds an Error with category/severity derived from code.
func New(code, message string, cause error) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Category: categoryForCode(code),
		Severity: severityForCode(code),
		Cause:    cause,
	}
}

// Wrap turns a plain error into a structured one under the given code.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// IsWarning reports whether err is a non-fatal *Error (VCS_COMMIT_FAILED,
// CHUNK_EMBEDDING_FAILED) that callers may surface without failing the
// overall operation.
func IsWarning(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Severity == SeverityWarning
}

// Code extracts the code from err, or "" if err is not an *Error.
func Code(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
