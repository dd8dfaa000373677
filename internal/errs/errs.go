// Package errs defines the error taxonomy shared by export and import.
//
// Every failure that crosses a component boundary is an *Error carrying one
// of a closed set of codes, plus whatever diagnostic context is known (entity
// UUID, field name). Callers branch on the code with Is or CodeOf, which see
// through fmt.Errorf wrapping.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes export/import failures.
type Code string

const (
	// InvalidArgument indicates bad caller input. No side effects.
	InvalidArgument Code = "INVALID_ARGUMENT"

	// NotFound indicates a referenced entity is absent. No side effects.
	NotFound Code = "NOT_FOUND"

	// LicensingError indicates a license policy rejected the export, or the
	// policy evaluator itself failed.
	LicensingError Code = "LICENSING_ERROR"

	// IOError indicates a filesystem or transport fault. Retryable.
	IOError Code = "IO_ERROR"

	// ExportError indicates unusable content while writing an archive.
	ExportError Code = "EXPORT_ERROR"

	// UnsupportedFormatVersion indicates the archive format version is not
	// one this reader understands.
	UnsupportedFormatVersion Code = "UNSUPPORTED_FORMAT_VERSION"

	// CorruptArchive indicates a structural violation found while reading.
	CorruptArchive Code = "CORRUPT_ARCHIVE"

	// GraphIntegrityError indicates a would-be cycle or irreconcilable
	// conflict during merge.
	GraphIntegrityError Code = "GRAPH_INTEGRITY_ERROR"
)

// Error is the structured error returned by export/import components.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// UUID identifies the affected entity, when known.
	UUID string

	// Field names the offending attribute or archive path, when known.
	Field string

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
	if e.UUID != "" {
		ctx = append(ctx, "uuid="+e.UUID)
	}
	if e.Field != "" {
		ctx = append(ctx, "field="+e.Field)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
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

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an underlying cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithUUID sets the entity UUID and returns e.
func (e *Error) WithUUID(uuid string) *Error {
	e.UUID = uuid
	return e
}

// WithField sets the field name and returns e.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "" when
// there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
// Uses errors.As to handle wrapped errors.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
