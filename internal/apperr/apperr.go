// Package apperr classifies errors per the taxonomy the API layer and CLI
// use to pick an HTTP status or exit code: config, store, scan-item (always
// absorbed locally, never constructed here), scan-fatal, conflict, and
// validation errors.
package apperr

import "fmt"

// Kind is the taxonomy of application-level errors.
type Kind int

const (
	KindConfig Kind = iota
	KindStore
	KindScanFatal
	KindConflict
	KindValidation
	KindNotFound
)

// Error wraps an underlying error with a Kind for dispatch at the API/CLI
// boundary without string-matching messages.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Config(message string, err error) *Error    { return Wrap(KindConfig, message, err) }
func Store(message string, err error) *Error     { return Wrap(KindStore, message, err) }
func ScanFatal(message string, err error) *Error { return Wrap(KindScanFatal, message, err) }
func Conflict(message string) *Error             { return New(KindConflict, message) }
func Validation(message string) *Error           { return New(KindValidation, message) }
func NotFound(message string) *Error             { return New(KindNotFound, message) }

// As extracts an *Error from err, if any.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
