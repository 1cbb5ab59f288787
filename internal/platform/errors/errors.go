package errors

import (
	stderrors "errors"
)

// Error is a ledger failure carrying a machine-readable code. Metadata holds
// the identifiers a caller needs to act on it, such as the transfer id.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so callers can test a chain
// with errors.Is(err, New(code, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// New returns an error with code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata returns an error that names the records involved.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap returns an error with code that keeps cause in its chain.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WrapWithMetadata is Wrap plus metadata.
func WrapWithMetadata(code Code, message string, metadata map[string]string, cause error) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata, Cause: cause}
}

// CodeOf returns the code of the first ledger error in err's chain, or
// CodeUnknown when there is none.
func CodeOf(err error) Code {
	var ledgerErr *Error
	if stderrors.As(err, &ledgerErr) {
		return ledgerErr.Code
	}
	return CodeUnknown
}

// HasCode reports whether err's chain carries a ledger error with code.
func HasCode(err error, code Code) bool {
	return stderrors.Is(err, &Error{Code: code})
}
