// Package errs defines the coded errors shared across the catalog services.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies an error category.
type Code string

const (
	CodeInvalidQuery          Code = "INVALID_QUERY"
	CodeUploadPolicyViolation Code = "UPLOAD_POLICY_VIOLATION"
	CodeCommitFailure         Code = "COMMIT_FAILURE"
	CodeDeliveryFailure       Code = "DELIVERY_FAILURE"
	CodeStoreUnavailable      Code = "STORE_UNAVAILABLE"
	CodeNotFound              Code = "NOT_FOUND"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Code)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Message == "":
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so the sentinels below work
// with errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidQuery          = &Error{Code: CodeInvalidQuery}
	ErrUploadPolicyViolation = &Error{Code: CodeUploadPolicyViolation}
	ErrCommitFailure         = &Error{Code: CodeCommitFailure}
	ErrDeliveryFailure       = &Error{Code: CodeDeliveryFailure}
	ErrStoreUnavailable      = &Error{Code: CodeStoreUnavailable}
	ErrNotFound              = &Error{Code: CodeNotFound}
)

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Wrap(code Code, err error, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost coded error in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}
