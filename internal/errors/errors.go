// Package errors defines the domain error taxonomy shared by the transfer
// saga, its collaborators and the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
)

// DomainError is a coded error. Two DomainErrors match under errors.Is when
// their codes are equal, so a wrapped error still matches its sentinel.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is reports whether target is a DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of sentinel carrying cause.
func Wrap(sentinel *DomainError, cause error) *DomainError {
	return &DomainError{Code: sentinel.Code, Message: sentinel.Message, Err: cause}
}

// Wrapf returns a copy of sentinel with a more specific message.
func Wrapf(sentinel *DomainError, format string, args ...interface{}) *DomainError {
	return &DomainError{
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Err:     fmt.Errorf(format, args...),
	}
}

// Code extracts the code of the first DomainError in err's chain, or "".
func Code(err error) string {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Is is errors.Is, re-exported so callers importing this package under its
// default name need not alias the standard library.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As is errors.As, re-exported for the same reason as Is.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }
