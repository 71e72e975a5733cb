// Package dberr defines the query engine's error taxonomy.
//
// Every error that crosses a component boundary is one of the Codes
// below, carrying an HTTP-style Status the way the teacher's
// gopkg.in/src-d/go-errors types carry a kind tag.
package dberr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code identifies one of the query engine's error kinds.
type Code string

const (
	InvalidQuery        Code = "db/invalid-query"
	InvalidFn           Code = "db/invalid-fn"
	InvalidPredicate    Code = "db/invalid-predicate"
	InvalidPropertyPath Code = "db/invalid-property-path"
	ExceededCost        Code = "db/exceeded-cost"
	OptimizationFailure Code = "db/optimization-failure"
	InvalidAuth         Code = "db/invalid-auth"
)

var statusByCode = map[Code]int{
	InvalidQuery:        400,
	InvalidFn:           400,
	InvalidPredicate:    400,
	InvalidPropertyPath: 400,
	ExceededCost:        400,
	OptimizationFailure: 500,
	InvalidAuth:         401,
}

// Error is a tagged, wrapped error carrying a Code and HTTP-style Status.
type Error struct {
	code    Code
	status  int
	message string
	cause   error
}

// New creates a new tagged error with the given code and message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{
		code:    code,
		status:  statusByCode[code],
		message: fmt.Sprintf(format, args...),
	}
}

// Wrap tags an existing error with a code, preserving it as the cause.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{
		code:    code,
		status:  statusByCode[code],
		message: fmt.Sprintf(format, args...),
		cause:   errors.WithStack(cause),
	}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the error's taxonomy code.
func (e *Error) Code() Code { return e.code }

// Status returns the HTTP-style status associated with the error's code.
func (e *Error) Status() int { return e.status }

// As reports whether err is (or wraps) a *Error and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
