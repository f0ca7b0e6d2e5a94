package service

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUserNotFound is returned when a valid token names a user that no longer resolves
var ErrUserNotFound = errors.New("user not found")

// Kind classifies service errors for the API boundary
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuth
	KindForbidden
	KindNotFound
	KindDependency
)

// Status maps a kind to its HTTP status code
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure with a client-safe message
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

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports missing or malformed input
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated reports an absent, invalid or expired credential
func Unauthenticated(message string, err error) *Error {
	return &Error{Kind: KindAuth, Message: message, Err: err}
}

// Forbidden reports an authenticated caller that is not entitled to the operation
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NotFound reports a missing claim or document
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Dependency wraps a database or object store failure
func Dependency(message string, err error) *Error {
	return &Error{Kind: KindDependency, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindDependency for unclassified errors
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindDependency
}
