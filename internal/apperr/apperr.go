// Package apperr defines the request error kinds surfaced to the error stage.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a request failure.
type Kind int

const (
	KindInternal Kind = iota
	KindParse
	KindValidation
	KindNotFound
	KindAuth
	KindForbidden
	KindRateLimited
)

var kindNames = map[Kind]string{
	KindInternal:    "InternalError",
	KindParse:       "ParseError",
	KindValidation:  "ValidationError",
	KindNotFound:    "NotFoundError",
	KindAuth:        "AuthError",
	KindForbidden:   "ForbiddenError",
	KindRateLimited: "RateLimitExceeded",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "InternalError"
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindParse, KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a request error with a client-facing message.
// Err holds the underlying cause and is never sent to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code for the error.
func (e *Error) Status() int { return e.Kind.Status() }

func newError(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Message: msg, Err: err}
}

func Parse(msg string, err error) *Error { return newError(KindParse, msg, err) }
func Validation(msg string) *Error { return newError(KindValidation, msg, nil) }
func NotFound(msg string) *Error { return newError(KindNotFound, msg, nil) }
func Auth(msg string) *Error { return newError(KindAuth, msg, nil) }
func Forbidden(msg string) *Error { return newError(KindForbidden, msg, nil) }
func RateLimited(msg string) *Error { return newError(KindRateLimited, msg, nil) }
func Internal(msg string, err error) *Error { return newError(KindInternal, msg, err) }

// KindOf reports the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
