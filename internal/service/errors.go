// Package service holds the application use cases: enrollment, login
// synchronisation with Keycloak, and batch administration.  Services return
// *Error values; the HTTP layer maps their Kind to a status code.
package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindIdentityProvider
	KindConfiguration
	KindInvalidToken
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindIdentityProvider:
		return "IdentityProviderError"
	case KindConfiguration:
		return "ConfigurationError"
	case KindInvalidToken:
		return "InvalidToken"
	}
	return "InternalError"
}

// Error is a classified failure.  Message is safe to show to clients;
// Err carries the cause for logs only.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string // per-field detail for validation failures
	Status  int               // upstream HTTP status, for Unauthorized
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// ValidationError reports bad input.  fields maps a field name to what is
// wrong with it.
func ValidationError(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

func NotFound(what string) *Error {
	return newError(KindNotFound, what+" not found", nil)
}

func Conflict(msg string, cause error) *Error {
	return newError(KindConflict, msg, cause)
}

func Forbidden(msg string) *Error {
	return newError(KindForbidden, msg, nil)
}

func InvalidToken(msg string, cause error) *Error {
	return newError(KindInvalidToken, msg, cause)
}

// Unauthorized carries the status reported by the identity provider; zero
// means 401.
func Unauthorized(msg string, status int, cause error) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg, Status: status, Err: cause}
}

func IdentityProviderError(cause error) *Error {
	return newError(KindIdentityProvider, "identity provider request failed", cause)
}

func ConfigurationError(cause error) *Error {
	return newError(KindConfiguration, "identity provider service account lacks required permissions", cause)
}

func Internal(msg string, cause error) *Error {
	return newError(KindInternal, msg, cause)
}
