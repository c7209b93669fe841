package keycloak

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Failure classes.  Every error returned by the client wraps exactly one of
// them inside a *ProviderError.
var (
	// ErrUnavailable: Keycloak could not be reached or answered 5xx.  Retryable.
	ErrUnavailable = errors.New("identity provider unavailable")
	// ErrDuplicateUser: the account already exists (409).
	ErrDuplicateUser = errors.New("identity provider user already exists")
	// ErrMisconfigured: the service account was refused (403 on an admin
	// endpoint, or the client-credentials grant itself failed).
	ErrMisconfigured = errors.New("identity provider service account misconfigured")
	// ErrRejected: a token grant was refused, usually bad credentials or an
	// expired refresh token.  Status carries the provider's HTTP status.
	ErrRejected = errors.New("identity provider rejected the request")
	// ErrUserNotFound: an admin lookup matched no account.
	ErrUserNotFound = errors.New("identity provider user not found")
	// ErrInvalidToken: an access token failed verification.
	ErrInvalidToken = errors.New("invalid access token")
)

// ProviderError describes a failed Keycloak call.  Description is the
// provider's own message (error_description / errorMessage) and never holds
// credentials.
type ProviderError struct {
	Op          string
	Status      int
	Description string
	Kind        error
	cause       error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString("keycloak ")
	b.WriteString(e.Op)
	if e.Status > 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.cause}
}

// errorBody covers both the OAuth error shape and the admin API shape.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorMessage     string `json:"errorMessage"`
}

func (b errorBody) message() string {
	switch {
	case b.ErrorDescription != "":
		return b.ErrorDescription
	case b.ErrorMessage != "":
		return b.ErrorMessage
	}
	return b.Error
}

// classify turns a non-2xx response into a ProviderError.
func classify(op string, status int, body []byte) *ProviderError {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	pe := &ProviderError{Op: op, Status: status, Description: eb.message()}
	switch {
	case status == http.StatusConflict:
		pe.Kind = ErrDuplicateUser
	case status == http.StatusForbidden:
		pe.Kind = ErrMisconfigured
	case status == http.StatusNotFound:
		pe.Kind = ErrUserNotFound
	case status >= 500:
		pe.Kind = ErrUnavailable
	default:
		pe.Kind = ErrRejected
	}
	return pe
}

func transportError(op string, err error) *ProviderError {
	return &ProviderError{Op: op, Kind: ErrUnavailable, cause: err}
}
