package gateway

import (
	"errors"
	"net/http"
)

// Kind classifies exchange failures for the HTTP layer
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindInvalidCredential
	KindForbidden
	KindNotFound
	KindIdentityProviderUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindInvalidCredential:
		return "invalid_credential"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindIdentityProviderUnavailable:
		return "idp_unavailable"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind to a response status. An unavailable identity
// provider is reported as 500.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindInvalidCredential:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified exchange failure. Message is safe to return to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, KindInternal for unclassified errors
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindInternal
}
