// Package apperrors is the error taxonomy shared by the settlement engine.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindStateConflict     Kind = "STATE_CONFLICT"
	KindNotFound          Kind = "NOT_FOUND"
	KindForbidden         Kind = "FORBIDDEN"
	KindExternalProvider  Kind = "EXTERNAL_PROVIDER"
	KindInvalidSignature  Kind = "INVALID_SIGNATURE"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
)

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

// Is matches any *Error of the same kind, so errors.Is(err, ErrInsufficientBalance) works
// for wrapped copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var ErrInsufficientBalance = &Error{Kind: KindInsufficientFunds, Message: "INSUFFICIENT_BALANCE"}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func StateConflict(format string, args ...any) *Error {
	return &Error{Kind: KindStateConflict, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransition(entity string, from, to any) *Error {
	return &Error{Kind: KindStateConflict, Message: fmt.Sprintf("invalid %s transition from %v to %v", entity, from, to)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Provider(err error, format string, args ...any) *Error {
	return &Error{Kind: KindExternalProvider, Message: fmt.Sprintf(format, args...), Err: err}
}

func InvalidSignature(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidSignature, Message: fmt.Sprintf(format, args...)}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindInvalidSignature:
		return http.StatusBadRequest
	case KindStateConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindExternalProvider:
		return http.StatusBadGateway
	case KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
