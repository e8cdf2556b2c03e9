// Package apperr defines the error taxonomy shared by the core. Every failure
// that crosses a component boundary is either an *Error with a Kind or an
// untyped error, which is treated as KindInternal.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation   Kind = "validation_error"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindInvalidState Kind = "invalid_state"
	KindUnavailable  Kind = "unavailable"
	KindTransient    Kind = "transient_failure"
	KindTerminal     Kind = "terminal_failure"
	KindInternal     Kind = "internal"
)

var (
	ErrValidation   = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Message: "authentication required"}
	ErrForbidden    = &Error{Kind: KindForbidden, Message: "insufficient permissions"}
	ErrInvalidState = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrUnavailable  = &Error{Kind: KindUnavailable, Message: "service temporarily unavailable"}
	ErrTransient    = &Error{Kind: KindTransient, Message: "temporary failure"}
	ErrTerminal     = &Error{Kind: KindTerminal, Message: "permanent failure"}
)

type Error struct {
	Kind    Kind
	Message string
	// Field names the offending input field for validation errors.
	Field string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, apperr.ErrForbidden) holds for any
// forbidden error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

// KindOf classifies err. Untyped errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// SafeMessage returns text that can be shown to an end user. Internal and
// invalid-state errors collapse to a generic message; their cause belongs in
// the logs.
func SafeMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "something went wrong, please try again"
	}
	switch e.Kind {
	case KindInternal, KindInvalidState:
		return "something went wrong, please try again"
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case "":
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
