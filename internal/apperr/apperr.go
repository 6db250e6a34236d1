// Package apperr is the error taxonomy shared by the portal API and its client core.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthExpired
	KindAuthForbidden
	KindNotFound
	KindConflict
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthExpired:
		return "auth_expired"
	case KindAuthForbidden:
		return "auth_forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	}
	return "unknown"
}

// FieldError is a failed check on one request field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type Error struct {
	Kind    Kind
	Msg     string
	Fields  []FieldError
	Status  int
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil && e.Msg == "" {
		return e.Wrapped.Error()
	}
	if e.Wrapped != nil {
		return e.Msg + ": " + e.Wrapped.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is matches on Kind so errors.Is(err, apperr.ErrConflict) works for any conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuthExpired   = &Error{Kind: KindAuthExpired}
	ErrAuthForbidden = &Error{Kind: KindAuthForbidden}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrTransient     = &Error{Kind: KindTransient}
)

func Validation(msg string, fields ...FieldError) error {
	return &Error{Kind: KindValidation, Msg: msg, Fields: fields, Status: http.StatusBadRequest}
}

func AuthExpired(msg string) error {
	if msg == "" {
		msg = "session expired"
	}
	return &Error{Kind: KindAuthExpired, Msg: msg, Status: http.StatusUnauthorized}
}

func AuthForbidden(msg string) error {
	if msg == "" {
		msg = "access denied"
	}
	return &Error{Kind: KindAuthForbidden, Msg: msg, Status: http.StatusForbidden}
}

func NotFound(msg string) error {
	if msg == "" {
		msg = "not found"
	}
	return &Error{Kind: KindNotFound, Msg: msg, Status: http.StatusNotFound}
}

func Conflict(msg string) error {
	if msg == "" {
		msg = "already submitted"
	}
	return &Error{Kind: KindConflict, Msg: msg, Status: http.StatusConflict}
}

func Transient(err error) error {
	return &Error{Kind: KindTransient, Msg: "service temporarily unavailable, please retry", Status: http.StatusServiceUnavailable, Wrapped: err}
}

// FromStatus maps a non-2xx HTTP response to the taxonomy.
func FromStatus(code int, msg string) error {
	switch {
	case code == http.StatusUnauthorized:
		return AuthExpired(msg)
	case code == http.StatusForbidden:
		return AuthForbidden(msg)
	case code == http.StatusNotFound:
		return NotFound(msg)
	case code == http.StatusConflict:
		return Conflict(msg)
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return Validation(msg)
	case code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout:
		return &Error{Kind: KindTransient, Msg: "service temporarily unavailable, please retry", Status: code,
			Wrapped: fmt.Errorf("status %d: %s", code, msg)}
	}
	return &Error{Kind: KindUnknown, Msg: msg, Status: code}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Status is the HTTP status the API answers with for err.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// Message is the user-facing text for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "something went wrong, please try again"
	}
	if e.Msg != "" {
		return e.Msg
	}
	return e.Error()
}

func IsRetriable(err error) bool {
	return KindOf(err) == KindTransient
}
