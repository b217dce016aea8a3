// Package errs holds the error kinds shared by the store, service and HTTP
// layers. Handlers map a kind to a status code; everything else only checks
// kinds with errors.Is.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrPermission   = errors.New("permission denied")
	ErrValidation   = errors.New("validation failed")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrTransient    = errors.New("transient failure")
)

// Error carries a kind sentinel plus a human message. Holder is set on
// claim conflicts to the display name of the agent holding the ticket.
type Error struct {
	Kind   error
	Msg    string
	Holder string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

// TakenBy is the conflict returned when another agent already holds a ticket.
func TakenBy(holder string) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf("ticket already taken by %s", holder), Holder: holder}
}

func Permission(format string, args ...any) error {
	return &Error{Kind: ErrPermission, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func Duplicate(field string, err error) error {
	return &Error{Kind: ErrDuplicateKey, Msg: "duplicate " + field, Err: err}
}

func Transient(msg string, err error) error {
	return &Error{Kind: ErrTransient, Msg: msg, Err: err}
}

// Message returns the human part of err without wrapped causes.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}

// HTTPStatus maps err to a status code and a stable error code.
func HTTPStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrDuplicateKey):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, ErrPermission):
		return http.StatusForbidden, "PERMISSION_DENIED"
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
