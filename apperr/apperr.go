// Package apperr defines the error taxonomy shared by every service. Handlers turn
// these into structured HTTP responses; services return them unchanged.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindInvalidTransition  Kind = "invalid_transition"
	KindDependencyFailure  Kind = "dependency_failure"
)

// FieldError names one offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "; %s: %s", f.Field, f.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels (errors with no message, fields or cause) by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" && len(t.Fields) == 0 && t.Err == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

// Sentinels for errors.Is.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrDependencyFailure  = &Error{Kind: KindDependencyFailure}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Validation(fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: "Validation failed", Fields: fields}
}

func Field(field, message string) FieldError {
	return FieldError{Field: field, Message: message}
}

func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }

func Forbidden(message string) *Error { return New(KindForbidden, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

func Conflict(message string, fields ...FieldError) *Error {
	return &Error{Kind: KindConflict, Message: message, Fields: fields}
}

// InvalidCredentials is deliberately identical for every cause.
func InvalidCredentials() *Error {
	return &Error{
		Kind:    KindInvalidCredentials,
		Message: "Invalid credentials",
		Fields:  []FieldError{{Field: "general", Message: "Invalid email or password"}},
	}
}

func InvalidTransition(message string) *Error { return New(KindInvalidTransition, message) }

func Dependency(op string, err error) *Error {
	return &Error{Kind: KindDependencyFailure, Message: op, Err: err}
}

// KindOf reports the kind of err, or KindDependencyFailure for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDependencyFailure
}

// FromStore translates gorm errors. notFound is used for gorm.ErrRecordNotFound.
func FromStore(op string, err error, notFound string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(notFound)
	}
	if IsDuplicateKey(err) {
		return Conflict("Resource already exists")
	}
	return Dependency(op, err)
}

// IsDuplicateKey recognises unique-index violations whether or not the dialector
// translates them.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key")
}
