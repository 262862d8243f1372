package apperr

import (
	"errors"
	"net/http"
)

// Response is the JSON body of every error reply.
type Response struct {
	Error   string       `json:"error"`
	Kind    Kind         `json:"kind"`
	Details []FieldError `json:"details,omitempty"`
}

func StatusCode(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated, KindInvalidCredentials:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalidTransition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ToResponse renders err for a client. Dependency failures never leak their
// cause; callers log it.
func ToResponse(err error) (int, Response) {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindDependencyFailure {
		return http.StatusInternalServerError, Response{Error: "Server error", Kind: KindDependencyFailure}
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	return StatusCode(e.Kind), Response{Error: msg, Kind: e.Kind, Details: e.Fields}
}
