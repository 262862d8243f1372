package apperr

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

func TestErrorIsMatchesKindSentinels(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Forbidden("not yours"))
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected %v to match ErrForbidden", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("forbidden must not match ErrNotFound")
	}
	if KindOf(err) != KindForbidden {
		t.Fatalf("expected kind forbidden, got %q", KindOf(err))
	}
}

func TestKindOfForeignErrorIsDependency(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindDependencyFailure {
		t.Fatalf("expected dependency failure, got %q", got)
	}
}

func TestFromStore(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want *Error
	}{
		{name: "not found", err: gorm.ErrRecordNotFound, want: ErrNotFound},
		{name: "translated duplicate", err: gorm.ErrDuplicatedKey, want: ErrConflict},
		{name: "sqlite duplicate", err: errors.New("constraint failed: UNIQUE constraint failed: restaurants.owner_id"), want: ErrConflict},
		{name: "other", err: errors.New("disk I/O error"), want: ErrDependencyFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromStore("load", tc.err, "Thing not found")
			if !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want.Kind, got)
			}
		})
	}
	if FromStore("noop", nil, "") != nil {
		t.Fatalf("nil error must stay nil")
	}
}

func TestInvalidCredentialsIsStable(t *testing.T) {
	a, b := InvalidCredentials(), InvalidCredentials()
	if a.Error() != b.Error() {
		t.Fatalf("invalid credentials must not vary: %q vs %q", a, b)
	}
}

func TestToResponse(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   Kind
		msg    string
	}{
		{"validation", Validation(Field("email", "bad")), 400, KindValidation, "Validation failed"},
		{"unauthenticated", Unauthenticated("no token"), 401, KindUnauthenticated, "no token"},
		{"invalid credentials", InvalidCredentials(), 401, KindInvalidCredentials, "Invalid credentials"},
		{"forbidden", Forbidden("nope"), 403, KindForbidden, "nope"},
		{"not found", NotFound("gone"), 404, KindNotFound, "gone"},
		{"conflict", Conflict("dup"), 409, KindConflict, "dup"},
		{"transition", InvalidTransition("stuck"), 422, KindInvalidTransition, "stuck"},
		{"dependency hides cause", Dependency("save", errors.New("disk full")), 500, KindDependencyFailure, "Server error"},
		{"foreign error", errors.New("boom"), 500, KindDependencyFailure, "Server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := ToResponse(fmt.Errorf("ctx: %w", tc.err))
			if status != tc.status || body.Kind != tc.kind || body.Error != tc.msg {
				t.Fatalf("got %d %+v", status, body)
			}
		})
	}

	_, body := ToResponse(Validation(Field("email", "bad"), Field("name", "missing")))
	if len(body.Details) != 2 || body.Details[0].Field != "email" {
		t.Fatalf("details = %+v", body.Details)
	}
}
