package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"food-ordering-api/apperr"
	"food-ordering-api/config"
	"food-ordering-api/metrics"
	"food-ordering-api/models"
	"food-ordering-api/policy"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newService(t *testing.T, opts ...Option) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	opts = append(opts, WithMetrics(metrics.New(prometheus.NewRegistry())))
	return NewService(db, NewTokenCodec("test-secret", "test", 0), opts...), db
}

func register(t *testing.T, s *Service, email string, role models.UserRole) *AuthResult {
	t.Helper()
	res, err := s.Register(context.Background(), RegisterInput{
		Name: "Jane", Email: email, Password: "secret1", Role: role,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}

func TestRegister(t *testing.T) {
	s, db := newService(t)
	res := register(t, s, "jane@example.com", "")

	if res.User.Role != models.RoleCustomer {
		t.Errorf("default role = %q, want customer", res.User.Role)
	}
	if res.Token == "" {
		t.Error("expected a token")
	}

	var stored models.User
	if err := db.First(&stored, "email = ?", "jane@example.com").Error; err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	if stored.PasswordHash == "" || stored.PasswordHash == "secret1" {
		t.Errorf("password must be stored hashed, got %q", stored.PasswordHash)
	}

	id, err := s.VerifyToken(res.Token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if id.ID != stored.ID || id.Role != models.RoleCustomer {
		t.Errorf("token identity = %+v", id)
	}
}

func TestRegisterReportsEveryInvalidField(t *testing.T) {
	s, _ := newService(t)
	_, err := s.Register(context.Background(), RegisterInput{Email: "not-an-email", Password: "123", Role: "chef"})

	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	got := map[string]bool{}
	for _, f := range appErr.Fields {
		got[f.Field] = true
	}
	for _, want := range []string{"name", "email", "password", "role"} {
		if !got[want] {
			t.Errorf("missing field error for %q in %+v", want, appErr.Fields)
		}
	}
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	s, _ := newService(t)
	_, err := s.Register(context.Background(), RegisterInput{
		Name: "Mallory", Email: "m@example.com", Password: "secret1", Role: models.RoleAdmin,
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s, _ := newService(t)
	register(t, s, "dup@example.com", models.RoleCustomer)

	_, err := s.Register(context.Background(), RegisterInput{Name: "Other", Email: "dup@example.com", Password: "secret1"})
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(appErr.Fields) != 1 || appErr.Fields[0].Field != "email" {
		t.Errorf("expected email field detail, got %+v", appErr.Fields)
	}
}

func TestLoginDoesNotDistinguishUnknownEmail(t *testing.T) {
	s, _ := newService(t)
	register(t, s, "known@example.com", models.RoleCustomer)
	ctx := context.Background()

	_, wrongPass := s.Login(ctx, LoginInput{Email: "known@example.com", Password: "nope123"})
	_, unknown := s.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "nope123"})

	if !errors.Is(wrongPass, apperr.ErrInvalidCredentials) || !errors.Is(unknown, apperr.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v / %v", wrongPass, unknown)
	}
	if wrongPass.Error() != unknown.Error() {
		t.Fatalf("responses differ: %q vs %q", wrongPass, unknown)
	}

	res, err := s.Login(ctx, LoginInput{Email: "known@example.com", Password: "secret1"})
	if err != nil || res.Token == "" {
		t.Fatalf("valid login failed: %v", err)
	}
}

func seeded(t *testing.T) *SeededAccounts {
	t.Helper()
	fb, err := NewSeededAccounts([]DemoAccount{
		{ID: "demo-0001", Name: "Demo", Email: "demo@example.com", Password: "demo123", Role: models.RoleCustomer},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return fb
}

func closeDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	_ = sqlDB.Close()
}

func TestLoginFallbackOnlyOnStoreFailure(t *testing.T) {
	s, db := newService(t, WithFallback(seeded(t)))
	ctx := context.Background()

	// while the store is healthy a seeded account is just an unknown email
	_, err := s.Login(ctx, LoginInput{Email: "demo@example.com", Password: "demo123"})
	if !errors.Is(err, apperr.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials with a healthy store, got %v", err)
	}

	closeDB(t, db)

	res, err := s.Login(ctx, LoginInput{Email: "demo@example.com", Password: "demo123"})
	if err != nil {
		t.Fatalf("expected fallback login, got %v", err)
	}
	if res.User.ID != "demo-0001" {
		t.Errorf("user = %+v", res.User)
	}

	_, err = s.Login(ctx, LoginInput{Email: "real@example.com", Password: "whatever"})
	if !errors.Is(err, apperr.ErrDependencyFailure) {
		t.Fatalf("non-seeded account must surface the store failure, got %v", err)
	}

	_, err = s.Login(ctx, LoginInput{Email: "demo@example.com", Password: "wrong"})
	if !errors.Is(err, apperr.ErrDependencyFailure) {
		t.Fatalf("bad seeded password must surface the store failure, got %v", err)
	}
}

func TestLoginWithoutFallbackSurfacesStoreFailure(t *testing.T) {
	s, db := newService(t)
	closeDB(t, db)

	_, err := s.Login(context.Background(), LoginInput{Email: "a@example.com", Password: "secret1"})
	if !errors.Is(err, apperr.ErrDependencyFailure) {
		t.Fatalf("expected dependency failure, got %v", err)
	}
}

func TestGetProfileResolvesSeededAccount(t *testing.T) {
	s, _ := newService(t, WithFallback(seeded(t)))
	u, err := s.GetProfile(context.Background(), policy.Identity{ID: "demo-0001", Role: models.RoleCustomer})
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if u.Email != "demo@example.com" {
		t.Errorf("email = %q", u.Email)
	}

	_, err = s.GetProfile(context.Background(), policy.Identity{ID: "nobody", Role: models.RoleCustomer})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateProfileAllowList(t *testing.T) {
	s, _ := newService(t)
	res := register(t, s, "p@example.com", models.RoleCustomer)
	id := policy.Identity{ID: res.User.ID, Role: res.User.Role}

	name := "Janet"
	phone := "555-0100"
	u, err := s.UpdateProfile(context.Background(), id, ProfileUpdate{
		Name:    &name,
		Phone:   &phone,
		Address: &models.PostalAddress{Street: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701"},
	})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.Name != "Janet" || u.Phone != "555-0100" || u.Address.City != "Springfield" {
		t.Errorf("profile not updated: %+v", u)
	}
	if u.Email != "p@example.com" || u.Role != models.RoleCustomer {
		t.Errorf("email/role must not change: %+v", u)
	}

	blank := "  "
	if _, err := s.UpdateProfile(context.Background(), id, ProfileUpdate{Name: &blank}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	s, _ := newService(t)
	res := register(t, s, "cp@example.com", models.RoleCustomer)
	id := policy.Identity{ID: res.User.ID, Role: res.User.Role}
	ctx := context.Background()

	err := s.ChangePassword(ctx, id, PasswordChange{CurrentPassword: "wrong", NewPassword: "newsecret"})
	if !errors.Is(err, apperr.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	err = s.ChangePassword(ctx, id, PasswordChange{CurrentPassword: "secret1", NewPassword: "123"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := s.ChangePassword(ctx, id, PasswordChange{CurrentPassword: "secret1", NewPassword: "newsecret"}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := s.Login(ctx, LoginInput{Email: "cp@example.com", Password: "newsecret"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	s, db := newService(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := s.EnsureAdmin(ctx, "Admin", "admin@example.com", "adminpass"); err != nil {
			t.Fatalf("EnsureAdmin #%d: %v", i, err)
		}
	}
	var count int64
	db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count)
	if count != 1 {
		t.Fatalf("admins = %d, want 1", count)
	}
}

func TestTokenCodec(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	codec := NewTokenCodec("secret", "issuer-a", time.Hour)
	codec.now = func() time.Time { return now }

	token, err := codec.Issue(&models.User{ID: "u1", Role: models.RoleRestaurantOwner})
	if err != nil {
		t.Fatal(err)
	}

	id, err := codec.Verify(token)
	if err != nil || id.ID != "u1" || id.Role != models.RoleRestaurantOwner {
		t.Fatalf("Verify = %+v, %v", id, err)
	}

	otherSecret := NewTokenCodec("other", "issuer-a", time.Hour)
	otherSecret.now = codec.now
	otherIssuer := NewTokenCodec("secret", "issuer-b", time.Hour)
	otherIssuer.now = codec.now
	later := NewTokenCodec("secret", "issuer-a", time.Hour)
	later.now = func() time.Time { return now.Add(2 * time.Hour) }

	for name, c := range map[string]*TokenCodec{"secret": otherSecret, "issuer": otherIssuer, "expired": later} {
		if _, err := c.Verify(token); !errors.Is(err, apperr.ErrUnauthenticated) {
			t.Errorf("%s: expected unauthenticated, got %v", name, err)
		}
	}
	if _, err := codec.Verify("garbage"); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Errorf("garbage token: expected unauthenticated, got %v", err)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"":             "",
		"Bearer":       "",
	}
	for in, want := range tests {
		if got := ExtractBearerToken(in); got != want {
			t.Errorf("ExtractBearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDemoAccounts(t *testing.T) {
	accts, err := ParseDemoAccounts("a@x.com:pw1234:customer:Alice, b@x.com:pw5678:restaurant_owner")
	if err != nil {
		t.Fatal(err)
	}
	if len(accts) != 2 || accts[0].Name != "Alice" || accts[1].Role != models.RoleRestaurantOwner {
		t.Fatalf("unexpected accounts %+v", accts)
	}
	if _, err := ParseDemoAccounts("broken"); err == nil {
		t.Fatal("expected an error for a malformed entry")
	}
}

func TestEmailIsCaseInsensitive(t *testing.T) {
	s, _ := newService(t)
	register(t, s, "Mixed@Example.com", models.RoleCustomer)

	if _, err := s.Login(context.Background(), LoginInput{Email: "mixed@EXAMPLE.com", Password: "secret1"}); err != nil {
		t.Fatalf("login with different case: %v", err)
	}
	_, err := s.Register(context.Background(), RegisterInput{Name: "Twin", Email: "MIXED@example.com", Password: "secret1"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestListUsers(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	register(t, s, "c@example.com", models.RoleCustomer)
	register(t, s, "o@example.com", models.RoleRestaurantOwner)
	admin := policy.Identity{ID: "admin-1", Role: models.RoleAdmin}

	all, err := s.ListUsers(ctx, admin, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("all users: %d, %v", len(all), err)
	}
	owners, err := s.ListUsers(ctx, admin, models.RoleRestaurantOwner)
	if err != nil || len(owners) != 1 || owners[0].Email != "o@example.com" {
		t.Fatalf("owners: %+v, %v", owners, err)
	}
	if _, err := s.ListUsers(ctx, admin, "chef"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("unknown role: %v", err)
	}
	customer := policy.Identity{ID: all[0].ID, Role: models.RoleCustomer}
	if _, err := s.ListUsers(ctx, customer, ""); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("customer: %v", err)
	}
}
