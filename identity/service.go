// Package identity holds user accounts: registration, credential checks, bearer
// tokens and profile maintenance.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"food-ordering-api/apperr"
	"food-ordering-api/metrics"
	"food-ordering-api/models"
	"food-ordering-api/policy"
	"food-ordering-api/validation"
)

type RegisterInput struct {
	Name     string          `json:"name" validate:"required,max=50"`
	Email    string          `json:"email" validate:"required,email_rfc"`
	Password string          `json:"password" validate:"required,min=6"`
	Role     models.UserRole `json:"role"`
	Phone    string          `json:"phone" validate:"max=20"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ProfileUpdate lists the only fields a user may change about themselves.
type ProfileUpdate struct {
	Name    *string               `json:"name" validate:"omitempty,max=50"`
	Phone   *string               `json:"phone" validate:"omitempty,max=20"`
	Address *models.PostalAddress `json:"address"`
}

type PasswordChange struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

type AuthResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

type Service struct {
	db       *gorm.DB
	tokens   *TokenCodec
	fallback FallbackProvider
	metrics  *metrics.Metrics
	log      *slog.Logger
}

type Option func(*Service)

// WithFallback installs a secondary credential source.
func WithFallback(p FallbackProvider) Option {
	return func(s *Service) { s.fallback = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func NewService(db *gorm.DB, tokens *TokenCodec, opts ...Option) *Service {
	s := &Service{db: db, tokens: tokens, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account and signs the caller in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Role == "" {
		in.Role = models.RoleCustomer
	}

	var extra []apperr.FieldError
	if in.Role != models.RoleCustomer && in.Role != models.RoleRestaurantOwner {
		extra = append(extra, apperr.Field("role", "Role must be customer or restaurant_owner"))
	}
	if err := validation.Struct(in, extra...); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", in.Email).Count(&count).Error; err != nil {
		return nil, apperr.Dependency("check email", err)
	}
	if count > 0 {
		return nil, duplicateEmail()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Dependency("hash password", err)
	}

	user := &models.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		Phone:        in.Phone,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if apperr.IsDuplicateKey(err) {
			return nil, duplicateEmail()
		}
		return nil, apperr.Dependency("create user", err)
	}

	s.log.InfoContext(ctx, "user registered", "user_id", user.ID, "role", user.Role)
	return s.authResult(user)
}

func duplicateEmail() error {
	return apperr.Conflict("User already exists", apperr.Field("email", "User with this email already exists"))
}

// EnsureAdmin creates an admin account if none exists with that email. Admins
// cannot self-register, so this is how the first one is bootstrapped.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	var existing models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Dependency("find admin", err)
	}
	if len(password) < 6 {
		return apperr.Validation(apperr.Field("password", "password must be at least 6 characters long"))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Dependency("hash password", err)
	}
	admin := &models.User{Name: name, Email: email, PasswordHash: string(hash), Role: models.RoleAdmin}
	if err := s.db.WithContext(ctx).Create(admin).Error; err != nil {
		return apperr.FromStore("create admin", err, "")
	}
	s.log.InfoContext(ctx, "admin account created", "user_id", admin.ID)
	return nil
}

// Login checks credentials. Unknown email and wrong password produce the same
// error. The fallback provider is tried only when the user store is unreachable.
func (s *Service) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", in.Email).First(&user).Error
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.metrics.Login("invalid")
		return nil, apperr.InvalidCredentials()
	default:
		return s.loginFallback(ctx, in, apperr.Dependency("find user", err))
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		s.metrics.Login("invalid")
		return nil, apperr.InvalidCredentials()
	}

	s.metrics.Login("success")
	return s.authResult(&user)
}

func (s *Service) loginFallback(ctx context.Context, in LoginInput, storeErr error) (*AuthResult, error) {
	s.log.ErrorContext(ctx, "user store unavailable during login", "error", storeErr)
	if s.fallback == nil {
		s.metrics.Login("error")
		return nil, storeErr
	}
	user, err := s.fallback.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		s.metrics.Login("error")
		return nil, storeErr
	}
	s.log.WarnContext(ctx, "signed in with a seeded account", "user_id", user.ID)
	s.metrics.Login("fallback")
	return s.authResult(user)
}

func (s *Service) authResult(u *models.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Token: token}, nil
}

// VerifyToken resolves a bearer token to the caller's identity.
func (s *Service) VerifyToken(token string) (policy.Identity, error) {
	return s.tokens.Verify(token)
}

// GetProfile returns the caller's account. Seeded accounts are resolved through
// the fallback provider.
func (s *Service) GetProfile(ctx context.Context, id policy.Identity) (*models.User, error) {
	if id.IsAnonymous() {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id.ID).Error
	if err == nil {
		return &user, nil
	}
	storeErr := apperr.FromStore("find user", err, "User not found")
	if s.fallback != nil {
		if u, ferr := s.fallback.Lookup(ctx, id.ID); ferr == nil {
			return u, nil
		}
	}
	return nil, storeErr
}

// UpdateProfile changes name, phone and address. Email and role never change here.
func (s *Service) UpdateProfile(ctx context.Context, id policy.Identity, in ProfileUpdate) (*models.User, error) {
	if id.IsAnonymous() {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	var extra []apperr.FieldError
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		extra = append(extra, apperr.Field("name", "name cannot be empty"))
	}
	if err := validation.Struct(in, extra...); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Phone != nil {
		updates["phone"] = *in.Phone
	}
	if in.Address != nil {
		updates["address_street"] = in.Address.Street
		updates["address_city"] = in.Address.City
		updates["address_state"] = in.Address.State
		updates["address_zip_code"] = in.Address.ZipCode
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", id.ID).Error; err != nil {
			return apperr.FromStore("find user", err, "User not found")
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return apperr.Dependency("update profile", err)
		}
		return tx.First(&user, "id = ?", id.ID).Error
	})
	if err != nil {
		return nil, apperr.FromStore("update profile", err, "User not found")
	}
	return &user, nil
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, id policy.Identity, in PasswordChange) error {
	if id.IsAnonymous() {
		return apperr.Unauthenticated("Authentication required")
	}
	if err := validation.Struct(in); err != nil {
		return err
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id.ID).Error; err != nil {
		return apperr.FromStore("find user", err, "User not found")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.CurrentPassword)) != nil {
		return apperr.InvalidCredentials()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Dependency("hash password", err)
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("password_hash", string(hash)).Error; err != nil {
		return apperr.Dependency("update password", err)
	}
	s.log.InfoContext(ctx, "password changed", "user_id", user.ID)
	return nil
}

// ListUsers is the admin directory of accounts, newest first.
func (s *Service) ListUsers(ctx context.Context, admin policy.Identity, role models.UserRole) ([]models.User, error) {
	if err := policy.Authorize(admin, policy.ActionListUsers, policy.Resource{}); err != nil {
		return nil, err
	}
	if role != "" && !role.Valid() {
		return nil, apperr.Validation(apperr.Field("role", "Unknown role '"+string(role)+"'"))
	}
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if role != "" {
		q = q.Where("role = ?", role)
	}
	users := []models.User{}
	if err := q.Find(&users).Error; err != nil {
		return nil, apperr.Dependency("list users", err)
	}
	return users, nil
}
