package identity

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"food-ordering-api/apperr"
	"food-ordering-api/models"
)

// FallbackProvider authenticates against a secondary credential source. It is
// consulted only when the user store itself is unreachable.
type FallbackProvider interface {
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	Lookup(ctx context.Context, id string) (*models.User, error)
}

// DemoAccount is a seeded account definition.
type DemoAccount struct {
	ID       string
	Name     string
	Email    string
	Password string
	Role     models.UserRole
}

// SeededAccounts is an in-memory FallbackProvider holding bcrypt hashes only.
type SeededAccounts struct {
	byEmail map[string]*models.User
	byID    map[string]*models.User
}

func NewSeededAccounts(accounts []DemoAccount) (*SeededAccounts, error) {
	s := &SeededAccounts{
		byEmail: make(map[string]*models.User, len(accounts)),
		byID:    make(map[string]*models.User, len(accounts)),
	}
	for _, a := range accounts {
		if !a.Role.Valid() {
			return nil, fmt.Errorf("demo account %s: invalid role %q", a.Email, a.Role)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("demo account %s: %w", a.Email, err)
		}
		u := &models.User{
			ID:           a.ID,
			Name:         a.Name,
			Email:        strings.ToLower(a.Email),
			PasswordHash: string(hash),
			Role:         a.Role,
		}
		s.byEmail[u.Email] = u
		s.byID[u.ID] = u
	}
	return s, nil
}

func (s *SeededAccounts) Authenticate(_ context.Context, email, password string) (*models.User, error) {
	u, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, apperr.InvalidCredentials()
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperr.InvalidCredentials()
	}
	cp := *u
	return &cp, nil
}

func (s *SeededAccounts) Lookup(_ context.Context, id string) (*models.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("User not found")
	}
	cp := *u
	return &cp, nil
}

// ParseDemoAccounts reads "email:password:role[:name]" entries separated by
// commas. Ids are derived from the position so tokens survive restarts.
func ParseDemoAccounts(raw string) ([]DemoAccount, error) {
	var out []DemoAccount
	for i, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 4)
		if len(parts) < 3 {
			return nil, fmt.Errorf("demo account %q: want email:password:role[:name]", entry)
		}
		a := DemoAccount{
			ID:       fmt.Sprintf("demo-%04d", i+1),
			Email:    parts[0],
			Password: parts[1],
			Role:     models.UserRole(parts[2]),
		}
		a.Name = a.Email
		if len(parts) == 4 {
			a.Name = parts[3]
		}
		out = append(out, a)
	}
	return out, nil
}
