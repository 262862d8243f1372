package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"food-ordering-api/apperr"
	"food-ordering-api/models"
	"food-ordering-api/policy"
)

// DefaultTokenTTL matches how long a browser session stays signed in.
const DefaultTokenTTL = 30 * 24 * time.Hour

var errInvalidToken = errors.New("invalid token")

// Claims is the token payload. The subject is the user id.
type Claims struct {
	Role models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies self-contained HS256 tokens.
type TokenCodec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenCodec(secret, issuer string, ttl time.Duration) *TokenCodec {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{
		secret: []byte(strings.TrimSpace(secret)),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for u.
func (c *TokenCodec) Issue(u *models.User) (string, error) {
	now := c.now()
	claims := Claims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", apperr.Dependency("sign token", err)
	}
	return signed, nil
}

// Verify parses token and returns the identity it carries. Every failure is
// reported as Unauthenticated.
func (c *TokenCodec) Verify(token string) (policy.Identity, error) {
	claims, err := c.parse(token)
	if err != nil {
		return policy.Anonymous, apperr.Unauthenticated("Not authorized, token failed")
	}
	return policy.Identity{ID: claims.Subject, Role: claims.Role}, nil
}

func (c *TokenCodec) parse(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: missing token", errInvalidToken)
	}
	if len(c.secret) == 0 {
		return nil, fmt.Errorf("%w: signing secret not configured", errInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithLeeway(5 * time.Second),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, errInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", errInvalidToken)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", errInvalidToken, claims.Role)
	}
	return claims, nil
}

// ExtractBearerToken returns the token from an Authorization header value, or
// "" when the header carries no bearer token.
func ExtractBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
