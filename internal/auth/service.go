package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const defaultTokenTTL = 12 * time.Hour

// Claims is the JWT payload. Schema pins the token to the tenant it was
// issued for.
type Claims struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Schema string `json:"schema"`
	jwt.RegisteredClaims
}

// Service issues and verifies tokens and manages user accounts.
type Service struct {
	repo   Repository
	secret []byte
	ttl    time.Duration
}

// NewService constructs the auth service.
func NewService(repo Repository, secret []byte, ttl time.Duration) *Service {
	if ttl == 0 {
		ttl = defaultTokenTTL
	}
	return &Service{repo: repo, secret: secret, ttl: ttl}
}

// RegisterInput carries a new account request.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Register creates a user in the current tenant schema.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("auth: hash password: %w", err)
	}

	now := time.Now().UTC()
	u := User{
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Name:         input.Name,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	u.ID, err = s.repo.Insert(ctx, schema, u)
	if err != nil {
		return User{}, err
	}
	u.PasswordHash = ""
	return u, nil
}

// Login verifies credentials and returns a signed token for the tenant.
func (s *Service) Login(ctx context.Context, email, password string) (string, User, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return "", User{}, err
	}

	u, err := s.repo.GetByEmail(ctx, schema, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", User{}, ErrInvalidCredentials
		}
		return "", User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", User{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	claims := Claims{
		Email:  u.Email,
		Name:   u.Name,
		Schema: schema,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", User{}, fmt.Errorf("auth: sign token: %w", err)
	}

	u.PasswordHash = ""
	return token, u, nil
}

// Verify parses a token and returns the actor it represents. The token must
// have been issued for the given tenant schema.
func (s *Service) Verify(tokenString, schema string) (*shared.User, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Schema != schema {
		return nil, ErrTokenInvalid
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return &shared.User{ID: id, Email: claims.Email, Name: claims.Name}, nil
}
