package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sourcefile/pingline-server/internal/store"
	"github.com/sourcefile/pingline-server/internal/tenant"
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidName is returned when the display name doesn't meet constraints.
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidEmail is returned when the email doesn't meet constraints.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPhone is returned when the phone doesn't meet constraints.
	ErrInvalidPhone = errors.New("invalid phone")
	// ErrInvalidPassword is returned when the password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Service provides authentication operations. It is a thin collaborator:
// it issues identities, the core never re-derives them.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user inside the tenant and returns a JWT token.
// Duplicate email/phone surface as *store.DuplicateError naming the field.
func (s *Service) Register(ctx context.Context, tn tenant.ID, name, email, phone, password string) (string, *store.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	phone = strings.TrimSpace(phone)

	if name == "" {
		return "", nil, ErrInvalidName
	}
	if !strings.Contains(email, "@") || strings.ContainsAny(email, " \t") {
		return "", nil, ErrInvalidEmail
	}
	if len(phone) < 10 {
		return "", nil, ErrInvalidPhone
	}
	if len(password) < 6 {
		return "", nil, ErrInvalidPassword
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, tn, name, email, phone, hashedPassword)
	if err != nil {
		return "", nil, err
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, tn, user.Name)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// Login validates credentials inside the tenant and returns a JWT token.
func (s *Service) Login(ctx context.Context, tn tenant.ID, email, password string) (string, *store.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.store.GetUserByEmail(ctx, tn, email)
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, tn, user.Name)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
