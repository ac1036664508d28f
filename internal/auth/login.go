package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/doorwatch/doorwatch-core/internal/facility"
)

// Authenticator checks credentials and issues access tokens.
type Authenticator struct {
	users      facility.UserRepository
	secret     string
	ttlMinutes int
}

// NewAuthenticator creates an Authenticator signing with secret.
func NewAuthenticator(users facility.UserRepository, secret string, ttlMinutes int) *Authenticator {
	return &Authenticator{users: users, secret: secret, ttlMinutes: ttlMinutes}
}

// Login verifies email and password and returns a signed token with the
// user. Unknown emails, users without a password and wrong passwords all
// return ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, email, password string) (string, *facility.User, error) {
	user, err := a.users.GetUserByEmail(ctx, email)
	if errors.Is(err, facility.ErrUserNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return "", nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateAccessToken(user, a.secret, a.ttlMinutes)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Verify parses a bearer token.
func (a *Authenticator) Verify(token string) (*CustomClaims, error) {
	return ParseToken(token, a.secret)
}
