package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrForbidden          = errors.New("insufficient permissions")
)
