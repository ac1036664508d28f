package facility

import (
	"errors"
	"regexp"
)

// Domain errors.
var (
	ErrDoorNotFound  = errors.New("door not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailExists   = errors.New("email already exists")
	ErrInvalidDoor   = errors.New("invalid door")
	ErrInvalidUser   = errors.New("invalid user")
	ErrInvalidAction = errors.New("invalid door action")
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// IsNotFound reports whether err means the requested entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDoorNotFound) || errors.Is(err, ErrUserNotFound)
}

// IsValidation reports whether err was caused by bad input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidDoor) ||
		errors.Is(err, ErrInvalidUser) ||
		errors.Is(err, ErrInvalidAction)
}
