package auth

import (
	"context"
	"fmt"

	"github.com/doorwatch/doorwatch-core/internal/facility"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/logging"
)

// SeedAdminPasswords gives every admin without a password a generated one
// so a fresh install can log in. The passwords are logged once at warn
// level and returned keyed by email.
func SeedAdminPasswords(ctx context.Context, users facility.UserRepository, logger *logging.Logger) (map[string]string, error) {
	all, err := users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	seeded := make(map[string]string)
	for _, u := range all {
		if u.Role != facility.RoleAdmin || u.PasswordHash != "" {
			continue
		}

		password, err := GeneratePassword()
		if err != nil {
			return nil, err
		}
		hash, err := HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("hashing seed password: %w", err)
		}
		if err := users.UpdatePassword(ctx, u.ID, hash); err != nil {
			return nil, fmt.Errorf("setting password for %s: %w", u.Email, err)
		}

		seeded[u.Email] = password
		logger.Warn("admin password generated",
			"email", u.Email,
			"password", password,
			"action_required", "change this password immediately",
		)
	}
	return seeded, nil
}
