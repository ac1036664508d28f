// Package auth provides operator authentication for Doorwatch Core.
//
// Passwords are hashed with Argon2id in PHC string format. Login issues a
// short-lived HS256 JWT carrying the user's ID, name and role; the API
// validates it by signature alone. Roles map to a fixed permission set:
// every user can read state and control doors, only admins manage doors
// and users.
package auth
