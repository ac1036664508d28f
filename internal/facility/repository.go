package facility

import (
	"context"
)

// DoorRepository persists doors.
type DoorRepository interface {
	// ListDoors returns every door ordered by name.
	ListDoors(ctx context.Context) ([]Door, error)
	GetDoor(ctx context.Context, id string) (*Door, error)
	// CreateDoor inserts d and fills in its ID and LastUpdate.
	CreateDoor(ctx context.Context, d *Door) error
	// UpdateDoor replaces the mutable fields of an existing door.
	UpdateDoor(ctx context.Context, d *Door) error
	DeleteDoor(ctx context.Context, id string) error
	// SetDoorStatus changes only the status and returns the updated door.
	SetDoorStatus(ctx context.Context, id string, status DoorStatus) (*Door, error)
}

// ActivityRepository persists the append-only access log.
type ActivityRepository interface {
	// AppendActivity inserts a and fills in its ID and Timestamp.
	AppendActivity(ctx context.Context, a *Activity) error
	// RecentActivities returns up to limit entries, newest first.
	RecentActivities(ctx context.Context, limit int) ([]Activity, error)
}

// UserRepository persists user accounts.
type UserRepository interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	DeleteUser(ctx context.Context, id string) error
}

// Repository is the complete facility store.
type Repository interface {
	DoorRepository
	ActivityRepository
	UserRepository

	// Stats recomputes the dashboard aggregate from current rows.
	Stats(ctx context.Context) (Stats, error)
}
