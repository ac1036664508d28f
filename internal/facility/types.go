package facility

import (
	"fmt"
	"time"
)

// DoorStatus is the physical state of a door.
type DoorStatus string

const (
	StatusOpen   DoorStatus = "open"
	StatusClosed DoorStatus = "closed"
	StatusLocked DoorStatus = "locked"
)

// AllStatuses lists every door status in display order.
var AllStatuses = []DoorStatus{StatusOpen, StatusClosed, StatusLocked}

// Valid reports whether s is a known status.
func (s DoorStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusClosed, StatusLocked:
		return true
	}
	return false
}

// DoorAction is an operator request to change a door.
type DoorAction string

const (
	ActionOpen   DoorAction = "open"
	ActionClose  DoorAction = "close"
	ActionLock   DoorAction = "lock"
	ActionUnlock DoorAction = "unlock"
)

// TargetStatus maps a control action to the status it produces.
// Unlocking leaves the door closed.
func (a DoorAction) TargetStatus() (DoorStatus, error) {
	switch a {
	case ActionOpen:
		return StatusOpen, nil
	case ActionClose, ActionUnlock:
		return StatusClosed, nil
	case ActionLock:
		return StatusLocked, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, string(a))
}

// ActivityAction classifies an activity log entry.
type ActivityAction string

const (
	ActivityEntry  ActivityAction = "entry"
	ActivityExit   ActivityAction = "exit"
	ActivityDenied ActivityAction = "denied"
)

// ActivityFor returns the activity recorded when a door moves to status.
func ActivityFor(status DoorStatus) ActivityAction {
	if status == StatusOpen {
		return ActivityEntry
	}
	return ActivityExit
}

// Method records how an activity was triggered.
type Method string

const (
	MethodPIN         Method = "pin"
	MethodRFID        Method = "rfid"
	MethodFingerprint Method = "fingerprint"
	MethodAdmin       Method = "admin"
	MethodSystem      Method = "system"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodPIN, MethodRFID, MethodFingerprint, MethodAdmin, MethodSystem:
		return true
	}
	return false
}

// Door is the snapshot of a single door as broadcast to viewers.
type Door struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Location     string     `json:"location"`
	Status       DoorStatus `json:"status"`
	IsOnline     bool       `json:"isOnline"`
	LastUpdate   time.Time  `json:"lastUpdate"`
	BatteryLevel *int       `json:"batteryLevel,omitempty"`
}

// Validate checks the fields an operator can set.
func (d *Door) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDoor)
	}
	if d.Location == "" {
		return fmt.Errorf("%w: location is required", ErrInvalidDoor)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidDoor, string(d.Status))
	}
	if d.BatteryLevel != nil && (*d.BatteryLevel < 0 || *d.BatteryLevel > 100) {
		return fmt.Errorf("%w: battery level %d out of range", ErrInvalidDoor, *d.BatteryLevel)
	}
	return nil
}

// Activity is one immutable entry in the access log.
type Activity struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	UserName  string         `json:"userName"`
	DoorID    string         `json:"doorId"`
	DoorName  string         `json:"doorName"`
	Action    ActivityAction `json:"action"`
	Method    Method         `json:"method"`
	Timestamp time.Time      `json:"timestamp"`
}

// Stats is the dashboard aggregate. It is recomputed from the store on
// every request.
type Stats struct {
	TotalUsers          int `json:"totalUsers"`
	TotalDoors          int `json:"totalDoors"`
	ActiveDoors         int `json:"activeDoors"`
	OnlineDoors         int `json:"onlineDoors"`
	OfflineDoors        int `json:"offlineDoors"`
	RecentActivityCount int `json:"recentActivityCount"`
}

// RecentActivityWindow is how far back Stats.RecentActivityCount looks.
const RecentActivityWindow = 24 * time.Hour

// Role is a user's authorisation tier.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is an operator or badge holder.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Validate checks the user's profile fields.
func (u *User) Validate() error {
	if u.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidUser)
	}
	if !emailPattern.MatchString(u.Email) {
		return fmt.Errorf("%w: invalid email %q", ErrInvalidUser, u.Email)
	}
	if u.Role != RoleAdmin && u.Role != RoleUser {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidUser, string(u.Role))
	}
	return nil
}

// Actor identifies who triggered a door change and how.
type Actor struct {
	UserID   string
	UserName string
	Method   Method
}

// Built-in actors for operator commands and synthetic or sensor events.
var (
	AdminActor  = Actor{UserID: "admin", UserName: "Admin User", Method: MethodAdmin}
	SystemActor = Actor{UserID: "system", UserName: "System", Method: MethodSystem}
)
