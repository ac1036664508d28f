package facility

import (
	"errors"
	"testing"
)

func TestDoorAction_TargetStatus(t *testing.T) {
	tests := []struct {
		action  DoorAction
		want    DoorStatus
		wantErr bool
	}{
		{ActionOpen, StatusOpen, false},
		{ActionClose, StatusClosed, false},
		{ActionLock, StatusLocked, false},
		{ActionUnlock, StatusClosed, false},
		{"smash", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			got, err := tt.action.TargetStatus()
			if (err != nil) != tt.wantErr {
				t.Fatalf("TargetStatus() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAction) {
				t.Errorf("error %v does not wrap ErrInvalidAction", err)
			}
			if got != tt.want {
				t.Errorf("TargetStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActivityFor(t *testing.T) {
	tests := []struct {
		status DoorStatus
		want   ActivityAction
	}{
		{StatusOpen, ActivityEntry},
		{StatusClosed, ActivityExit},
		{StatusLocked, ActivityExit},
	}
	for _, tt := range tests {
		if got := ActivityFor(tt.status); got != tt.want {
			t.Errorf("ActivityFor(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestDoor_Validate(t *testing.T) {
	low, high, ok := -1, 101, 40

	tests := []struct {
		name    string
		door    Door
		wantErr bool
	}{
		{"valid", Door{Name: "A", Location: "B", Status: StatusOpen, BatteryLevel: &ok}, false},
		{"missing name", Door{Location: "B", Status: StatusOpen}, true},
		{"missing location", Door{Name: "A", Status: StatusOpen}, true},
		{"bad status", Door{Name: "A", Location: "B", Status: "ajar"}, true},
		{"battery below range", Door{Name: "A", Location: "B", Status: StatusClosed, BatteryLevel: &low}, true},
		{"battery above range", Door{Name: "A", Location: "B", Status: StatusClosed, BatteryLevel: &high}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.door.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsValidation(err) {
				t.Errorf("IsValidation(%v) = false", err)
			}
		})
	}
}

func TestUser_Validate(t *testing.T) {
	tests := []struct {
		name    string
		user    User
		wantErr bool
	}{
		{"valid", User{Name: "Ada", Email: "ada@example.com", Role: RoleAdmin}, false},
		{"missing name", User{Email: "ada@example.com", Role: RoleUser}, true},
		{"bad email", User{Name: "Ada", Email: "ada.example.com", Role: RoleUser}, true},
		{"bad role", User{Name: "Ada", Email: "ada@example.com", Role: "owner"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.user.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(ErrDoorNotFound) || !IsNotFound(ErrUserNotFound) {
		t.Error("IsNotFound() false for not-found sentinels")
	}
	if IsNotFound(ErrInvalidDoor) {
		t.Error("IsNotFound(ErrInvalidDoor) = true")
	}
}
