package auth

import (
	"testing"

	"github.com/doorwatch/doorwatch-core/internal/facility"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role facility.Role
		perm Permission
		want bool
	}{
		{facility.RoleAdmin, PermDoorRead, true},
		{facility.RoleAdmin, PermDoorControl, true},
		{facility.RoleAdmin, PermDoorManage, true},
		{facility.RoleAdmin, PermUserManage, true},
		{facility.RoleUser, PermDoorRead, true},
		{facility.RoleUser, PermDoorControl, true},
		{facility.RoleUser, PermDoorManage, false},
		{facility.RoleUser, PermUserManage, false},
		{"guest", PermDoorRead, false},
		{"", PermDoorRead, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%q, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestPermissionsForRole_ReturnsCopy(t *testing.T) {
	perms := PermissionsForRole(facility.RoleUser)
	if len(perms) != 2 {
		t.Fatalf("user permissions = %v, want 2", perms)
	}
	perms[0] = PermUserManage

	if HasPermission(facility.RoleUser, PermUserManage) {
		t.Error("mutating the returned slice changed the role table")
	}
	if PermissionsForRole("guest") != nil {
		t.Error("unknown role should have nil permissions")
	}
}
