package auth

import "github.com/doorwatch/doorwatch-core/internal/facility"

// Permission is a named capability.
type Permission string

const (
	PermDoorRead    Permission = "door:read"
	PermDoorControl Permission = "door:control"
	PermDoorManage  Permission = "door:manage"
	PermUserManage  Permission = "user:manage"
)

// rolePermissions is the whole authorisation model.
var rolePermissions = map[facility.Role][]Permission{
	facility.RoleUser: {
		PermDoorRead,
		PermDoorControl,
	},
	facility.RoleAdmin: {
		PermDoorRead,
		PermDoorControl,
		PermDoorManage,
		PermUserManage,
	},
}

// HasPermission reports whether role grants perm. Unknown roles have none.
func HasPermission(role facility.Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of role's permissions, or nil.
func PermissionsForRole(role facility.Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
