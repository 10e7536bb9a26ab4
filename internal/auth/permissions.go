package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermLiveRead          Permission = "live:read"
	PermRealtimeSubscribe Permission = "realtime:subscribe"
	PermRuleManage        Permission = "rule:manage"
	PermHistoryRead       Permission = "history:read"
	PermNotificationRead  Permission = "notification:read"
	PermQueueManage       Permission = "queue:manage"
	PermSystemAdmin       Permission = "system:admin"
)

// rolePermissions maps each role to its granted permissions.
// User permissions are further scoped to the user's projects.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermLiveRead,
		PermRealtimeSubscribe,
		PermRuleManage,
		PermHistoryRead,
		PermNotificationRead,
	},
	RoleAdmin: {
		PermLiveRead,
		PermRealtimeSubscribe,
		PermRuleManage,
		PermHistoryRead,
		PermNotificationRead,
		PermQueueManage,
		PermSystemAdmin,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
