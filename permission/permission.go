package permission

// Permission is an atomic capability string checked by the guard.
type Permission string

// Role is a named, fixed set of permissions. Roles are non-hierarchical:
// a role grants exactly the permissions registered for it, nothing is
// inherited.
type Role string

// Platform console roles.
const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleSupport    Role = "SUPPORT"
	RoleBilling    Role = "BILLING"
	RoleSecurity   Role = "SECURITY"
	RoleReadOnly   Role = "READ_ONLY"
)

// Platform console permissions.
const (
	TenantsRead      Permission = "tenants:read"
	TenantsManage    Permission = "tenants:manage"
	TenantsSuspend   Permission = "tenants:suspend"
	UsersRead        Permission = "users:read"
	UsersManage      Permission = "users:manage"
	UsersImpersonate Permission = "users:impersonate"
	BillingRead      Permission = "billing:read"
	BillingManage    Permission = "billing:manage"
	AuditRead        Permission = "audit:read"
	SecurityManage   Permission = "security:manage"
	AccountsManage   Permission = "platform-accounts:manage"
)

// All returns the full permission universe in registration order.
func All() []Permission {
	return []Permission{
		TenantsRead,
		TenantsManage,
		TenantsSuspend,
		UsersRead,
		UsersManage,
		UsersImpersonate,
		BillingRead,
		BillingManage,
		AuditRead,
		SecurityManage,
		AccountsManage,
	}
}
