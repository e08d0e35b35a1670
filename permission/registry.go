package permission

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrDenied is the sentinel matched by every authorization failure
// produced by [Registry.HasAll].
var ErrDenied = errors.New("permission denied")

// DeniedError reports which required permissions the role does not hold.
// It unwraps to [ErrDenied].
type DeniedError struct {
	Role    Role
	Missing []Permission
}

func (e *DeniedError) Error() string {
	names := make([]string, len(e.Missing))
	for i, p := range e.Missing {
		names[i] = string(p)
	}
	if e.Role == "" {
		return "permission denied: no role, missing " + strings.Join(names, ", ")
	}
	return "permission denied: role " + string(e.Role) + " missing " + strings.Join(names, ", ")
}

func (e *DeniedError) Unwrap() error { return ErrDenied }

// Registry is the process-wide role→permission table. It is populated
// during startup, frozen, and then read-only for the life of the process;
// changing the table requires a code change and redeploy.
type Registry struct {
	mu     sync.RWMutex
	roles  map[Role]map[Permission]struct{}
	frozen bool
}

// NewRegistry creates an empty registry. Call [Registry.RegisterRole] for
// each role and then [Registry.Freeze] before serving requests.
func NewRegistry() *Registry {
	return &Registry{
		roles: make(map[Role]map[Permission]struct{}),
	}
}

// RegisterRole assigns the given permission set to the role. Must be
// called before [Registry.Freeze].
func (r *Registry) RegisterRole(role Role, perms []Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.New("registry frozen")
	}
	if role == "" {
		return errors.New("role name empty")
	}
	if _, exists := r.roles[role]; exists {
		return errors.New("role already registered: " + string(role))
	}

	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		if p == "" {
			return errors.New("permission name empty for role " + string(role))
		}
		set[p] = struct{}{}
	}
	r.roles[role] = set
	return nil
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// HasAll reports whether the role holds every required permission.
// An empty requirement set is always authorized. A role that is not
// registered at all (including the empty role) fails with a
// [DeniedError] naming every required permission as missing. The check
// is pure and deterministic given the same registry contents.
func (r *Registry) HasAll(role Role, required []Permission) error {
	if len(required) == 0 {
		return nil
	}

	r.mu.RLock()
	set, ok := r.roles[role]
	r.mu.RUnlock()

	if !ok {
		missing := make([]Permission, len(required))
		copy(missing, required)
		return &DeniedError{Role: role, Missing: missing}
	}

	var missing []Permission
	for _, p := range required {
		if _, held := set[p]; !held {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return &DeniedError{Role: role, Missing: missing}
	}
	return nil
}

// Grants returns the permissions held by the role, sorted by name.
// The second return is false for an unregistered role.
func (r *Registry) Grants(role Role) ([]Permission, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.roles[role]
	if !ok {
		return nil, false
	}
	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, true
}

// Roles returns the registered role names, sorted.
func (r *Registry) Roles() []Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Role, 0, len(r.roles))
	for role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Default builds the frozen platform role table. RoleSuperAdmin holds the
// union of all permissions; every other role holds an explicit subset.
func Default() *Registry {
	r := NewRegistry()

	mustRegister(r, RoleSuperAdmin, All())
	mustRegister(r, RoleSupport, []Permission{
		TenantsRead,
		UsersRead,
		UsersManage,
		UsersImpersonate,
		AuditRead,
	})
	mustRegister(r, RoleBilling, []Permission{
		TenantsRead,
		BillingRead,
		BillingManage,
	})
	mustRegister(r, RoleSecurity, []Permission{
		TenantsRead,
		TenantsSuspend,
		UsersRead,
		AuditRead,
		SecurityManage,
	})
	mustRegister(r, RoleReadOnly, []Permission{
		TenantsRead,
		UsersRead,
		BillingRead,
		AuditRead,
	})

	r.Freeze()
	return r
}

func mustRegister(r *Registry, role Role, perms []Permission) {
	if err := r.RegisterRole(role, perms); err != nil {
		panic(err)
	}
}
