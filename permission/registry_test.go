package permission

import (
	"errors"
	"math/rand"
	"testing"
)

func TestHasAllEmptyRequirementAlwaysAuthorized(t *testing.T) {
	r := Default()
	if err := r.HasAll(RoleReadOnly, nil); err != nil {
		t.Fatalf("empty requirement must authorize, got %v", err)
	}
	if err := r.HasAll("", []Permission{}); err != nil {
		t.Fatalf("empty requirement must authorize even without a role, got %v", err)
	}
}

func TestHasAllMissingRoleFailsNamingAllPermissions(t *testing.T) {
	r := Default()
	required := []Permission{TenantsRead, AuditRead}

	err := r.HasAll("", required)
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}

	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected *DeniedError, got %T", err)
	}
	if len(denied.Missing) != len(required) {
		t.Fatalf("expected all %d permissions reported missing, got %d", len(required), len(denied.Missing))
	}
}

func TestHasAllReportsExactMissingSet(t *testing.T) {
	r := Default()

	err := r.HasAll(RoleBilling, []Permission{TenantsRead, BillingManage, SecurityManage, UsersImpersonate})
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denial, got %v", err)
	}
	want := map[Permission]bool{SecurityManage: true, UsersImpersonate: true}
	if len(denied.Missing) != len(want) {
		t.Fatalf("expected %d missing, got %v", len(want), denied.Missing)
	}
	for _, p := range denied.Missing {
		if !want[p] {
			t.Fatalf("unexpected missing permission %s", p)
		}
	}
}

// HasAll(r, P) must be true exactly when P is a subset of the role's
// grants, for every role and every randomly drawn P.
func TestHasAllSubsetProperty(t *testing.T) {
	r := Default()
	universe := All()
	rng := rand.New(rand.NewSource(1))

	for _, role := range r.Roles() {
		grants, ok := r.Grants(role)
		if !ok {
			t.Fatalf("registered role %s has no grants", role)
		}
		held := make(map[Permission]bool, len(grants))
		for _, p := range grants {
			held[p] = true
		}

		for trial := 0; trial < 200; trial++ {
			var sample []Permission
			subset := true
			for _, p := range universe {
				if rng.Intn(2) == 0 {
					continue
				}
				sample = append(sample, p)
				if !held[p] {
					subset = false
				}
			}

			err := r.HasAll(role, sample)
			if subset && err != nil {
				t.Fatalf("role %s should satisfy %v, got %v", role, sample, err)
			}
			if !subset && err == nil {
				t.Fatalf("role %s should not satisfy %v", role, sample)
			}
		}
	}
}

func TestSuperAdminSatisfiesEverySubset(t *testing.T) {
	r := Default()
	universe := All()

	if err := r.HasAll(RoleSuperAdmin, universe); err != nil {
		t.Fatalf("SUPER_ADMIN must hold the full universe, got %v", err)
	}
	for i := range universe {
		if err := r.HasAll(RoleSuperAdmin, universe[i:]); err != nil {
			t.Fatalf("SUPER_ADMIN must satisfy %v, got %v", universe[i:], err)
		}
	}
}

func TestRegistryFrozenRejectsRegistration(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterRole("OPS", []Permission{TenantsRead}); err != nil {
		t.Fatalf("register before freeze failed: %v", err)
	}
	r.Freeze()
	if err := r.RegisterRole("LATE", []Permission{TenantsRead}); err == nil {
		t.Fatal("expected registration after freeze to fail")
	}
}

func TestRegisterRoleRejectsDuplicatesAndEmptyNames(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterRole("", []Permission{TenantsRead}); err == nil {
		t.Fatal("expected empty role name to fail")
	}
	if err := r.RegisterRole("OPS", []Permission{TenantsRead}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.RegisterRole("OPS", []Permission{UsersRead}); err == nil {
		t.Fatal("expected duplicate role to fail")
	}
	if err := r.RegisterRole("BAD", []Permission{""}); err == nil {
		t.Fatal("expected empty permission name to fail")
	}
}
