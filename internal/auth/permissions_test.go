package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermNodeRead, true},
		{RoleViewer, PermNodeWrite, false},
		{RoleViewer, PermMethodCall, false},
		{RoleOperator, PermNodeWrite, true},
		{RoleOperator, PermMethodCall, true},
		{RoleOperator, PermParamWrite, false},
		{RoleAdmin, PermParamWrite, true},
		{Role("guest"), PermNodeRead, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestPermissionsForRole(t *testing.T) {
	perms := PermissionsForRole(RoleOperator)
	if len(perms) != 3 {
		t.Fatalf("operator permissions = %v, want 3", perms)
	}

	// Mutating the copy must not affect the mapping.
	perms[0] = PermParamWrite
	if HasPermission(RoleOperator, PermParamWrite) {
		t.Error("PermissionsForRole() returned the shared slice")
	}

	if PermissionsForRole(Role("guest")) != nil {
		t.Error("unknown role should have no permissions")
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range ValidRoles {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = false", r)
		}
	}
	if IsValidRole("owner") {
		t.Error("IsValidRole(owner) = true")
	}
}
