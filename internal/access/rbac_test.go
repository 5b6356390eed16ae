package access

import (
	"os"
	"path/filepath"
	"testing"
)

const testPolicy = `
default_role: representative

roles:
  representative:
    permissions:
      - resource: applications
        actions: [create, read_own]
  reviewer:
    permissions:
      - resource: applications
        actions: [read, review]
  admin:
    permissions:
      - resource: "*"
        actions: ["*"]

inheritance:
  admin: [reviewer]

users:
  reviewer@gov.test:
    roles: [reviewer]
`

func newTestRBAC(t *testing.T) *RBAC {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roles.yaml")
	if err := os.WriteFile(path, []byte(testPolicy), 0644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	rbac := &RBAC{
		userRoles:   make(map[string][]string),
		policyCache: make(map[string]map[string]bool),
	}
	if err := rbac.LoadPolicy(path); err != nil {
		t.Fatalf("load policy: %v", err)
	}
	return rbac
}

func TestDefaultRole(t *testing.T) {
	rbac := newTestRBAC(t)

	if !rbac.Can("someone@school.test", "applications", "create") {
		t.Error("default role should allow application create")
	}
	if rbac.Can("someone@school.test", "applications", "review") {
		t.Error("default role must not allow review")
	}
}

func TestStaticAssignment(t *testing.T) {
	rbac := newTestRBAC(t)

	if !rbac.Can("reviewer@gov.test", "applications", "review") {
		t.Error("assigned reviewer role should allow review")
	}
	if rbac.Can("reviewer@gov.test", "applications", "create") {
		t.Error("reviewer must not inherit representative permissions")
	}
}

func TestWildcardAndInheritance(t *testing.T) {
	rbac := newTestRBAC(t)
	rbac.AssignRole("boss@gov.test", "admin")

	if !rbac.Can("boss@gov.test", "devices", "create") {
		t.Error("admin wildcard should allow any resource")
	}
	if !rbac.Can("boss@gov.test", "applications", "review") {
		t.Error("admin should inherit reviewer permissions")
	}
}

func TestSetRolesReplaces(t *testing.T) {
	rbac := newTestRBAC(t)
	rbac.AssignRole("user@gov.test", "reviewer")
	rbac.SetRoles("user@gov.test", "representative")

	if rbac.Can("user@gov.test", "applications", "review") {
		t.Error("SetRoles should have dropped the reviewer role")
	}
	if !rbac.Can("user@gov.test", "applications", "create") {
		t.Error("replacement role not effective")
	}
}

func TestCacheInvalidation(t *testing.T) {
	rbac := newTestRBAC(t)

	user := "late@gov.test"
	if rbac.Can(user, "applications", "review") {
		t.Fatal("unexpected review permission before assignment")
	}
	rbac.AssignRole(user, "reviewer")
	if !rbac.Can(user, "applications", "review") {
		t.Error("cached denial survived role assignment")
	}
}
