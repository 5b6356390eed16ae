package access

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

type Permission struct {
	Resource string   `yaml:"resource"`
	Actions  []string `yaml:"actions"`
}

type Role struct {
	Description string       `yaml:"description"`
	Permissions []Permission `yaml:"permissions"`
}

// Policy is the YAML role policy. Domain roles: representative, reviewer,
// assigner, admin.
type Policy struct {
	DefaultRole string              `yaml:"default_role"`
	Roles       map[string]Role     `yaml:"roles"`
	Users       map[string]struct { // Static user assignments
		Roles []string `yaml:"roles"`
	} `yaml:"users"`
	Inheritance map[string][]string `yaml:"inheritance"`
}

type RBAC struct {
	policy      *Policy
	userRoles   map[string][]string // user email -> roles
	mu          sync.RWMutex
	policyCache map[string]map[string]bool // user -> "resource:action" -> allowed
}

var (
	rbacInstance *RBAC
	rbacOnce     sync.Once
)

// GetRBAC returns the singleton RBAC instance
func GetRBAC() *RBAC {
	rbacOnce.Do(func() {
		rbacInstance = &RBAC{
			userRoles:   make(map[string][]string),
			policyCache: make(map[string]map[string]bool),
		}
	})
	return rbacInstance
}

// LoadPolicy loads the role policy from a YAML file
func (r *RBAC) LoadPolicy(filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return fmt.Errorf("failed to parse policy file: %w", err)
	}

	r.mu.Lock()
	r.policy = &policy
	r.userRoles = make(map[string][]string)
	for user, userData := range policy.Users {
		r.userRoles[user] = userData.Roles
	}
	r.policyCache = make(map[string]map[string]bool) // Clear cache
	r.mu.Unlock()

	slog.Info("Role policy loaded", "roles", len(policy.Roles), "users", len(policy.Users))
	return nil
}

// AssignRole assigns one or more roles to a user
func (r *RBAC) AssignRole(user string, roles ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.userRoles[user] = append(r.userRoles[user], roles...)
	delete(r.policyCache, user) // Invalidate cache for this user

	slog.Debug("Roles assigned", "user", user, "roles", roles)
}

// SetRoles replaces all roles for a user
func (r *RBAC) SetRoles(user string, roles ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.userRoles[user] = roles
	delete(r.policyCache, user)

	slog.Debug("Roles set", "user", user, "roles", roles)
}

// GetUserRoles returns all roles for a user (including inherited)
func (r *RBAC) GetUserRoles(user string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if user == "" {
		if r.policy != nil && r.policy.DefaultRole != "" {
			return []string{r.policy.DefaultRole}
		}
		return []string{}
	}

	directRoles := r.userRoles[user]
	if len(directRoles) == 0 && r.policy != nil && r.policy.DefaultRole != "" {
		directRoles = []string{r.policy.DefaultRole}
	}

	allRoles := make(map[string]bool)
	for _, role := range directRoles {
		allRoles[role] = true
		r.addInheritedRoles(role, allRoles)
	}

	result := make([]string, 0, len(allRoles))
	for role := range allRoles {
		result = append(result, role)
	}
	return result
}

// addInheritedRoles recursively adds inherited roles
func (r *RBAC) addInheritedRoles(role string, roles map[string]bool) {
	if r.policy == nil || r.policy.Inheritance == nil {
		return
	}

	for _, inheritedRole := range r.policy.Inheritance[role] {
		if !roles[inheritedRole] {
			roles[inheritedRole] = true
			r.addInheritedRoles(inheritedRole, roles)
		}
	}
}

// Can checks if a user can perform an action on a resource
func (r *RBAC) Can(user, resource, action string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.policy == nil {
		slog.Warn("Role policy not loaded")
		return false
	}

	cacheKey := fmt.Sprintf("%s:%s", resource, action)
	if cache, exists := r.policyCache[user]; exists {
		if allowed, found := cache[cacheKey]; found {
			return allowed
		}
	}

	allowed := r.roleAllows(user, resource, action)

	if r.policyCache[user] == nil {
		r.policyCache[user] = make(map[string]bool)
	}
	r.policyCache[user][cacheKey] = allowed

	return allowed
}

func (r *RBAC) roleAllows(user, resource, action string) bool {
	directRoles := r.userRoles[user]
	if len(directRoles) == 0 && r.policy.DefaultRole != "" {
		directRoles = []string{r.policy.DefaultRole}
	}

	allRoles := make(map[string]bool)
	for _, role := range directRoles {
		allRoles[role] = true
		r.addInheritedRoles(role, allRoles)
	}

	for roleName := range allRoles {
		role, exists := r.policy.Roles[roleName]
		if !exists {
			continue
		}
		for _, perm := range role.Permissions {
			if perm.Resource != "*" && perm.Resource != resource {
				continue
			}
			for _, act := range perm.Actions {
				if act == "*" || act == action {
					return true
				}
			}
		}
	}
	return false
}
