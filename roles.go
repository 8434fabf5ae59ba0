package consoleauth

// IsValid checks if the role is one of the predefined valid roles
func (r AdminRole) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleSystemAdmin, RoleContentAdmin, RoleSupportAdmin, RoleWaiting:
		return true
	default:
		return false
	}
}

// CanManageRoles checks if this role can change other admins' roles
func (r AdminRole) CanManageRoles() bool {
	switch r {
	case RoleSuperAdmin, RoleSystemAdmin:
		return true
	default:
		return false
	}
}

// CanManageContent checks if this role can create or edit content
func (r AdminRole) CanManageContent() bool {
	switch r {
	case RoleSuperAdmin, RoleSystemAdmin, RoleContentAdmin:
		return true
	default:
		return false
	}
}

// IsAtLeast checks if this role meets the minimum required level
func (r AdminRole) IsAtLeast(minRole AdminRole) bool {
	roleHierarchy := map[AdminRole]int{
		RoleWaiting:      0,
		RoleSupportAdmin: 1,
		RoleContentAdmin: 2,
		RoleSystemAdmin:  3,
		RoleSuperAdmin:   4,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []AdminRole {
	return []AdminRole{
		RoleWaiting,
		RoleSupportAdmin,
		RoleContentAdmin,
		RoleSystemAdmin,
		RoleSuperAdmin,
	}
}

// ParseRole safely parses a string into an AdminRole type
func ParseRole(roleStr string) (AdminRole, bool) {
	role := AdminRole(roleStr)
	return role, role.IsValid()
}

// IsValid checks if the status is one of the predefined account statuses
func (s AdminStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	default:
		return false
	}
}

// ParseStatus safely parses a string into an AdminStatus type
func ParseStatus(statusStr string) (AdminStatus, bool) {
	status := AdminStatus(statusStr)
	return status, status.IsValid()
}
