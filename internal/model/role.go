package model

import "strings"

// Role is the coarse access level copied into a session at login.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleManager Role = "Manager"
	RoleViewer  Role = "Viewer"
)

// Capability names an action a role may perform.
type Capability string

const (
	CapViewStock        Capability = "can-view-stock"
	CapViewTransactions Capability = "can-view-transactions"
	CapViewCatalog      Capability = "can-view-catalog"
	CapViewSpecs        Capability = "can-view-specs"
	CapPostTransaction  Capability = "can-post-transaction"
	CapManageCatalog    Capability = "can-manage-catalog"
	CapManageUsers      Capability = "can-manage-users"
	CapViewAudit        Capability = "can-view-audit"
)

// RoleCapabilities is the permission matrix. Viewer is read-only, Manager
// adds posting and spec viewing, Admin may do everything.
var RoleCapabilities = map[Role][]Capability{
	RoleViewer: {
		CapViewStock,
		CapViewTransactions,
		CapViewCatalog,
	},
	RoleManager: {
		CapViewStock,
		CapViewTransactions,
		CapViewCatalog,
		CapViewSpecs,
		CapPostTransaction,
	},
	RoleAdmin: {
		CapViewStock,
		CapViewTransactions,
		CapViewCatalog,
		CapViewSpecs,
		CapPostTransaction,
		CapManageCatalog,
		CapManageUsers,
		CapViewAudit,
	},
}

// AllRoles in descending order of privilege.
var AllRoles = []Role{RoleAdmin, RoleManager, RoleViewer}

// Can reports whether the role holds the capability.
func (r Role) Can(c Capability) bool {
	for _, have := range RoleCapabilities[r] {
		if have == c {
			return true
		}
	}
	return false
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := RoleCapabilities[r]
	return ok
}

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, bool) {
	for _, r := range AllRoles {
		if strings.EqualFold(string(r), strings.TrimSpace(s)) {
			return r, true
		}
	}
	return "", false
}
