package service

import (
	"context"
	"sort"

	"supplychain-ledger/internal/model"
	"supplychain-ledger/internal/repository"
)

// PermissionTable maps roles to allowed actions. It is built once and never mutated.
type PermissionTable struct {
	grants map[model.Role]map[string]struct{}
}

// NewPermissionTable copies grants into a fresh table. Unknown roles are ignored.
func NewPermissionTable(grants map[model.Role][]string) *PermissionTable {
	t := &PermissionTable{grants: make(map[model.Role]map[string]struct{}, len(grants))}
	for role, actions := range grants {
		if !role.Valid() {
			continue
		}
		set := make(map[string]struct{}, len(actions))
		for _, a := range actions {
			set[a] = struct{}{}
		}
		t.grants[role] = set
	}
	return t
}

// DefaultPermissionTable is the static role/action mapping.
func DefaultPermissionTable() *PermissionTable {
	return NewPermissionTable(model.DefaultRolePrivileges)
}

// LoadPermissionTable reads role grants from storage. Roles missing from
// storage fall back to their defaults.
func LoadPermissionTable(ctx context.Context, roles repository.RoleRepository) (*PermissionTable, error) {
	records, err := roles.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	grants := make(map[model.Role][]string, len(model.AllRoles))
	for role, actions := range model.DefaultRolePrivileges {
		grants[role] = actions
	}
	for i := range records {
		role := model.ParseRole(records[i].Code)
		if role == model.RoleUnknown {
			continue
		}
		grants[role] = records[i].PrivilegeCodes()
	}
	return NewPermissionTable(grants), nil
}

// Allows reports whether role may perform action. Unknown roles are always denied.
func (t *PermissionTable) Allows(role model.Role, action string) bool {
	if t == nil {
		return false
	}
	_, ok := t.grants[role][action]
	return ok
}

// Actions lists the actions granted to role in sorted order.
func (t *PermissionTable) Actions(role model.Role) []string {
	set := t.grants[role]
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
