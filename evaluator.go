package permgate

// Snapshot is an immutable view of a Store at one point in time. The zero
// value is an unauthenticated, non-loading state that denies everything.
type Snapshot struct {
	role        Role
	permissions PermissionMap
	policies    map[Resource]ResourcePolicy
	loading     bool
	err         error
	generation  uint64
}

// NewSnapshot builds a settled snapshot; used by tests and by callers that
// evaluate a login payload before a Store exists.
func NewSnapshot(role Role, perms PermissionMap) Snapshot {
	return Snapshot{role: role, permissions: perms.Clone()}
}

func (s Snapshot) Role() Role         { return s.role }
func (s Snapshot) Loading() bool      { return s.loading }
func (s Snapshot) Err() error         { return s.err }
func (s Snapshot) Generation() uint64 { return s.generation }

// Authenticated reports whether a role has been resolved for the session.
func (s Snapshot) Authenticated() bool { return s.role != "" }

// Permissions returns a copy of the underlying map for transport. Callers
// deciding access must use the query methods instead.
func (s Snapshot) Permissions() PermissionMap { return s.permissions.Clone() }

func (s Snapshot) IsAdmin() bool {
	return s.role == RoleAdmin
}

// Allows evaluates one permission against the map, honouring per-resource
// policies. Admin short-circuits to true.
func (s Snapshot) Allows(p Permission) bool {
	if s.IsAdmin() {
		return true
	}
	if s.permissions.Has(p) {
		return true
	}
	if p.Action == ActionView && s.policies[p.Resource].ManageImpliesView {
		return s.permissions.Has(Permission{Resource: p.Resource, Action: ActionManage})
	}
	return false
}

func (s Snapshot) CanView(r Resource) bool {
	return s.Allows(Permission{Resource: r, Action: ActionView})
}

func (s Snapshot) CanManage(r Resource) bool {
	return s.Allows(Permission{Resource: r, Action: ActionManage})
}

// HasAnyPermission is false for an empty list unless the role is admin.
func (s Snapshot) HasAnyPermission(perms ...Permission) bool {
	if s.IsAdmin() {
		return true
	}
	for _, p := range perms {
		if s.Allows(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions is vacuously true for an empty list.
func (s Snapshot) HasAllPermissions(perms ...Permission) bool {
	if s.IsAdmin() {
		return true
	}
	for _, p := range perms {
		if !s.Allows(p) {
			return false
		}
	}
	return true
}
