package permgate

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// ROLES
// ============================================================================

// Role is the job-function tag issued by the backend for a staff account
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleSubadmin       Role = "subadmin"
	RoleLeadManager    Role = "lead_manager"
	RoleProjectManager Role = "project_manager"
	RoleSiteManager    Role = "site_manager"
	RoleAccountManager Role = "account_manager"
	RoleSalesManager   Role = "sales_manager"
)

var knownRoles = []Role{
	RoleAdmin,
	RoleSubadmin,
	RoleLeadManager,
	RoleProjectManager,
	RoleSiteManager,
	RoleAccountManager,
	RoleSalesManager,
}

// Roles returns the closed set of roles the console understands.
func Roles() []Role {
	out := make([]Role, len(knownRoles))
	copy(out, knownRoles)
	return out
}

// Known reports whether r is one of the console roles. Unknown roles still
// flow through the system; they simply never match a role-specific rule.
func (r Role) Known() bool {
	for _, k := range knownRoles {
		if r == k {
			return true
		}
	}
	return false
}

// ============================================================================
// RESOURCES AND ACTIONS
// ============================================================================

// Resource is a functional area of the console subject to access control
type Resource string

const (
	ResourceLeads        Resource = "leads"
	ResourceProjects     Resource = "projects"
	ResourcePayments     Resource = "payments"
	ResourceReports      Resource = "reports"
	ResourceUsers        Resource = "users"
	ResourceCompanies    Resource = "companies"
	ResourceProperties   Resource = "properties"
	ResourceSites        Resource = "sites"
	ResourceInventory    Resource = "inventory"
	ResourceDashboard    Resource = "dashboard"
	ResourceTransactions Resource = "transactions"
	ResourceContact      Resource = "contact"
)

var knownResources = []Resource{
	ResourceLeads,
	ResourceProjects,
	ResourcePayments,
	ResourceReports,
	ResourceUsers,
	ResourceCompanies,
	ResourceProperties,
	ResourceSites,
	ResourceInventory,
	ResourceDashboard,
	ResourceTransactions,
	ResourceContact,
}

// Resources returns every resource in declaration order.
func Resources() []Resource {
	out := make([]Resource, len(knownResources))
	copy(out, knownResources)
	return out
}

func (r Resource) Known() bool {
	for _, k := range knownResources {
		if r == k {
			return true
		}
	}
	return false
}

// Supports reports whether the action exists for this resource.
// dashboard only has a view action.
func (r Resource) Supports(a Action) bool {
	if !r.Known() {
		return false
	}
	switch a {
	case ActionView:
		return true
	case ActionManage:
		return r != ResourceDashboard
	}
	return false
}

// Action is an operation category on a resource
type Action string

const (
	ActionView   Action = "view"
	ActionManage Action = "manage"
)

// ============================================================================
// PERMISSIONS
// ============================================================================

// Permission is a validated resource/action pair, written "resource.action"
// in configuration.
type Permission struct {
	Resource Resource
	Action   Action
}

// P builds a permission without validation; meant for package-level tables
// whose values are covered by tests.
func P(r Resource, a Action) Permission {
	return Permission{Resource: r, Action: a}
}

// ParsePermission parses and validates a "resource.action" string.
func ParsePermission(s string) (Permission, error) {
	res, act, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || res == "" || act == "" {
		return Permission{}, Wrap(CodeInvalidPermission, fmt.Sprintf("permission %q: expected resource.action", s), nil)
	}
	p := Permission{Resource: Resource(res), Action: Action(act)}
	if err := p.Validate(); err != nil {
		return Permission{}, err
	}
	return p, nil
}

// MustParsePermissions parses every string or panics. Use only for static tables.
func MustParsePermissions(specs ...string) []Permission {
	out := make([]Permission, 0, len(specs))
	for _, s := range specs {
		p, err := ParsePermission(s)
		if err != nil {
			panic(err)
		}
		out = append(out, p)
	}
	return out
}

func (p Permission) Validate() error {
	if !p.Resource.Known() {
		return Wrap(CodeInvalidPermission, fmt.Sprintf("permission %q: unknown resource %q", p.String(), p.Resource), nil)
	}
	if p.Action != ActionView && p.Action != ActionManage {
		return Wrap(CodeInvalidPermission, fmt.Sprintf("permission %q: unknown action %q", p.String(), p.Action), nil)
	}
	if !p.Resource.Supports(p.Action) {
		return Wrap(CodeInvalidPermission, fmt.Sprintf("permission %q: resource %s has no %s action", p.String(), p.Resource, p.Action), nil)
	}
	return nil
}

func (p Permission) String() string {
	return string(p.Resource) + "." + string(p.Action)
}

func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText lets YAML and JSON configs reject bad permissions while decoding.
func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := ParsePermission(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ActionSet holds the allowed actions for one resource. The flags are
// independent: manage does not grant view.
type ActionSet struct {
	View   bool `json:"view" yaml:"view"`
	Manage bool `json:"manage,omitempty" yaml:"manage,omitempty"`
}

// PermissionMap maps resources to their allowed actions. A missing resource
// means every action is denied.
type PermissionMap map[Resource]ActionSet

// Has looks up one permission. Safe on a nil map.
func (m PermissionMap) Has(p Permission) bool {
	set, ok := m[p.Resource]
	if !ok {
		return false
	}
	switch p.Action {
	case ActionView:
		return set.View
	case ActionManage:
		return set.Manage
	}
	return false
}

func (m PermissionMap) Clone() PermissionMap {
	if m == nil {
		return nil
	}
	out := make(PermissionMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Equal compares two maps treating nil and empty as equal.
func (m PermissionMap) Equal(other PermissionMap) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// FullAccessMap grants view and manage on every resource (view only on dashboard).
func FullAccessMap() PermissionMap {
	m := make(PermissionMap, len(knownResources))
	for _, r := range knownResources {
		m[r] = ActionSet{View: true, Manage: r.Supports(ActionManage)}
	}
	return m
}

// ResourcePolicy declares per-resource evaluation rules
type ResourcePolicy struct {
	// ManageImpliesView makes a manage grant also satisfy view checks.
	ManageImpliesView bool `json:"manage_implies_view" yaml:"manage_implies_view"`
}

// ============================================================================
// USERS AND SESSIONS
// ============================================================================

// User is the authenticated staff member as returned by the backend.
// Only Role and Permissions drive authorization.
type User struct {
	ID          string        `json:"id,omitempty"`
	Name        string        `json:"name,omitempty"`
	Email       string        `json:"email,omitempty"`
	Role        Role          `json:"role"`
	Permissions PermissionMap `json:"permissions"`
}

func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	dup := *u
	dup.Permissions = u.Permissions.Clone()
	return &dup
}

// Session is the locally persisted login state: the bearer token and the
// user object cached at login time.
type Session struct {
	Token     string    `json:"token"`
	User      *User     `json:"user,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	dup := *s
	dup.User = s.User.Clone()
	return &dup
}

// ============================================================================
// MENU
// ============================================================================

// MenuItem is a static navigation entry
type MenuItem struct {
	Label      string      `json:"label" yaml:"label"`
	Icon       string      `json:"icon,omitempty" yaml:"icon,omitempty"`
	Path       string      `json:"path" yaml:"path"`
	Permission *Permission `json:"permission,omitempty" yaml:"permission,omitempty"`
	AdminOnly  bool        `json:"admin_only,omitempty" yaml:"admin_only,omitempty"`
}
