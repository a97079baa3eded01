package permgate

import (
	"encoding/json"
	"testing"
)

func TestParsePermission(t *testing.T) {
	valid := []string{"leads.view", "leads.manage", "dashboard.view", " contact.view "}
	for _, s := range valid {
		if _, err := ParsePermission(s); err != nil {
			t.Fatalf("%q should parse: %v", s, err)
		}
	}
	invalid := []string{"", "leads", "leads.", ".view", "leads.delete", "widgets.view", "dashboard.manage", "leads.view.extra"}
	for _, s := range invalid {
		_, err := ParsePermission(s)
		if err == nil {
			t.Fatalf("%q should be rejected", s)
		}
		if !IsCode(err, CodeInvalidPermission) {
			t.Fatalf("%q: expected invalid_permission, got %v", s, err)
		}
	}
}

func TestPermissionTextEncoding(t *testing.T) {
	var got struct {
		Perms []Permission `json:"perms"`
	}
	if err := json.Unmarshal([]byte(`{"perms":["leads.view","payments.manage"]}`), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Perms) != 2 || got.Perms[1] != P(ResourcePayments, ActionManage) {
		t.Fatalf("unexpected permissions %+v", got.Perms)
	}
	if err := json.Unmarshal([]byte(`{"perms":["leads.approve"]}`), &got); err == nil {
		t.Fatalf("unknown action must fail decoding")
	}
	out, _ := json.Marshal(P(ResourceSites, ActionView))
	if string(out) != `"sites.view"` {
		t.Fatalf("unexpected encoding %s", out)
	}
}

func TestPermissionMapMissingAndNil(t *testing.T) {
	var nilMap PermissionMap
	if nilMap.Has(P(ResourceLeads, ActionView)) {
		t.Fatalf("nil map must deny")
	}
	m := PermissionMap{ResourceLeads: {Manage: true}}
	if m.Has(P(ResourceLeads, ActionView)) {
		t.Fatalf("manage must not imply view")
	}
	if m.Has(P(ResourceProjects, ActionView)) {
		t.Fatalf("missing resource must deny")
	}
	if m.Has(Permission{Resource: ResourceLeads, Action: "delete"}) {
		t.Fatalf("unknown action must deny")
	}
}

func TestFullAccessMap(t *testing.T) {
	m := FullAccessMap()
	for _, r := range Resources() {
		if !m.Has(P(r, ActionView)) {
			t.Fatalf("%s.view missing", r)
		}
		if r.Supports(ActionManage) != m.Has(P(r, ActionManage)) {
			t.Fatalf("%s.manage mismatch", r)
		}
	}
	if m.Has(P(ResourceDashboard, ActionManage)) {
		t.Fatalf("dashboard has no manage action")
	}
}

func TestCloneIsDeep(t *testing.T) {
	u := &User{Role: RoleSiteManager, Permissions: PermissionMap{ResourceSites: {View: true}}}
	dup := u.Clone()
	dup.Permissions[ResourceSites] = ActionSet{}
	if !u.Permissions.Has(P(ResourceSites, ActionView)) {
		t.Fatalf("clone shares the permission map")
	}
	s := (&Session{Token: "t", User: u}).Clone()
	s.User.Role = RoleAdmin
	if u.Role != RoleSiteManager {
		t.Fatalf("session clone shares the user")
	}
}

func TestRoleKnown(t *testing.T) {
	for _, r := range Roles() {
		if !r.Known() {
			t.Fatalf("%s should be known", r)
		}
	}
	if Role("janitor").Known() {
		t.Fatalf("unexpected known role")
	}
}
