package permgate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oarkflow/permgate/utils"
)

// Route binds a console path pattern to its access requirement
type Route struct {
	Pattern     string       `json:"pattern" yaml:"pattern"`
	Permissions []Permission `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	RequireAll  bool         `json:"require_all,omitempty" yaml:"require_all,omitempty"`
	Fallback    string       `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	// Public routes are reachable only without a session (the login page).
	Public bool `json:"public,omitempty" yaml:"public,omitempty"`
}

func (r Route) Requirement() Requirement {
	return Requirement{Permissions: r.Permissions, RequireAll: r.RequireAll, Fallback: r.Fallback}
}

func route(pattern string, perms ...string) Route {
	return Route{Pattern: pattern, Permissions: MustParsePermissions(perms...)}
}

// DefaultRoutes is the console route table.
func DefaultRoutes() []Route {
	return []Route{
		{Pattern: RouteLogin, Public: true},
		route(RouteDashboard, "dashboard.view"),
		route(RouteLeads, "leads.view"),
		route(RouteProjects, "projects.view"),
		route(RouteLedger, "payments.view"),
		route(RouteReports, "reports.view"),
		route("/salespersons", "users.view"),
		route("/salespersonDetails/:id", "users.view"),
		route("/company", "companies.view", "projects.view"),
		route("/companies/:id/projects", "projects.view"),
		route("/companies/:id/projects/:projectId/properties", "properties.view"),
		route("/detailedledger", "payments.view"),
		route("/addledger", "payments.manage"),
		route("/subadmin"),
		route(RouteSiteManagement, "sites.view"),
		route("/item/:id", "inventory.view"),
		route("/stock/:id", "inventory.view"),
		route("/settings", "users.view"),
		route("/transactions", "payments.view"),
		route("/addtransaction", "payments.manage"),
		route("/contact", "contact.view"),
		route("/siteVisit", "sites.view"),
		route("/punch/:leadId", "sites.view"),
	}
}

// RouteTable resolves request paths to routes
type RouteTable struct {
	routes []Route
}

// NewRouteTable validates every route: patterns must be absolute and unique
// and permissions must be known. Problems are reported at startup rather than
// silently denying at request time.
func NewRouteTable(routes []Route) (*RouteTable, error) {
	seen := make(map[string]bool, len(routes))
	out := make([]Route, 0, len(routes))
	for _, r := range routes {
		if !strings.HasPrefix(r.Pattern, "/") {
			return nil, Wrap(CodeInvalidConfig, fmt.Sprintf("route %q: pattern must start with /", r.Pattern), nil)
		}
		if seen[r.Pattern] {
			return nil, Wrap(CodeInvalidConfig, fmt.Sprintf("route %q: duplicate pattern", r.Pattern), nil)
		}
		seen[r.Pattern] = true
		for _, p := range r.Permissions {
			if err := p.Validate(); err != nil {
				return nil, Wrap(CodeInvalidConfig, fmt.Sprintf("route %q", r.Pattern), err)
			}
		}
		if r.Fallback != "" && !strings.HasPrefix(r.Fallback, "/") {
			return nil, Wrap(CodeInvalidConfig, fmt.Sprintf("route %q: fallback must start with /", r.Pattern), nil)
		}
		out = append(out, r)
	}
	// most specific first so literal segments win over parameters
	sort.SliceStable(out, func(i, j int) bool {
		return utils.Specificity(out[i].Pattern) > utils.Specificity(out[j].Pattern)
	})
	return &RouteTable{routes: out}, nil
}

// Match returns the route for path. Unmatched paths fall through to the
// catch-all redirect handled by the caller.
func (t *RouteTable) Match(path string) (Route, bool) {
	for _, r := range t.routes {
		if utils.MatchPath(path, r.Pattern) {
			return r, true
		}
	}
	return Route{}, false
}

// Routes returns the table in match order.
func (t *RouteTable) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}
