package permgate

// Console routes referenced by the redirect rules
const (
	RouteDashboard      = "/"
	RouteLogin          = "/login"
	RouteLeads          = "/leads"
	RouteProjects       = "/projects"
	RouteLedger         = "/ledger"
	RouteSiteManagement = "/siteManagement"
	RouteReports        = "/reports"
)

type routeCandidate struct {
	route      string
	permission Permission
}

// primaryRoutes is the landing page of each specialised role.
var primaryRoutes = map[Role]routeCandidate{
	RoleLeadManager:    {RouteLeads, P(ResourceLeads, ActionView)},
	RoleProjectManager: {RouteProjects, P(ResourceProjects, ActionView)},
	RoleSiteManager:    {RouteSiteManagement, P(ResourceSites, ActionView)},
	RoleAccountManager: {RouteLedger, P(ResourcePayments, ActionView)},
	RoleSalesManager:   {RouteLeads, P(ResourceLeads, ActionView)},
}

// subadminPriority is walked in order for the generic subadmin role.
var subadminPriority = []routeCandidate{
	{RouteLeads, P(ResourceLeads, ActionView)},
	{RouteProjects, P(ResourceProjects, ActionView)},
	{RouteLedger, P(ResourcePayments, ActionView)},
	{RouteSiteManagement, P(ResourceSites, ActionView)},
	{RouteDashboard, P(ResourceDashboard, ActionView)},
}

var bestAvailablePriority = []routeCandidate{
	{RouteLeads, P(ResourceLeads, ActionView)},
	{RouteProjects, P(ResourceProjects, ActionView)},
	{RouteLedger, P(ResourcePayments, ActionView)},
	{RouteSiteManagement, P(ResourceSites, ActionView)},
	{RouteReports, P(ResourceReports, ActionView)},
	{RouteDashboard, P(ResourceDashboard, ActionView)},
}

// ResolveDefaultRoute picks the first page to show after login. It is total:
// unknown roles and empty maps land on the dashboard.
func ResolveDefaultRoute(role Role, perms PermissionMap) string {
	if role == RoleAdmin {
		return RouteDashboard
	}
	if c, ok := primaryRoutes[role]; ok {
		if perms.Has(c.permission) {
			return c.route
		}
		return RouteDashboard
	}
	if role == RoleSubadmin {
		return firstSatisfied(subadminPriority, perms)
	}
	return RouteDashboard
}

// BestAvailableRoute ignores the role and returns the highest-priority page
// the map grants.
func BestAvailableRoute(perms PermissionMap) string {
	return firstSatisfied(bestAvailablePriority, perms)
}

func firstSatisfied(candidates []routeCandidate, perms PermissionMap) string {
	for _, c := range candidates {
		if perms.Has(c.permission) {
			return c.route
		}
	}
	return RouteDashboard
}

// routeAccess lists, per static route, permissions of which any one grants access.
var routeAccess = map[string][]Permission{
	RouteDashboard:      {P(ResourceDashboard, ActionView)},
	RouteLeads:          {P(ResourceLeads, ActionView)},
	RouteProjects:       {P(ResourceProjects, ActionView)},
	RouteLedger:         {P(ResourcePayments, ActionView)},
	"/detailedledger":   {P(ResourcePayments, ActionView)},
	"/addledger":        {P(ResourcePayments, ActionManage)},
	RouteReports:        {P(ResourceReports, ActionView)},
	"/salespersons":     {P(ResourceUsers, ActionView)},
	"/company":          {P(ResourceCompanies, ActionView), P(ResourceProjects, ActionView)},
	RouteSiteManagement: {P(ResourceSites, ActionView)},
	"/subadmin":         {P(ResourceUsers, ActionManage)},
}

// HasRouteAccess checks a static route against a bare permission map.
// Routes outside the table are denied.
func HasRouteAccess(route string, perms PermissionMap) bool {
	for _, p := range routeAccess[route] {
		if perms.Has(p) {
			return true
		}
	}
	return false
}
