package permgate

import (
	"fmt"
	"strings"
	"unicode"
)

// LockedTooltip explains why a locked menu entry cannot be opened.
const LockedTooltip = "Access restricted - insufficient permissions"

// MenuOptions tunes FilterMenu
type MenuOptions struct {
	// ShowLocked keeps entries that fail their permission check, marked
	// locked, instead of dropping them.
	ShowLocked bool
}

// MenuEntry is a menu item as it should be rendered for one user
type MenuEntry struct {
	MenuItem
	Locked  bool   `json:"locked,omitempty"`
	Tooltip string `json:"tooltip,omitempty"`
}

// Target returns the path to navigate to. Locked entries have none.
func (e MenuEntry) Target() (string, bool) {
	if e.Locked {
		return "", false
	}
	return e.Path, true
}

// FilterMenu returns the entries to render, preserving declaration order.
// Nothing is shown while permissions are loading.
func FilterMenu(s Snapshot, items []MenuItem, opts MenuOptions) []MenuEntry {
	if s.Loading() {
		return []MenuEntry{}
	}
	out := make([]MenuEntry, 0, len(items))
	admin := s.IsAdmin()
	for _, item := range items {
		if admin {
			out = append(out, MenuEntry{MenuItem: item})
			continue
		}
		if item.AdminOnly {
			continue
		}
		if item.Permission == nil || s.HasAnyPermission(*item.Permission) {
			out = append(out, MenuEntry{MenuItem: item})
			continue
		}
		if opts.ShowLocked {
			out = append(out, MenuEntry{MenuItem: item, Locked: true, Tooltip: LockedTooltip})
		}
	}
	return out
}

// ValidateMenu checks that every item has a path and a valid permission.
func ValidateMenu(items []MenuItem) error {
	for _, item := range items {
		if !strings.HasPrefix(item.Path, "/") {
			return Wrap(CodeInvalidConfig, fmt.Sprintf("menu %q: path must start with /", item.Label), nil)
		}
		if item.Permission != nil {
			if err := item.Permission.Validate(); err != nil {
				return Wrap(CodeInvalidConfig, fmt.Sprintf("menu %q", item.Label), err)
			}
		}
	}
	return nil
}

func menuPermission(s string) *Permission {
	p := MustParsePermissions(s)[0]
	return &p
}

// DefaultMenu is the console sidebar.
func DefaultMenu() []MenuItem {
	return []MenuItem{
		{Label: "Dashboard", Icon: "dashboard", Path: RouteDashboard, Permission: menuPermission("dashboard.view")},
		{Label: "Leads Funnel", Icon: "group", Path: RouteLeads, Permission: menuPermission("leads.view")},
		{Label: "Project", Icon: "assignment", Path: "/company", Permission: menuPermission("projects.view")},
		{Label: "Site Inventory", Icon: "inventory", Path: RouteSiteManagement, Permission: menuPermission("sites.view")},
		{Label: "Account Ledger", Icon: "ledger", Path: RouteLedger, Permission: menuPermission("payments.view")},
		{Label: "Sub Admin", Icon: "supervisor", Path: "/subadmin", AdminOnly: true},
		{Label: "Sales Management", Icon: "sales", Path: "/salespersons", Permission: menuPermission("users.view")},
		{Label: "Site Visit Management", Icon: "sales", Path: "/siteVisit", Permission: menuPermission("users.view")},
		{Label: "Transactions", Icon: "report", Path: "/transactions", Permission: menuPermission("transactions.view")},
		{Label: "Contact", Icon: "report", Path: "/contact", Permission: menuPermission("contact.view")},
		{Label: "Settings", Icon: "settings", Path: "/settings", AdminOnly: true},
	}
}

// RoleLabel renders a role for the sidebar footer: "lead_manager" becomes
// "Lead Manager".
func RoleLabel(r Role) string {
	if r == "" {
		return "Loading..."
	}
	words := strings.Split(string(r), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// Headline is the sidebar title for a role.
func Headline(r Role) string {
	if r == RoleAdmin {
		return "Admin"
	}
	return "Sub Admin"
}
