package permgate

// Builders provide a fluent API for creating routes and menu items.
// Permission strings are parsed when Build is called.

// RouteBuilder builds a Route
type RouteBuilder struct {
	r     Route
	perms []string
}

func NewRouteBuilder(pattern string) *RouteBuilder {
	return &RouteBuilder{r: Route{Pattern: pattern}}
}

func (b *RouteBuilder) Any(perms ...string) *RouteBuilder {
	b.perms = append(b.perms, perms...)
	b.r.RequireAll = false
	return b
}

func (b *RouteBuilder) All(perms ...string) *RouteBuilder {
	b.perms = append(b.perms, perms...)
	b.r.RequireAll = true
	return b
}

func (b *RouteBuilder) Fallback(path string) *RouteBuilder { b.r.Fallback = path; return b }
func (b *RouteBuilder) Public() *RouteBuilder              { b.r.Public = true; return b }

func (b *RouteBuilder) Build() (Route, error) {
	r := b.r
	for _, s := range b.perms {
		p, err := ParsePermission(s)
		if err != nil {
			return Route{}, err
		}
		r.Permissions = append(r.Permissions, p)
	}
	return r, nil
}

// MenuItemBuilder builds a MenuItem
type MenuItemBuilder struct {
	item MenuItem
	perm string
}

func NewMenuItemBuilder(label, path string) *MenuItemBuilder {
	return &MenuItemBuilder{item: MenuItem{Label: label, Path: path}}
}

func (b *MenuItemBuilder) Icon(icon string) *MenuItemBuilder { b.item.Icon = icon; return b }
func (b *MenuItemBuilder) Requires(perm string) *MenuItemBuilder {
	b.perm = perm
	return b
}
func (b *MenuItemBuilder) AdminOnly() *MenuItemBuilder { b.item.AdminOnly = true; return b }

func (b *MenuItemBuilder) Build() (MenuItem, error) {
	item := b.item
	if b.perm != "" {
		p, err := ParsePermission(b.perm)
		if err != nil {
			return MenuItem{}, err
		}
		item.Permission = &p
	}
	return item, nil
}
