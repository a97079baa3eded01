package permgate

// GuardState is the outcome of evaluating a route requirement
type GuardState int

const (
	GuardLoading GuardState = iota
	GuardError
	GuardAuthorized
	GuardUnauthorized
)

func (g GuardState) String() string {
	switch g {
	case GuardLoading:
		return "loading"
	case GuardError:
		return "error"
	case GuardAuthorized:
		return "authorized"
	case GuardUnauthorized:
		return "unauthorized"
	}
	return "unknown"
}

// DefaultFallbackPath is where unauthorized navigation lands.
const DefaultFallbackPath = RouteDashboard

// Requirement describes what a protected view needs
type Requirement struct {
	Permissions []Permission `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	RequireAll  bool         `json:"require_all,omitempty" yaml:"require_all,omitempty"`
	Fallback    string       `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Verdict is the guard decision for one evaluation
type Verdict struct {
	State    GuardState `json:"-"`
	Redirect string     `json:"redirect,omitempty"`
	// Replace means the redirect must replace the blocked entry in history.
	Replace bool  `json:"replace,omitempty"`
	Err     error `json:"-"`
}

func (v Verdict) Allowed() bool { return v.State == GuardAuthorized }

// Guard evaluates req against the snapshot. It is pure and must be called
// again whenever the snapshot changes; decisions are never cached.
func Guard(s Snapshot, req Requirement) Verdict {
	switch {
	case s.Loading():
		return Verdict{State: GuardLoading}
	case s.Err() != nil:
		return Verdict{State: GuardError, Err: s.Err()}
	case s.IsAdmin():
		return Verdict{State: GuardAuthorized}
	case len(req.Permissions) == 0:
		return Verdict{State: GuardAuthorized}
	}

	var ok bool
	if req.RequireAll {
		ok = s.HasAllPermissions(req.Permissions...)
	} else {
		ok = s.HasAnyPermission(req.Permissions...)
	}
	if ok {
		return Verdict{State: GuardAuthorized}
	}
	fallback := req.Fallback
	if fallback == "" {
		fallback = DefaultFallbackPath
	}
	return Verdict{State: GuardUnauthorized, Redirect: fallback, Replace: true}
}
