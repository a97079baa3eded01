package permgate

import (
	"net/http"

	"github.com/oarkflow/permgate/logger"
)

// RouteGuardOptions configures the net/http route guard. Store resolves the
// permission store of the request's session; it returns (nil, nil) when the
// request carries no session. OnLoading, OnError and OnDenied customize the
// responses for the corresponding guard states. OnForbidden answers a denied
// request that has nowhere to go: neither the fallback nor the role's landing
// page is open to the session.
type RouteGuardOptions struct {
	Routes      *RouteTable
	Store       func(r *http.Request) (*Store, error)
	LoginPath   string
	Metrics     *Metrics
	Logger      logger.Logger
	OnLoading   func(w http.ResponseWriter, r *http.Request)
	OnError     func(w http.ResponseWriter, r *http.Request, err error)
	OnDenied    func(w http.ResponseWriter, r *http.Request, v Verdict)
	OnForbidden func(w http.ResponseWriter, r *http.Request)
}

// DefaultRouteGuardOptions returns the stock responses. Routes and Store are
// left nil so callers must provide them.
func DefaultRouteGuardOptions() *RouteGuardOptions {
	return &RouteGuardOptions{
		LoginPath: RouteLogin,
		Logger:    logger.NewNullLogger(),
		OnLoading: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte("loading permissions"))
		},
		OnError: func(w http.ResponseWriter, r *http.Request, err error) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("permissions unavailable: " + err.Error()))
		},
		OnDenied: func(w http.ResponseWriter, r *http.Request, v Verdict) {
			http.Redirect(w, r, v.Redirect, http.StatusSeeOther)
		},
		OnForbidden: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("no console page is available to this account"))
		},
	}
}

// RouteGuard returns middleware that evaluates every request against the
// current snapshot of its session. Nothing is cached between requests, so a
// refresh that revokes a permission takes effect on the next request.
func RouteGuard(opts *RouteGuardOptions) func(next http.Handler) http.Handler {
	def := DefaultRouteGuardOptions()
	if opts == nil {
		opts = def
	}
	o := *opts
	if o.LoginPath == "" {
		o.LoginPath = def.LoginPath
	}
	if o.Logger == nil {
		o.Logger = def.Logger
	}
	if o.OnLoading == nil {
		o.OnLoading = def.OnLoading
	}
	if o.OnError == nil {
		o.OnError = def.OnError
	}
	if o.OnDenied == nil {
		o.OnDenied = def.OnDenied
	}
	if o.OnForbidden == nil {
		o.OnForbidden = def.OnForbidden
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if o.Routes == nil || o.Store == nil {
				o.OnError(w, r, Wrap(CodeInvalidConfig, "route guard misconfigured: Routes and Store are required", nil))
				return
			}
			route, ok := o.Routes.Match(r.URL.Path)
			if !ok {
				http.Redirect(w, r, DefaultFallbackPath, http.StatusSeeOther)
				return
			}

			store, err := o.Store(r)
			if err != nil {
				o.Logger.Error("resolve session store", "path", r.URL.Path, "error", err)
				o.OnError(w, r, err)
				return
			}
			if route.Public {
				if store != nil {
					if snap := store.Snapshot(); !snap.Loading() && snap.Authenticated() {
						http.Redirect(w, r, ResolveDefaultRoute(snap.Role(), snap.Permissions()), http.StatusSeeOther)
						return
					}
				}
				next.ServeHTTP(w, r)
				return
			}
			if store == nil {
				http.Redirect(w, r, o.LoginPath, http.StatusSeeOther)
				return
			}

			snap := store.Snapshot()
			if !snap.Loading() && snap.Err() == nil && !snap.Authenticated() {
				http.Redirect(w, r, o.LoginPath, http.StatusSeeOther)
				return
			}

			v := Guard(snap, route.Requirement())
			o.Metrics.guard(v.State)
			switch v.State {
			case GuardLoading:
				o.OnLoading(w, r)
			case GuardError:
				o.OnError(w, r, v.Err)
			case GuardUnauthorized:
				target, ok := deniedTarget(o.Routes, snap, route, v.Redirect)
				if !ok {
					o.Logger.Debug("route forbidden", "path", r.URL.Path, "role", string(snap.Role()))
					o.OnForbidden(w, r)
					return
				}
				v.Redirect = target
				o.Logger.Debug("route denied", "path", r.URL.Path, "role", string(snap.Role()), "redirect", v.Redirect)
				o.OnDenied(w, r, v)
			default:
				ctx := ContextWithSnapshot(r.Context(), snap)
				ctx = ContextWithSessionID(ctx, store.SessionID())
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

// deniedTarget picks where a denied request is sent: the fallback when the
// session may open it, else the role's landing page, else the best page the
// map grants. ok is false when none is open, which would otherwise redirect
// in a loop.
func deniedTarget(routes *RouteTable, snap Snapshot, denied Route, fallback string) (string, bool) {
	perms := snap.Permissions()
	for _, path := range []string{fallback, ResolveDefaultRoute(snap.Role(), perms), BestAvailableRoute(perms)} {
		if opens(routes, snap, denied, path) {
			return path, true
		}
	}
	return "", false
}

func opens(routes *RouteTable, snap Snapshot, denied Route, path string) bool {
	r, ok := routes.Match(path)
	if !ok || r.Pattern == denied.Pattern {
		return false
	}
	return r.Public || Guard(snap, r.Requirement()).Allowed()
}
