package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oarkflow/permgate"
	"github.com/oarkflow/permgate/backend"
)

// Handler builds the gateway router.
func (c *Console) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	origins := c.cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: len(c.cfg.Server.AllowedOrigins) > 0,
		MaxAge:           300,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Post("/login", c.handleLogin)
		api.Post("/logout", c.handleLogout)
		api.Get("/session", c.handleSession)
		api.Post("/permissions/refresh", c.handleRefresh)
		api.Get("/menu", c.handleMenu)
		api.Get("/access", c.handleAccess)
	})
	if c.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{}))
	}

	guard := permgate.DefaultRouteGuardOptions()
	guard.Routes = c.routes
	guard.Store = c.storeFor
	guard.LoginPath = c.cfg.LoginPath
	guard.Metrics = c.metrics
	guard.Logger = c.logger
	deny := guard.OnDenied
	guard.OnDenied = func(w http.ResponseWriter, r *http.Request, v permgate.Verdict) {
		c.record(r.Context(), &permgate.AuditEvent{
			SessionID: c.sessionID(r),
			Kind:      permgate.AuditRouteDenied,
			Path:      r.URL.Path,
			Detail:    "redirect " + v.Redirect,
		})
		deny(w, r, v)
	}
	forbid := guard.OnForbidden
	guard.OnForbidden = func(w http.ResponseWriter, r *http.Request) {
		c.record(r.Context(), &permgate.AuditEvent{
			SessionID: c.sessionID(r),
			Kind:      permgate.AuditRouteDenied,
			Path:      r.URL.Path,
			Detail:    "forbidden",
		})
		forbid(w, r)
	}
	r.With(permgate.RouteGuard(guard)).Handle("/*", c.pages)
	return r
}

// ============================================================================
// RESPONSES
// ============================================================================

// SessionView is the client-facing state of a session's store
type SessionView struct {
	Role          permgate.Role          `json:"role"`
	RoleLabel     string                 `json:"role_label"`
	IsAdmin       bool                   `json:"is_admin"`
	Permissions   permgate.PermissionMap `json:"permissions"`
	Loading       bool                   `json:"loading"`
	Error         string                 `json:"error,omitempty"`
	DefaultRoute  string                 `json:"default_route"`
	Authenticated bool                   `json:"authenticated"`
}

func viewOf(s permgate.Snapshot) SessionView {
	v := SessionView{
		Role:          s.Role(),
		RoleLabel:     permgate.RoleLabel(s.Role()),
		IsAdmin:       s.IsAdmin(),
		Permissions:   s.Permissions(),
		Loading:       s.Loading(),
		Authenticated: s.Authenticated(),
		DefaultRoute:  permgate.ResolveDefaultRoute(s.Role(), s.Permissions()),
	}
	if err := s.Err(); err != nil {
		v.Error = err.Error()
	}
	return v
}

type LoginResponse struct {
	Redirect string        `json:"redirect"`
	Role     permgate.Role `json:"role"`
}

type MenuResponse struct {
	Headline  string               `json:"headline"`
	RoleLabel string               `json:"role_label"`
	Items     []permgate.MenuEntry `json:"items"`
}

type AccessResponse struct {
	Path     string `json:"path"`
	State    string `json:"state"`
	Redirect string `json:"redirect,omitempty"`
	Replace  bool   `json:"replace,omitempty"`
	Error    string `json:"error,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	body := errorBody{Error: err.Error()}
	var typed *permgate.Error
	if errors.As(err, &typed) {
		body.Code = string(typed.Code)
	}
	writeJSON(w, r, status, body)
}

var errUnauthenticated = permgate.Wrap(permgate.CodeUnauthenticated, "not signed in", nil)

// ============================================================================
// HANDLERS
// ============================================================================

func (c *Console) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds backend.Credentials
	if err := render.DecodeJSON(r.Body, &creds); err != nil {
		writeError(w, r, http.StatusBadRequest, permgate.Wrap(permgate.CodeLoginFailed, "invalid login body", err))
		return
	}
	res, err := c.backend.Login(r.Context(), creds)
	if err != nil {
		c.logger.Info("login rejected", "email", creds.Email, "error", err)
		c.record(r.Context(), &permgate.AuditEvent{Kind: permgate.AuditLoginFailed, Detail: creds.Email})
		status := http.StatusUnauthorized
		if st := permgate.StatusOf(err); st == 0 || st >= 500 {
			status = http.StatusBadGateway
		}
		writeError(w, r, status, err)
		return
	}
	if res.User == nil {
		c.logger.Error("login response without user", "email", creds.Email)
		c.record(r.Context(), &permgate.AuditEvent{Kind: permgate.AuditLoginFailed, Detail: creds.Email})
		writeError(w, r, http.StatusBadGateway, permgate.Wrap(permgate.CodeLoginFailed, "login response has no user", nil))
		return
	}

	// a fresh login replaces whatever session the browser had
	if old := c.sessionID(r); old != "" {
		_ = c.endSession(r.Context(), old)
	}

	id := c.newID()
	sess := &permgate.Session{Token: res.Token, User: res.User, CreatedAt: time.Now()}
	if err := c.sessions.Put(r.Context(), id, sess); err != nil {
		c.logger.Error("persist session", "error", err)
		writeError(w, r, http.StatusInternalServerError, permgate.Wrap(permgate.CodeSessionStore, "persist session", err))
		return
	}
	store := c.newStore(id)
	snap := store.Seed(res.User)
	c.mu.Lock()
	c.cacheStore(store)
	c.mu.Unlock()
	c.setSessionCookie(w, id)

	c.record(r.Context(), &permgate.AuditEvent{SessionID: id, Kind: permgate.AuditLogin, Role: snap.Role(), Detail: res.User.Email})
	writeJSON(w, r, http.StatusOK, LoginResponse{
		Redirect: permgate.ResolveDefaultRoute(snap.Role(), snap.Permissions()),
		Role:     snap.Role(),
	})
}

func (c *Console) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := c.sessionID(r)
	if id != "" {
		if err := c.endSession(r.Context(), id); err != nil {
			c.logger.Error("delete session", "session", id, "error", err)
		}
		c.record(r.Context(), &permgate.AuditEvent{SessionID: id, Kind: permgate.AuditLogout})
	}
	c.clearSessionCookie(w)
	render.NoContent(w, r)
}

// settledStore resolves the request's store and writes a 401 when there is
// no signed-in session.
func (c *Console) settledStore(w http.ResponseWriter, r *http.Request) (*permgate.Store, bool) {
	s, err := c.storeFor(r)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return nil, false
	}
	if s == nil {
		writeError(w, r, http.StatusUnauthorized, errUnauthenticated)
		return nil, false
	}
	return s, true
}

func (c *Console) handleSession(w http.ResponseWriter, r *http.Request) {
	s, ok := c.settledStore(w, r)
	if !ok {
		return
	}
	snap := s.Snapshot()
	if !snap.Loading() && snap.Err() == nil && !snap.Authenticated() {
		c.clearSessionCookie(w)
		writeError(w, r, http.StatusUnauthorized, errUnauthenticated)
		return
	}
	writeJSON(w, r, http.StatusOK, viewOf(snap))
}

func (c *Console) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s, ok := c.settledStore(w, r)
	if !ok {
		return
	}
	snap := s.Refresh(r.Context())
	if !snap.Loading() && snap.Err() == nil && !snap.Authenticated() {
		c.clearSessionCookie(w)
		writeError(w, r, http.StatusUnauthorized, errUnauthenticated)
		return
	}
	writeJSON(w, r, http.StatusOK, viewOf(snap))
}

func (c *Console) handleMenu(w http.ResponseWriter, r *http.Request) {
	s, ok := c.settledStore(w, r)
	if !ok {
		return
	}
	snap := s.Snapshot()
	opts := permgate.MenuOptions{ShowLocked: r.URL.Query().Get("locked") == "true"}
	label := permgate.RoleLabel(snap.Role())
	if snap.Loading() {
		label = permgate.RoleLabel("")
	}
	writeJSON(w, r, http.StatusOK, MenuResponse{
		Headline:  permgate.Headline(snap.Role()),
		RoleLabel: label,
		Items:     permgate.FilterMenu(snap, c.menu, opts),
	})
}

func (c *Console) handleAccess(w http.ResponseWriter, r *http.Request) {
	s, ok := c.settledStore(w, r)
	if !ok {
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, r, http.StatusBadRequest, permgate.Wrap(permgate.CodeInvalidConfig, "path query parameter is required", nil))
		return
	}
	resp := AccessResponse{Path: path}
	route, found := c.routes.Match(path)
	if !found {
		resp.State = permgate.GuardUnauthorized.String()
		resp.Redirect = permgate.DefaultFallbackPath
		resp.Replace = true
		writeJSON(w, r, http.StatusOK, resp)
		return
	}
	v := permgate.Guard(s.Snapshot(), route.Requirement())
	resp.State = v.State.String()
	resp.Redirect = v.Redirect
	resp.Replace = v.Replace
	if v.Err != nil {
		resp.Error = v.Err.Error()
	}
	writeJSON(w, r, http.StatusOK, resp)
}
