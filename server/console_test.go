package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/oarkflow/permgate"
	"github.com/oarkflow/permgate/backend"
	"github.com/oarkflow/permgate/stores"
)

type fakeBackend struct {
	mu       sync.Mutex
	logins   map[string]string // email -> token
	users    map[string]*permgate.User
	fetchErr error
	fetches  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{logins: map[string]string{}, users: map[string]*permgate.User{}}
}

func (f *fakeBackend) add(email, token string, u *permgate.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.Email = email
	f.logins[email] = token
	f.users[token] = u
}

func (f *fakeBackend) revoke(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, token)
}

func (f *fakeBackend) setUser(token string, u *permgate.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[token] = u
}

func (f *fakeBackend) failFetches(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *fakeBackend) Login(ctx context.Context, creds backend.Credentials) (*backend.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.logins[creds.Email]
	if !ok {
		e := permgate.Wrap(permgate.CodeLoginFailed, "Invalid credentials", nil)
		e.Status = http.StatusBadRequest
		return nil, e
	}
	return &backend.LoginResult{Token: token, User: f.users[token].Clone()}, nil
}

func (f *fakeBackend) FetchPermissions(ctx context.Context, token string) (*permgate.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	u, ok := f.users[token]
	if !ok {
		e := permgate.Wrap(permgate.CodeUnauthenticated, "token rejected", nil)
		e.Status = http.StatusUnauthorized
		return nil, e
	}
	return u.Clone(), nil
}

func leadManager() *permgate.User {
	return &permgate.User{
		ID:   "u-lm",
		Role: permgate.RoleLeadManager,
		Permissions: permgate.PermissionMap{
			permgate.ResourceLeads: {View: true, Manage: true},
		},
	}
}

type harness struct {
	t        *testing.T
	be       *fakeBackend
	sessions *stores.MemorySessionStore
	audit    *stores.MemoryAuditLog
	ids      int
	console  *Console
	handler  http.Handler
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		be:       newFakeBackend(),
		sessions: stores.NewMemorySessionStore(),
		audit:    stores.NewMemoryAuditLog(),
	}
	h.be.add("lm@example.com", "tok-lm", leadManager())
	h.be.add("admin@example.com", "tok-admin", &permgate.User{ID: "u-admin", Role: permgate.RoleAdmin})
	h.start(opts...)
	return h
}

// start builds a console over the harness's backend and session store, as a
// gateway restart would.
func (h *harness) start(opts ...Option) {
	h.t.Helper()
	pages := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("page " + r.URL.Path))
	})
	nextID := func() string {
		h.ids++
		return fmt.Sprintf("sess-%d", h.ids)
	}
	opts = append([]Option{WithPages(pages), WithAuditLog(h.audit), WithIDFunc(nextID)}, opts...)
	c, err := New(permgate.DefaultConfig(), h.be, h.sessions, opts...)
	if err != nil {
		h.t.Fatalf("new console: %v", err)
	}
	h.t.Cleanup(c.Close)
	h.console = c
	h.handler = c.Handler()
}

func (h *harness) do(method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(email string) (*http.Cookie, LoginResponse) {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/login", `{"email":"`+email+`","password":"pw"}`, nil)
	if rec.Code != http.StatusOK {
		h.t.Fatalf("login %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	var resp LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		h.t.Fatalf("decode login: %v", err)
	}
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "permgate_session" {
			return ck, resp
		}
	}
	h.t.Fatalf("login did not set a session cookie")
	return nil, resp
}

func (h *harness) session(cookie *http.Cookie) (int, SessionView) {
	h.t.Helper()
	rec := h.do(http.MethodGet, "/api/session", "", cookie)
	var v SessionView
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
			h.t.Fatalf("decode session: %v", err)
		}
	}
	return rec.Code, v
}

func TestLoginRedirectsToRoleLandingPage(t *testing.T) {
	h := newHarness(t)
	cookie, resp := h.login("lm@example.com")
	if resp.Redirect != "/leads" || resp.Role != permgate.RoleLeadManager {
		t.Fatalf("unexpected login response %+v", resp)
	}
	if cookie.Value != "sess-1" {
		t.Fatalf("expected session id sess-1, got %q", cookie.Value)
	}
	if sess, _ := h.sessions.Get(context.Background(), "sess-1"); sess == nil || sess.Token != "tok-lm" {
		t.Fatalf("session sess-1 not persisted with its token: %+v", sess)
	}
	cookie, resp = h.login("admin@example.com")
	if cookie.Value != "sess-2" {
		t.Fatalf("expected session id sess-2, got %q", cookie.Value)
	}
	if resp.Redirect != "/" {
		t.Fatalf("admin should land on dashboard, got %s", resp.Redirect)
	}
	if h.be.fetches != 0 {
		t.Fatalf("login must seed the store without fetching, got %d fetches", h.be.fetches)
	}
}

func TestLoginFailure(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/api/login", `{"email":"nobody@example.com","password":"pw"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid credentials") {
		t.Fatalf("expected backend message, got %s", rec.Body.String())
	}
	events, _ := h.audit.Query(context.Background(), permgate.AuditFilter{Kind: permgate.AuditLoginFailed})
	if len(events) != 1 {
		t.Fatalf("expected one login_failed event, got %d", len(events))
	}
}

func TestLoginWithoutUserIsRejected(t *testing.T) {
	h := newHarness(t)
	h.be.mu.Lock()
	h.be.logins["ghost@example.com"] = "tok-ghost"
	h.be.mu.Unlock()

	rec := h.do(http.MethodPost, "/api/login", `{"email":"ghost@example.com","password":"pw"}`, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("no session cookie may be set")
	}
	if sess, _ := h.sessions.Get(context.Background(), "sess-1"); sess != nil {
		t.Fatalf("session persisted for a login without a user: %+v", sess)
	}
	events, _ := h.audit.Query(context.Background(), permgate.AuditFilter{Kind: permgate.AuditLoginFailed})
	if len(events) != 1 || events[0].Detail != "ghost@example.com" {
		t.Fatalf("expected one login_failed event, got %+v", events)
	}
}

func TestGuardedPages(t *testing.T) {
	h := newHarness(t)
	cookie, _ := h.login("lm@example.com")

	rec := h.do(http.MethodGet, "/leads", "", cookie)
	if rec.Code != http.StatusOK || rec.Body.String() != "page /leads" {
		t.Fatalf("expected /leads page, got %d %q", rec.Code, rec.Body.String())
	}

	// the dashboard is closed to this role, so the landing page is used
	rec = h.do(http.MethodGet, "/ledger", "", cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/leads" {
		t.Fatalf("expected redirect to /leads, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = h.do(http.MethodGet, "/no/such/page", "", cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("unmatched path should redirect to /, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	// signed-in users are sent away from the login page
	rec = h.do(http.MethodGet, "/login", "", cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/leads" {
		t.Fatalf("expected redirect to /leads, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	denied, _ := h.audit.Query(context.Background(), permgate.AuditFilter{Kind: permgate.AuditRouteDenied})
	if len(denied) != 1 || denied[0].Path != "/ledger" {
		t.Fatalf("expected route_denied for /ledger, got %+v", denied)
	}
}

func TestSubadminWithoutGrantsGetsTerminalResponse(t *testing.T) {
	h := newHarness(t)
	h.be.add("sub@example.com", "tok-sub", &permgate.User{ID: "u-sub", Role: permgate.RoleSubadmin, Permissions: permgate.PermissionMap{}})
	cookie, resp := h.login("sub@example.com")
	if resp.Redirect != "/" {
		t.Fatalf("expected landing on /, got %s", resp.Redirect)
	}

	// follow redirects the way a browser would; the chain must end
	path := "/login"
	for hops := 0; ; hops++ {
		if hops > 3 {
			t.Fatalf("redirect chain did not terminate, last path %s", path)
		}
		rec := h.do(http.MethodGet, path, "", cookie)
		if rec.Code == http.StatusSeeOther {
			path = rec.Header().Get("Location")
			continue
		}
		if rec.Code != http.StatusForbidden || path != "/" {
			t.Fatalf("expected 403 on /, got %d on %s", rec.Code, path)
		}
		break
	}

	rec := h.do(http.MethodGet, "/leads", "", cookie)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for /leads, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	denied, _ := h.audit.Query(context.Background(), permgate.AuditFilter{Kind: permgate.AuditRouteDenied})
	if len(denied) != 2 || denied[0].Detail != "forbidden" {
		t.Fatalf("expected two forbidden route_denied events, got %+v", denied)
	}
}

func TestAnonymousRequests(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/leads", "", nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected login redirect, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	rec = h.do(http.MethodGet, "/login", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login page must be public, got %d", rec.Code)
	}
	if code, _ := h.session(nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous session, got %d", code)
	}
	stale := &http.Cookie{Name: "permgate_session", Value: "gone"}
	rec = h.do(http.MethodGet, "/leads", "", stale)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("unknown session should redirect to login, got %d", rec.Code)
	}
}

func TestMenuEndpoint(t *testing.T) {
	h := newHarness(t)
	cookie, _ := h.login("lm@example.com")

	var menu MenuResponse
	rec := h.do(http.MethodGet, "/api/menu", "", cookie)
	if err := json.Unmarshal(rec.Body.Bytes(), &menu); err != nil {
		t.Fatalf("decode menu: %v", err)
	}
	if menu.Headline != "Sub Admin" || menu.RoleLabel != "Lead Manager" {
		t.Fatalf("unexpected labels %+v", menu)
	}
	if len(menu.Items) != 1 || menu.Items[0].Path != "/leads" {
		t.Fatalf("expected only Leads Funnel, got %+v", menu.Items)
	}

	rec = h.do(http.MethodGet, "/api/menu?locked=true", "", cookie)
	menu = MenuResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &menu); err != nil {
		t.Fatalf("decode locked menu: %v", err)
	}
	locked := 0
	for _, e := range menu.Items {
		if e.AdminOnly {
			t.Fatalf("admin-only item %q leaked", e.Label)
		}
		if e.Locked {
			locked++
			if e.Tooltip != permgate.LockedTooltip {
				t.Fatalf("locked item without tooltip: %+v", e)
			}
		}
	}
	if len(menu.Items) != 9 || locked != 8 {
		t.Fatalf("expected 9 items with 8 locked, got %d/%d", len(menu.Items), locked)
	}
}

func TestAccessEndpoint(t *testing.T) {
	h := newHarness(t)
	cookie, _ := h.login("lm@example.com")

	check := func(path, state, redirect string) {
		t.Helper()
		rec := h.do(http.MethodGet, "/api/access?path="+path, "", cookie)
		var resp AccessResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode access: %v", err)
		}
		if resp.State != state || resp.Redirect != redirect {
			t.Fatalf("%s: expected %s/%q, got %+v", path, state, redirect, resp)
		}
	}
	check("/leads", "authorized", "")
	check("/ledger", "unauthorized", "/")
	check("/subadmin", "authorized", "")
	check("/companies/7/projects", "unauthorized", "/")
}

func TestRestartRefreshesFromBackend(t *testing.T) {
	h := newHarness(t)
	cookie, _ := h.login("lm@example.com")

	// permissions change on the backend; the new gateway instance fetches them
	u := leadManager()
	u.Permissions[permgate.ResourcePayments] = permgate.ActionSet{View: true}
	h.be.setUser("tok-lm", u)
	h.start()

	rec := h.do(http.MethodGet, "/ledger", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected /ledger after refresh, got %d", rec.Code)
	}
	if h.be.fetches != 1 {
		t.Fatalf("expected exactly one fetch, got %d", h.be.fetches)
	}
}

func TestRefreshRevokesAccess(t *testing.T) {
	h := newHarness(t)
	cookie, _ := h.login("lm@example.com")

	u := leadManager()
	u.Permissions = permgate.PermissionMap{permgate.ResourceReports: {View: true}}
	h.be.setUser("tok-lm", u)

	rec := h.do(http.MethodPost, "/api/permissions/refresh", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body.String())
	}
	rec = h.do(http.MethodGet, "/leads", "", cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/reports" {
		t.Fatalf("revoked permission must deny on the next request, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestUnauthorizedFetchDestroysSession(t *testing.T) {
	h := newHarness(t)
	cookie, _ := h.login("lm@example.com")
	h.be.revoke("tok-lm")

	rec := h.do(http.MethodPost, "/api/permissions/refresh", "", cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after token rejection, got %d", rec.Code)
	}
	if h.sessions.Len() != 0 {
		t.Fatalf("session should be destroyed")
	}
	rec = h.do(http.MethodGet, "/leads", "", cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected login redirect, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	expired, _ := h.audit.Query(context.Background(), permgate.AuditFilter{Kind: permgate.AuditSessionExpired})
	if len(expired) != 1 {
		t.Fatalf("expected a session_expired event, got %d", len(expired))
	}
}

func TestBackendOutageFallsBackToCachedAdmin(t *testing.T) {
	h := newHarness(t)
	cookie, _ := h.login("admin@example.com")
	h.be.failFetches(permgate.Wrap(permgate.CodeFetchFailed, "connection refused", errors.New("dial tcp")))
	h.start()

	code, view := h.session(cookie)
	if code != http.StatusOK {
		t.Fatalf("session: %d", code)
	}
	if !view.IsAdmin || view.Error != "" {
		t.Fatalf("expected cached admin, got %+v", view)
	}
	if !view.Permissions.Equal(permgate.FullAccessMap()) {
		t.Fatalf("cached admin must get the full access map, got %+v", view.Permissions)
	}
}

func TestBackendOutageWithoutCachedUserShowsError(t *testing.T) {
	h := newHarness(t)
	cookie, _ := h.login("lm@example.com")
	sess, _ := h.sessions.Get(context.Background(), cookie.Value)
	sess.User = nil
	_ = h.sessions.Put(context.Background(), cookie.Value, sess)
	h.be.failFetches(permgate.Wrap(permgate.CodeFetchFailed, "permissions endpoint returned 500", nil))
	h.start()

	rec := h.do(http.MethodGet, "/leads", "", cookie)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected inline error, got %d", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	cookie, _ := h.login("lm@example.com")

	rec := h.do(http.MethodPost, "/api/logout", "", cookie)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", rec.Code)
	}
	cleared := false
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "permgate_session" && ck.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("logout must clear the session cookie")
	}
	if code, _ := h.session(cookie); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := permgate.NewMetrics(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	h := newHarness(t, WithMetrics(m, reg))
	cookie, _ := h.login("lm@example.com")
	h.do(http.MethodGet, "/ledger", "", cookie)
	h.do(http.MethodGet, "/leads", "", cookie)

	if got := testutil.ToFloat64(m.GuardCounter().WithLabelValues("unauthorized")); got != 1 {
		t.Fatalf("expected 1 unauthorized verdict, got %v", got)
	}
	rec := h.do(http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rec.Body.String(), "permgate_route_guard_total") {
		t.Fatalf("metrics endpoint missing guard counter")
	}
}
