// Package server is the console gateway: it owns staff sessions, talks to
// the REST backend and serves console pages behind the route guard.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oarkflow/permgate"
	"github.com/oarkflow/permgate/backend"
	"github.com/oarkflow/permgate/logger"
)

// Backend is what the console needs from the REST API
type Backend interface {
	permgate.PermissionSource
	Login(ctx context.Context, creds backend.Credentials) (*backend.LoginResult, error)
}

type Option func(*Console)

func WithLogger(l logger.Logger) Option {
	return func(c *Console) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records store and guard metrics; g, when set, is exposed on
// GET /metrics.
func WithMetrics(m *permgate.Metrics, g prometheus.Gatherer) Option {
	return func(c *Console) {
		c.metrics = m
		c.gatherer = g
	}
}

func WithAuditLog(a permgate.AuditLog) Option {
	return func(c *Console) { c.audit = a }
}

// WithPages sets the handler serving console pages once the guard allowed
// the request.
func WithPages(h http.Handler) Option {
	return func(c *Console) {
		if h != nil {
			c.pages = h
		}
	}
}

func WithIDFunc(f func() string) Option {
	return func(c *Console) {
		if f != nil {
			c.newID = f
		}
	}
}

// Console is the single owner of session reads and writes. Each live session
// has one permgate.Store, kept in a bounded cache; evicted stores are closed.
type Console struct {
	cfg      *permgate.Config
	backend  Backend
	sessions permgate.SessionStore
	routes   *permgate.RouteTable
	menu     []permgate.MenuItem
	stores   *ristretto.Cache

	logger   logger.Logger
	metrics  *permgate.Metrics
	gatherer prometheus.Gatherer
	audit    permgate.AuditLog
	pages    http.Handler
	newID    func() string

	mu sync.Mutex // serializes store creation per console
}

func New(cfg *permgate.Config, be Backend, sessions permgate.SessionStore, opts ...Option) (*Console, error) {
	if cfg == nil {
		cfg = permgate.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	routes, err := permgate.NewRouteTable(cfg.Routes)
	if err != nil {
		return nil, err
	}
	c := &Console{
		cfg:      cfg,
		backend:  be,
		sessions: sessions,
		routes:   routes,
		menu:     cfg.Menu,
		logger:   logger.NewNullLogger(),
		pages:    http.NotFoundHandler(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.Named(c.logger, "console")

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.Cache.NumCounters,
		MaxCost:     cfg.Cache.MaxCost,
		BufferItems: cfg.Cache.BufferItems,
		OnEvict: func(item *ristretto.Item) {
			if s, ok := item.Value.(*permgate.Store); ok {
				c.logger.Debug("evicting session store", "session", s.SessionID())
				s.Close()
			}
		},
	})
	if err != nil {
		return nil, permgate.Wrap(permgate.CodeInvalidConfig, "store cache", err)
	}
	c.stores = cache
	return c, nil
}

// Close releases the store cache.
func (c *Console) Close() {
	c.stores.Close()
}

func (c *Console) Routes() *permgate.RouteTable { return c.routes }

func (c *Console) newStore(id string) *permgate.Store {
	opts := []permgate.StoreOption{
		permgate.WithLogger(logger.Named(c.logger, "store")),
		permgate.WithMetrics(c.metrics),
		permgate.WithUnauthorizedHandler(c.sessionExpired),
	}
	opts = append(opts, c.cfg.StoreOptions()...)
	return permgate.NewStore(id, c.sessions, c.backend, opts...)
}

func (c *Console) cacheStore(s *permgate.Store) {
	c.stores.Set(s.SessionID(), s, 1)
	c.stores.Wait()
}

func (c *Console) cachedStore(id string) (*permgate.Store, bool) {
	v, ok := c.stores.Get(id)
	if !ok {
		return nil, false
	}
	s, ok := v.(*permgate.Store)
	if !ok || s.Closed() {
		return nil, false
	}
	return s, true
}

// storeFor returns the store of the request's session, creating and
// refreshing it when the session exists but has no live store (for example
// after a restart). It returns (nil, nil) when there is no session.
func (c *Console) storeFor(r *http.Request) (*permgate.Store, error) {
	id := c.sessionID(r)
	if id == "" {
		return nil, nil
	}
	if s, ok := c.cachedStore(id); ok {
		return s, nil
	}

	c.mu.Lock()
	if s, ok := c.cachedStore(id); ok {
		c.mu.Unlock()
		return s, nil
	}
	sess, err := c.sessions.Get(r.Context(), id)
	if err != nil {
		c.mu.Unlock()
		return nil, permgate.Wrap(permgate.CodeSessionStore, "read session", err)
	}
	if sess == nil {
		c.mu.Unlock()
		return nil, nil
	}
	s := c.newStore(id)
	c.cacheStore(s)
	c.mu.Unlock()

	// the fetch outlives a client that hangs up mid-request
	s.Refresh(context.WithoutCancel(r.Context()))
	return s, nil
}

func (c *Console) sessionID(r *http.Request) string {
	ck, err := r.Cookie(c.cfg.Session.CookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (c *Console) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.Session.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c *Console) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionExpired runs after a 401 destroyed the session. The store stays
// usable for the request in flight; later requests find no session.
func (c *Console) sessionExpired(id string) {
	c.stores.Del(id)
	c.record(context.Background(), &permgate.AuditEvent{SessionID: id, Kind: permgate.AuditSessionExpired})
}

// endSession erases the persisted session and tears its store down.
func (c *Console) endSession(ctx context.Context, id string) error {
	if s, ok := c.cachedStore(id); ok {
		s.Close()
	}
	c.stores.Del(id)
	return c.sessions.Delete(ctx, id)
}

func (c *Console) record(ctx context.Context, e *permgate.AuditEvent) {
	if c.audit == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if err := c.audit.Record(ctx, e); err != nil {
		c.logger.Error("record audit event", "kind", string(e.Kind), "error", err)
	}
}
