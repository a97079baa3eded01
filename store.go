package permgate

import (
	"context"
	"sync"

	"github.com/oarkflow/permgate/logger"
)

// ============================================================================
// COLLABORATOR INTERFACES
// ============================================================================

// SessionStore persists the token and cached user of each console session.
// Get returns (nil, nil) when the session does not exist.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, id string, s *Session) error
	Delete(ctx context.Context, id string) error
}

// PermissionSource answers "who is this token" with the current role and
// permission map (GET /permissions/me). A rejected token must be reported
// with CodeUnauthenticated.
type PermissionSource interface {
	FetchPermissions(ctx context.Context, token string) (*User, error)
}

// ============================================================================
// STORE
// ============================================================================

type StoreOption func(*Store)

// WithStrictFallback disables the cached-user fallback. A failed fetch then
// always surfaces as an error and the user has to sign in again.
func WithStrictFallback() StoreOption {
	return func(s *Store) { s.strict = true }
}

// WithResourcePolicies installs per-resource evaluation rules.
func WithResourcePolicies(p map[Resource]ResourcePolicy) StoreOption {
	return func(s *Store) {
		s.policies = make(map[Resource]ResourcePolicy, len(p))
		for k, v := range p {
			s.policies[k] = v
		}
	}
}

func WithMetrics(m *Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithUnauthorizedHandler is called after a 401 destroyed the session.
func WithUnauthorizedHandler(fn func(sessionID string)) StoreOption {
	return func(s *Store) { s.onUnauthorized = fn }
}

// Store owns the role and permission map of one console session. It is the
// only component that reads or writes that session's state.
type Store struct {
	sessionID      string
	sessions       SessionStore
	source         PermissionSource
	logger         logger.Logger
	traceID        logger.TraceIDFunc
	metrics        *Metrics
	policies       map[Resource]ResourcePolicy
	strict         bool
	onUnauthorized func(sessionID string)

	mu      sync.RWMutex
	snap    Snapshot
	issued  uint64 // generation of the most recently started refresh or seed
	closed  bool
	subs    map[uint64]func(Snapshot)
	nextSub uint64
}

func NewStore(sessionID string, sessions SessionStore, source PermissionSource, opts ...StoreOption) *Store {
	s := &Store{
		sessionID: sessionID,
		sessions:  sessions,
		source:    source,
		logger:    logger.NewNullLogger(),
		traceID:   defaultTraceID,
		subs:      make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap = Snapshot{loading: true, policies: s.policies}
	return s
}

func (s *Store) SessionID() string { return s.sessionID }

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe registers fn to receive every published snapshot. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Refresh loads permissions for the session and publishes the result. Only
// the most recently started refresh may publish; a slower, older one is
// dropped. Errors never escape: they end up in Snapshot.Err.
func (s *Store) Refresh(ctx context.Context) Snapshot {
	gen, ok := s.begin()
	if !ok {
		return s.Snapshot()
	}
	trace := s.traceID()
	s.logger.Debug("refreshing permissions", "session", s.sessionID, "generation", int(gen), "trace_id", trace)

	next, outcome := s.load(ctx, trace)
	next.generation = gen
	next.policies = s.policies
	if !s.publish(gen, next) {
		s.metrics.fetch(outcomeStale)
		s.logger.Debug("dropped stale permissions response", "session", s.sessionID, "generation", int(gen), "trace_id", trace)
		return s.Snapshot()
	}
	s.metrics.fetch(outcome)
	return next
}

// RefreshAsync starts a Refresh without waiting. Calls are not deduplicated.
func (s *Store) RefreshAsync(ctx context.Context) {
	go s.Refresh(ctx)
}

// Seed adopts the user returned by the login call without asking the
// backend again. Any refresh still in flight loses to the seed.
func (s *Store) Seed(u *User) Snapshot {
	s.mu.Lock()
	if s.closed {
		snap := s.snap
		s.mu.Unlock()
		return snap
	}
	s.issued++
	next := Snapshot{generation: s.issued, policies: s.policies}
	if u != nil {
		next.role = u.Role
		next.permissions = u.Permissions.Clone()
	}
	s.snap = next
	subs := s.subscribers()
	s.mu.Unlock()
	notify(subs, next)
	return next
}

// Close releases subscribers and makes every later response a no-op.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.subs = nil
	s.mu.Unlock()
}

func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Store) begin() (uint64, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, false
	}
	s.issued++
	gen := s.issued
	loading := s.snap
	loading.loading = true
	s.snap = loading
	subs := s.subscribers()
	s.mu.Unlock()
	notify(subs, loading)
	return gen, true
}

func (s *Store) publish(gen uint64, next Snapshot) bool {
	s.mu.Lock()
	if s.closed || gen != s.issued {
		s.mu.Unlock()
		return false
	}
	s.snap = next
	subs := s.subscribers()
	s.mu.Unlock()
	notify(subs, next)
	return true
}

// subscribers must be called with mu held.
func (s *Store) subscribers() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) load(ctx context.Context, trace string) (Snapshot, string) {
	sess, err := s.sessions.Get(ctx, s.sessionID)
	if err != nil {
		s.logger.Error("read session", "session", s.sessionID, "trace_id", trace, "error", err)
		return Snapshot{err: Wrap(CodeSessionStore, "read session", err)}, outcomeError
	}
	if sess == nil || sess.Token == "" {
		return Snapshot{}, outcomeUnauthenticated
	}

	user, err := s.source.FetchPermissions(ctx, sess.Token)
	if err == nil && user != nil {
		return Snapshot{role: user.Role, permissions: user.Permissions.Clone()}, outcomeOK
	}
	if err == nil {
		err = Wrap(CodeFetchFailed, "empty permissions response", nil)
	}

	if IsCode(err, CodeUnauthenticated) {
		s.expire(ctx, trace)
		return Snapshot{}, outcomeUnauthorized
	}
	return s.fallback(sess, err, trace)
}

func (s *Store) fallback(sess *Session, cause error, trace string) (Snapshot, string) {
	if !IsCode(cause, CodeFetchFailed) {
		cause = Wrap(CodeFetchFailed, "fetch user permissions", cause)
	}
	if s.strict || sess.User == nil {
		s.logger.Error("permissions unavailable", "session", s.sessionID, "trace_id", trace, "strict", s.strict, "error", cause)
		return Snapshot{err: cause}, outcomeError
	}

	cached := sess.User
	perms := cached.Permissions.Clone()
	if cached.Role == RoleAdmin {
		perms = FullAccessMap()
	} else if perms == nil {
		perms = PermissionMap{}
	}
	s.logger.Info("using cached user permissions", "session", s.sessionID, "trace_id", trace, "role", string(cached.Role), "error", cause)
	return Snapshot{role: cached.Role, permissions: perms}, outcomeFallback
}

func (s *Store) expire(ctx context.Context, trace string) {
	s.logger.Info("token rejected, clearing session", "session", s.sessionID, "trace_id", trace)
	if err := s.sessions.Delete(ctx, s.sessionID); err != nil {
		s.logger.Error("delete session", "session", s.sessionID, "trace_id", trace, "error", err)
	}
	if s.onUnauthorized != nil {
		s.onUnauthorized(s.sessionID)
	}
}

// ============================================================================
// EVALUATOR SURFACE
// ============================================================================

func (s *Store) Loading() bool             { return s.Snapshot().Loading() }
func (s *Store) Err() error                { return s.Snapshot().Err() }
func (s *Store) Role() Role                { return s.Snapshot().Role() }
func (s *Store) IsAdmin() bool             { return s.Snapshot().IsAdmin() }
func (s *Store) CanView(r Resource) bool   { return s.Snapshot().CanView(r) }
func (s *Store) CanManage(r Resource) bool { return s.Snapshot().CanManage(r) }
func (s *Store) Allows(p Permission) bool  { return s.Snapshot().Allows(p) }
func (s *Store) HasAnyPermission(p ...Permission) bool {
	return s.Snapshot().HasAnyPermission(p...)
}
func (s *Store) HasAllPermissions(p ...Permission) bool {
	return s.Snapshot().HasAllPermissions(p...)
}
