package goSession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/loop"
	"github.com/MrEthical07/goSession/session"
)

const (
	auditEventSessionEstablished = "session_established"
	auditEventSessionRejected    = "session_rejected"
	auditEventSessionRestored    = "session_restored"
	auditEventSignOut            = "sign_out"
	auditEventSessionRevoked     = "session_revoked"
)

type sessionObserver struct {
	fn     func(*Session)
	active atomic.Bool
}

type sessionStoreOptions struct {
	dispatcher loop.Dispatcher
	cache      *session.Store
	cacheCfg   SessionConfig
	logger     *slog.Logger
	metrics    *Metrics
	emitAudit  func(ctx context.Context, provider ProviderKind, event string, success bool, userID string, err error, metadata func() map[string]string)
	now        func() time.Time
}

// SessionStore is the single owner of the current [Session].
//
// Observers run on the engine dispatcher in registration order. Each receives the
// present state once on Subscribe and then every later change. A nil *Session means
// signed out. Observers never see a partially installed session: the install and the
// notification are one step under the store lock.
type SessionStore struct {
	backend IdentityBackend
	opts    sessionStoreOptions

	mu        sync.Mutex
	current   *Session
	observers []*sessionObserver
	closed    bool
	unwatch   func()
}

func newSessionStore(backend IdentityBackend, opts sessionStoreOptions) *SessionStore {
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.emitAudit == nil {
		opts.emitAudit = func(context.Context, ProviderKind, string, bool, string, error, func() map[string]string) {}
	}

	s := &SessionStore{
		backend: backend,
		opts:    opts,
	}
	if backend != nil {
		s.unwatch = backend.OnIdentityChanged(s.onIdentityChanged)
	}
	return s
}

// Establish exchanges cred for a session and installs it, replacing any prior one. On
// failure the current session is left untouched.
//
// When the store closes while the exchange is in flight, the backend has already
// consumed cred and holds the identity, but nothing is installed locally and
// ErrEngineClosed is returned. A later Restore picks that identity up.
func (s *SessionStore) Establish(ctx context.Context, cred Credential) (Session, error) {
	if s == nil || s.backend == nil {
		return Session{}, ErrEngineNotReady
	}
	if s.isClosed() {
		return Session{}, ErrEngineClosed
	}
	if cred.Empty() {
		s.opts.metrics.Inc(MetricSessionEstablishFailure)
		s.opts.emitAudit(ctx, cred.Provider, auditEventSessionRejected, false, "", ErrCredentialExchangeFailed, nil)
		return Session{}, ErrCredentialExchangeFailed
	}

	ident, err := s.backend.EstablishSession(ctx, cred)
	if err != nil {
		mapped := mapExchangeError(err)
		s.opts.metrics.Inc(MetricSessionEstablishFailure)
		s.opts.emitAudit(ctx, cred.Provider, auditEventSessionRejected, false, "", mapped, nil)
		return Session{}, mapped
	}
	if ident.UserID == "" {
		s.opts.metrics.Inc(MetricSessionEstablishFailure)
		s.opts.emitAudit(ctx, cred.Provider, auditEventSessionRejected, false, "", ErrCredentialExchangeFailed, nil)
		return Session{}, ErrCredentialExchangeFailed
	}

	provider := cred.Provider
	if provider == ProviderUnknown {
		provider = ident.Provider
	}
	sess := Session{
		Provider:     provider,
		UserID:       ident.UserID,
		DisplayLabel: ident.DisplayLabel(),
		CreatedAt:    s.opts.now().UTC(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.opts.logger.Warn("store closed during credential exchange; session left to restore", "provider", sess.Provider, "user_id", sess.UserID)
		return Session{}, ErrEngineClosed
	}
	s.installLocked(&sess)
	s.mu.Unlock()

	s.opts.metrics.Inc(MetricSessionEstablished)
	s.opts.logger.Info("session established", "provider", sess.Provider, "user_id", sess.UserID)
	s.opts.emitAudit(ctx, sess.Provider, auditEventSessionEstablished, true, sess.UserID, nil, nil)
	s.persist(ctx, sess)
	return sess, nil
}

// Current returns the present session.
func (s *SessionStore) Current() (Session, bool) {
	if s == nil {
		return Session{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Subscribe registers fn. The returned disposer stops delivery and may be called any
// number of times.
func (s *SessionStore) Subscribe(fn func(*Session)) func() {
	if s == nil || fn == nil || s.opts.dispatcher == nil {
		return func() {}
	}
	o := &sessionObserver{fn: fn}
	o.active.Store(true)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}
	}
	s.observers = append(s.observers, o)
	snap := cloneSession(s.current)
	s.opts.dispatcher.Post(func() {
		if o.active.Load() {
			o.fn(snap)
		}
	})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.active.Store(false)
			s.mu.Lock()
			for i, existing := range s.observers {
				if existing == o {
					s.observers = append(s.observers[:i], s.observers[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
		})
	}
}

// SignOut clears the session and then signs the backend out. The session is cleared even
// when the backend call fails; that error is still returned.
func (s *SessionStore) SignOut(ctx context.Context) error {
	if s == nil || s.backend == nil {
		return ErrEngineNotReady
	}

	s.mu.Lock()
	prev := s.current
	if prev != nil {
		s.installLocked(nil)
	}
	s.mu.Unlock()

	err := s.backend.SignOut(ctx)
	if err != nil {
		err = MapBackendError(err)
		s.opts.logger.Warn("backend sign-out failed", "error", err)
	}

	if prev == nil {
		return err
	}

	s.opts.metrics.Inc(MetricSessionCleared)
	s.opts.logger.Info("session cleared", "user_id", prev.UserID)
	s.opts.emitAudit(ctx, prev.Provider, auditEventSignOut, err == nil, prev.UserID, err, nil)
	s.forget(ctx, prev.UserID)
	return err
}

// Restore installs the backend's current identity, if any, without a credential
// exchange. CreatedAt comes from the persisted copy when it belongs to the same user.
func (s *SessionStore) Restore(ctx context.Context) (Session, bool, error) {
	if s == nil || s.backend == nil {
		return Session{}, false, ErrEngineNotReady
	}
	if s.isClosed() {
		return Session{}, false, ErrEngineClosed
	}

	ident, err := s.backend.CurrentIdentity(ctx)
	if err != nil {
		return Session{}, false, MapBackendError(err)
	}
	if ident == nil || ident.UserID == "" {
		s.forget(ctx, "")
		return Session{}, false, nil
	}

	sess := Session{
		Provider:     ident.Provider,
		UserID:       ident.UserID,
		DisplayLabel: ident.DisplayLabel(),
		CreatedAt:    s.opts.now().UTC(),
	}
	if cached, ok := s.loadCached(ctx); ok && cached.UserID == sess.UserID {
		sess.CreatedAt = cached.CreatedAt
		if sess.Provider == ProviderUnknown {
			sess.Provider = cached.Provider
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Session{}, false, ErrEngineClosed
	}
	s.installLocked(&sess)
	s.mu.Unlock()

	s.opts.metrics.Inc(MetricSessionRestored)
	s.opts.logger.Info("session restored", "provider", sess.Provider, "user_id", sess.UserID)
	s.opts.emitAudit(ctx, sess.Provider, auditEventSessionRestored, true, sess.UserID, nil, nil)
	s.persist(ctx, sess)
	return sess, true, nil
}

// Close detaches every observer and stops watching the backend. The current session is
// kept so Current still answers after shutdown.
func (s *SessionStore) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, o := range s.observers {
		o.active.Store(false)
	}
	s.observers = nil
	unwatch := s.unwatch
	s.unwatch = nil
	s.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
}

// onIdentityChanged reacts to backend changes. Only a transition to "no identity"
// matters here: establishing and restoring go through the store itself.
func (s *SessionStore) onIdentityChanged(ident *Identity) {
	if ident != nil && ident.UserID != "" {
		return
	}

	s.mu.Lock()
	if s.closed || s.current == nil {
		s.mu.Unlock()
		return
	}
	prev := s.current
	s.installLocked(nil)
	s.mu.Unlock()

	ctx := context.Background()
	s.opts.metrics.Inc(MetricSessionRevoked)
	s.opts.logger.Info("session revoked by backend", "user_id", prev.UserID)
	s.opts.emitAudit(ctx, prev.Provider, auditEventSessionRevoked, true, prev.UserID, nil, nil)
	s.forget(ctx, prev.UserID)
}

func (s *SessionStore) installLocked(next *Session) {
	s.current = next
	if len(s.observers) == 0 || s.opts.dispatcher == nil {
		return
	}
	snap := cloneSession(next)
	observers := append([]*sessionObserver(nil), s.observers...)
	s.opts.dispatcher.Post(func() {
		for _, o := range observers {
			if o.active.Load() {
				o.fn(cloneSession(snap))
			}
		}
	})
}

func (s *SessionStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *SessionStore) persist(ctx context.Context, sess Session) {
	if s.opts.cache == nil || !s.opts.cacheCfg.CacheEnabled {
		return
	}
	if err := s.opts.cache.Save(ctx, s.opts.cacheCfg.CacheKey, sess, s.opts.cacheCfg.CacheTTL); err != nil {
		s.opts.logger.Warn("session cache save failed", "error", err)
	}
}

func (s *SessionStore) forget(ctx context.Context, userID string) {
	if s.opts.cache == nil || !s.opts.cacheCfg.CacheEnabled {
		return
	}
	if _, err := s.opts.cache.Delete(ctx, s.opts.cacheCfg.CacheKey, userID); err != nil {
		s.opts.logger.Warn("session cache delete failed", "error", err)
	}
}

func (s *SessionStore) loadCached(ctx context.Context) (Session, bool) {
	if s.opts.cache == nil || !s.opts.cacheCfg.CacheEnabled {
		return Session{}, false
	}
	sess, err := s.opts.cache.Load(ctx, s.opts.cacheCfg.CacheKey)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			s.opts.logger.Warn("session cache load failed", "error", err)
		}
		return Session{}, false
	}
	return sess, true
}

// mapExchangeError keeps transport and cancellation errors and reports every refusal
// as ErrCredentialExchangeFailed.
func mapExchangeError(err error) error {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrCredentialExchangeFailed):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrCredentialExchangeFailed, err)
	}
}

func cloneSession(s *Session) *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
