package goSession

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/loop"
)

// Engine is the process-wide sign-in runtime: the credential providers, the session
// store and the guards bound to it. Build one with [New] at start-up and Close it at
// shutdown.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config     Config
	backend    IdentityBackend
	consent    ConsentUI
	dispatcher loop.Dispatcher
	ownedLoop  *loop.Loop
	sessions   *SessionStore
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	logger     *slog.Logger

	now       func() time.Time
	afterFunc func(time.Duration, func()) func() bool
	spawn     func(func())

	mu     sync.Mutex
	phones map[*PhoneVerification]struct{}
	guards map[*AuthGuard]struct{}
	closed atomic.Bool
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return defaultConfig()
	}
	return cloneConfig(e.config)
}

// Sessions returns the session store.
func (e *Engine) Sessions() *SessionStore {
	if e == nil {
		return nil
	}
	return e.sessions
}

// CurrentSession is shorthand for Sessions().Current().
func (e *Engine) CurrentSession() (Session, bool) {
	return e.Sessions().Current()
}

// SignOut clears the current session. See [SessionStore.SignOut].
func (e *Engine) SignOut(ctx context.Context) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	return e.sessions.SignOut(ctx)
}

// Restore installs the backend's current identity as the session, typically once at
// start-up. It reports whether a session was restored.
func (e *Engine) Restore(ctx context.Context) (bool, error) {
	if e == nil || e.sessions == nil {
		return false, ErrEngineNotReady
	}
	if e.closed.Load() {
		return false, ErrEngineClosed
	}
	_, ok, err := e.sessions.Restore(ctx)
	return ok, err
}

// Guard binds a new [AuthGuard] to router. The guard stays active until it or the engine
// is closed.
func (e *Engine) Guard(router Router) (*AuthGuard, error) {
	if e == nil || e.sessions == nil || e.dispatcher == nil {
		return nil, ErrEngineNotReady
	}
	if router == nil {
		return nil, ErrInvalidInput
	}
	if e.closed.Load() {
		return nil, ErrGuardClosed
	}

	g := newAuthGuard(e.config.Guard, e.sessions, router, e.dispatcher, e.logger, e.metrics)
	g.onClose = func(g *AuthGuard) {
		e.mu.Lock()
		delete(e.guards, g)
		e.mu.Unlock()
	}

	e.mu.Lock()
	if e.closed.Load() {
		e.mu.Unlock()
		g.Close()
		return nil, ErrGuardClosed
	}
	e.guards[g] = struct{}{}
	e.mu.Unlock()
	return g, nil
}

// Close tears the engine down: open phone flows and guards are closed, the session
// store stops notifying, the audit dispatcher drains and an engine-owned loop exits.
// Close is idempotent.
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}

	e.mu.Lock()
	phones := make([]*PhoneVerification, 0, len(e.phones))
	for p := range e.phones {
		phones = append(phones, p)
	}
	guards := make([]*AuthGuard, 0, len(e.guards))
	for g := range e.guards {
		guards = append(guards, g)
	}
	e.mu.Unlock()

	for _, p := range phones {
		p.Close()
	}
	for _, g := range guards {
		g.Close()
	}
	if e.sessions != nil {
		e.sessions.Close()
	}
	if e.ownedLoop != nil {
		e.ownedLoop.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
	e.logger.Debug("engine closed")
}

func (e *Engine) ready() bool {
	return e != nil && e.backend != nil && e.sessions != nil && e.dispatcher != nil
}

// observeLatency records the time since start when latency histograms are enabled.
func (e *Engine) observeLatency(start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(MetricSignInLatency, e.now().Sub(start))
}

func signedIn(s Session) SignInResult {
	return SignInResult{Outcome: OutcomeSignedIn, Session: s}
}
