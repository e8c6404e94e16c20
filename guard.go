package goSession

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/goSession/loop"
)

// SessionState is what the guard knows about the session. Known stays false until the
// first notification from the [SessionStore] arrives.
type SessionState struct {
	Known   bool
	Session *Session
}

func (c GuardConfig) isProtected(location string) bool {
	if c.ProtectedPrefix == "" {
		return false
	}
	return location == c.ProtectedPrefix || strings.HasPrefix(location, c.ProtectedPrefix+"/")
}

func (c GuardConfig) isPublic(location string) bool {
	for _, loc := range c.PublicLocations {
		if loc == location {
			return true
		}
	}
	return false
}

// Decide returns where the guard should send the user, if anywhere.
//
//   - Unknown session state: no action.
//   - Signed in, outside the protected area and not public: ProtectedDefault.
//   - Signed out, inside the protected area: LoginLocation.
//
// A target equal to location is never returned.
func Decide(cfg GuardConfig, state SessionState, location string) (string, bool) {
	if !state.Known || location == "" {
		return "", false
	}

	var target string
	switch {
	case state.Session != nil && !cfg.isProtected(location) && !cfg.isPublic(location):
		target = cfg.ProtectedDefault
	case state.Session == nil && cfg.isProtected(location):
		target = cfg.LoginLocation
	default:
		return "", false
	}

	if target == "" || target == location {
		return "", false
	}
	return target, true
}

type guardDecision struct {
	signedIn bool
	location string
	target   string
}

// AuthGuard keeps the router consistent with the session. It reacts to session and
// location changes on the engine dispatcher and issues at most one redirect per
// distinct (session, location) pair.
type AuthGuard struct {
	cfg        GuardConfig
	router     Router
	dispatcher loop.Dispatcher
	logger     *slog.Logger
	metrics    *Metrics
	onClose    func(*AuthGuard)

	// owned by the dispatcher
	state    SessionState
	location string
	last     guardDecision
	hasLast  bool

	published    atomic.Pointer[SessionState]
	closed       atomic.Bool
	closeOnce    sync.Once
	unsubSession func()
	unsubRouter  func()
}

func newAuthGuard(cfg GuardConfig, store *SessionStore, router Router, dispatcher loop.Dispatcher, logger *slog.Logger, metrics *Metrics) *AuthGuard {
	if logger == nil {
		logger = slog.Default()
	}
	g := &AuthGuard{
		cfg:        cfg,
		router:     router,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}

	g.unsubRouter = router.Subscribe(func(location string) {
		g.dispatcher.Post(func() { g.onLocation(location) })
	})
	g.dispatcher.Post(func() { g.onLocation(router.Location()) })
	g.unsubSession = store.Subscribe(g.onSession)
	return g
}

// State returns the session state the guard last observed. It is safe to call from any
// goroutine; the value may trail changes still queued on the dispatcher.
func (g *AuthGuard) State() SessionState {
	if g == nil {
		return SessionState{}
	}
	if st := g.published.Load(); st != nil {
		return *st
	}
	return SessionState{}
}

// Close stops both subscriptions. It is safe to call more than once.
func (g *AuthGuard) Close() {
	if g == nil {
		return
	}
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		if g.unsubSession != nil {
			g.unsubSession()
		}
		if g.unsubRouter != nil {
			g.unsubRouter()
		}
		if g.onClose != nil {
			g.onClose(g)
		}
	})
}

func (g *AuthGuard) onSession(s *Session) {
	if g.closed.Load() {
		return
	}
	g.state = SessionState{Known: true, Session: s}
	st := g.state
	g.published.Store(&st)
	g.evaluate()
}

func (g *AuthGuard) onLocation(location string) {
	if g.closed.Load() {
		return
	}
	g.location = location
	g.evaluate()
}

func (g *AuthGuard) evaluate() {
	target, ok := Decide(g.cfg, g.state, g.location)
	if !ok {
		g.hasLast = false
		return
	}

	d := guardDecision{
		signedIn: g.state.Session != nil,
		location: g.location,
		target:   target,
	}
	if g.hasLast && g.last == d {
		return
	}
	g.last = d
	g.hasLast = true

	if err := g.router.Replace(target); err != nil {
		g.logger.Warn("guard redirect failed", "from", g.location, "to", target, "error", err)
		return
	}
	g.metrics.Inc(MetricGuardRedirect)
	g.logger.Debug("guard redirect", "from", d.location, "to", target, "signed_in", d.signedIn)
}
