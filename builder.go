package goSession

import (
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/loop"
	"github.com/MrEthical07/goSession/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine].
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	backend    IdentityBackend
	consent    ConsentUI
	logger     *slog.Logger
	auditSink  AuditSink
	dispatcher loop.Dispatcher

	now       func() time.Time
	afterFunc func(time.Duration, func()) func() bool
	spawn     func(func())

	built bool
}

// New returns a builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBackend sets the identity backend. It is required.
func (b *Builder) WithBackend(backend IdentityBackend) *Builder {
	b.backend = backend
	return b
}

// WithConsent sets the consent step used by federated sign-in. Without one,
// SignInWithFederatedProvider fails with ErrProviderUnavailable.
func (b *Builder) WithConsent(consent ConsentUI) *Builder {
	b.consent = consent
	return b
}

// WithRedis enables the persisted session copy used by Restore. It is optional.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger.
//
// WithLogger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go. It has no effect unless Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithDispatcher runs observers and backend completions on d instead of an
// engine-owned loop. The engine does not close d.
func (b *Builder) WithDispatcher(d loop.Dispatcher) *Builder {
	b.dispatcher = d
	return b
}

// WithSessionCache toggles the persisted session copy.
func (b *Builder) WithSessionCache(enabled bool) *Builder {
	b.config.Session.CacheEnabled = enabled
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the sign-in latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) withClock(now func() time.Time, afterFunc func(time.Duration, func()) func() bool) *Builder {
	b.now = now
	b.afterFunc = afterFunc
	return b
}

func (b *Builder) withSpawn(spawn func(func())) *Builder {
	b.spawn = spawn
	return b
}

// Build validates the configuration and returns the engine. A builder can be built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.backend == nil {
		return nil, errors.New("identity backend required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default().With("component", "gosession")
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:    cfg,
		backend:   b.backend,
		consent:   b.consent,
		logger:    logger,
		now:       now,
		afterFunc: b.afterFunc,
		spawn:     b.spawn,
		phones:    map[*PhoneVerification]struct{}{},
		guards:    map[*AuthGuard]struct{}{},
	}

	// -------- DISPATCHER --------
	if b.dispatcher != nil {
		engine.dispatcher = b.dispatcher
	} else {
		engine.ownedLoop = loop.New()
		engine.dispatcher = engine.ownedLoop
	}

	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	// -------- SESSION STORE --------
	var cache *session.Store
	if b.redis != nil && cfg.Session.CacheEnabled {
		cache = session.NewStore(b.redis, cfg.Backend.RedisPrefix)
	}
	engine.sessions = newSessionStore(b.backend, sessionStoreOptions{
		dispatcher: engine.dispatcher,
		cache:      cache,
		cacheCfg:   cfg.Session,
		logger:     logger,
		metrics:    engine.metrics,
		emitAudit:  engine.emitAudit,
		now:        now,
	})

	b.built = true

	logger.Debug("engine built",
		"federated", cfg.Federated.Enabled && b.consent != nil,
		"session_cache", cache != nil,
		"audit", cfg.Audit.Enabled,
		"metrics", cfg.Metrics.Enabled,
	)
	return engine, nil
}
