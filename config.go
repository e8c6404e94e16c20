package goSession

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Config holds every tunable of the engine and the reference backend.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Password  PasswordConfig
	Phone     PhoneConfig
	Federated FederatedConfig
	Guard     GuardConfig
	Session   SessionConfig
	Backend   BackendConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls the registration policy and the Argon2id parameters used by
// backends that store secrets.
type PasswordConfig struct {
	MinSecretLength int    `env:"GOSESSION_PASSWORD_MIN_LENGTH"`
	Memory          uint32 `env:"GOSESSION_PASSWORD_ARGON2_MEMORY_KB"`
	Time            uint32 `env:"GOSESSION_PASSWORD_ARGON2_TIME"`
	Parallelism     uint8  `env:"GOSESSION_PASSWORD_ARGON2_PARALLELISM"`
	SaltLength      uint32 `env:"GOSESSION_PASSWORD_ARGON2_SALT_LENGTH"`
	KeyLength       uint32 `env:"GOSESSION_PASSWORD_ARGON2_KEY_LENGTH"`
}

/*
====================================
PHONE CONFIG
====================================
*/

// PhoneConfig controls phone number normalization, the send timeout and the code
// policy of the reference backend.
type PhoneConfig struct {
	DefaultCountryCode string        `env:"GOSESSION_PHONE_COUNTRY_CODE"`
	CodeTimeout        time.Duration `env:"GOSESSION_PHONE_CODE_TIMEOUT"`
	CodeTTL            time.Duration `env:"GOSESSION_PHONE_CODE_TTL"`
	CodeDigits         int           `env:"GOSESSION_PHONE_CODE_DIGITS"`
	MaxConfirmAttempts int           `env:"GOSESSION_PHONE_MAX_CONFIRM_ATTEMPTS"`
	ResendLimit        int           `env:"GOSESSION_PHONE_RESEND_LIMIT"`
	ResendWindow       time.Duration `env:"GOSESSION_PHONE_RESEND_WINDOW"`
}

/*
====================================
FEDERATED CONFIG
====================================
*/

// FederatedConfig controls the external consent provider.
type FederatedConfig struct {
	Enabled      bool     `env:"GOSESSION_FEDERATED_ENABLED"`
	ClientID     string   `env:"GOSESSION_FEDERATED_CLIENT_ID"`
	ClientSecret string   `env:"GOSESSION_FEDERATED_CLIENT_SECRET"`
	RedirectURL  string   `env:"GOSESSION_FEDERATED_REDIRECT_URL"`
	Scopes       []string `env:"GOSESSION_FEDERATED_SCOPES" envSeparator:","`
}

/*
====================================
GUARD CONFIG
====================================
*/

// GuardConfig describes the route areas the guard enforces. A location is protected
// when it equals ProtectedPrefix or lies below it. PublicLocations are never
// redirected. Every other location belongs to the unauthenticated area.
type GuardConfig struct {
	ProtectedPrefix  string   `env:"GOSESSION_GUARD_PROTECTED_PREFIX"`
	ProtectedDefault string   `env:"GOSESSION_GUARD_PROTECTED_DEFAULT"`
	LoginLocation    string   `env:"GOSESSION_GUARD_LOGIN_LOCATION"`
	PublicLocations  []string `env:"GOSESSION_GUARD_PUBLIC_LOCATIONS" envSeparator:","`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the persisted copy of the last established session.
type SessionConfig struct {
	CacheEnabled bool          `env:"GOSESSION_SESSION_CACHE_ENABLED"`
	CacheKey     string        `env:"GOSESSION_SESSION_CACHE_KEY"`
	CacheTTL     time.Duration `env:"GOSESSION_SESSION_CACHE_TTL"`
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig controls the Redis-backed reference identity backend.
type BackendConfig struct {
	RedisAddr     string        `env:"GOSESSION_REDIS_ADDR"`
	RedisPrefix   string        `env:"GOSESSION_REDIS_PREFIX"`
	CredentialTTL time.Duration `env:"GOSESSION_CREDENTIAL_TTL"`
	ResetTTL      time.Duration `env:"GOSESSION_RESET_TTL"`
	ResetURL      string        `env:"GOSESSION_RESET_URL"`
	SigningKey    string        `env:"GOSESSION_SIGNING_KEY"`
	Issuer        string        `env:"GOSESSION_ISSUER"`
}

/*
====================================
AUDIT / METRICS / LOG CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"GOSESSION_AUDIT_ENABLED"`
	BufferSize int  `env:"GOSESSION_AUDIT_BUFFER_SIZE"`
	DropIfFull bool `env:"GOSESSION_AUDIT_DROP_IF_FULL"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"GOSESSION_METRICS_ENABLED"`
	EnableLatencyHistograms bool `env:"GOSESSION_METRICS_LATENCY"`
}

// LogConfig controls the default logger built by LoadConfigFromEnv callers.
type LogConfig struct {
	Level string `env:"GOSESSION_LOG_LEVEL"`
}

// SlogLevel parses Level. Unknown values fall back to Info.
func (c LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Level))); err != nil {
		return slog.LevelInfo
	}
	return level
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			MinSecretLength: 6,
			Memory:          65536,
			Time:            3,
			Parallelism:     2,
			SaltLength:      16,
			KeyLength:       32,
		},
		Phone: PhoneConfig{
			DefaultCountryCode: "+91",
			CodeTimeout:        60 * time.Second,
			CodeTTL:            5 * time.Minute,
			CodeDigits:         6,
			MaxConfirmAttempts: 5,
			ResendLimit:        5,
			ResendWindow:       15 * time.Minute,
		},
		Federated: FederatedConfig{
			Enabled: true,
			Scopes:  []string{"openid", "email", "profile"},
		},
		Guard: GuardConfig{
			ProtectedPrefix:  "/(tabs)",
			ProtectedDefault: "/(tabs)",
			LoginLocation:    "/login",
		},
		Session: SessionConfig{
			CacheEnabled: true,
			CacheKey:     "current",
			CacheTTL:     30 * 24 * time.Hour,
		},
		Backend: BackendConfig{
			RedisPrefix:   "gs",
			CredentialTTL: 2 * time.Minute,
			ResetTTL:      15 * time.Minute,
			ResetURL:      "http://localhost:8080/reset",
			Issuer:        "gosession",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Federated.Scopes = cloneStrings(cfg.Federated.Scopes)
	out.Guard.PublicLocations = cloneStrings(cfg.Guard.PublicLocations)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	// Password
	if c.Password.MinSecretLength < 1 {
		return errors.New("Password MinSecretLength must be >= 1")
	}
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Phone
	if c.Phone.DefaultCountryCode == "" {
		return errors.New("Phone DefaultCountryCode must be set")
	}
	for _, r := range strings.TrimPrefix(c.Phone.DefaultCountryCode, "+") {
		if r < '0' || r > '9' {
			return errors.New("Phone DefaultCountryCode must be digits with an optional leading '+'")
		}
	}
	if c.Phone.CodeTimeout <= 0 {
		return errors.New("Phone CodeTimeout must be > 0")
	}
	if c.Phone.CodeTTL <= 0 {
		return errors.New("Phone CodeTTL must be > 0")
	}
	if c.Phone.CodeDigits < 4 || c.Phone.CodeDigits > 10 {
		return errors.New("Phone CodeDigits must be between 4 and 10")
	}
	if c.Phone.MaxConfirmAttempts < 1 {
		return errors.New("Phone MaxConfirmAttempts must be >= 1")
	}
	if c.Phone.ResendLimit < 1 {
		return errors.New("Phone ResendLimit must be >= 1")
	}
	if c.Phone.ResendWindow <= 0 {
		return errors.New("Phone ResendWindow must be > 0")
	}

	// Guard
	if !strings.HasPrefix(c.Guard.ProtectedPrefix, "/") {
		return errors.New("Guard ProtectedPrefix must start with '/'")
	}
	if !strings.HasPrefix(c.Guard.ProtectedDefault, "/") || !c.Guard.isProtected(c.Guard.ProtectedDefault) {
		return errors.New("Guard ProtectedDefault must lie inside ProtectedPrefix")
	}
	if !strings.HasPrefix(c.Guard.LoginLocation, "/") || c.Guard.isProtected(c.Guard.LoginLocation) {
		return errors.New("Guard LoginLocation must be an absolute location outside ProtectedPrefix")
	}
	for _, loc := range c.Guard.PublicLocations {
		if loc == c.Guard.LoginLocation {
			return errors.New("Guard LoginLocation must not be public")
		}
	}

	// Session
	if c.Session.CacheEnabled {
		if c.Session.CacheKey == "" {
			return errors.New("Session CacheKey must be set when CacheEnabled is true")
		}
		if c.Session.CacheTTL <= 0 {
			return errors.New("Session CacheTTL must be > 0 when CacheEnabled is true")
		}
	}

	// Backend
	if c.Backend.RedisPrefix == "" {
		return errors.New("Backend RedisPrefix must be set")
	}
	if c.Backend.CredentialTTL <= 0 {
		return errors.New("Backend CredentialTTL must be > 0")
	}
	if c.Backend.ResetTTL <= 0 {
		return errors.New("Backend ResetTTL must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
