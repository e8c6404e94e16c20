package goSession

import (
	"log/slog"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "min secret length one",
			mutate:    func(c *Config) { c.Password.MinSecretLength = 1 },
			wantValid: true,
		},
		{
			name:      "min secret length zero",
			mutate:    func(c *Config) { c.Password.MinSecretLength = 0 },
			wantValid: false,
		},
		{
			name:      "argon2 memory too low",
			mutate:    func(c *Config) { c.Password.Memory = 1024 },
			wantValid: false,
		},
		{
			name:      "country code without plus",
			mutate:    func(c *Config) { c.Phone.DefaultCountryCode = "44" },
			wantValid: true,
		},
		{
			name:      "country code with letters",
			mutate:    func(c *Config) { c.Phone.DefaultCountryCode = "+9a" },
			wantValid: false,
		},
		{
			name:      "zero code timeout",
			mutate:    func(c *Config) { c.Phone.CodeTimeout = 0 },
			wantValid: false,
		},
		{
			name:      "code digits too short",
			mutate:    func(c *Config) { c.Phone.CodeDigits = 3 },
			wantValid: false,
		},
		{
			name:      "protected default outside prefix",
			mutate:    func(c *Config) { c.Guard.ProtectedDefault = "/home" },
			wantValid: false,
		},
		{
			name: "protected default below prefix",
			mutate: func(c *Config) {
				c.Guard.ProtectedDefault = "/(tabs)/home"
			},
			wantValid: true,
		},
		{
			name:      "login inside protected area",
			mutate:    func(c *Config) { c.Guard.LoginLocation = "/(tabs)/login" },
			wantValid: false,
		},
		{
			name:      "login listed as public",
			mutate:    func(c *Config) { c.Guard.PublicLocations = []string{"/login"} },
			wantValid: false,
		},
		{
			name: "cache enabled without key",
			mutate: func(c *Config) {
				c.Session.CacheEnabled = true
				c.Session.CacheKey = ""
			},
			wantValid: false,
		},
		{
			name: "cache disabled without key",
			mutate: func(c *Config) {
				c.Session.CacheEnabled = false
				c.Session.CacheKey = ""
			},
			wantValid: true,
		},
		{
			name:      "credential ttl zero",
			mutate:    func(c *Config) { c.Backend.CredentialTTL = 0 },
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "latency without metrics",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: false,
		},
		{
			name: "resend window",
			mutate: func(c *Config) {
				c.Phone.ResendWindow = 30 * time.Second
			},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEngineConfigReturnsCopy(t *testing.T) {
	te := newTestEngine(t, func(b *Builder) {
		cfg := DefaultConfig()
		cfg.Guard.PublicLocations = []string{"/reset"}
		b.WithConfig(cfg)
	})

	cfg := te.Config()
	cfg.Guard.PublicLocations[0] = "/mutated"

	if got := te.Config().Guard.PublicLocations[0]; got != "/reset" {
		t.Fatalf("expected engine config to be unaffected, got %q", got)
	}
}

func TestLogConfigSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: " WARN ", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "nonsense", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := (LogConfig{Level: tt.in}).SlogLevel(); got != tt.want {
			t.Fatalf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
