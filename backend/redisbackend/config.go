package redisbackend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
)

// Config controls a Backend. Zero durations and limits fall back to the values of
// goSession.DefaultConfig.
type Config struct {
	Prefix        string
	CredentialTTL time.Duration
	SigningKey    []byte
	Issuer        string

	Password        password.Config
	MinSecretLength int

	CodeTTL            time.Duration
	CodeDigits         int
	MaxConfirmAttempts int
	ResendLimit        int
	ResendWindow       time.Duration

	// TestNumbers maps E.164 numbers to fixed codes. Sending to one of them skips the
	// SMS sender and completes auto verification straight away.
	TestNumbers map[string]string

	ResetTTL time.Duration
	ResetURL string

	// ExternalVerifier checks federated ID tokens. Without one, ExchangeExternalToken
	// reports the provider as unavailable.
	ExternalVerifier IdentityTokenVerifier
	Mailer           Mailer
	SMS              SMSSender

	Logger *slog.Logger
	Now    func() time.Time
	// Spawn runs asynchronous phone deliveries. Defaults to a new goroutine.
	Spawn func(func())
}

// FromConfig derives a backend Config from the engine configuration.
func FromConfig(cfg goSession.Config) Config {
	return Config{
		Prefix:        cfg.Backend.RedisPrefix,
		CredentialTTL: cfg.Backend.CredentialTTL,
		SigningKey:    []byte(cfg.Backend.SigningKey),
		Issuer:        cfg.Backend.Issuer,
		Password: password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
		MinSecretLength:    cfg.Password.MinSecretLength,
		CodeTTL:            cfg.Phone.CodeTTL,
		CodeDigits:         cfg.Phone.CodeDigits,
		MaxConfirmAttempts: cfg.Phone.MaxConfirmAttempts,
		ResendLimit:        cfg.Phone.ResendLimit,
		ResendWindow:       cfg.Phone.ResendWindow,
		ResetTTL:           cfg.Backend.ResetTTL,
		ResetURL:           cfg.Backend.ResetURL,
	}
}

func (c *Config) applyDefaults() {
	def := goSession.DefaultConfig()
	if c.Prefix == "" {
		c.Prefix = def.Backend.RedisPrefix
	}
	if c.CredentialTTL <= 0 {
		c.CredentialTTL = def.Backend.CredentialTTL
	}
	if c.Issuer == "" {
		c.Issuer = def.Backend.Issuer
	}
	if c.Password == (password.Config{}) {
		c.Password = password.Config{
			Memory:      def.Password.Memory,
			Time:        def.Password.Time,
			Parallelism: def.Password.Parallelism,
			SaltLength:  def.Password.SaltLength,
			KeyLength:   def.Password.KeyLength,
		}
	}
	if c.MinSecretLength <= 0 {
		c.MinSecretLength = def.Password.MinSecretLength
	}
	if c.CodeTTL <= 0 {
		c.CodeTTL = def.Phone.CodeTTL
	}
	if c.CodeDigits <= 0 {
		c.CodeDigits = def.Phone.CodeDigits
	}
	if c.MaxConfirmAttempts <= 0 {
		c.MaxConfirmAttempts = def.Phone.MaxConfirmAttempts
	}
	if c.ResendWindow <= 0 {
		c.ResendWindow = def.Phone.ResendWindow
	}
	if c.ResetTTL <= 0 {
		c.ResetTTL = def.Backend.ResetTTL
	}
	if c.ResetURL == "" {
		c.ResetURL = def.Backend.ResetURL
	}
	if c.Mailer == nil {
		c.Mailer = ConsoleMailer{W: os.Stdout}
	}
	if c.SMS == nil {
		c.SMS = ConsoleSMS{W: os.Stdout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Spawn == nil {
		c.Spawn = func(fn func()) { go fn() }
	}
}

// IdentityTokenVerifier verifies an external ID token. *jwt.Manager implements it.
type IdentityTokenVerifier interface {
	ParseIdentity(token string) (*jwt.IdentityClaims, error)
}

// ResetMail is one password reset message.
type ResetMail struct {
	To        string
	Link      string
	ExpiresAt time.Time
}

// Mailer delivers password reset links.
type Mailer interface {
	SendReset(ctx context.Context, mail ResetMail) error
}

// SMSSender delivers phone verification codes.
type SMSSender interface {
	SendCode(ctx context.Context, number, code string) error
}

// ConsoleMailer writes reset links to W.
type ConsoleMailer struct {
	W io.Writer
}

func (m ConsoleMailer) SendReset(_ context.Context, mail ResetMail) error {
	_, err := fmt.Fprintf(m.W, "[mail] to=%s reset link: %s (expires %s)\n", mail.To, mail.Link, mail.ExpiresAt.Format(time.RFC3339))
	return err
}

// ConsoleSMS writes verification codes to W.
type ConsoleSMS struct {
	W io.Writer
}

func (s ConsoleSMS) SendCode(_ context.Context, number, code string) error {
	_, err := fmt.Fprintf(s.W, "[sms] to=%s code: %s\n", number, code)
	return err
}
