package oauth2consent

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Prompt shows the provider's authorization URL to the user and returns what the
// provider redirected back with: either the full redirect URL or the bare code. A user
// who closes the prompt returns an error wrapping goSession.ErrCancelled.
type Prompt interface {
	Authorize(ctx context.Context, authURL string) (string, error)
}

// PromptFunc adapts a function to Prompt.
type PromptFunc func(ctx context.Context, authURL string) (string, error)

func (f PromptFunc) Authorize(ctx context.Context, authURL string) (string, error) {
	return f(ctx, authURL)
}

// Config describes the OAuth2 client. A zero Endpoint means Google.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// FromConfig derives a Config from the engine's federated settings.
func FromConfig(cfg goSession.FederatedConfig) Config {
	return Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       append([]string(nil), cfg.Scopes...),
	}
}

// Consent is a goSession.ConsentUI running the OAuth2 authorization code flow with
// state and PKCE (S256). Launch returns the id_token of the token response, or an empty
// string when the provider sent none.
type Consent struct {
	oauth  oauth2.Config
	prompt Prompt
	client *http.Client
	logger *slog.Logger
}

var _ goSession.ConsentUI = (*Consent)(nil)

func New(cfg Config, prompt Prompt) (*Consent, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("oauth2consent: client id is required")
	}
	if prompt == nil {
		return nil, errors.New("oauth2consent: prompt is required")
	}
	if cfg.Endpoint == (oauth2.Endpoint{}) {
		cfg.Endpoint = google.Endpoint
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Consent{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		prompt: prompt,
		client: cfg.HTTPClient,
		logger: cfg.Logger,
	}, nil
}

// Launch runs one consent round trip.
func (c *Consent) Launch(ctx context.Context) (string, error) {
	state, err := newState()
	if err != nil {
		return "", fmt.Errorf("%w: %v", goSession.ErrUnknown, err)
	}
	verifier := oauth2.GenerateVerifier()
	authURL := c.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))

	answer, err := c.prompt.Authorize(ctx, authURL)
	if err != nil {
		if errors.Is(err, goSession.ErrCancelled) || errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("%w: %v", goSession.ErrCancelled, err)
		}
		return "", fmt.Errorf("%w: %v", goSession.ErrProviderUnavailable, err)
	}

	code, err := parseAnswer(answer, state)
	if err != nil {
		return "", err
	}

	if c.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)
	}
	token, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", classifyExchangeError(err)
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		c.logger.Warn("oauth2consent token response carried no id_token")
	}
	return idToken, nil
}

// parseAnswer extracts the authorization code from what the user returned. A redirect
// URL must carry the expected state; a bare code is taken as is.
func parseAnswer(answer, state string) (string, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", goSession.ErrCancelled
	}
	if !strings.Contains(answer, "?") && !strings.Contains(answer, "=") {
		return answer, nil
	}

	query := answer
	if i := strings.IndexByte(answer, '?'); i >= 0 {
		query = answer[i+1:]
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return "", fmt.Errorf("%w: malformed redirect: %v", goSession.ErrInvalidInput, err)
	}

	if reason := values.Get("error"); reason != "" {
		if reason == "access_denied" {
			return "", fmt.Errorf("%w: %s", goSession.ErrCancelled, reason)
		}
		return "", fmt.Errorf("%w: provider returned %s", goSession.ErrProviderUnavailable, reason)
	}
	if subtle.ConstantTimeCompare([]byte(values.Get("state")), []byte(state)) != 1 {
		return "", fmt.Errorf("%w: state mismatch", goSession.ErrInvalidCredentials)
	}
	code := values.Get("code")
	if code == "" {
		return "", fmt.Errorf("%w: redirect without code", goSession.ErrInvalidInput)
	}
	return code, nil
}

func classifyExchangeError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		if retrieve.ErrorCode == "invalid_grant" {
			return fmt.Errorf("%w: %v", goSession.ErrInvalidCredentials, err)
		}
	}
	return fmt.Errorf("%w: %v", goSession.ErrProviderUnavailable, err)
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
