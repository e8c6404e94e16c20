package flows

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/goSession/identity"
)

// PasswordMetrics carries metric IDs needed by password flows.
type PasswordMetrics struct {
	SignInSuccess   int
	SignInFailure   int
	RegisterSuccess int
	RegisterFailure int
	ResetRequested  int
}

// PasswordEvents carries audit event names used by password flows.
type PasswordEvents struct {
	SignInSuccess   string
	SignInFailure   string
	RegisterSuccess string
	RegisterFailure string
	ResetRequested  string
}

// PasswordErrors carries host-level sentinel errors used by password flows.
type PasswordErrors struct {
	EngineNotReady error
	InvalidInput   error
	WeakSecret     error
}

// PasswordDeps is everything the password provider needs from the engine.
type PasswordDeps struct {
	MinSecretLength int

	SignIn         func(context.Context, string, string) (identity.Credential, error)
	CreateIdentity func(context.Context, string, string) (identity.Credential, error)
	SendReset      func(context.Context, string) error
	Establish      func(context.Context, identity.Credential) (identity.Session, error)

	MapBackendError func(error) error
	MetricInc       func(int)
	EmitAudit       EmitAuditFunc

	Metrics PasswordMetrics
	Events  PasswordEvents
	Errors  PasswordErrors
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidIdentifier reports whether identifier is a well-formed email address.
func ValidIdentifier(identifier string) bool {
	return identifierPattern.MatchString(identifier)
}

// RunPasswordSignIn validates input, asks the backend for a credential and exchanges it
// for a session. WeakSecret is never raised here.
func RunPasswordSignIn(ctx context.Context, identifier, secret string, deps PasswordDeps) (identity.Session, error) {
	normalizePasswordDeps(&deps)
	identifier = strings.TrimSpace(identifier)

	if deps.SignIn == nil || deps.Establish == nil {
		return identity.Session{}, deps.Errors.EngineNotReady
	}
	if !ValidIdentifier(identifier) || secret == "" {
		deps.MetricInc(deps.Metrics.SignInFailure)
		deps.EmitAudit(ctx, deps.Events.SignInFailure, false, "", deps.Errors.InvalidInput, reasonMetadata("invalid_input"))
		return identity.Session{}, deps.Errors.InvalidInput
	}

	cred, err := deps.SignIn(ctx, identifier, secret)
	if err != nil {
		mapped := deps.MapBackendError(err)
		deps.MetricInc(deps.Metrics.SignInFailure)
		deps.EmitAudit(ctx, deps.Events.SignInFailure, false, "", mapped, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
			}
		})
		return identity.Session{}, mapped
	}

	sess, err := deps.Establish(ctx, cred)
	if err != nil {
		mapped := deps.MapBackendError(err)
		deps.MetricInc(deps.Metrics.SignInFailure)
		deps.EmitAudit(ctx, deps.Events.SignInFailure, false, "", mapped, reasonMetadata("establish_failed"))
		return identity.Session{}, mapped
	}

	deps.MetricInc(deps.Metrics.SignInSuccess)
	deps.EmitAudit(ctx, deps.Events.SignInSuccess, true, sess.UserID, nil, nil)
	return sess, nil
}

// RunRegister creates an identity and signs it in. Secrets shorter than
// MinSecretLength characters fail with WeakSecret before any backend call.
func RunRegister(ctx context.Context, identifier, secret string, deps PasswordDeps) (identity.Session, error) {
	normalizePasswordDeps(&deps)
	identifier = strings.TrimSpace(identifier)

	if deps.CreateIdentity == nil || deps.Establish == nil {
		return identity.Session{}, deps.Errors.EngineNotReady
	}

	if err := validateRegistration(identifier, secret, deps); err != nil {
		deps.MetricInc(deps.Metrics.RegisterFailure)
		deps.EmitAudit(ctx, deps.Events.RegisterFailure, false, "", err, nil)
		return identity.Session{}, err
	}

	cred, err := deps.CreateIdentity(ctx, identifier, secret)
	if err != nil {
		mapped := deps.MapBackendError(err)
		deps.MetricInc(deps.Metrics.RegisterFailure)
		deps.EmitAudit(ctx, deps.Events.RegisterFailure, false, "", mapped, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
			}
		})
		return identity.Session{}, mapped
	}

	sess, err := deps.Establish(ctx, cred)
	if err != nil {
		mapped := deps.MapBackendError(err)
		deps.MetricInc(deps.Metrics.RegisterFailure)
		deps.EmitAudit(ctx, deps.Events.RegisterFailure, false, "", mapped, reasonMetadata("establish_failed"))
		return identity.Session{}, mapped
	}

	deps.MetricInc(deps.Metrics.RegisterSuccess)
	deps.EmitAudit(ctx, deps.Events.RegisterSuccess, true, sess.UserID, nil, nil)
	return sess, nil
}

func validateRegistration(identifier, secret string, deps PasswordDeps) error {
	if !ValidIdentifier(identifier) || secret == "" {
		return deps.Errors.InvalidInput
	}
	if utf8.RuneCountInString(secret) < deps.MinSecretLength {
		return deps.Errors.WeakSecret
	}
	return nil
}

func normalizePasswordDeps(deps *PasswordDeps) {
	if deps.MapBackendError == nil {
		deps.MapBackendError = identityError
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetricInc
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopEmitAudit
	}
	if deps.MinSecretLength <= 0 {
		deps.MinSecretLength = 6
	}
}
