package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goSession/identity"
)

// FederatedMetrics carries metric IDs needed by the federated flow.
type FederatedMetrics struct {
	SignInSuccess int
	SignInFailure int
	Cancelled     int
}

// FederatedEvents carries audit event names used by the federated flow.
type FederatedEvents struct {
	SignInSuccess string
	SignInFailure string
	Cancelled     string
}

// FederatedErrors carries host-level sentinel errors used by the federated flow.
type FederatedErrors struct {
	EngineNotReady      error
	Cancelled           error
	NoIdentityToken     error
	ProviderUnavailable error
}

// FederatedDeps is everything the federated provider needs from the engine.
type FederatedDeps struct {
	Enabled bool

	Launch    func(context.Context) (string, error)
	Exchange  func(context.Context, string) (identity.Credential, error)
	Establish func(context.Context, identity.Credential) (identity.Session, error)

	MapBackendError func(error) error
	MetricInc       func(int)
	EmitAudit       EmitAuditFunc

	Metrics FederatedMetrics
	Events  FederatedEvents
	Errors  FederatedErrors
}

// RunFederatedSignIn runs the external consent step and exchanges its token for a
// session. A user cancellation is reported through cancelled with a nil error.
func RunFederatedSignIn(ctx context.Context, deps FederatedDeps) (sess identity.Session, cancelled bool, err error) {
	normalizeFederatedDeps(&deps)

	if deps.Exchange == nil || deps.Establish == nil {
		return identity.Session{}, false, deps.Errors.EngineNotReady
	}
	if !deps.Enabled || deps.Launch == nil {
		deps.MetricInc(deps.Metrics.SignInFailure)
		deps.EmitAudit(ctx, deps.Events.SignInFailure, false, "", deps.Errors.ProviderUnavailable, reasonMetadata("consent_unavailable"))
		return identity.Session{}, false, deps.Errors.ProviderUnavailable
	}

	token, err := deps.Launch(ctx)
	if err != nil {
		if errors.Is(err, deps.Errors.Cancelled) {
			deps.MetricInc(deps.Metrics.Cancelled)
			deps.EmitAudit(ctx, deps.Events.Cancelled, true, "", nil, nil)
			return identity.Session{}, true, nil
		}
		mapped := deps.MapBackendError(err)
		deps.MetricInc(deps.Metrics.SignInFailure)
		deps.EmitAudit(ctx, deps.Events.SignInFailure, false, "", mapped, reasonMetadata("consent_failed"))
		return identity.Session{}, false, mapped
	}

	token = strings.TrimSpace(token)
	if token == "" {
		deps.MetricInc(deps.Metrics.SignInFailure)
		deps.EmitAudit(ctx, deps.Events.SignInFailure, false, "", deps.Errors.NoIdentityToken, nil)
		return identity.Session{}, false, deps.Errors.NoIdentityToken
	}

	cred, err := deps.Exchange(ctx, token)
	if err != nil {
		mapped := deps.MapBackendError(err)
		deps.MetricInc(deps.Metrics.SignInFailure)
		deps.EmitAudit(ctx, deps.Events.SignInFailure, false, "", mapped, reasonMetadata("exchange_failed"))
		return identity.Session{}, false, mapped
	}

	sess, err = deps.Establish(ctx, cred)
	if err != nil {
		mapped := deps.MapBackendError(err)
		deps.MetricInc(deps.Metrics.SignInFailure)
		deps.EmitAudit(ctx, deps.Events.SignInFailure, false, "", mapped, reasonMetadata("establish_failed"))
		return identity.Session{}, false, mapped
	}

	deps.MetricInc(deps.Metrics.SignInSuccess)
	deps.EmitAudit(ctx, deps.Events.SignInSuccess, true, sess.UserID, nil, nil)
	return sess, false, nil
}

func normalizeFederatedDeps(deps *FederatedDeps) {
	if deps.MapBackendError == nil {
		deps.MapBackendError = identityError
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetricInc
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopEmitAudit
	}
}
