package goSession

import (
	"context"

	internalflows "github.com/MrEthical07/goSession/internal/flows"
)

// SignInWithFederatedProvider runs the consent step and exchanges its ID token for a
// session.
//
// A user who closes the consent step gets SignInResult{Outcome: OutcomeCancelled} and a
// nil error. A consent step without a usable token fails with ErrNoIdentityToken, and a
// missing or disabled consent provider with ErrProviderUnavailable.
func (e *Engine) SignInWithFederatedProvider(ctx context.Context) (SignInResult, error) {
	if !e.ready() {
		return SignInResult{}, ErrEngineNotReady
	}
	if e.closed.Load() {
		return SignInResult{}, ErrEngineClosed
	}
	defer e.observeLatency(e.now())

	sess, cancelled, err := internalflows.RunFederatedSignIn(ctx, e.federatedFlowDeps())
	if err != nil {
		return SignInResult{}, err
	}
	if cancelled {
		return SignInResult{Outcome: OutcomeCancelled}, nil
	}
	return signedIn(sess), nil
}

func (e *Engine) federatedFlowDeps() internalflows.FederatedDeps {
	deps := internalflows.FederatedDeps{
		Enabled:         e.config.Federated.Enabled,
		MapBackendError: MapBackendError,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.flowAudit(ProviderFederated),
		Metrics: internalflows.FederatedMetrics{
			SignInSuccess: int(MetricFederatedSignInSuccess),
			SignInFailure: int(MetricFederatedSignInFailure),
			Cancelled:     int(MetricFederatedCancelled),
		},
		Events: internalflows.FederatedEvents{
			SignInSuccess: auditEventFederatedSignInSuccess,
			SignInFailure: auditEventFederatedSignInFailure,
			Cancelled:     auditEventFederatedCancelled,
		},
		Errors: internalflows.FederatedErrors{
			EngineNotReady:      ErrEngineNotReady,
			Cancelled:           ErrCancelled,
			NoIdentityToken:     ErrNoIdentityToken,
			ProviderUnavailable: ErrProviderUnavailable,
		},
	}

	if e.ready() {
		deps.Exchange = e.backend.ExchangeExternalToken
		deps.Establish = e.sessions.Establish
	}
	if e.consent != nil {
		deps.Launch = e.consent.Launch
	}
	return deps
}
