package goSession

import (
	"context"

	internalflows "github.com/MrEthical07/goSession/internal/flows"
)

// SignInWithPassword signs in an existing email identity and installs its session.
//
// A malformed address or an empty secret fails with ErrInvalidInput before the backend
// is called. ErrWeakSecret is never returned here; the minimum length only applies to
// Register.
func (e *Engine) SignInWithPassword(ctx context.Context, identifier, secret string) (SignInResult, error) {
	if !e.ready() {
		return SignInResult{}, ErrEngineNotReady
	}
	if e.closed.Load() {
		return SignInResult{}, ErrEngineClosed
	}
	defer e.observeLatency(e.now())

	sess, err := internalflows.RunPasswordSignIn(ctx, identifier, secret, e.passwordFlowDeps())
	if err != nil {
		return SignInResult{}, err
	}
	return signedIn(sess), nil
}

// Register creates an email identity and signs it in.
//
// Secrets shorter than Password.MinSecretLength characters fail with ErrWeakSecret. An
// address that already has an identity fails with ErrAlreadyInUse.
func (e *Engine) Register(ctx context.Context, identifier, secret string) (SignInResult, error) {
	if !e.ready() {
		return SignInResult{}, ErrEngineNotReady
	}
	if e.closed.Load() {
		return SignInResult{}, ErrEngineClosed
	}
	defer e.observeLatency(e.now())

	sess, err := internalflows.RunRegister(ctx, identifier, secret, e.passwordFlowDeps())
	if err != nil {
		return SignInResult{}, err
	}
	return signedIn(sess), nil
}

// SendPasswordReset asks the backend to mail a reset link to identifier. It never
// touches the current session.
func (e *Engine) SendPasswordReset(ctx context.Context, identifier string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return internalflows.RunSendPasswordReset(ctx, identifier, e.passwordFlowDeps())
}

func (e *Engine) passwordFlowDeps() internalflows.PasswordDeps {
	deps := internalflows.PasswordDeps{
		MinSecretLength: e.config.Password.MinSecretLength,
		MapBackendError: MapBackendError,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.flowAudit(ProviderPassword),
		Metrics: internalflows.PasswordMetrics{
			SignInSuccess:   int(MetricPasswordSignInSuccess),
			SignInFailure:   int(MetricPasswordSignInFailure),
			RegisterSuccess: int(MetricRegisterSuccess),
			RegisterFailure: int(MetricRegisterFailure),
			ResetRequested:  int(MetricPasswordResetRequested),
		},
		Events: internalflows.PasswordEvents{
			SignInSuccess:   auditEventPasswordSignInSuccess,
			SignInFailure:   auditEventPasswordSignInFailure,
			RegisterSuccess: auditEventRegisterSuccess,
			RegisterFailure: auditEventRegisterFailure,
			ResetRequested:  auditEventPasswordResetRequest,
		},
		Errors: internalflows.PasswordErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidInput:   ErrInvalidInput,
			WeakSecret:     ErrWeakSecret,
		},
	}

	if e.ready() {
		deps.SignIn = e.backend.SignIn
		deps.CreateIdentity = e.backend.CreateIdentity
		deps.SendReset = e.backend.SendPasswordReset
		deps.Establish = e.sessions.Establish
	}
	return deps
}
