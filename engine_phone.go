package goSession

import (
	"context"
	"sync"

	internalflows "github.com/MrEthical07/goSession/internal/flows"
)

// PhoneVerification is one phone sign-in attempt. It is created by
// [Engine.StartPhoneVerification] and lives until it is closed or the engine closes.
//
// State changes are delivered to Subscribe observers on the engine dispatcher. Confirm
// blocks until the code was checked and, on success, the session installed.
type PhoneVerification struct {
	engine    *Engine
	machine   *internalflows.PhoneMachine
	closeOnce sync.Once
}

// StartPhoneVerification normalizes number and requests a code for it.
//
// The call returns once the request is issued; a CodeSent, failure, auto-verification
// or timeout arrives later as a state change. A number that normalizes to nothing fails
// with ErrInvalidInput. A backend that refuses the request immediately is reported here
// and no flow is returned.
func (e *Engine) StartPhoneVerification(ctx context.Context, number string) (*PhoneVerification, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	pv := &PhoneVerification{
		engine:  e,
		machine: internalflows.NewPhoneMachine(e.phoneFlowDeps()),
	}

	e.mu.Lock()
	if e.closed.Load() {
		e.mu.Unlock()
		pv.machine.Close()
		return nil, ErrEngineClosed
	}
	e.phones[pv] = struct{}{}
	e.mu.Unlock()

	if err := pv.machine.Start(ctx, number); err != nil {
		pv.Close()
		return nil, err
	}
	return pv, nil
}

// Restart requests a code for a new number after the previous attempt failed or
// expired.
func (p *PhoneVerification) Restart(ctx context.Context, number string) error {
	return p.machine.Start(ctx, number)
}

// Confirm submits code for the current challenge.
//
// A wrong code fails with ErrInvalidCredentials and leaves the challenge active so the
// user can try again or Resend. Calling Confirm before a code was sent fails with
// ErrNoActiveChallenge.
func (p *PhoneVerification) Confirm(ctx context.Context, code string) (SignInResult, error) {
	sess, err := p.machine.Confirm(ctx, "", code)
	if err != nil {
		return SignInResult{}, err
	}
	return signedIn(sess), nil
}

// ConfirmChallenge is Confirm bound to a specific challenge. A challenge superseded by
// Resend fails with ErrNoActiveChallenge.
func (p *PhoneVerification) ConfirmChallenge(ctx context.Context, challenge PhoneChallenge, code string) (SignInResult, error) {
	if challenge.VerificationID == "" {
		return SignInResult{}, ErrNoActiveChallenge
	}
	sess, err := p.machine.Confirm(ctx, challenge.VerificationID, code)
	if err != nil {
		return SignInResult{}, err
	}
	return signedIn(sess), nil
}

// Resend requests a new code using the current challenge's resend token. The current
// challenge is discarded at once.
func (p *PhoneVerification) Resend(ctx context.Context) error {
	return p.machine.Resend(ctx)
}

// State returns the current state.
func (p *PhoneVerification) State() PhoneState {
	return p.machine.Snapshot().State
}

// Snapshot returns the current state, number, challenge, session and last error.
func (p *PhoneVerification) Snapshot() PhoneSnapshot {
	return p.machine.Snapshot()
}

// Challenge returns a copy of the active challenge.
func (p *PhoneVerification) Challenge() (PhoneChallenge, bool) {
	snap := p.machine.Snapshot()
	if snap.Challenge == nil {
		return PhoneChallenge{}, false
	}
	return *snap.Challenge, true
}

// Subscribe registers fn for state changes, starting with the current one. The
// returned disposer is safe to call more than once.
func (p *PhoneVerification) Subscribe(fn func(PhoneSnapshot)) func() {
	return p.machine.Watch(fn)
}

// Await blocks until the flow reaches one of states and returns that snapshot. It must
// not be called from a dispatcher callback.
func (p *PhoneVerification) Await(ctx context.Context, states ...PhoneState) (PhoneSnapshot, error) {
	found := make(chan PhoneSnapshot, 1)
	stop := p.Subscribe(func(s PhoneSnapshot) {
		for _, want := range states {
			if s.State == want {
				select {
				case found <- s:
				default:
				}
				return
			}
		}
	})
	defer stop()

	select {
	case s := <-found:
		return s, nil
	case <-ctx.Done():
		return p.machine.Snapshot(), ctx.Err()
	}
}

// Close abandons the attempt. Timers stop and late backend callbacks are ignored.
func (p *PhoneVerification) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		p.machine.Close()
		p.engine.mu.Lock()
		delete(p.engine.phones, p)
		p.engine.mu.Unlock()
	})
}

func (e *Engine) phoneFlowDeps() internalflows.PhoneDeps {
	deps := internalflows.PhoneDeps{
		DefaultCountryCode: e.config.Phone.DefaultCountryCode,
		Timeout:            e.config.Phone.CodeTimeout,
		Now:                e.now,
		AfterFunc:          e.afterFunc,
		Spawn:              e.spawn,
		MapBackendError:    MapBackendError,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.flowAudit(ProviderPhone),
		Logger:    e.logger,
		Metrics: internalflows.PhoneMetrics{
			CodeSent:       int(MetricPhoneCodeSent),
			SendFailure:    int(MetricPhoneSendFailure),
			Resend:         int(MetricPhoneResend),
			AutoVerified:   int(MetricPhoneAutoVerified),
			ConfirmSuccess: int(MetricPhoneConfirmSuccess),
			ConfirmFailure: int(MetricPhoneConfirmFailure),
			Expired:        int(MetricPhoneExpired),
		},
		Events: internalflows.PhoneEvents{
			CodeSent:       auditEventPhoneCodeSent,
			SendFailure:    auditEventPhoneSendFailure,
			ConfirmSuccess: auditEventPhoneConfirmSuccess,
			ConfirmFailure: auditEventPhoneConfirmFailure,
			Expired:        auditEventPhoneExpired,
		},
		Errors: internalflows.PhoneErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidInput:       ErrInvalidInput,
			InvalidCredentials: ErrInvalidCredentials,
			NoActiveChallenge:  ErrNoActiveChallenge,
			Expired:            ErrExpired,
			FlowClosed:         ErrFlowClosed,
			InvalidState:       ErrInvalidState,
		},
	}

	if e.ready() {
		deps.Post = e.dispatcher.Post
		deps.SendCode = e.backend.SendPhoneCode
		deps.ConfirmCode = e.backend.ConfirmPhoneCode
		deps.Establish = e.sessions.Establish
	}
	return deps
}
