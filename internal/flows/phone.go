package flows

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/identity"
	"github.com/MrEthical07/goSession/phone"
)

// PhoneCallbacks receives the asynchronous outcome of one send request. A backend may
// call any of them from any goroutine; the machine re-posts them onto its dispatcher.
type PhoneCallbacks struct {
	CodeSent     func(verificationID, resendToken string)
	Failed       func(err error)
	AutoVerified func(cred identity.Credential)
}

// PhoneMetrics carries metric IDs needed by the phone flow.
type PhoneMetrics struct {
	CodeSent       int
	SendFailure    int
	Resend         int
	AutoVerified   int
	ConfirmSuccess int
	ConfirmFailure int
	Expired        int
}

// PhoneEvents carries audit event names used by the phone flow.
type PhoneEvents struct {
	CodeSent       string
	SendFailure    string
	ConfirmSuccess string
	ConfirmFailure string
	Expired        string
}

// PhoneErrors carries host-level sentinel errors used by the phone flow.
type PhoneErrors struct {
	EngineNotReady     error
	InvalidInput       error
	InvalidCredentials error
	NoActiveChallenge  error
	Expired            error
	FlowClosed         error
	InvalidState       error
}

// PhoneDeps is everything a phone verification machine needs from the engine.
type PhoneDeps struct {
	DefaultCountryCode string
	Timeout            time.Duration

	Normalize func(number, countryCode string) string
	Now       func() time.Time
	AfterFunc func(time.Duration, func()) (stop func() bool)
	Post      func(func()) bool
	Spawn     func(func())

	SendCode    func(ctx context.Context, number string, timeout time.Duration, resendToken string, cb PhoneCallbacks) error
	ConfirmCode func(ctx context.Context, verificationID, code string) (identity.Credential, error)
	Establish   func(context.Context, identity.Credential) (identity.Session, error)

	MapBackendError func(error) error
	MetricInc       func(int)
	EmitAudit       EmitAuditFunc
	Logger          *slog.Logger

	Metrics PhoneMetrics
	Events  PhoneEvents
	Errors  PhoneErrors
}

// PhoneSnapshot is an immutable view of a machine at one point in time.
type PhoneSnapshot struct {
	State     PhoneState
	Number    string
	Challenge *identity.PhoneChallenge
	Session   *identity.Session
	Err       error
}

type phoneObserver struct {
	fn     func(PhoneSnapshot)
	active atomic.Bool
}

// PhoneMachine drives one phone verification flow. State changes are serialized by mu;
// observers and backend callbacks are delivered through deps.Post.
//
// Every send attempt gets a new generation. Callbacks, timers and auto-verification
// results carry the generation they were issued for and are ignored once it is stale.
type PhoneMachine struct {
	deps PhoneDeps

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     PhoneState
	number    string
	challenge *identity.PhoneChallenge
	session   *identity.Session
	lastErr   error
	gen       uint64
	stopTimer func() bool
	closed    bool
	observers []*phoneObserver
}

// NewPhoneMachine returns an idle machine.
func NewPhoneMachine(deps PhoneDeps) *PhoneMachine {
	normalizePhoneDeps(&deps)
	ctx, cancel := context.WithCancel(context.Background())
	return &PhoneMachine{
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (m *PhoneMachine) ready() bool {
	return m.deps.SendCode != nil && m.deps.ConfirmCode != nil && m.deps.Establish != nil && m.deps.Post != nil
}

// Start normalizes number and requests a code for it. It is valid from Idle, Failed and
// Expired. The call returns once the request is issued; the outcome arrives as state
// changes.
func (m *PhoneMachine) Start(ctx context.Context, number string) error {
	if !m.ready() {
		return m.deps.Errors.EngineNotReady
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	normalized := m.deps.Normalize(number, m.deps.DefaultCountryCode)
	if normalized == "" {
		return m.deps.Errors.InvalidInput
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return m.deps.Errors.FlowClosed
	}
	if _, ok := nextPhoneState(m.state, inputStart); !ok {
		m.mu.Unlock()
		return m.deps.Errors.InvalidState
	}
	m.number = normalized
	m.challenge = nil
	m.session = nil
	m.lastErr = nil
	g := m.beginSendLocked()
	m.mu.Unlock()

	return m.dispatchSend(g, normalized, "")
}

// Resend requests a new code for the active challenge. The previous verification id is
// discarded immediately.
func (m *PhoneMachine) Resend(ctx context.Context) error {
	if !m.ready() {
		return m.deps.Errors.EngineNotReady
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return m.deps.Errors.FlowClosed
	}
	if m.challenge == nil {
		m.mu.Unlock()
		return m.deps.Errors.NoActiveChallenge
	}
	if _, ok := nextPhoneState(m.state, inputResend); !ok {
		m.mu.Unlock()
		return m.deps.Errors.InvalidState
	}
	token := m.challenge.ResendToken
	number := m.number
	m.challenge = nil
	m.lastErr = nil
	g := m.beginSendLocked()
	m.mu.Unlock()

	m.deps.MetricInc(m.deps.Metrics.Resend)
	return m.dispatchSend(g, number, token)
}

// Confirm submits code for the active challenge. An empty verificationID refers to the
// current one. A wrong code returns the flow to Sent so the user can try again.
func (m *PhoneMachine) Confirm(ctx context.Context, verificationID, code string) (identity.Session, error) {
	if !m.ready() {
		return identity.Session{}, m.deps.Errors.EngineNotReady
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return identity.Session{}, m.deps.Errors.InvalidInput
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return identity.Session{}, m.deps.Errors.FlowClosed
	}
	if m.challenge == nil || (verificationID != "" && verificationID != m.challenge.VerificationID) {
		m.mu.Unlock()
		return identity.Session{}, m.deps.Errors.NoActiveChallenge
	}
	next, ok := nextPhoneState(m.state, inputConfirm)
	if !ok {
		m.mu.Unlock()
		return identity.Session{}, m.deps.Errors.InvalidState
	}
	m.setStateLocked(next)
	m.lastErr = nil
	g := m.gen
	vid := m.challenge.VerificationID
	m.notifyLocked()
	m.mu.Unlock()

	cred, err := m.deps.ConfirmCode(ctx, vid, code)
	if err != nil {
		return identity.Session{}, m.failConfirm(ctx, g, m.deps.MapBackendError(err), true)
	}

	sess, err := m.deps.Establish(ctx, cred)
	if err != nil {
		return identity.Session{}, m.failConfirm(ctx, g, m.deps.MapBackendError(err), false)
	}

	m.mu.Lock()
	if m.current(g) && m.state == PhoneConfirming {
		m.confirmLocked(sess)
	}
	number := m.number
	m.mu.Unlock()

	m.deps.EmitAudit(ctx, m.deps.Events.ConfirmSuccess, true, sess.UserID, nil, numberMetadata(number, "manual"))
	return sess, nil
}

// Snapshot returns the current state.
func (m *PhoneMachine) Snapshot() PhoneSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Watch registers fn for state changes. fn first receives the current snapshot and then
// every later change, in order, on the dispatcher. The returned func detaches fn and is
// safe to call more than once.
func (m *PhoneMachine) Watch(fn func(PhoneSnapshot)) func() {
	if fn == nil || m.deps.Post == nil {
		return func() {}
	}
	o := &phoneObserver{fn: fn}
	o.active.Store(true)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return func() {}
	}
	m.observers = append(m.observers, o)
	snap := m.snapshotLocked()
	m.deps.Post(func() {
		if o.active.Load() {
			o.fn(snap)
		}
	})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.active.Store(false)
			m.mu.Lock()
			for i, existing := range m.observers {
				if existing == o {
					m.observers = append(m.observers[:i], m.observers[i+1:]...)
					break
				}
			}
			m.mu.Unlock()
		})
	}
}

// Close abandons the flow. Pending timers are stopped, in-flight callbacks become stale
// and observers stop receiving snapshots.
func (m *PhoneMachine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.gen++
	m.stopTimerLocked()
	for _, o := range m.observers {
		o.active.Store(false)
	}
	m.observers = nil
	m.mu.Unlock()
	m.cancel()
}

func (m *PhoneMachine) beginSendLocked() uint64 {
	m.gen++
	g := m.gen
	m.stopTimerLocked()
	m.setStateLocked(PhoneSending)
	m.stopTimer = m.deps.AfterFunc(m.deps.Timeout, func() {
		m.deps.Post(func() { m.onTimeout(g) })
	})
	m.notifyLocked()
	return g
}

func (m *PhoneMachine) dispatchSend(g uint64, number, resendToken string) error {
	cb := PhoneCallbacks{
		CodeSent: func(verificationID, token string) {
			m.deps.Post(func() { m.onCodeSent(g, verificationID, token) })
		},
		Failed: func(err error) {
			m.deps.Post(func() { m.onSendFailed(g, err) })
		},
		AutoVerified: func(cred identity.Credential) {
			m.deps.Post(func() { m.onAutoVerified(g, cred) })
		},
	}

	if err := m.deps.SendCode(m.ctx, number, m.deps.Timeout, resendToken, cb); err != nil {
		mapped := m.deps.MapBackendError(err)
		m.onSendFailed(g, mapped)
		return mapped
	}
	return nil
}

func (m *PhoneMachine) onCodeSent(g uint64, verificationID, resendToken string) {
	m.mu.Lock()
	if !m.current(g) {
		m.mu.Unlock()
		return
	}
	next, ok := nextPhoneState(m.state, inputCodeSent)
	if !ok || verificationID == "" {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()
	m.setStateLocked(next)
	m.challenge = &identity.PhoneChallenge{
		PhoneNumberE164: m.number,
		VerificationID:  verificationID,
		ResendToken:     resendToken,
		IssuedAt:        m.deps.Now(),
		Status:          identity.ChallengeSent,
	}
	m.deps.MetricInc(m.deps.Metrics.CodeSent)
	m.notifyLocked()
	number := m.number
	m.mu.Unlock()

	m.deps.EmitAudit(m.ctx, m.deps.Events.CodeSent, true, "", nil, numberMetadata(number, ""))
}

func (m *PhoneMachine) onSendFailed(g uint64, err error) {
	m.mu.Lock()
	if !m.current(g) {
		m.mu.Unlock()
		return
	}
	next, ok := nextPhoneState(m.state, inputSendFailed)
	if !ok {
		m.mu.Unlock()
		return
	}
	mapped := m.deps.MapBackendError(err)
	m.stopTimerLocked()
	m.setStateLocked(next)
	m.challenge = nil
	m.lastErr = mapped
	m.deps.MetricInc(m.deps.Metrics.SendFailure)
	m.notifyLocked()
	number := m.number
	m.mu.Unlock()

	m.deps.EmitAudit(m.ctx, m.deps.Events.SendFailure, false, "", mapped, numberMetadata(number, ""))
}

func (m *PhoneMachine) onTimeout(g uint64) {
	m.mu.Lock()
	if !m.current(g) {
		m.mu.Unlock()
		return
	}
	next, ok := nextPhoneState(m.state, inputTimeout)
	if !ok {
		m.mu.Unlock()
		return
	}
	m.stopTimer = nil
	m.setStateLocked(next)
	m.challenge = nil
	m.lastErr = m.deps.Errors.Expired
	m.deps.MetricInc(m.deps.Metrics.Expired)
	m.notifyLocked()
	number := m.number
	m.mu.Unlock()

	m.deps.EmitAudit(m.ctx, m.deps.Events.Expired, false, "", m.deps.Errors.Expired, numberMetadata(number, "timeout"))
}

func (m *PhoneMachine) onAutoVerified(g uint64, cred identity.Credential) {
	m.mu.Lock()
	if !m.current(g) {
		m.mu.Unlock()
		return
	}
	next, ok := nextPhoneState(m.state, inputAutoVerified)
	if !ok {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()
	m.setStateLocked(next)
	if m.challenge != nil {
		m.challenge.Status = identity.ChallengeAutoVerified
	}
	m.deps.MetricInc(m.deps.Metrics.AutoVerified)
	m.notifyLocked()
	m.mu.Unlock()

	ctx := m.ctx
	m.deps.Spawn(func() {
		sess, err := m.deps.Establish(ctx, cred)
		m.deps.Post(func() { m.onAutoEstablished(g, sess, err) })
	})
}

func (m *PhoneMachine) onAutoEstablished(g uint64, sess identity.Session, err error) {
	m.mu.Lock()
	if !m.current(g) || m.state != PhoneAutoVerifying {
		m.mu.Unlock()
		return
	}
	number := m.number

	if err != nil {
		mapped := m.deps.MapBackendError(err)
		next, _ := nextPhoneState(m.state, inputExchangeFailed)
		m.setStateLocked(next)
		m.challenge = nil
		m.lastErr = mapped
		m.deps.MetricInc(m.deps.Metrics.ConfirmFailure)
		m.notifyLocked()
		m.mu.Unlock()

		m.deps.EmitAudit(m.ctx, m.deps.Events.ConfirmFailure, false, "", mapped, numberMetadata(number, "auto"))
		return
	}

	m.confirmLocked(sess)
	m.mu.Unlock()

	m.deps.EmitAudit(m.ctx, m.deps.Events.ConfirmSuccess, true, sess.UserID, nil, numberMetadata(number, "auto"))
}

// failConfirm resolves a Confirming flow after a failed confirmation. A rejected code
// goes back to Sent, an unknown or expired challenge to Expired, anything else to Failed.
func (m *PhoneMachine) failConfirm(ctx context.Context, g uint64, mapped error, fromBackend bool) error {
	m.mu.Lock()
	if !m.current(g) || m.state != PhoneConfirming {
		m.mu.Unlock()
		return mapped
	}

	var in phoneInput
	switch {
	case fromBackend && errors.Is(mapped, m.deps.Errors.InvalidCredentials):
		in = inputInvalidCode
	case errors.Is(mapped, context.Canceled), errors.Is(mapped, context.DeadlineExceeded):
		in = inputConfirmAborted
	case errors.Is(mapped, m.deps.Errors.Expired), errors.Is(mapped, m.deps.Errors.NoActiveChallenge):
		in = inputCodeExpired
	default:
		in = inputExchangeFailed
	}

	next, _ := nextPhoneState(m.state, in)
	m.setStateLocked(next)
	m.lastErr = mapped
	if next != PhoneSent {
		m.challenge = nil
	}
	m.deps.MetricInc(m.deps.Metrics.ConfirmFailure)
	if next == PhoneExpired {
		m.deps.MetricInc(m.deps.Metrics.Expired)
	}
	m.notifyLocked()
	number := m.number
	m.mu.Unlock()

	m.deps.EmitAudit(ctx, m.deps.Events.ConfirmFailure, false, "", mapped, numberMetadata(number, "manual"))
	return mapped
}

func (m *PhoneMachine) confirmLocked(sess identity.Session) {
	next, _ := nextPhoneState(m.state, inputConfirmed)
	m.setStateLocked(next)
	if m.challenge != nil {
		m.challenge.Status = identity.ChallengeConfirmed
	}
	s := sess
	m.session = &s
	m.lastErr = nil
	m.deps.MetricInc(m.deps.Metrics.ConfirmSuccess)
	m.notifyLocked()
	m.challenge = nil
}

func (m *PhoneMachine) current(g uint64) bool {
	return !m.closed && g == m.gen
}

func (m *PhoneMachine) setStateLocked(next PhoneState) {
	if m.deps.Logger != nil && next != m.state {
		m.deps.Logger.Debug("phone verification transition", "from", m.state, "to", next, "generation", m.gen)
	}
	m.state = next
}

func (m *PhoneMachine) stopTimerLocked() {
	if m.stopTimer != nil {
		m.stopTimer()
		m.stopTimer = nil
	}
}

func (m *PhoneMachine) snapshotLocked() PhoneSnapshot {
	snap := PhoneSnapshot{
		State:  m.state,
		Number: m.number,
		Err:    m.lastErr,
	}
	if m.challenge != nil {
		c := *m.challenge
		snap.Challenge = &c
	}
	if m.session != nil {
		s := *m.session
		snap.Session = &s
	}
	return snap
}

func (m *PhoneMachine) notifyLocked() {
	if len(m.observers) == 0 {
		return
	}
	snap := m.snapshotLocked()
	observers := append([]*phoneObserver(nil), m.observers...)
	m.deps.Post(func() {
		for _, o := range observers {
			if o.active.Load() {
				o.fn(snap)
			}
		}
	})
}

func numberMetadata(number, path string) func() map[string]string {
	return func() map[string]string {
		md := map[string]string{
			"phone": number,
		}
		if path != "" {
			md["path"] = path
		}
		return md
	}
}

func normalizePhoneDeps(deps *PhoneDeps) {
	if deps.MapBackendError == nil {
		deps.MapBackendError = identityError
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetricInc
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopEmitAudit
	}
	if deps.Normalize == nil {
		deps.Normalize = phone.Normalize
	}
	if deps.DefaultCountryCode == "" {
		deps.DefaultCountryCode = phone.DefaultCountryCode
	}
	if deps.Timeout <= 0 {
		deps.Timeout = 60 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.AfterFunc == nil {
		deps.AfterFunc = func(d time.Duration, fn func()) func() bool {
			return time.AfterFunc(d, fn).Stop
		}
	}
	if deps.Spawn == nil {
		deps.Spawn = func(fn func()) { go fn() }
	}
}
