package goSession

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/goSession/identity"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
)

// ProviderKind identifies the credential provider behind a session.
type ProviderKind = identity.ProviderKind

const (
	ProviderUnknown   = identity.ProviderUnknown
	ProviderPassword  = identity.ProviderPassword
	ProviderFederated = identity.ProviderFederated
	ProviderPhone     = identity.ProviderPhone
)

// ParseProviderKind maps a stored provider name back to its kind; unknown names give
// ProviderUnknown.
func ParseProviderKind(s string) ProviderKind { return identity.ParseProviderKind(s) }

// Credential is the single-use proof returned by a provider and consumed by
// [SessionStore.Establish].
type Credential = identity.Credential

// Identity is the backend's record of an authenticated user.
type Identity = identity.Identity

// Session is the one current authenticated identity.
type Session = identity.Session

// PhoneChallenge is the live state of one phone verification attempt.
type PhoneChallenge = identity.PhoneChallenge

// ChallengeStatus is the lifecycle status of a [PhoneChallenge].
type ChallengeStatus = identity.ChallengeStatus

const (
	ChallengeSent         = identity.ChallengeSent
	ChallengeAutoVerified = identity.ChallengeAutoVerified
	ChallengeFailed       = identity.ChallengeFailed
	ChallengeConfirmed    = identity.ChallengeConfirmed
	ChallengeExpired      = identity.ChallengeExpired
)

// UnknownUserLabel is what [Session.Label] returns when no email or phone is known.
const UnknownUserLabel = identity.UnknownUserLabel

// Outcome is the non-error result of a sign-in attempt.
type Outcome uint8

const (
	// OutcomeSignedIn means a session was established.
	OutcomeSignedIn Outcome = iota + 1
	// OutcomeCancelled means the user abandoned the federated consent step. No session
	// was established and no error is reported.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSignedIn:
		return "signed_in"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// SignInResult is the single result shape shared by every provider.
type SignInResult struct {
	Outcome Outcome
	Session Session
}

// SignedIn reports whether r carries a session.
func (r SignInResult) SignedIn() bool {
	return r.Outcome == OutcomeSignedIn
}

// PhoneState is the state of a [PhoneVerification].
type PhoneState = flows.PhoneState

const (
	PhoneIdle          = flows.PhoneIdle
	PhoneSending       = flows.PhoneSending
	PhoneSent          = flows.PhoneSent
	PhoneAutoVerifying = flows.PhoneAutoVerifying
	PhoneConfirming    = flows.PhoneConfirming
	PhoneConfirmed     = flows.PhoneConfirmed
	PhoneFailed        = flows.PhoneFailed
	PhoneExpired       = flows.PhoneExpired
)

// PhoneSnapshot is an immutable view of a [PhoneVerification].
type PhoneSnapshot = flows.PhoneSnapshot

// PhoneCallbacks receives the asynchronous outcome of [IdentityBackend.SendPhoneCode].
type PhoneCallbacks = flows.PhoneCallbacks

// AuditEvent is one sign-in lifecycle record delivered to an [AuditSink].
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events in a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per audit event.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink writes audit events to a structured logger.
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
