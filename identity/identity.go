package identity

import "time"

// ProviderKind identifies which credential provider produced a credential or session.
type ProviderKind uint8

const (
	// ProviderUnknown is the zero value and never produced by a provider.
	ProviderUnknown ProviderKind = iota
	// ProviderPassword marks email + secret credentials.
	ProviderPassword
	// ProviderFederated marks credentials obtained from an external ID token.
	ProviderFederated
	// ProviderPhone marks credentials obtained from a one-time phone code.
	ProviderPhone
)

func (p ProviderKind) String() string {
	switch p {
	case ProviderPassword:
		return "password"
	case ProviderFederated:
		return "federated"
	case ProviderPhone:
		return "phone"
	default:
		return "unknown"
	}
}

// ParseProviderKind is the inverse of ProviderKind.String. Unrecognized names map to
// ProviderUnknown.
func ParseProviderKind(s string) ProviderKind {
	switch s {
	case "password":
		return ProviderPassword
	case "federated":
		return ProviderFederated
	case "phone":
		return ProviderPhone
	default:
		return ProviderUnknown
	}
}

// Credential is an opaque, single-use proof of identity returned by a provider.
// It is consumed exactly once by the session exchange and never persisted.
type Credential struct {
	Provider ProviderKind
	Proof    string
	IssuedAt time.Time
}

// Empty reports whether the credential carries no proof.
func (c Credential) Empty() bool {
	return c.Proof == ""
}

// Identity is the backend's view of an authenticated user.
type Identity struct {
	UserID   string
	Email    string
	Phone    string
	Provider ProviderKind
}

// DisplayLabel prefers the email address and falls back to the phone number.
func (i Identity) DisplayLabel() string {
	if i.Email != "" {
		return i.Email
	}
	return i.Phone
}

// UnknownUserLabel is shown for sessions that carry neither an email nor a phone number.
const UnknownUserLabel = "Unknown User"

// Session is the single current authenticated identity held by the application.
type Session struct {
	Provider     ProviderKind
	UserID       string
	DisplayLabel string
	CreatedAt    time.Time
}

// Label returns the display label, or UnknownUserLabel when none is known.
func (s Session) Label() string {
	if s.DisplayLabel == "" {
		return UnknownUserLabel
	}
	return s.DisplayLabel
}

// ChallengeStatus is the lifecycle status of a PhoneChallenge.
type ChallengeStatus uint8

const (
	// ChallengeSent means a code was dispatched and confirmation is possible.
	ChallengeSent ChallengeStatus = iota + 1
	// ChallengeAutoVerified means the platform confirmed the code without user entry.
	ChallengeAutoVerified
	// ChallengeFailed means the attempt failed terminally.
	ChallengeFailed
	// ChallengeConfirmed means the code was accepted and a session established.
	ChallengeConfirmed
	// ChallengeExpired means the code or the send attempt timed out.
	ChallengeExpired
)

func (s ChallengeStatus) String() string {
	switch s {
	case ChallengeSent:
		return "sent"
	case ChallengeAutoVerified:
		return "auto_verified"
	case ChallengeFailed:
		return "failed"
	case ChallengeConfirmed:
		return "confirmed"
	case ChallengeExpired:
		return "expired"
	default:
		return "none"
	}
}

// PhoneChallenge is the live state of one phone-number verification attempt.
type PhoneChallenge struct {
	PhoneNumberE164 string
	VerificationID  string
	ResendToken     string
	IssuedAt        time.Time
	Status          ChallengeStatus
}
