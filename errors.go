package goSession

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput reports a malformed identifier, secret, number or code. It is raised
	// before any backend call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials reports an unknown identifier, a wrong secret or a wrong code.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWeakSecret reports a registration secret below the configured minimum length.
	ErrWeakSecret = errors.New("weak secret")
	// ErrAlreadyInUse reports a registration for an identifier that already has an identity.
	ErrAlreadyInUse = errors.New("identifier already in use")
	// ErrProviderUnavailable reports that a provider or the service behind it cannot be reached.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrNoIdentityToken reports a federated consent that finished without a usable token.
	ErrNoIdentityToken = errors.New("no identity token")
	// ErrCancelled is returned by a ConsentUI when the user closes the consent step.
	ErrCancelled = errors.New("cancelled")
	// ErrNoActiveChallenge reports a confirm or resend without a live phone challenge.
	ErrNoActiveChallenge = errors.New("no active challenge")
	// ErrExpired reports a phone challenge that timed out or was expired by the backend.
	ErrExpired = errors.New("challenge expired")
	// ErrCredentialExchangeFailed reports a credential the backend refused to turn into a session.
	ErrCredentialExchangeFailed = errors.New("credential exchange failed")
	// ErrUnknown wraps backend errors that fit no other kind. The wrapped text is kept.
	ErrUnknown = errors.New("unknown error")

	// ErrEngineNotReady is returned by an Engine that was not produced by Builder.Build.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrEngineClosed is returned after Engine.Close.
	ErrEngineClosed = errors.New("engine closed")
	// ErrFlowClosed is returned by a PhoneVerification after Close.
	ErrFlowClosed = errors.New("phone verification closed")
	// ErrInvalidState is returned when a phone operation is not valid in the current state.
	ErrInvalidState = errors.New("operation not valid in current state")
	// ErrRateLimited reports too many code sends for one number.
	ErrRateLimited = errors.New("rate limited")
	// ErrGuardClosed is returned by a guard after Close.
	ErrGuardClosed = errors.New("guard closed")
)

// ErrorKind is the failure taxonomy surfaced to the UI layer.
type ErrorKind uint8

const (
	KindNone ErrorKind = iota
	KindInvalidInput
	KindInvalidCredentials
	KindWeakSecret
	KindAlreadyInUse
	KindProviderUnavailable
	KindNoIdentityToken
	KindCancelled
	KindNoActiveChallenge
	KindExpired
	KindCredentialExchangeFailed
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidInput:
		return "invalid_input"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindWeakSecret:
		return "weak_secret"
	case KindAlreadyInUse:
		return "already_in_use"
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindNoIdentityToken:
		return "no_identity_token"
	case KindCancelled:
		return "cancelled"
	case KindNoActiveChallenge:
		return "no_active_challenge"
	case KindExpired:
		return "expired"
	case KindCredentialExchangeFailed:
		return "credential_exchange_failed"
	default:
		return "unknown"
	}
}

// Kind classifies err. A nil error is KindNone and anything unclassified is KindUnknown.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrWeakSecret):
		return KindWeakSecret
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrAlreadyInUse):
		return KindAlreadyInUse
	case errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrRateLimited):
		return KindProviderUnavailable
	case errors.Is(err, ErrNoIdentityToken):
		return KindNoIdentityToken
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrNoActiveChallenge):
		return KindNoActiveChallenge
	case errors.Is(err, ErrExpired):
		return KindExpired
	case errors.Is(err, ErrCredentialExchangeFailed):
		return KindCredentialExchangeFailed
	default:
		return KindUnknown
	}
}

// UserMessage returns the message a sign-in screen shows for err. Unknown errors keep the
// backend's own text.
func UserMessage(err error) string {
	switch Kind(err) {
	case KindNone:
		return ""
	case KindInvalidInput:
		return "Please check the details you entered."
	case KindInvalidCredentials:
		return "Those credentials are not correct."
	case KindWeakSecret:
		return "Password must be at least 6 characters."
	case KindAlreadyInUse:
		return "An account already exists for this address."
	case KindProviderUnavailable:
		if errors.Is(err, ErrRateLimited) {
			return "Too many attempts. Try again later."
		}
		return "Sign-in is not available right now."
	case KindNoIdentityToken:
		return "The sign-in provider did not return an identity."
	case KindCancelled:
		return "Sign-in was cancelled."
	case KindNoActiveChallenge:
		return "Request a verification code first."
	case KindExpired:
		return "The verification code has expired. Request a new one."
	case KindCredentialExchangeFailed:
		return "Could not complete sign-in. Please try again."
	default:
		return err.Error()
	}
}

// MapBackendError keeps classified errors and context errors as they are and wraps
// anything else as ErrUnknown.
func MapBackendError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if Kind(err) != KindUnknown || errors.Is(err, ErrUnknown) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnknown, err)
}
