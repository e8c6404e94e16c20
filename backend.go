package goSession

import (
	"context"
	"time"
)

// IdentityBackend is the external identity system every provider talks to.
//
// Errors should wrap the taxonomy sentinels (ErrInvalidCredentials, ErrAlreadyInUse,
// ErrExpired, ...) so the engine can classify them. Anything unclassified is reported
// to callers as ErrUnknown with the backend's message kept.
type IdentityBackend interface {
	// SignIn verifies an email and secret and returns a credential for them.
	SignIn(ctx context.Context, email, secret string) (Credential, error)
	// CreateIdentity registers a new email identity and returns a credential for it.
	CreateIdentity(ctx context.Context, email, secret string) (Credential, error)
	// ExchangeExternalToken turns a federated ID token into a credential.
	ExchangeExternalToken(ctx context.Context, token string) (Credential, error)

	// SendPhoneCode asks for a code to be sent to number. The outcome is delivered
	// later through exactly one of cb.CodeSent or cb.Failed, optionally followed or
	// replaced by cb.AutoVerified. A synchronous error means nothing was sent.
	SendPhoneCode(ctx context.Context, number string, timeout time.Duration, resendToken string, cb PhoneCallbacks) error
	// ConfirmPhoneCode exchanges a verification id and code for a credential.
	ConfirmPhoneCode(ctx context.Context, verificationID, code string) (Credential, error)

	// EstablishSession consumes cred and makes its identity the backend's current one.
	EstablishSession(ctx context.Context, cred Credential) (Identity, error)
	// CurrentIdentity returns the backend's current identity, or nil when signed out.
	CurrentIdentity(ctx context.Context) (*Identity, error)
	// SignOut clears the backend's current identity.
	SignOut(ctx context.Context) error
	// OnIdentityChanged registers fn for changes of the current identity. A nil identity
	// means signed out or revoked. The returned func unregisters fn.
	OnIdentityChanged(fn func(*Identity)) func()

	// SendPasswordReset mails a reset link to email.
	SendPasswordReset(ctx context.Context, email string) error
}

// ConsentUI runs the interactive step of a federated sign-in and returns the external
// ID token. A user who closes the consent step is reported with an error wrapping
// ErrCancelled.
type ConsentUI interface {
	Launch(ctx context.Context) (string, error)
}

// ConsentFunc adapts a function to ConsentUI.
type ConsentFunc func(ctx context.Context) (string, error)

func (f ConsentFunc) Launch(ctx context.Context) (string, error) {
	return f(ctx)
}
