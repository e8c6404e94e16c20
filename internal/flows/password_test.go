package flows

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goSession/identity"
)

type passwordBackend struct {
	signInCalls   int
	createCalls   int
	resetCalls    int
	signInErr     error
	createErr     error
	resetErr      error
	establishErr  error
	auditedEvents []string
}

func newPasswordDeps(b *passwordBackend) PasswordDeps {
	return PasswordDeps{
		MinSecretLength: 6,
		SignIn: func(_ context.Context, identifier, _ string) (identity.Credential, error) {
			b.signInCalls++
			if b.signInErr != nil {
				return identity.Credential{}, b.signInErr
			}
			return identity.Credential{Provider: identity.ProviderPassword, Proof: identifier}, nil
		},
		CreateIdentity: func(_ context.Context, identifier, _ string) (identity.Credential, error) {
			b.createCalls++
			if b.createErr != nil {
				return identity.Credential{}, b.createErr
			}
			return identity.Credential{Provider: identity.ProviderPassword, Proof: identifier}, nil
		},
		SendReset: func(context.Context, string) error {
			b.resetCalls++
			return b.resetErr
		},
		Establish: func(_ context.Context, cred identity.Credential) (identity.Session, error) {
			if b.establishErr != nil {
				return identity.Session{}, b.establishErr
			}
			return identity.Session{Provider: cred.Provider, UserID: "u-" + cred.Proof, DisplayLabel: cred.Proof}, nil
		},
		EmitAudit: func(_ context.Context, event string, _ bool, _ string, _ error, _ func() map[string]string) {
			b.auditedEvents = append(b.auditedEvents, event)
		},
		Events: PasswordEvents{
			SignInSuccess:   "sign_in_success",
			SignInFailure:   "sign_in_failure",
			RegisterSuccess: "register_success",
			RegisterFailure: "register_failure",
			ResetRequested:  "reset_requested",
		},
		Errors: PasswordErrors{
			EngineNotReady: errTestNotReady,
			InvalidInput:   errTestInvalidInput,
			WeakSecret:     errTestWeakSecret,
		},
	}
}

func TestPasswordSignInSuccess(t *testing.T) {
	b := &passwordBackend{}
	sess, err := RunPasswordSignIn(context.Background(), " alice@example.com ", "secret1", newPasswordDeps(b))
	if err != nil {
		t.Fatalf("RunPasswordSignIn failed: %v", err)
	}
	if sess.UserID != "u-alice@example.com" || sess.Provider != identity.ProviderPassword {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if len(b.auditedEvents) != 1 || b.auditedEvents[0] != "sign_in_success" {
		t.Fatalf("unexpected audit events: %v", b.auditedEvents)
	}
}

func TestPasswordSignInInvalidInputSkipsBackend(t *testing.T) {
	cases := []struct {
		name       string
		identifier string
		secret     string
	}{
		{name: "empty identifier", identifier: "", secret: "secret1"},
		{name: "malformed identifier", identifier: "alice", secret: "secret1"},
		{name: "empty secret", identifier: "alice@example.com", secret: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &passwordBackend{}
			_, err := RunPasswordSignIn(context.Background(), tc.identifier, tc.secret, newPasswordDeps(b))
			if !errors.Is(err, errTestInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			if b.signInCalls != 0 {
				t.Fatalf("expected no backend call")
			}
		})
	}
}

func TestPasswordSignInNeverReportsWeakSecret(t *testing.T) {
	b := &passwordBackend{signInErr: errTestInvalidCreds}
	_, err := RunPasswordSignIn(context.Background(), "alice@example.com", "abc", newPasswordDeps(b))
	if !errors.Is(err, errTestInvalidCreds) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if b.signInCalls != 1 {
		t.Fatalf("expected short secret to reach the backend")
	}
}

func TestPasswordSignInEstablishFailure(t *testing.T) {
	b := &passwordBackend{establishErr: errTestExchange}
	_, err := RunPasswordSignIn(context.Background(), "alice@example.com", "secret1", newPasswordDeps(b))
	if !errors.Is(err, errTestExchange) {
		t.Fatalf("expected exchange failure, got %v", err)
	}
}

func TestRegisterWeakSecret(t *testing.T) {
	b := &passwordBackend{}
	_, err := RunRegister(context.Background(), "alice@example.com", "12345", newPasswordDeps(b))
	if !errors.Is(err, errTestWeakSecret) {
		t.Fatalf("expected weak secret, got %v", err)
	}
	if b.createCalls != 0 {
		t.Fatalf("expected no backend call for weak secret")
	}
}

func TestRegisterInvalidInputBeforeWeakSecret(t *testing.T) {
	b := &passwordBackend{}
	_, err := RunRegister(context.Background(), "not-an-email", "1", newPasswordDeps(b))
	if !errors.Is(err, errTestInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRegisterCountsCharactersNotBytes(t *testing.T) {
	b := &passwordBackend{}
	if _, err := RunRegister(context.Background(), "alice@example.com", "ééééé", newPasswordDeps(b)); !errors.Is(err, errTestWeakSecret) {
		t.Fatalf("expected five characters to be weak, got %v", err)
	}
	if _, err := RunRegister(context.Background(), "alice@example.com", "éééééé", newPasswordDeps(b)); err != nil {
		t.Fatalf("expected six characters to pass, got %v", err)
	}
}

func TestRegisterAlreadyInUse(t *testing.T) {
	b := &passwordBackend{createErr: errTestAlreadyInUse}
	_, err := RunRegister(context.Background(), "alice@example.com", "secret1", newPasswordDeps(b))
	if !errors.Is(err, errTestAlreadyInUse) {
		t.Fatalf("expected already in use, got %v", err)
	}
	if got := b.auditedEvents[len(b.auditedEvents)-1]; got != "register_failure" {
		t.Fatalf("expected register failure audit, got %q", got)
	}
}

func TestPasswordFlowsNotReady(t *testing.T) {
	deps := PasswordDeps{Errors: PasswordErrors{EngineNotReady: errTestNotReady}}
	if _, err := RunPasswordSignIn(context.Background(), "alice@example.com", "secret1", deps); !errors.Is(err, errTestNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	if _, err := RunRegister(context.Background(), "alice@example.com", "secret1", deps); !errors.Is(err, errTestNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	if err := RunSendPasswordReset(context.Background(), "alice@example.com", deps); !errors.Is(err, errTestNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
}

func TestSendPasswordReset(t *testing.T) {
	b := &passwordBackend{}
	if err := RunSendPasswordReset(context.Background(), "alice@example.com", newPasswordDeps(b)); err != nil {
		t.Fatalf("RunSendPasswordReset failed: %v", err)
	}
	if b.resetCalls != 1 {
		t.Fatalf("expected backend reset call")
	}

	if err := RunSendPasswordReset(context.Background(), "bad", newPasswordDeps(b)); !errors.Is(err, errTestInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	b.resetErr = errTestInvalidCreds
	if err := RunSendPasswordReset(context.Background(), "ghost@example.com", newPasswordDeps(b)); !errors.Is(err, errTestInvalidCreds) {
		t.Fatalf("expected unknown address error, got %v", err)
	}
}
