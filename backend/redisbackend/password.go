package redisbackend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/internal/stores"
	"github.com/MrEthical07/goSession/password"
	"github.com/google/uuid"
)

const maxResetAttempts = 5

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignIn verifies email and secret. Unknown addresses, wrong secrets and disabled
// identities all report ErrInvalidCredentials.
func (b *Backend) SignIn(ctx context.Context, email, secret string) (goSession.Credential, error) {
	email = normalizeEmail(email)
	userID, err := b.lookup(ctx, b.emailKey(email))
	if err != nil {
		return goSession.Credential{}, invalidIfMissing(err)
	}
	rec, err := b.loadUser(ctx, userID)
	if err != nil {
		return goSession.Credential{}, invalidIfMissing(err)
	}
	if rec.SecretHash == "" || rec.Disabled {
		return goSession.Credential{}, goSession.ErrInvalidCredentials
	}

	ok, err := b.hasher.Verify(secret, rec.SecretHash)
	if err != nil {
		if errors.Is(err, password.ErrSecretTooLong) {
			return goSession.Credential{}, goSession.ErrInvalidCredentials
		}
		return goSession.Credential{}, fmt.Errorf("%w: %v", goSession.ErrUnknown, err)
	}
	if !ok {
		return goSession.Credential{}, goSession.ErrInvalidCredentials
	}

	if upgrade, err := b.hasher.NeedsUpgrade(rec.SecretHash); err == nil && upgrade {
		if hash, err := b.hasher.Hash(secret); err == nil {
			if err := b.redis.HSet(ctx, b.userKey(rec.ID), fieldSecret, hash).Err(); err != nil {
				b.config.Logger.Warn("redisbackend secret rehash failed", "user_id", rec.ID, "error", err)
			}
		}
	}

	return b.issueCredential(ctx, rec, goSession.ProviderPassword)
}

// CreateIdentity registers email with secret. A taken address is ErrAlreadyInUse.
func (b *Backend) CreateIdentity(ctx context.Context, email, secret string) (goSession.Credential, error) {
	email = normalizeEmail(email)
	if utf8.RuneCountInString(secret) < b.config.MinSecretLength {
		return goSession.Credential{}, goSession.ErrWeakSecret
	}
	hash, err := b.hasher.Hash(secret)
	if err != nil {
		return goSession.Credential{}, fmt.Errorf("%w: %v", goSession.ErrInvalidInput, err)
	}

	rec := userRecord{
		Email:      email,
		SecretHash: hash,
		Provider:   goSession.ProviderPassword,
	}
	userID, created, err := b.createUser(ctx, b.emailKey(email), rec)
	if err != nil {
		return goSession.Credential{}, err
	}
	if !created {
		return goSession.Credential{}, goSession.ErrAlreadyInUse
	}
	rec.ID = userID

	b.config.Logger.Info("redisbackend identity created", "user_id", userID, "provider", goSession.ProviderPassword)
	return b.issueCredential(ctx, rec, goSession.ProviderPassword)
}

// SendPasswordReset stores a reset record for email and mails the link. The link
// carries the record id and a random secret; only the secret's hash is stored.
func (b *Backend) SendPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	userID, err := b.lookup(ctx, b.emailKey(email))
	if err != nil {
		return invalidIfMissing(err)
	}

	secret, err := internal.NewOpaqueToken()
	if err != nil {
		return fmt.Errorf("%w: %v", goSession.ErrUnknown, err)
	}
	resetID := uuid.NewString()
	expiresAt := b.config.Now().Add(b.config.ResetTTL)
	record := &stores.ResetRecord{
		UserID:     userID,
		Email:      email,
		SecretHash: internal.HashSecret(secret),
		ExpiresAt:  expiresAt.Unix(),
	}
	if err := b.resets.Save(ctx, resetID, record, b.config.ResetTTL); err != nil {
		return unavailable(err)
	}

	link, err := resetLink(b.config.ResetURL, resetID, secret)
	if err != nil {
		return fmt.Errorf("%w: %v", goSession.ErrUnknown, err)
	}
	if err := b.config.Mailer.SendReset(ctx, ResetMail{To: email, Link: link, ExpiresAt: expiresAt}); err != nil {
		return unavailable(err)
	}
	b.config.Logger.Info("redisbackend password reset sent", "user_id", userID)
	return nil
}

// ResetPassword consumes a reset link and replaces the identity's secret. An unknown,
// used or expired link is ErrExpired; a wrong secret is ErrInvalidCredentials.
func (b *Backend) ResetPassword(ctx context.Context, resetID, secret, newSecret string) error {
	if utf8.RuneCountInString(newSecret) < b.config.MinSecretLength {
		return goSession.ErrWeakSecret
	}
	hash, err := b.hasher.Hash(newSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", goSession.ErrInvalidInput, err)
	}

	record, err := b.resets.Consume(ctx, resetID, internal.HashSecret(secret), maxResetAttempts)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrResetNotFound), errors.Is(err, stores.ErrResetAttemptsExceeded):
			return fmt.Errorf("%w: %v", goSession.ErrExpired, err)
		case errors.Is(err, stores.ErrResetSecretMismatch):
			return goSession.ErrInvalidCredentials
		default:
			return unavailable(err)
		}
	}

	if err := b.redis.HSet(ctx, b.userKey(record.UserID), fieldSecret, hash).Err(); err != nil {
		return unavailable(err)
	}
	b.config.Logger.Info("redisbackend password reset completed", "user_id", record.UserID)
	return nil
}

func resetLink(base, resetID, secret string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("id", resetID)
	q.Set("token", secret)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func invalidIfMissing(err error) error {
	if errors.Is(err, errUserNotFound) {
		return goSession.ErrInvalidCredentials
	}
	return err
}
