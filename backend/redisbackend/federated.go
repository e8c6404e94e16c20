package redisbackend

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
)

// ExchangeExternalToken verifies an external ID token and returns a federated
// credential. The external subject is linked to an identity on first use. A verified
// email that already belongs to an identity links to it; an unverified one is
// ErrAlreadyInUse.
func (b *Backend) ExchangeExternalToken(ctx context.Context, token string) (goSession.Credential, error) {
	if b.config.ExternalVerifier == nil {
		return goSession.Credential{}, fmt.Errorf("%w: no external token verifier", goSession.ErrProviderUnavailable)
	}
	claims, err := b.config.ExternalVerifier.ParseIdentity(token)
	if err != nil {
		return goSession.Credential{}, fmt.Errorf("%w: %v", goSession.ErrInvalidCredentials, err)
	}

	extKey := b.externalKey(claims.Issuer + "|" + claims.Subject)
	userID, err := b.lookup(ctx, extKey)
	switch {
	case err == nil:
	case errors.Is(err, errUserNotFound):
		userID, err = b.linkExternal(ctx, extKey, normalizeEmail(claims.Email), claims.EmailVerified, claims.PhoneNumber)
		if err != nil {
			return goSession.Credential{}, err
		}
	default:
		return goSession.Credential{}, err
	}

	rec, err := b.loadUser(ctx, userID)
	if err != nil {
		return goSession.Credential{}, invalidIfMissing(err)
	}
	if rec.Disabled {
		return goSession.Credential{}, goSession.ErrInvalidCredentials
	}
	return b.issueCredential(ctx, rec, goSession.ProviderFederated)
}

func (b *Backend) linkExternal(ctx context.Context, extKey, email string, emailVerified bool, phoneNumber string) (string, error) {
	if email != "" {
		owner, err := b.lookup(ctx, b.emailKey(email))
		switch {
		case err == nil:
			if !emailVerified {
				return "", goSession.ErrAlreadyInUse
			}
			if err := b.redis.SetNX(ctx, extKey, owner, 0).Err(); err != nil {
				return "", unavailable(err)
			}
			return b.lookup(ctx, extKey)
		case !errors.Is(err, errUserNotFound):
			return "", err
		}
	}

	rec := userRecord{
		Email:    email,
		Phone:    phoneNumber,
		Provider: goSession.ProviderFederated,
	}
	userID, created, err := b.createUser(ctx, extKey, rec)
	if err != nil {
		return "", err
	}
	if created && email != "" {
		if err := b.redis.SetNX(ctx, b.emailKey(email), userID, 0).Err(); err != nil {
			return "", unavailable(err)
		}
	}
	if created {
		b.config.Logger.Info("redisbackend identity created", "user_id", userID, "provider", goSession.ProviderFederated)
	}
	return userID, nil
}
