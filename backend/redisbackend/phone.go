package redisbackend

import (
	"context"
	"errors"
	"fmt"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/internal/stores"
	"github.com/MrEthical07/goSession/phone"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SendPhoneCode stores a fresh code for number and delivers it asynchronously. The
// outcome arrives through cb. A resendToken from an earlier CodeSent discards that
// earlier verification id.
//
// Test numbers get their fixed code; CodeSent and AutoVerified follow immediately
// without an SMS.
func (b *Backend) SendPhoneCode(ctx context.Context, number string, timeout time.Duration, resendToken string, cb goSession.PhoneCallbacks) error {
	if !phone.LooksE164(number) {
		return fmt.Errorf("%w: number is not in E.164 form", goSession.ErrInvalidInput)
	}

	if err := b.sends.CheckSend(ctx, number); err != nil {
		if errors.Is(err, limiters.ErrPhoneSendRateLimited) {
			b.config.Logger.Debug("redisbackend phone send throttled", "number", number)
			b.config.Spawn(func() { cb.Failed(goSession.ErrRateLimited) })
			return nil
		}
		return unavailable(err)
	}

	if resendToken != "" {
		b.discardPrevious(ctx, resendToken)
	}

	testCode, isTestNumber := b.config.TestNumbers[number]
	code := testCode
	if !isTestNumber {
		var err error
		code, err = internal.NewNumericCode(b.config.CodeDigits)
		if err != nil {
			return fmt.Errorf("%w: %v", goSession.ErrUnknown, err)
		}
	}

	verificationID := uuid.NewString()
	record := &stores.PhoneCodeRecord{
		Number:   number,
		CodeHash: internal.HashSecret(code),
	}
	if err := b.codes.Save(ctx, verificationID, record, b.config.CodeTTL); err != nil {
		return unavailable(err)
	}

	token, err := internal.NewOpaqueToken()
	if err != nil {
		return fmt.Errorf("%w: %v", goSession.ErrUnknown, err)
	}
	if err := b.redis.Set(ctx, b.resendKey(token), verificationID, b.config.CodeTTL).Err(); err != nil {
		return unavailable(err)
	}

	if isTestNumber {
		b.config.Spawn(func() {
			cb.CodeSent(verificationID, token)
			cred, err := b.ConfirmPhoneCode(ctx, verificationID, code)
			if err != nil {
				cb.Failed(err)
				return
			}
			cb.AutoVerified(cred)
		})
		return nil
	}

	b.config.Spawn(func() {
		sendCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := b.config.SMS.SendCode(sendCtx, number, code); err != nil {
			b.config.Logger.Warn("redisbackend sms delivery failed", "number", number, "error", err)
			cb.Failed(unavailable(err))
			return
		}
		cb.CodeSent(verificationID, token)
	})
	return nil
}

// discardPrevious drops the verification id behind resendToken. Unknown tokens are
// ignored; a resend still issues a new code.
func (b *Backend) discardPrevious(ctx context.Context, resendToken string) {
	previous, err := b.redis.GetDel(ctx, b.resendKey(resendToken)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			b.config.Logger.Warn("redisbackend resend lookup failed", "error", err)
		}
		return
	}
	if err := b.codes.Delete(ctx, previous); err != nil {
		b.config.Logger.Warn("redisbackend discard previous code failed", "error", err)
	}
}

// ConfirmPhoneCode checks code for verificationID and returns a phone credential. The
// first confirmation of a number creates its identity.
func (b *Backend) ConfirmPhoneCode(ctx context.Context, verificationID, code string) (goSession.Credential, error) {
	record, err := b.codes.Consume(ctx, verificationID, internal.HashSecret(code), b.config.MaxConfirmAttempts)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrPhoneCodeMismatch):
			return goSession.Credential{}, goSession.ErrInvalidCredentials
		case errors.Is(err, stores.ErrPhoneCodeNotFound), errors.Is(err, stores.ErrPhoneCodeAttemptsExceeded):
			return goSession.Credential{}, fmt.Errorf("%w: %v", goSession.ErrExpired, err)
		default:
			return goSession.Credential{}, unavailable(err)
		}
	}

	rec := userRecord{
		Phone:    record.Number,
		Provider: goSession.ProviderPhone,
	}
	userID, created, err := b.createUser(ctx, b.phoneKey(record.Number), rec)
	if err != nil {
		return goSession.Credential{}, err
	}
	if created {
		rec.ID = userID
		b.config.Logger.Info("redisbackend identity created", "user_id", userID, "provider", goSession.ProviderPhone)
	} else {
		rec, err = b.loadUser(ctx, userID)
		if err != nil {
			return goSession.Credential{}, invalidIfMissing(err)
		}
	}
	if rec.Disabled {
		return goSession.Credential{}, goSession.ErrInvalidCredentials
	}

	return b.issueCredential(ctx, rec, goSession.ProviderPhone)
}
