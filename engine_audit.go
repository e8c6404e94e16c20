package goSession

import (
	"context"
	"errors"
)

const (
	auditEventPasswordSignInSuccess  = "password_sign_in_success"
	auditEventPasswordSignInFailure  = "password_sign_in_failure"
	auditEventRegisterSuccess        = "register_success"
	auditEventRegisterFailure        = "register_failure"
	auditEventPasswordResetRequest   = "password_reset_request"
	auditEventFederatedSignInSuccess = "federated_sign_in_success"
	auditEventFederatedSignInFailure = "federated_sign_in_failure"
	auditEventFederatedCancelled     = "federated_cancelled"
	auditEventPhoneCodeSent          = "phone_code_sent"
	auditEventPhoneSendFailure       = "phone_send_failure"
	auditEventPhoneConfirmSuccess    = "phone_confirm_success"
	auditEventPhoneConfirmFailure    = "phone_confirm_failure"
	auditEventPhoneExpired           = "phone_expired"
)

// AuditErrorCode is the stable error label recorded on failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrWeakSecret         AuditErrorCode = "weak_secret"
	auditErrAlreadyInUse       AuditErrorCode = "already_in_use"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUnavailable        AuditErrorCode = "provider_unavailable"
	auditErrNoIdentityToken    AuditErrorCode = "no_identity_token"
	auditErrNoActiveChallenge  AuditErrorCode = "no_active_challenge"
	auditErrExpired            AuditErrorCode = "expired"
	auditErrExchangeFailed     AuditErrorCode = "credential_exchange_failed"
	auditErrCancelled          AuditErrorCode = "cancelled"
	auditErrInvalidState       AuditErrorCode = "invalid_state"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	provider ProviderKind,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["client_ip"] = ip
	}
	if device := deviceFromContext(ctx); device != "" {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["device"] = device
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Success:   success,
		Metadata:  metadata,
	}
	if provider != ProviderUnknown {
		event.Provider = provider.String()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// flowAudit binds emitAudit to one provider for the internal flows.
func (e *Engine) flowAudit(provider ProviderKind) func(context.Context, string, bool, string, error, func() map[string]string) {
	return func(ctx context.Context, event string, success bool, userID string, err error, metadata func() map[string]string) {
		e.emitAudit(ctx, provider, event, success, userID, err, metadata)
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrWeakSecret):
		return auditErrWeakSecret
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAlreadyInUse):
		return auditErrAlreadyInUse
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrEngineNotReady),
		errors.Is(err, ErrEngineClosed):
		return auditErrUnavailable
	case errors.Is(err, ErrNoIdentityToken):
		return auditErrNoIdentityToken
	case errors.Is(err, ErrNoActiveChallenge):
		return auditErrNoActiveChallenge
	case errors.Is(err, ErrExpired),
		errors.Is(err, context.DeadlineExceeded):
		return auditErrExpired
	case errors.Is(err, ErrCredentialExchangeFailed):
		return auditErrExchangeFailed
	case errors.Is(err, ErrCancelled),
		errors.Is(err, context.Canceled):
		return auditErrCancelled
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrFlowClosed):
		return auditErrInvalidState
	default:
		return auditErrInternal
	}
}
