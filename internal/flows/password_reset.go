package flows

import (
	"context"
	"strings"
)

// RunSendPasswordReset validates the address and asks the backend to mail a reset link.
func RunSendPasswordReset(ctx context.Context, identifier string, deps PasswordDeps) error {
	normalizePasswordDeps(&deps)
	identifier = strings.TrimSpace(identifier)

	if deps.SendReset == nil {
		return deps.Errors.EngineNotReady
	}
	if !ValidIdentifier(identifier) {
		deps.EmitAudit(ctx, deps.Events.ResetRequested, false, "", deps.Errors.InvalidInput, reasonMetadata("invalid_input"))
		return deps.Errors.InvalidInput
	}

	if err := deps.SendReset(ctx, identifier); err != nil {
		mapped := deps.MapBackendError(err)
		deps.EmitAudit(ctx, deps.Events.ResetRequested, false, "", mapped, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
			}
		})
		return mapped
	}

	deps.MetricInc(deps.Metrics.ResetRequested)
	deps.EmitAudit(ctx, deps.Events.ResetRequested, true, "", nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
		}
	})
	return nil
}
