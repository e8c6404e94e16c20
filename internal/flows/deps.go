package flows

import "context"

// Deps groups flow dependency sets. The root engine builds this once and delegates
// provider methods to the matching flow implementation.
type Deps struct {
	Password  PasswordDeps
	Federated FederatedDeps
	Phone     PhoneDeps
}

// EmitAuditFunc records one audit event. metadata may be nil and is only evaluated when
// auditing is enabled.
type EmitAuditFunc func(ctx context.Context, event string, success bool, userID string, err error, metadata func() map[string]string)

func noopMetricInc(int) {}

func noopEmitAudit(context.Context, string, bool, string, error, func() map[string]string) {}

func identityError(err error) error { return err }

func reasonMetadata(reason string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	}
}
