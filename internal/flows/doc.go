// Package flows contains the orchestrators behind every Engine sign-in operation.
//
// Password and federated flows are plain functions (RunPasswordSignIn, RunRegister,
// RunFederatedSignIn, RunSendPasswordReset) that accept a typed dependency struct and
// return results without side-effects beyond those dependencies. The phone flow is a
// small state machine ([PhoneMachine]) because its inputs arrive as asynchronous
// callbacks; its transitions are listed in one table so the auto-verify race and the
// resend-discard rule can be tested on their own.
//
// # Architecture boundaries
//
// Flows coordinate calls to the identity backend, the session exchange step, metrics
// and audit. They do NOT own any of these resources; ownership stays with the Engine.
// Host sentinel errors, metric ids and audit event names are passed in through the
// *Errors, *Metrics and *Events structs.
//
// # What this package must NOT do
//
//   - Import goSession (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency funcs.
//   - Invoke observers inline; observer delivery always goes through the dispatcher.
package flows
