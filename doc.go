// Package goSession reconciles password, federated and phone sign-in into one current
// session and keeps navigation consistent with it.
//
// An [Engine] is built once at start-up through [Builder.Build]. Its provider methods
// each produce a [SignInResult] or a classified error, the [SessionStore] holds the one
// current [Session], and an [AuthGuard] redirects a [Router] whenever session and
// location disagree.
//
// # Concurrency model
//
// Provider calls block the calling goroutine until the backend answers. Everything
// reactive (session observers, phone flow observers, backend phone callbacks, guard
// decisions) runs on a single dispatcher, by default an engine-owned [loop.Loop], in the
// order it was posted. Observers therefore never run concurrently with each other.
//
// # Architecture boundaries
//
// goSession is the public surface. Value types live in the identity package and are
// aliased here. Flow orchestration lives under internal/flows and receives the error
// sentinels, metric ids and audit event names of this package through dependency
// structs. The identity backend is an interface; backend/redisbackend is the reference
// implementation.
//
// # What this package must NOT do
//
//   - Persist credentials. A [Credential] is consumed by exactly one exchange.
//   - Mutate the session on a failed sign-in.
//   - Import any sub-package that re-imports goSession (no import cycles).
package goSession
