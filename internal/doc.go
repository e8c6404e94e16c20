// Package internal contains helper utilities that are intentionally private to goSession,
// mainly secure random generation for codes and tokens.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: provider orchestrators and the phone verification state machine
//   - metrics: padded atomic counters and the sign-in latency histogram
//   - limiters: Redis fixed-window throttles used by the reference backend
//   - stores: Redis records with atomic consume scripts used by the reference backend
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Be imported by any package outside the goSession module.
package internal
