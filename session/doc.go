// Package session persists the last established session in Redis with a compact
// binary encoding.
//
// # Binary encoding
//
// Sessions are stored as versioned binary blobs (v1, v2). Decoding accepts every known
// version; new versions add fields but never reinterpret old ones.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the wire layout. It does NOT
// decide when a session is established or cleared; that belongs to the engine's
// SessionStore, which uses this package as a best-effort cache.
//
// # What this package must NOT do
//
//   - Import goSession (no upward imports).
//   - Store credentials or secrets.
package session
