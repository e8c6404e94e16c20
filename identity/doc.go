// Package identity holds the value types shared by every layer of goSession: provider
// kinds, credentials, backend identities, sessions and phone challenges.
//
// # Architecture boundaries
//
// This is the leaf of the import graph. The root package re-exports these types as
// aliases; internal flows, the persisted session cache and backends use them directly.
//
// # What this package must NOT do
//
//   - Import any other goSession package.
//   - Carry behavior beyond small accessors (labels, string forms).
package identity
