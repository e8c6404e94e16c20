// Package stores keeps short-lived verification records in Redis for the reference
// identity backend: phone codes and password reset links.
//
// Each record is a versioned binary encoding with a TTL. Only hashes of codes and
// secrets are stored. Consume is single use: a match deletes the record, a mismatch
// counts an attempt, and reaching the attempt limit deletes the record. Phone codes are
// checked by a Lua script in one round trip; reset links use WATCH/MULTI with retry.
//
// This package does not generate codes or decide what a failure means for the caller.
package stores
