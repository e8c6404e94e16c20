// Package jwt signs the single-use credential tokens of the reference identity backend
// and verifies external ID tokens (HS256, Ed25519 or RS256) presented by federated
// sign-in.
package jwt
