// Package password hashes identity secrets with Argon2id for the reference backend.
//
// Hashes use the PHC string format with unpadded base64 fields:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsUpgrade] reports hashes produced with weaker parameters so the backend
// can re-hash after the next successful sign-in. The registration minimum is checked by
// the caller; this package only bounds the secret's size.
package password
