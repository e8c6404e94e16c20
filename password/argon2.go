package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// MaxSecretBytes bounds the cost of hashing one secret.
const MaxSecretBytes = 1024

const variant = "argon2id"

var (
	ErrSecretTooLong = errors.New("password: secret exceeds maximum length")
	ErrMalformedHash = errors.New("password: malformed hash")
)

var b64 = base64.RawStdEncoding

// Config holds the Argon2id cost parameters.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c Config) validate() error {
	switch {
	case c.Memory < 8*1024:
		return errors.New("password: memory must be >= 8192 KiB")
	case c.Time < 1:
		return errors.New("password: time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password: parallelism must be >= 1")
	case c.SaltLength < 16:
		return errors.New("password: salt length must be >= 16")
	case c.KeyLength < 16:
		return errors.New("password: key length must be >= 16")
	}
	return nil
}

// Hasher hashes and verifies secrets with one set of parameters.
type Hasher struct {
	cfg Config
}

func New(cfg Config) (*Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Hasher{cfg: cfg}, nil
}

// Hash encodes secret with a fresh salt.
func (h *Hasher) Hash(secret string) (string, error) {
	if len(secret) > MaxSecretBytes {
		return "", ErrSecretTooLong
	}
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret), salt, h.cfg.Time, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		variant, argon2.Version, h.cfg.Memory, h.cfg.Time, h.cfg.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify reports whether secret matches encoded, using the parameters stored in it.
func (h *Hasher) Verify(secret, encoded string) (bool, error) {
	if len(secret) > MaxSecretBytes {
		return false, ErrSecretTooLong
	}
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(secret), p.salt, p.cfg.Time, p.cfg.Memory, p.cfg.Parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1, nil
}

// NeedsUpgrade reports whether encoded is weaker than the current parameters or uses a
// different key length.
func (h *Hasher) NeedsUpgrade(encoded string) (bool, error) {
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}
	weaker := p.cfg.Memory < h.cfg.Memory || p.cfg.Time < h.cfg.Time || p.cfg.Parallelism < h.cfg.Parallelism
	return weaker || uint32(len(p.key)) != h.cfg.KeyLength, nil
}

type phc struct {
	cfg  Config
	salt []byte
	key  []byte
}

func decode(encoded string) (phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != variant {
		return phc{}, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return phc{}, fmt.Errorf("%w: version %q", ErrMalformedHash, parts[2])
	}

	var p phc
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.cfg.Memory, &p.cfg.Time, &p.cfg.Parallelism); err != nil {
		return phc{}, fmt.Errorf("%w: parameters %q", ErrMalformedHash, parts[3])
	}
	var err error
	if p.salt, err = b64.DecodeString(parts[4]); err != nil {
		return phc{}, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if p.key, err = b64.DecodeString(parts[5]); err != nil {
		return phc{}, fmt.Errorf("%w: key", ErrMalformedHash)
	}

	p.cfg.SaltLength = uint32(len(p.salt))
	p.cfg.KeyLength = uint32(len(p.key))
	if err := p.cfg.validate(); err != nil {
		return phc{}, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	return p, nil
}
