package jwt

import (
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWS algorithm a Manager signs and accepts.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
	// MethodRS256 is what most external identity providers sign ID tokens with.
	MethodRS256 SigningMethod = "rs256"
)

// Config configures a Manager.
//
// PrivateKey is only needed to issue tokens. A verify-only Manager (for external ID
// tokens) sets PublicKey or VerifyKeys. HS256 uses PrivateKey for both directions.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	Now           func() time.Time
}

// Manager issues and verifies signed tokens.
type Manager struct {
	config Config
}

// CredentialClaims are carried by the single-use credential tokens the reference
// backend hands to the engine. Subject is the user id and ID the one-time jti.
type CredentialClaims struct {
	Provider string `json:"prv"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// IdentityClaims are the claims read from an external provider's ID token.
type IdentityClaims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and parses its keys once.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
	case MethodRS256:
		if len(cfg.PrivateKey) > 0 {
			if _, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKey); err != nil {
				return nil, errors.New("invalid rsa private key")
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := jwt.ParseRSAPublicKeyFromPEM(cfg.PublicKey); err != nil {
				return nil, errors.New("invalid rsa public key")
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("rs256 requires public key or verify key set")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	m := &Manager{config: cfg}
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if _, err := m.keyBytesToVerifyKey(key); err != nil {
			return nil, fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
		}
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}
	return m, nil
}

// IssueCredential signs a credential token for userID. jti must be unique; the backend
// records it to enforce single use.
func (j *Manager) IssueCredential(userID, provider, email, phone, jti string) (string, time.Time, error) {
	if userID == "" || jti == "" {
		return "", time.Time{}, errors.New("credential requires subject and jti")
	}
	if j.config.TTL <= 0 {
		return "", time.Time{}, errors.New("manager cannot issue without TTL")
	}

	now := j.config.Now()
	claims := CredentialClaims{
		Provider: provider,
		Email:    email,
		Phone:    phone,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.TTL)),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	signed, err := j.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, now, nil
}

// ParseCredential verifies a credential token and returns its claims.
func (j *Manager) ParseCredential(tokenStr string) (*CredentialClaims, error) {
	claims := &CredentialClaims{}
	if err := j.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// ParseIdentity verifies an external ID token. Subject is required.
func (j *Manager) ParseIdentity(tokenStr string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	if err := j.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// SignIdentity signs an ID token. It exists for test identity providers and the demo.
func (j *Manager) SignIdentity(claims IdentityClaims) (string, error) {
	if claims.IssuedAt == nil {
		now := j.config.Now()
		claims.IssuedAt = jwt.NewNumericDate(now)
		if claims.ExpiresAt == nil && j.config.TTL > 0 {
			claims.ExpiresAt = jwt.NewNumericDate(now.Add(j.config.TTL))
		}
	}
	if claims.Issuer == "" {
		claims.Issuer = j.config.Issuer
	}
	if len(claims.Audience) == 0 && j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	return j.sign(claims)
}

func (j *Manager) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(signKey)
}

func (j *Manager) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithTimeFunc(j.config.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		if len(j.config.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := j.config.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return j.keyBytesToVerifyKey(key)
		}

		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}

		return j.getVerifyKey()
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	case MethodRS256:
		return jwt.SigningMethodRS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	if len(j.config.PrivateKey) == 0 {
		return nil, errors.New("manager has no private key")
	}
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	case MethodRS256:
		return jwt.ParseRSAPrivateKeyFromPEM(j.config.PrivateKey)
	default:
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return j.keyBytesToVerifyKey(j.config.PublicKey)
	}
}

func (j *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	case MethodRS256:
		return parseRSAPublicKey(key)
	default:
		return parseEdPublicKey(key)
	}
}

func parseRSAPublicKey(key []byte) (*rsa.PublicKey, error) {
	pub, err := jwt.ParseRSAPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid rsa public key")
	}
	return pub, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
