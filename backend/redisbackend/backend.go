package redisbackend

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/internal/stores"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	credentialAudience = "gosession-credential"

	fieldEmail    = "email"
	fieldPhone    = "phone"
	fieldSecret   = "secret"
	fieldProvider = "provider"
	fieldDisabled = "disabled"
	fieldCreated  = "created"
)

// errUserNotFound is internal; callers see ErrInvalidCredentials or a nil identity.
var errUserNotFound = errors.New("user not found")

// Backend is a goSession.IdentityBackend over Redis.
//
// It plays the role of a hosted identity service for one device: identities, phone
// codes and reset links live in Redis, and the device's current identity is persisted
// under a single key so a restarted process can restore it.
type Backend struct {
	redis  redis.UniversalClient
	config Config

	hasher      *password.Hasher
	credentials *jwt.Manager
	codes       *stores.PhoneCodeStore
	resets      *stores.ResetTokenStore
	sends       *limiters.PhoneSendLimiter

	mu        sync.Mutex
	listeners map[uint64]func(*goSession.Identity)
	nextID    uint64
}

var _ goSession.IdentityBackend = (*Backend)(nil)

// New validates cfg and returns a Backend. An empty SigningKey gets a random one, which
// makes outstanding credentials unusable after a restart.
func New(rdb redis.UniversalClient, cfg Config) (*Backend, error) {
	if rdb == nil {
		return nil, errors.New("redisbackend: redis client is required")
	}
	cfg.applyDefaults()

	hasher, err := password.New(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("redisbackend: %w", err)
	}

	key := cfg.SigningKey
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("redisbackend: signing key: %w", err)
		}
		cfg.Logger.Warn("redisbackend using an ephemeral signing key")
	}
	credentials, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.CredentialTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    key,
		Issuer:        cfg.Issuer,
		Audience:      credentialAudience,
		Now:           cfg.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("redisbackend: %w", err)
	}

	return &Backend{
		redis:       rdb,
		config:      cfg,
		hasher:      hasher,
		credentials: credentials,
		codes:       stores.NewPhoneCodeStore(rdb, cfg.Prefix),
		resets:      stores.NewResetTokenStore(rdb, cfg.Prefix),
		sends: limiters.NewPhoneSendLimiter(rdb, limiters.PhoneSendConfig{
			Limit:  cfg.ResendLimit,
			Window: cfg.ResendWindow,
			Prefix: cfg.Prefix,
		}),
		listeners: make(map[uint64]func(*goSession.Identity)),
	}, nil
}

/*
====================================
KEYS
====================================
*/

func (b *Backend) userKey(userID string) string { return b.config.Prefix + ":u:" + userID }
func (b *Backend) emailKey(email string) string { return b.config.Prefix + ":email:" + email }
func (b *Backend) phoneKey(number string) string { return b.config.Prefix + ":phone:" + number }
func (b *Backend) externalKey(ref string) string { return b.config.Prefix + ":ext:" + ref }
func (b *Backend) credentialKey(jti string) string { return b.config.Prefix + ":cred:" + jti }
func (b *Backend) resendKey(token string) string { return b.config.Prefix + ":rs:" + token }
func (b *Backend) currentKey() string { return b.config.Prefix + ":current" }

/*
====================================
IDENTITY RECORDS
====================================
*/

type userRecord struct {
	ID         string
	Email      string
	Phone      string
	SecretHash string
	Provider   goSession.ProviderKind
	Disabled   bool
}

func (u userRecord) identity(provider goSession.ProviderKind) goSession.Identity {
	if provider == goSession.ProviderUnknown {
		provider = u.Provider
	}
	return goSession.Identity{
		UserID:   u.ID,
		Email:    u.Email,
		Phone:    u.Phone,
		Provider: provider,
	}
}

func (b *Backend) loadUser(ctx context.Context, userID string) (userRecord, error) {
	fields, err := b.redis.HGetAll(ctx, b.userKey(userID)).Result()
	if err != nil {
		return userRecord{}, unavailable(err)
	}
	if len(fields) == 0 {
		return userRecord{}, errUserNotFound
	}
	return userRecord{
		ID:         userID,
		Email:      fields[fieldEmail],
		Phone:      fields[fieldPhone],
		SecretHash: fields[fieldSecret],
		Provider:   goSession.ParseProviderKind(fields[fieldProvider]),
		Disabled:   fields[fieldDisabled] == "1",
	}, nil
}

// lookup resolves an index key to a user id. A missing index is errUserNotFound.
func (b *Backend) lookup(ctx context.Context, indexKey string) (string, error) {
	userID, err := b.redis.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", errUserNotFound
	}
	if err != nil {
		return "", unavailable(err)
	}
	return userID, nil
}

// createUser claims indexKey for a fresh user id and writes the record. It returns
// claimed=false with the existing owner when the index is taken.
func (b *Backend) createUser(ctx context.Context, indexKey string, rec userRecord) (string, bool, error) {
	userID := uuid.NewString()
	claimed, err := b.redis.SetNX(ctx, indexKey, userID, 0).Result()
	if err != nil {
		return "", false, unavailable(err)
	}
	if !claimed {
		owner, err := b.lookup(ctx, indexKey)
		return owner, false, err
	}

	values := map[string]any{
		fieldEmail:    rec.Email,
		fieldPhone:    rec.Phone,
		fieldSecret:   rec.SecretHash,
		fieldProvider: rec.Provider.String(),
		fieldDisabled: "0",
		fieldCreated:  strconv.FormatInt(b.config.Now().Unix(), 10),
	}
	if err := b.redis.HSet(ctx, b.userKey(userID), values).Err(); err != nil {
		b.redis.Del(ctx, indexKey)
		return "", false, unavailable(err)
	}
	return userID, true, nil
}

/*
====================================
CREDENTIALS
====================================
*/

// issueCredential signs a single-use credential for rec and records its jti.
func (b *Backend) issueCredential(ctx context.Context, rec userRecord, provider goSession.ProviderKind) (goSession.Credential, error) {
	jti := uuid.NewString()
	proof, issuedAt, err := b.credentials.IssueCredential(rec.ID, provider.String(), rec.Email, rec.Phone, jti)
	if err != nil {
		return goSession.Credential{}, fmt.Errorf("%w: %v", goSession.ErrUnknown, err)
	}
	if err := b.redis.Set(ctx, b.credentialKey(jti), rec.ID, b.config.CredentialTTL).Err(); err != nil {
		return goSession.Credential{}, unavailable(err)
	}
	return goSession.Credential{
		Provider: provider,
		Proof:    proof,
		IssuedAt: issuedAt,
	}, nil
}

// EstablishSession verifies cred, burns its jti and makes its identity current.
func (b *Backend) EstablishSession(ctx context.Context, cred goSession.Credential) (goSession.Identity, error) {
	claims, err := b.credentials.ParseCredential(cred.Proof)
	if err != nil {
		return goSession.Identity{}, fmt.Errorf("%w: %v", goSession.ErrCredentialExchangeFailed, err)
	}
	provider := goSession.ParseProviderKind(claims.Provider)
	if cred.Provider != goSession.ProviderUnknown && cred.Provider != provider {
		return goSession.Identity{}, fmt.Errorf("%w: provider mismatch", goSession.ErrCredentialExchangeFailed)
	}

	burned, err := b.redis.Del(ctx, b.credentialKey(claims.ID)).Result()
	if err != nil {
		return goSession.Identity{}, unavailable(err)
	}
	if burned == 0 {
		return goSession.Identity{}, fmt.Errorf("%w: credential already used", goSession.ErrCredentialExchangeFailed)
	}

	rec, err := b.loadUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, errUserNotFound) {
			return goSession.Identity{}, fmt.Errorf("%w: identity removed", goSession.ErrCredentialExchangeFailed)
		}
		return goSession.Identity{}, err
	}
	if rec.Disabled {
		return goSession.Identity{}, fmt.Errorf("%w: identity disabled", goSession.ErrCredentialExchangeFailed)
	}

	if err := b.redis.Set(ctx, b.currentKey(), rec.ID+"|"+provider.String(), 0).Err(); err != nil {
		return goSession.Identity{}, unavailable(err)
	}
	ident := rec.identity(provider)
	b.config.Logger.Debug("redisbackend identity established", "user_id", ident.UserID, "provider", provider)
	b.notify(&ident)
	return ident, nil
}

/*
====================================
CURRENT IDENTITY
====================================
*/

// CurrentIdentity returns the persisted current identity. A disabled or removed
// identity is dropped and reported as signed out.
func (b *Backend) CurrentIdentity(ctx context.Context) (*goSession.Identity, error) {
	raw, err := b.redis.Get(ctx, b.currentKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}

	userID, providerName := splitCurrent(raw)
	rec, err := b.loadUser(ctx, userID)
	if err != nil && !errors.Is(err, errUserNotFound) {
		return nil, err
	}
	if err != nil || rec.Disabled {
		if err := b.redis.Del(ctx, b.currentKey()).Err(); err != nil {
			return nil, unavailable(err)
		}
		return nil, nil
	}

	ident := rec.identity(goSession.ParseProviderKind(providerName))
	return &ident, nil
}

// SignOut clears the current identity and notifies listeners with nil.
func (b *Backend) SignOut(ctx context.Context) error {
	if err := b.redis.Del(ctx, b.currentKey()).Err(); err != nil {
		return unavailable(err)
	}
	b.notify(nil)
	return nil
}

// Disable marks userID disabled. When it is the current identity, the identity is
// revoked and listeners receive nil.
func (b *Backend) Disable(ctx context.Context, userID string) error {
	if _, err := b.loadUser(ctx, userID); err != nil {
		if errors.Is(err, errUserNotFound) {
			return fmt.Errorf("%w: %v", goSession.ErrInvalidCredentials, err)
		}
		return err
	}
	if err := b.redis.HSet(ctx, b.userKey(userID), fieldDisabled, "1").Err(); err != nil {
		return unavailable(err)
	}

	raw, err := b.redis.Get(ctx, b.currentKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return unavailable(err)
	}
	if current, _ := splitCurrent(raw); current != userID {
		return nil
	}
	if err := b.redis.Del(ctx, b.currentKey()).Err(); err != nil {
		return unavailable(err)
	}
	b.config.Logger.Info("redisbackend identity revoked", "user_id", userID)
	b.notify(nil)
	return nil
}

// OnIdentityChanged registers fn. Listeners run synchronously on the goroutine that
// changed the identity.
func (b *Backend) OnIdentityChanged(fn func(*goSession.Identity)) func() {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

func (b *Backend) notify(ident *goSession.Identity) {
	b.mu.Lock()
	ids := make([]uint64, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(*goSession.Identity), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.listeners[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		if ident == nil {
			fn(nil)
			continue
		}
		copied := *ident
		fn(&copied)
	}
}

/*
====================================
HELPERS
====================================
*/

// splitCurrent parses the "userID|provider" value of the current-identity key.
func splitCurrent(raw string) (string, string) {
	i := strings.LastIndexByte(raw, '|')
	if i < 0 {
		return raw, ""
	}
	return raw[:i], raw[i+1:]
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", goSession.ErrProviderUnavailable, err)
}
