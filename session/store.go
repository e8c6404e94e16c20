package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/identity"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no session is stored under a key.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	fieldBlob = "blob"
	fieldUser = "uid"
)

// deleteIfOwnerScript removes the key only while it still belongs to ARGV[1], so a
// sign-out never clears a session that another process stored since.
const deleteIfOwnerScript = `
local owner = redis.call("HGET", KEYS[1], "uid")
if not owner then
  return 0
end
if ARGV[1] ~= "" and owner ~= ARGV[1] then
  return -1
end
redis.call("DEL", KEYS[1])
return 1
`

var deleteIfOwnerLua = redis.NewScript(deleteIfOwnerScript)

// Store persists the last established session in Redis so it can be matched on the
// next start.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore returns a store that keeps sessions under "<prefix>:sess:<key>".
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "gs"
	}
	return &Store{
		redis:  rdb,
		prefix: prefix,
	}
}

func (s *Store) key(name string) string {
	return s.prefix + ":sess:" + name
}

// Save stores sess under name. A ttl <= 0 keeps it without expiry.
func (s *Store) Save(ctx context.Context, name string, sess identity.Session, ttl time.Duration) error {
	blob, err := Encode(sess)
	if err != nil {
		return err
	}

	key := s.key(name)
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fieldBlob, blob, fieldUser, sess.UserID)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Load returns the session stored under name.
func (s *Store) Load(ctx context.Context, name string) (identity.Session, error) {
	blob, err := s.redis.HGet(ctx, s.key(name), fieldBlob).Bytes()
	if errors.Is(err, redis.Nil) {
		return identity.Session{}, ErrNotFound
	}
	if err != nil {
		return identity.Session{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	sess, err := Decode(blob)
	if err != nil {
		return identity.Session{}, err
	}

	// Older layouts are rewritten in place. HSET leaves the key's TTL untouched.
	if len(blob) > 0 && blob[0] != sessionFormatVersionCurrent {
		if upgraded, encErr := Encode(sess); encErr == nil {
			_ = s.redis.HSet(ctx, s.key(name), fieldBlob, upgraded).Err()
		}
	}
	return sess, nil
}

// Delete removes the session under name when it belongs to userID. An empty userID
// removes it unconditionally. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, name, userID string) (bool, error) {
	res, err := deleteIfOwnerLua.Run(ctx, s.redis, []string{s.key(name)}, userID).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}
