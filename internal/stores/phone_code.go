package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	phoneCodeRecordVersionV1 = 1
)

var (
	ErrPhoneCodeNotFound         = errors.New("phone code record not found")
	ErrPhoneCodeMismatch         = errors.New("phone code mismatch")
	ErrPhoneCodeAttemptsExceeded = errors.New("phone code attempts exceeded")
	ErrPhoneCodeRedisUnavailable = errors.New("phone code redis unavailable")
)

// consumePhoneCodeLua checks a code against a phone code record in one round trip.
// KEYS[1] = record key
// ARGV[1] = provided code hash (32 bytes)
// ARGV[2] = max attempts
// ARGV[3] = current unix timestamp
//
// Layout: version(1) attempts(2 BE) expiresAt(8 BE) numberLen(2 BE) number codeHash(32)
//
// Returns the record bytes on success, or an error reply "not_found", "expired",
// "attempts_exceeded" or "mismatch". A mismatch below the limit rewrites the attempt
// counter and keeps the remaining TTL.
var consumePhoneCodeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowUnix = tonumber(ARGV[3])

if string.byte(data, 1) ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local attempts = string.byte(data, 2) * 256 + string.byte(data, 3)

local expiresAt = 0
for i = 4, 11 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end

if nowUnix > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local numberLen = string.byte(data, 12) * 256 + string.byte(data, 13)
local hashOffset = 14 + numberLen
local storedHash = string.sub(data, hashOffset, hashOffset + 31)

if storedHash ~= providedHash then
  attempts = attempts + 1
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  local newData = string.sub(data, 1, 1) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 4)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// PhoneCodeRecord is one outstanding phone verification. Only the hash of the code is
// stored.
type PhoneCodeRecord struct {
	Number    string
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
}

// PhoneCodeStore keeps phone verification records keyed by verification id.
type PhoneCodeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewPhoneCodeStore(redisClient redis.UniversalClient, prefix string) *PhoneCodeStore {
	if prefix == "" {
		prefix = "gs"
	}
	return &PhoneCodeStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *PhoneCodeStore) key(verificationID string) string {
	return s.prefix + ":pc:" + verificationID
}

// Save stores record under verificationID. ExpiresAt is derived from ttl when unset.
func (s *PhoneCodeStore) Save(ctx context.Context, verificationID string, record *PhoneCodeRecord, ttl time.Duration) error {
	if record.ExpiresAt == 0 {
		record.ExpiresAt = s.now().Add(ttl).Unix()
	}
	encoded, err := encodePhoneCodeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(verificationID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPhoneCodeRedisUnavailable, err)
	}
	return nil
}

// Consume checks providedHash and deletes the record on a match. Every mismatch counts
// against maxAttempts; reaching it deletes the record.
func (s *PhoneCodeStore) Consume(ctx context.Context, verificationID string, providedHash [32]byte, maxAttempts int) (*PhoneCodeRecord, error) {
	result, err := consumePhoneCodeLua.Run(ctx, s.redis,
		[]string{s.key(verificationID)},
		string(providedHash[:]),
		maxAttempts,
		s.now().Unix(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found", "expired":
			return nil, ErrPhoneCodeNotFound
		case "attempts_exceeded":
			return nil, ErrPhoneCodeAttemptsExceeded
		case "mismatch":
			return nil, ErrPhoneCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrPhoneCodeRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrPhoneCodeRedisUnavailable)
	}
	record, err := decodePhoneCodeRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPhoneCodeRedisUnavailable, err)
	}

	// Lua string equality is not constant time.
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrPhoneCodeMismatch
	}
	return record, nil
}

// Delete drops a record, for example when a resend supersedes it.
func (s *PhoneCodeStore) Delete(ctx context.Context, verificationID string) error {
	if err := s.redis.Del(ctx, s.key(verificationID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPhoneCodeRedisUnavailable, err)
	}
	return nil
}

func encodePhoneCodeRecord(record *PhoneCodeRecord) ([]byte, error) {
	if len(record.Number) > 65535 {
		return nil, errors.New("phone code record number too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(phoneCodeRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Number))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Number)
	buf.Write(record.CodeHash[:])
	return buf.Bytes(), nil
}

func decodePhoneCodeRecord(data []byte) (*PhoneCodeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != phoneCodeRecordVersionV1 {
		return nil, errors.New("invalid phone code record version")
	}

	record := &PhoneCodeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var numberLen uint16
	if err := binary.Read(reader, binary.BigEndian, &numberLen); err != nil {
		return nil, err
	}
	number := make([]byte, numberLen)
	if _, err := io.ReadFull(reader, number); err != nil {
		return nil, err
	}
	record.Number = string(number)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in phone code record")
	}
	return record, nil
}
