package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrSessionNotFound is returned when a session does not exist or has
	// already been evicted by Redis.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotSessionOwner is returned when a revocation targets a session
	// that belongs to a different account.
	ErrNotSessionOwner = errors.New("not session owner")

	// ErrRedisUnavailable wraps transport-level Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const (
	revokeStatusMissing        int64 = 0
	revokeStatusRevoked        int64 = 1
	revokeStatusAlreadyRevoked int64 = 2
	revokeStatusWrongOwner     int64 = -1
)

const revokeSessionScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local sess = cjson.decode(data)
if sess.account_id ~= ARGV[1] then
  return -1
end
if sess.revoked then
  return 2
end
sess.revoked = true
sess.revoked_reason = ARGV[2]
sess.revoked_by = ARGV[3]
sess.revoked_at = tonumber(ARGV[4])
redis.call("SET", KEYS[1], cjson.encode(sess), "KEEPTTL")
return 1
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

const revokeAllScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local count = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  local data = redis.call("GET", key)
  if data then
    local sess = cjson.decode(data)
    if not sess.revoked then
      sess.revoked = true
      sess.revoked_reason = ARGV[2]
      sess.revoked_by = ARGV[3]
      sess.revoked_at = tonumber(ARGV[4])
      redis.call("SET", key, cjson.encode(sess), "KEEPTTL")
      count = count + 1
    end
  else
    redis.call("SREM", KEYS[1], id)
  end
end
return count
`

var revokeAllLua = redis.NewScript(revokeAllScript)

const touchSessionScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local sess = cjson.decode(data)
sess.last_activity_at = tonumber(ARGV[1])
redis.call("SET", KEYS[1], cjson.encode(sess), "KEEPTTL")
return 1
`

var touchSessionLua = redis.NewScript(touchSessionScript)

const deleteSessionScript = `
redis.call("SREM", KEYS[2], ARGV[1])
return redis.call("DEL", KEYS[1])
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is the Redis-backed session store. Mutations that must be atomic
// with respect to concurrent validation (revocation, touch) run as Lua
// scripts that patch the JSON record in place, keeping the key's TTL.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session Store. prefix namespaces the Redis keys and
// defaults to "ps".
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ps"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) accountKey(accountID string) string {
	return "pa:" + accountID
}

// Save persists a session with the given TTL and indexes it in the owner's
// session set.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		pipe.SAdd(ctx, s.accountKey(sess.AccountID), sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get fetches a session by ID. An expired record is deleted on read and
// reported as not found; a revoked record is returned as-is so callers can
// distinguish revocation from absence.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if sess.Expired(time.Now()) {
		_ = s.Delete(ctx, sess.AccountID, sessionID)
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Update rewrites the session record, keeping the remaining TTL.
func (s *Store) Update(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(sess.ID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Touch stamps last-activity time on the session without changing its TTL.
func (s *Store) Touch(ctx context.Context, sessionID string, now time.Time) error {
	found, err := touchSessionLua.Run(ctx, s.redis, []string{s.key(sessionID)}, now.Unix()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if found == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Revoke marks one session revoked. The caller proves ownership via
// accountID; revoking an already-revoked session is a no-op that reports
// success. The record stays in Redis until its TTL so that validation can
// answer "revoked" rather than "unknown".
func (s *Store) Revoke(ctx context.Context, accountID, sessionID, revokedBy, reason string, now time.Time) error {
	status, err := revokeSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		accountID,
		reason,
		revokedBy,
		now.Unix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case revokeStatusMissing:
		return ErrSessionNotFound
	case revokeStatusWrongOwner:
		return ErrNotSessionOwner
	case revokeStatusRevoked, revokeStatusAlreadyRevoked:
		return nil
	default:
		return fmt.Errorf("%w: unknown revoke script status %d", ErrRedisUnavailable, status)
	}
}

// RevokeAll revokes every live session of an account in a single script
// round trip and returns the number of sessions newly revoked. Stale index
// entries whose sessions already expired are pruned along the way.
func (s *Store) RevokeAll(ctx context.Context, accountID, revokedBy, reason string, now time.Time) (int, error) {
	count, err := revokeAllLua.Run(
		ctx,
		s.redis,
		[]string{s.accountKey(accountID)},
		s.prefix+":",
		reason,
		revokedBy,
		now.Unix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// Delete removes a session record and its index entry.
func (s *Store) Delete(ctx context.Context, accountID, sessionID string) error {
	_, err := deleteSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID), s.accountKey(accountID)},
		sessionID,
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ActiveSessionIDs returns the indexed session IDs for an account. The set
// may contain IDs of sessions that have since expired.
func (s *Store) ActiveSessionIDs(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
