package calls

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisDestPrefix = "dialer:lock:dest:"
	redisCallPrefix  = "dialer:lock:call:"
	redisEndedPrefix = "dialer:lock:ended:"
)

// RedisLocks is a LockTable shared by every API instance.
// Each destination is a hash {token, call_id, acquired_at}; each bound call id
// points back at its destination. Both keys carry the table TTL.
type RedisLocks struct {
	rdb redis.UniversalClient
	ttl time.Duration

	now func() time.Time
}

func NewRedisLocks(rdb redis.UniversalClient, ttl time.Duration) *RedisLocks {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisLocks{rdb: rdb, ttl: ttl, now: time.Now}
}

var reserveScript = redis.NewScript(`
-- KEYS[1] = dest key
-- ARGV[1] = token, ARGV[2] = acquired_at (unix ms), ARGV[3] = ttl_ms
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'token', ARGV[1], 'acquired_at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

var bindScript = redis.NewScript(`
-- KEYS[1] = dest key, KEYS[2] = call key, KEYS[3] = ended key
-- ARGV[1] = token, ARGV[2] = call id, ARGV[3] = destination, ARGV[4] = call key prefix
if redis.call('HGET', KEYS[1], 'token') ~= ARGV[1] then
  return 0
end
if redis.call('DEL', KEYS[3]) == 1 then
  redis.call('DEL', KEYS[1])
  return 2
end
local prev = redis.call('HGET', KEYS[1], 'call_id')
if prev then
  redis.call('DEL', ARGV[4] .. prev)
end
redis.call('HSET', KEYS[1], 'call_id', ARGV[2])
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
  redis.call('SET', KEYS[2], ARGV[3], 'PX', ttl)
else
  redis.call('SET', KEYS[2], ARGV[3])
end
return 1
`)

var releaseScript = redis.NewScript(`
-- KEYS[1] = dest key
-- ARGV[1] = token, ARGV[2] = call key prefix
if redis.call('HGET', KEYS[1], 'token') ~= ARGV[1] then
  return 0
end
local cid = redis.call('HGET', KEYS[1], 'call_id')
if cid then
  redis.call('DEL', ARGV[2] .. cid)
end
redis.call('DEL', KEYS[1])
return 1
`)

var releaseCallScript = redis.NewScript(`
-- KEYS[1] = call key, KEYS[2] = ended key
-- ARGV[1] = dest key prefix, ARGV[2] = call id, ARGV[3] = ended ttl_ms
local dest = redis.call('GET', KEYS[1])
if not dest then
  redis.call('SET', KEYS[2], '1', 'PX', ARGV[3])
  return false
end
redis.call('DEL', KEYS[1])
local destKey = ARGV[1] .. dest
if redis.call('HGET', destKey, 'call_id') == ARGV[2] then
  redis.call('DEL', destKey)
end
return dest
`)

func (r *RedisLocks) Reserve(ctx context.Context, dest string) (string, error) {
	if dest == "" {
		return "", ErrDestinationRequired
	}
	token := uuid.NewString()
	res, err := reserveScript.Run(ctx, r.rdb, []string{redisDestPrefix + dest},
		token, r.now().UnixMilli(), r.ttl.Milliseconds()).Int()
	if err != nil {
		return "", fmt.Errorf("calls: reserve %s: %w", dest, err)
	}
	if res != 1 {
		return "", ErrDuplicateCallInProgress
	}
	return token, nil
}

func (r *RedisLocks) Bind(ctx context.Context, dest, token, callID string) error {
	res, err := bindScript.Run(ctx, r.rdb,
		[]string{redisDestPrefix + dest, redisCallPrefix + callID, redisEndedPrefix + callID},
		token, callID, dest, redisCallPrefix).Int()
	if err != nil {
		return fmt.Errorf("calls: bind %s: %w", dest, err)
	}
	switch res {
	case 1:
		return nil
	case 2:
		return ErrCallEnded
	default:
		return ErrLockNotHeld
	}
}

func (r *RedisLocks) Release(ctx context.Context, dest, token string) error {
	if err := releaseScript.Run(ctx, r.rdb, []string{redisDestPrefix + dest}, token, redisCallPrefix).Err(); err != nil {
		return fmt.Errorf("calls: release %s: %w", dest, err)
	}
	return nil
}

func (r *RedisLocks) ReleaseCall(ctx context.Context, callID string) (string, bool, error) {
	dest, err := releaseCallScript.Run(ctx, r.rdb,
		[]string{redisCallPrefix + callID, redisEndedPrefix + callID},
		redisDestPrefix, callID, endedTTL.Milliseconds()).Text()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("calls: release call %s: %w", callID, err)
	}
	return dest, true, nil
}

func (r *RedisLocks) Active(ctx context.Context) ([]Lock, error) {
	var out []Lock
	iter := r.rdb.Scan(ctx, 0, redisDestPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := r.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("calls: read %s: %w", key, err)
		}
		if len(fields) == 0 {
			continue
		}
		ttl, err := r.rdb.PTTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("calls: ttl %s: %w", key, err)
		}
		l := Lock{
			Destination: key[len(redisDestPrefix):],
			Token:       fields["token"],
			CallID:      fields["call_id"],
		}
		if ms, err := strconv.ParseInt(fields["acquired_at"], 10, 64); err == nil {
			l.AcquiredAt = time.UnixMilli(ms)
		}
		if ttl > 0 {
			l.ExpiresAt = r.now().Add(ttl)
		}
		out = append(out, l)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("calls: scan locks: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AcquiredAt.Before(out[j].AcquiredAt) })
	return out, nil
}
