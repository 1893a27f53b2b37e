package repository

// attempt_redis.go keeps the login throttle state in Redis for deployments
// that already run Redis next to MySQL.  The sliding-window transition is a
// single Lua script, so it is atomic on the server exactly like the MySQL
// upsert in attempt_repository.go.

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/club-manager/internal/model"
)

var recordFailureScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local window_ms = tonumber(ARGV[2])
    local max_attempts = tonumber(ARGV[3])
    local lock_ms = tonumber(ARGV[4])
    local ttl_ms = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'attempts', 'first_ms')
    local attempts = tonumber(state[1])
    local first = tonumber(state[2])

    if attempts == nil or first == nil or (now_ms - first) > window_ms then
        attempts = 1
        first = now_ms
    else
        attempts = attempts + 1
    end

    local locked_until = 0
    if attempts >= max_attempts then
        locked_until = now_ms + lock_ms
    end

    redis.call('HSET', key, 'attempts', attempts, 'first_ms', first, 'locked_until_ms', locked_until)
    redis.call('PEXPIRE', key, ttl_ms)

    return { attempts, first, locked_until }
`)

// RedisAttemptRepo is the Redis flavour of AttemptRepo.
type RedisAttemptRepo struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisAttemptRepo returns a repo storing hashes under prefix.
func NewRedisAttemptRepo(rdb *redis.Client, prefix string) *RedisAttemptRepo {
	if prefix == "" {
		prefix = "login"
	}
	return &RedisAttemptRepo{rdb: rdb, prefix: prefix}
}

// key hashes the pair so identifiers and IPv6 origins containing ':' cannot
// collide.
func (r *RedisAttemptRepo) key(identifier, origin string) string {
	sum := sha256.Sum256([]byte(identifier + "\x00" + origin))
	return r.prefix + ":" + hex.EncodeToString(sum[:16])
}

// Get returns the counter for a key.
func (r *RedisAttemptRepo) Get(ctx context.Context, identifier, origin string) (model.LoginAttempt, error) {
	vals, err := r.rdb.HMGet(ctx, r.key(identifier, origin), "attempts", "first_ms", "locked_until_ms").Result()
	if err != nil {
		return model.LoginAttempt{}, fmt.Errorf("redis hmget: %w", err)
	}
	if len(vals) != 3 || vals[0] == nil {
		return model.LoginAttempt{}, ErrNotFound
	}
	return attemptFrom(identifier, origin, asInt64(vals[0]), asInt64(vals[1]), asInt64(vals[2])), nil
}

// RecordFailure counts one failed attempt at now.
func (r *RedisAttemptRepo) RecordFailure(ctx context.Context, identifier, origin string, now time.Time, p model.ThrottlePolicy) (model.LoginAttempt, error) {
	ttl := p.Window
	if p.Lockout > ttl {
		ttl = p.Lockout
	}
	ttl += time.Minute

	res, err := recordFailureScript.Run(ctx, r.rdb, []string{r.key(identifier, origin)},
		now.UnixMilli(),
		p.Window.Milliseconds(),
		p.MaxAttempts,
		p.Lockout.Milliseconds(),
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return model.LoginAttempt{}, fmt.Errorf("redis record failure: %w", err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) != 3 {
		return model.LoginAttempt{}, errors.New("redis record failure: unexpected script result")
	}
	return attemptFrom(identifier, origin, asInt64(arr[0]), asInt64(arr[1]), asInt64(arr[2])), nil
}

// Delete removes the counter for a key.
func (r *RedisAttemptRepo) Delete(ctx context.Context, identifier, origin string) error {
	if err := r.rdb.Del(ctx, r.key(identifier, origin)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func attemptFrom(identifier, origin string, attempts, firstMS, lockedMS int64) model.LoginAttempt {
	a := model.LoginAttempt{
		Identifier:     identifier,
		Origin:         origin,
		Attempts:       int(attempts),
		FirstAttemptAt: time.UnixMilli(firstMS).UTC(),
	}
	if lockedMS > 0 {
		t := time.UnixMilli(lockedMS).UTC()
		a.LockedUntil = &t
	}
	return a
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
