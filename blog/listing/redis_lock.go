package listing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisLockPrefix = "publog:listing:regen:"

var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockTable shares regeneration locks between processes.
type RedisLockTable struct {
	client redis.UniversalClient
	// ttl bounds how long an abandoned lock survives in redis; zero keeps
	// locks until they are released or stolen.
	ttl time.Duration
}

var _ LockTable = (*RedisLockTable)(nil)

func NewRedisLockTable(client redis.UniversalClient, ttl time.Duration) *RedisLockTable {
	return &RedisLockTable{client: client, ttl: ttl}
}

func (t *RedisLockTable) InsertIfAbsent(ctx context.Context, key string, lock Lock) (Lock, bool, error) {
	k := redisLockPrefix + key

	// The holder can release between SETNX and GET, so retry once.
	for range 2 {
		ok, err := t.client.SetNX(ctx, k, encodeLock(lock), t.ttl).Result()
		if err != nil {
			return Lock{}, false, fmt.Errorf("failed to set lock %s: %w", key, err)
		}
		if ok {
			return lock, true, nil
		}

		raw, err := t.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Lock{}, false, fmt.Errorf("failed to get lock %s: %w", key, err)
		}
		held, err := decodeLock(raw)
		if err != nil {
			return Lock{}, false, err
		}
		return held, false, nil
	}
	return Lock{}, false, nil
}

func (t *RedisLockTable) CompareAndDelete(ctx context.Context, key string, lock Lock) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, t.client, []string{redisLockPrefix + key}, encodeLock(lock)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return n == 1, nil
}

func encodeLock(l Lock) string {
	return l.Owner + "|" + strconv.FormatInt(l.AcquiredAt.UnixNano(), 10)
}

func decodeLock(raw string) (Lock, error) {
	owner, nanos, ok := strings.Cut(raw, "|")
	if !ok {
		return Lock{}, fmt.Errorf("malformed lock value %q", raw)
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return Lock{}, fmt.Errorf("malformed lock value %q: %w", raw, err)
	}
	return Lock{Owner: owner, AcquiredAt: time.Unix(0, n)}, nil
}
