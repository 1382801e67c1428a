package cluster

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// acquireScript sets every key or none. Keys share one hash tag so it also runs on a cluster.
var acquireScript = redis.NewScript(`
for _, k in ipairs(KEYS) do
	if redis.call('EXISTS', k) == 1 then
		return 0
	end
end
for _, k in ipairs(KEYS) do
	redis.call('SET', k, ARGV[1], 'PX', ARGV[2])
end
return 1
`)

// releaseScript deletes only the keys still holding our token.
var releaseScript = redis.NewScript(`
local n = 0
for _, k in ipairs(KEYS) do
	if redis.call('GET', k) == ARGV[1] then
		redis.call('DEL', k)
		n = n + 1
	end
end
return n
`)

const redisKeyPrefix = "vistagram:{cluster-lock}:"

// breakerFailures consecutive Redis errors open the breaker.
const breakerFailures = 5

// RedisLocker is a Locker shared by every API replica pointing at the same Redis.
type RedisLocker struct {
	client  redis.Scripter
	ttl     time.Duration
	retry   time.Duration
	breaker *gobreaker.CircuitBreaker[bool]
}

// NewRedisLocker builds a RedisLocker. ttl bounds how long a crashed holder can block others.
func NewRedisLocker(client redis.Scripter, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		retry:  20 * time.Millisecond,
		breaker: gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
			Name:    "cluster-redis-lock",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
			},
		}),
	}
}

func (l *RedisLocker) Lock(ctx context.Context, keys []string) (func(), error) {
	keys = slices.Compact(slices.Sorted(slices.Values(keys)))
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = redisKeyPrefix + k
	}
	token := uuid.NewString()
	limiter := rate.NewLimiter(rate.Every(l.retry), 1)

	for {
		acquired, err := l.breaker.Execute(func() (bool, error) {
			n, err := acquireScript.Run(ctx, l.client, redisKeys, token, l.ttl.Milliseconds()).Int()
			return n == 1, err
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrLockTimeout, err)
		}
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire cluster lock: %w", err)
		}
		if err == nil && acquired {
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLockTimeout, err)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed release only delays others until the ttl expires
		_ = releaseScript.Run(releaseCtx, l.client, redisKeys, token).Err()
	}, nil
}
