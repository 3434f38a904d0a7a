package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// Locker guards short critical sections keyed by an arbitrary resource name.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type redisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	prefix  string
	log     *zap.Logger
	metrics *metrics.Collector
}

// NewRedisLocker creates a locker storing one Redis key per resource under "lock:".
//
// The lock only narrows contention in front of Postgres, which enforces slot uniqueness
// on its own. When Redis cannot be reached, WithLock logs, counts the bypass and runs
// fn unlocked instead of failing the request.
func NewRedisLocker(client *redis.Client, ttl time.Duration, log *zap.Logger, m *metrics.Collector) Locker {
	if log == nil {
		log = zap.NewNop()
	}
	return &redisLocker{
		client:  client,
		ttl:     ttl,
		prefix:  "lock:",
		log:     log,
		metrics: m,
	}
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	key = l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		l.log.Warn("redis unavailable, running without lock", zap.String("key", key), zap.Error(err))
		l.metrics.LockBypassed()
		return fn(ctx)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		// release with a fresh context so a cancelled request still frees the key
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

// NoopLocker runs fn directly. Used when Redis is not part of a deployment.
type NoopLocker struct{}

func (NoopLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
