package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
)

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript pushes the expiry out only if the key still holds our token
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// leaseStore is the token-guarded key store behind RedisLocker
type leaseStore interface {
	acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	release(ctx context.Context, key, token string) error
}

type redisLeases struct {
	client *redis.Client
}

func (r redisLeases) acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, token, ttl).Result()
}

func (r redisLeases) refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, r.client, []string{key}, token, ttl.Milliseconds()).Int()
	return n == 1, err
}

func (r redisLeases) release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, r.client, []string{key}, token).Err()
}

// RedisLocker is a Locker shared by every engine process pointing at the same Redis.
// A held lock is renewed every ttl/3, so ttl bounds how long a crashed holder
// can wedge a resource, not how long a critical section may run.
type RedisLocker struct {
	leases leaseStore
	client *redis.Client
	logger *observability.Logger
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// NewRedisLocker connects to addr
func NewRedisLocker(addr string, ttl time.Duration, logger *observability.Logger) *RedisLocker {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
	l := newLeaseLocker(redisLeases{client: client}, ttl, logger)
	l.client = client
	return l
}

func newLeaseLocker(leases leaseStore, ttl time.Duration, logger *observability.Logger) *RedisLocker {
	return &RedisLocker{
		leases: leases,
		logger: logger,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		prefix: "bookingengine:lock:",
	}
}

// Lock polls SET NX until it wins or ctx is done
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	const op = "lock.redis.Lock"

	redisKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.leases.acquire(ctx, redisKey, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w: %w", op, ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(redisKey, token, stop, done)

	return func() {
		close(stop)
		<-done

		// Release with a fresh context: the caller's may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), l.ttl)
		defer cancel()
		if err := l.leases.release(releaseCtx, redisKey, token); err != nil {
			l.logger.WithOperation("lock.redis.Unlock").Error().Err(err).
				Str("key", key).
				Dur("expires_within", l.ttl).
				Msg("failed to release lock")
		}
	}, nil
}

// keepAlive renews the lease until stop is closed or the lease is lost
func (l *RedisLocker) keepAlive(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
		held, err := l.leases.refresh(ctx, redisKey, token, l.ttl)
		cancel()

		log := l.logger.WithOperation("lock.redis.keepAlive")
		switch {
		case err != nil:
			log.Warn().Err(err).Str("key", redisKey).Msg("failed to renew lock")
		case !held:
			log.Error().Str("key", redisKey).Msg("lock expired while held")
			return
		}
	}
}

// Stop closes the Redis client
func (l *RedisLocker) Stop() error {
	const op = "lock.redis.Stop"

	if l.client == nil {
		return nil
	}
	if err := l.client.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
