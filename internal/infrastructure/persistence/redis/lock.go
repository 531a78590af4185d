package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/cf-progress-hub/internal/application/command"
	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
)

// releaseScript deletes the lock only while it still holds our token, so an
// expired lock re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lock only while it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseTimeout bounds the release call, which runs on a fresh context.
const releaseTimeout = 5 * time.Second

// Locker implements command.Locker with SET NX PX. A held lock is renewed
// every ttl/3 until it is released, so the TTL only bounds how long a
// crashed holder blocks others.
type Locker struct {
	cache  *Cache
	ttl    time.Duration
	logger *slog.Logger
}

var _ command.Locker = (*Locker)(nil)

// NewLocker creates a distributed locker. A non-positive ttl uses
// TTLDistributedLock.
func NewLocker(cache *Cache, ttl time.Duration, logger *slog.Logger) *Locker {
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{cache: cache, ttl: ttl, logger: logger}
}

// TryLock acquires key without waiting. It returns shared.ErrLockHeld when
// another holder owns the key.
func (l *Locker) TryLock(ctx context.Context, key string) (func(), error) {
	redisKey := LockKey(key)
	token := uuid.NewString()

	ok, err := l.cache.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, shared.WrapError("lock", "Acquire", shared.ErrUnavailable, "redis lock failed", err)
	}
	if !ok {
		return nil, shared.ErrLockHeld
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(redisKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			l.release(redisKey, token)
		})
	}, nil
}

// keepAlive pushes the expiry forward until stop is closed or the token is
// no longer ours.
func (l *Locker) keepAlive(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	if interval <= 0 {
		interval = l.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			n, err := renewScript.Run(rctx, l.cache.client, []string{redisKey}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.logger.Warn("lock renew failed", "key", redisKey, "error", err)
				continue
			}
			if n == 0 {
				l.logger.Warn("lock lost before release", "key", redisKey)
				return
			}
		}
	}
}

func (l *Locker) release(redisKey, token string) {
	rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := releaseScript.Run(rctx, l.cache.client, []string{redisKey}, token).Err(); err != nil {
		l.logger.Warn("lock release failed", "key", redisKey, "error", err)
	}
}
