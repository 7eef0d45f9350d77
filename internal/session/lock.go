package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes mutations of a single session.
type Locker interface {
	// Lock blocks until the session is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

// LocalLocker serializes sessions within one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	held chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]*localLock),
	}
}

func (l *LocalLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[sessionID]
	if !ok {
		lk = &localLock{held: make(chan struct{}, 1)}
		l.locks[sessionID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.held <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lk.held
				l.release(sessionID, lk)
			})
		}, nil

	case <-ctx.Done():
		l.release(sessionID, lk)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(sessionID string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, sessionID)
	}
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker serializes sessions across instances. A held lock expires after ttl in case its holder dies.
type RedisLocker struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(r redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		redis:  r,
		prefix: prefix,
		ttl:    ttl,
		retry:  10 * time.Millisecond,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	key := fmt.Sprintf("%s:session:%s:lock", l.prefix, sessionID)
	token := uuid.NewString()

	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("setnx: %w", err)
		}

		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
					defer cancel()

					if err := releaseScript.Run(ctx, l.redis, []string{key}, token).Err(); err != nil {
						slog.ErrorContext(ctx, "session: release lock failed", "session", sessionID, "error", err)
					}
				})
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}
