package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants a named lease to at most one holder across all processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Deletes the lock only if it still carries the caller's token.
var releaseLockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

func (l *RedisLocker) key(name string) string {
	return fmt.Sprintf("%s:lock:%s", l.prefix, name)
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key(name), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", name, err)
	}

	if !ok {
		return "", false, nil
	}

	return token, true, nil
}

func (l *RedisLocker) Release(ctx context.Context, name, token string) error {
	err := releaseLockScript.Run(ctx, l.client, []string{l.key(name)}, token).Err()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}

	return nil
}
