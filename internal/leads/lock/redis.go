package lock

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/platform/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL   = 30 * time.Second
	retryBackoff = 25 * time.Millisecond
	keyPrefix    = "leadflow:lock:"
)

var ErrLockLost = errors.New("lock expired before release")

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every process using the same Redis.
// A lock expires after ttl if its holder dies.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	onLost func(key string)
}

// NewRedisLocker builds a locker from the scheduler Redis settings.
func NewRedisLocker(cfg config.SchedulerConfig) (*RedisLocker, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return NewRedisLockerWithClient(redis.NewClient(opt), DefaultTTL), nil
}

func NewRedisLockerWithClient(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// OnLost registers a callback for unlocks that found the lock already
// expired or taken over.
func (l *RedisLocker) OnLost(fn func(key string)) {
	l.onLost = fn
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		released, err := unlockScript.Run(context.WithoutCancel(ctx), l.client, []string{redisKey}, token).Int()
		if (err != nil || released == 0) && l.onLost != nil {
			l.onLost(key)
		}
	}, nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}
