// Package redislock implements lock.Locker on top of Redis, for deployments
// where several hosts may run migrations against the same database.
package redislock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/root-talis/henka/v2/lock"
)

const (
	DefaultTTL           = 30 * time.Second
	MinTTL               = time.Second
	DefaultRetryInterval = 250 * time.Millisecond
	DefaultPrefix        = "henka:lock:"
)

// release and refresh only touch the key while it still holds our token.
var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

type Config struct {
	Prefix        string
	TTL           time.Duration
	RetryInterval time.Duration
	Mode          lock.Mode
}

// Locker holds a lock as a Redis key with a TTL. While the lock is held the
// TTL is refreshed in the background, so a crashed owner frees the lock
// after at most one TTL.
type Locker struct {
	client redis.UniversalClient
	cfg    Config
}

func New(client redis.UniversalClient, cfg Config) *Locker {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	switch {
	case cfg.TTL <= 0:
		cfg.TTL = DefaultTTL
	case cfg.TTL < MinTTL:
		cfg.TTL = MinTTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Mode == "" {
		cfg.Mode = lock.Wait
	}

	return &Locker{client: client, cfg: cfg}
}

func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.cfg.Prefix + key

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %q: %w", key, err)
		}
		if ok {
			break
		}

		if l.cfg.Mode == lock.FailFast {
			return nil, fmt.Errorf("%w: %q", lock.ErrLocked, key)
		}

		timer := time.NewTimer(l.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("failed to acquire lock %q: %w", key, ctx.Err())
		case <-timer.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.refresh(redisKey, token, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			_ = releaseScript.Run(context.Background(), l.client, []string{redisKey}, token).Err()
		})
	}

	return release, nil
}

func (l *Locker) refresh(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.cfg.TTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// a failed refresh is retried on the next tick; the key survives
			// until its TTL runs out
			_ = refreshScript.Run(
				context.Background(), l.client, []string{redisKey}, token, l.cfg.TTL.Milliseconds(),
			).Err()
		}
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

var _ lock.Locker = (*Locker)(nil)
