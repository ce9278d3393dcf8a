package lock

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/valkey"
)

const (
	defaultLockTTL  = 90 * time.Second
	defaultLockWait = 60 * time.Second
	lockPollEvery   = 50 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// ValkeyOptions tunes the distributed lock.
type ValkeyOptions struct {
	// TTL caps how long a crashed holder can block the key.
	TTL time.Duration
	// Wait bounds how long Lock polls before giving up.
	Wait time.Duration
}

// Valkey is a distributed Locker built on SET NX EX with a token-checked release.
type Valkey struct {
	client *valkey.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewValkey returns a Locker sharing client.
func NewValkey(client *valkey.Client, opts ValkeyOptions) *Valkey {
	if opts.TTL <= 0 {
		opts.TTL = defaultLockTTL
	}
	if opts.Wait <= 0 {
		opts.Wait = defaultLockWait
	}
	return &Valkey{client: client, ttl: opts.TTL, wait: opts.Wait}
}

// Lock polls until the key is acquired, ctx is done, or the wait budget runs out.
func (v *Valkey) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := v.client.Key("lock", key)
	token := uuid.NewString()
	inner := v.client.Inner()
	deadline := time.Now().Add(v.wait)

	for attempt := 1; ; attempt++ {
		cmd := inner.B().Set().Key(lockKey).Value(token).Nx().Ex(v.ttl).Build()
		err := inner.Do(ctx, cmd).Error()
		if err == nil {
			return v.releaser(lockKey, token), nil
		}
		if !valkey.IsNil(err) {
			logger.Debug(ctx, "valkey", "lock.attempt",
				slog.String("status", "retry"),
				slog.String("key", key),
				slog.Int("attempts", attempt),
				slog.String("err", err.Error()),
			)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s after %d attempts", ErrNotAcquired, key, attempt)
		}
		pause := lockPollEvery + time.Duration(rand.IntN(20))*time.Millisecond
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case <-time.After(pause):
		}
	}
}

func (v *Valkey) releaser(lockKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { v.release(lockKey, token) })
	}
}

func (v *Valkey) release(lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	inner := v.client.Inner()
	cmd := inner.B().Eval().Script(releaseScript).Numkeys(1).Key(lockKey).Arg(token).Build()
	if err := inner.Do(ctx, cmd).Error(); err != nil {
		logger.Warn(ctx, "valkey", "lock.release",
			slog.String("status", "fail"),
			slog.String("key", lockKey),
			slog.String("err", err.Error()),
		)
	}
}
