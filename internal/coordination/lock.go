// Package coordination provides an optional cross-process lease lock
// so more than one scheduler instance can run against the same
// document store without duplicating work within a single tick. It is
// strictly an optimization: the document store's atomic claim/lease
// operations (internal/store) are the actual correctness mechanism
// (spec §5 design notes), so a missing or unreachable lock degrades to
// "every instance attempts every tick step", not to data corruption.
package coordination

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a simple Redis SET NX PX lease, released by comparing the
// caller-supplied token before deleting (the standard Redis
// distributed-lock recipe).
type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewLock builds a lock over the given Redis client and key.
func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: key, ttl: ttl}
}

// TryAcquire attempts to set the lock to token, returning (true, nil) on
// success, (false, nil) if already held elsewhere, or a non-nil
// error if Redis itself is unreachable — callers should treat that as
// "proceed without the lock" rather than a hard failure.
func (l *Lock) TryAcquire(ctx context.Context, token string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release deletes the lock only if it is still held by token,
// preventing a slow holder from releasing a lock another instance has
// since acquired after this one's lease expired.
func (l *Lock) Release(ctx context.Context, token string) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
	return script.Run(ctx, l.client, []string{l.key}, token).Err()
}

// Extend refreshes the lock's TTL if it is still held by token, used
// by a scheduler tick that runs longer than the original lease.
func (l *Lock) Extend(ctx context.Context, token string) (bool, error) {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
	res, err := script.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
