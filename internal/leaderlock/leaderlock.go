// Package leaderlock provides the optional multi-process promotion path
// spec.md §9 calls out: the single-writer tick design is "cooperative
// single-process" by default, but when more than one scheduler process
// runs against the same database, a Redis-backed advisory lock decides
// which process's Tick calls actually execute.
package leaderlock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a held lock survives without renewal, so a
// crashed leader's lock expires instead of stalling every follower.
const DefaultTTL = 45 * time.Second

// Lock is a single named Redis advisory lock. TryAcquire renews a lock
// the holder already owns, so it must be called more often than TTL
// while the holder wants to keep leading.
type Lock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func New(client *redis.Client, keyPrefix, instanceToken string) *Lock {
	return &Lock{client: client, key: keyPrefix + "leader", token: instanceToken, ttl: DefaultTTL}
}

// TryAcquire attempts to become leader, returning true if this instance
// now holds (or already held) the lock.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	// Already ours? Renew instead of losing leadership to our own TTL.
	holder, err := l.client.Get(ctx, l.key).Result()
	if err != nil && err != redis.Nil {
		return false, err
	}
	if holder == l.token {
		return true, l.client.Expire(ctx, l.key, l.ttl).Err()
	}
	return false, nil
}

// Release gives up leadership if this instance currently holds it.
func (l *Lock) Release(ctx context.Context) error {
	holder, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if holder != l.token {
		return nil
	}
	return l.client.Del(ctx, l.key).Err()
}
