package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// lockKeyPrefix keeps lock keys apart from bucket keys on a shared redis.
const lockKeyPrefix = "toolhub:lock:"

var (
	ErrLockUnavailable = errors.New("lock client not configured")
	ErrLockKey         = errors.New("lock key is empty")
	ErrLockTTL         = errors.New("lock ttl must be positive")
)

// releaseScript deletes the key only while it still holds our token, so a
// lock that expired and was taken by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived exclusive leases. The onboarding sequencer
// takes one per user and the scheduler one per job.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// TryLock returns a release token and true when the lease was taken. A busy
// key is not an error.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	switch {
	case l == nil || l.client == nil:
		return "", false, ErrLockUnavailable
	case key == "":
		return "", false, ErrLockKey
	case ttl <= 0:
		return "", false, ErrLockTTL
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKeyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{lockKeyPrefix + key}, token).Err()
}
