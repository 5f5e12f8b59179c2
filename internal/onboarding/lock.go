package onboarding

import (
	"context"
	"sync"
	"time"
)

// Locker is satisfied by the redis-backed ratelimit.Locker.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// localLocker serialises runs within one process when redis is absent.
type localLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newLocalLocker() *localLocker {
	return &localLocker{held: make(map[string]struct{})}
}

func (l *localLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return "", false, nil
	}
	l.held[key] = struct{}{}
	return key, true, nil
}

func (l *localLocker) Release(_ context.Context, key, _ string) error {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
	return nil
}
