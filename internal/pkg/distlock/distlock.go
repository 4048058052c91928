// Package distlock provides non-blocking named locks, shared across
// processes through Redis or held in memory when Redis is unavailable.
package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is one named lock. An instance is meant for a single
// acquire/release cycle.
type DistLock interface {
	// Acquire tries to take the lock without waiting.
	Acquire(ctx context.Context) (bool, error)
	// Release drops the lock if this instance still owns it.
	Release(ctx context.Context) error
}

// Factory returns a fresh lock for key.
type Factory func(key string) DistLock

// NewFactory builds Redis locks when client is non-nil and in-process locks
// otherwise. ttl bounds how long a crashed holder keeps a Redis lock.
func NewFactory(client *redis.Client, ttl time.Duration) Factory {
	if client != nil {
		return func(key string) DistLock { return NewRedisLock(client, key, ttl) }
	}
	local := &localLocks{held: map[string]string{}}
	return func(key string) DistLock { return &LocalLock{locks: local, key: key, token: newToken()} }
}

func newToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

type localLocks struct {
	mu   sync.Mutex
	held map[string]string
}

// LocalLock is a lock visible only inside this process.
type LocalLock struct {
	locks *localLocks
	key   string
	token string
}

// Acquire implements DistLock.
func (l *LocalLock) Acquire(context.Context) (bool, error) {
	l.locks.mu.Lock()
	defer l.locks.mu.Unlock()
	if _, taken := l.locks.held[l.key]; taken {
		return false, nil
	}
	l.locks.held[l.key] = l.token
	return true, nil
}

// Release implements DistLock.
func (l *LocalLock) Release(context.Context) error {
	l.locks.mu.Lock()
	defer l.locks.mu.Unlock()
	if l.locks.held[l.key] == l.token {
		delete(l.locks.held, l.key)
	}
	return nil
}
