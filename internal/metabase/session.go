package metabase

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/list-builder/internal/pkg/logger"
)

// LoginFunc exchanges credentials for a fresh session token.
type LoginFunc func(ctx context.Context) (string, error)

// SessionManager caches one session token per process. A stale token only
// costs one extra round trip (the 401 retry), so concurrent refreshes are
// allowed and the last writer wins.
type SessionManager struct {
	login LoginFunc
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewSessionManager creates a SessionManager that trusts each token for ttl.
func NewSessionManager(ttl time.Duration, login LoginFunc) *SessionManager {
	if ttl <= 0 {
		ttl = 13 * 24 * time.Hour
	}
	return &SessionManager{login: login, ttl: ttl, now: time.Now}
}

// Get returns the cached token, logging in first if there is none or it
// has expired.
func (s *SessionManager) Get(ctx context.Context) (string, error) {
	s.mu.Lock()
	token, expiresAt := s.token, s.expiresAt
	s.mu.Unlock()

	if token != "" && s.now().Before(expiresAt) {
		return token, nil
	}

	issued := s.now()
	token, err := s.login(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.token = token
	s.expiresAt = issued.Add(s.ttl)
	s.mu.Unlock()

	logger.Info("metabase session acquired", "expires_at", issued.Add(s.ttl).Format(time.RFC3339))
	return token, nil
}

// Invalidate drops the cached token so the next Get logs in again.
func (s *SessionManager) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}
