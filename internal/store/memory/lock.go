package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/livebet/internal/domain"
)

type lease struct {
	token   string
	expires time.Time
}

// LockManager implements domain.LockManager inside one process. Leases
// expire after their TTL like the Redis version.
type LockManager struct {
	mu     sync.Mutex
	leases map[string]lease
}

// NewLockManager creates a LockManager.
func NewLockManager() *LockManager {
	return &LockManager{leases: make(map[string]lease)}
}

// Acquire takes key for ttl or returns ErrLockHeld.
func (l *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) {
		return nil, fmt.Errorf("memory: lock %s: %w", key, domain.ErrLockHeld)
	}

	token := uuid.NewString()
	l.leases[key] = lease{token: token, expires: now.Add(ttl)}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		// Only the holder that set the token may release it.
		if cur, ok := l.leases[key]; ok && cur.token == token {
			delete(l.leases, key)
		}
	}, nil
}
