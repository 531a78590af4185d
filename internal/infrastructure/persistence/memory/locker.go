package memory

import (
	"context"
	"sync"

	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
)

// Locker is a process-local named lock.
type Locker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocker creates a Locker.
func NewLocker() *Locker {
	return &Locker{held: make(map[string]struct{})}
}

// TryLock acquires key without waiting. The returned unlock is idempotent.
func (l *Locker) TryLock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, shared.ErrLockHeld
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
