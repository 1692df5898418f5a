package terminal

import (
	"sync"

	"github.com/gluk-w/claworc/console/internal/termproto"
)

// targetLocks records which terminal owns the live connection of each target.
type targetLocks struct {
	mu     sync.Mutex
	owners map[string]string // target key → coordinator ID
}

func newTargetLocks() *targetLocks {
	return &targetLocks{owners: make(map[string]string)}
}

// acquire claims the target for owner. It succeeds if the target is free or
// already held by the same owner.
func (l *targetLocks) acquire(key, owner string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.owners[key]; ok && cur != owner {
		return false
	}
	l.owners[key] = owner
	return true
}

// release frees the target if owner holds it.
func (l *targetLocks) release(key, owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owners[key] == owner {
		delete(l.owners, key)
	}
}

func (l *targetLocks) owner(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.owners[key]
	return o, ok
}

func lockKey(t termproto.Target) string {
	if t.ID != "" {
		return "id:" + t.ID
	}
	return "host:" + t.Host
}
