package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// IndexLock serializes index rebuilds across processes. Two CLI
// invocations indexing the same workspace directory take turns instead of
// corrupting the persistent backends.
type IndexLock struct {
	fl *flock.Flock
}

// NewIndexLock creates a lock file under the workspace data directory.
func NewIndexLock(dir string) (*IndexLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &IndexLock{fl: flock.New(filepath.Join(dir, "index.lock"))}, nil
}

// Lock blocks until the lock is acquired.
func (l *IndexLock) Lock() error {
	if err := l.fl.Lock(); err != nil {
		return fmt.Errorf("acquire index lock: %w", err)
	}
	return nil
}

// TryLock acquires the lock without blocking. Returns false when another
// process holds it.
func (l *IndexLock) TryLock() (bool, error) {
	ok, err := l.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("try index lock: %w", err)
	}
	return ok, nil
}

// Unlock releases the lock.
func (l *IndexLock) Unlock() error {
	return l.fl.Unlock()
}
