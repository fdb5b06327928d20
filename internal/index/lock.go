package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// commitLock is an advisory, cross-process file lock held for the duration
// of a collection's Committing phase, so two processes indexing the same
// data directory can never interleave manifest writes.
type commitLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// newCommitLock returns a lock for the given collection data directory. The
// lock file itself lives at <dataDir>/.index.lock.
func newCommitLock(dataDir string) *commitLock {
	lockPath := filepath.Join(dataDir, ".index.lock")
	return &commitLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Lock acquires the exclusive lock, blocking until it is available.
func (l *commitLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquire commit lock: %w", err)
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call on an unlocked commitLock.
func (l *commitLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release commit lock: %w", err)
	}
	l.locked = false
	return nil
}
