// Package runlock keeps two splitdex runs on one host from splitting the
// same source index at the same time.
package runlock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	serrors "github.com/Aman-CERP/splitdex/internal/errors"
)

// Lock is an exclusive, cross-process lock on one source index.
type Lock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// DefaultDir returns ~/.splitdex/locks, or a temp directory when the home
// directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "splitdex", "locks")
	}
	return filepath.Join(home, ".splitdex", "locks")
}

// New returns the lock for index inside dir. Nothing is touched until Acquire.
func New(dir, index string) *Lock {
	path := filepath.Join(dir, fileName(index))
	return &Lock{path: path, flock: flock.New(path)}
}

// Acquire takes the lock without blocking. A lock held by another process
// is reported as ErrCodeRunLocked.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !acquired {
		return serrors.New(serrors.ErrCodeRunLocked, "another run is splitting this index", nil).
			WithDetail("lock", l.path).
			WithSuggestion("wait for the other run to finish")
	}
	l.locked = true
	return nil
}

// Release drops the lock. Calling it on an unheld lock is a no-op.
func (l *Lock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Held reports whether this Lock currently owns the file.
func (l *Lock) Held() bool {
	return l.locked
}

// fileName maps an index name to a lock file. Index names cannot contain
// path separators, but the replacement keeps odd input inside dir.
func fileName(index string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return r.Replace(index) + ".lock"
}
