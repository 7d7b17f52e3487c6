// Package lock serializes writes against an SMDB file: a Gate orders writes
// behind in-process scans, and a FileLock keeps two processes from writing
// the same database at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when lock acquisition times out because
// another process is holding the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Common timeout values for lock acquisition (in seconds).
const (
	// TimeoutImmediate returns immediately if the lock cannot be acquired.
	TimeoutImmediate = 0

	// TimeoutShort is suitable for failing fast when another writer is active.
	TimeoutShort = 1

	// TimeoutMedium provides a reasonable wait for transient conflicts.
	TimeoutMedium = 10

	// TimeoutInfinite waits until the lock is acquired or ctx is done.
	TimeoutInfinite = -1
)

// retryDelay is the polling interval while waiting for the lock.
const retryDelay = 50 * time.Millisecond

// LockSuffix is appended to a database path to form its lock file path.
const LockSuffix = ".lock"

// FileLock is an exclusive advisory lock on a file beside the database.
// It is released on ReleaseLock or when the process exits.
type FileLock struct {
	fl   *flock.Flock
	path string
	held bool
}

// NewFileLock creates a lock for the database at dbPath. The lock is not
// acquired until AcquireLock is called.
func NewFileLock(dbPath string) *FileLock {
	path := GenerateLockPath(dbPath)
	return &FileLock{
		fl:   flock.New(path),
		path: path,
	}
}

// GenerateLockPath returns the lock file path for a database file.
func GenerateLockPath(dbPath string) string {
	return dbPath + LockSuffix
}

// AcquireLock attempts to acquire the lock, waiting up to timeoutSeconds.
// Returns true if the lock was acquired, false if the timeout was reached.
// Returns an error if the lock file cannot be opened or ctx is done.
func (l *FileLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if l.held {
		return true, nil
	}

	if timeoutSeconds == TimeoutImmediate {
		ok, err := l.fl.TryLock()
		if err != nil {
			return false, fmt.Errorf("failed to lock %s: %w", l.path, err)
		}
		l.held = ok
		return ok, nil
	}

	waitCtx := ctx
	if timeoutSeconds > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
		defer cancel()
	}

	ok, err := l.fl.TryLockContext(waitCtx, retryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return false, nil
		}
		return false, fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	l.held = ok
	return ok, nil
}

// ReleaseLock releases the lock. Returns false if it was not held.
func (l *FileLock) ReleaseLock() (bool, error) {
	if !l.held {
		return false, nil
	}
	if err := l.fl.Unlock(); err != nil {
		return false, fmt.Errorf("failed to unlock %s: %w", l.path, err)
	}
	l.held = false
	return true, nil
}

// IsHeld returns true if this instance holds the lock.
func (l *FileLock) IsHeld() bool {
	return l.held
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// TryAcquire attempts to acquire the lock without waiting.
func (l *FileLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.AcquireLock(ctx, TimeoutImmediate)
}

// AcquireOrFail acquires the lock with a short timeout, returning
// ErrLockTimeout if another process holds it.
func (l *FileLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := l.AcquireLock(ctx, TimeoutShort)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: %s is held by another process", ErrLockTimeout, l.path)
	}
	return nil
}

// IsLocked reports whether another process currently holds the lock for
// dbPath. The check is not atomic; the state may change right after.
func IsLocked(ctx context.Context, dbPath string) (bool, error) {
	l := NewFileLock(dbPath)
	acquired, err := l.TryAcquire(ctx)
	if err != nil {
		return false, err
	}
	if acquired {
		if _, err := l.ReleaseLock(); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
