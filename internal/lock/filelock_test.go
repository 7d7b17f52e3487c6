package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "library.sqlite")
}

func TestGenerateLockPath(t *testing.T) {
	if got := GenerateLockPath("/data/library.sqlite"); got != "/data/library.sqlite.lock" {
		t.Errorf("GenerateLockPath() = %q", got)
	}
}

func TestNewFileLock(t *testing.T) {
	dbPath := testDBPath(t)
	l := NewFileLock(dbPath)

	if l.Path() != dbPath+LockSuffix {
		t.Errorf("Path() = %q, expected %q", l.Path(), dbPath+LockSuffix)
	}
	if l.IsHeld() {
		t.Error("new lock should not be held")
	}
}

func TestFileLock_AcquireRelease(t *testing.T) {
	l := NewFileLock(testDBPath(t))
	ctx := context.Background()

	acquired, err := l.AcquireLock(ctx, TimeoutImmediate)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if !acquired || !l.IsHeld() {
		t.Fatal("expected lock to be held")
	}

	if _, err := os.Stat(l.Path()); err != nil {
		t.Errorf("lock file should exist: %v", err)
	}

	// Re-acquiring a held lock is a no-op.
	again, err := l.AcquireLock(ctx, TimeoutShort)
	if err != nil || !again {
		t.Errorf("re-acquire = %v, %v", again, err)
	}

	released, err := l.ReleaseLock()
	if err != nil || !released {
		t.Fatalf("ReleaseLock = %v, %v", released, err)
	}
	if l.IsHeld() {
		t.Error("lock should not be held after release")
	}

	released, err = l.ReleaseLock()
	if err != nil || released {
		t.Errorf("second ReleaseLock = %v, %v; expected false, nil", released, err)
	}
}

func TestFileLock_SecondWriterBlocked(t *testing.T) {
	dbPath := testDBPath(t)
	ctx := context.Background()

	first := NewFileLock(dbPath)
	if ok, err := first.TryAcquire(ctx); err != nil || !ok {
		t.Fatalf("first TryAcquire = %v, %v", ok, err)
	}
	defer first.ReleaseLock()

	second := NewFileLock(dbPath)
	ok, err := second.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("second TryAcquire error: %v", err)
	}
	if ok {
		t.Fatal("second writer should not acquire a held lock")
	}

	err = second.AcquireOrFail(ctx)
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("AcquireOrFail error = %v, expected ErrLockTimeout", err)
	}

	running, err := IsLocked(ctx, dbPath)
	if err != nil || !running {
		t.Errorf("IsLocked = %v, %v; expected true", running, err)
	}
}

func TestFileLock_AcquireAfterRelease(t *testing.T) {
	dbPath := testDBPath(t)
	ctx := context.Background()

	first := NewFileLock(dbPath)
	if _, err := first.TryAcquire(ctx); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		first.ReleaseLock()
	}()

	second := NewFileLock(dbPath)
	acquired, err := second.AcquireLock(ctx, TimeoutMedium)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if !acquired {
		t.Fatal("second lock should be acquired once the first is released")
	}
	second.ReleaseLock()
}

func TestFileLock_ContextCancellation(t *testing.T) {
	dbPath := testDBPath(t)

	holder := NewFileLock(dbPath)
	if _, err := holder.TryAcquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer holder.ReleaseLock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	waiter := NewFileLock(dbPath)
	acquired, err := waiter.AcquireLock(ctx, TimeoutInfinite)
	if acquired {
		t.Error("waiter should not acquire")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestIsLocked_DoesNotLeaveLock(t *testing.T) {
	dbPath := testDBPath(t)
	ctx := context.Background()

	running, err := IsLocked(ctx, dbPath)
	if err != nil || running {
		t.Fatalf("IsLocked = %v, %v; expected false", running, err)
	}

	l := NewFileLock(dbPath)
	if ok, err := l.TryAcquire(ctx); err != nil || !ok {
		t.Fatalf("lock should be free after IsLocked: %v, %v", ok, err)
	}
	l.ReleaseLock()
}

func TestFileLock_MissingDirectory(t *testing.T) {
	l := NewFileLock(filepath.Join(t.TempDir(), "missing", "library.sqlite"))
	if _, err := l.TryAcquire(context.Background()); err == nil {
		t.Error("expected error when the lock directory does not exist")
	}
}
