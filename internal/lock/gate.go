package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrScanInProgress is returned by TryWrite while a scan holds the gate.
var ErrScanInProgress = errors.New("a scan is in progress")

// Gate orders writes behind in-flight scans on one database. Any number of
// scans may hold the gate together; a write holds it alone.
type Gate struct {
	mu    sync.RWMutex
	scans atomic.Int32
}

// NewGate returns an open gate.
func NewGate() *Gate {
	return &Gate{}
}

// BeginScan blocks until no write is running, then admits a scan. The
// returned func must be called exactly once when the scan finishes.
func (g *Gate) BeginScan() func() {
	g.mu.RLock()
	g.scans.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			g.scans.Add(-1)
			g.mu.RUnlock()
		})
	}
}

// Scanning reports whether any scan currently holds the gate.
func (g *Gate) Scanning() bool {
	return g.scans.Load() > 0
}

// TryWrite takes the gate for a write without waiting.
func (g *Gate) TryWrite() (func(), error) {
	if !g.mu.TryLock() {
		return nil, ErrScanInProgress
	}
	return g.releaseWrite(), nil
}

// Write waits for running scans to finish, then takes the gate for a write.
func (g *Gate) Write(ctx context.Context) (func(), error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if g.mu.TryLock() {
			return g.releaseWrite(), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *Gate) releaseWrite() func() {
	var once sync.Once
	return func() {
		once.Do(g.mu.Unlock)
	}
}
