// Package scan runs detectors in the background and merges their results.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dbsmedya/smdedupe/internal/logger"
)

// ErrBusy is returned when a task is dispatched while the previous result
// for the same key has not been drained.
var ErrBusy = errors.New("previous run still outstanding")

// Task is one unit of background work. It owns its inputs.
type Task[R any] func(ctx context.Context) (R, error)

// Result is what a finished task delivers.
type Result[K comparable, R any] struct {
	Key      K
	Value    R
	Err      error
	Duration time.Duration
}

// slot tracks one key: working is set from dispatch until the result is
// drained, and results holds at most one undrained result.
type slot[K comparable, R any] struct {
	working atomic.Bool
	results chan Result[K, R]
}

// Coordinator runs at most one task per key at a time and hands results back
// through non-blocking polls. Keys are fixed at construction.
type Coordinator[K comparable, R any] struct {
	keys   []K
	slots  map[K]*slot[K, R]
	wg     sync.WaitGroup
	logger *logger.Logger
}

// NewCoordinator creates a coordinator with one slot per key.
func NewCoordinator[K comparable, R any](keys []K, log *logger.Logger) *Coordinator[K, R] {
	if log == nil {
		log = logger.NewDefault()
	}
	c := &Coordinator[K, R]{
		keys:   append([]K(nil), keys...),
		slots:  make(map[K]*slot[K, R], len(keys)),
		logger: log,
	}
	for _, k := range keys {
		c.slots[k] = &slot[K, R]{results: make(chan Result[K, R], 1)}
	}
	return c
}

// Dispatch starts task in the background under key. It returns ErrBusy if
// the key's previous result has not been drained yet.
func (c *Coordinator[K, R]) Dispatch(ctx context.Context, key K, task Task[R]) error {
	s, ok := c.slots[key]
	if !ok {
		return fmt.Errorf("unknown task key %v", key)
	}
	if !s.working.CompareAndSwap(false, true) {
		return fmt.Errorf("%v: %w", key, ErrBusy)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		start := time.Now()

		res := Result[K, R]{Key: key}
		func() {
			defer func() {
				if r := recover(); r != nil {
					res.Err = fmt.Errorf("task %v panicked: %v", key, r)
				}
			}()
			res.Value, res.Err = task(ctx)
		}()
		res.Duration = time.Since(start)

		// Capacity 1 and the working flag guarantee this never blocks.
		s.results <- res
	}()

	c.logger.Debugf("Dispatched task %v", key)
	return nil
}

// Working reports whether key has an undrained run.
func (c *Coordinator[K, R]) Working(key K) bool {
	s, ok := c.slots[key]
	return ok && s.working.Load()
}

// Busy reports whether any key has an undrained run.
func (c *Coordinator[K, R]) Busy() bool {
	for _, s := range c.slots {
		if s.working.Load() {
			return true
		}
	}
	return false
}

// Poll drains whatever results are ready without blocking.
func (c *Coordinator[K, R]) Poll() []Result[K, R] {
	var out []Result[K, R]
	for _, k := range c.keys {
		s := c.slots[k]
		select {
		case res := <-s.results:
			s.working.Store(false)
			out = append(out, res)
		default:
		}
	}
	return out
}

// Wait blocks until every outstanding run has delivered, or ctx is done.
// Results drained before ctx ended are returned either way.
func (c *Coordinator[K, R]) Wait(ctx context.Context) ([]Result[K, R], error) {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	var out []Result[K, R]
	for _, k := range c.keys {
		s := c.slots[k]
		// A concurrent Poll may take the result first; re-check the flag.
		for s.working.Load() {
			select {
			case res := <-s.results:
				s.working.Store(false)
				out = append(out, res)
			case <-ctx.Done():
				return out, ctx.Err()
			case <-ticker.C:
			}
		}
	}
	return out, nil
}

// Drain waits for every running goroutine to exit and discards any
// undrained results.
func (c *Coordinator[K, R]) Drain() {
	c.wg.Wait()
	c.Poll()
}
