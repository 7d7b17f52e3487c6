// Package replace implements the two-phase find/replace protocol: a replace
// is only applied after a preview of the same find text and column.
package replace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dbsmedya/smdedupe/internal/lock"
	"github.com/dbsmedya/smdedupe/internal/logger"
	"github.com/dbsmedya/smdedupe/internal/store"
	"github.com/dbsmedya/smdedupe/internal/types"
)

// ErrNoPreview is returned when Apply is called without a matching preview.
var ErrNoPreview = errors.New("replace requires a preview of the same find text and column")

// State is the session state.
type State int

const (
	StateIdle State = iota
	StatePreviewed
	StateApplied
)

func (s State) String() string {
	switch s {
	case StatePreviewed:
		return "previewed"
	case StateApplied:
		return "applied"
	default:
		return "idle"
	}
}

// Request is a confirmed replacement.
type Request struct {
	Column    string
	Find      string
	Replace   string
	MarkDirty bool
}

// Status is a snapshot of the session.
type Status struct {
	State    State
	Column   string
	Find     string
	Replace  string
	Count    int64
	Affected int64
}

// Session tracks one find/replace conversation against a database.
type Session struct {
	gw     *store.Gateway
	gate   *lock.Gate
	logger *logger.Logger

	mu     sync.Mutex
	status Status
}

// NewSession creates a session. gate orders the write behind running scans;
// nil means no scan shares the database.
func NewSession(gw *store.Gateway, gate *lock.Gate, log *logger.Logger) (*Session, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is nil")
	}
	if gate == nil {
		gate = lock.NewGate()
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Session{
		gw:     gw,
		gate:   gate,
		logger: log,
	}, nil
}

// Preview counts the rows in column containing find. A non-zero count arms
// the session for Apply; zero returns it to idle.
func (s *Session) Preview(ctx context.Context, column, find string) (int64, error) {
	if find == "" {
		return 0, &types.ConfigurationError{Field: "find", Message: "must not be empty"}
	}

	count, err := s.gw.CountMatching(ctx, column, find)
	if err != nil {
		s.Cancel()
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if count == 0 {
		s.status = Status{State: StateIdle, Column: column, Find: find}
		return 0, nil
	}
	s.status = Status{
		State:  StatePreviewed,
		Column: column,
		Find:   find,
		Count:  count,
	}
	s.logger.WithColumn(column).Infof("Preview: %d records contain %q", count, find)
	return count, nil
}

// Apply performs the previewed replacement. The request's find text and
// column must match the preview. The preview is consumed either way. The
// write waits for running scans and fails if another process holds the
// database's write lock.
func (s *Session) Apply(ctx context.Context, req Request) (int64, error) {
	s.mu.Lock()
	prev := s.status
	s.status = Status{State: StateIdle}
	s.mu.Unlock()

	if prev.State != StatePreviewed || prev.Find != req.Find || !strings.EqualFold(prev.Column, req.Column) {
		return 0, ErrNoPreview
	}

	release, err := s.gate.Write(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for running scans: %w", err)
	}
	defer release()

	if src := s.gw.Source(); src != "" {
		fl := lock.NewFileLock(src)
		if err := fl.AcquireOrFail(ctx); err != nil {
			return 0, err
		}
		defer fl.ReleaseLock()
	}

	affected, err := s.gw.ReplaceSubstring(ctx, req.Column, req.Find, req.Replace, req.MarkDirty)
	if err != nil {
		return 0, err
	}
	if affected != prev.Count {
		s.logger.Warnf("Preview counted %d records but %d were replaced", prev.Count, affected)
	}

	s.mu.Lock()
	s.status = Status{
		State:    StateApplied,
		Column:   prev.Column,
		Find:     prev.Find,
		Replace:  req.Replace,
		Count:    prev.Count,
		Affected: affected,
	}
	s.mu.Unlock()
	return affected, nil
}

// Cancel drops any preview and returns the session to idle.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{State: StateIdle}
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Message describes the session for display.
func (s *Session) Message() string {
	st := s.Status()
	switch st.State {
	case StatePreviewed:
		return fmt.Sprintf("Found %d records matching '%s' in %s of SM database: %s",
			st.Count, st.Find, st.Column, filepath.Base(s.gw.Source()))
	case StateApplied:
		return fmt.Sprintf("%d records replaced", st.Affected)
	default:
		if st.Find != "" {
			return fmt.Sprintf("No records matching '%s' in %s", st.Find, st.Column)
		}
		return ""
	}
}
