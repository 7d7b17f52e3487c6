// Package database provides SQLite connection management for smdedupe.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dbsmedya/smdedupe/internal/config"
	"github.com/dbsmedya/smdedupe/internal/types"
)

// Manager handles database connections for the primary and comparison SMDB files.
type Manager struct {
	Primary *sql.DB
	Compare *sql.DB
	config  *config.Config
}

// NewManager creates a new database manager from configuration.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		config: cfg,
	}
}

// ConnectPrimary opens the primary database read-write.
func (m *Manager) ConnectPrimary(ctx context.Context) error {
	db, err := Open(ctx, m.config.Database.Path, &m.config.Database, false)
	if err != nil {
		return err
	}
	m.Primary = db
	return nil
}

// ConnectCompare opens the comparison database read-only, with the same
// settings as the primary.
func (m *Manager) ConnectCompare(ctx context.Context) error {
	db, err := Open(ctx, m.config.Compare.Path, &m.config.Database, true)
	if err != nil {
		return err
	}
	m.Compare = db
	return nil
}

// Open opens an existing SQLite file. A missing file, a directory, or a file
// that is not a SQLite database yields a *types.ConnectionError.
func Open(ctx context.Context, path string, cfg *config.DatabaseConfig, readOnly bool) (*sql.DB, error) {
	if path == "" {
		return nil, &types.ConnectionError{Path: path, Err: errors.New("no database path given")}
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &types.ConnectionError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &types.ConnectionError{Path: path, Err: errors.New("path is a directory")}
	}

	db, err := sql.Open("sqlite", BuildDSN(path, cfg.BusyTimeoutMS, readOnly))
	if err != nil {
		return nil, &types.ConnectionError{Path: path, Err: err}
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	// Ping alone does not read the header; touching sqlite_master does.
	var n int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&n); err != nil {
		_ = db.Close()
		return nil, &types.ConnectionError{Path: path, Err: err}
	}

	return db, nil
}

// BuildDSN constructs a modernc SQLite URI DSN.
// Format: file:<path>?_pragma=busy_timeout(<ms>)[&mode=ro]
func BuildDSN(path string, busyTimeoutMS int, readOnly bool) string {
	escaped := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(path)

	dsn := "file:" + escaped
	params := []string{}
	if busyTimeoutMS > 0 {
		params = append(params, "_pragma=busy_timeout("+strconv.Itoa(busyTimeoutMS)+")")
	}
	if readOnly {
		params = append(params, "mode=ro")
	}
	if len(params) > 0 {
		dsn += "?" + strings.Join(params, "&")
	}
	return dsn
}

// AcceptPath applies the file-picker contract: a path is usable only if one
// was chosen and it ends in the recognized extension. Both failures are
// reported identically.
func AcceptPath(path, extension string) (string, bool) {
	if path == "" {
		return "", false
	}
	if extension != "" && !strings.HasSuffix(path, extension) {
		return "", false
	}
	return path, true
}

// Close closes all database connections gracefully.
func (m *Manager) Close() error {
	var errs []error

	if m.Compare != nil {
		if err := m.Compare.Close(); err != nil {
			errs = append(errs, fmt.Errorf("compare close: %w", err))
		}
	}

	if m.Primary != nil {
		if err := m.Primary.Close(); err != nil {
			errs = append(errs, fmt.Errorf("primary close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing connections: %v", errs)
	}
	return nil
}

// Ping verifies all connections are alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.Primary != nil {
		if err := m.Primary.PingContext(ctx); err != nil {
			return fmt.Errorf("primary ping failed: %w", err)
		}
	}

	if m.Compare != nil {
		if err := m.Compare.PingContext(ctx); err != nil {
			return fmt.Errorf("compare ping failed: %w", err)
		}
	}

	return nil
}
