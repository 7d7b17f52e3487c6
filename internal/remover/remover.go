// Package remover acts on a finalized removal set: it deletes the flagged
// records in batches, writes a safety copy first, and exports thinned or
// duplicates-only copies of the database.
package remover

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dbsmedya/smdedupe/internal/lock"
	"github.com/dbsmedya/smdedupe/internal/logger"
	"github.com/dbsmedya/smdedupe/internal/sqlutil"
	"github.com/dbsmedya/smdedupe/internal/store"
	"github.com/dbsmedya/smdedupe/internal/types"
	"github.com/dbsmedya/smdedupe/internal/verifier"
)

// DefaultBatchSize bounds the IN clause of each DELETE.
const DefaultBatchSize = 500

// Options configures a Remover.
type Options struct {
	BatchSize  int
	SafetyCopy bool
	// SafetyPath overrides the generated safety copy path.
	SafetyPath string
	// Verify checks copies against the primary; empty means count.
	Verify verifier.Method
}

// Stats describes a completed removal.
type Stats struct {
	Requested   int
	RowsDeleted int64
	Batches     int
	SafetyCopy  string
	Duration    time.Duration
}

// Remover deletes flagged records from the primary database.
type Remover struct {
	gw     *store.Gateway
	gate   *lock.Gate
	opts   Options
	logger *logger.Logger
}

// NewRemover creates a remover. gate must be the gate scans on this database
// hold; nil means no scan shares it.
func NewRemover(gw *store.Gateway, gate *lock.Gate, opts Options, log *logger.Logger) (*Remover, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is nil")
	}
	if gate == nil {
		gate = lock.NewGate()
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Verify == "" {
		opts.Verify = verifier.MethodCount
	}
	return &Remover{
		gw:     gw,
		gate:   gate,
		opts:   opts,
		logger: log,
	}, nil
}

// Remove deletes every record in set by ID. It refuses to run while a scan
// holds the gate or another process holds the database's write lock. Each
// batch commits on its own; re-running after a partial failure is safe.
func (r *Remover) Remove(ctx context.Context, set *types.RemovalSet) (*Stats, error) {
	startTime := time.Now()
	stats := &Stats{Requested: set.Len()}

	if set.Len() == 0 {
		r.logger.Info("Nothing to remove")
		return stats, nil
	}

	release, err := r.gate.TryWrite()
	if err != nil {
		return nil, fmt.Errorf("cannot remove records: %w", err)
	}
	defer release()

	if src := r.gw.Source(); src != "" {
		fl := lock.NewFileLock(src)
		if err := fl.AcquireOrFail(ctx); err != nil {
			return nil, err
		}
		defer fl.ReleaseLock()
	}

	if r.opts.SafetyCopy {
		path := r.opts.SafetyPath
		if path == "" {
			path = SafetyCopyPath(r.gw.Source(), startTime)
		}
		if err := r.SafetyCopy(ctx, path); err != nil {
			return nil, fmt.Errorf("safety copy failed, nothing removed: %w", err)
		}
		stats.SafetyCopy = path
	}

	ids := set.IDs()
	totalBatches := (len(ids) + r.opts.BatchSize - 1) / r.opts.BatchSize

	r.logger.Infof("Removing %d records from %s in %d batches", len(ids), r.gw.Table(), totalBatches)

	for batchNum := 0; batchNum < totalBatches; batchNum++ {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("removal interrupted: %w", err)
		}

		start := batchNum * r.opts.BatchSize
		end := start + r.opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}

		deleted, err := r.deleteBatch(ctx, ids[start:end])
		if err != nil {
			return stats, fmt.Errorf("batch %d/%d failed: %w", batchNum+1, totalBatches, err)
		}
		stats.RowsDeleted += deleted
		stats.Batches++

		if totalBatches > 1 {
			r.logger.Debugf("Deleted %d rows (batch %d/%d)", deleted, batchNum+1, totalBatches)
		}
	}

	stats.Duration = time.Since(startTime)
	r.logger.Infof("Removal complete: %d of %d records deleted, duration: %s",
		stats.RowsDeleted, stats.Requested, stats.Duration)
	return stats, nil
}

// deleteBatch deletes one batch by rowid without a transaction.
func (r *Remover) deleteBatch(ctx context.Context, ids []int64) (int64, error) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE rowid IN (%s)",
		sqlutil.QuoteIdentifier(r.gw.Table()),
		strings.Join(placeholders, ","),
	)

	result, err := r.gw.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, types.NewQueryError("delete", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, types.NewQueryError("delete", err)
	}

	if affected == 0 {
		r.logger.Debugf("No rows deleted for %d ids (may have been deleted already)", len(ids))
	} else if affected < int64(len(ids)) {
		r.logger.Warnf("Partial delete: %d/%d rows deleted", affected, len(ids))
	}
	return affected, nil
}

// SafetyCopyPath derives a timestamped copy path beside the database.
func SafetyCopyPath(dbPath string, at time.Time) string {
	ext := filepath.Ext(dbPath)
	base := strings.TrimSuffix(dbPath, ext)
	if ext == "" {
		ext = ".sqlite"
	}
	return fmt.Sprintf("%s_backup_%s%s", base, at.Format("20060102T150405"), ext)
}

// SafetyCopy writes a consistent copy of the whole database to dest, which
// must not exist yet, and verifies it against the primary.
func (r *Remover) SafetyCopy(ctx context.Context, dest string) error {
	if err := r.copyDatabase(ctx, dest); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", dest)
	if err != nil {
		return &types.ConnectionError{Path: dest, Err: err}
	}
	defer db.Close()

	if err := r.verifyCopy(ctx, db, nil); err != nil {
		return fmt.Errorf("safety copy %s: %w", dest, err)
	}
	r.logger.Infof("Safety copy written to %s", dest)
	return nil
}

func (r *Remover) copyDatabase(ctx context.Context, dest string) error {
	if err := ensureAbsent(dest); err != nil {
		return err
	}
	if _, err := r.gw.DB().ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return types.NewQueryError("copy database", err)
	}
	return nil
}

// verifyCopy compares db with the primary, over ids or the whole table when
// ids is nil.
func (r *Remover) verifyCopy(ctx context.Context, db *sql.DB, ids []int64) error {
	if r.opts.Verify == verifier.MethodSkip {
		return nil
	}
	v, err := verifier.NewVerifier(r.gw.DB(), db, r.gw.Table(), r.opts.Verify, r.logger)
	if err != nil {
		return err
	}
	v.SetChunkSize(r.opts.BatchSize)
	if ids == nil {
		_, err = v.VerifyTable(ctx)
	} else {
		_, err = v.VerifyIDs(ctx, ids)
	}
	return err
}

// ExportDuplicates writes a copy of the database holding only the flagged
// records.
func (r *Remover) ExportDuplicates(ctx context.Context, set *types.RemovalSet, dest string) (int64, error) {
	return r.exportSubset(ctx, set, dest, true)
}

// ExportThinned writes a copy of the database without the flagged records,
// leaving the primary untouched.
func (r *Remover) ExportThinned(ctx context.Context, set *types.RemovalSet, dest string) (int64, error) {
	return r.exportSubset(ctx, set, dest, false)
}

// exportSubset copies the database to dest, then deletes from the copy every
// row that is (keepFlagged=false) or is not (keepFlagged=true) in set.
// It returns the number of rows left in the copy. Rowids in the copy match
// the primary, so the copy is never vacuumed.
func (r *Remover) exportSubset(ctx context.Context, set *types.RemovalSet, dest string, keepFlagged bool) (int64, error) {
	if err := r.copyDatabase(ctx, dest); err != nil {
		return 0, err
	}

	db, err := sql.Open("sqlite", dest)
	if err != nil {
		return 0, &types.ConnectionError{Path: dest, Err: err}
	}
	defer db.Close()

	// The temp table lives on one connection.
	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, &types.ConnectionError{Path: dest, Err: err}
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "CREATE TEMP TABLE flagged (id INTEGER PRIMARY KEY)"); err != nil {
		return 0, types.NewQueryError("export", err)
	}

	ids := set.IDs()
	for start := 0; start < len(ids); start += r.opts.BatchSize {
		end := start + r.opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		placeholders := make([]string, len(batch))
		args := make([]interface{}, len(batch))
		for i, id := range batch {
			placeholders[i] = "(?)"
			args[i] = id
		}
		query := "INSERT INTO flagged (id) VALUES " + strings.Join(placeholders, ",")
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return 0, types.NewQueryError("export", err)
		}
	}

	op := "IN"
	if keepFlagged {
		op = "NOT IN"
	}
	table := sqlutil.QuoteIdentifier(r.gw.Table())
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE rowid %s (SELECT id FROM flagged)", table, op)); err != nil {
		return 0, types.NewQueryError("export", err)
	}
	if _, err := conn.ExecContext(ctx, "DROP TABLE flagged"); err != nil {
		return 0, types.NewQueryError("export", err)
	}

	var remaining int64
	if err := conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&remaining); err != nil {
		return 0, types.NewQueryError("export", err)
	}

	if keepFlagged {
		if err := r.verifyCopy(ctx, db, ids); err != nil {
			return 0, fmt.Errorf("export %s: %w", dest, err)
		}
	}

	r.logger.Infof("Exported %d records to %s", remaining, dest)
	return remaining, nil
}

func ensureAbsent(path string) error {
	if path == "" {
		return fmt.Errorf("no destination path given")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("destination %s already exists", path)
	} else if !os.IsNotExist(err) {
		return err
	}
	return nil
}
