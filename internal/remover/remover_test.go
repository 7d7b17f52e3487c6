package remover

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/smdedupe/internal/lock"
	"github.com/dbsmedya/smdedupe/internal/logger"
	"github.com/dbsmedya/smdedupe/internal/store"
	"github.com/dbsmedya/smdedupe/internal/testsupport"
	"github.com/dbsmedya/smdedupe/internal/types"
	"github.com/dbsmedya/smdedupe/internal/verifier"
)

func newFixture(t *testing.T) (*store.Gateway, string) {
	t.Helper()
	db, path := testsupport.NewDB(t,
		testsupport.Clip("a.wav", "1"),
		testsupport.Clip("a.wav", "2"),
		testsupport.Clip("b.wav", "1"),
		testsupport.Clip("b.wav", "2"),
		testsupport.Clip("c.wav", "1"),
	)
	gw, err := store.NewGateway(db, testsupport.Table, path, logger.NewNop())
	require.NoError(t, err)
	return gw, path
}

func flagged(ids ...int64) *types.RemovalSet {
	set := types.NewRemovalSet()
	for _, id := range ids {
		set.Add(types.MetadataRecord{ID: id})
	}
	return set
}

func remainingIDs(t *testing.T, db *sql.DB) []int64 {
	t.Helper()
	rows, err := db.Query(`SELECT rowid FROM justinmetadata ORDER BY rowid`)
	require.NoError(t, err)
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	return ids
}

func TestNewRemover(t *testing.T) {
	_, err := NewRemover(nil, nil, Options{}, nil)
	assert.Error(t, err)

	gw, _ := newFixture(t)
	r, err := NewRemover(gw, nil, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, r.opts.BatchSize)
	assert.Equal(t, verifier.MethodCount, r.opts.Verify)
}

func TestRemove_InBatches(t *testing.T) {
	gw, _ := newFixture(t)
	r, err := NewRemover(gw, nil, Options{BatchSize: 2}, logger.NewNop())
	require.NoError(t, err)

	stats, err := r.Remove(context.Background(), flagged(1, 3, 5))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Requested)
	assert.Equal(t, int64(3), stats.RowsDeleted)
	assert.Equal(t, 2, stats.Batches)
	assert.Empty(t, stats.SafetyCopy)
	assert.Equal(t, []int64{2, 4}, remainingIDs(t, gw.DB()))
}

func TestRemove_Idempotent(t *testing.T) {
	gw, _ := newFixture(t)
	r, err := NewRemover(gw, nil, Options{}, logger.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.Remove(ctx, flagged(1, 2))
	require.NoError(t, err)
	stats, err := r.Remove(ctx, flagged(1, 2))
	require.NoError(t, err)
	assert.Zero(t, stats.RowsDeleted)
}

func TestRemove_Empty(t *testing.T) {
	gw, _ := newFixture(t)
	r, err := NewRemover(gw, nil, Options{}, logger.NewNop())
	require.NoError(t, err)

	stats, err := r.Remove(context.Background(), types.NewRemovalSet())
	require.NoError(t, err)
	assert.Zero(t, stats.Batches)
}

func TestRemove_WithSafetyCopy(t *testing.T) {
	gw, _ := newFixture(t)
	safety := filepath.Join(t.TempDir(), "backup.sqlite")
	r, err := NewRemover(gw, nil, Options{SafetyCopy: true, SafetyPath: safety}, logger.NewNop())
	require.NoError(t, err)

	stats, err := r.Remove(context.Background(), flagged(1))
	require.NoError(t, err)
	assert.Equal(t, safety, stats.SafetyCopy)

	backup, err := sql.Open("sqlite", safety)
	require.NoError(t, err)
	defer backup.Close()
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, remainingIDs(t, backup), "backup predates the delete")
	assert.Equal(t, []int64{2, 3, 4, 5}, remainingIDs(t, gw.DB()))
}

func TestRemove_SafetyCopyFailureDeletesNothing(t *testing.T) {
	gw, path := newFixture(t)
	r, err := NewRemover(gw, nil, Options{SafetyCopy: true, SafetyPath: path}, logger.NewNop())
	require.NoError(t, err)

	_, err = r.Remove(context.Background(), flagged(1))
	require.Error(t, err)
	assert.Len(t, remainingIDs(t, gw.DB()), 5)
}

func TestRemove_RefusedDuringScan(t *testing.T) {
	gw, _ := newFixture(t)
	gate := lock.NewGate()
	r, err := NewRemover(gw, gate, Options{}, logger.NewNop())
	require.NoError(t, err)

	done := gate.BeginScan()
	_, err = r.Remove(context.Background(), flagged(1))
	assert.ErrorIs(t, err, lock.ErrScanInProgress)
	done()

	_, err = r.Remove(context.Background(), flagged(1))
	assert.NoError(t, err)
}

func TestRemove_RefusedWhileOtherProcessWrites(t *testing.T) {
	gw, path := newFixture(t)
	r, err := NewRemover(gw, nil, Options{}, logger.NewNop())
	require.NoError(t, err)

	other := lock.NewFileLock(path)
	ok, err := other.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	defer other.ReleaseLock()

	_, err = r.Remove(context.Background(), flagged(1))
	assert.ErrorIs(t, err, lock.ErrLockTimeout)
	assert.Len(t, remainingIDs(t, gw.DB()), 5)
}

func TestExportDuplicatesAndThinned(t *testing.T) {
	gw, _ := newFixture(t)
	r, err := NewRemover(gw, nil, Options{BatchSize: 1}, logger.NewNop())
	require.NoError(t, err)
	ctx := context.Background()
	set := flagged(1, 3)
	dir := t.TempDir()

	dupPath := filepath.Join(dir, "duplicates.sqlite")
	n, err := r.ExportDuplicates(ctx, set, dupPath)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	thinPath := filepath.Join(dir, "thinned.sqlite")
	n, err = r.ExportThinned(ctx, set, thinPath)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	dup, err := sql.Open("sqlite", dupPath)
	require.NoError(t, err)
	defer dup.Close()
	assert.Equal(t, []int64{1, 3}, remainingIDs(t, dup))

	thin, err := sql.Open("sqlite", thinPath)
	require.NoError(t, err)
	defer thin.Close()
	assert.Equal(t, []int64{2, 4, 5}, remainingIDs(t, thin))

	assert.Len(t, remainingIDs(t, gw.DB()), 5, "exports leave the primary untouched")

	_, err = r.ExportDuplicates(ctx, set, dupPath)
	assert.Error(t, err, "existing destination is never overwritten")
}

func TestCopiesVerifiedBySHA256(t *testing.T) {
	gw, _ := newFixture(t)
	r, err := NewRemover(gw, nil, Options{Verify: verifier.MethodSHA256}, logger.NewNop())
	require.NoError(t, err)
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, r.SafetyCopy(ctx, filepath.Join(dir, "safety.sqlite")))

	n, err := r.ExportDuplicates(ctx, flagged(2, 4), filepath.Join(dir, "dupes.sqlite"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSafetyCopyPath(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "/data/lib_backup_20260304T050607.sqlite", SafetyCopyPath("/data/lib.sqlite", at))
	assert.Equal(t, "/data/lib_backup_20260304T050607.sqlite", SafetyCopyPath("/data/lib", at))
}

func TestDeleteBatch_SQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	gw, err := store.NewGateway(db, "justinmetadata", "", logger.NewNop())
	require.NoError(t, err)
	r, err := NewRemover(gw, nil, Options{BatchSize: 2}, logger.NewNop())
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "justinmetadata" WHERE rowid IN (?,?)`)).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "justinmetadata" WHERE rowid IN (?)`)).
		WithArgs(int64(9)).
		WillReturnError(errors.New("database is locked"))

	stats, err := r.Remove(context.Background(), flagged(1, 2, 9))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrQuery))
	assert.Equal(t, int64(1), stats.RowsDeleted, "committed batches are reported")
	assert.NoError(t, mock.ExpectationsWereMet())
}
