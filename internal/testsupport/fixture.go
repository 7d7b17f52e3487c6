// Package testsupport builds throwaway SMDB files for tests.
package testsupport

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite" // SQLite driver
)

// Table is the metadata table name used by every fixture.
const Table = "justinmetadata"

// Columns lists the fixture schema in creation order. The rowid is the
// record id; _Dirty is hidden from column listings.
var Columns = []string{
	"filename",
	"duration",
	"Filepath",
	"pathname",
	"Description",
	"Show",
	"Library",
	"channels",
	"sampleRate",
	"bitDepth",
	"BWDate",
	"scannedDate",
	"_Dirty",
}

// Row is one record to insert. Keys are column names; missing columns are NULL.
type Row map[string]any

// NewDB creates a fresh SMDB file in a temp dir, inserts rows in order and
// returns an open handle plus the file path. The handle is closed on cleanup.
func NewDB(t testing.TB, rows ...Row) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.sqlite")
	db := create(t, path, rows)
	return db, path
}

// NewFile creates a fixture file at name inside a temp dir and closes it.
func NewFile(t testing.TB, name string, rows ...Row) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	db := create(t, path, rows)
	require.NoError(t, db.Close())
	return path
}

func create(t testing.TB, path string, rows []Row) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	defs := make([]string, 0, len(Columns))
	for _, c := range Columns {
		typ := "TEXT"
		switch c {
		case "channels", "bitDepth", "sampleRate", "_Dirty":
			typ = "INTEGER"
		}
		defs = append(defs, `"`+c+`" `+typ)
	}
	_, err = db.Exec(`CREATE TABLE ` + Table + ` (` + strings.Join(defs, ", ") + `)`)
	require.NoError(t, err)

	Insert(t, db, rows...)
	return db
}

// Insert appends rows to the fixture table. Rowids follow insertion order.
func Insert(t testing.TB, db *sql.DB, rows ...Row) {
	t.Helper()
	for _, r := range rows {
		cols := make([]string, 0, len(r))
		marks := make([]string, 0, len(r))
		args := make([]any, 0, len(r))
		for _, c := range Columns {
			v, ok := r[c]
			if !ok {
				continue
			}
			cols = append(cols, `"`+c+`"`)
			marks = append(marks, "?")
			args = append(args, v)
		}
		query := `INSERT INTO ` + Table + ` DEFAULT VALUES`
		if len(cols) > 0 {
			query = `INSERT INTO ` + Table + ` (` + strings.Join(cols, ", ") + `) VALUES (` + strings.Join(marks, ", ") + `)`
		}
		_, err := db.Exec(query, args...)
		require.NoError(t, err)
	}
}

// Clip is a shorthand for the most common fixture row.
func Clip(filename, duration string, extra ...string) Row {
	r := Row{"filename": filename, "duration": duration}
	for i := 0; i+1 < len(extra); i += 2 {
		r[extra[i]] = extra[i+1]
	}
	return r
}
