// Package store is the record store gateway: every statement that touches the
// metadata table goes through a Gateway.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dbsmedya/smdedupe/internal/logger"
	"github.com/dbsmedya/smdedupe/internal/sqlutil"
	"github.com/dbsmedya/smdedupe/internal/types"
)

// DirtyColumn flags rows whose metadata changed but was not re-embedded into
// the audio file.
const DirtyColumn = "_Dirty"

// internalPrefix marks bookkeeping columns hidden from users.
const internalPrefix = "_"

// Required columns every SMDB table must carry.
var requiredColumns = []string{"filename", "duration"}

// Gateway executes parameterized queries against one metadata table.
// Column names are interpolated only after resolving them against the
// table's own schema; values are always bound.
type Gateway struct {
	db     *sql.DB
	table  string
	source string
	logger *logger.Logger
}

// NewGateway creates a gateway for table in db. source names the database
// file in error messages.
func NewGateway(db *sql.DB, table, source string, log *logger.Logger) (*Gateway, error) {
	if db == nil {
		return nil, fmt.Errorf("database is nil")
	}
	if !sqlutil.IsValidIdentifier(table) {
		return nil, &types.ConfigurationError{Field: "table", Message: fmt.Sprintf("%q is not a valid table name", table)}
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Gateway{
		db:     db,
		table:  table,
		source: source,
		logger: log,
	}, nil
}

// Table returns the metadata table name.
func (g *Gateway) Table() string {
	return g.table
}

// Source returns the database file the gateway reads.
func (g *Gateway) Source() string {
	return g.source
}

// DB returns the underlying handle.
func (g *Gateway) DB() *sql.DB {
	return g.db
}

// Preflight checks that the table exists and carries the record columns.
// Failures are connection errors: the file is not a usable SMDB.
func (g *Gateway) Preflight(ctx context.Context) error {
	cols, err := g.allColumns(ctx)
	if err != nil {
		return &types.ConnectionError{Path: g.source, Err: err}
	}
	if len(cols) == 0 {
		return &types.ConnectionError{Path: g.source, Err: fmt.Errorf("table %s not found", g.table)}
	}

	var missing []string
	for _, req := range requiredColumns {
		if _, ok := sqlutil.ResolveColumn(req, cols); !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return &types.ConnectionError{
			Path: g.source,
			Err:  fmt.Errorf("table %s is missing columns: %s", g.table, strings.Join(missing, ", ")),
		}
	}

	g.logger.Debugf("Preflight passed for %s (%d columns)", g.table, len(cols))
	return nil
}

// RowCount returns the number of records in the table.
func (g *Gateway) RowCount(ctx context.Context) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", sqlutil.QuoteIdentifier(g.table))

	var count int64
	if err := g.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, types.NewQueryError("row count", err)
	}
	return count, nil
}

// ColumnNames returns user-visible column names sorted alphabetically.
// Columns starting with an underscore are internal and omitted.
func (g *Gateway) ColumnNames(ctx context.Context) ([]string, error) {
	cols, err := g.allColumns(ctx)
	if err != nil {
		return nil, types.NewQueryError("column names", err)
	}

	visible := make([]string, 0, len(cols))
	for _, c := range cols {
		if strings.HasPrefix(c, internalPrefix) {
			continue
		}
		visible = append(visible, c)
	}
	sort.Strings(visible)
	return visible, nil
}

// ResolveColumn maps a user-supplied name onto the schema's spelling.
// Internal and unknown columns yield a QueryError.
func (g *Gateway) ResolveColumn(ctx context.Context, name string) (string, error) {
	cols, err := g.ColumnNames(ctx)
	if err != nil {
		return "", err
	}
	resolved, ok := sqlutil.ResolveColumn(name, cols)
	if !ok {
		return "", &types.QueryError{Op: "resolve column", Err: fmt.Errorf("no such column: %s", name)}
	}
	return resolved, nil
}

// CountMatching counts rows whose column contains substring, case-sensitively.
func (g *Gateway) CountMatching(ctx context.Context, column, substring string) (int64, error) {
	col, err := g.ResolveColumn(ctx, column)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE instr(%s, ?) > 0",
		sqlutil.QuoteIdentifier(g.table),
		sqlutil.QuoteIdentifier(col),
	)

	var count int64
	if err := g.db.QueryRowContext(ctx, query, substring).Scan(&count); err != nil {
		return 0, types.NewQueryError("count matching", err)
	}
	g.logger.Debugf("%d rows in %s contain %q", count, col, substring)
	return count, nil
}

// ReplaceSubstring replaces every occurrence of find in column with replace,
// in one statement. With markDirty the touched rows also get the dirty flag.
// It returns the number of rows changed.
func (g *Gateway) ReplaceSubstring(ctx context.Context, column, find, replace string, markDirty bool) (int64, error) {
	if find == "" {
		return 0, &types.ConfigurationError{Field: "find", Message: "must not be empty"}
	}
	col, err := g.ResolveColumn(ctx, column)
	if err != nil {
		return 0, err
	}

	qcol := sqlutil.QuoteIdentifier(col)
	set := fmt.Sprintf("%s = REPLACE(%s, ?, ?)", qcol, qcol)
	if markDirty {
		dirty, err := g.dirtyColumn(ctx)
		if err != nil {
			return 0, err
		}
		set += fmt.Sprintf(", %s = 1", sqlutil.QuoteIdentifier(dirty))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE instr(%s, ?) > 0",
		sqlutil.QuoteIdentifier(g.table), set, qcol)

	result, err := g.db.ExecContext(ctx, query, find, replace, find)
	if err != nil {
		return 0, types.NewQueryError("replace substring", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, types.NewQueryError("replace substring", err)
	}

	g.logger.Infof("Replaced %q with %q in %d rows of %s", find, replace, affected, col)
	return affected, nil
}

// FetchByFilenameSubstring returns the records whose filename contains substring.
func (g *Gateway) FetchByFilenameSubstring(ctx context.Context, substring string) ([]types.MetadataRecord, error) {
	query := fmt.Sprintf("SELECT rowid, filename, duration FROM %s WHERE instr(filename, ?) > 0 ORDER BY rowid",
		sqlutil.QuoteIdentifier(g.table))
	return g.QueryRecords(ctx, "fetch by filename", query, substring)
}

// Filenames returns the distinct non-empty filenames in the table.
func (g *Gateway) Filenames(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT filename FROM %s WHERE filename IS NOT NULL AND filename != ''",
		sqlutil.QuoteIdentifier(g.table))

	rows, err := g.db.QueryContext(ctx, query)
	if err != nil {
		return nil, types.NewQueryError("filenames", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var v interface{}
		if err := rows.Scan(&v); err != nil {
			return nil, types.NewQueryError("filenames", err)
		}
		names = append(names, types.ToText(v))
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewQueryError("filenames", err)
	}
	return names, nil
}

// EachRecord streams every record in rowid order. Iteration stops at the
// first error returned by fn or when ctx is done.
func (g *Gateway) EachRecord(ctx context.Context, fn func(types.MetadataRecord) error) error {
	query := fmt.Sprintf("SELECT rowid, filename, duration FROM %s ORDER BY rowid",
		sqlutil.QuoteIdentifier(g.table))

	rows, err := g.db.QueryContext(ctx, query)
	if err != nil {
		return types.NewQueryError("each record", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		rec, err := scanRecord(rows)
		if err != nil {
			return types.NewQueryError("each record", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return types.NewQueryError("each record", err)
	}
	return nil
}

// QueryRecords runs a read query whose first three result columns are
// rowid, filename and duration. op names the caller in errors.
func (g *Gateway) QueryRecords(ctx context.Context, op, query string, args ...interface{}) ([]types.MetadataRecord, error) {
	g.logger.Debugf("%s: %s", op, query)

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, types.NewQueryError(op, err)
	}
	defer rows.Close()

	var records []types.MetadataRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, types.NewQueryError(op, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, types.NewQueryError(op, err)
	}
	return records, nil
}

// allColumns lists every column in schema order, internal ones included.
func (g *Gateway) allColumns(ctx context.Context) ([]string, error) {
	rows, err := g.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", g.table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func (g *Gateway) dirtyColumn(ctx context.Context) (string, error) {
	cols, err := g.allColumns(ctx)
	if err != nil {
		return "", types.NewQueryError("dirty column", err)
	}
	col, ok := sqlutil.ResolveColumn(DirtyColumn, cols)
	if !ok {
		return "", &types.QueryError{Op: "mark dirty", Err: errors.New("table has no " + DirtyColumn + " column")}
	}
	return col, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(rows rowScanner) (types.MetadataRecord, error) {
	var (
		id                 interface{}
		filename, duration interface{}
	)
	if err := rows.Scan(&id, &filename, &duration); err != nil {
		return types.MetadataRecord{}, err
	}
	return types.MetadataRecord{
		ID:       types.ToInt64(id),
		Filename: types.ToText(filename),
		Duration: types.ToText(duration),
	}, nil
}
