// Package verifier checks that a copy of the metadata table matches the
// primary database, either for the whole table or for a set of record IDs.
package verifier

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dbsmedya/smdedupe/internal/logger"
	"github.com/dbsmedya/smdedupe/internal/sqlutil"
	"github.com/dbsmedya/smdedupe/internal/types"
)

// Method defines how to verify a copy.
type Method string

const (
	// MethodCount compares row counts (fast)
	MethodCount Method = "count"
	// MethodSHA256 compares a SHA256 hash of every row, rowid included
	MethodSHA256 Method = "sha256"
	// MethodSkip skips verification entirely
	MethodSkip Method = "skip"
)

// ErrMismatch is wrapped by the error returned when a copy differs.
var ErrMismatch = errors.New("copy does not match source")

// DefaultChunkSize bounds the IN clause used when verifying by ID.
const DefaultChunkSize = 1000

// ParseMethod maps a configured name to a Method. Empty means count.
func ParseMethod(name string) (Method, error) {
	switch Method(name) {
	case "", MethodCount:
		return MethodCount, nil
	case MethodSHA256, MethodSkip:
		return Method(name), nil
	default:
		return "", &types.ConfigurationError{
			Field:   "verify",
			Message: fmt.Sprintf("unknown verification method %q (count, sha256, skip)", name),
		}
	}
}

// Result holds the outcome of one verification.
type Result struct {
	Table        string
	Method       Method
	SourceCount  int64
	DestCount    int64
	SourceHash   string
	DestHash     string
	Match        bool
	ErrorMessage string
}

// Verifier compares one table between a source and a destination database.
type Verifier struct {
	source      *sql.DB
	destination *sql.DB
	table       string
	method      Method
	chunkSize   int
	logger      *logger.Logger
}

// NewVerifier creates a verifier for table.
func NewVerifier(source, destination *sql.DB, table string, method Method, log *logger.Logger) (*Verifier, error) {
	if source == nil {
		return nil, fmt.Errorf("source database is nil")
	}
	if destination == nil {
		return nil, fmt.Errorf("destination database is nil")
	}
	if !sqlutil.IsValidIdentifier(table) {
		return nil, &types.ConfigurationError{Field: "table", Message: fmt.Sprintf("invalid table name %q", table)}
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if method == "" {
		method = MethodCount
	}

	return &Verifier{
		source:      source,
		destination: destination,
		table:       table,
		method:      method,
		chunkSize:   DefaultChunkSize,
		logger:      log,
	}, nil
}

// VerifyTable compares the whole table.
func (v *Verifier) VerifyTable(ctx context.Context) (*Result, error) {
	return v.verify(ctx, [][]int64{nil})
}

// VerifyIDs compares only the rows with the given rowids. Rows missing from
// both sides are not a mismatch.
func (v *Verifier) VerifyIDs(ctx context.Context, ids []int64) (*Result, error) {
	if len(ids) == 0 {
		return &Result{Table: v.table, Method: v.method, Match: true}, nil
	}
	var chunks [][]int64
	for i := 0; i < len(ids); i += v.chunkSize {
		end := i + v.chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return v.verify(ctx, chunks)
}

func (v *Verifier) verify(ctx context.Context, chunks [][]int64) (*Result, error) {
	if v.method == MethodSkip {
		v.logger.Info("Verification SKIPPED (method=skip)")
		return &Result{Table: v.table, Method: MethodSkip, Match: true}, nil
	}
	if v.method != MethodCount && v.method != MethodSHA256 {
		return nil, fmt.Errorf("unsupported verification method: %s", v.method)
	}

	sourceCount, sourceHash, err := v.measure(ctx, v.source, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	destCount, destHash, err := v.measure(ctx, v.destination, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to read destination: %w", err)
	}

	result := &Result{
		Table:       v.table,
		Method:      v.method,
		SourceCount: sourceCount,
		DestCount:   destCount,
		SourceHash:  sourceHash,
		DestHash:    destHash,
		Match:       sourceCount == destCount && sourceHash == destHash,
	}

	if !result.Match {
		if sourceCount != destCount {
			result.ErrorMessage = fmt.Sprintf("count mismatch: source=%d, dest=%d", sourceCount, destCount)
		} else {
			result.ErrorMessage = fmt.Sprintf("hash mismatch: source=%s, dest=%s", sourceHash[:16], destHash[:16])
		}
		v.logger.Errorf("Verification FAILED for table %q: %s", v.table, result.ErrorMessage)
		return result, fmt.Errorf("%w: %s", ErrMismatch, result.ErrorMessage)
	}

	v.logger.Debugf("Verification PASSED for table %q (method=%s, %d rows)", v.table, v.method, sourceCount)
	return result, nil
}

// measure counts, and for MethodSHA256 hashes, the selected rows of db.
// A nil chunk selects the whole table.
func (v *Verifier) measure(ctx context.Context, db *sql.DB, chunks [][]int64) (int64, string, error) {
	table := sqlutil.QuoteIdentifier(v.table)
	hasher := sha256.New()
	var total int64

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return 0, "", fmt.Errorf("verification interrupted: %w", err)
		}

		where, args := rowidFilter(chunk)

		if v.method == MethodCount {
			var n int64
			query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, where)
			if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
				return 0, "", types.NewQueryError("verify", err)
			}
			total += n
			continue
		}

		query := fmt.Sprintf("SELECT rowid, * FROM %s%s ORDER BY rowid", table, where)
		n, err := hashRows(ctx, db, hasher, query, args)
		if err != nil {
			return 0, "", err
		}
		total += n
	}

	if v.method == MethodCount {
		return total, "", nil
	}
	return total, hex.EncodeToString(hasher.Sum(nil)), nil
}

func rowidFilter(ids []int64) (string, []interface{}) {
	if ids == nil {
		return "", nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return fmt.Sprintf(" WHERE rowid IN (%s)", strings.Join(placeholders, ",")), args
}

func hashRows(ctx context.Context, db *sql.DB, hasher io.Writer, query string, args []interface{}) (int64, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, types.NewQueryError("verify", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, types.NewQueryError("verify", err)
	}

	var n int64
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for j := range values {
			valuePtrs[j] = &values[j]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return 0, types.NewQueryError("verify", err)
		}

		hasher.Write([]byte(serializeRow(columns, values)))
		hasher.Write([]byte("\n"))
		n++

		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, fmt.Errorf("verification interrupted: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return 0, types.NewQueryError("verify", err)
	}
	return n, nil
}

// serializeRow converts a row to a deterministic string for hashing.
// Format: col1=val1\x00col2=val2...
func serializeRow(columns []string, values []interface{}) string {
	parts := make([]string, 0, len(columns))

	for i, col := range columns {
		var valStr string
		switch val := values[i].(type) {
		case nil:
			valStr = "NULL"
		case []byte:
			valStr = string(val)
		case int64:
			valStr = fmt.Sprintf("%d", val)
		case float64:
			valStr = fmt.Sprintf("%g", val)
		case bool:
			valStr = fmt.Sprintf("%t", val)
		case string:
			valStr = val
		default:
			valStr = fmt.Sprintf("%v", val)
		}
		parts = append(parts, col+"="+valStr)
	}

	return strings.Join(parts, "\x00")
}

// SetChunkSize sets the number of IDs checked per query.
func (v *Verifier) SetChunkSize(size int) {
	if size > 0 {
		v.chunkSize = size
	}
}
