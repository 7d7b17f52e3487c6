package detector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dbsmedya/smdedupe/internal/logger"
	"github.com/dbsmedya/smdedupe/internal/sqlutil"
	"github.com/dbsmedya/smdedupe/internal/store"
	"github.com/dbsmedya/smdedupe/internal/types"
)

// GroupingOptions configures one duplicate grouping run.
type GroupingOptions struct {
	// Rules are tie-break rules in priority order.
	Rules []string
	// GroupColumn, when set, splits duplicates by that column's value.
	GroupColumn string
	// IncludeNullGroup puts rows with a NULL or empty group value into a
	// shared group instead of skipping them.
	IncludeNullGroup bool
}

// Clone returns a deep copy.
func (o GroupingOptions) Clone() GroupingOptions {
	o.Rules = append([]string(nil), o.Rules...)
	return o
}

// GroupingEngine partitions records into duplicate groups by filename and
// flags every member except the top-ranked keeper.
type GroupingEngine struct {
	gw     *store.Gateway
	logger *logger.Logger
}

// NewGroupingEngine creates a grouping engine over gw.
func NewGroupingEngine(gw *store.Gateway, log *logger.Logger) (*GroupingEngine, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &GroupingEngine{
		gw:     gw,
		logger: log.WithDetector(string(KindDuplicates)),
	}, nil
}

// Find returns every non-keeper record. Rules are validated before any
// statement is sent.
func (e *GroupingEngine) Find(ctx context.Context, opts GroupingOptions) (*types.RemovalSet, error) {
	startTime := time.Now()

	rules, err := ParseRules(opts.Rules)
	if err != nil {
		return nil, err
	}

	query, args, err := e.BuildQuery(ctx, rules, opts)
	if err != nil {
		return nil, err
	}

	records, err := e.gw.QueryRecords(ctx, "duplicate grouping", query, args...)
	if err != nil {
		return nil, err
	}

	result := types.NewRemovalSet(records...)
	e.logger.Infof("Duplicate grouping flagged %d records (%d rules, group column %q, duration: %s)",
		result.Len(), len(rules), opts.GroupColumn, time.Since(startTime))
	return result, nil
}

// BuildQuery renders the window-function query for rules and opts. Rows are
// numbered within each partition in rule order, then by rowid so the keeper
// is stable for a fixed input; rows numbered above 1 are returned.
func (e *GroupingEngine) BuildQuery(ctx context.Context, rules []TieBreakRule, opts GroupingOptions) (string, []interface{}, error) {
	if len(rules) == 0 {
		return "", nil, &types.ConfigurationError{Field: "tie-break rules", Message: "list is empty"}
	}

	columns, err := e.gw.ColumnNames(ctx)
	if err != nil {
		return "", nil, err
	}

	var (
		orderTerms []string
		args       []interface{}
	)
	for _, r := range rules {
		resolved, err := r.Resolve(columns)
		if err != nil {
			return "", nil, err
		}
		term, termArgs := resolved.SQL()
		orderTerms = append(orderTerms, term)
		args = append(args, termArgs...)
	}
	orderTerms = append(orderTerms, "rowid ASC")

	// Blank filenames name no file, so they never form a partition.
	partition := "filename"
	where := " WHERE filename IS NOT NULL AND filename != ''"
	if opts.GroupColumn != "" {
		groupCol, ok := sqlutil.ResolveColumn(opts.GroupColumn, columns)
		if !ok {
			return "", nil, &types.QueryError{
				Op:  "duplicate grouping",
				Err: fmt.Errorf("no such group column: %s", opts.GroupColumn),
			}
		}
		qg := sqlutil.QuoteIdentifier(groupCol)
		if opts.IncludeNullGroup {
			partition = fmt.Sprintf("COALESCE(%s, ''), filename", qg)
		} else {
			partition = qg + ", filename"
			where += fmt.Sprintf(" AND %s IS NOT NULL AND %s != ''", qg, qg)
		}
	}

	query := fmt.Sprintf(
		"SELECT id, filename, duration FROM ("+
			"SELECT rowid AS id, filename, duration, "+
			"ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS rn "+
			"FROM %s%s"+
			") WHERE rn > 1 ORDER BY id",
		partition,
		strings.Join(orderTerms, ", "),
		sqlutil.QuoteIdentifier(e.gw.Table()),
		where,
	)
	return query, args, nil
}
