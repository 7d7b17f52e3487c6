package detector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dbsmedya/smdedupe/internal/sqlutil"
	"github.com/dbsmedya/smdedupe/internal/types"
)

// RuleKind distinguishes the tie-break rule shapes.
type RuleKind int

const (
	// RuleColumn orders by a column value.
	RuleColumn RuleKind = iota
	// RulePattern ranks rows by whether a column matches a LIKE pattern.
	RulePattern
	// RuleNonEmpty ranks rows by whether a column holds a non-empty value.
	RuleNonEmpty
)

func (k RuleKind) String() string {
	switch k {
	case RuleColumn:
		return "column"
	case RulePattern:
		return "pattern"
	case RuleNonEmpty:
		return "non-empty"
	default:
		return "unknown"
	}
}

// TieBreakRule is one ordering criterion used to pick the keeper of a
// duplicate group. For pattern and non-empty rules, Then is the rank of rows
// satisfying the condition and Else the rank of the rest.
type TieBreakRule struct {
	Kind       RuleKind
	Column     string
	Pattern    string
	Then       int
	Else       int
	Descending bool
}

var (
	columnRuleRe = regexp.MustCompile(`(?i)^\s*([A-Za-z0-9_]+)(?:\s+(ASC|DESC))?\s*$`)

	patternRuleRe = regexp.MustCompile(`(?i)^\s*CASE\s+WHEN\s+([A-Za-z0-9_]+)\s+LIKE\s+'((?:[^']|'')*)'\s+` +
		`THEN\s+(\d+)\s+ELSE\s+(\d+)\s+END(?:\s+(ASC|DESC))?\s*$`)

	nonEmptyRuleRe = regexp.MustCompile(`(?i)^\s*CASE\s+WHEN\s+([A-Za-z0-9_]+)\s+IS\s+NOT\s+NULL\s+AND\s+([A-Za-z0-9_]+)\s*(?:!=|<>)\s*''\s+` +
		`THEN\s+(\d+)\s+ELSE\s+(\d+)\s+END(?:\s+(ASC|DESC))?\s*$`)
)

// ParseRule parses one rule written as an ORDER BY fragment:
//
//	<column> [ASC|DESC]
//	CASE WHEN <column> LIKE '<pattern>' THEN a ELSE b END [ASC|DESC]
//	CASE WHEN <column> IS NOT NULL AND <column> != '' THEN a ELSE b END [ASC|DESC]
//
// Anything else is a ConfigurationError.
func ParseRule(s string) (TieBreakRule, error) {
	if m := columnRuleRe.FindStringSubmatch(s); m != nil {
		return TieBreakRule{
			Kind:       RuleColumn,
			Column:     m[1],
			Descending: strings.EqualFold(m[2], "DESC"),
		}, nil
	}

	if m := patternRuleRe.FindStringSubmatch(s); m != nil {
		then, els, err := parseRanks(s, m[3], m[4])
		if err != nil {
			return TieBreakRule{}, err
		}
		return TieBreakRule{
			Kind:       RulePattern,
			Column:     m[1],
			Pattern:    strings.ReplaceAll(m[2], "''", "'"),
			Then:       then,
			Else:       els,
			Descending: strings.EqualFold(m[5], "DESC"),
		}, nil
	}

	if m := nonEmptyRuleRe.FindStringSubmatch(s); m != nil {
		if !strings.EqualFold(m[1], m[2]) {
			return TieBreakRule{}, &types.ConfigurationError{
				Field:   "tie-break rule",
				Message: fmt.Sprintf("%q tests two different columns", s),
			}
		}
		then, els, err := parseRanks(s, m[3], m[4])
		if err != nil {
			return TieBreakRule{}, err
		}
		return TieBreakRule{
			Kind:       RuleNonEmpty,
			Column:     m[1],
			Then:       then,
			Else:       els,
			Descending: strings.EqualFold(m[5], "DESC"),
		}, nil
	}

	return TieBreakRule{}, &types.ConfigurationError{
		Field:   "tie-break rule",
		Message: fmt.Sprintf("cannot parse %q", s),
	}
}

func parseRanks(s, a, b string) (int, int, error) {
	then, err1 := strconv.Atoi(a)
	els, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil {
		return 0, 0, &types.ConfigurationError{Field: "tie-break rule", Message: fmt.Sprintf("bad rank in %q", s)}
	}
	return then, els, nil
}

// ParseRules parses an ordered rule list. An empty list is rejected because
// no keeper could be chosen deterministically.
func ParseRules(list []string) ([]TieBreakRule, error) {
	if len(list) == 0 {
		return nil, &types.ConfigurationError{Field: "tie-break rules", Message: "list is empty"}
	}
	rules := make([]TieBreakRule, 0, len(list))
	for _, s := range list {
		r, err := ParseRule(s)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// String renders the rule back into its textual form.
func (r TieBreakRule) String() string {
	dir := "ASC"
	if r.Descending {
		dir = "DESC"
	}
	switch r.Kind {
	case RulePattern:
		return fmt.Sprintf("CASE WHEN %s LIKE '%s' THEN %d ELSE %d END %s",
			r.Column, strings.ReplaceAll(r.Pattern, "'", "''"), r.Then, r.Else, dir)
	case RuleNonEmpty:
		return fmt.Sprintf("CASE WHEN %s IS NOT NULL AND %s != '' THEN %d ELSE %d END %s",
			r.Column, r.Column, r.Then, r.Else, dir)
	default:
		return r.Column + " " + dir
	}
}

// Resolve returns a copy of the rule with Column mapped onto the schema's
// spelling. Unknown columns are a QueryError.
func (r TieBreakRule) Resolve(columns []string) (TieBreakRule, error) {
	col, ok := sqlutil.ResolveColumn(r.Column, columns)
	if !ok {
		return r, &types.QueryError{
			Op:  "tie-break rule",
			Err: fmt.Errorf("no such column: %s", r.Column),
		}
	}
	r.Column = col
	return r, nil
}

// SQL renders the rule as an ORDER BY term with quoted identifiers. Patterns
// are returned as bind arguments.
func (r TieBreakRule) SQL() (string, []interface{}) {
	dir := "ASC"
	if r.Descending {
		dir = "DESC"
	}
	col := sqlutil.QuoteIdentifier(r.Column)

	switch r.Kind {
	case RulePattern:
		return fmt.Sprintf("CASE WHEN %s LIKE ? THEN %d ELSE %d END %s", col, r.Then, r.Else, dir),
			[]interface{}{r.Pattern}
	case RuleNonEmpty:
		return fmt.Sprintf("CASE WHEN %s IS NOT NULL AND %s != '' THEN %d ELSE %d END %s", col, col, r.Then, r.Else, dir), nil
	default:
		return col + " " + dir, nil
	}
}
