// Package sqlutil provides SQL utility functions for smdedupe.
package sqlutil

import (
	"regexp"
	"strings"
)

// QuoteIdentifier quotes a SQLite identifier (table name, column name) with double quotes.
// It escapes any existing double quotes by doubling them.
// Example: "Filepath" -> "\"Filepath\""
// Example: `my"col` -> `"my""col"`
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// validIdentifierRegex restricts identifiers to alphanumeric and underscore.
// SQLite accepts far more inside quotes, but SMDB schemas never need it.
var validIdentifierRegex = regexp.MustCompile("^[a-zA-Z0-9_]+$")

// IsValidIdentifier checks if a name only contains alphanumeric characters and underscores.
func IsValidIdentifier(name string) bool {
	return validIdentifierRegex.MatchString(name)
}

// ResolveColumn finds name in the closed set of known columns. SQLite column
// names are case-insensitive, so the match is too; the schema's spelling is
// returned.
func ResolveColumn(name string, columns []string) (string, bool) {
	for _, c := range columns {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}
