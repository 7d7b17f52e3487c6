package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy_Is(t *testing.T) {
	base := errors.New("no such column: Shows")

	conn := &ConnectionError{Path: "/tmp/x.sqlite", Err: base}
	query := &QueryError{Op: "count matching", Err: base}
	cfg := &ConfigurationError{Field: "order", Message: "at least one tie-break rule is required"}

	assert.True(t, errors.Is(conn, ErrConnection))
	assert.False(t, errors.Is(conn, ErrQuery))
	assert.True(t, errors.Is(conn, base))

	assert.True(t, errors.Is(query, ErrQuery))
	assert.True(t, errors.Is(query, base))

	assert.True(t, errors.Is(cfg, ErrConfiguration))
	assert.False(t, errors.Is(cfg, ErrQuery))

	wrapped := fmt.Errorf("grouping: %w", query)
	assert.True(t, errors.Is(wrapped, ErrQuery))
}

func TestErrorTaxonomy_Messages(t *testing.T) {
	assert.Equal(t, "count matching: boom", (&QueryError{Op: "count matching", Err: errors.New("boom")}).Error())
	assert.Equal(t, "invalid tags: list is empty", (&ConfigurationError{Field: "tags", Message: "list is empty"}).Error())
	assert.Contains(t, (&ConnectionError{Path: "a.sqlite", Err: errors.New("missing")}).Error(), "a.sqlite")
}

func TestNewQueryError(t *testing.T) {
	assert.Nil(t, NewQueryError("op", nil))

	plain := NewQueryError("row count", errors.New("disk I/O error"))
	var qe *QueryError
	assert.True(t, errors.As(plain, &qe))
	assert.Equal(t, "row count", qe.Op)

	cfg := &ConfigurationError{Field: "column", Message: "unknown"}
	assert.Same(t, cfg, NewQueryError("op", cfg).(*ConfigurationError))
}
