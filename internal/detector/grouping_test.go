package detector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/smdedupe/internal/config"
	"github.com/dbsmedya/smdedupe/internal/logger"
	"github.com/dbsmedya/smdedupe/internal/store"
	"github.com/dbsmedya/smdedupe/internal/testsupport"
	"github.com/dbsmedya/smdedupe/internal/types"
)

func newGateway(t *testing.T, rows ...testsupport.Row) *store.Gateway {
	t.Helper()
	db, path := testsupport.NewDB(t, rows...)
	gw, err := store.NewGateway(db, testsupport.Table, path, logger.NewNop())
	require.NoError(t, err)
	return gw
}

func newGroupingEngine(t *testing.T, rows ...testsupport.Row) *GroupingEngine {
	t.Helper()
	e, err := NewGroupingEngine(newGateway(t, rows...), logger.NewNop())
	require.NoError(t, err)
	return e
}

func TestNewGroupingEngine_NilGateway(t *testing.T) {
	_, err := NewGroupingEngine(nil, nil)
	assert.Error(t, err)
}

func TestGrouping_KeepsLongestDuration(t *testing.T) {
	e := newGroupingEngine(t,
		testsupport.Clip("track.wav", "5.0"),
		testsupport.Clip("track.wav", "7.5"),
	)

	got, err := e.Find(context.Background(), GroupingOptions{Rules: []string{"duration DESC"}})
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, got.IDs())
	assert.Equal(t, "5.0", got.Records()[0].Duration)
}

func TestGrouping_EmptyGroupValueIsSkipped(t *testing.T) {
	e := newGroupingEngine(t,
		testsupport.Clip("door.wav", "3", "Show", "Alpha"),
		testsupport.Clip("door.wav", "9", "Show", ""),
		testsupport.Clip("door.wav", "1", "Show", "Beta"),
		testsupport.Row{"filename": "door.wav", "duration": "8"},
	)

	got, err := e.Find(context.Background(), GroupingOptions{
		Rules:       []string{"duration DESC"},
		GroupColumn: "Show",
	})
	require.NoError(t, err)
	assert.Zero(t, got.Len(), "different shows and empty shows never compete")
}

func TestGrouping_GroupColumnSplitsPartitions(t *testing.T) {
	e := newGroupingEngine(t,
		testsupport.Clip("door.wav", "3", "Show", "Alpha"),
		testsupport.Clip("door.wav", "4", "Show", "Alpha"),
		testsupport.Clip("door.wav", "5", "Show", "Beta"),
		testsupport.Clip("door.wav", "6", "Show", ""),
	)

	got, err := e.Find(context.Background(), GroupingOptions{
		Rules:       []string{"duration DESC"},
		GroupColumn: "show",
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, got.IDs())
}

func TestGrouping_IncludeNullGroupProcessesTogether(t *testing.T) {
	e := newGroupingEngine(t,
		testsupport.Clip("door.wav", "3", "Show", ""),
		testsupport.Row{"filename": "door.wav", "duration": "8"},
		testsupport.Clip("door.wav", "5", "Show", "Alpha"),
	)

	got, err := e.Find(context.Background(), GroupingOptions{
		Rules:            []string{"duration DESC"},
		GroupColumn:      "Show",
		IncludeNullGroup: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, got.IDs(), "NULL and empty share a group; Alpha stands alone")
}

func TestGrouping_PatternRulePrefersLibrary(t *testing.T) {
	e := newGroupingEngine(t,
		testsupport.Clip("rain.wav", "10", "pathname", "/Users/me/Audio Files/rain.wav"),
		testsupport.Clip("rain.wav", "10", "pathname", "/Volumes/SFX/library/rain.wav"),
		testsupport.Clip("rain.wav", "99", "pathname", "/Volumes/Other/rain.wav"),
	)

	got, err := e.Find(context.Background(), GroupingOptions{Rules: []string{
		"CASE WHEN pathname LIKE '%LIBRARY%' THEN 0 ELSE 1 END ASC",
		"duration DESC",
	}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, got.IDs(), "LIKE is case-insensitive so the library copy wins")
}

func TestGrouping_NonEmptyRulePrefersDescribed(t *testing.T) {
	e := newGroupingEngine(t,
		testsupport.Clip("wind.wav", "2"),
		testsupport.Clip("wind.wav", "1", "Description", "Wind through trees"),
	)

	got, err := e.Find(context.Background(), GroupingOptions{Rules: []string{
		"CASE WHEN Description IS NOT NULL AND Description != '' THEN 0 ELSE 1 END ASC",
		"duration DESC",
	}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, got.IDs())
}

func TestGrouping_EmptyFilenamesNeverFlagged(t *testing.T) {
	rows := []testsupport.Row{
		testsupport.Clip("", "1"),
		testsupport.Clip("", "2"),
		{"duration": "3"},
		{"duration": "4"},
		testsupport.Clip("hit.wav", "5"),
		testsupport.Clip("hit.wav", "6"),
	}

	tests := []struct {
		name string
		opts GroupingOptions
		want []int64
	}{
		{"ungrouped", GroupingOptions{Rules: []string{"duration DESC"}}, []int64{5}},
		{"null group included", GroupingOptions{Rules: []string{"duration DESC"}, GroupColumn: "Show", IncludeNullGroup: true}, []int64{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newGroupingEngine(t, rows...)
			got, err := e.Find(context.Background(), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.IDs())
		})
	}
}

func TestGrouping_FullTieKeepsFirstInserted(t *testing.T) {
	e := newGroupingEngine(t,
		testsupport.Clip("same.wav", "1"),
		testsupport.Clip("same.wav", "1"),
		testsupport.Clip("same.wav", "1"),
	)

	got, err := e.Find(context.Background(), GroupingOptions{Rules: []string{"duration DESC"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, got.IDs())
}

func TestGrouping_SingletonsProduceNothing(t *testing.T) {
	e := newGroupingEngine(t,
		testsupport.Clip("a.wav", "1"),
		testsupport.Clip("b.wav", "1"),
		testsupport.Clip("c.wav", "1"),
	)

	got, err := e.Find(context.Background(), GroupingOptions{Rules: []string{"duration DESC"}})
	require.NoError(t, err)
	assert.Zero(t, got.Len())
}

func TestGrouping_OneKeeperPerPartitionAndIdempotent(t *testing.T) {
	var rows []testsupport.Row
	sizes := map[string]int{"a.wav": 1, "b.wav": 2, "c.wav": 3, "d.wav": 5}
	for _, name := range []string{"a.wav", "b.wav", "c.wav", "d.wav"} {
		for i := 0; i < sizes[name]; i++ {
			rows = append(rows, testsupport.Clip(name, string(rune('0'+i)), "pathname", "/p/"+name))
		}
	}
	e := newGroupingEngine(t, rows...)

	p, ok := config.LookupPreset(config.PresetDefault)
	require.True(t, ok)
	opts := GroupingOptions{Rules: p.Order}

	first, err := e.Find(context.Background(), opts)
	require.NoError(t, err)

	flaggedPer := map[string]int{}
	for _, r := range first.Records() {
		flaggedPer[r.Filename]++
	}
	for name, size := range sizes {
		assert.Equal(t, size-1, flaggedPer[name], "partition %s", name)
	}

	second, err := e.Find(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, first.IDs(), second.IDs())
}

func TestGrouping_Errors(t *testing.T) {
	e := newGroupingEngine(t, testsupport.Clip("a.wav", "1"))
	ctx := context.Background()

	_, err := e.Find(ctx, GroupingOptions{})
	assert.True(t, errors.Is(err, types.ErrConfiguration))

	_, err = e.Find(ctx, GroupingOptions{Rules: []string{"not a rule at all"}})
	assert.True(t, errors.Is(err, types.ErrConfiguration))

	_, err = e.Find(ctx, GroupingOptions{Rules: []string{"loudness DESC"}})
	assert.True(t, errors.Is(err, types.ErrQuery))

	_, err = e.Find(ctx, GroupingOptions{Rules: []string{"_Dirty DESC"}})
	assert.True(t, errors.Is(err, types.ErrQuery), "internal columns cannot rank")

	_, err = e.Find(ctx, GroupingOptions{Rules: []string{"duration DESC"}, GroupColumn: "Nope"})
	assert.True(t, errors.Is(err, types.ErrQuery))
}

func TestGrouping_CancelledContext(t *testing.T) {
	e := newGroupingEngine(t, testsupport.Clip("a.wav", "1"), testsupport.Clip("a.wav", "2"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Find(ctx, GroupingOptions{Rules: []string{"duration DESC"}})
	assert.Error(t, err)
}

func TestBuildQuery(t *testing.T) {
	e := newGroupingEngine(t)
	ctx := context.Background()

	rules, err := ParseRules([]string{
		"CASE WHEN pathname LIKE '%LIBRARY%' THEN 0 ELSE 1 END ASC",
		"duration DESC",
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		opts GroupingOptions
		want string
	}{
		{
			name: "ungrouped",
			opts: GroupingOptions{},
			want: `SELECT id, filename, duration FROM (SELECT rowid AS id, filename, duration, ` +
				`ROW_NUMBER() OVER (PARTITION BY filename ORDER BY CASE WHEN "pathname" LIKE ? THEN 0 ELSE 1 END ASC, "duration" DESC, rowid ASC) AS rn ` +
				`FROM "justinmetadata" WHERE filename IS NOT NULL AND filename != '') WHERE rn > 1 ORDER BY id`,
		},
		{
			name: "grouped",
			opts: GroupingOptions{GroupColumn: "Show"},
			want: `SELECT id, filename, duration FROM (SELECT rowid AS id, filename, duration, ` +
				`ROW_NUMBER() OVER (PARTITION BY "Show", filename ORDER BY CASE WHEN "pathname" LIKE ? THEN 0 ELSE 1 END ASC, "duration" DESC, rowid ASC) AS rn ` +
				`FROM "justinmetadata" WHERE filename IS NOT NULL AND filename != '' AND "Show" IS NOT NULL AND "Show" != '') WHERE rn > 1 ORDER BY id`,
		},
		{
			name: "grouped with null group",
			opts: GroupingOptions{GroupColumn: "Show", IncludeNullGroup: true},
			want: `SELECT id, filename, duration FROM (SELECT rowid AS id, filename, duration, ` +
				`ROW_NUMBER() OVER (PARTITION BY COALESCE("Show", ''), filename ORDER BY CASE WHEN "pathname" LIKE ? THEN 0 ELSE 1 END ASC, "duration" DESC, rowid ASC) AS rn ` +
				`FROM "justinmetadata" WHERE filename IS NOT NULL AND filename != '') WHERE rn > 1 ORDER BY id`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := e.BuildQuery(ctx, rules, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, query)
			assert.Equal(t, []interface{}{"%LIBRARY%"}, args)
		})
	}

	_, _, err = e.BuildQuery(ctx, nil, GroupingOptions{})
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestGroupingOptions_Clone(t *testing.T) {
	orig := GroupingOptions{Rules: []string{"duration DESC"}, GroupColumn: "Show"}
	c := orig.Clone()
	c.Rules[0] = "changed"
	assert.Equal(t, "duration DESC", orig.Rules[0])
	assert.Equal(t, "Show", c.GroupColumn)
}
