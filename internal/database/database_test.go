package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/smdedupe/internal/config"
	"github.com/dbsmedya/smdedupe/internal/types"
)

func createSQLiteFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE justinmetadata (filename TEXT, duration TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return path
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		busy     int
		readOnly bool
		expected string
	}{
		{"plain", "/data/lib.sqlite", 0, false, "file:/data/lib.sqlite"},
		{"busy timeout", "/data/lib.sqlite", 5000, false, "file:/data/lib.sqlite?_pragma=busy_timeout(5000)"},
		{"read only", "/data/lib.sqlite", 0, true, "file:/data/lib.sqlite?mode=ro"},
		{"both", "/data/lib.sqlite", 250, true, "file:/data/lib.sqlite?_pragma=busy_timeout(250)&mode=ro"},
		{"escaped characters", "/data/50% #1?.sqlite", 0, false, "file:/data/50%25 %231%3f.sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BuildDSN(tt.path, tt.busy, tt.readOnly))
		})
	}
}

func TestAcceptPath(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		ext    string
		wantOK bool
	}{
		{"no selection", "", ".sqlite", false},
		{"wrong extension", "/data/lib.db", ".sqlite", false},
		{"matching extension", "/data/lib.sqlite", ".sqlite", true},
		{"no extension required", "/data/lib.db", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AcceptPath(tt.path, tt.ext)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.path, got)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	cfg := &config.DatabaseConfig{BusyTimeoutMS: 1000, MaxConnections: 2}

	t.Run("existing database", func(t *testing.T) {
		path := createSQLiteFile(t, "lib.sqlite")
		db, err := Open(ctx, path, cfg, false)
		require.NoError(t, err)
		defer db.Close()

		var n int
		require.NoError(t, db.QueryRow(`SELECT count(*) FROM justinmetadata`).Scan(&n))
		assert.Equal(t, 0, n)
	})

	t.Run("read only rejects writes", func(t *testing.T) {
		path := createSQLiteFile(t, "ro.sqlite")
		db, err := Open(ctx, path, cfg, true)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec(`INSERT INTO justinmetadata VALUES ('a', '1')`)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing.sqlite")
		_, err := Open(ctx, path, cfg, false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrConnection))

		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr), "open must not create the file")
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := Open(ctx, "", cfg, false)
		assert.True(t, errors.Is(err, types.ErrConnection))
	})

	t.Run("directory", func(t *testing.T) {
		_, err := Open(ctx, t.TempDir(), cfg, false)
		assert.True(t, errors.Is(err, types.ErrConnection))
	})

	t.Run("not a database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "junk.sqlite")
		require.NoError(t, os.WriteFile(path, []byte("this is definitely not a sqlite file, just text padding it out"), 0644))
		_, err := Open(ctx, path, cfg, false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrConnection))
	})
}

func TestManagerConnect(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.Database.Path = createSQLiteFile(t, "primary.sqlite")
	cfg.Compare.Path = createSQLiteFile(t, "other.sqlite")

	m := NewManager(cfg)
	require.NoError(t, m.ConnectPrimary(ctx))
	require.NoError(t, m.ConnectCompare(ctx))
	assert.NotNil(t, m.Primary)
	assert.NotNil(t, m.Compare)
	assert.NoError(t, m.Ping(ctx))
	assert.NoError(t, m.Close())
}

func TestManagerConnectCompareMissing(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Compare.Path = filepath.Join(t.TempDir(), "nope.sqlite")

	m := NewManager(cfg)
	err := m.ConnectCompare(context.Background())
	require.Error(t, err)
	assert.Nil(t, m.Compare)

	var connErr *types.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, cfg.Compare.Path, connErr.Path)
}

func TestManagerCloseWithoutConnect(t *testing.T) {
	m := NewManager(config.DefaultConfig())
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Ping(context.Background()))
}
