package migration

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "nested", "test.db"))
	db, err := NewConnectionManager(cfg).GetConnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestScanOrdersByNumericVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_late.sql":   {Data: []byte("CREATE TABLE late (id TEXT);")},
		"002_second.sql": {Data: []byte("CREATE TABLE second (id TEXT);")},
		"001_first.sql":  {Data: []byte("CREATE TABLE first (id TEXT);")},
		"README.md":      {Data: []byte("ignored")},
	}

	got, err := Scan(fsys)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"001", "002", "010"}, []string{got[0].Version, got[1].Version, got[2].Version})
	assert.Equal(t, "first", got[0].Description)
	assert.Len(t, got[0].Checksum, 64)
}

func TestScanRejectsBadNamesAndDuplicates(t *testing.T) {
	_, err := Scan(fstest.MapFS{"init.sql": {Data: []byte("SELECT 1;")}})
	require.ErrorIs(t, err, ErrInvalidMigrationFile)

	_, err = Scan(fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":   {Data: []byte("SELECT 1;")},
	})
	require.ErrorIs(t, err, ErrDuplicateVersion)
}

func TestParseSQLDropsComments(t *testing.T) {
	stmts := parseSQL(`
-- header
CREATE TABLE a (id TEXT);
-- only a comment;
CREATE INDEX idx_a ON a(id);
`)
	assert.Equal(t, []string{"CREATE TABLE a (id TEXT)", "CREATE INDEX idx_a ON a(id)"}, stmts)
}

func TestManagerRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"001_init.sql": {Data: []byte("CREATE TABLE things (id TEXT PRIMARY KEY);")},
		"002_more.sql": {Data: []byte("ALTER TABLE things ADD COLUMN name TEXT;")},
	}

	ran, err := NewManager(db, fsys, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"001", "002"}, ran)

	_, err = db.ExecContext(ctx, `INSERT INTO things (id, name) VALUES ('a', 'b')`)
	require.NoError(t, err)

	ran, err = NewManager(db, fsys, nil).Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, ran)

	applied, err := NewSQLiteExecutor(db).Applied(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 2)
}

func TestManagerRollsBackFailedMigration(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"001_broken.sql": {Data: []byte("CREATE TABLE ok (id TEXT); INSERT INTO missing VALUES (1);")},
	}

	ran, err := NewManager(db, fsys, nil).Run(ctx)
	require.Error(t, err)
	assert.Empty(t, ran)

	var name string
	err = db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'ok'`).Scan(&name)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestManagerDetectsEditedMigration(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := NewManager(db, fstest.MapFS{"001_init.sql": {Data: []byte("CREATE TABLE a (id TEXT);")}}, nil).Run(ctx)
	require.NoError(t, err)

	_, err = NewManager(db, fstest.MapFS{"001_init.sql": {Data: []byte("CREATE TABLE b (id TEXT);")}}, nil).Run(ctx)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestSQLiteConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultSQLiteConfig("x.db").Validate())

	cfg := DefaultSQLiteConfig("")
	assert.Error(t, cfg.Validate())

	cfg = DefaultSQLiteConfig("x.db")
	cfg.JournalMode = "FAST"
	assert.Error(t, cfg.Validate())

	cfg = DefaultSQLiteConfig("x.db")
	cfg.MaxOpenConns = -1
	assert.Error(t, cfg.Validate())
}

func TestSQLiteConfigDSNCarriesPragmas(t *testing.T) {
	dsn := DefaultSQLiteConfig("/tmp/stations.db").DSN()
	assert.Contains(t, dsn, "file:/tmp/stations.db?")
	assert.Contains(t, dsn, "busy_timeout%285000%29")
	assert.Contains(t, dsn, "journal_mode%28WAL%29")
	assert.Contains(t, dsn, "foreign_keys%281%29")
}
