package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/persistence/sqlite/migration"
	"github.com/example/station-engine/internal/persistence/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := migration.TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "stations.db"))
	store, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	return store
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) persistence.Store { return newTestStore(t) })
}

func TestStoreReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stations.db")

	store, err := Open(ctx, migration.TempFileTestSQLiteConfig(path), nil)
	require.NoError(t, err)
	_, err = store.CreateStation(ctx, domain.Station{ID: "ps5-1", Name: "PS5 #1", Type: domain.StationConsole, Status: domain.StationAvailable})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, migration.TempFileTestSQLiteConfig(path), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.GetStation(ctx, "ps5-1")
	require.NoError(t, err)
	assert.Equal(t, "PS5 #1", got.Name)
	assert.Equal(t, int64(1), got.Version)
}

func TestOpenPathRequiresPath(t *testing.T) {
	_, err := OpenPath(context.Background(), "  ", nil)
	require.Error(t, err)
}

func TestErrorMapper(t *testing.T) {
	mapper := NewErrorMapper()

	assert.NoError(t, mapper.MapError(nil))
	assert.ErrorIs(t, mapper.MapError(errString("constraint failed: UNIQUE constraint failed: stations.id (1555)")), persistence.ErrAlreadyExists)
	assert.ErrorIs(t, mapper.MapError(errString("database is locked (5) (SQLITE_BUSY)")), persistence.ErrConflict)

	other := errString("disk I/O error")
	assert.Equal(t, other, mapper.MapError(other))
}

type errString string

func (e errString) Error() string { return string(e) }
