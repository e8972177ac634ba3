package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/persistence/storetest"
)

func TestStorageContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) persistence.Store { return New() })
}

func TestStorageReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.CreateStation(ctx, domain.Station{
		ID:      "ps5-1",
		Members: []domain.Participant{{ID: "m-1", Name: "Alice"}},
	})
	require.NoError(t, err)

	got, err := store.GetStation(ctx, "ps5-1")
	require.NoError(t, err)
	got.Members[0].Name = "Mallory"

	again, err := store.GetStation(ctx, "ps5-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.Members[0].Name)
}

func TestStorageHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().GetStation(ctx, "ps5-1")
	require.ErrorIs(t, err, context.Canceled)
}
