package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/persistence/memory"
)

func fastRetry(tries uint) persistence.RetryConfig {
	return persistence.RetryConfig{MaxRetries: tries, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestUpdateStationAppliesMutation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.CreateStation(ctx, domain.Station{ID: "ps5-1", Status: domain.StationAvailable})
	require.NoError(t, err)

	updated, err := persistence.UpdateStation(ctx, store, "ps5-1", fastRetry(3), func(st *domain.Station) error {
		st.Status = domain.StationInUse
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StationInUse, updated.Status)
	assert.Equal(t, int64(2), updated.Version)
}

func TestUpdateStationMutationErrorIsNotRetried(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.CreateStation(ctx, domain.Station{ID: "ps5-1"})
	require.NoError(t, err)

	rejected := domain.Reject("StartSession", domain.ErrStationNotAvailable, "")
	calls := 0
	_, err = persistence.UpdateStation(ctx, store, "ps5-1", fastRetry(5), func(*domain.Station) error {
		calls++
		return rejected
	})
	require.ErrorIs(t, err, domain.ErrStationNotAvailable)
	var pre *domain.PreconditionError
	assert.True(t, errors.As(err, &pre))
	assert.Equal(t, 1, calls)

	got, err := store.GetStation(ctx, "ps5-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}

// conflictingStations always reports a newer version on save.
type conflictingStations struct {
	persistence.StationStore
	saves int
}

func (c *conflictingStations) SaveStation(context.Context, domain.Station) (domain.Station, error) {
	c.saves++
	return domain.Station{}, persistence.ErrConflict
}

func TestUpdateStationGivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.CreateStation(ctx, domain.Station{ID: "ps5-1"})
	require.NoError(t, err)

	conflicting := &conflictingStations{StationStore: store}
	var attempts []int
	cfg := fastRetry(3)
	cfg.OnConflict = func(attempt int, _ time.Duration) { attempts = append(attempts, attempt) }

	_, err = persistence.UpdateStation(ctx, conflicting, "ps5-1", cfg, func(*domain.Station) error { return nil })
	require.ErrorIs(t, err, persistence.ErrConflict)
	assert.Equal(t, 3, conflicting.saves)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestBillFilterMatches(t *testing.T) {
	bill := domain.Bill{
		StationID: "ps5-1",
		CycleTag:  "shift-1",
		Members:   []domain.Participant{{ID: "m-1"}, {ID: "guest-1", IsGuest: true}},
	}

	tests := []struct {
		name   string
		filter persistence.BillFilter
		want   bool
	}{
		{"empty", persistence.BillFilter{}, true},
		{"station", persistence.BillFilter{StationID: "ps5-1"}, true},
		{"other station", persistence.BillFilter{StationID: "ps5-2"}, false},
		{"cycle", persistence.BillFilter{CycleTag: "shift-1"}, true},
		{"other cycle", persistence.BillFilter{CycleTag: "shift-2"}, false},
		{"member", persistence.BillFilter{MemberID: "m-1"}, true},
		{"absent member", persistence.BillFilter{MemberID: "m-2"}, false},
		{"all", persistence.BillFilter{StationID: "ps5-1", CycleTag: "shift-1", MemberID: "guest-1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(bill))
		})
	}
}
