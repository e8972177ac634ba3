package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/station-engine/internal/application"
	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/events"
	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/session"
	fx "github.com/example/station-engine/internal/testfixtures"
)

func startDuo(t *testing.T, h *fx.Harness, stationID string) {
	t.Helper()
	_, err := h.Sessions.StartSession(context.Background(), application.StartSessionParams{
		StationID: stationID,
		Entrants: []application.EntrantInput{
			{GuestName: "Ravi", Plan: session.PlanWalkIn, PackageID: "duo"},
		},
	})
	require.NoError(t, err)
}

func expiredGauge(t *testing.T, h *fx.Harness) float64 {
	t.Helper()
	families, err := h.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "station_engine_expired_stations" {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("expired_stations gauge not registered")
	return 0
}

func TestExpirySweep(t *testing.T) {
	ctx := context.Background()
	h := fx.NewHarness(t)
	h.SeedStations(t, fx.NewStation(), fx.NewStation(fx.WithStationID("ps5-2")), fx.NewStation(fx.WithStationID("ps5-3")))
	h.SeedPackages(t, fx.NewPackage(), fx.NewPackage(fx.WithPackageID("long", "Long Play"), fx.WithDuration(5*time.Hour)))

	startDuo(t, h, "ps5-1")
	_, err := h.Sessions.StartSession(ctx, application.StartSessionParams{
		StationID: "ps5-2",
		Entrants:  []application.EntrantInput{{GuestName: "Meera", Plan: session.PlanWalkIn, PackageID: "long"}},
	})
	require.NoError(t, err)
	h.Events.Reset()

	sweep := NewExpirySweep(h.Store, h.Events, h.Metrics, h.Clock.NowFunc(), nil)

	expired, err := sweep.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)
	assert.Empty(t, h.Events.Events())

	h.Clock.Advance(61 * time.Minute)
	expired, err = sweep.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ps5-1"}, expired)
	require.Len(t, h.Events.Events(), 1)
	ev := h.Events.Events()[0]
	assert.Equal(t, events.KindTimerExpired, ev.Kind)
	assert.Equal(t, "ps5-1", ev.StationID)
	assert.Equal(t, float64(1), expiredGauge(t, h))

	// the station is left untouched and not reported twice
	assert.Equal(t, domain.StationInUse, h.Station(t, "ps5-1").Status)
	expired, err = sweep.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ps5-1"}, expired)
	assert.Len(t, h.Events.Events(), 1)

	// a fresh session on the same station is reported again once it runs out
	_, err = h.Checkout.Checkout(ctx, application.CheckoutParams{StationID: "ps5-1", Payment: application.PaymentInput{Method: domain.PaymentCash}})
	require.NoError(t, err)
	_, err = sweep.Sweep(ctx)
	require.NoError(t, err)
	startDuo(t, h, "ps5-1")
	h.Events.Reset()
	h.Clock.Advance(2 * time.Hour)

	expired, err = sweep.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ps5-1"}, expired)
	assert.Equal(t, []events.Kind{events.KindTimerExpired}, h.Events.Kinds())
	assert.Equal(t, float64(1), expiredGauge(t, h))
}

func TestExpirySweepIgnoresPausedStations(t *testing.T) {
	ctx := context.Background()
	h := fx.NewHarness(t)
	h.SeedStations(t, fx.NewStation())
	h.SeedPackages(t, fx.NewPackage())
	startDuo(t, h, "ps5-1")

	_, _, err := h.Sessions.ToggleStation(ctx, "ps5-1")
	require.NoError(t, err)
	h.Clock.Advance(3 * time.Hour)

	expired, err := NewExpirySweep(h.Store, nil, nil, h.Clock.NowFunc(), nil).Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

type failingStations struct {
	persistence.StationStore
}

func (failingStations) ListStations(context.Context) ([]domain.Station, error) {
	return nil, errors.New("disk on fire")
}

func TestExpirySweepReportsStoreFailure(t *testing.T) {
	_, err := NewExpirySweep(failingStations{}, nil, nil, nil, nil).Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestExpirySweepSchedule(t *testing.T) {
	c := cron.New()
	sweep := NewExpirySweep(failingStations{}, nil, nil, nil, nil)

	id, err := sweep.Schedule(context.Background(), c, "@every 1m")
	require.NoError(t, err)
	assert.NotZero(t, id)
	require.Len(t, c.Entries(), 1)

	_, err = sweep.Schedule(context.Background(), c, "every other tuesday")
	require.Error(t, err)
}
