package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/station-engine/internal/application"
	"github.com/example/station-engine/internal/domain"
	fx "github.com/example/station-engine/internal/testfixtures"
)

func TestCatalogService_SavePackage(t *testing.T) {
	ctx := context.Background()

	t.Run("stores a valid package", func(t *testing.T) {
		h := fx.NewHarness(t)

		pkg, err := h.Catalog.SavePackage(ctx, application.PackageInput{
			ID:             "solo",
			Name:           " Solo Hour ",
			Duration:       time.Hour,
			Price:          decimal.NewFromInt(120),
			PlayerCapacity: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, "Solo Hour", pkg.Name)

		stored, err := h.Catalog.Package(ctx, "solo")
		require.NoError(t, err)
		assert.True(t, stored.Price.Equal(decimal.NewFromInt(120)))
	})

	t.Run("reports every invalid field", func(t *testing.T) {
		h := fx.NewHarness(t)

		_, err := h.Catalog.SavePackage(ctx, application.PackageInput{
			ID:             "bad",
			Price:          decimal.NewFromInt(-1),
			IsRechargePack: true,
			Availability:   domain.Availability{Start: 25 * time.Hour},
		})
		var vErr *application.ValidationError
		require.ErrorAs(t, err, &vErr)
		for _, field := range []string{"name", "price", "duration", "validity_days", "availability.start"} {
			assert.Contains(t, vErr.FieldErrors, field)
		}
		assert.NotContains(t, vErr.FieldErrors, "availability.end")

		_, err = h.Catalog.Package(ctx, "bad")
		require.ErrorIs(t, err, application.ErrNotFound)
	})
}

func TestCatalogService_AvailablePackages(t *testing.T) {
	h := fx.NewHarness(t)
	h.SeedPackages(t,
		fx.NewPackage(),
		fx.NewPackage(fx.WithPackageID("happy-hour", "Happy Hour"), fx.AvailableDuring(12*time.Hour, 16*time.Hour)),
		fx.NewPackage(fx.WithPackageID("late-night", "Late Night"), fx.AvailableDuring(17*time.Hour, 2*time.Hour, time.Friday)),
	)

	available, err := h.Catalog.AvailablePackages(context.Background())
	require.NoError(t, err)
	names := make([]string, len(available))
	for i, pkg := range available {
		names[i] = pkg.Name
	}
	assert.Equal(t, []string{"Duo Pack", "Late Night"}, names)

	all, err := h.Catalog.Packages(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCatalogService_RegisterStation(t *testing.T) {
	ctx := context.Background()
	h := fx.NewHarness(t)

	st, err := h.Catalog.RegisterStation(ctx, application.RegisterStationParams{ID: "table-1", Name: "Table 1", Type: domain.StationTable})
	require.NoError(t, err)
	assert.Equal(t, domain.StationAvailable, st.Status)
	assert.Equal(t, int64(1), st.Version)

	_, err = h.Catalog.RegisterStation(ctx, application.RegisterStationParams{ID: "table-1", Name: "Table 1", Type: domain.StationTable})
	require.ErrorIs(t, err, application.ErrAlreadyExists)

	_, err = h.Catalog.RegisterStation(ctx, application.RegisterStationParams{ID: "x", Name: "X", Type: "arcade"})
	var vErr *application.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "type")

	stations, err := h.Catalog.Stations(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, "table-1", stations[0].ID)
}
