// Package storetest holds the behavioural suite every persistence backend
// must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/timing"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) persistence.Store

var base = time.Date(2024, 5, 3, 18, 0, 0, 0, time.UTC)

// Run exercises the station, member, package and bill contracts.
func Run(t *testing.T, newStore Factory) {
	t.Run("stations", func(t *testing.T) { testStations(t, open(t, newStore)) })
	t.Run("station conflict", func(t *testing.T) { testStationConflict(t, open(t, newStore)) })
	t.Run("members", func(t *testing.T) { testMembers(t, open(t, newStore)) })
	t.Run("update retries", func(t *testing.T) { testUpdateMember(t, open(t, newStore)) })
	t.Run("packages", func(t *testing.T) { testPackages(t, open(t, newStore)) })
	t.Run("bills", func(t *testing.T) { testBills(t, open(t, newStore)) })
}

func open(t *testing.T, newStore Factory) persistence.Store {
	t.Helper()
	store := newStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func liveStation() domain.Station {
	start := base
	end := base.Add(time.Hour)
	return domain.Station{
		ID:              "ps5-1",
		Name:            "PS5 #1",
		Type:            domain.StationConsole,
		Status:          domain.StationInUse,
		StartTime:       &start,
		Timer:           timing.Timer{EndTime: &end},
		PackageID:       "duo",
		PackageName:     "Duo Pack",
		PackagePrice:    decimal.NewFromInt(200),
		PackageCapacity: 2,
		Members: []domain.Participant{{
			ID:        "m-1",
			Name:      "Alice",
			Status:    domain.ParticipantActive,
			StartTime: base,
			Timer:     timing.Timer{EndTime: &end},
			Allotted:  time.Hour,
		}},
		Bill: []domain.LineItem{{
			ID:        "line-1",
			Name:      "Cola",
			Kind:      domain.LineFood,
			UnitPrice: decimal.RequireFromString("45.50"),
			Quantity:  2,
			AddedAt:   base,
		}},
		Discount:  decimal.NewFromInt(10),
		UpdatedAt: base,
	}
}

func testStations(t *testing.T, store persistence.Store) {
	ctx := context.Background()

	created, err := store.CreateStation(ctx, liveStation())
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	_, err = store.CreateStation(ctx, liveStation())
	require.ErrorIs(t, err, persistence.ErrAlreadyExists)

	got, err := store.GetStation(ctx, "ps5-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StationInUse, got.Status)
	assert.Equal(t, "Duo Pack", got.PackageName)
	assert.True(t, got.PackagePrice.Equal(decimal.NewFromInt(200)))
	require.Len(t, got.Members, 1)
	assert.Equal(t, time.Hour, got.Members[0].Allotted)
	require.NotNil(t, got.Members[0].EndTime)
	assert.True(t, got.Members[0].EndTime.Equal(base.Add(time.Hour)))
	require.Len(t, got.Bill, 1)
	assert.True(t, got.Bill[0].Amount().Equal(decimal.NewFromInt(91)))
	assert.True(t, got.Discount.Equal(decimal.NewFromInt(10)))

	got.Reset()
	saved, err := store.SaveStation(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)

	reread, err := store.GetStation(ctx, "ps5-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StationAvailable, reread.Status)
	assert.Empty(t, reread.Members)
	assert.Nil(t, reread.EndTime)

	second := liveStation()
	second.ID = "table-1"
	second.Type = domain.StationTable
	_, err = store.CreateStation(ctx, second)
	require.NoError(t, err)

	all, err := store.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ps5-1", all[0].ID)
	assert.Equal(t, "table-1", all[1].ID)

	_, err = store.GetStation(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func testStationConflict(t *testing.T, store persistence.Store) {
	ctx := context.Background()

	_, err := store.CreateStation(ctx, liveStation())
	require.NoError(t, err)

	first, err := store.GetStation(ctx, "ps5-1")
	require.NoError(t, err)
	stale, err := store.GetStation(ctx, "ps5-1")
	require.NoError(t, err)

	first.Discount = decimal.NewFromInt(20)
	_, err = store.SaveStation(ctx, first)
	require.NoError(t, err)

	stale.Discount = decimal.NewFromInt(30)
	_, err = store.SaveStation(ctx, stale)
	require.ErrorIs(t, err, persistence.ErrConflict)

	got, err := store.GetStation(ctx, "ps5-1")
	require.NoError(t, err)
	assert.True(t, got.Discount.Equal(decimal.NewFromInt(20)))

	missing := liveStation()
	missing.ID = "nope"
	_, err = store.SaveStation(ctx, missing)
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func member() domain.Member {
	return domain.Member{
		ID:         "m-1",
		Name:       "Alice",
		Tier:       domain.TierGold,
		Level:      3,
		XP:         2950,
		Points:     200,
		TotalSpent: decimal.RequireFromString("1250.75"),
		Recharges: []domain.Recharge{{
			ID:          "r-1",
			PackageID:   "r10",
			PackageName: "10 Hours",
			Total:       10 * time.Hour,
			Remaining:   4 * time.Hour,
			PurchasedAt: base.AddDate(0, 0, -3),
			ExpiresAt:   base.AddDate(0, 0, 27),
			PricePaid:   decimal.NewFromInt(900),
		}},
		CreatedAt: base.AddDate(0, -1, 0),
		UpdatedAt: base,
	}
}

func testMembers(t *testing.T, store persistence.Store) {
	ctx := context.Background()

	created, err := store.CreateMember(ctx, member())
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	_, err = store.CreateMember(ctx, member())
	require.ErrorIs(t, err, persistence.ErrAlreadyExists)

	got, err := store.GetMember(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierGold, got.Tier)
	assert.Equal(t, int64(2950), got.XP)
	assert.True(t, got.TotalSpent.Equal(decimal.RequireFromString("1250.75")))
	require.Len(t, got.Recharges, 1)
	assert.Equal(t, 4*time.Hour, got.Recharges[0].Remaining)
	assert.True(t, got.Recharges[0].ExpiresAt.Equal(base.AddDate(0, 0, 27)))

	got.XP += 100
	saved, err := store.SaveMember(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)

	got.XP += 100
	_, err = store.SaveMember(ctx, got)
	require.ErrorIs(t, err, persistence.ErrConflict)

	bob := member()
	bob.ID = "m-2"
	bob.Name = "Bob"
	bob.CreatedAt = base
	_, err = store.CreateMember(ctx, bob)
	require.NoError(t, err)

	all, err := store.ListMembers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "m-1", all[0].ID)
	assert.Equal(t, "m-2", all[1].ID)

	_, err = store.GetMember(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

// testUpdateMember races a foreign write into the first attempt and checks
// that the retry applies the mutation on top of it.
func testUpdateMember(t *testing.T, store persistence.Store) {
	ctx := context.Background()

	_, err := store.CreateMember(ctx, member())
	require.NoError(t, err)

	conflicts := 0
	cfg := persistence.RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		OnConflict:   func(int, time.Duration) { conflicts++ },
	}

	calls := 0
	updated, err := persistence.UpdateMember(ctx, store, "m-1", cfg, func(m *domain.Member) error {
		calls++
		if calls == 1 {
			other, err := store.GetMember(ctx, "m-1")
			require.NoError(t, err)
			other.Points += 50
			_, err = store.SaveMember(ctx, other)
			require.NoError(t, err)
		}
		m.XP += 10
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, int64(2960), updated.XP)
	assert.Equal(t, int64(250), updated.Points)
	assert.Equal(t, int64(3), updated.Version)

	_, err = persistence.UpdateMember(ctx, store, "missing", cfg, func(*domain.Member) error { return nil })
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func testPackages(t *testing.T, store persistence.Store) {
	ctx := context.Background()

	duo := domain.Package{
		ID:             "duo",
		Name:           "Duo Pack",
		Duration:       time.Hour,
		Price:          decimal.NewFromInt(200),
		PlayerCapacity: 2,
		Availability: domain.Availability{
			Days:  []time.Weekday{time.Friday, time.Saturday},
			Start: 18 * time.Hour,
			End:   2 * time.Hour,
		},
	}
	recharge := domain.Package{
		ID:             "r10",
		Name:           "10 Hours",
		Duration:       10 * time.Hour,
		Price:          decimal.NewFromInt(900),
		ValidityDays:   30,
		IsRechargePack: true,
	}
	require.NoError(t, store.SavePackage(ctx, duo))
	require.NoError(t, store.SavePackage(ctx, recharge))

	got, err := store.GetPackage(ctx, "duo")
	require.NoError(t, err)
	assert.Equal(t, 2, got.PlayerCapacity)
	assert.Equal(t, []time.Weekday{time.Friday, time.Saturday}, got.Availability.Days)
	assert.Equal(t, 18*time.Hour, got.Availability.Start)

	duo.Price = decimal.NewFromInt(220)
	require.NoError(t, store.SavePackage(ctx, duo))
	got, err = store.GetPackage(ctx, "duo")
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(220)))

	all, err := store.ListPackages(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "10 Hours", all[0].Name)
	assert.True(t, all[0].IsRechargePack)

	_, err = store.GetPackage(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func bill(id, stationID, cycle string, at time.Time) domain.Bill {
	return domain.Bill{
		ID:          id,
		Kind:        domain.BillSession,
		StationID:   stationID,
		StationName: "PS5 #1",
		PackageName: "Duo Pack",
		Members: []domain.Participant{
			{ID: "m-1", Name: "Alice", Status: domain.ParticipantFinished, Played: 45 * time.Minute},
		},
		Items: []domain.LineItem{
			{ID: id + "-1", Name: "Cola", Kind: domain.LineFood, UnitPrice: decimal.NewFromInt(50), Quantity: 1, AddedAt: at},
		},
		InitialPackagePrice: decimal.NewFromInt(200),
		FoodSubtotal:        decimal.NewFromInt(50),
		TimeSubtotal:        decimal.Zero,
		Discount:            decimal.Zero,
		Total:               decimal.NewFromInt(250),
		PaymentMethod:       domain.PaymentPending,
		PaidNow:             decimal.NewFromInt(200),
		Debt: &domain.Debt{
			Kind:      domain.DebtReceivable,
			Amount:    decimal.NewFromInt(50),
			PartyID:   "m-1",
			PartyName: "Alice",
		},
		CycleTag:  cycle,
		CreatedAt: at,
		Digest:    "digest-" + id,
	}
}

func testBills(t *testing.T, store persistence.Store) {
	ctx := context.Background()

	require.NoError(t, store.CreateBill(ctx, bill("b-1", "ps5-1", "shift-1", base)))
	require.NoError(t, store.CreateBill(ctx, bill("b-2", "ps5-2", "shift-1", base.Add(time.Hour))))
	require.NoError(t, store.CreateBill(ctx, bill("b-3", "ps5-1", "shift-2", base.Add(2*time.Hour))))
	require.ErrorIs(t, store.CreateBill(ctx, bill("b-1", "ps5-1", "shift-1", base)), persistence.ErrAlreadyExists)

	got, err := store.GetBill(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, got.PaymentMethod)
	require.NotNil(t, got.Debt)
	assert.True(t, got.Debt.Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 45*time.Minute, got.Members[0].Played)
	assert.Equal(t, "digest-b-1", got.Digest)
	assert.True(t, got.CreatedAt.Equal(base))

	all, err := store.ListBills(ctx, persistence.BillFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b-3", all[0].ID)

	byStation, err := store.ListBills(ctx, persistence.BillFilter{StationID: "ps5-1"})
	require.NoError(t, err)
	require.Len(t, byStation, 2)

	byCycle, err := store.ListBills(ctx, persistence.BillFilter{CycleTag: "shift-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byCycle, 1)
	assert.Equal(t, "b-2", byCycle[0].ID)

	byMember, err := store.ListBills(ctx, persistence.BillFilter{MemberID: "m-9"})
	require.NoError(t, err)
	assert.Empty(t, byMember)

	_, err = store.GetBill(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}
