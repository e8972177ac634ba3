package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/station-engine/internal/application"
	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/events"
	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/persistence/memory"
	"github.com/example/station-engine/internal/session"
	fx "github.com/example/station-engine/internal/testfixtures"
)

func cash() application.PaymentInput {
	return application.PaymentInput{Method: domain.PaymentCash}
}

// startDuo seats Alice (close to a level up) and Bob on the duo package and
// orders food worth 100 with a 20 discount.
func startDuo(t *testing.T, h *fx.Harness) {
	t.Helper()
	ctx := context.Background()

	_, err := h.Sessions.StartSession(ctx, application.StartSessionParams{
		StationID: "ps5-1",
		Entrants:  []application.EntrantInput{walkIn("m-1"), walkIn("m-2")},
	})
	require.NoError(t, err)
	_, err = h.Sessions.AddItem(ctx, application.AddItemParams{StationID: "ps5-1", Name: "Nachos", UnitPrice: decimal.NewFromInt(50), Quantity: 2})
	require.NoError(t, err)
	_, err = h.Sessions.SetDiscount(ctx, application.SetDiscountParams{StationID: "ps5-1", Discount: decimal.NewFromInt(20)})
	require.NoError(t, err)
}

func TestCheckoutService_Checkout(t *testing.T) {
	for name, opts := range map[string][]fx.HarnessOption{
		"memory": nil,
		"sqlite": {fx.WithSQLite()},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := fx.NewHarness(t, opts...)
			h.SeedStations(t, fx.NewStation())
			h.SeedMembers(t,
				fx.NewMember(fx.WithProgress(1, 990)),
				fx.NewMember(fx.WithMemberID("m-2", "Bob"), fx.WithTier(domain.TierGold)),
			)
			h.SeedPackages(t, fx.NewPackage())
			startDuo(t, h)
			h.Clock.Advance(time.Hour)
			h.Events.Reset()

			res, err := h.Checkout.Checkout(ctx, application.CheckoutParams{StationID: "ps5-1", Payment: cash(), CycleTag: "shift-1"})
			require.NoError(t, err)

			bill := res.Bill
			assert.Equal(t, domain.BillSession, bill.Kind)
			assert.True(t, bill.InitialPackagePrice.Equal(decimal.NewFromInt(200)), bill.InitialPackagePrice.String())
			assert.True(t, bill.FoodSubtotal.Equal(decimal.NewFromInt(100)))
			assert.True(t, bill.Discount.Equal(decimal.NewFromInt(20)))
			assert.True(t, bill.Total.Equal(decimal.NewFromInt(280)), bill.Total.String())
			assert.True(t, bill.CashAmount.Equal(decimal.NewFromInt(280)))
			assert.Equal(t, "shift-1", bill.CycleTag)
			assert.NotEmpty(t, bill.Digest)

			assert.Equal(t, domain.StationAvailable, res.Station.Status)
			assert.Empty(t, h.Station(t, "ps5-1").Members)

			alice := h.Member(t, "m-1")
			assert.Equal(t, int64(1004), alice.XP)
			assert.Equal(t, int64(2), alice.Level)
			assert.Equal(t, int64(100), alice.Points)
			assert.True(t, alice.TotalSpent.Equal(decimal.NewFromInt(140)))

			bob := h.Member(t, "m-2")
			assert.Equal(t, int64(28), bob.XP)
			assert.Equal(t, int64(1), bob.Level)
			assert.True(t, bob.TotalSpent.Equal(decimal.NewFromInt(140)))

			require.Len(t, res.Members, 2)
			assert.True(t, res.Members[0].Outcome.LeveledUp)

			stored, err := h.Checkout.Bill(ctx, bill.ID)
			require.NoError(t, err)
			assert.True(t, stored.Total.Equal(bill.Total))

			listed, err := h.Checkout.Bills(ctx, persistence.BillFilter{CycleTag: "shift-1"})
			require.NoError(t, err)
			require.Len(t, listed, 1)
			assert.Equal(t, bill.ID, listed[0].ID)

			assert.Equal(t, []events.Kind{
				events.KindSessionTransitioned,
				events.KindBillCreated,
				events.KindMemberUpdated,
				events.KindMemberUpdated,
			}, h.Events.Kinds())

			series, err := testutil.GatherAndCount(h.Registry, "station_engine_settlements_total")
			require.NoError(t, err)
			assert.Equal(t, 1, series)
		})
	}
}

func TestCheckoutService_RejectionLeavesStationUntouched(t *testing.T) {
	ctx := context.Background()
	h := newFloor(t)
	startDuo(t, h)
	before := h.Station(t, "ps5-1")

	_, err := h.Checkout.Checkout(ctx, application.CheckoutParams{
		StationID: "ps5-1",
		Payment: application.PaymentInput{
			Method:     domain.PaymentSplit,
			CashAmount: decimal.NewFromInt(100),
			UPIAmount:  decimal.NewFromInt(100),
		},
	})
	require.ErrorIs(t, err, domain.ErrSplitMismatch)

	after := h.Station(t, "ps5-1")
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, domain.StationInUse, after.Status)

	bills, err := h.Checkout.Bills(ctx, persistence.BillFilter{})
	require.NoError(t, err)
	assert.Empty(t, bills)
	assert.True(t, h.Member(t, "m-1").TotalSpent.IsZero())

	_, err = h.Checkout.Checkout(ctx, application.CheckoutParams{StationID: "ps5-1", Payment: application.PaymentInput{Method: "barter"}})
	var vErr *application.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "payment.method")
}

func TestCheckoutService_MemberWriteFailureIsReported(t *testing.T) {
	ctx := context.Background()
	store := fx.NewContendedStore(memory.New())
	h := fx.NewHarness(t, fx.WithStore(store))
	h.SeedStations(t, fx.NewStation())
	h.SeedMembers(t,
		fx.NewMember(fx.WithProgress(1, 990)),
		fx.NewMember(fx.WithMemberID("m-2", "Bob"), fx.WithTier(domain.TierGold)),
	)
	h.SeedPackages(t, fx.NewPackage())
	startDuo(t, h)
	h.Clock.Advance(time.Hour)
	h.Events.Reset()

	store.ContendMembers(true)
	_, err := h.Checkout.Checkout(ctx, application.CheckoutParams{StationID: "ps5-1", Payment: cash()})
	require.ErrorIs(t, err, application.ErrTransient)

	var incomplete *application.IncompleteSettlementError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []string{"m-1", "m-2"}, incomplete.MemberIDs())

	stored, err := h.Checkout.Bill(ctx, incomplete.BillID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(decimal.NewFromInt(280)))
	assert.Equal(t, domain.StationAvailable, h.Station(t, "ps5-1").Status)
	assert.Equal(t, int64(990), h.Member(t, "m-1").XP)
	assert.Zero(t, h.Member(t, "m-2").XP)
	assert.Equal(t, []events.Kind{
		events.KindSessionTransitioned,
		events.KindBillCreated,
	}, h.Events.Kinds())

	store.ContendMembers(false)
	settled, err := h.Checkout.ApplyEffects(ctx, incomplete.BillID, incomplete.Pending)
	require.NoError(t, err)
	require.Len(t, settled, 2)
	assert.False(t, settled[0].Missing)
	assert.True(t, settled[0].Outcome.LeveledUp)

	alice := h.Member(t, "m-1")
	assert.Equal(t, int64(1004), alice.XP)
	assert.Equal(t, int64(2), alice.Level)
	assert.True(t, alice.TotalSpent.Equal(decimal.NewFromInt(140)))
	assert.Equal(t, int64(28), h.Member(t, "m-2").XP)
}

func TestCheckoutService_SplitWithinTolerance(t *testing.T) {
	ctx := context.Background()
	h := newFloor(t)
	startDuo(t, h)

	res, err := h.Checkout.Checkout(ctx, application.CheckoutParams{
		StationID: "ps5-1",
		Payment: application.PaymentInput{
			Method:     domain.PaymentSplit,
			CashAmount: decimal.NewFromInt(180),
			UPIAmount:  decimal.RequireFromString("99.9"),
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Bill.PaidNow.Equal(decimal.RequireFromString("279.9")))
}

func TestCheckoutService_NewRechargeBoughtInSession(t *testing.T) {
	ctx := context.Background()
	h := newFloor(t)

	_, err := h.Sessions.StartSession(ctx, application.StartSessionParams{
		StationID: "ps5-1",
		Entrants: []application.EntrantInput{{
			MemberID:  "m-2",
			Plan:      session.PlanNewRecharge,
			PackageID: "ten-hours",
		}},
	})
	require.NoError(t, err)
	h.Clock.Advance(2 * time.Hour)

	res, err := h.Checkout.Checkout(ctx, application.CheckoutParams{StationID: "ps5-1", Payment: application.PaymentInput{Method: domain.PaymentUPI}})
	require.NoError(t, err)
	assert.True(t, res.Bill.Total.Equal(decimal.NewFromInt(900)), res.Bill.Total.String())

	bob := h.Member(t, "m-2")
	require.Len(t, bob.Recharges, 1)
	pack := bob.Recharges[0]
	assert.Equal(t, "ten-hours", pack.PackageID)
	assert.Equal(t, 8*time.Hour, pack.Remaining)
	assert.True(t, pack.ExpiresAt.Equal(h.Clock.Now().AddDate(0, 0, 30)))
	// the pack price counts once, through the purchase
	assert.True(t, bob.TotalSpent.Equal(decimal.NewFromInt(900)))
	assert.Equal(t, int64(180), bob.XP)
}

func TestCheckoutService_DetectsTamperedBill(t *testing.T) {
	ctx := context.Background()
	h := newFloor(t)
	startDuo(t, h)

	res, err := h.Checkout.Checkout(ctx, application.CheckoutParams{StationID: "ps5-1", Payment: cash()})
	require.NoError(t, err)

	forged := res.Bill.Clone()
	forged.ID = "forged"
	forged.Total = decimal.NewFromInt(1)
	require.NoError(t, h.Store.CreateBill(ctx, forged))

	_, err = h.Checkout.Bill(ctx, "forged")
	require.ErrorIs(t, err, application.ErrTampered)

	_, err = h.Checkout.Bill(ctx, "missing")
	require.ErrorIs(t, err, application.ErrNotFound)
}

func TestCheckoutService_IdleStation(t *testing.T) {
	h := newFloor(t)

	_, err := h.Checkout.Checkout(context.Background(), application.CheckoutParams{StationID: "ps5-2", Payment: cash()})
	require.ErrorIs(t, err, domain.ErrStationNotActive)
}
