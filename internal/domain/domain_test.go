package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/station-engine/internal/timing"
)

func TestKindFromName(t *testing.T) {
	cases := map[string]LineKind{
		"Time: Duo Pack (Alice, Bob)":    LineTimeExtension,
		"Recharge: 10 Hours":             LineRechargeUsage,
		"Buy Recharge: 10 Hours (Alice)": LineRechargePurchase,
		"  Time: Solo (Carol)":           LineTimeExtension,
		"Cold Coffee":                    LineFood,
		"Timeless Fries":                 LineFood,
	}
	for name, want := range cases {
		assert.Equal(t, want, KindFromName(name), name)
	}
}

func TestLineNames(t *testing.T) {
	assert.Equal(t, "Time: Duo Pack (Alice, Bob)", TimeExtensionName("Duo Pack", []string{"Alice", "Bob"}))
	assert.Equal(t, "Recharge: 10 Hours", RechargeUsageName("10 Hours"))
	assert.Equal(t, "Buy Recharge: 10 Hours (Alice)", RechargePurchaseName("10 Hours", "Alice"))
}

func TestLineItemAmountAndKind(t *testing.T) {
	line := LineItem{Name: "Nachos", UnitPrice: decimal.NewFromInt(120), Quantity: 3}
	assert.True(t, decimal.NewFromInt(360).Equal(line.Amount()))
	assert.Equal(t, LineFood, line.EffectiveKind())

	line.Quantity = 0
	assert.True(t, decimal.NewFromInt(120).Equal(line.Amount()))

	legacy := LineItem{Name: "Recharge: Weekly"}
	assert.Equal(t, LineRechargeUsage, legacy.EffectiveKind())
	assert.True(t, legacy.EffectiveKind().SessionReserved())
	assert.False(t, LineFood.SessionReserved())
}

func TestTierMultiplier(t *testing.T) {
	assert.True(t, decimal.NewFromInt(1).Equal(TierRed.Multiplier()))
	assert.True(t, decimal.NewFromFloat(1.5).Equal(TierGreen.Multiplier()))
	assert.True(t, decimal.NewFromInt(2).Equal(TierGold.Multiplier()))
	assert.False(t, Tier("Silver").Valid())
}

func TestRechargeActive(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := Recharge{ExpiresAt: now.Add(time.Hour), Remaining: time.Minute}
	assert.True(t, r.Active(now))

	r.Remaining = 0
	assert.False(t, r.Active(now))

	r.Remaining = time.Minute
	assert.False(t, r.Active(now.Add(time.Hour)))
}

func TestAvailabilityAllows(t *testing.T) {
	// 2024-05-03 is a Friday.
	at := func(day, hour int) time.Time {
		return time.Date(2024, 5, day, hour, 30, 0, 0, time.UTC)
	}

	t.Run("all day any weekday", func(t *testing.T) {
		assert.True(t, Availability{}.Allows(at(3, 4)))
	})

	t.Run("daytime window", func(t *testing.T) {
		a := Availability{Start: 10 * time.Hour, End: 18 * time.Hour}
		assert.True(t, a.Allows(at(3, 10)))
		assert.False(t, a.Allows(at(3, 9)))
		assert.False(t, a.Allows(at(3, 18)))
	})

	t.Run("weekday restriction", func(t *testing.T) {
		a := Availability{Days: []time.Weekday{time.Saturday, time.Sunday}}
		assert.False(t, a.Allows(at(3, 12)))
		assert.True(t, a.Allows(at(4, 12)))
	})

	t.Run("overnight window belongs to opening day", func(t *testing.T) {
		a := Availability{Days: []time.Weekday{time.Friday}, Start: 22 * time.Hour, End: 2 * time.Hour}
		assert.True(t, a.Allows(at(3, 23)))
		assert.True(t, a.Allows(at(4, 1)))
		assert.False(t, a.Allows(at(4, 23)))
		assert.False(t, a.Allows(at(3, 1)))
		assert.False(t, a.Allows(at(3, 12)))
	})
}

func TestPackageCapacity(t *testing.T) {
	assert.Equal(t, 1, Package{}.Capacity())
	assert.Equal(t, 3, Package{PlayerCapacity: 3}.Capacity())
}

func TestStationCloneIsDeep(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	end := now.Add(time.Hour)
	st := Station{
		ID:        "st-1",
		Status:    StationInUse,
		StartTime: &now,
		Timer:     timing.Timer{EndTime: &end},
		Members: []Participant{{
			ID:    "m-1",
			Timer: timing.Timer{EndTime: &end},
		}},
		Bill: []LineItem{{Name: "Time: Solo (A)", Players: []string{"A"}}},
	}

	clone := st.Clone()
	*clone.EndTime = now
	*clone.Members[0].EndTime = now
	clone.Bill[0].Players[0] = "B"
	clone.Members = append(clone.Members, Participant{ID: "m-2"})

	require.Len(t, st.Members, 1)
	assert.Equal(t, end, *st.EndTime)
	assert.Equal(t, end, *st.Members[0].EndTime)
	assert.Equal(t, "A", st.Bill[0].Players[0])
}

func TestStationReset(t *testing.T) {
	now := time.Now()
	st := Station{
		Status:      StationPaused,
		StartTime:   &now,
		PackageName: "Solo",
		Members:     []Participant{{ID: "m-1"}},
		Bill:        []LineItem{{Name: "Chips"}},
		Discount:    decimal.NewFromInt(5),
	}
	st.Reset()

	assert.Equal(t, StationAvailable, st.Status)
	assert.Nil(t, st.StartTime)
	assert.False(t, st.HasTimer())
	assert.Empty(t, st.Members)
	assert.Empty(t, st.Bill)
	assert.Empty(t, st.PackageName)
	assert.True(t, st.Discount.IsZero())
}

func TestParticipantPlayedAt(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	p := Participant{StartTime: start, Timer: timing.Timer{EndTime: &end}}

	assert.Equal(t, time.Hour, p.TotalTime())
	assert.Equal(t, 20*time.Minute, p.PlayedAt(start.Add(20*time.Minute)))

	p.Allotted = 2 * time.Hour
	assert.Equal(t, 80*time.Minute, p.PlayedAt(start.Add(20*time.Minute)))

	p.Status = ParticipantFinished
	p.Played = 7 * time.Minute
	assert.Equal(t, 7*time.Minute, p.PlayedAt(start.Add(50*time.Minute)))
}

func TestParticipantUsesRecharge(t *testing.T) {
	assert.True(t, Participant{RechargeID: PoolRechargeID}.UsesRecharge())
	assert.True(t, Participant{IsNewRecharge: true}.UsesRecharge())
	assert.False(t, Participant{IsGuest: true, RechargeID: "r-1"}.UsesRecharge())
	assert.False(t, Participant{}.UsesRecharge())
}

func TestPreconditionError(t *testing.T) {
	err := Rejectf("StartSession", ErrPlayerLimit, "%d > %d", 5, 4)
	assert.True(t, errors.Is(err, ErrPlayerLimit))
	assert.EqualError(t, err, "StartSession: player limit exceeded: 5 > 4")

	var pErr *PreconditionError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "StartSession", pErr.Op)

	assert.EqualError(t, Reject("Pause", ErrStationPaused, ""), "Pause: station is paused")
}
