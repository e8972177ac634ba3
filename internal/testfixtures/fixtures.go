package testfixtures

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/station-engine/internal/domain"
)

// ----------------------------- Station fixtures -----------------------------

// StationOption configures a generated station.
type StationOption func(*domain.Station)

// NewStation returns an available console station "ps5-1".
func NewStation(opts ...StationOption) domain.Station {
	st := domain.Station{
		ID:           "ps5-1",
		Name:         "PS5 #1",
		Type:         domain.StationConsole,
		Status:       domain.StationAvailable,
		PackagePrice: decimal.Zero,
		Discount:     decimal.Zero,
		UpdatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&st)
	}
	return st
}

// WithStationID overrides the id and derives the name from it.
func WithStationID(id string) StationOption {
	return func(st *domain.Station) {
		st.ID = id
		st.Name = id
	}
}

// AsTable turns the station into a board-game table.
func AsTable() StationOption {
	return func(st *domain.Station) {
		st.Type = domain.StationTable
	}
}

// ----------------------------- Member fixtures -----------------------------

// MemberOption configures a generated member.
type MemberOption func(*domain.Member)

// NewMember returns a level 1 Red member "m-1" named Alice.
func NewMember(opts ...MemberOption) domain.Member {
	m := domain.Member{
		ID:         "m-1",
		Name:       "Alice",
		Tier:       domain.TierRed,
		Level:      1,
		TotalSpent: decimal.Zero,
		CreatedAt:  referenceTime.Add(-30 * 24 * time.Hour),
		UpdatedAt:  referenceTime.Add(-30 * 24 * time.Hour),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// WithMemberID overrides the member id and name.
func WithMemberID(id, name string) MemberOption {
	return func(m *domain.Member) {
		m.ID = id
		m.Name = name
	}
}

// WithTier overrides the loyalty tier.
func WithTier(tier domain.Tier) MemberOption {
	return func(m *domain.Member) {
		m.Tier = tier
	}
}

// WithProgress sets level and XP.
func WithProgress(level, xp int64) MemberOption {
	return func(m *domain.Member) {
		m.Level = level
		m.XP = xp
	}
}

// WithRecharges appends prepaid packs.
func WithRecharges(recharges ...domain.Recharge) MemberOption {
	return func(m *domain.Member) {
		m.Recharges = append(m.Recharges, recharges...)
	}
}

// ----------------------------- Recharge fixtures -----------------------------

// RechargeOption configures a generated recharge.
type RechargeOption func(*domain.Recharge)

// NewRecharge returns a 5 hour pack "r-1" bought a day before ReferenceTime
// and valid for 30 days.
func NewRecharge(opts ...RechargeOption) domain.Recharge {
	purchased := referenceTime.Add(-24 * time.Hour)
	r := domain.Recharge{
		ID:          "r-1",
		PackageID:   "five-hours",
		PackageName: "5 Hour Pack",
		Total:       5 * time.Hour,
		Remaining:   5 * time.Hour,
		PurchasedAt: purchased,
		ExpiresAt:   purchased.AddDate(0, 0, 30),
		PricePaid:   decimal.NewFromInt(500),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// WithRechargeID overrides the recharge id.
func WithRechargeID(id string) RechargeOption {
	return func(r *domain.Recharge) {
		r.ID = id
	}
}

// WithRemaining overrides the remaining balance.
func WithRemaining(d time.Duration) RechargeOption {
	return func(r *domain.Recharge) {
		r.Remaining = d
	}
}

// ExpiringAt overrides the expiry.
func ExpiringAt(t time.Time) RechargeOption {
	return func(r *domain.Recharge) {
		r.ExpiresAt = t
	}
}

// ----------------------------- Package fixtures -----------------------------

// PackageOption configures a generated package.
type PackageOption func(*domain.Package)

// NewPackage returns "duo": one hour for two players at 200.
func NewPackage(opts ...PackageOption) domain.Package {
	pkg := domain.Package{
		ID:             "duo",
		Name:           "Duo Pack",
		Duration:       time.Hour,
		Price:          decimal.NewFromInt(200),
		PlayerCapacity: 2,
	}
	for _, opt := range opts {
		opt(&pkg)
	}
	return pkg
}

// WithPackageID overrides the package id and name.
func WithPackageID(id, name string) PackageOption {
	return func(pkg *domain.Package) {
		pkg.ID = id
		pkg.Name = name
	}
}

// WithPrice overrides the price.
func WithPrice(price int64) PackageOption {
	return func(pkg *domain.Package) {
		pkg.Price = decimal.NewFromInt(price)
	}
}

// WithDuration overrides the play time.
func WithDuration(d time.Duration) PackageOption {
	return func(pkg *domain.Package) {
		pkg.Duration = d
	}
}

// WithCapacity overrides the players one instance covers.
func WithCapacity(n int) PackageOption {
	return func(pkg *domain.Package) {
		pkg.PlayerCapacity = n
	}
}

// AsRechargePack marks the package as a prepaid pack valid for days.
func AsRechargePack(days int) PackageOption {
	return func(pkg *domain.Package) {
		pkg.IsRechargePack = true
		pkg.ValidityDays = days
	}
}

// AvailableDuring restricts the package to a daily window on days.
func AvailableDuring(start, end time.Duration, days ...time.Weekday) PackageOption {
	return func(pkg *domain.Package) {
		pkg.Availability = domain.Availability{Days: days, Start: start, End: end}
	}
}
