// Package settlement turns a live station into an immutable bill and the
// per-member side effects of checkout.
//
// Settle is pure: it validates payment, prices the bill and returns a Plan.
// Callers persist the bill and apply each MemberEffect to a freshly read
// member with Apply inside one conditional write per member.
package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/ledger"
	"github.com/example/station-engine/internal/pricing"
)

// Config holds the reward constants.
type Config struct {
	XPPerRupee       decimal.Decimal
	XPPerLevel       int64
	PointsPerLevelUp int64
	// SplitTolerance is the largest accepted gap between a split payment and
	// the total.
	SplitTolerance decimal.Decimal
}

// DefaultConfig returns the café defaults.
func DefaultConfig() Config {
	return Config{
		XPPerRupee:       decimal.NewFromFloat(0.1),
		XPPerLevel:       1000,
		PointsPerLevelUp: 100,
		SplitTolerance:   decimal.NewFromFloat(0.1),
	}
}

// Payment is how the customer settles.
type Payment struct {
	Method     domain.PaymentMethod
	CashAmount decimal.Decimal
	UPIAmount  decimal.Decimal
	// PaidNow is the amount collected on a pending settlement.
	PaidNow decimal.Decimal
	// PartyID and PartyName identify who owes or is owed on a pending
	// settlement. They default to the first member.
	PartyID   string
	PartyName string
}

// Request carries everything a checkout needs. Packages resolves the
// recharge packs bought by new-recharge participants.
type Request struct {
	Station       domain.Station
	Payment       Payment
	CycleTag      string
	Packages      map[string]domain.Package
	BillID        string
	NewRechargeID func() string
	Now           time.Time
}

// MemberEffect is what checkout does to one member record, applied in order:
// purchase, debit, reward.
type MemberEffect struct {
	MemberID string
	Name     string
	// Purchase is the pack bought during the session; its price is already
	// on the bill.
	Purchase   *domain.Package
	RechargeID string
	// DebitFrom is a pack id or domain.PoolRechargeID; empty means no debit.
	DebitFrom string
	Debit     time.Duration
	// Share is the member's slice of the bill total and drives XP.
	Share decimal.Decimal
	// Spend is what the member's total spend grows by besides a bundled
	// purchase, which the purchase itself counts.
	Spend  decimal.Decimal
	BaseXP int64
}

// Plan is the outcome of a successful settlement.
type Plan struct {
	Bill      domain.Bill
	PerMember decimal.Decimal
	Effects   []MemberEffect
}

// Outcome reports what Apply changed.
type Outcome struct {
	Debited       time.Duration
	MissingPack   bool
	XPGranted     int64
	LeveledUp     bool
	PointsGranted int64
}

// Engine settles stations with a fixed reward configuration.
type Engine struct {
	cfg Config
}

// NewEngine constructs an engine. Unset rates in cfg fall back to the
// defaults.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.XPPerRupee.IsZero() {
		cfg.XPPerRupee = def.XPPerRupee
	}
	if cfg.XPPerLevel <= 0 {
		cfg.XPPerLevel = def.XPPerLevel
	}
	if cfg.PointsPerLevelUp <= 0 {
		cfg.PointsPerLevelUp = def.PointsPerLevelUp
	}
	if cfg.SplitTolerance.IsZero() {
		cfg.SplitTolerance = def.SplitTolerance
	}
	return &Engine{cfg: cfg}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Totals is the priced breakdown of a running bill.
type Totals struct {
	Food                decimal.Decimal
	Time                decimal.Decimal
	InitialPackagePrice decimal.Decimal
	Discount            decimal.Decimal
	Total               decimal.Decimal
}

// Price computes subtotals, the one-time package charge, the clamped
// discount and the total of st.
func Price(st domain.Station) Totals {
	t := Totals{Food: decimal.Zero, Time: decimal.Zero}
	for _, line := range st.Bill {
		if line.EffectiveKind().SessionReserved() {
			t.Time = t.Time.Add(line.Amount())
			continue
		}
		t.Food = t.Food.Add(line.Amount())
	}
	t.InitialPackagePrice = pricing.InitialPackagePrice(st)

	t.Discount = st.Discount
	if t.Discount.IsNegative() {
		t.Discount = decimal.Zero
	}
	if t.Discount.GreaterThan(t.Food) {
		t.Discount = t.Food
	}

	t.Total = t.Food.Add(t.Time).Add(t.InitialPackagePrice).Sub(t.Discount)
	if t.Total.IsNegative() {
		t.Total = decimal.Zero
	}
	return t
}

// Settle prices the live station in req and plans every member effect. A
// rejected payment returns a *domain.PreconditionError and no plan.
func (e *Engine) Settle(req Request) (Plan, error) {
	const op = "Settle"

	st := req.Station
	if !st.Live() {
		return Plan{}, domain.Rejectf(op, domain.ErrStationNotActive, "station %s is %s", st.ID, st.Status)
	}

	totals := Price(st)
	bill := domain.Bill{
		ID:                  req.BillID,
		Kind:                domain.BillSession,
		StationID:           st.ID,
		StationName:         st.Name,
		PackageName:         st.PackageName,
		InitialPackagePrice: totals.InitialPackagePrice,
		FoodSubtotal:        totals.Food,
		TimeSubtotal:        totals.Time,
		Discount:            totals.Discount,
		Total:               totals.Total,
		CycleTag:            req.CycleTag,
		CreatedAt:           req.Now,
	}
	if err := e.applyPayment(op, &bill, req.Payment, defaultParty(st)); err != nil {
		return Plan{}, err
	}

	bill.Members = make([]domain.Participant, len(st.Members))
	for i, p := range st.Members {
		snap := p.Clone()
		snap.Played = p.PlayedAt(req.Now)
		bill.Members[i] = snap
	}
	bill.Items = make([]domain.LineItem, len(st.Bill))
	for i, l := range st.Bill {
		bill.Items[i] = l.Clone()
	}

	perMember := decimal.Zero
	if n := len(st.Members); n > 0 {
		perMember = totals.Total.Div(decimal.NewFromInt(int64(n)))
	}
	baseXP := perMember.Mul(e.cfg.XPPerRupee).Floor().IntPart()

	bundled := decimal.Zero
	var effects []MemberEffect
	for _, p := range st.Members {
		if p.IsGuest {
			continue
		}
		eff := MemberEffect{
			MemberID: p.ID,
			Name:     p.Name,
			Share:    perMember,
			BaseXP:   baseXP,
		}
		switch {
		case p.IsNewRecharge:
			pkg, ok := req.Packages[p.PackageID]
			if !ok {
				return Plan{}, domain.Rejectf(op, domain.ErrPackageUnavailable, "recharge pack %q for %s", p.PackageID, p.Name)
			}
			eff.Purchase = &pkg
			bundled = bundled.Add(pkg.Price)
			eff.RechargeID = nextID(req.NewRechargeID)
			eff.DebitFrom = eff.RechargeID
			eff.Debit = p.PlayedAt(req.Now)
		case p.RechargeID != "" && !p.Debited:
			eff.DebitFrom = p.RechargeID
			eff.Debit = p.PlayedAt(req.Now)
		}
		effects = append(effects, eff)
	}
	spend := spendShare(totals.Total, bundled, len(st.Members))
	for i := range effects {
		effects[i].Spend = spend
	}

	Seal(&bill)
	return Plan{Bill: bill, PerMember: perMember, Effects: effects}, nil
}

// spendShare splits the bill total left after bundled pack purchases across
// every participant, guests included.
func spendShare(total, bundled decimal.Decimal, participants int) decimal.Decimal {
	rest := total.Sub(bundled)
	if participants == 0 || !rest.IsPositive() {
		return decimal.Zero
	}
	return rest.Div(decimal.NewFromInt(int64(participants)))
}

// Apply performs eff on m: buy the bundled pack, debit played time, then
// count the spend and grant XP and at most one level. A debit against a pack that no
// longer exists is skipped and reported.
func (e *Engine) Apply(m *domain.Member, eff MemberEffect, now time.Time) Outcome {
	var out Outcome

	if eff.Purchase != nil {
		ledger.Purchase(m, *eff.Purchase, now, eff.RechargeID)
	}
	if eff.DebitFrom != "" && eff.Debit > 0 {
		taken, found := ledger.Debit(m, eff.DebitFrom, eff.Debit, now)
		out.Debited = taken
		out.MissingPack = !found
	}

	m.TotalSpent = m.TotalSpent.Add(eff.Spend)

	out.XPGranted = decimal.NewFromInt(eff.BaseXP).Mul(m.Tier.Multiplier()).Floor().IntPart()
	level := m.Level
	if level < 1 {
		level = 1
	}
	m.Level = level
	m.XP += out.XPGranted
	if m.XP >= level*e.cfg.XPPerLevel {
		m.Level = level + 1
		m.Points += e.cfg.PointsPerLevelUp
		out.LeveledUp = true
		out.PointsGranted = e.cfg.PointsPerLevelUp
	}
	m.UpdatedAt = now
	return out
}

// RechargeSale builds the bill for a pack sold outside a session.
func (e *Engine) RechargeSale(m domain.Member, pkg domain.Package, payment Payment, billID, cycleTag string, now time.Time) (domain.Bill, error) {
	const op = "RechargeSale"

	if !pkg.IsRechargePack {
		return domain.Bill{}, domain.Rejectf(op, domain.ErrPackageUnavailable, "%s is not a recharge pack", pkg.Name)
	}
	buyer := domain.Participant{ID: m.ID, Name: m.Name, Status: domain.ParticipantFinished, PackageID: pkg.ID, IsNewRecharge: true}
	line := pricing.RechargePurchaseLine(pkg, buyer, now, billID+"-1")

	bill := domain.Bill{
		ID:                  billID,
		Kind:                domain.BillRechargeSale,
		PackageName:         pkg.Name,
		Members:             []domain.Participant{buyer},
		Items:               []domain.LineItem{line},
		InitialPackagePrice: decimal.Zero,
		FoodSubtotal:        decimal.Zero,
		TimeSubtotal:        line.Amount(),
		Discount:            decimal.Zero,
		Total:               line.Amount(),
		CycleTag:            cycleTag,
		CreatedAt:           now,
	}
	if err := e.applyPayment(op, &bill, payment, party{id: m.ID, name: m.Name}); err != nil {
		return domain.Bill{}, err
	}
	Seal(&bill)
	return bill, nil
}

func nextID(gen func() string) string {
	if gen == nil {
		return ""
	}
	return gen()
}
