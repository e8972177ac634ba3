package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/events"
	"github.com/example/station-engine/internal/ledger"
	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/settlement"
)

// MemberService enrolls members and sells recharge packs.
type MemberService struct {
	members persistence.MemberStore
	catalog persistence.PackageCatalog
	bills   persistence.BillStore
	engine  *settlement.Engine
	rt      Runtime
}

// NewMemberService constructs a member service with the provided dependencies.
func NewMemberService(store persistence.Store, engine *settlement.Engine, idGenerator func() string, now func() time.Time) *MemberService {
	return NewMemberServiceWithRuntime(store, store, store, engine, Runtime{IDGenerator: idGenerator, Now: now})
}

// NewMemberServiceWithRuntime constructs a member service sharing rt.
func NewMemberServiceWithRuntime(members persistence.MemberStore, catalog persistence.PackageCatalog, bills persistence.BillStore, engine *settlement.Engine, rt Runtime) *MemberService {
	if engine == nil {
		engine = settlement.NewEngine(settlement.DefaultConfig())
	}
	return &MemberService{members: members, catalog: catalog, bills: bills, engine: engine, rt: rt.withDefaults()}
}

// Enroll registers a new member at level 1.
func (s *MemberService) Enroll(ctx context.Context, params EnrollParams) (member domain.Member, err error) {
	if s == nil {
		err = fmt.Errorf("MemberService is nil")
		return
	}
	ctx, op := s.rt.begin(ctx, "MemberService", "Enroll", "tier", params.Tier)
	defer func() {
		op.finish(ctx, err, "failed to enroll member")
		if err == nil {
			op.logger.InfoContext(ctx, "member enrolled", "member_id", member.ID)
		}
	}()

	if vErr := validateParams(params); vErr.HasErrors() {
		err = vErr
		return
	}
	if s.members == nil {
		err = fmt.Errorf("member store not configured")
		return
	}

	now := s.rt.Now()
	member = domain.Member{
		ID:         strings.TrimSpace(params.ID),
		Name:       strings.TrimSpace(params.Name),
		Tier:       params.Tier,
		Level:      1,
		TotalSpent: decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if member.ID == "" {
		member.ID = s.rt.IDGenerator()
	}
	if member.Tier == "" {
		member.Tier = domain.TierRed
	}

	member, err = s.members.CreateMember(ctx, member)
	if err != nil {
		err = mapStoreError("member", member.ID, err)
		return
	}
	s.rt.emit(ctx, op.logger, events.MemberUpdated("Enroll", member.ID, now))
	return
}

// PurchaseRecharge sells a recharge pack to a member. Unless SkipBill is
// set the payment is validated first and a sale bill is stored after the
// pack is credited.
func (s *MemberService) PurchaseRecharge(ctx context.Context, params PurchaseRechargeParams) (result PurchaseResult, err error) {
	if s == nil {
		err = fmt.Errorf("MemberService is nil")
		return
	}
	ctx, op := s.rt.begin(ctx, "MemberService", "PurchaseRecharge",
		"member_id", params.MemberID,
		"package_id", params.PackageID,
		"skip_bill", params.SkipBill,
	)
	defer func() {
		op.finish(ctx, err, "failed to purchase recharge")
		if err == nil {
			op.logger.InfoContext(ctx, "recharge purchased", "recharge_id", result.Recharge.ID, "billed", result.Bill != nil)
		}
	}()

	if params.SkipBill && params.Payment.Method == "" {
		// no payment is taken for an unbilled pack
		params.Payment.Method = domain.PaymentCash
	}
	vErr := validateParams(params)
	params.Payment.check(vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if s.members == nil || s.catalog == nil {
		err = fmt.Errorf("member stores not configured")
		return
	}

	var pkg domain.Package
	pkg, err = s.catalog.GetPackage(ctx, params.PackageID)
	if err != nil {
		err = mapStoreError("package", params.PackageID, err)
		return
	}
	if !pkg.IsRechargePack {
		err = domain.Rejectf("PurchaseRecharge", domain.ErrPackageUnavailable, "%s is not a recharge pack", pkg.Name)
		return
	}

	now := s.rt.Now()
	var member domain.Member
	member, err = s.members.GetMember(ctx, params.MemberID)
	if err != nil {
		err = mapStoreError("member", params.MemberID, err)
		return
	}

	var bill domain.Bill
	if !params.SkipBill {
		if s.bills == nil {
			err = fmt.Errorf("bill store not configured")
			return
		}
		bill, err = s.engine.RechargeSale(member, pkg, params.Payment.payment(), s.rt.IDGenerator(), params.CycleTag, now)
		if err != nil {
			return
		}
	}

	rechargeID := s.rt.IDGenerator()
	result.Member, err = persistence.UpdateMember(ctx, s.members, params.MemberID, s.rt.retry(ctx, op.logger, "member", params.MemberID), func(m *domain.Member) error {
		result.Recharge = ledger.Purchase(m, pkg, now, rechargeID)
		m.UpdatedAt = now
		return nil
	})
	if err != nil {
		err = mapStoreError("member", params.MemberID, err)
		return
	}

	evs := []events.Event{events.MemberUpdated("PurchaseRecharge", params.MemberID, now)}
	if !params.SkipBill {
		if err = s.bills.CreateBill(ctx, bill); err != nil {
			err = mapStoreError("bill", bill.ID, err)
			return
		}
		result.Bill = &bill
		s.rt.Metrics.Settled(string(bill.Kind), string(bill.PaymentMethod), bill.Total)
		evs = append(evs, events.BillCreated(bill))
	}
	s.rt.emit(ctx, op.logger, evs...)
	return
}

// Member returns one member.
func (s *MemberService) Member(ctx context.Context, id string) (domain.Member, error) {
	if s == nil || s.members == nil {
		return domain.Member{}, fmt.Errorf("member store not configured")
	}
	m, err := s.members.GetMember(ctx, id)
	if err != nil {
		return domain.Member{}, mapStoreError("member", id, err)
	}
	return m, nil
}

// Members lists members in enrollment order.
func (s *MemberService) Members(ctx context.Context) ([]domain.Member, error) {
	if s == nil || s.members == nil {
		return nil, nil
	}
	return s.members.ListMembers(ctx)
}

// Balance reports the member's active prepaid time.
func (s *MemberService) Balance(ctx context.Context, id string) (MemberBalance, error) {
	m, err := s.Member(ctx, id)
	if err != nil {
		return MemberBalance{}, err
	}
	return MemberBalance{MemberID: m.ID, Active: ledger.ActiveBalance(m, s.rt.Now())}, nil
}
