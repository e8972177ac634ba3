package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/events"
	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/settlement"
)

// CheckoutService settles live stations into immutable bills.
type CheckoutService struct {
	stations persistence.StationStore
	members  persistence.MemberStore
	catalog  persistence.PackageCatalog
	bills    persistence.BillStore
	engine   *settlement.Engine
	rt       Runtime
}

// NewCheckoutService constructs a checkout service with the provided dependencies.
func NewCheckoutService(store persistence.Store, engine *settlement.Engine, idGenerator func() string, now func() time.Time) *CheckoutService {
	return NewCheckoutServiceWithRuntime(store, store, store, store, engine, Runtime{IDGenerator: idGenerator, Now: now})
}

// NewCheckoutServiceWithRuntime constructs a checkout service sharing rt.
func NewCheckoutServiceWithRuntime(stations persistence.StationStore, members persistence.MemberStore, catalog persistence.PackageCatalog, bills persistence.BillStore, engine *settlement.Engine, rt Runtime) *CheckoutService {
	if engine == nil {
		engine = settlement.NewEngine(settlement.DefaultConfig())
	}
	return &CheckoutService{
		stations: stations,
		members:  members,
		catalog:  catalog,
		bills:    bills,
		engine:   engine,
		rt:       rt.withDefaults(),
	}
}

// Checkout settles the station: the station is claimed and reset in one
// conditional write with the plan computed from the claimed state, then the
// bill is stored and each member record is updated.
func (s *CheckoutService) Checkout(ctx context.Context, params CheckoutParams) (result CheckoutResult, err error) {
	if s == nil {
		err = fmt.Errorf("CheckoutService is nil")
		return
	}
	ctx, op := s.rt.begin(ctx, "CheckoutService", "Checkout",
		"station_id", params.StationID,
		"payment_method", params.Payment.Method,
		"cycle_tag", params.CycleTag,
	)
	defer func() {
		op.finish(ctx, err, "failed to check out")
		if err == nil {
			op.logger.InfoContext(ctx, "station checked out",
				"bill_id", result.Bill.ID,
				"total", result.Bill.Total.String(),
				"members", len(result.Members),
			)
		}
	}()

	vErr := validateParams(params)
	params.Payment.check(vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if s.stations == nil || s.bills == nil {
		err = fmt.Errorf("checkout stores not configured")
		return
	}

	now := s.rt.Now()
	billID := s.rt.IDGenerator()
	var (
		plan    settlement.Plan
		claimed domain.Station
	)
	result.Station, err = persistence.UpdateStation(ctx, s.stations, params.StationID, s.rt.retry(ctx, op.logger, "station", params.StationID), func(st *domain.Station) error {
		claimed = st.Clone()
		packages, pkgErr := s.rechargePacks(ctx, *st)
		if pkgErr != nil {
			return pkgErr
		}
		var settleErr error
		plan, settleErr = s.engine.Settle(settlement.Request{
			Station:       claimed,
			Payment:       params.Payment.payment(),
			CycleTag:      params.CycleTag,
			Packages:      packages,
			BillID:        billID,
			NewRechargeID: s.rt.IDGenerator,
			Now:           now,
		})
		if settleErr != nil {
			return settleErr
		}
		st.Reset()
		st.UpdatedAt = now
		return nil
	})
	if err != nil {
		err = mapStoreError("station", params.StationID, err)
		return
	}

	if err = s.bills.CreateBill(ctx, plan.Bill); err != nil {
		s.restore(ctx, op.logger, claimed, now)
		err = mapStoreError("bill", plan.Bill.ID, err)
		return
	}
	result.Bill = plan.Bill
	s.rt.Metrics.Settled(string(plan.Bill.Kind), string(plan.Bill.PaymentMethod), plan.Bill.Total)

	s.rt.emit(ctx, op.logger,
		events.SessionTransitioned("Checkout", claimed, result.Station, now),
		events.BillCreated(plan.Bill),
	)
	result.Members, err = s.applyAll(ctx, op.logger, "Checkout", plan.Bill.ID, plan.Effects, now)
	return
}

// ApplyEffects retries the member effects left pending by an incomplete
// settlement of billID.
func (s *CheckoutService) ApplyEffects(ctx context.Context, billID string, effects []settlement.MemberEffect) (settled []MemberSettlement, err error) {
	if s == nil {
		err = fmt.Errorf("CheckoutService is nil")
		return
	}
	ctx, op := s.rt.begin(ctx, "CheckoutService", "ApplyEffects",
		"bill_id", billID,
		"members", len(effects),
	)
	defer func() {
		op.finish(ctx, err, "failed to apply pending settlement effects")
		if err == nil {
			op.logger.InfoContext(ctx, "pending settlement effects applied")
		}
	}()

	settled, err = s.applyAll(ctx, op.logger, "ApplyEffects", billID, effects, s.rt.Now())
	return
}

// applyAll applies every effect, collecting the ones whose member write
// failed into an IncompleteSettlementError.
func (s *CheckoutService) applyAll(ctx context.Context, logger *slog.Logger, opName, billID string, effects []settlement.MemberEffect, now time.Time) ([]MemberSettlement, error) {
	var (
		settled []MemberSettlement
		pending []settlement.MemberEffect
		first   error
		evs     []events.Event
	)
	for _, eff := range effects {
		result, err := s.apply(ctx, logger, eff, now)
		if err != nil {
			pending = append(pending, eff)
			if first == nil {
				first = err
			}
			continue
		}
		settled = append(settled, result)
		if !result.Missing {
			evs = append(evs, events.MemberUpdated(opName, eff.MemberID, now))
		}
	}
	s.rt.emit(ctx, logger, evs...)
	if len(pending) > 0 {
		return settled, &IncompleteSettlementError{BillID: billID, Pending: pending, Err: first}
	}
	return settled, nil
}

// rechargePacks loads the packs bought by new-recharge participants.
func (s *CheckoutService) rechargePacks(ctx context.Context, st domain.Station) (map[string]domain.Package, error) {
	packages := make(map[string]domain.Package)
	for _, p := range st.Members {
		if !p.IsNewRecharge || p.IsGuest {
			continue
		}
		if _, ok := packages[p.PackageID]; ok {
			continue
		}
		if s.catalog == nil {
			return nil, fmt.Errorf("package catalog not configured")
		}
		pkg, err := s.catalog.GetPackage(ctx, p.PackageID)
		if isNotFound(err) {
			// Settle rejects the participant with a precondition error.
			continue
		}
		if err != nil {
			return nil, err
		}
		packages[p.PackageID] = pkg
	}
	return packages, nil
}

// restore puts the claimed session back when its bill could not be stored.
// It only applies while the station is still available.
func (s *CheckoutService) restore(ctx context.Context, logger *slog.Logger, claimed domain.Station, now time.Time) {
	_, err := persistence.UpdateStation(ctx, s.stations, claimed.ID, s.rt.retry(ctx, logger, "station", claimed.ID), func(st *domain.Station) error {
		if st.Status != domain.StationAvailable {
			return domain.Rejectf("Checkout", domain.ErrStationNotAvailable, "station %s was reused", st.ID)
		}
		version := st.Version
		*st = claimed.Clone()
		st.Version = version
		st.UpdatedAt = now
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to restore station after bill write failure", "error", err)
	}
}

// apply performs one member effect inside an optimistic member update.
// Members that no longer exist are skipped with a warning; any other
// failure is returned.
func (s *CheckoutService) apply(ctx context.Context, logger *slog.Logger, eff settlement.MemberEffect, now time.Time) (MemberSettlement, error) {
	settled := MemberSettlement{MemberID: eff.MemberID}
	if s.members == nil {
		return settled, fmt.Errorf("member store not configured")
	}

	_, err := persistence.UpdateMember(ctx, s.members, eff.MemberID, s.rt.retry(ctx, logger, "member", eff.MemberID), func(m *domain.Member) error {
		// the member is re-read on every attempt
		settled.Outcome = s.engine.Apply(m, eff, now)
		return nil
	})
	switch {
	case isNotFound(err):
		settled.Missing = true
		settled.Outcome = settlement.Outcome{}
		logger.WarnContext(ctx, "member missing, settlement effect skipped", "member_id", eff.MemberID)
	case err != nil:
		err = mapStoreError("member", eff.MemberID, err)
		logger.ErrorContext(ctx, "failed to apply settlement effect",
			"member_id", eff.MemberID,
			"share", eff.Share.String(),
			"debit", eff.Debit,
			"base_xp", eff.BaseXP,
			"error", err,
			"error_kind", ErrorKind(err),
		)
		return settled, err
	case settled.Outcome.MissingPack:
		logger.WarnContext(ctx, "recharge missing, debit skipped", "member_id", eff.MemberID, "recharge_id", eff.DebitFrom)
	}
	return settled, nil
}

// Bill loads a stored bill and checks its digest.
func (s *CheckoutService) Bill(ctx context.Context, id string) (bill domain.Bill, err error) {
	if s == nil || s.bills == nil {
		err = fmt.Errorf("bill store not configured")
		return
	}
	bill, err = s.bills.GetBill(ctx, id)
	if err != nil {
		err = mapStoreError("bill", id, err)
		return
	}
	if !settlement.Verify(bill) {
		serviceLogger(ctx, s.rt.Logger, "CheckoutService", "Bill", "bill_id", id).
			ErrorContext(ctx, "bill digest mismatch", "error_kind", "tampered")
		err = fmt.Errorf("bill %q: %w", id, ErrTampered)
	}
	return
}

// Bills lists stored bills, newest first.
func (s *CheckoutService) Bills(ctx context.Context, filter persistence.BillFilter) ([]domain.Bill, error) {
	if s == nil || s.bills == nil {
		return nil, fmt.Errorf("bill store not configured")
	}
	return s.bills.ListBills(ctx, filter)
}
