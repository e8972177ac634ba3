package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/events"
	"github.com/example/station-engine/internal/ledger"
	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/session"
)

// poolRechargeName labels usage lines drawn from the combined balance.
const poolRechargeName = "Pool"

// SessionService drives the station session state machine: every operation
// reads the station, applies one transition and writes it back conditioned
// on the version it read.
type SessionService struct {
	stations persistence.StationStore
	members  persistence.MemberStore
	catalog  persistence.PackageCatalog
	rt       Runtime
}

// NewSessionService constructs a session service with the provided dependencies.
func NewSessionService(stations persistence.StationStore, members persistence.MemberStore, catalog persistence.PackageCatalog, idGenerator func() string, now func() time.Time) *SessionService {
	return NewSessionServiceWithRuntime(stations, members, catalog, Runtime{IDGenerator: idGenerator, Now: now})
}

// NewSessionServiceWithRuntime constructs a session service sharing rt.
func NewSessionServiceWithRuntime(stations persistence.StationStore, members persistence.MemberStore, catalog persistence.PackageCatalog, rt Runtime) *SessionService {
	return &SessionService{stations: stations, members: members, catalog: catalog, rt: rt.withDefaults()}
}

func (s *SessionService) begin(ctx context.Context, name string, attrs ...any) (context.Context, *operation) {
	return s.rt.begin(ctx, "SessionService", name, attrs...)
}

// mutate runs fn inside the optimistic station update and emits the
// transition.
func (s *SessionService) mutate(ctx context.Context, logger *slog.Logger, name, stationID string, fn func(st *domain.Station, now time.Time) error) (domain.Station, error) {
	if s.stations == nil {
		return domain.Station{}, fmt.Errorf("station store not configured")
	}
	now := s.rt.Now()
	var before domain.Station
	after, err := persistence.UpdateStation(ctx, s.stations, stationID, s.rt.retry(ctx, logger, "station", stationID), func(st *domain.Station) error {
		before = st.Clone()
		if err := fn(st, now); err != nil {
			return err
		}
		st.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Station{}, mapStoreError("station", stationID, err)
	}
	s.rt.emit(ctx, logger, events.SessionTransitioned(name, before, after, now))
	return after, nil
}

// StartSession seats the entrants on an available station.
func (s *SessionService) StartSession(ctx context.Context, params StartSessionParams) (station domain.Station, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	ctx, op := s.begin(ctx, "StartSession", "station_id", params.StationID)
	defer func() {
		op.finish(ctx, err, "failed to start session")
		if err == nil {
			op.logger.InfoContext(ctx, "session started", "players", len(station.Members), "package", station.PackageName)
		}
	}()

	vErr := validateParams(params)
	for i, in := range params.Entrants {
		vErr.merge(checkEntrant(fmt.Sprintf("entrants[%d]", i), in))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.rt.Now()
	entrants := make([]session.Entrant, 0, len(params.Entrants))
	for _, in := range params.Entrants {
		var e session.Entrant
		e, err = s.resolveEntrant(ctx, in, now)
		if err != nil {
			return
		}
		entrants = append(entrants, e)
	}

	station, err = s.mutate(ctx, op.logger, "StartSession", params.StationID, func(st *domain.Station, now time.Time) error {
		return session.StartSession(st, entrants, now, s.rt.IDGenerator)
	})
	return
}

// JoinSession seats one more entrant on a live station.
func (s *SessionService) JoinSession(ctx context.Context, params JoinSessionParams) (station domain.Station, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	ctx, op := s.begin(ctx, "JoinSession", "station_id", params.StationID)
	defer func() {
		op.finish(ctx, err, "failed to join session")
		if err == nil {
			op.logger.InfoContext(ctx, "participant joined", "players", len(station.Members))
		}
	}()

	vErr := validateParams(params)
	vErr.merge(checkEntrant("entrant", params.Entrant))
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var entrant session.Entrant
	entrant, err = s.resolveEntrant(ctx, params.Entrant, s.rt.Now())
	if err != nil {
		return
	}

	station, err = s.mutate(ctx, op.logger, "JoinSession", params.StationID, func(st *domain.Station, now time.Time) error {
		return session.JoinSession(st, entrant, now, s.rt.IDGenerator)
	})
	return
}

// StopParticipant finishes one participant. Played time on an existing
// recharge is debited from the member right away; the caller should route
// to checkout once AllFinished is reported. When the debit cannot be
// written the stop still holds and the error wraps ErrDebitDeferred.
func (s *SessionService) StopParticipant(ctx context.Context, params ParticipantParams) (result StopResult, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	ctx, op := s.begin(ctx, "StopParticipant",
		"station_id", params.StationID,
		"participant_id", params.ParticipantID,
	)
	defer func() {
		op.finish(ctx, err, "failed to stop participant")
		if err == nil {
			op.logger.InfoContext(ctx, "participant stopped",
				"played", result.Played, "debited", result.Debited, "all_finished", result.AllFinished)
		}
	}()

	if vErr := validateParams(params); vErr.HasErrors() {
		err = vErr
		return
	}

	var stop session.StopResult
	result.Station, err = s.mutate(ctx, op.logger, "StopParticipant", params.StationID, func(st *domain.Station, now time.Time) error {
		var stopErr error
		stop, stopErr = session.StopParticipant(st, params.ParticipantID, now)
		return stopErr
	})
	if err != nil {
		return
	}
	result.Played = stop.Played
	result.AllFinished = stop.AllFinished

	if stop.Debit != nil {
		var debitErr error
		result.Debited, debitErr = s.debit(ctx, op.logger, *stop.Debit)
		if debitErr != nil {
			result.Station, err = s.deferDebit(ctx, op.logger, params.StationID, params.ParticipantID, debitErr)
		}
	}
	return
}

// deferDebit clears the participant's debited mark after the member write
// failed, so checkout takes the played time instead. The stop itself stays.
func (s *SessionService) deferDebit(ctx context.Context, logger *slog.Logger, stationID, participantID string, debitErr error) (domain.Station, error) {
	err := fmt.Errorf("participant %q stopped: %w: %w", participantID, ErrDebitDeferred, debitErr)
	st, undoErr := persistence.UpdateStation(ctx, s.stations, stationID, s.rt.retry(ctx, logger, "station", stationID), func(st *domain.Station) error {
		for i := range st.Members {
			if st.Members[i].ID == participantID {
				st.Members[i].Debited = false
			}
		}
		st.UpdatedAt = s.rt.Now()
		return nil
	})
	if undoErr != nil {
		logger.ErrorContext(ctx, "played time lost: debit failed and debited mark could not be cleared",
			"participant_id", participantID, "error", undoErr)
		return domain.Station{}, errors.Join(err, mapStoreError("station", stationID, undoErr))
	}
	return st, err
}

// debit takes stopped play time from the member. A member or pack that has
// vanished is logged and skipped.
func (s *SessionService) debit(ctx context.Context, logger *slog.Logger, d session.Debit) (time.Duration, error) {
	if s.members == nil {
		return 0, fmt.Errorf("member store not configured")
	}
	now := s.rt.Now()
	var (
		taken time.Duration
		found bool
	)
	_, err := persistence.UpdateMember(ctx, s.members, d.MemberID, s.rt.retry(ctx, logger, "member", d.MemberID), func(m *domain.Member) error {
		taken, found = ledger.Debit(m, d.RechargeID, d.Amount, now)
		m.UpdatedAt = now
		return nil
	})
	switch {
	case isNotFound(err):
		logger.WarnContext(ctx, "member missing, debit skipped", "member_id", d.MemberID, "amount", d.Amount)
		return 0, nil
	case err != nil:
		return 0, mapStoreError("member", d.MemberID, err)
	}
	if !found {
		logger.WarnContext(ctx, "recharge missing, debit skipped", "member_id", d.MemberID, "recharge_id", d.RechargeID)
	}
	s.rt.emit(ctx, logger, events.MemberUpdated("StopParticipant", d.MemberID, now))
	return taken, nil
}

// ToggleStation pauses or resumes the whole station and reports whether it
// is paused afterwards.
func (s *SessionService) ToggleStation(ctx context.Context, stationID string) (station domain.Station, paused bool, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	ctx, op := s.begin(ctx, "ToggleStationTimer", "station_id", stationID)
	defer func() {
		op.finish(ctx, err, "failed to toggle station")
		if err == nil {
			op.logger.InfoContext(ctx, "station toggled", "paused", paused)
		}
	}()

	station, err = s.mutate(ctx, op.logger, "ToggleStationTimer", stationID, func(st *domain.Station, now time.Time) error {
		var toggleErr error
		paused, toggleErr = session.ToggleStationTimer(st, now)
		return toggleErr
	})
	return
}

// TogglePlayer pauses or resumes one participant and reports whether they
// are paused afterwards.
func (s *SessionService) TogglePlayer(ctx context.Context, params ParticipantParams) (station domain.Station, paused bool, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	ctx, op := s.begin(ctx, "TogglePlayerTimer",
		"station_id", params.StationID,
		"participant_id", params.ParticipantID,
	)
	defer func() {
		op.finish(ctx, err, "failed to toggle player")
		if err == nil {
			op.logger.InfoContext(ctx, "player toggled", "paused", paused)
		}
	}()

	if vErr := validateParams(params); vErr.HasErrors() {
		err = vErr
		return
	}
	station, err = s.mutate(ctx, op.logger, "TogglePlayerTimer", params.StationID, func(st *domain.Station, now time.Time) error {
		var toggleErr error
		paused, toggleErr = session.TogglePlayerTimer(st, params.ParticipantID, now)
		return toggleErr
	})
	return
}

// AddTime extends participants, billing the extension when a package is
// named.
func (s *SessionService) AddTime(ctx context.Context, params TimeChangeParams) (station domain.Station, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	ctx, op := s.begin(ctx, "AddTime", "station_id", params.StationID, "package_id", params.PackageID)
	defer func() {
		op.finish(ctx, err, "failed to add time")
		if err == nil {
			op.logger.InfoContext(ctx, "time added", "participants", len(params.ParticipantIDs), "lines", len(station.Bill))
		}
	}()

	var change session.TimeChange
	change, err = s.timeChange(ctx, params)
	if err != nil {
		return
	}
	station, err = s.mutate(ctx, op.logger, "AddTime", params.StationID, func(st *domain.Station, now time.Time) error {
		return session.AddTime(st, change, now, s.rt.IDGenerator)
	})
	return
}

// ReduceTime shortens participants' remaining time.
func (s *SessionService) ReduceTime(ctx context.Context, params TimeChangeParams) (station domain.Station, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	ctx, op := s.begin(ctx, "ReduceTime", "station_id", params.StationID)
	defer func() {
		op.finish(ctx, err, "failed to reduce time")
		if err == nil {
			op.logger.InfoContext(ctx, "time reduced", "participants", len(params.ParticipantIDs))
		}
	}()

	var change session.TimeChange
	change, err = s.timeChange(ctx, params)
	if err != nil {
		return
	}
	station, err = s.mutate(ctx, op.logger, "ReduceTime", params.StationID, func(st *domain.Station, now time.Time) error {
		return session.ReduceTime(st, change, now)
	})
	return
}

func (s *SessionService) timeChange(ctx context.Context, params TimeChangeParams) (session.TimeChange, error) {
	vErr := validateParams(params)
	if params.Duration == 0 && strings.TrimSpace(params.PackageID) == "" {
		vErr.add("duration", "is required without a package")
	}
	if vErr.HasErrors() {
		return session.TimeChange{}, vErr
	}

	change := session.TimeChange{ParticipantIDs: params.ParticipantIDs, Duration: params.Duration}
	if params.PackageID != "" {
		pkg, err := s.pkg(ctx, params.PackageID)
		if err != nil {
			return session.TimeChange{}, err
		}
		change.Package = &pkg
	}
	return change, nil
}

// MoveSession transfers the live session on one station to an available
// one. The target is claimed first; when the source changed meanwhile the
// target is released again and ErrTransient is returned.
func (s *SessionService) MoveSession(ctx context.Context, params MoveSessionParams) (station domain.Station, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	ctx, op := s.begin(ctx, "MoveSession", "from_station_id", params.FromStationID, "to_station_id", params.ToStationID)
	defer func() {
		op.finish(ctx, err, "failed to move session")
		if err == nil {
			op.logger.InfoContext(ctx, "session moved", "players", len(station.Members))
		}
	}()

	if vErr := validateParams(params); vErr.HasErrors() {
		err = vErr
		return
	}

	var (
		source   domain.Station
		vacated  domain.Station
		readErr  error
		retryCfg = s.rt.retry(ctx, op.logger, "station", params.ToStationID)
		now      = s.rt.Now()
	)
	var targetBefore domain.Station
	station, err = persistence.UpdateStation(ctx, s.stations, params.ToStationID, retryCfg, func(dst *domain.Station) error {
		targetBefore = dst.Clone()
		source, readErr = s.stations.GetStation(ctx, params.FromStationID)
		if readErr != nil {
			return mapStoreError("station", params.FromStationID, readErr)
		}
		vacated = source.Clone()
		if err := session.MoveSession(&vacated, dst, now); err != nil {
			return err
		}
		vacated.UpdatedAt = now
		dst.UpdatedAt = now
		return nil
	})
	if err != nil {
		err = mapStoreError("station", params.ToStationID, err)
		return
	}

	var saved domain.Station
	saved, err = s.stations.SaveStation(ctx, vacated)
	if err != nil {
		op.logger.WarnContext(ctx, "source changed during move, releasing target", "error", err)
		if _, rbErr := persistence.UpdateStation(ctx, s.stations, params.ToStationID, retryCfg, func(dst *domain.Station) error {
			dst.Reset()
			dst.UpdatedAt = now
			return nil
		}); rbErr != nil {
			op.logger.ErrorContext(ctx, "failed to release move target", "error", rbErr)
		}
		err = mapStoreError("station", params.FromStationID, err)
		return
	}

	s.rt.emit(ctx, op.logger,
		events.SessionTransitioned("MoveSession", source, saved, now),
		events.SessionTransitioned("MoveSession", targetBefore, station, now),
	)
	return
}

// AddItem appends a food or extras line to the running bill.
func (s *SessionService) AddItem(ctx context.Context, params AddItemParams) (line domain.LineItem, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	ctx, op := s.begin(ctx, "AddItem", "station_id", params.StationID, "item_id", params.ItemID)
	defer func() {
		op.finish(ctx, err, "failed to add item")
		if err == nil {
			op.logger.InfoContext(ctx, "item added", "line_id", line.ID, "amount", line.Amount().String())
		}
	}()

	vErr := validateParams(params)
	checkAmount(vErr, "unit_price", params.UnitPrice)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	_, err = s.mutate(ctx, op.logger, "AddItem", params.StationID, func(st *domain.Station, now time.Time) error {
		var addErr error
		line, addErr = session.AddItem(st, domain.LineItem{
			ItemID:    params.ItemID,
			Name:      params.Name,
			Kind:      domain.LineFood,
			UnitPrice: params.UnitPrice,
			Quantity:  params.Quantity,
		}, now, s.rt.IDGenerator)
		return addErr
	})
	return
}

// RemoveItem drops a line from the running bill.
func (s *SessionService) RemoveItem(ctx context.Context, params RemoveItemParams) (station domain.Station, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	ctx, op := s.begin(ctx, "RemoveItem", "station_id", params.StationID, "line_id", params.LineID)
	defer func() {
		op.finish(ctx, err, "failed to remove item")
		if err == nil {
			op.logger.InfoContext(ctx, "item removed")
		}
	}()

	if vErr := validateParams(params); vErr.HasErrors() {
		err = vErr
		return
	}
	station, err = s.mutate(ctx, op.logger, "RemoveItem", params.StationID, func(st *domain.Station, _ time.Time) error {
		_, removeErr := session.RemoveItem(st, params.LineID)
		return removeErr
	})
	return
}

// SetDiscount records the discount applied at checkout.
func (s *SessionService) SetDiscount(ctx context.Context, params SetDiscountParams) (station domain.Station, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	ctx, op := s.begin(ctx, "SetDiscount", "station_id", params.StationID, "discount", params.Discount.String())
	defer func() {
		op.finish(ctx, err, "failed to set discount")
		if err == nil {
			op.logger.InfoContext(ctx, "discount set")
		}
	}()

	if vErr := validateParams(params); vErr.HasErrors() {
		err = vErr
		return
	}
	station, err = s.mutate(ctx, op.logger, "SetDiscount", params.StationID, func(st *domain.Station, _ time.Time) error {
		return session.SetDiscount(st, params.Discount)
	})
	return
}

// Station returns the stored station with its running bill.
func (s *SessionService) Station(ctx context.Context, stationID string) (domain.Station, error) {
	if s == nil || s.stations == nil {
		return domain.Station{}, fmt.Errorf("station store not configured")
	}
	st, err := s.stations.GetStation(ctx, stationID)
	if err != nil {
		return domain.Station{}, mapStoreError("station", stationID, err)
	}
	return st, nil
}

// Now reports the service clock.
func (s *SessionService) Now() time.Time {
	return s.rt.Now()
}

// View derives the display state of one station.
func (s *SessionService) View(ctx context.Context, stationID string) (session.View, error) {
	if s == nil || s.stations == nil {
		return session.View{}, fmt.Errorf("station store not configured")
	}
	st, err := s.stations.GetStation(ctx, stationID)
	if err != nil {
		return session.View{}, mapStoreError("station", stationID, err)
	}
	return session.Snapshot(st, s.rt.Now()), nil
}

// Views derives the display state of every station.
func (s *SessionService) Views(ctx context.Context) ([]session.View, error) {
	if s == nil || s.stations == nil {
		return nil, fmt.Errorf("station store not configured")
	}
	stations, err := s.stations.ListStations(ctx)
	if err != nil {
		return nil, err
	}
	now := s.rt.Now()
	views := make([]session.View, 0, len(stations))
	for _, st := range stations {
		views = append(views, session.Snapshot(st, now))
	}
	return views, nil
}

// checkEntrant covers the rules the struct tags cannot express.
func checkEntrant(field string, in EntrantInput) *ValidationError {
	vErr := &ValidationError{}
	member := strings.TrimSpace(in.MemberID) != ""
	guest := strings.TrimSpace(in.GuestName) != ""
	switch {
	case member == guest:
		vErr.add(field, "exactly one of member_id or guest_name is required")
	case guest && (in.Plan == session.PlanRecharge || in.Plan == session.PlanNewRecharge):
		vErr.add(field+".plan", "guests can only walk in or order")
	}
	if (in.Plan == session.PlanWalkIn || in.Plan == session.PlanNewRecharge) && strings.TrimSpace(in.PackageID) == "" {
		vErr.add(field+".package_id", "is required for this plan")
	}
	return vErr
}

// resolveEntrant loads the member and package an entrant refers to.
func (s *SessionService) resolveEntrant(ctx context.Context, in EntrantInput, now time.Time) (session.Entrant, error) {
	e := session.Entrant{Plan: in.Plan, Duration: in.Duration}

	var member domain.Member
	if in.MemberID == "" {
		e.IsGuest = true
		e.Name = strings.TrimSpace(in.GuestName)
	} else {
		if s.members == nil {
			return session.Entrant{}, fmt.Errorf("member store not configured")
		}
		var err error
		member, err = s.members.GetMember(ctx, in.MemberID)
		if err != nil {
			return session.Entrant{}, mapStoreError("member", in.MemberID, err)
		}
		e.ID = member.ID
		e.Name = member.Name
	}

	switch in.Plan {
	case session.PlanWalkIn, session.PlanNewRecharge:
		pkg, err := s.pkg(ctx, in.PackageID)
		if err != nil {
			return session.Entrant{}, err
		}
		e.Package = &pkg
	case session.PlanRecharge:
		e.RechargeID = in.RechargeID
		if e.RechargeID == "" {
			e.RechargeID = domain.PoolRechargeID
		}
		e.Balance = ledger.Available(member, e.RechargeID, now)
		e.RechargeName = poolRechargeName
		if idx := member.RechargeIndex(e.RechargeID); idx >= 0 {
			e.RechargeName = member.Recharges[idx].PackageName
		}
	}
	return e, nil
}

func (s *SessionService) pkg(ctx context.Context, id string) (domain.Package, error) {
	if s.catalog == nil {
		return domain.Package{}, fmt.Errorf("package catalog not configured")
	}
	pkg, err := s.catalog.GetPackage(ctx, id)
	if err != nil {
		return domain.Package{}, mapStoreError("package", id, err)
	}
	return pkg, nil
}
