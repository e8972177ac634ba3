// Package session implements the station session state machine.
//
// A station moves available → in-use ⇄ paused → available, and each of its
// participants cycles active ⇄ paused → finished on its own. Every operation
// validates first and mutates the station only when it succeeds; a rejected
// call returns a *domain.PreconditionError and leaves the station untouched.
package session

import (
	"time"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/pricing"
)

// PlanKind is how a participant's play time is funded.
type PlanKind string

const (
	// PlanWalkIn pays for a package at checkout.
	PlanWalkIn PlanKind = "walk_in"
	// PlanRecharge draws on an existing pack or the member's pool.
	PlanRecharge PlanKind = "recharge"
	// PlanNewRecharge buys a pack during the session and plays on it.
	PlanNewRecharge PlanKind = "new_recharge"
	// PlanOpen has no timer, e.g. a food-only order.
	PlanOpen PlanKind = "open"
)

// Entrant is a member or guest about to be seated.
type Entrant struct {
	ID      string
	Name    string
	IsGuest bool
	Plan    PlanKind

	// Package backs walk-in and new recharge plans.
	Package *domain.Package
	// RechargeID is a pack id or domain.PoolRechargeID for recharge plans.
	RechargeID string
	// RechargeName labels the usage line of a recharge plan.
	RechargeName string
	// Balance is what the chosen recharge source holds right now.
	Balance time.Duration
	// Duration requested from a recharge; zero plays the whole balance.
	Duration time.Duration
}

func (e Entrant) allotment() time.Duration {
	switch e.Plan {
	case PlanWalkIn, PlanNewRecharge:
		return e.Package.Duration
	case PlanRecharge:
		if e.Duration > 0 {
			return e.Duration
		}
		return e.Balance
	default:
		return 0
	}
}

func validateEntrant(op string, e Entrant, now time.Time) error {
	switch e.Plan {
	case PlanWalkIn:
		if e.Package == nil {
			return domain.Reject(op, domain.ErrPackageUnavailable, "walk-in plan needs a package")
		}
		if !e.Package.AvailableAt(now) {
			return domain.Rejectf(op, domain.ErrPackageUnavailable, "%s is not offered now", e.Package.Name)
		}
		if e.Package.Duration <= 0 {
			return domain.Reject(op, domain.ErrInvalidDuration, e.Package.Name)
		}
	case PlanNewRecharge:
		if e.IsGuest {
			return domain.Reject(op, domain.ErrInvalidPayment, "guests cannot buy recharges")
		}
		if e.Package == nil || !e.Package.IsRechargePack {
			return domain.Reject(op, domain.ErrPackageUnavailable, "new recharge plan needs a recharge pack")
		}
		if e.Package.Duration <= 0 {
			return domain.Reject(op, domain.ErrInvalidDuration, e.Package.Name)
		}
	case PlanRecharge:
		if e.IsGuest {
			return domain.Reject(op, domain.ErrInvalidPayment, "guests have no recharges")
		}
		if e.RechargeID == "" {
			return domain.Reject(op, domain.ErrInsufficientBalance, "no recharge selected")
		}
		if e.Duration < 0 {
			return domain.Reject(op, domain.ErrInvalidDuration, "")
		}
		if e.allotment() <= 0 || e.allotment() > e.Balance {
			return domain.Rejectf(op, domain.ErrInsufficientBalance, "%s of %s available", e.allotment(), e.Balance)
		}
	case PlanOpen:
	default:
		return domain.Rejectf(op, domain.ErrInvalidPayment, "unknown plan %q", e.Plan)
	}
	return nil
}

// seat builds the participant for e. The station status decides whether the
// timer starts running or frozen.
func seat(e Entrant, paused bool, now time.Time) domain.Participant {
	p := domain.Participant{
		ID:        e.ID,
		Name:      e.Name,
		IsGuest:   e.IsGuest,
		Status:    domain.ParticipantActive,
		StartTime: now,
	}
	switch e.Plan {
	case PlanWalkIn:
		p.PackageID = e.Package.ID
	case PlanNewRecharge:
		p.PackageID = e.Package.ID
		p.IsNewRecharge = true
	case PlanRecharge:
		p.RechargeID = e.RechargeID
	}

	d := e.allotment()
	if paused {
		p.Status = domain.ParticipantPaused
	}
	if d > 0 {
		p.Allotted = d
		if paused {
			p.StartFrozen(d)
		} else {
			p.Start(now, d)
		}
	}
	return p
}

// planLines returns the bill lines a seated entrant brings with it. Walk-ins
// are itemized only when itemize is set; otherwise the station package covers
// them at checkout.
func planLines(e Entrant, p domain.Participant, itemize bool, now time.Time, newID func() string) []domain.LineItem {
	switch e.Plan {
	case PlanWalkIn:
		if !itemize {
			return nil
		}
		return pricing.ExtensionLines(*e.Package, []domain.Participant{p}, now, newID)
	case PlanNewRecharge:
		return []domain.LineItem{pricing.RechargePurchaseLine(*e.Package, p, now, newID())}
	case PlanRecharge:
		name := e.RechargeName
		if name == "" {
			name = e.RechargeID
		}
		return []domain.LineItem{pricing.RechargeUsageLine(name, p, now, newID())}
	default:
		return nil
	}
}

// sharedWalkIn returns the package every entrant walks in on, or nil when
// plans differ.
func sharedWalkIn(entrants []Entrant) *domain.Package {
	var shared *domain.Package
	for _, e := range entrants {
		if e.Plan != PlanWalkIn {
			return nil
		}
		if shared == nil {
			shared = e.Package
			continue
		}
		if shared.ID != e.Package.ID {
			return nil
		}
	}
	return shared
}

// StartSession seats entrants on an available station and starts their
// timers.
func StartSession(st *domain.Station, entrants []Entrant, now time.Time, newID func() string) error {
	const op = "StartSession"

	if st.Status != domain.StationAvailable {
		return domain.Rejectf(op, domain.ErrStationNotAvailable, "station %s is %s", st.ID, st.Status)
	}
	if len(entrants) == 0 {
		return domain.Reject(op, domain.ErrNoParticipants, "")
	}
	if len(entrants) > st.PlayerLimit() {
		return domain.Rejectf(op, domain.ErrPlayerLimit, "%d players on a %s seating %d", len(entrants), st.Type, st.PlayerLimit())
	}

	entrants = append([]Entrant(nil), entrants...)
	seen := make(map[string]struct{}, len(entrants))
	for i := range entrants {
		if entrants[i].ID == "" && entrants[i].IsGuest {
			entrants[i].ID = newID()
		}
		if _, dup := seen[entrants[i].ID]; dup || entrants[i].ID == "" {
			return domain.Rejectf(op, domain.ErrDuplicateParticipant, "participant %q", entrants[i].ID)
		}
		seen[entrants[i].ID] = struct{}{}
		if err := validateEntrant(op, entrants[i], now); err != nil {
			return err
		}
	}

	shared := sharedWalkIn(entrants)

	members := make([]domain.Participant, 0, len(entrants))
	var lines []domain.LineItem
	for _, e := range entrants {
		p := seat(e, false, now)
		members = append(members, p)
		if e.Plan != PlanWalkIn {
			lines = append(lines, planLines(e, p, false, now, newID)...)
		}
	}
	if shared == nil {
		// Mixed plans: walk-ins are itemized per package so nothing is left
		// for the one-time package charge.
		lines = append(lines, itemizeWalkIns(entrants, members, now, newID)...)
	}

	startedAt := now
	st.Status = domain.StationInUse
	st.StartTime = &startedAt
	st.Members = members
	st.Bill = append(st.Bill, lines...)
	if shared != nil {
		st.PackageID = shared.ID
		st.PackageName = shared.Name
		st.PackagePrice = shared.Price
		st.PackageCapacity = shared.Capacity()
	} else {
		st.PackageName = sessionLabel(entrants)
	}
	Recompute(st, now)
	return nil
}

func itemizeWalkIns(entrants []Entrant, members []domain.Participant, now time.Time, newID func() string) []domain.LineItem {
	var order []string
	byPackage := make(map[string][]domain.Participant)
	pkgs := make(map[string]domain.Package)
	for i, e := range entrants {
		if e.Plan != PlanWalkIn {
			continue
		}
		if _, ok := pkgs[e.Package.ID]; !ok {
			order = append(order, e.Package.ID)
			pkgs[e.Package.ID] = *e.Package
		}
		byPackage[e.Package.ID] = append(byPackage[e.Package.ID], members[i])
	}
	var lines []domain.LineItem
	for _, id := range order {
		lines = append(lines, pricing.ExtensionLines(pkgs[id], byPackage[id], now, newID)...)
	}
	return lines
}

// sessionLabel names a mixed session after its first timed plan.
func sessionLabel(entrants []Entrant) string {
	for _, e := range entrants {
		switch e.Plan {
		case PlanWalkIn, PlanNewRecharge:
			return e.Package.Name
		case PlanRecharge:
			if e.RechargeName != "" {
				return domain.RechargeUsageName(e.RechargeName)
			}
			return domain.RechargeUsageName(e.RechargeID)
		}
	}
	return ""
}

// JoinSession seats one more entrant on a live station. Joining a paused
// station seats the entrant frozen.
func JoinSession(st *domain.Station, e Entrant, now time.Time, newID func() string) error {
	const op = "JoinSession"

	if !st.Live() {
		return domain.Rejectf(op, domain.ErrStationNotActive, "station %s is %s", st.ID, st.Status)
	}
	if len(st.Members) >= st.PlayerLimit() {
		return domain.Rejectf(op, domain.ErrPlayerLimit, "%s seats %d", st.Type, st.PlayerLimit())
	}
	if e.ID == "" && e.IsGuest {
		e.ID = newID()
	}
	if e.ID == "" || st.IndexOf(e.ID) >= 0 {
		return domain.Rejectf(op, domain.ErrDuplicateParticipant, "participant %q", e.ID)
	}
	if err := validateEntrant(op, e, now); err != nil {
		return err
	}

	p := seat(e, st.Status == domain.StationPaused, now)

	// A walk-in on the session package is covered by the one-time charge.
	coveredBySession := e.Plan == PlanWalkIn && deferred(st) && e.Package.ID == st.PackageID
	var lines []domain.LineItem
	if !coveredBySession {
		lines = planLines(e, p, true, now, newID)
		if len(lines) > 0 {
			lines = append(materialize(st, now, newID), lines...)
		}
	}

	st.Members = append(st.Members, p)
	st.Bill = append(st.Bill, lines...)
	Recompute(st, now)
	return nil
}

// deferred reports whether the session package is still waiting to be
// charged once at checkout.
func deferred(st *domain.Station) bool {
	return st.PackageID != "" && st.PackagePrice.IsPositive() && !pricing.Itemized(*st)
}

// materialize itemizes a deferred session package over the current members
// so that later itemized lines do not cancel it.
func materialize(st *domain.Station, now time.Time, newID func() string) []domain.LineItem {
	if !deferred(st) {
		return nil
	}
	return pricing.ExtensionLines(st.SessionPackage(), st.Members, now, newID)
}

// Debit instructs the caller to take played time from a member's recharge.
type Debit struct {
	MemberID   string
	RechargeID string
	Amount     time.Duration
}

// StopResult reports the outcome of stopping one participant.
type StopResult struct {
	Participant domain.Participant
	Played      time.Duration
	// Debit is set when played time must be taken from an existing recharge.
	Debit *Debit
	// AllFinished is set when nobody is left playing; the caller should
	// route to checkout.
	AllFinished bool
}

// StopParticipant finishes one participant and freezes their played time.
// Participants on a new recharge are debited at checkout instead, once the
// pack exists.
func StopParticipant(st *domain.Station, participantID string, now time.Time) (StopResult, error) {
	const op = "StopParticipant"

	if !st.Live() {
		return StopResult{}, domain.Rejectf(op, domain.ErrStationNotActive, "station %s is %s", st.ID, st.Status)
	}
	idx := st.IndexOf(participantID)
	if idx < 0 {
		return StopResult{}, domain.Reject(op, domain.ErrParticipantNotFound, participantID)
	}
	p := &st.Members[idx]
	if p.Finished() {
		return StopResult{}, domain.Reject(op, domain.ErrParticipantFinished, participantID)
	}

	played := p.PlayedAt(now)
	res := StopResult{Played: played}
	if p.UsesRecharge() && !p.IsNewRecharge && !p.Debited {
		res.Debit = &Debit{MemberID: p.ID, RechargeID: p.RechargeID, Amount: played}
		p.Debited = true
	}

	finishedAt := now
	p.Status = domain.ParticipantFinished
	p.Played = played
	p.FinishedAt = &finishedAt
	p.Clear()

	res.Participant = p.Clone()
	res.AllFinished = st.Unfinished() == 0
	Recompute(st, now)
	return res, nil
}
