package session

import (
	"time"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/pricing"
	"github.com/example/station-engine/internal/timing"
)

// Recompute refreshes the station timer from its unfinished participants:
// the station ends when its latest participant does. A paused station keeps
// that latest remainder frozen instead.
func Recompute(st *domain.Station, now time.Time) {
	timers := make([]timing.Timer, 0, len(st.Members))
	for _, m := range st.Members {
		if m.Finished() {
			continue
		}
		timers = append(timers, m.Timer)
	}

	st.Clear()
	_, latest, ok := timing.Aggregate(timers, now)
	if !ok {
		return
	}
	if st.Status == domain.StationPaused {
		st.StartFrozen(latest)
		return
	}

	var end time.Time
	for _, t := range timers {
		var candidate time.Time
		switch {
		case t.Frozen():
			candidate = now.Add(*t.RemainingOnPause)
		case t.Running():
			candidate = *t.EndTime
		default:
			continue
		}
		if candidate.After(end) {
			end = candidate
		}
	}
	st.EndTime = &end
}

// ToggleStationTimer pauses a running station or resumes a paused one and
// reports whether the station is paused afterwards. Pausing freezes every
// unfinished participant; resuming restarts each from its frozen remainder.
func ToggleStationTimer(st *domain.Station, now time.Time) (bool, error) {
	const op = "ToggleStationTimer"

	switch st.Status {
	case domain.StationInUse:
		for i := range st.Members {
			p := &st.Members[i]
			if p.Finished() {
				continue
			}
			p.Pause(now)
			p.Status = domain.ParticipantPaused
		}
		st.Status = domain.StationPaused
		Recompute(st, now)
		return true, nil
	case domain.StationPaused:
		for i := range st.Members {
			p := &st.Members[i]
			if p.Finished() {
				continue
			}
			p.Resume(now)
			p.Status = domain.ParticipantActive
		}
		st.Status = domain.StationInUse
		Recompute(st, now)
		return false, nil
	default:
		return false, domain.Rejectf(op, domain.ErrStationNotActive, "station %s is %s", st.ID, st.Status)
	}
}

// TogglePlayerTimer pauses or resumes one participant and reports whether
// the participant is paused afterwards. It is rejected while the whole
// station is paused.
func TogglePlayerTimer(st *domain.Station, participantID string, now time.Time) (bool, error) {
	const op = "TogglePlayerTimer"

	switch st.Status {
	case domain.StationPaused:
		return false, domain.Reject(op, domain.ErrStationPaused, "resume the station first")
	case domain.StationInUse:
	default:
		return false, domain.Rejectf(op, domain.ErrStationNotActive, "station %s is %s", st.ID, st.Status)
	}

	idx := st.IndexOf(participantID)
	if idx < 0 {
		return false, domain.Reject(op, domain.ErrParticipantNotFound, participantID)
	}
	p := &st.Members[idx]
	if p.Finished() {
		return false, domain.Reject(op, domain.ErrParticipantFinished, participantID)
	}
	if !p.HasTimer() {
		return false, domain.Reject(op, domain.ErrNoTimer, participantID)
	}

	paused := p.Status != domain.ParticipantPaused
	if paused {
		p.Pause(now)
		p.Status = domain.ParticipantPaused
	} else {
		p.Resume(now)
		p.Status = domain.ParticipantActive
	}
	Recompute(st, now)
	return paused, nil
}

// TimeChange selects participants and the amount of time to add or remove.
type TimeChange struct {
	ParticipantIDs []string
	Duration       time.Duration
	// Package bills an extension. Its duration is used when Duration is zero.
	Package *domain.Package
}

func (c TimeChange) amount() time.Duration {
	if c.Duration == 0 && c.Package != nil {
		return c.Package.Duration
	}
	return c.Duration
}

func resolve(op string, st *domain.Station, ids []string) ([]int, error) {
	if !st.Live() {
		return nil, domain.Rejectf(op, domain.ErrStationNotActive, "station %s is %s", st.ID, st.Status)
	}
	if len(ids) == 0 {
		return nil, domain.Reject(op, domain.ErrNoParticipants, "")
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		idx := st.IndexOf(id)
		if idx < 0 {
			return nil, domain.Reject(op, domain.ErrParticipantNotFound, id)
		}
		out = append(out, idx)
	}
	return out, nil
}

// AddTime extends the selected participants. A finished participant is
// reactivated with a fresh timer that starts now. When the change names a
// priced package the extension is billed per capacity instance.
func AddTime(st *domain.Station, change TimeChange, now time.Time, newID func() string) error {
	const op = "AddTime"

	d := change.amount()
	if d <= 0 {
		return domain.Reject(op, domain.ErrInvalidDuration, d.String())
	}
	idxs, err := resolve(op, st, change.ParticipantIDs)
	if err != nil {
		return err
	}
	if change.Package != nil && !change.Package.AvailableAt(now) {
		return domain.Rejectf(op, domain.ErrPackageUnavailable, "%s is not offered now", change.Package.Name)
	}

	paused := st.Status == domain.StationPaused
	var billed []domain.Participant
	for _, idx := range idxs {
		p := &st.Members[idx]
		switch {
		case p.Finished():
			reactivate(p, d, paused, now)
		case !p.HasTimer() && paused:
			p.StartFrozen(d)
			p.Allotted += d
		default:
			p.Extend(d, now)
			p.Allotted += d
		}
		billed = append(billed, *p)
	}

	if change.Package != nil && change.Package.Price.IsPositive() {
		lines := materialize(st, now, newID)
		lines = append(lines, pricing.ExtensionLines(*change.Package, billed, now, newID)...)
		st.Bill = append(st.Bill, lines...)
	}
	Recompute(st, now)
	return nil
}

// reactivate restarts a finished participant from now. Time already debited
// is settled; time not yet debited carries into the new allotment so that
// checkout still charges it.
func reactivate(p *domain.Participant, d time.Duration, paused bool, now time.Time) {
	if p.Debited {
		p.Allotted = d
	} else {
		p.Allotted = p.Played + d
	}
	p.Played = 0
	p.Debited = false
	p.FinishedAt = nil
	p.StartTime = now
	if paused {
		p.Status = domain.ParticipantPaused
		p.StartFrozen(d)
		return
	}
	p.Status = domain.ParticipantActive
	p.Start(now, d)
}

// ReduceTime cuts the selected participants' remaining time, never below
// zero.
func ReduceTime(st *domain.Station, change TimeChange, now time.Time) error {
	const op = "ReduceTime"

	d := change.amount()
	if d <= 0 {
		return domain.Reject(op, domain.ErrInvalidDuration, d.String())
	}
	idxs, err := resolve(op, st, change.ParticipantIDs)
	if err != nil {
		return err
	}
	for _, idx := range idxs {
		p := st.Members[idx]
		if p.Finished() {
			return domain.Reject(op, domain.ErrParticipantFinished, p.ID)
		}
		if !p.HasTimer() {
			return domain.Reject(op, domain.ErrNoTimer, p.ID)
		}
	}

	for _, idx := range idxs {
		p := &st.Members[idx]
		cut := p.Reduce(d, now)
		p.Allotted = max(0, p.Allotted-cut)
	}
	Recompute(st, now)
	return nil
}

// MoveSession transfers the live session on src to the available station
// dst and resets src.
func MoveSession(src, dst *domain.Station, now time.Time) error {
	const op = "MoveSession"

	if src.ID == dst.ID {
		return domain.Reject(op, domain.ErrStationNotAvailable, "cannot move a session onto itself")
	}
	if !src.Live() {
		return domain.Rejectf(op, domain.ErrStationNotActive, "station %s is %s", src.ID, src.Status)
	}
	if dst.Status != domain.StationAvailable {
		return domain.Rejectf(op, domain.ErrStationNotAvailable, "station %s is %s", dst.ID, dst.Status)
	}
	if len(src.Members) > dst.PlayerLimit() {
		return domain.Rejectf(op, domain.ErrPlayerLimit, "%d players on a %s seating %d", len(src.Members), dst.Type, dst.PlayerLimit())
	}

	moved := src.Clone()
	dst.Status = moved.Status
	dst.StartTime = moved.StartTime
	dst.PackageID = moved.PackageID
	dst.PackageName = moved.PackageName
	dst.PackagePrice = moved.PackagePrice
	dst.PackageCapacity = moved.PackageCapacity
	dst.Members = moved.Members
	dst.Bill = moved.Bill
	dst.Discount = moved.Discount
	Recompute(dst, now)

	src.Reset()
	return nil
}
