// Package timing derives remaining and played time from absolute timestamps.
//
// Nothing ticks: a Timer stores either the instant it runs out (EndTime) or
// the remainder frozen at the moment it was paused (RemainingOnPause), and
// every read recomputes against the caller supplied wall clock.
package timing

import "time"

// Timer is the time state shared by stations and session participants.
type Timer struct {
	EndTime          *time.Time     `json:"end_time,omitempty"`
	RemainingOnPause *time.Duration `json:"remaining_on_pause,omitempty"`
}

// Running reports whether the timer counts down against the wall clock.
func (t Timer) Running() bool {
	return t.EndTime != nil && t.RemainingOnPause == nil
}

// Frozen reports whether the timer holds a paused remainder.
func (t Timer) Frozen() bool {
	return t.RemainingOnPause != nil
}

// HasTimer reports whether either time source is set. Open orders (food or
// walk-in without a plan) have neither.
func (t Timer) HasTimer() bool {
	return t.EndTime != nil || t.RemainingOnPause != nil
}

// Remaining returns the time left at now. A frozen remainder wins over an
// end time; a running timer never reports less than zero.
func (t Timer) Remaining(now time.Time) time.Duration {
	if t.RemainingOnPause != nil {
		if *t.RemainingOnPause < 0 {
			return 0
		}
		return *t.RemainingOnPause
	}
	if t.EndTime != nil {
		left := t.EndTime.Sub(now)
		if left < 0 {
			return 0
		}
		return left
	}
	return 0
}

// Pause freezes the remaining time and clears the end time. Pausing a timer
// without a time source leaves it untouched.
func (t *Timer) Pause(now time.Time) {
	if !t.HasTimer() {
		return
	}
	left := t.Remaining(now)
	t.RemainingOnPause = &left
	t.EndTime = nil
}

// Resume schedules a fresh end time from the frozen remainder.
func (t *Timer) Resume(now time.Time) {
	if t.RemainingOnPause == nil {
		return
	}
	end := now.Add(*t.RemainingOnPause)
	t.EndTime = &end
	t.RemainingOnPause = nil
}

// Start begins a running countdown of d from now.
func (t *Timer) Start(now time.Time, d time.Duration) {
	if d < 0 {
		d = 0
	}
	end := now.Add(d)
	t.EndTime = &end
	t.RemainingOnPause = nil
}

// StartFrozen seeds a paused timer holding d.
func (t *Timer) StartFrozen(d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.RemainingOnPause = &d
	t.EndTime = nil
}

// Clear removes both time sources.
func (t *Timer) Clear() {
	t.EndTime = nil
	t.RemainingOnPause = nil
}

// Extend adds d to whichever source is authoritative. A timer without a
// source starts running from now.
func (t *Timer) Extend(d time.Duration, now time.Time) {
	switch {
	case t.RemainingOnPause != nil:
		next := *t.RemainingOnPause + d
		t.RemainingOnPause = &next
	case t.EndTime != nil:
		// An end time already in the past counts from now, not from the old end.
		base := *t.EndTime
		if base.Before(now) {
			base = now
		}
		next := base.Add(d)
		t.EndTime = &next
	default:
		t.Start(now, d)
	}
}

// Reduce removes up to d from the timer and returns the amount actually
// removed. The remaining time never drops below zero.
func (t *Timer) Reduce(d time.Duration, now time.Time) time.Duration {
	if d <= 0 || !t.HasTimer() {
		return 0
	}
	left := t.Remaining(now)
	cut := d
	if cut > left {
		cut = left
	}
	switch {
	case t.RemainingOnPause != nil:
		next := left - cut
		t.RemainingOnPause = &next
	default:
		next := now.Add(left - cut)
		t.EndTime = &next
	}
	return cut
}

// Played returns allotted minus remaining, clamped to [0, allotted].
func Played(allotted, remaining time.Duration) time.Duration {
	if allotted <= 0 {
		return 0
	}
	played := allotted - remaining
	if played < 0 {
		return 0
	}
	if played > allotted {
		return allotted
	}
	return played
}

// Aggregate summarises a set of timers. Soonest is the smallest remaining
// time and drives UI urgency; Latest is the largest and drives the station
// end time. ok is false when no timer in the set has a time source.
func Aggregate(timers []Timer, now time.Time) (soonest, latest time.Duration, ok bool) {
	for _, t := range timers {
		if !t.HasTimer() {
			continue
		}
		left := t.Remaining(now)
		if !ok {
			soonest, latest, ok = left, left, true
			continue
		}
		if left < soonest {
			soonest = left
		}
		if left > latest {
			latest = left
		}
	}
	return soonest, latest, ok
}
