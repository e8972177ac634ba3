package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Package is a sellable block of play time.
type Package struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Duration       time.Duration   `json:"duration"`
	Price          decimal.Decimal `json:"price"`
	PlayerCapacity int             `json:"player_capacity"`
	// ValidityDays applies to recharge packs only.
	ValidityDays int `json:"validity_days"`

	IsAddTimePackage bool `json:"is_add_time_package"`
	IsRechargePack   bool `json:"is_recharge_pack"`
	IsBoardGamePass  bool `json:"is_board_game_pass"`
	IsPriorityOffer  bool `json:"is_priority_offer"`

	Availability Availability `json:"availability"`
}

// Capacity is the number of players one billed instance covers.
func (p Package) Capacity() int {
	if p.PlayerCapacity < 1 {
		return 1
	}
	return p.PlayerCapacity
}

// AvailableAt reports whether the package can be sold at t.
func (p Package) AvailableAt(t time.Time) bool {
	return p.Availability.Allows(t)
}

// Availability restricts a package to weekdays and a daily window. Start and
// End are offsets from local midnight; equal offsets mean all day. A window
// whose End precedes Start runs past midnight and belongs to the day it
// opened on.
type Availability struct {
	Days  []time.Weekday `json:"days,omitempty"`
	Start time.Duration  `json:"start"`
	End   time.Duration  `json:"end"`
}

// Allows reports whether t falls inside the window.
func (a Availability) Allows(t time.Time) bool {
	offset := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
	day := t.Weekday()

	switch {
	case a.Start == a.End:
		return a.dayAllowed(day)
	case a.Start < a.End:
		return a.dayAllowed(day) && offset >= a.Start && offset < a.End
	case offset >= a.Start:
		return a.dayAllowed(day)
	case offset < a.End:
		return a.dayAllowed((day + 6) % 7)
	default:
		return false
	}
}

func (a Availability) dayAllowed(day time.Weekday) bool {
	if len(a.Days) == 0 {
		return true
	}
	for _, d := range a.Days {
		if d == day {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the package.
func (p Package) Clone() Package {
	out := p
	if p.Availability.Days != nil {
		out.Availability.Days = append([]time.Weekday(nil), p.Availability.Days...)
	}
	return out
}
