// Package domain holds the café entities shared by the session, ledger,
// pricing and settlement packages.
package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/station-engine/internal/timing"
)

// StationType distinguishes consoles from board-game tables.
type StationType string

const (
	StationConsole StationType = "console"
	StationTable   StationType = "table"
)

// PlayerLimit is the maximum number of participants a station hosts.
func (t StationType) PlayerLimit() int {
	switch t {
	case StationTable:
		return 8
	default:
		return 4
	}
}

// Valid reports whether t is a known station type.
func (t StationType) Valid() bool {
	return t == StationConsole || t == StationTable
}

// StationStatus is the station level session state.
type StationStatus string

const (
	StationAvailable StationStatus = "available"
	StationInUse     StationStatus = "in-use"
	StationPaused    StationStatus = "paused"
)

// ParticipantStatus is the per-participant timer state.
type ParticipantStatus string

const (
	ParticipantActive   ParticipantStatus = "active"
	ParticipantPaused   ParticipantStatus = "paused"
	ParticipantFinished ParticipantStatus = "finished"
)

// PoolRechargeID selects the member's combined active balance instead of a
// specific pack.
const PoolRechargeID = "pool"

// Participant assigns a member or an ad-hoc guest to a station.
type Participant struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	IsGuest   bool              `json:"is_guest"`
	Status    ParticipantStatus `json:"status"`
	StartTime time.Time         `json:"start_time"`
	timing.Timer

	// Allotted is the total play time granted, adjusted by add/reduce.
	Allotted time.Duration `json:"allotted"`
	// Played is frozen when the participant stops.
	Played     time.Duration `json:"played"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	// Debited is set once the played time was taken from a recharge.
	Debited bool `json:"debited"`

	RechargeID    string `json:"recharge_id,omitempty"`
	IsNewRecharge bool   `json:"is_new_recharge"`
	PackageID     string `json:"package_id,omitempty"`
}

// Finished reports whether the participant stopped playing.
func (p Participant) Finished() bool {
	return p.Status == ParticipantFinished
}

// UsesRecharge reports whether played time is settled against a prepaid balance.
func (p Participant) UsesRecharge() bool {
	return !p.IsGuest && (p.IsNewRecharge || p.RechargeID != "")
}

// TotalTime is the session length the participant was granted.
func (p Participant) TotalTime() time.Duration {
	if p.Allotted > 0 {
		return p.Allotted
	}
	if p.EndTime != nil && !p.StartTime.IsZero() {
		if total := p.EndTime.Sub(p.StartTime); total > 0 {
			return total
		}
	}
	return 0
}

// PlayedAt returns how much of the granted time was used at now.
func (p Participant) PlayedAt(now time.Time) time.Duration {
	if p.Finished() {
		return p.Played
	}
	return timing.Played(p.TotalTime(), p.Remaining(now))
}

// Station is a billable console or table hosting at most one session.
type Station struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      StationType   `json:"type"`
	Status    StationStatus `json:"status"`
	StartTime *time.Time    `json:"start_time,omitempty"`
	timing.Timer

	// PackageID, PackageName, PackagePrice and PackageCapacity snapshot the
	// session package billed once at checkout.
	PackageID       string          `json:"package_id,omitempty"`
	PackageName     string          `json:"package_name,omitempty"`
	PackagePrice    decimal.Decimal `json:"package_price"`
	PackageCapacity int             `json:"package_capacity,omitempty"`

	Members  []Participant   `json:"members"`
	Bill     []LineItem      `json:"bill"`
	Discount decimal.Decimal `json:"discount"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Live reports whether a session is running or paused on the station.
func (s Station) Live() bool {
	return s.Status == StationInUse || s.Status == StationPaused
}

// PlayerLimit is the capacity of the station's type.
func (s Station) PlayerLimit() int {
	return s.Type.PlayerLimit()
}

// SessionPackage rebuilds the session package from the station snapshot.
func (s Station) SessionPackage() Package {
	return Package{
		ID:             s.PackageID,
		Name:           s.PackageName,
		Price:          s.PackagePrice,
		PlayerCapacity: s.PackageCapacity,
	}
}

// IndexOf returns the index of the participant with id, or -1.
func (s Station) IndexOf(id string) int {
	for i := range s.Members {
		if s.Members[i].ID == id {
			return i
		}
	}
	return -1
}

// Unfinished returns the number of participants still playing or paused.
func (s Station) Unfinished() int {
	n := 0
	for _, m := range s.Members {
		if !m.Finished() {
			n++
		}
	}
	return n
}

// Reset returns the station to available with no session state.
func (s *Station) Reset() {
	s.Status = StationAvailable
	s.StartTime = nil
	s.Timer.Clear()
	s.PackageID = ""
	s.PackageName = ""
	s.PackagePrice = decimal.Zero
	s.PackageCapacity = 0
	s.Members = nil
	s.Bill = nil
	s.Discount = decimal.Zero
}

// Clone returns a deep copy of the station.
func (s Station) Clone() Station {
	out := s
	out.StartTime = cloneTime(s.StartTime)
	out.Timer = cloneTimer(s.Timer)
	if s.Members != nil {
		out.Members = make([]Participant, len(s.Members))
		for i, m := range s.Members {
			out.Members[i] = m.Clone()
		}
	}
	if s.Bill != nil {
		out.Bill = make([]LineItem, len(s.Bill))
		for i, l := range s.Bill {
			out.Bill[i] = l.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the participant.
func (p Participant) Clone() Participant {
	out := p
	out.Timer = cloneTimer(p.Timer)
	out.FinishedAt = cloneTime(p.FinishedAt)
	return out
}

func cloneTimer(t timing.Timer) timing.Timer {
	out := timing.Timer{EndTime: cloneTime(t.EndTime)}
	if t.RemainingOnPause != nil {
		d := *t.RemainingOnPause
		out.RemainingOnPause = &d
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
