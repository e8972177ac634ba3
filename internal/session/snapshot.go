package session

import (
	"time"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/timing"
)

// ParticipantView is the derived time state of one participant at a given
// instant.
type ParticipantView struct {
	ID        string                   `json:"id"`
	Name      string                   `json:"name"`
	IsGuest   bool                     `json:"is_guest"`
	Status    domain.ParticipantStatus `json:"status"`
	HasTimer  bool                     `json:"has_timer"`
	Remaining time.Duration            `json:"remaining"`
	Played    time.Duration            `json:"played"`
}

// View is a read-only summary of a station for display.
type View struct {
	StationID   string               `json:"station_id"`
	Name        string               `json:"name"`
	Type        domain.StationType   `json:"type"`
	Status      domain.StationStatus `json:"status"`
	PackageName string               `json:"package_name,omitempty"`
	// Soonest is the smallest remaining time among timed participants.
	Soonest time.Duration `json:"soonest"`
	// Latest is the largest remaining time and matches the station end.
	Latest       time.Duration     `json:"latest"`
	HasTimer     bool              `json:"has_timer"`
	Participants []ParticipantView `json:"participants"`
	Lines        int               `json:"lines"`
}

// Expired reports whether every timed participant of a running station has
// run out.
func (v View) Expired() bool {
	return v.Status == domain.StationInUse && v.HasTimer && v.Latest == 0
}

// Snapshot derives the view of st at now.
func Snapshot(st domain.Station, now time.Time) View {
	v := View{
		StationID:    st.ID,
		Name:         st.Name,
		Type:         st.Type,
		Status:       st.Status,
		PackageName:  st.PackageName,
		Participants: make([]ParticipantView, 0, len(st.Members)),
		Lines:        len(st.Bill),
	}

	timers := make([]timing.Timer, 0, len(st.Members))
	for _, m := range st.Members {
		pv := ParticipantView{
			ID:       m.ID,
			Name:     m.Name,
			IsGuest:  m.IsGuest,
			Status:   m.Status,
			HasTimer: m.HasTimer(),
			Played:   m.PlayedAt(now),
		}
		if !m.Finished() {
			pv.Remaining = m.Remaining(now)
			timers = append(timers, m.Timer)
		}
		v.Participants = append(v.Participants, pv)
	}
	v.Soonest, v.Latest, v.HasTimer = timing.Aggregate(timers, now)
	return v
}
