// Package events carries the notifications emitted after a state change has
// been committed: session transitions, created bills, member updates and
// expired timers.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/station-engine/internal/domain"
)

// Kind names an event.
type Kind string

const (
	KindSessionTransitioned Kind = "session.transitioned"
	KindBillCreated         Kind = "bill.created"
	KindMemberUpdated       Kind = "member.updated"
	KindTimerExpired        Kind = "timer.expired"
)

// Event is the payload handed to publishers. Fields that do not apply to a
// kind are left empty.
type Event struct {
	Kind      Kind                 `json:"kind"`
	Operation string               `json:"operation,omitempty"`
	StationID string               `json:"station_id,omitempty"`
	From      domain.StationStatus `json:"from,omitempty"`
	To        domain.StationStatus `json:"to,omitempty"`
	MemberID  string               `json:"member_id,omitempty"`
	BillID    string               `json:"bill_id,omitempty"`
	Total     *decimal.Decimal     `json:"total,omitempty"`
	CycleTag  string               `json:"cycle_tag,omitempty"`
	At        time.Time            `json:"at"`
}

// SessionTransitioned reports that op moved a station between statuses.
func SessionTransitioned(op string, before, after domain.Station, at time.Time) Event {
	return Event{
		Kind:      KindSessionTransitioned,
		Operation: op,
		StationID: after.ID,
		From:      before.Status,
		To:        after.Status,
		At:        at,
	}
}

// BillCreated reports a stored bill.
func BillCreated(bill domain.Bill) Event {
	total := bill.Total
	return Event{
		Kind:      KindBillCreated,
		StationID: bill.StationID,
		BillID:    bill.ID,
		Total:     &total,
		CycleTag:  bill.CycleTag,
		At:        bill.CreatedAt,
	}
}

// MemberUpdated reports that op changed a member's balance or rewards.
func MemberUpdated(op, memberID string, at time.Time) Event {
	return Event{Kind: KindMemberUpdated, Operation: op, MemberID: memberID, At: at}
}

// TimerExpired reports a station whose timed participants have all run out.
func TimerExpired(stationID string, at time.Time) Event {
	return Event{Kind: KindTimerExpired, StationID: stationID, At: at}
}

// Publisher delivers events to a downstream collaborator.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Nop discards events.
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
