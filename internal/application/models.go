package application

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/session"
	"github.com/example/station-engine/internal/settlement"
)

// EntrantInput identifies a member, or names a guest, and the plan funding
// their play time.
type EntrantInput struct {
	MemberID  string           `json:"member_id"`
	GuestName string           `json:"guest_name"`
	Plan      session.PlanKind `json:"plan" validate:"required,oneof=walk_in recharge new_recharge open"`
	// PackageID backs walk-in and new recharge plans.
	PackageID string `json:"package_id"`
	// RechargeID selects a pack for recharge plans; empty uses the pool.
	RechargeID string        `json:"recharge_id"`
	Duration   time.Duration `json:"duration" validate:"gte=0"`
}

// StartSessionParams seats the first players on an available station.
type StartSessionParams struct {
	StationID string         `json:"station_id" validate:"required"`
	Entrants  []EntrantInput `json:"entrants" validate:"required,min=1,dive"`
}

// JoinSessionParams seats one more player on a live station.
type JoinSessionParams struct {
	StationID string       `json:"station_id" validate:"required"`
	Entrant   EntrantInput `json:"entrant"`
}

// ParticipantParams addresses one participant of a station.
type ParticipantParams struct {
	StationID     string `json:"station_id" validate:"required"`
	ParticipantID string `json:"participant_id" validate:"required"`
}

// TimeChangeParams adds or removes time for some participants. A package
// bills the extension and supplies the duration when Duration is zero.
type TimeChangeParams struct {
	StationID      string        `json:"station_id" validate:"required"`
	ParticipantIDs []string      `json:"participant_ids" validate:"required,min=1,dive,required"`
	Duration       time.Duration `json:"duration" validate:"gte=0"`
	PackageID      string        `json:"package_id"`
}

// MoveSessionParams moves a live session to another station.
type MoveSessionParams struct {
	FromStationID string `json:"from_station_id" validate:"required"`
	ToStationID   string `json:"to_station_id" validate:"required,nefield=FromStationID"`
}

// AddItemParams appends a food or extras line.
type AddItemParams struct {
	StationID string          `json:"station_id" validate:"required"`
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
}

// RemoveItemParams drops a bill line.
type RemoveItemParams struct {
	StationID string `json:"station_id" validate:"required"`
	LineID    string `json:"line_id" validate:"required"`
}

// SetDiscountParams records the checkout discount.
type SetDiscountParams struct {
	StationID string          `json:"station_id" validate:"required"`
	Discount  decimal.Decimal `json:"discount"`
}

// PaymentInput describes how a bill is paid.
type PaymentInput struct {
	Method     domain.PaymentMethod `json:"method" validate:"required,oneof=cash upi split pending recharge"`
	CashAmount decimal.Decimal      `json:"cash_amount"`
	UPIAmount  decimal.Decimal      `json:"upi_amount"`
	PaidNow    decimal.Decimal      `json:"paid_now"`
	PartyID    string               `json:"party_id"`
	PartyName  string               `json:"party_name"`
}

func (p PaymentInput) payment() settlement.Payment {
	return settlement.Payment{
		Method:     p.Method,
		CashAmount: p.CashAmount,
		UPIAmount:  p.UPIAmount,
		PaidNow:    p.PaidNow,
		PartyID:    p.PartyID,
		PartyName:  p.PartyName,
	}
}

func (p PaymentInput) check(vErr *ValidationError) {
	checkAmount(vErr, "payment.cash_amount", p.CashAmount)
	checkAmount(vErr, "payment.upi_amount", p.UPIAmount)
	checkAmount(vErr, "payment.paid_now", p.PaidNow)
}

// CheckoutParams settles a live station.
type CheckoutParams struct {
	StationID string       `json:"station_id" validate:"required"`
	Payment   PaymentInput `json:"payment"`
	CycleTag  string       `json:"cycle_tag"`
}

// MemberSettlement reports what checkout did to one member.
type MemberSettlement struct {
	MemberID string             `json:"member_id"`
	Outcome  settlement.Outcome `json:"outcome"`
	// Missing is set when the member record no longer exists.
	Missing bool `json:"missing"`
}

// CheckoutResult is the sealed bill plus the member side effects.
type CheckoutResult struct {
	Bill    domain.Bill        `json:"bill"`
	Station domain.Station     `json:"station"`
	Members []MemberSettlement `json:"members"`
}

// StopResult is the station after a participant stopped.
type StopResult struct {
	Station     domain.Station `json:"station"`
	Played      time.Duration  `json:"played"`
	Debited     time.Duration  `json:"debited"`
	AllFinished bool           `json:"all_finished"`
}

// EnrollParams registers a member. An empty tier enrolls at Red.
type EnrollParams struct {
	ID   string      `json:"id"`
	Name string      `json:"name" validate:"required"`
	Tier domain.Tier `json:"tier" validate:"omitempty,oneof=Red Green Gold"`
}

// PurchaseRechargeParams sells a recharge pack outside a session. SkipBill
// records the pack and its spend without a sale bill.
type PurchaseRechargeParams struct {
	MemberID  string       `json:"member_id" validate:"required"`
	PackageID string       `json:"package_id" validate:"required"`
	Payment   PaymentInput `json:"payment"`
	SkipBill  bool         `json:"skip_bill"`
	CycleTag  string       `json:"cycle_tag"`
}

// PurchaseResult is the member after the purchase and the sale bill, if any.
type PurchaseResult struct {
	Member   domain.Member   `json:"member"`
	Recharge domain.Recharge `json:"recharge"`
	Bill     *domain.Bill    `json:"bill,omitempty"`
}

// MemberBalance summarizes a member's prepaid time.
type MemberBalance struct {
	MemberID string        `json:"member_id"`
	Active   time.Duration `json:"active"`
}

// RegisterStationParams adds a station to the floor.
type RegisterStationParams struct {
	ID   string             `json:"id" validate:"required"`
	Name string             `json:"name" validate:"required"`
	Type domain.StationType `json:"type" validate:"required,oneof=console table"`
}

// PackageInput creates or replaces a package.
type PackageInput struct {
	ID               string              `json:"id" validate:"required"`
	Name             string              `json:"name" validate:"required"`
	Duration         time.Duration       `json:"duration" validate:"gte=0"`
	Price            decimal.Decimal     `json:"price"`
	PlayerCapacity   int                 `json:"player_capacity" validate:"gte=0"`
	ValidityDays     int                 `json:"validity_days" validate:"gte=0"`
	IsAddTimePackage bool                `json:"is_add_time_package"`
	IsRechargePack   bool                `json:"is_recharge_pack"`
	IsBoardGamePass  bool                `json:"is_board_game_pass"`
	IsPriorityOffer  bool                `json:"is_priority_offer"`
	Availability     domain.Availability `json:"availability"`
}
