package http

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/station-engine/internal/application"
	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/session"
	"github.com/example/station-engine/internal/settlement"
)

// Request durations are whole minutes; response durations are seconds.

func minutes(n int64) time.Duration {
	return time.Duration(n) * time.Minute
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ----------------------------- requests -----------------------------

type entrantRequest struct {
	MemberID        string `json:"member_id"`
	GuestName       string `json:"guest_name"`
	Plan            string `json:"plan"`
	PackageID       string `json:"package_id"`
	RechargeID      string `json:"recharge_id"`
	DurationMinutes int64  `json:"duration_minutes"`
}

func (r entrantRequest) toInput() application.EntrantInput {
	return application.EntrantInput{
		MemberID:   strings.TrimSpace(r.MemberID),
		GuestName:  strings.TrimSpace(r.GuestName),
		Plan:       session.PlanKind(strings.TrimSpace(r.Plan)),
		PackageID:  strings.TrimSpace(r.PackageID),
		RechargeID: strings.TrimSpace(r.RechargeID),
		Duration:   minutes(r.DurationMinutes),
	}
}

type startSessionRequest struct {
	Entrants []entrantRequest `json:"entrants"`
}

type registerStationRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type timeChangeRequest struct {
	ParticipantIDs  []string `json:"participant_ids"`
	DurationMinutes int64    `json:"duration_minutes"`
	PackageID       string   `json:"package_id"`
}

type moveRequest struct {
	ToStationID string `json:"to_station_id"`
}

type addItemRequest struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

type discountRequest struct {
	Discount decimal.Decimal `json:"discount"`
}

type paymentRequest struct {
	Method     string          `json:"method"`
	CashAmount decimal.Decimal `json:"cash_amount"`
	UPIAmount  decimal.Decimal `json:"upi_amount"`
	PaidNow    decimal.Decimal `json:"paid_now"`
	PartyID    string          `json:"party_id"`
	PartyName  string          `json:"party_name"`
}

func (r paymentRequest) toInput() application.PaymentInput {
	return application.PaymentInput{
		Method:     domain.PaymentMethod(strings.TrimSpace(r.Method)),
		CashAmount: r.CashAmount,
		UPIAmount:  r.UPIAmount,
		PaidNow:    r.PaidNow,
		PartyID:    strings.TrimSpace(r.PartyID),
		PartyName:  strings.TrimSpace(r.PartyName),
	}
}

type checkoutRequest struct {
	Payment  paymentRequest `json:"payment"`
	CycleTag string         `json:"cycle_tag"`
}

type enrollRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Tier string `json:"tier"`
}

type purchaseRequest struct {
	PackageID string         `json:"package_id"`
	Payment   paymentRequest `json:"payment"`
	SkipBill  bool           `json:"skip_bill"`
	CycleTag  string         `json:"cycle_tag"`
}

type packageRequest struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	DurationMinutes  int64           `json:"duration_minutes"`
	Price            decimal.Decimal `json:"price"`
	PlayerCapacity   int             `json:"player_capacity"`
	ValidityDays     int             `json:"validity_days"`
	IsAddTimePackage bool            `json:"is_add_time_package"`
	IsRechargePack   bool            `json:"is_recharge_pack"`
	IsBoardGamePass  bool            `json:"is_board_game_pass"`
	IsPriorityOffer  bool            `json:"is_priority_offer"`
	// Days are weekday numbers, Sunday = 0; the window is minutes after
	// midnight.
	Days         []int `json:"days"`
	StartMinutes int64 `json:"start_minutes"`
	EndMinutes   int64 `json:"end_minutes"`
}

func (r packageRequest) toInput() application.PackageInput {
	var days []time.Weekday
	for _, d := range r.Days {
		days = append(days, time.Weekday(d))
	}
	return application.PackageInput{
		ID:               strings.TrimSpace(r.ID),
		Name:             strings.TrimSpace(r.Name),
		Duration:         minutes(r.DurationMinutes),
		Price:            r.Price,
		PlayerCapacity:   r.PlayerCapacity,
		ValidityDays:     r.ValidityDays,
		IsAddTimePackage: r.IsAddTimePackage,
		IsRechargePack:   r.IsRechargePack,
		IsBoardGamePass:  r.IsBoardGamePass,
		IsPriorityOffer:  r.IsPriorityOffer,
		Availability: domain.Availability{
			Days:  days,
			Start: minutes(r.StartMinutes),
			End:   minutes(r.EndMinutes),
		},
	}
}

// ----------------------------- responses -----------------------------

type participantDTO struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	IsGuest          bool   `json:"is_guest"`
	Status           string `json:"status"`
	HasTimer         bool   `json:"has_timer"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	PlayedSeconds    int64  `json:"played_seconds"`
}

type lineDTO struct {
	ID        string          `json:"id"`
	ItemID    string          `json:"item_id,omitempty"`
	Name      string          `json:"name"`
	Kind      string          `json:"kind"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Amount    decimal.Decimal `json:"amount"`
	Players   []string        `json:"players,omitempty"`
}

func toLineDTO(l domain.LineItem) lineDTO {
	return lineDTO{
		ID:        l.ID,
		ItemID:    l.ItemID,
		Name:      l.Name,
		Kind:      string(l.EffectiveKind()),
		UnitPrice: l.UnitPrice,
		Quantity:  l.Quantity,
		Amount:    l.Amount(),
		Players:   l.Players,
	}
}

func toLineDTOs(lines []domain.LineItem) []lineDTO {
	out := make([]lineDTO, 0, len(lines))
	for _, l := range lines {
		out = append(out, toLineDTO(l))
	}
	return out
}

type stationDTO struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Type           string           `json:"type"`
	Status         string           `json:"status"`
	PackageName    string           `json:"package_name,omitempty"`
	HasTimer       bool             `json:"has_timer"`
	SoonestSeconds int64            `json:"soonest_seconds"`
	LatestSeconds  int64            `json:"latest_seconds"`
	Expired        bool             `json:"expired"`
	Participants   []participantDTO `json:"participants"`

	// The fields below are only filled for a full station.
	Lines     []lineDTO        `json:"lines,omitempty"`
	Discount  *decimal.Decimal `json:"discount,omitempty"`
	Total     *decimal.Decimal `json:"running_total,omitempty"`
	StartedAt string           `json:"started_at,omitempty"`
	Version   int64            `json:"version,omitempty"`
}

func toViewDTO(v session.View) stationDTO {
	dto := stationDTO{
		ID:             v.StationID,
		Name:           v.Name,
		Type:           string(v.Type),
		Status:         string(v.Status),
		PackageName:    v.PackageName,
		HasTimer:       v.HasTimer,
		SoonestSeconds: seconds(v.Soonest),
		LatestSeconds:  seconds(v.Latest),
		Expired:        v.Expired(),
		Participants:   make([]participantDTO, 0, len(v.Participants)),
	}
	for _, p := range v.Participants {
		dto.Participants = append(dto.Participants, participantDTO{
			ID:               p.ID,
			Name:             p.Name,
			IsGuest:          p.IsGuest,
			Status:           string(p.Status),
			HasTimer:         p.HasTimer,
			RemainingSeconds: seconds(p.Remaining),
			PlayedSeconds:    seconds(p.Played),
		})
	}
	return dto
}

func toViewDTOs(views []session.View) []stationDTO {
	out := make([]stationDTO, 0, len(views))
	for _, v := range views {
		out = append(out, toViewDTO(v))
	}
	return out
}

// toStationDTO renders st as seen at now, with its running bill.
func toStationDTO(st domain.Station, now time.Time) stationDTO {
	dto := toViewDTO(session.Snapshot(st, now))
	totals := settlement.Price(st)
	dto.Lines = toLineDTOs(st.Bill)
	dto.Discount = &totals.Discount
	dto.Total = &totals.Total
	if st.StartTime != nil {
		dto.StartedAt = formatTime(*st.StartTime)
	}
	dto.Version = st.Version
	return dto
}

type rechargeDTO struct {
	ID               string          `json:"id"`
	PackageID        string          `json:"package_id"`
	PackageName      string          `json:"package_name"`
	TotalSeconds     int64           `json:"total_seconds"`
	RemainingSeconds int64           `json:"remaining_seconds"`
	PurchasedAt      string          `json:"purchased_at"`
	ExpiresAt        string          `json:"expires_at"`
	PricePaid        decimal.Decimal `json:"price_paid"`
	Active           bool            `json:"active"`
}

type memberDTO struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Tier       string          `json:"tier"`
	Level      int64           `json:"level"`
	XP         int64           `json:"xp"`
	Points     int64           `json:"points"`
	TotalSpent decimal.Decimal `json:"total_spent"`
	Recharges  []rechargeDTO   `json:"recharges"`
	CreatedAt  string          `json:"created_at"`
}

func toMemberDTO(m domain.Member, now time.Time) memberDTO {
	dto := memberDTO{
		ID:         m.ID,
		Name:       m.Name,
		Tier:       string(m.Tier),
		Level:      m.Level,
		XP:         m.XP,
		Points:     m.Points,
		TotalSpent: m.TotalSpent,
		Recharges:  make([]rechargeDTO, 0, len(m.Recharges)),
		CreatedAt:  formatTime(m.CreatedAt),
	}
	for _, r := range m.Recharges {
		dto.Recharges = append(dto.Recharges, toRechargeDTO(r, now))
	}
	return dto
}

func toRechargeDTO(r domain.Recharge, now time.Time) rechargeDTO {
	return rechargeDTO{
		ID:               r.ID,
		PackageID:        r.PackageID,
		PackageName:      r.PackageName,
		TotalSeconds:     seconds(r.Total),
		RemainingSeconds: seconds(r.Remaining),
		PurchasedAt:      formatTime(r.PurchasedAt),
		ExpiresAt:        formatTime(r.ExpiresAt),
		PricePaid:        r.PricePaid,
		Active:           r.Active(now),
	}
}

type packageDTO struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	DurationMinutes  int64           `json:"duration_minutes"`
	Price            decimal.Decimal `json:"price"`
	PlayerCapacity   int             `json:"player_capacity"`
	ValidityDays     int             `json:"validity_days,omitempty"`
	IsAddTimePackage bool            `json:"is_add_time_package"`
	IsRechargePack   bool            `json:"is_recharge_pack"`
	IsBoardGamePass  bool            `json:"is_board_game_pass"`
	IsPriorityOffer  bool            `json:"is_priority_offer"`
	Days             []int           `json:"days,omitempty"`
	StartMinutes     int64           `json:"start_minutes"`
	EndMinutes       int64           `json:"end_minutes"`
}

func toPackageDTO(p domain.Package) packageDTO {
	dto := packageDTO{
		ID:               p.ID,
		Name:             p.Name,
		DurationMinutes:  int64(p.Duration / time.Minute),
		Price:            p.Price,
		PlayerCapacity:   p.Capacity(),
		ValidityDays:     p.ValidityDays,
		IsAddTimePackage: p.IsAddTimePackage,
		IsRechargePack:   p.IsRechargePack,
		IsBoardGamePass:  p.IsBoardGamePass,
		IsPriorityOffer:  p.IsPriorityOffer,
		StartMinutes:     int64(p.Availability.Start / time.Minute),
		EndMinutes:       int64(p.Availability.End / time.Minute),
	}
	for _, d := range p.Availability.Days {
		dto.Days = append(dto.Days, int(d))
	}
	return dto
}

func toPackageDTOs(packages []domain.Package) []packageDTO {
	out := make([]packageDTO, 0, len(packages))
	for _, p := range packages {
		out = append(out, toPackageDTO(p))
	}
	return out
}

type billMemberDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	IsGuest       bool   `json:"is_guest"`
	PlayedSeconds int64  `json:"played_seconds"`
}

type debtDTO struct {
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	PartyID   string          `json:"party_id,omitempty"`
	PartyName string          `json:"party_name"`
}

type billDTO struct {
	ID                  string          `json:"id"`
	Kind                string          `json:"kind"`
	StationID           string          `json:"station_id,omitempty"`
	StationName         string          `json:"station_name,omitempty"`
	PackageName         string          `json:"package_name,omitempty"`
	Members             []billMemberDTO `json:"members"`
	Items               []lineDTO       `json:"items"`
	InitialPackagePrice decimal.Decimal `json:"initial_package_price"`
	FoodSubtotal        decimal.Decimal `json:"food_subtotal"`
	TimeSubtotal        decimal.Decimal `json:"time_subtotal"`
	Discount            decimal.Decimal `json:"discount"`
	Total               decimal.Decimal `json:"total"`
	PaymentMethod       string          `json:"payment_method"`
	CashAmount          decimal.Decimal `json:"cash_amount"`
	UPIAmount           decimal.Decimal `json:"upi_amount"`
	PaidNow             decimal.Decimal `json:"paid_now"`
	Debt                *debtDTO        `json:"debt,omitempty"`
	CycleTag            string          `json:"cycle_tag,omitempty"`
	CreatedAt           string          `json:"created_at"`
	Digest              string          `json:"digest"`
}

func toBillDTO(b domain.Bill) billDTO {
	dto := billDTO{
		ID:                  b.ID,
		Kind:                string(b.Kind),
		StationID:           b.StationID,
		StationName:         b.StationName,
		PackageName:         b.PackageName,
		Members:             make([]billMemberDTO, 0, len(b.Members)),
		Items:               toLineDTOs(b.Items),
		InitialPackagePrice: b.InitialPackagePrice,
		FoodSubtotal:        b.FoodSubtotal,
		TimeSubtotal:        b.TimeSubtotal,
		Discount:            b.Discount,
		Total:               b.Total,
		PaymentMethod:       string(b.PaymentMethod),
		CashAmount:          b.CashAmount,
		UPIAmount:           b.UPIAmount,
		PaidNow:             b.PaidNow,
		CycleTag:            b.CycleTag,
		CreatedAt:           formatTime(b.CreatedAt),
		Digest:              b.Digest,
	}
	for _, m := range b.Members {
		dto.Members = append(dto.Members, billMemberDTO{
			ID:            m.ID,
			Name:          m.Name,
			IsGuest:       m.IsGuest,
			PlayedSeconds: seconds(m.Played),
		})
	}
	if b.Debt != nil {
		dto.Debt = &debtDTO{
			Kind:      string(b.Debt.Kind),
			Amount:    b.Debt.Amount,
			PartyID:   b.Debt.PartyID,
			PartyName: b.Debt.PartyName,
		}
	}
	return dto
}

func toBillDTOs(bills []domain.Bill) []billDTO {
	out := make([]billDTO, 0, len(bills))
	for _, b := range bills {
		out = append(out, toBillDTO(b))
	}
	return out
}

type settledMemberDTO struct {
	MemberID       string `json:"member_id"`
	Missing        bool   `json:"missing"`
	DebitedSeconds int64  `json:"debited_seconds"`
	XPGranted      int64  `json:"xp_granted"`
	LeveledUp      bool   `json:"leveled_up"`
	PointsGranted  int64  `json:"points_granted"`
}

type checkoutResponse struct {
	Bill    billDTO            `json:"bill"`
	Station stationDTO         `json:"station"`
	Members []settledMemberDTO `json:"members"`
}

func toCheckoutResponse(res application.CheckoutResult, now time.Time) checkoutResponse {
	out := checkoutResponse{
		Bill:    toBillDTO(res.Bill),
		Station: toStationDTO(res.Station, now),
		Members: make([]settledMemberDTO, 0, len(res.Members)),
	}
	for _, m := range res.Members {
		out.Members = append(out.Members, settledMemberDTO{
			MemberID:       m.MemberID,
			Missing:        m.Missing,
			DebitedSeconds: seconds(m.Outcome.Debited),
			XPGranted:      m.Outcome.XPGranted,
			LeveledUp:      m.Outcome.LeveledUp,
			PointsGranted:  m.Outcome.PointsGranted,
		})
	}
	return out
}

type stopResponse struct {
	Station        stationDTO `json:"station"`
	PlayedSeconds  int64      `json:"played_seconds"`
	DebitedSeconds int64      `json:"debited_seconds"`
	AllFinished    bool       `json:"all_finished"`
}

type toggleResponse struct {
	Station stationDTO `json:"station"`
	Paused  bool       `json:"paused"`
}

type balanceResponse struct {
	MemberID      string `json:"member_id"`
	ActiveSeconds int64  `json:"active_seconds"`
}

type purchaseResponse struct {
	Member   memberDTO   `json:"member"`
	Recharge rechargeDTO `json:"recharge"`
	Bill     *billDTO    `json:"bill,omitempty"`
}
