package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LineKind tags the purpose of a bill line.
type LineKind string

const (
	LineFood LineKind = "food"
	// LineTimeExtension is a paid time top-up, one line per capacity instance.
	LineTimeExtension LineKind = "time_extension"
	// LineRechargeUsage marks play drawn from an existing prepaid pack. It is
	// always zero priced.
	LineRechargeUsage LineKind = "recharge_usage"
	// LineRechargePurchase is a pack bought during the session.
	LineRechargePurchase LineKind = "recharge_purchase"
)

// Legacy name prefixes. Lines created before kinds were recorded carry their
// purpose only in the name.
const (
	PrefixTime        = "Time:"
	PrefixRecharge    = "Recharge:"
	PrefixBuyRecharge = "Buy Recharge:"
)

// SessionReserved reports whether the line belongs to session time rather
// than food and extras.
func (k LineKind) SessionReserved() bool {
	return k == LineTimeExtension || k == LineRechargeUsage || k == LineRechargePurchase
}

// KindFromName classifies a legacy line by its name prefix.
func KindFromName(name string) LineKind {
	trimmed := strings.TrimSpace(name)
	switch {
	case strings.HasPrefix(trimmed, PrefixBuyRecharge):
		return LineRechargePurchase
	case strings.HasPrefix(trimmed, PrefixRecharge):
		return LineRechargeUsage
	case strings.HasPrefix(trimmed, PrefixTime):
		return LineTimeExtension
	default:
		return LineFood
	}
}

// TimeExtensionName renders "Time: <pkg> (<names>)".
func TimeExtensionName(pkg string, players []string) string {
	return PrefixTime + " " + pkg + " (" + strings.Join(players, ", ") + ")"
}

// RechargeUsageName renders "Recharge: <pkg>".
func RechargeUsageName(pkg string) string {
	return PrefixRecharge + " " + pkg
}

// RechargePurchaseName renders "Buy Recharge: <pkg> (<name>)".
func RechargePurchaseName(pkg, player string) string {
	return PrefixBuyRecharge + " " + pkg + " (" + player + ")"
}

// LineItem is one entry on a station's running bill.
type LineItem struct {
	ID        string          `json:"id"`
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	Kind      LineKind        `json:"kind"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"added_at"`
	// Players lists the participants a session line was itemized for.
	Players []string `json:"players,omitempty"`
}

// EffectiveKind returns the recorded kind, falling back to the name prefix.
func (l LineItem) EffectiveKind() LineKind {
	if l.Kind != "" {
		return l.Kind
	}
	return KindFromName(l.Name)
}

// Amount is unit price times quantity.
func (l LineItem) Amount() decimal.Decimal {
	qty := l.Quantity
	if qty < 1 {
		qty = 1
	}
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
}

// Clone returns a deep copy of the line.
func (l LineItem) Clone() LineItem {
	out := l
	if l.Players != nil {
		out.Players = append([]string(nil), l.Players...)
	}
	return out
}

// PaymentMethod is how a bill was settled.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentUPI      PaymentMethod = "upi"
	PaymentSplit    PaymentMethod = "split"
	PaymentPending  PaymentMethod = "pending"
	PaymentRecharge PaymentMethod = "recharge"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentUPI, PaymentSplit, PaymentPending, PaymentRecharge:
		return true
	}
	return false
}

// DebtKind distinguishes money owed by the customer from change owed to them.
type DebtKind string

const (
	DebtReceivable DebtKind = "receivable"
	DebtPayable    DebtKind = "payable"
)

// Debt is the outstanding balance of a pending settlement.
type Debt struct {
	Kind      DebtKind        `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	PartyID   string          `json:"party_id,omitempty"`
	PartyName string          `json:"party_name"`
}

// BillKind distinguishes session checkouts from standalone recharge sales.
type BillKind string

const (
	BillSession      BillKind = "session"
	BillRechargeSale BillKind = "recharge_sale"
)

// Bill is the immutable settlement record.
type Bill struct {
	ID          string        `json:"id"`
	Kind        BillKind      `json:"kind"`
	StationID   string        `json:"station_id,omitempty"`
	StationName string        `json:"station_name,omitempty"`
	PackageName string        `json:"package_name,omitempty"`
	Members     []Participant `json:"members"`
	Items       []LineItem    `json:"items"`

	InitialPackagePrice decimal.Decimal `json:"initial_package_price"`
	FoodSubtotal        decimal.Decimal `json:"food_subtotal"`
	TimeSubtotal        decimal.Decimal `json:"time_subtotal"`
	Discount            decimal.Decimal `json:"discount"`
	Total               decimal.Decimal `json:"total"`

	PaymentMethod PaymentMethod   `json:"payment_method"`
	CashAmount    decimal.Decimal `json:"cash_amount"`
	UPIAmount     decimal.Decimal `json:"upi_amount"`
	PaidNow       decimal.Decimal `json:"paid_now"`
	Debt          *Debt           `json:"debt,omitempty"`

	CycleTag  string    `json:"cycle_tag,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	// Digest fingerprints the bill content at creation.
	Digest string `json:"digest"`
}

// Clone returns a deep copy of the bill.
func (b Bill) Clone() Bill {
	out := b
	if b.Members != nil {
		out.Members = make([]Participant, len(b.Members))
		for i, m := range b.Members {
			out.Members[i] = m.Clone()
		}
	}
	if b.Items != nil {
		out.Items = make([]LineItem, len(b.Items))
		for i, l := range b.Items {
			out.Items[i] = l.Clone()
		}
	}
	if b.Debt != nil {
		d := *b.Debt
		out.Debt = &d
	}
	return out
}
