package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is the loyalty tier of a member.
type Tier string

const (
	TierRed   Tier = "Red"
	TierGreen Tier = "Green"
	TierGold  Tier = "Gold"
)

// Multiplier scales XP earned at settlement.
func (t Tier) Multiplier() decimal.Decimal {
	switch t {
	case TierGreen:
		return decimal.NewFromFloat(1.5)
	case TierGold:
		return decimal.NewFromInt(2)
	default:
		return decimal.NewFromInt(1)
	}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierRed || t == TierGreen || t == TierGold
}

// Recharge is a prepaid time pack owned by a member.
type Recharge struct {
	ID          string          `json:"id"`
	PackageID   string          `json:"package_id"`
	PackageName string          `json:"package_name"`
	Total       time.Duration   `json:"total"`
	Remaining   time.Duration   `json:"remaining"`
	PurchasedAt time.Time       `json:"purchased_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	PricePaid   decimal.Decimal `json:"price_paid"`
}

// Active reports whether the pack is unexpired and has time left.
func (r Recharge) Active(now time.Time) bool {
	return r.ExpiresAt.After(now) && r.Remaining > 0
}

// Member is an enrolled café customer.
type Member struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Tier       Tier            `json:"tier"`
	Level      int64           `json:"level"`
	XP         int64           `json:"xp"`
	Points     int64           `json:"points"`
	TotalSpent decimal.Decimal `json:"total_spent"`
	Recharges  []Recharge      `json:"recharges"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RechargeIndex returns the index of the pack with id, or -1.
func (m Member) RechargeIndex(id string) int {
	for i := range m.Recharges {
		if m.Recharges[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the member.
func (m Member) Clone() Member {
	out := m
	if m.Recharges != nil {
		out.Recharges = make([]Recharge, len(m.Recharges))
		copy(out.Recharges, m.Recharges)
	}
	return out
}
