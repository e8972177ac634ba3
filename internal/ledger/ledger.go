// Package ledger tracks and depletes a member's prepaid recharge packs.
//
// Every function mutates the member value it is handed and nothing else, so
// callers apply them inside a single read-modify-write of the member record.
package ledger

import (
	"sort"
	"time"

	"github.com/example/station-engine/internal/domain"
)

// ActiveBalance sums the remaining time of every active pack.
func ActiveBalance(m domain.Member, now time.Time) time.Duration {
	var total time.Duration
	for _, r := range m.Recharges {
		if r.Active(now) {
			total += r.Remaining
		}
	}
	return total
}

// Available returns the balance a participant plan can draw on: the pool
// balance for PoolRechargeID, otherwise the remainder of that one pack when
// it is active.
func Available(m domain.Member, rechargeID string, now time.Time) time.Duration {
	if rechargeID == domain.PoolRechargeID {
		return ActiveBalance(m, now)
	}
	idx := m.RechargeIndex(rechargeID)
	if idx < 0 || !m.Recharges[idx].Active(now) {
		return 0
	}
	return m.Recharges[idx].Remaining
}

// ConsumeSpecific reduces one pack by d, floored at zero. It reports the
// amount taken and whether the pack exists; a missing pack is a no-op.
func ConsumeSpecific(m *domain.Member, rechargeID string, d time.Duration) (time.Duration, bool) {
	idx := m.RechargeIndex(rechargeID)
	if idx < 0 {
		return 0, false
	}
	if d <= 0 {
		return 0, true
	}
	r := &m.Recharges[idx]
	take := min(d, r.Remaining)
	r.Remaining -= take
	return take, true
}

// ConsumePool drains active packs soonest-expiring first until d is covered
// or the balance runs out. It returns the amount actually taken.
func ConsumePool(m *domain.Member, d time.Duration, now time.Time) time.Duration {
	if d <= 0 {
		return 0
	}

	active := make([]int, 0, len(m.Recharges))
	for i, r := range m.Recharges {
		if r.Active(now) {
			active = append(active, i)
		}
	}
	sort.SliceStable(active, func(a, b int) bool {
		return m.Recharges[active[a]].ExpiresAt.Before(m.Recharges[active[b]].ExpiresAt)
	})

	left := d
	for _, idx := range active {
		if left <= 0 {
			break
		}
		r := &m.Recharges[idx]
		take := min(r.Remaining, left)
		r.Remaining -= take
		left -= take
	}
	return d - left
}

// Debit takes d from the participant's chosen source. The second result is
// false when a specific pack no longer exists.
func Debit(m *domain.Member, rechargeID string, d time.Duration, now time.Time) (time.Duration, bool) {
	if rechargeID == domain.PoolRechargeID {
		return ConsumePool(m, d, now), true
	}
	return ConsumeSpecific(m, rechargeID, d)
}

// Purchase appends a fresh pack bought from pkg and counts its price toward
// the member's total spend. Whether a sale bill is written is up to the
// caller.
func Purchase(m *domain.Member, pkg domain.Package, now time.Time, id string) domain.Recharge {
	r := domain.Recharge{
		ID:          id,
		PackageID:   pkg.ID,
		PackageName: pkg.Name,
		Total:       pkg.Duration,
		Remaining:   pkg.Duration,
		PurchasedAt: now,
		ExpiresAt:   now.AddDate(0, 0, pkg.ValidityDays),
		PricePaid:   pkg.Price,
	}
	m.Recharges = append(m.Recharges, r)
	m.TotalSpent = m.TotalSpent.Add(pkg.Price)
	return r
}
