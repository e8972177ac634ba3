// Package pricing prices package usage by player capacity and keeps a
// session's package from being charged twice.
package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/station-engine/internal/domain"
)

// InstanceCount is the number of billed instances n players need at the
// given capacity.
func InstanceCount(n, capacity int) int {
	if n <= 0 {
		return 0
	}
	if capacity < 1 {
		capacity = 1
	}
	return (n + capacity - 1) / capacity
}

// GroupByCapacity partitions players, in order, into instances of at most
// capacity each.
func GroupByCapacity[T any](players []T, capacity int) [][]T {
	if capacity < 1 {
		capacity = 1
	}
	groups := make([][]T, 0, InstanceCount(len(players), capacity))
	for start := 0; start < len(players); start += capacity {
		end := min(start+capacity, len(players))
		groups = append(groups, players[start:end:end])
	}
	return groups
}

// InitialPackagePrice is the one-time charge for the station's session
// package: its price per capacity instance over all participants. It is zero
// when the package was already paid for or itemized on the bill.
func InitialPackagePrice(st domain.Station) decimal.Decimal {
	if st.PackageName == "" || len(st.Members) == 0 {
		return decimal.Zero
	}
	if strings.HasPrefix(st.PackageName, domain.PrefixRecharge) {
		return decimal.Zero
	}
	if Itemized(st) {
		return decimal.Zero
	}
	pkg := st.SessionPackage()
	instances := InstanceCount(len(st.Members), pkg.Capacity())
	return pkg.Price.Mul(decimal.NewFromInt(int64(instances)))
}

// Itemized reports whether any bill line already accounts for session time.
func Itemized(st domain.Station) bool {
	for _, line := range st.Bill {
		if line.EffectiveKind().SessionReserved() {
			return true
		}
		if line.Name == st.PackageName {
			return true
		}
		if namesMember(line.Name, st.Members) {
			return true
		}
	}
	return false
}

// namesMember reports whether a participant's name appears in the line's
// parenthesized player list.
func namesMember(name string, members []domain.Participant) bool {
	open := strings.LastIndex(name, "(")
	if open < 0 {
		return false
	}
	list := strings.TrimSuffix(strings.TrimSpace(name[open+1:]), ")")
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		for _, m := range members {
			if m.Name == part {
				return true
			}
		}
	}
	return false
}

// ExtensionLines bills a time top-up of pkg for players, one line per
// capacity instance.
func ExtensionLines(pkg domain.Package, players []domain.Participant, now time.Time, newID func() string) []domain.LineItem {
	groups := GroupByCapacity(players, pkg.Capacity())
	lines := make([]domain.LineItem, 0, len(groups))
	for _, group := range groups {
		names := make([]string, len(group))
		ids := make([]string, len(group))
		for i, p := range group {
			names[i] = p.Name
			ids[i] = p.ID
		}
		lines = append(lines, domain.LineItem{
			ID:        newID(),
			ItemID:    pkg.ID,
			Name:      domain.TimeExtensionName(pkg.Name, names),
			Kind:      domain.LineTimeExtension,
			UnitPrice: pkg.Price,
			Quantity:  1,
			AddedAt:   now,
			Players:   ids,
		})
	}
	return lines
}

// RechargeUsageLine records play drawn from an existing pack. It carries no
// price; the pack was paid for when bought.
func RechargeUsageLine(packName string, p domain.Participant, now time.Time, id string) domain.LineItem {
	return domain.LineItem{
		ID:        id,
		Name:      domain.RechargeUsageName(packName),
		Kind:      domain.LineRechargeUsage,
		UnitPrice: decimal.Zero,
		Quantity:  1,
		AddedAt:   now,
		Players:   []string{p.ID},
	}
}

// RechargePurchaseLine bills a pack bought during the session.
func RechargePurchaseLine(pkg domain.Package, p domain.Participant, now time.Time, id string) domain.LineItem {
	return domain.LineItem{
		ID:        id,
		ItemID:    pkg.ID,
		Name:      domain.RechargePurchaseName(pkg.Name, p.Name),
		Kind:      domain.LineRechargePurchase,
		UnitPrice: pkg.Price,
		Quantity:  1,
		AddedAt:   now,
		Players:   []string{p.ID},
	}
}
