package session

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/station-engine/internal/domain"
)

// AddItem appends a line to the running bill of a live station. Lines
// without a kind are classified by their name.
func AddItem(st *domain.Station, line domain.LineItem, now time.Time, newID func() string) (domain.LineItem, error) {
	const op = "AddItem"

	if !st.Live() {
		return domain.LineItem{}, domain.Rejectf(op, domain.ErrStationNotActive, "station %s is %s", st.ID, st.Status)
	}
	line.Name = strings.TrimSpace(line.Name)
	if line.Name == "" {
		return domain.LineItem{}, domain.Reject(op, domain.ErrInvalidLine, "name is required")
	}
	if line.Quantity < 1 {
		return domain.LineItem{}, domain.Rejectf(op, domain.ErrInvalidLine, "quantity %d", line.Quantity)
	}
	if line.UnitPrice.IsNegative() {
		return domain.LineItem{}, domain.Reject(op, domain.ErrInvalidAmount, line.UnitPrice.String())
	}

	if line.ID == "" {
		line.ID = newID()
	}
	if line.Kind == "" {
		line.Kind = domain.KindFromName(line.Name)
	}
	line.AddedAt = now
	st.Bill = append(st.Bill, line.Clone())
	return line, nil
}

// RemoveItem drops a line from the running bill.
func RemoveItem(st *domain.Station, lineID string) (domain.LineItem, error) {
	const op = "RemoveItem"

	if !st.Live() {
		return domain.LineItem{}, domain.Rejectf(op, domain.ErrStationNotActive, "station %s is %s", st.ID, st.Status)
	}
	for i, line := range st.Bill {
		if line.ID != lineID {
			continue
		}
		st.Bill = append(st.Bill[:i:i], st.Bill[i+1:]...)
		return line, nil
	}
	return domain.LineItem{}, domain.Reject(op, domain.ErrLineNotFound, lineID)
}

// SetDiscount records the discount applied at checkout. It is clamped to the
// food subtotal when the bill is settled.
func SetDiscount(st *domain.Station, discount decimal.Decimal) error {
	const op = "SetDiscount"

	if !st.Live() {
		return domain.Rejectf(op, domain.ErrStationNotActive, "station %s is %s", st.ID, st.Status)
	}
	if discount.IsNegative() {
		return domain.Reject(op, domain.ErrInvalidAmount, discount.String())
	}
	st.Discount = discount
	return nil
}
