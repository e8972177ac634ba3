package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/example/station-engine/internal/domain"
)

type party struct {
	id   string
	name string
}

// defaultParty is the first member on the station, or the station itself
// when only guests played.
func defaultParty(st domain.Station) party {
	for _, p := range st.Members {
		if !p.IsGuest {
			return party{id: p.ID, name: p.Name}
		}
	}
	if len(st.Members) > 0 {
		return party{name: st.Members[0].Name}
	}
	return party{name: st.Name}
}

// applyPayment validates p against bill.Total and records the collected
// amounts on the bill.
func (e *Engine) applyPayment(op string, bill *domain.Bill, p Payment, fallback party) error {
	total := bill.Total
	bill.PaymentMethod = p.Method
	bill.CashAmount = decimal.Zero
	bill.UPIAmount = decimal.Zero
	bill.PaidNow = decimal.Zero

	switch p.Method {
	case domain.PaymentCash:
		bill.CashAmount = total
		bill.PaidNow = total
	case domain.PaymentUPI:
		bill.UPIAmount = total
		bill.PaidNow = total
	case domain.PaymentSplit:
		if p.CashAmount.IsNegative() || p.UPIAmount.IsNegative() {
			return domain.Reject(op, domain.ErrInvalidPayment, "split amounts must not be negative")
		}
		sum := p.CashAmount.Add(p.UPIAmount)
		if sum.Sub(total).Abs().GreaterThan(e.cfg.SplitTolerance) {
			return domain.Rejectf(op, domain.ErrSplitMismatch, "cash %s + upi %s against total %s", p.CashAmount, p.UPIAmount, total)
		}
		bill.CashAmount = p.CashAmount
		bill.UPIAmount = p.UPIAmount
		bill.PaidNow = sum
	case domain.PaymentPending:
		if p.PaidNow.IsNegative() {
			return domain.Reject(op, domain.ErrInvalidPayment, "paid amount must not be negative")
		}
		bill.PaidNow = p.PaidNow
		shortfall := total.Sub(p.PaidNow)
		if !shortfall.IsZero() {
			debt := &domain.Debt{
				Kind:      domain.DebtReceivable,
				Amount:    shortfall,
				PartyID:   p.PartyID,
				PartyName: p.PartyName,
			}
			if shortfall.IsNegative() {
				debt.Kind = domain.DebtPayable
				debt.Amount = shortfall.Neg()
			}
			if debt.PartyName == "" {
				debt.PartyID = fallback.id
				debt.PartyName = fallback.name
			}
			bill.Debt = debt
		}
	case domain.PaymentRecharge:
		if !total.IsZero() {
			return domain.Rejectf(op, domain.ErrInvalidPayment, "recharge settlement needs a zero total, got %s", total)
		}
	default:
		return domain.Rejectf(op, domain.ErrInvalidPayment, "unknown payment method %q", p.Method)
	}
	return nil
}
