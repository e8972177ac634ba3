package application

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/settlement"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a resource with the same identifier is already stored.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrTransient is returned when concurrent writers kept winning and the
	// operation gave up; callers may retry it.
	ErrTransient = errors.New("application: concurrent update, retry")
	// ErrTampered is returned when a stored bill no longer matches its digest.
	ErrTampered = errors.New("application: bill digest mismatch")
	// ErrDebitDeferred is returned alongside the storage failure when a
	// participant was stopped but the recharge debit could not be written.
	// Checkout takes the played time instead.
	ErrDebitDeferred = errors.New("application: recharge debit deferred to checkout")
)

// IncompleteSettlementError is returned when a bill was stored but some
// member records could not be written. Pending holds the effects still owed;
// pass them to CheckoutService.ApplyEffects to finish the settlement.
type IncompleteSettlementError struct {
	BillID  string
	Pending []settlement.MemberEffect
	Err     error
}

// Error implements the error interface.
func (e *IncompleteSettlementError) Error() string {
	return fmt.Sprintf("bill %q stored, member effects pending for %s: %v",
		e.BillID, strings.Join(e.MemberIDs(), ", "), e.Err)
}

// Unwrap exposes the storage failure.
func (e *IncompleteSettlementError) Unwrap() error {
	return e.Err
}

// MemberIDs lists the members whose effects are pending.
func (e *IncompleteSettlementError) MemberIDs() []string {
	ids := make([]string, len(e.Pending))
	for i, eff := range e.Pending {
		ids[i] = eff.MemberID
	}
	return ids
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// mapStoreError translates persistence sentinels into application errors.
func mapStoreError(entity, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
	case errors.Is(err, persistence.ErrAlreadyExists):
		return fmt.Errorf("%s %q: %w", entity, id, ErrAlreadyExists)
	case errors.Is(err, persistence.ErrConflict):
		return fmt.Errorf("%s %q: %w", entity, id, ErrTransient)
	default:
		return err
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, persistence.ErrNotFound)
}
