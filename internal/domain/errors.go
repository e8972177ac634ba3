package domain

import (
	"errors"
	"fmt"
)

// Sentinel failures for rejected transitions. Callers match them with
// errors.Is; they always arrive wrapped in a *PreconditionError.
var (
	ErrStationNotAvailable  = errors.New("station is not available")
	ErrStationNotActive     = errors.New("station has no live session")
	ErrStationPaused        = errors.New("station is paused")
	ErrStationNotPaused     = errors.New("station is not paused")
	ErrPlayerLimit          = errors.New("player limit exceeded")
	ErrNoParticipants       = errors.New("at least one participant is required")
	ErrDuplicateParticipant = errors.New("participant already in session")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrParticipantFinished  = errors.New("participant already finished")
	ErrInvalidDuration      = errors.New("duration must be positive")
	ErrNoTimer              = errors.New("participant has no timer")
	ErrInsufficientBalance  = errors.New("insufficient recharge balance")
	ErrPackageUnavailable   = errors.New("package not available")
	ErrLineNotFound         = errors.New("bill line not found")
	ErrInvalidLine          = errors.New("invalid bill line")
	ErrInvalidAmount        = errors.New("amount must not be negative")
	ErrSplitMismatch        = errors.New("split amounts do not match total")
	ErrInvalidPayment       = errors.New("invalid payment")
)

// PreconditionError reports an operation rejected before any mutation.
type PreconditionError struct {
	Op     string
	Err    error
	Detail string
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Detail)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *PreconditionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Reject builds a PreconditionError for op.
func Reject(op string, err error, detail string) error {
	return &PreconditionError{Op: op, Err: err, Detail: detail}
}

// Rejectf builds a PreconditionError with a formatted detail.
func Rejectf(op string, err error, format string, args ...any) error {
	return &PreconditionError{Op: op, Err: err, Detail: fmt.Sprintf(format, args...)}
}
