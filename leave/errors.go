package leave

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/planning-engine/calendar"
)

// ===== SENTINEL ERRORS =====

var (
	// ErrInsufficientBalance blocks a new request whose days exceed what
	// is still safely requestable (remaining minus already-pending).
	ErrInsufficientBalance = errors.New("insufficient leave balance")

	// ErrBalanceExceeded blocks an approval that would push used days
	// past the allocation. The record stays Pending.
	ErrBalanceExceeded = errors.New("leave balance exceeded")

	// ErrRecordNotFound is returned for unknown or deleted record ids.
	ErrRecordNotFound = errors.New("absence record not found")

	// ErrInvalidTransition guards the status state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidRange rejects ranges that cover no time.
	ErrInvalidRange = errors.New("invalid absence date range")
)

// ===== STRUCTURED ERRORS =====

// InvalidRangeError carries the offending range for diagnostics.
type InvalidRangeError struct {
	Start  calendar.Date
	End    calendar.Date
	Detail string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid absence range %s..%s: %s", e.Start, e.End, e.Detail)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// InsufficientBalanceError is the soft check at request time: requested
// days must fit within remaining minus pending.
type InsufficientBalanceError struct {
	EmployeeID string
	Year       int
	Requested  decimal.Decimal
	Remaining  decimal.Decimal
	Pending    decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("employee %s year %d: requested %s days, remaining %s with %s pending",
		e.EmployeeID, e.Year, e.Requested, e.Remaining, e.Pending)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// BalanceExceededError is the hard check at approval time: the decision is
// refused and the record left Pending.
type BalanceExceededError struct {
	EmployeeID string
	Year       int
	Requested  decimal.Decimal
	Remaining  decimal.Decimal
}

func (e *BalanceExceededError) Error() string {
	return fmt.Sprintf("employee %s year %d: approving %s days exceeds remaining %s",
		e.EmployeeID, e.Year, e.Requested, e.Remaining)
}

func (e *BalanceExceededError) Unwrap() error { return ErrBalanceExceeded }

// TransitionError names the refused status move.
type TransitionError struct {
	RecordID string
	From     Status
	To       Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("record %s: cannot transition %s -> %s", e.RecordID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
