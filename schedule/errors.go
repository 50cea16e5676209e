/*
errors.go - Typed error taxonomy for scheduling operations

All placement failures are returned as typed results, never swallowed.
The only local recovery in the engine is the guard's single automatic
retry on ErrWriteConflict; every other kind surfaces to the caller so the
API layer can map it to a specific actionable message.
*/
package schedule

import (
	"errors"
	"fmt"

	"github.com/warp/planning-engine/calendar"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSlotFull is returned when no column position of the requested
	// span exists in the target slot. Recoverable by choosing another
	// slot or date.
	ErrSlotFull = errors.New("no free position in slot")

	// ErrCapacityConflict is returned when a specific requested position
	// overlaps an existing unit. Recoverable by retrying without a
	// preferred column.
	ErrCapacityConflict = errors.New("capacity conflict")

	// ErrDateBlocked is returned when the target slot is wholly covered
	// by an absence. Not recoverable without removing the absence.
	ErrDateBlocked = errors.New("slot blocked by absence")

	// ErrWriteConflict signals that another writer committed to the same
	// slot key first. The guard retries it once; callers never see it
	// unless the retry loses again, in which case it is wrapped as a
	// CapacityConflictError.
	ErrWriteConflict = errors.New("concurrent write conflict")

	// ErrAssignmentNotFound is returned for unknown assignment ids.
	ErrAssignmentNotFound = errors.New("assignment not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry slot context for actionable messages
// =============================================================================

type SlotFullError struct {
	EmployeeID string
	Date       calendar.Date
	Slot       calendar.Slot
	Span       int
}

func (e *SlotFullError) Error() string {
	return fmt.Sprintf("no room for span %d in %s slot of %s on %s",
		e.Span, e.Slot, e.EmployeeID, e.Date)
}

func (e *SlotFullError) Unwrap() error { return ErrSlotFull }

type CapacityConflictError struct {
	Requested calendar.Unit
	// Existing is the first occupied unit the request collided with;
	// zero-valued when the collision was detected at commit time.
	Existing calendar.Unit
}

func (e *CapacityConflictError) Error() string {
	return fmt.Sprintf("columns [%d,%d) already occupied in %s slot of %s on %s",
		e.Requested.ColumnStart, e.Requested.ColumnEnd(),
		e.Requested.Slot, e.Requested.EmployeeID, e.Requested.Date)
}

func (e *CapacityConflictError) Unwrap() error { return ErrCapacityConflict }

type DateBlockedError struct {
	EmployeeID string
	Date       calendar.Date
	Slot       calendar.Slot
	Absence    AbsenceType
}

func (e *DateBlockedError) Error() string {
	return fmt.Sprintf("%s slot of %s on %s is blocked by %s absence",
		e.Slot, e.EmployeeID, e.Date, e.Absence)
}

func (e *DateBlockedError) Unwrap() error { return ErrDateBlocked }

// IsRetryable reports whether the error might succeed if re-validated
// against fresh occupancy. Used by the guard.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrWriteConflict)
}
