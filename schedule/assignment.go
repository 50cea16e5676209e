/*
Package schedule is the occupancy core: it resolves availability, places
work on the grid, and guards concurrent writes to the same slot.

PURPOSE:
  An Assignment binds one schedulable item to one calendar unit. The item
  is a tagged variant - either a project task or an absence placeholder -
  sharing the same geometry and occupancy rules. Absences consume slot
  capacity exactly like tasks; they differ only in downstream effects
  (absence placements feed the leave ledger, task placements do not).

OCCUPANCY MODEL:
  Occupancy is a queryable fact table keyed by (employee, date, slot,
  columnStart) with a store-enforced uniqueness invariant on that compound
  key, rather than a global in-memory grid. The placement engine is the
  only writer path; the resolver is read-only.

SEE ALSO:
  - calendar: unit geometry and validation
  - resolver.go: read side (occupied units, blocked slots)
  - placer.go: write side (place, resize, move)
*/
package schedule

import (
	"context"
	"time"

	"github.com/warp/planning-engine/calendar"
)

// =============================================================================
// ASSIGNMENT - Tagged variant binding a task or absence to a calendar unit
// =============================================================================

// Kind discriminates what an assignment represents.
type Kind string

const (
	KindTask    Kind = "task"
	KindAbsence Kind = "absence"
)

// AbsenceType is the leave bucket an absence placement belongs to.
// It governs the approval workflow and which allocation is debited.
type AbsenceType string

const (
	AbsenceAnnual AbsenceType = "annual"
	AbsenceSick   AbsenceType = "sick"
	AbsenceOther  AbsenceType = "other"
)

func (t AbsenceType) Valid() bool {
	return t == AbsenceAnnual || t == AbsenceSick || t == AbsenceOther
}

// Assignment occupies one calendar unit. Task assignments reference a task;
// absence assignments carry the absence type instead. Unscheduling
// deactivates rather than deletes, so history stays queryable.
type Assignment struct {
	ID      string
	Kind    Kind
	TaskID  string      // set when Kind == KindTask
	Absence AbsenceType // set when Kind == KindAbsence
	Unit    calendar.Unit
	Active  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SlotKey is the serialization key for the assignment's half-day slot.
func (a Assignment) SlotKey() string {
	return SlotKey(a.Unit.EmployeeID, a.Unit.Date, a.Unit.Slot)
}

// SlotKey names the contended (employee, date, slot) resource for the guard.
func SlotKey(employeeID string, date calendar.Date, slot calendar.Slot) string {
	return employeeID + "/" + date.String() + "/" + slot.String()
}

// =============================================================================
// STORE - Persistence interface for occupancy facts
// =============================================================================

// Store persists assignments. Implementations must enforce the uniqueness
// invariant on (employee, date, slot, columnStart) for active rows and
// return ErrWriteConflict when a commit loses that race; the guard's
// bounded retry depends on it.
type Store interface {
	// CreateAssignment inserts a new assignment.
	CreateAssignment(ctx context.Context, a Assignment) error

	// UpdateAssignment rewrites an existing assignment's unit geometry and
	// active flag in a single atomic step.
	UpdateAssignment(ctx context.Context, a Assignment) error

	// GetAssignment returns nil when the id is unknown.
	GetAssignment(ctx context.Context, id string) (*Assignment, error)

	// ActiveAssignments returns all active assignments for an employee on
	// a date, both slots, ordered by slot then column start.
	ActiveAssignments(ctx context.Context, employeeID string, date calendar.Date) ([]Assignment, error)

	// ActiveSlotAssignments narrows to one half-day slot.
	ActiveSlotAssignments(ctx context.Context, employeeID string, date calendar.Date, slot calendar.Slot) ([]Assignment, error)

	// DeactivateAssignment clears the active flag; unknown ids are a no-op
	// for callers that already resolved the assignment.
	DeactivateAssignment(ctx context.Context, id string) error
}
