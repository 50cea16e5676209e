/*
placer.go - Placement engine: the only writer path into occupancy

PURPOSE:
  Computes or validates a column position for a task or absence inside a
  half-day slot, then commits it under the concurrency guard. Resize and
  move re-run the same validation against current occupancy, excluding the
  assignment being changed.

PLACEMENT POLICY:
  - FindPosition scans column starts from 0 upward and takes the first
    fit. Lowest-start-wins is deterministic and stable across repeated
    calls, which keeps fixtures and retries reproducible.
  - A full-slot absence is exclusive: it cannot land on a slot holding any
    occupancy, and nothing can land on a slot it covers. A partial absence
    only blocks the columns it spans.
  - A preferred column is all-or-nothing: on overlap the caller gets a
    CapacityConflict and may retry via FindPosition.

CONCURRENCY:
  Every mutation locks its slot key(s) for the read -> validate -> write
  window and relies on the store's uniqueness invariant as the commit-time
  backstop. A write conflict is retried once with fresh occupancy; a
  second conflict surfaces as CapacityConflict.
*/
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/planning-engine/calendar"
	"github.com/warp/planning-engine/directory"
	"github.com/warp/planning-engine/guard"
	"github.com/warp/planning-engine/metrics"
)

// =============================================================================
// PLACER
// =============================================================================

// Placer owns the assignment lifecycle. All mutations go through it.
type Placer struct {
	Store     Store
	Directory directory.Directory
	Locks     *guard.KeyedMutex
	Metrics   metrics.Recorder

	// Injectable for deterministic tests.
	Now   func() time.Time
	NewID func() string
}

func NewPlacer(store Store, dir directory.Directory) *Placer {
	return &Placer{
		Store:     store,
		Directory: dir,
		Locks:     guard.NewKeyedMutex(),
		Metrics:   metrics.Nop{},
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     uuid.NewString,
	}
}

// PlaceRequest describes a placement. Span is in quarter-units (1-4).
// PreferredColumn, when set, demands that exact position.
type PlaceRequest struct {
	Kind            Kind
	TaskID          string      // required for KindTask
	Absence         AbsenceType // required for KindAbsence
	EmployeeID      string
	Date            calendar.Date
	Slot            calendar.Slot
	Span            int
	PreferredColumn *int
}

// =============================================================================
// POSITION SEARCH (pure)
// =============================================================================

// FindPosition returns the lowest column start where a unit of the given
// span fits between the occupied assignments, or false when the slot has
// no room ("slot full").
func FindPosition(occupied []Assignment, span int) (int, bool) {
	for start := 0; start <= calendar.SlotColumns-span; start++ {
		if !rangeCollides(occupied, start, span) {
			return start, true
		}
	}
	return 0, false
}

func rangeCollides(occupied []Assignment, start, span int) bool {
	end := start + span
	for _, a := range occupied {
		if a.Unit.ColumnStart < end && start < a.Unit.ColumnEnd() {
			return true
		}
	}
	return false
}

// =============================================================================
// PLACE
// =============================================================================

// Place commits a new assignment. Geometry is validated before any read;
// the employee (and for task placements, the task) must exist and be
// active. See the placement policy above for conflict semantics.
func (p *Placer) Place(ctx context.Context, req PlaceRequest) (*Assignment, error) {
	a, err := p.place(ctx, req)
	p.Metrics.RecordPlacement(string(req.Kind), outcome(err))
	return a, err
}

func (p *Placer) place(ctx context.Context, req PlaceRequest) (*Assignment, error) {
	if err := p.validateRequest(req); err != nil {
		return nil, err
	}
	if _, err := directory.ActiveEmployee(ctx, p.Directory, req.EmployeeID); err != nil {
		return nil, err
	}
	if req.Kind == KindTask {
		if _, err := directory.ActiveTask(ctx, p.Directory, req.TaskID); err != nil {
			return nil, err
		}
	}

	var placed *Assignment
	attempt := func() error {
		unlock := p.Locks.Lock(SlotKey(req.EmployeeID, req.Date, req.Slot))
		defer unlock()

		occupied, err := p.Store.ActiveSlotAssignments(ctx, req.EmployeeID, req.Date, req.Slot)
		if err != nil {
			return err
		}

		start, err := p.position(req, occupied)
		if err != nil {
			return err
		}

		now := p.Now()
		a := Assignment{
			ID:      p.NewID(),
			Kind:    req.Kind,
			TaskID:  req.TaskID,
			Absence: req.Absence,
			Unit: calendar.Unit{
				EmployeeID:  req.EmployeeID,
				Date:        req.Date,
				Slot:        req.Slot,
				ColumnStart: start,
				ColumnSpan:  req.Span,
			},
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := p.Store.CreateAssignment(ctx, a); err != nil {
			return err
		}
		placed = &a
		return nil
	}

	if err := guard.Retry(attempt, IsRetryable); err != nil {
		return nil, wrapWriteConflict(err, req)
	}
	return placed, nil
}

func (p *Placer) validateRequest(req PlaceRequest) error {
	switch req.Kind {
	case KindTask:
		if req.TaskID == "" {
			return fmt.Errorf("task placement requires a task id")
		}
	case KindAbsence:
		if !req.Absence.Valid() {
			return fmt.Errorf("invalid absence type %q", req.Absence)
		}
	default:
		return fmt.Errorf("invalid assignment kind %q", req.Kind)
	}

	start := 0
	if req.PreferredColumn != nil {
		start = *req.PreferredColumn
	}
	u := calendar.Unit{
		EmployeeID:  req.EmployeeID,
		Date:        req.Date,
		Slot:        req.Slot,
		ColumnStart: start,
		ColumnSpan:  req.Span,
	}
	return u.Validate()
}

// position applies the slot policy and returns the column start to commit.
func (p *Placer) position(req PlaceRequest, occupied []Assignment) (int, error) {
	if block := blockingAbsence(occupied); block != nil {
		if req.Kind == KindTask {
			return 0, &DateBlockedError{
				EmployeeID: req.EmployeeID,
				Date:       req.Date,
				Slot:       req.Slot,
				Absence:    block.Absence,
			}
		}
		// Absence onto an already-covered slot: plain occupancy conflict.
		return 0, &CapacityConflictError{
			Requested: requestedUnit(req, 0),
			Existing:  block.Unit,
		}
	}

	// A full-slot absence claims the slot exclusively.
	if req.Kind == KindAbsence && req.Span == calendar.SlotColumns && len(occupied) > 0 {
		return 0, &CapacityConflictError{
			Requested: requestedUnit(req, 0),
			Existing:  occupied[0].Unit,
		}
	}

	if req.PreferredColumn != nil {
		start := *req.PreferredColumn
		for _, a := range occupied {
			if a.Unit.ColumnStart < start+req.Span && start < a.Unit.ColumnEnd() {
				return 0, &CapacityConflictError{
					Requested: requestedUnit(req, start),
					Existing:  a.Unit,
				}
			}
		}
		return start, nil
	}

	start, ok := FindPosition(occupied, req.Span)
	if !ok {
		return 0, &SlotFullError{
			EmployeeID: req.EmployeeID,
			Date:       req.Date,
			Slot:       req.Slot,
			Span:       req.Span,
		}
	}
	return start, nil
}

func requestedUnit(req PlaceRequest, start int) calendar.Unit {
	return calendar.Unit{
		EmployeeID:  req.EmployeeID,
		Date:        req.Date,
		Slot:        req.Slot,
		ColumnStart: start,
		ColumnSpan:  req.Span,
	}
}

// =============================================================================
// RESIZE
// =============================================================================

// Resize changes an assignment's span (and optionally its column start),
// validated against current occupancy excluding the assignment itself.
func (p *Placer) Resize(ctx context.Context, assignmentID string, newSpan int, newStart *int) (*Assignment, error) {
	a, err := p.activeAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	start := a.Unit.ColumnStart
	if newStart != nil {
		start = *newStart
	}
	next := a.Unit
	next.ColumnStart = start
	next.ColumnSpan = newSpan
	if err := next.Validate(); err != nil {
		return nil, err
	}

	var resized *Assignment
	attempt := func() error {
		unlock := p.Locks.Lock(a.SlotKey())
		defer unlock()

		siblings, err := p.slotSiblings(ctx, next.EmployeeID, next.Date, next.Slot, a.ID)
		if err != nil {
			return err
		}
		if err := p.fitAgainst(*a, next, siblings); err != nil {
			return err
		}

		updated := *a
		updated.Unit = next
		updated.UpdatedAt = p.Now()
		if err := p.Store.UpdateAssignment(ctx, updated); err != nil {
			return err
		}
		resized = &updated
		return nil
	}

	if err := guard.Retry(attempt, IsRetryable); err != nil {
		return nil, wrapWriteConflictUnit(err, next)
	}
	return resized, nil
}

// =============================================================================
// MOVE
// =============================================================================

// Move relocates an assignment to a new date/slot (and optionally a new
// column), preserving its span. It is remove+place evaluated atomically:
// the assignment row is rewritten in one step, so a failed destination
// leaves the original untouched.
func (p *Placer) Move(ctx context.Context, assignmentID string, newDate calendar.Date, newSlot calendar.Slot, newStart *int) (*Assignment, error) {
	a, err := p.activeAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	next := a.Unit
	next.Date = newDate
	next.Slot = newSlot
	if newStart != nil {
		next.ColumnStart = *newStart
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}

	var moved *Assignment
	attempt := func() error {
		// Lock source and destination slots together; sorted acquisition
		// in the guard prevents deadlock with a crossing move.
		unlock := p.Locks.Lock(a.SlotKey(), SlotKey(next.EmployeeID, next.Date, next.Slot))
		defer unlock()

		siblings, err := p.slotSiblings(ctx, next.EmployeeID, next.Date, next.Slot, a.ID)
		if err != nil {
			return err
		}

		dest := next
		if newStart == nil {
			// Slot policy first: a blocked or exclusively claimed
			// destination is not a matter of free columns.
			if err := p.slotPolicy(*a, dest, siblings); err != nil {
				return err
			}
			start, ok := FindPosition(siblings, dest.ColumnSpan)
			if !ok {
				return &SlotFullError{
					EmployeeID: dest.EmployeeID,
					Date:       dest.Date,
					Slot:       dest.Slot,
					Span:       dest.ColumnSpan,
				}
			}
			dest.ColumnStart = start
		}
		if err := p.fitAgainst(*a, dest, siblings); err != nil {
			return err
		}

		updated := *a
		updated.Unit = dest
		updated.UpdatedAt = p.Now()
		if err := p.Store.UpdateAssignment(ctx, updated); err != nil {
			return err
		}
		moved = &updated
		return nil
	}

	if err := guard.Retry(attempt, IsRetryable); err != nil {
		return nil, wrapWriteConflictUnit(err, next)
	}
	return moved, nil
}

// =============================================================================
// UNSCHEDULE
// =============================================================================

// Unschedule deactivates an assignment. The row is kept for history.
func (p *Placer) Unschedule(ctx context.Context, assignmentID string) error {
	a, err := p.activeAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}

	unlock := p.Locks.Lock(a.SlotKey())
	defer unlock()
	return p.Store.DeactivateAssignment(ctx, a.ID)
}

// =============================================================================
// SHARED VALIDATION
// =============================================================================

func (p *Placer) activeAssignment(ctx context.Context, id string) (*Assignment, error) {
	a, err := p.Store.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil || !a.Active {
		return nil, fmt.Errorf("assignment %s: %w", id, ErrAssignmentNotFound)
	}
	return a, nil
}

func (p *Placer) slotSiblings(ctx context.Context, employeeID string, date calendar.Date, slot calendar.Slot, excludeID string) ([]Assignment, error) {
	occupied, err := p.Store.ActiveSlotAssignments(ctx, employeeID, date, slot)
	if err != nil {
		return nil, err
	}
	siblings := occupied[:0:0]
	for _, o := range occupied {
		if o.ID != excludeID {
			siblings = append(siblings, o)
		}
	}
	return siblings, nil
}

// fitAgainst validates a rewritten unit against its slot siblings using
// the same policy as Place.
func (p *Placer) fitAgainst(a Assignment, next calendar.Unit, siblings []Assignment) error {
	if err := p.slotPolicy(a, next, siblings); err != nil {
		return err
	}
	for _, s := range siblings {
		if s.Unit.ColumnStart < next.ColumnEnd() && next.ColumnStart < s.Unit.ColumnEnd() {
			return &CapacityConflictError{Requested: next, Existing: s.Unit}
		}
	}
	return nil
}

// slotPolicy enforces absence exclusivity for a slot independent of column
// geometry: tasks never land on a blocked slot, and a full-slot absence
// claims the slot alone.
func (p *Placer) slotPolicy(a Assignment, next calendar.Unit, siblings []Assignment) error {
	if block := blockingAbsence(siblings); block != nil {
		if a.Kind == KindTask {
			return &DateBlockedError{
				EmployeeID: next.EmployeeID,
				Date:       next.Date,
				Slot:       next.Slot,
				Absence:    block.Absence,
			}
		}
		return &CapacityConflictError{Requested: next, Existing: block.Unit}
	}
	if a.Kind == KindAbsence && next.ColumnSpan == calendar.SlotColumns && len(siblings) > 0 {
		return &CapacityConflictError{Requested: next, Existing: siblings[0].Unit}
	}
	return nil
}

// =============================================================================
// ERROR SHAPING / METRIC OUTCOMES
// =============================================================================

func wrapWriteConflict(err error, req PlaceRequest) error {
	if errors.Is(err, ErrWriteConflict) {
		start := 0
		if req.PreferredColumn != nil {
			start = *req.PreferredColumn
		}
		return &CapacityConflictError{Requested: requestedUnit(req, start)}
	}
	return err
}

func wrapWriteConflictUnit(err error, u calendar.Unit) error {
	if errors.Is(err, ErrWriteConflict) {
		return &CapacityConflictError{Requested: u}
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSlotFull):
		return "slot_full"
	case errors.Is(err, ErrCapacityConflict):
		return "conflict"
	case errors.Is(err, ErrDateBlocked):
		return "blocked"
	case errors.Is(err, calendar.ErrInvalidSpan):
		return "invalid"
	default:
		return "error"
	}
}
