/*
service.go - Leave ledger operations

PURPOSE:
  Request, decide, cancel and delete absence records, and answer balance
  queries. All balance math is derived from records at read time; the only
  writes are record and allocation rows plus the calendar blocks placed on
  approval.

CONCURRENCY:
  Every balance-affecting operation serializes on a per-(employee, year)
  key so two racing requests cannot both pass the balance check. Calendar
  placement happens inside that critical section; the placement engine
  takes its own per-slot locks, which are never held while waiting for a
  year key, so lock order is acyclic.

SEE ALSO:
  - record.go: types and state machine
  - schedule/placer.go: the placement engine approvals drive
*/
package leave

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/warp/planning-engine/calendar"
	"github.com/warp/planning-engine/directory"
	"github.com/warp/planning-engine/guard"
	"github.com/warp/planning-engine/metrics"
	"github.com/warp/planning-engine/schedule"
)

// Planner is the slice of the placement engine the ledger drives:
// materializing approved leave as calendar blocks, and tearing blocks back
// down on rollback or record deletion.
type Planner interface {
	Place(ctx context.Context, req schedule.PlaceRequest) (*schedule.Assignment, error)
	Unschedule(ctx context.Context, assignmentID string) error
}

// Service owns the leave ledger.
type Service struct {
	Store     Store
	Planner   Planner
	Directory directory.Directory
	Defaults  Defaults
	Locks     *guard.KeyedMutex
	Metrics   metrics.Recorder
	Now       func() time.Time
	NewID     func() string
}

// NewService wires a ledger with production defaults.
func NewService(store Store, planner Planner, dir directory.Directory, defaults Defaults) *Service {
	return &Service{
		Store:     store,
		Planner:   planner,
		Directory: dir,
		Defaults:  defaults,
		Locks:     guard.NewKeyedMutex(),
		Metrics:   metrics.Nop{},
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     uuid.NewString,
	}
}

func yearKey(employeeID string, year int) string {
	return "leave/" + employeeID + "/" + strconv.Itoa(year)
}

// =============================================================================
// REQUEST
// =============================================================================

// RequestInput describes a new absence request.
type RequestInput struct {
	EmployeeID string
	Type       schedule.AbsenceType
	StartDate  calendar.Date
	EndDate    calendar.Date
	StartIsAM  bool
	EndIsAM    bool
	Reason     string
}

// Request creates a record. Annual leave lands Pending after a soft balance
// check (days must fit remaining minus already-pending). Sick and other
// leave auto-approve and are placed on the calendar immediately; if any
// block cannot be placed the whole request fails and nothing is kept.
func (s *Service) Request(ctx context.Context, in RequestInput) (*AbsenceRecord, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("invalid absence type %q", in.Type)
	}
	if _, err := directory.ActiveEmployee(ctx, s.Directory, in.EmployeeID); err != nil {
		return nil, err
	}
	days, err := RequestedDays(in.StartDate, in.EndDate, in.StartIsAM, in.EndIsAM)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	rec := AbsenceRecord{
		ID:         s.NewID(),
		EmployeeID: in.EmployeeID,
		Type:       in.Type,
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
		StartIsAM:  in.StartIsAM,
		EndIsAM:    in.EndIsAM,
		Days:       days,
		Hours:      HoursFor(days),
		Status:     StatusDraft,
		Reason:     in.Reason,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	unlock := s.Locks.Lock(yearKey(rec.EmployeeID, rec.Year()))
	defer unlock()

	summary, err := s.summaryLocked(ctx, rec.EmployeeID, rec.Year())
	if err != nil {
		return nil, err
	}
	bal := summary.For(rec.Type)

	if rec.Type == schedule.AbsenceAnnual {
		if days.GreaterThan(bal.Remaining.Sub(bal.Pending)) {
			return nil, &InsufficientBalanceError{
				EmployeeID: rec.EmployeeID,
				Year:       rec.Year(),
				Requested:  days,
				Remaining:  bal.Remaining,
				Pending:    bal.Pending,
			}
		}
		rec.Status = StatusPending
		if err := s.Store.CreateRecord(ctx, rec); err != nil {
			return nil, err
		}
		return &rec, nil
	}

	// Auto-approval path: the hard check applies because the record
	// becomes Approved in the same step.
	if days.GreaterThan(bal.Remaining) {
		return nil, &BalanceExceededError{
			EmployeeID: rec.EmployeeID,
			Year:       rec.Year(),
			Requested:  days,
			Remaining:  bal.Remaining,
		}
	}
	rec.Status = StatusApproved
	rec.DecidedBy = "system"
	decidedAt := now
	rec.DecidedAt = &decidedAt
	if err := s.Store.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}
	ids, err := s.placeBlocks(ctx, rec)
	if err != nil {
		// Nothing of a failed auto-approval survives.
		if delErr := s.Store.DeleteRecord(ctx, rec.ID); delErr != nil {
			return nil, fmt.Errorf("rolling back record %s after placement failure: %w", rec.ID, delErr)
		}
		return nil, err
	}
	rec.AssignmentIDs = ids
	if err := s.Store.UpdateRecord(ctx, rec); err != nil {
		s.unscheduleAll(ctx, ids)
		if delErr := s.Store.DeleteRecord(ctx, rec.ID); delErr != nil {
			return nil, fmt.Errorf("rolling back record %s after update failure: %w", rec.ID, delErr)
		}
		return nil, err
	}
	s.Metrics.RecordLeaveDecision("approved")
	return &rec, nil
}

// =============================================================================
// DECIDE
// =============================================================================

// Decide approves or rejects a Pending record. Approval re-checks the
// balance with the hard rule (used + days <= total): if the request was
// overtaken by another approval, the record stays Pending and
// BalanceExceededError is returned. Approved leave is placed on the
// calendar atomically with the status change; partial placement is rolled
// back and the record stays Pending.
func (s *Service) Decide(ctx context.Context, recordID string, approve bool, deciderID, notes string) (*AbsenceRecord, error) {
	rec, err := s.record(ctx, recordID)
	if err != nil {
		return nil, err
	}

	target := StatusApproved
	if !approve {
		target = StatusRejected
	}

	unlock := s.Locks.Lock(yearKey(rec.EmployeeID, rec.Year()))
	defer unlock()

	// Re-read under the lock: a concurrent decision on the same record
	// may have landed between the lookup and the acquisition.
	rec, err = s.record(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(rec.Status, target) {
		return nil, &TransitionError{RecordID: rec.ID, From: rec.Status, To: target}
	}

	now := s.Now()
	rec.DecidedBy = deciderID
	rec.DecidedAt = &now
	rec.DecisionNotes = notes
	rec.UpdatedAt = now

	if !approve {
		rec.Status = StatusRejected
		if err := s.Store.UpdateRecord(ctx, *rec); err != nil {
			return nil, err
		}
		s.Metrics.RecordLeaveDecision("rejected")
		return rec, nil
	}

	summary, err := s.summaryLocked(ctx, rec.EmployeeID, rec.Year())
	if err != nil {
		return nil, err
	}
	bal := summary.For(rec.Type)
	if rec.Days.GreaterThan(bal.Remaining) {
		return nil, &BalanceExceededError{
			EmployeeID: rec.EmployeeID,
			Year:       rec.Year(),
			Requested:  rec.Days,
			Remaining:  bal.Remaining,
		}
	}

	ids, err := s.placeBlocks(ctx, *rec)
	if err != nil {
		return nil, err
	}
	rec.Status = StatusApproved
	rec.AssignmentIDs = ids
	if err := s.Store.UpdateRecord(ctx, *rec); err != nil {
		s.unscheduleAll(ctx, ids)
		return nil, err
	}
	s.Metrics.RecordLeaveDecision("approved")
	return rec, nil
}

// =============================================================================
// CANCEL / DELETE
// =============================================================================

// Cancel withdraws a Pending record. Pending days were never debited, so
// removal has no balance effect beyond freeing the pending amount.
func (s *Service) Cancel(ctx context.Context, recordID string) error {
	rec, err := s.record(ctx, recordID)
	if err != nil {
		return err
	}

	unlock := s.Locks.Lock(yearKey(rec.EmployeeID, rec.Year()))
	defer unlock()

	rec, err = s.record(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.Status != StatusPending {
		return &TransitionError{RecordID: rec.ID, From: rec.Status, To: StatusRejected}
	}
	return s.Store.DeleteRecord(ctx, rec.ID)
}

// Delete removes a record in any status. Linked calendar blocks are
// deactivated first; because balances are derived, the employee's used
// days shrink as a side effect with no ledger adjustment to make.
func (s *Service) Delete(ctx context.Context, recordID string) error {
	rec, err := s.record(ctx, recordID)
	if err != nil {
		return err
	}
	unlock := s.Locks.Lock(yearKey(rec.EmployeeID, rec.Year()))
	defer unlock()
	s.unscheduleAll(ctx, rec.AssignmentIDs)
	return s.Store.DeleteRecord(ctx, rec.ID)
}

// =============================================================================
// BALANCE
// =============================================================================

// BalanceSummary answers the balance query for one (employee, year),
// lazily creating the allocation from defaults on first touch.
func (s *Service) BalanceSummary(ctx context.Context, employeeID string, year int) (*Summary, error) {
	if _, err := directory.ActiveEmployee(ctx, s.Directory, employeeID); err != nil {
		return nil, err
	}
	unlock := s.Locks.Lock(yearKey(employeeID, year))
	defer unlock()
	return s.summaryLocked(ctx, employeeID, year)
}

// SetAllocation overrides an employee's yearly quota.
func (s *Service) SetAllocation(ctx context.Context, a Allocation) error {
	if _, err := directory.ActiveEmployee(ctx, s.Directory, a.EmployeeID); err != nil {
		return err
	}
	unlock := s.Locks.Lock(yearKey(a.EmployeeID, a.Year))
	defer unlock()
	return s.Store.SaveAllocation(ctx, a)
}

// Records lists an employee's records, optionally filtered by status.
func (s *Service) Records(ctx context.Context, employeeID string, status Status) ([]AbsenceRecord, error) {
	return s.Store.ListRecords(ctx, employeeID, status)
}

// Record returns a record by id.
func (s *Service) Record(ctx context.Context, recordID string) (*AbsenceRecord, error) {
	return s.record(ctx, recordID)
}

// =============================================================================
// INTERNALS
// =============================================================================

func (s *Service) record(ctx context.Context, id string) (*AbsenceRecord, error) {
	rec, err := s.Store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("record %s: %w", id, ErrRecordNotFound)
	}
	return rec, nil
}

// summaryLocked derives the per-type balances. Caller holds the year key.
func (s *Service) summaryLocked(ctx context.Context, employeeID string, year int) (*Summary, error) {
	alloc, err := s.allocationLocked(ctx, employeeID, year)
	if err != nil {
		return nil, err
	}
	records, err := s.Store.RecordsForYear(ctx, employeeID, year)
	if err != nil {
		return nil, err
	}

	summary := &Summary{EmployeeID: employeeID, Year: year}
	for _, t := range []schedule.AbsenceType{schedule.AbsenceAnnual, schedule.AbsenceSick, schedule.AbsenceOther} {
		bal := Balance{Total: alloc.DaysFor(t)}
		for _, r := range records {
			if r.Type != t {
				continue
			}
			switch r.Status {
			case StatusApproved:
				bal.Used = bal.Used.Add(r.Days)
			case StatusPending:
				bal.Pending = bal.Pending.Add(r.Days)
			}
		}
		bal.Remaining = bal.Total.Sub(bal.Used)
		switch t {
		case schedule.AbsenceAnnual:
			summary.Annual = bal
		case schedule.AbsenceSick:
			summary.Sick = bal
		default:
			summary.Other = bal
		}
	}
	return summary, nil
}

// allocationLocked reads the (employee, year) allocation, creating it from
// defaults on first touch. Caller holds the year key, so the create cannot
// race another reader.
func (s *Service) allocationLocked(ctx context.Context, employeeID string, year int) (*Allocation, error) {
	alloc, err := s.Store.GetAllocation(ctx, employeeID, year)
	if err != nil {
		return nil, err
	}
	if alloc != nil {
		return alloc, nil
	}
	alloc = &Allocation{
		EmployeeID: employeeID,
		Year:       year,
		AnnualDays: s.Defaults.AnnualDays,
		SickDays:   s.Defaults.SickDays,
		OtherDays:  s.Defaults.OtherDays,
	}
	if err := s.Store.SaveAllocation(ctx, *alloc); err != nil {
		return nil, err
	}
	return alloc, nil
}

// placeBlocks materializes the record as full-slot calendar blocks. On any
// failure the blocks already placed are torn down and the first error is
// returned, so approval is all-or-nothing.
func (s *Service) placeBlocks(ctx context.Context, rec AbsenceRecord) ([]string, error) {
	var placed []string
	for _, ref := range CoveredSlots(rec) {
		a, err := s.Planner.Place(ctx, schedule.PlaceRequest{
			Kind:       schedule.KindAbsence,
			Absence:    rec.Type,
			EmployeeID: rec.EmployeeID,
			Date:       ref.Date,
			Slot:       ref.Slot,
			Span:       calendar.SlotColumns,
		})
		if err != nil {
			s.unscheduleAll(ctx, placed)
			return nil, fmt.Errorf("placing absence block %s %s: %w", ref.Date, ref.Slot, err)
		}
		placed = append(placed, a.ID)
	}
	return placed, nil
}

func (s *Service) unscheduleAll(ctx context.Context, ids []string) {
	for _, id := range ids {
		// Best effort teardown; an already-gone block is fine.
		_ = s.Planner.Unschedule(ctx, id)
	}
}
