/*
Package leave tracks per-employee, per-year absence allocations and keeps
leave balances consistent with what is actually scheduled.

PURPOSE:
  An AbsenceRecord is a dated range of leave with half-day (AM/PM)
  boundary semantics and an explicit approval state machine. Balances are
  never stored: used and pending amounts are always derived from the
  records themselves, so deleting or rejecting a record reconciles the
  balance by construction.

WORKFLOW:
  Annual leave:      Draft -> Pending -> {Approved, Rejected}
  Sick/Other leave:  Draft -> Approved (auto-approval, single transition;
                     Pending is unreachable for these types)

  The transition table below is the single authority; the auto-approval
  shortcut is an explicit transition, not an implicit default.

CALENDAR COUPLING:
  Approval materializes the absence as full-slot blocks on the planning
  grid through the placement engine; those blocks consume capacity exactly
  like tasks. Pending requests exist only in the ledger and block nothing.

SEE ALSO:
  - days.go: half-day arithmetic and slot coverage
  - service.go: request/decide/balance operations
*/
package leave

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/planning-engine/calendar"
	"github.com/warp/planning-engine/schedule"
)

// =============================================================================
// STATUS - Explicit state machine, not boolean flags
// =============================================================================

type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// transitions is the full approval state machine.
var transitions = map[Status][]Status{
	StatusDraft:   {StatusPending, StatusApproved},
	StatusPending: {StatusApproved, StatusRejected},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// =============================================================================
// ABSENCE RECORD
// =============================================================================

// AbsenceRecord is one leave request/grant over an inclusive date range.
// StartIsAM=false means the first day starts in the afternoon (0.5 day);
// EndIsAM=true means the last day ends at noon (0.5 day).
type AbsenceRecord struct {
	ID         string
	EmployeeID string
	Type       schedule.AbsenceType
	StartDate  calendar.Date
	EndDate    calendar.Date
	StartIsAM  bool
	EndIsAM    bool

	// Days is derived from the range and half-day flags at creation time;
	// Hours is Days * 8.
	Days  decimal.Decimal
	Hours decimal.Decimal

	Status Status
	Reason string

	// Decision audit, set on the Pending -> {Approved, Rejected}
	// transition (or on auto-approval).
	DecidedBy     string
	DecidedAt     *time.Time
	DecisionNotes string

	// AssignmentIDs links the calendar blocks placed for this record.
	AssignmentIDs []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Year is the allocation year the record debits.
// A range crossing New Year is attributed to its start year.
func (r AbsenceRecord) Year() int { return r.StartDate.Year() }

// =============================================================================
// ALLOCATION - Yearly quota per (employee, year)
// =============================================================================

// Allocation is the granted quota for one employee and calendar year.
type Allocation struct {
	EmployeeID string
	Year       int
	AnnualDays decimal.Decimal
	SickDays   decimal.Decimal
	OtherDays  decimal.Decimal
}

// DaysFor returns the quota bucket for an absence type.
func (a Allocation) DaysFor(t schedule.AbsenceType) decimal.Decimal {
	switch t {
	case schedule.AbsenceAnnual:
		return a.AnnualDays
	case schedule.AbsenceSick:
		return a.SickDays
	default:
		return a.OtherDays
	}
}

// Defaults are the organization-wide quotas used when an allocation is
// lazily created on first read or write.
type Defaults struct {
	AnnualDays decimal.Decimal
	SickDays   decimal.Decimal
	OtherDays  decimal.Decimal
}

// Balance is the derived view of one allocation bucket.
// Used counts Approved records only; Pending counts Pending records only.
// Remaining - Pending is the amount safely requestable without risking a
// later rejection.
type Balance struct {
	Total     decimal.Decimal
	Used      decimal.Decimal
	Pending   decimal.Decimal
	Remaining decimal.Decimal
}

// Summary groups the per-type balances for one (employee, year).
type Summary struct {
	EmployeeID string
	Year       int
	Annual     Balance
	Sick       Balance
	Other      Balance
}

// For returns the bucket for an absence type.
func (s Summary) For(t schedule.AbsenceType) Balance {
	switch t {
	case schedule.AbsenceAnnual:
		return s.Annual
	case schedule.AbsenceSick:
		return s.Sick
	default:
		return s.Other
	}
}

// =============================================================================
// STORE
// =============================================================================

// Store persists absence records and allocations.
type Store interface {
	CreateRecord(ctx context.Context, r AbsenceRecord) error
	UpdateRecord(ctx context.Context, r AbsenceRecord) error
	// GetRecord returns nil for unknown ids.
	GetRecord(ctx context.Context, id string) (*AbsenceRecord, error)
	// RecordsForYear returns the employee's records attributed to a year.
	RecordsForYear(ctx context.Context, employeeID string, year int) ([]AbsenceRecord, error)
	// ListRecords filters by employee and/or status; empty values match all.
	ListRecords(ctx context.Context, employeeID string, status Status) ([]AbsenceRecord, error)
	DeleteRecord(ctx context.Context, id string) error

	// GetAllocation returns nil when no row exists for (employee, year).
	GetAllocation(ctx context.Context, employeeID string, year int) (*Allocation, error)
	SaveAllocation(ctx context.Context, a Allocation) error
}
