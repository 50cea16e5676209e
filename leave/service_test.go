package leave_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/planning-engine/calendar"
	"github.com/warp/planning-engine/directory"
	"github.com/warp/planning-engine/leave"
	"github.com/warp/planning-engine/schedule"
	"github.com/warp/planning-engine/store/memory"
)

// =============================================================================
// FIXTURES
// =============================================================================

func newTestService(t *testing.T) (*leave.Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.SaveEmployee(ctx, directory.Employee{ID: "emp-1", Name: "Ada", TeamID: "team-1", IsActive: true}))
	require.NoError(t, st.SaveTask(ctx, directory.Task{ID: "task-1", Name: "Build", ProjectID: "proj-1", IsActive: true}))

	placer := schedule.NewPlacer(st, st)
	svc := leave.NewService(st, placer, st, leave.Defaults{
		AnnualDays: decimal.NewFromInt(20),
		SickDays:   decimal.NewFromInt(10),
		OtherDays:  decimal.NewFromInt(5),
	})
	return svc, st
}

func annualRequest(start, end calendar.Date) leave.RequestInput {
	return leave.RequestInput{
		EmployeeID: "emp-1",
		Type:       schedule.AbsenceAnnual,
		StartDate:  start,
		EndDate:    end,
		StartIsAM:  true,
		EndIsAM:    false,
		Reason:     "holiday",
	}
}

func assertDays(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.RequireFromString(want)), "want %s days, got %s", want, got)
}

// =============================================================================
// REQUEST
// =============================================================================

func TestRequest_AnnualLandsPending(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Request(ctx, annualRequest(mon, tue))
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, rec.Status)
	assertDays(t, "2", rec.Days)
	assertDays(t, "16", rec.Hours)
	assert.Empty(t, rec.AssignmentIDs, "pending leave blocks nothing")

	// No calendar blocks until approval.
	occ, err := st.ActiveAssignments(ctx, "emp-1", mon)
	require.NoError(t, err)
	assert.Empty(t, occ)
}

func TestRequest_SoftBalanceCheckCountsPending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// 18 of 20 days pending.
	_, err := svc.Request(ctx, annualRequest(mon, calendar.NewDate(2025, 1, 23)))
	require.NoError(t, err)

	// 3 more would overcommit: remaining 20, pending 18, only 2 safe.
	_, err = svc.Request(ctx, annualRequest(calendar.NewDate(2025, 2, 3), calendar.NewDate(2025, 2, 5)))
	require.Error(t, err)
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)

	var ib *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assertDays(t, "3", ib.Requested)
	assertDays(t, "18", ib.Pending)

	// 2 days still fit.
	_, err = svc.Request(ctx, annualRequest(calendar.NewDate(2025, 2, 3), calendar.NewDate(2025, 2, 4)))
	assert.NoError(t, err)
}

func TestRequest_SickAutoApprovesAndBlocksCalendar(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	in := annualRequest(mon, tue)
	in.Type = schedule.AbsenceSick
	rec, err := svc.Request(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, rec.Status)
	assert.Equal(t, "system", rec.DecidedBy)
	require.NotNil(t, rec.DecidedAt)
	require.Len(t, rec.AssignmentIDs, 4, "both slots of both days")

	for _, d := range []calendar.Date{mon, tue} {
		for _, slot := range calendar.Slots() {
			occ, err := st.ActiveSlotAssignments(ctx, "emp-1", d, slot)
			require.NoError(t, err)
			require.Len(t, occ, 1)
			assert.Equal(t, schedule.KindAbsence, occ[0].Kind)
			assert.Equal(t, schedule.AbsenceSick, occ[0].Absence)
			assert.True(t, occ[0].Unit.FullSlot())
		}
	}

	summary, err := svc.BalanceSummary(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assertDays(t, "2", summary.Sick.Used)
	assertDays(t, "8", summary.Sick.Remaining)
	assertDays(t, "20", summary.Annual.Remaining)
}

func TestRequest_AutoApprovalRollsBackOnPlacementConflict(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	// A task already sits in Monday afternoon, so the second block of a
	// full-day sick request cannot be placed.
	placer := schedule.NewPlacer(st, st)
	_, err := placer.Place(ctx, schedule.PlaceRequest{
		Kind: schedule.KindTask, TaskID: "task-1", EmployeeID: "emp-1",
		Date: mon, Slot: calendar.SlotAfternoon, Span: 1,
	})
	require.NoError(t, err)

	in := annualRequest(mon, mon)
	in.Type = schedule.AbsenceSick
	_, err = svc.Request(ctx, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, schedule.ErrCapacityConflict)

	// Nothing survives: no record, and the morning block was torn down.
	records, err := svc.Records(ctx, "emp-1", "")
	require.NoError(t, err)
	assert.Empty(t, records)
	occ, err := st.ActiveSlotAssignments(ctx, "emp-1", mon, calendar.SlotMorning)
	require.NoError(t, err)
	assert.Empty(t, occ)
}

// updateFailStore rejects UpdateRecord while fail is set, delegating
// everything else.
type updateFailStore struct {
	leave.Store
	fail bool
}

func (s *updateFailStore) UpdateRecord(ctx context.Context, rec leave.AbsenceRecord) error {
	if s.fail {
		return errors.New("record update rejected")
	}
	return s.Store.UpdateRecord(ctx, rec)
}

func TestRequest_AutoApprovalRollsBackOnUpdateFailure(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.SaveEmployee(ctx, directory.Employee{ID: "emp-1", Name: "Ada", TeamID: "team-1", IsActive: true}))

	fs := &updateFailStore{Store: st, fail: true}
	svc := leave.NewService(fs, schedule.NewPlacer(st, st), st, leave.Defaults{
		AnnualDays: decimal.NewFromInt(20),
		SickDays:   decimal.NewFromInt(10),
		OtherDays:  decimal.NewFromInt(5),
	})

	// The blocks place fine; persisting their ids does not. Neither the
	// record nor the blocks may survive, or Delete could never find them.
	in := annualRequest(mon, mon)
	in.Type = schedule.AbsenceSick
	_, err := svc.Request(ctx, in)
	require.Error(t, err)

	records, err := svc.Records(ctx, "emp-1", "")
	require.NoError(t, err)
	assert.Empty(t, records)
	occ, err := st.ActiveAssignments(ctx, "emp-1", mon)
	require.NoError(t, err)
	assert.Empty(t, occ)
}

func TestRequest_UnknownOrInactiveEmployee(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	in := annualRequest(mon, tue)
	in.EmployeeID = "emp-unknown"
	_, err := svc.Request(ctx, in)
	assert.ErrorIs(t, err, directory.ErrEmployeeNotFound)

	require.NoError(t, st.SaveEmployee(ctx, directory.Employee{ID: "emp-2", IsActive: false}))
	in.EmployeeID = "emp-2"
	_, err = svc.Request(ctx, in)
	assert.ErrorIs(t, err, directory.ErrEmployeeInactive)
}

// =============================================================================
// DECIDE
// =============================================================================

func TestDecide_ApproveDebitsBalanceAndBlocksCalendar(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Request(ctx, annualRequest(mon, tue))
	require.NoError(t, err)

	decided, err := svc.Decide(ctx, rec.ID, true, "mgr-1", "enjoy")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, decided.Status)
	assert.Equal(t, "mgr-1", decided.DecidedBy)
	assert.Equal(t, "enjoy", decided.DecisionNotes)
	require.Len(t, decided.AssignmentIDs, 4)

	occ, err := st.ActiveAssignments(ctx, "emp-1", mon)
	require.NoError(t, err)
	require.Len(t, occ, 2)
	assert.Equal(t, schedule.AbsenceAnnual, occ[0].Absence)

	summary, err := svc.BalanceSummary(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assertDays(t, "20", summary.Annual.Total)
	assertDays(t, "2", summary.Annual.Used)
	assertDays(t, "0", summary.Annual.Pending)
	assertDays(t, "18", summary.Annual.Remaining)
}

func TestDecide_BalanceConservation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	approved, err := svc.Request(ctx, annualRequest(mon, tue)) // 2 days
	require.NoError(t, err)
	_, err = svc.Decide(ctx, approved.ID, true, "mgr-1", "")
	require.NoError(t, err)

	// 5 more days pending (a full later week).
	_, err = svc.Request(ctx, annualRequest(calendar.NewDate(2025, 2, 3), calendar.NewDate(2025, 2, 7)))
	require.NoError(t, err)

	summary, err := svc.BalanceSummary(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assertDays(t, "2", summary.Annual.Used)
	assertDays(t, "5", summary.Annual.Pending)
	assertDays(t, "18", summary.Annual.Remaining)
	// used + remaining == total always holds.
	assert.True(t, summary.Annual.Used.Add(summary.Annual.Remaining).Equal(summary.Annual.Total))
}

func TestDecide_RejectFreesPendingDays(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Request(ctx, annualRequest(mon, tue))
	require.NoError(t, err)

	decided, err := svc.Decide(ctx, rec.ID, false, "mgr-1", "coverage gap")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, decided.Status)

	occ, err := st.ActiveAssignments(ctx, "emp-1", mon)
	require.NoError(t, err)
	assert.Empty(t, occ)

	summary, err := svc.BalanceSummary(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assertDays(t, "0", summary.Annual.Pending)
	assertDays(t, "20", summary.Annual.Remaining)
}

func TestDecide_BalanceExceededLeavesPending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Two 2-day requests filed against the default quota.
	recA, err := svc.Request(ctx, annualRequest(mon, tue))
	require.NoError(t, err)
	recB, err := svc.Request(ctx, annualRequest(calendar.NewDate(2025, 2, 3), calendar.NewDate(2025, 2, 4)))
	require.NoError(t, err)

	// The quota shrinks after both requests were filed.
	require.NoError(t, svc.SetAllocation(ctx, leave.Allocation{
		EmployeeID: "emp-1", Year: 2025,
		AnnualDays: decimal.NewFromInt(3),
		SickDays:   decimal.NewFromInt(10),
		OtherDays:  decimal.NewFromInt(5),
	}))

	_, err = svc.Decide(ctx, recA.ID, true, "mgr-1", "")
	require.NoError(t, err)

	// Approving B would push used to 4 of 3.
	_, err = svc.Decide(ctx, recB.ID, true, "mgr-1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, leave.ErrBalanceExceeded)

	got, err := svc.Record(ctx, recB.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, got.Status, "refused approval leaves the record pending")
}

func TestDecide_PlacementFailureLeavesPending(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Request(ctx, annualRequest(mon, tue))
	require.NoError(t, err)

	// Occupy Tuesday morning so the third block fails.
	placer := schedule.NewPlacer(st, st)
	_, err = placer.Place(ctx, schedule.PlaceRequest{
		Kind: schedule.KindTask, TaskID: "task-1", EmployeeID: "emp-1",
		Date: tue, Slot: calendar.SlotMorning, Span: 1,
	})
	require.NoError(t, err)

	_, err = svc.Decide(ctx, rec.ID, true, "mgr-1", "")
	require.Error(t, err)

	got, err := svc.Record(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, got.Status)

	// Monday's blocks were rolled back.
	occ, err := st.ActiveAssignments(ctx, "emp-1", mon)
	require.NoError(t, err)
	assert.Empty(t, occ)
}

func TestDecide_InvalidTransitions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Request(ctx, annualRequest(mon, tue))
	require.NoError(t, err)
	_, err = svc.Decide(ctx, rec.ID, true, "mgr-1", "")
	require.NoError(t, err)

	_, err = svc.Decide(ctx, rec.ID, true, "mgr-1", "again")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
	_, err = svc.Decide(ctx, rec.ID, false, "mgr-1", "takeback")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	_, err = svc.Decide(ctx, "nope", true, "mgr-1", "")
	assert.ErrorIs(t, err, leave.ErrRecordNotFound)
}

func TestDecide_ConcurrentDecisionsAgreeWithCalendar(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Request(ctx, annualRequest(mon, tue))
	require.NoError(t, err)

	// Approve and reject race on the same Pending record. Exactly one
	// may win; the loser sees the committed transition.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, approve := range []bool{true, false} {
		wg.Add(1)
		go func(approve bool) {
			defer wg.Done()
			_, err := svc.Decide(ctx, rec.ID, approve, "mgr-1", "")
			errs <- err
		}(approve)
	}
	wg.Wait()
	close(errs)

	losses := 0
	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, leave.ErrInvalidTransition)
			losses++
		}
	}
	require.Equal(t, 1, losses, "exactly one decision should lose")

	// Whatever the winner was, record status and calendar agree.
	final, err := svc.Record(ctx, rec.ID)
	require.NoError(t, err)
	occ, err := st.ActiveAssignments(ctx, "emp-1", mon)
	require.NoError(t, err)
	switch final.Status {
	case leave.StatusApproved:
		assert.Len(t, occ, 2, "approved leave blocks both Monday slots")
	case leave.StatusRejected:
		assert.Empty(t, occ, "rejected leave blocks nothing")
	default:
		t.Fatalf("record ended in status %q", final.Status)
	}
}

// =============================================================================
// CANCEL / DELETE
// =============================================================================

func TestCancel_PendingOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Request(ctx, annualRequest(mon, tue))
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, rec.ID))

	_, err = svc.Record(ctx, rec.ID)
	assert.ErrorIs(t, err, leave.ErrRecordNotFound)

	// An approved record cannot be cancelled.
	rec2, err := svc.Request(ctx, annualRequest(wed, wed))
	require.NoError(t, err)
	_, err = svc.Decide(ctx, rec2.ID, true, "mgr-1", "")
	require.NoError(t, err)
	err = svc.Cancel(ctx, rec2.ID)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

func TestDelete_ReconcilesBalanceAndCalendar(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Request(ctx, annualRequest(mon, tue))
	require.NoError(t, err)
	_, err = svc.Decide(ctx, rec.ID, true, "mgr-1", "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, rec.ID))

	occ, err := st.ActiveAssignments(ctx, "emp-1", mon)
	require.NoError(t, err)
	assert.Empty(t, occ, "calendar blocks deactivate with the record")

	summary, err := svc.BalanceSummary(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assertDays(t, "0", summary.Annual.Used)
	assertDays(t, "20", summary.Annual.Remaining)
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

func TestBalanceSummary_LazyAllocationFromDefaults(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	summary, err := svc.BalanceSummary(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assertDays(t, "20", summary.Annual.Total)
	assertDays(t, "10", summary.Sick.Total)
	assertDays(t, "5", summary.Other.Total)

	// The allocation row now exists.
	alloc, err := st.GetAllocation(ctx, "emp-1", 2025)
	require.NoError(t, err)
	require.NotNil(t, alloc)
	assertDays(t, "20", alloc.AnnualDays)
}

func TestBalanceSummary_YearsAreIndependent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Request(ctx, annualRequest(mon, tue))
	require.NoError(t, err)
	_, err = svc.Decide(ctx, rec.ID, true, "mgr-1", "")
	require.NoError(t, err)

	next, err := svc.BalanceSummary(ctx, "emp-1", 2026)
	require.NoError(t, err)
	assertDays(t, "0", next.Annual.Used)
	assertDays(t, "20", next.Annual.Remaining)
}
