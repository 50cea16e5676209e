/*
resolver.go - Read-only availability queries

PURPOSE:
  The resolver is the single source every other component queries before
  mutating occupancy. Given an employee and date it reports which calendar
  units are occupied, which slots are wholly blocked by an absence, and
  which columns remain free. It has no side effects.

BLOCKING RULE:
  A slot is blocked when an active absence assignment claims all four of
  its columns. A blocked slot removes the whole slot from availability
  regardless of any task assignments that may still sit there; placing a
  task onto a blocked slot fails with DateBlocked. A partial absence
  (span < 4) blocks only the columns it explicitly spans.
*/
package schedule

import (
	"context"

	"github.com/warp/planning-engine/calendar"
)

// Resolver answers availability questions from committed occupancy state.
type Resolver struct {
	Store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{Store: store}
}

// Occupied returns all active assignments (task and absence kinds) for the
// employee on the date, partitioned by slot order.
func (r *Resolver) Occupied(ctx context.Context, employeeID string, date calendar.Date) ([]Assignment, error) {
	return r.Store.ActiveAssignments(ctx, employeeID, date)
}

// OccupiedSlot narrows occupancy to one half-day slot.
func (r *Resolver) OccupiedSlot(ctx context.Context, employeeID string, date calendar.Date, slot calendar.Slot) ([]Assignment, error) {
	return r.Store.ActiveSlotAssignments(ctx, employeeID, date, slot)
}

// IsSlotBlocked reports whether an absence covers the full slot.
func (r *Resolver) IsSlotBlocked(ctx context.Context, employeeID string, date calendar.Date, slot calendar.Slot) (bool, error) {
	occupied, err := r.Store.ActiveSlotAssignments(ctx, employeeID, date, slot)
	if err != nil {
		return false, err
	}
	return blockingAbsence(occupied) != nil, nil
}

// FreeColumns lists the columns of a slot not covered by any active
// assignment. A blocked slot has no free columns.
func (r *Resolver) FreeColumns(ctx context.Context, employeeID string, date calendar.Date, slot calendar.Slot) ([]int, error) {
	occupied, err := r.Store.ActiveSlotAssignments(ctx, employeeID, date, slot)
	if err != nil {
		return nil, err
	}

	var taken [calendar.SlotColumns]bool
	for _, a := range occupied {
		for c := a.Unit.ColumnStart; c < a.Unit.ColumnEnd(); c++ {
			taken[c] = true
		}
	}

	free := make([]int, 0, calendar.SlotColumns)
	for c := 0; c < calendar.SlotColumns; c++ {
		if !taken[c] {
			free = append(free, c)
		}
	}
	return free, nil
}

// blockingAbsence returns the full-slot absence assignment among the
// occupied units, or nil.
func blockingAbsence(occupied []Assignment) *Assignment {
	for i := range occupied {
		if occupied[i].Kind == KindAbsence && occupied[i].Unit.FullSlot() {
			return &occupied[i]
		}
	}
	return nil
}
