/*
Package calendar defines the addressable cell of the planning grid.

PURPOSE:
  Every schedulable item - a project task or an absence block - occupies a
  Unit: one employee, one date, one half-day slot, and a contiguous range of
  quarter-columns inside that slot. A slot holds exactly four columns, so a
  unit spans between one and four quarter-units.

GEOMETRY:
  Columns are addressed as half-open ranges [ColumnStart, ColumnStart+Span).
  Two units conflict iff they share (employee, date, slot) and their column
  ranges intersect. This package is pure validation and geometry; it holds no
  state and performs no I/O. Every other component builds on these rules.

SEE ALSO:
  - schedule: occupancy queries and placement built on Unit
  - leave: absence records that materialize as full-slot units
*/
package calendar

import (
	"errors"
	"fmt"
)

// SlotColumns is the capacity of one half-day slot in quarter-units.
const SlotColumns = 4

// =============================================================================
// SLOT - Morning/Afternoon partition of a day
// =============================================================================

type Slot string

const (
	SlotMorning   Slot = "morning"
	SlotAfternoon Slot = "afternoon"
)

func (s Slot) Valid() bool {
	return s == SlotMorning || s == SlotAfternoon
}

func (s Slot) String() string { return string(s) }

// ParseSlot converts a wire value into a Slot.
func ParseSlot(v string) (Slot, error) {
	s := Slot(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid slot %q (use %q or %q)", v, SlotMorning, SlotAfternoon)
	}
	return s, nil
}

// Slots lists both half-day slots in day order.
func Slots() [2]Slot { return [2]Slot{SlotMorning, SlotAfternoon} }

// =============================================================================
// UNIT - One occupied cell range of the grid
// =============================================================================

// Unit is the tuple (employee, date, slot, columnStart, columnSpan).
// Invariant: 0 <= ColumnStart, 1 <= ColumnSpan, ColumnStart+ColumnSpan <= 4.
type Unit struct {
	EmployeeID  string
	Date        Date
	Slot        Slot
	ColumnStart int
	ColumnSpan  int
}

// ColumnEnd returns the exclusive end column of the unit's range.
func (u Unit) ColumnEnd() int { return u.ColumnStart + u.ColumnSpan }

// FullSlot reports whether the unit claims every column of its slot.
func (u Unit) FullSlot() bool { return u.ColumnSpan == SlotColumns }

// Validate checks the unit's geometry. It rejects before any store read, so
// malformed requests never reach the placement path.
func (u Unit) Validate() error {
	if !u.Slot.Valid() {
		return &InvalidSpanError{Unit: u, Detail: fmt.Sprintf("invalid slot %q", u.Slot)}
	}
	if u.ColumnSpan < 1 || u.ColumnSpan > SlotColumns {
		return &InvalidSpanError{Unit: u, Detail: fmt.Sprintf("span %d outside [1,%d]", u.ColumnSpan, SlotColumns)}
	}
	if u.ColumnStart < 0 || u.ColumnStart > SlotColumns-1 {
		return &InvalidSpanError{Unit: u, Detail: fmt.Sprintf("column start %d outside [0,%d]", u.ColumnStart, SlotColumns-1)}
	}
	if u.ColumnEnd() > SlotColumns {
		return &InvalidSpanError{Unit: u, Detail: fmt.Sprintf("range [%d,%d) exceeds slot capacity", u.ColumnStart, u.ColumnEnd())}
	}
	return nil
}

// Overlaps reports whether two units contend for the same columns: same
// employee, same date, same slot, intersecting column ranges.
func Overlaps(a, b Unit) bool {
	if a.EmployeeID != b.EmployeeID || a.Slot != b.Slot || !a.Date.Equal(b.Date) {
		return false
	}
	return a.ColumnStart < b.ColumnEnd() && b.ColumnStart < a.ColumnEnd()
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrInvalidSpan is the sentinel for column geometry violations. Always a
// caller bug, never retried.
var ErrInvalidSpan = errors.New("invalid column span")

// InvalidSpanError carries the rejected unit for error messages.
type InvalidSpanError struct {
	Unit   Unit
	Detail string
}

func (e *InvalidSpanError) Error() string {
	return fmt.Sprintf("invalid span: %s", e.Detail)
}

func (e *InvalidSpanError) Unwrap() error { return ErrInvalidSpan }
