package leave

import (
	"github.com/shopspring/decimal"
	"github.com/warp/planning-engine/calendar"
)

// ===== HALF-DAY ARITHMETIC =====

var (
	half        = decimal.NewFromFloat(0.5)
	hoursPerDay = decimal.NewFromInt(8)
	zeroDecimal = decimal.Zero
)

// RequestedDays computes the day count for an inclusive date range with
// half-day boundaries. A PM start shaves 0.5 off the first day; an AM end
// shaves 0.5 off the last day. Weekends inside the range count: quotas are
// calendar-day quotas, not working-day quotas.
//
// A single day can therefore be 1.0 (full), 0.5 (AM only or PM only), and
// the degenerate "starts PM, ends AM" combination is rejected.
func RequestedDays(start, end calendar.Date, startIsAM, endIsAM bool) (decimal.Decimal, error) {
	if end.Before(start) {
		return zeroDecimal, &InvalidRangeError{Start: start, End: end, Detail: "end before start"}
	}
	days := decimal.NewFromInt(int64(calendar.DaysBetween(start, end)) + 1)
	if !startIsAM {
		days = days.Sub(half)
	}
	if endIsAM {
		days = days.Sub(half)
	}
	if days.LessThanOrEqual(zeroDecimal) {
		return zeroDecimal, &InvalidRangeError{Start: start, End: end, Detail: "range covers no time"}
	}
	return days, nil
}

// HoursFor converts a day count to hours at the standard 8h day.
func HoursFor(days decimal.Decimal) decimal.Decimal {
	return days.Mul(hoursPerDay)
}

// SlotRef names one half-day cell on the planning grid.
type SlotRef struct {
	Date calendar.Date
	Slot calendar.Slot
}

// CoveredSlots expands a record's range into the (date, slot) cells its
// approval must block on the calendar. Weekend days are skipped: nothing is
// scheduled on them, so there is nothing to block, even though they count
// toward the day total above.
func CoveredSlots(r AbsenceRecord) []SlotRef {
	var refs []SlotRef
	for d := r.StartDate; d.BeforeOrEqual(r.EndDate); d = d.AddDays(1) {
		if d.IsWeekend() {
			continue
		}
		skipMorning := d.Equal(r.StartDate) && !r.StartIsAM
		skipAfternoon := d.Equal(r.EndDate) && r.EndIsAM
		if !skipMorning {
			refs = append(refs, SlotRef{Date: d, Slot: calendar.SlotMorning})
		}
		if !skipAfternoon {
			refs = append(refs, SlotRef{Date: d, Slot: calendar.SlotAfternoon})
		}
	}
	return refs
}
