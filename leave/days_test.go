package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/planning-engine/calendar"
	"github.com/warp/planning-engine/leave"
	"github.com/warp/planning-engine/schedule"
)

var (
	mon     = calendar.NewDate(2025, time.January, 6)
	tue     = calendar.NewDate(2025, time.January, 7)
	wed     = calendar.NewDate(2025, time.January, 8)
	fri     = calendar.NewDate(2025, time.January, 10)
	nextMon = calendar.NewDate(2025, time.January, 13)
)

func TestRequestedDays(t *testing.T) {
	tests := []struct {
		name               string
		start, end         calendar.Date
		startIsAM, endIsAM bool
		want               string
	}{
		{"single full day", mon, mon, true, false, "1"},
		{"morning only", mon, mon, true, true, "0.5"},
		{"afternoon only", mon, mon, false, false, "0.5"},
		{"pm start to am end", mon, wed, false, true, "2"},
		{"full week", mon, fri, true, false, "5"},
		{"weekend days count", fri, nextMon, true, false, "4"},
		{"pm start multi-day", mon, tue, false, false, "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days, err := leave.RequestedDays(tt.start, tt.end, tt.startIsAM, tt.endIsAM)
			require.NoError(t, err)
			assert.Equal(t, tt.want, days.String())
		})
	}
}

func TestRequestedDays_InvalidRanges(t *testing.T) {
	_, err := leave.RequestedDays(wed, mon, true, false)
	assert.ErrorIs(t, err, leave.ErrInvalidRange)

	// Starts in the afternoon and ends at noon of the same day.
	_, err = leave.RequestedDays(mon, mon, false, true)
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
}

func TestCoveredSlots_HalfDayBoundaries(t *testing.T) {
	rec := leave.AbsenceRecord{
		StartDate: mon,
		EndDate:   wed,
		StartIsAM: false, // afternoon start
		EndIsAM:   true,  // noon end
	}
	refs := leave.CoveredSlots(rec)
	require.Len(t, refs, 4)
	assert.Equal(t, leave.SlotRef{Date: mon, Slot: calendar.SlotAfternoon}, refs[0])
	assert.Equal(t, leave.SlotRef{Date: tue, Slot: calendar.SlotMorning}, refs[1])
	assert.Equal(t, leave.SlotRef{Date: tue, Slot: calendar.SlotAfternoon}, refs[2])
	assert.Equal(t, leave.SlotRef{Date: wed, Slot: calendar.SlotMorning}, refs[3])
}

func TestCoveredSlots_SkipsWeekends(t *testing.T) {
	rec := leave.AbsenceRecord{
		StartDate: fri,
		EndDate:   nextMon,
		StartIsAM: true,
		EndIsAM:   false,
	}
	refs := leave.CoveredSlots(rec)
	require.Len(t, refs, 4, "friday and monday, both slots each")
	for _, ref := range refs {
		assert.False(t, ref.Date.IsWeekend())
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, leave.CanTransition(leave.StatusDraft, leave.StatusPending))
	assert.True(t, leave.CanTransition(leave.StatusDraft, leave.StatusApproved))
	assert.True(t, leave.CanTransition(leave.StatusPending, leave.StatusApproved))
	assert.True(t, leave.CanTransition(leave.StatusPending, leave.StatusRejected))

	assert.False(t, leave.CanTransition(leave.StatusApproved, leave.StatusRejected))
	assert.False(t, leave.CanTransition(leave.StatusRejected, leave.StatusApproved))
	assert.False(t, leave.CanTransition(leave.StatusDraft, leave.StatusRejected))
}

func TestRecordYear_StartYearWins(t *testing.T) {
	rec := leave.AbsenceRecord{
		StartDate: calendar.NewDate(2025, time.December, 29),
		EndDate:   calendar.NewDate(2026, time.January, 2),
		Type:      schedule.AbsenceAnnual,
	}
	assert.Equal(t, 2025, rec.Year())
}
