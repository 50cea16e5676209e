/*
dto.go - Wire types for the HTTP API

Request and response shapes are decoupled from the domain types so the
wire format can stay stable while internals move. Dates travel as
YYYY-MM-DD strings, day amounts as decimal strings.
*/
package api

import (
	"time"

	"github.com/warp/planning-engine/calendar"
	"github.com/warp/planning-engine/directory"
	"github.com/warp/planning-engine/leave"
	"github.com/warp/planning-engine/schedule"
)

// ===== ERRORS =====

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ===== DIRECTORY =====

type EmployeeDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TeamID   string `json:"team_id,omitempty"`
	IsActive bool   `json:"is_active"`
}

type TaskDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ProjectID      string `json:"project_id,omitempty"`
	EstimatedHours string `json:"estimated_hours"`
	IsActive       bool   `json:"is_active"`
}

func toEmployeeDTO(e directory.Employee) EmployeeDTO {
	return EmployeeDTO{ID: e.ID, Name: e.Name, TeamID: e.TeamID, IsActive: e.IsActive}
}

func toTaskDTO(t directory.Task) TaskDTO {
	return TaskDTO{
		ID: t.ID, Name: t.Name, ProjectID: t.ProjectID,
		EstimatedHours: t.EstimatedHours.String(), IsActive: t.IsActive,
	}
}

// ===== SCHEDULING =====

type PlaceRequestDTO struct {
	Kind            string `json:"kind"` // "task" or "absence"
	TaskID          string `json:"task_id,omitempty"`
	AbsenceType     string `json:"absence_type,omitempty"`
	EmployeeID      string `json:"employee_id"`
	Date            string `json:"date"`
	Slot            string `json:"slot"`
	Span            int    `json:"span"`
	PreferredColumn *int   `json:"preferred_column,omitempty"`
}

type ResizeRequestDTO struct {
	Span        int  `json:"span"`
	ColumnStart *int `json:"column_start,omitempty"`
}

type MoveRequestDTO struct {
	Date        string `json:"date"`
	Slot        string `json:"slot"`
	ColumnStart *int   `json:"column_start,omitempty"`
}

type AssignmentDTO struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	TaskID      string    `json:"task_id,omitempty"`
	AbsenceType string    `json:"absence_type,omitempty"`
	EmployeeID  string    `json:"employee_id"`
	Date        string    `json:"date"`
	Slot        string    `json:"slot"`
	ColumnStart int       `json:"column_start"`
	ColumnSpan  int       `json:"column_span"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toAssignmentDTO(a schedule.Assignment) AssignmentDTO {
	return AssignmentDTO{
		ID:          a.ID,
		Kind:        string(a.Kind),
		TaskID:      a.TaskID,
		AbsenceType: string(a.Absence),
		EmployeeID:  a.Unit.EmployeeID,
		Date:        a.Unit.Date.String(),
		Slot:        a.Unit.Slot.String(),
		ColumnStart: a.Unit.ColumnStart,
		ColumnSpan:  a.Unit.ColumnSpan,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// SlotAvailabilityDTO is one half-day cell of the availability view.
type SlotAvailabilityDTO struct {
	Slot        string          `json:"slot"`
	Blocked     bool            `json:"blocked"`
	FreeColumns []int           `json:"free_columns"`
	Assignments []AssignmentDTO `json:"assignments"`
}

// DayAvailabilityDTO is one employee-day of the calendar grid.
type DayAvailabilityDTO struct {
	Date  string                `json:"date"`
	Slots []SlotAvailabilityDTO `json:"slots"`
}

// ===== LEAVE =====

type LeaveRequestDTO struct {
	EmployeeID string `json:"employee_id"`
	Type       string `json:"type"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	StartIsAM  bool   `json:"start_is_am"`
	EndIsAM    bool   `json:"end_is_am"`
	Reason     string `json:"reason,omitempty"`
}

type DecisionDTO struct {
	DecidedBy string `json:"decided_by"`
	Notes     string `json:"notes,omitempty"`
}

type RecordDTO struct {
	ID            string     `json:"id"`
	EmployeeID    string     `json:"employee_id"`
	Type          string     `json:"type"`
	StartDate     string     `json:"start_date"`
	EndDate       string     `json:"end_date"`
	StartIsAM     bool       `json:"start_is_am"`
	EndIsAM       bool       `json:"end_is_am"`
	Days          string     `json:"days"`
	Hours         string     `json:"hours"`
	Status        string     `json:"status"`
	Reason        string     `json:"reason,omitempty"`
	DecidedBy     string     `json:"decided_by,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	DecisionNotes string     `json:"decision_notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toRecordDTO(r leave.AbsenceRecord) RecordDTO {
	return RecordDTO{
		ID:            r.ID,
		EmployeeID:    r.EmployeeID,
		Type:          string(r.Type),
		StartDate:     r.StartDate.String(),
		EndDate:       r.EndDate.String(),
		StartIsAM:     r.StartIsAM,
		EndIsAM:       r.EndIsAM,
		Days:          r.Days.String(),
		Hours:         r.Hours.String(),
		Status:        string(r.Status),
		Reason:        r.Reason,
		DecidedBy:     r.DecidedBy,
		DecidedAt:     r.DecidedAt,
		DecisionNotes: r.DecisionNotes,
		CreatedAt:     r.CreatedAt,
	}
}

type BalanceDTO struct {
	Total     string `json:"total"`
	Used      string `json:"used"`
	Pending   string `json:"pending"`
	Remaining string `json:"remaining"`
}

type BalanceSummaryDTO struct {
	EmployeeID string     `json:"employee_id"`
	Year       int        `json:"year"`
	Annual     BalanceDTO `json:"annual"`
	Sick       BalanceDTO `json:"sick"`
	Other      BalanceDTO `json:"other"`
}

func toBalanceDTO(b leave.Balance) BalanceDTO {
	return BalanceDTO{
		Total:     b.Total.String(),
		Used:      b.Used.String(),
		Pending:   b.Pending.String(),
		Remaining: b.Remaining.String(),
	}
}

func toBalanceSummaryDTO(s leave.Summary) BalanceSummaryDTO {
	return BalanceSummaryDTO{
		EmployeeID: s.EmployeeID,
		Year:       s.Year,
		Annual:     toBalanceDTO(s.Annual),
		Sick:       toBalanceDTO(s.Sick),
		Other:      toBalanceDTO(s.Other),
	}
}

type AllocationDTO struct {
	EmployeeID string `json:"employee_id"`
	Year       int    `json:"year"`
	AnnualDays string `json:"annual_days"`
	SickDays   string `json:"sick_days"`
	OtherDays  string `json:"other_days"`
}

// parseSlotRef parses the date and slot strings shared by several DTOs.
func parseSlotRef(date, slot string) (calendar.Date, calendar.Slot, error) {
	d, err := calendar.ParseDate(date)
	if err != nil {
		return calendar.Date{}, "", err
	}
	s, err := calendar.ParseSlot(slot)
	if err != nil {
		return calendar.Date{}, "", err
	}
	return d, s, nil
}
