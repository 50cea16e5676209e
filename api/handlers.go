/*
handlers.go - HTTP handler implementations

PURPOSE:
  Translates HTTP requests into engine operations and domain errors into
  status codes. Handlers hold no business logic: validation of geometry,
  occupancy and balances all lives in the schedule and leave packages.

ERROR MAPPING:
  400  invalid geometry, unparseable dates/slots, malformed bodies
  404  unknown employee, task, assignment or record
  409  slot full, capacity conflict, blocked date, illegal transition,
       employee-with-assignments deletion
  422  insufficient or exceeded leave balance, inactive references

SEE ALSO:
  - server.go: routing and middleware
  - schedule/errors.go, leave/errors.go: the taxonomy mapped here
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/planning-engine/calendar"
	"github.com/warp/planning-engine/directory"
	"github.com/warp/planning-engine/leave"
	"github.com/warp/planning-engine/schedule"
)

// Handler bundles the engine services behind the HTTP surface.
type Handler struct {
	Placer    *schedule.Placer
	Resolver  *schedule.Resolver
	Leave     *leave.Service
	Directory directory.Store
	Log       zerolog.Logger
}

func NewHandler(placer *schedule.Placer, resolver *schedule.Resolver, leaveSvc *leave.Service, dir directory.Store, log zerolog.Logger) *Handler {
	return &Handler{
		Placer:    placer,
		Resolver:  resolver,
		Leave:     leaveSvc,
		Directory: dir,
		Log:       log,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Directory.ListEmployees(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]EmployeeDTO, 0, len(employees))
	for _, e := range employees {
		dtos = append(dtos, toEmployeeDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	e, err := h.Directory.GetEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if e == nil {
		writeErrorMessage(w, http.StatusNotFound, "employee not found")
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*e))
}

func (h *Handler) SaveEmployee(w http.ResponseWriter, r *http.Request) {
	var dto EmployeeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if dto.ID == "" || dto.Name == "" {
		writeErrorMessage(w, http.StatusBadRequest, "id and name are required")
		return
	}
	e := directory.Employee{ID: dto.ID, Name: dto.Name, TeamID: dto.TeamID, IsActive: dto.IsActive}
	if err := h.Directory.SaveEmployee(r.Context(), e); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(e))
}

func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	if err := h.Directory.DeleteEmployee(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TASKS
// =============================================================================

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Directory.ListTasks(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		dtos = append(dtos, toTaskDTO(t))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveTask(w http.ResponseWriter, r *http.Request) {
	var dto TaskDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if dto.ID == "" || dto.Name == "" {
		writeErrorMessage(w, http.StatusBadRequest, "id and name are required")
		return
	}
	hours := decimal.Zero
	if dto.EstimatedHours != "" {
		var err error
		if hours, err = decimal.NewFromString(dto.EstimatedHours); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid estimated_hours")
			return
		}
	}
	t := directory.Task{
		ID: dto.ID, Name: dto.Name, ProjectID: dto.ProjectID,
		EstimatedHours: hours, IsActive: dto.IsActive,
	}
	if err := h.Directory.SaveTask(r.Context(), t); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskDTO(t))
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Directory.DeleteTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func (h *Handler) PlaceAssignment(w http.ResponseWriter, r *http.Request) {
	var dto PlaceRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	date, slot, err := parseSlotRef(dto.Date, dto.Slot)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.Placer.Place(r.Context(), schedule.PlaceRequest{
		Kind:            schedule.Kind(dto.Kind),
		TaskID:          dto.TaskID,
		Absence:         schedule.AbsenceType(dto.AbsenceType),
		EmployeeID:      dto.EmployeeID,
		Date:            date,
		Slot:            slot,
		Span:            dto.Span,
		PreferredColumn: dto.PreferredColumn,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignmentDTO(*a))
}

func (h *Handler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.Placer.Store.GetAssignment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if a == nil {
		writeErrorMessage(w, http.StatusNotFound, "assignment not found")
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(*a))
}

func (h *Handler) ResizeAssignment(w http.ResponseWriter, r *http.Request) {
	var dto ResizeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := h.Placer.Resize(r.Context(), chi.URLParam(r, "id"), dto.Span, dto.ColumnStart)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(*a))
}

func (h *Handler) MoveAssignment(w http.ResponseWriter, r *http.Request) {
	var dto MoveRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	date, slot, err := parseSlotRef(dto.Date, dto.Slot)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.Placer.Move(r.Context(), chi.URLParam(r, "id"), date, slot, dto.ColumnStart)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(*a))
}

func (h *Handler) UnscheduleAssignment(w http.ResponseWriter, r *http.Request) {
	if err := h.Placer.Unschedule(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// GetAvailability returns the calendar grid for an employee over a date
// range (?from=YYYY-MM-DD&to=YYYY-MM-DD, defaulting to a single day).
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	from, err := calendar.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid or missing from date")
		return
	}
	to := from
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = calendar.ParseDate(v); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid to date")
			return
		}
	}
	if to.Before(from) {
		writeErrorMessage(w, http.StatusBadRequest, "to precedes from")
		return
	}
	if calendar.DaysBetween(from, to) > 92 {
		writeErrorMessage(w, http.StatusBadRequest, "range exceeds 92 days")
		return
	}

	if _, err := directory.ActiveEmployee(r.Context(), h.Directory, employeeID); err != nil {
		h.writeError(w, r, err)
		return
	}

	var days []DayAvailabilityDTO
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		day := DayAvailabilityDTO{Date: d.String()}
		for _, slot := range calendar.Slots() {
			occupied, err := h.Resolver.OccupiedSlot(r.Context(), employeeID, d, slot)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			free, err := h.Resolver.FreeColumns(r.Context(), employeeID, d, slot)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			blocked, err := h.Resolver.IsSlotBlocked(r.Context(), employeeID, d, slot)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			dtos := make([]AssignmentDTO, 0, len(occupied))
			for _, a := range occupied {
				dtos = append(dtos, toAssignmentDTO(a))
			}
			day.Slots = append(day.Slots, SlotAvailabilityDTO{
				Slot:        slot.String(),
				Blocked:     blocked,
				FreeColumns: free,
				Assignments: dtos,
			})
		}
		days = append(days, day)
	}
	writeJSON(w, http.StatusOK, days)
}

// =============================================================================
// LEAVE
// =============================================================================

func (h *Handler) SubmitLeaveRequest(w http.ResponseWriter, r *http.Request) {
	var dto LeaveRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	start, err := calendar.ParseDate(dto.StartDate)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid start_date")
		return
	}
	end, err := calendar.ParseDate(dto.EndDate)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid end_date")
		return
	}
	rec, err := h.Leave.Request(r.Context(), leave.RequestInput{
		EmployeeID: dto.EmployeeID,
		Type:       schedule.AbsenceType(dto.Type),
		StartDate:  start,
		EndDate:    end,
		StartIsAM:  dto.StartIsAM,
		EndIsAM:    dto.EndIsAM,
		Reason:     dto.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordDTO(*rec))
}

func (h *Handler) ListLeaveRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.Leave.Records(r.Context(),
		r.URL.Query().Get("employee_id"),
		leave.Status(r.URL.Query().Get("status")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]RecordDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toRecordDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetLeaveRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Leave.Record(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	h.decideLeave(w, r, true)
}

func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	h.decideLeave(w, r, false)
}

func (h *Handler) decideLeave(w http.ResponseWriter, r *http.Request, approve bool) {
	var dto DecisionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if dto.DecidedBy == "" {
		writeErrorMessage(w, http.StatusBadRequest, "decided_by is required")
		return
	}
	rec, err := h.Leave.Decide(r.Context(), chi.URLParam(r, "id"), approve, dto.DecidedBy, dto.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

func (h *Handler) CancelLeave(w http.ResponseWriter, r *http.Request) {
	if err := h.Leave.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteLeaveRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.Leave.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	year := time.Now().UTC().Year()
	if v := r.URL.Query().Get("year"); v != "" {
		var err error
		if year, err = strconv.Atoi(v); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid year")
			return
		}
	}
	summary, err := h.Leave.BalanceSummary(r.Context(), chi.URLParam(r, "id"), year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceSummaryDTO(*summary))
}

func (h *Handler) SetAllocation(w http.ResponseWriter, r *http.Request) {
	var dto AllocationDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a := leave.Allocation{EmployeeID: dto.EmployeeID, Year: dto.Year}
	var err error
	if a.AnnualDays, err = decimal.NewFromString(dto.AnnualDays); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid annual_days")
		return
	}
	if a.SickDays, err = decimal.NewFromString(dto.SickDays); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid sick_days")
		return
	}
	if a.OtherDays, err = decimal.NewFromString(dto.OtherDays); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid other_days")
		return
	}
	if err := h.Leave.SetAllocation(r.Context(), a); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// writeError maps domain errors onto HTTP status codes and logs the rest.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, calendar.ErrInvalidSpan),
		errors.Is(err, leave.ErrInvalidRange):
		status = http.StatusBadRequest
	case errors.Is(err, directory.ErrEmployeeNotFound),
		errors.Is(err, directory.ErrTaskNotFound),
		errors.Is(err, schedule.ErrAssignmentNotFound),
		errors.Is(err, leave.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, schedule.ErrSlotFull),
		errors.Is(err, schedule.ErrCapacityConflict),
		errors.Is(err, schedule.ErrDateBlocked),
		errors.Is(err, leave.ErrInvalidTransition),
		errors.Is(err, directory.ErrEmployeeHasAssignments):
		status = http.StatusConflict
	case errors.Is(err, leave.ErrInsufficientBalance),
		errors.Is(err, leave.ErrBalanceExceeded),
		errors.Is(err, directory.ErrEmployeeInactive),
		errors.Is(err, directory.ErrTaskInactive):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.Log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeErrorMessage(w, status, "internal error")
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
