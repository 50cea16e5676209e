package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/planning-engine/directory"
	"github.com/warp/planning-engine/leave"
	"github.com/warp/planning-engine/logger"
	"github.com/warp/planning-engine/schedule"
	"github.com/warp/planning-engine/store/memory"
)

// =============================================================================
// FIXTURES
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.SaveEmployee(ctx, directory.Employee{ID: "emp-1", Name: "Ada", TeamID: "team-1", IsActive: true}))
	require.NoError(t, st.SaveTask(ctx, directory.Task{ID: "task-1", Name: "Build", ProjectID: "proj-1", EstimatedHours: decimal.NewFromInt(16), IsActive: true}))

	placer := schedule.NewPlacer(st, st)
	resolver := schedule.NewResolver(st)
	leaveSvc := leave.NewService(st, placer, st, leave.Defaults{
		AnnualDays: decimal.NewFromInt(20),
		SickDays:   decimal.NewFromInt(10),
		OtherDays:  decimal.NewFromInt(5),
	})
	h := NewHandler(placer, resolver, leaveSvc, st, logger.New("api-test"))
	srv := httptest.NewServer(NewRouter(h, nil, nil))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func placeBody(span int) PlaceRequestDTO {
	return PlaceRequestDTO{
		Kind:       "task",
		TaskID:     "task-1",
		EmployeeID: "emp-1",
		Date:       "2025-03-03",
		Slot:       "morning",
		Span:       span,
	}
}

// =============================================================================
// SCHEDULING ENDPOINTS
// =============================================================================

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPlaceAssignment(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/assignments", placeBody(2))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	dto := decodeBody[AssignmentDTO](t, resp)
	assert.NotEmpty(t, dto.ID)
	assert.Equal(t, 0, dto.ColumnStart)
	assert.Equal(t, 2, dto.ColumnSpan)
	assert.Equal(t, "2025-03-03", dto.Date)
}

func TestPlaceAssignment_ErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	// Geometry violations are 400.
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/assignments", placeBody(5))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Unknown employee is 404.
	body := placeBody(1)
	body.EmployeeID = "emp-unknown"
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/assignments", body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Fill the slot, then overflow is 409.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/assignments", placeBody(4))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/assignments", placeBody(1))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	errResp := decodeBody[ErrorResponse](t, resp)
	assert.Contains(t, errResp.Error, "no room")
}

func TestResizeMoveUnschedule(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/assignments", placeBody(1))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	placed := decodeBody[AssignmentDTO](t, resp)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/assignments/"+placed.ID+"/resize",
		ResizeRequestDTO{Span: 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resized := decodeBody[AssignmentDTO](t, resp)
	assert.Equal(t, 3, resized.ColumnSpan)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/assignments/"+placed.ID+"/move",
		MoveRequestDTO{Date: "2025-03-04", Slot: "afternoon"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	moved := decodeBody[AssignmentDTO](t, resp)
	assert.Equal(t, "2025-03-04", moved.Date)
	assert.Equal(t, "afternoon", moved.Slot)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/assignments/"+placed.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/assignments/"+placed.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAvailability(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/assignments", placeBody(2))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/employees/emp-1/availability?from=2025-03-03")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	days := decodeBody[[]DayAvailabilityDTO](t, resp)
	require.Len(t, days, 1)
	require.Len(t, days[0].Slots, 2)
	morning := days[0].Slots[0]
	assert.Equal(t, "morning", morning.Slot)
	assert.False(t, morning.Blocked)
	assert.Equal(t, []int{2, 3}, morning.FreeColumns)
	require.Len(t, morning.Assignments, 1)

	// Missing from is a 400.
	resp, err = http.Get(srv.URL + "/api/employees/emp-1/availability")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// DIRECTORY ENDPOINTS
// =============================================================================

func TestEmployeeLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/employees",
		EmployeeDTO{ID: "emp-2", Name: "Grace", TeamID: "team-1", IsActive: true})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/employees")
	require.NoError(t, err)
	list := decodeBody[[]EmployeeDTO](t, resp)
	assert.Len(t, list, 2)

	// Employee with active assignments cannot be deleted.
	place := placeBody(1)
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/assignments", place)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/employees/emp-1", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/employees/emp-2", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// LEAVE ENDPOINTS
// =============================================================================

func leaveBody() LeaveRequestDTO {
	return LeaveRequestDTO{
		EmployeeID: "emp-1",
		Type:       "annual",
		StartDate:  "2025-01-06",
		EndDate:    "2025-01-07",
		StartIsAM:  true,
		EndIsAM:    false,
		Reason:     "holiday",
	}
}

func TestLeaveWorkflow(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/leave/requests", leaveBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rec := decodeBody[RecordDTO](t, resp)
	assert.Equal(t, "pending", rec.Status)
	assert.Equal(t, "2", rec.Days)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/leave/requests/"+rec.ID+"/approve",
		DecisionDTO{DecidedBy: "mgr-1", Notes: "ok"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	approved := decodeBody[RecordDTO](t, resp)
	assert.Equal(t, "approved", approved.Status)
	assert.Equal(t, "mgr-1", approved.DecidedBy)

	// Approved days show in the balance. (Year from the record range.)
	resp, err := http.Get(srv.URL + "/api/employees/emp-1/balance?year=2025")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decodeBody[BalanceSummaryDTO](t, resp)
	assert.Equal(t, "2", summary.Annual.Used)
	assert.Equal(t, "18", summary.Annual.Remaining)

	// The approved leave now blocks the calendar.
	resp, err = http.Get(srv.URL + "/api/employees/emp-1/availability?from=2025-01-06")
	require.NoError(t, err)
	days := decodeBody[[]DayAvailabilityDTO](t, resp)
	assert.True(t, days[0].Slots[0].Blocked)

	// A second decision on the same record is a conflict.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/leave/requests/"+rec.ID+"/reject",
		DecisionDTO{DecidedBy: "mgr-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestLeave_InsufficientBalanceIs422(t *testing.T) {
	srv := newTestServer(t)

	body := leaveBody()
	body.StartDate = "2025-01-01"
	body.EndDate = "2025-01-31" // 31 days against a 20-day quota
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/leave/requests", body)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errResp := decodeBody[ErrorResponse](t, resp)
	assert.Contains(t, errResp.Error, "remaining")
}

func TestLeave_CancelPending(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/leave/requests", leaveBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rec := decodeBody[RecordDTO](t, resp)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/leave/requests/"+rec.ID+"/cancel", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/leave/requests/" + rec.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSetAllocation(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/leave/allocations", AllocationDTO{
		EmployeeID: "emp-1", Year: 2025,
		AnnualDays: "30", SickDays: "12", OtherDays: "6",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/employees/emp-1/balance?year=2025")
	require.NoError(t, err)
	summary := decodeBody[BalanceSummaryDTO](t, resp)
	assert.Equal(t, "30", summary.Annual.Total)
	assert.Equal(t, "12", summary.Sick.Total)
}
