/*
handlers_test.go - HTTP tests for the leave API

Tests for:
- Submit, approve, reject round trip and the resulting balance
- Actor headers, role checks and error status mapping
- Request validation (422 with field errors)
- Policy replacement, adjustments and manual credit runs
*/
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	genstore "github.com/warp/leave-engine/generic/store"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

const (
	asha = "asha@warp.dev"
	ravi = "ravi@warp.dev"
	hr   = "hr@warp.dev"
)

type testServer struct {
	store  *memory.Store
	router http.Handler
}

func newTestServer(t *testing.T, today string) *testServer {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	now := generic.MustParseDate(today).Time.Add(9 * time.Hour)
	store := memory.New()
	svc := leave.NewService(leave.Config{
		Employees:    store,
		Applications: store,
		Policies:     store,
		Audit:        store,
		Journal:      generic.NewJournal(genstore.NewMemory()),
		Logger:       log,
		Clock:        func() time.Time { return now },
	})
	store.Put(leave.Employee{
		ID:           "id-asha",
		Email:        asha,
		Name:         "Asha",
		ManagerEmail: ravi,
		JoiningDate:  generic.MustParseDate("2023-01-01"),
		Active:       true,
		LeaveBalance: leave.Balance{
			leave.CasualLeave: generic.MustParseDays("5"),
			leave.SickLeave:   generic.MustParseDays("3"),
		},
	})
	return &testServer{store: store, router: NewRouter(NewHandler(svc, nil, log), nil)}
}

func (s *testServer) do(t *testing.T, method, path, email, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.Header.Set(HeaderActorEmail, email)
		req.Header.Set(HeaderActorRole, role)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// balanceOf reads the balance through the API as an admin.
func (s *testServer) balanceOf(t *testing.T, email string, key leave.LeaveTypeKey) string {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/employees/"+email+"/balance", hr, "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var raw struct {
		Balance map[string]json.Number `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	return raw.Balance[string(key)].String()
}

func (s *testServer) submit(t *testing.T, dates ...string) ApplicationDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/leaves", asha, "employee", SubmitLeaveRequest{
		LeaveType: "Casual Leave",
		Dates:     dates,
		Reason:    "family trip",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decodeBody[OutcomeDTO](t, rec)
	require.NotNil(t, out.Application)
	return *out.Application
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestLeaveLifecycle_OverHTTP(t *testing.T) {
	// GIVEN: Asha has 5 casual days and submits a 2-day application
	// WHEN: Her manager approves and HR then rejects
	// THEN: The balance goes 5 -> 3 -> 5 and the history has three records

	s := newTestServer(t, "2024-03-10")
	app := s.submit(t, "2024-04-02", "2024-04-01")
	assert.Equal(t, "pending", app.Status)
	assert.Equal(t, []string{"2024-04-01", "2024-04-02"}, app.Dates)
	assert.Equal(t, "5", s.balanceOf(t, asha, leave.CasualLeave), "pending holds nothing")

	rec := s.do(t, http.MethodPost, "/api/leaves/"+app.ID+"/approve", ravi, "manager", CommentRequest{Comment: "ok"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody[OutcomeDTO](t, rec)
	assert.Equal(t, "manager_approved", out.Application.Status)
	require.Len(t, out.Movements, 1)
	assert.Equal(t, "-2", out.Movements[0].Delta.String())
	assert.Equal(t, "3", s.balanceOf(t, asha, leave.CasualLeave))

	// Empty body is accepted on reject.
	rec = s.do(t, http.MethodPost, "/api/leaves/"+app.ID+"/reject", hr, "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "5", s.balanceOf(t, asha, leave.CasualLeave))

	rec = s.do(t, http.MethodGet, "/api/leaves/"+app.ID, asha, "employee", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[ApplicationDTO](t, rec)
	assert.Equal(t, "rejected", got.Status)
	require.Len(t, got.Approvals, 3)
	assert.Equal(t, "manager_approved", got.Approvals[1].Action)

	rec = s.do(t, http.MethodGet, "/api/employees/"+asha+"/journal", asha, "employee", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txs := decodeBody[[]TransactionDTO](t, rec)
	require.Len(t, txs, 2)
	assert.Equal(t, "consumption", txs[0].Type)
	assert.Equal(t, "reversal", txs[1].Type)
}

func TestApprove_SecondManagerApproval_Conflict(t *testing.T) {
	s := newTestServer(t, "2024-03-10")
	app := s.submit(t, "2024-04-01")

	rec := s.do(t, http.MethodPost, "/api/leaves/"+app.ID+"/approve", ravi, "manager", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/leaves/"+app.ID+"/approve", ravi, "manager", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "4", s.balanceOf(t, asha, leave.CasualLeave), "debited exactly once")
}

func TestSetStatus_ExplicitTarget(t *testing.T) {
	s := newTestServer(t, "2024-03-10")
	app := s.submit(t, "2024-04-01")

	rec := s.do(t, http.MethodPost, "/api/leaves/"+app.ID+"/actions", hr, "admin", DecisionRequest{Status: "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "4", s.balanceOf(t, asha, leave.CasualLeave))

	rec = s.do(t, http.MethodPost, "/api/leaves/"+app.ID+"/actions", hr, "admin", DecisionRequest{Status: "cancelled"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestEditAndDelete(t *testing.T) {
	s := newTestServer(t, "2024-03-10")
	app := s.submit(t, "2024-04-01")
	rec := s.do(t, http.MethodPost, "/api/leaves/"+app.ID+"/approve", hr, "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4", s.balanceOf(t, asha, leave.CasualLeave))

	// WHEN: HR extends the approved leave to three days
	rec = s.do(t, http.MethodPatch, "/api/leaves/"+app.ID, hr, "admin", EditLeaveRequest{
		Dates: []string{"2024-04-01", "2024-04-02", "2024-04-03"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2", s.balanceOf(t, asha, leave.CasualLeave))

	// Employees cannot edit.
	rec = s.do(t, http.MethodPatch, "/api/leaves/"+app.ID, asha, "employee", EditLeaveRequest{Comment: "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/leaves/"+app.ID, hr, "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "5", s.balanceOf(t, asha, leave.CasualLeave))

	rec = s.do(t, http.MethodGet, "/api/leaves/"+app.ID, hr, "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// THEN: the deletion log still shows what was removed
	rec = s.do(t, http.MethodGet, "/api/admin/deletions?employee="+asha, hr, "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	deletions := decodeBody[[]DeletionLogDTO](t, rec)
	require.Len(t, deletions, 1)
	assert.Equal(t, app.ID, deletions[0].ApplicationID)
	assert.Equal(t, "3", deletions[0].Refunded.String())
	assert.Equal(t, []string{"2024-04-01", "2024-04-02", "2024-04-03"}, deletions[0].Before.Dates)
	assert.Equal(t, "deleted", deletions[0].Approvals[len(deletions[0].Approvals)-1].Action)

	rec = s.do(t, http.MethodGet, "/api/admin/deletions", asha, "employee", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// VALIDATION AND ERRORS
// =============================================================================

func TestSubmit_RequestValidation(t *testing.T) {
	s := newTestServer(t, "2024-03-10")

	rec := s.do(t, http.MethodPost, "/api/leaves", asha, "employee", SubmitLeaveRequest{
		LeaveType: "casual_leave",
		Dates:     []string{"01/04/2024"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "invalid_request", resp.Code)
	assert.Contains(t, rec.Body.String(), "YYYY-MM-DD")

	rec = s.do(t, http.MethodPost, "/api/leaves", asha, "employee", SubmitLeaveRequest{LeaveType: "casual_leave"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "dates are required")

	req := httptest.NewRequest(http.MethodPost, "/api/leaves", bytes.NewBufferString("{not json"))
	req.Header.Set(HeaderActorEmail, asha)
	out := httptest.NewRecorder()
	s.router.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestSubmit_GateRefusal_Returns422WithIssues(t *testing.T) {
	s := newTestServer(t, "2024-03-10")

	rec := s.do(t, http.MethodPost, "/api/leaves", asha, "employee", SubmitLeaveRequest{
		LeaveType: "Casual Leave",
		Dates:     []string{"2024-04-01", "2024-04-02", "2024-04-03", "2024-04-04", "2024-04-05", "2024-04-08"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "validation_failed", resp.Code)
	assert.Contains(t, rec.Body.String(), "insufficient")
}

func TestValidate_DryRun(t *testing.T) {
	s := newTestServer(t, "2024-03-10")

	rec := s.do(t, http.MethodPost, "/api/leaves/validate", asha, "employee", SubmitLeaveRequest{
		LeaveType: "sick_leave",
		Dates:     []string{"2024-04-01"},
		IsHalfDay: true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[ValidationDTO](t, rec)
	assert.True(t, res.Valid)
	assert.Equal(t, "0.5", res.DaysCount.String())
	assert.Equal(t, "3", res.Available.String())

	rec = s.do(t, http.MethodGet, "/api/leaves", hr, "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]ApplicationDTO](t, rec), "validate stores nothing")
}

func TestActorHeaders(t *testing.T) {
	s := newTestServer(t, "2024-03-10")

	rec := s.do(t, http.MethodGet, "/api/leaves", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/leaves", asha, "root", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Employees only see their own records.
	rec = s.do(t, http.MethodGet, "/api/employees/"+asha+"/balance", ravi, "employee", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/employees/nobody@warp.dev", hr, "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Submitting for someone else.
	rec = s.do(t, http.MethodPost, "/api/leaves", ravi, "employee", SubmitLeaveRequest{
		EmployeeEmail: asha, LeaveType: "casual_leave", Dates: []string{"2024-04-01"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListLeaves_StatusFilter(t *testing.T) {
	s := newTestServer(t, "2024-03-10")
	first := s.submit(t, "2024-04-01")
	s.submit(t, "2024-05-06")
	rec := s.do(t, http.MethodPost, "/api/leaves/"+first.ID+"/approve", hr, "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/leaves?status=approved", ravi, "manager", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	apps := decodeBody[[]ApplicationDTO](t, rec)
	require.Len(t, apps, 1)
	assert.Equal(t, first.ID, apps[0].ID)

	rec = s.do(t, http.MethodGet, "/api/leaves?status=pending,approved", asha, "employee", nil)
	assert.Len(t, decodeBody[[]ApplicationDTO](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/api/leaves?status=done", asha, "employee", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ADMINISTRATION
// =============================================================================

func TestOnboard(t *testing.T) {
	s := newTestServer(t, "2024-03-10")

	rec := s.do(t, http.MethodPost, "/api/employees", hr, "admin", OnboardRequest{
		Email:        "meera@warp.dev",
		Name:         "Meera",
		ManagerEmail: ravi,
		JoiningDate:  "2024-01-15",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	emp := decodeBody[EmployeeDTO](t, rec)
	assert.True(t, emp.Active)
	assert.Equal(t, 202403, emp.LastCredit)
	assert.Equal(t, "0.5", s.balanceOf(t, "meera@warp.dev", leave.CasualLeave), "one completed month at 0.5")

	rec = s.do(t, http.MethodPost, "/api/employees", hr, "admin", OnboardRequest{Email: "meera@warp.dev"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/employees", ravi, "manager", OnboardRequest{Email: "new@warp.dev"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/employees", hr, "admin", OnboardRequest{Email: "not-an-email"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPolicy_GetAndReplace(t *testing.T) {
	s := newTestServer(t, "2024-03-10")

	rec := s.do(t, http.MethodGet, "/api/policy", asha, "employee", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"casual_leave"`)

	policy := map[string]any{
		"leave_types": []map[string]any{
			{"leave_type": "Casual Leave", "annual_quota": 12, "credit_type": "monthly", "monthly_credit": 1},
			{"leave_type": "Sick Leave", "annual_quota": 6, "credit_type": "annually"},
		},
	}
	rec = s.do(t, http.MethodPut, "/api/policy", asha, "employee", policy)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/policy", hr, "admin", policy)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/policy", asha, "employee", nil)
	assert.NotContains(t, rec.Body.String(), "earned_leave")

	rec = s.do(t, http.MethodPut, "/api/policy", hr, "admin", map[string]any{
		"leave_types": []map[string]any{{"leave_type": "Casual Leave", "credit_type": "weekly"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAdjustments(t *testing.T) {
	s := newTestServer(t, "2024-03-10")

	rec := s.do(t, http.MethodPost, "/api/admin/adjustments", hr, "admin", AdjustmentRequest{
		EmployeeEmail: asha, Action: "add", LeaveType: "comp_off", Days: generic.MustParseDays("1.5"), Reason: "worked saturday",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entry := decodeBody[AdjustmentLogDTO](t, rec)
	assert.Equal(t, "1.5", entry.NewBalance.String())
	assert.Equal(t, "1.5", s.balanceOf(t, asha, leave.CompOff))

	rec = s.do(t, http.MethodPost, "/api/admin/adjustments", hr, "admin", AdjustmentRequest{
		EmployeeEmail: asha, Action: "deduct", LeaveType: "sick_leave", Days: generic.MustParseDays("10"), Reason: "correction",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "insufficient_balance", decodeBody[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/admin/adjustments/bulk", hr, "admin", BulkAdjustmentRequest{
		Employees: []string{asha, "ghost@warp.dev"}, Action: "set", LeaveType: "earned_leave", Days: generic.MustParseDays("4"), Reason: "migration",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bulk := decodeBody[BulkAdjustmentDTO](t, rec)
	assert.Equal(t, 2, bulk.Processed)
	assert.Len(t, bulk.Adjusted, 1)
	require.Len(t, bulk.Errors, 1)
	assert.Equal(t, "ghost@warp.dev", bulk.Errors[0].Employee)

	rec = s.do(t, http.MethodGet, "/api/admin/adjustments?employee="+asha+"&limit=1", hr, "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decodeBody[[]AdjustmentLogDTO](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, "bulk_set", logs[0].ActionType)

	rec = s.do(t, http.MethodGet, "/api/admin/adjustments", asha, "employee", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreditRun_Manual(t *testing.T) {
	s := newTestServer(t, "2024-04-01")

	rec := s.do(t, http.MethodPost, "/api/admin/credits/run", hr, "admin", AsOfRequest{AsOf: "2024-04-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decodeBody[CreditRunDTO](t, rec)
	assert.Equal(t, 202404, run.Period)
	assert.Equal(t, []string{asha}, run.Credited)
	assert.Equal(t, "5.5", s.balanceOf(t, asha, leave.CasualLeave))

	// Same month again credits nobody.
	rec = s.do(t, http.MethodPost, "/api/admin/credits/run", hr, "admin", AsOfRequest{AsOf: "2024-04-01"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[CreditRunDTO](t, rec).Credited)
	assert.Equal(t, "5.5", s.balanceOf(t, asha, leave.CasualLeave))

	rec = s.do(t, http.MethodGet, "/api/admin/credits/logs?employee="+asha, hr, "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decodeBody[[]CreditLogDTO](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, 4, logs[0].CreditMonth)

	rec = s.do(t, http.MethodGet, "/api/admin/credits/schedule", hr, "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[ScheduleDTO](t, rec).Enabled)
}

func TestRecalculate(t *testing.T) {
	// GIVEN: Asha joined in 2023 and holds one approved casual day in 2024
	// WHEN: HR recalculates as of 2024-03-10
	// THEN: Entitlement is capped at the default table and the approved day is subtracted

	s := newTestServer(t, "2024-03-10")
	app := s.submit(t, "2024-04-01")
	rec := s.do(t, http.MethodPost, "/api/leaves/"+app.ID+"/approve", hr, "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/employees/"+asha+"/balance/recalculate", asha, "employee", AsOfRequest{AsOf: "2024-03-10"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/employees/"+asha+"/balance/recalculate", hr, "admin", AsOfRequest{AsOf: "2024-03-10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[RecalculationDTO](t, rec)
	assert.Equal(t, "4", res.Previous["casual_leave"].String())
	assert.Equal(t, "5", res.Balance["casual_leave"].String())
	assert.Equal(t, "1", res.Used["casual_leave"].String())
	assert.Equal(t, "5", s.balanceOf(t, asha, leave.CasualLeave))
	assert.Equal(t, "6", s.balanceOf(t, asha, leave.SickLeave))
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, "2024-03-10")
	rec := s.do(t, http.MethodGet, "/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
