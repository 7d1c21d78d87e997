/*
handlers.go - HTTP request handlers

PURPOSE:
  Translates HTTP requests to leave.Service calls and formats responses.
  Handlers hold no business logic: authorization, validation against
  the policy and every balance movement happen in the service.

ACTOR:
  The caller identifies itself with two headers set by the gateway in
  front of this service:
    X-Actor-Email  e-mail of the acting user
    X-Actor-Role   employee | manager | admin
  Requests without them are rejected with 401.

ERROR HANDLING:
  - 400 Bad Request:   Malformed body or client-side rule violation
  - 401 Unauthorized:  Missing actor headers
  - 403 Forbidden:     Actor may not perform the operation
  - 404 Not Found:     Employee or application doesn't exist
  - 409 Conflict:      Already processed, duplicate or concurrent update
  - 422 Unprocessable: Request body fails validation or the gate refuses it
  - 500 Internal:      Store failures

ENDPOINTS:
  Employees:
    POST /api/employees                       Onboard
    GET  /api/employees/{email}               Employee record
    GET  /api/employees/{email}/balance       Stored balance
    GET  /api/employees/{email}/journal       Journaled movements
    POST /api/employees/{email}/balance/recalculate   Rebuild balance (admin)

  Leaves:
    POST   /api/leaves                 Submit
    POST   /api/leaves/validate        Dry-run the submission gate
    GET    /api/leaves                 List visible applications
    GET    /api/leaves/{id}            Get
    PATCH  /api/leaves/{id}            Edit (admin)
    DELETE /api/leaves/{id}            Delete
    POST   /api/leaves/{id}/approve    Approve at the actor's level
    POST   /api/leaves/{id}/reject     Reject
    POST   /api/leaves/{id}/actions    Move to an explicit status

  Policy:
    GET /api/policy, PUT /api/policy

  Admin:
    POST /api/admin/adjustments, POST /api/admin/adjustments/bulk,
    GET  /api/admin/adjustments, POST /api/admin/credits/run,
    GET  /api/admin/credits/logs, GET /api/admin/credits/schedule

SEE ALSO:
  - server.go: Route definitions
  - dto.go: Request/response types
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

const (
	HeaderActorEmail = "X-Actor-Email"
	HeaderActorRole  = "X-Actor-Role"

	defaultLogLimit = 100
	maxBodyBytes    = 1 << 20
)

// Handler handles HTTP requests.
type Handler struct {
	Service   *leave.Service
	Policies  *factory.PolicyFactory
	Scheduler *CreditScheduler // optional

	validate *validator.Validate
	log      logrus.FieldLogger
}

// NewHandler creates a new handler.
func NewHandler(svc *leave.Service, scheduler *CreditScheduler, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Service:   svc,
		Policies:  factory.NewPolicyFactory(),
		Scheduler: scheduler,
		validate:  validator.New(),
		log:       log.WithField("component", "api"),
	}
}

// =============================================================================
// EMPLOYEE ENDPOINTS
// =============================================================================

func (h *Handler) OnboardEmployee(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req OnboardRequest
	if !h.decode(w, r, &req) {
		return
	}

	emp := leave.Employee{
		Email:        req.Email,
		Name:         req.Name,
		ManagerEmail: req.ManagerEmail,
	}
	if req.JoiningDate != "" {
		emp.JoiningDate = generic.MustParseDate(req.JoiningDate)
	}
	if req.CompOff.IsPositive() {
		emp.LeaveBalance = leave.Balance{leave.CompOff: req.CompOff}
	}

	created, err := h.Service.Onboard(r.Context(), actor, emp)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(created))
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	_, email, ok := h.employeeAccess(w, r)
	if !ok {
		return
	}
	emp, err := h.Service.Employee(r.Context(), email)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	_, email, ok := h.employeeAccess(w, r)
	if !ok {
		return
	}
	bal, err := h.Service.Balance(r.Context(), email)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{Email: email, Balance: toBalanceMap(bal)})
}

func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	_, email, ok := h.employeeAccess(w, r)
	if !ok {
		return
	}
	if _, err := h.Service.Employee(r.Context(), email); err != nil {
		h.writeServiceError(w, err)
		return
	}
	txs, err := h.Service.Journal(r.Context(), email)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionDTO(tx))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) RecalculateBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	email, ok := emailParam(w, r)
	if !ok {
		return
	}
	var req AsOfRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	res, err := h.Service.RecalculateBalance(r.Context(), actor, email, asOf(req.AsOf))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecalculationDTO(res))
}

// employeeAccess lets employees read their own records and managers and
// admins anyone's.
func (h *Handler) employeeAccess(w http.ResponseWriter, r *http.Request) (leave.Actor, string, bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return actor, "", false
	}
	email, ok := emailParam(w, r)
	if !ok {
		return actor, "", false
	}
	if actor.Role == leave.RoleEmployee && actor.Email != email {
		writeError(w, http.StatusForbidden, "Not allowed to view this employee", nil)
		return actor, "", false
	}
	return actor, email, true
}

// =============================================================================
// LEAVE APPLICATION ENDPOINTS
// =============================================================================

func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req SubmitLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.Service.SubmitApplication(r.Context(), actor, toSubmitInput(actor, req))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOutcomeDTO(out))
}

func (h *Handler) ValidateLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req SubmitLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Service.ValidateApplication(r.Context(), toSubmitInput(actor, req))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toValidationDTO(res))
}

func (h *Handler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := leave.ApplicationFilter{
		EmployeeEmail: q.Get("employee"),
		LeaveType:     leave.NormalizeKey(q.Get("leave_type")),
	}
	for _, s := range splitList(q.Get("status")) {
		status := leave.Status(s)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid status filter", fmt.Errorf("unknown status %q", s))
			return
		}
		f.Statuses = append(f.Statuses, status)
	}

	apps, err := h.Service.ListApplications(r.Context(), actor, f)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]*ApplicationDTO, 0, len(apps))
	for i := range apps {
		out = append(out, toApplicationDTO(&apps[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	app, err := h.Service.GetApplication(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

func (h *Handler) EditLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req EditLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := leave.EditInput{
		LeaveType: req.LeaveType,
		IsHalfDay: req.IsHalfDay,
		Comment:   req.Comment,
	}
	if req.Dates != nil {
		in.Dates = mustParseDates(req.Dates)
	}
	if req.Status != nil {
		status := leave.Status(*req.Status)
		in.Status = &status
	}

	out, err := h.Service.EditApplication(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeDTO(out))
}

func (h *Handler) DeleteLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	out, err := h.Service.DeleteApplication(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeDTO(out))
}

// ApproveLeave approves at the actor's level: managers move a pending
// application to manager_approved, admins to approved.
func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	target := leave.StatusApproved
	if actor.Role == leave.RoleManager {
		target = leave.StatusManagerApproved
	}
	h.decide(w, r, actor, target)
}

func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.decide(w, r, actor, leave.StatusRejected)
}

func (h *Handler) ActOnLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.act(w, r, actor, leave.Decision{Target: leave.Status(req.Status), Comment: req.Comment})
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, actor leave.Actor, target leave.Status) {
	var req CommentRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.act(w, r, actor, leave.Decision{Target: target, Comment: req.Comment})
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, actor leave.Actor, d leave.Decision) {
	out, err := h.Service.ActOnApplication(r.Context(), actor, chi.URLParam(r, "id"), d)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeDTO(out))
}

func toSubmitInput(actor leave.Actor, req SubmitLeaveRequest) leave.SubmitInput {
	email := req.EmployeeEmail
	if email == "" {
		email = actor.Email
	}
	return leave.SubmitInput{
		EmployeeEmail: email,
		LeaveType:     req.LeaveType,
		Dates:         mustParseDates(req.Dates),
		IsHalfDay:     req.IsHalfDay,
		Reason:        req.Reason,
		Force:         req.Force,
	}
}

// =============================================================================
// POLICY ENDPOINTS
// =============================================================================

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	p, err := h.Service.ActivePolicy(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Policies.ToJSON(p))
}

func (h *Handler) ReplacePolicy(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p, err := h.Policies.ParsePolicy(data)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid policy", err)
		return
	}

	saved, err := h.Service.ReplacePolicy(r.Context(), actor, *p)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Policies.ToJSON(saved))
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req AdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Service.Adjust(r.Context(), actor, leave.AdjustmentRequest{
		EmployeeEmail: req.EmployeeEmail,
		Action:        leave.AdjustmentAction(req.Action),
		LeaveType:     req.LeaveType,
		Days:          req.Days,
		Reason:        req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if res.AuditError != nil {
		h.log.WithError(res.AuditError).Warn("adjustment applied but not logged")
	}
	writeJSON(w, http.StatusOK, toAdjustmentLogDTO(res.Entry))
}

func (h *Handler) CreateBulkAdjustment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req BulkAdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Service.BulkAdjust(r.Context(), actor, leave.BulkAdjustmentRequest{
		Employees: req.Employees,
		Action:    leave.AdjustmentAction(req.Action),
		LeaveType: req.LeaveType,
		Days:      req.Days,
		Reason:    req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	dto := BulkAdjustmentDTO{Processed: res.Processed, Adjusted: []AdjustmentLogDTO{}, Errors: []FailureDTO{}}
	for _, e := range res.Adjusted {
		dto.Adjusted = append(dto.Adjusted, toAdjustmentLogDTO(e))
	}
	for _, f := range res.Errors {
		dto.Errors = append(dto.Errors, FailureDTO{Employee: f.Employee, Error: f.Err.Error()})
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	email, limit, ok := logQuery(w, r)
	if !ok {
		return
	}
	entries, err := h.Service.AdjustmentLogs(r.Context(), email, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]AdjustmentLogDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAdjustmentLogDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListDeletions returns the deleted applications, newest first.
func (h *Handler) ListDeletions(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	email, limit, ok := logQuery(w, r)
	if !ok {
		return
	}
	entries, err := h.Service.DeletionLogs(r.Context(), email, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]DeletionLogDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toDeletionLogDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// RunCredits triggers the monthly credit job for the month of as_of.
func (h *Handler) RunCredits(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req AsOfRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	var (
		res *leave.CreditRunResult
		err error
	)
	if req.AsOf == "" && h.Scheduler != nil {
		// Recorded as the scheduler's last run.
		res, err = h.Scheduler.RunNow(r.Context())
	} else {
		res, err = h.Service.RunMonthlyCredit(r.Context(), asOf(req.AsOf))
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditRunDTO(res))
}

func (h *Handler) ListCredits(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	email, limit, ok := logQuery(w, r)
	if !ok {
		return
	}
	entries, err := h.Service.CreditLogs(r.Context(), email, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]CreditLogDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toCreditLogDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetCreditSchedule(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	dto := ScheduleDTO{}
	if h.Scheduler != nil {
		dto.Enabled = true
		dto.Rule = h.Scheduler.Rule
		if next := h.Scheduler.NextRunTime(); !next.IsZero() {
			dto.NextRun = &next
		}
		if last := h.Scheduler.LastRun(); !last.IsZero() {
			dto.LastRun = &last
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := h.actor(w, r)
	if !ok {
		return false
	}
	if !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return false
	}
	return true
}

func logQuery(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	q := r.URL.Query()
	limit := defaultLogLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return "", 0, false
		}
		limit = n
	}
	return q.Get("employee"), limit, true
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

// actor reads the acting user from the request headers.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (leave.Actor, bool) {
	email := strings.TrimSpace(r.Header.Get(HeaderActorEmail))
	role := leave.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole))))
	if email == "" {
		writeError(w, http.StatusUnauthorized, "Missing "+HeaderActorEmail+" header", nil)
		return leave.Actor{}, false
	}
	switch role {
	case leave.RoleEmployee, leave.RoleManager, leave.RoleAdmin:
	case "":
		role = leave.RoleEmployee
	default:
		writeError(w, http.StatusUnauthorized, "Unknown role", fmt.Errorf("role %q", role))
		return leave.Actor{}, false
	}
	return leave.Actor{Email: email, Role: role}, true
}

func emailParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || email == "" {
		writeError(w, http.StatusBadRequest, "Invalid employee email", err)
		return "", false
	}
	return email, true
}

// decode reads a JSON body into dst and runs the validator on it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return h.check(w, dst)
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return h.check(w, dst)
}

func (h *Handler) check(w http.ResponseWriter, dst any) bool {
	err := h.validate.Struct(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Tag: fe.Tag(), Message: fieldMessage(fe)})
	}
	writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "Request validation failed",
		Code:    "invalid_request",
		Details: fields,
	})
	return false
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be an e-mail address", fe.Field())
	case "datetime":
		return fmt.Sprintf("%s must be a date formatted YYYY-MM-DD", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s is longer than %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// mustParseDates is only called on values the validator accepted.
func mustParseDates(values []string) []generic.Date {
	dates := make([]generic.Date, 0, len(values))
	for _, v := range values {
		dates = append(dates, generic.MustParseDate(v))
	}
	return dates
}

func asOf(s string) generic.Date {
	if s == "" {
		return generic.Today()
	}
	return generic.MustParseDate(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a leave.Service error to a status code.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var failed *leave.ValidationFailedError
	switch {
	case errors.As(err, &failed):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "Application failed validation",
			Code:    "validation_failed",
			Details: toValidationDTO(failed.Result),
		})
	case leave.IsForbidden(err):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error(), Code: "forbidden"})
	case leave.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"})
	case leave.IsConflict(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "conflict"})
	case leave.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: errorCode(err)})
	default:
		h.log.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, leave.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, leave.ErrInvalidLeaveType):
		return "invalid_leave_type"
	case errors.Is(err, leave.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, leave.ErrAdvanceNotice):
		return "advance_notice"
	case errors.Is(err, leave.ErrClubbingConflict):
		return "clubbing_conflict"
	default:
		return "bad_request"
	}
}
