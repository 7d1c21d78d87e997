/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the leave domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry validator tags checked by Handler.decode before the
  service sees them. Rules that need the stored policy (leave type exists,
  advance notice, clubbing) stay in the service.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON, the wire form of a policy
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUESTS
// =============================================================================

type OnboardRequest struct {
	Email        string       `json:"email" validate:"required,email"`
	Name         string       `json:"name" validate:"max=200"`
	ManagerEmail string       `json:"manager_email" validate:"omitempty,email"`
	JoiningDate  string       `json:"joining_date" validate:"omitempty,datetime=2006-01-02"`
	CompOff      generic.Days `json:"comp_off"`
}

type SubmitLeaveRequest struct {
	EmployeeEmail string   `json:"employee_email" validate:"omitempty,email"`
	LeaveType     string   `json:"leave_type" validate:"required"`
	Dates         []string `json:"dates" validate:"required,min=1,dive,datetime=2006-01-02"`
	IsHalfDay     bool     `json:"is_half_day"`
	Reason        string   `json:"reason" validate:"max=1000"`
	Force         bool     `json:"force"`
}

type DecisionRequest struct {
	Status  string `json:"status" validate:"required,oneof=manager_approved approved rejected"`
	Comment string `json:"comment" validate:"max=1000"`
}

// CommentRequest is the optional body of approve and reject.
type CommentRequest struct {
	Comment string `json:"comment" validate:"max=1000"`
}

type EditLeaveRequest struct {
	LeaveType *string  `json:"leave_type" validate:"omitempty,min=1"`
	Dates     []string `json:"dates" validate:"omitempty,min=1,dive,datetime=2006-01-02"`
	IsHalfDay *bool    `json:"is_half_day"`
	Status    *string  `json:"status" validate:"omitempty,oneof=pending manager_approved approved rejected"`
	Comment   string   `json:"comment" validate:"max=1000"`
}

type AdjustmentRequest struct {
	EmployeeEmail string       `json:"employee_email" validate:"required,email"`
	Action        string       `json:"action" validate:"required,oneof=add deduct set"`
	LeaveType     string       `json:"leave_type" validate:"required"`
	Days          generic.Days `json:"days"`
	Reason        string       `json:"reason" validate:"required,max=1000"`
}

type BulkAdjustmentRequest struct {
	Employees []string     `json:"employees" validate:"omitempty,dive,email"`
	Action    string       `json:"action" validate:"required,oneof=add deduct set"`
	LeaveType string       `json:"leave_type" validate:"required"`
	Days      generic.Days `json:"days"`
	Reason    string       `json:"reason" validate:"required,max=1000"`
}

// AsOfRequest is the body of recalculation and manual credit runs.
// An empty AsOf means today.
type AsOfRequest struct {
	AsOf string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type EmployeeDTO struct {
	ID           string                  `json:"id"`
	Email        string                  `json:"email"`
	Name         string                  `json:"name"`
	ManagerEmail string                  `json:"manager_email,omitempty"`
	JoiningDate  generic.Date            `json:"joining_date"`
	Active       bool                    `json:"active"`
	LeaveBalance map[string]generic.Days `json:"leave_balance"`
	LastCredit   int                     `json:"last_credit_period,omitempty"`
}

type BalanceDTO struct {
	Email   string                  `json:"email"`
	Balance map[string]generic.Days `json:"balance"`
}

type SnapshotDTO struct {
	LeaveType string       `json:"leave_type"`
	Dates     []string     `json:"dates"`
	IsHalfDay bool         `json:"is_half_day"`
	DaysCount generic.Days `json:"days_count"`
	Status    string       `json:"status"`
}

type ApprovalDTO struct {
	Actor   string       `json:"actor"`
	Role    string       `json:"role"`
	Action  string       `json:"action"`
	Comment string       `json:"comment,omitempty"`
	At      time.Time    `json:"at"`
	Before  *SnapshotDTO `json:"before,omitempty"`
	After   *SnapshotDTO `json:"after,omitempty"`
}

type ApplicationDTO struct {
	ID            string        `json:"id"`
	EmployeeEmail string        `json:"employee_email"`
	ManagerEmail  string        `json:"manager_email,omitempty"`
	LeaveType     string        `json:"leave_type"`
	LeaveLabel    string        `json:"leave_label"`
	Dates         []string      `json:"dates"`
	IsHalfDay     bool          `json:"is_half_day"`
	DaysCount     generic.Days  `json:"days_count"`
	Status        string        `json:"status"`
	Reason        string        `json:"reason,omitempty"`
	Approvals     []ApprovalDTO `json:"approvals"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type MovementDTO struct {
	Employee  string       `json:"employee"`
	LeaveType string       `json:"leave_type"`
	Delta     generic.Days `json:"delta"`
	Balance   generic.Days `json:"balance"`
}

// OutcomeDTO is returned by every lifecycle endpoint.
type OutcomeDTO struct {
	Application *ApplicationDTO `json:"application,omitempty"`
	Changed     bool            `json:"changed"`
	Movements   []MovementDTO   `json:"movements"`
	Warnings    []leave.Issue   `json:"warnings,omitempty"`
	AuditErrors []string        `json:"audit_errors,omitempty"`
	NotifyError string          `json:"notify_error,omitempty"`
}

type ValidationDTO struct {
	Valid       bool          `json:"valid"`
	LeaveType   string        `json:"leave_type"`
	DaysCount   generic.Days  `json:"days_count"`
	Available   generic.Days  `json:"available"`
	Warnings    []leave.Issue `json:"warnings"`
	Errors      []leave.Issue `json:"errors"`
	CanOverride bool          `json:"can_override"`
}

type TransactionDTO struct {
	ID           string       `json:"id"`
	LeaveType    string       `json:"leave_type"`
	Delta        generic.Days `json:"delta"`
	BalanceAfter generic.Days `json:"balance_after"`
	Type         string       `json:"type"`
	ReferenceID  string       `json:"reference_id,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	CreatedBy    string       `json:"created_by,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

type FailureDTO struct {
	Employee string `json:"employee"`
	Error    string `json:"error"`
}

type CreditRunDTO struct {
	Period      int          `json:"period"`
	Processed   int          `json:"processed"`
	Credited    []string     `json:"credited"`
	Skipped     []string     `json:"skipped"`
	Errors      []FailureDTO `json:"errors"`
	AuditErrors []FailureDTO `json:"audit_errors,omitempty"`
}

type CreditLogDTO struct {
	ID               string                  `json:"id"`
	EmployeeEmail    string                  `json:"employee_email"`
	CreditMonth      int                     `json:"credit_month"`
	CreditYear       int                     `json:"credit_year"`
	IsYearStartReset bool                    `json:"is_year_start_reset"`
	PreviousBalance  map[string]generic.Days `json:"previous_balance"`
	CreditsApplied   []string                `json:"credits_applied"`
	NewBalance       map[string]generic.Days `json:"new_balance"`
	CreatedAt        time.Time               `json:"created_at"`
}

type AdjustmentLogDTO struct {
	ID              string       `json:"id"`
	EmployeeEmail   string       `json:"employee_email"`
	ActionType      string       `json:"action_type"`
	LeaveType       string       `json:"leave_type"`
	Days            generic.Days `json:"days"`
	Reason          string       `json:"reason"`
	PerformedBy     string       `json:"performed_by"`
	PreviousBalance generic.Days `json:"previous_balance"`
	NewBalance      generic.Days `json:"new_balance"`
	CreatedAt       time.Time    `json:"created_at"`
}

type DeletionLogDTO struct {
	ID            string        `json:"id"`
	ApplicationID string        `json:"application_id"`
	EmployeeEmail string        `json:"employee_email"`
	DeletedBy     string        `json:"deleted_by"`
	Role          string        `json:"role"`
	Before        SnapshotDTO   `json:"before"`
	Refunded      generic.Days  `json:"refunded"`
	Approvals     []ApprovalDTO `json:"approvals"`
	DeletedAt     time.Time     `json:"deleted_at"`
}

type BulkAdjustmentDTO struct {
	Processed int                `json:"processed"`
	Adjusted  []AdjustmentLogDTO `json:"adjusted"`
	Errors    []FailureDTO       `json:"errors"`
}

type RecalculationDTO struct {
	Employee    string                  `json:"employee"`
	Previous    map[string]generic.Days `json:"previous"`
	Balance     map[string]generic.Days `json:"balance"`
	Used        map[string]generic.Days `json:"used"`
	AuditErrors []string                `json:"audit_errors,omitempty"`
}

type ScheduleDTO struct {
	Enabled bool       `json:"enabled"`
	Rule    string     `json:"rule,omitempty"`
	NextRun *time.Time `json:"next_run,omitempty"`
	LastRun *time.Time `json:"last_run,omitempty"`
}

// FieldError is one failed validator rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toBalanceMap(b leave.Balance) map[string]generic.Days {
	out := make(map[string]generic.Days, len(b))
	for k, v := range b {
		out[string(k)] = v
	}
	return out
}

func toEmployeeDTO(e *leave.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:           e.ID,
		Email:        e.Email,
		Name:         e.Name,
		ManagerEmail: e.ManagerEmail,
		JoiningDate:  e.JoiningDate,
		Active:       e.Active,
		LeaveBalance: toBalanceMap(e.LeaveBalance),
		LastCredit:   int(e.LastCredit),
	}
}

func toSnapshotDTO(s *leave.ApplicationSnapshot) *SnapshotDTO {
	if s == nil {
		return nil
	}
	return &SnapshotDTO{
		LeaveType: string(s.LeaveType),
		Dates:     generic.FormatDates(s.Dates),
		IsHalfDay: s.IsHalfDay,
		DaysCount: s.DaysCount,
		Status:    string(s.Status),
	}
}

func toApprovalDTOs(records []leave.ApprovalRecord) []ApprovalDTO {
	out := make([]ApprovalDTO, 0, len(records))
	for _, r := range records {
		out = append(out, ApprovalDTO{
			Actor:   r.Actor,
			Role:    string(r.Role),
			Action:  string(r.Action),
			Comment: r.Comment,
			At:      r.At,
			Before:  toSnapshotDTO(r.Before),
			After:   toSnapshotDTO(r.After),
		})
	}
	return out
}

func toApplicationDTO(a *leave.Application) *ApplicationDTO {
	if a == nil {
		return nil
	}
	label := a.LeaveType.Label()
	if a.PolicySnapshot != nil && a.PolicySnapshot.LeaveType != "" {
		label = a.PolicySnapshot.LeaveType
	}
	return &ApplicationDTO{
		ID:            a.ID,
		EmployeeEmail: a.EmployeeEmail,
		ManagerEmail:  a.ManagerEmail,
		LeaveType:     string(a.LeaveType),
		LeaveLabel:    label,
		Dates:         generic.FormatDates(a.Dates),
		IsHalfDay:     a.IsHalfDay,
		DaysCount:     a.DaysCount,
		Status:        string(a.Status),
		Reason:        a.Reason,
		Approvals:     toApprovalDTOs(a.Approvals),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func toOutcomeDTO(o *leave.Outcome) OutcomeDTO {
	dto := OutcomeDTO{
		Application: toApplicationDTO(o.Application),
		Changed:     o.Changed,
		Movements:   make([]MovementDTO, 0, len(o.Movements)),
		Warnings:    o.Warnings,
	}
	for _, m := range o.Movements {
		dto.Movements = append(dto.Movements, MovementDTO{
			Employee:  m.Employee,
			LeaveType: string(m.LeaveType),
			Delta:     m.Delta,
			Balance:   m.Balance,
		})
	}
	for _, err := range o.AuditErrors {
		dto.AuditErrors = append(dto.AuditErrors, err.Error())
	}
	if o.NotifyErr != nil {
		dto.NotifyError = o.NotifyErr.Error()
	}
	return dto
}

func toValidationDTO(r *leave.ValidationResult) ValidationDTO {
	dto := ValidationDTO{
		Valid:       r.Valid,
		LeaveType:   string(r.LeaveType),
		DaysCount:   r.DaysCount,
		Available:   r.Available,
		Warnings:    r.Warnings,
		Errors:      r.Errors,
		CanOverride: r.CanOverride,
	}
	if dto.Warnings == nil {
		dto.Warnings = []leave.Issue{}
	}
	if dto.Errors == nil {
		dto.Errors = []leave.Issue{}
	}
	return dto
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:           string(tx.ID),
		LeaveType:    tx.Resource,
		Delta:        tx.Delta,
		BalanceAfter: tx.BalanceAfter,
		Type:         string(tx.Type),
		ReferenceID:  tx.ReferenceID,
		Reason:       tx.Reason,
		CreatedBy:    tx.CreatedBy,
		CreatedAt:    tx.CreatedAt,
	}
}

func toCreditRunDTO(r *leave.CreditRunResult) CreditRunDTO {
	dto := CreditRunDTO{
		Period:    int(r.Period),
		Processed: r.Processed,
		Credited:  nonNil(r.Credited),
		Skipped:   nonNil(r.Skipped),
		Errors:    []FailureDTO{},
	}
	for _, f := range r.Errors {
		dto.Errors = append(dto.Errors, FailureDTO{Employee: f.Employee, Error: f.Err.Error()})
	}
	for _, f := range r.AuditErrors {
		dto.AuditErrors = append(dto.AuditErrors, FailureDTO{Employee: f.Employee, Error: f.Err.Error()})
	}
	return dto
}

func toCreditLogDTO(e leave.CreditLogEntry) CreditLogDTO {
	return CreditLogDTO{
		ID:               e.ID,
		EmployeeEmail:    e.EmployeeEmail,
		CreditMonth:      int(e.CreditMonth),
		CreditYear:       e.CreditYear,
		IsYearStartReset: e.IsYearStartReset,
		PreviousBalance:  toBalanceMap(e.PreviousBalance),
		CreditsApplied:   nonNil(e.CreditsApplied),
		NewBalance:       toBalanceMap(e.NewBalance),
		CreatedAt:        e.CreatedAt,
	}
}

func toAdjustmentLogDTO(e leave.AdjustmentLogEntry) AdjustmentLogDTO {
	return AdjustmentLogDTO{
		ID:              e.ID,
		EmployeeEmail:   e.EmployeeEmail,
		ActionType:      string(e.ActionType),
		LeaveType:       string(e.LeaveType),
		Days:            e.Days,
		Reason:          e.Reason,
		PerformedBy:     e.PerformedBy,
		PreviousBalance: e.PreviousBalance,
		NewBalance:      e.NewBalance,
		CreatedAt:       e.CreatedAt,
	}
}

func toRecalculationDTO(r *leave.RecalculationResult) RecalculationDTO {
	dto := RecalculationDTO{
		Employee: r.Employee,
		Previous: toBalanceMap(r.Previous),
		Balance:  toBalanceMap(r.Balance),
		Used:     toBalanceMap(r.Used),
	}
	for _, err := range r.AuditErrors {
		dto.AuditErrors = append(dto.AuditErrors, err.Error())
	}
	return dto
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toDeletionLogDTO(e leave.DeletionLogEntry) DeletionLogDTO {
	return DeletionLogDTO{
		ID:            e.ID,
		ApplicationID: e.ApplicationID,
		EmployeeEmail: e.EmployeeEmail,
		DeletedBy:     e.DeletedBy,
		Role:          string(e.Role),
		Before:        *toSnapshotDTO(&e.Before),
		Refunded:      e.Refunded,
		Approvals:     toApprovalDTOs(e.Approvals),
		DeletedAt:     e.DeletedAt,
	}
}
