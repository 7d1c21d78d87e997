// Package leave implements leave balance accrual and the ledger-consistent
// application lifecycle on top of the generic primitives.
package leave

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEAVE TYPE KEYS
// =============================================================================

// LeaveTypeKey is the normalized identifier of a leave type, e.g. casual_leave.
type LeaveTypeKey string

const (
	CasualLeave LeaveTypeKey = "casual_leave"
	SickLeave   LeaveTypeKey = "sick_leave"
	EarnedLeave LeaveTypeKey = "earned_leave"
	PaidLeave   LeaveTypeKey = "paid_leave"
	UnpaidLeave LeaveTypeKey = "unpaid_leave"
	CompOff     LeaveTypeKey = "comp_off"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Short forms used on paper forms and by older clients.
var keyAliases = map[string]LeaveTypeKey{
	"cl":       CasualLeave,
	"sl":       SickLeave,
	"el":       EarnedLeave,
	"pl":       PaidLeave,
	"lop":      UnpaidLeave,
	"lwp":      UnpaidLeave,
	"compoff":  CompOff,
	"comp_off": CompOff,
}

// NormalizeKey turns a display label into its key: "Casual Leave" -> casual_leave.
// It is total: any input yields a key, possibly empty.
func NormalizeKey(label string) LeaveTypeKey {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.Trim(nonAlnum.ReplaceAllString(s, "_"), "_")
	if alias, ok := keyAliases[s]; ok {
		return alias
	}
	return LeaveTypeKey(s)
}

// Label renders a key for humans: casual_leave -> "Casual Leave".
func (k LeaveTypeKey) Label() string {
	parts := strings.Split(string(k), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// IsUnpaid reports whether the type is exempt from balance checks and mutation.
func (k LeaveTypeKey) IsUnpaid() bool { return k == UnpaidLeave }

// =============================================================================
// BALANCE
// =============================================================================

// Balance maps leave types to remaining days. Values are non-negative and
// rounded to one decimal.
type Balance map[LeaveTypeKey]generic.Days

func (b Balance) Get(k LeaveTypeKey) generic.Days {
	if b == nil {
		return generic.Days{}
	}
	return b[k]
}

// Has reports whether k is a stored key, whatever its value.
func (b Balance) Has(k LeaveTypeKey) bool {
	_, ok := b[k]
	return ok
}

func (b Balance) Clone() Balance {
	out := make(Balance, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Keys returns the keys in lexical order.
func (b Balance) Keys() []LeaveTypeKey {
	keys := make([]LeaveTypeKey, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// =============================================================================
// EMPLOYEE
// =============================================================================

type Employee struct {
	ID           string
	Email        string
	Name         string
	ManagerEmail string
	JoiningDate  generic.Date
	Active       bool
	LeaveBalance Balance
	LastCredit   CreditPeriod
}

// CreditPeriod identifies a calendar month as YYYYMM. Zero means never credited.
type CreditPeriod int

func PeriodOf(d generic.Date) CreditPeriod {
	return CreditPeriod(d.Year()*100 + int(d.Month()))
}

func (p CreditPeriod) Year() int         { return int(p) / 100 }
func (p CreditPeriod) Month() time.Month { return time.Month(int(p) % 100) }
func (p CreditPeriod) IsZero() bool      { return p == 0 }

// =============================================================================
// ACTORS
// =============================================================================

type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

type Actor struct {
	Email string
	Role  Role
}

// SystemActor is used by scheduled jobs.
var SystemActor = Actor{Email: "system", Role: RoleSystem}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin || a.Role == RoleSystem }

// =============================================================================
// APPLICATION
// =============================================================================

type Status string

const (
	StatusPending         Status = "pending"
	StatusManagerApproved Status = "manager_approved"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusManagerApproved, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Deducts reports whether an application in this status holds its days
// against the balance.
func (s Status) Deducts() bool {
	return s == StatusManagerApproved || s == StatusApproved
}

type ApprovalAction string

const (
	ActionSubmitted       ApprovalAction = "submitted"
	ActionManagerApproved ApprovalAction = "manager_approved"
	ActionApproved        ApprovalAction = "approved"
	ActionRejected        ApprovalAction = "rejected"
	ActionEdited          ApprovalAction = "edited"
	ActionDeleted         ApprovalAction = "deleted"
)

// ApplicationSnapshot is the ledger-relevant part of an application.
type ApplicationSnapshot struct {
	LeaveType LeaveTypeKey
	Dates     []generic.Date
	IsHalfDay bool
	DaysCount generic.Days
	Status    Status
}

// Holds returns the amount this snapshot holds against the balance.
func (s ApplicationSnapshot) Holds() generic.Days {
	if !s.Status.Deducts() || s.LeaveType.IsUnpaid() {
		return generic.Days{}
	}
	return s.DaysCount
}

type ApprovalRecord struct {
	Actor   string
	Role    Role
	Action  ApprovalAction
	Comment string
	At      time.Time
	Before  *ApplicationSnapshot
	After   *ApplicationSnapshot
}

type Application struct {
	ID             string
	EmployeeID     string
	EmployeeEmail  string
	ManagerEmail   string
	LeaveType      LeaveTypeKey
	Dates          []generic.Date
	IsHalfDay      bool
	DaysCount      generic.Days
	Status         Status
	Reason         string
	Approvals      []ApprovalRecord
	PolicySnapshot *PolicyItem
	Version        int64 // bumped by every UpdateFields
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a *Application) Snapshot() ApplicationSnapshot {
	dates := make([]generic.Date, len(a.Dates))
	copy(dates, a.Dates)
	return ApplicationSnapshot{
		LeaveType: a.LeaveType,
		Dates:     dates,
		IsHalfDay: a.IsHalfDay,
		DaysCount: a.DaysCount,
		Status:    a.Status,
	}
}

// CountDays is len(dates), or 0.5 for a single half day.
func CountDays(dates []generic.Date, halfDay bool) generic.Days {
	if halfDay && len(dates) == 1 {
		return generic.NewDays(0.5)
	}
	return generic.DaysFromInt(len(dates))
}

// SortDates orders dates ascending in place and returns them.
func SortDates(dates []generic.Date) []generic.Date {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// ApplicationUpdate is a partial update. ExpectStatus and ExpectVersion,
// when set, turn the update into a compare-and-set.
type ApplicationUpdate struct {
	LeaveType      *LeaveTypeKey
	Dates          []generic.Date
	IsHalfDay      *bool
	DaysCount      *generic.Days
	Status         *Status
	PolicySnapshot *PolicyItem
	ExpectStatus   Status
	ExpectVersion  int64
	UpdatedAt      time.Time
}

// Apply mutates app in place. Stores that keep whole documents use it
// after checking the expectations.
func (u ApplicationUpdate) Apply(app *Application) {
	if u.LeaveType != nil {
		app.LeaveType = *u.LeaveType
	}
	if u.Dates != nil {
		app.Dates = append([]generic.Date(nil), u.Dates...)
	}
	if u.IsHalfDay != nil {
		app.IsHalfDay = *u.IsHalfDay
	}
	if u.DaysCount != nil {
		app.DaysCount = *u.DaysCount
	}
	if u.Status != nil {
		app.Status = *u.Status
	}
	if u.PolicySnapshot != nil {
		ps := *u.PolicySnapshot
		app.PolicySnapshot = &ps
	}
	if !u.UpdatedAt.IsZero() {
		app.UpdatedAt = u.UpdatedAt
	}
	app.Version++
}

// Satisfied reports whether app meets the compare-and-set expectations.
func (u ApplicationUpdate) Satisfied(app *Application) bool {
	if u.ExpectStatus != "" && app.Status != u.ExpectStatus {
		return false
	}
	if u.ExpectVersion != 0 && app.Version != u.ExpectVersion {
		return false
	}
	return true
}

type ApplicationFilter struct {
	EmployeeEmail string
	ManagerEmail  string
	LeaveType     LeaveTypeKey
	Statuses      []Status
	ExcludeID     string
}

// Matches is the reference predicate every store implements.
func (f ApplicationFilter) Matches(a *Application) bool {
	if f.EmployeeEmail != "" && a.EmployeeEmail != f.EmployeeEmail {
		return false
	}
	if f.ManagerEmail != "" && a.ManagerEmail != f.ManagerEmail {
		return false
	}
	if f.LeaveType != "" && a.LeaveType != f.LeaveType {
		return false
	}
	if f.ExcludeID != "" && a.ID == f.ExcludeID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if a.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ActiveStatuses are all statuses except rejected.
var ActiveStatuses = []Status{StatusPending, StatusManagerApproved, StatusApproved}

// =============================================================================
// AUDIT LOG ENTRIES
// =============================================================================

type CreditLogEntry struct {
	ID               string
	EmployeeID       string
	EmployeeEmail    string
	CreditMonth      time.Month
	CreditYear       int
	IsYearStartReset bool
	PreviousBalance  Balance
	CreditsApplied   []string
	NewBalance       Balance
	CreatedAt        time.Time
}

type AdjustmentAction string

const (
	AdjustAdd         AdjustmentAction = "add"
	AdjustDeduct      AdjustmentAction = "deduct"
	AdjustSet         AdjustmentAction = "set"
	AdjustRecalculate AdjustmentAction = "recalculate"
	AdjustBulkAdd     AdjustmentAction = "bulk_add"
	AdjustBulkDeduct  AdjustmentAction = "bulk_deduct"
	AdjustBulkSet     AdjustmentAction = "bulk_set"
)

type AdjustmentLogEntry struct {
	ID              string
	EmployeeID      string
	EmployeeEmail   string
	ActionType      AdjustmentAction
	LeaveType       LeaveTypeKey
	Days            generic.Days
	Reason          string
	PerformedBy     string
	PreviousBalance generic.Days
	NewBalance      generic.Days
	CreatedAt       time.Time
}

// DeletionLogEntry is what survives of a deleted application. Approvals
// holds the full history, ending with the deletion itself.
type DeletionLogEntry struct {
	ID            string
	ApplicationID string
	EmployeeID    string
	EmployeeEmail string
	DeletedBy     string
	Role          Role
	Before        ApplicationSnapshot
	Refunded      generic.Days
	Approvals     []ApprovalRecord
	DeletedAt     time.Time
}
