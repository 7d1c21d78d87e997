package mongo

import (
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// =============================================================================
// DOCUMENT SHAPES
// =============================================================================

type employeeDoc struct {
	ID           string           `bson:"_id"`
	Email        string           `bson:"email"`
	Name         string           `bson:"name"`
	ManagerEmail string           `bson:"manager_email"`
	JoiningDate  string           `bson:"joining_date"`
	Active       bool             `bson:"active"`
	LeaveBalance map[string]int64 `bson:"leave_balance"` // tenths
	LastCredit   int              `bson:"last_credit"`
	CreatedAt    time.Time        `bson:"created_at"`
}

type snapshotDoc struct {
	LeaveType string   `bson:"leave_type"`
	Dates     []string `bson:"dates"`
	IsHalfDay bool     `bson:"is_half_day"`
	Days      int64    `bson:"days"`
	Status    string   `bson:"status"`
}

type approvalDoc struct {
	Actor   string       `bson:"actor"`
	Role    string       `bson:"role"`
	Action  string       `bson:"action"`
	Comment string       `bson:"comment,omitempty"`
	At      time.Time    `bson:"at"`
	Before  *snapshotDoc `bson:"before,omitempty"`
	After   *snapshotDoc `bson:"after,omitempty"`
}

type applicationDoc struct {
	ID             string        `bson:"_id"`
	EmployeeID     string        `bson:"employee_id"`
	EmployeeEmail  string        `bson:"employee_email"`
	ManagerEmail   string        `bson:"manager_email"`
	LeaveType      string        `bson:"leave_type"`
	Dates          []string      `bson:"dates"`
	IsHalfDay      bool          `bson:"is_half_day"`
	Days           int64         `bson:"days"`
	Status         string        `bson:"status"`
	Reason         string        `bson:"reason,omitempty"`
	Approvals      []approvalDoc `bson:"approvals"`
	PolicySnapshot string        `bson:"policy_snapshot,omitempty"` // factory JSON
	Version        int64         `bson:"version"`
	CreatedAt      time.Time     `bson:"created_at"`
	UpdatedAt      time.Time     `bson:"updated_at"`
}

type policyDoc struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	PolicyID string             `bson:"policy_id"`
	Document string             `bson:"document"` // factory JSON
	SavedAt  time.Time          `bson:"saved_at"`
}

type creditLogDoc struct {
	OID              primitive.ObjectID `bson:"_id,omitempty"`
	ID               string             `bson:"id"`
	EmployeeID       string             `bson:"employee_id"`
	EmployeeEmail    string             `bson:"employee_email"`
	CreditMonth      int                `bson:"credit_month"`
	CreditYear       int                `bson:"credit_year"`
	IsYearStartReset bool               `bson:"is_year_start_reset"`
	PreviousBalance  map[string]int64   `bson:"previous_balance"`
	CreditsApplied   []string           `bson:"credits_applied"`
	NewBalance       map[string]int64   `bson:"new_balance"`
	CreatedAt        time.Time          `bson:"created_at"`
}

type adjustmentLogDoc struct {
	OID             primitive.ObjectID `bson:"_id,omitempty"`
	ID              string             `bson:"id"`
	EmployeeID      string             `bson:"employee_id"`
	EmployeeEmail   string             `bson:"employee_email"`
	ActionType      string             `bson:"action_type"`
	LeaveType       string             `bson:"leave_type"`
	Days            int64              `bson:"days"`
	Reason          string             `bson:"reason,omitempty"`
	PerformedBy     string             `bson:"performed_by"`
	PreviousBalance int64              `bson:"previous_balance"`
	NewBalance      int64              `bson:"new_balance"`
	CreatedAt       time.Time          `bson:"created_at"`
}

type deletionLogDoc struct {
	OID           primitive.ObjectID `bson:"_id,omitempty"`
	ID            string             `bson:"id"`
	ApplicationID string             `bson:"application_id"`
	EmployeeID    string             `bson:"employee_id"`
	EmployeeEmail string             `bson:"employee_email"`
	DeletedBy     string             `bson:"deleted_by"`
	Role          string             `bson:"role"`
	Before        snapshotDoc        `bson:"before"`
	Refunded      int64              `bson:"refunded"` // tenths
	Approvals     []approvalDoc      `bson:"approvals"`
	DeletedAt     time.Time          `bson:"deleted_at"`
}

type journalDoc struct {
	OID            primitive.ObjectID `bson:"_id,omitempty"`
	ID             string             `bson:"id"`
	EntityID       string             `bson:"entity_id"`
	Resource       string             `bson:"resource"`
	Delta          int64              `bson:"delta"`
	BalanceAfter   int64              `bson:"balance_after"`
	Type           string             `bson:"tx_type"`
	ReferenceID    string             `bson:"reference_id,omitempty"`
	Reason         string             `bson:"reason,omitempty"`
	IdempotencyKey string             `bson:"idempotency_key,omitempty"`
	CreatedBy      string             `bson:"created_by,omitempty"`
	CreatedAt      time.Time          `bson:"created_at"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func balanceToDoc(b leave.Balance) map[string]int64 {
	out := make(map[string]int64, len(b))
	for k, v := range b {
		out[string(k)] = v.Tenths()
	}
	return out
}

func balanceFromDoc(m map[string]int64) leave.Balance {
	out := make(leave.Balance, len(m))
	for k, v := range m {
		out[leave.LeaveTypeKey(k)] = generic.DaysFromTenths(v)
	}
	return out
}

func employeeToDoc(e leave.Employee, now time.Time) employeeDoc {
	return employeeDoc{
		ID:           e.ID,
		Email:        e.Email,
		Name:         e.Name,
		ManagerEmail: e.ManagerEmail,
		JoiningDate:  e.JoiningDate.String(),
		Active:       e.Active,
		LeaveBalance: balanceToDoc(e.LeaveBalance),
		LastCredit:   int(e.LastCredit),
		CreatedAt:    now,
	}
}

func employeeFromDoc(d employeeDoc) *leave.Employee {
	emp := &leave.Employee{
		ID:           d.ID,
		Email:        d.Email,
		Name:         d.Name,
		ManagerEmail: d.ManagerEmail,
		Active:       d.Active,
		LeaveBalance: balanceFromDoc(d.LeaveBalance),
		LastCredit:   leave.CreditPeriod(d.LastCredit),
	}
	if d.JoiningDate != "" {
		emp.JoiningDate, _ = generic.ParseDate(d.JoiningDate)
	}
	return emp
}

func snapshotToDoc(s *leave.ApplicationSnapshot) *snapshotDoc {
	if s == nil {
		return nil
	}
	return &snapshotDoc{
		LeaveType: string(s.LeaveType),
		Dates:     generic.FormatDates(s.Dates),
		IsHalfDay: s.IsHalfDay,
		Days:      s.DaysCount.Tenths(),
		Status:    string(s.Status),
	}
}

func snapshotFromDoc(d *snapshotDoc) (*leave.ApplicationSnapshot, error) {
	if d == nil {
		return nil, nil
	}
	dates, err := generic.ParseDates(d.Dates)
	if err != nil {
		return nil, err
	}
	return &leave.ApplicationSnapshot{
		LeaveType: leave.LeaveTypeKey(d.LeaveType),
		Dates:     dates,
		IsHalfDay: d.IsHalfDay,
		DaysCount: generic.DaysFromTenths(d.Days),
		Status:    leave.Status(d.Status),
	}, nil
}

func approvalToDoc(r leave.ApprovalRecord) approvalDoc {
	return approvalDoc{
		Actor:   r.Actor,
		Role:    string(r.Role),
		Action:  string(r.Action),
		Comment: r.Comment,
		At:      r.At.UTC(),
		Before:  snapshotToDoc(r.Before),
		After:   snapshotToDoc(r.After),
	}
}

func approvalFromDoc(d approvalDoc) (leave.ApprovalRecord, error) {
	rec := leave.ApprovalRecord{
		Actor:   d.Actor,
		Role:    leave.Role(d.Role),
		Action:  leave.ApprovalAction(d.Action),
		Comment: d.Comment,
		At:      d.At,
	}
	var err error
	if rec.Before, err = snapshotFromDoc(d.Before); err != nil {
		return rec, err
	}
	rec.After, err = snapshotFromDoc(d.After)
	return rec, err
}

func (s *Store) applicationToDoc(a leave.Application) (applicationDoc, error) {
	doc := applicationDoc{
		ID:            a.ID,
		EmployeeID:    a.EmployeeID,
		EmployeeEmail: a.EmployeeEmail,
		ManagerEmail:  a.ManagerEmail,
		LeaveType:     string(a.LeaveType),
		Dates:         generic.FormatDates(a.Dates),
		IsHalfDay:     a.IsHalfDay,
		Days:          a.DaysCount.Tenths(),
		Status:        string(a.Status),
		Reason:        a.Reason,
		Approvals:     make([]approvalDoc, 0, len(a.Approvals)),
		Version:       a.Version,
		CreatedAt:     a.CreatedAt.UTC(),
		UpdatedAt:     a.UpdatedAt.UTC(),
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	for _, r := range a.Approvals {
		doc.Approvals = append(doc.Approvals, approvalToDoc(r))
	}
	snapshot, err := s.policies.MarshalItem(a.PolicySnapshot)
	if err != nil {
		return doc, err
	}
	doc.PolicySnapshot = string(snapshot)
	return doc, nil
}

func (s *Store) applicationFromDoc(d applicationDoc) (*leave.Application, error) {
	dates, err := generic.ParseDates(d.Dates)
	if err != nil {
		return nil, err
	}
	app := &leave.Application{
		ID:            d.ID,
		EmployeeID:    d.EmployeeID,
		EmployeeEmail: d.EmployeeEmail,
		ManagerEmail:  d.ManagerEmail,
		LeaveType:     leave.LeaveTypeKey(d.LeaveType),
		Dates:         dates,
		IsHalfDay:     d.IsHalfDay,
		DaysCount:     generic.DaysFromTenths(d.Days),
		Status:        leave.Status(d.Status),
		Reason:        d.Reason,
		Version:       d.Version,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	for _, ad := range d.Approvals {
		rec, err := approvalFromDoc(ad)
		if err != nil {
			return nil, err
		}
		app.Approvals = append(app.Approvals, rec)
	}
	if app.PolicySnapshot, err = s.policies.UnmarshalItem([]byte(d.PolicySnapshot)); err != nil {
		return nil, err
	}
	return app, nil
}

// updateDoc renders an ApplicationUpdate as $set/$inc.
func (s *Store) updateDoc(upd leave.ApplicationUpdate) (bson.M, error) {
	set := bson.M{}
	if upd.LeaveType != nil {
		set["leave_type"] = string(*upd.LeaveType)
	}
	if upd.Dates != nil {
		set["dates"] = generic.FormatDates(upd.Dates)
	}
	if upd.IsHalfDay != nil {
		set["is_half_day"] = *upd.IsHalfDay
	}
	if upd.DaysCount != nil {
		set["days"] = upd.DaysCount.Tenths()
	}
	if upd.Status != nil {
		set["status"] = string(*upd.Status)
	}
	if upd.PolicySnapshot != nil {
		snapshot, err := s.policies.MarshalItem(upd.PolicySnapshot)
		if err != nil {
			return nil, err
		}
		set["policy_snapshot"] = string(snapshot)
	}
	if !upd.UpdatedAt.IsZero() {
		set["updated_at"] = upd.UpdatedAt.UTC()
	}

	doc := bson.M{"$inc": bson.M{"version": 1}}
	if len(set) > 0 {
		doc["$set"] = set
	}
	return doc, nil
}

// casFilter selects the application only while the expectations hold.
func casFilter(id string, upd leave.ApplicationUpdate) bson.M {
	filter := bson.M{"_id": id}
	if upd.ExpectStatus != "" {
		filter["status"] = string(upd.ExpectStatus)
	}
	if upd.ExpectVersion != 0 {
		filter["version"] = upd.ExpectVersion
	}
	return filter
}

func queryFilter(f leave.ApplicationFilter) bson.M {
	filter := bson.M{}
	if f.EmployeeEmail != "" {
		filter["employee_email"] = f.EmployeeEmail
	}
	if f.ManagerEmail != "" {
		filter["manager_email"] = f.ManagerEmail
	}
	if f.LeaveType != "" {
		filter["leave_type"] = string(f.LeaveType)
	}
	if f.ExcludeID != "" {
		filter["_id"] = bson.M{"$ne": f.ExcludeID}
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		filter["status"] = bson.M{"$in": statuses}
	}
	return filter
}

func creditLogToDoc(e leave.CreditLogEntry) creditLogDoc {
	return creditLogDoc{
		ID:               e.ID,
		EmployeeID:       e.EmployeeID,
		EmployeeEmail:    e.EmployeeEmail,
		CreditMonth:      int(e.CreditMonth),
		CreditYear:       e.CreditYear,
		IsYearStartReset: e.IsYearStartReset,
		PreviousBalance:  balanceToDoc(e.PreviousBalance),
		CreditsApplied:   e.CreditsApplied,
		NewBalance:       balanceToDoc(e.NewBalance),
		CreatedAt:        e.CreatedAt.UTC(),
	}
}

func creditLogFromDoc(d creditLogDoc) leave.CreditLogEntry {
	return leave.CreditLogEntry{
		ID:               d.ID,
		EmployeeID:       d.EmployeeID,
		EmployeeEmail:    d.EmployeeEmail,
		CreditMonth:      time.Month(d.CreditMonth),
		CreditYear:       d.CreditYear,
		IsYearStartReset: d.IsYearStartReset,
		PreviousBalance:  balanceFromDoc(d.PreviousBalance),
		CreditsApplied:   d.CreditsApplied,
		NewBalance:       balanceFromDoc(d.NewBalance),
		CreatedAt:        d.CreatedAt,
	}
}

func adjustmentToDoc(e leave.AdjustmentLogEntry) adjustmentLogDoc {
	return adjustmentLogDoc{
		ID:              e.ID,
		EmployeeID:      e.EmployeeID,
		EmployeeEmail:   e.EmployeeEmail,
		ActionType:      string(e.ActionType),
		LeaveType:       string(e.LeaveType),
		Days:            e.Days.Tenths(),
		Reason:          e.Reason,
		PerformedBy:     e.PerformedBy,
		PreviousBalance: e.PreviousBalance.Tenths(),
		NewBalance:      e.NewBalance.Tenths(),
		CreatedAt:       e.CreatedAt.UTC(),
	}
}

func adjustmentFromDoc(d adjustmentLogDoc) leave.AdjustmentLogEntry {
	return leave.AdjustmentLogEntry{
		ID:              d.ID,
		EmployeeID:      d.EmployeeID,
		EmployeeEmail:   d.EmployeeEmail,
		ActionType:      leave.AdjustmentAction(d.ActionType),
		LeaveType:       leave.LeaveTypeKey(d.LeaveType),
		Days:            generic.DaysFromTenths(d.Days),
		Reason:          d.Reason,
		PerformedBy:     d.PerformedBy,
		PreviousBalance: generic.DaysFromTenths(d.PreviousBalance),
		NewBalance:      generic.DaysFromTenths(d.NewBalance),
		CreatedAt:       d.CreatedAt,
	}
}

func deletionToDoc(e leave.DeletionLogEntry) deletionLogDoc {
	approvals := make([]approvalDoc, 0, len(e.Approvals))
	for _, r := range e.Approvals {
		approvals = append(approvals, approvalToDoc(r))
	}
	return deletionLogDoc{
		ID:            e.ID,
		ApplicationID: e.ApplicationID,
		EmployeeID:    e.EmployeeID,
		EmployeeEmail: e.EmployeeEmail,
		DeletedBy:     e.DeletedBy,
		Role:          string(e.Role),
		Before:        *snapshotToDoc(&e.Before),
		Refunded:      e.Refunded.Tenths(),
		Approvals:     approvals,
		DeletedAt:     e.DeletedAt.UTC(),
	}
}

func deletionFromDoc(d deletionLogDoc) (leave.DeletionLogEntry, error) {
	e := leave.DeletionLogEntry{
		ID:            d.ID,
		ApplicationID: d.ApplicationID,
		EmployeeID:    d.EmployeeID,
		EmployeeEmail: d.EmployeeEmail,
		DeletedBy:     d.DeletedBy,
		Role:          leave.Role(d.Role),
		Refunded:      generic.DaysFromTenths(d.Refunded),
		DeletedAt:     d.DeletedAt,
	}
	before, err := snapshotFromDoc(&d.Before)
	if err != nil {
		return e, err
	}
	e.Before = *before
	for _, a := range d.Approvals {
		rec, err := approvalFromDoc(a)
		if err != nil {
			return e, err
		}
		e.Approvals = append(e.Approvals, rec)
	}
	return e, nil
}

func journalToDoc(tx generic.Transaction) journalDoc {
	return journalDoc{
		ID:             string(tx.ID),
		EntityID:       string(tx.EntityID),
		Resource:       tx.Resource,
		Delta:          tx.Delta.Tenths(),
		BalanceAfter:   tx.BalanceAfter.Tenths(),
		Type:           string(tx.Type),
		ReferenceID:    tx.ReferenceID,
		Reason:         tx.Reason,
		IdempotencyKey: tx.IdempotencyKey,
		CreatedBy:      tx.CreatedBy,
		CreatedAt:      tx.CreatedAt.UTC(),
	}
}

func journalFromDoc(d journalDoc) generic.Transaction {
	return generic.Transaction{
		ID:             generic.TransactionID(d.ID),
		EntityID:       generic.EntityID(d.EntityID),
		Resource:       d.Resource,
		Delta:          generic.DaysFromTenths(d.Delta),
		BalanceAfter:   generic.DaysFromTenths(d.BalanceAfter),
		Type:           generic.TransactionType(d.Type),
		ReferenceID:    d.ReferenceID,
		Reason:         d.Reason,
		IdempotencyKey: d.IdempotencyKey,
		CreatedBy:      d.CreatedBy,
		CreatedAt:      d.CreatedAt,
	}
}
