/*
service.go - Application lifecycle with ledger consistency

PURPOSE:
  Entry point of the engine. Every operation that changes a leave
  application goes through here so that the following holds after each
  one:

    The balance is debited for DaysCount of LeaveType
    iff Status ∈ {manager_approved, approved} and LeaveType != unpaid_leave.

ORDERING:
  Act / Edit:
    1. load + authorize
    2. ledger effect (debit first, then refund)
    3. compare-and-set on status + version
    4. if 3 loses: revert the movements of 2, return ErrConcurrentModification
    5. approval record, notification (best effort)

  Delete:
    1. compare-and-set to rejected (claims the application)
    2. refund what it held
    3. remove the record

BEST EFFORT WRITES:
  Approval records, journal entries, adjustment/credit logs and
  notifications never roll back a committed balance change. Their
  failures are logged and returned in Outcome.AuditErrors / NotifyErr.

SEE ALSO:
  - transition.go: Who may move what where, and the ledger effect of it
  - validation.go: Submission gate
  - ledger.go: Balance mutations
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// SERVICE
// =============================================================================

type Config struct {
	Employees    EmployeeStore
	Applications ApplicationStore
	Policies     PolicyStore
	Audit        AuditStore      // optional
	Journal      generic.Journal // optional
	Notifier     Notifier        // optional
	Logger       logrus.FieldLogger
	Clock        func() time.Time
}

type Service struct {
	employees    EmployeeStore
	applications ApplicationStore
	policies     PolicyStore
	audit        AuditStore
	journal      generic.Journal
	notifier     Notifier
	log          logrus.FieldLogger
	clock        func() time.Time

	ledger   *Ledger
	resolver *PolicyResolver
}

func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	ledger := NewLedger(cfg.Employees, cfg.Journal, cfg.Logger)
	ledger.Now = cfg.Clock
	return &Service{
		employees:    cfg.Employees,
		applications: cfg.Applications,
		policies:     cfg.Policies,
		audit:        cfg.Audit,
		journal:      cfg.Journal,
		notifier:     cfg.Notifier,
		log:          cfg.Logger.WithField("component", "leave"),
		clock:        cfg.Clock,
		ledger:       ledger,
		resolver:     NewPolicyResolver(cfg.Policies),
	}
}

func (s *Service) today() generic.Date { return generic.DateOf(s.clock()) }

func (s *Service) now() time.Time { return s.clock().UTC() }

// =============================================================================
// OUTCOME
// =============================================================================

// Outcome is the result of a lifecycle operation.
type Outcome struct {
	Application *Application
	Changed     bool
	Movements   []Movement
	Warnings    []Issue
	AuditErrors []error
	NotifyErr   error
}

func (o *Outcome) addMovement(m Movement) {
	if m.Applied() {
		o.Movements = append(o.Movements, m)
	}
	if m.JournalErr != nil {
		o.AuditErrors = append(o.AuditErrors, m.JournalErr)
	}
}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitApplication validates and stores a pending application. Nothing is
// debited until the first approval.
func (s *Service) SubmitApplication(ctx context.Context, actor Actor, in SubmitInput) (*Outcome, error) {
	if !actor.IsAdmin() && actor.Email != in.EmployeeEmail {
		return nil, fmt.Errorf("%w: %s cannot apply for %s", ErrNotAuthorized, actor.Email, in.EmployeeEmail)
	}

	res, emp, item, err := s.validate(ctx, in)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return nil, &ValidationFailedError{Result: res}
	}

	now := s.now()
	dates := SortDates(append([]generic.Date(nil), in.Dates...))
	app := Application{
		ID:             uuid.NewString(),
		EmployeeID:     emp.ID,
		EmployeeEmail:  emp.Email,
		ManagerEmail:   emp.ManagerEmail,
		LeaveType:      res.LeaveType,
		Dates:          dates,
		IsHalfDay:      in.IsHalfDay,
		DaysCount:      res.DaysCount,
		Status:         StatusPending,
		Reason:         in.Reason,
		PolicySnapshot: item,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		Approvals: []ApprovalRecord{{
			Actor:   actor.Email,
			Role:    actor.Role,
			Action:  ActionSubmitted,
			Comment: in.Reason,
			At:      now,
		}},
	}
	if err := s.applications.Insert(ctx, app); err != nil {
		return nil, fmt.Errorf("insert application: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"application": app.ID,
		"employee":    app.EmployeeEmail,
		"leave_type":  app.LeaveType,
		"days":        app.DaysCount.String(),
	}).Info("application submitted")

	out := &Outcome{Application: &app, Changed: true, Warnings: res.Warnings}
	out.NotifyErr = s.notify(ctx, Notification{
		Kind:        NotifySubmitted,
		To:          recipients(emp.ManagerEmail),
		Actor:       actor,
		Application: app,
		Comment:     in.Reason,
	})
	return out, nil
}

// =============================================================================
// ACT (approve / reject)
// =============================================================================

// ActOnApplication moves an application to d.Target on behalf of actor.
func (s *Service) ActOnApplication(ctx context.Context, actor Actor, id string, d Decision) (*Outcome, error) {
	app, err := s.loadApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeDecision(actor, app, d.Target); err != nil {
		return nil, err
	}

	before := app.Snapshot()
	after := app.Snapshot()
	after.Status = d.Target

	out := &Outcome{}
	moves, err := s.applyEffect(ctx, app, actor, effectOf(before, after), fmt.Sprintf("application %s", d.Target), out)
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.applications.UpdateFields(ctx, app.ID, ApplicationUpdate{
		Status:        &d.Target,
		ExpectStatus:  before.Status,
		ExpectVersion: app.Version,
		UpdatedAt:     now,
	})
	if err != nil {
		s.compensate(ctx, app, actor, moves)
		return nil, fmt.Errorf("update application %s: %w", app.ID, err)
	}

	rec := ApprovalRecord{Actor: actor.Email, Role: actor.Role, Action: actionFor(d.Target), Comment: d.Comment, At: now}
	s.appendApproval(ctx, app.ID, rec, out)

	app.Status = d.Target
	app.Version++
	app.UpdatedAt = now
	app.Approvals = append(app.Approvals, rec)
	out.Application = app
	out.Changed = true

	s.log.WithFields(logrus.Fields{
		"application": app.ID,
		"actor":       actor.Email,
		"from":        before.Status,
		"to":          d.Target,
	}).Info("application status changed")

	out.NotifyErr = s.notify(ctx, Notification{
		Kind:        NotifyDecision,
		To:          recipients(app.EmployeeEmail),
		Actor:       actor,
		Application: *app,
		Comment:     d.Comment,
	})
	return out, nil
}

// =============================================================================
// EDIT (admin)
// =============================================================================

// EditInput lists the fields to change. Nil means unchanged.
type EditInput struct {
	LeaveType *string
	Dates     []generic.Date
	IsHalfDay *bool
	Status    *Status
	Comment   string
}

// EditApplication changes an application in any status and reconciles the
// balance with what the edited application must hold.
func (s *Service) EditApplication(ctx context.Context, actor Actor, id string, in EditInput) (*Outcome, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins edit applications", ErrNotAuthorized)
	}
	app, err := s.loadApplication(ctx, id)
	if err != nil {
		return nil, err
	}

	before := app.Snapshot()
	after, item, err := s.applyEdit(ctx, before, in)
	if err != nil {
		return nil, err
	}
	if snapshotsEqual(before, after) {
		return &Outcome{Application: app}, nil
	}

	out := &Outcome{}
	moves, err := s.applyEffect(ctx, app, actor, effectOf(before, after), "application edited", out)
	if err != nil {
		return nil, err
	}

	now := s.now()
	upd := ApplicationUpdate{
		LeaveType:     &after.LeaveType,
		Dates:         after.Dates,
		IsHalfDay:     &after.IsHalfDay,
		DaysCount:     &after.DaysCount,
		Status:        &after.Status,
		ExpectStatus:  before.Status,
		ExpectVersion: app.Version,
		UpdatedAt:     now,
	}
	if after.LeaveType != before.LeaveType {
		upd.PolicySnapshot = item
	}
	if err := s.applications.UpdateFields(ctx, app.ID, upd); err != nil {
		s.compensate(ctx, app, actor, moves)
		return nil, fmt.Errorf("update application %s: %w", app.ID, err)
	}

	rec := ApprovalRecord{
		Actor:   actor.Email,
		Role:    actor.Role,
		Action:  ActionEdited,
		Comment: in.Comment,
		At:      now,
		Before:  &before,
		After:   &after,
	}
	s.appendApproval(ctx, app.ID, rec, out)

	app.LeaveType = after.LeaveType
	app.Dates = after.Dates
	app.IsHalfDay = after.IsHalfDay
	app.DaysCount = after.DaysCount
	app.Status = after.Status
	if upd.PolicySnapshot != nil {
		app.PolicySnapshot = upd.PolicySnapshot
	}
	app.Version++
	app.UpdatedAt = now
	app.Approvals = append(app.Approvals, rec)
	out.Application = app
	out.Changed = true

	s.log.WithFields(logrus.Fields{
		"application": app.ID,
		"actor":       actor.Email,
		"movements":   len(out.Movements),
	}).Info("application edited")

	out.NotifyErr = s.notify(ctx, Notification{
		Kind:        NotifyEdited,
		To:          recipients(app.EmployeeEmail),
		Actor:       actor,
		Application: *app,
		Comment:     in.Comment,
	})
	return out, nil
}

// applyEdit computes the post-edit snapshot. It validates the new leave type
// against the active policy and returns that type's policy item.
func (s *Service) applyEdit(ctx context.Context, before ApplicationSnapshot, in EditInput) (ApplicationSnapshot, *PolicyItem, error) {
	after := before
	after.Dates = append([]generic.Date(nil), before.Dates...)

	var item *PolicyItem
	if in.LeaveType != nil {
		key := NormalizeKey(*in.LeaveType)
		policy, err := s.resolver.Active(ctx)
		if err != nil {
			return after, nil, err
		}
		if !policy.Accepts(key) {
			return after, nil, fmt.Errorf("%w: %q", ErrInvalidLeaveType, *in.LeaveType)
		}
		if it, ok := policy.Item(key); ok {
			item = &it
		}
		after.LeaveType = key
	}
	if in.Dates != nil {
		if len(in.Dates) == 0 {
			return after, nil, fmt.Errorf("%w: no dates", ErrInvalidApplication)
		}
		seen := make(map[string]bool, len(in.Dates))
		for _, d := range in.Dates {
			if d.IsZero() || seen[d.String()] {
				return after, nil, fmt.Errorf("%w: empty or repeated date %q", ErrInvalidApplication, d.String())
			}
			seen[d.String()] = true
		}
		after.Dates = SortDates(append([]generic.Date(nil), in.Dates...))
	}
	if in.IsHalfDay != nil {
		after.IsHalfDay = *in.IsHalfDay
	}
	if after.IsHalfDay && len(after.Dates) > 1 {
		return after, nil, fmt.Errorf("%w: half day applies to a single date", ErrInvalidApplication)
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return after, nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, *in.Status)
		}
		after.Status = *in.Status
	}
	after.DaysCount = CountDays(after.Dates, after.IsHalfDay)
	return after, item, nil
}

func snapshotsEqual(a, b ApplicationSnapshot) bool {
	if a.LeaveType != b.LeaveType || a.IsHalfDay != b.IsHalfDay || a.Status != b.Status ||
		!a.DaysCount.Equal(b.DaysCount) || len(a.Dates) != len(b.Dates) {
		return false
	}
	for i := range a.Dates {
		if !a.Dates[i].Equal(b.Dates[i]) {
			return false
		}
	}
	return true
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteApplication removes an application, refunding what it held. Admins
// may delete any application; employees only their own pending ones.
func (s *Service) DeleteApplication(ctx context.Context, actor Actor, id string) (*Outcome, error) {
	app, err := s.loadApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !(actor.Email == app.EmployeeEmail && app.Status == StatusPending) {
		return nil, fmt.Errorf("%w: %s cannot delete application %s", ErrNotAuthorized, actor.Email, app.ID)
	}

	before := app.Snapshot()
	after := app.Snapshot()
	after.Status = StatusRejected

	// Claim the application so no concurrent approval can debit it while
	// it is being refunded and removed.
	claimed := StatusRejected
	now := s.now()
	err = s.applications.UpdateFields(ctx, app.ID, ApplicationUpdate{
		Status:        &claimed,
		ExpectStatus:  before.Status,
		ExpectVersion: app.Version,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("claim application %s: %w", app.ID, err)
	}

	restore := func() {
		status := before.Status
		if rerr := s.applications.UpdateFields(ctx, app.ID, ApplicationUpdate{Status: &status, ExpectStatus: claimed, UpdatedAt: now}); rerr != nil {
			s.log.WithError(rerr).WithField("application", app.ID).Error("failed to restore status after aborted delete")
		}
	}

	out := &Outcome{}
	moves, err := s.applyEffect(ctx, app, actor, effectOf(before, after), "application deleted", out)
	if err != nil {
		restore()
		return nil, err
	}

	// The log is the only trace left once the record is gone, so a delete
	// that cannot be logged does not happen.
	rec := ApprovalRecord{Actor: actor.Email, Role: actor.Role, Action: ActionDeleted, At: now, Before: &before}
	if err := s.logDeletion(ctx, app, rec, before.Holds()); err != nil {
		s.compensate(ctx, app, actor, moves)
		restore()
		return nil, err
	}

	if err := s.applications.Delete(ctx, app.ID); err != nil {
		return nil, fmt.Errorf("delete application %s: %w", app.ID, err)
	}

	s.log.WithFields(logrus.Fields{
		"application": app.ID,
		"actor":       actor.Email,
		"refunded":    before.Holds().String(),
	}).Info("application deleted")

	out.Application = app
	out.Changed = true
	out.NotifyErr = s.notify(ctx, Notification{
		Kind:        NotifyDeleted,
		To:          recipients(app.EmployeeEmail, app.ManagerEmail),
		Actor:       actor,
		Application: *app,
	})
	return out, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// GetApplication returns an application visible to actor.
func (s *Service) GetApplication(ctx context.Context, actor Actor, id string) (*Application, error) {
	app, err := s.loadApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, app) {
		return nil, fmt.Errorf("%w: %s cannot view application %s", ErrNotAuthorized, actor.Email, id)
	}
	return app, nil
}

// ListApplications narrows the filter to what actor may see.
func (s *Service) ListApplications(ctx context.Context, actor Actor, f ApplicationFilter) ([]Application, error) {
	switch actor.Role {
	case RoleAdmin, RoleSystem:
	case RoleManager:
		if f.EmployeeEmail != actor.Email {
			f.ManagerEmail = actor.Email
		}
	default:
		f.EmployeeEmail = actor.Email
	}
	return s.applications.FindByQuery(ctx, f)
}

func canView(actor Actor, app *Application) bool {
	return actor.IsAdmin() || actor.Email == app.EmployeeEmail || actor.Email == app.ManagerEmail
}

func (s *Service) loadApplication(ctx context.Context, id string) (*Application, error) {
	app, err := s.applications.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load application %s: %w", id, err)
	}
	if app == nil {
		return nil, fmt.Errorf("%w: %s", ErrApplicationNotFound, id)
	}
	return app, nil
}

// =============================================================================
// LEDGER EFFECT HELPERS
// =============================================================================

// applyEffect issues the debit before the refund so a refused debit leaves
// the ledger untouched. A failed refund reverts the debit.
func (s *Service) applyEffect(ctx context.Context, app *Application, actor Actor, e ledgerEffect, reason string, out *Outcome) ([]Movement, error) {
	if e.isZero() {
		return nil, nil
	}
	if !e.delta.IsZero() {
		m, err := s.ledger.ApplyDelta(ctx, app.EmployeeEmail, e.deltaKey, e.delta, Entry{
			ReferenceID: app.ID, Reason: reason, Actor: actor.Email,
		})
		if err != nil {
			return nil, err
		}
		out.addMovement(m)
		return []Movement{m}, nil
	}
	var applied []Movement
	if e.debitDays.IsPositive() {
		m, err := s.ledger.Debit(ctx, app.EmployeeEmail, e.debitKey, e.debitDays, Entry{
			Type: generic.TxConsumption, ReferenceID: app.ID, Reason: reason, Actor: actor.Email,
		})
		if err != nil {
			return nil, err
		}
		applied = append(applied, m)
	}
	if e.refundDays.IsPositive() {
		m, err := s.ledger.Refund(ctx, app.EmployeeEmail, e.refundKey, e.refundDays, Entry{
			Type: generic.TxReversal, ReferenceID: app.ID, Reason: reason, Actor: actor.Email,
		})
		if err != nil {
			s.compensate(ctx, app, actor, applied)
			return nil, err
		}
		applied = append(applied, m)
	}
	for _, m := range applied {
		out.addMovement(m)
	}
	return applied, nil
}

func (s *Service) compensate(ctx context.Context, app *Application, actor Actor, moves []Movement) {
	for i := len(moves) - 1; i >= 0; i-- {
		_ = s.ledger.Revert(ctx, moves[i], Entry{ReferenceID: app.ID, Reason: "compensation", Actor: actor.Email})
	}
}

func (s *Service) logDeletion(ctx context.Context, app *Application, rec ApprovalRecord, refunded generic.Days) error {
	if s.audit == nil {
		return nil
	}
	history := make([]ApprovalRecord, 0, len(app.Approvals)+1)
	history = append(history, app.Approvals...)
	history = append(history, rec)
	err := s.audit.AppendDeletionLog(ctx, DeletionLogEntry{
		ID:            uuid.NewString(),
		ApplicationID: app.ID,
		EmployeeID:    app.EmployeeID,
		EmployeeEmail: app.EmployeeEmail,
		DeletedBy:     rec.Actor,
		Role:          rec.Role,
		Before:        *rec.Before,
		Refunded:      refunded,
		Approvals:     history,
		DeletedAt:     rec.At,
	})
	if err != nil {
		return fmt.Errorf("log deletion of %s: %w", app.ID, err)
	}
	return nil
}

func (s *Service) appendApproval(ctx context.Context, id string, rec ApprovalRecord, out *Outcome) {
	if err := s.applications.AppendApproval(ctx, id, rec); err != nil {
		s.log.WithError(err).WithField("application", id).Warn("approval record not written")
		out.AuditErrors = append(out.AuditErrors, fmt.Errorf("approval record: %w", err))
	}
}

func (s *Service) notify(ctx context.Context, n Notification) error {
	if len(n.To) == 0 {
		return nil
	}
	err := s.notifier.Notify(ctx, n)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"kind":        n.Kind,
			"application": n.Application.ID,
		}).Warn("notification failed")
	}
	return err
}

func recipients(emails ...string) []string {
	var out []string
	for _, e := range emails {
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}
