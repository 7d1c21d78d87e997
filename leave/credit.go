/*
credit.go - Monthly credit job

PURPOSE:
  Applies the calendar-driven balance changes once per month for every
  active employee: a year-start reset in January, monthly increments in
  other months.

IDEMPOTENCY:
  Before touching an employee the job claims the month through
  EmployeeStore.ClaimCreditPeriod. A second run for the same month finds
  the claim taken and skips the employee, so re-running never double
  credits. A claim whose balance write then fails is reported in Errors
  and must be corrected with an adjustment or a recalculation.

DEFAULT SCHEDULE (no active policy):
  casual_leave  January -> 6,   no monthly increment
  sick_leave    January -> 0.5, +0.5/month, cap 6
  earned_leave  January -> 0,   +1/month,   cap 12

  comp_off, unpaid_leave and any key without a rule are never touched.

SEE ALSO:
  - api/scheduler.go: Runs this job on a recurrence rule
  - policy.go: Source of policy-derived rules
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/generic"
)

// CreditRule describes how one leave type moves with the calendar.
type CreditRule struct {
	Key       LeaveTypeKey
	YearStart generic.Days // January value
	Monthly   generic.Days // increment for February..December
	Cap       generic.Days
}

// DefaultCreditRules is the schedule used without an active policy.
func DefaultCreditRules() []CreditRule {
	return []CreditRule{
		{Key: CasualLeave, YearStart: generic.DaysFromInt(6)},
		{Key: SickLeave, YearStart: generic.NewDays(0.5), Monthly: generic.NewDays(0.5), Cap: generic.DaysFromInt(6)},
		{Key: EarnedLeave, Monthly: generic.DaysFromInt(1), Cap: generic.DaysFromInt(12)},
	}
}

// CreditRulesFor derives rules from a policy. Annual types reset to their
// quota in January; monthly types reset to YearStartBalance (default one
// monthly credit) and grow by MonthlyCredit up to the cap.
func CreditRulesFor(p *Policy) []CreditRule {
	if p == nil || len(p.Items) == 0 {
		return DefaultCreditRules()
	}
	var rules []CreditRule
	for _, it := range p.Items {
		if it.Key == CompOff || it.Key.IsUnpaid() {
			continue
		}
		if !it.Accrues() {
			rules = append(rules, CreditRule{Key: it.Key, YearStart: it.AnnualQuota})
			continue
		}
		start := it.MonthlyCredit
		if it.YearStartBalance != nil {
			start = *it.YearStartBalance
		}
		rules = append(rules, CreditRule{Key: it.Key, YearStart: start, Monthly: it.MonthlyCredit, Cap: it.Cap()})
	}
	return rules
}

// CreditFailure is one employee the job could not credit.
type CreditFailure struct {
	Employee string
	Err      error
}

type CreditRunResult struct {
	Period    CreditPeriod
	Processed int
	Credited  []string
	Skipped   []string
	Errors    []CreditFailure

	// AuditErrors lists journal or credit log writes that failed for an
	// employee whose balance was credited anyway.
	AuditErrors []CreditFailure
}

// RunMonthlyCredit credits every active employee for ref's month.
func (s *Service) RunMonthlyCredit(ctx context.Context, ref generic.Date) (*CreditRunResult, error) {
	policy, err := s.resolver.Stored(ctx)
	if err != nil {
		return nil, err
	}
	rules := CreditRulesFor(policy)

	employees, err := s.employees.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active employees: %w", err)
	}

	period := PeriodOf(ref)
	res := &CreditRunResult{Period: period}
	log := s.log.WithFields(logrus.Fields{"job": "monthly_credit", "period": int(period)})

	for _, emp := range employees {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !emp.JoiningDate.IsZero() && emp.JoiningDate.After(ref) {
			res.Skipped = append(res.Skipped, emp.Email)
			continue
		}
		res.Processed++

		credited, auditErrs, err := s.creditEmployee(ctx, emp.Email, period, rules)
		for _, ae := range auditErrs {
			res.AuditErrors = append(res.AuditErrors, CreditFailure{Employee: emp.Email, Err: ae})
		}
		switch {
		case err != nil:
			log.WithError(err).WithField("employee", emp.Email).Error("credit failed")
			res.Errors = append(res.Errors, CreditFailure{Employee: emp.Email, Err: err})
		case credited:
			res.Credited = append(res.Credited, emp.Email)
		default:
			res.Skipped = append(res.Skipped, emp.Email)
		}
	}

	log.WithFields(logrus.Fields{
		"processed": res.Processed,
		"credited":  len(res.Credited),
		"skipped":   len(res.Skipped),
		"errors":    len(res.Errors),
		"audit":     len(res.AuditErrors),
	}).Info("monthly credit finished")
	return res, nil
}

// creditEmployee returns false when the month was already claimed. The
// returned audit errors never undo a credit.
func (s *Service) creditEmployee(ctx context.Context, email string, period CreditPeriod, rules []CreditRule) (bool, []error, error) {
	claimed, err := s.employees.ClaimCreditPeriod(ctx, email, period)
	if err != nil {
		return false, nil, fmt.Errorf("claim %d: %w", period, err)
	}
	if !claimed {
		return false, nil, nil
	}

	emp, err := s.employees.FindByEmail(ctx, email)
	if err != nil {
		return false, nil, err
	}
	if emp == nil {
		return false, nil, fmt.Errorf("%w: %s", ErrEmployeeNotFound, email)
	}
	previous := emp.LeaveBalance.Clone()

	entry := CreditLogEntry{
		ID:               uuid.NewString(),
		EmployeeID:       emp.ID,
		EmployeeEmail:    emp.Email,
		CreditMonth:      period.Month(),
		CreditYear:       period.Year(),
		IsYearStartReset: period.Month() == time.January,
		PreviousBalance:  previous,
		CreatedAt:        s.now(),
	}

	var auditErrs []error
	collect := func(m Movement) {
		if m.JournalErr != nil && !errors.Is(m.JournalErr, generic.ErrDuplicateIdempotencyKey) {
			auditErrs = append(auditErrs, m.JournalErr)
		}
	}
	if entry.IsYearStartReset {
		fields := make(Balance, len(rules))
		for _, r := range rules {
			fields[r.Key] = r.YearStart
			entry.CreditsApplied = append(entry.CreditsApplied, fmt.Sprintf("%s reset to %s", r.Key, r.YearStart))
		}
		if err := s.employees.SetBalanceFields(ctx, email, fields); err != nil {
			return false, nil, fmt.Errorf("year start reset: %w", err)
		}
		for _, r := range rules {
			v := fields[r.Key]
			delta := v.Sub(previous.Get(r.Key))
			if !delta.IsZero() {
				collect(s.ledger.record(ctx, email, r.Key, delta, v, Entry{
					Type:        generic.TxGrant,
					ReferenceID: creditReference(period),
					Reason:      "year start reset",
					Actor:       SystemActor.Email,
				}))
			}
		}
	} else {
		for _, r := range rules {
			if !r.Monthly.IsPositive() {
				continue
			}
			current := previous.Get(r.Key)
			target := current.Add(r.Monthly)
			if r.Cap.IsPositive() {
				target = target.Min(r.Cap)
			}
			delta := target.Sub(current)
			if !delta.IsPositive() {
				continue
			}
			m, err := s.ledger.Credit(ctx, email, r.Key, delta, Entry{
				Type:           generic.TxGrant,
				ReferenceID:    creditReference(period),
				Reason:         "monthly credit",
				Actor:          SystemActor.Email,
				IdempotencyKey: fmt.Sprintf("credit:%s:%d:%s", email, period, r.Key),
			})
			if err != nil {
				return false, nil, err
			}
			collect(m)
			entry.CreditsApplied = append(entry.CreditsApplied, fmt.Sprintf("%s +%s", r.Key, delta))
		}
	}

	after, err := s.employees.FindByEmail(ctx, email)
	if err == nil && after != nil {
		entry.NewBalance = after.LeaveBalance.Clone()
	}
	if s.audit != nil {
		if err := s.audit.AppendCreditLog(ctx, entry); err != nil {
			auditErrs = append(auditErrs, fmt.Errorf("credit log: %w", err))
		}
	}
	for _, e := range auditErrs {
		s.log.WithError(e).WithField("employee", email).Warn("credit audit write failed")
	}
	return true, auditErrs, nil
}

func creditReference(p CreditPeriod) string {
	return fmt.Sprintf("credit-%d", p)
}
