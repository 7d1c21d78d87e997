package leave_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	genstore "github.com/warp/leave-engine/generic/store"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MONTHLY CREDIT JOB
// =============================================================================

func TestMonthlyCredit_March(t *testing.T) {
	// GIVEN: sick 3, earned 5, comp_off 2, last credited in February
	// WHEN: The March 2024 run executes
	// THEN: sick 3.5, earned 6, casual and comp_off unchanged, one log entry

	f := newFixture(t, "2024-03-01")
	f.seed(empEmail, managerEmail, "2023-01-01", leave.Balance{
		leave.CasualLeave: days("4"),
		leave.SickLeave:   days("3"),
		leave.EarnedLeave: days("5"),
		leave.CompOff:     days("2"),
	})
	ctx := context.Background()

	res, err := f.svc.RunMonthlyCredit(ctx, date("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, leave.CreditPeriod(202403), res.Period)
	assert.Equal(t, []string{empEmail}, res.Credited)
	assert.Empty(t, res.Errors)

	assert.Equal(t, "4", f.balance(t, empEmail, leave.CasualLeave))
	assert.Equal(t, "3.5", f.balance(t, empEmail, leave.SickLeave))
	assert.Equal(t, "6", f.balance(t, empEmail, leave.EarnedLeave))
	assert.Equal(t, "2", f.balance(t, empEmail, leave.CompOff))

	logs, err := f.svc.CreditLogs(ctx, empEmail, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, time.March, logs[0].CreditMonth)
	assert.Equal(t, 2024, logs[0].CreditYear)
	assert.False(t, logs[0].IsYearStartReset)
	assert.Equal(t, "3", logs[0].PreviousBalance.Get(leave.SickLeave).String())
	assert.Equal(t, "3.5", logs[0].NewBalance.Get(leave.SickLeave).String())
	assert.Len(t, logs[0].CreditsApplied, 2)

	txs, err := f.svc.Journal(ctx, empEmail)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestMonthlyCredit_RerunSameMonth_NoDoubleCredit(t *testing.T) {
	f := newFixture(t, "2024-03-01")
	f.seed(empEmail, managerEmail, "2023-01-01", leave.Balance{leave.SickLeave: days("3"), leave.EarnedLeave: days("5")})
	ctx := context.Background()

	_, err := f.svc.RunMonthlyCredit(ctx, date("2024-03-01"))
	require.NoError(t, err)
	res, err := f.svc.RunMonthlyCredit(ctx, date("2024-03-20"))
	require.NoError(t, err)

	assert.Empty(t, res.Credited)
	assert.Equal(t, []string{empEmail}, res.Skipped)
	assert.Equal(t, "3.5", f.balance(t, empEmail, leave.SickLeave))
	assert.Equal(t, "6", f.balance(t, empEmail, leave.EarnedLeave))

	logs, err := f.svc.CreditLogs(ctx, empEmail, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestMonthlyCredit_CapsNeverLowerBalance(t *testing.T) {
	f := newFixture(t, "2024-03-01")
	f.seed(empEmail, managerEmail, "2023-01-01", leave.Balance{
		leave.SickLeave:   days("5.8"),
		leave.EarnedLeave: days("15"),
	})

	_, err := f.svc.RunMonthlyCredit(context.Background(), date("2024-03-01"))
	require.NoError(t, err)

	assert.Equal(t, "6", f.balance(t, empEmail, leave.SickLeave))
	assert.Equal(t, "15", f.balance(t, empEmail, leave.EarnedLeave), "above cap stays where it is")
}

func TestMonthlyCredit_JanuaryReset(t *testing.T) {
	// GIVEN: End-of-year balances
	// WHEN: The January run executes
	// THEN: casual 6, sick 0.5, earned 0, comp_off untouched

	f := newFixture(t, "2025-01-01")
	f.seed(empEmail, managerEmail, "2023-01-01", leave.Balance{
		leave.CasualLeave: days("1.5"),
		leave.SickLeave:   days("6"),
		leave.EarnedLeave: days("12"),
		leave.CompOff:     days("3"),
	})
	ctx := context.Background()

	_, err := f.svc.RunMonthlyCredit(ctx, date("2025-01-01"))
	require.NoError(t, err)

	assert.Equal(t, "6", f.balance(t, empEmail, leave.CasualLeave))
	assert.Equal(t, "0.5", f.balance(t, empEmail, leave.SickLeave))
	assert.Equal(t, "0", f.balance(t, empEmail, leave.EarnedLeave))
	assert.Equal(t, "3", f.balance(t, empEmail, leave.CompOff))

	logs, err := f.svc.CreditLogs(ctx, empEmail, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].IsYearStartReset)
}

func TestMonthlyCredit_JanuaryResetFromPartialYear(t *testing.T) {
	// GIVEN: Joined 2026-08-07, holding casual 2, sick 4.5, earned 11
	// WHEN: The 2027-01-01 run executes
	// THEN: casual reset to 6, sick reset then credited to 0.5, earned reset to 0

	f := newFixture(t, "2027-01-01")
	f.seed(empEmail, managerEmail, "2026-08-07", leave.Balance{
		leave.CasualLeave: days("2"),
		leave.SickLeave:   days("4.5"),
		leave.EarnedLeave: days("11"),
	})

	res, err := f.svc.RunMonthlyCredit(context.Background(), date("2027-01-01"))
	require.NoError(t, err)
	assert.Equal(t, []string{empEmail}, res.Credited)

	assert.Equal(t, "6", f.balance(t, empEmail, leave.CasualLeave))
	assert.Equal(t, "0.5", f.balance(t, empEmail, leave.SickLeave))
	assert.Equal(t, "0", f.balance(t, empEmail, leave.EarnedLeave))
}

func TestMonthlyCredit_AuditFailuresReported(t *testing.T) {
	tests := []struct {
		name string
		ref  string
	}{
		{"january reset", "2025-01-01"},
		{"monthly increment", "2025-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: a journal and a credit log that both refuse writes
			f := newFixture(t, tt.ref)
			f.seed(empEmail, managerEmail, "2023-01-01", leave.Balance{
				leave.CasualLeave: days("1.5"),
				leave.SickLeave:   days("2"),
				leave.EarnedLeave: days("3"),
			})
			svc := f.serviceWith(brokenCreditLog{f.store}, generic.NewJournal(brokenJournal{genstore.NewMemory()}))

			// WHEN
			res, err := svc.RunMonthlyCredit(context.Background(), date(tt.ref))

			// THEN: the employee is credited and every failed write is reported
			require.NoError(t, err)
			assert.Equal(t, []string{empEmail}, res.Credited)
			assert.Empty(t, res.Errors)
			require.NotEmpty(t, res.AuditErrors)

			var journalFailures, logFailures int
			for _, af := range res.AuditErrors {
				assert.Equal(t, empEmail, af.Employee)
				var je *generic.JournalError
				switch {
				case errors.As(af.Err, &je):
					journalFailures++
				case errors.Is(af.Err, errAuditDown):
					logFailures++
				}
			}
			assert.Positive(t, journalFailures)
			assert.Equal(t, 1, logFailures)
		})
	}
}

func TestMonthlyCredit_SkipsEmployeesNotYetJoined(t *testing.T) {
	f := newFixture(t, "2024-03-01")
	f.seed(empEmail, managerEmail, "2024-03-15", leave.Balance{leave.SickLeave: days("0")})

	res, err := f.svc.RunMonthlyCredit(context.Background(), date("2024-03-01"))
	require.NoError(t, err)

	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, []string{empEmail}, res.Skipped)
	assert.Equal(t, "0", f.balance(t, empEmail, leave.SickLeave))
}

func TestMonthlyCredit_TenYearsStaysWithinCaps(t *testing.T) {
	// GIVEN: A fresh employee with an empty balance
	// WHEN: The job runs every month for ten years
	// THEN: Outside January balances never decrease and never pass the cap

	f := newFixture(t, "2024-02-01")
	f.seed(empEmail, managerEmail, "2024-01-01", leave.Balance{})
	ctx := context.Background()

	ref := date("2024-02-01")
	prev := leave.Balance{}
	for m := 0; m < 120; m++ {
		_, err := f.svc.RunMonthlyCredit(ctx, ref)
		require.NoError(t, err)
		cur, err := f.svc.Balance(ctx, empEmail)
		require.NoError(t, err)

		if ref.Month() != time.January {
			require.False(t, cur.Get(leave.SickLeave).LessThan(prev.Get(leave.SickLeave)), "sick decreased at %s", ref)
			require.False(t, cur.Get(leave.EarnedLeave).LessThan(prev.Get(leave.EarnedLeave)), "earned decreased at %s", ref)
		}
		require.False(t, cur.Get(leave.SickLeave).GreaterThan(days("6")), "sick above cap at %s", ref)
		require.False(t, cur.Get(leave.EarnedLeave).GreaterThan(days("12")), "earned above cap at %s", ref)
		prev = cur
		ref = ref.AddMonths(1)
	}
}

func TestCreditRulesFor_Policy(t *testing.T) {
	start := days("1")
	p := &leave.Policy{Items: []leave.PolicyItem{
		{Key: leave.PaidLeave, AnnualQuota: days("15"), CreditType: leave.CreditAnnually},
		{Key: leave.SickLeave, AnnualQuota: days("8"), CreditType: leave.CreditMonthly, MonthlyCredit: days("0.5"), YearStartBalance: &start},
		{Key: leave.EarnedLeave, CreditType: leave.CreditMonthly, MonthlyCredit: days("1.5")},
		{Key: leave.UnpaidLeave, CreditType: leave.CreditAnnually},
	}}

	rules := leave.CreditRulesFor(p)
	require.Len(t, rules, 3)

	assert.Equal(t, leave.PaidLeave, rules[0].Key)
	assert.Equal(t, "15", rules[0].YearStart.String())
	assert.True(t, rules[0].Monthly.IsZero())

	assert.Equal(t, "1", rules[1].YearStart.String())
	assert.Equal(t, "8", rules[1].Cap.String())

	assert.Equal(t, "1.5", rules[2].YearStart.String(), "year start defaults to one monthly credit")
	assert.Equal(t, "18", rules[2].Cap.String())

	assert.Len(t, leave.CreditRulesFor(nil), 3)
}

func TestMonthlyCredit_UsesStoredPolicy(t *testing.T) {
	f := newFixture(t, "2024-03-01")
	f.seed(empEmail, managerEmail, "2023-01-01", leave.Balance{leave.CasualLeave: days("2")})
	f.setPolicy(t, func(p *leave.Policy) {
		setItem(p, leave.CasualLeave, func(it *leave.PolicyItem) { it.MonthlyCredit = days("1") })
	})

	_, err := f.svc.RunMonthlyCredit(context.Background(), date("2024-03-01"))
	require.NoError(t, err)

	assert.Equal(t, "3", f.balance(t, empEmail, leave.CasualLeave))
	assert.Equal(t, "0.5", f.balance(t, empEmail, leave.SickLeave))
}
