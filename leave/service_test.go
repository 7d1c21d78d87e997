package leave_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// SUBMISSION
// =============================================================================

func TestSubmit_PendingDoesNotTouchBalance(t *testing.T) {
	// GIVEN: An employee with 5 days casual leave
	// WHEN: Submitting a 2-day casual application
	// THEN: The application is pending and the balance is unchanged

	f := newFixture(t, "2024-03-10")
	f.seedDefault()

	app := f.submit(t, "Casual Leave", "2024-04-01", "2024-04-02")

	assert.Equal(t, leave.StatusPending, app.Status)
	assert.Equal(t, leave.CasualLeave, app.LeaveType)
	assert.Equal(t, "2", app.DaysCount.String())
	assert.Equal(t, int64(1), app.Version)
	require.Len(t, app.Approvals, 1)
	assert.Equal(t, leave.ActionSubmitted, app.Approvals[0].Action)
	assert.NotNil(t, app.PolicySnapshot)
	assert.Equal(t, "5", f.balance(t, empEmail, leave.CasualLeave))
	assert.Equal(t, []leave.NotificationKind{leave.NotifySubmitted}, f.notifier.kinds())
}

func TestSubmit_OnBehalfOfSomeoneElse_Forbidden(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()

	_, err := f.svc.SubmitApplication(context.Background(), manager, leave.SubmitInput{
		EmployeeEmail: empEmail,
		LeaveType:     "casual_leave",
		Dates:         dateList("2024-04-01"),
	})
	assert.ErrorIs(t, err, leave.ErrNotAuthorized)
}

func TestSubmit_NotificationFailure_DoesNotFailSubmission(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	f.notifier.err = errMailDown

	out, err := f.svc.SubmitApplication(context.Background(), employee, leave.SubmitInput{
		EmployeeEmail: empEmail,
		LeaveType:     "casual_leave",
		Dates:         dateList("2024-04-01"),
	})
	require.NoError(t, err)
	assert.ErrorIs(t, out.NotifyErr, errMailDown)
	assert.True(t, out.Changed)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate_AdvanceNotice_Overridable(t *testing.T) {
	// GIVEN: casual_leave requires 3 days notice, today is 2024-03-10
	// WHEN: Validating an application for 2024-03-11
	// THEN: Invalid with can_override; with force it passes with a warning

	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	f.setPolicy(t, func(p *leave.Policy) {
		setItem(p, leave.CasualLeave, func(it *leave.PolicyItem) { it.AdvanceDaysRequired = 3 })
	})
	ctx := context.Background()
	in := leave.SubmitInput{EmployeeEmail: empEmail, LeaveType: "Casual Leave", Dates: dateList("2024-03-11")}

	res, err := f.svc.ValidateApplication(ctx, in)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.True(t, res.CanOverride)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, leave.CodeAdvanceNotice, res.Errors[0].Code)

	var notice *leave.AdvanceNoticeError
	require.True(t, errors.As(res.Errors[0].Err, &notice))
	assert.Equal(t, 3, notice.Required)
	assert.Equal(t, 1, notice.Actual)

	in.Force = true
	res, err = f.svc.ValidateApplication(ctx, in)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, leave.CodeAdvanceNotice, res.Warnings[0].Code)
}

func TestSubmit_AdvanceNoticeWithoutForce_Rejected(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	f.setPolicy(t, func(p *leave.Policy) {
		setItem(p, leave.CasualLeave, func(it *leave.PolicyItem) { it.AdvanceDaysRequired = 3 })
	})

	_, err := f.svc.SubmitApplication(context.Background(), employee, leave.SubmitInput{
		EmployeeEmail: empEmail, LeaveType: "casual_leave", Dates: dateList("2024-03-11"),
	})
	assert.ErrorIs(t, err, leave.ErrValidationFailed)
	assert.ErrorIs(t, err, leave.ErrAdvanceNotice)
	assert.True(t, leave.IsClientError(err))
}

func TestValidate_ClubbingConflict_NotOverridable(t *testing.T) {
	// GIVEN: casual_leave cannot be clubbed with sick_leave, and a pending
	//        sick application exists for 2024-03-15
	// WHEN: Validating casual leave for 2024-03-16
	// THEN: clubbing_conflict, can_override false even with force

	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	f.setPolicy(t, func(p *leave.Policy) {
		setItem(p, leave.CasualLeave, func(it *leave.PolicyItem) {
			it.ClubbingNotAllowedWith = []leave.LeaveTypeKey{leave.SickLeave}
		})
	})
	sick := f.submit(t, "Sick Leave", "2024-03-15")

	res, err := f.svc.ValidateApplication(context.Background(), leave.SubmitInput{
		EmployeeEmail: empEmail, LeaveType: "Casual Leave", Dates: dateList("2024-03-16"), Force: true,
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.False(t, res.CanOverride)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, leave.CodeClubbingConflict, res.Errors[0].Code)

	var conflict *leave.ClubbingConflictError
	require.True(t, errors.As(res.Errors[0].Err, &conflict))
	assert.Equal(t, sick.ID, conflict.ApplicationID)
	assert.Equal(t, leave.SickLeave, conflict.With)
}

func TestValidate_ClubbingIgnoresRejectedAndDistantDates(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	f.setPolicy(t, func(p *leave.Policy) {
		setItem(p, leave.CasualLeave, func(it *leave.PolicyItem) {
			it.ClubbingNotAllowedWith = []leave.LeaveTypeKey{leave.SickLeave}
		})
	})
	ctx := context.Background()
	sick := f.submit(t, "Sick Leave", "2024-03-15")

	res, err := f.svc.ValidateApplication(ctx, leave.SubmitInput{
		EmployeeEmail: empEmail, LeaveType: "Casual Leave", Dates: dateList("2024-03-18"),
	})
	require.NoError(t, err)
	assert.True(t, res.Valid, "three days apart is not adjacent")

	_, err = f.svc.ActOnApplication(ctx, manager, sick.ID, leave.Decision{Target: leave.StatusRejected})
	require.NoError(t, err)

	res, err = f.svc.ValidateApplication(ctx, leave.SubmitInput{
		EmployeeEmail: empEmail, LeaveType: "Casual Leave", Dates: dateList("2024-03-16"),
	})
	require.NoError(t, err)
	assert.True(t, res.Valid, "rejected applications do not block")
}

func TestValidate_StructuralErrors(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()

	tests := []struct {
		name string
		in   leave.SubmitInput
		code string
	}{
		{"unknown type", leave.SubmitInput{EmployeeEmail: empEmail, LeaveType: "Sabbatical", Dates: dateList("2024-04-01")}, leave.CodeInvalidLeaveType},
		{"no dates", leave.SubmitInput{EmployeeEmail: empEmail, LeaveType: "casual_leave"}, leave.CodeInvalidDates},
		{"half day over two dates", leave.SubmitInput{EmployeeEmail: empEmail, LeaveType: "casual_leave", IsHalfDay: true, Dates: dateList("2024-04-01", "2024-04-02")}, leave.CodeInvalidDates},
		{"repeated date", leave.SubmitInput{EmployeeEmail: empEmail, LeaveType: "casual_leave", Dates: dateList("2024-04-01", "2024-04-01")}, leave.CodeInvalidDates},
		{"unknown employee", leave.SubmitInput{EmployeeEmail: "ghost@warp.dev", LeaveType: "casual_leave", Dates: dateList("2024-04-01")}, leave.CodeEmployeeNotFound},
		{"before joining", leave.SubmitInput{EmployeeEmail: empEmail, LeaveType: "casual_leave", Dates: dateList("2022-12-30")}, leave.CodeNotJoined},
		{"more than balance", leave.SubmitInput{EmployeeEmail: empEmail, LeaveType: "sick_leave", Dates: dateList("2024-04-01", "2024-04-02", "2024-04-03", "2024-04-04")}, leave.CodeInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.ValidateApplication(ctx, tt.in)
			require.NoError(t, err)
			assert.False(t, res.Valid)
			assert.False(t, res.CanOverride)
			codes := make([]string, 0, len(res.Errors))
			for _, is := range res.Errors {
				codes = append(codes, is.Code)
			}
			assert.Contains(t, codes, tt.code)
		})
	}
}

func TestValidate_HalfDayCountsHalf(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()

	res, err := f.svc.ValidateApplication(context.Background(), leave.SubmitInput{
		EmployeeEmail: empEmail, LeaveType: "sick_leave", IsHalfDay: true, Dates: dateList("2024-04-01"),
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "0.5", res.DaysCount.String())
	assert.Equal(t, "3", res.Available.String())
}

func TestValidate_OverlapWithOwnApplication(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	f.submit(t, "casual_leave", "2024-04-01", "2024-04-02")

	res, err := f.svc.ValidateApplication(context.Background(), leave.SubmitInput{
		EmployeeEmail: empEmail, LeaveType: "earned_leave", Dates: dateList("2024-04-02"),
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, leave.CodeOverlap, res.Errors[0].Code)
}

func TestValidate_UnpaidLeaveIgnoresBalance(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seed(empEmail, managerEmail, "2023-01-01", leave.Balance{})

	res, err := f.svc.ValidateApplication(context.Background(), leave.SubmitInput{
		EmployeeEmail: empEmail, LeaveType: "LWP", Dates: dateList("2024-04-01", "2024-04-02"),
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, leave.UnpaidLeave, res.LeaveType)
}

// =============================================================================
// APPROVAL FLOW
// =============================================================================

func TestApproveThenReject_DebitsOnceAndRefunds(t *testing.T) {
	// GIVEN: A pending 2-day casual application, balance 5
	// WHEN: Manager approves, then admin rejects
	// THEN: Balance goes 5 -> 3 -> 5 and the journal nets to zero

	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()
	app := f.submit(t, "Casual Leave", "2024-04-01", "2024-04-02")

	out, err := f.svc.ActOnApplication(ctx, manager, app.ID, leave.Decision{Target: leave.StatusManagerApproved, Comment: "ok"})
	require.NoError(t, err)
	assert.Equal(t, leave.StatusManagerApproved, out.Application.Status)
	require.Len(t, out.Movements, 1)
	assert.Equal(t, "-2", out.Movements[0].Delta.String())
	assert.Equal(t, "3", f.balance(t, empEmail, leave.CasualLeave))
	assert.Equal(t, "-2", f.net(t, app.ID, leave.CasualLeave))

	out, err = f.svc.ActOnApplication(ctx, admin, app.ID, leave.Decision{Target: leave.StatusRejected, Comment: "team offsite"})
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, out.Application.Status)
	assert.Equal(t, "5", f.balance(t, empEmail, leave.CasualLeave))
	assert.Equal(t, "0", f.net(t, app.ID, leave.CasualLeave))

	stored, err := f.svc.GetApplication(ctx, admin, app.ID)
	require.NoError(t, err)
	require.Len(t, stored.Approvals, 3)
	assert.Equal(t, leave.ActionManagerApproved, stored.Approvals[1].Action)
	assert.Equal(t, leave.ActionRejected, stored.Approvals[2].Action)
	assert.Equal(t, int64(3), stored.Version)
}

func TestFinalApproval_AfterManagerApproval_DoesNotDebitAgain(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()
	app := f.submit(t, "casual_leave", "2024-04-01", "2024-04-02")

	_, err := f.svc.ActOnApplication(ctx, manager, app.ID, leave.Decision{Target: leave.StatusManagerApproved})
	require.NoError(t, err)
	out, err := f.svc.ActOnApplication(ctx, admin, app.ID, leave.Decision{Target: leave.StatusApproved})
	require.NoError(t, err)

	assert.Empty(t, out.Movements)
	assert.Equal(t, "3", f.balance(t, empEmail, leave.CasualLeave))
}

func TestAdminApprovesPendingDirectly(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()
	app := f.submit(t, "earned_leave", "2024-04-01")

	out, err := f.svc.ActOnApplication(ctx, admin, app.ID, leave.Decision{Target: leave.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, out.Application.Status)
	assert.Equal(t, "4", f.balance(t, empEmail, leave.EarnedLeave))
}

func TestAct_AuthorizationAndTransitions(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()
	app := f.submit(t, "casual_leave", "2024-04-01")

	otherManager := leave.Actor{Email: "someone@warp.dev", Role: leave.RoleManager}
	_, err := f.svc.ActOnApplication(ctx, otherManager, app.ID, leave.Decision{Target: leave.StatusManagerApproved})
	assert.ErrorIs(t, err, leave.ErrNotAuthorized)

	_, err = f.svc.ActOnApplication(ctx, employee, app.ID, leave.Decision{Target: leave.StatusApproved})
	assert.ErrorIs(t, err, leave.ErrNotAuthorized)

	_, err = f.svc.ActOnApplication(ctx, manager, app.ID, leave.Decision{Target: leave.StatusApproved})
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	_, err = f.svc.ActOnApplication(ctx, admin, app.ID, leave.Decision{Target: leave.StatusPending})
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	_, err = f.svc.ActOnApplication(ctx, manager, app.ID, leave.Decision{Target: leave.StatusManagerApproved})
	require.NoError(t, err)

	_, err = f.svc.ActOnApplication(ctx, manager, app.ID, leave.Decision{Target: leave.StatusRejected})
	assert.ErrorIs(t, err, leave.ErrNotPending)
	assert.True(t, leave.IsConflict(err))

	_, err = f.svc.ActOnApplication(ctx, admin, "missing", leave.Decision{Target: leave.StatusApproved})
	assert.ErrorIs(t, err, leave.ErrApplicationNotFound)
	assert.Equal(t, "4", f.balance(t, empEmail, leave.CasualLeave))
}

func TestApprove_BalanceDroppedSinceSubmission_Refused(t *testing.T) {
	// GIVEN: A 2-day casual application submitted against a balance of 2
	// WHEN: The balance is reduced to 1 and the manager approves
	// THEN: InsufficientBalanceError, application still pending, balance 1

	f := newFixture(t, "2024-03-10")
	f.seed(empEmail, managerEmail, "2023-01-01", leave.Balance{leave.CasualLeave: days("2")})
	ctx := context.Background()
	app := f.submit(t, "casual_leave", "2024-04-01", "2024-04-02")

	_, err := f.svc.Adjust(ctx, admin, leave.AdjustmentRequest{
		EmployeeEmail: empEmail, Action: leave.AdjustDeduct, LeaveType: "casual_leave", Days: days("1"),
	})
	require.NoError(t, err)

	_, err = f.svc.ActOnApplication(ctx, manager, app.ID, leave.Decision{Target: leave.StatusManagerApproved})
	var insufficient *leave.InsufficientBalanceError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "1", insufficient.Available.String())
	assert.Equal(t, "2", insufficient.Requested.String())
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)

	stored, err := f.svc.GetApplication(ctx, admin, app.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, stored.Status)
	assert.Equal(t, "1", f.balance(t, empEmail, leave.CasualLeave))
}

func TestApprove_UnpaidLeave_NoMovement(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seed(empEmail, managerEmail, "2023-01-01", leave.Balance{leave.CasualLeave: days("1")})
	ctx := context.Background()
	app := f.submit(t, "unpaid_leave", "2024-04-01", "2024-04-02", "2024-04-03")

	out, err := f.svc.ActOnApplication(ctx, admin, app.ID, leave.Decision{Target: leave.StatusApproved})
	require.NoError(t, err)
	assert.Empty(t, out.Movements)
	assert.Equal(t, "0", f.balance(t, empEmail, leave.UnpaidLeave))
	assert.Equal(t, "1", f.balance(t, empEmail, leave.CasualLeave))
}

func TestConcurrentApprovals_DebitExactlyOnce(t *testing.T) {
	// GIVEN: One pending 2-day casual application, balance 5
	// WHEN: Ten admins approve it at the same time
	// THEN: Exactly one succeeds and the balance is debited once

	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()
	app := f.submit(t, "casual_leave", "2024-04-01", "2024-04-02")

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ActOnApplication(ctx, admin, app.ID, leave.Decision{Target: leave.StatusApproved})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.True(t, leave.IsConflict(err) || errors.Is(err, leave.ErrInsufficientBalance), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, "3", f.balance(t, empEmail, leave.CasualLeave))
	assert.Equal(t, "-2", f.net(t, app.ID, leave.CasualLeave))
}

// =============================================================================
// EDIT
// =============================================================================

func TestEdit_EmptyEdit_NoChange(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()
	app := f.submit(t, "casual_leave", "2024-04-01")
	_, err := f.svc.ActOnApplication(ctx, admin, app.ID, leave.Decision{Target: leave.StatusApproved})
	require.NoError(t, err)

	out, err := f.svc.EditApplication(ctx, admin, app.ID, leave.EditInput{Dates: dateList("2024-04-01")})
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Empty(t, out.Movements)
	assert.Equal(t, "4", f.balance(t, empEmail, leave.CasualLeave))
}

func TestEdit_ApprovedApplication_Reconciles(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()
	app := f.submit(t, "casual_leave", "2024-04-01", "2024-04-02")
	_, err := f.svc.ActOnApplication(ctx, admin, app.ID, leave.Decision{Target: leave.StatusApproved})
	require.NoError(t, err)
	require.Equal(t, "3", f.balance(t, empEmail, leave.CasualLeave))

	t.Run("more dates debits the difference", func(t *testing.T) {
		out, err := f.svc.EditApplication(ctx, admin, app.ID, leave.EditInput{
			Dates: dateList("2024-04-01", "2024-04-02", "2024-04-03"),
		})
		require.NoError(t, err)
		assert.True(t, out.Changed)
		assert.Equal(t, "3", out.Application.DaysCount.String())
		assert.Equal(t, "2", f.balance(t, empEmail, leave.CasualLeave))
	})

	t.Run("half day refunds the difference", func(t *testing.T) {
		half := true
		_, err := f.svc.EditApplication(ctx, admin, app.ID, leave.EditInput{
			Dates: dateList("2024-04-01"), IsHalfDay: &half,
		})
		require.NoError(t, err)
		assert.Equal(t, "4.5", f.balance(t, empEmail, leave.CasualLeave))
	})

	t.Run("type change moves the hold", func(t *testing.T) {
		sick := "Sick Leave"
		out, err := f.svc.EditApplication(ctx, admin, app.ID, leave.EditInput{LeaveType: &sick})
		require.NoError(t, err)
		assert.Len(t, out.Movements, 2)
		assert.Equal(t, "5", f.balance(t, empEmail, leave.CasualLeave))
		assert.Equal(t, "2.5", f.balance(t, empEmail, leave.SickLeave))
		require.NotNil(t, out.Application.PolicySnapshot)
		assert.Equal(t, leave.SickLeave, out.Application.PolicySnapshot.Key)
	})

	t.Run("status to rejected refunds", func(t *testing.T) {
		rejected := leave.StatusRejected
		_, err := f.svc.EditApplication(ctx, admin, app.ID, leave.EditInput{Status: &rejected})
		require.NoError(t, err)
		assert.Equal(t, "3", f.balance(t, empEmail, leave.SickLeave))
		assert.Equal(t, "0", f.net(t, app.ID, leave.SickLeave))
		assert.Equal(t, "0", f.net(t, app.ID, leave.CasualLeave))
	})

	stored, err := f.svc.GetApplication(ctx, admin, app.ID)
	require.NoError(t, err)
	last := stored.Approvals[len(stored.Approvals)-1]
	assert.Equal(t, leave.ActionEdited, last.Action)
	require.NotNil(t, last.Before)
	require.NotNil(t, last.After)
	assert.Equal(t, leave.StatusApproved, last.Before.Status)
	assert.Equal(t, leave.StatusRejected, last.After.Status)
}

func TestEdit_PendingToApproved_Debits(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()
	app := f.submit(t, "earned_leave", "2024-04-01", "2024-04-02")

	approved := leave.StatusApproved
	_, err := f.svc.EditApplication(ctx, admin, app.ID, leave.EditInput{Status: &approved})
	require.NoError(t, err)
	assert.Equal(t, "3", f.balance(t, empEmail, leave.EarnedLeave))
}

func TestEdit_InsufficientBalance_LeavesEverythingUnchanged(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()
	app := f.submit(t, "sick_leave", "2024-04-01")
	_, err := f.svc.ActOnApplication(ctx, admin, app.ID, leave.Decision{Target: leave.StatusApproved})
	require.NoError(t, err)

	_, err = f.svc.EditApplication(ctx, admin, app.ID, leave.EditInput{
		Dates: dateList("2024-04-01", "2024-04-02", "2024-04-03", "2024-04-04"),
	})
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)

	stored, err := f.svc.GetApplication(ctx, admin, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", stored.DaysCount.String())
	assert.Equal(t, "2", f.balance(t, empEmail, leave.SickLeave))
}

func TestEdit_RequiresAdmin(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	app := f.submit(t, "casual_leave", "2024-04-01")

	_, err := f.svc.EditApplication(context.Background(), manager, app.ID, leave.EditInput{Dates: dateList("2024-04-05")})
	assert.ErrorIs(t, err, leave.ErrNotAuthorized)
	assert.True(t, leave.IsForbidden(err))
}

func TestEdit_InvalidInput(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()
	app := f.submit(t, "casual_leave", "2024-04-01")

	bogus := "Sabbatical"
	_, err := f.svc.EditApplication(ctx, admin, app.ID, leave.EditInput{LeaveType: &bogus})
	assert.ErrorIs(t, err, leave.ErrInvalidLeaveType)

	_, err = f.svc.EditApplication(ctx, admin, app.ID, leave.EditInput{Dates: dateList()})
	assert.ErrorIs(t, err, leave.ErrInvalidApplication)

	unknown := leave.Status("archived")
	_, err = f.svc.EditApplication(ctx, admin, app.ID, leave.EditInput{Status: &unknown})
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

// =============================================================================
// DELETE
// =============================================================================

func TestDelete_ApprovedApplication_Refunds(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()
	app := f.submit(t, "casual_leave", "2024-04-01", "2024-04-02")
	_, err := f.svc.ActOnApplication(ctx, admin, app.ID, leave.Decision{Target: leave.StatusApproved})
	require.NoError(t, err)

	out, err := f.svc.DeleteApplication(ctx, admin, app.ID)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, "5", f.balance(t, empEmail, leave.CasualLeave))
	assert.Equal(t, "0", f.net(t, app.ID, leave.CasualLeave))

	_, err = f.svc.GetApplication(ctx, admin, app.ID)
	assert.True(t, leave.IsNotFound(err))
}

func TestDelete_EmployeeOwnPendingOnly(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()
	pending := f.submit(t, "casual_leave", "2024-04-01")
	approved := f.submit(t, "casual_leave", "2024-04-08")
	_, err := f.svc.ActOnApplication(ctx, admin, approved.ID, leave.Decision{Target: leave.StatusApproved})
	require.NoError(t, err)

	_, err = f.svc.DeleteApplication(ctx, employee, approved.ID)
	assert.ErrorIs(t, err, leave.ErrNotAuthorized)

	_, err = f.svc.DeleteApplication(ctx, manager, pending.ID)
	assert.ErrorIs(t, err, leave.ErrNotAuthorized)

	_, err = f.svc.DeleteApplication(ctx, employee, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, "4", f.balance(t, empEmail, leave.CasualLeave))
}

func TestDelete_PendingApplication_LeavesDeletionLog(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()
	app := f.submit(t, "casual_leave", "2024-04-01")

	_, err := f.svc.DeleteApplication(ctx, admin, app.ID)
	require.NoError(t, err)

	_, err = f.svc.GetApplication(ctx, admin, app.ID)
	require.True(t, leave.IsNotFound(err))

	logs, err := f.svc.DeletionLogs(ctx, empEmail, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	entry := logs[0]
	assert.Equal(t, app.ID, entry.ApplicationID)
	assert.Equal(t, adminEmail, entry.DeletedBy)
	assert.Equal(t, leave.RoleAdmin, entry.Role)
	assert.Equal(t, leave.StatusPending, entry.Before.Status)
	assert.Equal(t, leave.CasualLeave, entry.Before.LeaveType)
	assert.Equal(t, "1", entry.Before.DaysCount.String())
	assert.True(t, entry.Refunded.IsZero())
	assert.True(t, f.now.Equal(entry.DeletedAt))

	require.NotEmpty(t, entry.Approvals)
	last := entry.Approvals[len(entry.Approvals)-1]
	assert.Equal(t, leave.ActionDeleted, last.Action)
	require.NotNil(t, last.Before)
	assert.Equal(t, leave.StatusPending, last.Before.Status)
}

func TestDelete_ApprovedApplication_LogsRefund(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()
	app := f.submit(t, "casual_leave", "2024-04-01", "2024-04-02")
	_, err := f.svc.ActOnApplication(ctx, admin, app.ID, leave.Decision{Target: leave.StatusApproved})
	require.NoError(t, err)

	_, err = f.svc.DeleteApplication(ctx, admin, app.ID)
	require.NoError(t, err)

	logs, err := f.svc.DeletionLogs(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "2", logs[0].Refunded.String())
	assert.Equal(t, leave.StatusApproved, logs[0].Before.Status)

	actions := make([]leave.ApprovalAction, 0, len(logs[0].Approvals))
	for _, rec := range logs[0].Approvals {
		actions = append(actions, rec.Action)
	}
	assert.Equal(t, leave.ActionApproved, actions[len(actions)-2])
	assert.Equal(t, leave.ActionDeleted, actions[len(actions)-1])
}

func TestDelete_UnloggableDeletion_IsAborted(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	ctx := context.Background()
	app := f.submit(t, "casual_leave", "2024-04-01", "2024-04-02")
	_, err := f.svc.ActOnApplication(ctx, admin, app.ID, leave.Decision{Target: leave.StatusApproved})
	require.NoError(t, err)
	require.Equal(t, "3", f.balance(t, empEmail, leave.CasualLeave))

	svc := f.serviceWith(brokenDeletionLog{f.store}, f.journal)
	_, err = svc.DeleteApplication(ctx, admin, app.ID)
	assert.ErrorIs(t, err, errAuditDown)

	got, err := f.svc.GetApplication(ctx, admin, app.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
	assert.Equal(t, "3", f.balance(t, empEmail, leave.CasualLeave))
	assert.Equal(t, "-2", f.net(t, app.ID, leave.CasualLeave))
}

// =============================================================================
// QUERIES
// =============================================================================

func TestListApplications_Visibility(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.seedDefault()
	f.seed("meera@warp.dev", "other-manager@warp.dev", "2023-01-01", leave.Balance{leave.CasualLeave: days("5")})
	ctx := context.Background()

	f.submit(t, "casual_leave", "2024-04-01")
	_, err := f.svc.SubmitApplication(ctx, leave.Actor{Email: "meera@warp.dev", Role: leave.RoleEmployee}, leave.SubmitInput{
		EmployeeEmail: "meera@warp.dev", LeaveType: "casual_leave", Dates: dateList("2024-04-01"),
	})
	require.NoError(t, err)

	all, err := f.svc.ListApplications(ctx, admin, leave.ApplicationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.svc.ListApplications(ctx, employee, leave.ApplicationFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, empEmail, mine[0].EmployeeEmail)

	team, err := f.svc.ListApplications(ctx, manager, leave.ApplicationFilter{})
	require.NoError(t, err)
	require.Len(t, team, 1)
	assert.Equal(t, empEmail, team[0].EmployeeEmail)

	theirs, err := f.svc.ListApplications(ctx, admin, leave.ApplicationFilter{EmployeeEmail: "meera@warp.dev"})
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	_, err = f.svc.GetApplication(ctx, manager, theirs[0].ID)
	assert.ErrorIs(t, err, leave.ErrNotAuthorized)
}
