package leave

import (
	"fmt"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// TRANSITION RULES
// =============================================================================
//
//   pending ──manager──> manager_approved ──admin──> approved
//      │                       │
//      └──manager/admin──> rejected <──admin──┘
//
//   admin may also take pending straight to approved.
//   Entering manager_approved/approved from pending debits DaysCount once.
//   Leaving manager_approved/approved for rejected refunds it.

// Decision is an actor's request to move an application to Target.
type Decision struct {
	Target  Status
	Comment string
}

// authorizeDecision checks that actor may move app to target.
func authorizeDecision(actor Actor, app *Application, target Status) error {
	switch actor.Role {
	case RoleManager:
		if app.ManagerEmail != actor.Email {
			return fmt.Errorf("%w: %s is not the manager of application %s", ErrNotAuthorized, actor.Email, app.ID)
		}
		if app.Status != StatusPending {
			return fmt.Errorf("%w: application %s is %s", ErrNotPending, app.ID, app.Status)
		}
		if target != StatusManagerApproved && target != StatusRejected {
			return fmt.Errorf("%w: manager cannot move to %s", ErrInvalidTransition, target)
		}
	case RoleAdmin, RoleSystem:
		if app.Status != StatusPending && app.Status != StatusManagerApproved {
			return fmt.Errorf("%w: application %s is %s", ErrNotPending, app.ID, app.Status)
		}
		if target != StatusApproved && target != StatusRejected {
			return fmt.Errorf("%w: admin cannot move to %s", ErrInvalidTransition, target)
		}
	default:
		return fmt.Errorf("%w: role %q cannot act on applications", ErrNotAuthorized, actor.Role)
	}
	return nil
}

func actionFor(target Status) ApprovalAction {
	switch target {
	case StatusManagerApproved:
		return ActionManagerApproved
	case StatusApproved:
		return ActionApproved
	case StatusRejected:
		return ActionRejected
	}
	return ActionEdited
}

// ledgerEffect is the change an application's move from before to after
// requires. Debit and refund are expressed separately because a type
// change needs both. A same-type resize is one signed delta instead,
// positive when days come back.
type ledgerEffect struct {
	debitKey   LeaveTypeKey
	debitDays  generic.Days
	refundKey  LeaveTypeKey
	refundDays generic.Days
	deltaKey   LeaveTypeKey
	delta      generic.Days
}

// effectOf reconciles what before held against what after must hold.
//
//	was ∧ ¬will          refund old
//	was ∧ will, new type debit new, refund old
//	was ∧ will, same     one signed delta old-new
//	¬was ∧ will          debit new
//	¬was ∧ ¬will         nothing
func effectOf(before, after ApplicationSnapshot) ledgerEffect {
	was, will := before.Holds(), after.Holds()
	var e ledgerEffect
	switch {
	case was.IsZero() && will.IsZero():
	case will.IsZero():
		e.refundKey, e.refundDays = before.LeaveType, was
	case was.IsZero():
		e.debitKey, e.debitDays = after.LeaveType, will
	case before.LeaveType != after.LeaveType:
		e.debitKey, e.debitDays = after.LeaveType, will
		e.refundKey, e.refundDays = before.LeaveType, was
	default:
		e.deltaKey, e.delta = after.LeaveType, was.Sub(will)
	}
	return e
}

func (e ledgerEffect) isZero() bool {
	return e.debitDays.IsZero() && e.refundDays.IsZero() && e.delta.IsZero()
}
