/*
accrual.go - Entitlement earned since joining

PURPOSE:
  Pure functions turning (joining date, reference date, monthly credit,
  cap) into an entitlement. No store access, no clock: the caller passes
  the reference date so results are reproducible.

MONTH COUNTING:
  A month is earned on the joining day-of-month. Joining 2024-01-15:
    2024-02-14 -> 0 months
    2024-02-15 -> 1 month
    2024-04-14 -> 2 months
  Reference dates before joining count as 0.

SEE ALSO:
  - policy.go: Chooses monthly vs annual crediting per leave type
*/
package leave

import "github.com/warp/leave-engine/generic"

// MonthsSinceJoining returns the number of completed months between joining
// and ref, never negative.
func MonthsSinceJoining(joining, ref generic.Date) int {
	months := (ref.Year()-joining.Year())*12 + int(ref.Month()) - int(joining.Month())
	if ref.Day() < joining.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// AccruedBalance is months*monthlyCredit rounded to one decimal, capped.
func AccruedBalance(joining generic.Date, monthlyCredit, cap generic.Days, ref generic.Date) generic.Days {
	accrued := monthlyCredit.MulInt(MonthsSinceJoining(joining, ref))
	return accrued.Min(cap)
}

// AnnualEntitlement is the full quota once joined, zero before.
func AnnualEntitlement(joining generic.Date, quota generic.Days, ref generic.Date) generic.Days {
	if ref.Before(joining) {
		return generic.Days{}
	}
	return quota
}
