/*
policy.go - Leave policy and entitlement resolution

PURPOSE:
  A Policy lists the leave types an organization offers and how each one
  is credited. The resolver maps (policy, joining date, reference date)
  to a full entitlement Balance. It is the only place that decides
  between monthly accrual and annual quota.

DEFAULT TABLE (no active policy):
  casual_leave  0.5/month  cap 6
  sick_leave    0.5/month  cap 6
  earned_leave  1/month    cap 12
  paid_leave    0
  unpaid_leave  0

COMP-OFF:
  comp_off is earned by working off-days, not by policy. The resolver
  never emits it, and every caller that overwrites a balance from a
  resolved entitlement carries the stored comp_off value forward.

SEE ALSO:
  - accrual.go: Month counting
  - credit.go: Monthly increments derived from the same policy
  - factory/policy.go: JSON -> Policy
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/leave-engine/generic"
)

type CreditType string

const (
	CreditMonthly  CreditType = "monthly"
	CreditAnnually CreditType = "annually"
)

// PolicyItem configures one leave type.
type PolicyItem struct {
	LeaveType              string // display label
	Key                    LeaveTypeKey
	AnnualQuota            generic.Days
	CreditType             CreditType
	MonthlyCredit          generic.Days // zero when absent
	AdvanceDaysRequired    int
	ClubbingNotAllowedWith []LeaveTypeKey
	YearStartBalance       *generic.Days // January reset value for monthly types
}

// Accrues reports whether the type is credited month by month.
func (i PolicyItem) Accrues() bool {
	return i.CreditType == CreditMonthly || i.MonthlyCredit.IsPositive()
}

// Cap is the accrual ceiling: the annual quota, else twelve monthly credits.
func (i PolicyItem) Cap() generic.Days {
	if i.AnnualQuota.IsPositive() {
		return i.AnnualQuota
	}
	return i.MonthlyCredit.MulInt(12)
}

func (i PolicyItem) ForbidsClubbingWith(k LeaveTypeKey) bool {
	for _, other := range i.ClubbingNotAllowedWith {
		if other == k {
			return true
		}
	}
	return false
}

type Policy struct {
	ID        string
	Items     []PolicyItem
	UpdatedAt time.Time
}

// Item finds the configuration for a key.
func (p *Policy) Item(k LeaveTypeKey) (PolicyItem, bool) {
	if p == nil {
		return PolicyItem{}, false
	}
	for _, it := range p.Items {
		if it.Key == k {
			return it, true
		}
	}
	return PolicyItem{}, false
}

// Accepts reports whether employees may apply for k under this policy.
// comp_off and unpaid_leave are always accepted.
func (p *Policy) Accepts(k LeaveTypeKey) bool {
	if k == CompOff || k == UnpaidLeave {
		return true
	}
	_, ok := p.Item(k)
	return ok
}

// Validate checks internal consistency.
func (p *Policy) Validate() error {
	seen := make(map[LeaveTypeKey]bool)
	for _, it := range p.Items {
		if it.Key == "" {
			return fmt.Errorf("%w: empty leave type", ErrInvalidLeaveType)
		}
		if it.Key == CompOff {
			return fmt.Errorf("%w: comp_off is not policy driven", ErrInvalidLeaveType)
		}
		if seen[it.Key] {
			return fmt.Errorf("%w: duplicate leave type %s", ErrInvalidLeaveType, it.Key)
		}
		seen[it.Key] = true
		if it.AnnualQuota.IsNegative() || it.MonthlyCredit.IsNegative() || it.AdvanceDaysRequired < 0 {
			return fmt.Errorf("%w: negative value for %s", ErrInvalidLeaveType, it.Key)
		}
		if it.CreditType != CreditMonthly && it.CreditType != CreditAnnually {
			return fmt.Errorf("%w: unknown credit type %q for %s", ErrInvalidLeaveType, it.CreditType, it.Key)
		}
	}
	return nil
}

// DefaultPolicy is used when no policy has been stored.
func DefaultPolicy() *Policy {
	return &Policy{
		ID: "default",
		Items: []PolicyItem{
			{LeaveType: "Casual Leave", Key: CasualLeave, AnnualQuota: generic.DaysFromInt(6), CreditType: CreditMonthly, MonthlyCredit: generic.NewDays(0.5)},
			{LeaveType: "Sick Leave", Key: SickLeave, AnnualQuota: generic.DaysFromInt(6), CreditType: CreditMonthly, MonthlyCredit: generic.NewDays(0.5)},
			{LeaveType: "Earned Leave", Key: EarnedLeave, AnnualQuota: generic.DaysFromInt(12), CreditType: CreditMonthly, MonthlyCredit: generic.DaysFromInt(1)},
			{LeaveType: "Paid Leave", Key: PaidLeave, CreditType: CreditAnnually},
			{LeaveType: "Unpaid Leave", Key: UnpaidLeave, CreditType: CreditAnnually},
		},
	}
}

// =============================================================================
// RESOLUTION
// =============================================================================

// ResolveBalance computes the full entitlement as of ref. A nil or empty
// policy falls back to DefaultPolicy. comp_off is never part of the result.
func ResolveBalance(policy *Policy, joining, ref generic.Date) Balance {
	if policy == nil || len(policy.Items) == 0 {
		policy = DefaultPolicy()
	}
	out := make(Balance, len(policy.Items))
	for _, it := range policy.Items {
		if it.Key == CompOff {
			continue
		}
		if it.Accrues() {
			out[it.Key] = AccruedBalance(joining, it.MonthlyCredit, it.Cap(), ref)
		} else {
			out[it.Key] = AnnualEntitlement(joining, it.AnnualQuota, ref)
		}
	}
	return out
}

// MergePreserving overlays resolved values onto a stored balance. Keys the
// policy does not know (comp_off first of all) keep their stored value.
func MergePreserving(stored, resolved Balance) Balance {
	out := stored.Clone()
	for k, v := range resolved {
		out[k] = v
	}
	if _, ok := out[CompOff]; !ok {
		out[CompOff] = generic.Days{}
	}
	return out
}

// PolicyResolver reads the active policy, substituting the default table.
type PolicyResolver struct {
	Store PolicyStore
}

func NewPolicyResolver(store PolicyStore) *PolicyResolver {
	return &PolicyResolver{Store: store}
}

// Stored returns the saved policy, or nil when none (or an empty one) exists.
func (r *PolicyResolver) Stored(ctx context.Context) (*Policy, error) {
	if r.Store == nil {
		return nil, nil
	}
	p, err := r.Store.GetActivePolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active policy: %w", err)
	}
	if p == nil || len(p.Items) == 0 {
		return nil, nil
	}
	return p, nil
}

func (r *PolicyResolver) Active(ctx context.Context) (*Policy, error) {
	p, err := r.Stored(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return DefaultPolicy(), nil
	}
	return p, nil
}

// Resolve is ResolveBalance against the active policy.
func (r *PolicyResolver) Resolve(ctx context.Context, joining, ref generic.Date) (Balance, error) {
	p, err := r.Active(ctx)
	if err != nil {
		return nil, err
	}
	return ResolveBalance(p, joining, ref), nil
}
