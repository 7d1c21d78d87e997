/*
Package factory provides JSON to Go leave policy conversion.

PURPOSE:
  Converts JSON policy documents into leave.Policy values and back. HR
  edits the policy as a JSON document (admin UI, PUT /api/policy); the
  stores keep the same document so there is a single wire format.

JSON SCHEMA:
  {
    "id": "2024-standard",
    "leave_types": [
      {
        "leave_type": "Casual Leave",
        "annual_quota": 6,
        "credit_type": "monthly",
        "monthly_credit": 0.5,
        "advance_days_required": 3,
        "clubbing_not_allowed_with": ["Sick Leave"]
      },
      {
        "leave_type": "Paid Leave",
        "annual_quota": 15,
        "credit_type": "annually"
      }
    ]
  }

DEFAULTS:
  - credit_type: "monthly" when monthly_credit > 0, else "annually"
  - key: derived from leave_type with leave.NormalizeKey
  - clubbing labels are normalized the same way

SEE ALSO:
  - leave/policy.go: Policy type definition and resolution
  - store/sqlite, store/mongo: Persist the document produced by ToJSON
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a policy.
type PolicyJSON struct {
	ID         string     `json:"id,omitempty"`
	LeaveTypes []ItemJSON `json:"leave_types"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// ItemJSON configures one leave type.
type ItemJSON struct {
	LeaveType              string        `json:"leave_type"`
	Key                    string        `json:"key,omitempty"`
	AnnualQuota            generic.Days  `json:"annual_quota"`
	CreditType             string        `json:"credit_type,omitempty"`
	MonthlyCredit          *generic.Days `json:"monthly_credit,omitempty"`
	AdvanceDaysRequired    int           `json:"advance_days_required,omitempty"`
	ClubbingNotAllowedWith []string      `json:"clubbing_not_allowed_with,omitempty"`
	YearStartBalance       *generic.Days `json:"year_start_balance,omitempty"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to Go structs.
type PolicyFactory struct{}

func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses and validates a JSON policy document.
func (f *PolicyFactory) ParsePolicy(data []byte) (*leave.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts PolicyJSON to leave.Policy.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (*leave.Policy, error) {
	p := &leave.Policy{ID: pj.ID}
	if pj.UpdatedAt != nil {
		p.UpdatedAt = *pj.UpdatedAt
	}
	for _, ij := range pj.LeaveTypes {
		item, err := f.ItemFromJSON(ij)
		if err != nil {
			return nil, err
		}
		p.Items = append(p.Items, item)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ItemFromJSON converts one leave type entry. It does not validate the
// item against its siblings; FromJSON does that.
func (f *PolicyFactory) ItemFromJSON(ij ItemJSON) (leave.PolicyItem, error) {
	key := leave.NormalizeKey(ij.Key)
	if key == "" {
		key = leave.NormalizeKey(ij.LeaveType)
	}
	if key == "" {
		return leave.PolicyItem{}, fmt.Errorf("%w: leave_type is required", leave.ErrInvalidLeaveType)
	}

	label := strings.TrimSpace(ij.LeaveType)
	if label == "" {
		label = key.Label()
	}

	item := leave.PolicyItem{
		LeaveType:           label,
		Key:                 key,
		AnnualQuota:         ij.AnnualQuota,
		CreditType:          parseCreditType(ij.CreditType, ij.MonthlyCredit),
		AdvanceDaysRequired: ij.AdvanceDaysRequired,
		YearStartBalance:    ij.YearStartBalance,
	}
	if ij.MonthlyCredit != nil {
		item.MonthlyCredit = *ij.MonthlyCredit
	}
	for _, other := range ij.ClubbingNotAllowedWith {
		if k := leave.NormalizeKey(other); k != "" {
			item.ClubbingNotAllowedWith = append(item.ClubbingNotAllowedWith, k)
		}
	}
	return item, nil
}

// ToJSON converts a Policy to PolicyJSON.
func (f *PolicyFactory) ToJSON(p *leave.Policy) PolicyJSON {
	pj := PolicyJSON{ID: p.ID, LeaveTypes: make([]ItemJSON, 0, len(p.Items))}
	if !p.UpdatedAt.IsZero() {
		t := p.UpdatedAt
		pj.UpdatedAt = &t
	}
	for _, it := range p.Items {
		pj.LeaveTypes = append(pj.LeaveTypes, f.ItemToJSON(it))
	}
	return pj
}

func (f *PolicyFactory) ItemToJSON(it leave.PolicyItem) ItemJSON {
	ij := ItemJSON{
		LeaveType:           it.LeaveType,
		Key:                 string(it.Key),
		AnnualQuota:         it.AnnualQuota,
		CreditType:          string(it.CreditType),
		AdvanceDaysRequired: it.AdvanceDaysRequired,
		YearStartBalance:    it.YearStartBalance,
	}
	if !it.MonthlyCredit.IsZero() {
		mc := it.MonthlyCredit
		ij.MonthlyCredit = &mc
	}
	for _, k := range it.ClubbingNotAllowedWith {
		ij.ClubbingNotAllowedWith = append(ij.ClubbingNotAllowedWith, string(k))
	}
	return ij
}

// MarshalPolicy renders the storage form of a policy.
func (f *PolicyFactory) MarshalPolicy(p *leave.Policy) ([]byte, error) {
	return json.Marshal(f.ToJSON(p))
}

// MarshalItem and UnmarshalItem store the policy snapshot of an application.
func (f *PolicyFactory) MarshalItem(it *leave.PolicyItem) ([]byte, error) {
	if it == nil {
		return nil, nil
	}
	return json.Marshal(f.ItemToJSON(*it))
}

func (f *PolicyFactory) UnmarshalItem(data []byte) (*leave.PolicyItem, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var ij ItemJSON
	if err := json.Unmarshal(data, &ij); err != nil {
		return nil, fmt.Errorf("failed to parse policy item JSON: %w", err)
	}
	it, err := f.ItemFromJSON(ij)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseCreditType(s string, monthly *generic.Days) leave.CreditType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly":
		return leave.CreditMonthly
	case "annually", "annual", "yearly":
		return leave.CreditAnnually
	case "":
		if monthly != nil && monthly.IsPositive() {
			return leave.CreditMonthly
		}
		return leave.CreditAnnually
	default:
		// Left as-is so Policy.Validate reports it.
		return leave.CreditType(s)
	}
}
