/*
store.go - Persistence contracts consumed by the leave engine

PURPOSE:
  The engine never talks to a database directly. It depends on these
  interfaces, implemented by store/memory, store/sqlite and store/mongo.

ATOMICITY REQUIREMENTS:
  IncrementBalanceField  single-field signed increment, rounded to 1 decimal
  DebitBalanceField      decrement only if the stored value covers it,
                         else generic.ErrInsufficientBalance
  UpdateFields           with ExpectStatus set, applies only if the stored
                         status still matches, else
                         generic.ErrConcurrentModification
  ClaimCreditPeriod      advances LastCredit only if it is older than the
                         given period; returns false when already claimed

NOT FOUND CONVENTION:
  Find* methods return (nil, nil) for a missing record. Mutations on a
  missing record return ErrEmployeeNotFound / ErrApplicationNotFound.
*/
package leave

import (
	"context"

	"github.com/warp/leave-engine/generic"
)

type EmployeeStore interface {
	FindByEmail(ctx context.Context, email string) (*Employee, error)
	ListActive(ctx context.Context) ([]Employee, error)
	Create(ctx context.Context, emp Employee) error

	IncrementBalanceField(ctx context.Context, email string, key LeaveTypeKey, delta generic.Days) (generic.Days, error)
	DebitBalanceField(ctx context.Context, email string, key LeaveTypeKey, days generic.Days) (generic.Days, error)

	// SetBalance replaces the whole balance; SetBalanceFields only the given keys.
	SetBalance(ctx context.Context, email string, balance Balance) error
	SetBalanceFields(ctx context.Context, email string, fields Balance) error

	ClaimCreditPeriod(ctx context.Context, email string, period CreditPeriod) (bool, error)
}

type ApplicationStore interface {
	FindByID(ctx context.Context, id string) (*Application, error)
	Insert(ctx context.Context, app Application) error
	UpdateFields(ctx context.Context, id string, upd ApplicationUpdate) error
	AppendApproval(ctx context.Context, id string, rec ApprovalRecord) error
	Delete(ctx context.Context, id string) error
	FindByQuery(ctx context.Context, filter ApplicationFilter) ([]Application, error)
}

type PolicyStore interface {
	// GetActivePolicy returns nil when no policy has been saved.
	GetActivePolicy(ctx context.Context) (*Policy, error)
	SavePolicy(ctx context.Context, p Policy) error
}

// AuditStore keeps the append-only credit, adjustment and deletion logs.
// An empty email lists entries for every employee.
type AuditStore interface {
	AppendCreditLog(ctx context.Context, entry CreditLogEntry) error
	ListCreditLogs(ctx context.Context, email string, limit int) ([]CreditLogEntry, error)
	AppendAdjustmentLog(ctx context.Context, entry AdjustmentLogEntry) error
	ListAdjustmentLogs(ctx context.Context, email string, limit int) ([]AdjustmentLogEntry, error)
	AppendDeletionLog(ctx context.Context, entry DeletionLogEntry) error
	ListDeletionLogs(ctx context.Context, email string, limit int) ([]DeletionLogEntry, error)
}
