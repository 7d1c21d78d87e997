package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// EMPLOYEES (leave.EmployeeStore)
// =============================================================================

func (s *Store) FindByEmail(ctx context.Context, email string) (*leave.Employee, error) {
	var doc employeeDoc
	err := s.employees.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find employee: %w", err)
	}
	return employeeFromDoc(doc), nil
}

func (s *Store) ListActive(ctx context.Context) ([]leave.Employee, error) {
	opts := options.Find().SetSort(bson.D{{Key: "email", Value: 1}})
	cursor, err := s.employees.Find(ctx, bson.M{"active": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []employeeDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode employees: %w", err)
	}
	out := make([]leave.Employee, 0, len(docs))
	for _, d := range docs {
		out = append(out, *employeeFromDoc(d))
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, emp leave.Employee) error {
	_, err := s.employees.InsertOne(ctx, employeeToDoc(emp, time.Now().UTC()))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", leave.ErrEmployeeExists, emp.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to create employee: %w", err)
	}
	return nil
}

func (s *Store) IncrementBalanceField(ctx context.Context, email string, key leave.LeaveTypeKey, delta generic.Days) (generic.Days, error) {
	field := balanceField(key)
	return s.modifyBalance(ctx, bson.M{"email": email}, email, key,
		bson.M{"$inc": bson.M{field: delta.Tenths()}})
}

// DebitBalanceField decrements only when the stored value covers days.
func (s *Store) DebitBalanceField(ctx context.Context, email string, key leave.LeaveTypeKey, days generic.Days) (generic.Days, error) {
	field := balanceField(key)
	need := days.Tenths()
	filter := bson.M{"email": email, field: bson.M{"$gte": need}}

	v, err := s.modifyBalance(ctx, filter, email, key, bson.M{"$inc": bson.M{field: -need}})
	if !errors.Is(err, errNoMatch) {
		return v, err
	}

	// Distinguish a missing employee from an uncovered debit.
	emp, ferr := s.FindByEmail(ctx, email)
	if ferr != nil {
		return generic.Days{}, ferr
	}
	if emp == nil {
		return generic.Days{}, fmt.Errorf("%w: %s", leave.ErrEmployeeNotFound, email)
	}
	current := emp.LeaveBalance.Get(key)
	if need == 0 {
		return current, nil
	}
	return current, generic.ErrInsufficientBalance
}

func (s *Store) SetBalance(ctx context.Context, email string, balance leave.Balance) error {
	return s.updateEmployee(ctx, email, bson.M{"$set": bson.M{"leave_balance": balanceToDoc(balance)}})
}

func (s *Store) SetBalanceFields(ctx context.Context, email string, fields leave.Balance) error {
	set := bson.M{}
	for k, v := range fields {
		set[balanceField(k)] = v.Tenths()
	}
	if len(set) == 0 {
		return nil
	}
	return s.updateEmployee(ctx, email, bson.M{"$set": set})
}

// ClaimCreditPeriod advances last_credit only when it is older than period.
func (s *Store) ClaimCreditPeriod(ctx context.Context, email string, period leave.CreditPeriod) (bool, error) {
	res, err := s.employees.UpdateOne(ctx,
		bson.M{"email": email, "last_credit": bson.M{"$lt": int(period)}},
		bson.M{"$set": bson.M{"last_credit": int(period)}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim credit period: %w", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	n, err := s.employees.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, fmt.Errorf("%w: %s", leave.ErrEmployeeNotFound, email)
	}
	return false, nil
}

// =============================================================================
// EMPLOYEE HELPERS
// =============================================================================

var errNoMatch = errors.New("no matching employee")

func balanceField(key leave.LeaveTypeKey) string {
	return "leave_balance." + string(key)
}

// modifyBalance applies update and returns the new value of key. A filter
// narrower than the email that matches nothing yields errNoMatch.
func (s *Store) modifyBalance(ctx context.Context, filter bson.M, email string, key leave.LeaveTypeKey, update bson.M) (generic.Days, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc employeeDoc
	err := s.employees.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if len(filter) > 1 {
			return generic.Days{}, errNoMatch
		}
		return generic.Days{}, fmt.Errorf("%w: %s", leave.ErrEmployeeNotFound, email)
	}
	if err != nil {
		return generic.Days{}, fmt.Errorf("failed to update balance: %w", err)
	}
	return generic.DaysFromTenths(doc.LeaveBalance[string(key)]), nil
}

func (s *Store) updateEmployee(ctx context.Context, email string, update bson.M) error {
	res, err := s.employees.UpdateOne(ctx, bson.M{"email": email}, update)
	if err != nil {
		return fmt.Errorf("failed to update employee: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", leave.ErrEmployeeNotFound, email)
	}
	return nil
}
