package leave_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	genstore "github.com/warp/leave-engine/generic/store"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	empEmail     = "asha@warp.dev"
	managerEmail = "ravi@warp.dev"
	adminEmail   = "hr@warp.dev"
)

var (
	employee = leave.Actor{Email: empEmail, Role: leave.RoleEmployee}
	manager  = leave.Actor{Email: managerEmail, Role: leave.RoleManager}
	admin    = leave.Actor{Email: adminEmail, Role: leave.RoleAdmin}
)

type fixture struct {
	store    *memory.Store
	journal  *generic.DefaultJournal
	notifier *recordingNotifier
	svc      *leave.Service
	now      time.Time
}

// newFixture builds a service over in-memory stores whose clock is fixed at
// 09:00 UTC on today.
func newFixture(t *testing.T, today string) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{
		store:    memory.New(),
		journal:  generic.NewJournal(genstore.NewMemory()),
		notifier: &recordingNotifier{},
		now:      generic.MustParseDate(today).Time.Add(9 * time.Hour),
	}
	f.svc = leave.NewService(leave.Config{
		Employees:    f.store,
		Applications: f.store,
		Policies:     f.store,
		Audit:        f.store,
		Journal:      f.journal,
		Notifier:     f.notifier,
		Logger:       log,
		Clock:        func() time.Time { return f.now },
	})
	return f
}

// serviceWith is the fixture's service over a different audit store and
// journal.
func (f *fixture) serviceWith(audit leave.AuditStore, journal generic.Journal) *leave.Service {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return leave.NewService(leave.Config{
		Employees:    f.store,
		Applications: f.store,
		Policies:     f.store,
		Audit:        audit,
		Journal:      journal,
		Notifier:     f.notifier,
		Logger:       log,
		Clock:        func() time.Time { return f.now },
	})
}

func (f *fixture) seed(email, managerOf string, joining string, bal leave.Balance) {
	f.store.Put(leave.Employee{
		ID:           "id-" + email,
		Email:        email,
		Name:         email,
		ManagerEmail: managerOf,
		JoiningDate:  generic.MustParseDate(joining),
		Active:       true,
		LeaveBalance: bal,
	})
}

// seedDefault creates the standard employee with a comfortable balance.
func (f *fixture) seedDefault() {
	f.seed(empEmail, managerEmail, "2023-01-01", leave.Balance{
		leave.CasualLeave: days("5"),
		leave.SickLeave:   days("3"),
		leave.EarnedLeave: days("5"),
		leave.CompOff:     days("2"),
	})
}

func (f *fixture) balance(t *testing.T, email string, key leave.LeaveTypeKey) string {
	t.Helper()
	b, err := f.svc.Balance(context.Background(), email)
	require.NoError(t, err)
	return b.Get(key).String()
}

func (f *fixture) submit(t *testing.T, leaveType string, dates ...string) *leave.Application {
	t.Helper()
	out, err := f.svc.SubmitApplication(context.Background(), employee, leave.SubmitInput{
		EmployeeEmail: empEmail,
		LeaveType:     leaveType,
		Dates:         dateList(dates...),
	})
	require.NoError(t, err)
	return out.Application
}

func (f *fixture) net(t *testing.T, appID string, key leave.LeaveTypeKey) string {
	t.Helper()
	n, err := f.journal.NetByReference(context.Background(), appID, string(key))
	require.NoError(t, err)
	return n.String()
}

func (f *fixture) setPolicy(t *testing.T, mutate func(p *leave.Policy)) {
	t.Helper()
	p := leave.DefaultPolicy()
	p.ID = ""
	mutate(p)
	_, err := f.svc.ReplacePolicy(context.Background(), admin, *p)
	require.NoError(t, err)
}

func days(s string) generic.Days { return generic.MustParseDays(s) }

func date(s string) generic.Date { return generic.MustParseDate(s) }

func dateList(values ...string) []generic.Date {
	out := make([]generic.Date, 0, len(values))
	for _, v := range values {
		out = append(out, date(v))
	}
	return out
}

func setItem(p *leave.Policy, key leave.LeaveTypeKey, fn func(it *leave.PolicyItem)) {
	for i := range p.Items {
		if p.Items[i].Key == key {
			fn(&p.Items[i])
		}
	}
}

// =============================================================================
// NOTIFIER
// =============================================================================

type recordingNotifier struct {
	mu   sync.Mutex
	sent []leave.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n leave.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) kinds() []leave.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]leave.NotificationKind, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

var errMailDown = errors.New("smtp unavailable")

// =============================================================================
// AUDIT
// =============================================================================

var errAuditDown = errors.New("audit store unavailable")

// brokenDeletionLog refuses deletion logs and keeps every other log.
type brokenDeletionLog struct {
	*memory.Store
}

func (brokenDeletionLog) AppendDeletionLog(context.Context, leave.DeletionLogEntry) error {
	return errAuditDown
}

// brokenCreditLog refuses credit logs and keeps every other log.
type brokenCreditLog struct {
	*memory.Store
}

func (brokenCreditLog) AppendCreditLog(context.Context, leave.CreditLogEntry) error {
	return errAuditDown
}

// brokenJournal refuses every append.
type brokenJournal struct {
	*genstore.Memory
}

func (brokenJournal) Append(context.Context, generic.Transaction) error {
	return errAuditDown
}
