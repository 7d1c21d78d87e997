/*
scheduler.go - Monthly credit scheduler

PURPOSE:
  Runs the monthly leave credit job on the schedule given by an RFC 5545
  recurrence rule (default: the 1st of every month at 00:05 UTC).

DESIGN:
  - A background goroutine sleeps until the next occurrence of the rule
  - Each firing calls RunMonthlyCredit for the month of the firing time
  - The job itself is idempotent per employee and month, so a restart
    that fires twice in the same month credits nobody twice
  - RunNow triggers the same job by hand (admin endpoint)
  - Stop cancels the context of a scheduled run in progress, then waits
    for it; employees already credited stay credited

USAGE:
  scheduler, err := NewCreditScheduler(svc, rule, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()
  // manual run, bounded by the caller's context
  res, err := scheduler.RunNow(ctx)

SEE ALSO:
  - leave/credit.go: RunMonthlyCredit
  - handlers.go: RunCredits and GetCreditSchedule endpoints
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/teambition/rrule-go"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// CreditRunner is the part of leave.Service the scheduler drives.
type CreditRunner interface {
	RunMonthlyCredit(ctx context.Context, ref generic.Date) (*leave.CreditRunResult, error)
}

// CreditScheduler fires the monthly credit job.
type CreditScheduler struct {
	Runner CreditRunner
	Rule   string

	// RunTimeout bounds a single job run.
	RunTimeout time.Duration

	option rrule.ROption
	log    logrus.FieldLogger
	clock  func() time.Time

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// NewCreditScheduler parses rule and returns a stopped scheduler.
func NewCreditScheduler(runner CreditRunner, rule string, log logrus.FieldLogger) (*CreditScheduler, error) {
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, fmt.Errorf("parse credit rule %q: %w", rule, err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	cs := &CreditScheduler{
		Runner:     runner,
		Rule:       rule,
		RunTimeout: 10 * time.Minute,
		option:     *opt,
		log:        log.WithField("component", "credit-scheduler"),
		clock:      time.Now,
	}
	if _, err := cs.Next(cs.clock()); err != nil {
		return nil, err
	}
	return cs, nil
}

// Next returns the first occurrence of the rule strictly after t, or the
// zero time when the rule has no further occurrence.
func (cs *CreditScheduler) Next(t time.Time) (time.Time, error) {
	t = t.UTC()
	opt := cs.option
	// Anchor at the start of t's year so BY* parts expand from a known origin.
	opt.Dtstart = time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return time.Time{}, fmt.Errorf("build credit rule: %w", err)
	}
	return rr.After(t, false), nil
}

// Start launches the background loop. Calling it twice is a no-op.
func (cs *CreditScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.running {
		return
	}
	cs.running = true
	ctx, cancel := context.WithCancel(context.Background())
	cs.cancel = cancel
	cs.wg.Add(1)
	go cs.run(ctx)
	cs.log.WithField("rule", cs.Rule).Info("credit scheduler started")
}

// Stop ends the loop, cancels a scheduled run in progress and waits for it
// to return.
func (cs *CreditScheduler) Stop() {
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		return
	}
	cs.running = false
	cs.cancel()
	cs.mu.Unlock()

	cs.wg.Wait()
	cs.log.Info("credit scheduler stopped")
}

func (cs *CreditScheduler) run(ctx context.Context) {
	defer cs.wg.Done()
	for ctx.Err() == nil {
		next, err := cs.Next(cs.clock())
		if err != nil || next.IsZero() {
			cs.log.WithError(err).Warn("credit rule has no further occurrence")
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := cs.RunAt(ctx, next); err != nil {
				cs.log.WithError(err).Error("scheduled credit run failed")
			}
		}
	}
}

// RunNow runs the job for the current month.
func (cs *CreditScheduler) RunNow(ctx context.Context) (*leave.CreditRunResult, error) {
	return cs.RunAt(ctx, cs.clock())
}

// RunAt runs the job for the month containing at, for at most RunTimeout.
func (cs *CreditScheduler) RunAt(ctx context.Context, at time.Time) (*leave.CreditRunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, cs.RunTimeout)
	defer cancel()

	res, err := cs.Runner.RunMonthlyCredit(ctx, generic.DateOf(at.UTC()))
	if err != nil {
		return nil, err
	}

	cs.mu.Lock()
	cs.lastRun = cs.clock()
	cs.mu.Unlock()

	cs.log.WithFields(logrus.Fields{
		"period":    int(res.Period),
		"processed": res.Processed,
		"credited":  len(res.Credited),
		"skipped":   len(res.Skipped),
		"errors":    len(res.Errors),
	}).Info("monthly credit run finished")
	return res, nil
}

// LastRun returns when the job last completed, zero if never.
func (cs *CreditScheduler) LastRun() time.Time {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.lastRun
}

// NextRunTime returns the next scheduled firing from now.
func (cs *CreditScheduler) NextRunTime() time.Time {
	next, err := cs.Next(cs.clock())
	if err != nil {
		return time.Time{}
	}
	return next
}
