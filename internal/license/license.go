// Package license decides whether a gated action (a sort) may run and counts
// the actions that did.
package license

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ibeckermayer/reelsort/internal/scheduler"
	"github.com/ibeckermayer/reelsort/internal/store"
)

// Gate is what the controller consults around every sort.
type Gate interface {
	Permitted(ctx context.Context) (bool, error)
	Record(ctx context.Context, action string) error
}

// UsageStore persists the daily counter and the event log.
type UsageStore interface {
	DailyUsage(ctx context.Context) (store.DailyUsage, error)
	SetDailyUsage(ctx context.Context, u store.DailyUsage) error
	RecordUsageEvent(ctx context.Context, action string) error
}

const dateLayout = "2006-01-02"

// Quota allows paid users everything and free users a fixed number of
// actions per calendar day.
type Quota struct {
	store  UsageStore
	paid   bool
	perDay int
	now    func() time.Time
	logger *slog.Logger

	mu sync.Mutex
}

// Option configures a Quota.
type Option func(*Quota)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Quota) { q.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Quota) { q.logger = l }
}

// NewQuota builds a quota over s.
func NewQuota(s UsageStore, paid bool, perDay int, opts ...Option) *Quota {
	q := &Quota{
		store:  s,
		paid:   paid,
		perDay: perDay,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(q)
	}
	q.logger = q.logger.With("component", "license")
	return q
}

// Paid reports whether the quota is unlimited.
func (q *Quota) Paid() bool { return q.paid }

// current loads today's counter, treating a counter from another day as 0.
func (q *Quota) current(ctx context.Context) (store.DailyUsage, error) {
	u, err := q.store.DailyUsage(ctx)
	if err != nil {
		return store.DailyUsage{}, fmt.Errorf("load usage: %w", err)
	}
	today := q.now().Format(dateLayout)
	if u.Date != today {
		u = store.DailyUsage{Date: today}
	}
	return u, nil
}

// Permitted reports whether one more gated action may run today.
func (q *Quota) Permitted(ctx context.Context) (bool, error) {
	if q.paid {
		return true, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	u, err := q.current(ctx)
	if err != nil {
		return false, err
	}
	return u.Count < q.perDay, nil
}

// Remaining returns today's remaining free actions, or -1 when unlimited.
func (q *Quota) Remaining(ctx context.Context) (int, error) {
	if q.paid {
		return -1, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	u, err := q.current(ctx)
	if err != nil {
		return 0, err
	}
	return max(q.perDay-u.Count, 0), nil
}

// Record logs the action and, for free users, spends one use.
func (q *Quota) Record(ctx context.Context, action string) error {
	if err := q.store.RecordUsageEvent(ctx, action); err != nil {
		q.logger.Warn("usage event not recorded", "action", action, "err", err)
	}
	if q.paid {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	u, err := q.current(ctx)
	if err != nil {
		return err
	}
	u.Count++
	if err := q.store.SetDailyUsage(ctx, u); err != nil {
		return fmt.Errorf("save usage: %w", err)
	}
	q.logger.Debug("usage recorded", "action", action, "count", u.Count, "limit", q.perDay)
	return nil
}

// Reset zeroes today's counter.
func (q *Quota) Reset(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	u := store.DailyUsage{Date: q.now().Format(dateLayout)}
	if err := q.store.SetDailyUsage(ctx, u); err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	q.logger.Info("daily usage reset", "date", u.Date)
	return nil
}

// ResetJobName is the scheduler entry that clears the counter.
const ResetJobName = "license-reset"

// Schedule registers the daily reset on s. schedule is a cron spec or a
// wall-clock "HH:MM". The counter also rolls over by date on its own, so the
// job only matters for long-running processes that want the stored value to
// be current.
func (q *Quota) Schedule(s *scheduler.Scheduler, schedule string) error {
	if q.paid {
		return nil
	}
	if !strings.Contains(schedule, " ") && strings.Contains(schedule, ":") {
		return s.AddDailyJob(ResetJobName, schedule, q.Reset)
	}
	return s.AddJob(ResetJobName, schedule, q.Reset)
}
