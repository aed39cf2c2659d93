package license

import (
	"context"
	"testing"
	"time"

	"github.com/ibeckermayer/reelsort/internal/scheduler"
	"github.com/ibeckermayer/reelsort/internal/store"
)

type memUsage struct {
	daily  store.DailyUsage
	events []string
}

func (m *memUsage) DailyUsage(context.Context) (store.DailyUsage, error) { return m.daily, nil }

func (m *memUsage) SetDailyUsage(_ context.Context, u store.DailyUsage) error {
	m.daily = u
	return nil
}

func (m *memUsage) RecordUsageEvent(_ context.Context, action string) error {
	m.events = append(m.events, action)
	return nil
}

func TestQuotaFreeUses(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	m := &memUsage{}
	q := NewQuota(m, false, 3, WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		ok, err := q.Permitted(ctx)
		if err != nil || !ok {
			t.Fatalf("use %d: permitted = %v, %v", i, ok, err)
		}
		if err := q.Record(ctx, "sort"); err != nil {
			t.Fatal(err)
		}
	}
	if ok, _ := q.Permitted(ctx); ok {
		t.Error("fourth use permitted")
	}
	if n, _ := q.Remaining(ctx); n != 0 {
		t.Errorf("remaining = %d", n)
	}
	if len(m.events) != 3 {
		t.Errorf("events = %v", m.events)
	}

	now = now.Add(24 * time.Hour)
	if ok, _ := q.Permitted(ctx); !ok {
		t.Error("quota did not roll over with the date")
	}
}

func TestQuotaPaid(t *testing.T) {
	ctx := context.Background()
	m := &memUsage{}
	q := NewQuota(m, true, 0)
	for i := 0; i < 10; i++ {
		if err := q.Record(ctx, "sort"); err != nil {
			t.Fatal(err)
		}
	}
	if ok, _ := q.Permitted(ctx); !ok {
		t.Error("paid user denied")
	}
	if m.daily.Count != 0 {
		t.Errorf("paid usage counted: %+v", m.daily)
	}
	if n, _ := q.Remaining(ctx); n != -1 {
		t.Errorf("remaining = %d, want -1", n)
	}
}

func TestQuotaResetJob(t *testing.T) {
	ctx := context.Background()
	m := &memUsage{}
	q := NewQuota(m, false, 1)
	if err := q.Record(ctx, "sort"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := q.Permitted(ctx); ok {
		t.Fatal("limit not reached")
	}

	s, err := scheduler.New("", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Schedule(s, "0 0 * * *"); err != nil {
		t.Fatal(err)
	}
	jobs := s.ListJobs()
	if len(jobs) != 1 || jobs[0].Name != ResetJobName {
		t.Fatalf("jobs = %+v", jobs)
	}
	if err := s.RunNow(ResetJobName, q.Reset); err != nil {
		t.Fatal(err)
	}
	if ok, _ := q.Permitted(ctx); !ok {
		t.Error("reset did not restore the quota")
	}
}
