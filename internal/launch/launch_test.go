package launch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ibeckermayer/reelsort/internal/app"
	"github.com/ibeckermayer/reelsort/internal/config"
	"github.com/ibeckermayer/reelsort/internal/license"
	"github.com/ibeckermayer/reelsort/internal/page/memory"
	"github.com/ibeckermayer/reelsort/internal/sorting"
)

const markup = `<html><body><main>
<div class="card" data-rs-rect="0,0,300,180"><a href="/reel/AAA/"><span>5</span></a></div>
<div class="card" data-rs-rect="0,200,300,180"><a href="/reel/BBB/"><span>900</span></a></div>
</main></body></html>`

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Collector.SettleDelayMS = 1
	cfg.Guard.SettleDelayMS = 5
	cfg.License.FreeUsesPerDay = 1
	return cfg
}

func TestOpenGatesSorts(t *testing.T) {
	t.Setenv(config.CacheDirEnv, t.TempDir())
	p, err := memory.New(markup)
	if err != nil {
		t.Fatal(err)
	}
	e, err := Open(testConfig(), p, nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if len(e.Scheduler.ListJobs()) != 1 || e.Scheduler.ListJobs()[0].Name != license.ResetJobName {
		t.Errorf("jobs = %+v", e.Scheduler.ListJobs())
	}

	ctx := context.Background()
	v := app.Variant{Key: sorting.Views, Scope: sorting.ScopeSeen}
	if _, err := e.Controller.Sort(ctx, v); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Controller.Sort(ctx, v); !errors.Is(err, app.ErrUsageDenied) {
		t.Errorf("second sort err = %v, want ErrUsageDenied", err)
	}
	events, err := e.Store.UsageEventsSince(ctx, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || !strings.HasPrefix(events[0].Action, "sort:views") {
		t.Errorf("events = %+v", events)
	}
}

func TestOpenUngated(t *testing.T) {
	t.Setenv(config.CacheDirEnv, t.TempDir())
	p, err := memory.New(markup)
	if err != nil {
		t.Fatal(err)
	}
	e, err := Open(testConfig(), p, nil, Options{Ungated: true})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if e.Quota != nil || e.Scheduler != nil {
		t.Fatal("ungated env has a quota")
	}
	v := app.Variant{Key: sorting.Views, Scope: sorting.ScopeSeen}
	for i := 0; i < 3; i++ {
		if _, err := e.Controller.Sort(context.Background(), v); err != nil {
			t.Fatalf("sort %d: %v", i, err)
		}
	}
}
