// Package launch assembles a running controller from configuration: the
// database, the license quota and its reset job, and the page it drives.
package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/ibeckermayer/reelsort/internal/app"
	"github.com/ibeckermayer/reelsort/internal/auth"
	"github.com/ibeckermayer/reelsort/internal/config"
	"github.com/ibeckermayer/reelsort/internal/license"
	"github.com/ibeckermayer/reelsort/internal/page"
	"github.com/ibeckermayer/reelsort/internal/page/chrome"
	"github.com/ibeckermayer/reelsort/internal/scheduler"
	"github.com/ibeckermayer/reelsort/internal/store"
)

// DBName is the database file inside the cache directory.
const DBName = "reelsort.db"

// Options tune Open.
type Options struct {
	// Ungated skips the license quota, for offline replays.
	Ungated   bool
	DumpPlans bool
}

// Env is a wired controller and the resources it holds.
type Env struct {
	Config     *config.Config
	Store      *store.Store
	Scheduler  *scheduler.Scheduler
	Quota      *license.Quota
	Controller *app.Controller
}

// OpenStore opens the database in the cache directory.
func OpenStore() (*store.Store, error) {
	dir, err := config.CacheDir()
	if err != nil {
		return nil, err
	}
	st, err := store.New(filepath.Join(dir, DBName))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

// NewQuota builds the quota for cfg over st.
func NewQuota(cfg *config.Config, st *store.Store, logger *slog.Logger) *license.Quota {
	return license.NewQuota(st, cfg.License.Paid, cfg.License.FreeUsesPerDay, license.WithLogger(logger))
}

// Open wires a controller for p. Close releases everything.
func Open(cfg *config.Config, p page.Page, logger *slog.Logger, opts Options) (*Env, error) {
	if logger == nil {
		logger = slog.Default()
	}
	st, err := OpenStore()
	if err != nil {
		return nil, err
	}
	e := &Env{Config: cfg, Store: st}

	deps := app.Deps{
		Page:      p,
		Config:    cfg,
		Storage:   st,
		Logger:    logger,
		DumpPlans: opts.DumpPlans,
	}
	if !opts.Ungated {
		e.Scheduler, err = scheduler.New("", logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		e.Quota = NewQuota(cfg, st, logger)
		if err := e.Quota.Schedule(e.Scheduler, cfg.License.ResetSchedule); err != nil {
			st.Close()
			return nil, fmt.Errorf("schedule usage reset: %w", err)
		}
		e.Scheduler.Start()
		deps.Gate = e.Quota
	}
	e.Controller = app.New(deps)
	return e, nil
}

// Close stops the scheduler and closes the database.
func (e *Env) Close() error {
	if e.Scheduler != nil {
		<-e.Scheduler.Stop().Done()
	}
	return e.Store.Close()
}

// ErrNotLoggedIn is returned by Browser when no stored session exists and
// requireLogin is set.
var ErrNotLoggedIn = errors.New("not logged in; run `reelsort login` first")

// Browser opens the feed in Chrome with the stored session cookies.
func Browser(ctx context.Context, cfg *config.Config, logger *slog.Logger, requireLogin bool) (*chrome.Page, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	path, err := auth.DefaultCookieStorePath()
	if err != nil {
		return nil, nil, err
	}
	m := auth.NewManager(auth.NewCookieStore(path), cfg.Browser, logger)
	if !m.IsAuthenticated() {
		if requireLogin {
			return nil, nil, ErrNotLoggedIn
		}
		logger.Warn("no stored login; the feed may ask you to log in")
	}
	// Without a cookie file the tab starts logged out.
	cookies, _ := m.Cookies()
	return chrome.Open(ctx, cfg.Browser, cookies, logger)
}
