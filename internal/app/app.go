// Package app is the page-context controller. It owns the feed session and
// runs every user-facing operation through the collect, sort, swap and guard
// pipeline, ending each one with a confirmation shown in the page.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/reelsort/internal/collection"
	"github.com/ibeckermayer/reelsort/internal/collector"
	"github.com/ibeckermayer/reelsort/internal/config"
	"github.com/ibeckermayer/reelsort/internal/discover"
	"github.com/ibeckermayer/reelsort/internal/dom"
	"github.com/ibeckermayer/reelsort/internal/extract"
	"github.com/ibeckermayer/reelsort/internal/guard"
	"github.com/ibeckermayer/reelsort/internal/identity"
	"github.com/ibeckermayer/reelsort/internal/license"
	"github.com/ibeckermayer/reelsort/internal/metrics"
	"github.com/ibeckermayer/reelsort/internal/page"
	"github.com/ibeckermayer/reelsort/internal/render"
	"github.com/ibeckermayer/reelsort/internal/session"
	"github.com/ibeckermayer/reelsort/internal/sorting"
	"github.com/ibeckermayer/reelsort/internal/store"
)

var (
	// ErrUsageDenied is returned when the license gate refuses a sort.
	ErrUsageDenied = errors.New("daily free sorts used up")
	// ErrNotFeed is returned when the page is not a sortable feed.
	ErrNotFeed = errors.New("not on a reels feed")
	// ErrUnknownCommand is returned by HandleCommand.
	ErrUnknownCommand = errors.New("unknown command")
)

// NavigationInterval is how often WatchNavigation polls the page URL.
const NavigationInterval = 500 * time.Millisecond

// Storage is the persistent key-value collaborator.
type Storage interface {
	Preferences(ctx context.Context) (store.Preferences, error)
	SetPreferences(ctx context.Context, p store.Preferences) error
	FollowerCount(ctx context.Context, username string) (int64, bool, error)
	CacheFollowerCount(ctx context.Context, username string, n int64) error
	AddRecentAccount(ctx context.Context, a store.RecentAccount) error
}

// Deps are the controller's collaborators. Gate and Storage are optional.
type Deps struct {
	Page    page.Page
	Config  *config.Config
	Gate    license.Gate
	Storage Storage
	Logger  *slog.Logger
	// DumpPlans writes every applied plan to the step cache.
	DumpPlans bool
}

// Controller holds the application state for one page.
type Controller struct {
	page     page.Page
	gate     license.Gate
	storage  Storage
	log      *slog.Logger
	dump     bool
	renderer *render.Renderer

	// op serialises operations that read and write the page.
	op sync.Mutex

	mu       sync.RWMutex
	config   *config.Config
	disc     *discover.Discoverer
	ext      *extract.Extractor
	engine   *sorting.Engine
	base     context.Context
	sess     *session.Session
	lastURL  string
	lastSort time.Time
}

// snapshot holds fields that may be replaced by ReloadConfig.
type snapshot struct {
	config *config.Config
	disc   *discover.Discoverer
	ext    *extract.Extractor
	engine *sorting.Engine
}

// getSnapshot returns a point-in-time copy of the mutable fields.
func (c *Controller) getSnapshot() snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return snapshot{config: c.config, disc: c.disc, ext: c.ext, engine: c.engine}
}

// New creates a Controller. No session exists until the page is on a feed.
func New(d Deps) *Controller {
	cfg := d.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		page:     d.Page,
		gate:     d.Gate,
		storage:  d.Storage,
		log:      logger.With("component", "app"),
		dump:     d.DumpPlans,
		renderer: render.New(d.Page, render.Options{}, logger),
		base:     context.Background(),
	}
	c.apply(cfg)
	return c
}

func (c *Controller) apply(cfg *config.Config) {
	var rnd *rand.Rand
	if seed := cfg.Sort.RandomSeed; seed != 0 {
		rnd = rand.New(rand.NewPCG(seed, seed))
	}
	disc := discover.New(discover.Options{
		MaxAncestorDepth: cfg.Discover.MaxAncestorDepth,
		MinWidth:         cfg.Discover.MinWidth,
		MinHeight:        cfg.Discover.MinHeight,
	})
	ext := extract.New(extract.Options{
		ViewLeafIndices:    cfg.Extract.ViewLeafIndices,
		StructuralPatterns: cfg.Extract.StructuralPatterns,
	})
	engine := sorting.New(sorting.Options{
		Rand:         rnd,
		RowTolerance: cfg.Sort.RowTolerance,
		MinItems:     cfg.Sort.MinItems,
	})

	c.mu.Lock()
	c.config, c.disc, c.ext, c.engine = cfg, disc, ext, engine
	c.mu.Unlock()
}

// ReloadConfig swaps in a new configuration. The current session keeps its
// collector and guard until the next feed is entered.
func (c *Controller) ReloadConfig(cfg *config.Config) {
	c.apply(cfg)
	c.log.Info("configuration reloaded")
}

// Session returns the current session, or nil.
func (c *Controller) Session() *session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

// enter replaces the session with a fresh one on pageURL.
func (c *Controller) enter(pageURL string) *session.Session {
	s := c.getSnapshot()
	cfg := s.config

	sess := session.New(pageURL)
	logger := c.log.With("session", sess.ID)
	sess.Collector = collector.New(c.page, sess.DB, s.disc, s.ext, collector.Options{
		ScrollFraction: cfg.Collector.ScrollFraction,
		SettleDelay:    cfg.Collector.SettleDelay(),
		StableRounds:   cfg.Collector.StableRounds,
		Timeout:        cfg.Collector.Timeout(),
		VisibleMargin:  cfg.Collector.VisibleMargin,
	}, logger)
	sess.Guard = guard.New(c.page, c.renderer, guard.Options{
		SettleDelay:  cfg.Guard.SettleDelay(),
		ReapplyEvery: cfg.Guard.ReapplyInterval(),
		ReapplyBurst: cfg.Guard.ReapplyBurst,
		MaxReapplies: cfg.Guard.MaxReapplies,
	}, logger)

	c.mu.Lock()
	old := c.sess
	c.sess = sess
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}
	c.log.Info("entered feed", "url", pageURL, "session", sess.ID)
	return sess
}

// exit closes the session, if any.
func (c *Controller) exit() {
	c.mu.Lock()
	old := c.sess
	c.sess = nil
	c.mu.Unlock()
	if old != nil {
		old.Close()
		c.log.Info("left feed", "url", old.URL, "session", old.ID)
	}
}

// session returns the session for the page's current URL, creating it when
// the page moved to a different feed.
func (c *Controller) session(ctx context.Context) (*session.Session, error) {
	u, err := c.page.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("page url: %w", err)
	}
	root := session.FeedRoot(u)
	if root == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFeed, u)
	}
	if s := c.Session(); s != nil && s.Root() == root {
		return s, nil
	}
	return c.enter(u), nil
}

// notify shows msg in the page. Failures are logged only.
func (c *Controller) notify(ctx context.Context, msg string) {
	if err := c.page.Notify(context.WithoutCancel(ctx), msg); err != nil {
		c.log.Warn("notify failed", "error", err)
	}
}

// SortResult describes an applied sort.
type SortResult struct {
	Plan      *sorting.Plan
	Sorted    int
	Moved     int
	Items     int
	Followers int64
	Collected *collector.Summary
}

// Sort runs one menu variant: collect (by scrolling for the full scope, or a
// scan of the visible window), plan against the slots on screen, swap and
// guard. Any swap already applied is reverted first. The outcome is always
// reported to the user.
func (c *Controller) Sort(ctx context.Context, v Variant) (res *SortResult, err error) {
	c.op.Lock()
	defer c.op.Unlock()
	defer func() {
		c.notify(ctx, sortMessage(v, res, err))
		if err != nil {
			c.log.Warn("sort failed", "variant", v, "error", err)
		}
	}()

	s, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.permitted(ctx); err != nil {
		return nil, err
	}
	if err := c.unsort(ctx, s); err != nil {
		return nil, fmt.Errorf("restore previous sort: %w", err)
	}

	res = &SortResult{}
	if v.Scope == sorting.ScopeAll {
		sum, err := collect(ctx, s.Collector)
		if err != nil {
			return nil, fmt.Errorf("collect: %w", err)
		}
		res.Collected = &sum
	} else if _, err := s.Collector.Scan(ctx, true); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	snap := c.getSnapshot()
	doc, err := c.page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	slots := c.slots(doc, snap)
	plan, err := snap.engine.Plan(slots, s.DB.Values(), v.Key, v.Scope)
	if err != nil {
		return nil, err
	}

	res.Followers = c.followers(ctx, doc, s.URL, snap.config.Sort.Followers)
	r := render.New(c.page, render.Options{Followers: res.Followers}, c.log)
	b, err := r.Apply(ctx, plan)
	if err != nil {
		return nil, err
	}
	s.Applied(plan, b)

	c.mu.Lock()
	base := c.base
	c.lastSort = time.Now()
	c.mu.Unlock()
	if err := s.Guard.Start(base, b); err != nil {
		c.log.Warn("guard not started", "error", err)
	}

	c.record(ctx, v)
	if c.dump {
		if path, err := store.SaveStepOutput(store.StepPlan, plan); err != nil {
			c.log.Warn("failed to save plan", "error", err)
		} else {
			c.log.Debug("saved plan", "path", path)
		}
	}

	res.Plan = plan
	res.Sorted = len(plan.Assignments)
	res.Moved = plan.Moved()
	res.Items = s.DB.Len()
	c.log.Info("sorted", "variant", v, "slots", res.Sorted, "moved", res.Moved, "items", res.Items)
	return res, nil
}

func sortMessage(v Variant, res *SortResult, err error) string {
	var insufficient *sorting.InsufficientError
	switch {
	case err == nil:
		return fmt.Sprintf("Sorted %d reels %s.", res.Sorted, v.verb())
	case errors.As(err, &insufficient):
		return fmt.Sprintf("Not enough reels to sort (found %d, need at least %d). Scroll the feed and try again.",
			insufficient.Have, insufficient.Need)
	case errors.Is(err, ErrUsageDenied):
		return "You have used today's free sorts. They reset at midnight."
	case errors.Is(err, ErrNotFeed):
		return "Open the Reels feed or a profile's Reels tab to sort."
	case errors.Is(err, render.ErrSlotMismatch):
		return "The feed changed while sorting. Please try again."
	case errors.Is(err, context.Canceled):
		return "Sorting cancelled."
	}
	return fmt.Sprintf("Sorting failed: %v", err)
}

// slots lists the item containers currently in the visible window.
func (c *Controller) slots(doc *dom.Document, s snapshot) []sorting.Slot {
	margin := s.config.Collector.VisibleMargin
	nodes := lo.Filter(s.disc.Discover(doc), func(n *html.Node, _ int) bool {
		return !dom.HasAttr(n, dom.RectAttr) || doc.Viewport.Visible(dom.RectOf(n), margin)
	})
	return lo.FilterMap(nodes, func(n *html.Node, _ int) (sorting.Slot, bool) {
		id := identity.Resolve(n)
		return sorting.Slot{Key: dom.Key(n), ID: id, Rect: dom.RectOf(n)}, id != ""
	})
}

// followers returns the follower count used for reach badges on pageURL:
// parsed from the profile header when shown, else cached, else fallback.
func (c *Controller) followers(ctx context.Context, doc *dom.Document, pageURL string, fallback int64) int64 {
	user := metrics.Username(pageURL)
	if user == "" {
		return fallback
	}
	n := metrics.ParseFollowers(doc)
	if c.storage == nil {
		if n == 0 {
			return fallback
		}
		return n
	}
	if n > 0 {
		if err := c.storage.CacheFollowerCount(ctx, user, n); err != nil {
			c.log.Warn("follower cache write failed", "user", user, "error", err)
		}
	} else if cached, ok, err := c.storage.FollowerCount(ctx, user); err == nil && ok {
		n = cached
	}
	if err := c.storage.AddRecentAccount(ctx, store.RecentAccount{Username: user, Followers: n}); err != nil {
		c.log.Warn("recent account not saved", "user", user, "error", err)
	}
	if n == 0 {
		return fallback
	}
	return n
}

func (c *Controller) permitted(ctx context.Context) error {
	if c.gate == nil {
		return nil
	}
	ok, err := c.gate.Permitted(ctx)
	if err != nil {
		return fmt.Errorf("license check: %w", err)
	}
	if !ok {
		return ErrUsageDenied
	}
	return nil
}

func (c *Controller) record(ctx context.Context, v Variant) {
	if c.gate == nil {
		return
	}
	if err := c.gate.Record(context.WithoutCancel(ctx), v.Command()); err != nil {
		c.log.Warn("usage not recorded", "error", err)
	}
}

// unsort stops the guard and restores the original slot contents.
func (c *Controller) unsort(ctx context.Context, s *session.Session) error {
	s.Guard.Stop()
	return c.renderer.Restore(ctx, s.TakeBackup())
}

// Unsort reverts the applied swap, keeping the collected items.
func (c *Controller) Unsort(ctx context.Context) error {
	c.op.Lock()
	defer c.op.Unlock()
	s := c.Session()
	if s == nil || !s.Sorting() {
		c.notify(ctx, "Nothing to restore.")
		return nil
	}
	if err := c.unsort(ctx, s); err != nil {
		c.notify(ctx, fmt.Sprintf("Restoring the original order failed: %v", err))
		return err
	}
	c.notify(ctx, "Original order restored.")
	return nil
}

// Reset reverts the swap, stops collection and empties the database.
func (c *Controller) Reset(ctx context.Context) error {
	if s := c.Session(); s != nil {
		s.Collector.Cancel()
	}
	c.op.Lock()
	defer c.op.Unlock()
	s := c.Session()
	if s == nil {
		return nil
	}
	err := c.unsort(ctx, s)
	s.Collector.Reset()
	s.DB.Clear()
	c.log.Info("reset", "session", s.ID)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// CollectNow scans the whole document once without scrolling.
func (c *Controller) CollectNow(ctx context.Context) (collector.ScanResult, error) {
	c.op.Lock()
	defer c.op.Unlock()
	s, err := c.session(ctx)
	if err != nil {
		return collector.ScanResult{}, err
	}
	return s.Collector.Scan(ctx, false)
}

// FullCollect scrolls the feed until collection converges.
func (c *Controller) FullCollect(ctx context.Context) (collector.Summary, error) {
	c.op.Lock()
	defer c.op.Unlock()
	s, err := c.session(ctx)
	if err != nil {
		return collector.Summary{}, err
	}
	if err := c.unsort(ctx, s); err != nil {
		return collector.Summary{}, fmt.Errorf("restore previous sort: %w", err)
	}
	return collect(ctx, s.Collector)
}

// collect starts a background run and polls it to completion. A run that
// is cancelled from the menu or console still returns its partial summary.
func collect(ctx context.Context, col *collector.Collector) (collector.Summary, error) {
	if err := col.Start(ctx); err != nil {
		return collector.Summary{}, err
	}
	if _, err := col.Wait(ctx); err != nil {
		col.Cancel()
		return col.Last(), err
	}
	return col.Last(), nil
}

// CancelCollection aborts a running collection. It reports whether one was
// in progress.
func (c *Controller) CancelCollection() bool {
	s := c.Session()
	if s == nil {
		return false
	}
	st := s.Collector.State()
	s.Collector.Cancel()
	return st == collector.Collecting || st == collector.Converging
}

// Filter hides the item containers whose view count falls outside the named
// range. "all" shows everything again.
func (c *Controller) Filter(ctx context.Context, name string) (shown, hidden int, err error) {
	r, err := metrics.ParseRange(name)
	if err != nil {
		return 0, 0, err
	}
	c.op.Lock()
	defer c.op.Unlock()
	s, err := c.session(ctx)
	if err != nil {
		return 0, 0, err
	}
	snap := c.getSnapshot()
	doc, err := c.page.Snapshot(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("snapshot: %w", err)
	}

	for _, n := range snap.disc.Discover(doc) {
		views := snap.ext.Extract(n).Views
		if it, ok := s.DB.Get(identity.Resolve(n)); ok && it.Views > 0 {
			views = it.Views
		}
		hide := !r.All() && !r.Contains(views)
		isHidden := dom.Style(n, "display") == "none"
		switch {
		case hide && !isHidden:
			err = c.page.SetStyle(ctx, dom.Key(n), "display", "none")
		case !hide && isHidden:
			err = c.page.SetStyle(ctx, dom.Key(n), "display", "")
		}
		if err != nil {
			return shown, hidden, fmt.Errorf("filter %s: %w", dom.Key(n), err)
		}
		if hide {
			hidden++
		} else {
			shown++
		}
	}

	s.SetFilter(r.Name)
	if c.storage != nil {
		prefs, err := c.storage.Preferences(ctx)
		if err == nil {
			prefs.FilterRange = r.Name
			err = c.storage.SetPreferences(ctx, prefs)
		}
		if err != nil {
			c.log.Warn("filter preference not saved", "error", err)
		}
	}
	c.notify(ctx, fmt.Sprintf("Showing %d of %d reels (%s).", shown, shown+hidden, r.Name))
	return shown, hidden, nil
}

// CollectionDump is a saved copy of a session's collection.
type CollectionDump struct {
	URL     string            `json:"url"`
	SavedAt time.Time         `json:"saved_at"`
	Items   []collection.Item `json:"items"`
}

// Collection returns the current session's items, or an empty dump when no
// feed is open.
func (c *Controller) Collection() CollectionDump {
	d := CollectionDump{SavedAt: time.Now()}
	if s := c.Session(); s != nil {
		d.URL = s.URL
		d.Items = s.DB.Values()
	}
	return d
}

// DumpPaths are the step cache files written by Dump.
type DumpPaths struct {
	Snapshot   string
	Collection string
}

// Dump writes the live document (keys and layout included, so it can be
// replayed) and the collection to the step cache.
func (c *Controller) Dump(ctx context.Context) (DumpPaths, error) {
	c.op.Lock()
	defer c.op.Unlock()
	var paths DumpPaths
	doc, err := c.page.Snapshot(ctx)
	if err != nil {
		return paths, fmt.Errorf("snapshot: %w", err)
	}
	if paths.Snapshot, err = store.SaveTextOutput(store.StepSnapshot, dom.OuterHTML(doc.Root), ".html"); err != nil {
		return paths, fmt.Errorf("save snapshot: %w", err)
	}
	if d := c.Collection(); len(d.Items) > 0 {
		if paths.Collection, err = store.SaveStepOutput(store.StepCollection, d); err != nil {
			return paths, fmt.Errorf("save collection: %w", err)
		}
	}
	c.log.Info("dumped", "snapshot", paths.Snapshot, "collection", paths.Collection)
	return paths, nil
}

// Status is a point-in-time summary for the console.
type Status struct {
	URL       string            `json:"url"`
	Session   string            `json:"session,omitempty"`
	Feed      bool              `json:"feed"`
	Items     int               `json:"items"`
	Collector string            `json:"collector"`
	Rounds    int               `json:"rounds"`
	Stable    int               `json:"stable"`
	Last      collector.Summary `json:"last"`
	Sorting   bool              `json:"sorting"`
	PlanKey   sorting.Key       `json:"planKey,omitempty"`
	PlanScope sorting.Scope     `json:"planScope,omitempty"`
	Slots     int               `json:"slots"`
	Filter    string            `json:"filter,omitempty"`
	LastSort  time.Time         `json:"lastSort"`
	Guard     guard.Stats       `json:"guard"`
	Remaining int               `json:"remaining"`
}

// Status reports the session state without touching the page.
func (c *Controller) Status(ctx context.Context) Status {
	st := Status{Collector: collector.Idle.String(), Remaining: -1}
	if u, err := c.page.URL(ctx); err == nil {
		st.URL, st.Feed = u, session.IsFeed(u)
	}
	if q, ok := c.gate.(*license.Quota); ok {
		if n, err := q.Remaining(ctx); err == nil {
			st.Remaining = n
		}
	}
	c.mu.RLock()
	st.LastSort = c.lastSort
	c.mu.RUnlock()

	s := c.Session()
	if s == nil {
		return st
	}
	st.Session = s.ID
	st.Items = s.DB.Len()
	st.Collector = s.Collector.State().String()
	st.Rounds, st.Stable = s.Collector.Progress()
	st.Last = s.Collector.Last()
	st.Sorting = s.Sorting()
	if p := s.Plan(); p != nil {
		st.PlanKey, st.PlanScope, st.Slots = p.Key, p.Scope, len(p.Assignments)
	}
	st.Filter = s.Filter()
	st.Guard = s.Guard.Stats()
	return st
}

// Health are diagnostic counters comparing tracked state with the live page.
type Health struct {
	Tracked    int         `json:"tracked"`
	Live       int         `json:"live"`
	Observers  int         `json:"observers"`
	Candidates int         `json:"candidates"`
	Items      int         `json:"items"`
	Collector  string      `json:"collector"`
	Guard      guard.Stats `json:"guard"`
	Strategies []string    `json:"strategies"`
}

// Health snapshots the page and counts how much of the tracked state is
// still backed by live elements.
func (c *Controller) Health(ctx context.Context) (Health, error) {
	snap := c.getSnapshot()
	h := Health{Collector: collector.Idle.String(), Observers: -1, Strategies: snap.ext.Strategies()}
	if oc, ok := c.page.(page.ObserverCounter); ok {
		h.Observers = oc.Observers()
	}
	doc, err := c.page.Snapshot(ctx)
	if err != nil {
		return h, fmt.Errorf("snapshot: %w", err)
	}
	h.Candidates = len(snap.disc.Discover(doc))

	s := c.Session()
	if s == nil {
		return h, nil
	}
	h.Items = s.DB.Len()
	h.Collector = s.Collector.State().String()
	h.Guard = s.Guard.Stats()
	for _, k := range s.Guard.Tracked() {
		h.Tracked++
		if doc.Node(k) != nil {
			h.Live++
		}
	}
	return h, nil
}

// WatchNavigation polls the page URL and ties the session to the feed:
// leaving the feed closes it, entering another feed replaces it, and opening
// a single reel applies the preferred playback speed.
func (c *Controller) WatchNavigation(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = NavigationInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		u, err := c.page.URL(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Debug("url poll failed", "error", err)
		} else {
			c.navigated(ctx, u)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (c *Controller) navigated(ctx context.Context, u string) {
	c.mu.Lock()
	changed := u != c.lastURL
	c.lastURL = u
	c.mu.Unlock()
	if !changed {
		return
	}

	root := session.FeedRoot(u)
	cur := c.Session()
	switch {
	case root == "" && cur != nil:
		cur.Collector.Cancel()
		c.op.Lock()
		c.exit()
		c.op.Unlock()
	case root != "" && (cur == nil || cur.Root() != root):
		if cur != nil {
			cur.Collector.Cancel()
		}
		c.op.Lock()
		c.enter(u)
		c.op.Unlock()
	}

	if strings.Contains(u, "/reel/") {
		c.applySpeed(ctx)
	}
}

func (c *Controller) applySpeed(ctx context.Context) {
	pl, ok := c.page.(page.Player)
	if !ok || c.storage == nil {
		return
	}
	prefs, err := c.storage.Preferences(ctx)
	if err != nil || prefs.DefaultSpeed <= 0 || prefs.DefaultSpeed == 1 {
		return
	}
	if err := pl.SetPlaybackRate(ctx, prefs.DefaultSpeed); err != nil {
		c.log.Debug("playback rate not applied", "error", err)
	}
}

// MenuEntries lists the in-page menu: every sort variant, then the filter
// ranges, then restore.
func MenuEntries() []page.MenuEntry {
	entries := lo.Map(Variants(), func(v Variant, _ int) page.MenuEntry {
		return page.MenuEntry{Command: v.Command(), Label: v.Label()}
	})
	for _, r := range metrics.Ranges {
		entries = append(entries, page.MenuEntry{Command: "filter:" + r.Name, Label: "Views: " + r.Name})
	}
	return append(entries,
		page.MenuEntry{Command: "unsort", Label: "Restore original order"},
		page.MenuEntry{Command: "cancel", Label: "Stop collecting"},
	)
}

// HandleCommand runs one menu command.
func (c *Controller) HandleCommand(ctx context.Context, cmd string) error {
	cmd = strings.TrimSpace(cmd)
	c.log.Debug("command", "cmd", cmd)
	switch {
	case strings.HasPrefix(cmd, "sort:"):
		v, err := ParseVariant(cmd)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
		}
		_, err = c.Sort(ctx, v)
		return err
	case strings.HasPrefix(cmd, "filter:"):
		_, _, err := c.Filter(ctx, strings.TrimPrefix(cmd, "filter:"))
		return err
	case cmd == "unsort":
		return c.Unsort(ctx)
	case cmd == "reset":
		return c.Reset(ctx)
	case cmd == "cancel":
		if c.CancelCollection() {
			c.notify(ctx, "Collection stopped.")
		}
		return nil
	case cmd == "collect":
		_, err := c.CollectNow(ctx)
		return err
	case cmd == "full-collect":
		_, err := c.FullCollect(ctx)
		return err
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
}

// Run watches navigation and serves the in-page menu until ctx ends. Menu
// commands run concurrently so "cancel" can interrupt a collection.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.base = ctx
	c.mu.Unlock()

	var cmds <-chan string
	if m, ok := c.page.(page.Menu); ok {
		var err error
		if cmds, err = m.ShowMenu(ctx, MenuEntries()); err != nil {
			return fmt.Errorf("show menu: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.WatchNavigation(ctx, NavigationInterval) })
	if cmds != nil {
		g.Go(func() error {
			for cmd := range cmds {
				g.Go(func() error {
					if err := c.HandleCommand(ctx, cmd); err != nil {
						c.log.Warn("command failed", "cmd", cmd, "error", err)
					}
					return nil
				})
			}
			return nil
		})
	}

	err := g.Wait()
	c.exit()
	return err
}
