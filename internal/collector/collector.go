// Package collector drives scrolling over a virtualized feed and merges every
// round's discoveries into the collection database until the database stops
// growing.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ibeckermayer/reelsort/internal/collection"
	"github.com/ibeckermayer/reelsort/internal/discover"
	"github.com/ibeckermayer/reelsort/internal/dom"
	"github.com/ibeckermayer/reelsort/internal/extract"
	"github.com/ibeckermayer/reelsort/internal/page"
)

// State is the collector's phase.
type State int32

const (
	Idle State = iota
	Collecting
	Converging
	Done
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Collecting:
		return "collecting"
	case Converging:
		return "converging"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Finished reports whether s is terminal.
func (s State) Finished() bool {
	return s == Done || s == Cancelled
}

// ErrRunning is returned by Start while a run is in progress.
var ErrRunning = errors.New("collection already running")

// Options tunes the scroll loop.
type Options struct {
	// ScrollFraction is the share of the viewport height scrolled per round.
	ScrollFraction float64
	SettleDelay    time.Duration
	// StableRounds is how many consecutive rounds without growth end the run.
	StableRounds int
	// Timeout caps the whole run.
	Timeout time.Duration
	// VisibleMargin extends the visible window by this many viewport heights
	// above and below.
	VisibleMargin float64
	// PollInterval is how often Wait checks for a finished run.
	PollInterval time.Duration
}

func (o *Options) defaults() {
	if o.ScrollFraction <= 0 {
		o.ScrollFraction = 0.8
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 800 * time.Millisecond
	}
	if o.StableRounds <= 0 {
		o.StableRounds = 5
	}
	if o.Timeout <= 0 {
		o.Timeout = 90 * time.Second
	}
	if o.VisibleMargin < 0 {
		o.VisibleMargin = 0
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
}

// ScanResult counts one discovery pass.
type ScanResult struct {
	Candidates int
	Skipped    int
	Dropped    int
	Upserted   int
	New        int
	Discover   discover.Stats
}

// Summary describes a finished run.
type Summary struct {
	State    State
	Rounds   int
	Items    int
	New      int
	TimedOut bool
	Elapsed  time.Duration
}

// Collector owns the scroll loop for one page session.
type Collector struct {
	page page.Page
	db   *collection.DB
	disc *discover.Discoverer
	ext  *extract.Extractor
	opts Options
	log  *slog.Logger

	state     atomic.Int32
	cancelled atomic.Bool

	mu        sync.Mutex
	cancel    context.CancelFunc
	rounds    int
	stable    int
	viewportH float64
	last      Summary
	running   bool
}

// New creates a Collector writing into db.
func New(p page.Page, db *collection.DB, d *discover.Discoverer, e *extract.Extractor, opts Options, logger *slog.Logger) *Collector {
	opts.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		page: p,
		db:   db,
		disc: d,
		ext:  e,
		opts: opts,
		log:  logger.With("component", "collector"),
	}
}

// State returns the current phase.
func (c *Collector) State() State {
	return State(c.state.Load())
}

func (c *Collector) setState(s State) {
	if prev := State(c.state.Swap(int32(s))); prev != s {
		c.log.Debug("state", "from", prev, "to", s)
	}
}

// Progress returns the rounds run and the current stable streak.
func (c *Collector) Progress() (rounds, stable int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rounds, c.stable
}

// Last returns the summary of the most recent finished run.
func (c *Collector) Last() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Scan runs discovery, extraction and upsert once over the current snapshot.
// With visibleOnly set, candidates outside the visible window are skipped.
// Per-item failures never abort the pass.
func (c *Collector) Scan(ctx context.Context, visibleOnly bool) (ScanResult, error) {
	var res ScanResult
	doc, err := c.page.Snapshot(ctx)
	if err != nil {
		return res, fmt.Errorf("snapshot: %w", err)
	}
	if doc.Viewport.Height > 0 {
		c.mu.Lock()
		c.viewportH = doc.Viewport.Height
		c.mu.Unlock()
	}
	nodes, st := c.disc.DiscoverStats(doc)
	res.Discover = st
	res.Candidates = len(nodes)
	if len(nodes) == 0 {
		c.log.Debug("no candidates", "anchors", st.Anchors, "url", doc.URL)
	}

	for _, n := range nodes {
		if visibleOnly && dom.HasAttr(n, dom.RectAttr) && !doc.Viewport.Visible(dom.RectOf(n), c.opts.VisibleMargin) {
			res.Skipped++
			continue
		}
		d := c.ext.Extract(n)
		// A swapped slot's own attributes still name the item the host put
		// there.
		if id := dom.MarkedItem(n); id != "" {
			d.ID = id
		}
		if d.ID == "" {
			res.Dropped++
			continue
		}
		it := collection.Item{
			ID:        d.ID,
			Permalink: d.Permalink,
			Author:    d.Author,
			TimeText:  d.TimeText,
			Views:     d.Views,
			Likes:     d.Likes,
			Comments:  d.Comments,
			Key:       dom.Key(n),
		}
		// A container showing our badge holds swapped content; its markup
		// is not original.
		if dom.Query(n, "["+dom.BadgeAttr+"]") == nil {
			it.Markup = dom.InnerHTML(n)
		}
		if c.db.Upsert(it) {
			res.New++
		}
		res.Upserted++
	}
	return res, nil
}

// Run scrolls and scans until the database size is unchanged for
// StableRounds consecutive rounds or Timeout elapses, then scrolls back to
// the top. Cancel stops it in place; partial results stay in the database.
func (c *Collector) Run(ctx context.Context) (Summary, error) {
	c.begin()
	return c.run(ctx)
}

func (c *Collector) begin() {
	c.cancelled.Store(false)
	c.mu.Lock()
	c.rounds, c.stable = 0, 0
	c.mu.Unlock()
	c.setState(Collecting)
}

func (c *Collector) run(ctx context.Context) (Summary, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	start := time.Now()
	before := c.db.Len()
	sum := Summary{}

	finish := func(s State) (Summary, error) {
		sum.State = s
		sum.Items = c.db.Len()
		sum.New = sum.Items - before
		sum.Elapsed = time.Since(start)
		c.mu.Lock()
		c.cancel = nil
		c.last = sum
		c.running = false
		c.mu.Unlock()
		// Last must be in place, and Start callable again, before Wait can
		// see a terminal state.
		c.setState(s)
		c.log.Info("collection finished", "state", s, "rounds", sum.Rounds, "items", sum.Items,
			"new", sum.New, "timed_out", sum.TimedOut, "elapsed", sum.Elapsed.Round(time.Millisecond))
		if s == Cancelled && ctx.Err() != nil {
			return sum, ctx.Err()
		}
		return sum, nil
	}

	if _, err := c.Scan(runCtx, true); err != nil {
		c.log.Warn("initial scan failed", "error", err)
	}
	size := c.db.Len()

	for {
		if c.cancelled.Load() || ctx.Err() != nil {
			return finish(Cancelled)
		}
		if runCtx.Err() != nil {
			sum.TimedOut = true
			break
		}

		step := c.scrollStep()
		if err := c.page.ScrollBy(runCtx, step); err != nil && runCtx.Err() == nil {
			c.log.Warn("scroll failed", "error", err)
		}
		if !c.sleep(runCtx, c.opts.SettleDelay) {
			continue
		}
		if c.cancelled.Load() {
			return finish(Cancelled)
		}

		res, err := c.Scan(runCtx, true)
		if err != nil {
			c.log.Warn("scan failed", "error", err)
		}
		sum.Rounds++

		c.mu.Lock()
		c.rounds = sum.Rounds
		if n := c.db.Len(); n == size {
			c.stable++
		} else {
			c.stable = 0
			size = n
		}
		stable := c.stable
		c.mu.Unlock()

		c.log.Debug("round", "round", sum.Rounds, "candidates", res.Candidates, "new", res.New,
			"items", size, "stable", stable)
		if stable > 0 {
			c.setState(Converging)
		} else {
			c.setState(Collecting)
		}
		if stable >= c.opts.StableRounds {
			break
		}
	}

	// The hard cap may have expired runCtx; returning to the top must still
	// happen because sorting works on the slots on screen.
	if err := c.page.ScrollTo(context.WithoutCancel(ctx), 0); err != nil {
		c.log.Warn("scroll to top failed", "error", err)
	}
	return finish(Done)
}

func (c *Collector) scrollStep() float64 {
	c.mu.Lock()
	height := c.viewportH
	c.mu.Unlock()
	if height <= 0 {
		height = 800
	}
	return height * c.opts.ScrollFraction
}

// sleep waits d or until ctx ends, reporting whether the full delay passed.
func (c *Collector) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Start runs Run in the background.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrRunning
	}
	c.running = true
	c.mu.Unlock()
	c.begin()

	go func() {
		if _, err := c.run(ctx); err != nil {
			c.log.Warn("background collection", "error", err)
		}
	}()
	return nil
}

// Running reports whether a background run is in progress.
func (c *Collector) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Wait polls until the collector reaches a terminal state, or is idle. The
// run's summary is then available from Last.
func (c *Collector) Wait(ctx context.Context) (State, error) {
	t := time.NewTicker(c.opts.PollInterval)
	defer t.Stop()
	for {
		s := c.State()
		if s.Finished() || (s == Idle && !c.Running()) {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-t.C:
		}
	}
}

// Cancel aborts a run in progress. Scheduled steps become no-ops on their
// next tick.
func (c *Collector) Cancel() {
	c.cancelled.Store(true)
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset returns the collector to Idle. It does not touch the database.
func (c *Collector) Reset() {
	c.Cancel()
	c.mu.Lock()
	c.rounds, c.stable = 0, 0
	c.last = Summary{}
	c.mu.Unlock()
	c.setState(Idle)
}
