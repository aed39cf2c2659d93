// Package guard keeps swapped content in place while sorting is active.
//
// The host re-renders parts of the feed on its own schedule, which silently
// discards swapped content. The guard watches page mutations and, after a
// short settle delay, restores removed slots, resets position styles pulled
// away from their swapped value and re-applies content the host reverted.
// Failures are never raised: a slot that cannot be recovered is dropped from
// protection and counted.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ibeckermayer/reelsort/internal/dom"
	"github.com/ibeckermayer/reelsort/internal/mutation"
	"github.com/ibeckermayer/reelsort/internal/page"
	"github.com/ibeckermayer/reelsort/internal/render"
)

// PositionProps are the inline style properties that place a slot inside a
// virtualized list.
var PositionProps = []string{"transform", "translate", "top", "left"}

// Options tunes the guard.
type Options struct {
	SettleDelay time.Duration
	// ReapplyEvery and ReapplyBurst rate-limit writes back into the page.
	ReapplyEvery time.Duration
	ReapplyBurst int
	// MaxReapplies drops a slot the host keeps reverting.
	MaxReapplies int
}

func (o *Options) defaults() {
	if o.SettleDelay <= 0 {
		o.SettleDelay = 300 * time.Millisecond
	}
	if o.ReapplyEvery <= 0 {
		o.ReapplyEvery = 100 * time.Millisecond
	}
	if o.ReapplyBurst <= 0 {
		o.ReapplyBurst = 10
	}
	if o.MaxReapplies <= 0 {
		o.MaxReapplies = 20
	}
}

// Stats are the guard's counters.
type Stats struct {
	Active    bool  `json:"active"`
	Tracked   int   `json:"tracked"`
	Restored  int64 `json:"restored"`
	Failed    int64 `json:"failed"`
	Reapplied int64 `json:"reapplied"`
	Restyled  int64 `json:"restyled"`
	Dropped   int64 `json:"dropped"`
}

type tracked struct {
	entry     render.Entry
	parentKey string
	outer     string
	style     string
	reapplies int
}

// Guard protects one swap.
type Guard struct {
	page    page.Page
	render  *render.Renderer
	opts    Options
	log     *slog.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stop    func()
	entries map[string]*tracked
	order   []string
	pending map[string]bool
	timers  map[*time.Timer]struct{}
	active  bool

	restored  atomic.Int64
	failed    atomic.Int64
	reapplied atomic.Int64
	restyled  atomic.Int64
	dropped   atomic.Int64
}

var _ mutation.Listener = (*Guard)(nil)

// New creates an idle Guard.
func New(p page.Page, r *render.Renderer, opts Options, logger *slog.Logger) *Guard {
	opts.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		page:    p,
		render:  r,
		opts:    opts,
		log:     logger.With("component", "guard"),
		limiter: rate.NewLimiter(rate.Every(opts.ReapplyEvery), opts.ReapplyBurst),
		entries: make(map[string]*tracked),
		pending: make(map[string]bool),
		timers:  make(map[*time.Timer]struct{}),
	}
}

// Start tracks every slot of b and begins observing the page. A guard that
// is already running is stopped first.
func (g *Guard) Start(ctx context.Context, b *render.Backup) error {
	g.Stop()
	if b == nil || len(b.Entries) == 0 {
		return nil
	}
	doc, err := g.page.Snapshot(ctx)
	if err != nil {
		return err
	}

	gctx, cancel := context.WithCancel(ctx)
	g.mu.Lock()
	g.ctx, g.cancel = gctx, cancel
	for _, e := range b.Entries {
		n := doc.Node(e.SlotKey)
		if n == nil {
			continue
		}
		g.entries[e.SlotKey] = &tracked{
			entry:     e,
			parentKey: dom.Key(n.Parent),
			outer:     dom.OuterHTML(n),
			style:     dom.Attr(n, "style"),
		}
		g.order = append(g.order, e.SlotKey)
	}
	g.active = true
	tracking := len(g.entries)
	g.mu.Unlock()

	stop, err := g.page.Observe(gctx, func(recs []mutation.Record) {
		mutation.Dispatch(recs, g)
	})
	if err != nil {
		g.Stop()
		return err
	}
	g.mu.Lock()
	g.stop = stop
	g.mu.Unlock()
	g.log.Info("guarding", "slots", tracking, "backup", b.ID)
	return nil
}

// Stop disconnects the observer, cancels pending work and forgets every
// tracked slot. Counters are kept for diagnostics.
func (g *Guard) Stop() {
	g.mu.Lock()
	stop, cancel := g.stop, g.cancel
	for t := range g.timers {
		t.Stop()
	}
	clear(g.timers)
	clear(g.entries)
	clear(g.pending)
	g.order = nil
	g.stop, g.cancel = nil, nil
	wasActive := g.active
	g.active = false
	g.mu.Unlock()

	if stop != nil {
		stop()
	}
	if cancel != nil {
		cancel()
	}
	if wasActive {
		g.log.Debug("stopped")
	}
}

// Active reports whether the guard is observing.
func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Tracked returns the keys of the protected slots.
func (g *Guard) Tracked() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.entries))
	for _, k := range g.order {
		if _, ok := g.entries[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Stats returns the counters.
func (g *Guard) Stats() Stats {
	g.mu.Lock()
	active, tracking := g.active, len(g.entries)
	g.mu.Unlock()
	return Stats{
		Active:    active,
		Tracked:   tracking,
		Restored:  g.restored.Load(),
		Failed:    g.failed.Load(),
		Reapplied: g.reapplied.Load(),
		Restyled:  g.restyled.Load(),
		Dropped:   g.dropped.Load(),
	}
}

// Live counts tracked slots whose key is still in the document.
func (g *Guard) Live(ctx context.Context) (int, error) {
	doc, err := g.page.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	live := 0
	for _, k := range g.Tracked() {
		if doc.Node(k) != nil {
			live++
		}
	}
	return live, nil
}

// after runs fn once d has passed, unless the guard stops first.
func (g *Guard) after(d time.Duration, fn func(ctx context.Context)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active {
		return
	}
	ctx := g.ctx
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		g.mu.Lock()
		_, live := g.timers[t]
		delete(g.timers, t)
		g.mu.Unlock()
		if !live || ctx.Err() != nil {
			return
		}
		fn(ctx)
	})
	g.timers[t] = struct{}{}
}

func (g *Guard) get(key string) (tracked, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.entries[key]
	if !ok {
		return tracked{}, false
	}
	return *t, true
}

func (g *Guard) untrack(key, reason string) {
	g.mu.Lock()
	_, ok := g.entries[key]
	delete(g.entries, key)
	g.mu.Unlock()
	if ok {
		g.log.Debug("untracked", "slot", key, "reason", reason)
	}
}

// NodesRemoved implements mutation.Listener.
func (g *Guard) NodesRemoved(records []mutation.Record) {
	for _, key := range g.removedSlots(records) {
		g.after(g.opts.SettleDelay, func(ctx context.Context) { g.restore(ctx, key) })
	}
}

// removedSlots returns tracked slots that left the document with one of the
// records, either directly or inside a removed ancestor. The removed subtree
// must still resolve to the item swapped into the slot.
func (g *Guard) removedSlots(records []mutation.Record) []string {
	g.mu.Lock()
	keys := append([]string(nil), g.order...)
	entries := make(map[string]render.Entry, len(g.entries))
	for k, t := range g.entries {
		entries[k] = t.entry
	}
	g.mu.Unlock()

	var out []string
	seen := make(map[string]bool)
	for _, rec := range records {
		for _, k := range keys {
			e, ok := entries[k]
			if !ok || seen[k] {
				continue
			}
			if rec.Key != k && !strings.Contains(rec.HTML, dom.KeyAttr+`="`+k+`"`) {
				continue
			}
			if rec.HTML != "" && !subtreeHolds(rec.HTML, e) {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func subtreeHolds(markup string, e render.Entry) bool {
	root, err := dom.FragmentRoot(markup)
	if err != nil {
		return false
	}
	n := dom.Query(root, `[`+dom.KeyAttr+`="`+e.SlotKey+`"]`)
	return n != nil && render.Shows(n, e)
}

// restore re-inserts a removed slot, preferring its original parent and
// falling back to the parent of another tracked slot.
func (g *Guard) restore(ctx context.Context, key string) {
	t, ok := g.get(key)
	if !ok {
		return
	}
	if exists, err := g.page.Exists(ctx, key); err == nil && exists {
		return
	}

	parent := ""
	if ok, err := g.page.Exists(ctx, t.parentKey); err == nil && ok && t.parentKey != "" {
		parent = t.parentKey
	} else {
		parent = g.alternateParent(ctx, key)
	}
	if parent == "" {
		g.failed.Add(1)
		g.untrack(key, "no parent")
		return
	}

	if err := g.page.InsertHTML(ctx, parent, t.outer); err != nil {
		if ctx.Err() == nil {
			g.failed.Add(1)
			g.untrack(key, err.Error())
		}
		return
	}
	g.mu.Lock()
	if cur, ok := g.entries[key]; ok {
		cur.parentKey = parent
	}
	g.mu.Unlock()
	g.restored.Add(1)
	g.log.Debug("restored", "slot", key, "parent", parent)
}

// alternateParent looks for a live container holding another tracked slot.
func (g *Guard) alternateParent(ctx context.Context, exclude string) string {
	doc, err := g.page.Snapshot(ctx)
	if err != nil {
		return ""
	}
	for _, k := range g.Tracked() {
		if k == exclude {
			continue
		}
		if n := doc.Node(k); n != nil && n.Parent != nil {
			if pk := dom.Key(n.Parent); pk != "" {
				return pk
			}
		}
	}
	return ""
}

// StyleChanged implements mutation.Listener.
func (g *Guard) StyleChanged(rec mutation.Record) {
	t, ok := g.get(rec.Key)
	if !ok {
		return
	}
	var drift []string
	for _, prop := range PositionProps {
		if dom.StyleValue(rec.Value, prop) != dom.StyleValue(t.style, prop) {
			drift = append(drift, prop)
		}
	}
	if len(drift) == 0 {
		return
	}
	g.after(g.opts.SettleDelay, func(ctx context.Context) { g.restyle(ctx, rec.Key, drift) })
}

func (g *Guard) restyle(ctx context.Context, key string, props []string) {
	t, ok := g.get(key)
	if !ok {
		return
	}
	if wait := g.throttle(); wait > 0 {
		g.after(wait, func(ctx context.Context) { g.restyle(ctx, key, props) })
		return
	}
	if !g.charge(key) {
		return
	}
	for _, prop := range props {
		if err := g.page.SetStyle(ctx, key, prop, dom.StyleValue(t.style, prop)); err != nil {
			if errors.Is(err, page.ErrNoElement) {
				return
			}
			g.log.Debug("restyle failed", "slot", key, "error", err)
		}
	}
	g.restyled.Add(1)
}

// ChildrenChanged implements mutation.Listener.
func (g *Guard) ChildrenChanged(parentKeys []string) {
	for _, key := range parentKeys {
		g.scheduleVerify(key, g.opts.SettleDelay)
	}
}

// scheduleVerify queues one check of a tracked slot; a check already queued
// covers later changes.
func (g *Guard) scheduleVerify(key string, d time.Duration) {
	g.mu.Lock()
	_, tracked := g.entries[key]
	schedule := tracked && !g.pending[key]
	if schedule {
		g.pending[key] = true
	}
	g.mu.Unlock()
	if schedule {
		g.after(d, func(ctx context.Context) { g.verify(ctx, key) })
	}
}

// verify re-applies a slot whose content no longer shows its assigned item.
// When the limiter is saturated the check is queued again for when a write
// is admitted.
func (g *Guard) verify(ctx context.Context, key string) {
	g.mu.Lock()
	delete(g.pending, key)
	g.mu.Unlock()

	t, ok := g.get(key)
	if !ok {
		return
	}
	doc, err := g.page.Snapshot(ctx)
	if err != nil {
		return
	}
	n := doc.Node(key)
	if n == nil || render.Shows(n, t.entry) {
		return
	}
	if wait := g.throttle(); wait > 0 {
		g.scheduleVerify(key, wait)
		return
	}
	if !g.charge(key) {
		return
	}
	if err := g.render.Reapply(ctx, t.entry); err != nil {
		g.log.Debug("reapply failed", "slot", key, "error", err)
		return
	}
	g.reapplied.Add(1)
	g.log.Debug("reapplied", "slot", key, "item", t.entry.ItemID)
}

// throttle takes a write token from the limiter. It returns zero when the
// write may go ahead, or how long to wait before asking again.
func (g *Guard) throttle() time.Duration {
	r := g.limiter.Reserve()
	if !r.OK() {
		return g.opts.ReapplyEvery
	}
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return d
	}
	return 0
}

// charge counts one write against the slot's budget, dropping the slot once
// the host has reverted it too often.
func (g *Guard) charge(key string) bool {
	g.mu.Lock()
	t, ok := g.entries[key]
	if !ok {
		g.mu.Unlock()
		return false
	}
	t.reapplies++
	over := t.reapplies > g.opts.MaxReapplies
	g.mu.Unlock()

	if over {
		g.dropped.Add(1)
		g.untrack(key, "host keeps reverting")
		return false
	}
	return true
}
