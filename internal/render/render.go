// Package render writes a sort plan into the page by swapping slot contents.
//
// Slots keep their position and identity in the host's virtualized list;
// only their children are replaced with the original markup of the item
// assigned to them, plus a rank badge.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/ibeckermayer/reelsort/internal/collection"
	"github.com/ibeckermayer/reelsort/internal/dom"
	"github.com/ibeckermayer/reelsort/internal/metrics"
	"github.com/ibeckermayer/reelsort/internal/numparse"
	"github.com/ibeckermayer/reelsort/internal/page"
	"github.com/ibeckermayer/reelsort/internal/sorting"
)

// ErrSlotMismatch is returned when slots and items cannot be paired 1:1.
var ErrSlotMismatch = errors.New("slot and item counts differ")

// Entry records one swapped slot.
type Entry struct {
	SlotKey string `json:"slotKey"`
	ItemID  string `json:"itemId"`
	Rank    int    `json:"rank"`
	// Original is the slot's inner HTML before the swap.
	Original string `json:"-"`
	// Assigned is the inner HTML written by the swap.
	Assigned string `json:"-"`
}

// Backup holds what is needed to undo or re-apply a swap.
type Backup struct {
	ID        string    `json:"id"`
	PlanID    string    `json:"planId"`
	Entries   []Entry   `json:"entries"`
	CreatedAt time.Time `json:"createdAt"`
}

// BadgeFunc renders the overlay appended to a swapped slot.
type BadgeFunc func(rank int, it collection.Item) string

// Options configures a Renderer.
type Options struct {
	Badge BadgeFunc
	// Followers is the creator's follower count used for badge
	// classification. DefaultFollowers when 0.
	Followers int64
}

// Renderer applies and reverts swaps.
type Renderer struct {
	page  page.Page
	badge BadgeFunc
	log   *slog.Logger
}

// New creates a Renderer.
func New(p page.Page, opts Options, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{page: p, badge: opts.Badge, log: logger.With("component", "render")}
	if r.badge == nil {
		r.badge = ReachBadge(opts.Followers)
	}
	return r
}

// ReachBadge labels each slot with its rank, view count and reach class.
func ReachBadge(followers int64) BadgeFunc {
	return func(rank int, it collection.Item) string {
		reach := metrics.ReachRate(it.Views, followers)
		class := metrics.Classify(reach)
		return fmt.Sprintf(
			`<div %s="%d" class="rs-badge rs-%s" style="position:absolute;top:6px;left:6px;z-index:9999;padding:2px 6px;border-radius:10px;background:rgba(0,0,0,.75);color:#fff;font:600 12px sans-serif;pointer-events:none">#%d %s %s %s</div>`,
			dom.BadgeAttr, rank, class, rank, class.Emoji(),
			html.EscapeString(numparse.Abbreviate(it.Views)), html.EscapeString(metrics.FormatRate(reach)),
		)
	}
}

// Compose returns the markup a slot shows for an assignment. Its top-level
// elements carry dom.ItemAttr so the slot can be checked later.
func (r *Renderer) Compose(rank int, it collection.Item) (string, error) {
	inner, err := dom.StripMarks(it.Markup)
	if err != nil {
		return "", fmt.Errorf("item %s: %w", it.ID, err)
	}
	marked, err := dom.MarkItem(inner+r.badge(rank, it), it.ID)
	if err != nil {
		return "", fmt.Errorf("item %s: %w", it.ID, err)
	}
	return marked, nil
}

// Shows reports whether slot still displays the item swapped in by e. The
// slot's own attributes are not consulted: they belong to whatever the host
// rendered there first.
func Shows(slot *html.Node, e Entry) bool {
	return dom.MarkedItem(slot) == e.ItemID
}

// Apply swaps every assignment of p into the page.
func (r *Renderer) Apply(ctx context.Context, p *sorting.Plan) (*Backup, error) {
	slots := make([]sorting.Slot, len(p.Assignments))
	items := make([]collection.Item, len(p.Assignments))
	for i, a := range p.Assignments {
		slots[i], items[i] = a.Slot, a.Item
	}
	b, err := r.Swap(ctx, slots, items)
	if b != nil {
		b.PlanID = p.ID
	}
	return b, err
}

// Swap writes items[i] into slots[i]. Nothing is mutated unless every slot
// can be paired with an item and is still in the document. A failure part
// way through reverts the slots already written.
func (r *Renderer) Swap(ctx context.Context, slots []sorting.Slot, items []collection.Item) (*Backup, error) {
	if len(slots) != len(items) {
		return nil, fmt.Errorf("%w: %d slots, %d items", ErrSlotMismatch, len(slots), len(items))
	}
	doc, err := r.page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	b := &Backup{ID: uuid.NewString(), CreatedAt: time.Now()}
	for i, s := range slots {
		n := doc.Node(s.Key)
		if n == nil {
			return nil, fmt.Errorf("slot %s: %w", s.Key, page.ErrNoElement)
		}
		assigned, err := r.Compose(i+1, items[i])
		if err != nil {
			return nil, err
		}
		b.Entries = append(b.Entries, Entry{
			SlotKey:  s.Key,
			ItemID:   items[i].ID,
			Rank:     i + 1,
			Original: dom.InnerHTML(n),
			Assigned: assigned,
		})
	}

	for i, e := range b.Entries {
		if err := r.page.SetInnerHTML(ctx, e.SlotKey, e.Assigned); err != nil {
			r.log.Warn("swap failed, reverting", "slot", e.SlotKey, "error", err)
			partial := &Backup{ID: b.ID, Entries: b.Entries[:i]}
			if rerr := r.Restore(context.WithoutCancel(ctx), partial); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return nil, fmt.Errorf("swap slot %s: %w", e.SlotKey, err)
		}
	}
	r.log.Info("swapped", "slots", len(b.Entries), "backup", b.ID)
	return b, nil
}

// Reapply writes a slot's assigned markup again.
func (r *Renderer) Reapply(ctx context.Context, e Entry) error {
	return r.page.SetInnerHTML(ctx, e.SlotKey, e.Assigned)
}

// Restore puts every slot in b back to its original content. Slots the host
// has since removed are skipped.
func (r *Renderer) Restore(ctx context.Context, b *Backup) error {
	if b == nil {
		return nil
	}
	var errs []error
	for _, e := range b.Entries {
		err := r.page.SetInnerHTML(ctx, e.SlotKey, e.Original)
		if err != nil && !errors.Is(err, page.ErrNoElement) {
			errs = append(errs, fmt.Errorf("restore %s: %w", e.SlotKey, err))
		}
	}
	if len(errs) == 0 {
		r.log.Debug("restored", "slots", len(b.Entries), "backup", b.ID)
	}
	return errors.Join(errs...)
}
