package guard

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ibeckermayer/reelsort/internal/collection"
	"github.com/ibeckermayer/reelsort/internal/dom"
	"github.com/ibeckermayer/reelsort/internal/identity"
	"github.com/ibeckermayer/reelsort/internal/page/memory"
	"github.com/ibeckermayer/reelsort/internal/render"
	"github.com/ibeckermayer/reelsort/internal/sorting"
)

const feed = `<html><body><main>
<div data-rs-key="listA">
  <div data-rs-key="s1" style="transform: translateY(0px)"><a href="/reel/Item0001/"><span>10</span></a></div>
</div>
<div data-rs-key="listB">
  <div data-rs-key="s2" style="transform: translateY(500px)"><a href="/reel/Item0002/"><span>500</span></a></div>
  <div data-rs-key="s3" style="transform: translateY(1000px)"><a href="/reel/Item0003/"><span>50</span></a></div>
</div>
</main></body></html>`

type fixture struct {
	page  *memory.Page
	guard *Guard
	// want maps slot key to the item id swapped into it.
	want map[string]string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	p, err := memory.New(feed)
	if err != nil {
		t.Fatal(err)
	}
	var slots []sorting.Slot
	var items []collection.Item
	for i := 1; i <= 3; i++ {
		key := fmt.Sprintf("s%d", i)
		inner, _ := p.InnerHTML(key)
		slots = append(slots, sorting.Slot{Key: key, ID: fmt.Sprintf("Item%04d", i)})
		items = append(items, collection.Item{ID: fmt.Sprintf("Item%04d", i), Markup: inner})
	}
	// s1 <- Item0003, s2 <- Item0002, s3 <- Item0001.
	items[0], items[2] = items[2], items[0]

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := render.New(p, render.Options{}, nil)
	b, err := r.Swap(ctx, slots, items)
	if err != nil {
		t.Fatal(err)
	}
	g := New(p, r, Options{SettleDelay: 5 * time.Millisecond}, nil)
	if err := g.Start(ctx, b); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(g.Stop)
	return &fixture{
		page:  p,
		guard: g,
		want:  map[string]string{"s1": "Item0003", "s2": "Item0002", "s3": "Item0001"},
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (f *fixture) shows(key string) bool {
	inner, ok := f.page.InnerHTML(key)
	return ok && strings.Contains(inner, "/reel/"+f.want[key]+"/")
}

func TestRestoresRemovedSlotToParent(t *testing.T) {
	f := setup(t)
	if err := f.page.Remove("s2"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "s2 restored", func() bool { return f.shows("s2") })

	doc, err := f.page.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	n := doc.Node("s2")
	if dom.Key(n.Parent) != "listB" {
		t.Errorf("restored under %q, want listB", dom.Key(n.Parent))
	}
	if got := dom.Style(n, "transform"); got != "translateY(500px)" {
		t.Errorf("transform = %q, want the swapped offset", got)
	}
	if st := f.guard.Stats(); st.Restored != 1 || st.Failed != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRestoresIntoAlternateParent(t *testing.T) {
	f := setup(t)
	if err := f.page.Remove("listA"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "s1 restored", func() bool { return f.shows("s1") })

	doc, _ := f.page.Snapshot(context.Background())
	if got := dom.Key(doc.Node("s1").Parent); got != "listB" {
		t.Errorf("restored under %q, want listB", got)
	}
}

func TestUntracksWhenNoParentLeft(t *testing.T) {
	f := setup(t)
	if err := f.page.Remove("listA"); err != nil {
		t.Fatal(err)
	}
	if err := f.page.Remove("listB"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "all slots settled", func() bool {
		st := f.guard.Stats()
		return st.Restored+st.Failed >= 3
	})
	// With both containers gone s1 may briefly land in listB before it is
	// removed; whichever way it goes, nothing is left to protect.
	eventually(t, "tracking dropped", func() bool {
		return f.guard.Stats().Tracked == 0 || allGone(f)
	})
}

func allGone(f *fixture) bool {
	for k := range f.want {
		if ok, _ := f.page.Exists(context.Background(), k); ok {
			return false
		}
	}
	return true
}

func TestReappliesRevertedContent(t *testing.T) {
	f := setup(t)
	// The host re-renders s1 with what it believes belongs there.
	if err := f.page.ReplaceInner("s1", `<a href="/reel/Item0001/"><span>10</span></a>`); err != nil {
		t.Fatal(err)
	}
	eventually(t, "s1 reapplied", func() bool { return f.shows("s1") })
	if f.guard.Stats().Reapplied < 1 {
		t.Error("reapply not counted")
	}
}

func TestRestylesDriftedPosition(t *testing.T) {
	f := setup(t)
	if err := f.page.SetAttr("s3", "style", "transform: translateY(9999px)"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "s3 restyled", func() bool {
		doc, err := f.page.Snapshot(context.Background())
		return err == nil && dom.Style(doc.Node("s3"), "transform") == "translateY(1000px)"
	})
}

func TestStopDisconnects(t *testing.T) {
	f := setup(t)
	if f.page.Observers() != 1 {
		t.Fatalf("observers = %d, want 1", f.page.Observers())
	}
	f.guard.Stop()
	if f.page.Observers() != 0 || f.guard.Active() || len(f.guard.Tracked()) != 0 {
		t.Fatal("stop left state behind")
	}
	if err := f.page.Remove("s2"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if ok, _ := f.page.Exists(context.Background(), "s2"); ok {
		t.Error("stopped guard restored a slot")
	}
}

// swapReversed builds one slot per item, swaps them in reverse order and
// starts a guard. attrIDs gives the containers data-media-id attributes and
// no permalinks, so their ids come from the container itself.
func swapReversed(t *testing.T, n int, attrIDs bool, opts Options) (*memory.Page, *Guard, map[string]string) {
	t.Helper()
	var sb strings.Builder
	sb.WriteString(`<html><body><main data-rs-key="list">`)
	for i := 0; i < n; i++ {
		if attrIDs {
			fmt.Fprintf(&sb, `<div data-rs-key="s%d" data-media-id="%d"><p>caption %d</p></div>`, i, 9000+i, i)
		} else {
			fmt.Fprintf(&sb, `<div data-rs-key="s%d"><a href="/reel/Item%04d/"><span>%d</span></a></div>`, i, i, i)
		}
	}
	sb.WriteString(`</main></body></html>`)
	p, err := memory.New(sb.String())
	if err != nil {
		t.Fatal(err)
	}
	doc, err := p.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var slots []sorting.Slot
	var items []collection.Item
	original := make(map[string]string)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("s%d", i)
		inner, _ := p.InnerHTML(key)
		original[key] = inner
		id := identity.Resolve(doc.Node(key))
		slots = append(slots, sorting.Slot{Key: key, ID: id})
		items = append(items, collection.Item{ID: id, Markup: inner})
	}
	slices.Reverse(items)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := render.New(p, render.Options{}, nil)
	b, err := r.Swap(ctx, slots, items)
	if err != nil {
		t.Fatal(err)
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = 5 * time.Millisecond
	}
	g := New(p, r, opts, nil)
	if err := g.Start(ctx, b); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(g.Stop)
	return p, g, original
}

func TestReappliesBurstBeyondLimiter(t *testing.T) {
	const n = 12
	p, g, original := swapReversed(t, n, false, Options{ReapplyEvery: 10 * time.Millisecond, ReapplyBurst: 2})

	// The host re-renders every slot in one pass.
	for key, inner := range original {
		if err := p.ReplaceInner(key, inner); err != nil {
			t.Fatal(err)
		}
	}
	eventually(t, "every slot reapplied", func() bool {
		for i := 0; i < n; i++ {
			inner, _ := p.InnerHTML(fmt.Sprintf("s%d", i))
			if !strings.Contains(inner, fmt.Sprintf("/reel/Item%04d/", n-1-i)) {
				return false
			}
		}
		return true
	})
	eventually(t, "reapplies counted", func() bool { return g.Stats().Reapplied == n })
	time.Sleep(30 * time.Millisecond)
	if st := g.Stats(); st.Reapplied != n || st.Dropped != 0 || st.Tracked != n {
		t.Errorf("stats = %+v", st)
	}
}

func TestAttributeIdentifiedSlotsStayPut(t *testing.T) {
	p, g, original := swapReversed(t, 3, true, Options{})

	// The guard's own swap must not look like a revert.
	time.Sleep(50 * time.Millisecond)
	if st := g.Stats(); st.Reapplied != 0 || st.Dropped != 0 {
		t.Fatalf("swapped slots treated as reverted: %+v", st)
	}

	if err := p.ReplaceInner("s0", original["s0"]); err != nil {
		t.Fatal(err)
	}
	eventually(t, "s0 reapplied", func() bool {
		inner, _ := p.InnerHTML("s0")
		return strings.Contains(inner, "caption 2")
	})
	time.Sleep(50 * time.Millisecond)
	if st := g.Stats(); st.Reapplied != 1 || st.Tracked != 3 {
		t.Errorf("stats = %+v", st)
	}

	// A removed slot holding swapped content is restored too.
	if err := p.Remove("s1"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "s1 restored", func() bool {
		inner, ok := p.InnerHTML("s1")
		return ok && strings.Contains(inner, "caption 1")
	})
}
