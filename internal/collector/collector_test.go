package collector

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ibeckermayer/reelsort/internal/collection"
	"github.com/ibeckermayer/reelsort/internal/discover"
	"github.com/ibeckermayer/reelsort/internal/extract"
	"github.com/ibeckermayer/reelsort/internal/page/memory"
)

const (
	cardHeight = 200.0
	viewportH  = 800.0
)

// virtualFeed renders only the cards near the viewport, the way the host
// recycles rows while scrolling.
func virtualFeed(total int) (string, memory.ScrollHook) {
	window := func(scrollY float64) string {
		var sb strings.Builder
		for i := 0; i < total; i++ {
			y := float64(i) * cardHeight
			if y+cardHeight < scrollY-viewportH/2 || y > scrollY+viewportH*1.5 {
				continue
			}
			fmt.Fprintf(&sb, `<div class="card" data-rs-rect="0,%g,300,%g"><a href="/reel/ITEM%04d/"><span>%d</span></a></div>`,
				y, cardHeight, i, (i+1)*10)
		}
		return sb.String()
	}
	markup := fmt.Sprintf(`<html><body><div data-rs-key="list" data-rs-rect="0,0,1000,%g">%s</div></body></html>`,
		float64(total)*cardHeight, window(0))
	hook := func(p *memory.Page, y float64) {
		p.ReplaceInner("list", window(y))
	}
	return markup, hook
}

func newCollector(t *testing.T, total int, opts Options) (*Collector, *memory.Page, *collection.DB) {
	t.Helper()
	markup, hook := virtualFeed(total)
	p, err := memory.New(markup, memory.WithViewport(1280, viewportH), memory.WithScrollHook(hook))
	if err != nil {
		t.Fatal(err)
	}
	db := collection.New()
	c := New(p, db, discover.New(discover.Options{}), extract.New(extract.Options{}), opts, nil)
	return c, p, db
}

func TestRunConverges(t *testing.T) {
	c, p, db := newCollector(t, 20, Options{SettleDelay: time.Millisecond, Timeout: 10 * time.Second})

	sum, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.State != Done || c.State() != Done {
		t.Fatalf("state = %v, want done", sum.State)
	}
	if sum.TimedOut {
		t.Error("run should converge before the timeout")
	}
	if db.Len() != 20 {
		t.Errorf("collected %d items, want 20", db.Len())
	}
	if _, stable := c.Progress(); stable != 5 {
		t.Errorf("stable rounds = %d, want 5", stable)
	}
	if p.ScrollY() != 0 {
		t.Errorf("scrollY = %v, want 0 after done", p.ScrollY())
	}
	it, ok := db.Get("ITEM0007")
	if !ok || it.Views != 80 || it.Markup == "" {
		t.Errorf("item = %+v", it)
	}
}

func TestRunTimesOut(t *testing.T) {
	c, p, _ := newCollector(t, 20, Options{
		SettleDelay:  5 * time.Millisecond,
		StableRounds: 1000,
		Timeout:      60 * time.Millisecond,
	})
	sum, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.State != Done || !sum.TimedOut {
		t.Errorf("summary = %+v, want timed out done", sum)
	}
	if p.ScrollY() != 0 {
		t.Errorf("scrollY = %v, want 0", p.ScrollY())
	}
}

func TestCancelKeepsPartialResults(t *testing.T) {
	c, p, db := newCollector(t, 200, Options{
		SettleDelay:  5 * time.Millisecond,
		StableRounds: 1000,
		Timeout:      10 * time.Second,
		PollInterval: time.Millisecond,
	})
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != ErrRunning {
		t.Errorf("second start: %v, want ErrRunning", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for rounds, _ := c.Progress(); rounds < 2; rounds, _ = c.Progress() {
		if time.Now().After(deadline) {
			t.Fatal("collector made no progress")
		}
		time.Sleep(time.Millisecond)
	}
	c.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := c.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state != Cancelled {
		t.Fatalf("state = %v, want cancelled", state)
	}
	if db.Len() == 0 {
		t.Error("partial results discarded")
	}
	if p.ScrollY() == 0 {
		t.Error("cancel should leave the viewport where it stopped")
	}
}

func TestScanSkipsBadgedMarkup(t *testing.T) {
	p, err := memory.New(`<html><body>
		<div data-rs-rect="0,0,300,300"><a href="/reel/Badged01/"><span>42</span></a><b data-rs-badge="1">#1</b></div>
		<div data-rs-rect="0,300,300,300"><a href="/reel/Plain001/"><span>7</span></a></div>
	</body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	db := collection.New()
	c := New(p, db, discover.New(discover.Options{}), extract.New(extract.Options{}), Options{}, nil)
	res, err := c.Scan(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Upserted != 2 || res.New != 2 {
		t.Fatalf("result = %+v", res)
	}
	if it, _ := db.Get("Badged01"); it.Markup != "" {
		t.Errorf("badged container markup captured: %q", it.Markup)
	}
	if it, _ := db.Get("Plain001"); it.Markup == "" || it.Key == "" {
		t.Errorf("plain item = %+v", it)
	}
}
