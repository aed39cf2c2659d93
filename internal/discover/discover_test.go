package discover

import (
	"testing"

	"github.com/ibeckermayer/reelsort/internal/dom"
	"github.com/ibeckermayer/reelsort/internal/identity"
)

const feed = `<html><body>
<nav><a href="/explore/">Explore</a></nav>
<main data-rs-rect="0,0,1000,3000">
  <div class="card" data-rs-rect="0,0,300,500">
    <a href="/reel/AAAAA1/" data-rs-rect="0,0,300,500"><span>1.2K</span></a>
  </div>
  <div style="transform: translateY(600px)" data-rs-rect="0,600,300,500">
    <div class="card" data-rs-rect="0,600,300,500">
      <a href="https://www.instagram.com/reel/BBBBB2/"><img src="https://cdn/x/b.jpg"></a>
    </div>
  </div>
  <div style="transform: scale(1)" data-rs-rect="0,1150,10,10"><span>3 likes</span></div>
  <article id="art" data-rs-rect="0,1200,300,300"><span>12 views</span></article>
</main>
</body></html>`

func TestDiscover(t *testing.T) {
	doc, err := dom.ParseString(feed)
	if err != nil {
		t.Fatal(err)
	}
	nodes, st := New(Options{}).DiscoverStats(doc)

	var ids []string
	for _, n := range nodes {
		ids = append(ids, identity.Resolve(n))
	}
	want := []string{"AAAAA1", "BBBBB2", "attr:id=art"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
	if st.Anchors != 2 {
		t.Errorf("anchors = %d, want 2", st.Anchors)
	}
	if st.Filtered != 1 {
		t.Errorf("filtered = %d, want 1 (decorative node)", st.Filtered)
	}
	if st.Result != 3 {
		t.Errorf("result = %d, want 3", st.Result)
	}
}

func TestDiscoverKeepsInnermost(t *testing.T) {
	doc, err := dom.ParseString(feed)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range New(Options{}).Discover(doc) {
		if dom.Matches(n, `[style*="transform"]`) {
			t.Errorf("wrapper %s kept alongside its inner card", dom.OuterHTML(n)[:40])
		}
	}
}

func TestDiscoverSkipsMultiItemRows(t *testing.T) {
	doc, err := dom.ParseString(`<html><body>
		<article data-rs-rect="0,0,900,300">
			<a href="/reel/ROW0001/">a</a><a href="/reel/ROW0002/">b</a>
			<span>100 views</span>
		</article></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	if got := New(Options{}).Discover(doc); len(got) != 0 {
		t.Errorf("got %d candidates, want 0", len(got))
	}
}

func TestDiscoverWithoutLayout(t *testing.T) {
	// Saved snapshots may carry no rect attributes; size filtering is skipped.
	doc, err := dom.ParseString(`<html><body><div>
		<div><a href="/p/NoRect1/">x</a></div>
		<div><a href="/p/NoRect2/">y</a></div>
	</div></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	if got := New(Options{}).Discover(doc); len(got) != 2 {
		t.Errorf("got %d candidates, want 2", len(got))
	}
}

func TestDiscoverPrefersCardOverActionBar(t *testing.T) {
	doc, err := dom.ParseString(`<html><body><main data-rs-rect="0,0,1000,2000">
		<div class="card" data-rs-rect="0,0,400,600">
			<a href="/reel/CARD0001/"><video src="blob:x"></video></a>
			<div role="button" data-rs-rect="0,540,400,60">12,345 likes 67 comments</div>
		</div>
		<div class="card" data-rs-rect="0,600,400,600">
			<a href="/reel/CARD0002/"><video src="blob:y"></video></a>
			<div role="button" data-rs-rect="0,1140,400,60">9 likes 1 comment</div>
		</div>
		<div role="button" tabindex="0" data-rs-rect="0,1300,400,80"><span>3 likes</span><span role="button" data-rs-rect="0,1300,200,60">5 views</span></div>
	</main></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	nodes := New(Options{}).Discover(doc)
	var ids []string
	for _, n := range nodes {
		ids = append(ids, identity.Resolve(n))
	}
	if len(ids) != 3 {
		t.Fatalf("ids = %v, want two cards and one keyword container", ids)
	}
	if ids[0] != "CARD0001" || ids[1] != "CARD0002" {
		t.Errorf("ids = %v, want the permalink cards first", ids)
	}
	// Without any permalink the innermost keyword container is kept.
	if !dom.Matches(nodes[2], "span") {
		t.Errorf("kept %s, want the inner span", dom.OuterHTML(nodes[2]))
	}
}
