package dom

import (
	"strings"
	"testing"
)

const fixture = `<html><body>
<main data-rs-key="m">
  <div data-rs-key="a" data-rs-rect="0,0,300,400" style="transform: translateY(0px); height: 400px">
    <a href="/reel/abc/" data-rs-key="a1"><span>1.2K</span></a>
  </div>
  <div data-rs-key="b" data-rs-rect="0,400,300,400"><a href="/reel/def/">x</a></div>
</main>
</body></html>`

func TestDocumentIndexes(t *testing.T) {
	d, err := ParseString(fixture)
	if err != nil {
		t.Fatal(err)
	}

	a := d.Node("a")
	if a == nil {
		t.Fatal("Node(a) = nil")
	}
	if d.Node("missing") != nil {
		t.Error("Node(missing) should be nil")
	}
	if d.Order(a) >= d.Order(d.Node("b")) {
		t.Error("a should precede b in document order")
	}
	if got := RectOf(a); got != (Rect{0, 0, 300, 400}) {
		t.Errorf("RectOf(a) = %+v", got)
	}
	if got := RectOf(d.Node("m")); got != (Rect{}) {
		t.Errorf("RectOf(m) = %+v, want zero", got)
	}
	if got := Depth(a, d.Node("a1")); got != 1 {
		t.Errorf("Depth = %d, want 1", got)
	}
	if got := Depth(d.Node("b"), d.Node("a1")); got != -1 {
		t.Errorf("Depth outside subtree = %d, want -1", got)
	}
}

func TestQuery(t *testing.T) {
	d, err := ParseString(fixture)
	if err != nil {
		t.Fatal(err)
	}

	links := d.QueryAll(`a[href*="/reel/"]`)
	if len(links) != 2 {
		t.Fatalf("QueryAll = %d links, want 2", len(links))
	}
	if !Matches(d.Node("a"), `[style*="transform"]`) {
		t.Error("a should match the transform selector")
	}
	if got := QueryAll(d.Root, "div:contains(\"1.2K\")"); len(got) != 1 {
		t.Errorf(":contains matched %d nodes, want 1", len(got))
	}
	if Query(d.Root, "[[bad") != nil {
		t.Error("invalid selector should match nothing")
	}
}

func TestStyle(t *testing.T) {
	d, _ := ParseString(fixture)
	a := d.Node("a")

	if got := Style(a, "transform"); got != "translateY(0px)" {
		t.Errorf("Style(transform) = %q", got)
	}
	got := SetStyleProp(Attr(a, "style"), "transform", "translateY(400px)")
	if !strings.Contains(got, "transform: translateY(400px)") || !strings.Contains(got, "height: 400px") {
		t.Errorf("SetStyleProp = %q", got)
	}
	if got := SetStyleProp("display: none;", "display", ""); got != "" {
		t.Errorf("removing the only property = %q, want empty", got)
	}
}

func TestViewportVisible(t *testing.T) {
	v := Viewport{ScrollY: 1000, Height: 800}
	tests := []struct {
		r      Rect
		margin float64
		want   bool
	}{
		{Rect{Y: 1200, H: 100}, 0, true},
		{Rect{Y: 0, H: 100}, 0, false},
		{Rect{Y: 0, H: 100}, 1.5, true},
		{Rect{Y: 1800, H: 10}, 0, false},
	}
	for _, tt := range tests {
		if got := v.Visible(tt.r, tt.margin); got != tt.want {
			t.Errorf("Visible(%+v, %v) = %v, want %v", tt.r, tt.margin, got, tt.want)
		}
	}
}

func TestStripMarks(t *testing.T) {
	got, err := StripMarks(`<a data-rs-key="m1" data-rs-rect="0,0,1,1" href="/x"><span data-rs-key="m2">1</span></a>`)
	if err != nil {
		t.Fatal(err)
	}
	if want := `<a href="/x"><span>1</span></a>`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMarkItem(t *testing.T) {
	out, err := MarkItem(`<a href="/x">1</a> text <div data-rs-badge="1">#1</div>`, "Item01")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(out, `data-rs-item="Item01"`); got != 2 {
		t.Errorf("marked %d elements, want 2: %s", got, out)
	}
	slot, err := FragmentRoot(out)
	if err != nil {
		t.Fatal(err)
	}
	if got := MarkedItem(slot); got != "Item01" {
		t.Errorf("MarkedItem = %q", got)
	}
	stripped, err := StripMarks(out)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(stripped, ItemAttr) {
		t.Errorf("StripMarks kept the item mark: %s", stripped)
	}
	plain, _ := FragmentRoot(`<div data-rs-item="nested"><span>x</span></div>`)
	if got := MarkedItem(plain.FirstChild); got != "" {
		t.Errorf("MarkedItem read a grandchild: %q", got)
	}
}
