package extract

import (
	"testing"

	"golang.org/x/net/html"

	"github.com/ibeckermayer/reelsort/internal/dom"
)

func container(t *testing.T, markup string) *html.Node {
	t.Helper()
	root, err := dom.FragmentRoot(markup)
	if err != nil {
		t.Fatal(err)
	}
	return root.FirstChild
}

func TestExtractCounters(t *testing.T) {
	tests := []struct {
		name      string
		markup    string
		views     int64
		likes     int64
		comments  int64
		viewsFrom string
	}{
		{
			name: "grid tile",
			markup: `<div><a href="/reel/Tile0001/">
				<span><span>1.2만</span></span><span>340</span><span>12</span>
			</a></div>`,
			views: 12000, likes: 340, comments: 12, viewsFrom: "positional",
		},
		{
			name: "views in the last leaf",
			markup: `<div><a href="/reel/Tile0002/">
				<span>5</span><span>7</span><span>9</span><span>1</span><span>2.5M</span>
			</a></div>`,
			views: 2500000, likes: 7, comments: 9, viewsFrom: "positional",
		},
		{
			name: "regex fallback for likes and comments",
			markup: `<div><a href="/p/Post0003/"><span>8,100</span></a>
				<p>1,024 likes · 56 comments</p></div>`,
			views: 8100, likes: 1024, comments: 56, viewsFrom: "positional",
		},
		{
			name: "korean keyword before number",
			markup: `<div><a href="/p/Post0004/"><span>3만</span></a>
				<p>게시물 · 좋아요 1.5천 · 댓글 20</p></div>`,
			views: 30000, likes: 1500, comments: 20, viewsFrom: "positional",
		},
		{
			name:   "no numbers",
			markup: `<div><a href="/reel/Empty005/"><img src="x.jpg"></a></div>`,
		},
	}
	e := New(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Extract(container(t, tt.markup))
			if d.ID == "" {
				t.Fatal("expected an id")
			}
			if d.Views != tt.views || d.Likes != tt.likes || d.Comments != tt.comments {
				t.Errorf("got views=%d likes=%d comments=%d, want %d/%d/%d",
					d.Views, d.Likes, d.Comments, tt.views, tt.likes, tt.comments)
			}
			if d.ViewsFrom != tt.viewsFrom {
				t.Errorf("views from %q, want %q", d.ViewsFrom, tt.viewsFrom)
			}
		})
	}
}

func TestStrategyChainFallsThrough(t *testing.T) {
	// Positional indices point past the leaves of interest and the last two
	// leaves are zero, so max-value has to resolve it.
	c := container(t, `<div><a href="/reel/Chain001/">
		<span>0</span><span>0</span><span>77</span><span>0</span><span>0</span>
	</a></div>`)
	d := New(Options{ViewLeafIndices: []int{0, 1}}).Extract(c)
	if d.Views != 77 || d.ViewsFrom != "max-value" {
		t.Errorf("got %d from %q, want 77 from max-value", d.Views, d.ViewsFrom)
	}
}

func TestStructuralFallback(t *testing.T) {
	// The counter lives outside the permalink anchor, so only the structural
	// patterns over the whole container can see it.
	c := container(t, `<div><a href="/reel/Struct01/"><img src="x.jpg"></a>
		<div><span><span>4.4K</span></span></div></div>`)
	d := New(Options{}).Extract(c)
	if d.Views != 4400 || d.ViewsFrom != "structural" {
		t.Errorf("got %d from %q, want 4400 from structural", d.Views, d.ViewsFrom)
	}
}

func TestAuthorAndTime(t *testing.T) {
	c := container(t, `<article>
		<a href="/explore/">Explore</a>
		<a href="/reel/Meta0001/"><span>99</span></a>
		<a href="https://www.instagram.com/some.creator/">some.creator</a>
		<time>3 days ago</time>
	</article>`)
	d := New(Options{}).Extract(c)
	if d.Author != "some.creator" {
		t.Errorf("author = %q", d.Author)
	}
	if d.TimeText != "3 days ago" {
		t.Errorf("time = %q", d.TimeText)
	}
	if d.Permalink != "/reel/Meta0001/" {
		t.Errorf("permalink = %q", d.Permalink)
	}

	k := container(t, `<div><a href="/reel/Meta0002/">1</a><span>5시간 전</span></div>`)
	if got := New(Options{}).Extract(k).TimeText; got != "5시간 전" {
		t.Errorf("korean time = %q", got)
	}
}

func TestLeaves(t *testing.T) {
	root, _ := dom.FragmentRoot(`<a><span>12</span><span>views</span><span>this text is longer than twenty 1</span><b>3.4K</b></a>`)
	leaves := Leaves(root)
	if len(leaves) != 2 {
		t.Fatalf("got %d leaves, want 2", len(leaves))
	}
	if leaves[1].Value != 3400 || leaves[1].Depth != 3 {
		t.Errorf("leaf = %+v", leaves[1])
	}
}

func TestIsNav(t *testing.T) {
	for href, want := range map[string]bool{
		"":                                       true,
		"#top":                                   true,
		"https://www.instagram.com":              true,
		"https://www.instagram.com/explore/?x=1": true,
		"/reels/":                                true,
		"/accounts/edit#privacy":                 true,
		"https://www.instagram.com/some.creator/": false,
		"/some.creator/?hl=ko":                    false,
	} {
		if got := isNav(href); got != want {
			t.Errorf("isNav(%q) = %v, want %v", href, got, want)
		}
	}
	if got := hrefPath("https://www.instagram.com/some.creator/?hl=ko#c"); got != "/some.creator/" {
		t.Errorf("hrefPath = %q", got)
	}
}
