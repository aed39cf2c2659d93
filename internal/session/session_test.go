package session

import (
	"testing"

	"github.com/ibeckermayer/reelsort/internal/render"
	"github.com/ibeckermayer/reelsort/internal/sorting"
)

func TestIsFeed(t *testing.T) {
	for in, want := range map[string]bool{
		"https://www.instagram.com/reels/":              true,
		"https://www.instagram.com/reels/Cabc123/":      true,
		"https://www.instagram.com/some.creator/reels/": true,
		"https://www.instagram.com/reel/Cabc123/":       false,
		"https://www.instagram.com/explore/":            false,
		"::bad":                                         false,
	} {
		if got := IsFeed(in); got != want {
			t.Errorf("IsFeed(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSortingLifecycle(t *testing.T) {
	s := New("https://www.instagram.com/reels/")
	if s.ID == "" || s.DB == nil || s.Sorting() {
		t.Fatalf("fresh session = %+v", s)
	}
	b := &render.Backup{ID: "b1"}
	s.Applied(&sorting.Plan{ID: "p1"}, b)
	if !s.Sorting() || s.Plan().ID != "p1" {
		t.Error("applied state not recorded")
	}
	if got := s.TakeBackup(); got != b {
		t.Errorf("backup = %v", got)
	}
	if s.Sorting() || s.Backup() != nil || s.Plan() != nil {
		t.Error("take left sorting state behind")
	}
}

func TestFeedRoot(t *testing.T) {
	for u, want := range map[string]string{
		"https://www.instagram.com/reels/":             "/reels",
		"https://www.instagram.com/reels/C1abcDEF/":    "/reels",
		"https://www.instagram.com/natgeo/reels/":      "/natgeo/reels",
		"https://www.instagram.com/natgeo/reels":       "/natgeo/reels",
		"https://www.instagram.com/natgeo/":            "",
		"https://www.instagram.com/reel/C1abcDEF/":     "",
		"https://www.instagram.com/explore/tags/reels": "",
		"%zz": "",
	} {
		if got := FeedRoot(u); got != want {
			t.Errorf("FeedRoot(%q) = %q, want %q", u, got, want)
		}
	}
}
