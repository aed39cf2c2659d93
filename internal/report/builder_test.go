package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ibeckermayer/reelsort/internal/collection"
	"github.com/ibeckermayer/reelsort/internal/sorting"
)

func TestBuild(t *testing.T) {
	b, err := New(2, 1000, nil)
	if err != nil {
		t.Fatal(err)
	}
	items := []collection.Item{
		{ID: "low", Views: 10, Permalink: "/reel/low/"},
		{ID: "top", Views: 12000, Likes: 900, Comments: 300, Permalink: "/reel/top/", Author: "a<b"},
		{ID: "mid", Views: 500},
	}
	r, err := b.Build(items, sorting.Views, "https://www.instagram.com/reels/")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(r.ItemIDs, ",") != "top,mid" {
		t.Errorf("ids = %v", r.ItemIDs)
	}
	for _, want := range []string{
		"Reels by Views",
		`href="https://www.instagram.com/reel/top/"`,
		"12,000",
		"a&lt;b",
		"1200.0%",
		"Included 2 of 3 reels",
	} {
		if !strings.Contains(r.HTMLBody, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if !strings.HasPrefix(r.PlainBody, "Reels by Views\n") || !strings.Contains(r.PlainBody, "1. top") {
		t.Errorf("plain body:\n%s", r.PlainBody)
	}

	if _, err := b.Build(nil, sorting.Views, ""); err == nil {
		t.Error("empty report built")
	}
}

func TestAbsolute(t *testing.T) {
	for in, want := range map[string]string{
		"":                       "",
		"/reel/x/":               "https://www.instagram.com/reel/x/",
		"reel/x/":                "https://www.instagram.com/reel/x/",
		"https://example.com/a/": "https://example.com/a/",
	} {
		if got := absolute(in); got != want {
			t.Errorf("absolute(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	r := &Report{HTMLBody: "<html></html>", CreatedAt: time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)}
	path, err := Save(r, dir)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "reelsort-2026-05-01T09-30-00.html"); path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
	raw, err := os.ReadFile(path)
	if err != nil || string(raw) != r.HTMLBody {
		t.Errorf("saved %q, %v", raw, err)
	}
}
