package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "reelsort.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPreferences(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	p, err := s.Preferences(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p != DefaultPreferences() {
		t.Errorf("unsaved preferences = %+v", p)
	}
	if err := s.SetPreferences(ctx, Preferences{DefaultSpeed: 1.5, FilterRange: "10k-100k"}); err != nil {
		t.Fatal(err)
	}
	p, _ = s.Preferences(ctx)
	if p.DefaultSpeed != 1.5 || p.FilterRange != "10k-100k" {
		t.Errorf("preferences = %+v", p)
	}
}

func TestRecentAccounts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		if err := s.AddRecentAccount(ctx, RecentAccount{Username: fmt.Sprintf("user%d", i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AddRecentAccount(ctx, RecentAccount{Username: "USER4"}); err != nil {
		t.Fatal(err)
	}
	got, err := s.RecentAccounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"USER4", "user6", "user5", "user3", "user2"}
	if len(got) != len(want) {
		t.Fatalf("got %d accounts, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Username != want[i] {
			t.Errorf("accounts[%d] = %s, want %s", i, got[i].Username, want[i])
		}
	}
}

func TestFollowerCache(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if _, ok, _ := s.FollowerCount(ctx, "someone"); ok {
		t.Error("empty cache reported a hit")
	}
	if err := s.CacheFollowerCount(ctx, "Someone", 12345); err != nil {
		t.Fatal(err)
	}
	n, ok, err := s.FollowerCount(ctx, "someone")
	if err != nil || !ok || n != 12345 {
		t.Errorf("followers = %d, %v, %v", n, ok, err)
	}
}

func TestUsageEvents(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Minute)
	for _, a := range []string{"sort:views:all", "sort:likes:seen"} {
		if err := s.RecordUsageEvent(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	events, err := s.UsageEventsSince(ctx, start)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Action != "sort:views:all" {
		t.Errorf("events = %+v", events)
	}
}

func TestStepOutputRoundTrip(t *testing.T) {
	dir := t.TempDir()
	old := cacheDir
	cacheDir = func() (string, error) { return dir, nil }
	t.Cleanup(func() { cacheDir = old })

	if _, err := LatestStepFile(StepPlan); !errors.Is(err, ErrNoOutput) {
		t.Errorf("empty step: err = %v, want ErrNoOutput", err)
	}
	type dump struct{ IDs []string }
	first, err := SaveStepOutput(StepCollection, dump{IDs: []string{"a"}})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	path, err := SaveStepOutput(StepCollection, dump{IDs: []string{"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	got, latest, err := LoadLatestStepOutput[dump](StepCollection)
	if err != nil {
		t.Fatal(err)
	}
	if latest != path || len(got.IDs) != 2 {
		t.Errorf("latest = %s (%v), want %s", latest, got.IDs, path)
	}

	oldKeep := KeepStepFiles
	KeepStepFiles = 2
	t.Cleanup(func() { KeepStepFiles = oldKeep })
	// Same millisecond writes get distinct names.
	a, _ := SaveTextOutput(StepCollection, "x", ".html")
	b, err := SaveTextOutput(StepCollection, "y", ".html")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("two writes share %s", a)
	}
	files, err := StepFiles(StepCollection)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("kept %d files, want 2: %v", len(files), files)
	}
	for _, f := range files {
		if f == first {
			t.Error("oldest output survived pruning")
		}
	}
}
