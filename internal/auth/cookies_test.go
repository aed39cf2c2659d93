package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func TestCookieStore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cs := NewCookieStore(filepath.Join(t.TempDir(), "nested", "cookies.json"))
	cs.now = func() time.Time { return now }

	if cs.IsValid() {
		t.Fatal("empty store is valid")
	}
	if err := cs.Clear(); err != nil {
		t.Fatalf("clear missing file: %v", err)
	}

	exp := float64(now.Add(48 * time.Hour).Unix())
	cookies := []*network.Cookie{
		{Name: SessionCookie, Value: "abc", Domain: ".instagram.com", Expires: exp},
		{Name: CSRFCookie, Value: "tok", Domain: "www.instagram.com", Expires: exp + 3600},
		{Name: "NID", Value: "x", Domain: ".google.com", Expires: -1},
	}
	if err := cs.Save(cookies); err != nil {
		t.Fatal(err)
	}
	if !cs.IsValid() {
		t.Fatal("fresh session not valid")
	}

	ig, err := cs.InstagramCookies()
	if err != nil {
		t.Fatal(err)
	}
	if len(ig) != 2 {
		t.Errorf("instagram cookies = %d, want 2", len(ig))
	}

	stored, err := cs.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !stored.ExpiresAt.Equal(time.Unix(int64(exp), 0)) {
		t.Errorf("expires at %v", stored.ExpiresAt)
	}

	now = now.Add(72 * time.Hour)
	if cs.IsValid() {
		t.Error("expired session still valid")
	}

	if err := cs.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, err := cs.Load(); err == nil {
		t.Error("cookies survived clear")
	}
}

func TestMissingCSRFIsInvalid(t *testing.T) {
	cs := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))
	if err := cs.Save([]*network.Cookie{{Name: SessionCookie, Value: "abc", Domain: ".instagram.com"}}); err != nil {
		t.Fatal(err)
	}
	if cs.IsValid() {
		t.Error("session without csrf token is valid")
	}
}

func TestIsInstagramDomain(t *testing.T) {
	for domain, want := range map[string]bool{
		".instagram.com":     true,
		"instagram.com":      true,
		"i.instagram.com":    true,
		"notinstagram.com":   false,
		".facebook.com":      false,
		"instagram.com.evil": false,
	} {
		if got := IsInstagramDomain(domain); got != want {
			t.Errorf("IsInstagramDomain(%q) = %v", domain, got)
		}
	}
}
