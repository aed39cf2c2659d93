package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/ibeckermayer/reelsort/internal/config"
)

// Cookies that must be present for a logged-in Instagram session.
const (
	SessionCookie = "sessionid"
	CSRFCookie    = "csrftoken"
)

// CookieStore handles storage of Instagram session cookies
type CookieStore struct {
	path string
	now  func() time.Time
}

// StoredCookies represents the persisted cookie data
type StoredCookies struct {
	Cookies    []*network.Cookie `json:"cookies"`
	CapturedAt time.Time         `json:"captured_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// NewCookieStore creates a cookie store at the given path
func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path, now: time.Now}
}

// DefaultCookieStorePath returns the default path for cookie storage
func DefaultCookieStorePath() (string, error) {
	configDir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "cookies.json"), nil
}

// Save persists cookies to disk. The stored expiry is the earliest expiry
// among the session cookies.
func (cs *CookieStore) Save(cookies []*network.Cookie) error {
	if err := os.MkdirAll(filepath.Dir(cs.path), 0700); err != nil {
		return err
	}

	var earliest time.Time
	for _, c := range cookies {
		if c.Name != SessionCookie && c.Name != CSRFCookie {
			continue
		}
		// Session cookies (no expiry) report 0 or -1.
		if c.Expires <= 0 {
			continue
		}
		exp := time.Unix(int64(c.Expires), 0)
		if earliest.IsZero() || exp.Before(earliest) {
			earliest = exp
		}
	}

	stored := StoredCookies{
		Cookies:    cookies,
		CapturedAt: cs.now(),
		ExpiresAt:  earliest,
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cs.path, data, 0600)
}

// Load retrieves cookies from disk
func (cs *CookieStore) Load() (*StoredCookies, error) {
	data, err := os.ReadFile(cs.path)
	if err != nil {
		return nil, err
	}

	var stored StoredCookies
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// IsValid reports whether stored cookies hold an unexpired session.
func (cs *CookieStore) IsValid() bool {
	stored, err := cs.Load()
	if err != nil {
		return false
	}
	if !stored.ExpiresAt.IsZero() && cs.now().After(stored.ExpiresAt) {
		return false
	}
	return hasSession(stored.Cookies)
}

// Clear removes stored cookies. A missing file is not an error.
func (cs *CookieStore) Clear() error {
	err := os.Remove(cs.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// InstagramCookies returns only the instagram.com cookies.
func (cs *CookieStore) InstagramCookies() ([]*network.Cookie, error) {
	stored, err := cs.Load()
	if err != nil {
		return nil, err
	}

	var out []*network.Cookie
	for _, c := range stored.Cookies {
		if IsInstagramDomain(c.Domain) {
			out = append(out, c)
		}
	}
	return out, nil
}

// IsInstagramDomain reports whether a cookie domain belongs to instagram.com.
func IsInstagramDomain(domain string) bool {
	d := strings.TrimPrefix(domain, ".")
	return d == "instagram.com" || strings.HasSuffix(d, ".instagram.com")
}

func hasSession(cookies []*network.Cookie) bool {
	var session, csrf bool
	for _, c := range cookies {
		if c.Value == "" {
			continue
		}
		switch c.Name {
		case SessionCookie:
			session = true
		case CSRFCookie:
			csrf = true
		}
	}
	return session && csrf
}
