// Package session holds the mutable state of one visit to the feed: the
// collection database, the current swap and whether sorting is active. It is
// created on entering the feed and discarded on leaving it.
package session

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ibeckermayer/reelsort/internal/collection"
	"github.com/ibeckermayer/reelsort/internal/collector"
	"github.com/ibeckermayer/reelsort/internal/guard"
	"github.com/ibeckermayer/reelsort/internal/render"
	"github.com/ibeckermayer/reelsort/internal/sorting"
)

// FeedRoot returns the feed a page URL belongs to, or "" when the page is not
// a feed the engine can sort. The reels tab changes its URL per reel while
// scrolling; all of those share the root "/reels".
func FeedRoot(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	p := strings.Trim(u.Path, "/")
	switch {
	case p == "reels" || strings.HasPrefix(p, "reels/"):
		return "/reels"
	case strings.HasSuffix(p, "/reels") && !strings.Contains(strings.TrimSuffix(p, "/reels"), "/"):
		return "/" + p
	}
	return ""
}

// IsFeed reports whether a page URL is a feed the engine can sort: the
// reels tab or a profile's reels grid.
func IsFeed(pageURL string) bool {
	return FeedRoot(pageURL) != ""
}

// Session is one page-session.
type Session struct {
	ID        string
	URL       string
	StartedAt time.Time
	DB        *collection.DB

	// Collector and Guard are attached by the owner; either may be nil.
	Collector *collector.Collector
	Guard     *guard.Guard

	mu      sync.Mutex
	sorting bool
	backup  *render.Backup
	plan    *sorting.Plan
	filter  string
}

// New starts a session on url.
func New(pageURL string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		URL:       pageURL,
		StartedAt: time.Now(),
		DB:        collection.New(),
	}
}

// Root returns the session's feed root.
func (s *Session) Root() string {
	return FeedRoot(s.URL)
}

// Close stops background work and drops the collected items.
func (s *Session) Close() {
	if s.Collector != nil {
		s.Collector.Cancel()
	}
	if s.Guard != nil {
		s.Guard.Stop()
	}
	s.mu.Lock()
	s.plan, s.backup, s.sorting = nil, nil, false
	s.mu.Unlock()
	s.DB.Clear()
}

// Sorting reports whether a swap is currently applied.
func (s *Session) Sorting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorting
}

// Applied records a successful swap.
func (s *Session) Applied(p *sorting.Plan, b *render.Backup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan, s.backup, s.sorting = p, b, true
}

// Backup returns the current swap's backup, or nil.
func (s *Session) Backup() *render.Backup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backup
}

// Plan returns the current plan, or nil.
func (s *Session) Plan() *sorting.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// TakeBackup clears the sorting state and hands back the backup so the
// caller can revert it.
func (s *Session) TakeBackup() *render.Backup {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.backup
	s.plan, s.backup, s.sorting = nil, nil, false
	return b
}

// SetFilter remembers the active view-range filter.
func (s *Session) SetFilter(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = name
}

// Filter returns the active view-range filter.
func (s *Session) Filter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}
