// Package metrics derives reach and engagement figures from scraped counters.
package metrics

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/ibeckermayer/reelsort/internal/dom"
	"github.com/ibeckermayer/reelsort/internal/numparse"
)

// DefaultFollowers is assumed when the creator's follower count is unknown.
const DefaultFollowers int64 = 10000

// ReachRate is views as a percentage of followers.
func ReachRate(views, followers int64) float64 {
	if followers <= 0 {
		followers = DefaultFollowers
	}
	return float64(views) / float64(followers) * 100
}

// EngagementRate is interactions as a percentage of views.
func EngagementRate(likes, comments, shares, views int64) float64 {
	if views <= 0 {
		return 0
	}
	return float64(likes+comments+shares) / float64(views) * 100
}

// Grade rates a reel from its reach and engagement percentages.
func Grade(reach, engagement float64) string {
	switch {
	case reach > 500 && engagement > 10:
		return "A+"
	case (reach > 500 && engagement > 5) || (reach > 200 && engagement > 10):
		return "A"
	case (reach > 200 && engagement > 5) || (reach > 100 && engagement > 10):
		return "B+"
	case reach > 100 || engagement > 5:
		return "B"
	}
	return "C"
}

// Class is a reach classification shown on badges.
type Class string

const (
	SuperViral Class = "super-viral"
	Hot        Class = "hot"
	Good       Class = "good"
	Average    Class = "average"
)

// Classify buckets a reach percentage.
func Classify(reach float64) Class {
	switch {
	case reach >= 500:
		return SuperViral
	case reach >= 200:
		return Hot
	case reach >= 100:
		return Good
	}
	return Average
}

// Emoji returns the badge glyph for c.
func (c Class) Emoji() string {
	switch c {
	case SuperViral:
		return "🚀"
	case Hot:
		return "🔥"
	case Good:
		return "⭐"
	}
	return "📊"
}

// FormatRate renders a percentage with one decimal.
func FormatRate(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// Range is a view-count filter. Max of 0 means unbounded.
type Range struct {
	Name     string
	Min, Max int64
}

// Ranges are the supported filters, in menu order.
var Ranges = []Range{
	{Name: "all"},
	{Name: "1k-10k", Min: 1_000, Max: 10_000},
	{Name: "10k-100k", Min: 10_000, Max: 100_000},
	{Name: "100k-1m", Min: 100_000, Max: 1_000_000},
	{Name: "1m+", Min: 1_000_000},
}

// ParseRange looks up a filter by name.
func ParseRange(name string) (Range, error) {
	for _, r := range Ranges {
		if strings.EqualFold(r.Name, name) {
			return r, nil
		}
	}
	return Range{}, fmt.Errorf("unknown view range %q", name)
}

// All reports whether r shows everything.
func (r Range) All() bool {
	return r.Min == 0 && r.Max == 0
}

// Contains reports whether views falls in [Min, Max).
func (r Range) Contains(views int64) bool {
	if views < r.Min {
		return false
	}
	return r.Max == 0 || views < r.Max
}

// FollowerSelectors locate the follower count on a profile page.
var FollowerSelectors = []string{
	`a[href*="/followers/"] span[title]`,
	`a[href*="/followers/"] span`,
	`span:contains("followers")`,
	`[title*="followers"]`,
	`span:contains("팔로워")`,
}

// ParseFollowers reads the follower count from a profile page, or 0.
func ParseFollowers(doc *dom.Document) int64 {
	for _, sel := range FollowerSelectors {
		for _, n := range doc.QueryAll(sel) {
			if v := followerValue(n); v > 0 {
				return v
			}
		}
	}
	return 0
}

func followerValue(n *html.Node) int64 {
	// The exact count lives in the title when the text is abbreviated.
	if t := dom.Attr(n, "title"); t != "" {
		if v := numparse.Parse(t); v > 0 {
			return v
		}
	}
	return numparse.Parse(dom.VisibleText(n))
}

var reservedPaths = map[string]bool{
	"reels": true, "reel": true, "p": true, "tv": true, "explore": true,
	"direct": true, "accounts": true, "stories": true,
}

// Username returns the profile name from a page URL, or "".
func Username(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	first, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	if first == "" || reservedPaths[first] {
		return ""
	}
	return first
}
