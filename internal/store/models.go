package store

import "time"

// Preferences are the user's saved choices.
type Preferences struct {
	// DefaultSpeed is the playback rate applied on single-reel pages.
	DefaultSpeed float64 `json:"default_speed"`
	// FilterRange is the view-range filter last applied to the feed.
	FilterRange string `json:"filter_range"`
}

// DefaultPreferences are used until the user saves their own.
func DefaultPreferences() Preferences {
	return Preferences{DefaultSpeed: 1, FilterRange: "all"}
}

// RecentAccount is a profile the user sorted recently.
type RecentAccount struct {
	Username  string    `json:"username"`
	Followers int64     `json:"followers,omitempty"`
	VisitedAt time.Time `json:"visited_at"`
}

// DailyUsage counts gated actions for one calendar day.
type DailyUsage struct {
	Date  string `json:"date"` // YYYY-MM-DD, local time
	Count int    `json:"count"`
}

// UsageEvent is one gated action.
type UsageEvent struct {
	ID     int64     `json:"id"`
	Action string    `json:"action"`
	At     time.Time `json:"at"`
}
