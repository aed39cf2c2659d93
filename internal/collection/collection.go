// Package collection is the page-session database of discovered items.
package collection

import (
	"sort"
	"sync"
	"time"
)

// Item is one discovered content unit.
type Item struct {
	ID        string `json:"id"`
	Permalink string `json:"permalink,omitempty"`
	Author    string `json:"author,omitempty"`
	TimeText  string `json:"timeText,omitempty"`
	Views     int64  `json:"views"`
	Likes     int64  `json:"likes"`
	Comments  int64  `json:"comments"`

	// Key is the page key of the element last seen showing this item. The
	// host owns that element; callers must re-validate it before use.
	Key string `json:"key,omitempty"`
	// Markup is the container's original inner HTML, captured before any
	// content swap touched it.
	Markup string `json:"-"`

	FirstSeenAt time.Time `json:"firstSeenAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
	// Seq is the insertion sequence number, starting at 1.
	Seq uint64 `json:"seq"`
}

// Engagement is likes plus comments.
func (it Item) Engagement() int64 {
	return it.Likes + it.Comments
}

// DB maps item id to item. The zero value is not usable; call New.
type DB struct {
	mu    sync.Mutex
	items map[string]*Item
	seq   uint64
	now   func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// New creates an empty database.
func New(opts ...Option) *DB {
	db := &DB{items: make(map[string]*Item), now: time.Now}
	for _, o := range opts {
		o(db)
	}
	return db
}

// Upsert inserts it, or merges it into the record with the same id: the
// element key and LastSeenAt are refreshed, FirstSeenAt is kept, and
// counters are only overwritten by a positive re-extraction. Items without
// an id are ignored. It reports whether a new record was created.
func (db *DB) Upsert(it Item) bool {
	if it.ID == "" {
		return false
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.now()
	cur, ok := db.items[it.ID]
	if !ok {
		db.seq++
		it.Seq = db.seq
		it.FirstSeenAt = now
		it.LastSeenAt = now
		db.items[it.ID] = &it
		return true
	}

	if it.Key != "" {
		cur.Key = it.Key
	}
	if now.After(cur.LastSeenAt) {
		cur.LastSeenAt = now
	}
	if it.Views > 0 {
		cur.Views = it.Views
	}
	if it.Likes > 0 {
		cur.Likes = it.Likes
	}
	if it.Comments > 0 {
		cur.Comments = it.Comments
	}
	if it.Markup != "" {
		cur.Markup = it.Markup
	}
	if it.Permalink != "" {
		cur.Permalink = it.Permalink
	}
	if it.Author != "" {
		cur.Author = it.Author
	}
	if it.TimeText != "" {
		cur.TimeText = it.TimeText
	}
	return false
}

// Get returns a copy of the record with id.
func (db *DB) Get(id string) (Item, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	it, ok := db.items[id]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// Values returns copies of all records in insertion order.
func (db *DB) Values() []Item {
	db.mu.Lock()
	out := make([]Item, 0, len(db.items))
	for _, it := range db.items {
		out = append(out, *it)
	}
	db.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Len returns the number of records.
func (db *DB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.items)
}

// Clear drops every record.
func (db *DB) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()
	clear(db.items)
	db.seq = 0
}
