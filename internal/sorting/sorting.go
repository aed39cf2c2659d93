// Package sorting computes an order over collected items and maps it onto the
// slots currently rendered on screen.
package sorting

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ibeckermayer/reelsort/internal/collection"
	"github.com/ibeckermayer/reelsort/internal/dom"
)

// Key is the field items are ordered by.
type Key string

const (
	Views      Key = "views"
	Likes      Key = "likes"
	Comments   Key = "comments"
	Engagement Key = "engagement"
	Recency    Key = "recency"
	Random     Key = "random"
)

// Keys lists every key in menu order.
var Keys = []Key{Views, Likes, Comments, Engagement, Recency, Random}

// ParseKey validates a key name.
func ParseKey(s string) (Key, error) {
	k := Key(s)
	if !slices.Contains(Keys, k) {
		return "", fmt.Errorf("unknown sort key %q", s)
	}
	return k, nil
}

// Scope selects the item pool.
type Scope string

const (
	// ScopeAll draws from the whole database after a full collection.
	ScopeAll Scope = "all"
	// ScopeSeen draws only from items currently on screen.
	ScopeSeen Scope = "seen"
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeAll, ScopeSeen:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown sort scope %q", s)
}

// ErrInsufficientData is matched by errors.Is when too few items can be
// sorted.
var ErrInsufficientData = errors.New("not enough items to sort")

// InsufficientError carries the counts behind ErrInsufficientData.
type InsufficientError struct {
	Have, Need int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("not enough items to sort: found %d, need at least %d", e.Have, e.Need)
}

func (e *InsufficientError) Is(target error) bool {
	return target == ErrInsufficientData
}

// Slot is a container currently rendered on screen.
type Slot struct {
	Key  string   `json:"key"`
	ID   string   `json:"id"`
	Rect dom.Rect `json:"rect"`
}

// Assignment puts one item into one slot.
type Assignment struct {
	Slot Slot            `json:"slot"`
	Item collection.Item `json:"item"`
	Rank int             `json:"rank"`
}

// Plan is the result of one sort request.
type Plan struct {
	ID          string       `json:"id"`
	Key         Key          `json:"key"`
	Scope       Scope        `json:"scope"`
	Assignments []Assignment `json:"assignments"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Options configures an Engine.
type Options struct {
	// Rand drives the random key. Seeded from the clock when nil.
	Rand *rand.Rand
	// RowTolerance is the vertical distance in pixels within which slots
	// belong to the same visual row.
	RowTolerance float64
	// MinItems is the smallest sortable set. Defaults to 2.
	MinItems int
}

// Engine orders items and plans swaps.
type Engine struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	rowTol   float64
	minItems int
}

// New creates an Engine.
func New(opts Options) *Engine {
	e := &Engine{rnd: opts.Rand, rowTol: opts.RowTolerance, minItems: opts.MinItems}
	if e.rnd == nil {
		seed := uint64(time.Now().UnixNano())
		e.rnd = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	if e.rowTol <= 0 {
		e.rowTol = 50
	}
	if e.minItems <= 0 {
		e.minItems = 2
	}
	return e
}

// MinItems returns the smallest sortable set size.
func (e *Engine) MinItems() int {
	return e.minItems
}

// Order returns items ordered by key. Numeric keys sort descending. Recency
// sorts by first sighting, newest first, in ScopeAll; in ScopeSeen items are
// assumed to be in on-screen order and recency reverses it.
func (e *Engine) Order(items []collection.Item, key Key, scope Scope) []collection.Item {
	out := slices.Clone(items)
	desc := func(f func(collection.Item) int64) {
		sort.SliceStable(out, func(i, j int) bool { return f(out[i]) > f(out[j]) })
	}
	switch key {
	case Views:
		desc(func(it collection.Item) int64 { return it.Views })
	case Likes:
		desc(func(it collection.Item) int64 { return it.Likes })
	case Comments:
		desc(func(it collection.Item) int64 { return it.Comments })
	case Engagement:
		desc(collection.Item.Engagement)
	case Recency:
		if scope == ScopeSeen {
			slices.Reverse(out)
			break
		}
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if !a.FirstSeenAt.Equal(b.FirstSeenAt) {
				return a.FirstSeenAt.After(b.FirstSeenAt)
			}
			return a.Seq > b.Seq
		})
	case Random:
		e.mu.Lock()
		e.rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		e.mu.Unlock()
	}
	return out
}

// OrderSlots sorts slots top-to-bottom then left-to-right. Slots whose tops
// lie within tolerance of the first slot of a row share that row.
func OrderSlots(slots []Slot, tolerance float64) []Slot {
	out := slices.Clone(slots)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rect.Y < out[j].Rect.Y })

	rows := make([]int, len(out))
	row, rowY := 0, 0.0
	for i, s := range out {
		if i == 0 {
			rowY = s.Rect.Y
		} else if s.Rect.Y-rowY > tolerance {
			row++
			rowY = s.Rect.Y
		}
		rows[i] = row
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		if rows[i] != rows[j] {
			return rows[i] < rows[j]
		}
		return out[i].Rect.X < out[j].Rect.X
	})
	return lo.Map(idx, func(i, _ int) Slot { return out[i] })
}

// Plan assigns ordered items to on-screen slots.
//
// slots are the containers currently rendered; pool is the item pool for the
// scope (the whole database for ScopeAll, the items on screen for ScopeSeen).
// Items not shown in any slot are dropped since a swap can only write into
// slots that exist, and slots showing an item outside the pool are left
// alone. Items without captured markup cannot be rendered and are skipped.
func (e *Engine) Plan(slots []Slot, pool []collection.Item, key Key, scope Scope) (*Plan, error) {
	slots = OrderSlots(lo.UniqBy(lo.Filter(slots, func(s Slot, _ int) bool {
		return s.ID != "" && s.Key != ""
	}), func(s Slot) string { return s.ID }), e.rowTol)

	onScreen := lo.SliceToMap(slots, func(s Slot) (string, bool) { return s.ID, true })
	matched := lo.Filter(pool, func(it collection.Item, _ int) bool {
		return onScreen[it.ID] && it.Markup != ""
	})
	if scope == ScopeSeen {
		pos := lo.SliceToMap(lo.Range(len(slots)), func(i int) (string, int) { return slots[i].ID, i })
		sort.SliceStable(matched, func(i, j int) bool { return pos[matched[i].ID] < pos[matched[j].ID] })
	}
	ordered := e.Order(matched, key, scope)

	inPool := lo.SliceToMap(ordered, func(it collection.Item) (string, bool) { return it.ID, true })
	slots = lo.Filter(slots, func(s Slot, _ int) bool { return inPool[s.ID] })

	n := min(len(slots), len(ordered))
	if n < e.minItems {
		return nil, &InsufficientError{Have: n, Need: e.minItems}
	}
	p := &Plan{
		ID:          uuid.NewString(),
		Key:         key,
		Scope:       scope,
		Assignments: make([]Assignment, n),
		CreatedAt:   time.Now(),
	}
	for i := 0; i < n; i++ {
		p.Assignments[i] = Assignment{Slot: slots[i], Item: ordered[i], Rank: i + 1}
	}
	return p, nil
}

// Moved counts assignments whose slot receives a different item.
func (p *Plan) Moved() int {
	return lo.CountBy(p.Assignments, func(a Assignment) bool { return a.Slot.ID != a.Item.ID })
}
