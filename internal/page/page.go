// Package page defines how the engine reads and writes the host page. The
// engine never holds live node handles: it reads snapshots and addresses
// elements by the key the page stamped on them (dom.KeyAttr).
package page

import (
	"context"
	"errors"

	"github.com/ibeckermayer/reelsort/internal/dom"
	"github.com/ibeckermayer/reelsort/internal/mutation"
)

// ErrNoElement is returned when a keyed element is no longer in the document.
var ErrNoElement = errors.New("element not in document")

// Page is a live (or simulated) host page.
type Page interface {
	// Snapshot stamps keys and layout on every element and returns a parsed
	// copy of the document with the current viewport.
	Snapshot(ctx context.Context) (*dom.Document, error)

	ScrollBy(ctx context.Context, dy float64) error
	ScrollTo(ctx context.Context, y float64) error

	// SetInnerHTML replaces the children of the keyed element.
	SetInnerHTML(ctx context.Context, key, markup string) error
	// InsertHTML appends markup as the last child of parentKey.
	InsertHTML(ctx context.Context, parentKey, markup string) error
	// SetStyle sets one inline style property; an empty value removes it.
	SetStyle(ctx context.Context, key, prop, value string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Observe streams DOM mutations under <body> until stop is called or
	// ctx ends.
	Observe(ctx context.Context, fn func([]mutation.Record)) (stop func(), err error)

	// Notify shows a blocking confirmation message to the user.
	Notify(ctx context.Context, message string) error
	URL(ctx context.Context) (string, error)
}

// MenuEntry is one item of the in-page menu.
type MenuEntry struct {
	Command string `json:"command"`
	Label   string `json:"label"`
}

// Menu is implemented by pages that can host the floating sort menu. The
// returned channel yields the Command of every clicked entry and is closed
// when ctx ends.
type Menu interface {
	ShowMenu(ctx context.Context, entries []MenuEntry) (<-chan string, error)
}

// Player is implemented by pages that can change video playback speed.
type Player interface {
	SetPlaybackRate(ctx context.Context, rate float64) error
}

// ObserverCounter is implemented by pages that can report how many mutation
// observers are attached.
type ObserverCounter interface {
	Observers() int
}
