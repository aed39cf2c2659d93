package app

import (
	"fmt"
	"strings"

	"github.com/ibeckermayer/reelsort/internal/sorting"
)

// Variant is one sort menu entry: a key crossed with a scope.
type Variant struct {
	Key   sorting.Key
	Scope sorting.Scope
}

// Variants lists every menu entry, full-collect entries first.
func Variants() []Variant {
	out := make([]Variant, 0, 2*len(sorting.Keys))
	for _, scope := range []sorting.Scope{sorting.ScopeAll, sorting.ScopeSeen} {
		for _, k := range sorting.Keys {
			out = append(out, Variant{Key: k, Scope: scope})
		}
	}
	return out
}

var keyLabels = map[sorting.Key]string{
	sorting.Views:      "Views",
	sorting.Likes:      "Likes",
	sorting.Comments:   "Comments",
	sorting.Engagement: "Engagement",
	sorting.Recency:    "Newest",
	sorting.Random:     "Shuffle",
}

// Label is the menu text.
func (v Variant) Label() string {
	l := keyLabels[v.Key]
	if l == "" {
		l = string(v.Key)
	}
	if v.Scope == sorting.ScopeAll {
		return l + " (full collect)"
	}
	return l + " (seen)"
}

// Command is the menu command name, e.g. "sort:views:all".
func (v Variant) Command() string {
	return "sort:" + string(v.Key) + ":" + string(v.Scope)
}

func (v Variant) String() string { return v.Command() }

// ParseVariant parses "views", "views:seen" or "sort:views:seen". The scope
// defaults to seen.
func ParseVariant(s string) (Variant, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "sort:")
	keyStr, scopeStr, _ := strings.Cut(s, ":")
	key, err := sorting.ParseKey(keyStr)
	if err != nil {
		return Variant{}, err
	}
	scope := sorting.ScopeSeen
	if scopeStr != "" {
		if scope, err = sorting.ParseScope(scopeStr); err != nil {
			return Variant{}, err
		}
	}
	return Variant{Key: key, Scope: scope}, nil
}

// verb is used in the confirmation message.
func (v Variant) verb() string {
	switch v.Key {
	case sorting.Recency:
		return "newest first"
	case sorting.Random:
		return "in random order"
	}
	return fmt.Sprintf("by %s", v.Key)
}
