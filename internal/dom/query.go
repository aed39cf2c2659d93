package dom

import (
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var selectors sync.Map // string -> cascadia.Selector

func compile(sel string) cascadia.Selector {
	if s, ok := selectors.Load(sel); ok {
		return s.(cascadia.Selector)
	}
	s, err := cascadia.Compile(sel)
	if err != nil {
		// Selectors are compile-time constants or config; a bad one matches nothing.
		s = func(*html.Node) bool { return false }
	}
	selectors.Store(sel, s)
	return s
}

// ValidSelector reports whether sel compiles.
func ValidSelector(sel string) bool {
	_, err := cascadia.Compile(sel)
	return err == nil
}

// QueryAll returns the descendants of n (n included) that match sel, in
// document order.
func QueryAll(n *html.Node, sel string) []*html.Node {
	if n == nil {
		return nil
	}
	return compile(sel).MatchAll(n)
}

// Query returns the first match of sel under n, or nil.
func Query(n *html.Node, sel string) *html.Node {
	if n == nil {
		return nil
	}
	return compile(sel).MatchFirst(n)
}

// Matches reports whether n itself matches sel.
func Matches(n *html.Node, sel string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	return compile(sel).Match(n)
}

// QueryAll runs sel over the whole document.
func (d *Document) QueryAll(sel string) []*html.Node {
	return QueryAll(d.Root, sel)
}

// Style returns the value of one inline style property, lower-cased name.
func Style(n *html.Node, prop string) string {
	return StyleValue(Attr(n, "style"), prop)
}

// StyleValue is Style over a raw style attribute.
func StyleValue(style, prop string) string {
	for _, decl := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), prop) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// SetStyleProp returns style with prop set to value. An empty value removes
// the property.
func SetStyleProp(style, prop, value string) string {
	var out []string
	found := false
	for _, decl := range strings.Split(style, ";") {
		name, _, ok := strings.Cut(decl, ":")
		if !ok {
			if strings.TrimSpace(decl) != "" {
				out = append(out, strings.TrimSpace(decl))
			}
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), prop) {
			found = true
			if value != "" {
				out = append(out, prop+": "+value)
			}
			continue
		}
		out = append(out, strings.TrimSpace(decl))
	}
	if !found && value != "" {
		out = append(out, prop+": "+value)
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "; ") + ";"
}
