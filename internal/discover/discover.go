// Package discover finds feed item containers in a page snapshot.
//
// The host markup has no stable class or role contract for content units, so
// no single selector is trusted. Three independent strategies are combined and
// their union is filtered:
//
//   - ancestor walk: from every permalink anchor, climb a bounded number of
//     levels and accept the first ancestor that holds exactly one item and
//     looks like a card;
//   - interactive containers whose text carries engagement keywords;
//   - elements positioned by an inline transform (virtualized rows) that hold
//     a permalink or an engagement keyword.
package discover

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/ibeckermayer/reelsort/internal/dom"
	"github.com/ibeckermayer/reelsort/internal/identity"
)

// Options tunes the heuristics.
type Options struct {
	// MaxAncestorDepth bounds the climb from a permalink anchor.
	MaxAncestorDepth int
	// MinWidth and MinHeight exclude decorative or collapsed nodes.
	MinWidth  float64
	MinHeight float64
}

func (o *Options) defaults() {
	if o.MaxAncestorDepth <= 0 {
		o.MaxAncestorDepth = 6
	}
	if o.MinWidth <= 0 {
		o.MinWidth = 40
	}
	if o.MinHeight <= 0 {
		o.MinHeight = 40
	}
}

// keywordRe matches engagement vocabulary in English and Korean.
var keywordRe = regexp.MustCompile(`(?i)\b(views?|plays?|likes?|comments?)\b|조회|재생|좋아요|댓글`)

const (
	interactiveSelector = `article, [role="button"], [role="presentation"], [role="link"], [tabindex]`
	transformSelector   = `[style*="transform"]`
)

// Discoverer scans documents for item containers.
type Discoverer struct {
	opts Options
}

// New creates a Discoverer.
func New(opts Options) *Discoverer {
	opts.defaults()
	return &Discoverer{opts: opts}
}

// Stats describes one scan.
type Stats struct {
	Anchors     int
	ByAncestor  int
	ByKeyword   int
	ByTransform int
	Filtered    int
	Result      int
}

// Discover returns the deduplicated item containers of doc in document
// order.
func (d *Discoverer) Discover(doc *dom.Document) []*html.Node {
	nodes, _ := d.DiscoverStats(doc)
	return nodes
}

// DiscoverStats is Discover with per-strategy counts for diagnostics.
func (d *Discoverer) DiscoverStats(doc *dom.Document) ([]*html.Node, Stats) {
	var st Stats
	seen := make(map[*html.Node]bool)
	var candidates []*html.Node
	add := func(n *html.Node) bool {
		if n == nil || seen[n] {
			return false
		}
		seen[n] = true
		candidates = append(candidates, n)
		return true
	}

	anchors := identity.Permalinks(doc.Root)
	st.Anchors = len(anchors)
	for _, a := range anchors {
		if add(d.climb(a)) {
			st.ByAncestor++
		}
	}

	for _, n := range doc.QueryAll(interactiveSelector) {
		if identity.DistinctPermalinks(n) > 1 {
			continue
		}
		if keywordRe.MatchString(dom.Text(n)) && add(n) {
			st.ByKeyword++
		}
	}

	for _, n := range doc.QueryAll(transformSelector) {
		if identity.DistinctPermalinks(n) > 1 {
			continue
		}
		if identity.DistinctPermalinks(n) == 1 || keywordRe.MatchString(dom.Text(n)) {
			if add(n) {
				st.ByTransform++
			}
		}
	}

	var sized []*html.Node
	for _, n := range candidates {
		if d.plausibleSize(n) {
			sized = append(sized, n)
		} else {
			st.Filtered++
		}
	}

	out := resolveNesting(sized)
	sortByOrder(doc, out)
	st.Result = len(out)
	return out, st
}

// climb walks up from a permalink anchor and returns the first ancestor that
// holds exactly one item and is card-like, or nil.
func (d *Discoverer) climb(anchor *html.Node) *html.Node {
	n := anchor.Parent
	for depth := 1; n != nil && depth <= d.opts.MaxAncestorDepth; depth++ {
		if n.Type != html.ElementNode || n.Data == "body" || n.Data == "html" {
			return nil
		}
		count := identity.DistinctPermalinks(n)
		if count > 1 {
			return nil
		}
		if count == 1 && d.plausibleSize(n) && hasContent(n) {
			return n
		}
		n = n.Parent
	}
	return nil
}

// plausibleSize rejects nodes below the pixel floor. Nodes without layout
// information are kept; the size gate only applies when the page reported one.
func (d *Discoverer) plausibleSize(n *html.Node) bool {
	if !dom.HasAttr(n, dom.RectAttr) {
		return true
	}
	r := dom.RectOf(n)
	return r.W > d.opts.MinWidth && r.H > d.opts.MinHeight
}

func hasContent(n *html.Node) bool {
	if strings.TrimSpace(dom.Text(n)) != "" {
		return true
	}
	return dom.Query(n, "img, video, picture, canvas") != nil
}

// resolveNesting settles candidates nested inside one another. A card (a
// candidate linking exactly one item) beats anything without a permalink
// inside it, such as its like and comment bar. Among candidates of the same
// kind the innermost wins.
func resolveNesting(nodes []*html.Node) []*html.Node {
	set := make(map[*html.Node]bool, len(nodes))
	card := make(map[*html.Node]bool, len(nodes))
	for _, n := range nodes {
		set[n] = true
		card[n] = identity.DistinctPermalinks(n) == 1
	}
	hasInner := make(map[*html.Node]bool)
	inCard := make(map[*html.Node]bool)
	for _, n := range nodes {
		for p := n.Parent; p != nil; p = p.Parent {
			if !set[p] {
				continue
			}
			if card[p] == card[n] {
				hasInner[p] = true
			} else if card[p] {
				inCard[n] = true
			}
		}
	}
	out := nodes[:0:0]
	for _, n := range nodes {
		if !hasInner[n] && !inCard[n] {
			out = append(out, n)
		}
	}
	return out
}

func sortByOrder(doc *dom.Document, nodes []*html.Node) {
	// Insertion sort: candidate lists are short and mostly ordered already.
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && doc.Order(nodes[j]) < doc.Order(nodes[j-1]); j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}
