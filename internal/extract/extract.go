// Package extract pulls engagement counters and metadata out of one item
// container. The markup is unlabeled, so view counts are located by a chain
// of named strategies tried from most to least structurally specific; the
// first one producing a positive value wins.
package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ibeckermayer/reelsort/internal/dom"
	"github.com/ibeckermayer/reelsort/internal/identity"
	"github.com/ibeckermayer/reelsort/internal/numparse"
)

// maxLeafRunes bounds the length of a text node treated as a counter.
const maxLeafRunes = 20

// Draft is the best-effort result for one container. Every field may be
// zero; a draft is usable as long as ID is set.
type Draft struct {
	ID        string
	Permalink string
	Author    string
	TimeText  string
	Views     int64
	Likes     int64
	Comments  int64

	// ViewsFrom names the strategy that produced Views.
	ViewsFrom string
	// IDFrom names the identity signal behind ID.
	IDFrom string
}

// Leaf is a short text node containing a digit.
type Leaf struct {
	Text  string
	Value int64
	Depth int
	Index int
}

// Input is what each view strategy sees.
type Input struct {
	Container *html.Node
	Anchor    *html.Node
	Leaves    []Leaf
}

// Strategy proposes a view count.
type Strategy struct {
	Name string
	Find func(in *Input) (int64, bool)
}

// Options tunes the extractor.
type Options struct {
	// ViewLeafIndices are the leaf positions that carry the view count on the
	// observed layout. Defaults to [0, 1].
	ViewLeafIndices []int
	// StructuralPatterns are CSS paths retried when no leaf yields a value.
	StructuralPatterns []string
}

// DefaultStructuralPatterns are generic nested-span paths.
var DefaultStructuralPatterns = []string{
	"span > span > span",
	"div > span > span",
	"a span span",
	"span > span",
}

// Extractor turns containers into drafts.
type Extractor struct {
	strategies []Strategy
}

// New builds the default strategy chain: positional, max-value, structural.
func New(opts Options) *Extractor {
	indices := opts.ViewLeafIndices
	if len(indices) == 0 {
		indices = []int{0, 1}
	}
	patterns := opts.StructuralPatterns
	if len(patterns) == 0 {
		patterns = DefaultStructuralPatterns
	}
	return &Extractor{strategies: []Strategy{
		Positional(indices),
		MaxValue(),
		Structural(patterns),
	}}
}

// Strategies returns the names of the configured chain, in order.
func (e *Extractor) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name
	}
	return names
}

// Extract reads one container.
func (e *Extractor) Extract(container *html.Node) Draft {
	var d Draft
	if container == nil {
		return d
	}
	d.ID, d.IDFrom = identity.ResolveWith(container, identity.Strategies)

	anchor := permalinkAnchor(container)
	scope := container
	if anchor != nil {
		scope = anchor
		d.Permalink = dom.Attr(anchor, "href")
	}
	in := &Input{Container: container, Anchor: anchor, Leaves: Leaves(scope)}

	for _, s := range e.strategies {
		if v, ok := s.Find(in); ok && v > 0 {
			d.Views, d.ViewsFrom = v, s.Name
			break
		}
	}

	if len(in.Leaves) > 1 {
		d.Likes = in.Leaves[1].Value
	}
	if len(in.Leaves) > 2 {
		d.Comments = in.Leaves[2].Value
	}
	text := dom.VisibleText(container)
	if d.Likes == 0 {
		d.Likes = matchCounter(text, likesRe)
	}
	if d.Comments == 0 {
		d.Comments = matchCounter(text, commentsRe)
	}

	d.Author = author(container)
	d.TimeText = timeText(text)
	return d
}

func permalinkAnchor(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "a" && identity.Shortcode(dom.Attr(n, "href")) != "" {
		return n
	}
	if links := identity.Permalinks(n); len(links) > 0 {
		return links[0]
	}
	return nil
}

// Leaves collects numeric text leaves under root in document order.
func Leaves(root *html.Node) []Leaf {
	var out []Leaf
	dom.Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return false
		}
		if n.Type != html.TextNode {
			return true
		}
		text := strings.TrimSpace(n.Data)
		if text == "" || utf8.RuneCountInString(text) > maxLeafRunes || !strings.ContainsFunc(text, unicode.IsDigit) {
			return true
		}
		out = append(out, Leaf{
			Text:  text,
			Value: numparse.Parse(text),
			Depth: dom.Depth(root, n),
			Index: len(out),
		})
		return true
	})
	return out
}

// Positional checks fixed leaf positions plus the last two leaves and keeps
// the largest value.
func Positional(indices []int) Strategy {
	return Strategy{Name: "positional", Find: func(in *Input) (int64, bool) {
		n := len(in.Leaves)
		if n == 0 {
			return 0, false
		}
		var best int64
		check := func(i int) {
			if i >= 0 && i < n && in.Leaves[i].Value > best {
				best = in.Leaves[i].Value
			}
		}
		for _, i := range indices {
			check(i)
		}
		check(n - 1)
		check(n - 2)
		return best, best > 0
	}}
}

// MaxValue takes the largest decoded leaf.
func MaxValue() Strategy {
	return Strategy{Name: "max-value", Find: func(in *Input) (int64, bool) {
		var best int64
		for _, l := range in.Leaves {
			best = max(best, l.Value)
		}
		return best, best > 0
	}}
}

// Structural retries the container with nested-span selectors.
func Structural(patterns []string) Strategy {
	return Strategy{Name: "structural", Find: func(in *Input) (int64, bool) {
		sel := goquery.NewDocumentFromNode(in.Container).Selection
		var best int64
		for _, p := range patterns {
			sel.Find(p).Each(func(_ int, s *goquery.Selection) {
				text := strings.TrimSpace(s.Text())
				if utf8.RuneCountInString(text) > maxLeafRunes || !strings.ContainsFunc(text, unicode.IsDigit) {
					return
				}
				best = max(best, numparse.Parse(text))
			})
		}
		return best, best > 0
	}}
}

const counterPattern = `(\d[\d.,]*\s?(?:[kKmMbB]|천|만|억)?)`

var (
	likesRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)` + counterPattern + `\s*(?:likes?\b|좋아요)`),
		regexp.MustCompile(`좋아요\s*` + counterPattern),
	}
	commentsRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)` + counterPattern + `\s*(?:comments?\b|댓글)`),
		regexp.MustCompile(`댓글\s*` + counterPattern),
	}
	agoRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b\d+\s*(?:s|sec|secs|seconds?|m|min|mins|minutes?|h|hr|hrs|hours?|d|days?|w|wk|weeks?|mo|months?|y|yr|years?)\s+ago\b`),
		regexp.MustCompile(`\d+\s*(?:초|분|시간|일|주|개월|달|년)\s*전`),
	}
)

func matchCounter(text string, res []*regexp.Regexp) int64 {
	for _, re := range res {
		if m := re.FindStringSubmatch(text); m != nil {
			if v := numparse.Parse(m[1]); v > 0 {
				return v
			}
		}
	}
	return 0
}

func timeText(text string) string {
	for _, re := range agoRe {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

var navPrefixes = []string{
	"/explore", "/direct", "/accounts", "/reels", "/stories", "/about", "/legal",
}

// author returns the text of the first anchor that is neither a permalink
// nor site navigation.
func author(container *html.Node) string {
	for _, a := range dom.QueryAll(container, "a[href]") {
		href := dom.Attr(a, "href")
		if identity.Shortcode(href) != "" || isNav(href) {
			continue
		}
		if text := dom.VisibleText(a); text != "" {
			return text
		}
		if name := strings.Trim(hrefPath(href), "/"); name != "" && !strings.Contains(name, "/") {
			return name
		}
	}
	return ""
}

func isNav(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return true
	}
	p := hrefPath(href)
	if p == "/" {
		return true
	}
	for _, prefix := range navPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func hrefPath(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.Path == "" && u.Host != "" {
		return "/"
	}
	return u.Path
}
