// Package identity derives a stable-as-possible identifier for a feed item
// container. Signals are tried from most to least stable and the first one
// present wins; a container with no signal at all has no identity.
package identity

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/ibeckermayer/reelsort/internal/dom"
)

// PermalinkSelector matches anchors pointing at a single item.
const PermalinkSelector = `a[href*="/reel/"], a[href*="/p/"], a[href*="/tv/"]`

var permalinkRe = regexp.MustCompile(`/(?:reel|p|tv)/([A-Za-z0-9_-]{5,})`)

// hashPrefixLen bounds the text used by the last-resort hash.
const hashPrefixLen = 50

// Strategy is one named identity signal.
type Strategy struct {
	Name    string
	Resolve func(n *html.Node) (string, bool)
}

// Strategies is the default fallback chain.
var Strategies = []Strategy{
	{Name: "permalink", Resolve: fromPermalink},
	{Name: "media", Resolve: fromMedia},
	{Name: "data-attr", Resolve: fromDataAttrs},
	{Name: "text-hash", Resolve: fromTextHash},
}

// Resolve returns the container's id, or "" when it cannot be tracked.
func Resolve(n *html.Node) string {
	id, _ := ResolveWith(n, Strategies)
	return id
}

// ResolveWith runs strategies in order and reports which one matched.
func ResolveWith(n *html.Node, strategies []Strategy) (id, strategy string) {
	if n == nil {
		return "", ""
	}
	for _, s := range strategies {
		if id, ok := s.Resolve(n); ok && id != "" {
			return id, s.Name
		}
	}
	return "", ""
}

// Shortcode extracts the item code from a permalink href ("/reel/Cx1_ab/").
func Shortcode(href string) string {
	m := permalinkRe.FindStringSubmatch(href)
	if m == nil {
		return ""
	}
	return m[1]
}

// Permalinks returns the permalink anchors under n (n included).
func Permalinks(n *html.Node) []*html.Node {
	var out []*html.Node
	for _, a := range dom.QueryAll(n, PermalinkSelector) {
		if Shortcode(dom.Attr(a, "href")) != "" {
			out = append(out, a)
		}
	}
	return out
}

// DistinctPermalinks counts the distinct item codes linked under n.
func DistinctPermalinks(n *html.Node) int {
	seen := make(map[string]bool)
	for _, a := range Permalinks(n) {
		seen[Shortcode(dom.Attr(a, "href"))] = true
	}
	return len(seen)
}

func fromPermalink(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "a" {
		if code := Shortcode(dom.Attr(n, "href")); code != "" {
			return code, true
		}
	}
	if links := Permalinks(n); len(links) > 0 {
		return Shortcode(dom.Attr(links[0], "href")), true
	}
	return "", false
}

// fromMedia uses the video or its poster. Images are skipped: a creator's
// avatar repeats across all of their items.
func fromMedia(n *html.Node) (string, bool) {
	for _, m := range dom.QueryAll(n, "video[src], video[poster], source[src]") {
		for _, attr := range []string{"src", "poster"} {
			if name := mediaFilename(dom.Attr(m, attr)); name != "" {
				return "media:" + name, true
			}
		}
	}
	return "", false
}

// mediaFilename returns the last path segment of a media URL. Blob and data
// URLs are per-session and not usable as identity.
func mediaFilename(src string) string {
	if src == "" || strings.HasPrefix(src, "blob:") || strings.HasPrefix(src, "data:") {
		return ""
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || len(name) < 5 {
		return ""
	}
	return name
}

var dataAttrs = []string{"data-media-id", "data-item-id", "data-id", "id", "data-testid"}

func fromDataAttrs(n *html.Node) (string, bool) {
	for _, name := range dataAttrs {
		if v := strings.TrimSpace(dom.Attr(n, name)); v != "" {
			return "attr:" + name + "=" + v, true
		}
	}
	return "", false
}

func fromTextHash(n *html.Node) (string, bool) {
	text := dom.VisibleText(n)
	if text == "" {
		return "", false
	}
	if r := []rune(text); len(r) > hashPrefixLen {
		text = string(r[:hashPrefixLen])
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	return fmt.Sprintf("text:%08x", h.Sum32()), true
}
