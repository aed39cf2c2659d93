// Package dom wraps an x/net/html tree captured from the host page with the
// bookkeeping the engine needs: stable element keys, layout rectangles and
// document order.
//
// The page stamps two attributes on every element before a snapshot is taken:
// KeyAttr, an opaque key that stays with the element for as long as the host
// keeps it in the document, and RectAttr, its bounding box in document
// coordinates ("x,y,w,h").
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	KeyAttr  = "data-rs-key"
	RectAttr = "data-rs-rect"

	// BadgeAttr marks markup the engine injected itself.
	BadgeAttr = "data-rs-badge"
	// ItemAttr names the item whose content was swapped into a slot. It sits
	// on the slot's top-level children, never on the slot itself.
	ItemAttr = "data-rs-item"
)

// Rect is an element's box in document coordinates.
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Bottom() float64 { return r.Y + r.H }
func (r Rect) Right() float64  { return r.X + r.W }

// Viewport describes the visible window at snapshot time.
type Viewport struct {
	ScrollY float64 `json:"scrollY"`
	Height  float64 `json:"innerHeight"`
	Width   float64 `json:"innerWidth"`
}

// Visible reports whether r overlaps the viewport extended by margin
// viewport-heights above and below.
func (v Viewport) Visible(r Rect, margin float64) bool {
	if v.Height <= 0 {
		return true
	}
	top := v.ScrollY - margin*v.Height
	bottom := v.ScrollY + v.Height + margin*v.Height
	return r.Bottom() > top && r.Y < bottom
}

// Document is a parsed page snapshot.
type Document struct {
	Root     *html.Node
	URL      string
	Viewport Viewport

	byKey map[string]*html.Node
	order map[*html.Node]int
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}
	return NewDocument(root), nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// NewDocument indexes an existing tree.
func NewDocument(root *html.Node) *Document {
	d := &Document{
		Root:  root,
		byKey: make(map[string]*html.Node),
		order: make(map[*html.Node]int),
	}
	d.Reindex()
	return d
}

// Reindex rebuilds the key and order indexes after the tree was edited.
func (d *Document) Reindex() {
	clear(d.byKey)
	clear(d.order)
	i := 0
	Walk(d.Root, func(n *html.Node) bool {
		d.order[n] = i
		i++
		if n.Type == html.ElementNode {
			if k := Key(n); k != "" {
				d.byKey[k] = n
			}
		}
		return true
	})
}

// Node returns the element carrying key, or nil.
func (d *Document) Node(key string) *html.Node {
	return d.byKey[key]
}

// Order returns n's position in document order, or -1 if n is not part of
// this document.
func (d *Document) Order(n *html.Node) int {
	if i, ok := d.order[n]; ok {
		return i
	}
	return -1
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the node's children.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// Attr returns the value of the named attribute, or "".
func Attr(n *html.Node, name string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether the attribute is present.
func HasAttr(n *html.Node, name string) bool {
	if n == nil {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

// SetAttr sets or adds an attribute.
func SetAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr drops an attribute if present.
func RemoveAttr(n *html.Node, name string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// Key returns the element's page key.
func Key(n *html.Node) string {
	return Attr(n, KeyAttr)
}

// RectOf decodes the stamped layout rectangle. Elements without one (or with
// a malformed one) report a zero Rect.
func RectOf(n *html.Node) Rect {
	raw := Attr(n, RectAttr)
	if raw == "" {
		return Rect{}
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return Rect{}
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Rect{}
		}
		v[i] = f
	}
	return Rect{X: v[0], Y: v[1], W: v[2], H: v[3]}
}

// FormatRect is the inverse of RectOf.
func FormatRect(r Rect) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(r.X) + "," + f(r.Y) + "," + f(r.W) + "," + f(r.H)
}

// Text returns the concatenated text content of n.
func Text(n *html.Node) string {
	var sb strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Script || c.DataAtom == atom.Style) {
			return false
		}
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		return true
	})
	return sb.String()
}

// VisibleText returns the text content with whitespace runs collapsed.
func VisibleText(n *html.Node) string {
	return strings.Join(strings.Fields(Text(n)), " ")
}

// InnerHTML serialises n's children.
func InnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&buf, c)
	}
	return buf.String()
}

// OuterHTML serialises n itself.
func OuterHTML(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}

// ParseFragment parses markup as the children of a <div>.
func ParseFragment(markup string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	return nodes, nil
}

// FragmentRoot parses markup and wraps the resulting nodes in a detached
// <div>, so that selectors and walkers can treat it as a subtree.
func FragmentRoot(markup string) (*html.Node, error) {
	nodes, err := ParseFragment(markup)
	if err != nil {
		return nil, err
	}
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

// ReplaceChildren swaps n's children for the parsed markup.
func ReplaceChildren(n *html.Node, markup string) error {
	nodes, err := ParseFragment(markup)
	if err != nil {
		return err
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	for _, c := range nodes {
		n.AppendChild(c)
	}
	return nil
}

// Depth is the number of edges from ancestor down to n, or -1 when ancestor
// does not contain n.
func Depth(ancestor, n *html.Node) int {
	d := 0
	for c := n; c != nil; c = c.Parent {
		if c == ancestor {
			return d
		}
		d++
	}
	return -1
}

// StripMarks removes page keys and layout rectangles from markup, so that it
// can be written elsewhere in the document without duplicating keys.
func StripMarks(markup string) (string, error) {
	nodes, err := ParseFragment(markup)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, n := range nodes {
		Walk(n, func(c *html.Node) bool {
			if c.Type == html.ElementNode {
				RemoveAttr(c, KeyAttr)
				RemoveAttr(c, RectAttr)
				RemoveAttr(c, ItemAttr)
			}
			return true
		})
		html.Render(&buf, n)
	}
	return buf.String(), nil
}

// MarkItem sets ItemAttr to id on every top-level element of markup.
func MarkItem(markup, id string) (string, error) {
	nodes, err := ParseFragment(markup)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			SetAttr(n, ItemAttr, id)
		}
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// MarkedItem returns the item id carried by slot's children, or "" when the
// slot shows no swapped content.
func MarkedItem(slot *html.Node) string {
	for c := slot.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			if v := Attr(c, ItemAttr); v != "" {
				return v
			}
		}
	}
	return ""
}
