// Package memory is an in-process page.Page over an x/net/html tree. It backs
// offline replays of saved snapshots and stands in for the browser in tests;
// the host-side helpers (Remove, SetAttr, ReplaceInner) let callers play the
// role of the site's own renderer.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/ibeckermayer/reelsort/internal/dom"
	"github.com/ibeckermayer/reelsort/internal/mutation"
	"github.com/ibeckermayer/reelsort/internal/page"
)

// ScrollHook runs after every scroll with the new offset, outside the page
// lock, so it may call back into the page (e.g. to render the next window of
// a virtualized list).
type ScrollHook func(p *Page, scrollY float64)

// Option configures a Page.
type Option func(*Page)

// WithURL sets the page location.
func WithURL(u string) Option {
	return func(p *Page) { p.url = u }
}

// WithViewport sets the window size.
func WithViewport(width, height float64) Option {
	return func(p *Page) {
		p.viewport.Width = width
		p.viewport.Height = height
	}
}

// WithScrollHook installs a ScrollHook.
func WithScrollHook(h ScrollHook) Option {
	return func(p *Page) { p.onScroll = h }
}

// Page is an in-memory document.
type Page struct {
	mu       sync.Mutex
	root     *html.Node
	seq      int
	url      string
	viewport dom.Viewport
	onScroll ScrollHook

	observers map[int]func([]mutation.Record)
	nextObs   int
	notices   []string

	menu   []page.MenuEntry
	clicks chan string
	rate   float64
}

var (
	_ page.Page            = (*Page)(nil)
	_ page.Menu            = (*Page)(nil)
	_ page.Player          = (*Page)(nil)
	_ page.ObserverCounter = (*Page)(nil)
)

// New parses markup into a page.
func New(markup string, opts ...Option) (*Page, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("memory page: parse: %w", err)
	}
	p := &Page{
		root:      root,
		url:       "https://www.instagram.com/reels/",
		viewport:  dom.Viewport{Width: 1280, Height: 800},
		observers: make(map[int]func([]mutation.Record)),
	}
	for _, o := range opts {
		o(p)
	}
	p.stamp(p.root)
	return p, nil
}

// stamp gives every element under n a key unless it already has one that
// is unique in the document.
func (p *Page) stamp(n *html.Node) {
	seen := make(map[string]*html.Node)
	dom.Walk(p.root, func(c *html.Node) bool {
		if c.Type == html.ElementNode {
			if k := dom.Key(c); k != "" {
				if _, dup := seen[k]; !dup {
					seen[k] = c
				}
			}
		}
		return true
	})
	dom.Walk(n, func(c *html.Node) bool {
		if c.Type != html.ElementNode {
			return true
		}
		k := dom.Key(c)
		if k == "" || seen[k] != c {
			p.seq++
			k = fmt.Sprintf("m%d", p.seq)
			for seen[k] != nil {
				p.seq++
				k = fmt.Sprintf("m%d", p.seq)
			}
			dom.SetAttr(c, dom.KeyAttr, k)
			seen[k] = c
		}
		return true
	})
}

func (p *Page) find(key string) *html.Node {
	var found *html.Node
	dom.Walk(p.root, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if c.Type == html.ElementNode && dom.Key(c) == key {
			found = c
			return false
		}
		return true
	})
	return found
}

func (p *Page) emit(records []mutation.Record) {
	if len(records) == 0 {
		return
	}
	p.mu.Lock()
	fns := make([]func([]mutation.Record), 0, len(p.observers))
	for _, fn := range p.observers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(records)
	}
}

// Snapshot implements page.Page.
func (p *Page) Snapshot(ctx context.Context) (*dom.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.stamp(p.root)
	markup := dom.OuterHTML(p.root)
	vp := p.viewport
	u := p.url
	p.mu.Unlock()

	doc, err := dom.ParseString(markup)
	if err != nil {
		return nil, err
	}
	doc.URL = u
	doc.Viewport = vp
	return doc, nil
}

func (p *Page) maxScroll() float64 {
	bottom := 0.0
	dom.Walk(p.root, func(c *html.Node) bool {
		if c.Type == html.ElementNode {
			if r := dom.RectOf(c); r.Bottom() > bottom {
				bottom = r.Bottom()
			}
		}
		return true
	})
	if m := bottom - p.viewport.Height; m > 0 {
		return m
	}
	return 0
}

// ScrollBy implements page.Page.
func (p *Page) ScrollBy(ctx context.Context, dy float64) error {
	p.mu.Lock()
	y := p.viewport.ScrollY + dy
	p.mu.Unlock()
	return p.ScrollTo(ctx, y)
}

// ScrollTo implements page.Page.
func (p *Page) ScrollTo(ctx context.Context, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if m := p.maxScroll(); y > m {
		y = m
	}
	if y < 0 {
		y = 0
	}
	p.viewport.ScrollY = y
	hook := p.onScroll
	p.mu.Unlock()

	if hook != nil {
		hook(p, y)
	}
	return nil
}

// ScrollY returns the current offset.
func (p *Page) ScrollY() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport.ScrollY
}

// SetInnerHTML implements page.Page.
func (p *Page) SetInnerHTML(ctx context.Context, key, markup string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.ReplaceInner(key, markup)
}

// ReplaceInner swaps an element's children, as the host renderer would.
func (p *Page) ReplaceInner(key, markup string) error {
	p.mu.Lock()
	n := p.find(key)
	if n == nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", page.ErrNoElement, key)
	}

	var records []mutation.Record
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		records = append(records, mutation.Record{
			Op: mutation.OpRemove, Key: dom.Key(c), ParentKey: key, HTML: dom.OuterHTML(c),
		})
	}
	if err := dom.ReplaceChildren(n, markup); err != nil {
		p.mu.Unlock()
		return err
	}
	p.stamp(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		records = append(records, mutation.Record{
			Op: mutation.OpInsert, Key: dom.Key(c), ParentKey: key, HTML: dom.OuterHTML(c),
		})
	}
	p.mu.Unlock()

	p.emit(records)
	return nil
}

// InsertHTML implements page.Page.
func (p *Page) InsertHTML(ctx context.Context, parentKey, markup string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	parent := p.find(parentKey)
	if parent == nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", page.ErrNoElement, parentKey)
	}
	nodes, err := dom.ParseFragment(markup)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	var records []mutation.Record
	for _, c := range nodes {
		parent.AppendChild(c)
		p.stamp(c)
		records = append(records, mutation.Record{
			Op: mutation.OpInsert, Key: dom.Key(c), ParentKey: parentKey, HTML: dom.OuterHTML(c),
		})
	}
	p.mu.Unlock()

	p.emit(records)
	return nil
}

// SetStyle implements page.Page.
func (p *Page) SetStyle(ctx context.Context, key, prop, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	n := p.find(key)
	if n == nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", page.ErrNoElement, key)
	}
	old := dom.Attr(n, "style")
	next := dom.SetStyleProp(old, prop, value)
	p.mu.Unlock()

	return p.SetAttr(key, "style", next)
}

// SetAttr changes an attribute, as the host renderer would.
func (p *Page) SetAttr(key, name, value string) error {
	p.mu.Lock()
	n := p.find(key)
	if n == nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", page.ErrNoElement, key)
	}
	old := dom.Attr(n, name)
	if value == "" {
		dom.RemoveAttr(n, name)
	} else {
		dom.SetAttr(n, name, value)
	}
	p.mu.Unlock()

	if old == value {
		return nil
	}
	p.emit([]mutation.Record{{Op: mutation.OpAttr, Key: key, Name: name, Value: value, OldValue: old}})
	return nil
}

// Remove detaches an element, as the host renderer would.
func (p *Page) Remove(key string) error {
	p.mu.Lock()
	n := p.find(key)
	if n == nil || n.Parent == nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", page.ErrNoElement, key)
	}
	parentKey := dom.Key(n.Parent)
	markup := dom.OuterHTML(n)
	n.Parent.RemoveChild(n)
	p.mu.Unlock()

	p.emit([]mutation.Record{{Op: mutation.OpRemove, Key: key, ParentKey: parentKey, HTML: markup}})
	return nil
}

// Exists implements page.Page.
func (p *Page) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.find(key) != nil, nil
}

// Observe implements page.Page.
func (p *Page) Observe(ctx context.Context, fn func([]mutation.Record)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.observers, id)
			p.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return stop, nil
}

// Observers returns the number of active observers.
func (p *Page) Observers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.observers)
}

// Notify implements page.Page.
func (p *Page) Notify(ctx context.Context, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, message)
	return nil
}

// Notices returns every message shown so far.
func (p *Page) Notices() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.notices...)
}

// URL implements page.Page.
func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

// Navigate changes the location without touching the document.
func (p *Page) Navigate(u string) {
	p.mu.Lock()
	p.url = u
	p.mu.Unlock()
}

// InnerHTML returns the children markup of the keyed element.
func (p *Page) InnerHTML(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.find(key)
	if n == nil {
		return "", false
	}
	return dom.InnerHTML(n), true
}

// HTML serialises the whole document.
func (p *Page) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return dom.OuterHTML(p.root)
}

// ShowMenu implements page.Menu. Click delivers entries.
func (p *Page) ShowMenu(ctx context.Context, entries []page.MenuEntry) (<-chan string, error) {
	ch := make(chan string, 16)
	p.mu.Lock()
	p.menu = append([]page.MenuEntry(nil), entries...)
	p.clicks = ch
	p.mu.Unlock()

	out := make(chan string)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case cmd := <-ch:
				select {
				case out <- cmd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Menu returns the entries passed to ShowMenu.
func (p *Page) Menu() []page.MenuEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]page.MenuEntry(nil), p.menu...)
}

// Click simulates the user picking a menu entry. It fails when no menu is
// shown or command is not one of its entries.
func (p *Page) Click(command string) error {
	p.mu.Lock()
	ch := p.clicks
	found := false
	for _, e := range p.menu {
		if e.Command == command {
			found = true
			break
		}
	}
	p.mu.Unlock()
	if ch == nil || !found {
		return fmt.Errorf("memory page: no menu entry %q", command)
	}
	ch <- command
	return nil
}

// SetPlaybackRate implements page.Player.
func (p *Page) SetPlaybackRate(ctx context.Context, rate float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = rate
	return nil
}

// PlaybackRate returns the last rate set, or 0.
func (p *Page) PlaybackRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}
