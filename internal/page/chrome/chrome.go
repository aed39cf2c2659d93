// Package chrome is the page.Page backed by a real Chrome tab. A support
// script installed in every document stamps keys and layout, performs the
// writes, and reports mutations and menu clicks back through CDP runtime
// bindings.
package chrome

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/reelsort/internal/auth"
	"github.com/ibeckermayer/reelsort/internal/browser"
	"github.com/ibeckermayer/reelsort/internal/config"
	"github.com/ibeckermayer/reelsort/internal/dom"
	"github.com/ibeckermayer/reelsort/internal/mutation"
	"github.com/ibeckermayer/reelsort/internal/page"
)

//go:embed support.js
var supportJS string

const (
	mutationBinding = "__rsMutations"
	menuBinding     = "__rsMenu"
)

var (
	_ page.Page            = (*Page)(nil)
	_ page.Menu            = (*Page)(nil)
	_ page.Player          = (*Page)(nil)
	_ page.ObserverCounter = (*Page)(nil)
)

type event struct {
	binding string
	payload string
	// reload is set when the main frame navigated to a new document.
	reload bool
}

// Page drives one Chrome tab.
type Page struct {
	tab context.Context
	log *slog.Logger

	events chan event

	mu        sync.Mutex
	observers map[int]func([]mutation.Record)
	nextObs   int
	menu      []page.MenuEntry
	clicks    chan string
}

// Open starts a browser for cfg, injects cookies, installs the support
// script and navigates to cfg.FeedURL. shutdown closes the browser.
func Open(ctx context.Context, cfg config.BrowserConfig, cookies []*network.Cookie, logger *slog.Logger) (p *Page, shutdown func(), err error) {
	tab, cancel := browser.NewContext(ctx, cfg, nil)
	defer func() {
		if err != nil {
			cancel()
		}
	}()

	if err := chromedp.Run(tab, auth.Inject(cookies)); err != nil {
		return nil, nil, fmt.Errorf("inject cookies: %w", err)
	}
	p, err = Attach(tab, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := chromedp.Run(tab,
		chromedp.Navigate(cfg.FeedURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", cfg.FeedURL, err)
	}
	return p, cancel, nil
}

// Attach installs the support script and bindings on an existing chromedp
// tab context. The page stops pumping events when tab ends.
func Attach(tab context.Context, logger *slog.Logger) (*Page, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Page{
		tab:       tab,
		log:       logger.With("component", "chrome"),
		events:    make(chan event, 1024),
		observers: make(map[int]func([]mutation.Record)),
	}

	chromedp.ListenTarget(tab, func(ev any) {
		var e event
		switch ev := ev.(type) {
		case *runtime.EventBindingCalled:
			e = event{binding: ev.Name, payload: ev.Payload}
		case *cdppage.EventFrameNavigated:
			if ev.Frame.ParentID != "" {
				return
			}
			e = event{reload: true}
		default:
			return
		}
		// The listener runs on chromedp's event loop and must not block.
		select {
		case p.events <- e:
		default:
			p.log.Warn("event dropped", "binding", e.binding)
		}
	})

	err := chromedp.Run(tab,
		runtime.AddBinding(mutationBinding),
		runtime.AddBinding(menuBinding),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := cdppage.AddScriptToEvaluateOnNewDocument(supportJS).Do(ctx)
			return err
		}),
		chromedp.Evaluate(supportJS, nil),
	)
	if err != nil {
		return nil, fmt.Errorf("install support script: %w", err)
	}

	go p.pump()
	return p, nil
}

// run executes actions on the tab, aborting when either ctx or the tab ends.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// call invokes a support script function with JSON-encoded arguments.
func (p *Page) call(ctx context.Context, res any, fn string, args ...any) error {
	expr, err := expression(fn, args...)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.Evaluate(expr, res))
}

func expression(fn string, args ...any) (string, error) {
	var sb strings.Builder
	sb.WriteString("window.__reelsort." + fn + "(")
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("%s: encode argument %d: %w", fn, i, err)
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.Write(b)
	}
	sb.WriteByte(')')
	return sb.String(), nil
}

func (p *Page) callKeyed(ctx context.Context, key, fn string, args ...any) error {
	var found bool
	if err := p.call(ctx, &found, fn, args...); err != nil {
		return fmt.Errorf("%s %s: %w", fn, key, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", page.ErrNoElement, key)
	}
	return nil
}

type snapshot struct {
	HTML     string       `json:"html"`
	URL      string       `json:"url"`
	Viewport dom.Viewport `json:"viewport"`
}

// Snapshot implements page.Page.
func (p *Page) Snapshot(ctx context.Context) (*dom.Document, error) {
	var s snapshot
	if err := p.call(ctx, &s, "snapshot"); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	doc, err := dom.ParseString(s.HTML)
	if err != nil {
		return nil, err
	}
	doc.URL = s.URL
	doc.Viewport = s.Viewport
	return doc, nil
}

// ScrollBy implements page.Page.
func (p *Page) ScrollBy(ctx context.Context, dy float64) error {
	var y float64
	return p.call(ctx, &y, "scrollBy", dy)
}

// ScrollTo implements page.Page.
func (p *Page) ScrollTo(ctx context.Context, y float64) error {
	var got float64
	return p.call(ctx, &got, "scrollTo", y)
}

// SetInnerHTML implements page.Page.
func (p *Page) SetInnerHTML(ctx context.Context, key, markup string) error {
	return p.callKeyed(ctx, key, "setInner", key, markup)
}

// InsertHTML implements page.Page.
func (p *Page) InsertHTML(ctx context.Context, parentKey, markup string) error {
	return p.callKeyed(ctx, parentKey, "insert", parentKey, markup)
}

// SetStyle implements page.Page.
func (p *Page) SetStyle(ctx context.Context, key, prop, value string) error {
	return p.callKeyed(ctx, key, "setStyle", key, prop, value)
}

// Exists implements page.Page.
func (p *Page) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := p.call(ctx, &found, "exists", key)
	return found, err
}

// Observe implements page.Page. One MutationObserver is attached in the
// page while at least one Go observer is registered.
func (p *Page) Observe(ctx context.Context, fn func([]mutation.Record)) (func(), error) {
	p.mu.Lock()
	first := len(p.observers) == 0
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.mu.Unlock()

	if first {
		if err := p.call(ctx, nil, "observe"); err != nil {
			p.mu.Lock()
			delete(p.observers, id)
			p.mu.Unlock()
			return nil, fmt.Errorf("observe: %w", err)
		}
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.observers, id)
			last := len(p.observers) == 0
			p.mu.Unlock()
			if last {
				if err := p.call(context.Background(), nil, "unobserve"); err != nil {
					p.log.Debug("unobserve", "err", err)
				}
			}
		})
	}
	context.AfterFunc(ctx, stop)
	return stop, nil
}

// Observers implements page.ObserverCounter.
func (p *Page) Observers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.observers)
}

// Notify implements page.Page. The alert is scheduled so the call returns
// while the dialog is still open.
func (p *Page) Notify(ctx context.Context, message string) error {
	b, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.Evaluate(fmt.Sprintf("setTimeout(() => alert(%s), 0)", b), nil))
}

// URL implements page.Page.
func (p *Page) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

// ShowMenu implements page.Menu. The menu is re-injected after every full
// navigation until ctx ends.
func (p *Page) ShowMenu(ctx context.Context, entries []page.MenuEntry) (<-chan string, error) {
	clicks := make(chan string, 16)
	p.mu.Lock()
	p.menu = append([]page.MenuEntry(nil), entries...)
	p.clicks = clicks
	p.mu.Unlock()

	if err := p.call(ctx, nil, "menu", entries); err != nil {
		return nil, fmt.Errorf("show menu: %w", err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer func() {
			p.mu.Lock()
			if p.clicks == clicks {
				p.menu, p.clicks = nil, nil
			}
			p.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case cmd := <-clicks:
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

// SetPlaybackRate implements page.Player.
func (p *Page) SetPlaybackRate(ctx context.Context, rate float64) error {
	var n int
	return p.call(ctx, &n, "playbackRate", rate)
}

// pump delivers binding calls to observers and the menu, and re-arms the
// page side after the document is replaced.
func (p *Page) pump() {
	for {
		select {
		case <-p.tab.Done():
			return
		case e := <-p.events:
			switch {
			case e.reload:
				p.rearm()
			case e.binding == mutationBinding:
				p.dispatch(e.payload)
			case e.binding == menuBinding:
				p.mu.Lock()
				clicks := p.clicks
				p.mu.Unlock()
				if clicks == nil {
					continue
				}
				select {
				case clicks <- e.payload:
				default:
					p.log.Warn("menu click dropped", "command", e.payload)
				}
			}
		}
	}
}

func (p *Page) dispatch(payload string) {
	var records []mutation.Record
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		p.log.Warn("bad mutation payload", "err", err)
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

func (p *Page) rearm() {
	p.mu.Lock()
	observing := len(p.observers) > 0
	entries := p.menu
	p.mu.Unlock()

	ctx := context.Background()
	if observing {
		if err := p.call(ctx, nil, "observe"); err != nil {
			p.log.Warn("re-attach observer", "err", err)
		}
	}
	if len(entries) > 0 {
		if err := p.call(ctx, nil, "menu", entries); err != nil {
			p.log.Warn("re-inject menu", "err", err)
		}
	}
}
