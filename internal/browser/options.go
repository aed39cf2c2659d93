// Package browser builds the chromedp allocator every Chrome tab is started
// with, so the feed tab, the login window and bot-test share one fingerprint.
package browser

import (
	"context"

	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/reelsort/internal/config"
)

// DefaultUserAgent is a realistic Chrome user agent
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Options returns allocator options for cfg. headless overrides cfg.Headless
// when non-nil; the login window is always shown.
func Options(cfg config.BrowserConfig, headless *bool) []chromedp.ExecAllocatorOption {
	h := cfg.Headless
	if headless != nil {
		h = *headless
	}
	w, ht := cfg.WindowWidth, cfg.WindowHeight
	if w <= 0 || ht <= 0 {
		w, ht = 1280, 900
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", h),

		// Keeps navigator.webdriver false.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(DefaultUserAgent),
		chromedp.WindowSize(w, ht),

		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		// Reels autoplay with sound.
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if h {
		opts = append(opts, chromedp.Flag("disable-gpu", true))
	}
	return opts
}

// NewContext starts a browser for cfg and returns a tab context. cancel
// closes the tab and shuts the browser down.
func NewContext(parent context.Context, cfg config.BrowserConfig, headless *bool) (context.Context, context.CancelFunc) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, Options(cfg, headless)...)
	ctx, tabCancel := chromedp.NewContext(allocCtx)
	return ctx, func() {
		tabCancel()
		allocCancel()
	}
}
