package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/reelsort/internal/browser"
	"github.com/ibeckermayer/reelsort/internal/config"
)

// LoginURL is where the interactive login starts.
const LoginURL = "https://www.instagram.com/accounts/login/"

// ErrLoginTimeout is returned when the user does not finish logging in.
var ErrLoginTimeout = errors.New("login timeout exceeded")

// Manager handles Instagram authentication
type Manager struct {
	cookieStore *CookieStore
	browser     config.BrowserConfig
	timeout     time.Duration
	log         *slog.Logger
}

// NewManager creates a new auth manager
func NewManager(cookieStore *CookieStore, cfg config.BrowserConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cookieStore: cookieStore,
		browser:     cfg,
		timeout:     5 * time.Minute,
		log:         logger.With("component", "auth"),
	}
}

// IsAuthenticated checks if we have valid stored credentials
func (m *Manager) IsAuthenticated() bool {
	return m.cookieStore.IsValid()
}

// Login opens a visible browser window for the user to log in and stores
// the session cookies once the login page is left behind.
func (m *Manager) Login(ctx context.Context) error {
	headful := false
	browserCtx, cancel := browser.NewContext(ctx, m.browser, &headful)
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(LoginURL)); err != nil {
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}
	m.log.Info("waiting for login", "timeout", m.timeout)

	cookies, err := m.waitForLogin(browserCtx)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := m.cookieStore.Save(cookies); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}
	m.log.Info("logged in", "cookies", len(cookies))
	return nil
}

// waitForLogin polls until the tab has left the login flow and holds a
// session cookie.
func (m *Manager) waitForLogin(ctx context.Context) ([]*network.Cookie, error) {
	timeout := time.After(m.timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return nil, ErrLoginTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			var url string
			if err := chromedp.Run(ctx, chromedp.Location(&url)); err != nil {
				continue
			}
			if strings.Contains(url, "/accounts/login") || strings.Contains(url, "/challenge/") {
				continue
			}
			cookies, err := extractCookies(ctx)
			if err != nil {
				continue
			}
			if hasSession(cookies) {
				return cookies, nil
			}
		}
	}
}

// extractCookies gets all cookies from the browser
func extractCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	return cookies, err
}

// Logout clears stored credentials
func (m *Manager) Logout() error {
	return m.cookieStore.Clear()
}

// Cookies returns the stored instagram.com cookies.
func (m *Manager) Cookies() ([]*network.Cookie, error) {
	return m.cookieStore.InstagramCookies()
}

// Inject returns an action that sets cookies in the tab. Run it before the
// first navigation.
func Inject(cookies []*network.Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				WithSameSite(c.SameSite).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	})
}
