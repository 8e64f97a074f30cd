// Package browser manages headless Chrome sessions via Rod with
// anti-detection measures applied before any navigation.
//
// A Session is short-lived: the discovery and extraction engines open one,
// drive it, and close it. Browsers are never pooled or reused across calls.
// Engines depend on the Session interface so they can be exercised against
// an in-memory fake without Chrome.
package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// desktopUA is a realistic desktop user agent; automation defaults are a
// bot-detection giveaway.
const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Session is the browsing capability consumed by the discovery and
// extraction engines.
type Session interface {
	// Navigate loads a URL and waits for network idle, bounded by the
	// configured timeout.
	Navigate(ctx context.Context, url string) error
	// NavigateRelaxed loads a URL waiting only for the load event, with no
	// timeout bound beyond ctx. Used as the retry after Navigate times out.
	NavigateRelaxed(ctx context.Context, url string) error
	// PageURL returns the current page URL after redirects.
	PageURL() string
	// Text evaluates a JS function returning a string.
	Text(ctx context.Context, js string) (string, error)
	// Strings evaluates a JS function returning an array of strings.
	Strings(ctx context.Context, js string) ([]string, error)
	// Scroll performs steps viewport-height scrolls with a delay between
	// each, to trigger lazy-loaded content.
	Scroll(ctx context.Context, steps int, delay time.Duration) error
	// ClickByText activates elements inside containerSel whose visible text
	// matches one of the phrases, falling back to a synthetic pointer event
	// when the direct click is rejected. Returns how many were activated.
	ClickByText(ctx context.Context, containerSel string, phrases []string) (int, error)
	// Close tears down the page and the browser. Always safe to call.
	Close() error
}

// Opener produces Sessions. The Rod implementation launches one Chrome per
// Open; tests substitute fakes.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// Config configures Rod-backed sessions.
type Config struct {
	// Headless controls Chrome's headless mode. Default: true.
	Headless *bool `yaml:"headless"`
	// UserAgent overrides the default desktop UA.
	UserAgent string `yaml:"user_agent"`
	// AcceptLanguage sent with requests. Default: "en-US,en;q=0.9".
	AcceptLanguage string `yaml:"accept_language"`
	// ViewportWidth/Height. Default: 1366x768.
	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`
	// NavTimeout bounds Navigate's network-idle wait. Default: 60s.
	NavTimeout time.Duration `yaml:"nav_timeout"`
	// CookieFile is an optional Puppeteer-style cookie export loaded into
	// each session before navigation. Missing file is not an error.
	CookieFile string `yaml:"cookie_file"`
}

func (c *Config) defaults() {
	if c.Headless == nil {
		v := true
		c.Headless = &v
	}
	if c.UserAgent == "" {
		c.UserAgent = desktopUA
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = "en-US,en;q=0.9"
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1366
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 768
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 60 * time.Second
	}
}

// Launcher opens Rod-backed stealth sessions.
type Launcher struct {
	cfg Config
}

// NewLauncher creates a Launcher.
func NewLauncher(cfg Config) *Launcher {
	cfg.defaults()
	return &Launcher{cfg: cfg}
}

// Open launches Chrome, creates a stealth page, and applies the fingerprint
// setup (UA, viewport, headers, cookies) before any navigation.
func (l *Launcher) Open(ctx context.Context) (Session, error) {
	s, err := openRodSession(ctx, l.cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// launch starts a local Chrome with anti-detection flags and connects Rod.
func launch(headless bool) (*rod.Browser, *launcher.Launcher, error) {
	l := launcher.New().
		Headless(headless).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage")

	u, err := l.Launch()
	if err != nil {
		return nil, nil, err
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, err
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		b.Close()
		l.Cleanup()
		return nil, nil, err
	}
	return b, l, nil
}

// stealthPage creates a page with stealth JS injected before any document
// script runs.
func stealthPage(b *rod.Browser) (*rod.Page, error) {
	return stealth.Page(b)
}
