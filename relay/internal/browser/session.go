package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// rodSession drives one page in one dedicated Chrome process.
type rodSession struct {
	cfg     Config
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
}

func openRodSession(ctx context.Context, cfg Config) (*rodSession, error) {
	b, l, err := launch(*cfg.Headless)
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	s := &rodSession{cfg: cfg, browser: b, lnch: l}

	page, err := stealthPage(b)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: stealth page: %w", err)
	}
	s.page = page

	if err := s.applyFingerprint(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if cfg.CookieFile != "" {
		if err := s.loadCookies(cfg.CookieFile); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// applyFingerprint sets UA, viewport, and request headers. Stealth JS is
// already injected by the page constructor.
func (s *rodSession) applyFingerprint(ctx context.Context) error {
	page := s.page.Context(ctx)

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      s.cfg.UserAgent,
		AcceptLanguage: s.cfg.AcceptLanguage,
	}); err != nil {
		return fmt.Errorf("browser: set user agent: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.ViewportWidth,
		Height:            s.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("browser: set viewport: %w", err)
	}

	if _, err := page.SetExtraHeaders([]string{
		"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language", s.cfg.AcceptLanguage,
	}); err != nil {
		return fmt.Errorf("browser: set headers: %w", err)
	}
	return nil
}

// loadCookies installs a previously captured session jar. A missing file
// means the session runs unauthenticated.
func (s *rodSession) loadCookies(path string) error {
	records, err := ReadCookieFile(path)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(records))
	for _, c := range records {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, p)
	}
	if err := s.page.SetCookies(params); err != nil {
		return fmt.Errorf("browser: set cookies: %w", err)
	}
	return nil
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
	defer cancel()

	page := s.page.Context(navCtx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.WaitIdle(s.cfg.NavTimeout); err != nil {
		return fmt.Errorf("browser: wait idle %s: %w", url, err)
	}
	return nil
}

func (s *rodSession) NavigateRelaxed(ctx context.Context, url string) error {
	page := s.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load %s: %w", url, err)
	}
	return nil
}

func (s *rodSession) PageURL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (s *rodSession) Text(ctx context.Context, js string) (string, error) {
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return "", fmt.Errorf("browser: eval: %w", err)
	}
	return res.Value.Str(), nil
}

func (s *rodSession) Strings(ctx context.Context, js string) ([]string, error) {
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return nil, fmt.Errorf("browser: eval: %w", err)
	}
	arr := res.Value.Arr()
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		out = append(out, v.Str())
	}
	return out, nil
}

// Scroll pages down by ~90% of the viewport per step with a jittered delay,
// mimicking a human skim. Runs entirely in page JS.
func (s *rodSession) Scroll(ctx context.Context, steps int, delay time.Duration) error {
	js := fmt.Sprintf(`async () => {
		const distance = Math.floor(window.innerHeight * 0.9);
		for (let i = 0; i < %d; i++) {
			window.scrollBy(0, distance);
			await new Promise(r => setTimeout(r, %d + Math.floor(Math.random() * 300)));
		}
	}`, steps, delay.Milliseconds())
	if _, err := s.page.Context(ctx).Eval(js); err != nil {
		return fmt.Errorf("browser: scroll: %w", err)
	}
	return nil
}

// ClickByText finds clickable descendants of containerSel whose normalized
// text contains one of the phrases and clicks each, dispatching a synthetic
// MouseEvent when the direct click throws.
func (s *rodSession) ClickByText(ctx context.Context, containerSel string, phrases []string) (int, error) {
	phrasesJSON, err := json.Marshal(phrases)
	if err != nil {
		return 0, fmt.Errorf("browser: encode phrases: %w", err)
	}
	selJSON, err := json.Marshal(containerSel)
	if err != nil {
		return 0, fmt.Errorf("browser: encode selector: %w", err)
	}
	js := fmt.Sprintf(`() => {
		const phrases = %s.map(p => p.toLowerCase());
		const containers = Array.from(document.querySelectorAll(%s));
		let clicked = 0;
		const matches = t => {
			if (!t) return false;
			const s = t.replace(/\s+/g, ' ').trim().toLowerCase();
			return phrases.some(p => s.includes(p));
		};
		for (const container of containers) {
			const candidates = container.querySelectorAll('button, a, span, div');
			for (const c of candidates) {
				try {
					if (matches(c.innerText || '')) {
						try { c.click(); } catch (e) {
							c.dispatchEvent(new MouseEvent('click', { bubbles: true, cancelable: true }));
						}
						clicked++;
					}
				} catch (e) {}
			}
		}
		return clicked;
	}`, phrasesJSON, selJSON)

	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return 0, fmt.Errorf("browser: click by text: %w", err)
	}
	return res.Value.Int(), nil
}

// Close tears down page, browser, and the launched Chrome process. Errors
// are swallowed: teardown runs on every path, including failed opens.
func (s *rodSession) Close() error {
	if s.page != nil {
		s.page.Close()
		s.page = nil
	}
	if s.browser != nil {
		s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
	return nil
}
