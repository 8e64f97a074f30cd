// Package scrape drives a stealth browser session through navigation,
// lazy-content expansion, and structured extraction of title, body, and
// images from a single content page.
//
// Extraction degrades instead of failing: a missing title, an empty body, or
// a broken image each leave their field empty without aborting the others.
// Only total navigation failure is terminal.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mahfuzr/reposter/relay/internal/browser"
)

// Default selectors for the target site's question markup.
const (
	defaultTitleSelector   = ".q-text.puppeteer_test_question_title"
	defaultContentSelector = ".q-box.spacing_log_answer_content.puppeteer_test_answer_content"
)

// defaultExpandPhrases match the visible text of truncation toggles, in
// English and Bengali.
var defaultExpandPhrases = []string{
	"see more", "more", "read more", "... more", "view more",
	"আরও", "আরও দেখুন", "বিস্তারিত", "পুরোটা পড়ুন", "আরও পড়ুন",
}

// Config configures the extraction engine.
type Config struct {
	// TitleSelector locates the page title element.
	TitleSelector string `yaml:"title_selector"`
	// ContentSelector locates answer blocks; the first one is extracted.
	ContentSelector string `yaml:"content_selector"`
	// ExpandPhrases is the locale-aware phrase table for "read more"
	// toggles.
	ExpandPhrases []string `yaml:"expand_phrases"`
	// ImagesDir receives downloaded images. Default: downloaded_images.
	ImagesDir string `yaml:"images_dir"`
	// ImageTimeout bounds each image fetch. Default: 30s.
	ImageTimeout time.Duration `yaml:"image_timeout"`
	// ImageMaxBytes caps each image body. Default: 10MB.
	ImageMaxBytes int64 `yaml:"image_max_bytes"`

	// Scroll cadence: a short pass to settle the page, then a long pass to
	// trigger lazy-loaded sections. Each pass is followed by an expansion
	// attempt and a settle pause.
	ShortScrollSteps int           `yaml:"short_scroll_steps"`
	LongScrollSteps  int           `yaml:"long_scroll_steps"`
	ScrollDelay      time.Duration `yaml:"scroll_delay"`
	SettlePause      time.Duration `yaml:"settle_pause"`
}

func (c *Config) defaults() {
	if c.TitleSelector == "" {
		c.TitleSelector = defaultTitleSelector
	}
	if c.ContentSelector == "" {
		c.ContentSelector = defaultContentSelector
	}
	if len(c.ExpandPhrases) == 0 {
		c.ExpandPhrases = defaultExpandPhrases
	}
	if c.ImagesDir == "" {
		c.ImagesDir = "downloaded_images"
	}
	if c.ImageTimeout <= 0 {
		c.ImageTimeout = 30 * time.Second
	}
	if c.ImageMaxBytes <= 0 {
		c.ImageMaxBytes = 10 * 1024 * 1024
	}
	if c.ShortScrollSteps <= 0 {
		c.ShortScrollSteps = 2
	}
	if c.LongScrollSteps <= 0 {
		c.LongScrollSteps = 8
	}
	if c.ScrollDelay <= 0 {
		c.ScrollDelay = 700 * time.Millisecond
	}
	if c.SettlePause <= 0 {
		c.SettlePause = time.Second
	}
}

// Result is the outcome of one extraction. Not persisted; it lives only as
// input to the publisher within the current run.
type Result struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Images     []string  `json:"images"`
	ImageCount int       `json:"imageCount"`
	ScrapedAt  time.Time `json:"scrapedAt"`
}

// Empty reports whether the extraction produced nothing publishable. The
// caller treats this as a skip signal; the source link stays unused.
func (r *Result) Empty() bool {
	return r.Content == "" && r.ImageCount == 0
}

// Scraper extracts content from single pages.
type Scraper struct {
	opener    browser.Opener
	cfg       Config
	logger    *slog.Logger
	converter *bodyConverter
	images    *imageSaver
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration)
}

// New creates a Scraper.
func New(opener browser.Opener, cfg Config, logger *slog.Logger) *Scraper {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		opener:    opener,
		cfg:       cfg,
		logger:    logger,
		converter: newBodyConverter(),
		images:    newImageSaver(cfg.ImagesDir, cfg.ImageTimeout, cfg.ImageMaxBytes, logger),
		now:       time.Now,
		sleep:     pause,
	}
}

// Scrape extracts title, body, and images from the page at pageURL. The
// session is closed on every path. Partial results are returned as-is; only
// navigation failure after the relaxed retry returns an error.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (*Result, error) {
	log := s.logger.With("url", pageURL)

	sess, err := s.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("scrape: open session: %w", err)
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, pageURL); err != nil {
		log.Warn("scrape: navigation timed out, retrying relaxed", "error", err)
		if err := sess.NavigateRelaxed(ctx, pageURL); err != nil {
			return nil, fmt.Errorf("scrape: navigate: %w", err)
		}
	}

	s.revealContent(ctx, sess, log)

	result := &Result{URL: pageURL, ScrapedAt: s.now()}

	title, err := sess.Text(ctx, selectorText(s.cfg.TitleSelector))
	if err != nil {
		log.Warn("scrape: title extraction failed", "error", err)
	}
	result.Title = title

	blockHTML, err := sess.Text(ctx, firstBlockHTML(s.cfg.ContentSelector))
	if err != nil {
		log.Warn("scrape: content block extraction failed", "error", err)
	}
	blockText, err := sess.Text(ctx, firstBlockText(s.cfg.ContentSelector))
	if err != nil {
		log.Warn("scrape: content text extraction failed", "error", err)
	}
	result.Content = s.converter.Convert(blockHTML, pageURL, blockText)

	refs := ExtractImageRefs(blockHTML)
	if len(refs) > 0 {
		log.Info("scrape: found images", "count", len(refs))
	}
	result.Images = s.images.SaveAll(ctx, refs, sess.PageURL(), s.now().UnixMilli())
	result.ImageCount = len(result.Images)

	log.Info("scrape: done",
		"title_chars", len(result.Title),
		"content_chars", len(result.Content),
		"images", result.ImageCount)
	return result, nil
}

// revealContent runs the scroll/expand cadence: a short pass, expansion, a
// longer bounded pass to trigger lazy loads, and a second expansion. Every
// step tolerates failure.
func (s *Scraper) revealContent(ctx context.Context, sess browser.Session, log *slog.Logger) {
	if err := sess.Scroll(ctx, s.cfg.ShortScrollSteps, s.cfg.ScrollDelay); err != nil {
		log.Debug("scrape: short scroll failed", "error", err)
	}
	if n, err := sess.ClickByText(ctx, s.cfg.ContentSelector, s.cfg.ExpandPhrases); err != nil {
		log.Debug("scrape: expand failed", "error", err)
	} else if n > 0 {
		log.Debug("scrape: expanded elements", "count", n)
	}
	s.sleep(ctx, s.cfg.SettlePause)

	if err := sess.Scroll(ctx, s.cfg.LongScrollSteps, s.cfg.ScrollDelay); err != nil {
		log.Debug("scrape: long scroll failed", "error", err)
	}
	if _, err := sess.ClickByText(ctx, s.cfg.ContentSelector, s.cfg.ExpandPhrases); err != nil {
		log.Debug("scrape: second expand failed", "error", err)
	}
	s.sleep(ctx, s.cfg.SettlePause)
}

// selectorText returns JS yielding the trimmed innerText of the first match,
// or the empty string.
func selectorText(sel string) string {
	return fmt.Sprintf(`() => {
		const el = document.querySelector(%q);
		return el ? el.innerText.trim() : '';
	}`, sel)
}

// firstBlockHTML returns JS yielding the outer HTML of the first match.
func firstBlockHTML(sel string) string {
	return fmt.Sprintf(`() => {
		const els = document.querySelectorAll(%q);
		return els.length ? els[0].outerHTML : '';
	}`, sel)
}

// firstBlockText returns JS yielding the trimmed innerText of the first
// match.
func firstBlockText(sel string) string {
	return fmt.Sprintf(`() => {
		const els = document.querySelectorAll(%q);
		return els.length ? els[0].innerText.trim() : '';
	}`, sel)
}

func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
