// Package discover finds candidate content links by running keyword searches
// against the target site through a browser session and merging the results
// into the link work queue.
package discover

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/mahfuzr/reposter/relay/internal/browser"
	"github.com/mahfuzr/reposter/relay/internal/queue"
)

// Mode selects the link filtering policy. The two policies serve different
// entry points and are not interchangeable: keyword matching keeps URLs whose
// text echoes the search terms, marker matching keeps URLs carrying the
// top-answer query parameter regardless of wording.
type Mode string

const (
	// ModeKeyword retains URLs containing at least one token of the search
	// keyword.
	ModeKeyword Mode = "keyword"
	// ModeMarker retains URLs carrying the answer marker query parameter.
	ModeMarker Mode = "marker"
)

// Config configures the discoverer.
type Config struct {
	// Domains maps a locale to the site base URL.
	// Default: en -> https://www.quora.com, bn -> https://bn.quora.com.
	Domains map[string]string `yaml:"domains"`
	// DefaultLocale picks the domain when the caller passes none. Default: en.
	DefaultLocale string `yaml:"default_locale"`
	// KeywordDelay is the pause between keywords in a batch run. This is
	// deliberate backpressure against bot defenses, not a tunable
	// optimization. Default: 1 minute.
	KeywordDelay time.Duration `yaml:"keyword_delay"`
	// AnswerMarker is the query parameter ModeMarker filters on.
	// Default: "topAns".
	AnswerMarker string `yaml:"answer_marker"`
}

func (c *Config) defaults() {
	if len(c.Domains) == 0 {
		c.Domains = map[string]string{
			"en": "https://www.quora.com",
			"bn": "https://bn.quora.com",
		}
	}
	if c.DefaultLocale == "" {
		c.DefaultLocale = "en"
	}
	if c.KeywordDelay <= 0 {
		c.KeywordDelay = time.Minute
	}
	if c.AnswerMarker == "" {
		c.AnswerMarker = "topAns"
	}
}

// KeywordDetail reports the outcome for one keyword in a batch.
type KeywordDetail struct {
	Keyword           string `json:"keyword"`
	LinksFound        int    `json:"linksFound"`
	NewLinksAdded     int    `json:"newLinksAdded"`
	DuplicatesSkipped int    `json:"duplicatesSkipped"`
	Error             string `json:"error,omitempty"`
}

// Summary reports the outcome of a discovery run.
type Summary struct {
	TotalLinksFound      int             `json:"totalLinksFound"`
	NewLinksAdded        int             `json:"newLinksAdded"`
	DuplicatesSkipped    int             `json:"duplicatesSkipped"`
	TotalLinksInDatabase int             `json:"totalLinksInDatabase"`
	Details              []KeywordDetail `json:"details"`
}

// Discoverer runs keyword searches and feeds the link store.
type Discoverer struct {
	opener browser.Opener
	links  *queue.LinkStore
	cfg    Config
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Discoverer.
func New(opener browser.Opener, links *queue.LinkStore, cfg Config, logger *slog.Logger) *Discoverer {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{
		opener: opener,
		links:  links,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Run discovers links for each keyword in order, merging new URLs into the
// store. Per-keyword failures are recorded in the summary and do not abort
// the remaining keywords. Between keywords the configured delay applies.
func (d *Discoverer) Run(ctx context.Context, keywords []string, locale string, mode Mode) (*Summary, error) {
	if len(keywords) == 0 {
		return nil, fmt.Errorf("discover: no keywords")
	}
	if mode == "" {
		mode = ModeKeyword
	}

	sum := &Summary{}
	for i, kw := range keywords {
		detail := KeywordDetail{Keyword: kw}

		urls, err := d.searchKeyword(ctx, kw, locale, mode)
		if err != nil {
			d.logger.Warn("discover: keyword failed", "keyword", kw, "error", err)
			detail.Error = err.Error()
			sum.Details = append(sum.Details, detail)
		} else {
			res, mErr := d.links.Merge(urls, kw)
			if mErr != nil {
				return nil, mErr
			}
			detail.LinksFound = res.Found
			detail.NewLinksAdded = res.Added
			detail.DuplicatesSkipped = res.Duplicates
			sum.TotalLinksFound += res.Found
			sum.NewLinksAdded += res.Added
			sum.DuplicatesSkipped += res.Duplicates
			sum.TotalLinksInDatabase = res.Total
			sum.Details = append(sum.Details, detail)
			d.logger.Info("discover: keyword done",
				"keyword", kw, "found", res.Found, "added", res.Added, "duplicates", res.Duplicates)
		}

		if i < len(keywords)-1 {
			if err := d.sleep(ctx, d.cfg.KeywordDelay); err != nil {
				return sum, err
			}
		}
	}

	if sum.TotalLinksInDatabase == 0 {
		// No merge ran (every keyword failed), so the total never got set.
		if all, err := d.links.All(); err == nil {
			sum.TotalLinksInDatabase = len(all)
		} else {
			d.logger.Warn("discover: read store for total", "error", err)
		}
	}
	return sum, nil
}

// searchKeyword runs one search in a fresh session and returns the filtered,
// in-run-deduplicated URLs.
func (d *Discoverer) searchKeyword(ctx context.Context, keyword, locale string, mode Mode) ([]string, error) {
	target, err := d.searchURL(keyword, locale)
	if err != nil {
		return nil, err
	}

	sess, err := d.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover: open session: %w", err)
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, target); err != nil {
		d.logger.Warn("discover: navigation timed out, retrying relaxed", "url", target, "error", err)
		if err := sess.NavigateRelaxed(ctx, target); err != nil {
			return nil, err
		}
	}

	// The result list is lazily populated; a scroll pass surfaces more
	// anchors before collection.
	if err := sess.Scroll(ctx, 5, 150*time.Millisecond); err != nil {
		d.logger.Debug("discover: scroll failed", "error", err)
	}

	hrefs, err := sess.Strings(ctx,
		`() => Array.from(document.querySelectorAll('a[href]')).map(a => a.getAttribute('href'))`)
	if err != nil {
		return nil, fmt.Errorf("discover: collect anchors: %w", err)
	}

	return FilterLinks(hrefs, sess.PageURL(), keyword, mode, d.cfg.AnswerMarker), nil
}

// searchURL builds the percent-encoded search endpoint for the locale.
func (d *Discoverer) searchURL(keyword, locale string) (string, error) {
	if locale == "" {
		locale = d.cfg.DefaultLocale
	}
	base, ok := d.cfg.Domains[locale]
	if !ok {
		base = d.cfg.Domains[d.cfg.DefaultLocale]
	}
	if base == "" {
		return "", fmt.Errorf("discover: no domain for locale %q", locale)
	}
	return base + "/search?q=" + url.QueryEscape(keyword), nil
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
