package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mahfuzr/reposter/relay/internal/browser"
	"github.com/mahfuzr/reposter/relay/internal/discover"
	"github.com/mahfuzr/reposter/relay/internal/history"
	"github.com/mahfuzr/reposter/relay/internal/publish"
	"github.com/mahfuzr/reposter/relay/internal/queue"
	"github.com/mahfuzr/reposter/relay/internal/scheduler"
	"github.com/mahfuzr/reposter/relay/internal/scrape"
)

// Service is the relay orchestrator. It owns the queues, the browser-backed
// discoverer and scraper, the publisher, the scheduler, and the publish
// history.
type Service struct {
	links    *queue.LinkStore
	keywords *queue.KeywordStore

	discoverer *discover.Discoverer
	scraper    *scrape.Scraper
	publisher  *publish.Publisher
	scheduler  *scheduler.Scheduler
	history    *history.Store

	mode   discover.Mode
	logger *slog.Logger
	config *Config

	wg sync.WaitGroup
}

// ServiceOption customises Service construction.
type ServiceOption func(*serviceDeps)

type serviceDeps struct {
	opener  browser.Opener
	history *history.Store
}

// WithOpener replaces the Rod browser launcher, letting tests run the full
// pipeline without Chrome.
func WithOpener(o browser.Opener) ServiceOption {
	return func(d *serviceDeps) { d.opener = o }
}

// WithHistory injects an already-open history store.
func WithHistory(h *history.Store) ServiceOption {
	return func(d *serviceDeps) { d.history = h }
}

// New creates a relay Service. Facebook credentials are required; everything
// else defaults.
func New(cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var deps serviceDeps
	for _, opt := range opts {
		opt(&deps)
	}
	if deps.opener == nil {
		deps.opener = browser.NewLauncher(cfg.Browser)
	}
	if deps.history == nil && cfg.HistoryFile != "" {
		h, err := history.Open(cfg.HistoryFile)
		if err != nil {
			return nil, fmt.Errorf("relay: open history: %w", err)
		}
		deps.history = h
	}

	links := queue.NewLinkStore(cfg.LinksFile)
	keywords := queue.NewKeywordStore(cfg.KeywordsFile)

	publisher, err := publish.New(cfg.Facebook, logger.With("component", "publish"))
	if err != nil {
		return nil, err
	}

	svc := &Service{
		links:      links,
		keywords:   keywords,
		discoverer: discover.New(deps.opener, links, cfg.Discover, logger.With("component", "discover")),
		scraper:    scrape.New(deps.opener, cfg.Scrape, logger.With("component", "scrape")),
		publisher:  publisher,
		history:    deps.history,
		mode:       discover.Mode(cfg.FilterMode),
		logger:     logger,
		config:     cfg,
	}
	svc.scheduler = scheduler.New(links, svc.extract, svc.post, svc.recordHistory,
		cfg.Scheduler, logger.With("component", "scheduler"))
	return svc, nil
}

// Start launches the posting scheduler. It returns immediately; the
// scheduler stops when ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.scheduler.Run(ctx)
	}()
	s.logger.Info("relay: scheduler started", "interval", s.config.Scheduler.Interval)
}

// Close waits for the scheduler to stop and releases resources. Call after
// cancelling the Start context.
func (s *Service) Close() error {
	s.wg.Wait()
	if s.history != nil {
		return s.history.Close()
	}
	return nil
}

// RunOnce performs a single posting cycle outside the schedule.
func (s *Service) RunOnce(ctx context.Context) {
	s.scheduler.Tick(ctx)
}

// extract adapts the scraper for the scheduler.
func (s *Service) extract(ctx context.Context, url string) (*scrape.Result, error) {
	return s.scraper.Scrape(ctx, url)
}

// post adapts the publisher for the scheduler.
func (s *Service) post(ctx context.Context, res *scrape.Result) (string, error) {
	return s.publisher.Publish(ctx, publish.Content{
		Title:     res.Title,
		Body:      res.Content,
		SourceURL: res.URL,
		Images:    res.Images,
	})
}

// recordHistory stores a successful publish. Failures are logged only; the
// post already went out.
func (s *Service) recordHistory(ctx context.Context, res *scrape.Result, postID string) {
	if s.history == nil {
		return
	}
	err := s.history.Record(ctx, &history.Entry{
		LinkURL:      res.URL,
		Title:        res.Title,
		PostID:       postID,
		ImageCount:   res.ImageCount,
		MessageChars: utf8.RuneCountInString(res.Content),
	})
	if err != nil {
		s.logger.Error("relay: record history", "url", res.URL, "error", err)
	}
}

// Discover runs a discovery pass over the given keywords and merges the
// results into the link queue.
func (s *Service) Discover(ctx context.Context, keywords []string, locale string) (*DiscoverSummary, error) {
	cleaned := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: no keywords", ErrInvalidInput)
	}
	return s.discoverer.Run(ctx, cleaned, locale, s.mode)
}

// DiscoverAllUnused runs discovery over every unused keyword in the queue
// and marks the keywords used once the pass completes.
func (s *Service) DiscoverAllUnused(ctx context.Context, locale string) (*DiscoverSummary, error) {
	unused, err := s.keywords.Unused()
	if err != nil {
		return nil, err
	}
	if len(unused) == 0 {
		return nil, fmt.Errorf("%w: no unused keywords", ErrInvalidInput)
	}
	terms := make([]string, len(unused))
	for i, k := range unused {
		terms[i] = k.Keyword
	}

	summary, err := s.discoverer.Run(ctx, terms, locale, s.mode)
	if err != nil {
		return nil, err
	}
	if n, err := s.keywords.MarkUsed(terms); err != nil {
		s.logger.Error("relay: mark keywords used", "error", err)
	} else {
		s.logger.Info("relay: keywords consumed", "count", n)
	}
	return summary, nil
}

// Extract scrapes one URL without publishing. Used by the admin API for
// dry runs.
func (s *Service) Extract(ctx context.Context, url string) (*ScrapeResult, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: empty url", ErrInvalidInput)
	}
	return s.scraper.Scrape(ctx, url)
}

// Keyword queue passthroughs.

func (s *Service) Keywords() ([]Keyword, error)       { return s.keywords.All() }
func (s *Service) UnusedKeywords() ([]Keyword, error) { return s.keywords.Unused() }
func (s *Service) AddKeyword(k string) (bool, error)  { return s.keywords.Add(k) }
func (s *Service) DeleteKeyword(k string) error       { return s.keywords.Delete(k) }
func (s *Service) ClearKeywords() error               { return s.keywords.Clear() }

// Link queue passthroughs.

func (s *Service) Links() ([]Link, error)         { return s.links.All() }
func (s *Service) UnusedLinks() ([]Link, error)   { return s.links.Unused() }
func (s *Service) UsedLinks() ([]Link, error)     { return s.links.Used() }
func (s *Service) LinkStats() (*LinkStats, error) { return s.links.Stats() }
func (s *Service) ResetAllLinks() (int, error)    { return s.links.ResetAll() }

// MarkLinkUsed marks one link used by index or URL.
func (s *Service) MarkLinkUsed(identifier string) (*Link, error) {
	return s.links.MarkUsed(identifier)
}

// DeleteLink removes one link by index or URL, returning it and the new
// queue size.
func (s *Service) DeleteLink(identifier string) (*Link, int, error) {
	return s.links.Delete(identifier)
}

// History returns recent publish records, newest first. Returns nil when
// history is disabled.
func (s *Service) History(ctx context.Context, limit int) ([]*HistoryEntry, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.List(ctx, limit)
}
