// Package scheduler drives the recurring pick-extract-publish cycle.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/mahfuzr/reposter/relay/internal/queue"
	"github.com/mahfuzr/reposter/relay/internal/scrape"
)

// Config configures the scheduler.
type Config struct {
	// Interval between posting ticks. Default: 30 minutes.
	Interval time.Duration `yaml:"interval"`
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Minute
	}
}

// LinkSource is the slice of the link queue the scheduler needs.
type LinkSource interface {
	Unused() ([]queue.Link, error)
	MarkUsed(identifier string) (*queue.Link, error)
}

// Extractor pulls the content of one link.
type Extractor func(ctx context.Context, url string) (*scrape.Result, error)

// Poster publishes extracted content and returns the platform post ID.
type Poster func(ctx context.Context, res *scrape.Result) (string, error)

// Recorder is notified after a successful publish. May be nil.
type Recorder func(ctx context.Context, res *scrape.Result, postID string)

// Scheduler runs one posting tick per interval.
type Scheduler struct {
	links   LinkSource
	extract Extractor
	post    Poster
	record  Recorder
	config  Config
	logger  *slog.Logger

	// running guards against overlapping ticks when a cycle outlasts the
	// interval.
	running atomic.Bool

	// pick is swappable in tests.
	pick func(n int) int
}

// New creates a Scheduler.
func New(links LinkSource, extract Extractor, post Poster, record Recorder, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		links:   links,
		extract: extract,
		post:    post,
		record:  record,
		config:  cfg,
		logger:  logger,
		pick:    rand.IntN,
	}
}

// Run ticks on the configured interval. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run once immediately on start.
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one cycle: pick a random unused link, extract, publish, mark
// used. Every failure is logged and contained; the loop itself never dies.
// An overlapping tick is skipped outright.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("scheduler: previous cycle still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	link, ok := s.pickUnused()
	if !ok {
		return
	}

	res, err := s.extract(ctx, link.URL)
	if err != nil {
		s.logger.Error("scheduler: extract failed", "url", link.URL, "error", err)
		return
	}
	if res.Empty() {
		// Nothing worth posting. The link stays unused so a later cycle
		// can retry it.
		s.logger.Warn("scheduler: no content extracted, skipping", "url", link.URL)
		return
	}

	postID, err := s.post(ctx, res)
	if err != nil {
		s.logger.Error("scheduler: publish failed", "url", link.URL, "error", err)
		return
	}

	if _, err := s.links.MarkUsed(link.URL); err != nil {
		s.logger.Error("scheduler: mark used failed", "url", link.URL, "error", err)
	}
	if s.record != nil {
		s.record(ctx, res, postID)
	}
	s.logger.Info("scheduler: published", "url", link.URL, "post_id", postID, "images", res.ImageCount)
}

// pickUnused selects one unused link uniformly at random.
func (s *Scheduler) pickUnused() (queue.Link, bool) {
	unused, err := s.links.Unused()
	if err != nil {
		s.logger.Error("scheduler: load unused links", "error", err)
		return queue.Link{}, false
	}
	if len(unused) == 0 {
		s.logger.Info("scheduler: no unused links, nothing to post")
		return queue.Link{}, false
	}
	return unused[s.pick(len(unused))], true
}
