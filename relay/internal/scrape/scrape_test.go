package scrape

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mahfuzr/reposter/relay/internal/browser"
)

// fakeSession plays back a prepared page without Chrome. Eval snippets are
// routed on their shape: outerHTML means the content block, querySelectorAll
// with innerText means the block text, a bare querySelector means the title.
type fakeSession struct {
	title      string
	blockHTML  string
	blockText  string
	pageURL    string
	navErr     error
	relaxedErr error

	navigations int
	scrolls     []int
	expands     [][]string
	closed      bool
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.navigations++
	return f.navErr
}

func (f *fakeSession) NavigateRelaxed(ctx context.Context, url string) error {
	f.navigations++
	return f.relaxedErr
}

func (f *fakeSession) PageURL() string { return f.pageURL }

func (f *fakeSession) Text(ctx context.Context, js string) (string, error) {
	switch {
	case strings.Contains(js, "outerHTML"):
		return f.blockHTML, nil
	case strings.Contains(js, "querySelectorAll"):
		return f.blockText, nil
	default:
		return f.title, nil
	}
}

func (f *fakeSession) Strings(ctx context.Context, js string) ([]string, error) { return nil, nil }

func (f *fakeSession) Scroll(ctx context.Context, steps int, delay time.Duration) error {
	f.scrolls = append(f.scrolls, steps)
	return nil
}

func (f *fakeSession) ClickByText(ctx context.Context, sel string, phrases []string) (int, error) {
	f.expands = append(f.expands, phrases)
	return 1, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

type fakeOpener struct {
	sess    *fakeSession
	openErr error
}

func (o *fakeOpener) Open(ctx context.Context) (browser.Session, error) {
	if o.openErr != nil {
		return nil, o.openErr
	}
	return o.sess, nil
}

func newTestScraper(t *testing.T, sess *fakeSession) *Scraper {
	t.Helper()
	s := New(&fakeOpener{sess: sess}, Config{
		ImagesDir:   t.TempDir(),
		ScrollDelay: time.Millisecond,
		SettlePause: time.Millisecond,
	}, nil)
	return s
}

func TestScrapeFullPage(t *testing.T) {
	// WHAT: A page with title, body, and no images yields a populated
	// result with the scroll/expand cadence applied.
	// WHY: The core extraction path.
	sess := &fakeSession{
		title:     "How do I earn passive income?",
		blockHTML: "<div><p>Invest early and <b>often</b>.</p></div>",
		blockText: "Invest early and often.",
		pageURL:   "https://www.quora.com/How-do-I-earn-passive-income",
	}
	s := newTestScraper(t, sess)

	res, err := s.Scrape(context.Background(), sess.pageURL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if res.Title != "How do I earn passive income?" {
		t.Errorf("title: got %q", res.Title)
	}
	if !strings.Contains(res.Content, "Invest early") {
		t.Errorf("content: got %q", res.Content)
	}
	if res.ImageCount != 0 || res.Empty() {
		t.Errorf("result: got empty=%v images=%d", res.Empty(), res.ImageCount)
	}
	if res.ScrapedAt.IsZero() {
		t.Error("scrapedAt not stamped")
	}

	// Short pass then long pass, each followed by an expansion attempt.
	if len(sess.scrolls) != 2 || sess.scrolls[0] != 2 || sess.scrolls[1] != 8 {
		t.Errorf("scrolls: got %v, want [2 8]", sess.scrolls)
	}
	if len(sess.expands) != 2 {
		t.Errorf("expands: got %d, want 2", len(sess.expands))
	}
	if !sess.closed {
		t.Error("session not closed")
	}
}

func TestScrapeExpandPhrasesIncludeLocales(t *testing.T) {
	// WHAT: The default phrase table carries English and Bengali variants.
	// WHY: Truncation toggles are locale-specific on the bn domain.
	sess := &fakeSession{blockText: "x"}
	s := newTestScraper(t, sess)
	s.Scrape(context.Background(), "https://bn.quora.com/q")

	phrases := sess.expands[0]
	var hasEnglish, hasBengali bool
	for _, p := range phrases {
		if p == "read more" {
			hasEnglish = true
		}
		if p == "আরও পড়ুন" {
			hasBengali = true
		}
	}
	if !hasEnglish || !hasBengali {
		t.Fatalf("phrases missing locale variants: %v", phrases)
	}
}

func TestScrapeDegradedPage(t *testing.T) {
	// WHAT: Missing title and body produce an empty (but error-free)
	// result that reports Empty.
	// WHY: the scheduler relies on Empty to skip publishing hollow pages.
	sess := &fakeSession{}
	s := newTestScraper(t, sess)

	res, err := s.Scrape(context.Background(), "https://www.quora.com/gone")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if !res.Empty() {
		t.Fatalf("result: got %+v, want empty", res)
	}
	if !sess.closed {
		t.Error("session not closed")
	}
}

func TestScrapeNavRetryRelaxed(t *testing.T) {
	// WHAT: The idle-wait failure triggers one relaxed retry; if that
	// succeeds, extraction proceeds.
	// WHY: Slow pages regularly exceed the network-idle window.
	sess := &fakeSession{
		navErr:    errors.New("idle timeout"),
		blockText: "body text",
	}
	s := newTestScraper(t, sess)

	res, err := s.Scrape(context.Background(), "https://www.quora.com/slow")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if sess.navigations != 2 {
		t.Fatalf("navigations: got %d, want 2", sess.navigations)
	}
	if res.Content != "body text" {
		t.Errorf("content: got %q", res.Content)
	}
}

func TestScrapeNavTotalFailure(t *testing.T) {
	// WHAT: Both navigation attempts failing is a terminal error, with the
	// session still closed.
	// WHY: Total navigation failure is the only non-degradable outcome.
	sess := &fakeSession{
		navErr:     errors.New("idle timeout"),
		relaxedErr: errors.New("connection refused"),
	}
	s := newTestScraper(t, sess)

	if _, err := s.Scrape(context.Background(), "https://www.quora.com/dead"); err == nil {
		t.Fatal("expected error")
	}
	if !sess.closed {
		t.Error("session not closed on error path")
	}
}

func TestScrapeContentFallsBackToText(t *testing.T) {
	// WHAT: When the block HTML is empty but innerText exists, the text is
	// used as the body.
	// WHY: Degraded extraction still publishes what it can.
	sess := &fakeSession{blockText: "plain text answer"}
	s := newTestScraper(t, sess)

	res, err := s.Scrape(context.Background(), "https://www.quora.com/q")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if res.Content != "plain text answer" {
		t.Fatalf("content: got %q", res.Content)
	}
}
