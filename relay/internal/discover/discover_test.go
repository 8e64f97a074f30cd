package discover

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mahfuzr/reposter/relay/internal/browser"
	"github.com/mahfuzr/reposter/relay/internal/queue"
)

// fakeSession serves canned anchors without a real browser.
type fakeSession struct {
	pageURL    string
	hrefs      []string
	navErr     error
	relaxedErr error

	navigated []string
	closed    bool
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	return f.navErr
}

func (f *fakeSession) NavigateRelaxed(ctx context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	return f.relaxedErr
}

func (f *fakeSession) PageURL() string { return f.pageURL }

func (f *fakeSession) Text(ctx context.Context, js string) (string, error) { return "", nil }

func (f *fakeSession) Strings(ctx context.Context, js string) ([]string, error) {
	return f.hrefs, nil
}

func (f *fakeSession) Scroll(ctx context.Context, steps int, delay time.Duration) error {
	return nil
}

func (f *fakeSession) ClickByText(ctx context.Context, sel string, phrases []string) (int, error) {
	return 0, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

// fakeOpener hands out one prepared session per keyword, in order.
type fakeOpener struct {
	sessions []*fakeSession
	openErr  error
	next     int
}

func (o *fakeOpener) Open(ctx context.Context) (browser.Session, error) {
	if o.openErr != nil {
		return nil, o.openErr
	}
	if o.next >= len(o.sessions) {
		return nil, errors.New("no more sessions")
	}
	s := o.sessions[o.next]
	o.next++
	return s, nil
}

func newTestDiscoverer(t *testing.T, opener browser.Opener) (*Discoverer, *queue.LinkStore) {
	t.Helper()
	links := queue.NewLinkStore(filepath.Join(t.TempDir(), "links.json"))
	d := New(opener, links, Config{KeywordDelay: time.Millisecond}, nil)
	return d, links
}

func TestRunSingleKeyword(t *testing.T) {
	// WHAT: One keyword run collects, filters, and merges matching links.
	// WHY: an empty store plus three unique URLs must make exactly three
	// unused records.
	sess := &fakeSession{
		pageURL: "https://www.quora.com/search?q=passive+income",
		hrefs: []string{
			"/What-is-passive-income",
			"https://www.quora.com/How-to-build-passive-income-streams",
			"/Best-passive-investments",
			"/profile/Some-User",      // profile excluded
			"/Unrelated-question",     // no token match
			"mailto:someone@x.test",   // not http(s)
			"/What-is-passive-income", // in-run duplicate
		},
	}
	d, links := newTestDiscoverer(t, &fakeOpener{sessions: []*fakeSession{sess}})

	sum, err := d.Run(context.Background(), []string{"passive income"}, "", ModeKeyword)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.TotalLinksFound != 3 || sum.NewLinksAdded != 3 || sum.DuplicatesSkipped != 0 {
		t.Fatalf("summary: got %+v", sum)
	}
	if !sess.closed {
		t.Error("session not closed")
	}

	all, _ := links.All()
	if len(all) != 3 {
		t.Fatalf("store: got %d records, want 3", len(all))
	}
	for _, l := range all {
		if l.IsUsed {
			t.Errorf("%s: should be unused", l.URL)
		}
		if l.Keyword != "passive income" {
			t.Errorf("%s: keyword got %q", l.URL, l.Keyword)
		}
	}
}

func TestRunDedupAcrossRuns(t *testing.T) {
	// WHAT: A rerun with three known URLs plus one new adds exactly one.
	// WHY: rediscovering known URLs must never inflate the store.
	first := &fakeSession{
		pageURL: "https://www.quora.com/search?q=k1",
		hrefs:   []string{"/k1-a", "/k1-b", "/k1-c"},
	}
	second := &fakeSession{
		pageURL: "https://www.quora.com/search?q=k1",
		hrefs:   []string{"/k1-a", "/k1-b", "/k1-c", "/k1-d"},
	}
	d, links := newTestDiscoverer(t, &fakeOpener{sessions: []*fakeSession{first, second}})

	if _, err := d.Run(context.Background(), []string{"k1"}, "", ModeKeyword); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sum, err := d.Run(context.Background(), []string{"k1"}, "", ModeKeyword)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.NewLinksAdded != 1 || sum.DuplicatesSkipped != 3 {
		t.Fatalf("summary: got %+v, want 1 new, 3 duplicates", sum)
	}
	if sum.TotalLinksInDatabase != 4 {
		t.Fatalf("total: got %d, want 4", sum.TotalLinksInDatabase)
	}
	all, _ := links.All()
	if len(all) != 4 {
		t.Fatalf("store: got %d records, want 4", len(all))
	}
}

func TestRunKeywordErrorIsolated(t *testing.T) {
	// WHAT: A navigation failure for one keyword is recorded with zero
	// counts and the remaining keywords still run.
	// WHY: Batch discovery must not abort on one bad search.
	boom := errors.New("nav failed")
	bad := &fakeSession{navErr: boom, relaxedErr: boom}
	good := &fakeSession{
		pageURL: "https://www.quora.com/search?q=k2",
		hrefs:   []string{"/k2-question"},
	}
	d, _ := newTestDiscoverer(t, &fakeOpener{sessions: []*fakeSession{bad, good}})

	sum, err := d.Run(context.Background(), []string{"k1", "k2"}, "", ModeKeyword)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sum.Details) != 2 {
		t.Fatalf("details: got %d, want 2", len(sum.Details))
	}
	if sum.Details[0].Error == "" || sum.Details[0].LinksFound != 0 {
		t.Errorf("k1 detail: got %+v, want recorded error with zero counts", sum.Details[0])
	}
	if sum.Details[1].NewLinksAdded != 1 {
		t.Errorf("k2 detail: got %+v, want 1 added", sum.Details[1])
	}
	if !bad.closed {
		t.Error("failed session not closed")
	}
}

func TestRunAllKeywordsFailedReportsTotal(t *testing.T) {
	// WHAT: When every keyword fails, the summary still reports the store's
	// current size from a fresh read.
	// WHY: Callers show the total after a run; a failed batch must not make
	// a populated store look empty.
	links := queue.NewLinkStore(filepath.Join(t.TempDir(), "links.json"))
	if _, err := links.Merge([]string{"https://www.quora.com/a", "https://www.quora.com/b"}, "old"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	d := New(&fakeOpener{openErr: errors.New("chrome gone")}, links,
		Config{KeywordDelay: time.Millisecond}, nil)

	sum, err := d.Run(context.Background(), []string{"k1"}, "", ModeKeyword)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Details[0].Error == "" {
		t.Fatalf("detail: got %+v, want recorded error", sum.Details[0])
	}
	if sum.TotalLinksInDatabase != 2 {
		t.Fatalf("total: got %d, want 2", sum.TotalLinksInDatabase)
	}
}

func TestRunRelaxedRetry(t *testing.T) {
	// WHAT: When the idle-wait navigation fails, the relaxed retry still
	// yields results.
	// WHY: The site frequently keeps connections open past the idle window.
	sess := &fakeSession{
		pageURL: "https://www.quora.com/search?q=k1",
		hrefs:   []string{"/k1-question"},
		navErr:  errors.New("timeout"),
	}
	d, _ := newTestDiscoverer(t, &fakeOpener{sessions: []*fakeSession{sess}})

	sum, err := d.Run(context.Background(), []string{"k1"}, "", ModeKeyword)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.NewLinksAdded != 1 {
		t.Fatalf("summary: got %+v, want 1 added", sum)
	}
	if len(sess.navigated) != 2 {
		t.Fatalf("navigations: got %d, want 2 (primary + relaxed)", len(sess.navigated))
	}
}

func TestRunDelayCancellable(t *testing.T) {
	// WHAT: Cancelling the context during the inter-keyword delay stops the
	// batch and returns the partial summary.
	// WHY: Shutdown must not hang for the rate-limit minute.
	sess := &fakeSession{pageURL: "https://www.quora.com/search?q=k1", hrefs: []string{"/k1-q"}}
	links := queue.NewLinkStore(filepath.Join(t.TempDir(), "links.json"))
	d := New(&fakeOpener{sessions: []*fakeSession{sess}}, links, Config{KeywordDelay: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	sum, err := d.Run(ctx, []string{"k1", "k2"}, "", ModeKeyword)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err: got %v, want context.Canceled", err)
	}
	if sum == nil || sum.NewLinksAdded != 1 {
		t.Fatalf("partial summary: got %+v", sum)
	}
}

func TestSearchURLLocale(t *testing.T) {
	// WHAT: The locale selects the search domain; the keyword is
	// percent-encoded.
	// WHY: The bn variant targets a different host.
	d := New(nil, nil, Config{}, nil)

	u, err := d.searchURL("earn money", "bn")
	if err != nil {
		t.Fatalf("searchURL: %v", err)
	}
	if u != "https://bn.quora.com/search?q=earn+money" {
		t.Fatalf("url: got %q", u)
	}
	u, _ = d.searchURL("earn money", "")
	if u != "https://www.quora.com/search?q=earn+money" {
		t.Fatalf("default locale url: got %q", u)
	}
}
