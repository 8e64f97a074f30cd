package queue

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLinkStore(t *testing.T) *LinkStore {
	t.Helper()
	return NewLinkStore(filepath.Join(t.TempDir(), "links.json"))
}

func TestMergeNewLinks(t *testing.T) {
	// WHAT: Merging URLs into an empty store adds them all as unused.
	// WHY: Discovery seeds the work queue through Merge.
	s := testLinkStore(t)

	res, err := s.Merge([]string{"https://a.example/q1", "https://a.example/q2", "https://a.example/q3"}, "k1")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Added != 3 || res.Duplicates != 0 || res.Total != 3 {
		t.Fatalf("result: got %+v, want 3 added, 0 dups, 3 total", res)
	}

	all, err := s.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("records: got %d, want 3", len(all))
	}
	for _, l := range all {
		if l.IsUsed {
			t.Errorf("%s: should be unused after merge", l.URL)
		}
		if l.Keyword != "k1" {
			t.Errorf("%s: keyword got %q, want k1", l.URL, l.Keyword)
		}
		if l.AddedAt.IsZero() {
			t.Errorf("%s: missing addedAt", l.URL)
		}
	}
}

func TestMergeDedup(t *testing.T) {
	// WHAT: Re-merging identical URLs adds nothing; one new URL adds one.
	// WHY: Dedup idempotence keeps the queue free of repeats.
	s := testLinkStore(t)

	urls := []string{"https://a.example/q1", "https://a.example/q2", "https://a.example/q3"}
	if _, err := s.Merge(urls, "k1"); err != nil {
		t.Fatalf("first merge: %v", err)
	}

	res, err := s.Merge(urls, "k1")
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if res.Added != 0 || res.Duplicates != 3 || res.Total != 3 {
		t.Fatalf("identical rerun: got %+v, want 0 added, 3 dups, 3 total", res)
	}

	res, err = s.Merge(append(urls, "https://a.example/q4"), "k1")
	if err != nil {
		t.Fatalf("third merge: %v", err)
	}
	if res.Added != 1 || res.Duplicates != 3 || res.Total != 4 {
		t.Fatalf("one new url: got %+v, want 1 added, 3 dups, 4 total", res)
	}
}

func TestMarkUsedByIndex(t *testing.T) {
	// WHAT: MarkUsed on index 2 of a 5-record store flips only that record.
	// WHY: The admin API addresses records by position.
	s := testLinkStore(t)
	s.Merge([]string{
		"https://a.example/q0", "https://a.example/q1", "https://a.example/q2",
		"https://a.example/q3", "https://a.example/q4",
	}, "k1")

	rec, err := s.MarkUsed("2")
	if err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if !rec.IsUsed || rec.UsedAt == nil {
		t.Fatalf("marked record: got %+v, want used with timestamp", rec)
	}

	all, _ := s.All()
	for i, l := range all {
		if i == 2 {
			if !l.IsUsed || l.UsedAt == nil {
				t.Errorf("record 2: not marked used")
			}
			continue
		}
		if l.IsUsed || l.UsedAt != nil {
			t.Errorf("record %d: changed unexpectedly", i)
		}
	}
}

func TestMarkUsedByURL(t *testing.T) {
	// WHAT: MarkUsed accepts the URL itself as identifier.
	// WHY: The scheduler marks by URL after a publish.
	s := testLinkStore(t)
	s.Merge([]string{"https://a.example/q1", "https://a.example/q2"}, "k1")

	if _, err := s.MarkUsed("https://a.example/q2"); err != nil {
		t.Fatalf("mark used: %v", err)
	}
	all, _ := s.All()
	if all[0].IsUsed || !all[1].IsUsed {
		t.Fatalf("wrong record marked: %+v", all)
	}
}

func TestMarkUsedNotFound(t *testing.T) {
	// WHAT: Out-of-range index and unknown URL both return ErrNotFound.
	// WHY: The admin API maps this to 404.
	s := testLinkStore(t)
	s.Merge([]string{"https://a.example/q1"}, "k1")

	if _, err := s.MarkUsed("5"); err != ErrNotFound {
		t.Errorf("index 5: got %v, want ErrNotFound", err)
	}
	if _, err := s.MarkUsed("https://a.example/other"); err != ErrNotFound {
		t.Errorf("unknown url: got %v, want ErrNotFound", err)
	}
}

func TestResetAll(t *testing.T) {
	// WHAT: ResetAll clears IsUsed and UsedAt on every record at once.
	// WHY: Bulk reset reopens the whole queue for republishing.
	s := testLinkStore(t)
	s.Merge([]string{
		"https://a.example/q0", "https://a.example/q1", "https://a.example/q2",
		"https://a.example/q3", "https://a.example/q4",
	}, "k1")
	s.MarkUsed("0")
	s.MarkUsed("1")
	s.MarkUsed("2")

	n, err := s.ResetAll()
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n != 5 {
		t.Fatalf("count: got %d, want 5", n)
	}
	all, _ := s.All()
	for i, l := range all {
		if l.IsUsed {
			t.Errorf("record %d: still used", i)
		}
		if l.UsedAt != nil {
			t.Errorf("record %d: retains usedAt", i)
		}
	}
}

func TestDelete(t *testing.T) {
	// WHAT: Delete removes one record by index or URL.
	// WHY: Administrative cleanup of dead links.
	s := testLinkStore(t)
	s.Merge([]string{"https://a.example/q1", "https://a.example/q2"}, "k1")

	deleted, remaining, err := s.Delete("https://a.example/q1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.URL != "https://a.example/q1" || remaining != 1 {
		t.Fatalf("got %q remaining %d, want q1 remaining 1", deleted.URL, remaining)
	}
	if _, _, err := s.Delete("nope"); err != ErrNotFound {
		t.Errorf("unknown: got %v, want ErrNotFound", err)
	}
}

func TestStats(t *testing.T) {
	// WHAT: Stats groups counts per keyword, bucketing blank keywords
	// under "unknown".
	// WHY: The admin stats endpoint reports progress per search term.
	s := testLinkStore(t)
	s.Merge([]string{"https://a.example/q1", "https://a.example/q2"}, "k1")
	s.Merge([]string{"https://a.example/q3"}, "k2")
	s.Merge([]string{"https://a.example/q4"}, "")
	s.MarkUsed("0")

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 4 || st.Used != 1 || st.Unused != 3 {
		t.Fatalf("totals: got %+v", st)
	}
	if st.ByKeyword["k1"].Total != 2 || st.ByKeyword["k1"].Used != 1 {
		t.Errorf("k1 bucket: got %+v", st.ByKeyword["k1"])
	}
	if st.ByKeyword["k2"].Unused != 1 {
		t.Errorf("k2 bucket: got %+v", st.ByKeyword["k2"])
	}
	if st.ByKeyword["unknown"].Total != 1 {
		t.Errorf("unknown bucket: got %+v", st.ByKeyword["unknown"])
	}
	if st.UsagePercentage != 25 {
		t.Errorf("usage: got %v, want 25", st.UsagePercentage)
	}
}

func TestAtomicWriteLeavesNoTemp(t *testing.T) {
	// WHAT: A completed save leaves only the store file behind.
	// WHY: The temp-then-rename discipline must clean up after itself.
	dir := t.TempDir()
	path := filepath.Join(dir, "links.json")
	s := NewLinkStore(path)
	if _, err := s.Merge([]string{"https://a.example/q1"}, "k1"); err != nil {
		t.Fatalf("merge: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "links.json" {
		t.Fatalf("dir contents: %v", entries)
	}
}

func TestLoadMissingFile(t *testing.T) {
	// WHAT: A store over a nonexistent file behaves as empty.
	// WHY: First run starts with no state on disk.
	s := NewLinkStore(filepath.Join(t.TempDir(), "absent.json"))
	all, err := s.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("records: got %d, want 0", len(all))
	}
}

func TestUsedAtMonotonic(t *testing.T) {
	// WHAT: UsedAt is present iff IsUsed, before and after reset.
	// WHY: Store invariant relied on by stats and selection.
	s := testLinkStore(t)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	s.Merge([]string{"https://a.example/q1"}, "k1")

	rec, _ := s.MarkUsed("0")
	if rec.UsedAt == nil || !rec.UsedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("usedAt: got %v", rec.UsedAt)
	}
	s.ResetAll()
	all, _ := s.All()
	if all[0].UsedAt != nil {
		t.Fatalf("usedAt after reset: got %v, want nil", all[0].UsedAt)
	}
}
