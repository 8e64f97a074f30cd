package queue

import (
	"strconv"
	"sync"
	"time"
)

// Link is one discovered URL in the work queue. The JSON field names match
// the on-disk format produced by earlier versions of this system, so existing
// links files keep working.
type Link struct {
	URL     string     `json:"link"`
	Keyword string     `json:"keyword,omitempty"`
	IsUsed  bool       `json:"isUsed"`
	AddedAt time.Time  `json:"addedAt"`
	UsedAt  *time.Time `json:"usedAt,omitempty"`
}

// KeywordCount aggregates link counts for one keyword bucket.
type KeywordCount struct {
	Total  int `json:"total"`
	Used   int `json:"used"`
	Unused int `json:"unused"`
}

// Stats summarizes the link store.
type Stats struct {
	Total           int                     `json:"total"`
	Used            int                     `json:"used"`
	Unused          int                     `json:"unused"`
	UsagePercentage float64                 `json:"usagePercentage"`
	ByKeyword       map[string]KeywordCount `json:"byKeyword"`
}

// MergeResult reports the outcome of merging one batch of URLs.
type MergeResult struct {
	Found      int
	Added      int
	Duplicates int
	Total      int
}

// LinkStore is the persisted work queue of discovered links.
type LinkStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewLinkStore creates a LinkStore backed by the given JSON file.
func NewLinkStore(path string) *LinkStore {
	return &LinkStore{path: path, now: time.Now}
}

// All returns every record in store order.
func (s *LinkStore) All() ([]Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Unused returns records not yet published.
func (s *LinkStore) Unused() ([]Link, error) {
	return s.filter(false)
}

// Used returns records already published.
func (s *LinkStore) Used() ([]Link, error) {
	return s.filter(true)
}

func (s *LinkStore) filter(used bool) ([]Link, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	out := make([]Link, 0, len(all))
	for _, l := range all {
		if l.IsUsed == used {
			out = append(out, l)
		}
	}
	return out, nil
}

// Stats aggregates totals and a per-keyword breakdown. Links without a
// keyword fall into the "unknown" bucket.
func (s *LinkStore) Stats() (*Stats, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	st := &Stats{Total: len(all), ByKeyword: make(map[string]KeywordCount)}
	for _, l := range all {
		kw := l.Keyword
		if kw == "" {
			kw = "unknown"
		}
		c := st.ByKeyword[kw]
		c.Total++
		if l.IsUsed {
			st.Used++
			c.Used++
		} else {
			st.Unused++
			c.Unused++
		}
		st.ByKeyword[kw] = c
	}
	if st.Total > 0 {
		st.UsagePercentage = float64(st.Used) / float64(st.Total) * 100
	}
	return st, nil
}

// Merge appends the URLs that are not already present, each stamped unused
// with the source keyword, and persists the result in one rewrite.
func (s *LinkStore) Merge(urls []string, keyword string) (*MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(all))
	for _, l := range all {
		existing[l.URL] = true
	}

	res := &MergeResult{Found: len(urls)}
	now := s.now()
	for _, u := range urls {
		if existing[u] {
			res.Duplicates++
			continue
		}
		existing[u] = true
		all = append(all, Link{URL: u, Keyword: keyword, AddedAt: now})
		res.Added++
	}
	res.Total = len(all)

	if res.Added > 0 {
		if err := s.save(all); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// MarkUsed flips one record to used and stamps UsedAt. The identifier is
// either a zero-based position in the store or the URL itself.
func (s *LinkStore) MarkUsed(identifier string) (*Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	i, err2 := s.resolve(all, identifier)
	if err2 != nil {
		return nil, err2
	}
	now := s.now()
	all[i].IsUsed = true
	all[i].UsedAt = &now
	if err := s.save(all); err != nil {
		return nil, err
	}
	rec := all[i]
	return &rec, nil
}

// Delete removes one record. Same identifier resolution as MarkUsed.
// Returns the deleted record and the remaining count.
func (s *LinkStore) Delete(identifier string) (*Link, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, 0, err
	}
	i, err2 := s.resolve(all, identifier)
	if err2 != nil {
		return nil, len(all), err2
	}
	deleted := all[i]
	all = append(all[:i], all[i+1:]...)
	if err := s.save(all); err != nil {
		return nil, 0, err
	}
	return &deleted, len(all), nil
}

// ResetAll marks every record unused and clears every UsedAt in a single
// rewrite.
func (s *LinkStore) ResetAll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return 0, err
	}
	for i := range all {
		all[i].IsUsed = false
		all[i].UsedAt = nil
	}
	if err := s.save(all); err != nil {
		return 0, err
	}
	return len(all), nil
}

// resolve maps a numeric index or a URL to a position in all.
func (s *LinkStore) resolve(all []Link, identifier string) (int, error) {
	if n, err := strconv.Atoi(identifier); err == nil {
		if n < 0 || n >= len(all) {
			return 0, ErrNotFound
		}
		return n, nil
	}
	for i, l := range all {
		if l.URL == identifier {
			return i, nil
		}
	}
	return 0, ErrNotFound
}

func (s *LinkStore) load() ([]Link, error) {
	var all []Link
	if err := readRecords(s.path, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (s *LinkStore) save(all []Link) error {
	if all == nil {
		all = []Link{}
	}
	return writeRecords(s.path, all)
}
