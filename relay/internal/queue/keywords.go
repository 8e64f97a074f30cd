package queue

import (
	"strings"
	"sync"
)

// Keyword is one search term and its usage flag. Matching is always
// case-insensitive; the stored casing is whatever was first added.
type Keyword struct {
	Keyword string `json:"keyword"`
	IsUsed  bool   `json:"isUsed"`
}

// KeywordStore is the persisted list of search terms driving batch discovery.
type KeywordStore struct {
	mu   sync.Mutex
	path string
}

// NewKeywordStore creates a KeywordStore backed by the given JSON file.
func NewKeywordStore(path string) *KeywordStore {
	return &KeywordStore{path: path}
}

// All returns every keyword in store order.
func (s *KeywordStore) All() ([]Keyword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Unused returns keywords not yet searched.
func (s *KeywordStore) Unused() ([]Keyword, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	out := make([]Keyword, 0, len(all))
	for _, k := range all {
		if !k.IsUsed {
			out = append(out, k)
		}
	}
	return out, nil
}

// Add appends a keyword unless it already exists (case-insensitive).
// Reports whether the keyword was already present.
func (s *KeywordStore) Add(keyword string) (existed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return false, err
	}
	for _, k := range all {
		if strings.EqualFold(k.Keyword, keyword) {
			return true, nil
		}
	}
	all = append(all, Keyword{Keyword: keyword})
	return false, s.save(all)
}

// Delete removes a keyword (case-insensitive). Returns ErrNotFound if absent.
func (s *KeywordStore) Delete(keyword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	for i, k := range all {
		if strings.EqualFold(k.Keyword, keyword) {
			all = append(all[:i], all[i+1:]...)
			return s.save(all)
		}
	}
	return ErrNotFound
}

// MarkUsed flags the given keywords as used (case-insensitive) in one
// rewrite. Unknown keywords are ignored. Returns how many were flagged.
func (s *KeywordStore) MarkUsed(keywords []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return 0, err
	}
	marked := 0
	for i := range all {
		for _, kw := range keywords {
			if strings.EqualFold(all[i].Keyword, kw) {
				if !all[i].IsUsed {
					all[i].IsUsed = true
					marked++
				}
				break
			}
		}
	}
	if marked == 0 {
		return 0, nil
	}
	return marked, s.save(all)
}

// Clear removes every keyword.
func (s *KeywordStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(nil)
}

func (s *KeywordStore) load() ([]Keyword, error) {
	var all []Keyword
	if err := readRecords(s.path, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (s *KeywordStore) save(all []Keyword) error {
	if all == nil {
		all = []Keyword{}
	}
	return writeRecords(s.path, all)
}
