package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
)

// PageStore is an in-memory page ledger keyed by document ID. Recording a
// document again replaces its row, matching the index's upsert semantics.
type PageStore struct {
	mu    sync.RWMutex
	pages map[string]crawler.PageRecord
}

// NewPageStore creates an empty ledger.
func NewPageStore() *PageStore {
	return &PageStore{pages: make(map[string]crawler.PageRecord)}
}

// RecordPage upserts the row for page.DocID.
func (s *PageStore) RecordPage(_ context.Context, page crawler.PageRecord) error {
	if page.DocID == "" {
		return fmt.Errorf("doc id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page.DocID] = page
	return nil
}

// Page returns the row for a document.
func (s *PageStore) Page(docID string) (crawler.PageRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[docID]
	return p, ok
}

// ListRun returns the rows last written by a run, ordered by document ID.
func (s *PageStore) ListRun(runID string) []crawler.PageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.PageRecord, 0)
	for _, p := range s.pages {
		if p.RunID == runID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocID < out[j].DocID })
	return out
}
