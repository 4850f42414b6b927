// Package frontier turns listing pages into new crawl targets and remembers
// which URLs a run has already dispatched.
package frontier

import (
	"sync"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
	"github.com/JakeFAU/cnblogs-search/internal/extract"
)

// Visited is a run-scoped set of dispatched URLs, safe for concurrent use.
type Visited struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

// NewVisited creates an empty set.
func NewVisited() *Visited {
	return &Visited{urls: make(map[string]struct{})}
}

// MarkIfNew records url and reports whether it was not already present.
func (v *Visited) MarkIfNew(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.urls[url]; ok {
		return false
	}
	v.urls[url] = struct{}{}
	return true
}

// Len returns the number of URLs seen so far.
func (v *Visited) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.urls)
}

// Follow emits one content target per detail URL and one listing target for
// the next page, skipping anything already dispatched in this run.
func Follow(page extract.ListingPage, visited *Visited) []crawler.CrawlTarget {
	out := make([]crawler.CrawlTarget, 0, len(page.DetailURLs)+1)
	for _, u := range page.DetailURLs {
		if u != "" && visited.MarkIfNew(u) {
			out = append(out, crawler.CrawlTarget{URL: u, Role: crawler.RoleContent})
		}
	}
	if page.NextPageURL != "" && visited.MarkIfNew(page.NextPageURL) {
		out = append(out, crawler.CrawlTarget{URL: page.NextPageURL, Role: crawler.RoleListing})
	}
	return out
}
