package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
	"github.com/JakeFAU/cnblogs-search/internal/frontier"
)

// Run is the state shared by every worker of one crawl: the URL dedup set,
// the single writer handle and the queue. It closes the queue once no
// submitted target is pending, which lets workers exit on their own.
type Run struct {
	ID      string
	Visited *frontier.Visited
	Writer  crawler.DocumentWriter

	queue    crawler.Queue
	maxPages int64

	pending    atomic.Int64
	dispatched atomic.Int64

	listingPages   atomic.Int64
	contentPages   atomic.Int64
	unclassified   atomic.Int64
	indexed        atomic.Int64
	dropped        atomic.Int64
	fetchFailures  atomic.Int64
	statsMissing   atomic.Int64
	targetsSkipped atomic.Int64
}

// NewRun creates the run context. maxPages <= 0 means no cap on dispatched targets.
func NewRun(id string, queue crawler.Queue, writer crawler.DocumentWriter, maxPages int) *Run {
	return &Run{
		ID:       id,
		Visited:  frontier.NewVisited(),
		Writer:   writer,
		queue:    queue,
		maxPages: int64(maxPages),
	}
}

// Submit enqueues a target that the caller already marked as visited. It
// returns false when the page cap drops the target.
func (r *Run) Submit(ctx context.Context, target crawler.CrawlTarget) (bool, error) {
	if r.maxPages > 0 && r.dispatched.Add(1) > r.maxPages {
		r.targetsSkipped.Add(1)
		return false, nil
	}
	r.pending.Add(1)
	if err := r.queue.Enqueue(ctx, target); err != nil {
		r.targetsSkipped.Add(1)
		r.Done()
		return false, fmt.Errorf("submit %s: %w", target.URL, err)
	}
	return true, nil
}

// Done marks one submitted target as finished. Workers call it after
// submitting any follow-up targets, so the count only reaches zero when the
// frontier is exhausted.
func (r *Run) Done() {
	if r.pending.Add(-1) == 0 {
		r.queue.Close()
	}
}

// Pending reports submitted targets not yet finished.
func (r *Run) Pending() int64 {
	return r.pending.Load()
}

// Summary snapshots the run counters.
func (r *Run) Summary() crawler.RunSummary {
	return crawler.RunSummary{
		RunID:          r.ID,
		ListingPages:   r.listingPages.Load(),
		ContentPages:   r.contentPages.Load(),
		Unclassified:   r.unclassified.Load(),
		Indexed:        r.indexed.Load(),
		Dropped:        r.dropped.Load(),
		FetchFailures:  r.fetchFailures.Load(),
		StatsMissing:   r.statsMissing.Load(),
		TargetsSkipped: r.targetsSkipped.Load(),
	}
}
