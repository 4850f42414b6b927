// Package dispatcher runs crawl runs: it seeds the frontier, fans the run out
// to a pool of workers and reports what happened.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
	"github.com/JakeFAU/cnblogs-search/internal/queue/memory"
	"github.com/JakeFAU/cnblogs-search/internal/worker"
)

// Config sizes the worker pool and caps a run.
type Config struct {
	Workers  int
	MaxPages int
}

// Dispatcher fans a crawl run out to a pool of workers.
type Dispatcher struct {
	worker   *worker.Worker
	writer   crawler.DocumentWriter
	ids      crawler.IDGenerator
	cfg      Config
	logger   *zap.Logger
	newQueue func() crawler.Queue
}

// New creates a Dispatcher. All runs share writer, the single index handle.
func New(w *worker.Worker, writer crawler.DocumentWriter, ids crawler.IDGenerator, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		worker:   w,
		writer:   writer,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
		newQueue: func() crawler.Queue { return memory.NewQueue() },
	}
}

// Run crawls from seeds until the frontier is exhausted or ctx is cancelled,
// then commits any buffered writes. Cancellation stops dispatch of new
// targets, lets in-flight targets finish and returns the partial summary with
// the context error. Only a failed final commit or a seed that cannot be
// queued is reported as a run failure.
func (d *Dispatcher) Run(ctx context.Context, seeds []string) (crawler.RunSummary, error) {
	runID, err := d.ids.NewID()
	if err != nil {
		return crawler.RunSummary{}, fmt.Errorf("run id: %w", err)
	}
	queue := d.newQueue()
	run := worker.NewRun(runID, queue, d.writer, d.cfg.MaxPages)
	logger := d.logger.With(zap.String("run_id", runID))

	seeded := 0
	for _, seed := range seeds {
		if seed == "" || !run.Visited.MarkIfNew(seed) {
			continue
		}
		ok, err := run.Submit(ctx, crawler.CrawlTarget{URL: seed, Role: crawler.RoleListing})
		if err != nil {
			queue.Close()
			return run.Summary(), fmt.Errorf("queue enqueue: %w", err)
		}
		if ok {
			seeded++
		}
	}
	if seeded == 0 {
		queue.Close()
	}
	logger.Info("crawl run started", zap.Int("seeds", seeded), zap.Int("workers", d.cfg.Workers))

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker.Run(ctx, run)
		}()
	}
	wg.Wait()

	summary := run.Summary()
	if err := d.writer.Flush(context.WithoutCancel(ctx)); err != nil {
		logger.Error("final index commit failed", zap.Error(err))
		return summary, fmt.Errorf("flush index: %w", err)
	}
	count, countErr := d.writer.Count()
	fields := []zap.Field{
		zap.Int64("listing_pages", summary.ListingPages),
		zap.Int64("content_pages", summary.ContentPages),
		zap.Int64("unclassified", summary.Unclassified),
		zap.Int64("indexed", summary.Indexed),
		zap.Int64("dropped", summary.Dropped),
		zap.Int64("fetch_failures", summary.FetchFailures),
		zap.Int64("stats_missing", summary.StatsMissing),
		zap.Int64("targets_skipped", summary.TargetsSkipped),
		zap.Uint64("index_documents", count),
	}
	if countErr != nil {
		fields = append(fields, zap.NamedError("count_error", countErr))
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Warn("crawl run cancelled", fields...)
		return summary, fmt.Errorf("run %s cancelled: %w", runID, ctxErr)
	}
	logger.Info("crawl run finished", fields...)
	return summary, nil
}

// IsCancelled reports whether err came from a cooperative stop rather than a failure.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
