// Package worker implements the crawl pipeline execution loop.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
	"github.com/JakeFAU/cnblogs-search/internal/extract"
	"github.com/JakeFAU/cnblogs-search/internal/frontier"
	"github.com/JakeFAU/cnblogs-search/internal/metrics"
	"github.com/JakeFAU/cnblogs-search/internal/normalize"
)

// Config controls Worker behavior.
type Config struct {
	ContentType string
	BlobPrefix  string
	Topic       string
	// MaxRetries is the number of extra fetch attempts after a transport failure.
	MaxRetries       int
	RetryBackoffBase time.Duration
}

// Deps are the collaborators a Worker drives. Limiter, Stats, BlobStore,
// PageStore and Publisher are optional.
type Deps struct {
	Fetcher    crawler.Fetcher
	Limiter    crawler.Limiter
	Extractor  *extract.Extractor
	Stats      crawler.StatsSource
	Normalizer *normalize.Normalizer
	BlobStore  crawler.BlobStore
	PageStore  crawler.PageStore
	Publisher  crawler.Publisher
	Hasher     crawler.Hasher
	Clock      crawler.Clock
}

// Worker consumes crawl targets and runs fetch, classify, enrich, normalize
// and upsert for each one.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger}
}

// Run blocks, consuming targets until the run's queue is closed and drained or
// the context finishes. A cancelled context stops dequeueing; the target in
// hand is finished first.
func (w *Worker) Run(ctx context.Context, run *Run) {
	for {
		target, err := run.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.String("run_id", run.ID), zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued target",
			zap.String("run_id", run.ID),
			zap.String("url", target.URL),
			zap.String("role", string(target.Role)),
		)
		w.process(ctx, run, target)
	}
}

func (w *Worker) process(ctx context.Context, run *Run, target crawler.CrawlTarget) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer run.Done()

	resp, err := w.fetch(ctx, target.URL)
	if err != nil {
		run.fetchFailures.Add(1)
		w.logger.Warn("fetch failed, target skipped",
			zap.String("run_id", run.ID),
			zap.String("url", target.URL),
			zap.Error(err),
		)
		return
	}

	switch page := w.deps.Extractor.Classify(target.URL, resp.Body).(type) {
	case extract.ListingPage:
		run.listingPages.Add(1)
		metrics.ObserveCrawl(target.URL, string(crawler.RoleListing), len(resp.Body))
		w.follow(ctx, run, target, page)
	case extract.ContentPage:
		run.contentPages.Add(1)
		metrics.ObserveCrawl(target.URL, string(crawler.RoleContent), len(resp.Body))
		w.handleContent(ctx, run, page.Record, resp.Body)
	case extract.Unclassified:
		run.unclassified.Add(1)
		metrics.ObserveCrawl(target.URL, "unclassified", len(resp.Body))
		w.logger.Info("unclassified page skipped",
			zap.String("run_id", run.ID),
			zap.String("url", page.URL),
			zap.String("reason", page.Reason),
		)
	}
}

func (w *Worker) fetch(ctx context.Context, url string) (crawler.FetchResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.cfg.RetryBackoffBase * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return crawler.FetchResponse{}, fmt.Errorf("%w: retry canceled: %w", crawler.ErrTransport, ctx.Err())
			case <-time.After(backoff):
			}
			w.logger.Debug("retrying fetch", zap.String("url", url), zap.Int("attempt", attempt))
		}
		if w.deps.Limiter != nil {
			if err := w.deps.Limiter.Wait(ctx, url); err != nil {
				return crawler.FetchResponse{}, fmt.Errorf("%w: rate limit wait: %w", crawler.ErrTransport, err)
			}
		}
		resp, err := w.deps.Fetcher.Fetch(ctx, crawler.FetchRequest{URL: url})
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return crawler.FetchResponse{}, fmt.Errorf("fetch page after %d attempts: %w", w.cfg.MaxRetries+1, lastErr)
}

func (w *Worker) follow(ctx context.Context, run *Run, from crawler.CrawlTarget, page extract.ListingPage) {
	targets := frontier.Follow(page, run.Visited)
	for _, t := range targets {
		if _, err := run.Submit(ctx, t); err != nil {
			w.logger.Warn("follow-up target not queued",
				zap.String("run_id", run.ID),
				zap.String("url", t.URL),
				zap.Error(err),
			)
		}
	}
	w.logger.Debug("listing page followed",
		zap.String("run_id", run.ID),
		zap.String("url", from.URL),
		zap.Int("detail_links", len(page.DetailURLs)),
		zap.Int("new_targets", len(targets)),
	)
}

func (w *Worker) handleContent(ctx context.Context, run *Run, rec crawler.ExtractedRecord, body []byte) {
	// The target in hand is finished whole once fetched, stats included; the
	// enricher bounds its own call.
	writeCtx := context.WithoutCancel(ctx)
	stats := w.enrich(writeCtx, run, rec)

	doc, err := w.deps.Normalizer.Normalize(rec, stats)
	if err != nil {
		run.dropped.Add(1)
		metrics.ObserveDocument("dropped")
		w.logger.Warn("record dropped", zap.String("run_id", run.ID), zap.String("url", rec.URL), zap.Error(err))
		return
	}

	if err := run.Writer.Upsert(writeCtx, doc); err != nil {
		run.dropped.Add(1)
		metrics.ObserveDocument("failed")
		w.logger.Error("index upsert failed", zap.String("run_id", run.ID), zap.String("doc_id", doc.ID), zap.Error(err))
		return
	}
	run.indexed.Add(1)
	metrics.ObserveDocument("indexed")
	w.logger.Debug("document indexed", zap.String("run_id", run.ID), zap.String("doc_id", doc.ID))

	if err := w.archive(writeCtx, run, doc, body); err != nil {
		w.logger.Warn("archive after index failed", zap.String("run_id", run.ID), zap.String("doc_id", doc.ID), zap.Error(err))
	}
}

// enrich never fails the document; any stats problem means "no stats".
func (w *Worker) enrich(ctx context.Context, run *Run, rec crawler.ExtractedRecord) *crawler.EngagementStats {
	if w.deps.Stats == nil {
		return nil
	}
	stats, err := w.deps.Stats.Enrich(ctx, rec.ID, rec.Author)
	switch {
	case err != nil:
		run.statsMissing.Add(1)
		metrics.ObserveStatsLookup("error")
		w.logger.Warn("stats unavailable", zap.String("run_id", run.ID), zap.String("doc_id", rec.ID), zap.Error(err))
		return nil
	case stats == nil:
		run.statsMissing.Add(1)
		metrics.ObserveStatsLookup("absent")
		return nil
	default:
		metrics.ObserveStatsLookup("found")
		return stats
	}
}

func (w *Worker) buildBlobPath(runID, docID string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", runID, docID)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, runID, docID)
}

// archive stores the raw page, records it in the page ledger and announces it.
func (w *Worker) archive(ctx context.Context, run *Run, doc crawler.CanonicalDocument, body []byte) error {
	if w.deps.BlobStore == nil && w.deps.PageStore == nil && w.deps.Publisher == nil {
		return nil
	}
	var hash string
	if w.deps.Hasher != nil {
		h, err := w.deps.Hasher.Hash(body)
		if err != nil {
			return fmt.Errorf("hash body: %w", err)
		}
		hash = h
	}

	var uri string
	if w.deps.BlobStore != nil {
		u, err := w.deps.BlobStore.PutObject(ctx, w.buildBlobPath(run.ID, doc.ID), w.cfg.ContentType, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("put object: %w", err)
		}
		uri = u
	}

	now := w.now()
	if w.deps.PageStore != nil {
		page := crawler.PageRecord{
			DocID:       doc.ID,
			RunID:       run.ID,
			URL:         doc.URL,
			ContentHash: hash,
			BlobURI:     uri,
			IndexedAt:   now,
		}
		if doc.Stats != nil {
			page.ViewCount = doc.Stats.ViewCount
		}
		if err := w.deps.PageStore.RecordPage(ctx, page); err != nil {
			return fmt.Errorf("record page: %w", err)
		}
	}

	return w.publishIndexed(ctx, run, doc, now)
}

func (w *Worker) publishIndexed(ctx context.Context, run *Run, doc crawler.CanonicalDocument, at time.Time) error {
	if w.cfg.Topic == "" || w.deps.Publisher == nil {
		return nil
	}
	payload := map[string]any{
		"run_id":       run.ID,
		"doc_id":       doc.ID,
		"url":          doc.URL,
		"title":        doc.Title,
		"publish_time": doc.PublishTime,
		"indexed_at":   at.Format(time.RFC3339),
	}
	msgID, err := w.deps.Publisher.Publish(ctx, w.cfg.Topic, payload)
	if err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	w.logger.Debug("document published",
		zap.String("run_id", run.ID),
		zap.String("doc_id", doc.ID),
		zap.String("message_id", msgID),
	)
	return nil
}

func (w *Worker) now() time.Time {
	if w.deps.Clock == nil {
		return time.Now().UTC()
	}
	return w.deps.Clock.Now()
}
