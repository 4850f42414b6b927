// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
	"github.com/JakeFAU/cnblogs-search/internal/extract"
	"github.com/JakeFAU/cnblogs-search/internal/normalize"
	"github.com/JakeFAU/cnblogs-search/internal/worker"
)

const seed = "https://site/alice/default.html?page=1"

func newWorker(t *testing.T, fetcher crawler.Fetcher) *worker.Worker {
	t.Helper()
	norm, err := normalize.New(normalize.Config{TimeZone: "UTC"}, zap.NewNop())
	require.NoError(t, err)
	return worker.New(worker.Deps{
		Fetcher:    fetcher,
		Extractor:  extract.New(extract.NewSite("https://site", "alice", extract.DefaultSelectors())),
		Normalizer: norm,
	}, worker.Config{}, zap.NewNop())
}

// TestDispatcherRunDrainsFrontier ensures a run ends on its own once every target is processed.
func TestDispatcherRunDrainsFrontier(t *testing.T) {
	t.Parallel()

	fetcher := &pageFetcher{pages: map[string]string{
		seed: `<div class="forFlow"><div class="postTitle"><a href="/alice/p/1.html">a</a></div>
<div class="postTitle"><a href="/alice/p/2.html">b</a></div></div>`,
		"https://site/alice/p/1.html": `<div class="post"><h1 class="postTitle"><span>one</span></h1></div>`,
		"https://site/alice/p/2.html": `<div class="post"><h1 class="postTitle"><span>two</span></h1></div>`,
	}}
	writer := &countingWriter{}
	d := New(newWorker(t, fetcher), writer, &fixedIDs{id: "run-7"}, Config{Workers: 4}, zap.NewNop())

	summary, err := d.Run(context.Background(), []string{seed, seed})
	require.NoError(t, err)
	require.Equal(t, "run-7", summary.RunID)
	require.Equal(t, int64(1), summary.ListingPages)
	require.Equal(t, int64(2), summary.Indexed)
	require.Equal(t, 1, writer.flushes)
	require.Equal(t, 2, writer.upserts)
}

// TestDispatcherRunWithoutSeedsReturns verifies an empty run finishes immediately.
func TestDispatcherRunWithoutSeedsReturns(t *testing.T) {
	t.Parallel()

	d := New(newWorker(t, &pageFetcher{}), &countingWriter{}, &fixedIDs{id: "run-0"}, Config{Workers: 2}, zap.NewNop())
	type result struct {
		summary crawler.RunSummary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		summary, err := d.Run(context.Background(), nil)
		done <- result{summary, err}
	}()
	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Equal(t, crawler.RunSummary{RunID: "run-0"}, r.summary)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not finish an empty run")
	}
}

// TestDispatcherRunStopsOnCancel ensures workers stop and the cancellation is reported.
func TestDispatcherRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	fetcher := &blockingFetcher{started: make(chan struct{}, 1)}
	writer := &countingWriter{}
	d := New(newWorker(t, fetcher), writer, &fixedIDs{id: "run-c"}, Config{Workers: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		summary crawler.RunSummary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := d.Run(ctx, []string{seed})
		done <- result{s, err}
	}()

	select {
	case <-fetcher.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin fetching")
	}
	cancel()

	select {
	case r := <-done:
		require.True(t, IsCancelled(r.err))
		require.Equal(t, int64(1), r.summary.FetchFailures)
		require.Equal(t, 1, writer.flushes, "buffered writes are committed on cancel")
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherRunForwardsErrors verifies queue and commit errors are wrapped for callers.
func TestDispatcherRunForwardsErrors(t *testing.T) {
	t.Parallel()

	d := New(newWorker(t, &pageFetcher{}), &countingWriter{}, &fixedIDs{id: "r"}, Config{}, zap.NewNop())
	d.newQueue = func() crawler.Queue { return &errorQueue{err: errors.New("boom")} }
	_, err := d.Run(context.Background(), []string{seed})
	if err == nil || err.Error() != "queue enqueue: submit "+seed+": boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}

	d = New(newWorker(t, &pageFetcher{}), &countingWriter{flushErr: crawler.ErrIndex}, &fixedIDs{id: "r"}, Config{}, zap.NewNop())
	_, err = d.Run(context.Background(), nil)
	require.ErrorIs(t, err, crawler.ErrIndex)

	d = New(newWorker(t, &pageFetcher{}), &countingWriter{}, &fixedIDs{err: errors.New("no entropy")}, Config{}, zap.NewNop())
	_, err = d.Run(context.Background(), nil)
	require.Error(t, err)
}

type pageFetcher struct {
	pages map[string]string
}

func (f *pageFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	body, ok := f.pages[req.URL]
	if !ok {
		return crawler.FetchResponse{}, crawler.ErrTransport
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

type blockingFetcher struct {
	started chan struct{}
}

func (f *blockingFetcher) Fetch(ctx context.Context, _ crawler.FetchRequest) (crawler.FetchResponse, error) {
	select {
	case f.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return crawler.FetchResponse{}, errors.Join(crawler.ErrTransport, ctx.Err())
}

type countingWriter struct {
	mu       sync.Mutex
	upserts  int
	flushes  int
	flushErr error
}

func (w *countingWriter) Upsert(context.Context, crawler.CanonicalDocument) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.upserts++
	return nil
}

func (w *countingWriter) Flush(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
	return w.flushErr
}

func (w *countingWriter) Count() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return uint64(w.upserts), nil
}

type fixedIDs struct {
	id  string
	err error
}

func (f *fixedIDs) NewID() (string, error) {
	return f.id, f.err
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, crawler.CrawlTarget) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (crawler.CrawlTarget, error) {
	return crawler.CrawlTarget{}, crawler.ErrQueueClosed
}

func (q *errorQueue) Close() {}
