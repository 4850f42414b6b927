package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	result := make(chan crawler.CrawlTarget, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	target := crawler.CrawlTarget{URL: "https://site/a/p/1.html", Role: crawler.RoleContent}
	require.NoError(t, q.Enqueue(context.Background(), target))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, target, got)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return target")
	}
}

func TestQueueIsFIFOAndUnbounded(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		require.NoError(t, q.Enqueue(ctx, crawler.CrawlTarget{URL: string(rune('a' + i%26))}))
	}
	require.Equal(t, 1000, q.Len())

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", first.URL)
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", second.URL)
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewQueue().Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}
	if err := NewQueue().Enqueue(ctx, crawler.CrawlTarget{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueCloseDrainsThenFails(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, crawler.CrawlTarget{URL: "left"}))
	q.Close()
	// Closing twice should be safe.
	q.Close()

	require.ErrorIs(t, q.Enqueue(ctx, crawler.CrawlTarget{URL: "late"}), ErrClosed)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "left", got.URL)

	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestQueueCloseWakesAllConsumers(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	const consumers = 8
	var wg sync.WaitGroup
	errs := make(chan error, consumers)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Dequeue(context.Background())
			errs <- err
		}()
	}
	time.Sleep(10 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumers were not released by Close")
	}
	close(errs)
	for err := range errs {
		require.True(t, errors.Is(err, ErrClosed))
	}
}
