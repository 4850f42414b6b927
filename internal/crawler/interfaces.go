package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher performs a single HTTP exchange and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// StatsSource looks up engagement statistics for one post. A nil result with a
// nil error means no stats are available.
type StatsSource interface {
	Enrich(ctx context.Context, id string, author string) (*EngagementStats, error)
}

// DocumentWriter is the single writer handle shared by every worker of a run.
type DocumentWriter interface {
	Upsert(ctx context.Context, doc CanonicalDocument) error
	Flush(ctx context.Context) error
	Count() (uint64, error)
}

// Queue provides enqueue/dequeue semantics for crawl targets.
type Queue interface {
	Enqueue(ctx context.Context, target CrawlTarget) error
	Dequeue(ctx context.Context) (CrawlTarget, error)
	Close()
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// PageStore records which documents a run indexed.
type PageStore interface {
	RecordPage(ctx context.Context, page PageRecord) error
}

// Publisher pushes indexed-document events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Limiter paces requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
