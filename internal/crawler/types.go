// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"
)

// Role tags a CrawlTarget with the page type it is expected to be.
type Role string

// Target roles.
const (
	RoleListing Role = "listing"
	RoleContent Role = "content"
)

// CrawlTarget is a URL waiting to be fetched within a run.
type CrawlTarget struct {
	URL  string
	Role Role
}

// ExtractedRecord is the raw field set pulled from a content page.
type ExtractedRecord struct {
	ID              string
	Title           string
	RawContentHTML  string
	PublishTimeText string
	Tags            []string
	Author          string
	URL             string
}

// EngagementStats holds the out-of-band counters fetched for a post.
type EngagementStats struct {
	ID             string
	ViewCount      int64
	CommentCount   int64
	RecommendCount int64
	OpposeCount    int64
}

// CanonicalDocument is a normalized record ready to be upserted into the index.
type CanonicalDocument struct {
	ID    string
	Title string
	// Content is the visible text of the post body.
	Content string
	Author  string
	// Tags is comma-joined; HasTags distinguishes "no tags" from an empty tag.
	Tags    string
	HasTags bool
	// PublishTime is epoch milliseconds, 0 when the source timestamp could not be parsed.
	PublishTime        int64
	PublishTimeDisplay string
	URL                string
	Stats              *EngagementStats
}

// Hit is one ranked search result carrying the requested stored fields.
type Hit struct {
	ID     string
	Score  float64
	Fields map[string]string
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Method  string
	Body    []byte
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// PageRecord is the ledger row kept for each indexed document.
type PageRecord struct {
	DocID       string    `json:"doc_id"`
	RunID       string    `json:"run_id"`
	URL         string    `json:"url"`
	ContentHash string    `json:"content_hash"`
	BlobURI     string    `json:"blob_uri"`
	ViewCount   int64     `json:"view_count"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// RunSummary counts what happened to the targets of one crawl run.
type RunSummary struct {
	RunID          string `json:"run_id"`
	ListingPages   int64  `json:"listing_pages"`
	ContentPages   int64  `json:"content_pages"`
	Unclassified   int64  `json:"unclassified"`
	Indexed        int64  `json:"indexed"`
	Dropped        int64  `json:"dropped"`
	FetchFailures  int64  `json:"fetch_failures"`
	StatsMissing   int64  `json:"stats_missing"`
	TargetsSkipped int64  `json:"targets_skipped"`
}
