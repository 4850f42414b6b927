// Package stats fetches out-of-band engagement counters for blog posts.
package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
)

// Config controls the stats endpoint and the per-call timeout.
type Config struct {
	// BaseURL is the site root; the endpoint is {BaseURL}/{author}/ajax/GetPostStat.
	BaseURL string
	Timeout time.Duration
}

// Enricher implements crawler.StatsSource against the cnblogs GetPostStat endpoint.
type Enricher struct {
	fetcher crawler.Fetcher
	cfg     Config
}

// payload is one element of the GetPostStat response array.
type payload struct {
	PostID        json.Number `json:"postId"`
	ViewCount     int64       `json:"viewCount"`
	FeedbackCount int64       `json:"feedbackCount"`
	DiggCount     int64       `json:"diggCount"`
	BuryCount     int64       `json:"buryCount"`
}

// New creates an Enricher.
func New(fetcher crawler.Fetcher, cfg Config) *Enricher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Enricher{fetcher: fetcher, cfg: cfg}
}

// Endpoint returns the stats URL for an author.
func (e *Enricher) Endpoint(author string) string {
	return fmt.Sprintf("%s/%s/ajax/GetPostStat", e.cfg.BaseURL, author)
}

// Enrich posts [id] to the stats endpoint. It returns (nil, nil) when the
// endpoint answers with nothing usable, and a wrapped ErrTransport or ErrParse
// otherwise; callers treat every non-nil error as "no stats".
func (e *Enricher) Enrich(ctx context.Context, id string, author string) (*crawler.EngagementStats, error) {
	if id == "" {
		return nil, nil
	}
	reqBody, err := json.Marshal([]any{postKey(id)})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal stats request: %w", crawler.ErrParse, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	resp, err := e.fetcher.Fetch(callCtx, crawler.FetchRequest{
		URL:     e.Endpoint(author),
		Method:  http.MethodPost,
		Body:    reqBody,
		Headers: http.Header{"Content-Type": {"application/json; charset=utf-8"}},
	})
	if err != nil {
		return nil, fmt.Errorf("stats request for %s: %w", id, err)
	}
	return decode(id, resp.Body)
}

func decode(id string, body []byte) (*crawler.EngagementStats, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var items []payload
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: decode stats for %s: %w", crawler.ErrParse, id, err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	chosen, ok := match(id, items)
	if !ok {
		return nil, nil
	}
	return &crawler.EngagementStats{
		ID:             id,
		ViewCount:      chosen.ViewCount,
		CommentCount:   chosen.FeedbackCount,
		RecommendCount: chosen.DiggCount,
		OpposeCount:    chosen.BuryCount,
	}, nil
}

// match picks the entry for id. The first entry stands in only when the
// payload carries no ids at all.
func match(id string, items []payload) (payload, bool) {
	for _, it := range items {
		if it.PostID.String() == id {
			return it, true
		}
	}
	if items[0].PostID == "" {
		return items[0], true
	}
	return payload{}, false
}

// postKey keeps numeric ids numeric on the wire, the way the site expects.
func postKey(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
