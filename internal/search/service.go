// Package search runs read-only queries against the blog index.
package search

import (
	"context"
	"errors"
	"math"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
	"github.com/JakeFAU/cnblogs-search/internal/index"
	"github.com/JakeFAU/cnblogs-search/internal/metrics"
)

// Searcher is the read side of the index.
type Searcher interface {
	SearchInContext(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error)
}

// Service implements the field, combined and paginated keyword queries.
// An empty or blank keyword matches no documents in every mode.
type Service struct {
	index  Searcher
	logger *zap.Logger
}

// New creates a Service.
func New(idx Searcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: idx, logger: logger}
}

// QueryByField parses keyword against a single field and returns up to limit
// hits by descending score. Each hit carries the stored values of fields, or
// of ID and field when none are named.
func (s *Service) QueryByField(ctx context.Context, field, keyword string, limit int, fields ...string) ([]crawler.Hit, error) {
	q, err := fieldQuery(field, keyword)
	if err != nil {
		metrics.ObserveQuery("field", "error")
		return nil, err
	}
	if len(fields) == 0 {
		fields = []string{index.FieldID, field}
	}
	hits, err := s.run(ctx, q, limit, 0, fields)
	observe("field", err)
	return hits, err
}

// QueryCombined ORs a title query with a content query. A document matching
// both scores at least as high as one matching either alone.
func (s *Service) QueryCombined(ctx context.Context, keyword string, limit int, fields ...string) ([]crawler.Hit, error) {
	titleQ, err := fieldQuery(index.FieldTitle, keyword)
	if err != nil {
		metrics.ObserveQuery("combined", "error")
		return nil, err
	}
	contentQ, err := fieldQuery(index.FieldContent, keyword)
	if err != nil {
		metrics.ObserveQuery("combined", "error")
		return nil, err
	}
	if len(fields) == 0 {
		fields = []string{index.FieldID, index.FieldTitle}
	}
	hits, err := s.run(ctx, query.NewDisjunctionQuery([]query.Query{titleQ, contentQ}), limit, 0, fields)
	observe("combined", err)
	return hits, err
}

// QueryByKeyword returns page pageNo (1-based) of a title search. The index is
// asked for the top (pageNo-1)*pageSize+pageSize hits and the last pageSize of
// them are returned, so a page past the end is empty rather than an error.
func (s *Service) QueryByKeyword(ctx context.Context, keyword string, pageNo, pageSize int, fields ...string) ([]crawler.Hit, error) {
	if pageNo < 1 {
		pageNo = 1
	}
	q, err := fieldQuery(index.FieldTitle, keyword)
	if err != nil {
		metrics.ObserveQuery("keyword", "error")
		return nil, err
	}
	if len(fields) == 0 {
		fields = []string{index.FieldID, index.FieldTitle, index.FieldPublishTimeStore}
	}
	if pageSize <= 0 || pageNo-1 > (math.MaxInt-pageSize)/pageSize {
		return []crawler.Hit{}, nil
	}
	skip := (pageNo - 1) * pageSize
	hits, err := s.run(ctx, q, skip+pageSize, skip, fields)
	observe("keyword", err)
	return hits, err
}

func (s *Service) run(ctx context.Context, q query.Query, size, skip int, fields []string) ([]crawler.Hit, error) {
	if size <= 0 || skip >= size {
		return []crawler.Hit{}, nil
	}
	req := bleve.NewSearchRequestOptions(q, size, 0, false)
	req.Fields = fields

	start := time.Now()
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, bleve.ErrorIndexClosed) {
			return nil, fmt.Errorf("search index: %w", err)
		}
		// Clauses such as regexps are only compiled at search time.
		return nil, fmt.Errorf("%w: %w", crawler.ErrQuery, err)
	}
	s.logger.Debug("search executed",
		zap.Uint64("total", res.Total),
		zap.Int("returned", len(res.Hits)),
		zap.Duration("took", time.Since(start)),
	)

	hits := make([]crawler.Hit, 0, len(res.Hits))
	for i, h := range res.Hits {
		if i < skip {
			continue
		}
		hit := crawler.Hit{ID: h.ID, Score: h.Score, Fields: make(map[string]string, len(fields))}
		for _, f := range fields {
			hit.Fields[f] = stringify(h.Fields[f])
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// fieldQuery parses keyword with the query-string syntax and scopes every
// unqualified clause to field.
func fieldQuery(field, keyword string) (query.Query, error) {
	if strings.TrimSpace(keyword) == "" {
		return query.NewMatchNoneQuery(), nil
	}
	if strings.TrimSpace(field) == "" {
		return nil, fmt.Errorf("%w: field is required", crawler.ErrQuery)
	}
	parsed, err := query.NewQueryStringQuery(keyword).Parse()
	if err != nil {
		return nil, fmt.Errorf("%w: parse %q: %w", crawler.ErrQuery, keyword, err)
	}
	scope(parsed, field)
	return parsed, nil
}

func scope(q query.Query, field string) {
	switch t := q.(type) {
	case *query.BooleanQuery:
		if t == nil {
			return
		}
		scope(t.Must, field)
		scope(t.Should, field)
		scope(t.MustNot, field)
	case *query.ConjunctionQuery:
		if t == nil {
			return
		}
		for _, c := range t.Conjuncts {
			scope(c, field)
		}
	case *query.DisjunctionQuery:
		if t == nil {
			return
		}
		for _, d := range t.Disjuncts {
			scope(d, field)
		}
	case query.FieldableQuery:
		if t.Field() == "" {
			t.SetField(field)
		}
	}
}

// stringify renders a stored value; missing values become "".
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, stringify(p))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}

func observe(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveQuery(kind, status)
}
