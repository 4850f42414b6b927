package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
	"github.com/JakeFAU/cnblogs-search/internal/index"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// queryField handles GET /query/field?field=&kw=&pageSize= and returns
// [{ID, <field>}].
func (s *Server) queryField(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	field := strings.TrimSpace(q.Get("field"))
	if field == "" {
		s.fail(w, http.StatusBadRequest, "field is required")
		return
	}
	kw, ok := s.keyword(w, r)
	if !ok {
		return
	}
	size, err := parsePositive(q.Get("pageSize"), "pageSize", defaultPageSize, maxPageSize)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	hits, err := s.querier.QueryByField(r.Context(), field, kw, size, index.FieldID, field)
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	s.ok(w, project(hits, map[string]string{index.FieldID: "ID", field: field}))
}

// queryCombined handles GET /query/combined?kw=&pageSize= and returns [{ID, TITLE}].
func (s *Server) queryCombined(w http.ResponseWriter, r *http.Request) {
	kw, ok := s.keyword(w, r)
	if !ok {
		return
	}
	size, err := parsePositive(r.URL.Query().Get("pageSize"), "pageSize", defaultPageSize, maxPageSize)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	hits, err := s.querier.QueryCombined(r.Context(), kw, size, index.FieldID, index.FieldTitle)
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	s.ok(w, project(hits, map[string]string{index.FieldID: "ID", index.FieldTitle: "TITLE"}))
}

// queryKeyword handles GET /query/kw?kw=&pageNo=&pageSize= and returns
// [{ID, TITLE, TIME}].
func (s *Server) queryKeyword(w http.ResponseWriter, r *http.Request) {
	kw, ok := s.keyword(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	pageNo, err := parsePositive(q.Get("pageNo"), "pageNo", 1, 0)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	size, err := parsePositive(q.Get("pageSize"), "pageSize", defaultPageSize, maxPageSize)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	hits, err := s.querier.QueryByKeyword(r.Context(), kw, pageNo, size,
		index.FieldID, index.FieldTitle, index.FieldPublishTimeStore)
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	s.ok(w, project(hits, map[string]string{
		index.FieldID:               "ID",
		index.FieldTitle:            "TITLE",
		index.FieldPublishTimeStore: "TIME",
	}))
}

// keyword requires the kw parameter to be present; a blank value is allowed
// and matches nothing.
func (s *Server) keyword(w http.ResponseWriter, r *http.Request) (string, bool) {
	q := r.URL.Query()
	if !q.Has("kw") {
		s.fail(w, http.StatusBadRequest, "kw is required")
		return "", false
	}
	return q.Get("kw"), true
}

func (s *Server) queryFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, crawler.ErrQuery) {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("query failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	s.fail(w, http.StatusInternalServerError, "query failed")
}

// project renames stored fields for the response; absent fields become "".
func project(hits []crawler.Hit, names map[string]string) []map[string]string {
	out := make([]map[string]string, 0, len(hits))
	for _, h := range hits {
		row := make(map[string]string, len(names))
		for field, name := range names {
			row[name] = h.Fields[field]
		}
		if row["ID"] == "" {
			row["ID"] = h.ID
		}
		out = append(out, row)
	}
	return out
}

// parsePositive reads an optional integer >= 1. upper <= 0 means unbounded.
func parsePositive(raw, name string, def, upper int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	if upper > 0 && v > upper {
		return 0, fmt.Errorf("%s must be <= %d", name, upper)
	}
	return v, nil
}
