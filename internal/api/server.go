package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
	"github.com/JakeFAU/cnblogs-search/internal/dispatcher"
	"github.com/JakeFAU/cnblogs-search/internal/metrics"
)

// Querier runs the three search modes.
type Querier interface {
	QueryByField(ctx context.Context, field, keyword string, limit int, fields ...string) ([]crawler.Hit, error)
	QueryCombined(ctx context.Context, keyword string, limit int, fields ...string) ([]crawler.Hit, error)
	QueryByKeyword(ctx context.Context, keyword string, pageNo, pageSize int, fields ...string) ([]crawler.Hit, error)
}

// Counter reports the number of live documents.
type Counter interface {
	Count() (uint64, error)
}

// CrawlTrigger starts and reports background crawl runs.
type CrawlTrigger interface {
	Start() bool
	Status() dispatcher.RunStatus
}

// Options carries the optional pieces of a Server.
type Options struct {
	// Crawl enables POST/GET /crawl when set.
	Crawl          CrawlTrigger
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the search service and the index.
type Server struct {
	router  chi.Router
	querier Querier
	counter Counter
	crawl   CrawlTrigger
	logger  *zap.Logger
}

// Response is the envelope returned by every search and index route.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

const defaultRequestTimeout = 30 * time.Second

// NewServer constructs a Server with middleware and routes.
func NewServer(querier Querier, counter Counter, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s := &Server{
		querier: querier,
		counter: counter,
		crawl:   opts.Crawl,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/query", func(r chi.Router) {
		r.Get("/field", s.queryField)
		r.Get("/combined", s.queryCombined)
		r.Get("/kw", s.queryKeyword)
	})
	r.Get("/index/count", s.indexCount)
	if s.crawl != nil {
		r.Post("/crawl", s.startCrawl)
		r.Get("/crawl", s.crawlStatus)
	}

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz is ready only while the index answers a document count.
func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if _, err := s.counter.Count(); err != nil {
		s.logger.Warn("index not ready", zap.Error(err))
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) indexCount(w http.ResponseWriter, _ *http.Request) {
	count, err := s.counter.Count()
	if err != nil {
		s.logger.Error("index count failed", zap.Error(err))
		s.fail(w, http.StatusInternalServerError, "index count failed")
		return
	}
	s.ok(w, map[string]uint64{"count": count})
}

func (s *Server) startCrawl(w http.ResponseWriter, _ *http.Request) {
	if !s.crawl.Start() {
		s.fail(w, http.StatusConflict, "a crawl run is already in progress")
		return
	}
	s.writeJSON(w, http.StatusAccepted, Response{Success: true, Message: "crawl started", Data: s.crawl.Status()})
}

func (s *Server) crawlStatus(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, s.crawl.Status())
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request ID stored by the request ID middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("error", rec),
					)
					writeEnvelope(logger, w, http.StatusInternalServerError,
						Response{Success: false, Message: "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// timeoutMiddleware answers with the JSON envelope once d elapses. Headers set
// by next replace the preset Content-Type on the normal path.
func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		th := http.TimeoutHandler(next, d, `{"success":false,"message":"request timed out","data":null}`)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			th.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func (s *Server) ok(w http.ResponseWriter, data any) {
	s.writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok", Data: data})
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, Response{Success: false, Message: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeEnvelope(s.logger, w, status, payload)
}

func writeEnvelope(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
