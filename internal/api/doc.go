// Package api hosts the HTTP server, middleware, and REST handlers for the
// blog index. Notable routes:
//   - GET /query/field, /query/combined and /query/kw for search.
//   - GET /index/count for diagnostics.
//   - POST /crawl and GET /crawl to start and inspect a background crawl run.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//
// Every search and index route answers with the {success, message, data}
// envelope, including failures.
package api
