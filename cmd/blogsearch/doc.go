// Package main hosts the blogsearch entrypoint.
//
// Architecture overview:
//   - Crawl pipeline: a dispatcher seeds the first listing page of the configured blogger and fans the run out to a
//     worker pool sized by config.Crawler.Concurrency. Each worker fetches a target through the Colly fetcher (after
//     the per-host rate limiter), classifies it as a listing or content page, follows pagination and post links, looks
//     up engagement stats, normalizes the record and upserts it into the bleve index keyed by post ID.
//   - Index & search: a single index writer owns the on-disk bleve index; the query service reads the same index and
//     sees every committed write. Batch mode (index.batch_size > 1) commits when a batch fills and at run end.
//   - Archive & fanout: after a successful upsert the raw HTML goes to the configured BlobStore (memory/local/GCS),
//     one row is upserted into the page ledger (Postgres when db.dsn is set) and a "document indexed" event is
//     published (Pub/Sub when pubsub.project_id is set, in process otherwise).
//   - HTTP API: internal/api.Server exposes the three search modes, the document count, health probes, Prometheus
//     metrics and, when crawling is enabled, POST /crawl to start a background run.
//
// Operational notes:
//   - Only an index that cannot be opened stops the process. Fetch, stats, normalization and per-document index
//     failures are logged and counted in the run summary.
//   - SIGINT/SIGTERM stop dispatch of new targets; in-flight targets finish and buffered writes are committed before
//     the index is closed.
//
// Quick checklist:
//   - Configure env vars: BLOGSEARCH_SITE_BLOGGER_ID, BLOGSEARCH_CRAWLER_ENABLED, BLOGSEARCH_INDEX_PATH,
//     BLOGSEARCH_STORAGE_BACKEND, BLOGSEARCH_DB_DSN, BLOGSEARCH_PUBSUB_PROJECT_ID, or PORT.
//   - Crawl once and exit: go run ./cmd/blogsearch -crawl -serve=false -config config.yaml
//   - Serve queries: go run ./cmd/blogsearch -config config.yaml
package main
