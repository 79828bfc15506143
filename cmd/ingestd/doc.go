// Package main hosts the ingestion service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, run management, and source listing endpoints. Run
//     submissions are validated, assigned an ID, and handed to the scheduler which either executes them inline
//     (wait=true) or enqueues them for the worker pool.
//   - Scheduler: a cron-driven sweep finds active sources whose scrape interval has elapsed and runs each one with
//     exponential-backoff retries. Sources that keep failing are marked degraded until the next sweep. A daily
//     cleanup pass deactivates postings past their expiry.
//   - Dispatcher & queue: run requests flow through either a bounded in-memory queue or Google Pub/Sub and are
//     fanned out to a fixed worker pool sized by config.Ingest.Workers. Context cancellation stops workers cleanly
//     on shutdown.
//   - Ingestion pipeline: each worker acquires a per-source lease (in-process or Redis), extracts structured
//     JobPosting data from listing pages via the Colly-based extractor, deduplicates by external ID within the run,
//     normalizes raw fields into typed postings, and upserts companies and jobs idempotently.
//   - Persistence: companies, sources, jobs, and run audit rows live in Postgres via pgx, with an in-memory store
//     for local runs and tests. Per-source scrape stats are updated after every run, successful or not.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     counters, gauges, and histograms are exported via /metrics.
//
// Operational notes:
//   - Concurrency model: bounded queue + fixed worker pool; at most one run per source at a time, enforced by the
//     lease. Shutdown is coordinated via context cancellation propagated from main through dispatcher to workers.
//   - Rate limiting: the extractor honors each source's configured per-request delay. Robots.txt enforcement is
//     configurable and on by default.
//   - Observability: zap logs carry run IDs and source names at key transitions; Prometheus tracks run outcomes,
//     posting dispositions, run durations, degraded sources, and cleanup volume.
//
// Quick checklist:
//   - Configure env vars: INGEST_SERVER_PORT, INGEST_INGEST_WORKERS, INGEST_DB_DSN, INGEST_REDIS_URL, and
//     INGEST_PUBSUB_* when running beyond a single in-memory instance.
//   - Run locally: go run ./cmd/ingestd -config config.yaml (or rely solely on env overrides).
package main
