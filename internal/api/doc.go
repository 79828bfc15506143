// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs for triggering ingestion runs.
//   - GET /v1/runs/{run_id} and /v1/sources for run and source inspection.
package api
