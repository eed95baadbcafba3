// Package api hosts the HTTP server, middleware, and REST handlers for the
// leadership engine. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/leadership runs one company synchronously.
//   - POST /v1/batches submits a batch; GET /v1/batches/{batch_id} reports
//     its progress and GET /v1/batches/{batch_id}/export renders it as CSV.
package api
