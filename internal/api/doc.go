// Package api hosts the ops HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs and /v1/runs/latest for recent run reports.
//   - POST /v1/runs to trigger a harvesting pass when a Runner is wired.
package api
