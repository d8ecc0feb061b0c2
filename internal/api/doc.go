// Package api hosts the operator HTTP server. Notable routes:
//   - GET /healthz and /readyz for health checks.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to start a run, GET /v1/runs/last and /v1/runs/current to inspect runs.
package api
