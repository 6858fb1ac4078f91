// Package api hosts the HTTP server, middleware, and REST handlers of the
// monitor. Notable routes:
//   - GET /healthz and /readyz for liveness and readiness, GET /metrics for Prometheus.
//   - GET /api/videos, /api/users, /api/logs for stored records.
//   - GET, POST, DELETE /api/tasks for monitor tasks.
//   - POST /api/crawl/... for on-demand crawls and POST /api/resolve for
//     share links.
package api
