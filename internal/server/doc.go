// Package server exposes the operational HTTP endpoints of the keepalive
// loop: Prometheus metrics and health checks.
//
// # Endpoints
//
//   - /metrics: Prometheus scrape endpoint backed by the instrumentation provider
//   - /healthz: liveness, always ok while the process runs
//   - /readyz: ok only while the last credential check ended in a valid credential
//   - /healthz/detailed: uptime and the last credential check outcome
//
// The endpoints bind to a dedicated address so that they never share a
// port with the OAuth callback listener.
package server
