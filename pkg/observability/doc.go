/*
Package observability exposes engine activity as Prometheus metrics.

Metrics turns lifecycle events into counters and histograms via Hooks, and
instruments HTTP handlers with Middleware. Handler serves the registry in the
Prometheus text format.
*/
package observability
