// Package server holds the process-wide pieces of `inboxlabeler serve`.
//
// ServerContext owns the labeling service, the relay dispatcher and its
// notification hub, the classifier client, the optional history store and
// the page observer, and shuts them down in order.
//
// HealthChecker serves /healthz (liveness), /readyz (readiness) and
// /healthz/detailed. Readiness includes the classification service and the
// history database when the context is wired to them.
//
// MetricsServer serves the Prometheus registry of an instrumentation
// Provider on its own loopback listener.
package server
