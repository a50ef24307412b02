// Package instrumentation provides OpenTelemetry instrumentation for
// inboxlabeler.
//
// # Metrics
//
//   - http_requests_total / http_request_duration_seconds: relay HTTP transport
//   - relay_actions_total / relay_action_duration_seconds: by action and status
//   - gmail_api_operations_total / gmail_api_operation_duration_seconds: by operation and status
//   - classifier_requests_total / classifier_request_duration_seconds: by endpoint and status
//   - labels_applied_total: by source (relay, cli, batch, observer)
//   - batch_items_total: by outcome (labeled, skipped, failed)
//   - observer_events_total: by result (new, duplicate, dropped)
//
// Label names and thread ids are never used as metric attributes.
//
// # Tracing
//
// Spans are created for relay actions (relay.<action>), Gmail API calls
// (gmail.<operation>) and classification service calls (classifier.<endpoint>).
//
// # Configuration
//
// Instrumentation is configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: inboxlabeler)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_THREAD_IDS: action audit trail
package instrumentation
