package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrAction    = "action"
	attrEndpoint  = "endpoint"
	attrOutcome   = "outcome"
	attrSource    = "source"
	attrResult    = "result"
)

var durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}

// Metrics provides methods for recording observability metrics.
// A zero Metrics is a valid no-op recorder.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	relayActionsTotal   metric.Int64Counter
	relayActionDuration metric.Float64Histogram

	gmailOperationsTotal   metric.Int64Counter
	gmailOperationDuration metric.Float64Histogram

	classifierRequestsTotal   metric.Int64Counter
	classifierRequestDuration metric.Float64Histogram

	labelsAppliedTotal  metric.Int64Counter
	batchItemsTotal     metric.Int64Counter
	observerEventsTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.httpRequestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}
	if m.httpRequestDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0)); err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	if m.relayActionsTotal, err = meter.Int64Counter("relay_actions_total",
		metric.WithDescription("Total number of relay actions handled"),
		metric.WithUnit("{action}")); err != nil {
		return nil, fmt.Errorf("failed to create relay_actions_total counter: %w", err)
	}
	if m.relayActionDuration, err = meter.Float64Histogram("relay_action_duration_seconds",
		metric.WithDescription("Relay action duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create relay_action_duration_seconds histogram: %w", err)
	}

	if m.gmailOperationsTotal, err = meter.Int64Counter("gmail_api_operations_total",
		metric.WithDescription("Total number of Gmail API operations"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, fmt.Errorf("failed to create gmail_api_operations_total counter: %w", err)
	}
	if m.gmailOperationDuration, err = meter.Float64Histogram("gmail_api_operation_duration_seconds",
		metric.WithDescription("Gmail API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create gmail_api_operation_duration_seconds histogram: %w", err)
	}

	if m.classifierRequestsTotal, err = meter.Int64Counter("classifier_requests_total",
		metric.WithDescription("Total number of classification service requests"),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("failed to create classifier_requests_total counter: %w", err)
	}
	if m.classifierRequestDuration, err = meter.Float64Histogram("classifier_request_duration_seconds",
		metric.WithDescription("Classification service request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create classifier_request_duration_seconds histogram: %w", err)
	}

	if m.labelsAppliedTotal, err = meter.Int64Counter("labels_applied_total",
		metric.WithDescription("Total number of labels applied to threads"),
		metric.WithUnit("{label}")); err != nil {
		return nil, fmt.Errorf("failed to create labels_applied_total counter: %w", err)
	}
	if m.batchItemsTotal, err = meter.Int64Counter("batch_items_total",
		metric.WithDescription("Total number of batch items processed by outcome"),
		metric.WithUnit("{item}")); err != nil {
		return nil, fmt.Errorf("failed to create batch_items_total counter: %w", err)
	}
	if m.observerEventsTotal, err = meter.Int64Counter("observer_events_total",
		metric.WithDescription("Total number of page observer events by result"),
		metric.WithUnit("{event}")); err != nil {
		return nil, fmt.Errorf("failed to create observer_events_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRelayAction records a handled relay action. action is normalized to
// the known set before recording.
func (m *Metrics) RecordRelayAction(ctx context.Context, action, status string, duration time.Duration) {
	if m == nil || m.relayActionsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrAction, NormalizeAction(action)),
		attribute.String(attrStatus, status),
	)
	m.relayActionsTotal.Add(ctx, 1, attrs)
	m.relayActionDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGmailOperation records a Gmail API call (list_labels, create_label,
// modify_thread, modify_message).
func (m *Metrics) RecordGmailOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.gmailOperationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.gmailOperationsTotal.Add(ctx, 1, attrs)
	m.gmailOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordClassifierRequest records a call to the classification service.
func (m *Metrics) RecordClassifierRequest(ctx context.Context, endpoint, status string, duration time.Duration) {
	if m == nil || m.classifierRequestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrEndpoint, endpoint),
		attribute.String(attrStatus, status),
	)
	m.classifierRequestsTotal.Add(ctx, 1, attrs)
	m.classifierRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordLabelApplied counts a successful label application. Label names are
// user-defined and deliberately not recorded.
func (m *Metrics) RecordLabelApplied(ctx context.Context, source string) {
	if m == nil || m.labelsAppliedTotal == nil {
		return
	}
	m.labelsAppliedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrSource, source)))
}

// RecordBatchItem counts one processed batch item by outcome.
func (m *Metrics) RecordBatchItem(ctx context.Context, outcome string) {
	if m == nil || m.batchItemsTotal == nil {
		return
	}
	m.batchItemsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOutcome, outcome)))
}

// RecordObserverEvent counts a thread id seen by the page observer.
func (m *Metrics) RecordObserverEvent(ctx context.Context, result string) {
	if m == nil || m.observerEventsTotal == nil {
		return
	}
	m.observerEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}
