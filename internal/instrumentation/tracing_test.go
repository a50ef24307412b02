package instrumentation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withRecorder installs a span recorder as the global tracer provider for the
// duration of the test.
func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestSpanAttributeBuilder(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithThread("18c2ab").
		WithLabel("Work").
		WithBatch(12, 5).
		Build()

	attrMap := make(map[string]interface{})
	for _, attr := range attrs {
		attrMap[string(attr.Key)] = attr.Value.AsInterface()
	}

	assert.Len(t, attrs, 4)
	assert.Equal(t, "18c2ab", attrMap[SpanAttrThreadID])
	assert.Equal(t, "Work", attrMap[SpanAttrLabel])
	assert.Equal(t, int64(12), attrMap[SpanAttrItems])
	assert.Equal(t, int64(5), attrMap[SpanAttrBatchSize])
}

func TestSpanAttributeBuilder_EmptyValues(t *testing.T) {
	attrs := NewSpanAttributeBuilder().WithThread("").WithLabel("").Build()
	assert.Empty(t, attrs)
}

func TestStartSpans(t *testing.T) {
	recorder := withRecorder(t)
	ctx := context.Background()

	_, s1 := StartActionSpan(ctx, "applyLabel")
	s1.End()
	_, s2 := StartGmailSpan(ctx, OperationModifyThread)
	s2.End()
	_, s3 := StartClassifierSpan(ctx, EndpointPredict)
	s3.End()
	_, s4 := StartActionSpan(ctx, "bogus")
	s4.End()

	ended := recorder.Ended()
	require.Len(t, ended, 4)
	assert.Equal(t, "relay.applyLabel", ended[0].Name())
	assert.Equal(t, "gmail.modify_thread", ended[1].Name())
	assert.Equal(t, "classifier.predict", ended[2].Name())
	assert.Equal(t, "relay.unknown", ended[3].Name())
}

func TestEndSpan(t *testing.T) {
	recorder := withRecorder(t)
	ctx := context.Background()

	_, ok := StartSpan(ctx, "ok")
	EndSpan(ok, nil)
	_, failed := StartSpan(ctx, "failed")
	EndSpan(failed, errors.New("boom"))

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "boom", ended[1].Status().Description)
}

func TestGetTraceID(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))

	withRecorder(t)
	ctx, span := StartSpan(context.Background(), "traced")
	defer span.End()
	assert.Len(t, GetTraceID(ctx), 32)
}
