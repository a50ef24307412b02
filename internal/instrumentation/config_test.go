package instrumentation

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnv = []string{
	"OTEL_SERVICE_NAME",
	"INSTRUMENTATION_ENABLED",
	"METRICS_EXPORTER",
	"TRACING_EXPORTER",
	"OTEL_TRACES_SAMPLER_ARG",
	"AUDIT_LOGGING_ENABLED",
	"AUDIT_LOGGING_INCLUDE_THREAD_IDS",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	clearConfigEnv(t)

	cfg := DefaultConfig()
	assert.Equal(t, "inboxlabeler", cfg.ServiceName)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, ExporterPrometheus, cfg.MetricsExporter)
	assert.Equal(t, ExporterNone, cfg.TracingExporter)
	assert.Equal(t, 0.1, cfg.TraceSamplingRate)
	assert.Equal(t, PageSourceNone, cfg.Labeler.PageSource)
	assert.True(t, cfg.AuditLogging.Enabled)
	assert.False(t, cfg.AuditLogging.IncludeThreadIDs, "thread ids stay out of audit records unless asked for")
	require.NoError(t, cfg.Validate())
}

func TestDefaultConfig_FromEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("OTEL_SERVICE_NAME", "labeler-canary")
	t.Setenv("INSTRUMENTATION_ENABLED", "false")
	t.Setenv("METRICS_EXPORTER", ExporterStdout)
	t.Setenv("TRACING_EXPORTER", ExporterStdout)
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.5")
	t.Setenv("AUDIT_LOGGING_INCLUDE_THREAD_IDS", "true")

	cfg := DefaultConfig()
	assert.Equal(t, "labeler-canary", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, ExporterStdout, cfg.MetricsExporter)
	assert.Equal(t, ExporterStdout, cfg.TracingExporter)
	assert.Equal(t, 0.5, cfg.TraceSamplingRate)
	assert.True(t, cfg.AuditLogging.IncludeThreadIDs)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:   "prometheus metrics without tracing",
			config: Config{MetricsExporter: ExporterPrometheus, TracingExporter: ExporterNone},
		},
		{
			name:   "otlp tracing with endpoint",
			config: Config{MetricsExporter: ExporterPrometheus, TracingExporter: ExporterOTLP, OTLPEndpoint: "localhost:4318"},
		},
		{
			name:   "empty exporters",
			config: Config{},
		},
		{
			name:    "negative sampling rate",
			config:  Config{TraceSamplingRate: -0.5},
			wantErr: "sampling rate",
		},
		{
			name:    "sampling rate above one",
			config:  Config{TraceSamplingRate: 1.5},
			wantErr: "sampling rate",
		},
		{
			name:    "NaN sampling rate",
			config:  Config{TraceSamplingRate: math.NaN()},
			wantErr: "sampling rate",
		},
		{
			name:    "unknown metrics exporter",
			config:  Config{MetricsExporter: "graphite"},
			wantErr: "invalid metrics exporter",
		},
		{
			name:    "unknown tracing exporter",
			config:  Config{TracingExporter: "zipkin"},
			wantErr: "invalid tracing exporter",
		},
		{
			name:    "otlp tracing without endpoint",
			config:  Config{TracingExporter: ExporterOTLP},
			wantErr: "OTLP endpoint is required",
		},
		{
			name:    "otlp metrics without endpoint",
			config:  Config{MetricsExporter: ExporterOTLP},
			wantErr: "OTLP endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("INBOXLABELER_TEST_STRING", "value")
	t.Setenv("INBOXLABELER_TEST_BOOL", "true")
	t.Setenv("INBOXLABELER_TEST_BOOL_BAD", "yes please")
	t.Setenv("INBOXLABELER_TEST_FLOAT", "0.75")
	t.Setenv("INBOXLABELER_TEST_FLOAT_BAD", "most")

	assert.Equal(t, "value", envString("INBOXLABELER_TEST_STRING", "default"))
	assert.Equal(t, "default", envString("INBOXLABELER_TEST_MISSING", "default"))

	assert.True(t, envParsed("INBOXLABELER_TEST_BOOL", false, strconv.ParseBool))
	assert.True(t, envParsed("INBOXLABELER_TEST_BOOL_BAD", true, strconv.ParseBool))
	assert.False(t, envParsed("INBOXLABELER_TEST_MISSING", false, strconv.ParseBool))

	assert.Equal(t, 0.75, envParsed("INBOXLABELER_TEST_FLOAT", 0.5, parseFloat))
	assert.Equal(t, 0.5, envParsed("INBOXLABELER_TEST_FLOAT_BAD", 0.5, parseFloat))
	assert.Equal(t, 0.5, envParsed("INBOXLABELER_TEST_MISSING", 0.5, parseFloat))
}

func TestLabelerInfo_ClassifierEndpoint(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "", want: ""},
		{url: "http://localhost:5050", want: "http://localhost:5050"},
		{url: "https://user:pw@classifier.lan/api?key=1#x", want: "https://classifier.lan/api"},
		{url: "localhost:5050", want: "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, LabelerInfo{ClassifierURL: tt.url}.classifierEndpoint())
		})
	}
}
