package instrumentation

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"slices"
	"strconv"
	"time"
)

// Page source kinds reported as the inboxlabeler.page_source resource attribute.
const (
	PageSourceChrome   = "chrome"
	PageSourceSnapshot = "snapshot"
	PageSourceNone     = "none"
)

// Config holds the telemetry settings of one labeler process.
type Config struct {
	ServiceName       string
	ServiceVersion    string
	ServiceInstanceID string // defaults to the hostname

	// Enabled is false when INSTRUMENTATION_ENABLED=false; metrics and
	// tracing calls then become no-ops.
	Enabled bool

	MetricsExporter   string // prometheus, otlp or stdout
	TracingExporter   string // otlp, stdout or none
	OTLPEndpoint      string // host:port, no scheme
	OTLPInsecure      bool
	TraceSamplingRate float64

	// Labeler describes what this process is wired to. It is attached to
	// every exported metric and span as resource attributes.
	Labeler LabelerInfo

	AuditLogging AuditLoggingConfig
}

// LabelerInfo identifies the collaborators of a labeler process.
type LabelerInfo struct {
	ClassifierURL string
	PageSource    string // chrome, snapshot or none
	Transport     string // stdio or streamable-http; empty for CLI commands
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	Enabled bool

	// IncludeThreadIDs adds Gmail thread ids to audit records. Off by default
	// since ids can be correlated with mailbox contents.
	IncludeThreadIDs bool
}

var (
	metricsExporters = []string{ExporterPrometheus, ExporterOTLP, ExporterStdout}
	tracingExporters = []string{ExporterOTLP, ExporterStdout, ExporterNone}
	pageSources      = []string{PageSourceChrome, PageSourceSnapshot, PageSourceNone}
)

// DefaultConfig reads the telemetry settings from the environment. The
// Labeler fields are left for the caller, which knows the loaded config.
func DefaultConfig() Config {
	return Config{
		ServiceName:       envString("OTEL_SERVICE_NAME", "inboxlabeler"),
		ServiceVersion:    "unknown",
		ServiceInstanceID: envString("OTEL_SERVICE_INSTANCE_ID", ""),
		Enabled:           envParsed("INSTRUMENTATION_ENABLED", true, strconv.ParseBool),
		MetricsExporter:   envString("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:   envString("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:      envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:      envParsed("OTEL_EXPORTER_OTLP_INSECURE", false, strconv.ParseBool),
		TraceSamplingRate: envParsed("OTEL_TRACES_SAMPLER_ARG", 0.1, parseFloat),
		Labeler:           LabelerInfo{PageSource: PageSourceNone},
		AuditLogging: AuditLoggingConfig{
			Enabled:          envParsed("AUDIT_LOGGING_ENABLED", true, strconv.ParseBool),
			IncludeThreadIDs: envParsed("AUDIT_LOGGING_INCLUDE_THREAD_IDS", false, strconv.ParseBool),
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if math.IsNaN(c.TraceSamplingRate) || c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}
	if c.MetricsExporter != "" && !slices.Contains(metricsExporters, c.MetricsExporter) {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}
	if c.TracingExporter != "" && !slices.Contains(tracingExporters, c.TracingExporter) {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}
	if (c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP) && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when exporting over OTLP")
	}
	if c.Labeler.PageSource != "" && !slices.Contains(pageSources, c.Labeler.PageSource) {
		return fmt.Errorf("invalid page source %q, must be one of: chrome, snapshot, none", c.Labeler.PageSource)
	}
	return nil
}

// classifierEndpoint returns the classifier URL without credentials, query or
// fragment, so it is safe to export.
func (l LabelerInfo) classifierEndpoint() string {
	if l.ClassifierURL == "" {
		return ""
	}
	u, err := url.Parse(l.ClassifierURL)
	if err != nil || u.Host == "" {
		return "invalid"
	}
	return u.Scheme + "://" + u.Host + u.Path
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envParsed returns the parsed value of key, or def when it is unset or
// does not parse.
func envParsed[T any](key string, def T, parse func(string) (T, error)) T {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := parse(v)
	if err != nil {
		return def
	}
	return parsed
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"

	// Batch item outcomes
	OutcomeLabeled = "labeled"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"

	// Observer event results
	ObserverNew       = "new"
	ObserverDuplicate = "duplicate"
	ObserverDropped   = "dropped"

	// Label application sources
	SourceRelay    = "relay"
	SourceCLI      = "cli"
	SourceObserver = "observer"
	SourceBatch    = "batch"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// Metric recording intervals
	DefaultMetricInterval = 10 * time.Second
)
