package instrumentation

import (
	"context"
	"log/slog"
	"time"
)

// ActionInvocation captures one relay action for the audit trail: who asked
// for which label on which thread, and how it ended.
type ActionInvocation struct {
	Action   string
	Source   string
	ThreadID string
	Label    string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
}

// NewActionInvocation creates a new ActionInvocation with timing started.
// Call Complete() when the action finishes.
func NewActionInvocation(action, source string) *ActionInvocation {
	return &ActionInvocation{
		Action:    action,
		Source:    source,
		StartTime: time.Now(),
	}
}

// WithTarget sets the thread and label the action operates on.
func (ai *ActionInvocation) WithTarget(threadID, label string) *ActionInvocation {
	ai.ThreadID = threadID
	ai.Label = label
	return ai
}

// WithSpanContext copies the trace id from ctx.
func (ai *ActionInvocation) WithSpanContext(ctx context.Context) *ActionInvocation {
	ai.TraceID = GetTraceID(ctx)
	return ai
}

// Complete marks the invocation as finished.
func (ai *ActionInvocation) Complete(err error) *ActionInvocation {
	ai.Duration = time.Since(ai.StartTime)
	ai.Success = err == nil
	if err != nil {
		ai.Error = err.Error()
	}
	return ai
}

// Status returns "success" or "error" based on the Success field.
func (ai *ActionInvocation) Status() string {
	if ai.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes for the record. Thread ids are included
// only when includeThreadIDs is set.
func (ai *ActionInvocation) LogAttrs(includeThreadIDs bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", ai.Action),
		slog.Duration("duration", ai.Duration),
		slog.Bool("success", ai.Success),
	}
	if ai.Source != "" {
		attrs = append(attrs, slog.String("source", ai.Source))
	}
	if ai.Label != "" {
		attrs = append(attrs, slog.String("label", ai.Label))
	}
	if includeThreadIDs && ai.ThreadID != "" {
		attrs = append(attrs, slog.String("thread_id", ai.ThreadID))
	}
	if ai.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ai.TraceID))
	}
	if ai.Error != "" {
		attrs = append(attrs, slog.String("error", ai.Error))
	}
	return attrs
}

// AuditLogger writes ActionInvocations as structured log records.
type AuditLogger struct {
	logger           *slog.Logger
	enabled          bool
	includeThreadIDs bool
}

// NewAuditLogger creates a new AuditLogger with the given configuration.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:           logger,
		enabled:          config.Enabled,
		includeThreadIDs: config.IncludeThreadIDs,
	}
}

// LogAction logs a completed invocation. Failures are logged at warn level.
func (al *AuditLogger) LogAction(ai *ActionInvocation) {
	if al == nil || !al.enabled {
		return
	}

	attrs := ai.LogAttrs(al.includeThreadIDs)
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if ai.Success {
		al.logger.Info("action_executed", args...)
	} else {
		al.logger.Warn("action_failed", args...)
	}
}
