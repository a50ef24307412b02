package instrumentation

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionInvocation_Complete(t *testing.T) {
	ai := NewActionInvocation("applyLabel", SourceRelay).WithTarget("18c2ab", "Work")
	assert.False(t, ai.StartTime.IsZero())

	ai.Complete(nil)
	assert.True(t, ai.Success)
	assert.Equal(t, StatusSuccess, ai.Status())
	assert.Empty(t, ai.Error)

	failed := NewActionInvocation("applyLabel", SourceRelay).Complete(errors.New("failed to apply label: Not Found"))
	assert.False(t, failed.Success)
	assert.Equal(t, StatusError, failed.Status())
	assert.Equal(t, "failed to apply label: Not Found", failed.Error)
}

func TestActionInvocation_LogAttrs(t *testing.T) {
	ai := NewActionInvocation("applyLabelToEmail", SourceRelay).WithTarget("18c2ab", "Work").Complete(nil)

	keys := func(attrs []slog.Attr) map[string]string {
		m := map[string]string{}
		for _, a := range attrs {
			m[a.Key] = a.Value.String()
		}
		return m
	}

	without := keys(ai.LogAttrs(false))
	assert.Equal(t, "applyLabelToEmail", without["action"])
	assert.Equal(t, "Work", without["label"])
	assert.NotContains(t, without, "thread_id")
	assert.NotContains(t, without, "error")

	with := keys(ai.LogAttrs(true))
	assert.Equal(t, "18c2ab", with["thread_id"])
}

func TestAuditLogger_LogAction(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	al := NewAuditLogger(logger, AuditLoggingConfig{Enabled: true})

	al.LogAction(NewActionInvocation("ping", SourceRelay).Complete(nil))
	al.LogAction(NewActionInvocation("applyLabel", SourceRelay).Complete(errors.New("nope")))

	out := buf.String()
	assert.Contains(t, out, "msg=action_executed")
	assert.Contains(t, out, "level=WARN msg=action_failed")
	assert.Contains(t, out, "error=nope")
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewTextHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})

	al.LogAction(NewActionInvocation("ping", SourceRelay).Complete(nil))
	assert.Zero(t, buf.Len())

	var nilLogger *AuditLogger
	nilLogger.LogAction(NewActionInvocation("ping", SourceRelay))
	assert.False(t, strings.Contains(buf.String(), "ping"))
}
