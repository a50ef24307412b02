package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewSlogAdapter_WithNil(t *testing.T) {
	adapter := NewSlogAdapter(nil)
	if adapter == nil {
		t.Fatal("NewSlogAdapter returned nil")
	}
	if adapter.Logger() == nil {
		t.Error("adapter logger should not be nil when created with nil")
	}
}

func TestSlogAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	adapter := NewSlogAdapter(logger)

	adapter.Debug("debug msg", "k", "v")
	adapter.Info("info msg")
	adapter.Warn("warn msg")
	adapter.Error("error msg")
	adapter.Debugf("navigated to %s", "inbox")
	adapter.Errorf("cdp failure: %d", 42)

	out := buf.String()
	for _, want := range []string{"debug msg", "k=v", "info msg", "warn msg", "error msg", "navigated to inbox", "cdp failure: 42"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSlogAdapter_ImplementsLogger(t *testing.T) {
	var _ Logger = NewSlogAdapter(nil)
}
