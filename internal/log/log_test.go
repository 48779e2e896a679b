package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelDebug})

	logger.Info("bundle generated", "user_id", "abc")

	out := buf.String()
	if !strings.Contains(out, "bundle generated") {
		t.Errorf("output missing message: %s", out)
	}
	if !strings.Contains(out, "user_id=abc") {
		t.Errorf("output missing attribute: %s", out)
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("turn complete", "length", 42)

	out := buf.String()
	if !strings.Contains(out, `"msg":"turn complete"`) {
		t.Errorf("output is not JSON with msg field: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Debug("filtered out")
	logger.Info("kept")

	out := buf.String()
	if strings.Contains(out, "filtered out") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("info message should appear")
	}
}

func TestWithAddsContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{})

	logger.With("component", "coach").Info("session started")

	if out := buf.String(); !strings.Contains(out, "component=coach") {
		t.Errorf("output missing component context: %s", out)
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	if logger == nil {
		t.Fatal("NewNop() returned nil")
	}
	logger.Error("discarded")
}
