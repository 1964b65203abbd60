package logging

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelInfo)

	// Debug should be filtered
	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("debug message should be filtered at INFO level")
	}

	logger.Info("info message")
	output := buf.String()
	if !strings.Contains(output, "INFO") {
		t.Error("log should contain INFO level")
	}
	if !strings.Contains(output, "info message") {
		t.Error("log should contain the message")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{" WARN ", LevelWarn, true},
		{"Error", LevelError, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	root := New()
	root.SetOutput(&buf)

	// Derived loggers share the root's output.
	root.WithComponent("service").Info("test message")

	output := buf.String()
	if !strings.Contains(output, "[service]") {
		t.Errorf("expected component 'service' in log, got: %s", output)
	}
}

func TestLogger_SharedLevel(t *testing.T) {
	var buf bytes.Buffer
	root := New()
	root.SetOutput(&buf)
	child := root.WithComponent("store")

	root.SetLevel(LevelError)
	child.Warn("hidden")
	if buf.Len() > 0 {
		t.Errorf("child should follow root level, got: %s", buf.String())
	}
}

func TestLogger_WithRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.WithRequestID("req-123").Info("test message")

	if !strings.Contains(buf.String(), "request_id=req-123") {
		t.Errorf("expected request id field, got: %s", buf.String())
	}
}

func TestLogger_FieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Info("fields", map[string]interface{}{
		"zeta":  1,
		"alpha": "a",
	})

	output := buf.String()
	if !strings.Contains(output, "alpha=a zeta=1") {
		t.Errorf("expected sorted fields, got: %s", output)
	}
}

func TestLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := New().WithComponent("test")
	logger.SetOutput(&buf)

	logger.Info("hello world", map[string]interface{}{"key": "value"})

	output := buf.String()
	// Format: LEVEL TIMESTAMP [component] message key=value
	if !strings.HasPrefix(output, "INFO ") {
		t.Errorf("expected line to start with 'INFO ', got: %s", output)
	}
	if !strings.Contains(output, "[test]") {
		t.Errorf("expected component [test], got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("expected key=value, got: %s", output)
	}
}

func TestLogger_Mutation(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Mutation("update", "t-1", 3, 2*time.Millisecond)

	output := buf.String()
	for _, want := range []string{"task_update", "task_id=t-1", "version=3", "duration=2ms"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in log, got: %s", want, output)
		}
	}
}

func TestLogger_EventDispatched(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	// Success is DEBUG and filtered at INFO.
	logger.EventDispatched("worker", "t-1", "CREATED", nil)
	if buf.Len() > 0 {
		t.Errorf("successful dispatch should log at DEBUG, got: %s", buf.String())
	}

	logger.EventDispatched("worker", "t-1", "CREATED", fmt.Errorf("boom"))
	output := buf.String()
	if !strings.Contains(output, "WARN") || !strings.Contains(output, "error=boom") {
		t.Errorf("expected warning with error, got: %s", output)
	}
}

func TestLogger_Absorbed(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Absorbed("event_append", "t-9", fmt.Errorf("disk I/O error"))

	output := buf.String()
	if !strings.HasPrefix(output, "ERROR") {
		t.Errorf("absorbed failures log at ERROR, got: %s", output)
	}
	if !strings.Contains(output, "step=event_append") {
		t.Errorf("expected step field, got: %s", output)
	}
}

func TestLogger_Request(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Request("GET", "/api/v1/tasks", 200, time.Millisecond)
	if buf.Len() > 0 {
		t.Errorf("2xx requests log at DEBUG, got: %s", buf.String())
	}
	logger.Request("GET", "/api/v1/tasks", 500, time.Millisecond)
	if !strings.Contains(buf.String(), "status=500") {
		t.Errorf("expected 5xx request logged, got: %s", buf.String())
	}
}

func TestNop(t *testing.T) {
	// Should not panic
	Nop().Error("discarded", map[string]interface{}{"k": "v"})
}
