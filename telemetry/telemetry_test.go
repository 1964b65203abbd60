package telemetry

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vinayprograms/taskapi/errors"
)

func newRecordingTracer(debug bool) (*Tracer, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return NewTracerFromProvider(tp, "test", debug), rec
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTaskSpan(t *testing.T) {
	tr, rec := newRecordingTracer(false)

	_, span := tr.StartTaskSpan(context.Background(), "update", "t1")
	tr.EndTaskSpan(span, TaskSpanOptions{TaskID: "t1", Version: 3, EventType: "UPDATED"}, nil)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "task.update" {
		t.Errorf("name = %q", s.Name())
	}
	if v, ok := attr(s.Attributes(), "task.version"); !ok || v.AsInt64() != 3 {
		t.Errorf("task.version = %v", v)
	}
	if v, ok := attr(s.Attributes(), "task.event"); !ok || v.AsString() != "UPDATED" {
		t.Errorf("task.event = %v", v)
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v", s.Status())
	}
}

func TestTaskSpanError(t *testing.T) {
	tr, rec := newRecordingTracer(false)

	_, span := tr.StartTaskSpan(context.Background(), "update", "t1")
	tr.EndTaskSpan(span, TaskSpanOptions{}, errors.VersionConflict("t1", 0, 1))

	s := rec.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v", s.Status())
	}
	if v, _ := attr(s.Attributes(), "error.code"); v.AsString() != "VERSION_CONFLICT" {
		t.Errorf("error.code = %q", v.AsString())
	}
}

func TestTaskSpanQueryOnlyInDebug(t *testing.T) {
	for _, debug := range []bool{false, true} {
		tr, rec := newRecordingTracer(debug)
		_, span := tr.StartTaskSpan(context.Background(), "list", "")
		tr.EndTaskSpan(span, TaskSpanOptions{Query: "secret words", Count: 2}, nil)

		_, ok := attr(rec.Ended()[0].Attributes(), "task.query")
		if ok != debug {
			t.Errorf("debug=%v: task.query present = %v", debug, ok)
		}
	}
}

func TestHTTPSpan(t *testing.T) {
	tr, rec := newRecordingTracer(false)

	r := httptest.NewRequest("GET", "/api/v1/tasks", nil)
	_, span := tr.StartHTTPSpan(r)
	tr.EndHTTPSpan(span, 500)

	s := rec.Ended()[0]
	if s.Name() != "GET /api/v1/tasks" {
		t.Errorf("name = %q", s.Name())
	}
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v", s.Status())
	}
}

func TestGetTracerDefaultsToNoop(t *testing.T) {
	SetGlobalTracer(nil)
	tr := GetTracer()
	_, span := tr.StartTaskSpan(context.Background(), "get", "t1")
	tr.EndTaskSpan(span, TaskSpanOptions{TaskID: "t1"}, nil)
	if span.IsRecording() {
		t.Error("noop span should not record")
	}
}

func TestProviderConfigEnabled(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if (ProviderConfig{}).Enabled() {
		t.Error("empty config should be disabled")
	}
	if !(ProviderConfig{Endpoint: "localhost:4317"}).Enabled() {
		t.Error("endpoint should enable")
	}
}

func TestInitProviderRequiresEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if _, err := InitProvider(context.Background(), ProviderConfig{}); err == nil {
		t.Error("expected error without endpoint")
	}
}

func TestInitProviderUnknownProtocol(t *testing.T) {
	_, err := InitProvider(context.Background(), ProviderConfig{Endpoint: "localhost:4317", Protocol: "carrier-pigeon"})
	if err == nil {
		t.Error("expected error for unknown protocol")
	}
}

func TestProviderConfigEndpointStripsScheme(t *testing.T) {
	cfg := ProviderConfig{Endpoint: "http://collector:4318"}
	if got := cfg.endpoint(); got != "collector:4318" {
		t.Errorf("endpoint() = %q, want collector:4318", got)
	}

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://env-collector:4317")
	if got := (ProviderConfig{}).endpoint(); got != "env-collector:4317" {
		t.Errorf("endpoint() from env = %q", got)
	}
}

func TestProviderConfigServiceName(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	if got := (ProviderConfig{}).serviceName(); got != "taskapi" {
		t.Errorf("default service name = %q", got)
	}
	t.Setenv("OTEL_SERVICE_NAME", "tasks-eu")
	if got := (ProviderConfig{}).serviceName(); got != "tasks-eu" {
		t.Errorf("env service name = %q", got)
	}
	if got := (ProviderConfig{ServiceName: "explicit"}).serviceName(); got != "explicit" {
		t.Errorf("explicit service name = %q", got)
	}
}

func TestProviderConfigSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{0.5, "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		desc := ProviderConfig{SampleRatio: tt.ratio}.sampler().Description()
		if !strings.Contains(desc, tt.want) {
			t.Errorf("sampler(%v) = %q, want it to mention %q", tt.ratio, desc, tt.want)
		}
	}
}
