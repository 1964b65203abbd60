// OpenTelemetry tracing for task operations.
package telemetry

import (
	"context"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vinayprograms/taskapi/errors"
)

// Tracer wraps OpenTelemetry tracing with task-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include request content in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return NoopTracer()
	}
	return globalTracer
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
}

// NewTracer creates a new tracer with the given name.
func NewTracer(name string, debug bool) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
		debug:  debug,
	}
}

// NewTracerFromProvider creates a tracer on an explicit provider, for tests.
func NewTracerFromProvider(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{tracer: tp.Tracer(name), debug: debug}
}

// SetDebug enables or disables debug mode.
func (t *Tracer) SetDebug(debug bool) {
	t.debug = debug
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Task Spans ---

// TaskSpanOptions contains the outcome of a task operation.
type TaskSpanOptions struct {
	TaskID    string
	Version   int64
	EventType string
	Count     int    // items returned or created by listings and bulk calls
	Query     string // free text, only included if debug=true
}

// StartTaskSpan starts a span named "task."+op.
func (t *Tracer) StartTaskSpan(ctx context.Context, op, taskID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "task."+op, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("task.operation", op))
	if taskID != "" {
		span.SetAttributes(attribute.String("task.id", taskID))
	}
	return ctx, span
}

// EndTaskSpan ends a task span with attributes. The error code is recorded
// so conflicts and validation failures can be told apart from faults.
func (t *Tracer) EndTaskSpan(span trace.Span, opts TaskSpanOptions, err error) {
	var attrs []attribute.KeyValue
	if opts.TaskID != "" {
		attrs = append(attrs,
			attribute.String("task.id", opts.TaskID),
			attribute.Int64("task.version", opts.Version),
		)
	}
	if opts.EventType != "" {
		attrs = append(attrs, attribute.String("task.event", opts.EventType))
	}
	if opts.Count > 0 {
		attrs = append(attrs, attribute.Int("task.count", opts.Count))
	}
	if t.debug && opts.Query != "" {
		attrs = append(attrs, attribute.String("task.query", truncate(opts.Query, 500)))
	}
	span.SetAttributes(attrs...)

	if err != nil {
		span.SetAttributes(attribute.String("error.code", string(errors.Code(err))))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// --- HTTP Spans ---

// StartHTTPSpan starts a server span for r, continuing any trace context
// carried in its headers.
func (t *Tracer) StartHTTPSpan(r *http.Request) (context.Context, trace.Span) {
	ctx := ExtractContext(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := t.tracer.Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("http.request.method", r.Method),
		attribute.String("url.path", r.URL.Path),
	)
	return ctx, span
}

// EndHTTPSpan ends a server span with the response status.
func (t *Tracer) EndHTTPSpan(span trace.Span, status int) {
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if status >= 500 {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	span.End()
}

// --- Context Propagation ---

// InjectContext injects trace context into a carrier for cross-process propagation.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractContext extracts trace context from a carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// --- Helpers ---

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
