// Package logging provides leveled console logging for the task service.
// Every package takes a component logger derived from one root logger so
// lines can be filtered by component.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ParseLevel converts a level name (any case) to a Level.
// Unknown names return LevelInfo and false.
func ParseLevel(s string) (Level, bool) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelPriority[l]; ok {
		return l, true
	}
	return LevelInfo, false
}

// Logger writes one line per entry: LEVEL TIMESTAMP [component] message key=value ...
// Loggers derived with WithComponent share output, level and write lock.
type Logger struct {
	sink      *sink
	component string
	requestID string
}

type sink struct {
	mu       sync.Mutex
	output   io.Writer
	minLevel Level
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger writing to stdout at INFO.
func New() *Logger {
	return &Logger{
		sink: &sink{output: os.Stdout, minLevel: LevelInfo},
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{
		sink: &sink{output: io.Discard, minLevel: LevelError},
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		sink:      l.sink,
		component: component,
		requestID: l.requestID,
	}
}

// WithRequestID returns a new logger that tags every line with request_id.
func (l *Logger) WithRequestID(id string) *Logger {
	return &Logger{
		sink:      l.sink,
		component: l.component,
		requestID: id,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	l.sink.minLevel = level
	l.sink.mu.Unlock()
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	l.sink.output = w
	l.sink.mu.Unlock()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats fields as key=value pairs in key order.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if levelPriority[level] < levelPriority[l.sink.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	merged := map[string]interface{}{}
	if len(fields) > 0 && fields[0] != nil {
		for k, v := range fields[0] {
			merged[k] = v
		}
	}
	if l.requestID != "" {
		merged["request_id"] = l.requestID
	}
	fieldStr := formatFields(merged)

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.sink.output.Write([]byte(line))
}

// --- Domain helpers ---

// Mutation logs a committed task write.
func (l *Logger) Mutation(op, taskID string, version int64, duration time.Duration) {
	l.Info("task_"+op, map[string]interface{}{
		"task_id":  taskID,
		"version":  version,
		"duration": duration.String(),
	})
}

// EventDispatched logs delivery of an event to a subscriber.
func (l *Logger) EventDispatched(subscriber, taskID, eventType string, err error) {
	fields := map[string]interface{}{
		"subscriber": subscriber,
		"task_id":    taskID,
		"type":       eventType,
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Warn("event_dispatch_failed", fields)
		return
	}
	l.Debug("event_dispatched", fields)
}

// Absorbed logs a failure that must not fail the surrounding operation,
// such as an event append after the task write already committed.
func (l *Logger) Absorbed(step, taskID string, err error) {
	l.Error("absorbed_failure", map[string]interface{}{
		"step":    step,
		"task_id": taskID,
		"error":   err,
	})
}

// Request logs a finished HTTP request.
func (l *Logger) Request(method, path string, status int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":   method,
		"path":     path,
		"status":   status,
		"duration": duration.String(),
	}
	if status >= 500 {
		l.Error("request", fields)
		return
	}
	l.Debug("request", fields)
}
