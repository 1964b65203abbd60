package shutdown

import (
	"context"
	"errors"
	"time"

	"github.com/vinayprograms/taskapi/logging"
)

var (
	ErrAlreadyShutdown = errors.New("shutdown already initiated")
	ErrTimeout         = errors.New("shutdown timeout exceeded")
	ErrHandlerFailed   = errors.New("one or more handlers failed")
)

// Phases run in ascending order. Handlers sharing a phase stop concurrently.
const (
	PhaseHTTP       = 10 // listener closed, in-flight requests finish
	PhaseSweepers   = 20
	PhaseDispatcher = 30 // queued events drained to subscribers
	PhaseClose      = 40 // bus, KV, index, database
)

// ShutdownHandler stops one component. ctx carries the shutdown deadline.
type ShutdownHandler interface {
	OnShutdown(ctx context.Context) error
}

// ShutdownFunc lets a plain function be registered as a handler.
type ShutdownFunc func(ctx context.Context) error

func (f ShutdownFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// HandlerResult records how one handler stopped.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// ShutdownResult is the outcome of a completed shutdown. Err is nil only
// when every handler returned nil before the deadline.
type ShutdownResult struct {
	TotalDuration time.Duration
	Results       []HandlerResult
	Err           error
}

func (r *ShutdownResult) Failed() bool {
	return r.Err != nil
}

// FailedHandlers lists handler names in the order they ran.
func (r *ShutdownResult) FailedHandlers() []string {
	var names []string
	for _, hr := range r.Results {
		if hr.Err == nil {
			continue
		}
		names = append(names, hr.Name)
	}
	return names
}

type Config struct {
	// Timeout bounds signal-triggered shutdowns and ShutdownWithTimeout(0).
	Timeout time.Duration

	// ContinueOnError runs later phases even after a handler fails.
	ContinueOnError bool

	// Logger gets one entry per handler; nil is silent.
	Logger *logging.Logger
}

// DefaultConfig waits 30s and keeps going past failed handlers.
func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Second, ContinueOnError: true}
}

type registration struct {
	name    string
	phase   int
	handler ShutdownHandler
}
