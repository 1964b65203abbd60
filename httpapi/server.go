package httpapi

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vinayprograms/taskapi/bus"
	"github.com/vinayprograms/taskapi/logging"
	"github.com/vinayprograms/taskapi/ratelimit"
	"github.com/vinayprograms/taskapi/service"
	"github.com/vinayprograms/taskapi/task"
	"github.com/vinayprograms/taskapi/telemetry"
)

// TaskService is the set of operations the API exposes.
type TaskService interface {
	Create(ctx context.Context, in service.CreateInput, idempotencyKey string) (*task.Task, error)
	BulkCreate(ctx context.Context, ins []service.CreateInput) ([]*task.Task, error)
	Get(ctx context.Context, id string) (*task.Task, error)
	Update(ctx context.Context, id string, in service.UpdateInput) (*task.Task, error)
	UpdateStatus(ctx context.Context, id string, in service.StatusInput) (*task.Task, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, c task.Criteria) (task.Page[*task.Task], error)
	ListEvents(ctx context.Context, id string, page, size int) (task.Page[task.Event], error)
}

// Config wires a Server. Service is required.
type Config struct {
	Service TaskService

	// Bus feeds the event stream. Nil disables the stream route.
	Bus bus.MessageBus

	// Limiter throttles callers. Nil disables throttling.
	Limiter ratelimit.RateLimiter

	// APIKey is the shared secret. Empty disables authentication.
	APIKey string

	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Stream StreamConfig
	Logger *logging.Logger
	Tracer *telemetry.Tracer
}

// Server serves the task API.
type Server struct {
	svc     TaskService
	bus     bus.MessageBus
	limiter ratelimit.RateLimiter
	apiKey  string
	stream  StreamConfig
	log     *logging.Logger
	tracer  *telemetry.Tracer

	http    *http.Server
	handler http.Handler

	closing   chan struct{}
	closeOnce sync.Once

	streamMu sync.Mutex
	draining bool
	streams  sync.WaitGroup
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.GetTracer()
	}
	s := &Server{
		svc:     cfg.Service,
		bus:     cfg.Bus,
		limiter: cfg.Limiter,
		apiKey:  cfg.APIKey,
		stream:  cfg.Stream.withDefaults(),
		log:     cfg.Logger.WithComponent("httpapi"),
		tracer:  cfg.Tracer,
		closing: make(chan struct{}),
	}
	s.handler = s.routes()
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/tasks", s.createTask)
	api.HandleFunc("POST /api/v1/tasks/bulk", s.bulkCreate)
	api.HandleFunc("GET /api/v1/tasks", s.listTasks)
	api.HandleFunc("GET /api/v1/tasks/{id}", s.getTask)
	api.HandleFunc("PUT /api/v1/tasks/{id}", s.updateTask)
	api.HandleFunc("PATCH /api/v1/tasks/{id}/status", s.updateStatus)
	api.HandleFunc("DELETE /api/v1/tasks/{id}", s.deleteTask)
	api.HandleFunc("GET /api/v1/tasks/{id}/events", s.listEvents)
	if s.bus != nil {
		api.HandleFunc("GET /api/v1/events/stream", s.streamEvents)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", s.health)
	root.Handle("/api/", s.throttle(s.authenticate(api)))
	return s.observe(root)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Serve accepts connections on l until OnShutdown.
func (s *Server) Serve(l net.Listener) error {
	s.log.Info("listening", map[string]interface{}{"addr": l.Addr().String()})
	err := s.http.Serve(l)
	if stderrors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe listens on the configured address until OnShutdown.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// OnShutdown implements shutdown.ShutdownHandler. Open event streams are
// closed and in-flight requests finish within ctx.
func (s *Server) OnShutdown(ctx context.Context) error {
	s.streamMu.Lock()
	s.draining = true
	s.streamMu.Unlock()
	s.closeOnce.Do(func() { close(s.closing) })
	err := s.http.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
