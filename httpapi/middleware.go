package httpapi

import (
	"bufio"
	"context"
	"crypto/subtle"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/taskapi/errors"
	"github.com/vinayprograms/taskapi/logging"
)

// APIKeyHeader carries the shared secret.
const APIKeyHeader = "X-API-Key"

// RequestIDHeader echoes the id assigned to each request.
const RequestIDHeader = "X-Request-ID"

// statusRecorder captures the response status for logs and spans.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets the websocket upgrade take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// observe assigns a request id, opens a server span, recovers panics and
// logs the finished request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		log := s.log.WithRequestID(id)

		ctx, span := s.tracer.StartHTTPSpan(r)
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			if p := recover(); p != nil {
				log.Error("panic", map[string]interface{}{"panic": fmt.Sprint(p), "path": r.URL.Path})
				if rec.status == 0 {
					writeError(rec, log, errors.Internal("panic"))
				}
			}
			s.tracer.EndHTTPSpan(span, rec.status)
			log.Request(r.Method, r.URL.Path, rec.status, time.Since(start))
		}()

		next.ServeHTTP(rec, r.WithContext(withLogger(ctx, log)))
	})
}

// clientKey identifies the caller for throttling: the API key when sent,
// else the remote host.
func clientKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

// throttle rejects callers that exhausted their token bucket.
func (s *Server) throttle(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !s.limiter.TryAcquire(key) {
			retry := 1
			if c := s.limiter.GetCapacity(key); c != nil && c.RetryAfter > 0 {
				retry = int(math.Ceil(c.RetryAfter.Seconds()))
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, loggerFrom(r.Context()), errors.RateLimited("too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate checks the shared API key. An empty configured key
// disables the check.
func (s *Server) authenticate(next http.Handler) http.Handler {
	if s.apiKey == "" {
		return next
	}
	want := []byte(s.apiKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(APIKeyHeader)
		if got == "" {
			writeError(w, loggerFrom(r.Context()), errors.Unauthorized("missing API key"))
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			writeError(w, loggerFrom(r.Context()), errors.Unauthorized("invalid API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loggerKey struct{}

func withLogger(ctx context.Context, log *logging.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// loggerFrom returns the request logger, or a no-op logger outside a
// request.
func loggerFrom(ctx context.Context) *logging.Logger {
	if log, ok := ctx.Value(loggerKey{}).(*logging.Logger); ok {
		return log
	}
	return logging.Nop()
}
