package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vinayprograms/taskapi/bus"
	"github.com/vinayprograms/taskapi/errors"
	"github.com/vinayprograms/taskapi/logging"
	"github.com/vinayprograms/taskapi/task"
)

// StreamConfig tunes the websocket event stream.
type StreamConfig struct {
	// WriteTimeout bounds one frame write.
	// Default: 10s
	WriteTimeout time.Duration

	// PongTimeout is how long the peer may stay silent before the stream
	// is closed. Pings go out at 9/10 of it.
	// Default: 60s
	PongTimeout time.Duration

	// CheckOrigin vets the Origin header. Nil allows any origin, which is
	// acceptable because the API key still applies.
	CheckOrigin func(r *http.Request) bool
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return c
}

func (c StreamConfig) pingInterval() time.Duration {
	return c.PongTimeout * 9 / 10
}

// streamEvents upgrades to a websocket and forwards events from the bus.
// With ?taskId=<id> only that task's events are sent.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context())
	taskID := r.URL.Query().Get("taskId")

	if !s.trackStream() {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Error: &errorBody{
			Code:    errors.ErrCodeUnavailable,
			Message: "server shutting down",
		}})
		return
	}
	defer s.streams.Done()

	sub, err := s.bus.Subscribe(bus.AllEventsSubject)
	if err != nil {
		writeError(w, log, err)
		return
	}
	defer sub.Unsubscribe()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.stream.CheckOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		log.Warn("stream_upgrade_failed", map[string]interface{}{"error": err})
		return
	}

	log.Info("stream_opened", map[string]interface{}{"task_id": taskID})
	defer log.Info("stream_closed", map[string]interface{}{"task_id": taskID})

	s.runStream(conn, sub, taskID, log)
}

// trackStream counts a new stream unless shutdown has begun. Once
// OnShutdown has marked the server draining no stream is added, so Wait
// never races Add.
func (s *Server) trackStream() bool {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.draining {
		return false
	}
	s.streams.Add(1)
	return true
}

// runStream pumps messages until the peer leaves, the subscription ends or
// the server shuts down. The read loop only handles control frames.
func (s *Server) runStream(conn *websocket.Conn, sub bus.Subscription, taskID string, log *logging.Logger) {
	defer conn.Close()

	gone := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(s.stream.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.stream.PongTimeout))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.stream.pingInterval())
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-s.closing:
			s.closeFrame(conn, websocket.CloseGoingAway, "server shutting down")
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(s.stream.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-sub.Messages():
			if !ok {
				s.closeFrame(conn, websocket.CloseGoingAway, "event source closed")
				return
			}
			if taskID != "" && !forTask(msg.Data, taskID) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(s.stream.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
				log.Debug("stream_write_failed", map[string]interface{}{"error": err})
				return
			}
		}
	}
}

func (s *Server) closeFrame(conn *websocket.Conn, code int, reason string) {
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
}

// forTask reports whether an encoded event belongs to taskID.
func forTask(data []byte, taskID string) bool {
	var ev task.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return false
	}
	return ev.TaskID == taskID
}
