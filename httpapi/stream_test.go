package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/taskapi/service"
	"github.com/vinayprograms/taskapi/task"
)

func dialStream(t *testing.T, url, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/api/v1/events/stream" + query
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{APIKeyHeader: {testKey}})
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) task.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)

	var ev task.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestStreamDeliversEvents(t *testing.T) {
	a := newTestAPI(t)
	ts := httptest.NewServer(a.handler)
	t.Cleanup(ts.Close)

	conn := dialStream(t, ts.URL, "")

	created, err := a.svc.Create(context.Background(), service.CreateInput{Title: "watched"}, "")
	require.NoError(t, err)

	ev := readEvent(t, conn)
	assert.Equal(t, task.EventCreated, ev.Type)
	assert.Equal(t, created.ID, ev.TaskID)
	assert.Equal(t, int64(0), ev.TaskVersion)
}

func TestStreamFiltersByTask(t *testing.T) {
	a := newTestAPI(t)
	ts := httptest.NewServer(a.handler)
	t.Cleanup(ts.Close)
	ctx := context.Background()

	watched, err := a.svc.Create(ctx, service.CreateInput{Title: "watched"}, "")
	require.NoError(t, err)

	conn := dialStream(t, ts.URL, "?taskId="+watched.ID)

	_, err = a.svc.Create(ctx, service.CreateInput{Title: "other"}, "")
	require.NoError(t, err)
	require.NoError(t, a.svc.Delete(ctx, watched.ID))

	// The CREATED event may or may not arrive after the subscription.
	for {
		ev := readEvent(t, conn)
		require.Equal(t, watched.ID, ev.TaskID)
		if ev.Type == task.EventDeleted {
			break
		}
	}
}

func TestStreamRequiresAPIKey(t *testing.T) {
	a := newTestAPI(t)
	ts := httptest.NewServer(a.handler)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStreamClosedOnShutdown(t *testing.T) {
	a := newTestAPI(t)
	ts := httptest.NewServer(a.handler)
	t.Cleanup(ts.Close)

	conn := dialStream(t, ts.URL, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.server.OnShutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestStreamRefusedAfterShutdown(t *testing.T) {
	a := newTestAPI(t)
	ts := httptest.NewServer(a.handler)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.server.OnShutdown(ctx))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{APIKeyHeader: {testKey}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStreamRouteAbsentWithoutBus(t *testing.T) {
	srv := New(Config{Service: brokenService{}})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events/stream", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForTask(t *testing.T) {
	data, err := json.Marshal(task.Event{TaskID: "t1", Type: task.EventCreated})
	require.NoError(t, err)

	assert.True(t, forTask(data, "t1"))
	assert.False(t, forTask(data, "t2"))
	assert.False(t, forTask([]byte("not json"), "t1"))
}

func TestStreamConfigDefaults(t *testing.T) {
	c := StreamConfig{}.withDefaults()
	assert.Equal(t, 10*time.Second, c.WriteTimeout)
	assert.Equal(t, 60*time.Second, c.PongTimeout)
	assert.Equal(t, 54*time.Second, c.pingInterval())
	assert.True(t, c.CheckOrigin(httptest.NewRequest(http.MethodGet, "/", nil)))
}
