package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mocklane/pkg/engine"
	"github.com/getmockd/mocklane/pkg/eventlog"
)

func TestLogs(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, "")
	for _, p := range []string{"/one", "/two", "/three"} {
		do(t, srv, http.MethodGet, p, "")
	}

	t.Run("json with limit", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/__logs?limit=2", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var events []*eventlog.Event
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
		require.Len(t, events, 2)
		assert.Equal(t, "/two", events[0].Fields["url"])
		assert.Equal(t, "/three", events[1].Fields["url"])
	})

	t.Run("zero limit returns everything", func(t *testing.T) {
		var events []*eventlog.Event
		require.NoError(t, json.Unmarshal(do(t, srv, http.MethodGet, "/__logs?limit=0", "").Body.Bytes(), &events))
		assert.Len(t, events, 3)
	})

	t.Run("ndjson", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/__logs?format=ndjson", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, ContentTypeNDJSON, rec.Header().Get("Content-Type"))

		lines := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n"), "\n")
		require.Len(t, lines, 3)
		for _, line := range lines {
			var e eventlog.Event
			require.NoError(t, json.Unmarshal([]byte(line), &e))
			assert.Equal(t, engine.EventRequest, e.Name)
		}
	})

	for _, q := range []string{"limit=-1", "limit=many", "format=xml"} {
		t.Run("rejects "+q, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, "/__logs?"+q, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, ErrCodeInvalidParam, decodeError(t, rec).Error)
		})
	}
}

// readSSE returns the next data payload, skipping comments and blank lines.
func readSSE(t *testing.T, r *bufio.Reader) (data string, pings int) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, ": ping"):
			pings++
		case strings.HasPrefix(line, "data: "):
			return strings.TrimPrefix(line, "data: "), pings
		}
	}
}

func TestLogStream(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, "", WithPingInterval(20*time.Millisecond))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	do(t, srv, http.MethodGet, "/before-one", "")
	do(t, srv, http.MethodGet, "/before-two", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/__logs/stream?replay=1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	r := bufio.NewReader(resp.Body)
	data, _ := readSSE(t, r)
	var e eventlog.Event
	require.NoError(t, json.Unmarshal([]byte(data), &e))
	assert.Equal(t, "/before-two", e.Fields["url"], "replay holds only the newest event")

	assert.Equal(t, 1, srv.Events().SubscriberCount())
	assert.Contains(t, do(t, srv, http.MethodGet, "/__metrics", "").Body.String(), "mocklane_log_subscribers 1")

	do(t, srv, http.MethodGet, "/live", "")
	data, _ = readSSE(t, r)
	require.NoError(t, json.Unmarshal([]byte(data), &e))
	assert.Equal(t, "/live", e.Fields["url"])

	// Wait for at least one keep-alive.
	time.Sleep(50 * time.Millisecond)
	do(t, srv, http.MethodGet, "/after-ping", "")
	data, pings := readSSE(t, r)
	require.NoError(t, json.Unmarshal([]byte(data), &e))
	assert.Equal(t, "/after-ping", e.Fields["url"])
	assert.Positive(t, pings)

	require.NoError(t, srv.Stop())
	assert.Eventually(t, func() bool { return srv.Events().SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestLogStream_InvalidReplay(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, "")
	rec := do(t, srv, http.MethodGet, "/__logs/stream?replay=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, srv.Events().SubscriberCount())
}

func TestLogWebSocket(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, "", WithPingInterval(20*time.Millisecond))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	do(t, srv, http.MethodGet, "/replayed", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/__logs/ws?replay=5", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	read := func() eventlog.Event {
		t.Helper()
		typ, data, err := conn.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, websocket.MessageText, typ)
		var e eventlog.Event
		require.NoError(t, json.Unmarshal(data, &e))
		return e
	}

	assert.Equal(t, "/replayed", read().Fields["url"])

	do(t, srv, http.MethodGet, "/live", "")
	e := read()
	assert.Equal(t, "/live", e.Fields["url"])
	assert.Equal(t, false, e.Fields["matched"])

	require.NoError(t, srv.Stop())
	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	status := websocket.CloseStatus(err)
	assert.True(t, status == websocket.StatusGoingAway || status == websocket.StatusNormalClosure,
		"unexpected close: %v", err)
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
}
