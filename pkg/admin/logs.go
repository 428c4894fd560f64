package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/getmockd/mocklane/pkg/eventlog"
	"github.com/getmockd/mocklane/pkg/httputil"
)

// ContentTypeNDJSON is the content type of newline-delimited event dumps.
const ContentTypeNDJSON = "application/x-ndjson"

// wsWriteTimeout bounds one WebSocket frame write.
const wsWriteTimeout = 5 * time.Second

// intParam parses a non-negative integer query parameter, returning def when
// it is absent.
func intParam(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// handleLogs handles GET /__logs?format=json|ndjson&limit=N. A limit of 0
// returns the whole buffer.
func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(r, "limit", DefaultLogLimit)
	if !ok {
		httputil.WriteBadRequest(w, ErrCodeInvalidParam, "limit must be a non-negative integer")
		return
	}
	events := a.srv.Events().Recent(limit)

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		httputil.WriteOK(w, events)
	case "ndjson":
		w.Header().Set("Content-Type", ContentTypeNDJSON)
		w.WriteHeader(http.StatusOK)
		for _, e := range events {
			line, err := e.MarshalJSON()
			if err != nil {
				continue
			}
			line = append(line, '\n')
			if _, err := w.Write(line); err != nil {
				return
			}
		}
	default:
		httputil.WriteBadRequest(w, ErrCodeInvalidParam, "format must be json or ndjson, got "+strconv.Quote(format))
	}
}

// subscribe parses ?replay and registers a subscriber, keeping the
// subscriber gauge current.
func (a *API) subscribe(w http.ResponseWriter, r *http.Request) (*eventlog.Subscription, bool) {
	replay, ok := intParam(r, "replay", DefaultReplay)
	if !ok {
		httputil.WriteBadRequest(w, ErrCodeInvalidParam, "replay must be a non-negative integer")
		return nil, false
	}
	sub := a.srv.Events().Subscribe(replay)
	a.syncSubscriberGauge()
	return sub, true
}

func (a *API) unsubscribe(sub *eventlog.Subscription) {
	sub.Close()
	a.syncSubscriberGauge()
}

// handleLogStream handles GET /__logs/stream as Server-Sent Events: the
// replayed events, then live events, with a comment ping on every interval.
func (a *API) handleLogStream(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		httputil.WriteError(w, http.StatusInternalServerError, ErrCodeStreamingFailed, "streaming not supported")
		return
	}
	sub, ok := a.subscribe(w, r)
	if !ok {
		return
	}
	defer a.unsubscribe(sub)

	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for _, e := range sub.Replay() {
		if writeSSE(w, e) != nil {
			return
		}
	}
	if rc.Flush() != nil {
		return
	}

	ticker := time.NewTicker(a.pingInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.srv.Done():
			return
		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			if rc.Flush() != nil {
				return
			}
		case e, open := <-sub.Events():
			if !open {
				return
			}
			if writeSSE(w, e) != nil || rc.Flush() != nil {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, e *eventlog.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	buf := make([]byte, 0, len(data)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, data...)
	buf = append(buf, '\n', '\n')
	_, err = w.Write(buf)
	return err
}

// handleLogWebSocket handles GET /__logs/ws: the same feed as the SSE stream,
// one event per text frame.
func (a *API) handleLogWebSocket(w http.ResponseWriter, r *http.Request) {
	replay, ok := intParam(r, "replay", DefaultReplay)
	if !ok {
		httputil.WriteBadRequest(w, ErrCodeInvalidParam, "replay must be a non-negative integer")
		return
	}

	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	conn, err := websocket.Accept(w, r, &a.wsOptions)
	if err != nil {
		a.log.Debug("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	sub := a.srv.Events().Subscribe(replay)
	a.syncSubscriberGauge()
	defer a.unsubscribe(sub)

	for _, e := range sub.Replay() {
		if a.writeFrame(ctx, conn, e) != nil {
			return
		}
	}

	ticker := time.NewTicker(a.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.srv.Done():
			_ = conn.Close(websocket.StatusGoingAway, "server stopping")
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case e, open := <-sub.Events():
			if !open {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if a.writeFrame(ctx, conn, e) != nil {
				return
			}
		}
	}
}

func (a *API) writeFrame(ctx context.Context, conn *websocket.Conn, e *eventlog.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
