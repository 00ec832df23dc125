package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/onnwee/screenshot-api/internal/dispatch"
	"github.com/onnwee/screenshot-api/internal/logger"
	"github.com/onnwee/screenshot-api/internal/metrics"
	"github.com/onnwee/screenshot-api/internal/middleware"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// StreamConfig tunes the WebSocket status stream.
type StreamConfig struct {
	// PollInterval is how often the job state is re-read.
	PollInterval time.Duration
	// MaxDuration closes streams for jobs that never settle.
	MaxDuration time.Duration
	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool
}

func (c *StreamConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 5 * time.Minute
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
}

// StreamMessage is pushed on every state change.
type StreamMessage struct {
	Status   string `json:"status"`
	TaskID   string `json:"task_id"`
	Detail   string `json:"detail,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

func streamMessage(id string, st dispatch.Status) StreamMessage {
	msg := StreamMessage{TaskID: id}
	switch st.State {
	case dispatch.StatePending:
		msg.Status = "processing"
	case dispatch.StateSucceeded:
		msg.Status = "succeeded"
		msg.ImageURL = "/screenshot/status/" + id
	case dispatch.StateUnknown:
		msg.Status = "unknown"
		msg.Detail = "Task not found"
	default:
		msg.Status = "failed"
		msg.Detail = st.Message
	}
	return msg
}

// Stream pushes the job state over a WebSocket until it settles, then closes.
// GET /screenshot/status/{job_id}/ws
func (h *StatusHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["job_id"]
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.stream.CheckOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		logger.WarnContext(r.Context(), "WebSocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	metrics.WebSocketConnections.Inc()
	defer metrics.WebSocketConnections.Dec()

	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	ctx := r.Context()
	poll := time.NewTicker(h.stream.PollInterval)
	defer poll.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	deadline := time.NewTimer(h.stream.MaxDuration)
	defer deadline.Stop()

	var last string
	for {
		st, err := h.resolver.Resolve(ctx, id)
		if err != nil {
			detail := "failed to read task status"
			if errors.Is(err, dispatch.ErrSubstrateUnavailable) {
				detail = "screenshot queue is unavailable"
			}
			send(conn, StreamMessage{Status: "error", TaskID: id, Detail: detail})
			closeWith(conn, websocket.CloseTryAgainLater, detail)
			return
		}

		msg := streamMessage(id, st)
		if msg.Status != last {
			if err := send(conn, msg); err != nil {
				logger.DebugContext(ctx, "WebSocket write failed", "job_id", id, "error", err)
				return
			}
			last = msg.Status
		}
		if st.State != dispatch.StatePending {
			closeWith(conn, websocket.CloseNormalClosure, msg.Status)
			return
		}

		select {
		case <-poll.C:
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-deadline.C:
			closeWith(conn, websocket.CloseNormalClosure, "stream time limit reached, poll the status endpoint")
			return
		case <-closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func send(conn *websocket.Conn, msg StreamMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	metrics.WebSocketMessagesSent.Inc()
	return nil
}

// maxCloseReason is a control frame's 125-byte payload minus the status code.
const maxCloseReason = 123

// closeReason fits reason into a close frame as valid UTF-8.
func closeReason(reason string) string {
	return middleware.SanitizeString(reason, maxCloseReason)
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, closeReason(reason))
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// readUntilClosed drains client frames so pongs and close frames are handled.
func readUntilClosed(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket unexpected close", "error", err)
			}
			return
		}
	}
}
