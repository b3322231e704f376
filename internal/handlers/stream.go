package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/afikmenashe/alert-distribution/internal/registry"
)

// InitPayload is the data of the init event sent when a live channel opens.
type InitPayload struct {
	RecipientID string    `json:"recipientId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

func initEvent(ch *registry.Channel) registry.Event {
	return registry.Event{
		Name: registry.EventInit,
		Data: InitPayload{RecipientID: ch.RecipientID(), ConnectedAt: ch.ConnectedAt()},
	}
}

// Stream opens a server-sent events channel for the caller.
// GET /alerts/stream
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	recipientID, err := h.auth.Recipient(r)
	if err != nil {
		handleError(w, err, "stream")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, CodeInternal, "streaming unsupported")
		return
	}

	// The live channel outlives the server write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("Could not clear write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ch := h.live.Subscribe(recipientID)
	defer h.live.Unsubscribe(ch)

	if err := writeSSE(w, initEvent(ch)); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch.Done():
			return
		case ev := <-ch.Events():
			if err := writeSSE(w, ev); err != nil {
				slog.Debug("Live channel write failed", "recipient_id", recipientID, "error", err)
				return
			}
			h.metrics.RecordPublished()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, ev registry.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are governed by the CORS policy of the router.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WebSocket opens the same live channel over a WebSocket. Frames are JSON
// objects {"event": name, "data": payload}.
// GET /alerts/ws
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	recipientID, err := h.auth.Recipient(r)
	if err != nil {
		handleError(w, err, "websocket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		slog.Debug("WebSocket upgrade failed", "recipient_id", recipientID, "error", err)
		return
	}
	defer conn.Close()

	ch := h.live.Subscribe(recipientID)
	defer h.live.Unsubscribe(ch)

	// Reads only detect the peer closing the connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(ev registry.Event) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(ev)
	}
	if err := write(initEvent(ch)); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-ch.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case ev := <-ch.Events():
			if err := write(ev); err != nil {
				slog.Debug("Live channel write failed", "recipient_id", recipientID, "error", err)
				return
			}
			h.metrics.RecordPublished()
		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
