package jobs

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/faheemlabs/faheem/pkg/events"
	"github.com/faheemlabs/faheem/pkg/logging"
)

// EventPayload is the wire form of one job event pushed to subscribers.
type EventPayload struct {
	Kind     string `json:"kind"`
	JobID    string `json:"job_id"`
	Seq      int64  `json:"seq"`
	Status   string `json:"status,omitempty"`
	Progress *int   `json:"progress,omitempty"`
	Chunk    string `json:"chunk,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func encodeEvent(ev events.Event) EventPayload {
	payload := EventPayload{
		Kind:  string(ev.Kind()),
		JobID: ev.JobID(),
		Seq:   ev.Seq(),
	}
	switch e := ev.(type) {
	case events.StatusEvent:
		payload.Status = e.Status()
		payload.Reason = e.Meta()[events.MetaReason]
	case events.ProgressEvent:
		p := e.Percent()
		payload.Progress = &p
	case events.ChunkEvent:
		payload.Chunk = e.Text()
	}
	return payload
}

const (
	hubWriteTimeout = 5 * time.Second
	hubSendBuffer   = 256
)

// subscriber owns one websocket connection. Every frame goes through the
// send channel into a single writer goroutine; the connection is never
// written from more than one goroutine.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub pushes job events to websocket subscribers. Slow or dead clients
// are dropped rather than allowed to stall the worklist.
type Hub struct {
	mu       sync.Mutex
	clients  map[*subscriber]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logging.NewComponentLogger(slog.Default(), "events_hub"),
	}
}

// HandleWS upgrades the request and subscribes the client to job events.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	sub := &subscriber{conn: conn, send: make(chan []byte, hubSendBuffer)}
	h.mu.Lock()
	h.clients[sub] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(sub)

	// Reader loop only detects disconnects; subscribers never send.
	go func() {
		defer h.drop(sub)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast fans the event out to every subscriber's send queue. A full
// queue means the client cannot keep up with the worklist and it is
// dropped.
func (h *Hub) Broadcast(ev events.Event) {
	data, err := json.Marshal(encodeEvent(ev))
	if err != nil {
		h.logger.Error("encode event", slog.String("error", err.Error()))
		return
	}
	var stalled []*subscriber
	h.mu.Lock()
	for sub := range h.clients {
		select {
		case sub.send <- data:
		default:
			stalled = append(stalled, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range stalled {
		h.drop(sub)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// writeLoop is the sole writer for one connection. It exits when the
// send channel is closed or a write fails.
func (h *Hub) writeLoop(sub *subscriber) {
	for data := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
		if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.drop(sub)
			return
		}
	}
}

func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.clients[sub]
	delete(h.clients, sub)
	h.mu.Unlock()
	if ok {
		close(sub.send)
		sub.conn.Close()
	}
}
