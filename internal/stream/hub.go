package stream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BetterCallFirewall/Scanhound/internal/broker"
	"github.com/BetterCallFirewall/Scanhound/internal/logging"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The API is already CORS-open; same policy here.
		return true
	},
}

// Hub bridges run-event topics to websocket consumers. Each connection
// subscribes to exactly one run; the producing run never waits on a
// consumer, and a consumer disconnecting never cancels the run.
type Hub struct {
	events *broker.Broker[Event]
}

// NewHub creates a hub over the shared event broker.
func NewHub(events *broker.Broker[Event]) *Hub {
	return &Hub{events: events}
}

// ServeWS upgrades the request and streams the events of the run named
// by the "run" query parameter until the run finishes or the client
// goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	if runID == "" {
		http.Error(w, `{"error": "run parameter is required"}`, http.StatusBadRequest)
		return
	}

	// Keep intermediaries from buffering or replaying the stream.
	w.Header().Set("Cache-Control", "no-store")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.L().Errorw("websocket upgrade failed", "run_id", runID, "error", err)
		return
	}

	events, cancel := h.events.Subscribe(runID)
	client := &client{conn: conn, runID: runID, events: events, cancel: cancel}

	logging.L().Infow("stream client connected", "run_id", runID)
	go client.writePump()
	go client.readPump()
}

type client struct {
	conn   *websocket.Conn
	runID  string
	events <-chan Event
	cancel func()
}

// writePump forwards run events to the connection until the topic closes.
func (c *client) writePump() {
	defer c.conn.Close()

	for event := range c.events {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(event); err != nil {
			logging.L().Infow("stream write failed, dropping client",
				"run_id", c.runID, "error", err)
			return
		}
	}

	// Topic closed: the run is over.
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
}

// readPump drains client frames so pings are answered, and unsubscribes
// when the client disconnects.
func (c *client) readPump() {
	defer func() {
		c.cancel()
		c.conn.Close()
		logging.L().Infow("stream client disconnected", "run_id", c.runID)
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
