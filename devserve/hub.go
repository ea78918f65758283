package devserve

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}

// A hub fans build notifications out to every connected browser tab.
type hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// A client is one live-reload websocket.
type client struct {
	conn *websocket.Conn
	send chan []byte // closed by hub.remove
}

func newHub(log *slog.Logger) *hub {
	return &hub{log: log, clients: make(map[*client]struct{})}
}

func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.log.Warn("livereload upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn, send: make(chan []byte, 8)}
	h.add(c)
	go h.read(c)
	h.write(c)
}

// read drains the connection so control frames are handled, and
// unregisters the client once the browser goes away.
func (h *hub) read(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub) write(c *client) {
	defer h.remove(c)
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debug("livereload write failed", "err", err)
			return
		}
	}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// broadcast queues msg for every client. Clients whose queue is full miss it.
func (h *hub) broadcast(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- []byte(msg):
		default:
			h.log.Debug("livereload client too slow, dropping message")
		}
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
