package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader accepts any origin: the websocket endpoint is meant to sit
// behind the same operator-trusted network as the noVNC ports it fans out.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const writeTimeout = 5 * time.Second

// Hub serves the websocket endpoint that multiplexes every client
// connection onto one Registry, broadcasting agent state to all of them on
// every mutation.
type Hub struct {
	registry *Registry
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub wires a Hub around an already-constructed Registry and installs
// Hub.Broadcast as the Registry's broadcast callback, so every registry
// broadcast fans out to the connected clients.
func NewHub(registry *Registry, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = nopLogger
	}
	h := &Hub{registry: registry, logger: logger, clients: map[*websocket.Conn]struct{}{}}
	registry.SetBroadcast(h.Broadcast)
	return h
}

// broadcastAll fans message out to every connected client, dropping (and
// disconnecting) any client whose write does not keep up.
func (h *Hub) broadcastAll(message any) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("marshal broadcast message failed", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn("dropping unresponsive client", "error", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ServeWS upgrades the request to a websocket connection, sends the
// current agent list, and then relays every client message into the
// registry's command dispatcher until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	h.registry.broadcastAgents()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.registry.Dispatch(r.Context(), raw, func(reply any) {
			data, err := json.Marshal(reply)
			if err != nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			conn.WriteMessage(websocket.TextMessage, data)
		})
	}
}

// Broadcast exposes broadcastAll as the callback NewHub installs on the Registry.
func (h *Hub) Broadcast(message any) { h.broadcastAll(message) }
