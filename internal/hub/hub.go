// Package hub fans JSON frames out to every connected websocket client.
package hub

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Hub tracks websocket clients and broadcasts frames to all of them.
type Hub struct {
	Clients   map[*websocket.Conn]string
	ClientMu  sync.RWMutex
	Broadcast chan any

	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// New creates a hub accepting browser connections from allowedOrigins.
// Requests without an Origin header (non-browser clients) are accepted.
func New(allowedOrigins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		Clients:   make(map[*websocket.Conn]string),
		Broadcast: make(chan any, 100),
		upgrader:  createUpgrader(allowedOrigins),
		logger:    logger,
	}
}

// createUpgrader creates a WebSocket upgrader with the given allowed origins
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowedMap[origin]
		},
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.ClientMu.RLock()
	defer h.ClientMu.RUnlock()
	return len(h.Clients)
}

// Serve upgrades the request and keeps the connection registered until the
// client goes away. Inbound frames are read and discarded (keep-alive).
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, clientID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	h.ClientMu.Lock()
	h.Clients[conn] = clientID
	total := len(h.Clients)
	h.ClientMu.Unlock()

	h.logger.Info("websocket client connected", "client_id", clientID, "clients", total)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.ClientMu.Lock()
			delete(h.Clients, conn)
			remaining := len(h.Clients)
			h.ClientMu.Unlock()
			h.logger.Info("websocket client disconnected", "client_id", clientID, "clients", remaining)
			return
		}
	}
}

// Publish queues a frame without blocking. Frames are dropped when the queue is full.
func (h *Hub) Publish(frame any) bool {
	select {
	case h.Broadcast <- frame:
		return true
	default:
		h.logger.Warn("broadcast queue full, dropping frame")
		return false
	}
}

// Run writes queued frames to every client until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case frame := <-h.Broadcast:
			h.send(frame)
		}
	}
}

func (h *Hub) send(frame any) {
	// Snapshot the clients so that deleting a failed client does not race
	// with the iteration.
	h.ClientMu.RLock()
	snapshot := make([]*websocket.Conn, 0, len(h.Clients))
	for client := range h.Clients {
		snapshot = append(snapshot, client)
	}
	h.ClientMu.RUnlock()

	for _, client := range snapshot {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteJSON(frame); err != nil {
			client.Close()
			h.ClientMu.Lock()
			delete(h.Clients, client)
			h.ClientMu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.ClientMu.Lock()
	defer h.ClientMu.Unlock()
	for client := range h.Clients {
		client.Close()
		delete(h.Clients, client)
	}
}
