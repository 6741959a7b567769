// Package stream pushes newly recorded audit events to connected admin
// dashboards over WebSocket, so reviewers see suspicious activity without
// polling the export endpoint.
package stream

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Hub fans one event out to every connected subscriber. Slow or dead
// subscribers are dropped on the first failed write rather than buffered.
type Hub struct {
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[net.Conn]struct{})}
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection. The client is write-only from the server's perspective; a
// read loop runs solely to detect the peer closing.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("[stream] upgrade: %v", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	count := len(h.conns)
	h.mu.Unlock()
	log.Printf("[stream] subscriber connected (%d total)", count)

	go h.drain(conn)
}

// drain reads and discards client frames until the connection dies, then
// unregisters it.
func (h *Hub) drain(conn net.Conn) {
	defer h.remove(conn)
	for {
		if _, _, err := wsutil.ReadClientData(conn); err != nil {
			return
		}
	}
}

// Broadcast sends event as a JSON text frame to every subscriber.
func (h *Hub) Broadcast(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[stream] marshal event: %v", err)
		return
	}

	h.mu.Lock()
	conns := make([]net.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := wsutil.WriteServerMessage(c, ws.OpText, data); err != nil {
			h.remove(c)
		}
	}
}

// Subscribers reports the current connection count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		c.Close()
		delete(h.conns, c)
	}
}

func (h *Hub) remove(conn net.Conn) {
	h.mu.Lock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		log.Printf("[stream] subscriber disconnected (%d total)", len(h.conns))
	}
	h.mu.Unlock()
	conn.Close()
}
