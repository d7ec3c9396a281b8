package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"relief-alert-service/internal/logging"
	"relief-alert-service/internal/models"
)

const (
	defaultMaxConnections = 100
	writeWait             = 5 * time.Second
)

// Hub pushes every broadcast summary to connected dashboards.
type Hub struct {
	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	max      int
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

func NewHub(logger *logging.Logger, maxConnections int) *Hub {
	if maxConnections <= 0 {
		maxConnections = defaultMaxConnections
	}
	return &Hub{
		conns:  make(map[*websocket.Conn]struct{}),
		max:    maxConnections,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and keeps the connection registered until the
// client goes away. Incoming frames are discarded.
func (h *Hub) Serve(c *gin.Context) {
	if h.Count() >= h.max {
		h.logger.Warnf("Max websocket connections reached (%d)", h.max)
		fail(c, http.StatusServiceUnavailable, "Too many connections")
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Websocket upgrade failed: %v", err)
		return
	}
	h.add(conn)
	defer h.remove(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// BroadcastFinished sends summary as JSON to every connection. Connections
// that fail to accept it are dropped.
func (h *Hub) BroadcastFinished(_ context.Context, summary models.BroadcastSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode broadcast summary: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warnf("Dropping websocket %s: %v", conn.RemoteAddr(), err)
			delete(h.conns, conn)
			_ = conn.Close()
		}
	}
	return nil
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		_ = conn.Close()
		delete(h.conns, conn)
	}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
	h.logger.Infof("Websocket connected: %s (%d open)", conn.RemoteAddr(), len(h.conns))
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		_ = conn.Close()
	}
}
