package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Notice codes the storefront screen reacts to. Every notice is one-shot:
// nothing is retained for clients that connect later.
const (
	CodeCatalogUpdated = "catalog_updated"
	CodeFetchFailed    = "fetch_failed"
	CodeOrderPlaced    = "order_placed"
	CodeOrderFailed    = "order_failed"
)

type Notice struct {
	Level     string      `json:"level"`
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Notifier is the write side of the hub. Core packages publish through this
// so tests can swap in a recorder.
type Notifier interface {
	Publish(notice Notice)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Development default, tighten per deployment
		return true
	},
}

type client struct {
	conn   *websocket.Conn
	send   chan Notice
	hub    *Hub
	logger *logrus.Logger
}

// Hub fans notices out to every connected screen client.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Notice
	register   chan *client
	unregister chan *client
	mutex      sync.RWMutex
	logger     *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Notice, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mutex.Lock()
			h.clients[c] = true
			h.mutex.Unlock()
			h.logger.WithField("client_count", len(h.clients)).Info("Screen client connected")

		case c := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mutex.Unlock()
			h.logger.WithField("client_count", len(h.clients)).Info("Screen client disconnected")

		case notice := <-h.broadcast:
			h.mutex.RLock()
			for c := range h.clients {
				select {
				case c.send <- notice:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// Publish never blocks; a full broadcast queue drops the notice.
func (h *Hub) Publish(notice Notice) {
	if notice.Timestamp == "" {
		notice.Timestamp = time.Now().Format(time.RFC3339)
	}

	select {
	case h.broadcast <- notice:
	default:
		h.logger.WithField("code", notice.Code).Warn("Broadcast channel full, dropping notice")
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan Notice, 64),
		hub:    h,
		logger: h.logger,
	}

	c.hub.register <- c

	go c.writePump()
	go c.readPump()
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// readPump only consumes control frames; the screen never sends data.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket error")
			}
			break
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case notice, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(notice)
			if err != nil {
				c.logger.WithError(err).Error("Failed to marshal notice")
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
