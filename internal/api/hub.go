package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"court-intake-service/internal/logging"
	"court-intake-service/internal/models"
)

const (
	maxConnsPerTopic = 10
	sendBuffer       = 16
	writeWait        = 5 * time.Second
)

// StatusEvent is pushed to websocket clients on every record transition.
type StatusEvent struct {
	ID           string        `json:"id"`
	Status       models.Status `json:"status"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	CaseID       *int64        `json:"case_id,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// client owns one websocket connection. Its writer goroutine drains send so
// the pipeline never waits on a slow socket.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan []byte, sendBuffer)}
}

func (c *client) writeLoop(logger *logging.Logger) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Debugf("Websocket write failed: %v", err)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// Hub fans record transitions out to websocket clients. Clients subscribe to
// one record or, with an empty topic, to every record.
type Hub struct {
	connections map[string]map[*client]bool
	mutex       sync.Mutex
	logger      *logging.Logger
	upgrader    websocket.Upgrader
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		connections: make(map[string]map[*client]bool),
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// add registers c under topic. It reports false when the topic is full.
func (h *Hub) add(topic string, c *client) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, exists := h.connections[topic]; !exists {
		h.connections[topic] = make(map[*client]bool)
	}
	if len(h.connections[topic]) >= maxConnsPerTopic {
		h.logger.Warnf("Max websocket connections reached for topic %q", topic)
		return false
	}
	h.connections[topic][c] = true
	h.logger.Debugf("Added websocket connection for topic %q (total: %d)", topic, len(h.connections[topic]))
	return true
}

func (h *Hub) remove(topic string, c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.drop(topic, c)
}

// drop unregisters c and stops its writer. Callers hold the mutex.
func (h *Hub) drop(topic string, c *client) {
	conns, exists := h.connections[topic]
	if !exists || !conns[c] {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.connections, topic)
	}
}

// RecordChanged implements pipeline.Observer. It never blocks on a client.
func (h *Hub) RecordChanged(rec models.Record) {
	msg, err := json.Marshal(StatusEvent{
		ID:           rec.ID,
		Status:       rec.Status,
		ErrorMessage: rec.ErrorMessage,
		CaseID:       rec.CaseID,
		UpdatedAt:    rec.UpdatedAt,
	})
	if err != nil {
		h.logger.Errorf("Marshal status event: %v", err)
		return
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.send("", msg)
	h.send(rec.ID, msg)
}

func (h *Hub) send(topic string, msg []byte) {
	for c := range h.connections[topic] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warnf("Dropping slow websocket client on topic %q", topic)
			h.drop(topic, c)
		}
	}
}

// Serve upgrades the request and keeps the connection registered until the
// client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, topic string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("Websocket upgrade failed: %v", err)
		return
	}
	c := newClient(conn)
	if !h.add(topic, c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"))
		conn.Close()
		return
	}
	go c.writeLoop(h.logger)
	defer h.remove(topic, c)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
