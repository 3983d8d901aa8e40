// Package hub fans execution events out to WebSocket subscribers.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection represents a single WebSocket connection.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	mu   sync.Mutex

	// executions this connection is subscribed to, guarded by Hub.mu
	executions map[string]bool
}

// Hub tracks connections and which executions each one follows.
type Hub struct {
	connections map[string]*Connection

	// subscribers maps execution_id to the set of subscribed connection IDs
	subscribers map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *ExecutionMessage
	done       chan struct{}

	mu sync.RWMutex
}

// ExecutionMessage is a payload addressed to every subscriber of an execution.
type ExecutionMessage struct {
	ExecutionID string
	Data        []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		subscribers: make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *ExecutionMessage, 256),
		done:        make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, conn := range h.connections {
				delete(h.connections, id)
				close(conn.Send)
			}
			h.subscribers = make(map[string]map[string]bool)
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			log.Printf("INFO: websocket connection registered: %s", conn.ID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				for execID := range conn.executions {
					h.removeSubscriber(execID, conn.ID)
				}
				close(conn.Send)
			}
			h.mu.Unlock()
			log.Printf("INFO: websocket connection unregistered: %s", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.subscribers[msg.ExecutionID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case conn.Send <- msg.Data:
				default:
					log.Printf("WARN: connection %s buffer full, closing", connID)
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection creates a connection; it must be registered before use.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:         uuid.New().String(),
		Conn:       ws,
		Send:       make(chan []byte, 256),
		executions: make(map[string]bool),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister removes a connection and all its subscriptions.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Subscribe adds conn to the subscribers of executionID.
func (h *Hub) Subscribe(conn *Connection, executionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[executionID] == nil {
		h.subscribers[executionID] = make(map[string]bool)
	}
	h.subscribers[executionID][conn.ID] = true
	conn.executions[executionID] = true
}

// Unsubscribe removes conn from the subscribers of executionID.
func (h *Hub) Unsubscribe(conn *Connection, executionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(conn.executions, executionID)
	h.removeSubscriber(executionID, conn.ID)
}

func (h *Hub) removeSubscriber(executionID, connID string) {
	if subs := h.subscribers[executionID]; subs != nil {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(h.subscribers, executionID)
		}
	}
}

// Publish queues data for every subscriber of executionID. It never blocks;
// messages are dropped when the hub is saturated or stopped.
func (h *Hub) Publish(executionID string, data []byte) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- &ExecutionMessage{ExecutionID: executionID, Data: data}:
	default:
		log.Printf("WARN: hub broadcast queue full, dropping message for execution %s", executionID)
	}
}

// PublishJSON marshals v and publishes it to subscribers of executionID.
func (h *Hub) PublishJSON(executionID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Publish(executionID, data)
	return nil
}

// SendToConnection sends a message to a specific connection.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SubscriberCount returns the number of connections following executionID.
func (h *Hub) SubscriberCount(executionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[executionID])
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = &BufferFullError{}

// BufferFullError represents a buffer full error.
type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}
