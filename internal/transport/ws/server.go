// Package ws streams execution events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/config"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/hub"
)

// ExecutionService is the part of the service the socket protocol needs.
type ExecutionService interface {
	GetExecution(ctx context.Context, executionID string) (*domain.Execution, error)
	CancelExecution(ctx context.Context, executionID string) (*domain.CancelResponse, error)
}

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	service  ExecutionService
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, svc ExecutionService) *Server {
	return &Server{
		cfg:     cfg,
		hub:     h,
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket upgrades the request and starts the connection pumps.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("WARN: failed to upgrade websocket: %v", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.WSMaxMessageSize)

	// ?execution_id= subscribes before the first client message.
	if executionID := c.QueryParam("execution_id"); executionID != "" {
		s.handleSubscribe(conn, executionID)
	}

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.WSReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.WSReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WARN: websocket error: %v", err)
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.WSPingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WSWriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WARN: failed to write websocket message: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WSWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches a client message. Handling is synchronous so that
// replies are queued before the connection can be unregistered.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var msg BaseMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}
	if msg.ExecutionID == "" {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "execution_id is required")
		return
	}

	switch msg.Type {
	case TypeSubscribe:
		s.handleSubscribe(conn, msg.ExecutionID)
	case TypeUnsubscribe:
		s.hub.Unsubscribe(conn, msg.ExecutionID)
		s.send(conn, BaseMessage{Type: TypeUnsubscribed, Ts: time.Now().UnixMilli(), ExecutionID: msg.ExecutionID})
	case TypeCancel:
		s.handleCancel(conn, msg.ExecutionID)
	default:
		s.sendError(conn, msg.ExecutionID, ErrorCodeInvalidMessage, "unknown message type: "+msg.Type)
	}
}

func (s *Server) handleSubscribe(conn *hub.Connection, executionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exec, err := s.service.GetExecution(ctx, executionID)
	if err != nil {
		s.sendServiceError(conn, executionID, err)
		return
	}

	s.hub.Subscribe(conn, executionID)
	s.send(conn, SubscribedMessage{
		BaseMessage: BaseMessage{Type: TypeSubscribed, Ts: time.Now().UnixMilli(), ExecutionID: executionID},
		Execution:   exec,
	})
}

func (s *Server) handleCancel(conn *hub.Connection, executionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := s.service.CancelExecution(ctx, executionID)
	if err != nil {
		s.sendServiceError(conn, executionID, err)
		return
	}
	log.Printf("INFO: cancel via websocket: execution_id=%s stopped=%v", executionID, resp.Stopped)
	s.send(conn, CancelledMessage{
		BaseMessage: BaseMessage{Type: TypeCancelled, Ts: time.Now().UnixMilli(), ExecutionID: executionID},
		Stopped:     resp.Stopped,
		Message:     resp.Message,
	})
}

func (s *Server) sendServiceError(conn *hub.Connection, executionID string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		s.sendError(conn, executionID, ErrorCodeNotFound, "execution not found")
		return
	}
	log.Printf("ERROR: websocket request for %s failed: %v", executionID, err)
	s.sendError(conn, executionID, ErrorCodeInternalError, err.Error())
}

func (s *Server) sendError(conn *hub.Connection, executionID, code, message string) {
	s.send(conn, ErrorMessage{
		BaseMessage: BaseMessage{Type: TypeError, Ts: time.Now().UnixMilli(), ExecutionID: executionID},
		Code:        code,
		Message:     message,
	})
}

func (s *Server) send(conn *hub.Connection, v interface{}) {
	if err := s.hub.SendJSONToConnection(conn, v); err != nil {
		log.Printf("WARN: failed to queue message for connection %s: %v", conn.ID, err)
	}
}
