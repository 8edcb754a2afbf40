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

	"github.com/xiaot623/gogo/crewtrace/internal/config"
	"github.com/xiaot623/gogo/crewtrace/internal/domain"
	"github.com/xiaot623/gogo/crewtrace/internal/session"
)

// Server handles WebSocket connections of viewer clients.
type Server struct {
	cfg      *config.Config
	hub      *Hub
	session  *session.Session
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *Hub, sess *session.Session) *Server {
	return &Server{
		cfg:     cfg,
		hub:     h,
		session: sess,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Forward subscribes to the session and broadcasts every frame until ctx is cancelled.
func (s *Server) Forward(ctx context.Context) {
	frames, unsubscribe := s.session.Subscribe()
	go s.forward(ctx, frames, unsubscribe)
}

func (s *Server) forward(ctx context.Context, frames <-chan domain.Frame, unsubscribe func()) {
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := s.hub.BroadcastJSON(frameMessage(frame)); err != nil {
				log.Printf("ERROR: failed to encode frame: %v", err)
			}
		}
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("WARN: failed to upgrade WebSocket: %v", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	if !s.hub.Register(conn) {
		ws.Close()
		return nil
	}

	ws.SetReadLimit(s.cfg.WSMaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	// New clients see the current state without waiting for a change.
	if err := s.hub.SendJSONToConnection(conn, frameMessage(s.session.Frame())); err != nil {
		log.Printf("WARN: failed to send initial frame to %s: %v", conn.ID, err)
	}
	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *Connection) {
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
				log.Printf("WARN: WebSocket error: %v", err)
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *Connection) {
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
				log.Printf("WARN: failed to write message: %v", err)
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

// handleMessage dispatches incoming messages. Cursor changes reach every
// client through the session subscription.
func (s *Server) handleMessage(conn *Connection, data []byte) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(conn, ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch base.Type {
	case TypeHello:
		ack := BaseMessage{Type: TypeHelloAck, Ts: time.Now().UnixMilli(), TraceID: s.session.TraceID()}
		s.hub.SendJSONToConnection(conn, ack)
		s.hub.SendJSONToConnection(conn, frameMessage(s.session.Frame()))
	case TypeScrub:
		var msg ScrubMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(conn, ErrorCodeInvalidMessage, "invalid scrub message")
			return
		}
		if _, err := s.session.Scrub(msg.Index); err != nil {
			s.sendSessionError(conn, err)
		}
	case TypeFollow:
		if _, err := s.session.Follow(); err != nil {
			s.sendSessionError(conn, err)
		}
	default:
		s.sendError(conn, ErrorCodeInvalidMessage, "unknown message type: "+base.Type)
	}
}

func (s *Server) sendSessionError(conn *Connection, err error) {
	if errors.Is(err, domain.ErrNoActiveTrace) {
		s.sendError(conn, ErrorCodeNoActiveTrace, err.Error())
		return
	}
	s.sendError(conn, ErrorCodeInvalidMessage, err.Error())
}

// sendError sends an error message to a specific connection.
func (s *Server) sendError(conn *Connection, code, message string) {
	errMsg := ErrorMessage{
		BaseMessage: BaseMessage{
			Type: TypeError,
			Ts:   time.Now().UnixMilli(),
		},
		Code:    code,
		Message: message,
	}
	s.hub.SendJSONToConnection(conn, errMsg)
}

func frameMessage(frame domain.Frame) FrameMessage {
	return FrameMessage{
		BaseMessage: BaseMessage{
			Type:    TypeFrame,
			Ts:      time.Now().UnixMilli(),
			TraceID: frame.TraceID,
		},
		Frame: frame,
	}
}
