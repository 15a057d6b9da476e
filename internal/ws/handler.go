package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mediconsult/internal/api/auth"
	"github.com/mediconsult/internal/hub"
	"github.com/mediconsult/internal/orchestrator"
	"github.com/mediconsult/pkg/models"
)

// Handler serves the websocket conversation endpoint.
type Handler struct {
	hub       *hub.Hub
	orch      *orchestrator.Orchestrator
	jwtSecret string
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
}

// NewHandler creates the websocket handler.
func NewHandler(h *hub.Hub, orch *orchestrator.Orchestrator, jwtSecret string, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:       h,
		orch:      orch,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients authenticate with the token, not the Origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "ws").Logger(),
	}
}

// Serve handles GET /ws/chat: authenticate, upgrade, then run the read loop.
func (h *Handler) Serve(c echo.Context) error {
	tokenString := auth.TokenFromRequest(c.Request())
	if tokenString == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Authorization required")
	}
	claims, err := auth.ParseToken(h.jwtSecret, tokenString)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
	}

	socket, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	conn := newConn(uuid.NewString(), claims.UserID, socket, h.logger)
	go conn.writePump()

	// Every connection sits in its user's room for private notifications.
	h.hub.Join(conn, hub.UserRoom(conn.UserID()))

	h.logger.Debug().Str("conn_id", conn.ID()).Str("user_id", conn.UserID()).Msg("connection opened")
	h.readLoop(conn)

	h.hub.LeaveAll(conn)
	conn.close()
	h.logger.Debug().Str("conn_id", conn.ID()).Msg("connection closed")
	return nil
}

// readLoop processes inbound envelopes sequentially: one message runs to
// completion before the next is read, so a connection's exchanges never
// overlap.
func (h *Handler) readLoop(conn *Conn) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("conn_id", conn.ID()).Msg("read failed")
			}
			return
		}

		var envelope models.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			conn.Send(models.EventError, &models.ErrorEvent{Message: "malformed envelope"})
			continue
		}

		h.dispatch(conn, &envelope)
	}
}

func (h *Handler) dispatch(conn *Conn, envelope *models.Envelope) {
	switch envelope.Event {
	case models.EventJoinConversation:
		var req models.JoinRequest
		if err := json.Unmarshal(envelope.Data, &req); err != nil || req.ConversationID == "" {
			conn.Send(models.EventError, &models.ErrorEvent{Message: "conversationId is required"})
			return
		}
		h.hub.Join(conn, hub.ConversationRoom(req.ConversationID))
		conn.Send(models.EventJoinedConversation, &req)

	case models.EventLeaveConversation:
		var req models.JoinRequest
		if err := json.Unmarshal(envelope.Data, &req); err != nil || req.ConversationID == "" {
			conn.Send(models.EventError, &models.ErrorEvent{Message: "conversationId is required"})
			return
		}
		h.hub.Leave(conn, hub.ConversationRoom(req.ConversationID))
		conn.Send(models.EventLeftConversation, &req)

	case models.EventNewMessage:
		var req models.NewMessageRequest
		if err := json.Unmarshal(envelope.Data, &req); err != nil {
			conn.Send(models.EventError, &models.ErrorEvent{Message: "malformed new_message payload"})
			return
		}
		// Detached context: closing the socket must not abort the
		// in-flight exchange, its persistence completes regardless.
		h.orch.HandleMessage(context.Background(), conn, &req)

	default:
		conn.Send(models.EventError, &models.ErrorEvent{Message: "unknown event " + envelope.Event})
	}
}
