package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/workbridge/marketplace-be/internal/api/dto"
	"github.com/workbridge/marketplace-be/internal/chat"
	"github.com/workbridge/marketplace-be/internal/identity"
	"github.com/workbridge/marketplace-be/internal/marketplace/storage"
)

// ChatHandler owns the websocket endpoint plus the read-side chat REST
// endpoints (message history, presence).
type ChatHandler struct {
	logger        *slog.Logger
	hub           *chat.Hub
	rooms         *chat.Rooms
	store         Store
	verifier      *identity.Verifier
	presence      chat.Presence
	maxFrameBytes int64

	upgrader websocket.Upgrader
}

// NewChatHandler creates a new ChatHandler instance
func NewChatHandler(deps *Dependencies) *ChatHandler {
	return &ChatHandler{
		logger:        deps.Logger,
		hub:           deps.Hub,
		rooms:         deps.Rooms,
		store:         deps.Store,
		verifier:      deps.Verifier,
		presence:      deps.Presence,
		maxFrameBytes: deps.MaxFrameBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS handles GET /ws. The upgrade happens before identity verification
// so that an authentication failure can be reported as a websocket close
// frame rather than a plain HTTP error the client library may swallow.
func (h *ChatHandler) ServeWS(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	userID, err := h.verifier.VerifyRequest(c.Request)
	if err != nil {
		h.logger.Warn("Websocket identity rejected",
			slog.String("remote_addr", c.Request.RemoteAddr),
			slog.String("error", err.Error()),
		)
		_ = ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(chat.CloseUnauthorized, "unauthorized"),
			time.Now().Add(5*time.Second),
		)
		_ = ws.Close()
		return
	}

	if h.maxFrameBytes > 0 {
		ws.SetReadLimit(h.maxFrameBytes)
	}

	conn := chat.NewConnection(userID, ws)
	h.hub.Attach(conn)
	defer h.hub.Detach(conn)

	h.logger.Info("Websocket connected",
		slog.String("connection_id", conn.ID),
		slog.String("user_id", userID),
	)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("Websocket read failed",
					slog.String("connection_id", conn.ID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		h.hub.Inbound(conn, data)
	}
}

// ListMessages handles GET /api/v1/rooms/:room_id/messages. The path segment
// may be either a room id or a job id.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	var req dto.ListMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 50
	}
	if req.PageSize > 200 {
		req.PageSize = 200
	}

	room, err := h.rooms.Lookup(c.Request.Context(), c.Param("room_id"))
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}

	member, err := h.rooms.IsParticipant(c.Request.Context(), room.RoomID, currentUser(c))
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this room"})
		return
	}

	messages, err := h.store.ListMessages(c.Request.Context(), room.RoomID, storage.MessageFilter{
		BeforeID: req.BeforeID,
		PageSize: req.PageSize,
	})
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}

	items := make([]dto.MessageDTO, len(messages))
	for i := range messages {
		items[i] = dto.FromMessage(&messages[i])
	}

	c.JSON(http.StatusOK, gin.H{"room_id": room.RoomID, "messages": items})
}

// GetPresence handles GET /api/v1/presence/:user_id
func (h *ChatHandler) GetPresence(c *gin.Context) {
	if _, ok := h.presence.(chat.NopPresence); ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence tracking is not enabled"})
		return
	}

	online, err := h.presence.IsOnline(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		h.logger.Error("Presence lookup failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("user_id"), "online": online})
}
