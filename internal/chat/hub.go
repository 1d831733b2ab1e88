package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/workbridge/marketplace-be/internal/marketplace/domain"
	"github.com/workbridge/marketplace-be/internal/metrics"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultPersistTimeout    = 5 * time.Second

	// A connection is evicted after this many consecutive unacknowledged
	// heartbeat probes.
	maxMissedProbes = 2
)

// MessageStore is the slice of the persistent store the router needs:
// durability precedes visibility, so this is the one blocking call on the
// event loop.
type MessageStore interface {
	CreateMessage(ctx context.Context, roomID, senderID, senderName, content, messageType string) (*domain.Message, error)
}

// Envelope is the unit re-published to other router processes when the
// cross-process bridge is enabled.
type Envelope struct {
	Origin  string          `json:"origin"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload"`
}

// Publisher forwards persisted message envelopes to other router processes.
type Publisher interface {
	PublishEnvelope(ctx context.Context, env Envelope) error
}

type eventKind int

const (
	evAttach eventKind = iota
	evDetach
	evFrame
	evRemote
)

type hubEvent struct {
	kind eventKind
	conn *Connection
	data []byte
	env  Envelope
}

// HubConfig wires the hub's collaborators. Presence and Publisher are
// optional.
type HubConfig struct {
	Logger            *slog.Logger
	Store             MessageStore
	Rooms             *Rooms
	Registry          *Registry
	Metrics           *metrics.Chat
	Presence          Presence
	Publisher         Publisher
	HeartbeatInterval time.Duration
	PersistTimeout    time.Duration
}

// Hub is the message router. All registry mutations, message persistence,
// fan-out, and liveness probing happen on the single goroutine running Run,
// which is what makes per-room delivery order equal persistence order.
type Hub struct {
	logger   *slog.Logger
	store    MessageStore
	rooms    *Rooms
	registry *Registry
	metrics  *metrics.Chat

	presence  Presence
	publisher Publisher

	heartbeatInterval time.Duration
	persistTimeout    time.Duration

	originID string
	events   chan hubEvent
	done     chan struct{}
}

func NewHub(cfg HubConfig) *Hub {
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	persistTimeout := cfg.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}
	presence := cfg.Presence
	if presence == nil {
		presence = NopPresence{}
	}

	return &Hub{
		logger:            cfg.Logger,
		store:             cfg.Store,
		rooms:             cfg.Rooms,
		registry:          cfg.Registry,
		metrics:           cfg.Metrics,
		presence:          presence,
		publisher:         cfg.Publisher,
		heartbeatInterval: heartbeat,
		persistTimeout:    persistTimeout,
		originID:          uuid.NewString(),
		events:            make(chan hubEvent, 256),
		done:              make(chan struct{}),
	}
}

// OriginID identifies this router process on the bridge.
func (h *Hub) OriginID() string {
	return h.originID
}

// SetPublisher installs the cross-process publisher. Must be called before
// Run; the bridge needs the hub first, so the publisher arrives late.
func (h *Hub) SetPublisher(p Publisher) {
	h.publisher = p
}

// Attach hands a freshly authenticated connection to the hub.
func (h *Hub) Attach(conn *Connection) {
	h.enqueue(hubEvent{kind: evAttach, conn: conn})
}

// Detach reports a transport-level disconnect. Duplicate detaches are fine.
func (h *Hub) Detach(conn *Connection) {
	h.enqueue(hubEvent{kind: evDetach, conn: conn})
}

// Inbound hands a raw frame read from the connection to the hub.
func (h *Hub) Inbound(conn *Connection, data []byte) {
	h.enqueue(hubEvent{kind: evFrame, conn: conn, data: data})
}

// DeliverRemote hands an envelope received from another router process to
// the hub for local fan-out.
func (h *Hub) DeliverRemote(env Envelope) {
	h.enqueue(hubEvent{kind: evRemote, env: env})
}

func (h *Hub) enqueue(ev hubEvent) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

// Run processes events until ctx is cancelled, then closes every tracked
// connection. It must be called exactly once.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()
	defer close(h.done)

	h.logger.Info("Chat hub started",
		slog.String("origin_id", h.originID),
		slog.Duration("heartbeat_interval", h.heartbeatInterval),
	)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-ticker.C:
			h.sweep()
		case ev := <-h.events:
			switch ev.kind {
			case evAttach:
				h.handleAttach(ev.conn)
			case evDetach:
				h.handleDetach(ev.conn)
			case evFrame:
				h.handleFrame(ev.conn, ev.data)
			case evRemote:
				h.handleRemote(ev.env)
			}
		}
	}
}

func (h *Hub) handleAttach(conn *Connection) {
	h.registry.Register(conn)
	h.registry.BindUser(conn.ID, conn.UserID)
	conn.Start()

	_ = conn.Send(encodeConnectionEstablished(conn.UserID))
	h.touchPresence(conn.UserID)
	h.updateGauges()

	h.logger.Info("Connection attached",
		slog.String("conn_id", conn.ID),
		slog.String("user_id", conn.UserID),
	)
}

func (h *Hub) handleDetach(conn *Connection) {
	userID, remaining := h.registry.Unregister(conn.ID)
	conn.Close(websocket.CloseNormalClosure, "session closed")
	if userID != "" && remaining == 0 {
		h.dropPresence(userID)
	}
	h.updateGauges()
}

func (h *Hub) handleFrame(conn *Connection, data []byte) {
	frame, err := DecodeFrame(data)
	if err != nil {
		// A single malformed frame must not terminate an otherwise healthy
		// session; log and move on.
		h.metrics.FramesRejected.Inc()
		h.logger.Warn("Dropping malformed frame",
			slog.String("conn_id", conn.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	switch f := frame.(type) {
	case JoinFrame:
		h.handleJoin(conn, f)
	case MessageFrame:
		h.handleSend(conn, f)
	case LeaveFrame:
		h.handleLeave(conn, f)
	case PongFrame:
		conn.awaitingPong = false
		conn.missedProbes = 0
		h.touchPresence(conn.UserID)
	}
}

func (h *Hub) handleJoin(conn *Connection, frame JoinFrame) {
	if frame.SenderID != "" && frame.SenderID != conn.UserID {
		h.rejectFrame(conn, "senderId does not match authenticated user")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.persistTimeout)
	defer cancel()

	room, err := h.rooms.Resolve(ctx, frame.ChatRoomID, conn.UserID)
	if err != nil {
		h.replyResolveError(conn, err)
		return
	}

	member, err := h.rooms.IsParticipant(ctx, room.RoomID, conn.UserID)
	if err != nil {
		h.replyError(conn, "failed to verify room membership")
		return
	}
	if !member {
		can, err := h.rooms.CanInquire(ctx, room.JobID, conn.UserID)
		if err != nil {
			h.replyError(conn, "failed to verify room membership")
			return
		}
		if !can {
			h.rejectFrame(conn, "not a participant of this room")
			return
		}
		if err := h.rooms.AddParticipant(ctx, room.RoomID, conn.UserID); err != nil {
			h.replyError(conn, "failed to join room")
			return
		}
	}

	h.registry.JoinRoom(conn.ID, room.RoomID)
	_ = conn.Send(encodeJoined(room.RoomID))
	h.updateGauges()

	h.logger.Info("Connection joined room",
		slog.String("conn_id", conn.ID),
		slog.String("room_id", room.RoomID),
	)
}

func (h *Hub) handleSend(conn *Connection, frame MessageFrame) {
	if frame.SenderID != "" && frame.SenderID != conn.UserID {
		h.rejectFrame(conn, "senderId does not match authenticated user")
		return
	}

	messageType := frame.MessageType
	if messageType == "" {
		messageType = domain.MessageTypeText
	}
	if !domain.ValidMessageType(messageType) {
		h.rejectFrame(conn, "unknown messageType")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.persistTimeout)
	defer cancel()

	room, err := h.rooms.Resolve(ctx, frame.ChatRoomID, conn.UserID)
	if err != nil {
		h.replyResolveError(conn, err)
		return
	}

	member, err := h.rooms.IsParticipant(ctx, room.RoomID, conn.UserID)
	if err != nil {
		h.replyError(conn, "failed to verify room membership")
		return
	}
	if !member {
		h.rejectFrame(conn, "not a participant of this room")
		return
	}

	// Durability precedes visibility: no delivery without a committed write.
	msg, err := h.store.CreateMessage(ctx, room.RoomID, conn.UserID, frame.SenderName, frame.Content, messageType)
	if err != nil {
		h.metrics.MessagesFailed.Inc()
		h.logger.Error("Message persistence failed",
			slog.String("room_id", room.RoomID),
			slog.String("sender_id", conn.UserID),
			slog.Any("error", err),
		)
		h.replyError(conn, "failed to persist message")
		return
	}
	h.metrics.MessagesPersisted.Inc()

	payload := mustMarshal(outboundMessageFrame{
		Type:        frameTypeMessage,
		ID:          msg.MessageID,
		ChatRoomID:  msg.RoomID,
		Content:     msg.Content,
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderName,
		MessageType: msg.MessageType,
		Timestamp:   msg.CreatedAt,
	})

	h.broadcast(room.RoomID, payload)

	if h.publisher != nil {
		env := Envelope{Origin: h.originID, RoomID: room.RoomID, Payload: payload}
		if err := h.publisher.PublishEnvelope(ctx, env); err != nil {
			h.logger.Error("Bridge publish failed",
				slog.String("room_id", room.RoomID),
				slog.Any("error", err),
			)
		} else {
			h.metrics.BridgePublished.Inc()
		}
	}
}

func (h *Hub) handleLeave(conn *Connection, frame LeaveFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), h.persistTimeout)
	defer cancel()

	// Leaving only unbinds the connection from fan-out; the participant
	// record stays, so the user remains eligible to rejoin.
	roomID := frame.ChatRoomID
	if room, err := h.rooms.Lookup(ctx, frame.ChatRoomID); err == nil {
		roomID = room.RoomID
	}
	h.registry.LeaveRoom(conn.ID, roomID)
	h.updateGauges()
}

func (h *Hub) handleRemote(env Envelope) {
	if env.Origin == h.originID {
		return
	}
	h.broadcast(env.RoomID, env.Payload)
	h.metrics.BridgeDelivered.Inc()
}

// broadcast fans the payload out to every connection currently joined to the
// room, including the sender's own other connections.
func (h *Hub) broadcast(roomID string, payload []byte) {
	for _, conn := range h.registry.RoomConnections(roomID) {
		if err := conn.Send(payload); err != nil {
			h.logger.Warn("Delivery failed, dropping connection",
				slog.String("conn_id", conn.ID),
				slog.String("room_id", roomID),
			)
			h.evict(conn)
		}
	}
}

// sweep is the liveness cycle: connections that have not acknowledged
// maxMissedProbes consecutive probes are evicted; everyone else is probed
// again.
func (h *Hub) sweep() {
	for _, conn := range h.registry.All() {
		if conn.awaitingPong {
			conn.missedProbes++
			if conn.missedProbes >= maxMissedProbes {
				h.metrics.HeartbeatEvictions.Inc()
				h.logger.Info("Evicting unresponsive connection",
					slog.String("conn_id", conn.ID),
					slog.String("user_id", conn.UserID),
				)
				h.evictWithCode(conn, CloseHeartbeatTimeout, "heartbeat timeout")
				continue
			}
		}
		if err := conn.Send(encodePing()); err != nil {
			h.evict(conn)
			continue
		}
		conn.awaitingPong = true
	}
	h.updateGauges()
}

func (h *Hub) evict(conn *Connection) {
	h.evictWithCode(conn, websocket.CloseGoingAway, "connection dropped")
}

func (h *Hub) evictWithCode(conn *Connection, code int, reason string) {
	userID, remaining := h.registry.Unregister(conn.ID)
	conn.Close(code, reason)
	if userID != "" && remaining == 0 {
		h.dropPresence(userID)
	}
	h.updateGauges()
}

func (h *Hub) shutdown() {
	for _, conn := range h.registry.All() {
		h.registry.Unregister(conn.ID)
		conn.Close(websocket.CloseGoingAway, "server shutdown")
	}
	h.updateGauges()
	h.logger.Info("Chat hub stopped")
}

func (h *Hub) rejectFrame(conn *Connection, message string) {
	h.metrics.FramesRejected.Inc()
	h.replyError(conn, message)
}

func (h *Hub) replyResolveError(conn *Connection, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.replyError(conn, "room not found")
	case errors.Is(err, domain.ErrUnauthorized):
		h.rejectFrame(conn, "not authorized for this room")
	default:
		h.logger.Error("Room resolution failed", slog.Any("error", err))
		h.replyError(conn, "failed to resolve room")
	}
}

func (h *Hub) replyError(conn *Connection, message string) {
	_ = conn.Send(encodeError(message))
}

// Presence writes leave the event loop so redis latency never blocks
// message handling.

func (h *Hub) touchPresence(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.presence.Touch(ctx, userID)
	}()
}

func (h *Hub) dropPresence(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.presence.Drop(ctx, userID)
	}()
}

func (h *Hub) updateGauges() {
	h.metrics.ActiveConnections.Set(float64(h.registry.Len()))
	h.metrics.ActiveRooms.Set(float64(h.registry.RoomCount()))
}
