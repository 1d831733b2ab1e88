package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Frame type discriminators as they appear on the wire.
const (
	frameTypeJoin    = "join"
	frameTypeMessage = "message"
	frameTypeLeave   = "leave"
	frameTypePong    = "pong"

	frameTypeConnectionEstablished = "connection_established"
	frameTypeJoined                = "joined"
	frameTypePing                  = "ping"
	frameTypeError                 = "error"
)

var errUnknownFrameType = errors.New("unknown frame type")

// InboundFrame is the tagged union of frames a client may send. Every variant
// is a distinct type so dispatch is an exhaustive type switch instead of
// string-keyed field poking.
type InboundFrame interface {
	isInbound()
}

// JoinFrame binds the connection to a room. ChatRoomID may be either a room
// id or the owning job's id.
type JoinFrame struct {
	ChatRoomID string `json:"chatRoomId"`
	SenderID   string `json:"senderId"`
}

// MessageFrame carries a chat message to be persisted and fanned out.
type MessageFrame struct {
	ChatRoomID  string `json:"chatRoomId"`
	Content     string `json:"content"`
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	MessageType string `json:"messageType"`
}

// LeaveFrame unbinds the connection from a room's fan-out set.
type LeaveFrame struct {
	ChatRoomID string `json:"chatRoomId"`
}

// PongFrame acknowledges a heartbeat probe.
type PongFrame struct{}

func (JoinFrame) isInbound()    {}
func (MessageFrame) isInbound() {}
func (LeaveFrame) isInbound()   {}
func (PongFrame) isInbound()    {}

// DecodeFrame parses a raw inbound payload into its concrete frame variant.
func DecodeFrame(data []byte) (InboundFrame, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch envelope.Type {
	case frameTypeJoin:
		var frame JoinFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("malformed join frame: %w", err)
		}
		if frame.ChatRoomID == "" {
			return nil, errors.New("join frame missing chatRoomId")
		}
		return frame, nil
	case frameTypeMessage:
		var frame MessageFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("malformed message frame: %w", err)
		}
		if frame.ChatRoomID == "" || frame.Content == "" {
			return nil, errors.New("message frame missing chatRoomId or content")
		}
		return frame, nil
	case frameTypeLeave:
		var frame LeaveFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("malformed leave frame: %w", err)
		}
		if frame.ChatRoomID == "" {
			return nil, errors.New("leave frame missing chatRoomId")
		}
		return frame, nil
	case frameTypePong:
		return PongFrame{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownFrameType, envelope.Type)
	}
}

// Outbound frames. Each marshals with its type discriminator baked in.

type connectionEstablishedFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type joinedFrame struct {
	Type       string `json:"type"`
	ChatRoomID string `json:"chatRoomId"`
}

type outboundMessageFrame struct {
	Type        string    `json:"type"`
	ID          int64     `json:"id"`
	ChatRoomID  string    `json:"chatRoomId"`
	Content     string    `json:"content"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	MessageType string    `json:"messageType"`
	Timestamp   time.Time `json:"timestamp"`
}

type pingFrame struct {
	Type string `json:"type"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func encodeConnectionEstablished(userID string) []byte {
	return mustMarshal(connectionEstablishedFrame{Type: frameTypeConnectionEstablished, UserID: userID})
}

func encodeJoined(roomID string) []byte {
	return mustMarshal(joinedFrame{Type: frameTypeJoined, ChatRoomID: roomID})
}

func encodePing() []byte {
	return mustMarshal(pingFrame{Type: frameTypePing})
}

func encodeError(message string) []byte {
	return mustMarshal(errorFrame{Type: frameTypeError, Message: message})
}

func mustMarshal(v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		// All outbound frame types are plain structs; marshalling cannot fail.
		panic(err)
	}
	return payload
}
