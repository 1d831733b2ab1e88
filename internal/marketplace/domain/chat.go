package domain

import "time"

// Message type constants
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeSystem = "system"
)

// ChatRoom is the messaging scope bound one-to-one with a job. It is created
// lazily: when a bid is accepted, or when the parties first exchange a
// pre-acceptance inquiry.
type ChatRoom struct {
	RoomID    string    `db:"room_id" json:"room_id"`
	JobID     string    `db:"job_id" json:"job_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Participant is a user enrolled in a room. Participants are never removed,
// so a user may always rejoin a room they were once part of.
type Participant struct {
	RoomID     string    `db:"room_id" json:"room_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	LastReadAt time.Time `db:"last_read_at" json:"last_read_at"`
}

// Message is an immutable chat message owned exclusively by its room.
// IDs increase monotonically within a room.
type Message struct {
	MessageID   int64     `db:"message_id" json:"message_id"`
	RoomID      string    `db:"room_id" json:"room_id"`
	SenderID    string    `db:"sender_id" json:"sender_id"`
	SenderName  string    `db:"sender_name" json:"sender_name"`
	Content     string    `db:"content" json:"content"`
	MessageType string    `db:"message_type" json:"message_type"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ValidMessageType reports whether s is a known message type.
func ValidMessageType(s string) bool {
	switch s {
	case MessageTypeText, MessageTypeImage, MessageTypeSystem:
		return true
	}
	return false
}
